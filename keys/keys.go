// Package keys is the wallet's signing capability: keypair generation,
// index derivation from an unlocked seed, address and secret-key encoding,
// and message signing.
//
// Addresses are base58check encoded with the B62 version prefix and exported
// secret keys with the EK prefix, so both look and validate like the formats
// users already paste between wallets.
package keys

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/jmcleod/ironwallet/internal/util"
)

const (
	// AddressLength is the length of an encoded address.
	AddressLength = 55
	// SecretKeyLength is the length of an encoded secret key.
	SecretKeyLength = 52

	deriveSalt = "wallet:account-derivation:v1"
)

// Keypair is one account's key material. Call Destroy once the operation
// that needed it is finished.
type Keypair struct {
	public ed25519.PublicKey
	secret ed25519.PrivateKey
}

func newKeypair(seed []byte) *Keypair {
	secret := ed25519.NewKeyFromSeed(seed)
	return &Keypair{
		public: secret.Public().(ed25519.PublicKey),
		secret: secret,
	}
}

// Generate creates a random keypair.
func Generate() (*Keypair, error) {
	seed, err := util.RandomBytes(ed25519.SeedSize)
	if err != nil {
		return nil, fmt.Errorf("generating keypair: %w", err)
	}
	defer util.WipeBytes(seed)
	return newKeypair(seed), nil
}

// Derive returns the keypair for an HD index of the given wallet seed.
// The same seed and index always produce the same keypair.
func Derive(seed []byte, index uint32) (*Keypair, error) {
	if len(seed) == 0 {
		return nil, fmt.Errorf("deriving keypair: empty seed")
	}
	info := make([]byte, 0, 32)
	info = append(info, "account:"...)
	info = binary.BigEndian.AppendUint32(info, index)

	child, err := util.HKDF(seed, []byte(deriveSalt), info)
	if err != nil {
		return nil, fmt.Errorf("deriving keypair %d: %w", index, err)
	}
	defer util.WipeBytes(child)
	return newKeypair(child), nil
}

// FromSecretKey parses an EK-encoded secret key.
func FromSecretKey(encoded string) (*Keypair, error) {
	seed, err := decodeCheck(encoded, secretKeyVersion, ed25519.SeedSize)
	if err != nil {
		return nil, fmt.Errorf("invalid secret key: %w", err)
	}
	defer util.WipeBytes(seed)
	return newKeypair(seed), nil
}

// FromSecretKeyHex parses a hex-encoded secret key.
func FromSecretKeyHex(s string) (*Keypair, error) {
	seed, err := util.HexDecode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid secret key hex: %w", err)
	}
	defer util.WipeBytes(seed)
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("invalid secret key hex: want %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return newKeypair(seed), nil
}

// Address returns the B62 address of the keypair.
func (k *Keypair) Address() string {
	return encodeAddress(k.public)
}

// PublicKeyHex returns the hex-encoded public key.
func (k *Keypair) PublicKeyHex() string {
	return util.HexEncode(k.public)
}

// SecretKey returns the EK-encoded secret key.
func (k *Keypair) SecretKey() string {
	return encodeCheck(secretKeyVersion, k.secret.Seed())
}

// SecretKeyHex returns the hex-encoded secret key.
func (k *Keypair) SecretKeyHex() string {
	return util.HexEncode(k.secret.Seed())
}

// Sign signs msg for the given network. Signatures are not valid across networks.
func (k *Keypair) Sign(networkID string, msg []byte) []byte {
	return ed25519.Sign(k.secret, signingPayload(networkID, msg))
}

// Destroy wipes the secret key.
func (k *Keypair) Destroy() {
	if k == nil {
		return
	}
	util.WipeBytes(k.secret)
}

func signingPayload(networkID string, msg []byte) []byte {
	payload := make([]byte, 0, len(networkID)+len(msg)+8)
	payload = append(payload, "sig:"...)
	payload = strconv.AppendInt(payload, int64(len(networkID)), 10)
	payload = append(payload, ':')
	payload = append(payload, networkID...)
	return append(payload, msg...)
}

func encodeAddress(pub ed25519.PublicKey) string {
	// The trailing byte mirrors the parity flag of compressed curve points and is always zero here.
	payload := make([]byte, 0, ed25519.PublicKeySize+1)
	payload = append(payload, pub...)
	payload = append(payload, 0)
	return encodeCheck(addressVersion, payload)
}

// AddressToPublicKey decodes an address into its public key.
func AddressToPublicKey(address string) (ed25519.PublicKey, error) {
	payload, err := decodeCheck(address, addressVersion, ed25519.PublicKeySize+1)
	if err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}
	if payload[ed25519.PublicKeySize] != 0 {
		return nil, fmt.Errorf("invalid address: %w", errVersion)
	}
	return ed25519.PublicKey(payload[:ed25519.PublicKeySize]), nil
}

// PublicKeyToAddress converts a hex-encoded public key to an address.
func PublicKeyToAddress(publicKeyHex string) (string, error) {
	pub, err := util.HexDecode(publicKeyHex)
	if err != nil {
		return "", fmt.Errorf("invalid public key: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return "", fmt.Errorf("invalid public key: want %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}
	return encodeAddress(pub), nil
}

// SecretKeyToAddress returns the address for an EK-encoded secret key.
func SecretKeyToAddress(encoded string) (string, error) {
	kp, err := FromSecretKey(encoded)
	if err != nil {
		return "", err
	}
	defer kp.Destroy()
	return kp.Address(), nil
}

// ValidateAddress reports whether address is a well-formed B62 address.
func ValidateAddress(address string) bool {
	_, err := AddressToPublicKey(address)
	return err == nil
}

// ValidateSecretKey reports whether s is a well-formed EK secret key.
func ValidateSecretKey(s string) bool {
	seed, err := decodeCheck(s, secretKeyVersion, ed25519.SeedSize)
	util.WipeBytes(seed)
	return err == nil
}

// Verify checks a signature produced by Keypair.Sign.
func Verify(networkID, address string, msg, sig []byte) bool {
	pub, err := AddressToPublicKey(address)
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, signingPayload(networkID, msg), sig)
}

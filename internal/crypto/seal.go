// Package icrypto holds the wallet's at-rest sealing scheme: a password
// stretched with Argon2id into a key-encryption key, AES-256-GCM sealed
// secrets, and HKDF sub-keys derived from the unlocked seed.
package icrypto

import (
	"fmt"

	"github.com/jmcleod/ironwallet/internal/util"
)

const (
	sealScheme      = "aes256gcm"
	importKeyInfo   = "wallet:import-key:v1"
	sealedSecretVer = 1
)

// SealedSecret is an AES-256-GCM encrypted value as persisted in the wallet record.
type SealedSecret struct {
	Ver        int    `json:"ver"`
	Scheme     string `json:"scheme"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// Seal encrypts plaintext under key, binding it to aad.
func Seal(key, plaintext, aad []byte) (*SealedSecret, error) {
	blob, err := util.EncryptAESWithAAD(plaintext, key, aad)
	if err != nil {
		return nil, err
	}
	return &SealedSecret{
		Ver:        sealedSecretVer,
		Scheme:     sealScheme,
		Nonce:      blob[:util.GCMNonceSize],
		Ciphertext: blob[util.GCMNonceSize:],
	}, nil
}

// Open decrypts a SealedSecret. A wrong key and a tampered record are
// indistinguishable; both surface as an error.
func Open(key []byte, s *SealedSecret, aad []byte) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("sealed secret is missing")
	}
	if s.Ver != sealedSecretVer {
		return nil, fmt.Errorf("unsupported sealed secret version: %d", s.Ver)
	}
	if s.Scheme != sealScheme {
		return nil, fmt.Errorf("unsupported sealed secret scheme: %s", s.Scheme)
	}

	full := make([]byte, len(s.Nonce)+len(s.Ciphertext))
	copy(full, s.Nonce)
	copy(full[len(s.Nonce):], s.Ciphertext)
	return util.DecryptAESWithAAD(full, key, aad)
}

// DeriveKEK stretches a password into the key that seals the wallet mnemonic.
func DeriveKEK(password []byte, salt []byte, params util.Argon2idParams) ([]byte, error) {
	normalized := util.NormalizeBytes(password)
	defer util.WipeBytes(normalized)
	return util.DeriveArgon2idKey(normalized, salt, params)
}

// DeriveImportKey derives the key that seals imported account secrets. It is
// only reachable while the seed is unlocked.
func DeriveImportKey(seed []byte, walletID string) ([]byte, error) {
	return util.HKDF(seed, []byte(walletID), []byte(importKeyInfo))
}

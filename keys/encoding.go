package keys

import (
	"bytes"
	"crypto/sha256"
	"errors"

	"github.com/mr-tron/base58"
)

const checksumLen = 4

var (
	addressVersion   = []byte{0xcb, 0x01, 0x01}
	secretKeyVersion = []byte{0x5a, 0x01}

	errChecksum = errors.New("checksum mismatch")
	errVersion  = errors.New("unexpected version bytes")
	errLength   = errors.New("unexpected payload length")
)

func checksum(b []byte) []byte {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return second[:checksumLen]
}

// encodeCheck base58-encodes version||payload||checksum.
func encodeCheck(version, payload []byte) string {
	buf := make([]byte, 0, len(version)+len(payload)+checksumLen)
	buf = append(buf, version...)
	buf = append(buf, payload...)
	buf = append(buf, checksum(buf)...)
	return base58.Encode(buf)
}

// decodeCheck reverses encodeCheck and returns the payload.
func decodeCheck(s string, version []byte, payloadLen int) ([]byte, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, err
	}
	if len(raw) != len(version)+payloadLen+checksumLen {
		return nil, errLength
	}
	body, sum := raw[:len(raw)-checksumLen], raw[len(raw)-checksumLen:]
	if !bytes.Equal(checksum(body), sum) {
		return nil, errChecksum
	}
	if !bytes.Equal(body[:len(version)], version) {
		return nil, errVersion
	}
	return body[len(version):], nil
}

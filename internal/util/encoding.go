package util

import (
	"encoding/hex"

	"golang.org/x/text/unicode/norm"
)

// Normalize applies NFKD so the same password or mnemonic typed on different
// platforms derives the same key.
func Normalize(s string) string {
	return norm.NFKD.String(s)
}

// NormalizeBytes is Normalize for callers holding the secret as bytes.
func NormalizeBytes(b []byte) []byte {
	return norm.NFKD.Bytes(b)
}

func HexEncode(b []byte) string {
	return hex.EncodeToString(b)
}

func HexDecode(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

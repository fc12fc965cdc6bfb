package icrypto

import (
	"encoding/binary"
)

const (
	aadSeed        = "SEED"
	aadImportedKey = "IMPORTKEY"
)

// AADSeed binds a sealed mnemonic to its wallet and record version.
func AADSeed(walletID string, ver int) []byte {
	return buildAAD(aadSeed, walletID, ver)
}

// AADImportedKey binds a sealed imported secret key to its account index.
func AADImportedKey(walletID string, index uint32, ver int) []byte {
	return buildAAD(aadImportedKey, walletID, uint64(index), ver)
}

func buildAAD(parts ...any) []byte {
	var res []byte
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			res = appendLenPrefix(res, []byte(v))
		case []byte:
			res = appendLenPrefix(res, v)
		case uint64:
			res = binary.BigEndian.AppendUint64(res, v)
		case int:
			res = binary.BigEndian.AppendUint32(res, uint32(v))
		}
	}
	return res
}

func appendLenPrefix(b, data []byte) []byte {
	b = binary.BigEndian.AppendUint32(b, uint32(len(data)))
	return append(b, data...)
}

// Package crypto provides the chain's hashing and signature primitives.
package crypto

import (
	"github.com/Klingon-tech/cellwallet/pkg/types"
)

// Hash computes the chain hash (personalized blake2b-256) of the input data.
func Hash(data ...[]byte) types.Hash {
	return types.CKBHash(data...)
}

// Blake160 returns the first 20 bytes of Hash(data).
func Blake160(data []byte) types.Blake160 {
	return Hash(data).Blake160()
}

// PubKeyBlake160 derives the single-key lock args from a compressed public
// key.
func PubKeyBlake160(pubKey []byte) types.Blake160 {
	return Blake160(pubKey)
}

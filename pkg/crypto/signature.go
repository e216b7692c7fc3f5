package crypto

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/Klingon-tech/cellwallet/pkg/types"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// SignatureSize is the length of a recoverable signature: r(32) | s(32) | v(1).
const SignatureSize = 65

// compactMagic is the header offset ecdsa.SignCompact adds for a compressed
// key (27 + 4).
const compactMagic = 27 + 4

// ErrInvalidSignature is returned for malformed recoverable signatures.
var ErrInvalidSignature = errors.New("invalid recoverable signature")

// Signer produces recoverable signatures over 32-byte messages.
type Signer interface {
	// Sign produces a 65-byte recoverable signature over a 32-byte hash.
	Sign(hash []byte) ([]byte, error)
	// PublicKey returns the compressed 33-byte public key.
	PublicKey() []byte
}

// PrivateKey wraps a secp256k1 private key.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// GenerateKey creates a new random secp256k1 private key.
func GenerateKey() (*PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes creates a PrivateKey from a 32-byte secret.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(b))
	}
	return &PrivateKey{key: secp256k1.PrivKeyFromBytes(b)}, nil
}

// Sign produces a recoverable ECDSA signature r | s | recid over a 32-byte
// hash. Signing is deterministic (RFC 6979).
func (pk *PrivateKey) Sign(hash []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("hash must be 32 bytes, got %d", len(hash))
	}
	compact := ecdsa.SignCompact(pk.key, hash, true)
	sig := make([]byte, SignatureSize)
	copy(sig, compact[1:])
	sig[64] = compact[0] - compactMagic
	return sig, nil
}

// PublicKey returns the compressed 33-byte public key.
func (pk *PrivateKey) PublicKey() []byte {
	return pk.key.PubKey().SerializeCompressed()
}

// Blake160 returns the lock args fingerprint of the key.
func (pk *PrivateKey) Blake160() types.Blake160 {
	return PubKeyBlake160(pk.PublicKey())
}

// Serialize returns the 32-byte private key scalar.
func (pk *PrivateKey) Serialize() []byte {
	return pk.key.Serialize()
}

// Zero securely zeroes the private key memory.
func (pk *PrivateKey) Zero() {
	pk.key.Zero()
}

// RecoverPubKey returns the compressed public key that produced sig over
// hash.
func RecoverPubKey(hash, sig []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("%w: hash must be 32 bytes", ErrInvalidSignature)
	}
	if len(sig) != SignatureSize || sig[64] > 3 {
		return nil, fmt.Errorf("%w: want %d bytes with recid 0-3", ErrInvalidSignature, SignatureSize)
	}
	compact := make([]byte, SignatureSize)
	compact[0] = sig[64] + compactMagic
	copy(compact[1:], sig[:64])
	pub, _, err := ecdsa.RecoverCompact(compact, hash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return pub.SerializeCompressed(), nil
}

// VerifySignature checks that sig over hash was produced by the key whose
// compressed form is publicKey. Returns false on any error.
func VerifySignature(hash, sig, publicKey []byte) bool {
	recovered, err := RecoverPubKey(hash, sig)
	if err != nil {
		return false
	}
	return bytes.Equal(recovered, publicKey)
}

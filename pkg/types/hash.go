// Package types defines the chain primitives shared by the wallet engine:
// hashes, scripts, outpoints, witness arguments, epochs and addresses.
package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/minio/blake2b-simd"
)

// HashSize is the length of a hash in bytes.
const HashSize = 32

// Blake160Size is the length of a truncated key/script fingerprint.
const Blake160Size = 20

// ckbPersonal is the blake2b personalization used by every chain hash.
var ckbPersonal = []byte("ckb-default-hash")

// Hash represents a 256-bit hash value.
type Hash [HashSize]byte

// Blake160 is the first 20 bytes of a chain hash, used to identify public
// keys and multisig scripts.
type Blake160 [Blake160Size]byte

// CKBHash computes the personalized blake2b-256 digest of data.
func CKBHash(data ...[]byte) Hash {
	h, err := blake2b.New(&blake2b.Config{Size: HashSize, Person: ckbPersonal})
	if err != nil {
		// Config is constant; New only fails on invalid sizes.
		panic(fmt.Sprintf("blake2b: %v", err))
	}
	for _, d := range data {
		h.Write(d)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// IsZero returns true if the hash is all zeros.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// String returns the 0x-prefixed hex encoding of the hash.
func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// Bytes returns a copy of the hash as a byte slice.
func (h Hash) Bytes() []byte {
	b := make([]byte, HashSize)
	copy(b, h[:])
	return b
}

// Blake160 returns the first 20 bytes of the hash.
func (h Hash) Blake160() Blake160 {
	var b Blake160
	copy(b[:], h[:Blake160Size])
	return b
}

// MarshalText encodes the hash as 0x-prefixed hex. It also lets Hash be
// used as a JSON object key.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText decodes a hex string, with or without 0x, into a hash.
func (h *Hash) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*h = Hash{}
		return nil
	}
	parsed, err := HexToHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// MarshalJSON encodes the hash as a hex string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON decodes a hex string into a hash.
func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return h.UnmarshalText([]byte(s))
}

// HexToHash converts a hex string (optionally 0x-prefixed) to a Hash.
func HexToHash(s string) (Hash, error) {
	b, err := DecodeHex(s)
	if err != nil {
		return Hash{}, fmt.Errorf("invalid hash hex: %w", err)
	}
	if len(b) != HashSize {
		return Hash{}, fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(b))
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// MustHexToHash is HexToHash for compile-time constants; it panics on error.
func MustHexToHash(s string) Hash {
	h, err := HexToHash(s)
	if err != nil {
		panic(err)
	}
	return h
}

// String returns the 0x-prefixed hex encoding of the fingerprint.
func (b Blake160) String() string {
	return "0x" + hex.EncodeToString(b[:])
}

// Bytes returns a copy of the fingerprint.
func (b Blake160) Bytes() []byte {
	out := make([]byte, Blake160Size)
	copy(out, b[:])
	return out
}

// MarshalText encodes the fingerprint as 0x-prefixed hex.
func (b Blake160) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText decodes a hex fingerprint.
func (b *Blake160) UnmarshalText(text []byte) error {
	parsed, err := HexToBlake160(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// HexToBlake160 converts a hex string (optionally 0x-prefixed) to a Blake160.
func HexToBlake160(s string) (Blake160, error) {
	raw, err := DecodeHex(s)
	if err != nil {
		return Blake160{}, fmt.Errorf("invalid blake160 hex: %w", err)
	}
	return Blake160FromBytes(raw)
}

// MustHexToBlake160 is HexToBlake160 that panics on error. For constants
// and tests.
func MustHexToBlake160(s string) Blake160 {
	b, err := HexToBlake160(s)
	if err != nil {
		panic(err)
	}
	return b
}

// Blake160FromBytes copies a 20-byte slice into a Blake160.
func Blake160FromBytes(raw []byte) (Blake160, error) {
	if len(raw) != Blake160Size {
		return Blake160{}, fmt.Errorf("blake160 must be %d bytes, got %d", Blake160Size, len(raw))
	}
	var b Blake160
	copy(b[:], raw)
	return b, nil
}

// DecodeHex decodes a hex string that may carry a 0x prefix.
func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return hex.DecodeString(s)
}

package wallet

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Sealed key layout:
//
//	version(1) | salt(16) | memory(4) | iterations(4) | parallelism(1) | nonce(24) | ciphertext
//
// The header is authenticated along with the caller's associated data, so a
// sealed key moved to another wallet file or with tampered KDF params fails
// to open.
const (
	sealVersion  byte = 1
	sealSaltSize      = 16
	sealHeader        = 1 + sealSaltSize + 4 + 4 + 1
)

// ErrSealVersion is returned for sealed keys written by an unknown format.
var ErrSealVersion = errors.New("unsupported sealed key version")

// EncryptionParams holds Argon2id parameters.
type EncryptionParams struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
}

// DefaultParams returns the Argon2id cost used for new wallets.
func DefaultParams() EncryptionParams {
	return EncryptionParams{Memory: 64 * 1024, Iterations: 3, Parallelism: 4}
}

func (p EncryptionParams) key(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, p.Iterations, p.Memory, p.Parallelism, chacha20poly1305.KeySize)
}

// SealKey encrypts secret under password with Argon2id and
// XChaCha20-Poly1305. ad is bound to the ciphertext and must be passed
// again to OpenKey.
func SealKey(secret, password, ad []byte, params EncryptionParams) ([]byte, error) {
	if params.Iterations == 0 || params.Parallelism == 0 {
		return nil, fmt.Errorf("invalid argon2 params %+v", params)
	}
	header := make([]byte, sealHeader, sealHeader+chacha20poly1305.NonceSizeX+len(secret)+chacha20poly1305.Overhead)
	header[0] = sealVersion
	salt := header[1 : 1+sealSaltSize]
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	binary.LittleEndian.PutUint32(header[1+sealSaltSize:], params.Memory)
	binary.LittleEndian.PutUint32(header[5+sealSaltSize:], params.Iterations)
	header[9+sealSaltSize] = params.Parallelism

	key := params.key(password, salt)
	defer clear(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	out := append(header, nonce...)
	return aead.Seal(out, nonce, secret, sealAD(header, ad)), nil
}

// OpenKey reverses SealKey. A wrong password, wrong ad or any corruption
// fails authentication.
func OpenKey(sealed, password, ad []byte) ([]byte, error) {
	if len(sealed) < sealHeader+chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return nil, fmt.Errorf("sealed key too short: %d bytes", len(sealed))
	}
	if sealed[0] != sealVersion {
		return nil, fmt.Errorf("%w: %d", ErrSealVersion, sealed[0])
	}
	header := sealed[:sealHeader]
	params := EncryptionParams{
		Memory:      binary.LittleEndian.Uint32(header[1+sealSaltSize:]),
		Iterations:  binary.LittleEndian.Uint32(header[5+sealSaltSize:]),
		Parallelism: header[9+sealSaltSize],
	}
	if params.Iterations == 0 || params.Parallelism == 0 {
		return nil, fmt.Errorf("invalid argon2 params %+v", params)
	}

	key := params.key(password, header[1:1+sealSaltSize])
	defer clear(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	nonce := sealed[sealHeader : sealHeader+chacha20poly1305.NonceSizeX]
	plain, err := aead.Open(nil, nonce, sealed[sealHeader+chacha20poly1305.NonceSizeX:], sealAD(header, ad))
	if err != nil {
		return nil, fmt.Errorf("open sealed key: %w", err)
	}
	return plain, nil
}

func sealAD(header, ad []byte) []byte {
	out := make([]byte, 0, len(header)+len(ad))
	return append(append(out, header...), ad...)
}

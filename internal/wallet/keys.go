package wallet

import (
	"fmt"

	"github.com/Klingon-tech/cellwallet/pkg/crypto"
	"github.com/Klingon-tech/cellwallet/pkg/types"
	"github.com/tyler-smith/go-bip32"
)

// Serialized extended key lengths: the key (32 bytes private, 33 bytes
// compressed public) followed by the 32-byte chain code.
const (
	ExtendedPrivateKeySize = 64
	ExtendedPublicKeySize  = 65
)

// MasterKey is a wallet's root extended private key.
type MasterKey struct {
	hd *HDKey
}

// MasterKeyFromSeed derives the master key from a BIP-39 seed.
func MasterKeyFromSeed(seed []byte) (*MasterKey, error) {
	hd, err := NewMasterKey(seed)
	if err != nil {
		return nil, err
	}
	return &MasterKey{hd: hd}, nil
}

// MasterKeyFromExtended rebuilds a master key from private key ‖ chain code.
func MasterKeyFromExtended(b []byte) (*MasterKey, error) {
	if len(b) != ExtendedPrivateKeySize {
		return nil, fmt.Errorf("extended private key must be %d bytes, got %d", ExtendedPrivateKeySize, len(b))
	}
	key := &bip32.Key{
		Version:     bip32.PrivateWalletVersion,
		Key:         append([]byte{}, b[:32]...),
		ChainCode:   append([]byte{}, b[32:]...),
		ChildNumber: []byte{0, 0, 0, 0},
		FingerPrint: []byte{0, 0, 0, 0},
		IsPrivate:   true,
	}
	return &MasterKey{hd: &HDKey{key: key}}, nil
}

// Extended returns private key ‖ chain code.
func (m *MasterKey) Extended() []byte {
	out := make([]byte, 0, ExtendedPrivateKeySize)
	out = append(out, m.hd.PrivateKeyBytes()...)
	return append(out, m.hd.ChainCode()...)
}

// Derive returns the key at the given path. The result never aliases the
// master, so callers may zero it.
func (m *MasterKey) Derive(path string) (*HDKey, error) {
	indices, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	if len(indices) == 0 {
		k := *m.hd.key
		k.Key = append([]byte{}, k.Key...)
		k.ChainCode = append([]byte{}, k.ChainCode...)
		return &HDKey{key: &k}, nil
	}
	return m.hd.DerivePath(indices...)
}

// AccountKey returns the public extended key of AccountPath, from which
// every address can be derived without the password.
func (m *MasterKey) AccountKey() (*AccountKey, error) {
	acct, err := m.Derive(AccountPath)
	if err != nil {
		return nil, err
	}
	defer acct.Zero()
	return &AccountKey{
		PublicKey: append([]byte{}, acct.PublicKeyBytes()...),
		ChainCode: append([]byte{}, acct.ChainCode()...),
	}, nil
}

// Zero overwrites the private key.
func (m *MasterKey) Zero() {
	m.hd.Zero()
}

// AccountKey is the public half of the account-level extended key.
type AccountKey struct {
	PublicKey []byte
	ChainCode []byte
}

// AccountKeyFromExtended parses public key ‖ chain code.
func AccountKeyFromExtended(b []byte) (*AccountKey, error) {
	if len(b) != ExtendedPublicKeySize {
		return nil, fmt.Errorf("extended public key must be %d bytes, got %d", ExtendedPublicKeySize, len(b))
	}
	return &AccountKey{
		PublicKey: append([]byte{}, b[:33]...),
		ChainCode: append([]byte{}, b[33:]...),
	}, nil
}

// Extended returns public key ‖ chain code.
func (a *AccountKey) Extended() []byte {
	return append(append([]byte{}, a.PublicKey...), a.ChainCode...)
}

// DeriveBlake160 returns the lock args of AccountPath/change/index.
func (a *AccountKey) DeriveBlake160(change, index uint32) (types.Blake160, error) {
	key := &HDKey{key: &bip32.Key{
		Version:     bip32.PublicWalletVersion,
		Key:         a.PublicKey,
		ChainCode:   a.ChainCode,
		Depth:       3,
		ChildNumber: []byte{0, 0, 0, 0},
		FingerPrint: []byte{0, 0, 0, 0},
	}}
	child, err := key.DerivePath(change, index)
	if err != nil {
		return types.Blake160{}, err
	}
	return child.Blake160(), nil
}

// PathAndPrivateKey is one derived signing key. It is never persisted.
type PathAndPrivateKey struct {
	Path string
	Key  *crypto.PrivateKey
}

// KeySet is the keys derived for one signing call.
type KeySet []PathAndPrivateKey

// Find returns the key derived at path.
func (ks KeySet) Find(path string) (*crypto.PrivateKey, bool) {
	for _, k := range ks {
		if k.Path == path {
			return k.Key, true
		}
	}
	return nil, false
}

// Zero wipes every key in the set.
func (ks KeySet) Zero() {
	for _, k := range ks {
		if k.Key != nil {
			k.Key.Zero()
		}
	}
}

// DerivePrivateKeys derives one key per unique path, keeping first-occurrence
// order. On error any keys derived so far are zeroed.
func DerivePrivateKeys(master *MasterKey, paths []string) (KeySet, error) {
	seen := make(map[string]struct{}, len(paths))
	keys := make(KeySet, 0, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}

		hd, err := master.Derive(p)
		if err != nil {
			keys.Zero()
			return nil, err
		}
		priv, err := hd.Signer()
		hd.Zero()
		if err != nil {
			keys.Zero()
			return nil, fmt.Errorf("derive %s: %w", p, err)
		}
		keys = append(keys, PathAndPrivateKey{Path: p, Key: priv})
	}
	return keys, nil
}

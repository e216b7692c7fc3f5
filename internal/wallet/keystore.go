package wallet

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Klingon-tech/cellwallet/internal/txerr"
)

// Keystore errors.
var (
	ErrWalletExists   = errors.New("wallet already exists")
	ErrWalletNotFound = errors.New("wallet not found")
	ErrHardwareWallet = errors.New("hardware wallet holds no key material")
)

const keystoreVersion = 2

// keystoreFile is the on-disk JSON format for a wallet.
type keystoreFile struct {
	Version      int         `json:"version"`
	CreatedAt    time.Time   `json:"created_at"`
	EncryptedKey []byte      `json:"encrypted_key,omitempty"` // private key ‖ chain code
	AccountKey   string      `json:"account_key"`             // hex public key ‖ chain code of m/44'/309'/0'
	Device       *DeviceInfo `json:"device,omitempty"`
}

// DeviceInfo identifies the hardware device backing a hardware wallet.
type DeviceInfo struct {
	Family     string `json:"family"`
	Model      string `json:"model,omitempty"`
	Descriptor string `json:"descriptor,omitempty"`
}

// Keystore manages encrypted key storage on disk. Wallets are addressed by
// name, which doubles as the wallet ID.
type Keystore struct {
	path string
}

// NewKeystore creates a keystore that reads/writes to the given directory.
// The directory is created if it doesn't exist.
func NewKeystore(path string) (*Keystore, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	return &Keystore{path: path}, nil
}

// walletPath returns the file path for a wallet by name.
func (ks *Keystore) walletPath(name string) string {
	return filepath.Join(ks.path, name+".wallet")
}

// Create stores a software wallet: the master key encrypted under password
// plus the account public key for password-less address derivation.
func (ks *Keystore) Create(name string, master *MasterKey, password []byte, params EncryptionParams) error {
	path := ks.walletPath(name)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %q", ErrWalletExists, name)
	}

	account, err := master.AccountKey()
	if err != nil {
		return fmt.Errorf("derive account key: %w", err)
	}

	extended := master.Extended()
	encrypted, err := SealKey(extended, password, []byte(name), params)
	for i := range extended {
		extended[i] = 0
	}
	if err != nil {
		return fmt.Errorf("encrypt master key: %w", err)
	}

	kf := keystoreFile{
		Version:      keystoreVersion,
		CreatedAt:    time.Now().UTC(),
		EncryptedKey: encrypted,
		AccountKey:   hex.EncodeToString(account.Extended()),
	}
	return ks.writeFile(path, &kf)
}

// CreateHardware stores a hardware wallet. Only the account public key
// reported by the device is kept.
func (ks *Keystore) CreateHardware(name string, device DeviceInfo, account *AccountKey) error {
	path := ks.walletPath(name)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %q", ErrWalletExists, name)
	}
	kf := keystoreFile{
		Version:    keystoreVersion,
		CreatedAt:  time.Now().UTC(),
		AccountKey: hex.EncodeToString(account.Extended()),
		Device:     &device,
	}
	return ks.writeFile(path, &kf)
}

// MasterKey decrypts a software wallet's master key. A wrong password fails
// with txerr.DecryptionFailed. Callers must Zero the key when done.
func (ks *Keystore) MasterKey(name string, password []byte) (*MasterKey, error) {
	kf, err := ks.readFile(ks.walletPath(name))
	if err != nil {
		return nil, err
	}
	if kf.Device != nil {
		return nil, fmt.Errorf("%q: %w", name, ErrHardwareWallet)
	}

	extended, err := OpenKey(kf.EncryptedKey, password, []byte(name))
	if err != nil {
		return nil, txerr.Wrap(txerr.DecryptionFailed, err, "decrypt wallet %q", name)
	}
	defer func() {
		for i := range extended {
			extended[i] = 0
		}
	}()
	return MasterKeyFromExtended(extended)
}

// AccountKey returns the stored account public key.
func (ks *Keystore) AccountKey(name string) (*AccountKey, error) {
	kf, err := ks.readFile(ks.walletPath(name))
	if err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(kf.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("parse account key: %w", err)
	}
	return AccountKeyFromExtended(raw)
}

// Device returns the device of a hardware wallet, or nil for a software
// wallet.
func (ks *Keystore) Device(name string) (*DeviceInfo, error) {
	kf, err := ks.readFile(ks.walletPath(name))
	if err != nil {
		return nil, err
	}
	return kf.Device, nil
}

// Exists reports whether a wallet file is present.
func (ks *Keystore) Exists(name string) bool {
	_, err := os.Stat(ks.walletPath(name))
	return err == nil
}

// List returns the names of all wallet files in the keystore.
func (ks *Keystore) List() ([]string, error) {
	entries, err := os.ReadDir(ks.path)
	if err != nil {
		return nil, fmt.Errorf("read keystore dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if ext := filepath.Ext(name); ext == ".wallet" {
			names = append(names, name[:len(name)-len(ext)])
		}
	}
	return names, nil
}

// Delete removes a wallet file.
func (ks *Keystore) Delete(name string) error {
	path := ks.walletPath(name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("%w: %q", ErrWalletNotFound, name)
	}
	return os.Remove(path)
}

func (ks *Keystore) writeFile(path string, kf *keystoreFile) error {
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal wallet: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write wallet: %w", err)
	}
	return nil
}

func (ks *Keystore) readFile(path string) (*keystoreFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrWalletNotFound, filepath.Base(path))
		}
		return nil, fmt.Errorf("read wallet: %w", err)
	}
	var kf keystoreFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse wallet: %w", err)
	}
	if kf.Version != keystoreVersion {
		return nil, fmt.Errorf("unsupported wallet version: %d", kf.Version)
	}
	return &kf, nil
}

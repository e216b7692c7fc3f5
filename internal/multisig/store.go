package multisig

import (
	"encoding/json"
	"errors"
	"fmt"

	klog "github.com/Klingon-tech/cellwallet/internal/log"
	"github.com/Klingon-tech/cellwallet/internal/storage"
	"github.com/Klingon-tech/cellwallet/pkg/types"
)

// ErrConfigNotFound is returned when no config has the requested lock hash.
var ErrConfigNotFound = errors.New("multisig config not found")

// ConfigStore persists multisig configs keyed by lock hash.
type ConfigStore struct {
	db storage.DB
}

// NewConfigStore creates a store over db.
func NewConfigStore(db storage.DB) *ConfigStore {
	return &ConfigStore{db: db}
}

// Save validates and stores a config, replacing one with the same lock hash.
func (s *ConfigStore) Save(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	lockHash := cfg.LockHash()
	if cfg.ID == "" {
		cfg.ID = lockHash.String()
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := s.db.Put(lockHash[:], data); err != nil {
		return fmt.Errorf("store config: %w", err)
	}
	klog.Multisig.Debug().Str("lock_hash", lockHash.String()).Str("wallet", cfg.WalletID).Msg("Multisig config saved")
	return nil
}

// Get returns the config of a lock hash.
func (s *ConfigStore) Get(lockHash types.Hash) (*Config, error) {
	data, err := s.db.Get(lockHash[:])
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, lockHash)
	}
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// List returns the configs of a wallet, or of every wallet when walletID is
// empty, ordered by lock hash.
func (s *ConfigStore) List(walletID string) ([]*Config, error) {
	var out []*Config
	err := s.db.ForEach(nil, func(_, value []byte) error {
		var cfg Config
		if err := json.Unmarshal(value, &cfg); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
		if walletID == "" || cfg.WalletID == walletID {
			out = append(out, &cfg)
		}
		return nil
	})
	return out, err
}

// Delete removes a config.
func (s *ConfigStore) Delete(lockHash types.Hash) error {
	return s.db.Delete(lockHash[:])
}

// Coordinator returns a coordinator over a wallet's configs.
func (s *ConfigStore) Coordinator(walletID string) (*Coordinator, error) {
	configs, err := s.List(walletID)
	if err != nil {
		return nil, err
	}
	return NewCoordinator(configs...), nil
}

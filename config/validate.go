package config

import (
	"fmt"

	"github.com/Klingon-tech/cellwallet/internal/storage"
)

// Validate checks runtime config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if cfg.Node.URL == "" {
		return fmt.Errorf("node.url is required")
	}
	if cfg.Node.Timeout < 0 || cfg.Hardware.Timeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	switch cfg.Storage.Backend {
	case storage.BackendBadger, storage.BackendBolt, storage.BackendMemory:
	default:
		return fmt.Errorf("storage.backend must be badger, bolt or memory")
	}
	if cfg.Cosign.Port < 0 || cfg.Cosign.Port > 65535 {
		return fmt.Errorf("cosign.port must be in range [0, 65535]")
	}
	if _, err := cfg.SystemScripts.CellDeps(); err != nil {
		return err
	}
	return nil
}

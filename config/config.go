// Package config handles wallet configuration.
//
// Settings come from three layers, later ones winning:
//   - Per-network defaults, including the system script cell deps
//   - The key = value config file in the data directory
//   - Command-line flags
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/Klingon-tech/cellwallet/pkg/types"
)

// NetworkType identifies mainnet or testnet.
type NetworkType = types.Network

const (
	Mainnet = types.Mainnet
	Testnet = types.Testnet
)

// Decimals is the number of fractional digits of one CKB.
const Decimals = 8

// Config holds wallet runtime configuration.
type Config struct {
	Network NetworkType `mapstructure:"network"`
	DataDir string      `mapstructure:"datadir"`

	// Chain node
	Node NodeConfig `mapstructure:"node"`

	// Transaction fees
	Fee FeeConfig `mapstructure:"fee"`

	// Hardware wallets
	Hardware HardwareConfig `mapstructure:"hardware"`

	// Local database
	Storage StorageConfig `mapstructure:"storage"`

	// Co-signing relay
	Cosign CosignConfig `mapstructure:"cosign"`

	// Logging
	Log LogConfig `mapstructure:"log"`

	// System script cells; defaults depend on the network.
	SystemScripts SystemScripts `mapstructure:"scripts"`
}

// NodeConfig holds the chain node connection.
type NodeConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// FeeConfig holds the fee policy. A zero rate means the default rate.
type FeeConfig struct {
	Rate uint64 `mapstructure:"rate"` // shannons per 1000 bytes
}

// HardwareConfig holds hardware wallet settings.
type HardwareConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"` // per device call
}

// StorageConfig selects the database backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend"` // badger, bolt or memory
}

// CosignConfig holds co-signing relay settings.
type CosignConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	ListenAddr string   `mapstructure:"listen"`
	Port       int      `mapstructure:"port"`
	Peers      []string `mapstructure:"peers"`
	NoDiscover bool     `mapstructure:"nodiscover"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
	JSON  bool   `mapstructure:"json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.cellwallet
//	macOS:   ~/Library/Application Support/Cellwallet
//	Windows: %APPDATA%\Cellwallet
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cellwallet"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Cellwallet")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Cellwallet")
		}
		return filepath.Join(home, "AppData", "Roaming", "Cellwallet")
	default:
		return filepath.Join(home, ".cellwallet")
	}
}

// NetworkDataDir returns the network-specific data directory.
func (c *Config) NetworkDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// DatabaseDir returns the wallet database directory.
func (c *Config) DatabaseDir() string {
	return filepath.Join(c.NetworkDataDir(), "db")
}

// KeystoreDir returns the keystore directory.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.NetworkDataDir(), "keystore")
}

// CosignDir returns the co-signing relay directory (node identity).
func (c *Config) CosignDir() string {
	return filepath.Join(c.NetworkDataDir(), "cosign")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "cellwallet.conf")
}

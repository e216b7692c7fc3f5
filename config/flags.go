package config

import (
	"flag"
	"fmt"
	"io"
	"os"
)

// Flags holds the global command-line flags that precede a subcommand.
type Flags struct {
	// Core
	Network string
	DataDir string
	Config  string

	// Node
	NodeURL string

	// Fees
	FeeRate uint64

	// Storage
	Backend string

	// Hardware
	Hardware bool

	// Co-signing relay
	CosignPort  int
	CosignPeers string

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Args are the subcommand and its arguments.
	Args []string

	// Explicitly-set bool flags (for true/false overrides).
	SetHardware bool
	SetLogJSON  bool
}

// ParseFlags parses global flags from args. Parsing stops at the first
// non-flag argument, the subcommand.
func ParseFlags(args []string, usage io.Writer) (*Flags, error) {
	f := &Flags{}
	fs := flag.NewFlagSet("cellwallet-cli", flag.ContinueOnError)
	fs.SetOutput(usage)

	fs.StringVar(&f.Network, "network", "", "Network type (mainnet or testnet)")
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.NodeURL, "node", "", "Chain node RPC URL")
	fs.Uint64Var(&f.FeeRate, "fee-rate", 0, "Fee rate in shannons per 1000 bytes")
	fs.StringVar(&f.Backend, "storage", "", "Storage backend (badger or bolt)")
	fs.BoolVar(&f.Hardware, "hardware", false, "Enable hardware wallets")
	fs.IntVar(&f.CosignPort, "cosign-port", 0, "Co-signing relay listen port")
	fs.StringVar(&f.CosignPeers, "cosign-peers", "", "Co-signers as comma-separated libp2p multiaddrs")
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	f.SetHardware = isFlagSet(fs, "hardware")
	f.SetLogJSON = isFlagSet(fs, "log-json")
	f.Args = fs.Args()
	return f, nil
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	if f.Network != "" {
		cfg.Network = NetworkType(f.Network)
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}
	if f.NodeURL != "" {
		cfg.Node.URL = f.NodeURL
	}
	if f.FeeRate != 0 {
		cfg.Fee.Rate = f.FeeRate
	}
	if f.Backend != "" {
		cfg.Storage.Backend = f.Backend
	}
	if f.SetHardware {
		cfg.Hardware.Enabled = f.Hardware
	}
	if f.CosignPort != 0 {
		cfg.Cosign.Port = f.CosignPort
	}
	if f.CosignPeers != "" {
		cfg.Cosign.Peers = parseStringList(f.CosignPeers)
	}
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

// isFlagSet checks if a flag was explicitly set.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// Load builds the configuration with the following precedence:
// 1. Default values for the network
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. Command-line flags
func Load(f *Flags) (*Config, error) {
	network := Mainnet
	if f.Network == string(Testnet) {
		network = Testnet
	}
	cfg := Default(network)
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}
	if err := EnsureDataDirs(cfg); err != nil {
		return nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	configPath := f.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}
	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, fmt.Errorf("applying config file: %w", err)
	}

	ApplyFlags(cfg, f)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// EnsureDataDirs creates the data directory structure and a default config
// file if they don't already exist.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.NetworkDataDir(),
		cfg.DatabaseDir(),
		cfg.KeystoreDir(),
		cfg.CosignDir(),
		cfg.LogsDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath, cfg.Network); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}
	return nil
}

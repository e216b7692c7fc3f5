package config

import (
	"time"

	"github.com/Klingon-tech/cellwallet/internal/hardware"
	"github.com/Klingon-tech/cellwallet/internal/storage"
	"github.com/Klingon-tech/cellwallet/pkg/tx"
)

// Genesis cells holding the system scripts.
const (
	mainnetGenesisDeps = "0x71a7ba8fc96349fea0ed3a5c47992e3b4084b031a42264a018e0072e8172e46c"
	mainnetDaoTx       = "0xe2fb199810d49a4d8beec56718ba2593b665db9d52299a0f9e6e75416d73ff5c"
	testnetGenesisDeps = "0xf8de3bb47d055cdf460d93a2a6e1b05f7432f9777c8c474abf4eec1d4aee5d37"
	testnetDaoTx       = "0x8f8c79eb6671709633fe6a46de93c0fedc9c1b8a6527a18d3983879542635c9f"
)

// DefaultMainnet returns the default configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		Node: NodeConfig{
			URL:     "http://127.0.0.1:8114",
			Timeout: 10 * time.Second,
		},
		Fee: FeeConfig{
			Rate: tx.DefaultFeeRate,
		},
		Hardware: HardwareConfig{
			Enabled: false,
			Timeout: hardware.DefaultTimeout,
		},
		Storage: StorageConfig{
			Backend: storage.BackendBadger,
		},
		Cosign: CosignConfig{
			Enabled:    false,
			ListenAddr: "0.0.0.0",
			Port:       30313,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
		SystemScripts: SystemScripts{
			Secp:     ScriptDep{TxHash: mainnetGenesisDeps, Index: 0, DepType: "dep_group"},
			Multisig: ScriptDep{TxHash: mainnetGenesisDeps, Index: 1, DepType: "dep_group"},
			Dao:      ScriptDep{TxHash: mainnetDaoTx, Index: 2, DepType: "code"},
		},
	}
}

// DefaultTestnet returns the default configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	cfg.Cosign.Port = 30314
	cfg.SystemScripts = SystemScripts{
		Secp:     ScriptDep{TxHash: testnetGenesisDeps, Index: 0, DepType: "dep_group"},
		Multisig: ScriptDep{TxHash: testnetGenesisDeps, Index: 1, DepType: "dep_group"},
		Dao:      ScriptDep{TxHash: testnetDaoTx, Index: 2, DepType: "code"},
	}
	return cfg
}

// Default returns the default configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	default:
		return DefaultMainnet()
	}
}

// Package log provides structured logging for the wallet engine. Logs go
// to stderr so command output on stdout stays machine-readable.
package log

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance.
var Logger zerolog.Logger

// Component loggers.
var (
	Wallet   zerolog.Logger
	Signer   zerolog.Logger
	TxGen    zerolog.Logger
	DAO      zerolog.Logger
	Multisig zerolog.Logger
	Sender   zerolog.Logger
	RPC      zerolog.Logger
	Storage  zerolog.Logger
	Hardware zerolog.Logger
	Cosign   zerolog.Logger
)

const consoleTimeFormat = "15:04:05"

func init() {
	Logger = New(os.Stderr, zerolog.WarnLevel, false)
	initComponentLoggers()
}

// Init configures the global logger. level is a zerolog level name
// ("debug", "info", "warn", "error", "disabled"). When file is set, a JSON
// copy of every entry is appended to it.
func Init(level string, jsonOutput bool, file string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log level %q: %w", level, err)
	}
	if level == "" {
		lvl = zerolog.InfoLevel
	}

	var w io.Writer = console(os.Stderr, jsonOutput)
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		w = zerolog.MultiLevelWriter(w, f)
	}
	Logger = zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	initComponentLoggers()
	return nil
}

// New returns a logger writing to w, as JSON or colored console lines.
func New(w io.Writer, level zerolog.Level, jsonOutput bool) zerolog.Logger {
	return zerolog.New(console(w, jsonOutput)).Level(level).With().Timestamp().Logger()
}

func console(w io.Writer, jsonOutput bool) io.Writer {
	if jsonOutput {
		return w
	}
	return zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
}

func initComponentLoggers() {
	Wallet = WithComponent("wallet")
	Signer = WithComponent("signer")
	TxGen = WithComponent("txgen")
	DAO = WithComponent("dao")
	Multisig = WithComponent("multisig")
	Sender = WithComponent("sender")
	RPC = WithComponent("rpc")
	Storage = WithComponent("storage")
	Hardware = WithComponent("hardware")
	Cosign = WithComponent("cosign")
}

// WithComponent returns a logger with a component field.
func WithComponent(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

// WithWallet returns a logger with a wallet_id field.
func WithWallet(l zerolog.Logger, walletID string) zerolog.Logger {
	return l.With().Str("wallet_id", walletID).Logger()
}

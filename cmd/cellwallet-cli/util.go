package main

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/Klingon-tech/cellwallet/config"
	"github.com/Klingon-tech/cellwallet/pkg/tx"
	"github.com/Klingon-tech/cellwallet/pkg/types"
	"golang.org/x/term"
)

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		return nil, err
	}
	return password, nil
}

// formatAmount converts shannons to a decimal CKB string.
func formatAmount(shannons uint64) string {
	return fmt.Sprintf("%d.%08d", shannons/tx.ShannonsPerCKB, shannons%tx.ShannonsPerCKB)
}

// parseAmount converts a decimal CKB string to shannons.
func parseAmount(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("negative amount")
	}
	wholeStr, fracStr, _ := strings.Cut(s, ".")
	whole, err := strconv.ParseUint(wholeStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid whole part: %w", err)
	}

	var frac uint64
	if fracStr != "" {
		if len(fracStr) > config.Decimals {
			return 0, fmt.Errorf("too many decimal places (max %d)", config.Decimals)
		}
		fracStr += strings.Repeat("0", config.Decimals-len(fracStr))
		if frac, err = strconv.ParseUint(fracStr, 10, 64); err != nil {
			return 0, fmt.Errorf("invalid fractional part: %w", err)
		}
	}

	if whole > math.MaxUint64/tx.ShannonsPerCKB {
		return 0, fmt.Errorf("amount too large")
	}
	result := whole * tx.ShannonsPerCKB
	if result > math.MaxUint64-frac {
		return 0, fmt.Errorf("amount too large")
	}
	return result + frac, nil
}

// parseOutPoint parses "tx_hash:index".
func parseOutPoint(s string) types.OutPoint {
	hashStr, indexStr, ok := strings.Cut(s, ":")
	if !ok {
		fatal("out point must be tx_hash:index, got %q", s)
	}
	hash, err := types.HexToHash(hashStr)
	if err != nil {
		fatal("out point: %v", err)
	}
	index, err := strconv.ParseUint(indexStr, 10, 32)
	if err != nil {
		fatal("out point index: %v", err)
	}
	return types.OutPoint{TxHash: hash, Index: uint32(index)}
}

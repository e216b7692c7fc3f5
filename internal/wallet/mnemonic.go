// Package wallet implements HD wallet functionality.
package wallet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Klingon-tech/cellwallet/internal/txerr"
	"github.com/tyler-smith/go-bip39"
)

// DefaultMnemonicWords is the length of a newly generated mnemonic.
const DefaultMnemonicWords = 12

// SeedSize is the length of a derived seed in bytes.
const SeedSize = 64

// GenerateMnemonic creates a BIP-39 mnemonic of 12, 15, 18, 21 or 24 words.
func GenerateMnemonic(words int) (string, error) {
	if err := checkWordCount(words); err != nil {
		return "", err
	}
	entropy, err := bip39.NewEntropy(words / 3 * 32)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	defer clear(entropy)
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("generate mnemonic: %w", err)
	}
	return mnemonic, nil
}

// NormalizeMnemonic lowercases a mnemonic and collapses its whitespace, so
// a phrase copied with stray spaces or capitals imports the same wallet.
func NormalizeMnemonic(mnemonic string) string {
	return strings.Join(strings.Fields(strings.ToLower(mnemonic)), " ")
}

// CheckMnemonic reports why a mnemonic is unusable, as a
// txerr.InvalidMnemonic error naming the offending word where there is one.
func CheckMnemonic(mnemonic string) error {
	words := strings.Fields(NormalizeMnemonic(mnemonic))
	if err := checkWordCount(len(words)); err != nil {
		return err
	}
	for i, w := range words {
		if _, ok := bip39.GetWordIndex(w); !ok {
			return txerr.New(txerr.InvalidMnemonic, "word %d (%q) is not in the word list", i+1, w)
		}
	}
	_, err := bip39.EntropyFromMnemonic(strings.Join(words, " "))
	if errors.Is(err, bip39.ErrChecksumIncorrect) {
		return txerr.New(txerr.InvalidMnemonic, "checksum mismatch")
	}
	if err != nil {
		return txerr.Wrap(txerr.InvalidMnemonic, err, "decode mnemonic")
	}
	return nil
}

func checkWordCount(n int) error {
	if n < 12 || n > 24 || n%3 != 0 {
		return txerr.New(txerr.InvalidMnemonic, "%d words; want 12, 15, 18, 21 or 24", n)
	}
	return nil
}

// SeedFromMnemonic derives the 64-byte BIP-39 seed of a normalized
// mnemonic and optional passphrase.
func SeedFromMnemonic(mnemonic, passphrase string) ([]byte, error) {
	if err := CheckMnemonic(mnemonic); err != nil {
		return nil, err
	}
	return bip39.NewSeed(NormalizeMnemonic(mnemonic), passphrase), nil
}

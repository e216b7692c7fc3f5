// derive_key.go prints the pubkey, lock args and addresses for a hex-encoded
// private key file. Handy for building multisig signer lists in tests.
// Usage: go run scripts/derive_key.go <keyfile>
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/Klingon-tech/cellwallet/pkg/crypto"
	"github.com/Klingon-tech/cellwallet/pkg/types"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: derive_key <keyfile>")
		os.Exit(1)
	}
	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	keyHex := strings.TrimPrefix(strings.TrimSpace(string(data)), "0x")
	keyBytes, err := hex.DecodeString(keyHex)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	key, err := crypto.PrivateKeyFromBytes(keyBytes)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer key.Zero()

	lock := types.NewSecpScript(key.Blake160())
	fmt.Printf("pubkey=0x%s\n", hex.EncodeToString(key.PublicKey()))
	fmt.Printf("args=0x%s\n", hex.EncodeToString(lock.Args))
	fmt.Printf("lock_hash=%s\n", lock.Hash())
	fmt.Printf("mainnet=%s\n", types.NewAddress(types.Mainnet, lock))
	fmt.Printf("testnet=%s\n", types.NewAddress(types.Testnet, lock))
}

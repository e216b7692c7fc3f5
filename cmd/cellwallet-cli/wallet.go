package main

import (
	"flag"
	"fmt"

	"github.com/Klingon-tech/cellwallet/internal/wallet"
)

func cmdWallet(a *app, args []string) {
	if len(args) < 1 {
		fatal("Usage: cellwallet-cli wallet <create|import|addresses|list> [flags]")
	}
	switch args[0] {
	case "create":
		cmdWalletCreate(a, args[1:])
	case "import":
		cmdWalletImport(a, args[1:])
	case "addresses":
		cmdWalletAddresses(a, args[1:])
	case "list":
		cmdWalletList(a)
	default:
		fatal("Unknown wallet command: %s\nUsage: cellwallet-cli wallet <create|import|addresses|list> [flags]", args[0])
	}
}

func cmdWalletCreate(a *app, args []string) {
	fs := flag.NewFlagSet("wallet create", flag.ExitOnError)
	name := fs.String("name", "", "Wallet name")
	words := fs.Int("words", wallet.DefaultMnemonicWords, "Mnemonic length (12, 15, 18, 21 or 24)")
	fs.Parse(args)

	if *name == "" {
		fatal("Usage: cellwallet-cli wallet create --name <name> [--words <n>]")
	}
	mnemonic, err := wallet.GenerateMnemonic(*words)
	if err != nil {
		fatal("generate mnemonic: %v", err)
	}
	fmt.Println("Mnemonic (write this down!):")
	fmt.Printf("  %s\n\n", mnemonic)

	createWallet(a, *name, mnemonic)
	fmt.Printf("\nWallet created: %s\n", *name)
}

func cmdWalletImport(a *app, args []string) {
	fs := flag.NewFlagSet("wallet import", flag.ExitOnError)
	name := fs.String("name", "", "Wallet name")
	mnemonic := fs.String("mnemonic", "", "BIP-39 mnemonic")
	fs.Parse(args)

	if *name == "" || *mnemonic == "" {
		fatal("Usage: cellwallet-cli wallet import --name <name> --mnemonic \"word1 word2 ...\"")
	}
	if err := wallet.CheckMnemonic(*mnemonic); err != nil {
		fatal("%v", err)
	}
	createWallet(a, *name, wallet.NormalizeMnemonic(*mnemonic))
	fmt.Printf("Wallet imported: %s\n", *name)
}

// createWallet encrypts the master key of mnemonic under a new password and
// derives the first addresses.
func createWallet(a *app, name, mnemonic string) {
	password, err := readPassword("Enter password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	if string(password) != string(confirm) {
		fatal("passwords do not match")
	}

	seed, err := wallet.SeedFromMnemonic(mnemonic, "")
	if err != nil {
		fatal("derive seed: %v", err)
	}
	master, err := wallet.MasterKeyFromSeed(seed)
	clear(seed)
	if err != nil {
		fatal("derive master key: %v", err)
	}
	defer master.Zero()

	if err := a.keystore.Create(name, master, password, wallet.DefaultParams()); err != nil {
		fatal("create wallet: %v", err)
	}

	ctx, cancel := a.ctx()
	defer cancel()
	if err := a.book.CheckAndGenerateAddresses(ctx, name); err != nil {
		fatal("derive addresses: %v", err)
	}
	first, err := a.book.NextUnused(ctx, name, wallet.AddressReceiving)
	if err != nil {
		fatal("first address: %v", err)
	}
	fmt.Printf("Address: %s\n", first.Address)
}

func cmdWalletList(a *app) {
	names, err := a.keystore.List()
	if err != nil {
		fatal("list wallets: %v", err)
	}
	if len(names) == 0 {
		fmt.Println("No wallets found.")
		return
	}
	for _, name := range names {
		fmt.Println(name)
	}
}

func cmdWalletAddresses(a *app, args []string) {
	fs := flag.NewFlagSet("wallet addresses", flag.ExitOnError)
	walletName := fs.String("wallet", "", "Wallet name")
	fs.Parse(args)

	if *walletName == "" {
		fatal("Usage: cellwallet-cli wallet addresses --wallet <name>")
	}
	ctx, cancel := a.ctx()
	defer cancel()
	if err := a.book.CheckAndGenerateAddresses(ctx, *walletName); err != nil {
		fatal("derive addresses: %v", err)
	}
	addrs, err := a.book.Addresses(ctx, *walletName)
	if err != nil {
		fatal("list addresses: %v", err)
	}
	for _, info := range addrs {
		used := ""
		if info.Used {
			used = " (used)"
		}
		fmt.Printf("  %-9s [%d] %s  %s%s\n", info.Type, info.Index, info.Address, info.Path, used)
	}
}

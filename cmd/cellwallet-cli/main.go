// cellwallet-cli builds, signs and sends transactions for HD wallets,
// including DAO deposits and multi-party multisig spends.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/Klingon-tech/cellwallet/config"
	klog "github.com/Klingon-tech/cellwallet/internal/log"
)

func main() {
	flags, err := config.ParseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		usage()
		return
	}
	if err != nil {
		os.Exit(2)
	}
	if len(flags.Args) == 0 {
		usage()
		os.Exit(1)
	}

	cmd, cmdArgs := flags.Args[0], flags.Args[1:]
	if cmd == "help" {
		usage()
		return
	}

	cfg, err := config.Load(flags)
	if err != nil {
		fatal("%v", err)
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File); err != nil {
		fatal("init logging: %v", err)
	}

	a, err := newApp(cfg)
	if err != nil {
		fatal("%v", err)
	}
	defer a.close()

	switch cmd {
	case "wallet":
		cmdWallet(a, cmdArgs)
	case "transfer":
		cmdTransfer(a, cmdArgs)
	case "send-all":
		cmdSendAll(a, cmdArgs)
	case "deposit":
		cmdDeposit(a, cmdArgs)
	case "deposit-all":
		cmdDepositAll(a, cmdArgs)
	case "withdraw-start":
		cmdWithdrawStart(a, cmdArgs)
	case "withdraw":
		cmdWithdraw(a, cmdArgs)
	case "multisig":
		cmdMultisig(a, cmdArgs)
	case "cosign":
		cmdCosign(a, cmdArgs)
	default:
		a.close()
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: cellwallet-cli [global flags] <command> [flags]

Global flags:
  --network <net>       mainnet (default) or testnet
  --datadir <path>      Data directory (default: ~/.cellwallet)
  --config <path>       Config file (default: <datadir>/cellwallet.conf)
  --node <url>          Chain node RPC URL
  --fee-rate <n>        Fee rate in shannons per 1000 bytes
  --storage <backend>   badger (default) or bolt
  --hardware            Enable hardware wallets
  --cosign-port <n>     Co-signing relay port
  --cosign-peers <list> Co-signers as comma-separated multiaddrs
  --log-level <lvl>     debug, info, warn, error
  --log-json            Output logs as JSON

Commands:
  wallet create --name <n> [--words <n>]
                                      Create a new wallet
  wallet import --name <n> --mnemonic "..."
                                      Import a wallet from its mnemonic
  wallet addresses --wallet <w>       List derived addresses

  transfer --wallet <w> --to <addr> --amount <ckb> [--fee <shannons>]
                                      Send CKB
  send-all --wallet <w> --to <addr>   Send the whole balance
  deposit --wallet <w> --amount <ckb> Deposit into the Nervos DAO
  deposit-all --wallet <w> [--reserve]
                                      Deposit the whole balance
  withdraw-start --wallet <w> --deposit <tx:index> [--lock <hash> --out <file>]
                                      Start withdrawing a DAO deposit
  withdraw --wallet <w> --deposit <tx:index> --withdrawing <tx:index> [--lock <hash> --out <file>]
                                      Claim a withdrawing cell; --lock starts
                                      a co-signing session for a multisig deposit

  multisig config --wallet <w> --m <m> [--r <r>] --signers <addr,...>
                                      Register a multisig config
  multisig list --wallet <w>          List multisig configs
  multisig transfer --wallet <w> --lock <hash> --to <addr> --amount <ckb> --out <file>
                                      Build and sign a multisig transfer
  multisig sign --wallet <w> --in <file> [--out <file>]
                                      Add this wallet's signatures
  multisig export --tx <hash> --out <file>
                                      Export a co-signing session
  multisig import --in <file>         Merge a payload into its session
  multisig broadcast --wallet <w> (--in <file> | --tx <hash>)
                                      Send a fully signed transaction

  cosign listen                       Relay co-signing payloads with peers
  cosign publish --tx <hash>          Publish a session to co-signers
`)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

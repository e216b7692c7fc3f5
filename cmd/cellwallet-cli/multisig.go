package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/Klingon-tech/cellwallet/internal/multisig"
	"github.com/Klingon-tech/cellwallet/internal/sender"
	"github.com/Klingon-tech/cellwallet/internal/signer"
	"github.com/Klingon-tech/cellwallet/internal/txgen"
	"github.com/Klingon-tech/cellwallet/pkg/tx"
	"github.com/Klingon-tech/cellwallet/pkg/types"
)

const multisigUsage = "Usage: cellwallet-cli multisig <config|list|transfer|sign|export|import|broadcast> [flags]"

func cmdMultisig(a *app, args []string) {
	if len(args) < 1 {
		fatal(multisigUsage)
	}
	switch args[0] {
	case "config":
		cmdMultisigConfig(a, args[1:])
	case "list":
		cmdMultisigList(a, args[1:])
	case "transfer":
		cmdMultisigTransfer(a, args[1:])
	case "sign":
		cmdMultisigSign(a, args[1:])
	case "export":
		cmdMultisigExport(a, args[1:])
	case "import":
		cmdMultisigImport(a, args[1:])
	case "broadcast":
		cmdMultisigBroadcast(a, args[1:])
	default:
		fatal("Unknown multisig command: %s\n%s", args[0], multisigUsage)
	}
}

func cmdMultisigConfig(a *app, args []string) {
	fs := flag.NewFlagSet("multisig config", flag.ExitOnError)
	walletName := fs.String("wallet", "", "Wallet name")
	m := fs.Uint("m", 0, "Signatures required")
	r := fs.Uint("r", 0, "Number of leading signers that must sign")
	signersStr := fs.String("signers", "", "Signer addresses, comma-separated, in order")
	fs.Parse(args)

	if *walletName == "" || *m == 0 || *signersStr == "" {
		fatal("Usage: cellwallet-cli multisig config --wallet <name> --m <m> [--r <r>] --signers <addr,...>")
	}
	var signers []types.Blake160
	for _, s := range strings.Split(*signersStr, ",") {
		addr, err := types.ParseAddressOn(a.cfg.Network, strings.TrimSpace(s))
		if err != nil {
			fatal("signer %q: %v", s, err)
		}
		if !addr.Script.IsSecp() {
			fatal("signer %q is not a single-key address", s)
		}
		var h types.Blake160
		copy(h[:], addr.Script.Args)
		signers = append(signers, h)
	}
	cfg, err := multisig.NewConfig(*walletName, uint8(*m), uint8(*r), signers)
	if err != nil {
		fatal("%v", err)
	}
	if err := a.configs.Save(cfg); err != nil {
		fatal("save config: %v", err)
	}
	fmt.Printf("Config:    %s\n", cfg)
	fmt.Printf("Lock hash: %s\n", cfg.LockHash())
	fmt.Printf("Address:   %s\n", cfg.Address(a.cfg.Network))
}

func cmdMultisigList(a *app, args []string) {
	fs := flag.NewFlagSet("multisig list", flag.ExitOnError)
	walletName := fs.String("wallet", "", "Wallet name")
	fs.Parse(args)

	configs, err := a.configs.List(*walletName)
	if err != nil {
		fatal("list configs: %v", err)
	}
	if len(configs) == 0 {
		fmt.Println("No multisig configs.")
		return
	}
	for _, cfg := range configs {
		fmt.Printf("  %s  %s  %s\n", cfg, cfg.LockHash(), cfg.Address(a.cfg.Network))
	}
}

func (a *app) config(lockHash string) *multisig.Config {
	h, err := types.HexToHash(lockHash)
	if err != nil {
		fatal("lock hash: %v", err)
	}
	cfg, err := a.configs.Get(h)
	if err != nil {
		fatal("%v", err)
	}
	return cfg
}

func cmdMultisigTransfer(a *app, args []string) {
	fs := flag.NewFlagSet("multisig transfer", flag.ExitOnError)
	walletName := fs.String("wallet", "", "Wallet name")
	lock := fs.String("lock", "", "Multisig lock hash")
	to := fs.String("to", "", "Recipient address")
	amountStr := fs.String("amount", "", "Amount in CKB")
	out := fs.String("out", "", "Write the co-signing payload here")
	fs.Parse(args)

	if *walletName == "" || *lock == "" || *to == "" || *amountStr == "" {
		fatal("Usage: cellwallet-cli multisig transfer --wallet <w> --lock <hash> --to <addr> --amount <ckb> --out <file>")
	}
	amount, err := parseAmount(*amountStr)
	if err != nil {
		fatal("invalid amount: %v", err)
	}
	cfg := a.config(*lock)

	ctx, cancel := a.ctx()
	defer cancel()
	unsigned, err := a.gen.GenerateMultisigTransfer(ctx, txgen.MultisigTransferRequest{
		Config:  cfg,
		Targets: []txgen.Target{a.target(*to, amount)},
		Fee:     a.fee(0),
	})
	if err != nil {
		fatal("build transaction: %v", err)
	}
	a.multisigSign(ctx, *walletName, unsigned, multisig.NewCoordinator(cfg), *out)
}

func cmdMultisigSign(a *app, args []string) {
	fs := flag.NewFlagSet("multisig sign", flag.ExitOnError)
	walletName := fs.String("wallet", "", "Wallet name")
	in := fs.String("in", "", "Co-signing payload file")
	out := fs.String("out", "", "Output file (default: overwrite --in)")
	fs.Parse(args)

	if *walletName == "" || *in == "" {
		fatal("Usage: cellwallet-cli multisig sign --wallet <w> --in <file> [--out <file>]")
	}
	if *out == "" {
		*out = *in
	}
	p := readPayload(*in)
	ctx, cancel := a.ctx()
	defer cancel()
	a.multisigSign(ctx, *walletName, p.Transaction, p.Coordinator(), *out)
}

// multisigSign adds the wallet's signatures, records the session and
// writes the payload for the other signers.
func (a *app) multisigSign(ctx context.Context, walletID string, t *tx.Transaction, coord *multisig.Coordinator, out string) {
	signed, err := a.engine.SignMultisig(ctx, signer.MultisigSignRequest{
		WalletID:    walletID,
		Tx:          t,
		Password:    a.password(walletID),
		Coordinator: coord,
	})
	if err != nil {
		fatal("sign: %v", err)
	}
	p, err := multisig.NewPayload(signed, coord)
	if err != nil {
		fatal("%v", err)
	}
	merged, _, err := a.sessions.Put(p)
	if err != nil {
		fatal("record session: %v", err)
	}
	if out != "" {
		writePayload(out, merged)
	}
	printState(merged)
}

func cmdMultisigExport(a *app, args []string) {
	fs := flag.NewFlagSet("multisig export", flag.ExitOnError)
	hash := fs.String("tx", "", "Transaction hash")
	out := fs.String("out", "", "Output file")
	fs.Parse(args)

	if *hash == "" || *out == "" {
		fatal("Usage: cellwallet-cli multisig export --tx <hash> --out <file>")
	}
	writePayload(*out, a.session(*hash))
}

func cmdMultisigImport(a *app, args []string) {
	fs := flag.NewFlagSet("multisig import", flag.ExitOnError)
	in := fs.String("in", "", "Co-signing payload file")
	fs.Parse(args)

	if *in == "" {
		fatal("Usage: cellwallet-cli multisig import --in <file>")
	}
	merged, added, err := a.sessions.Put(readPayload(*in))
	if err != nil {
		fatal("import: %v", err)
	}
	fmt.Printf("Imported %d signature(s)\n", added)
	printState(merged)
}

func cmdMultisigBroadcast(a *app, args []string) {
	fs := flag.NewFlagSet("multisig broadcast", flag.ExitOnError)
	walletName := fs.String("wallet", "", "Wallet name")
	in := fs.String("in", "", "Co-signing payload file")
	hash := fs.String("tx", "", "Transaction hash of a recorded session")
	fs.Parse(args)

	if (*in == "") == (*hash == "") {
		fatal("Usage: cellwallet-cli multisig broadcast --wallet <w> (--in <file> | --tx <hash>)")
	}
	var p *multisig.Payload
	if *in != "" {
		p = readPayload(*in)
	} else {
		p = a.session(*hash)
	}

	ctx, cancel := a.ctx()
	defer cancel()
	sent, err := a.sender.SendMultisig(ctx, sender.MultisigSendRequest{
		MultisigSignRequest: signer.MultisigSignRequest{
			WalletID:    *walletName,
			Tx:          p.Transaction,
			Coordinator: p.Coordinator(),
		},
		SkipSign: true,
	})
	if err != nil {
		fatal("send: %v", err)
	}
	if err := a.sessions.Delete(p.Transaction.Hash()); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: session not closed: %v\n", err)
	}
	fmt.Printf("Transaction sent: %s\n", sent)
}

func (a *app) session(hash string) *multisig.Payload {
	h, err := types.HexToHash(hash)
	if err != nil {
		fatal("tx hash: %v", err)
	}
	p, err := a.sessions.Get(h)
	if err != nil {
		fatal("%v", err)
	}
	return p
}

func readPayload(path string) *multisig.Payload {
	data, err := os.ReadFile(path)
	if err != nil {
		fatal("read payload: %v", err)
	}
	p, err := multisig.ImportPayload(data)
	if err != nil {
		fatal("import payload: %v", err)
	}
	return p
}

func writePayload(path string, p *multisig.Payload) {
	data, err := p.Marshal()
	if err != nil {
		fatal("encode payload: %v", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		fatal("write payload: %v", err)
	}
	fmt.Printf("Payload written: %s\n", path)
}

func printState(p *multisig.Payload) {
	coord := p.Coordinator()
	fmt.Printf("Transaction: %s\n", p.Transaction.Hash())
	for _, cfg := range p.Configs {
		state, err := coord.State(p.Transaction, cfg.LockHash())
		if err != nil {
			continue
		}
		fmt.Printf("  %s  %d/%d signatures  %s\n", cfg, len(p.Transaction.Signatures[cfg.LockHash()]), cfg.M, state)
	}
}

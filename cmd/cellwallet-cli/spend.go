package main

import (
	"context"
	"flag"

	"github.com/Klingon-tech/cellwallet/internal/multisig"
	"github.com/Klingon-tech/cellwallet/internal/txgen"
	"github.com/Klingon-tech/cellwallet/internal/wallet"
	"github.com/Klingon-tech/cellwallet/pkg/tx"
	"github.com/Klingon-tech/cellwallet/pkg/types"
)

func cmdTransfer(a *app, args []string) {
	fs := flag.NewFlagSet("transfer", flag.ExitOnError)
	walletName := fs.String("wallet", "", "Wallet name")
	to := fs.String("to", "", "Recipient address")
	amountStr := fs.String("amount", "", "Amount in CKB (e.g. 100.5)")
	fee := fs.Uint64("fee", 0, "Fixed fee in shannons (overrides the fee rate)")
	fs.Parse(args)

	if *walletName == "" || *to == "" || *amountStr == "" {
		fatal("Usage: cellwallet-cli transfer --wallet <name> --to <address> --amount <ckb>")
	}
	amount, err := parseAmount(*amountStr)
	if err != nil {
		fatal("invalid amount: %v", err)
	}

	ctx, cancel := a.ctx()
	defer cancel()
	unsigned, err := a.gen.GenerateTransfer(ctx, txgen.TransferRequest{
		From:    a.locks(ctx, *walletName),
		Targets: []txgen.Target{a.target(*to, amount)},
		Change:  a.nextAddress(ctx, *walletName, wallet.AddressChange),
		Fee:     a.fee(*fee),
	})
	if err != nil {
		fatal("build transaction: %v", err)
	}
	a.signAndSend(ctx, *walletName, unsigned, false)
}

func cmdSendAll(a *app, args []string) {
	fs := flag.NewFlagSet("send-all", flag.ExitOnError)
	walletName := fs.String("wallet", "", "Wallet name")
	to := fs.String("to", "", "Recipient address")
	fee := fs.Uint64("fee", 0, "Fixed fee in shannons (overrides the fee rate)")
	fs.Parse(args)

	if *walletName == "" || *to == "" {
		fatal("Usage: cellwallet-cli send-all --wallet <name> --to <address>")
	}
	ctx, cancel := a.ctx()
	defer cancel()
	unsigned, err := a.gen.GenerateSendAll(ctx, txgen.SendAllRequest{
		From:    a.locks(ctx, *walletName),
		Targets: []txgen.Target{a.target(*to, 0)},
		Fee:     a.fee(*fee),
	})
	if err != nil {
		fatal("build transaction: %v", err)
	}
	a.signAndSend(ctx, *walletName, unsigned, false)
}

func cmdDeposit(a *app, args []string) {
	fs := flag.NewFlagSet("deposit", flag.ExitOnError)
	walletName := fs.String("wallet", "", "Wallet name")
	amountStr := fs.String("amount", "", "Amount in CKB")
	fs.Parse(args)

	if *walletName == "" || *amountStr == "" {
		fatal("Usage: cellwallet-cli deposit --wallet <name> --amount <ckb>")
	}
	amount, err := parseAmount(*amountStr)
	if err != nil {
		fatal("invalid amount: %v", err)
	}
	ctx, cancel := a.ctx()
	defer cancel()
	unsigned, err := a.gen.GenerateDeposit(ctx, txgen.DepositRequest{
		From:     a.locks(ctx, *walletName),
		Receiver: a.nextAddress(ctx, *walletName, wallet.AddressReceiving),
		Capacity: amount,
		Change:   a.nextAddress(ctx, *walletName, wallet.AddressChange),
		Fee:      a.fee(0),
	})
	if err != nil {
		fatal("build deposit: %v", err)
	}
	a.signAndSend(ctx, *walletName, unsigned, false)
}

func cmdDepositAll(a *app, args []string) {
	fs := flag.NewFlagSet("deposit-all", flag.ExitOnError)
	walletName := fs.String("wallet", "", "Wallet name")
	reserve := fs.Bool("reserve", false, "Keep a small balance for future fees")
	fs.Parse(args)

	if *walletName == "" {
		fatal("Usage: cellwallet-cli deposit-all --wallet <name> [--reserve]")
	}
	ctx, cancel := a.ctx()
	defer cancel()
	unsigned, err := a.gen.GenerateDepositAll(ctx, txgen.DepositAllRequest{
		From:     a.locks(ctx, *walletName),
		Receiver: a.nextAddress(ctx, *walletName, wallet.AddressReceiving),
		Change:   a.nextAddress(ctx, *walletName, wallet.AddressChange),
		Reserve:  *reserve,
		Fee:      a.fee(0),
	})
	if err != nil {
		fatal("build deposit: %v", err)
	}
	a.signAndSend(ctx, *walletName, unsigned, false)
}

func cmdWithdrawStart(a *app, args []string) {
	fs := flag.NewFlagSet("withdraw-start", flag.ExitOnError)
	walletName := fs.String("wallet", "", "Wallet name")
	depositStr := fs.String("deposit", "", "Deposit out point (tx_hash:index)")
	lock := fs.String("lock", "", "Multisig lock hash holding the deposit")
	out := fs.String("out", "", "Write the co-signing payload here (multisig only)")
	fs.Parse(args)

	if *walletName == "" || *depositStr == "" {
		fatal("Usage: cellwallet-cli withdraw-start --wallet <name> --deposit <tx_hash:index> [--lock <hash> --out <file>]")
	}
	ctx, cancel := a.ctx()
	defer cancel()
	deposit, err := a.dao.Deposit(ctx, parseOutPoint(*depositStr))
	if err != nil {
		fatal("load deposit: %v", err)
	}
	req := txgen.StartWithdrawRequest{Deposit: deposit, Fee: a.fee(0)}
	if *lock != "" {
		// The fee comes from the multisig lock too, so every input
		// belongs to the co-signers.
		req.Config = a.config(*lock)
		req.From = []types.Script{req.Config.LockScript()}
		req.Change = req.Config.LockScript()
	} else {
		req.From = a.locks(ctx, *walletName)
		req.Change = a.nextAddress(ctx, *walletName, wallet.AddressChange)
	}
	unsigned, err := a.gen.GenerateStartWithdraw(ctx, req)
	if err != nil {
		fatal("build withdrawal: %v", err)
	}
	a.daoSend(ctx, *walletName, unsigned, req.Config, *out)
}

func cmdWithdraw(a *app, args []string) {
	fs := flag.NewFlagSet("withdraw", flag.ExitOnError)
	walletName := fs.String("wallet", "", "Wallet name")
	depositStr := fs.String("deposit", "", "Original deposit out point (tx_hash:index)")
	withdrawingStr := fs.String("withdrawing", "", "Withdrawing cell out point (tx_hash:index)")
	lock := fs.String("lock", "", "Multisig lock hash holding the withdrawing cell")
	out := fs.String("out", "", "Write the co-signing payload here (multisig only)")
	fs.Parse(args)

	if *walletName == "" || *depositStr == "" || *withdrawingStr == "" {
		fatal("Usage: cellwallet-cli withdraw --wallet <name> --deposit <tx:index> --withdrawing <tx:index> [--lock <hash> --out <file>]")
	}
	var cfg *multisig.Config
	if *lock != "" {
		cfg = a.config(*lock)
	}
	ctx, cancel := a.ctx()
	defer cancel()
	w, err := a.dao.Withdrawal(ctx, parseOutPoint(*depositStr), parseOutPoint(*withdrawingStr))
	if err != nil {
		fatal("load withdrawal: %v", err)
	}
	unsigned, err := a.gen.GenerateWithdraw(ctx, txgen.WithdrawRequest{
		Withdrawal: w,
		Config:     cfg,
		Receiver:   a.nextAddress(ctx, *walletName, wallet.AddressReceiving),
		Fee:        a.fee(0),
	})
	if err != nil {
		fatal("build withdrawal: %v", err)
	}
	a.daoSend(ctx, *walletName, unsigned, cfg, *out)
}

// daoSend signs and sends a DAO transaction, or starts a co-signing
// session when a multisig lock holds the DAO cell.
func (a *app) daoSend(ctx context.Context, walletID string, unsigned *tx.Transaction, cfg *multisig.Config, out string) {
	if cfg == nil {
		a.signAndSend(ctx, walletID, unsigned, false)
		return
	}
	a.multisigSign(ctx, walletID, unsigned, multisig.NewCoordinator(cfg), out)
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Klingon-tech/cellwallet/config"
	"github.com/Klingon-tech/cellwallet/internal/cosign"
	"github.com/Klingon-tech/cellwallet/internal/dao"
	"github.com/Klingon-tech/cellwallet/internal/hardware"
	klog "github.com/Klingon-tech/cellwallet/internal/log"
	"github.com/Klingon-tech/cellwallet/internal/multisig"
	"github.com/Klingon-tech/cellwallet/internal/rpcclient"
	"github.com/Klingon-tech/cellwallet/internal/sender"
	"github.com/Klingon-tech/cellwallet/internal/signer"
	"github.com/Klingon-tech/cellwallet/internal/storage"
	"github.com/Klingon-tech/cellwallet/internal/txgen"
	"github.com/Klingon-tech/cellwallet/internal/wallet"
	"github.com/Klingon-tech/cellwallet/pkg/tx"
	"github.com/Klingon-tech/cellwallet/pkg/types"
)

// app wires the wallet components over one database.
type app struct {
	cfg *config.Config
	db  storage.DB

	keystore *wallet.Keystore
	book     *wallet.AddressBook
	node     *rpcclient.Client
	gen      *txgen.Generator
	dao      *dao.Calculator
	configs  *multisig.ConfigStore
	engine   *signer.Engine
	store    *sender.Store
	sender   *sender.Sender
	sessions *cosign.SessionStore
}

func newApp(cfg *config.Config) (*app, error) {
	db, err := storage.Open(cfg.Storage.Backend, cfg.DatabaseDir())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	ks, err := wallet.NewKeystore(cfg.KeystoreDir())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open keystore: %w", err)
	}
	deps, err := cfg.SystemScripts.CellDeps()
	if err != nil {
		db.Close()
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		db:       db,
		keystore: ks,
		book:     wallet.NewAddressBook(storage.NewPrefixDB(db, storage.NSAddresses), ks, cfg.Network),
		node:     rpcclient.NewWithTimeout(cfg.Node.URL, cfg.Node.Timeout),
		configs:  multisig.NewConfigStore(storage.NewPrefixDB(db, storage.NSMultisig)),
		sessions: cosign.NewSessionStore(storage.NewPrefixDB(db, storage.NSSessions)),
	}
	a.dao = dao.NewCalculator(a.node)
	a.store = sender.NewStore(storage.NewPrefixDB(db, storage.NSSent), nil, a.configs)

	// Inputs of sent transactions stay live on the node until committed.
	var spent map[types.OutPoint]bool
	pending := func(op types.OutPoint) bool {
		if spent == nil {
			if _, _, rerr := a.store.Reconcile(context.Background(), a.node); rerr != nil {
				klog.Sender.Warn().Err(rerr).Msg("Reconcile sent transactions")
			}
			var perr error
			if spent, perr = a.store.PendingInputs(); perr != nil {
				fatal("read pending transactions: %v", perr)
			}
		}
		return spent[op]
	}
	a.gen = txgen.New(txgen.FilteredSource{Source: txgen.NewIndexerSource(a.node), Skip: pending}, deps)

	var devices *hardware.Manager
	if cfg.Hardware.Enabled {
		devices = hardware.NewManager(hardware.NewRegistry())
		devices.Timeout = cfg.Hardware.Timeout
	}
	a.engine = signer.New(ks, a.book, devices)
	a.sender = sender.New(a.node, a.engine, a.store, a.book)
	return a, nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
		a.db = nil
	}
}

// ctx returns a context cancelled on interrupt.
func (a *app) ctx() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func (a *app) fee(fixed uint64) txgen.FeeOption {
	if fixed > 0 {
		return txgen.FeeOption{Fee: fixed}
	}
	return txgen.FeeOption{FeeRate: a.cfg.Fee.Rate}
}

// locks returns the single-key locks of every wallet address.
func (a *app) locks(ctx context.Context, walletID string) []types.Script {
	if err := a.book.CheckAndGenerateAddresses(ctx, walletID); err != nil {
		fatal("refresh addresses: %v", err)
	}
	addrs, err := a.book.Addresses(ctx, walletID)
	if err != nil {
		fatal("list addresses: %v", err)
	}
	out := make([]types.Script, len(addrs))
	for i, info := range addrs {
		out[i] = info.LockScript()
	}
	return out
}

func (a *app) nextAddress(ctx context.Context, walletID string, t wallet.AddressType) types.Script {
	info, err := a.book.NextUnused(ctx, walletID, t)
	if err != nil {
		fatal("next %s address: %v", t, err)
	}
	return info.LockScript()
}

func (a *app) target(address string, capacity uint64) txgen.Target {
	t, err := txgen.TargetFromAddress(a.cfg.Network, address, capacity)
	if err != nil {
		fatal("parse address: %v", err)
	}
	return t
}

// signAndSend signs unsigned with the wallet's keys and broadcasts it.
func (a *app) signAndSend(ctx context.Context, walletID string, unsigned *tx.Transaction, skipLast bool) {
	password := a.password(walletID)
	hash, err := a.sender.Send(ctx, sender.SendRequest{
		SignRequest: signer.SignRequest{
			WalletID:       walletID,
			Tx:             unsigned,
			Password:       password,
			SkipLastInputs: skipLast,
		},
	})
	if err != nil {
		fatal("send: %v", err)
	}
	fmt.Printf("Fee: %s CKB\n", formatAmount(unsigned.Fee))
	fmt.Printf("Transaction sent: %s\n", hash)
}

// password prompts for the wallet password unless it is a hardware wallet.
func (a *app) password(walletID string) []byte {
	if dev, err := a.keystore.Device(walletID); err == nil && dev != nil {
		return nil
	}
	password, err := readPassword("Password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	return password
}

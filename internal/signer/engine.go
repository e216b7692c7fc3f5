// Package signer produces the witnesses of wallet transactions. It resolves
// which wallet key owns every input lock, signs each lock group once, with
// software keys or an attached hardware device, and hands multisig groups to
// the multisig coordinator.
package signer

import (
	"context"
	"errors"
	"fmt"

	"github.com/Klingon-tech/cellwallet/internal/hardware"
	klog "github.com/Klingon-tech/cellwallet/internal/log"
	"github.com/Klingon-tech/cellwallet/internal/multisig"
	"github.com/Klingon-tech/cellwallet/internal/txerr"
	"github.com/Klingon-tech/cellwallet/internal/wallet"
	"github.com/Klingon-tech/cellwallet/pkg/tx"
	"github.com/Klingon-tech/cellwallet/pkg/types"
)

var (
	// ErrNothingToSign is returned when no input is left to sign.
	ErrNothingToSign = errors.New("transaction has no inputs to sign")
	// ErrNoHardware is returned when a hardware wallet signs on an engine
	// built without a device manager.
	ErrNoHardware = errors.New("no hardware device manager")
)

// KeyProvider gives access to a wallet's key material. Device returns nil
// for software wallets. wallet.Keystore implements it.
type KeyProvider interface {
	MasterKey(walletID string, password []byte) (*wallet.MasterKey, error)
	Device(walletID string) (*wallet.DeviceInfo, error)
}

var _ KeyProvider = (*wallet.Keystore)(nil)

// Engine signs transactions for the wallets of a key provider.
type Engine struct {
	keys    KeyProvider
	addrs   wallet.AddressRegistry
	devices *hardware.Manager
}

// New creates a signing engine. devices may be nil when no hardware wallet
// is used.
func New(keys KeyProvider, addrs wallet.AddressRegistry, devices *hardware.Manager) *Engine {
	return &Engine{keys: keys, addrs: addrs, devices: devices}
}

// SignRequest asks for a wallet's signatures on a transaction.
type SignRequest struct {
	WalletID string
	Tx       *tx.Transaction
	Password []byte
	// SkipLastInputs leaves the last input and its witness alone, for
	// transactions whose last input is signed by another party.
	SkipLastInputs bool
	// Multisig, when set, signs inputs of its known multisig locks as one
	// of their signers.
	Multisig *multisig.Coordinator
	// Context holds the transactions that created the inputs, passed to
	// hardware devices.
	Context []*tx.Transaction
}

// MultisigSignRequest asks for the wallet's signature on every multisig
// input of a transaction.
type MultisigSignRequest struct {
	WalletID    string
	Tx          *tx.Transaction
	Password    []byte
	Coordinator *multisig.Coordinator
	Context     []*tx.Transaction
}

// Sign returns a signed copy of req.Tx. Each lock group is signed by the
// wallet key owning it; a lock no wallet key owns fails the whole call with
// NoMatchAddressForSign. Inputs and outputs are never changed.
func (e *Engine) Sign(ctx context.Context, req SignRequest) (*tx.Transaction, error) {
	work := req.Tx.Clone()
	n := len(work.Inputs)
	if req.SkipLastInputs && n > 0 {
		n--
	}
	groups, err := work.LockGroups(n)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, ErrNothingToSign
	}
	addrs, err := e.addrs.Addresses(ctx, req.WalletID)
	if err != nil {
		return nil, fmt.Errorf("load addresses: %w", err)
	}

	plans := make([]plan, 0, len(groups))
	for _, g := range groups {
		if req.Multisig != nil {
			if cfg, ok := req.Multisig.Config(g.LockHash); ok {
				o, err := resolveMultisigSigner(cfg, addrs, work.Signatures[g.LockHash])
				if err != nil {
					return nil, err
				}
				plans = append(plans, plan{group: g, owner: o})
				continue
			}
		}
		o, err := resolveOwner(req.WalletID, g.Lock, addrs)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan{group: g, owner: o})
	}

	if err := e.run(ctx, req.WalletID, req.Password, work, plans, req.Multisig, req.Context); err != nil {
		return nil, err
	}
	return work, nil
}

// SignMultisig adds the wallet's signature to every multisig lock group of
// req.Tx and returns the updated copy. Each input lock must have a config
// in the coordinator (MultisigConfigNeedError otherwise). Groups reaching
// their threshold get their witness assembled; the others keep collecting
// in the transaction's signature map.
func (e *Engine) SignMultisig(ctx context.Context, req MultisigSignRequest) (*tx.Transaction, error) {
	if req.Coordinator == nil {
		return nil, txerr.New(txerr.MultisigConfigNeedError, "no multisig configs given")
	}
	work := req.Tx.Clone()
	groups, err := work.LockGroups(len(work.Inputs))
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, ErrNothingToSign
	}
	addrs, err := e.addrs.Addresses(ctx, req.WalletID)
	if err != nil {
		return nil, fmt.Errorf("load addresses: %w", err)
	}

	plans := make([]plan, 0, len(groups))
	for _, g := range groups {
		cfg, ok := req.Coordinator.Config(g.LockHash)
		if !ok {
			return nil, txerr.New(txerr.MultisigConfigNeedError, "no multisig config for lock %s", g.LockHash)
		}
		o, err := resolveMultisigSigner(cfg, addrs, work.Signatures[g.LockHash])
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan{group: g, owner: o})
	}

	if err := e.run(ctx, req.WalletID, req.Password, work, plans, req.Coordinator, req.Context); err != nil {
		return nil, err
	}
	return work, nil
}

// run signs every planned group of work in place.
func (e *Engine) run(ctx context.Context, walletID string, password []byte, work *tx.Transaction,
	plans []plan, coord *multisig.Coordinator, inputTxs []*tx.Transaction) error {
	src, err := e.open(ctx, walletID, password, plans)
	if err != nil {
		return err
	}
	defer src.close()

	hash := work.Hash()
	for _, p := range plans {
		gw := work.PrepareGroupWitnesses(p.group)
		witnesses := gw.Placeholder(p.owner.lockSize())
		sig, err := src.sign(ctx, groupRequest{
			walletID:  walletID,
			tx:        work,
			hash:      hash,
			witnesses: witnesses,
			path:      p.owner.path,
			inputTxs:  inputTxs,
		})
		if err != nil {
			return fmt.Errorf("sign lock %s: %w", p.group.LockHash, err)
		}

		if p.owner.kind == ownerMultisig {
			if _, err := coord.AddSignature(work, p.group.LockHash, p.owner.blake160, sig); err != nil {
				return err
			}
		} else {
			work.ApplyGroupWitness(p.group, gw, p.owner.witnessLock(sig))
		}
		klog.Signer.Debug().
			Str("lock_hash", p.group.LockHash.String()).
			Str("owner", p.owner.kind.String()).
			Int("inputs", len(p.group.Indices)).
			Msg("Lock group signed")
	}

	if coord != nil {
		if _, err := coord.ApplyWitnesses(work); err != nil {
			return err
		}
	}
	work.TxHash = hash
	klog.Signer.Info().
		Str("wallet", walletID).
		Str("tx_hash", hash.String()).
		Int("groups", len(plans)).
		Msg("Transaction signed")
	return nil
}

// groupRequest is everything a key source needs to sign one lock group.
type groupRequest struct {
	walletID  string
	tx        *tx.Transaction
	hash      types.Hash
	witnesses [][]byte
	path      string
	inputTxs  []*tx.Transaction
}

// keySource produces group signatures from one kind of key material.
type keySource interface {
	sign(ctx context.Context, req groupRequest) ([]byte, error)
	close()
}

// open prepares the key material of a wallet: software keys for every
// planned path, or a session on the wallet's device.
func (e *Engine) open(ctx context.Context, walletID string, password []byte, plans []plan) (keySource, error) {
	device, err := e.keys.Device(walletID)
	if err != nil {
		return nil, err
	}
	if device != nil {
		if e.devices == nil {
			return nil, ErrNoHardware
		}
		sess, err := e.devices.Acquire(ctx, *device)
		if err != nil {
			return nil, err
		}
		return &deviceKeys{sess: sess}, nil
	}

	master, err := e.keys.MasterKey(walletID, password)
	if err != nil {
		return nil, err
	}
	defer master.Zero()

	paths := make([]string, len(plans))
	for i, p := range plans {
		paths[i] = p.owner.path
	}
	keys, err := wallet.DerivePrivateKeys(master, paths)
	if err != nil {
		return nil, txerr.Wrap(txerr.InvalidPath, err, "derive signing keys")
	}
	return softwareKeys(keys), nil
}

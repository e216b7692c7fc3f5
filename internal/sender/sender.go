// Package sender signs and broadcasts wallet transactions, then hands the
// sent transaction to the local records and the address pool.
package sender

import (
	"bytes"
	"context"
	"fmt"

	klog "github.com/Klingon-tech/cellwallet/internal/log"
	"github.com/Klingon-tech/cellwallet/internal/multisig"
	"github.com/Klingon-tech/cellwallet/internal/rpcclient"
	"github.com/Klingon-tech/cellwallet/internal/signer"
	"github.com/Klingon-tech/cellwallet/internal/txerr"
	"github.com/Klingon-tech/cellwallet/pkg/tx"
	"github.com/Klingon-tech/cellwallet/pkg/types"
)

// Signer produces witnessed transactions. *signer.Engine implements it.
type Signer interface {
	Sign(ctx context.Context, req signer.SignRequest) (*tx.Transaction, error)
	SignMultisig(ctx context.Context, req signer.MultisigSignRequest) (*tx.Transaction, error)
}

// Persistor records transactions once the node accepted them.
type Persistor interface {
	SaveSentTransaction(ctx context.Context, t *tx.Transaction, hash types.Hash) error
	SaveSentMultisigOutput(ctx context.Context, t *tx.Transaction) error
}

// AddressMaintainer keeps a wallet's pool of unused addresses filled.
type AddressMaintainer interface {
	CheckAndGenerateAddresses(ctx context.Context, walletID string) error
}

// Sender ties signing, broadcast and the post-broadcast handoff together.
type Sender struct {
	node    rpcclient.Node
	signer  Signer
	persist Persistor
	addrs   AddressMaintainer
}

// New creates a sender.
func New(node rpcclient.Node, s Signer, persist Persistor, addrs AddressMaintainer) *Sender {
	return &Sender{node: node, signer: s, persist: persist, addrs: addrs}
}

// SendRequest is a transaction to sign with a wallet and broadcast.
type SendRequest struct {
	signer.SignRequest
	// SkipSign broadcasts Tx as given, for transactions signed elsewhere.
	SkipSign bool
}

// MultisigSendRequest is a multisig transaction to sign and broadcast.
type MultisigSendRequest struct {
	signer.MultisigSignRequest
	SkipSign bool
}

// Send signs req.Tx unless SkipSign is set and broadcasts it.
func (s *Sender) Send(ctx context.Context, req SendRequest) (types.Hash, error) {
	t := req.Tx
	if !req.SkipSign {
		signed, err := s.signer.Sign(ctx, req.SignRequest)
		if err != nil {
			return types.Hash{}, err
		}
		t = signed
	}
	return s.Broadcast(ctx, req.WalletID, t, req.Multisig)
}

// SendMultisig adds the wallet's multisig signatures unless SkipSign is set
// and broadcasts the result. It fails with TransactionNotFullySigned while
// a group is below its threshold.
func (s *Sender) SendMultisig(ctx context.Context, req MultisigSendRequest) (types.Hash, error) {
	t := req.Tx
	if !req.SkipSign {
		signed, err := s.signer.SignMultisig(ctx, req.MultisigSignRequest)
		if err != nil {
			return types.Hash{}, err
		}
		t = signed
	}
	return s.Broadcast(ctx, req.WalletID, t, req.Coordinator)
}

// Broadcast submits a witnessed transaction. Multisig groups of coord that
// reached their threshold get their witness assembled first; incomplete
// transactions are rejected before the node is called. Once the node
// accepts it the transaction is recorded and, for a wallet, the address
// pool refreshed. Failures after acceptance are returned with the hash.
func (s *Sender) Broadcast(ctx context.Context, walletID string, t *tx.Transaction, coord *multisig.Coordinator) (types.Hash, error) {
	if coord != nil {
		t = t.Clone()
		if _, err := coord.ApplyWitnesses(t); err != nil {
			return types.Hash{}, err
		}
	}
	if err := CheckFullySigned(t, coord); err != nil {
		return types.Hash{}, err
	}

	hash, err := s.node.SendTransaction(ctx, t)
	if err != nil {
		klog.Sender.Warn().Err(err).Str("tx_hash", t.Hash().String()).Msg("Broadcast rejected")
		return types.Hash{}, err
	}
	if local := t.Hash(); local != hash {
		klog.Sender.Warn().
			Str("tx_hash", hash.String()).
			Str("local_hash", local.String()).
			Msg("Node returned a different transaction hash")
	}
	t.TxHash = hash
	klog.Sender.Info().
		Str("wallet", walletID).
		Str("tx_hash", hash.String()).
		Int("inputs", len(t.Inputs)).
		Int("outputs", len(t.Outputs)).
		Uint64("fee", t.Fee).
		Msg("Transaction broadcast")

	if err := s.persist.SaveSentTransaction(ctx, t, hash); err != nil {
		return hash, fmt.Errorf("record sent transaction: %w", err)
	}
	if err := s.persist.SaveSentMultisigOutput(ctx, t); err != nil {
		return hash, fmt.Errorf("record multisig outputs: %w", err)
	}
	if walletID != "" && s.addrs != nil {
		if err := s.addrs.CheckAndGenerateAddresses(ctx, walletID); err != nil {
			return hash, fmt.Errorf("refresh addresses: %w", err)
		}
	}
	return hash, nil
}

// CheckFullySigned reports TransactionNotFullySigned when a lock group
// still needs signatures: a multisig group of coord below its threshold,
// or a group whose witness lock is the zero placeholder. Groups without a
// witness lock are accepted; their scripts may not need one.
func CheckFullySigned(t *tx.Transaction, coord *multisig.Coordinator) error {
	groups, err := t.LockGroups(len(t.Inputs))
	if err != nil {
		return err
	}
	for _, g := range groups {
		if coord != nil {
			if _, ok := coord.Config(g.LockHash); ok {
				state, err := coord.State(t, g.LockHash)
				if err != nil {
					return err
				}
				if state != multisig.Signed {
					return txerr.New(txerr.TransactionNotFullySigned, "multisig lock %s is %s", g.LockHash, state)
				}
			}
		}
		if g.First() >= len(t.Witnesses) {
			continue
		}
		wa, err := types.DecodeWitnessArgs(t.Witnesses[g.First()])
		if err != nil || len(wa.Lock) == 0 {
			continue
		}
		if isZero(wa.Lock) {
			return txerr.New(txerr.TransactionNotFullySigned, "lock %s carries no signature", g.LockHash)
		}
	}
	return nil
}

func isZero(b []byte) bool {
	return len(bytes.Trim(b, "\x00")) == 0
}

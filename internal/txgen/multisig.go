package txgen

import (
	"context"
	"fmt"

	"github.com/Klingon-tech/cellwallet/internal/multisig"
	"github.com/Klingon-tech/cellwallet/internal/txerr"
	"github.com/Klingon-tech/cellwallet/pkg/tx"
	"github.com/Klingon-tech/cellwallet/pkg/types"
)

// MultisigTransferRequest pays targets from a multisig lock. Change goes
// back to the same lock.
type MultisigTransferRequest struct {
	Config  *multisig.Config
	Targets []Target
	Fee     FeeOption
}

// MultisigSendAllRequest empties a multisig lock into the targets; the
// last target receives the remainder.
type MultisigSendAllRequest struct {
	Config  *multisig.Config
	Targets []Target
	Fee     FeeOption
}

// TimelockWithdrawRequest spends the cells of a time-locked 1-of-1 lock
// once its since is satisfied.
type TimelockWithdrawRequest struct {
	Config   *multisig.Config
	Receiver types.Script
	Fee      FeeOption
}

// GenerateMultisigTransfer builds a payment from a multisig lock. Witness
// placeholders are sized for the script and m signatures.
func (g *Generator) GenerateMultisigTransfer(ctx context.Context, req MultisigTransferRequest) (*tx.Transaction, error) {
	if req.Config == nil {
		return nil, txerr.New(txerr.MultisigConfigNeedError, "multisig transfer without config")
	}
	outs, err := targetOutputs(req.Targets, false)
	if err != nil {
		return nil, err
	}
	lock := req.Config.LockScript()
	cells, err := plainCells(ctx, g.cells, []types.Script{lock})
	if err != nil {
		return nil, err
	}
	t, err := g.fund(&tx.Transaction{Outputs: outs}, cells, lock, req.Fee, newLockSizer(req.Config))
	if err != nil {
		return nil, byTransfer(err)
	}
	return t, nil
}

// GenerateMultisigSendAll spends every plain cell of a multisig lock.
func (g *Generator) GenerateMultisigSendAll(ctx context.Context, req MultisigSendAllRequest) (*tx.Transaction, error) {
	if req.Config == nil {
		return nil, txerr.New(txerr.MultisigConfigNeedError, "multisig send-all without config")
	}
	outs, err := targetOutputs(req.Targets, true)
	if err != nil {
		return nil, err
	}
	cells, err := plainCells(ctx, g.cells, []types.Script{req.Config.LockScript()})
	if err != nil {
		return nil, err
	}
	base := &tx.Transaction{Outputs: outs}
	for _, c := range cells {
		base.Inputs = append(base.Inputs, c.Input(0))
	}
	return g.spendAll(base, nil, req.Fee, newLockSizer(req.Config))
}

// GenerateTimelockWithdraw spends every cell of a time-locked lock to the
// receiver. Each input carries the since from the lock args.
func (g *Generator) GenerateTimelockWithdraw(ctx context.Context, req TimelockWithdrawRequest) (*tx.Transaction, error) {
	cfg := req.Config
	if cfg == nil {
		return nil, txerr.New(txerr.MultisigConfigNeedError, "time-locked withdraw without config")
	}
	lock := cfg.LockScript()
	_, since, ok := multisig.SplitTimelockArgs(lock.Args)
	if !ok {
		return nil, fmt.Errorf("lock %s is not time-locked", cfg.LockHash())
	}
	cells, err := g.cells.LiveCells(ctx, lock)
	if err != nil {
		return nil, err
	}
	sortCells(cells)
	base := &tx.Transaction{Outputs: []tx.Output{{Lock: req.Receiver.Clone()}}}
	for _, c := range cells {
		if !c.IsPlain() {
			continue
		}
		base.Inputs = append(base.Inputs, c.Input(since))
	}
	return g.spendAll(base, nil, req.Fee, newLockSizer(cfg))
}

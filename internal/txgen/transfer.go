package txgen

import (
	"context"
	"errors"

	"github.com/Klingon-tech/cellwallet/internal/txerr"
	"github.com/Klingon-tech/cellwallet/pkg/tx"
	"github.com/Klingon-tech/cellwallet/pkg/types"
)

// TransferRequest pays targets from the plain cells of the From locks.
type TransferRequest struct {
	From    []types.Script
	Targets []Target
	Change  types.Script
	Fee     FeeOption
}

// SendAllRequest empties the From locks into the targets. The last target
// receives the remainder; its Capacity is ignored. A non-zero Reserve keeps
// that much capacity in a change output on Change.
type SendAllRequest struct {
	From    []types.Script
	Targets []Target
	Change  types.Script
	Reserve uint64
	Fee     FeeOption
}

func targetOutputs(targets []Target, skipLast bool) ([]tx.Output, error) {
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}
	outs := make([]tx.Output, len(targets))
	for i, t := range targets {
		outs[i] = t.output()
		if skipLast && i == len(targets)-1 {
			continue
		}
		if err := checkOutput(outs[i]); err != nil {
			return nil, err
		}
	}
	return outs, nil
}

// byTransfer reclassifies a change shortfall so callers can offer to send
// everything instead.
func byTransfer(err error) error {
	if errors.Is(err, txerr.Sentinel(txerr.CapacityNotEnoughForChange)) {
		return txerr.Wrap(txerr.CapacityNotEnoughForChangeByTransfer, err, "send all to avoid a dust change cell")
	}
	return err
}

// GenerateTransfer builds a payment to the targets. Cells are spent in
// ascending capacity order until outputs and fee are covered and the change
// is either zero or a valid cell.
func (g *Generator) GenerateTransfer(ctx context.Context, req TransferRequest) (*tx.Transaction, error) {
	outs, err := targetOutputs(req.Targets, false)
	if err != nil {
		return nil, err
	}
	cells, err := plainCells(ctx, g.cells, req.From)
	if err != nil {
		return nil, err
	}
	t, err := g.fund(&tx.Transaction{Outputs: outs}, cells, req.Change, req.Fee, newLockSizer())
	if err != nil {
		return nil, byTransfer(err)
	}
	return t, nil
}

// GenerateSendAll spends every plain cell of the From locks.
func (g *Generator) GenerateSendAll(ctx context.Context, req SendAllRequest) (*tx.Transaction, error) {
	outs, err := targetOutputs(req.Targets, true)
	if err != nil {
		return nil, err
	}
	cells, err := plainCells(ctx, g.cells, req.From)
	if err != nil {
		return nil, err
	}
	base := &tx.Transaction{Outputs: outs}
	for _, c := range cells {
		base.Inputs = append(base.Inputs, c.Input(0))
	}
	var reserve *tx.Output
	if req.Reserve > 0 {
		reserve = &tx.Output{Capacity: req.Reserve, Lock: req.Change.Clone()}
	}
	return g.spendAll(base, reserve, req.Fee, newLockSizer())
}

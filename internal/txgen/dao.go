package txgen

import (
	"context"
	"fmt"

	"github.com/Klingon-tech/cellwallet/internal/dao"
	"github.com/Klingon-tech/cellwallet/internal/multisig"
	"github.com/Klingon-tech/cellwallet/internal/txerr"
	"github.com/Klingon-tech/cellwallet/pkg/tx"
	"github.com/Klingon-tech/cellwallet/pkg/types"
)

const (
	// MinDepositCapacity is the occupied capacity of a deposit cell on a
	// single key lock.
	MinDepositCapacity = 102 * tx.ShannonsPerCKB
	// DepositReserve is the change kept back by a deposit-all that reserves
	// balance: one single key cell plus a CKByte for fees.
	DepositReserve = 62 * tx.ShannonsPerCKB
)

// DepositRequest deposits Capacity into the DAO under the Receiver lock.
type DepositRequest struct {
	From     []types.Script
	Receiver types.Script
	Capacity uint64
	Change   types.Script
	Fee      FeeOption
}

// DepositAllRequest deposits every plain cell. With Reserve set,
// DepositReserve stays behind as change on Change.
type DepositAllRequest struct {
	From     []types.Script
	Receiver types.Script
	Change   types.Script
	Reserve  bool
	Fee      FeeOption
}

// StartWithdrawRequest turns a deposit into a withdrawing cell (phase 1).
// The fee is paid from the plain cells of From. Config is required when the
// deposit is held by a multisig lock.
type StartWithdrawRequest struct {
	Deposit *dao.Deposit
	Config  *multisig.Config
	From    []types.Script
	Change  types.Script
	Fee     FeeOption
}

// WithdrawRequest claims a withdrawing cell with its compensation
// (phase 2). Config is required when the cell is held by a multisig lock.
type WithdrawRequest struct {
	Withdrawal *dao.Withdrawal
	Config     *multisig.Config
	Receiver   types.Script
	Fee        FeeOption
}

// daoLockSizer sizes the witness of a DAO cell's lock, which may be a
// multisig lock described by cfg.
func daoLockSizer(lock types.Script, cfg *multisig.Config) (lockSizer, error) {
	if cfg == nil {
		if lock.IsMultisig() {
			return nil, txerr.New(txerr.MultisigConfigNeedError, "DAO cell under multisig lock %s needs its config", lock.Hash())
		}
		return newLockSizer(), nil
	}
	if cfg.LockHash() != lock.Hash() {
		return nil, txerr.New(txerr.MultisigConfigNeedError, "config %s does not lock the DAO cell (%s)", cfg.LockHash(), lock.Hash())
	}
	return newLockSizer(cfg), nil
}

func depositOutput(lock types.Script, capacity uint64) tx.Output {
	daoType := types.NewDaoScript()
	return tx.Output{Capacity: capacity, Lock: lock.Clone(), Type: &daoType, Data: dao.DepositData()}
}

// GenerateDeposit builds a DAO deposit of the requested capacity.
func (g *Generator) GenerateDeposit(ctx context.Context, req DepositRequest) (*tx.Transaction, error) {
	out := depositOutput(req.Receiver, req.Capacity)
	if err := checkOutput(out); err != nil {
		return nil, err
	}
	cells, err := plainCells(ctx, g.cells, req.From)
	if err != nil {
		return nil, err
	}
	return g.fund(&tx.Transaction{Outputs: []tx.Output{out}}, cells, req.Change, req.Fee, newLockSizer())
}

// GenerateDepositAll deposits the wallet's whole plain balance.
func (g *Generator) GenerateDepositAll(ctx context.Context, req DepositAllRequest) (*tx.Transaction, error) {
	cells, err := plainCells(ctx, g.cells, req.From)
	if err != nil {
		return nil, err
	}
	base := &tx.Transaction{Outputs: []tx.Output{depositOutput(req.Receiver, 0)}}
	for _, c := range cells {
		base.Inputs = append(base.Inputs, c.Input(0))
	}
	var reserve *tx.Output
	if req.Reserve {
		reserve = &tx.Output{Capacity: DepositReserve, Lock: req.Change.Clone()}
	}
	return g.spendAll(base, reserve, req.Fee, newLockSizer())
}

// GenerateStartWithdraw builds the phase-1 transaction: the deposit cell is
// recreated with the same capacity, lock and type, its data recording the
// deposit block number, and the deposit block as header dep.
func (g *Generator) GenerateStartWithdraw(ctx context.Context, req StartWithdrawRequest) (*tx.Transaction, error) {
	d := req.Deposit
	if d == nil || d.Header == nil {
		return nil, fmt.Errorf("start withdraw: %w", dao.ErrNotDeposit)
	}
	cell := Cell{
		OutPoint: d.OutPoint,
		Capacity: uint64(d.Output.Capacity),
		Lock:     d.Output.Lock,
		Type:     d.Output.Type,
		Data:     dao.DepositData(),
	}
	out := tx.Output{
		Capacity: cell.Capacity,
		Lock:     cell.Lock.Clone(),
		Type:     d.Output.Type,
		Data:     dao.WithdrawingData(uint64(d.Header.Number)),
	}
	sizer, err := daoLockSizer(cell.Lock, req.Config)
	if err != nil {
		return nil, err
	}
	base := &tx.Transaction{
		HeaderDeps: []types.Hash{d.Header.Hash},
		Inputs:     []tx.Input{cell.Input(0)},
		Outputs:    []tx.Output{out},
	}
	cells, err := plainCells(ctx, g.cells, req.From)
	if err != nil {
		return nil, err
	}
	return g.fund(base, cells, req.Change, req.Fee, sizer)
}

// GenerateWithdraw builds the phase-2 transaction: the withdrawing cell is
// spent no earlier than its minimal since, with header deps [deposit
// block, withdraw block], and a single output of the maximum withdrawable
// capacity less the fee.
func (g *Generator) GenerateWithdraw(_ context.Context, req WithdrawRequest) (*tx.Transaction, error) {
	w := req.Withdrawal
	if w == nil || w.DepositHeader == nil || w.WithdrawHeader == nil {
		return nil, fmt.Errorf("withdraw: missing withdrawal headers")
	}
	cell := Cell{
		OutPoint: w.OutPoint,
		Capacity: uint64(w.Output.Capacity),
		Lock:     w.Output.Lock,
		Type:     w.Output.Type,
		Data:     dao.WithdrawingData(uint64(w.DepositHeader.Number)),
	}
	sizer, err := daoLockSizer(cell.Lock, req.Config)
	if err != nil {
		return nil, err
	}
	// InputType is the index of the deposit header in header_deps. The lock
	// placeholder is sized by finalize.
	witness := &types.WitnessArgs{InputType: types.PackUint64(0)}
	t := &tx.Transaction{
		HeaderDeps: []types.Hash{w.DepositHeader.Hash, w.WithdrawHeader.Hash},
		Inputs:     []tx.Input{cell.Input(uint64(w.MinimalSince))},
		Outputs:    []tx.Output{{Capacity: w.Maximum, Lock: req.Receiver.Clone()}},
		Witnesses:  [][]byte{witness.Serialize()},
	}
	if err := g.finalize(t, sizer); err != nil {
		return nil, err
	}
	fee, err := req.Fee.feeFor(t)
	if err != nil {
		return nil, err
	}
	if w.Maximum < fee {
		return nil, txerr.New(txerr.CapacityNotEnough, "withdrawable %d shannons cannot pay fee %d", w.Maximum, fee)
	}
	t.Outputs[0].Capacity = w.Maximum - fee
	if err := checkOutput(t.Outputs[0]); err != nil {
		return nil, txerr.Wrap(txerr.CapacityNotEnough, err, "withdrawal output")
	}
	return seal(t, fee)
}

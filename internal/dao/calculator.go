package dao

import (
	"context"
	"fmt"

	klog "github.com/Klingon-tech/cellwallet/internal/log"
	"github.com/Klingon-tech/cellwallet/internal/rpcclient"
	"github.com/Klingon-tech/cellwallet/internal/txerr"
	"github.com/Klingon-tech/cellwallet/pkg/types"
)

// Deposit is a live deposit cell and the header of the block holding it.
type Deposit struct {
	OutPoint types.OutPoint
	Output   rpcclient.CellOutput
	Header   *rpcclient.Header
}

// Withdrawal is everything needed to build the phase-2 transaction of a
// withdrawing cell.
type Withdrawal struct {
	DepositOutPoint types.OutPoint
	OutPoint        types.OutPoint
	Output          rpcclient.CellOutput

	DepositHeader  *rpcclient.Header
	WithdrawHeader *rpcclient.Header
	LockedEpochs   uint64
	MinimalSince   types.Since
	// Maximum is principal plus compensation, as computed by the node.
	Maximum uint64
}

// Compensation is the interest accrued on top of the deposited capacity.
func (w *Withdrawal) Compensation() uint64 {
	if w.Maximum < uint64(w.Output.Capacity) {
		return 0
	}
	return w.Maximum - uint64(w.Output.Capacity)
}

// Calculator resolves deposits and withdrawals against a node.
type Calculator struct {
	node rpcclient.Node
}

// NewCalculator creates a calculator over node.
func NewCalculator(node rpcclient.Node) *Calculator {
	return &Calculator{node: node}
}

// committedCell fetches a live cell and the committed transaction that
// created it.
func (c *Calculator) committedCell(ctx context.Context, op types.OutPoint) (*rpcclient.LiveCell, *rpcclient.TransactionWithStatus, error) {
	cell, err := c.node.GetLiveCell(ctx, op, true)
	if err != nil {
		return nil, nil, err
	}
	if !cell.IsLive() {
		return nil, nil, txerr.New(txerr.CellIsNotYetLive, "cell %s is %s", op, cell.Status)
	}
	prev, err := c.node.GetTransaction(ctx, op.TxHash)
	if err != nil {
		return nil, nil, err
	}
	if !prev.IsCommitted() || prev.TxStatus.BlockHash == nil {
		return nil, nil, txerr.New(txerr.TransactionIsNotCommittedYet, "transaction %s is %s", op.TxHash, prev.TxStatus.Status)
	}
	return cell.Cell, prev, nil
}

// Deposit checks that op is a committed, live deposit and returns it with
// its block header, as phase 1 needs.
func (c *Calculator) Deposit(ctx context.Context, op types.OutPoint) (*Deposit, error) {
	cell, prev, err := c.committedCell(ctx, op)
	if err != nil {
		return nil, err
	}
	var data []byte
	if cell.Data != nil {
		data = cell.Data.Content
	}
	if cell.Output.Type == nil || !cell.Output.Type.IsDao() || !IsDepositData(data) {
		return nil, fmt.Errorf("%w: %s", ErrNotDeposit, op)
	}
	header, err := c.node.GetHeader(ctx, *prev.TxStatus.BlockHash)
	if err != nil {
		return nil, err
	}
	return &Deposit{OutPoint: op, Output: cell.Output, Header: header}, nil
}

// Withdrawal computes the phase-2 parameters of a withdrawing cell created
// from the deposit at depositOutPoint.
func (c *Calculator) Withdrawal(ctx context.Context, depositOutPoint, withdrawingOutPoint types.OutPoint) (*Withdrawal, error) {
	cell, prev, err := c.committedCell(ctx, withdrawingOutPoint)
	if err != nil {
		return nil, err
	}
	var data []byte
	if cell.Data != nil {
		data = cell.Data.Content
	}
	depositNumber, err := DepositBlockNumber(data)
	if err != nil {
		return nil, fmt.Errorf("withdrawing cell %s: %w", withdrawingOutPoint, err)
	}

	depositHeader, err := c.node.GetHeaderByNumber(ctx, depositNumber)
	if err != nil {
		return nil, err
	}
	withdrawHeader, err := c.node.GetHeader(ctx, *prev.TxStatus.BlockHash)
	if err != nil {
		return nil, err
	}

	depositEpoch := depositHeader.ParsedEpoch()
	withdrawEpoch := withdrawHeader.ParsedEpoch()
	elapsed, err := ElapsedEpochs(depositEpoch, withdrawEpoch)
	if err != nil {
		return nil, err
	}
	locked := LockedEpochs(elapsed)
	since, err := types.EpochSince(depositEpoch.AddEpochs(locked))
	if err != nil {
		return nil, fmt.Errorf("minimal since: %w", err)
	}

	maximum, err := c.node.CalculateDaoMaximumWithdraw(ctx, depositOutPoint, withdrawHeader.Hash)
	if err != nil {
		return nil, err
	}

	klog.DAO.Debug().
		Str("deposit_epoch", depositEpoch.String()).
		Str("withdraw_epoch", withdrawEpoch.String()).
		Uint64("locked_epochs", locked).
		Uint64("maximum", maximum).
		Msg("Withdrawal computed")

	return &Withdrawal{
		DepositOutPoint: depositOutPoint,
		OutPoint:        withdrawingOutPoint,
		Output:          cell.Output,
		DepositHeader:   depositHeader,
		WithdrawHeader:  withdrawHeader,
		LockedEpochs:    locked,
		MinimalSince:    since,
		Maximum:         maximum,
	}, nil
}

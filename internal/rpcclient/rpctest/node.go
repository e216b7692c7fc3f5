// Package rpctest provides an in-memory rpcclient.Node for tests.
package rpctest

import (
	"context"
	"fmt"
	"sync"

	"github.com/Klingon-tech/cellwallet/internal/rpcclient"
	"github.com/Klingon-tech/cellwallet/pkg/tx"
	"github.com/Klingon-tech/cellwallet/pkg/types"
)

// Node is a scripted node. Each method delegates to its Fn field when set
// and fails otherwise. Calls are counted by method name.
type Node struct {
	GetLiveCellFn                 func(ctx context.Context, op types.OutPoint, withData bool) (*rpcclient.CellWithStatus, error)
	GetTransactionFn              func(ctx context.Context, hash types.Hash) (*rpcclient.TransactionWithStatus, error)
	GetHeaderFn                   func(ctx context.Context, hash types.Hash) (*rpcclient.Header, error)
	GetHeaderByNumberFn           func(ctx context.Context, number uint64) (*rpcclient.Header, error)
	CalculateDaoMaximumWithdrawFn func(ctx context.Context, op types.OutPoint, withdrawBlockHash types.Hash) (uint64, error)
	SendTransactionFn             func(ctx context.Context, transaction *tx.Transaction) (types.Hash, error)

	mu    sync.Mutex
	calls map[string]int
}

var _ rpcclient.Node = (*Node)(nil)

func (n *Node) record(method string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.calls == nil {
		n.calls = make(map[string]int)
	}
	n.calls[method]++
}

// Calls returns how many times method was invoked.
func (n *Node) Calls(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

func unscripted(method string) error {
	return fmt.Errorf("rpctest: %s not scripted", method)
}

func (n *Node) GetLiveCell(ctx context.Context, op types.OutPoint, withData bool) (*rpcclient.CellWithStatus, error) {
	n.record("get_live_cell")
	if n.GetLiveCellFn == nil {
		return nil, unscripted("get_live_cell")
	}
	return n.GetLiveCellFn(ctx, op, withData)
}

func (n *Node) GetTransaction(ctx context.Context, hash types.Hash) (*rpcclient.TransactionWithStatus, error) {
	n.record("get_transaction")
	if n.GetTransactionFn == nil {
		return nil, unscripted("get_transaction")
	}
	return n.GetTransactionFn(ctx, hash)
}

func (n *Node) GetHeader(ctx context.Context, hash types.Hash) (*rpcclient.Header, error) {
	n.record("get_header")
	if n.GetHeaderFn == nil {
		return nil, unscripted("get_header")
	}
	return n.GetHeaderFn(ctx, hash)
}

func (n *Node) GetHeaderByNumber(ctx context.Context, number uint64) (*rpcclient.Header, error) {
	n.record("get_header_by_number")
	if n.GetHeaderByNumberFn == nil {
		return nil, unscripted("get_header_by_number")
	}
	return n.GetHeaderByNumberFn(ctx, number)
}

func (n *Node) CalculateDaoMaximumWithdraw(ctx context.Context, op types.OutPoint, withdrawBlockHash types.Hash) (uint64, error) {
	n.record("calculate_dao_maximum_withdraw")
	if n.CalculateDaoMaximumWithdrawFn == nil {
		return 0, unscripted("calculate_dao_maximum_withdraw")
	}
	return n.CalculateDaoMaximumWithdrawFn(ctx, op, withdrawBlockHash)
}

func (n *Node) SendTransaction(ctx context.Context, transaction *tx.Transaction) (types.Hash, error) {
	n.record("send_transaction")
	if n.SendTransactionFn == nil {
		return types.Hash{}, unscripted("send_transaction")
	}
	return n.SendTransactionFn(ctx, transaction)
}

// Chain is a canned chain view for Node: live cells, committed
// transactions and headers.
type Chain struct {
	Cells   map[types.OutPoint]*rpcclient.LiveCell
	Txs     map[types.Hash]*rpcclient.TransactionWithStatus
	Headers []*rpcclient.Header
}

// NewChain creates an empty chain view.
func NewChain() *Chain {
	return &Chain{
		Cells: make(map[types.OutPoint]*rpcclient.LiveCell),
		Txs:   make(map[types.Hash]*rpcclient.TransactionWithStatus),
	}
}

// AddHeader appends a header and returns it.
func (c *Chain) AddHeader(number uint64, epoch types.Epoch, hash types.Hash) *rpcclient.Header {
	packed, _ := epoch.Pack()
	h := &rpcclient.Header{Number: types.Uint64(number), Epoch: types.Uint64(packed), Hash: hash}
	c.Headers = append(c.Headers, h)
	return h
}

// Commit records that the transaction hash was committed in block.
func (c *Chain) Commit(txHash, block types.Hash) {
	c.Txs[txHash] = &rpcclient.TransactionWithStatus{
		Transaction: &tx.Transaction{TxHash: txHash},
		TxStatus:    rpcclient.TxStatus{Status: rpcclient.TxStatusCommitted, BlockHash: &block},
	}
}

// Node returns a Node answering queries from the chain view.
func (c *Chain) Node() *Node {
	return &Node{
		GetLiveCellFn: func(_ context.Context, op types.OutPoint, _ bool) (*rpcclient.CellWithStatus, error) {
			cell, ok := c.Cells[op]
			if !ok {
				return &rpcclient.CellWithStatus{Status: rpcclient.CellStatusUnknown}, nil
			}
			return &rpcclient.CellWithStatus{Cell: cell, Status: rpcclient.CellStatusLive}, nil
		},
		GetTransactionFn: func(_ context.Context, hash types.Hash) (*rpcclient.TransactionWithStatus, error) {
			if t, ok := c.Txs[hash]; ok {
				return t, nil
			}
			return &rpcclient.TransactionWithStatus{TxStatus: rpcclient.TxStatus{Status: rpcclient.TxStatusUnknown}}, nil
		},
		GetHeaderFn: func(_ context.Context, hash types.Hash) (*rpcclient.Header, error) {
			for _, h := range c.Headers {
				if h.Hash == hash {
					return h, nil
				}
			}
			return nil, fmt.Errorf("header %s not found", hash)
		},
		GetHeaderByNumberFn: func(_ context.Context, number uint64) (*rpcclient.Header, error) {
			for _, h := range c.Headers {
				if uint64(h.Number) == number {
					return h, nil
				}
			}
			return nil, fmt.Errorf("header #%d not found", number)
		},
	}
}

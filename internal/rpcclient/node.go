package rpcclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Klingon-tech/cellwallet/pkg/tx"
	"github.com/Klingon-tech/cellwallet/pkg/types"
)

// Cell and transaction statuses reported by the node.
const (
	CellStatusLive     = "live"
	CellStatusDead     = "dead"
	CellStatusUnknown  = "unknown"
	TxStatusUnknown    = "unknown"
	TxStatusPending    = "pending"
	TxStatusProposed   = "proposed"
	TxStatusCommitted  = "committed"
	TxStatusRejected   = "rejected"
	OutputsPassthrough = "passthrough"
)

// Node is the node query surface the wallet core depends on.
type Node interface {
	GetLiveCell(ctx context.Context, outPoint types.OutPoint, withData bool) (*CellWithStatus, error)
	GetTransaction(ctx context.Context, hash types.Hash) (*TransactionWithStatus, error)
	GetHeader(ctx context.Context, hash types.Hash) (*Header, error)
	GetHeaderByNumber(ctx context.Context, number uint64) (*Header, error)
	CalculateDaoMaximumWithdraw(ctx context.Context, outPoint types.OutPoint, withdrawBlockHash types.Hash) (uint64, error)
	SendTransaction(ctx context.Context, transaction *tx.Transaction) (types.Hash, error)
}

// CellOutput is the RPC form of a cell output.
type CellOutput struct {
	Capacity types.Uint64  `json:"capacity"`
	Lock     types.Script  `json:"lock"`
	Type     *types.Script `json:"type"`
}

// CellData is a cell's data and its hash.
type CellData struct {
	Content types.Bytes `json:"content"`
	Hash    types.Hash  `json:"hash"`
}

// LiveCell is a cell as returned by get_live_cell.
type LiveCell struct {
	Output CellOutput `json:"output"`
	Data   *CellData  `json:"data"`
}

// CellWithStatus is the get_live_cell result. Cell is nil unless Status is
// "live".
type CellWithStatus struct {
	Cell   *LiveCell `json:"cell"`
	Status string    `json:"status"`
}

// IsLive reports whether the node considers the cell live.
func (c *CellWithStatus) IsLive() bool {
	return c != nil && c.Status == CellStatusLive && c.Cell != nil
}

// TxStatus is the status half of get_transaction.
type TxStatus struct {
	Status    string      `json:"status"`
	BlockHash *types.Hash `json:"block_hash"`
}

// TransactionWithStatus is the get_transaction result. Transaction is nil
// when the node does not know the hash.
type TransactionWithStatus struct {
	Transaction *tx.Transaction `json:"transaction"`
	TxStatus    TxStatus        `json:"tx_status"`
}

// IsCommitted reports whether the transaction is in a block.
func (t *TransactionWithStatus) IsCommitted() bool {
	return t != nil && t.Transaction != nil && t.TxStatus.Status == TxStatusCommitted
}

// Header is a block header. Epoch is the packed epoch value.
type Header struct {
	Version          types.Uint32 `json:"version"`
	CompactTarget    types.Uint32 `json:"compact_target"`
	Timestamp        types.Uint64 `json:"timestamp"`
	Number           types.Uint64 `json:"number"`
	Epoch            types.Uint64 `json:"epoch"`
	ParentHash       types.Hash   `json:"parent_hash"`
	TransactionsRoot types.Hash   `json:"transactions_root"`
	ProposalsHash    types.Hash   `json:"proposals_hash"`
	ExtraHash        types.Hash   `json:"extra_hash"`
	Dao              types.Bytes  `json:"dao"`
	Nonce            string       `json:"nonce"`
	Hash             types.Hash   `json:"hash"`
}

// ParsedEpoch decomposes the packed epoch.
func (h *Header) ParsedEpoch() types.Epoch {
	return types.ParseEpoch(uint64(h.Epoch))
}

var _ Node = (*Client)(nil)

// GetLiveCell queries a cell by out point.
func (c *Client) GetLiveCell(ctx context.Context, outPoint types.OutPoint, withData bool) (*CellWithStatus, error) {
	var result CellWithStatus
	if err := c.Call(ctx, "get_live_cell", []any{outPoint, withData}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetTransaction fetches a transaction and its status.
func (c *Client) GetTransaction(ctx context.Context, hash types.Hash) (*TransactionWithStatus, error) {
	var result *TransactionWithStatus
	if err := c.Call(ctx, "get_transaction", []any{hash}, &result); err != nil {
		return nil, err
	}
	if result == nil {
		return &TransactionWithStatus{TxStatus: TxStatus{Status: TxStatusUnknown}}, nil
	}
	if result.Transaction != nil && result.Transaction.TxHash.IsZero() {
		result.Transaction.TxHash = hash
	}
	return result, nil
}

// GetHeader fetches a block header by block hash.
func (c *Client) GetHeader(ctx context.Context, hash types.Hash) (*Header, error) {
	var result *Header
	if err := c.Call(ctx, "get_header", []any{hash}, &result); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("header %s not found", hash)
	}
	return result, nil
}

// GetHeaderByNumber fetches a canonical block header by height.
func (c *Client) GetHeaderByNumber(ctx context.Context, number uint64) (*Header, error) {
	var result *Header
	if err := c.Call(ctx, "get_header_by_number", []any{types.Uint64(number)}, &result); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("header #%d not found", number)
	}
	return result, nil
}

// CalculateDaoMaximumWithdraw returns the capacity a deposit can withdraw
// when the withdrawal is requested in the given block.
func (c *Client) CalculateDaoMaximumWithdraw(ctx context.Context, outPoint types.OutPoint, withdrawBlockHash types.Hash) (uint64, error) {
	var result types.Uint64
	if err := c.Call(ctx, "calculate_dao_maximum_withdraw", []any{outPoint, withdrawBlockHash}, &result); err != nil {
		return 0, err
	}
	return uint64(result), nil
}

// SendTransaction submits a signed transaction with the passthrough outputs
// validator and returns the hash the node assigned.
func (c *Client) SendTransaction(ctx context.Context, transaction *tx.Transaction) (types.Hash, error) {
	raw, err := transaction.MarshalRPC()
	if err != nil {
		return types.Hash{}, fmt.Errorf("encode transaction: %w", err)
	}
	var result types.Hash
	if err := c.Call(ctx, "send_transaction", []any{json.RawMessage(raw), OutputsPassthrough}, &result); err != nil {
		return types.Hash{}, err
	}
	return result, nil
}

package rpcclient

import (
	"context"

	"github.com/Klingon-tech/cellwallet/pkg/types"
)

// DefaultPageSize is the get_cells page size used when none is given.
const DefaultPageSize = 100

// SearchKey selects indexed cells by lock script.
type SearchKey struct {
	Script     types.Script `json:"script"`
	ScriptType string       `json:"script_type"`
}

// IndexedCell is one get_cells result.
type IndexedCell struct {
	Output      CellOutput     `json:"output"`
	OutputData  types.Bytes    `json:"output_data"`
	OutPoint    types.OutPoint `json:"out_point"`
	BlockNumber types.Uint64   `json:"block_number"`
	TxIndex     types.Uint32   `json:"tx_index"`
}

// CellsPage is a page of get_cells results. An empty LastCursor or an
// empty page ends the scan.
type CellsPage struct {
	Objects    []IndexedCell `json:"objects"`
	LastCursor string        `json:"last_cursor"`
}

// Indexer is the live-cell index surface.
type Indexer interface {
	GetCells(ctx context.Context, lock types.Script, limit uint64, cursor string) (*CellsPage, error)
}

var _ Indexer = (*Client)(nil)

// GetCells returns one page of live cells locked by lock, in ascending
// block order, starting after cursor ("" for the first page).
func (c *Client) GetCells(ctx context.Context, lock types.Script, limit uint64, cursor string) (*CellsPage, error) {
	if limit == 0 {
		limit = DefaultPageSize
	}
	var after any
	if cursor != "" {
		after = cursor
	}
	key := SearchKey{Script: lock, ScriptType: "lock"}
	var page CellsPage
	if err := c.Call(ctx, "get_cells", []any{key, "asc", types.Uint64(limit), after}, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

package txgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	klog "github.com/Klingon-tech/cellwallet/internal/log"
	"github.com/Klingon-tech/cellwallet/internal/rpcclient"
	"github.com/Klingon-tech/cellwallet/internal/storage"
	"github.com/Klingon-tech/cellwallet/pkg/tx"
	"github.com/Klingon-tech/cellwallet/pkg/types"
)

// Cell is a live cell the wallet may spend.
type Cell struct {
	OutPoint    types.OutPoint `json:"out_point"`
	Capacity    uint64         `json:"capacity"`
	Lock        types.Script   `json:"lock"`
	Type        *types.Script  `json:"type,omitempty"`
	Data        types.Bytes    `json:"data,omitempty"`
	BlockNumber uint64         `json:"block_number"`
}

// IsPlain reports whether the cell holds only capacity: no type script and
// no data. Transfers only spend plain cells.
func (c Cell) IsPlain() bool {
	return c.Type == nil && len(c.Data) == 0
}

// Input returns the transaction input spending the cell.
func (c Cell) Input(since uint64) tx.Input {
	lock := c.Lock.Clone()
	in := tx.Input{
		PreviousOutput: c.OutPoint,
		Since:          since,
		Capacity:       c.Capacity,
		Lock:           &lock,
		Data:           append([]byte(nil), c.Data...),
	}
	if c.Type != nil {
		t := c.Type.Clone()
		in.Type = &t
	}
	return in
}

// CellSource supplies live cells by lock script.
type CellSource interface {
	LiveCells(ctx context.Context, lock types.Script) ([]Cell, error)
}

// sortCells orders cells by ascending capacity, then out point. The order
// fixes which cells a transfer spends.
func sortCells(cells []Cell) {
	sort.SliceStable(cells, func(i, j int) bool {
		if cells[i].Capacity != cells[j].Capacity {
			return cells[i].Capacity < cells[j].Capacity
		}
		return cells[i].OutPoint.Compare(cells[j].OutPoint) < 0
	})
}

// plainCells collects the plain cells of every lock, deduplicated and sorted.
func plainCells(ctx context.Context, src CellSource, locks []types.Script) ([]Cell, error) {
	seen := make(map[types.OutPoint]bool)
	var out []Cell
	for _, lock := range locks {
		cells, err := src.LiveCells(ctx, lock)
		if err != nil {
			return nil, fmt.Errorf("live cells of %s: %w", lock.Hash(), err)
		}
		for _, c := range cells {
			if !c.IsPlain() || seen[c.OutPoint] {
				continue
			}
			seen[c.OutPoint] = true
			out = append(out, c)
		}
	}
	sortCells(out)
	return out, nil
}

// IndexerSource reads live cells from the node's cell indexer.
type IndexerSource struct {
	indexer  rpcclient.Indexer
	PageSize uint64
}

// NewIndexerSource creates a source paging through indexer.
func NewIndexerSource(indexer rpcclient.Indexer) *IndexerSource {
	return &IndexerSource{indexer: indexer, PageSize: rpcclient.DefaultPageSize}
}

// LiveCells pages through every cell locked by lock.
func (s *IndexerSource) LiveCells(ctx context.Context, lock types.Script) ([]Cell, error) {
	var (
		out    []Cell
		cursor string
	)
	for {
		page, err := s.indexer.GetCells(ctx, lock, s.PageSize, cursor)
		if err != nil {
			return nil, err
		}
		for _, ic := range page.Objects {
			out = append(out, Cell{
				OutPoint:    ic.OutPoint,
				Capacity:    uint64(ic.Output.Capacity),
				Lock:        ic.Output.Lock,
				Type:        ic.Output.Type,
				Data:        ic.OutputData,
				BlockNumber: uint64(ic.BlockNumber),
			})
		}
		if len(page.Objects) == 0 || page.LastCursor == "" || page.LastCursor == cursor {
			return out, nil
		}
		cursor = page.LastCursor
	}
}

// FilteredSource hides the cells Skip rejects, such as inputs of sent
// transactions the indexer still reports live.
type FilteredSource struct {
	Source CellSource
	Skip   func(types.OutPoint) bool
}

// LiveCells returns the cells of Source that Skip lets through.
func (f FilteredSource) LiveCells(ctx context.Context, lock types.Script) ([]Cell, error) {
	cells, err := f.Source.LiveCells(ctx, lock)
	if err != nil || f.Skip == nil {
		return cells, err
	}
	out := cells[:0]
	for _, c := range cells {
		if !f.Skip(c.OutPoint) {
			out = append(out, c)
		}
	}
	return out, nil
}

// Key prefixes of the cell store.
var (
	cellPrefix  = []byte("c") // lock hash | out point -> cell
	ownerPrefix = []byte("o") // out point -> lock hash
)

// CellStore is a local cell cache on a key-value store, filled by the
// chain sync collaborator and drained as the wallet spends.
type CellStore struct {
	db storage.DB
}

// NewCellStore creates a cell store over db.
func NewCellStore(db storage.DB) *CellStore {
	return &CellStore{db: db}
}

func cellKey(lockHash types.Hash, op types.OutPoint) []byte {
	key := make([]byte, 0, len(cellPrefix)+types.HashSize+types.OutPointSize)
	key = append(key, cellPrefix...)
	key = append(key, lockHash[:]...)
	return append(key, op.Serialize()...)
}

func ownerKey(op types.OutPoint) []byte {
	return append(append([]byte{}, ownerPrefix...), op.Serialize()...)
}

// Put records live cells.
func (s *CellStore) Put(cells ...Cell) error {
	batch := storage.NewWriteBatch(s.db)
	for _, c := range cells {
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("encode cell %s: %w", c.OutPoint, err)
		}
		lockHash := c.Lock.Hash()
		if err := batch.Put(cellKey(lockHash, c.OutPoint), data); err != nil {
			return err
		}
		if err := batch.Put(ownerKey(c.OutPoint), lockHash[:]); err != nil {
			return err
		}
	}
	return batch.Commit()
}

// Spend removes cells consumed by a transaction. Unknown out points are
// ignored.
func (s *CellStore) Spend(ops ...types.OutPoint) error {
	batch := storage.NewWriteBatch(s.db)
	for _, op := range ops {
		lockHash, err := s.db.Get(ownerKey(op))
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		var h types.Hash
		copy(h[:], lockHash)
		if err := batch.Delete(cellKey(h, op)); err != nil {
			return err
		}
		if err := batch.Delete(ownerKey(op)); err != nil {
			return err
		}
	}
	if err := batch.Commit(); err != nil {
		return err
	}
	klog.Storage.Debug().Int("cells", len(ops)).Msg("Cells spent")
	return nil
}

// LiveCells returns the cached cells locked by lock.
func (s *CellStore) LiveCells(_ context.Context, lock types.Script) ([]Cell, error) {
	lockHash := lock.Hash()
	prefix := append(append([]byte{}, cellPrefix...), lockHash[:]...)
	var out []Cell
	err := s.db.ForEach(prefix, func(_, value []byte) error {
		var c Cell
		if err := json.Unmarshal(value, &c); err != nil {
			return fmt.Errorf("decode cell: %w", err)
		}
		out = append(out, c)
		return nil
	})
	return out, err
}

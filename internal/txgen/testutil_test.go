package txgen

import (
	"testing"

	"github.com/Klingon-tech/cellwallet/internal/storage"
	"github.com/Klingon-tech/cellwallet/pkg/crypto"
	"github.com/Klingon-tech/cellwallet/pkg/tx"
	"github.com/Klingon-tech/cellwallet/pkg/types"
	"github.com/stretchr/testify/require"
)

var (
	lockA = types.NewSecpScript(types.Blake160{0xa1})
	lockB = types.NewSecpScript(types.Blake160{0xb2})
	lockC = types.NewSecpScript(types.Blake160{0xc3})

	testDeps = CellDeps{
		Secp:     tx.CellDep{OutPoint: types.OutPoint{TxHash: types.Hash{0x5e}}, DepType: tx.DepTypeDepGroup},
		Multisig: tx.CellDep{OutPoint: types.OutPoint{TxHash: types.Hash{0x5e}, Index: 1}, DepType: tx.DepTypeDepGroup},
		Dao:      tx.CellDep{OutPoint: types.OutPoint{TxHash: types.Hash{0xda}, Index: 2}, DepType: tx.DepTypeCode},
	}
)

func ckb(n uint64) uint64 {
	return n * tx.ShannonsPerCKB
}

// cell returns a plain cell of lock; id makes the out point unique.
func cell(id byte, lock types.Script, capacity uint64) Cell {
	return Cell{OutPoint: types.OutPoint{TxHash: types.Hash{id}}, Capacity: capacity, Lock: lock}
}

func newTestGenerator(t *testing.T, cells ...Cell) (*Generator, *CellStore) {
	t.Helper()
	store := NewCellStore(storage.NewMemory())
	require.NoError(t, store.Put(cells...))
	return New(store, testDeps), store
}

func secpPlaceholder() []byte {
	return (&types.WitnessArgs{Lock: make([]byte, crypto.SignatureSize)}).Serialize()
}

package tx

import (
	"github.com/Klingon-tech/cellwallet/pkg/types"
)

// Builder constructs transactions incrementally.
type Builder struct {
	tx *Transaction
}

// NewBuilder creates a new transaction builder.
func NewBuilder() *Builder {
	return &Builder{
		tx: &Transaction{Version: 0},
	}
}

// AddCellDep adds a cell dep unless an identical one is already present.
func (b *Builder) AddCellDep(dep CellDep) *Builder {
	for _, d := range b.tx.CellDeps {
		if d == dep {
			return b
		}
	}
	b.tx.CellDeps = append(b.tx.CellDeps, dep)
	return b
}

// AddHeaderDep adds a block hash whose header the scripts may read.
func (b *Builder) AddHeaderDep(h types.Hash) *Builder {
	b.tx.HeaderDeps = append(b.tx.HeaderDeps, h)
	return b
}

// AddInput adds an input with its cached previous output.
func (b *Builder) AddInput(in Input) *Builder {
	b.tx.Inputs = append(b.tx.Inputs, in)
	return b
}

// AddOutput adds an output cell.
func (b *Builder) AddOutput(out Output) *Builder {
	b.tx.Outputs = append(b.tx.Outputs, out)
	return b
}

// SetWitness sets the witness at index i, growing the array as needed.
func (b *Builder) SetWitness(i int, w []byte) *Builder {
	for len(b.tx.Witnesses) <= i {
		b.tx.Witnesses = append(b.tx.Witnesses, []byte{})
	}
	b.tx.Witnesses[i] = w
	return b
}

// Build returns the constructed transaction with a witness slot per input.
// Does NOT validate; call tx.Validate() separately.
func (b *Builder) Build() *Transaction {
	b.tx.EnsureWitnesses()
	return b.tx
}

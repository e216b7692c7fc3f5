// Package tx defines the chain transaction model, its canonical
// serialization and the helpers used to sign and price it.
package tx

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/Klingon-tech/cellwallet/pkg/types"
)

// ShannonsPerCKB is the number of base units in one CKByte.
const ShannonsPerCKB = 100_000_000

// DepType says whether a cell dep is the code cell itself or a group of
// code cells.
type DepType uint8

const (
	DepTypeCode     DepType = 0
	DepTypeDepGroup DepType = 1
)

// String returns the RPC name of the dep type.
func (d DepType) String() string {
	if d == DepTypeDepGroup {
		return "dep_group"
	}
	return "code"
}

// MarshalJSON encodes the dep type by name.
func (d DepType) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes a dep type name.
func (d *DepType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "code":
		*d = DepTypeCode
	case "dep_group":
		*d = DepTypeDepGroup
	default:
		return fmt.Errorf("unknown dep type %q", s)
	}
	return nil
}

// CellDep references a cell holding script code.
type CellDep struct {
	OutPoint types.OutPoint `json:"out_point"`
	DepType  DepType        `json:"dep_type"`
}

// Input references a cell being consumed. Capacity, Lock, Type and Data
// cache the previous output for fee computation, lock grouping and
// validation; they are never part of the on-chain encoding.
type Input struct {
	PreviousOutput types.OutPoint
	Since          uint64

	Capacity uint64
	Lock     *types.Script
	Type     *types.Script
	Data     []byte
}

// Output defines a new cell. Data is serialized as the positionally
// paired outputs_data entry.
type Output struct {
	Capacity uint64
	Lock     types.Script
	Type     *types.Script
	Data     []byte
}

// OccupiedCapacity is the minimum capacity (in shannons) the output must
// hold: one CKByte per byte of capacity field, scripts and data.
func (o Output) OccupiedCapacity() (uint64, error) {
	size := uint64(8) + o.Lock.OccupiedBytes() + uint64(len(o.Data))
	if o.Type != nil {
		size += o.Type.OccupiedBytes()
	}
	if size > math.MaxUint64/ShannonsPerCKB {
		return 0, fmt.Errorf("occupied capacity overflow")
	}
	return size * ShannonsPerCKB, nil
}

// SignatureEntry is one collected multisig signature.
type SignatureEntry struct {
	Signer    types.Blake160 `json:"signer"`
	Signature types.Bytes    `json:"signature"`
}

// Signatures maps a multisig lock hash to the signatures collected so far.
// Each slice is treated as an immutable snapshot; writers replace it.
type Signatures map[types.Hash][]SignatureEntry

// LockHashes returns the keys in byte order.
func (s Signatures) LockHashes() []types.Hash {
	keys := make([]types.Hash, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return string(keys[i][:]) < string(keys[j][:])
	})
	return keys
}

// Clone returns a copy of the map sharing the immutable entry slices.
func (s Signatures) Clone() Signatures {
	if s == nil {
		return nil
	}
	out := make(Signatures, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Transaction is a chain transaction plus the wallet's auxiliary state.
// TxHash, Fee, Description and Signatures are never serialized on-chain.
type Transaction struct {
	Version    uint32
	CellDeps   []CellDep
	HeaderDeps []types.Hash
	Inputs     []Input
	Outputs    []Output
	Witnesses  [][]byte

	TxHash      types.Hash
	Fee         uint64
	Description string
	Signatures  Signatures
}

// Hash computes the transaction hash over the raw transaction, which
// excludes witnesses.
func (tx *Transaction) Hash() types.Hash {
	return types.CKBHash(tx.SerializeRaw())
}

// TotalOutputCapacity returns the sum of all output capacities.
func (tx *Transaction) TotalOutputCapacity() (uint64, error) {
	var total uint64
	for _, out := range tx.Outputs {
		if total > math.MaxUint64-out.Capacity {
			return 0, fmt.Errorf("output capacity overflow")
		}
		total += out.Capacity
	}
	return total, nil
}

// TotalInputCapacity returns the sum of the cached input capacities.
func (tx *Transaction) TotalInputCapacity() (uint64, error) {
	var total uint64
	for _, in := range tx.Inputs {
		if total > math.MaxUint64-in.Capacity {
			return 0, fmt.Errorf("input capacity overflow")
		}
		total += in.Capacity
	}
	return total, nil
}

// EnsureWitnesses pads the witness array with empty entries so every input
// has one.
func (tx *Transaction) EnsureWitnesses() {
	for len(tx.Witnesses) < len(tx.Inputs) {
		tx.Witnesses = append(tx.Witnesses, []byte{})
	}
}

// Clone returns a deep copy of the transaction.
func (tx *Transaction) Clone() *Transaction {
	out := &Transaction{
		Version:     tx.Version,
		CellDeps:    append([]CellDep(nil), tx.CellDeps...),
		HeaderDeps:  append([]types.Hash(nil), tx.HeaderDeps...),
		Inputs:      make([]Input, len(tx.Inputs)),
		Outputs:     make([]Output, len(tx.Outputs)),
		Witnesses:   make([][]byte, len(tx.Witnesses)),
		TxHash:      tx.TxHash,
		Fee:         tx.Fee,
		Description: tx.Description,
		Signatures:  tx.Signatures.Clone(),
	}
	for i, in := range tx.Inputs {
		in.Lock = cloneScript(in.Lock)
		in.Type = cloneScript(in.Type)
		in.Data = append([]byte(nil), in.Data...)
		out.Inputs[i] = in
	}
	for i, o := range tx.Outputs {
		o.Lock = o.Lock.Clone()
		o.Type = cloneScript(o.Type)
		o.Data = append([]byte(nil), o.Data...)
		out.Outputs[i] = o
	}
	for i, w := range tx.Witnesses {
		out.Witnesses[i] = append([]byte{}, w...)
	}
	return out
}

func cloneScript(s *types.Script) *types.Script {
	if s == nil {
		return nil
	}
	c := s.Clone()
	return &c
}

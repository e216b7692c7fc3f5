package tx

import (
	"github.com/Klingon-tech/cellwallet/pkg/types"
)

// Serialized sizes of the fixed molecule structs.
const (
	CellDepSize = types.OutPointSize + 1
	InputSize   = 8 + types.OutPointSize
)

// Serialize returns the molecule struct: out_point(36) | dep_type(1).
func (d CellDep) Serialize() []byte {
	return append(d.OutPoint.Serialize(), byte(d.DepType))
}

// Serialize returns the molecule struct: since(8 LE) | previous_output(36).
func (in Input) Serialize() []byte {
	return append(types.PackUint64(in.Since), in.PreviousOutput.Serialize()...)
}

// Serialize returns the CellOutput table: capacity, lock, type (ScriptOpt).
// Data is not part of the cell output; it is serialized in outputs_data.
func (o Output) Serialize() []byte {
	return types.SerializeTable([][]byte{
		types.PackUint64(o.Capacity),
		o.Lock.Serialize(),
		types.SerializeScriptOpt(o.Type),
	})
}

// SerializeRaw returns the RawTransaction table: version, cell_deps,
// header_deps, inputs, outputs, outputs_data.
func (tx *Transaction) SerializeRaw() []byte {
	deps := make([][]byte, len(tx.CellDeps))
	for i, d := range tx.CellDeps {
		deps[i] = d.Serialize()
	}
	headers := make([][]byte, len(tx.HeaderDeps))
	for i, h := range tx.HeaderDeps {
		headers[i] = h.Bytes()
	}
	inputs := make([][]byte, len(tx.Inputs))
	for i, in := range tx.Inputs {
		inputs[i] = in.Serialize()
	}
	outputs := make([][]byte, len(tx.Outputs))
	outputsData := make([][]byte, len(tx.Outputs))
	for i, o := range tx.Outputs {
		outputs[i] = o.Serialize()
		outputsData[i] = types.SerializeBytes(o.Data)
	}

	return types.SerializeTable([][]byte{
		types.PackUint32(tx.Version),
		types.SerializeFixVec(deps),
		types.SerializeFixVec(headers),
		types.SerializeFixVec(inputs),
		types.SerializeDynVec(outputs),
		types.SerializeDynVec(outputsData),
	})
}

// Serialize returns the full Transaction table: raw, witnesses.
func (tx *Transaction) Serialize() []byte {
	witnesses := make([][]byte, len(tx.Witnesses))
	for i, w := range tx.Witnesses {
		witnesses[i] = types.SerializeBytes(w)
	}
	return types.SerializeTable([][]byte{
		tx.SerializeRaw(),
		types.SerializeDynVec(witnesses),
	})
}

// SerializedSize is the size the node charges fees on: the serialized
// transaction plus the 4-byte offset it occupies inside a block's
// transaction vector.
func (tx *Transaction) SerializedSize() uint64 {
	return uint64(len(tx.Serialize())) + 4
}

package tx

import (
	"encoding/json"
	"fmt"

	"github.com/Klingon-tech/cellwallet/pkg/types"
)

// The JSON form follows the node RPC layout (hex quantities, snake_case).
// Auxiliary wallet fields ride alongside and are dropped by MarshalRPC.

type inputJSON struct {
	Since          types.Uint64   `json:"since"`
	PreviousOutput types.OutPoint `json:"previous_output"`

	Capacity *types.Uint64 `json:"capacity,omitempty"`
	Lock     *types.Script `json:"lock,omitempty"`
	Type     *types.Script `json:"type,omitempty"`
	Data     types.Bytes   `json:"data,omitempty"`
}

type outputJSON struct {
	Capacity types.Uint64  `json:"capacity"`
	Lock     types.Script  `json:"lock"`
	Type     *types.Script `json:"type"`
}

type rawJSON struct {
	Version     types.Uint32  `json:"version"`
	CellDeps    []CellDep     `json:"cell_deps"`
	HeaderDeps  []types.Hash  `json:"header_deps"`
	Inputs      []inputJSON   `json:"inputs"`
	Outputs     []outputJSON  `json:"outputs"`
	OutputsData []types.Bytes `json:"outputs_data"`
	Witnesses   []types.Bytes `json:"witnesses"`
}

type transactionJSON struct {
	rawJSON
	Hash        *types.Hash  `json:"hash,omitempty"`
	Fee         types.Uint64 `json:"fee,omitempty"`
	Description string       `json:"description,omitempty"`
	Signatures  Signatures   `json:"signatures,omitempty"`
}

func (tx *Transaction) toRawJSON(withCache bool) rawJSON {
	j := rawJSON{
		Version:     types.Uint32(tx.Version),
		CellDeps:    tx.CellDeps,
		HeaderDeps:  tx.HeaderDeps,
		Inputs:      make([]inputJSON, len(tx.Inputs)),
		Outputs:     make([]outputJSON, len(tx.Outputs)),
		OutputsData: make([]types.Bytes, len(tx.Outputs)),
		Witnesses:   make([]types.Bytes, len(tx.Witnesses)),
	}
	if j.CellDeps == nil {
		j.CellDeps = []CellDep{}
	}
	if j.HeaderDeps == nil {
		j.HeaderDeps = []types.Hash{}
	}
	for i, in := range tx.Inputs {
		ij := inputJSON{Since: types.Uint64(in.Since), PreviousOutput: in.PreviousOutput}
		if withCache {
			c := types.Uint64(in.Capacity)
			ij.Capacity = &c
			ij.Lock = in.Lock
			ij.Type = in.Type
			ij.Data = in.Data
		}
		j.Inputs[i] = ij
	}
	for i, o := range tx.Outputs {
		j.Outputs[i] = outputJSON{Capacity: types.Uint64(o.Capacity), Lock: o.Lock, Type: o.Type}
		data := o.Data
		if data == nil {
			data = []byte{}
		}
		j.OutputsData[i] = data
	}
	for i, w := range tx.Witnesses {
		j.Witnesses[i] = w
	}
	return j
}

// MarshalJSON encodes the transaction with its cached input data and
// auxiliary fields, for export between signer sessions.
func (tx *Transaction) MarshalJSON() ([]byte, error) {
	j := transactionJSON{
		rawJSON:     tx.toRawJSON(true),
		Fee:         types.Uint64(tx.Fee),
		Description: tx.Description,
		Signatures:  tx.Signatures,
	}
	if !tx.TxHash.IsZero() {
		h := tx.TxHash
		j.Hash = &h
	}
	return json.Marshal(j)
}

// MarshalRPC encodes only the on-chain fields, as send_transaction expects.
func (tx *Transaction) MarshalRPC() ([]byte, error) {
	return json.Marshal(tx.toRawJSON(false))
}

// UnmarshalJSON decodes either form produced above, or a node RPC
// transaction.
func (tx *Transaction) UnmarshalJSON(data []byte) error {
	var j transactionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	if len(j.OutputsData) != len(j.Outputs) {
		return fmt.Errorf("outputs_data has %d entries for %d outputs", len(j.OutputsData), len(j.Outputs))
	}

	*tx = Transaction{
		Version:     uint32(j.Version),
		CellDeps:    j.CellDeps,
		HeaderDeps:  j.HeaderDeps,
		Inputs:      make([]Input, len(j.Inputs)),
		Outputs:     make([]Output, len(j.Outputs)),
		Witnesses:   make([][]byte, len(j.Witnesses)),
		Fee:         uint64(j.Fee),
		Description: j.Description,
		Signatures:  j.Signatures,
	}
	if j.Hash != nil {
		tx.TxHash = *j.Hash
	}
	for i, ij := range j.Inputs {
		in := Input{
			PreviousOutput: ij.PreviousOutput,
			Since:          uint64(ij.Since),
			Lock:           ij.Lock,
			Type:           ij.Type,
			Data:           ij.Data,
		}
		if ij.Capacity != nil {
			in.Capacity = uint64(*ij.Capacity)
		}
		tx.Inputs[i] = in
	}
	for i, oj := range j.Outputs {
		tx.Outputs[i] = Output{
			Capacity: uint64(oj.Capacity),
			Lock:     oj.Lock,
			Type:     oj.Type,
			Data:     j.OutputsData[i],
		}
	}
	for i, w := range j.Witnesses {
		tx.Witnesses[i] = w
	}
	return nil
}

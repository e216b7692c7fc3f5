package types

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// OutPointSize is the serialized size of an OutPoint.
const OutPointSize = HashSize + 4

// OutPoint references a specific output (cell) in a transaction.
type OutPoint struct {
	TxHash Hash   `json:"tx_hash"`
	Index  uint32 `json:"index"`
}

type outPointJSON struct {
	TxHash Hash   `json:"tx_hash"`
	Index  Uint32 `json:"index"`
}

// IsZero returns true if the outpoint has a zero hash and zero index.
func (o OutPoint) IsZero() bool {
	return o.TxHash.IsZero() && o.Index == 0
}

// String returns "txhash:index".
func (o OutPoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxHash.String(), o.Index)
}

// Serialize returns the molecule struct encoding: hash(32) | index(4 LE).
func (o OutPoint) Serialize() []byte {
	out := make([]byte, OutPointSize)
	copy(out, o.TxHash[:])
	binary.LittleEndian.PutUint32(out[HashSize:], o.Index)
	return out
}

// Compare orders outpoints by hash bytes, then index.
func (o OutPoint) Compare(other OutPoint) int {
	if c := bytes.Compare(o.TxHash[:], other.TxHash[:]); c != 0 {
		return c
	}
	switch {
	case o.Index < other.Index:
		return -1
	case o.Index > other.Index:
		return 1
	}
	return 0
}

// MarshalJSON encodes the outpoint in node RPC form.
func (o OutPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(outPointJSON{TxHash: o.TxHash, Index: Uint32(o.Index)})
}

// UnmarshalJSON decodes an outpoint in node RPC form.
func (o *OutPoint) UnmarshalJSON(data []byte) error {
	var j outPointJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	o.TxHash = j.TxHash
	o.Index = uint32(j.Index)
	return nil
}

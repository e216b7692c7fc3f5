package types

import (
	"bytes"
	"fmt"
)

// WitnessArgs is the structured witness carried by the first input of each
// lock group. A nil field is absent; a non-nil empty slice is present but
// empty.
type WitnessArgs struct {
	Lock       []byte
	InputType  []byte
	OutputType []byte
}

// EmptyWitnessArgs returns the all-absent witness structure. It serializes to
// a 16-byte table and is distinct from an absent witness (zero bytes).
func EmptyWitnessArgs() *WitnessArgs {
	return &WitnessArgs{}
}

// IsEmpty reports whether every field is absent.
func (w *WitnessArgs) IsEmpty() bool {
	return w.Lock == nil && w.InputType == nil && w.OutputType == nil
}

// Serialize returns the molecule table encoding.
func (w *WitnessArgs) Serialize() []byte {
	return SerializeTable([][]byte{
		SerializeBytesOpt(w.Lock),
		SerializeBytesOpt(w.InputType),
		SerializeBytesOpt(w.OutputType),
	})
}

// Clone returns a deep copy.
func (w *WitnessArgs) Clone() *WitnessArgs {
	return &WitnessArgs{
		Lock:       cloneOpt(w.Lock),
		InputType:  cloneOpt(w.InputType),
		OutputType: cloneOpt(w.OutputType),
	}
}

// Equal compares field by field, distinguishing absent from empty.
func (w *WitnessArgs) Equal(other *WitnessArgs) bool {
	return optEqual(w.Lock, other.Lock) &&
		optEqual(w.InputType, other.InputType) &&
		optEqual(w.OutputType, other.OutputType)
}

// DecodeWitnessArgs parses a serialized WitnessArgs.
func DecodeWitnessArgs(data []byte) (*WitnessArgs, error) {
	fields, err := DecodeTable(data)
	if err != nil {
		return nil, err
	}
	if len(fields) != 3 {
		return nil, fmt.Errorf("%w: witness args has %d fields", ErrMolecule, len(fields))
	}
	var w WitnessArgs
	if w.Lock, err = DecodeBytesOpt(fields[0]); err != nil {
		return nil, fmt.Errorf("witness lock: %w", err)
	}
	if w.InputType, err = DecodeBytesOpt(fields[1]); err != nil {
		return nil, fmt.Errorf("witness input type: %w", err)
	}
	if w.OutputType, err = DecodeBytesOpt(fields[2]); err != nil {
		return nil, fmt.Errorf("witness output type: %w", err)
	}
	return &w, nil
}

func cloneOpt(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func optEqual(a, b []byte) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return bytes.Equal(a, b)
}

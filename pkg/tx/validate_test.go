package tx

import (
	"errors"
	"testing"

	"github.com/Klingon-tech/cellwallet/pkg/types"
)

func TestValidate_Valid(t *testing.T) {
	if err := testTx(t).Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Transaction)
		want   error
	}{
		{"no inputs", func(tx *Transaction) { tx.Inputs = nil }, ErrNoInputs},
		{"no outputs", func(tx *Transaction) { tx.Outputs = nil }, ErrNoOutputs},
		{"duplicate input", func(tx *Transaction) {
			tx.Inputs = append(tx.Inputs, tx.Inputs[0])
			tx.Witnesses = append(tx.Witnesses, []byte{})
		}, ErrDuplicateInput},
		{"missing witness", func(tx *Transaction) { tx.Witnesses = nil }, ErrWitnessCount},
		{"output below occupied", func(tx *Transaction) { tx.Outputs[0].Capacity = 60 * ShannonsPerCKB }, ErrInsufficientCells},
		{"outputs exceed inputs", func(tx *Transaction) { tx.Outputs[0].Capacity = 300 * ShannonsPerCKB }, ErrNegativeFee},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := testTx(t)
			tt.mutate(tx)
			if err := tx.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidate_UnknownInputCapacity(t *testing.T) {
	tx := testTx(t)
	tx.Inputs[0].Capacity = 0
	tx.Outputs[0].Capacity = 1000 * ShannonsPerCKB
	tx.Outputs[0].Lock = types.NewSecpScript(types.Blake160{})
	if err := tx.Validate(); err != nil {
		t.Errorf("Validate() without input capacities = %v, want nil", err)
	}
}

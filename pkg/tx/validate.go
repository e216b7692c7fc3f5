package tx

import (
	"errors"
	"fmt"
)

// Limits enforced before a transaction leaves the wallet.
const (
	MaxTxInputs  = 1500
	MaxTxOutputs = 1500
)

// Validation errors.
var (
	ErrNoInputs          = errors.New("transaction has no inputs")
	ErrNoOutputs         = errors.New("transaction has no outputs")
	ErrDuplicateInput    = errors.New("duplicate input")
	ErrOutputOverflow    = errors.New("output capacities overflow")
	ErrInsufficientCells = errors.New("output capacity below occupied capacity")
	ErrTooManyInputs     = errors.New("too many inputs")
	ErrTooManyOutputs    = errors.New("too many outputs")
	ErrWitnessCount      = errors.New("fewer witnesses than inputs")
	ErrNegativeFee       = errors.New("outputs exceed inputs")
)

// Validate checks transaction structure: non-empty inputs and outputs, no
// duplicate inputs, every output holding at least its occupied capacity and
// a witness slot per input. When every input carries its cached capacity
// and none is a DAO cell, outputs must not exceed inputs.
func (tx *Transaction) Validate() error {
	if len(tx.Inputs) == 0 {
		return ErrNoInputs
	}
	if len(tx.Outputs) == 0 {
		return ErrNoOutputs
	}
	if len(tx.Inputs) > MaxTxInputs {
		return fmt.Errorf("%w: %d inputs, max %d", ErrTooManyInputs, len(tx.Inputs), MaxTxInputs)
	}
	if len(tx.Outputs) > MaxTxOutputs {
		return fmt.Errorf("%w: %d outputs, max %d", ErrTooManyOutputs, len(tx.Outputs), MaxTxOutputs)
	}
	if len(tx.Witnesses) < len(tx.Inputs) {
		return fmt.Errorf("%w: %d witnesses, %d inputs", ErrWitnessCount, len(tx.Witnesses), len(tx.Inputs))
	}

	seen := make(map[string]bool, len(tx.Inputs))
	for i, in := range tx.Inputs {
		key := in.PreviousOutput.String()
		if seen[key] {
			return fmt.Errorf("input %d: %w", i, ErrDuplicateInput)
		}
		seen[key] = true
	}

	for i, out := range tx.Outputs {
		occupied, err := out.OccupiedCapacity()
		if err != nil {
			return fmt.Errorf("output %d: %w", i, err)
		}
		if out.Capacity < occupied {
			return fmt.Errorf("output %d: %w: %d < %d", i, ErrInsufficientCells, out.Capacity, occupied)
		}
	}
	totalOut, err := tx.TotalOutputCapacity()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOutputOverflow, err)
	}

	// DAO withdrawals pay compensation on top of their inputs.
	for _, in := range tx.Inputs {
		if in.Capacity == 0 || (in.Type != nil && in.Type.IsDao()) {
			return nil
		}
	}
	totalIn, err := tx.TotalInputCapacity()
	if err != nil {
		return err
	}
	if totalOut > totalIn {
		return fmt.Errorf("%w: out %d, in %d", ErrNegativeFee, totalOut, totalIn)
	}
	return nil
}

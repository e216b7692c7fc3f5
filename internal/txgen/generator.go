// Package txgen builds unsigned transactions: it selects input cells,
// prices the transaction and adds change, for plain transfers, DAO deposits
// and withdrawals, and multisig spends.
package txgen

import (
	"errors"
	"fmt"

	klog "github.com/Klingon-tech/cellwallet/internal/log"
	"github.com/Klingon-tech/cellwallet/internal/multisig"
	"github.com/Klingon-tech/cellwallet/internal/txerr"
	"github.com/Klingon-tech/cellwallet/pkg/crypto"
	"github.com/Klingon-tech/cellwallet/pkg/tx"
	"github.com/Klingon-tech/cellwallet/pkg/types"
)

var (
	// ErrNoTargets is returned when a request has no outputs.
	ErrNoTargets = errors.New("no target outputs")
	// ErrBelowMinimum is returned when a requested output cannot hold its
	// own lock, type and data.
	ErrBelowMinimum = errors.New("output capacity below minimum")
	// ErrUnknownLock is returned when an input's lock is neither a single
	// key lock nor a multisig lock the request knows.
	ErrUnknownLock = errors.New("cannot size witness for lock")
)

// CellDeps are the system script cells a transaction may need.
type CellDeps struct {
	Secp     tx.CellDep
	Multisig tx.CellDep
	Dao      tx.CellDep
}

// Target is a requested output.
type Target struct {
	Lock     types.Script
	Capacity uint64
}

// TargetFromAddress parses an address into a target.
func TargetFromAddress(network types.Network, address string, capacity uint64) (Target, error) {
	addr, err := types.ParseAddressOn(network, address)
	if err != nil {
		return Target{}, err
	}
	return Target{Lock: addr.Script, Capacity: capacity}, nil
}

func (t Target) output() tx.Output {
	return tx.Output{Capacity: t.Capacity, Lock: t.Lock.Clone()}
}

// Generator builds transactions from the cells of a CellSource.
type Generator struct {
	cells CellSource
	deps  CellDeps
}

// New creates a generator.
func New(cells CellSource, deps CellDeps) *Generator {
	return &Generator{cells: cells, deps: deps}
}

// lockSizer maps lock scripts to the size of their signed witness lock.
type lockSizer map[types.Hash]int

func newLockSizer(configs ...*multisig.Config) lockSizer {
	s := make(lockSizer, len(configs))
	for _, cfg := range configs {
		s[cfg.LockHash()] = cfg.WitnessLockSize()
	}
	return s
}

func (s lockSizer) size(lock types.Script) (int, error) {
	if n, ok := s[lock.Hash()]; ok {
		return n, nil
	}
	if lock.IsSecp() && len(lock.Args) == types.Blake160Size {
		return crypto.SignatureSize, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownLock, lock.Hash())
}

// checkOutput rejects an output below its occupied capacity.
func checkOutput(o tx.Output) error {
	occupied, err := o.OccupiedCapacity()
	if err != nil {
		return err
	}
	if o.Capacity < occupied {
		return fmt.Errorf("%w: %d < %d", ErrBelowMinimum, o.Capacity, occupied)
	}
	return nil
}

func minimumCapacity(o tx.Output) uint64 {
	occupied, _ := o.OccupiedCapacity()
	return occupied
}

// finalize adds the cell deps the inputs and outputs need and sizes the
// first witness of every lock group to its signed length. Fields already
// present in a first witness are kept.
func (g *Generator) finalize(t *tx.Transaction, sizer lockSizer) error {
	var deps []tx.CellDep
	addDep := func(d tx.CellDep) {
		for _, have := range deps {
			if have == d {
				return
			}
		}
		deps = append(deps, d)
	}
	usesDao := false
	for i, in := range t.Inputs {
		if in.Lock == nil {
			return fmt.Errorf("input %d: %w", i, tx.ErrMissingInputLock)
		}
		switch {
		case in.Lock.IsSecp():
			addDep(g.deps.Secp)
		case in.Lock.IsMultisig():
			addDep(g.deps.Multisig)
		}
		if in.Type != nil && in.Type.IsDao() {
			usesDao = true
		}
	}
	for _, out := range t.Outputs {
		if out.Type != nil && out.Type.IsDao() {
			usesDao = true
		}
	}
	if usesDao {
		addDep(g.deps.Dao)
	}
	t.CellDeps = deps

	groups, err := t.LockGroups(len(t.Inputs))
	if err != nil {
		return err
	}
	t.EnsureWitnesses()
	for _, grp := range groups {
		n, err := sizer.size(grp.Lock)
		if err != nil {
			return err
		}
		first := types.EmptyWitnessArgs()
		if wa, err := types.DecodeWitnessArgs(t.Witnesses[grp.First()]); err == nil {
			first = wa
		}
		first.Lock = make([]byte, n)
		t.Witnesses[grp.First()] = first.Serialize()
	}
	return nil
}

// seal records the fee and hash and validates the result.
func seal(t *tx.Transaction, fee uint64) (*tx.Transaction, error) {
	t.Fee = fee
	if err := t.Validate(); err != nil {
		return nil, err
	}
	t.TxHash = t.Hash()
	return t, nil
}

// fund adds cells from candidates to base until its outputs and the fee are
// covered with either no change or a change cell of at least its minimum
// capacity. Inputs already in base count toward the total.
func (g *Generator) fund(base *tx.Transaction, candidates []Cell, change types.Script, opt FeeOption, sizer lockSizer) (*tx.Transaction, error) {
	need, err := base.TotalOutputCapacity()
	if err != nil {
		return nil, err
	}
	have, err := base.TotalInputCapacity()
	if err != nil {
		return nil, err
	}

	// covered becomes true once inputs pay for outputs and fee, so running
	// out of cells after that is a change problem.
	covered := false
	attempt := func(draft *tx.Transaction) (*tx.Transaction, error) {
		plain := draft.Clone()
		if err := g.finalize(plain, sizer); err != nil {
			return nil, err
		}
		fee, err := opt.feeFor(plain)
		if err != nil {
			return nil, err
		}
		cost, ok := addCapacity(need, fee)
		if !ok {
			return nil, fmt.Errorf("capacity overflow")
		}
		if have < cost {
			return nil, nil
		}
		covered = true
		if have == cost {
			return seal(plain, fee)
		}

		withChange := draft.Clone()
		changeOut := tx.Output{Lock: change.Clone()}
		withChange.Outputs = append(withChange.Outputs, changeOut)
		if err := g.finalize(withChange, sizer); err != nil {
			return nil, err
		}
		fee, err = opt.feeFor(withChange)
		if err != nil {
			return nil, err
		}
		cost, ok = addCapacity(need, fee, minimumCapacity(changeOut))
		if !ok || have < cost {
			return nil, nil
		}
		withChange.Outputs[len(withChange.Outputs)-1].Capacity = have - need - fee
		return seal(withChange, fee)
	}

	draft := base.Clone()
	if len(draft.Inputs) > 0 {
		if t, err := attempt(draft); t != nil || err != nil {
			return t, err
		}
	}
	for _, c := range candidates {
		draft.Inputs = append(draft.Inputs, c.Input(0))
		total, ok := addCapacity(have, c.Capacity)
		if !ok {
			return nil, fmt.Errorf("input capacity overflow")
		}
		have = total
		t, err := attempt(draft)
		if err != nil {
			return nil, err
		}
		if t != nil {
			klog.TxGen.Debug().
				Int("inputs", len(t.Inputs)).
				Int("outputs", len(t.Outputs)).
				Uint64("fee", t.Fee).
				Msg("Inputs gathered")
			return t, nil
		}
	}

	if covered {
		return nil, txerr.New(txerr.CapacityNotEnoughForChange,
			"inputs of %d shannons cover %d plus fee but leave change below the minimum cell", have, need)
	}
	return nil, txerr.New(txerr.CapacityNotEnough, "have %d shannons, need %d plus fee", have, need)
}

// spendAll spends every input of base and gives the last output whatever
// remains after the other outputs and the fee. reserve, when set, is
// appended as a change output of fixed capacity.
func (g *Generator) spendAll(base *tx.Transaction, reserve *tx.Output, opt FeeOption, sizer lockSizer) (*tx.Transaction, error) {
	if len(base.Inputs) == 0 {
		return nil, txerr.New(txerr.CapacityNotEnough, "no spendable cells")
	}
	if len(base.Outputs) == 0 {
		return nil, ErrNoTargets
	}
	t := base.Clone()
	last := len(t.Outputs) - 1
	t.Outputs[last].Capacity = 0
	if reserve != nil {
		if err := checkOutput(*reserve); err != nil {
			return nil, err
		}
		t.Outputs = append(t.Outputs, *reserve)
	}
	if err := g.finalize(t, sizer); err != nil {
		return nil, err
	}
	fee, err := opt.feeFor(t)
	if err != nil {
		return nil, err
	}
	have, err := t.TotalInputCapacity()
	if err != nil {
		return nil, err
	}
	committed, err := t.TotalOutputCapacity()
	if err != nil {
		return nil, err
	}
	cost, ok := addCapacity(committed, fee)
	if !ok || have < cost {
		return nil, txerr.New(txerr.CapacityNotEnough, "have %d shannons, need %d plus fee %d", have, committed, fee)
	}
	t.Outputs[last].Capacity = have - cost
	if err := checkOutput(t.Outputs[last]); err != nil {
		return nil, txerr.Wrap(txerr.CapacityNotEnough, err, "remainder too small")
	}
	return seal(t, fee)
}

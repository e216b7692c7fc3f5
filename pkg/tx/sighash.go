package tx

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/cellwallet/pkg/types"
)

// ErrMissingInputLock is returned when an input lacks its cached lock script.
var ErrMissingInputLock = errors.New("input has no cached lock script")

// LockGroup is the set of inputs sharing one lock script. Indices are in
// input order; the first index carries the group's witness.
type LockGroup struct {
	LockHash types.Hash
	Lock     types.Script
	Indices  []int
}

// First returns the input index that carries the group's signature.
func (g LockGroup) First() int {
	return g.Indices[0]
}

// LockGroups groups the first n inputs by lock hash, in order of first
// appearance.
func (tx *Transaction) LockGroups(n int) ([]LockGroup, error) {
	if n > len(tx.Inputs) {
		n = len(tx.Inputs)
	}
	var groups []LockGroup
	pos := make(map[types.Hash]int)
	for i := 0; i < n; i++ {
		lock := tx.Inputs[i].Lock
		if lock == nil {
			return nil, fmt.Errorf("input %d: %w", i, ErrMissingInputLock)
		}
		h := lock.Hash()
		if p, ok := pos[h]; ok {
			groups[p].Indices = append(groups[p].Indices, i)
			continue
		}
		pos[h] = len(groups)
		groups = append(groups, LockGroup{LockHash: h, Lock: lock.Clone(), Indices: []int{i}})
	}
	return groups, nil
}

// GroupWitnesses is a lock group's witnesses prepared for signing.
type GroupWitnesses struct {
	// First is the structured witness of the group's first input.
	First *types.WitnessArgs
	// Rest holds the normalized witnesses of the other inputs in the group.
	Rest [][]byte
	// Extra holds witnesses beyond the input count, which every group
	// commits to.
	Extra [][]byte
}

// PrepareGroupWitnesses normalizes a group's witnesses. The first becomes a
// WitnessArgs (the empty one when absent or not decodable). The others
// become empty bytes when they decode to an all-absent WitnessArgs and are
// kept as-is otherwise.
func (tx *Transaction) PrepareGroupWitnesses(g LockGroup) *GroupWitnesses {
	tx.EnsureWitnesses()

	gw := &GroupWitnesses{First: types.EmptyWitnessArgs()}
	if wa, err := types.DecodeWitnessArgs(tx.Witnesses[g.First()]); err == nil {
		gw.First = wa
	}
	for _, idx := range g.Indices[1:] {
		raw := tx.Witnesses[idx]
		if wa, err := types.DecodeWitnessArgs(raw); err == nil && wa.IsEmpty() {
			gw.Rest = append(gw.Rest, []byte{})
			continue
		}
		gw.Rest = append(gw.Rest, append([]byte{}, raw...))
	}
	for i := len(tx.Inputs); i < len(tx.Witnesses); i++ {
		gw.Extra = append(gw.Extra, tx.Witnesses[i])
	}
	return gw
}

// Placeholder returns the witness list hashed for signing: the first witness
// with its lock replaced by lockLen zero bytes, then the rest of the group,
// then the extra witnesses.
func (gw *GroupWitnesses) Placeholder(lockLen int) [][]byte {
	first := gw.First.Clone()
	first.Lock = make([]byte, lockLen)

	out := make([][]byte, 0, 1+len(gw.Rest)+len(gw.Extra))
	out = append(out, first.Serialize())
	out = append(out, gw.Rest...)
	return append(out, gw.Extra...)
}

// SigningMessage computes the sighash-all message:
// hash(txHash | for each witness: len(u64 LE) | witness).
func SigningMessage(txHash types.Hash, witnesses [][]byte) types.Hash {
	parts := make([][]byte, 0, 1+2*len(witnesses))
	parts = append(parts, txHash[:])
	for _, w := range witnesses {
		parts = append(parts, types.PackUint64(uint64(len(w))), w)
	}
	return types.CKBHash(parts...)
}

// ApplyGroupWitness writes the signed first witness (with lock) and the
// normalized remainder back into the transaction.
func (tx *Transaction) ApplyGroupWitness(g LockGroup, gw *GroupWitnesses, lock []byte) {
	first := gw.First.Clone()
	first.Lock = lock
	tx.Witnesses[g.First()] = first.Serialize()
	for i, idx := range g.Indices[1:] {
		tx.Witnesses[idx] = gw.Rest[i]
	}
}

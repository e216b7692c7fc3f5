package multisig

import (
	"bytes"
	"fmt"
	"sort"

	klog "github.com/Klingon-tech/cellwallet/internal/log"
	"github.com/Klingon-tech/cellwallet/internal/txerr"
	"github.com/Klingon-tech/cellwallet/pkg/crypto"
	"github.com/Klingon-tech/cellwallet/pkg/tx"
	"github.com/Klingon-tech/cellwallet/pkg/types"
)

// State is the signing progress of one multisig lock group.
type State int

const (
	Unsigned State = iota
	PartiallySigned
	Signed
)

func (s State) String() string {
	switch s {
	case PartiallySigned:
		return "partially-signed"
	case Signed:
		return "signed"
	}
	return "unsigned"
}

// Coordinator tracks multisig signatures for a transaction. All state lives
// in the transaction's Signatures map so it survives export and import; the
// coordinator only holds the configs.
type Coordinator struct {
	configs map[types.Hash]*Config
}

// NewCoordinator creates a coordinator for the given configs.
func NewCoordinator(configs ...*Config) *Coordinator {
	c := &Coordinator{configs: make(map[types.Hash]*Config, len(configs))}
	for _, cfg := range configs {
		c.configs[cfg.LockHash()] = cfg
	}
	return c
}

// Config returns the config of a lock hash.
func (c *Coordinator) Config(lockHash types.Hash) (*Config, bool) {
	cfg, ok := c.configs[lockHash]
	return cfg, ok
}

// Configs returns the known configs.
func (c *Coordinator) Configs() []*Config {
	out := make([]*Config, 0, len(c.configs))
	for _, h := range sortedHashes(c.configs) {
		out = append(out, c.configs[h])
	}
	return out
}

func (c *Coordinator) config(lockHash types.Hash) (*Config, error) {
	cfg, ok := c.configs[lockHash]
	if !ok {
		return nil, txerr.New(txerr.MultisigConfigNeedError, "no multisig config for lock %s", lockHash)
	}
	return cfg, nil
}

// State reports the signing state of a lock group.
func (c *Coordinator) State(t *tx.Transaction, lockHash types.Hash) (State, error) {
	cfg, err := c.config(lockHash)
	if err != nil {
		return Unsigned, err
	}
	return stateOf(cfg, t.Signatures[lockHash]), nil
}

func stateOf(cfg *Config, entries []tx.SignatureEntry) State {
	if len(entries) == 0 {
		return Unsigned
	}
	if len(entries) < int(cfg.M) {
		return PartiallySigned
	}
	for _, required := range cfg.Blake160s[:cfg.R] {
		if !hasSigner(entries, required) {
			return PartiallySigned
		}
	}
	return Signed
}

func hasSigner(entries []tx.SignatureEntry, signer types.Blake160) bool {
	for _, e := range entries {
		if e.Signer == signer {
			return true
		}
	}
	return false
}

// AddSignature records a signature for a lock group. The signer must be in
// the config and must not have signed yet; a fully signed group accepts no
// more signatures. The group's slice is replaced, never mutated.
func (c *Coordinator) AddSignature(t *tx.Transaction, lockHash types.Hash, signer types.Blake160, sig []byte) (State, error) {
	cfg, err := c.config(lockHash)
	if err != nil {
		return Unsigned, err
	}
	if len(sig) != crypto.SignatureSize {
		return Unsigned, fmt.Errorf("%w: %d bytes", crypto.ErrInvalidSignature, len(sig))
	}
	if cfg.SignerIndex(signer) < 0 {
		return Unsigned, txerr.New(txerr.NoMatchAddressForSign, "%s is not a signer of %s", signer, lockHash)
	}

	existing := t.Signatures[lockHash]
	state := stateOf(cfg, existing)
	if state == Signed {
		return state, txerr.New(txerr.NoMatchAddressForSign, "lock %s is already fully signed", lockHash)
	}
	if hasSigner(existing, signer) {
		return state, txerr.New(txerr.NoMatchAddressForSign, "%s already signed %s", signer, lockHash)
	}

	next := make([]tx.SignatureEntry, len(existing), len(existing)+1)
	copy(next, existing)
	next = append(next, tx.SignatureEntry{Signer: signer, Signature: append([]byte{}, sig...)})

	sigs := t.Signatures.Clone()
	if sigs == nil {
		sigs = make(tx.Signatures)
	}
	sigs[lockHash] = next
	t.Signatures = sigs

	state = stateOf(cfg, next)
	klog.Multisig.Debug().
		Str("lock_hash", lockHash.String()).
		Str("signer", signer.String()).
		Int("collected", len(next)).
		Uint8("m", cfg.M).
		Str("state", state.String()).
		Msg("Signature added")
	return state, nil
}

// Assemble builds the witness lock: the script followed by m signatures in
// config order. The first r signers are always included.
func (c *Coordinator) Assemble(t *tx.Transaction, lockHash types.Hash) ([]byte, error) {
	cfg, err := c.config(lockHash)
	if err != nil {
		return nil, err
	}
	entries := t.Signatures[lockHash]
	if stateOf(cfg, entries) != Signed {
		return nil, txerr.New(txerr.TransactionNotFullySigned,
			"lock %s has %d of %d signatures", lockHash, len(entries), cfg.M)
	}

	lock := cfg.Script()
	taken := 0
	for _, signer := range cfg.Blake160s {
		if taken == int(cfg.M) {
			break
		}
		for _, e := range entries {
			if e.Signer == signer {
				lock = append(lock, e.Signature...)
				taken++
				break
			}
		}
	}
	return lock, nil
}

// Message computes the signing message of a lock group.
func (c *Coordinator) Message(t *tx.Transaction, lockHash types.Hash) (types.Hash, error) {
	cfg, err := c.config(lockHash)
	if err != nil {
		return types.Hash{}, err
	}
	return GroupMessage(t, lockHash, cfg.WitnessLockSize())
}

// GroupMessage computes the sighash of the lock group with the given lock
// hash, using a zero placeholder of lockSize bytes. t is not modified.
func GroupMessage(t *tx.Transaction, lockHash types.Hash, lockSize int) (types.Hash, error) {
	work := t.Clone()
	groups, err := work.LockGroups(len(work.Inputs))
	if err != nil {
		return types.Hash{}, err
	}
	for _, g := range groups {
		if g.LockHash != lockHash {
			continue
		}
		gw := work.PrepareGroupWitnesses(g)
		return tx.SigningMessage(work.Hash(), gw.Placeholder(lockSize)), nil
	}
	return types.Hash{}, fmt.Errorf("no input is locked by %s", lockHash)
}

// Verify checks that sig over the group message recovers to signer.
func (c *Coordinator) Verify(t *tx.Transaction, lockHash types.Hash, entry tx.SignatureEntry) error {
	msg, err := c.Message(t, lockHash)
	if err != nil {
		return err
	}
	pub, err := crypto.RecoverPubKey(msg[:], entry.Signature)
	if err != nil {
		return err
	}
	if got := crypto.PubKeyBlake160(pub); got != entry.Signer {
		return fmt.Errorf("%w: signature is from %s, not %s", crypto.ErrInvalidSignature, got, entry.Signer)
	}
	return nil
}

// Merge folds the signatures of src into dst. Both must be the same
// transaction. Every imported signature is verified; groups that are
// already signed are left alone. It returns the number of signatures added.
func (c *Coordinator) Merge(dst, src *tx.Transaction) (int, error) {
	if dh, sh := dst.Hash(), src.Hash(); dh != sh {
		return 0, fmt.Errorf("cannot merge signatures of %s into %s", sh, dh)
	}
	added := 0
	for _, lockHash := range src.Signatures.LockHashes() {
		cfg, err := c.config(lockHash)
		if err != nil {
			return added, err
		}
		for _, e := range src.Signatures[lockHash] {
			if stateOf(cfg, dst.Signatures[lockHash]) == Signed {
				break
			}
			if hasSigner(dst.Signatures[lockHash], e.Signer) {
				continue
			}
			if err := c.Verify(dst, lockHash, e); err != nil {
				return added, fmt.Errorf("signature of %s on %s: %w", e.Signer, lockHash, err)
			}
			if _, err := c.AddSignature(dst, lockHash, e.Signer, e.Signature); err != nil {
				return added, err
			}
			added++
		}
	}
	return added, nil
}

// ApplyWitnesses writes the assembled witness lock of every fully signed
// group into the transaction. Groups still collecting signatures are
// skipped; it returns the lock hashes applied.
func (c *Coordinator) ApplyWitnesses(t *tx.Transaction) ([]types.Hash, error) {
	groups, err := t.LockGroups(len(t.Inputs))
	if err != nil {
		return nil, err
	}
	var applied []types.Hash
	for _, g := range groups {
		cfg, ok := c.configs[g.LockHash]
		if !ok || stateOf(cfg, t.Signatures[g.LockHash]) != Signed {
			continue
		}
		lock, err := c.Assemble(t, g.LockHash)
		if err != nil {
			return applied, err
		}
		gw := t.PrepareGroupWitnesses(g)
		t.ApplyGroupWitness(g, gw, lock)
		applied = append(applied, g.LockHash)
	}
	return applied, nil
}

func sortedHashes(m map[types.Hash]*Config) []types.Hash {
	keys := make([]types.Hash, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i][:], keys[j][:]) < 0
	})
	return keys
}

package sender

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	klog "github.com/Klingon-tech/cellwallet/internal/log"
	"github.com/Klingon-tech/cellwallet/internal/multisig"
	"github.com/Klingon-tech/cellwallet/internal/rpcclient"
	"github.com/Klingon-tech/cellwallet/internal/storage"
	"github.com/Klingon-tech/cellwallet/pkg/tx"
	"github.com/Klingon-tech/cellwallet/pkg/types"
)

// ErrNotRecorded is returned for a transaction hash that was never sent.
var ErrNotRecorded = errors.New("transaction not recorded")

// Record statuses.
const (
	StatusPending   = "pending"
	StatusSent      = "sent"
	StatusCommitted = "committed"
	StatusDropped   = "dropped"
)

// Key prefixes of the store.
var (
	sentPrefix     = []byte("t") // tx hash -> SentRecord
	multisigPrefix = []byte("m") // lock hash | out point -> MultisigOutput
)

// SentRecord is a broadcast transaction awaiting confirmation.
type SentRecord struct {
	Hash   types.Hash      `json:"hash"`
	Tx     *tx.Transaction `json:"tx"`
	Status string          `json:"status"`
	SentAt time.Time       `json:"sent_at"`
}

// MultisigOutput is a sent output locked by one of the wallet's multisig
// configs.
type MultisigOutput struct {
	OutPoint types.OutPoint `json:"out_point"`
	LockHash types.Hash     `json:"lock_hash"`
	Capacity types.Uint64   `json:"capacity"`
	Status   string         `json:"status"`
}

// CellSpender drops spent cells from the local cell cache.
// *txgen.CellStore implements it.
type CellSpender interface {
	Spend(ops ...types.OutPoint) error
}

// ConfigLookup finds multisig configs by lock hash. *multisig.ConfigStore
// implements it.
type ConfigLookup interface {
	Get(lockHash types.Hash) (*multisig.Config, error)
}

// Store is the Persistor on a key-value store.
type Store struct {
	db      storage.DB
	cells   CellSpender
	configs ConfigLookup
	now     func() time.Time
}

var _ Persistor = (*Store)(nil)

// NewStore creates a store over db. cells and configs may be nil.
func NewStore(db storage.DB, cells CellSpender, configs ConfigLookup) *Store {
	return &Store{db: db, cells: cells, configs: configs, now: time.Now}
}

func sentKey(hash types.Hash) []byte {
	return append(append([]byte{}, sentPrefix...), hash[:]...)
}

func multisigKey(lockHash types.Hash, op types.OutPoint) []byte {
	key := make([]byte, 0, len(multisigPrefix)+types.HashSize+types.OutPointSize)
	key = append(key, multisigPrefix...)
	key = append(key, lockHash[:]...)
	return append(key, op.Serialize()...)
}

// SaveSentTransaction records t as pending and drops its inputs from the
// cell cache so they are not selected again.
func (s *Store) SaveSentTransaction(_ context.Context, t *tx.Transaction, hash types.Hash) error {
	rec := SentRecord{Hash: hash, Tx: t, Status: StatusPending, SentAt: s.now().UTC()}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode sent transaction: %w", err)
	}
	if err := s.db.Put(sentKey(hash), data); err != nil {
		return err
	}
	if s.cells != nil {
		ops := make([]types.OutPoint, len(t.Inputs))
		for i, in := range t.Inputs {
			ops[i] = in.PreviousOutput
		}
		if err := s.cells.Spend(ops...); err != nil {
			return fmt.Errorf("spend inputs: %w", err)
		}
	}
	klog.Storage.Debug().Str("tx_hash", hash.String()).Msg("Sent transaction recorded")
	return nil
}

// SaveSentMultisigOutput records the outputs of t locked by a known
// multisig config and forgets the multisig outputs t spends.
func (s *Store) SaveSentMultisigOutput(_ context.Context, t *tx.Transaction) error {
	if s.configs == nil {
		return nil
	}
	hash := t.TxHash
	if hash.IsZero() {
		hash = t.Hash()
	}

	batch := storage.NewWriteBatch(s.db)
	for _, in := range t.Inputs {
		if in.Lock == nil || !in.Lock.IsMultisig() {
			continue
		}
		if err := batch.Delete(multisigKey(in.Lock.Hash(), in.PreviousOutput)); err != nil {
			return err
		}
	}
	saved := 0
	for i, out := range t.Outputs {
		if !out.Lock.IsMultisig() {
			continue
		}
		lockHash := out.Lock.Hash()
		if _, err := s.configs.Get(lockHash); errors.Is(err, multisig.ErrConfigNotFound) {
			continue
		} else if err != nil {
			return err
		}
		rec := MultisigOutput{
			OutPoint: types.OutPoint{TxHash: hash, Index: uint32(i)},
			LockHash: lockHash,
			Capacity: types.Uint64(out.Capacity),
			Status:   StatusSent,
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode multisig output: %w", err)
		}
		if err := batch.Put(multisigKey(lockHash, rec.OutPoint), data); err != nil {
			return err
		}
		saved++
	}
	if err := batch.Commit(); err != nil {
		return err
	}
	if saved > 0 {
		klog.Storage.Debug().Str("tx_hash", hash.String()).Int("outputs", saved).Msg("Multisig outputs recorded")
	}
	return nil
}

// SentTransaction returns the record of a sent transaction.
func (s *Store) SentTransaction(hash types.Hash) (*SentRecord, error) {
	data, err := s.db.Get(sentKey(hash))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotRecorded, hash)
	}
	if err != nil {
		return nil, err
	}
	var rec SentRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode sent transaction: %w", err)
	}
	return &rec, nil
}

// PendingInputs returns the out points spent by transactions still
// pending confirmation.
func (s *Store) PendingInputs() (map[types.OutPoint]bool, error) {
	spent := make(map[types.OutPoint]bool)
	err := s.db.ForEach(sentPrefix, func(_, value []byte) error {
		var rec SentRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return fmt.Errorf("decode sent transaction: %w", err)
		}
		if rec.Status != StatusPending || rec.Tx == nil {
			return nil
		}
		for _, in := range rec.Tx.Inputs {
			spent[in.PreviousOutput] = true
		}
		return nil
	})
	return spent, err
}

// MarkCommitted flags a sent transaction as committed, releasing its
// inputs from PendingInputs.
func (s *Store) MarkCommitted(hash types.Hash) error {
	return s.setStatus(hash, StatusCommitted)
}

func (s *Store) setStatus(hash types.Hash, status string) error {
	rec, err := s.SentTransaction(hash)
	if err != nil {
		return err
	}
	rec.Status = status
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode sent transaction: %w", err)
	}
	return s.db.Put(sentKey(hash), data)
}

// Reconcile asks the node about every pending transaction. Committed ones
// are marked committed; ones the node rejected or no longer knows are
// marked dropped so their inputs become selectable again.
func (s *Store) Reconcile(ctx context.Context, node rpcclient.Node) (committed, dropped int, err error) {
	var pending []types.Hash
	err = s.db.ForEach(sentPrefix, func(_, value []byte) error {
		var rec SentRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return fmt.Errorf("decode sent transaction: %w", err)
		}
		if rec.Status == StatusPending {
			pending = append(pending, rec.Hash)
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	for _, hash := range pending {
		res, err := node.GetTransaction(ctx, hash)
		if err != nil {
			return committed, dropped, fmt.Errorf("get transaction %s: %w", hash, err)
		}
		switch {
		case res.IsCommitted():
			if err := s.setStatus(hash, StatusCommitted); err != nil {
				return committed, dropped, err
			}
			committed++
		case res.TxStatus.Status == rpcclient.TxStatusRejected || res.TxStatus.Status == rpcclient.TxStatusUnknown:
			if err := s.setStatus(hash, StatusDropped); err != nil {
				return committed, dropped, err
			}
			klog.Storage.Warn().Str("tx_hash", hash.String()).Str("status", res.TxStatus.Status).Msg("Sent transaction dropped")
			dropped++
		}
	}
	return committed, dropped, nil
}

// MultisigOutputs returns the recorded outputs of a multisig lock.
func (s *Store) MultisigOutputs(lockHash types.Hash) ([]MultisigOutput, error) {
	prefix := append(append([]byte{}, multisigPrefix...), lockHash[:]...)
	var out []MultisigOutput
	err := s.db.ForEach(prefix, func(_, value []byte) error {
		var rec MultisigOutput
		if err := json.Unmarshal(value, &rec); err != nil {
			return fmt.Errorf("decode multisig output: %w", err)
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}

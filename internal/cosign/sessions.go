package cosign

import (
	"errors"
	"fmt"
	"sync"

	klog "github.com/Klingon-tech/cellwallet/internal/log"
	"github.com/Klingon-tech/cellwallet/internal/multisig"
	"github.com/Klingon-tech/cellwallet/internal/storage"
	"github.com/Klingon-tech/cellwallet/pkg/types"
	"github.com/libp2p/go-libp2p/core/peer"
)

// ErrNoSession is returned for a transaction hash with no session.
var ErrNoSession = errors.New("no co-signing session")

var sessionPrefix = []byte("s")

// SessionStore keeps one co-signing payload per transaction hash and folds
// every payload received for the same transaction into it.
type SessionStore struct {
	mu sync.Mutex
	db storage.DB
}

// NewSessionStore creates a session store over db.
func NewSessionStore(db storage.DB) *SessionStore {
	return &SessionStore{db: db}
}

func sessionKey(hash types.Hash) []byte {
	return append(append([]byte{}, sessionPrefix...), hash[:]...)
}

// Put stores p, merging its signatures into an existing session for the
// same transaction. Every signature of p must verify, including those of
// the first payload of a session. It returns the resulting payload and the
// number of signatures p contributed.
func (s *SessionStore) Put(p *multisig.Payload) (*multisig.Payload, int, error) {
	if err := p.VerifySignatures(); err != nil {
		return nil, 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	hash := p.Transaction.Hash()
	cur, err := s.load(hash)
	if errors.Is(err, ErrNoSession) {
		if err := s.save(hash, p); err != nil {
			return nil, 0, err
		}
		return p, countSignatures(p), nil
	}
	if err != nil {
		return nil, 0, err
	}

	coord := multisig.NewCoordinator(append(cur.Configs, p.Configs...)...)
	added, err := coord.Merge(cur.Transaction, p.Transaction)
	if err != nil {
		return nil, 0, fmt.Errorf("merge payload for %s: %w", hash, err)
	}
	if added == 0 {
		return cur, 0, nil
	}
	cur.Configs = coord.Configs()
	if err := cur.Refresh(); err != nil {
		return nil, 0, err
	}
	if err := s.save(hash, cur); err != nil {
		return nil, 0, err
	}
	return cur, added, nil
}

// Get returns the session of a transaction.
func (s *SessionStore) Get(hash types.Hash) (*multisig.Payload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(hash)
}

// List returns every open session.
func (s *SessionStore) List() ([]*multisig.Payload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*multisig.Payload
	err := s.db.ForEach(sessionPrefix, func(_, value []byte) error {
		p, err := multisig.ImportPayload(value)
		if err != nil {
			return nil // Skip corrupt sessions.
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

// Delete closes a session, typically once its transaction was broadcast.
func (s *SessionStore) Delete(hash types.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Delete(sessionKey(hash))
}

// Handle is a PayloadHandler that records payloads relayed by peers.
func (s *SessionStore) Handle(from peer.ID, p *multisig.Payload) {
	merged, added, err := s.Put(p)
	if err != nil {
		klog.Cosign.Warn().Str("peer", from.String()).Err(err).Msg("Relayed payload rejected")
		return
	}
	klog.Cosign.Info().
		Str("peer", from.String()).
		Str("tx_hash", merged.Transaction.Hash().String()).
		Int("added", added).
		Msg("Co-signing session updated")
}

func (s *SessionStore) load(hash types.Hash) (*multisig.Payload, error) {
	data, err := s.db.Get(sessionKey(hash))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNoSession, hash)
	}
	if err != nil {
		return nil, err
	}
	return multisig.ImportPayload(data)
}

func (s *SessionStore) save(hash types.Hash, p *multisig.Payload) error {
	data, err := p.Marshal()
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.db.Put(sessionKey(hash), data)
}

func countSignatures(p *multisig.Payload) int {
	n := 0
	for _, entries := range p.Transaction.Signatures {
		n += len(entries)
	}
	return n
}

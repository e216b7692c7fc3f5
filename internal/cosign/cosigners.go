package cosign

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Klingon-tech/cellwallet/internal/storage"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

const (
	cosignerKeyPrefix = "cosigner/"
	staleThreshold    = 30 * 24 * time.Hour
	maxCosigners      = 64
)

// CosignerRecord is a remembered co-signer.
type CosignerRecord struct {
	ID       string   `json:"id"`
	Addrs    []string `json:"addrs"`
	LastSeen int64    `json:"last_seen"`
}

// AddrInfo parses the record into dialable peer info. Unparseable
// addresses are skipped.
func (r CosignerRecord) AddrInfo() (peer.AddrInfo, error) {
	id, err := peer.Decode(r.ID)
	if err != nil {
		return peer.AddrInfo{}, fmt.Errorf("decode peer id: %w", err)
	}
	info := peer.AddrInfo{ID: id}
	for _, s := range r.Addrs {
		if ma, err := multiaddr.NewMultiaddr(s); err == nil {
			info.Addrs = append(info.Addrs, ma)
		}
	}
	return info, nil
}

// CosignerStore persists co-signer records under the "cosigner/" prefix.
type CosignerStore struct {
	db storage.DB
}

// NewCosignerStore creates a store backed by db.
func NewCosignerStore(db storage.DB) *CosignerStore {
	return &CosignerStore{db: db}
}

func cosignerKey(id string) []byte {
	return []byte(cosignerKeyPrefix + id)
}

// Save persists a record. New records beyond maxCosigners are dropped.
func (cs *CosignerStore) Save(rec CosignerRecord) error {
	key := cosignerKey(rec.ID)
	exists, err := cs.db.Has(key)
	if err != nil {
		return fmt.Errorf("check cosigner exists: %w", err)
	}
	if !exists {
		count, err := cs.Count()
		if err != nil {
			return err
		}
		if count >= maxCosigners {
			return nil
		}
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal cosigner record: %w", err)
	}
	return cs.db.Put(key, data)
}

// Load returns the record of one co-signer.
func (cs *CosignerStore) Load(id peer.ID) (*CosignerRecord, error) {
	data, err := cs.db.Get(cosignerKey(id.String()))
	if err != nil {
		return nil, fmt.Errorf("get cosigner record: %w", err)
	}
	var rec CosignerRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal cosigner record: %w", err)
	}
	return &rec, nil
}

// LoadAll returns every record, skipping corrupt ones.
func (cs *CosignerStore) LoadAll() ([]CosignerRecord, error) {
	var records []CosignerRecord
	err := cs.db.ForEach([]byte(cosignerKeyPrefix), func(_, value []byte) error {
		var rec CosignerRecord
		if json.Unmarshal(value, &rec) == nil {
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate cosigner records: %w", err)
	}
	return records, nil
}

// Delete forgets a co-signer.
func (cs *CosignerStore) Delete(id peer.ID) error {
	return cs.db.Delete(cosignerKey(id.String()))
}

// PruneStale removes corrupt records and those not seen within threshold.
func (cs *CosignerStore) PruneStale(threshold time.Duration) (int, error) {
	cutoff := time.Now().Add(-threshold).Unix()
	var stale [][]byte
	err := cs.db.ForEach([]byte(cosignerKeyPrefix), func(key, value []byte) error {
		var rec CosignerRecord
		if json.Unmarshal(value, &rec) != nil || rec.LastSeen < cutoff {
			stale = append(stale, append([]byte{}, key...))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("iterate for prune: %w", err)
	}
	for _, k := range stale {
		if err := cs.db.Delete(k); err != nil {
			return 0, fmt.Errorf("delete stale cosigner: %w", err)
		}
	}
	return len(stale), nil
}

// Count returns the number of records.
func (cs *CosignerStore) Count() (int, error) {
	count := 0
	err := cs.db.ForEach([]byte(cosignerKeyPrefix), func(_, _ []byte) error {
		count++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count cosigners: %w", err)
	}
	return count, nil
}

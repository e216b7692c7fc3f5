package cosign

import (
	"sync"
	"time"

	klog "github.com/Klingon-tech/cellwallet/internal/log"
	"github.com/libp2p/go-libp2p/core/control"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

// Ban thresholds and durations.
const (
	BanThreshold = 100
	BanDuration  = 24 * time.Hour
)

// PenaltyInvalidPayload is charged for a payload that fails its checksum
// or does not decode.
const PenaltyInvalidPayload = 50

// BanRecord describes an active ban.
type BanRecord struct {
	ID        peer.ID
	Reason    string
	Score     int
	ExpiresAt time.Time
}

// IsExpired reports whether the ban has run out.
func (r *BanRecord) IsExpired() bool {
	return time.Now().After(r.ExpiresAt)
}

// BanManager tracks offense scores of co-signing peers. Bans live in
// memory only; a restarted relay forgives everyone.
type BanManager struct {
	mu     sync.RWMutex
	scores map[peer.ID]int
	bans   map[peer.ID]*BanRecord
	node   *Node // for disconnect-on-ban (nil in unit tests)
}

// NewBanManager creates a BanManager. node may be nil.
func NewBanManager(node *Node) *BanManager {
	return &BanManager{
		scores: make(map[peer.ID]int),
		bans:   make(map[peer.ID]*BanRecord),
		node:   node,
	}
}

// RecordOffense adds penalty to the peer's score and bans it once the
// score reaches BanThreshold.
func (bm *BanManager) RecordOffense(id peer.ID, penalty int, reason string) {
	bm.mu.Lock()
	if rec, ok := bm.bans[id]; ok && !rec.IsExpired() {
		bm.mu.Unlock()
		return
	}
	bm.scores[id] += penalty
	if bm.scores[id] < BanThreshold {
		bm.mu.Unlock()
		return
	}
	rec := &BanRecord{
		ID:        id,
		Reason:    reason,
		Score:     bm.scores[id],
		ExpiresAt: time.Now().Add(BanDuration),
	}
	bm.bans[id] = rec
	delete(bm.scores, id)
	bm.mu.Unlock()

	klog.Cosign.Warn().
		Str("peer", shortID(id)).
		Str("reason", reason).
		Int("score", rec.Score).
		Msg("Peer banned")

	if bm.node != nil {
		go bm.node.DisconnectPeer(id)
	}
}

// IsBanned reports whether the peer is currently banned.
func (bm *BanManager) IsBanned(id peer.ID) bool {
	bm.mu.RLock()
	rec, ok := bm.bans[id]
	bm.mu.RUnlock()
	if !ok {
		return false
	}
	if rec.IsExpired() {
		bm.mu.Lock()
		delete(bm.bans, id)
		bm.mu.Unlock()
		return false
	}
	return true
}

// Unban removes a ban and resets the score.
func (bm *BanManager) Unban(id peer.ID) {
	bm.mu.Lock()
	delete(bm.bans, id)
	delete(bm.scores, id)
	bm.mu.Unlock()
}

// BanList returns a snapshot of active bans.
func (bm *BanManager) BanList() []BanRecord {
	bm.mu.RLock()
	defer bm.mu.RUnlock()
	var list []BanRecord
	for _, rec := range bm.bans {
		if !rec.IsExpired() {
			list = append(list, *rec)
		}
	}
	return list
}

func shortID(id peer.ID) string {
	s := id.String()
	if len(s) > 16 {
		return s[:16]
	}
	return s
}

// banGater rejects connections from banned peers at the transport level.
type banGater struct {
	bans *BanManager
}

func (g *banGater) InterceptPeerDial(p peer.ID) bool {
	return !g.bans.IsBanned(p)
}

func (g *banGater) InterceptAddrDial(_ peer.ID, _ ma.Multiaddr) bool {
	return true
}

// InterceptAccept allows everything; the peer identity is not known yet.
func (g *banGater) InterceptAccept(_ network.ConnMultiaddrs) bool {
	return true
}

func (g *banGater) InterceptSecured(_ network.Direction, p peer.ID, _ network.ConnMultiaddrs) bool {
	return !g.bans.IsBanned(p)
}

func (g *banGater) InterceptUpgraded(_ network.Conn) (bool, control.DisconnectReason) {
	return true, 0
}

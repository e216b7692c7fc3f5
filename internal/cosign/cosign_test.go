package cosign

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Klingon-tech/cellwallet/internal/multisig"
	"github.com/Klingon-tech/cellwallet/internal/storage"
	"github.com/Klingon-tech/cellwallet/pkg/crypto"
	"github.com/Klingon-tech/cellwallet/pkg/tx"
	"github.com/Klingon-tech/cellwallet/pkg/types"
	"github.com/libp2p/go-libp2p/core/peer"
)

func startTestNode(t *testing.T) *Node {
	t.Helper()
	n := New(Config{ListenAddr: "127.0.0.1", Port: 0, Network: "testnet", NoDiscover: true})
	if err := n.Start(); err != nil {
		t.Fatalf("start node: %v", err)
	}
	t.Cleanup(func() { n.Stop() })
	return n
}

// connectNodes connects node B to node A via direct libp2p connect.
func connectNodes(t *testing.T, a, b *Node) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.host.Connect(ctx, peer.AddrInfo{ID: a.host.ID(), Addrs: a.host.Addrs()}); err != nil {
		t.Fatalf("connect nodes: %v", err)
	}
	// Give GossipSub time to establish mesh.
	time.Sleep(200 * time.Millisecond)
}

type fixture struct {
	keys  []*crypto.PrivateKey
	cfg   *multisig.Config
	coord *multisig.Coordinator
	tx    *tx.Transaction
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{}
	var hashes []types.Blake160
	for i := byte(1); i <= 3; i++ {
		raw := make([]byte, 32)
		raw[31] = i
		k, err := crypto.PrivateKeyFromBytes(raw)
		if err != nil {
			t.Fatalf("key: %v", err)
		}
		f.keys = append(f.keys, k)
		hashes = append(hashes, k.Blake160())
	}
	cfg, err := multisig.NewConfig("w1", 2, 0, hashes)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	f.cfg = cfg
	f.coord = multisig.NewCoordinator(cfg)
	lock := cfg.LockScript()
	f.tx = &tx.Transaction{
		Inputs:  []tx.Input{{PreviousOutput: types.OutPoint{TxHash: types.Hash{9}}, Capacity: 300 * tx.ShannonsPerCKB, Lock: &lock}},
		Outputs: []tx.Output{{Capacity: 299 * tx.ShannonsPerCKB, Lock: types.NewSecpScript(types.Blake160{0xaa})}},
	}
	return f
}

// signedBy returns a payload carrying the signatures of the given keys.
func (f *fixture) signedBy(t *testing.T, idx ...int) *multisig.Payload {
	t.Helper()
	work := f.tx.Clone()
	for _, i := range idx {
		msg, err := f.coord.Message(work, f.cfg.LockHash())
		if err != nil {
			t.Fatalf("message: %v", err)
		}
		sig, err := f.keys[i].Sign(msg[:])
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		if _, err := f.coord.AddSignature(work, f.cfg.LockHash(), f.keys[i].Blake160(), sig); err != nil {
			t.Fatalf("add signature: %v", err)
		}
	}
	p, err := multisig.NewPayload(work, f.coord)
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	return p
}

func TestPayloadTopic_PerNetwork(t *testing.T) {
	if PayloadTopic("mainnet") == PayloadTopic("testnet") {
		t.Fatal("networks share a topic")
	}
	if got := PayloadTopic("testnet"); got != "/cellwallet/cosign/testnet/1.0.0" {
		t.Errorf("topic = %s", got)
	}
}

func TestNode_StartStop(t *testing.T) {
	n := startTestNode(t)
	if n.ID() == "" {
		t.Fatal("empty peer id")
	}
	if len(n.Addrs()) == 0 {
		t.Fatal("no listen addresses")
	}
	if n.PeerCount() != 0 {
		t.Errorf("PeerCount = %d, want 0", n.PeerCount())
	}
}

func TestNode_PublishBeforeStart(t *testing.T) {
	n := New(Config{Network: "testnet"})
	f := newFixture(t)
	if err := n.Publish(context.Background(), f.signedBy(t, 0)); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("Publish = %v, want ErrNotStarted", err)
	}
}

func TestIdentity_StableAcrossRestarts(t *testing.T) {
	dir := t.TempDir()
	first, err := loadOrCreateIdentity(dir)
	if err != nil {
		t.Fatalf("create identity: %v", err)
	}
	second, err := loadOrCreateIdentity(dir)
	if err != nil {
		t.Fatalf("load identity: %v", err)
	}
	if !first.Equals(second) {
		t.Fatal("identity changed between loads")
	}
}

func TestTwoNodes_PayloadRelay(t *testing.T) {
	nodeA := startTestNode(t)
	nodeB := startTestNode(t)
	connectNodes(t, nodeA, nodeB)

	var received atomic.Value
	nodeB.SetPayloadHandler(func(_ peer.ID, p *multisig.Payload) {
		received.Store(p)
	})

	f := newFixture(t)
	sent := f.signedBy(t, 0)
	if err := nodeA.Publish(context.Background(), sent); err != nil {
		t.Fatalf("publish: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if v := received.Load(); v != nil {
			got := v.(*multisig.Payload)
			if got.Transaction.Hash() != sent.Transaction.Hash() {
				t.Fatal("relayed payload is a different transaction")
			}
			if len(got.Transaction.Signatures[f.cfg.LockHash()]) != 1 {
				t.Fatal("relayed payload lost its signature")
			}
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("timeout: payload was not relayed")
}

func TestTwoNodes_TamperedPayloadDropped(t *testing.T) {
	nodeA := startTestNode(t)
	nodeB := startTestNode(t)
	connectNodes(t, nodeA, nodeB)

	var count atomic.Int32
	nodeB.SetPayloadHandler(func(peer.ID, *multisig.Payload) { count.Add(1) })

	f := newFixture(t)
	bad := f.signedBy(t, 0)
	bad.Checksum = "00"
	if err := nodeA.Publish(context.Background(), bad); err != nil {
		t.Fatalf("publish: %v", err)
	}
	good := f.signedBy(t, 1)
	if err := nodeA.Publish(context.Background(), good); err != nil {
		t.Fatalf("publish: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && count.Load() == 0 {
		time.Sleep(50 * time.Millisecond)
	}
	time.Sleep(200 * time.Millisecond)
	if got := count.Load(); got != 1 {
		t.Fatalf("handler called %d times, want 1", got)
	}
	nodeB.bans.mu.RLock()
	score := nodeB.bans.scores[nodeA.ID()]
	nodeB.bans.mu.RUnlock()
	if score != PenaltyInvalidPayload {
		t.Errorf("sender score = %d, want %d", score, PenaltyInvalidPayload)
	}
}

func TestBanManager_BansAtThreshold(t *testing.T) {
	bm := NewBanManager(nil)
	id := peer.ID("test-peer")

	bm.RecordOffense(id, PenaltyInvalidPayload, "invalid payload")
	if bm.IsBanned(id) {
		t.Fatal("banned below threshold")
	}
	bm.RecordOffense(id, PenaltyInvalidPayload, "invalid payload")
	if !bm.IsBanned(id) {
		t.Fatal("not banned at threshold")
	}
	list := bm.BanList()
	if len(list) != 1 || list[0].Reason != "invalid payload" || list[0].Score != BanThreshold {
		t.Fatalf("ban list = %+v", list)
	}

	bm.Unban(id)
	if bm.IsBanned(id) {
		t.Fatal("still banned after Unban")
	}
	bm.RecordOffense(id, PenaltyInvalidPayload, "invalid payload")
	if bm.IsBanned(id) {
		t.Fatal("score not reset by Unban")
	}
}

func TestBanManager_ExpiredBanLifted(t *testing.T) {
	bm := NewBanManager(nil)
	id := peer.ID("test-peer")
	bm.bans[id] = &BanRecord{ID: id, ExpiresAt: time.Now().Add(-time.Second)}

	if bm.IsBanned(id) {
		t.Fatal("expired ban still active")
	}
	if len(bm.BanList()) != 0 {
		t.Fatal("expired ban listed")
	}
}

func TestBanGater_RejectsBannedPeer(t *testing.T) {
	bm := NewBanManager(nil)
	g := &banGater{bans: bm}
	id := peer.ID("test-peer")
	if !g.InterceptPeerDial(id) {
		t.Fatal("dial rejected before ban")
	}
	bm.RecordOffense(id, BanThreshold, "test")
	if g.InterceptPeerDial(id) {
		t.Fatal("dial allowed after ban")
	}
	if g.InterceptSecured(0, id, nil) {
		t.Fatal("secured connection allowed after ban")
	}
}

func TestSessionStore_MergesPayloads(t *testing.T) {
	s := NewSessionStore(storage.NewMemory())
	f := newFixture(t)

	p, added, err := s.Put(f.signedBy(t, 0))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if added != 1 {
		t.Errorf("added = %d, want 1", added)
	}
	state, _ := f.coord.State(p.Transaction, f.cfg.LockHash())
	if state != multisig.PartiallySigned {
		t.Fatalf("state = %s, want partially-signed", state)
	}

	p, added, err = s.Put(f.signedBy(t, 2))
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if added != 1 {
		t.Errorf("added = %d, want 1", added)
	}
	state, _ = f.coord.State(p.Transaction, f.cfg.LockHash())
	if state != multisig.Signed {
		t.Fatalf("state = %s, want signed", state)
	}

	// A duplicate adds nothing.
	_, added, err = s.Put(f.signedBy(t, 0))
	if err != nil || added != 0 {
		t.Fatalf("duplicate put = (%d, %v), want (0, nil)", added, err)
	}

	stored, err := s.Get(f.tx.Hash())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(stored.Transaction.Signatures[f.cfg.LockHash()]) != 2 {
		t.Fatal("merged signatures not persisted")
	}
	list, err := s.List()
	if err != nil || len(list) != 1 {
		t.Fatalf("List = (%d, %v), want 1 session", len(list), err)
	}

	if err := s.Delete(f.tx.Hash()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(f.tx.Hash()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Get after delete = %v, want ErrNoSession", err)
	}
}

func TestSessionStore_RejectsForgedSignature(t *testing.T) {
	s := NewSessionStore(storage.NewMemory())
	f := newFixture(t)
	if _, _, err := s.Put(f.signedBy(t, 0)); err != nil {
		t.Fatalf("put: %v", err)
	}

	forged := f.signedBy(t, 1)
	sigs := forged.Transaction.Signatures[f.cfg.LockHash()]
	sigs[0].Signature[10] ^= 0xff
	if err := forged.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, _, err := s.Put(forged); err == nil {
		t.Fatal("forged signature merged")
	}
}

// forgedBy returns a payload whose signature of key idx was corrupted after
// signing, with a checksum recomputed over the forgery.
func (f *fixture) forgedBy(t *testing.T, idx int) *multisig.Payload {
	t.Helper()
	p := f.signedBy(t, idx)
	p.Transaction.Signatures[f.cfg.LockHash()][0].Signature[10] ^= 0xff
	if err := p.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	return p
}

func TestSessionStore_RejectsForgedFirstPayload(t *testing.T) {
	s := NewSessionStore(storage.NewMemory())
	f := newFixture(t)

	if _, _, err := s.Put(f.forgedBy(t, 0)); !errors.Is(err, multisig.ErrBadSignature) {
		t.Fatalf("put forged = %v, want ErrBadSignature", err)
	}
	if _, err := s.Get(f.tx.Hash()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("forged payload opened a session: %v", err)
	}

	// The genuine signature of the same signer is still accepted.
	if _, added, err := s.Put(f.signedBy(t, 0)); err != nil || added != 1 {
		t.Fatalf("genuine put = (%d, %v), want (1, nil)", added, err)
	}
	p, added, err := s.Put(f.signedBy(t, 2))
	if err != nil || added != 1 {
		t.Fatalf("second signer = (%d, %v), want (1, nil)", added, err)
	}
	state, _ := f.coord.State(p.Transaction, f.cfg.LockHash())
	if state != multisig.Signed {
		t.Fatalf("state = %s, want signed", state)
	}
	for _, e := range p.Transaction.Signatures[f.cfg.LockHash()] {
		if err := f.coord.Verify(p.Transaction, f.cfg.LockHash(), e); err != nil {
			t.Errorf("stored signature of %s: %v", e.Signer, err)
		}
	}
}

func TestTwoNodes_ForgedSignatureDropped(t *testing.T) {
	nodeA := startTestNode(t)
	nodeB := startTestNode(t)
	connectNodes(t, nodeA, nodeB)

	sessions := NewSessionStore(storage.NewMemory())
	var count atomic.Int32
	nodeB.SetPayloadHandler(func(from peer.ID, p *multisig.Payload) {
		sessions.Handle(from, p)
		count.Add(1)
	})

	f := newFixture(t)
	if err := nodeA.Publish(context.Background(), f.forgedBy(t, 0)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := nodeA.Publish(context.Background(), f.signedBy(t, 0)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && count.Load() == 0 {
		time.Sleep(50 * time.Millisecond)
	}
	time.Sleep(200 * time.Millisecond)
	if got := count.Load(); got != 1 {
		t.Fatalf("handler called %d times, want 1", got)
	}
	p, err := sessions.Get(f.tx.Hash())
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	entries := p.Transaction.Signatures[f.cfg.LockHash()]
	if len(entries) != 1 || entries[0].Signer != f.keys[0].Blake160() {
		t.Fatalf("session signatures = %v", entries)
	}
	if err := f.coord.Verify(p.Transaction, f.cfg.LockHash(), entries[0]); err != nil {
		t.Errorf("stored signature: %v", err)
	}
}

func TestCosignerStore_SaveLoadPrune(t *testing.T) {
	cs := NewCosignerStore(storage.NewMemory())
	n := startTestNode(t)

	rec := CosignerRecord{ID: n.ID().String(), Addrs: []string{"/ip4/127.0.0.1/tcp/4001"}, LastSeen: time.Now().Unix()}
	if err := cs.Save(rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := cs.Load(n.ID())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	info, err := got.AddrInfo()
	if err != nil {
		t.Fatalf("addr info: %v", err)
	}
	if info.ID != n.ID() || len(info.Addrs) != 1 {
		t.Fatalf("AddrInfo = %+v", info)
	}

	old := CosignerRecord{ID: "old", LastSeen: time.Now().Add(-2 * staleThreshold).Unix()}
	if err := cs.Save(old); err != nil {
		t.Fatalf("save old: %v", err)
	}
	pruned, err := cs.PruneStale(staleThreshold)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned = %d, want 1", pruned)
	}
	if c, _ := cs.Count(); c != 1 {
		t.Errorf("Count = %d, want 1", c)
	}
}

func TestNode_PersistsPeersOnStop(t *testing.T) {
	db := storage.NewMemory()
	nodeA := New(Config{ListenAddr: "127.0.0.1", Network: "testnet", NoDiscover: true, DB: db})
	if err := nodeA.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	nodeB := startTestNode(t)
	connectNodes(t, nodeB, nodeA)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && nodeA.PeerCount() == 0 {
		time.Sleep(20 * time.Millisecond)
	}
	if err := nodeA.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	records, err := NewCosignerStore(db).LoadAll()
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(records) != 1 || records[0].ID != nodeB.ID().String() {
		t.Fatalf("persisted %+v, want node B", records)
	}
}

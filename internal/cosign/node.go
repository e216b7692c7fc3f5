// Package cosign relays multisig co-signing payloads between signers over
// libp2p GossipSub. Signers publish a payload after adding their
// signatures; peers merge what they receive into their local sessions.
package cosign

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	klog "github.com/Klingon-tech/cellwallet/internal/log"
	"github.com/Klingon-tech/cellwallet/internal/multisig"
	"github.com/Klingon-tech/cellwallet/internal/storage"
	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
)

// peerConnectTimeout bounds a dial to a configured or remembered peer.
const peerConnectTimeout = 5 * time.Second

// ErrNotStarted is returned by operations that need a running node.
var ErrNotStarted = errors.New("cosign node not started")

// Config holds relay node configuration.
type Config struct {
	ListenAddr string
	Port       int
	// Peers are full multiaddrs (with /p2p/ID) of co-signers to dial.
	Peers      []string
	Network    string
	NoDiscover bool       // disable mDNS discovery on the local network
	DB         storage.DB // co-signer persistence (nil = disabled)
	DataDir    string     // keeps the node identity stable across restarts
}

// PayloadHandler receives a payload whose checksum and signatures were
// verified, and the peer it came from.
type PayloadHandler func(from peer.ID, p *multisig.Payload)

// Node is a co-signing relay built on libp2p.
type Node struct {
	host   host.Host
	pubsub *pubsub.PubSub
	config Config
	ctx    context.Context
	cancel context.CancelFunc

	topic *pubsub.Topic
	sub   *pubsub.Subscription

	handlerMu sync.RWMutex
	handler   PayloadHandler

	mu    sync.RWMutex
	peers map[peer.ID]*Peer

	cosigners  *CosignerStore // nil if Config.DB is nil
	bans       *BanManager
	connNotify *connNotifier
}

// Peer is a connected co-signer.
type Peer struct {
	ID          peer.ID
	ConnectedAt time.Time
	Source      string // "config", "mdns", "stored", "gossip"
}

// New creates a relay node with the given config.
func New(cfg Config) *Node {
	ctx, cancel := context.WithCancel(context.Background())
	n := &Node{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
		peers:  make(map[peer.ID]*Peer),
	}
	n.bans = NewBanManager(n)
	if cfg.DB != nil {
		n.cosigners = NewCosignerStore(cfg.DB)
	}
	return n
}

func (n *Node) rendezvous() string {
	return "cellwallet-cosign/" + n.config.Network
}

// Start creates the libp2p host, joins the payload topic and dials the
// configured peers.
func (n *Node) Start() error {
	addr := fmt.Sprintf("/ip4/%s/tcp/%d", n.config.ListenAddr, n.config.Port)
	opts := []libp2p.Option{
		libp2p.ListenAddrStrings(addr),
		libp2p.ConnectionGater(&banGater{bans: n.bans}),
	}
	if n.config.DataDir != "" {
		privKey, err := loadOrCreateIdentity(n.config.DataDir)
		if err != nil {
			return fmt.Errorf("load cosign identity: %w", err)
		}
		opts = append(opts, libp2p.Identity(privKey))
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return fmt.Errorf("create libp2p host: %w", err)
	}
	n.host = h
	n.connNotify = &connNotifier{node: n}
	h.Network().Notify(n.connNotify)

	ps, err := pubsub.NewGossipSub(n.ctx, h,
		pubsub.WithMaxMessageSize(MaxPayloadSize),
		pubsub.WithMessageIdFn(messageID),
	)
	if err != nil {
		h.Close()
		return fmt.Errorf("create pubsub: %w", err)
	}
	n.pubsub = ps

	n.topic, err = ps.Join(PayloadTopic(n.config.Network))
	if err != nil {
		h.Close()
		return fmt.Errorf("join payload topic: %w", err)
	}
	n.sub, err = n.topic.Subscribe()
	if err != nil {
		h.Close()
		return fmt.Errorf("subscribe payloads: %w", err)
	}

	go n.readLoop()

	n.connectConfigured()
	go n.reconnectStored()
	if !n.config.NoDiscover {
		svc := mdns.NewMdnsService(n.host, n.rendezvous(), &discoveryNotifee{node: n})
		// mDNS failure is non-fatal.
		_ = svc.Start()
	}

	klog.Cosign.Info().
		Str("id", h.ID().String()).
		Str("topic", PayloadTopic(n.config.Network)).
		Msg("Cosign relay started")
	return nil
}

// Stop remembers the connected co-signers and shuts the node down.
func (n *Node) Stop() error {
	n.persistPeers()
	n.cancel()
	if n.sub != nil {
		n.sub.Cancel()
	}
	if n.topic != nil {
		n.topic.Close()
	}
	if n.host != nil {
		return n.host.Close()
	}
	return nil
}

// ID returns the peer ID of this node.
func (n *Node) ID() peer.ID {
	if n.host == nil {
		return ""
	}
	return n.host.ID()
}

// Addrs returns the full multiaddrs of this node.
func (n *Node) Addrs() []string {
	if n.host == nil {
		return nil
	}
	var addrs []string
	for _, a := range n.host.Addrs() {
		addrs = append(addrs, fmt.Sprintf("%s/p2p/%s", a, n.host.ID()))
	}
	return addrs
}

// SetPayloadHandler registers the callback for incoming payloads.
func (n *Node) SetPayloadHandler(fn PayloadHandler) {
	n.handlerMu.Lock()
	defer n.handlerMu.Unlock()
	n.handler = fn
}

// Connect dials a co-signer by its full multiaddr.
func (n *Node) Connect(ctx context.Context, addr string) error {
	if n.host == nil {
		return ErrNotStarted
	}
	info, err := peer.AddrInfoFromString(addr)
	if err != nil {
		return fmt.Errorf("parse peer address: %w", err)
	}
	if err := n.host.Connect(ctx, *info); err != nil {
		return err
	}
	n.addPeer(info.ID, "config")
	return nil
}

// Publish gossips a payload to the co-signers.
func (n *Node) Publish(ctx context.Context, p *multisig.Payload) error {
	if n.topic == nil {
		return ErrNotStarted
	}
	data, err := p.Marshal()
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if len(data) > MaxPayloadSize {
		return fmt.Errorf("payload of %d bytes exceeds %d", len(data), MaxPayloadSize)
	}
	if err := n.topic.Publish(ctx, data); err != nil {
		return err
	}
	klog.Cosign.Debug().Str("tx_hash", p.Transaction.Hash().String()).Int("bytes", len(data)).Msg("Payload published")
	return nil
}

// Bans returns the node's ban manager.
func (n *Node) Bans() *BanManager {
	return n.bans
}

// DisconnectPeer closes every connection to the peer.
func (n *Node) DisconnectPeer(id peer.ID) {
	if n.host == nil {
		return
	}
	n.host.Network().ClosePeer(id)
	n.removePeer(id)
}

// PeerCount returns the number of connected peers.
func (n *Node) PeerCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.peers)
}

// PeerList returns a snapshot of connected peers.
func (n *Node) PeerList() []*Peer {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*Peer, 0, len(n.peers))
	for _, p := range n.peers {
		out = append(out, p)
	}
	return out
}

func (n *Node) addPeer(id peer.ID, source string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if p, exists := n.peers[id]; exists {
		if p.Source == "" {
			p.Source = source
		}
		return
	}
	n.peers[id] = &Peer{ID: id, ConnectedAt: time.Now(), Source: source}
}

func (n *Node) removePeer(id peer.ID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.peers, id)
}

func (n *Node) readLoop() {
	for {
		msg, err := n.sub.Next(n.ctx)
		if err != nil {
			return // Context cancelled.
		}
		if msg.ReceivedFrom == n.host.ID() || n.bans.IsBanned(msg.ReceivedFrom) {
			continue
		}
		n.handleMessage(msg)
	}
}

func (n *Node) handleMessage(msg *pubsub.Message) {
	defer func() {
		if r := recover(); r != nil {
			klog.Cosign.Error().Interface("panic", r).Msg("Payload handler panicked")
		}
	}()
	n.addPeer(msg.ReceivedFrom, "gossip")

	p, err := multisig.ImportPayload(msg.Data)
	if err != nil {
		klog.Cosign.Warn().Str("peer", shortID(msg.ReceivedFrom)).Err(err).Msg("Dropped invalid payload")
		n.bans.RecordOffense(msg.ReceivedFrom, PenaltyInvalidPayload, "invalid payload")
		return
	}
	n.handlerMu.RLock()
	handler := n.handler
	n.handlerMu.RUnlock()
	if handler != nil {
		handler(msg.ReceivedFrom, p)
	}
}

// connectConfigured dials every configured peer once.
func (n *Node) connectConfigured() {
	for _, addr := range n.config.Peers {
		ctx, cancel := context.WithTimeout(n.ctx, peerConnectTimeout)
		err := n.Connect(ctx, addr)
		cancel()
		if err != nil {
			klog.Cosign.Warn().Str("addr", addr).Err(err).Msg("Co-signer connect failed")
		}
	}
}

// persistPeers remembers the connected co-signers. Best-effort.
func (n *Node) persistPeers() {
	if n.cosigners == nil || n.host == nil {
		return
	}
	now := time.Now().Unix()
	for _, p := range n.PeerList() {
		addrs := n.host.Peerstore().Addrs(p.ID)
		rec := CosignerRecord{ID: p.ID.String(), LastSeen: now}
		for _, a := range addrs {
			rec.Addrs = append(rec.Addrs, a.String())
		}
		if err := n.cosigners.Save(rec); err != nil {
			klog.Cosign.Debug().Err(err).Msg("Co-signer not persisted")
		}
	}
}

// reconnectStored dials co-signers remembered from earlier runs.
func (n *Node) reconnectStored() {
	if n.cosigners == nil {
		return
	}
	if _, err := n.cosigners.PruneStale(staleThreshold); err != nil {
		klog.Cosign.Debug().Err(err).Msg("Prune co-signers failed")
	}
	records, err := n.cosigners.LoadAll()
	if err != nil {
		return
	}
	for _, rec := range records {
		info, err := rec.AddrInfo()
		if err != nil || info.ID == n.host.ID() || len(info.Addrs) == 0 {
			continue
		}
		ctx, cancel := context.WithTimeout(n.ctx, peerConnectTimeout)
		if n.host.Connect(ctx, info) == nil {
			n.addPeer(info.ID, "stored")
		}
		cancel()
	}
}

// loadOrCreateIdentity loads the node key from dataDir, generating and
// saving an Ed25519 key on first use.
func loadOrCreateIdentity(dataDir string) (libp2pcrypto.PrivKey, error) {
	keyPath := filepath.Join(dataDir, "cosign.key")

	data, err := os.ReadFile(keyPath)
	if err == nil {
		keyBytes, err := hex.DecodeString(string(data))
		if err != nil {
			return nil, fmt.Errorf("decode node key: %w", err)
		}
		return libp2pcrypto.UnmarshalEd25519PrivateKey(keyBytes)
	}

	priv, _, err := libp2pcrypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	raw, err := priv.Raw()
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(raw)), 0600); err != nil {
		return nil, fmt.Errorf("save node key: %w", err)
	}
	return priv, nil
}

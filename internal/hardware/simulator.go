package hardware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Klingon-tech/cellwallet/internal/wallet"
	"github.com/Klingon-tech/cellwallet/pkg/tx"
)

// SimulatorFamily is the device family of the software simulator.
const SimulatorFamily = "simulator"

// Simulator is a software device backed by an HD master key. It follows
// the device protocol, including latency, and is used for development and
// tests.
type Simulator struct {
	info    wallet.DeviceInfo
	master  *wallet.MasterKey
	Latency time.Duration

	mu        sync.Mutex
	connected bool
}

// NewSimulator creates a simulator holding master.
func NewSimulator(info wallet.DeviceInfo, master *wallet.MasterKey) *Simulator {
	if info.Family == "" {
		info.Family = SimulatorFamily
	}
	return &Simulator{info: info, master: master}
}

// RegisterSimulator registers a simulator factory for master. Every
// opened device shares the key.
func RegisterSimulator(r *Registry, master *wallet.MasterKey, latency time.Duration) {
	r.Register(SimulatorFamily, func(info wallet.DeviceInfo) (Device, error) {
		sim := NewSimulator(info, master)
		sim.Latency = latency
		return sim, nil
	})
}

var _ Device = (*Simulator)(nil)

func (s *Simulator) Info() wallet.DeviceInfo {
	return s.info
}

// wait simulates device latency.
func (s *Simulator) wait(ctx context.Context) error {
	if s.Latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.Latency)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Simulator) Connect(ctx context.Context) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return nil
}

func (s *Simulator) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

// Connected reports whether the simulator is connected.
func (s *Simulator) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Simulator) ready(ctx context.Context) error {
	if !s.Connected() {
		return ErrNotConnected
	}
	return s.wait(ctx)
}

func (s *Simulator) GetPublicKey(ctx context.Context, path string) ([]byte, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	key, err := s.master.Derive(path)
	if err != nil {
		return nil, err
	}
	defer key.Zero()
	return append([]byte{}, key.PublicKeyBytes()...), nil
}

func (s *Simulator) GetExtendedPublicKey(ctx context.Context) (*wallet.AccountKey, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return s.master.AccountKey()
}

func (s *Simulator) SignMessage(ctx context.Context, path string, message []byte) ([]byte, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return s.sign(path, message)
}

// SignTransaction computes the group's signing message from the
// transaction and witnesses, as a device does, and signs it.
func (s *Simulator) SignTransaction(ctx context.Context, req TxSignRequest) ([]byte, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if req.Tx == nil || len(req.Witnesses) == 0 {
		return nil, fmt.Errorf("sign transaction: nothing to sign")
	}
	msg := tx.SigningMessage(req.Tx.Hash(), req.Witnesses)
	return s.sign(req.Path, msg[:])
}

func (s *Simulator) sign(path string, message []byte) ([]byte, error) {
	key, err := s.master.Derive(path)
	if err != nil {
		return nil, err
	}
	defer key.Zero()
	priv, err := key.Signer()
	if err != nil {
		return nil, err
	}
	defer priv.Zero()
	return priv.Sign(message)
}

func (s *Simulator) AppVersion(ctx context.Context) (string, error) {
	return "1.0.0-sim", s.ready(ctx)
}

func (s *Simulator) FirmwareVersion(ctx context.Context) (string, error) {
	return "sim", s.ready(ctx)
}

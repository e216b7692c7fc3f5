package hardware

import (
	"context"
	"errors"
	"sync"
	"time"

	klog "github.com/Klingon-tech/cellwallet/internal/log"
	"github.com/Klingon-tech/cellwallet/internal/txerr"
	"github.com/Klingon-tech/cellwallet/internal/wallet"
)

// DefaultTimeout bounds a single device call.
const DefaultTimeout = 60 * time.Second

// Manager owns access to the attached device. One session holds it at a
// time; others wait for it or for their context.
type Manager struct {
	registry *Registry
	sem      chan struct{}
	Timeout  time.Duration
}

// NewManager creates a manager over registry.
func NewManager(registry *Registry) *Manager {
	return &Manager{registry: registry, sem: make(chan struct{}, 1), Timeout: DefaultTimeout}
}

// Session is an exclusive, connected device handle. Close must be called
// on every path; it disconnects and releases the device.
type Session struct {
	dev     Device
	m       *Manager
	release sync.Once
}

// Acquire waits for the device, opens and connects it.
func (m *Manager) Acquire(ctx context.Context, info wallet.DeviceInfo) (*Session, error) {
	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	dev, err := m.registry.Open(info)
	if err != nil {
		<-m.sem
		return nil, txerr.Wrap(txerr.DeviceError, err, "open %s device", info.Family)
	}
	s := &Session{dev: dev, m: m}
	_, err = call(ctx, s, "connect", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, dev.Connect(ctx)
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	klog.Hardware.Debug().Str("family", info.Family).Str("model", info.Model).Msg("Device session opened")
	return s, nil
}

// Close disconnects the device and releases it to the next session.
func (s *Session) Close() {
	s.release.Do(func() {
		if err := s.dev.Disconnect(); err != nil {
			klog.Hardware.Warn().Err(err).Msg("Device disconnect failed")
		}
		<-s.m.sem
	})
}

// Device returns the underlying device.
func (s *Session) Device() Device {
	return s.dev
}

type result[T any] struct {
	value T
	err   error
}

// call runs fn under the manager's timeout. An expired timeout becomes
// HardwareTimeout; other failures become DeviceError. Cancellation of the
// caller's context is returned as is.
func call[T any](ctx context.Context, s *Session, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	timeout := s.m.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan result[T], 1)
	go func() {
		v, err := fn(callCtx)
		done <- result[T]{v, err}
	}()

	select {
	case r := <-done:
		if r.err == nil {
			return r.value, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if errors.Is(r.err, context.DeadlineExceeded) {
			return zero, txerr.Wrap(txerr.HardwareTimeout, r.err, "device %s", op)
		}
		return zero, txerr.Wrap(txerr.DeviceError, r.err, "device %s", op)
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, txerr.New(txerr.HardwareTimeout, "device %s did not answer within %s", op, timeout)
	}
}

// GetPublicKey returns the compressed public key at path.
func (s *Session) GetPublicKey(ctx context.Context, path string) ([]byte, error) {
	return call(ctx, s, "get public key", func(ctx context.Context) ([]byte, error) {
		return s.dev.GetPublicKey(ctx, path)
	})
}

// GetExtendedPublicKey returns the account extended public key.
func (s *Session) GetExtendedPublicKey(ctx context.Context) (*wallet.AccountKey, error) {
	return call(ctx, s, "get extended public key", s.dev.GetExtendedPublicKey)
}

// SignMessage signs a 32-byte digest with the key at path.
func (s *Session) SignMessage(ctx context.Context, path string, message []byte) ([]byte, error) {
	return call(ctx, s, "sign message", func(ctx context.Context) ([]byte, error) {
		return s.dev.SignMessage(ctx, path, message)
	})
}

// SignTransaction signs one lock group of a transaction.
func (s *Session) SignTransaction(ctx context.Context, req TxSignRequest) ([]byte, error) {
	return call(ctx, s, "sign transaction", func(ctx context.Context) ([]byte, error) {
		return s.dev.SignTransaction(ctx, req)
	})
}

// AppVersion returns the device application version.
func (s *Session) AppVersion(ctx context.Context) (string, error) {
	return call(ctx, s, "app version", s.dev.AppVersion)
}

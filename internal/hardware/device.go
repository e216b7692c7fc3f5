// Package hardware abstracts hardware signing devices. The signing engine
// only sees the Device capability; each device family registers a factory.
package hardware

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Klingon-tech/cellwallet/internal/wallet"
	"github.com/Klingon-tech/cellwallet/pkg/tx"
)

var (
	// ErrUnknownFamily is returned when no factory is registered for a
	// device family.
	ErrUnknownFamily = errors.New("unknown device family")
	// ErrNotConnected is returned by device calls made before Connect.
	ErrNotConnected = errors.New("device not connected")
)

// TxSignRequest asks a device to sign one lock group of a transaction.
// Witnesses are the group's witnesses as hashed for signing: the first
// with a zeroed lock, the rest of the group, then the extra witnesses.
type TxSignRequest struct {
	WalletID  string
	Tx        *tx.Transaction
	Witnesses [][]byte
	Path      string
	// Context holds the transactions that created the inputs, for devices
	// that display amounts.
	Context []*tx.Transaction
}

// Device is a hardware signer. Signatures are 65-byte recoverable
// secp256k1 signatures. The device resolves key material from the
// derivation path itself.
type Device interface {
	Info() wallet.DeviceInfo
	Connect(ctx context.Context) error
	Disconnect() error
	GetPublicKey(ctx context.Context, path string) ([]byte, error)
	GetExtendedPublicKey(ctx context.Context) (*wallet.AccountKey, error)
	SignMessage(ctx context.Context, path string, message []byte) ([]byte, error)
	SignTransaction(ctx context.Context, req TxSignRequest) ([]byte, error)
	AppVersion(ctx context.Context) (string, error)
	FirmwareVersion(ctx context.Context) (string, error)
}

// Factory opens a device of one family.
type Factory func(info wallet.DeviceInfo) (Device, error)

// Registry maps device families to their factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces the factory of a family.
func (r *Registry) Register(family string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[family] = f
}

// Open creates a device for info using its family's factory.
func (r *Registry) Open(info wallet.DeviceInfo) (Device, error) {
	r.mu.RLock()
	f, ok := r.factories[info.Family]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFamily, info.Family)
	}
	return f(info)
}

// Families lists the registered families in name order.
func (r *Registry) Families() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

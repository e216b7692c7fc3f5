package wallet

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	klog "github.com/Klingon-tech/cellwallet/internal/log"
	"github.com/Klingon-tech/cellwallet/internal/storage"
	"github.com/Klingon-tech/cellwallet/pkg/types"
)

// Address gap limits: how many unused addresses are kept ahead of the last
// used one on each chain.
const (
	DefaultReceivingGap = 20
	DefaultChangeGap    = 10
)

// AddressType is the BIP-44 chain an address belongs to.
type AddressType uint32

const (
	AddressReceiving AddressType = ChangeExternal
	AddressChange    AddressType = ChangeInternal
)

func (t AddressType) String() string {
	if t == AddressChange {
		return "change"
	}
	return "receiving"
}

// AddressInfo is one derived wallet address.
type AddressInfo struct {
	WalletID string         `json:"wallet_id"`
	Address  string         `json:"address"`
	Blake160 types.Blake160 `json:"blake160"`
	Path     string         `json:"path"`
	Type     AddressType    `json:"type"`
	Index    uint32         `json:"index"`
	Used     bool           `json:"used"`
}

// LockScript returns the address's single-key lock.
func (a AddressInfo) LockScript() types.Script {
	return types.NewSecpScript(a.Blake160)
}

// AddressRegistry lists a wallet's derived addresses.
type AddressRegistry interface {
	Addresses(ctx context.Context, walletID string) ([]AddressInfo, error)
}

// AccountKeySource supplies the account public key of a wallet.
type AccountKeySource interface {
	AccountKey(walletID string) (*AccountKey, error)
}

// AddressBook persists derived addresses and keeps the gap of unused
// addresses filled. It implements AddressRegistry.
type AddressBook struct {
	mu      sync.Mutex
	db      storage.DB
	keys    AccountKeySource
	network types.Network

	ReceivingGap int
	ChangeGap    int
}

var _ AddressRegistry = (*AddressBook)(nil)

// NewAddressBook creates an address book storing entries in db.
func NewAddressBook(db storage.DB, keys AccountKeySource, network types.Network) *AddressBook {
	return &AddressBook{
		db:           db,
		keys:         keys,
		network:      network,
		ReceivingGap: DefaultReceivingGap,
		ChangeGap:    DefaultChangeGap,
	}
}

// walletPrefix is walletID followed by a NUL separator, so that no wallet's
// keyspace is a prefix of another's.
func walletPrefix(walletID string) []byte {
	return append([]byte(walletID), 0)
}

func addressKey(walletID string, t AddressType, index uint32) []byte {
	k := walletPrefix(walletID)
	k = append(k, byte(t))
	return binary.BigEndian.AppendUint32(k, index)
}

// Addresses returns the wallet's addresses: receiving first, then change,
// each by index.
func (b *AddressBook) Addresses(ctx context.Context, walletID string) ([]AddressInfo, error) {
	var out []AddressInfo
	err := b.db.ForEach(walletPrefix(walletID), func(_, value []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var info AddressInfo
		if err := json.Unmarshal(value, &info); err != nil {
			return fmt.Errorf("decode address: %w", err)
		}
		out = append(out, info)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Lookup finds the wallet address with the given lock args.
func (b *AddressBook) Lookup(ctx context.Context, walletID string, args types.Blake160) (AddressInfo, bool, error) {
	addrs, err := b.Addresses(ctx, walletID)
	if err != nil {
		return AddressInfo{}, false, err
	}
	for _, a := range addrs {
		if a.Blake160 == args {
			return a, true, nil
		}
	}
	return AddressInfo{}, false, nil
}

// CheckAndGenerateAddresses derives new addresses until each chain has its
// gap of unused addresses after the last used one.
func (b *AddressBook) CheckAndGenerateAddresses(ctx context.Context, walletID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	addrs, err := b.Addresses(ctx, walletID)
	if err != nil {
		return err
	}

	var account *AccountKey
	batch := storage.NewWriteBatch(b.db)
	generated := 0
	for _, chain := range []struct {
		t   AddressType
		gap int
	}{{AddressReceiving, b.ReceivingGap}, {AddressChange, b.ChangeGap}} {
		next, lastUsed := uint32(0), -1
		for _, a := range addrs {
			if a.Type != chain.t {
				continue
			}
			next = a.Index + 1
			if a.Used {
				lastUsed = int(a.Index)
			}
		}
		want := uint32(lastUsed + 1 + chain.gap)
		for idx := next; idx < want; idx++ {
			if account == nil {
				if account, err = b.keys.AccountKey(walletID); err != nil {
					return fmt.Errorf("account key for %q: %w", walletID, err)
				}
			}
			info, err := b.derive(account, walletID, chain.t, idx)
			if err != nil {
				return err
			}
			data, err := json.Marshal(info)
			if err != nil {
				return err
			}
			if err := batch.Put(addressKey(walletID, chain.t, idx), data); err != nil {
				return err
			}
			generated++
		}
	}
	if generated == 0 {
		return nil
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("store addresses: %w", err)
	}
	logger := klog.WithWallet(klog.Wallet, walletID)
	logger.Debug().Int("count", generated).Msg("Generated addresses")
	return nil
}

func (b *AddressBook) derive(account *AccountKey, walletID string, t AddressType, index uint32) (AddressInfo, error) {
	args, err := account.DeriveBlake160(uint32(t), index)
	if err != nil {
		return AddressInfo{}, fmt.Errorf("derive %s/%d: %w", t, index, err)
	}
	return AddressInfo{
		WalletID: walletID,
		Address:  types.NewAddress(b.network, types.NewSecpScript(args)).String(),
		Blake160: args,
		Path:     AddressPath(uint32(t), index),
		Type:     t,
		Index:    index,
	}, nil
}

// MarkUsed flags the addresses with the given lock args as used.
func (b *AddressBook) MarkUsed(ctx context.Context, walletID string, args []types.Blake160) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	wanted := make(map[types.Blake160]struct{}, len(args))
	for _, a := range args {
		wanted[a] = struct{}{}
	}
	addrs, err := b.Addresses(ctx, walletID)
	if err != nil {
		return err
	}
	batch := storage.NewWriteBatch(b.db)
	for _, a := range addrs {
		if _, ok := wanted[a.Blake160]; !ok || a.Used {
			continue
		}
		a.Used = true
		data, err := json.Marshal(a)
		if err != nil {
			return err
		}
		if err := batch.Put(addressKey(walletID, a.Type, a.Index), data); err != nil {
			return err
		}
	}
	return batch.Commit()
}

// NextUnused returns the lowest-index unused address of the given type.
func (b *AddressBook) NextUnused(ctx context.Context, walletID string, t AddressType) (AddressInfo, error) {
	addrs, err := b.Addresses(ctx, walletID)
	if err != nil {
		return AddressInfo{}, err
	}
	for _, a := range addrs {
		if a.Type == t && !a.Used {
			return a, nil
		}
	}
	return AddressInfo{}, fmt.Errorf("wallet %q has no unused %s address", walletID, t)
}

// DeleteWallet removes every address of the wallet.
func (b *AddressBook) DeleteWallet(walletID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return storage.NewPrefixDB(b.db, walletPrefix(walletID)).DeleteAll()
}

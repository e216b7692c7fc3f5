package signer

import (
	"github.com/Klingon-tech/cellwallet/internal/multisig"
	"github.com/Klingon-tech/cellwallet/internal/txerr"
	"github.com/Klingon-tech/cellwallet/internal/wallet"
	"github.com/Klingon-tech/cellwallet/pkg/crypto"
	"github.com/Klingon-tech/cellwallet/pkg/tx"
	"github.com/Klingon-tech/cellwallet/pkg/types"
)

// chequeArgsSize is receiver lock hash prefix ‖ sender lock hash prefix.
const chequeArgsSize = 2 * types.Blake160Size

type ownerKind int

const (
	ownerSingle ownerKind = iota
	ownerTimelock
	ownerMultisig
)

func (k ownerKind) String() string {
	switch k {
	case ownerTimelock:
		return "timelock"
	case ownerMultisig:
		return "multisig"
	}
	return "single"
}

// owner is the wallet key that signs one lock group.
type owner struct {
	kind     ownerKind
	path     string
	blake160 types.Blake160
	// cfg is set for timelock and multisig owners.
	cfg *multisig.Config
}

// lockSize is the length of the zero lock placeholder hashed for signing.
func (o owner) lockSize() int {
	if o.cfg != nil {
		return o.cfg.WitnessLockSize()
	}
	return crypto.SignatureSize
}

// witnessLock builds the final witness lock from our signature. Multisig
// owners never produce it directly; the coordinator assembles theirs.
func (o owner) witnessLock(sig []byte) []byte {
	if o.kind == ownerTimelock {
		return append(o.cfg.Script(), sig...)
	}
	return sig
}

// plan pairs a lock group with the key that signs it.
type plan struct {
	group tx.LockGroup
	owner owner
}

// resolveOwner finds the wallet key owning a lock by the shape of its
// args: a key hash, a time-locked 1-of-1 multisig over a key hash, or a
// cheque naming one of our locks as receiver or sender.
func resolveOwner(walletID string, lock types.Script, addrs []wallet.AddressInfo) (owner, error) {
	args := lock.Args
	switch len(args) {
	case types.Blake160Size:
		var keyHash types.Blake160
		copy(keyHash[:], args)
		for _, a := range addrs {
			if a.Blake160 == keyHash {
				return owner{kind: ownerSingle, path: a.Path, blake160: a.Blake160}, nil
			}
		}
	case multisig.TimelockArgsSize:
		scriptHash, since, _ := multisig.SplitTimelockArgs(args)
		if since == 0 {
			break
		}
		for _, a := range addrs {
			cfg, err := multisig.NewTimelockConfig(walletID, a.Blake160, since)
			if err != nil {
				return owner{}, err
			}
			if cfg.ScriptHash() == scriptHash {
				return owner{kind: ownerTimelock, path: a.Path, blake160: a.Blake160, cfg: cfg}, nil
			}
		}
	case chequeArgsSize:
		var receiver, sender types.Blake160
		copy(receiver[:], args[:types.Blake160Size])
		copy(sender[:], args[types.Blake160Size:])
		for _, a := range addrs {
			prefix := a.LockScript().Hash().Blake160()
			if prefix == receiver || prefix == sender {
				return owner{kind: ownerSingle, path: a.Path, blake160: a.Blake160}, nil
			}
		}
	}
	return owner{}, txerr.New(txerr.NoMatchAddressForSign, "no wallet key owns lock %s", lock.Hash())
}

// resolveMultisigSigner picks the first signer of cfg that belongs to the
// wallet and has not signed yet.
func resolveMultisigSigner(cfg *multisig.Config, addrs []wallet.AddressInfo, signed []tx.SignatureEntry) (owner, error) {
	done := make(map[types.Blake160]struct{}, len(signed))
	for _, e := range signed {
		done[e.Signer] = struct{}{}
	}
	for _, signer := range cfg.Blake160s {
		if _, ok := done[signer]; ok {
			continue
		}
		for _, a := range addrs {
			if a.Blake160 == signer {
				return owner{kind: ownerMultisig, path: a.Path, blake160: signer, cfg: cfg}, nil
			}
		}
	}
	return owner{}, txerr.New(txerr.NoMatchAddressForSign, "no unsigned wallet key in multisig %s", cfg.LockHash())
}

// Package multisig models m-of-n multisig locks and coordinates the
// collection of their signatures across signing sessions.
package multisig

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/Klingon-tech/cellwallet/internal/txerr"
	"github.com/Klingon-tech/cellwallet/pkg/crypto"
	"github.com/Klingon-tech/cellwallet/pkg/types"
)

// Script layout: reserved(1) | r(1) | m(1) | n(1) | blake160s(20*n).
const (
	scriptHeaderSize = 4
	// MaxSigners is the largest signer count the script encoding allows.
	MaxSigners = 255
	// ArgsSize is the length of plain multisig lock args.
	ArgsSize = types.Blake160Size
	// TimelockArgsSize is the length of lock args carrying a since value.
	TimelockArgsSize = types.Blake160Size + 8
)

// Config is an m-of-n multisig definition. The first R signers in
// Blake160s must always sign.
type Config struct {
	ID        string           `json:"id"`
	WalletID  string           `json:"wallet_id"`
	M         uint8            `json:"m"`
	N         uint8            `json:"n"`
	R         uint8            `json:"r"`
	Blake160s []types.Blake160 `json:"blake160s"`
	Alias     string           `json:"alias,omitempty"`
	// Since, when non-zero, is appended to the lock args and locks the
	// cell until it is satisfied.
	Since uint64 `json:"since,omitempty"`
}

// NewConfig builds and validates a config.
func NewConfig(walletID string, m, r uint8, blake160s []types.Blake160) (*Config, error) {
	if len(blake160s) > MaxSigners {
		return nil, txerr.New(txerr.InvalidMultisigConfig, "%d signers exceed the maximum of %d", len(blake160s), MaxSigners)
	}
	c := &Config{
		WalletID:  walletID,
		M:         m,
		N:         uint8(len(blake160s)),
		R:         r,
		Blake160s: append([]types.Blake160(nil), blake160s...),
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c.ID = c.LockHash().String()
	return c, nil
}

// NewTimelockConfig returns the 1-of-1 config locking a cell to a single
// key until since is satisfied.
func NewTimelockConfig(walletID string, signer types.Blake160, since uint64) (*Config, error) {
	c := &Config{WalletID: walletID, M: 1, N: 1, Blake160s: []types.Blake160{signer}, Since: since}
	if since == 0 {
		return nil, txerr.New(txerr.InvalidMultisigConfig, "time lock needs a since value")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c.ID = c.LockHash().String()
	return c, nil
}

// SplitTimelockArgs splits 28-byte lock args into the script hash and the
// since value.
func SplitTimelockArgs(args []byte) (types.Blake160, uint64, bool) {
	if len(args) != TimelockArgsSize {
		return types.Blake160{}, 0, false
	}
	var h types.Blake160
	copy(h[:], args[:types.Blake160Size])
	return h, binary.LittleEndian.Uint64(args[types.Blake160Size:]), true
}

// Validate checks 0 < m <= n, r <= m, len(blake160s) == n and that the
// signers are unique.
func (c *Config) Validate() error {
	switch {
	case c.M == 0:
		return txerr.New(txerr.InvalidMultisigConfig, "m must be positive")
	case c.M > c.N:
		return txerr.New(txerr.InvalidMultisigConfig, "m (%d) exceeds n (%d)", c.M, c.N)
	case c.R > c.M:
		return txerr.New(txerr.InvalidMultisigConfig, "r (%d) exceeds m (%d)", c.R, c.M)
	case len(c.Blake160s) != int(c.N):
		return txerr.New(txerr.InvalidMultisigConfig, "n is %d but %d signers are listed", c.N, len(c.Blake160s))
	}
	seen := make(map[types.Blake160]struct{}, len(c.Blake160s))
	for _, b := range c.Blake160s {
		if _, dup := seen[b]; dup {
			return txerr.New(txerr.InvalidMultisigConfig, "signer %s listed twice", b)
		}
		seen[b] = struct{}{}
	}
	if c.Since != 0 {
		if err := types.Since(c.Since).Validate(); err != nil {
			return txerr.Wrap(txerr.InvalidMultisigConfig, err, "bad since")
		}
	}
	return nil
}

// Script returns the multisig script bytes.
func (c *Config) Script() []byte {
	out := make([]byte, 0, scriptHeaderSize+types.Blake160Size*len(c.Blake160s))
	out = append(out, 0, c.R, c.M, c.N)
	for _, b := range c.Blake160s {
		out = append(out, b[:]...)
	}
	return out
}

// ScriptHash returns blake160 of the multisig script.
func (c *Config) ScriptHash() types.Blake160 {
	return crypto.Blake160(c.Script())
}

// Args returns the lock args: the script hash, followed by the 8-byte LE
// since when the config is time-locked.
func (c *Config) Args() []byte {
	h := c.ScriptHash()
	args := h.Bytes()
	if c.Since != 0 {
		args = append(args, types.PackUint64(c.Since)...)
	}
	return args
}

// LockScript returns the multisig lock.
func (c *Config) LockScript() types.Script {
	return types.Script{CodeHash: types.MultisigCodeHash, HashType: types.HashTypeType, Args: c.Args()}
}

// LockHash returns the hash of the multisig lock.
func (c *Config) LockHash() types.Hash {
	return c.LockScript().Hash()
}

// Address renders the multisig lock as a full-format address.
func (c *Config) Address(network types.Network) types.Address {
	return types.NewAddress(network, c.LockScript())
}

// SignerIndex returns the position of signer in Blake160s, or -1.
func (c *Config) SignerIndex(signer types.Blake160) int {
	for i, b := range c.Blake160s {
		if b == signer {
			return i
		}
	}
	return -1
}

// WitnessLockSize is the size of a complete witness lock: the script plus
// m signatures.
func (c *Config) WitnessLockSize() int {
	return scriptHeaderSize + types.Blake160Size*len(c.Blake160s) + crypto.SignatureSize*int(c.M)
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.Blake160s = append([]types.Blake160(nil), c.Blake160s...)
	return &out
}

// String summarizes the config for logs.
func (c *Config) String() string {
	return fmt.Sprintf("%d-of-%d(r=%d) %s", c.M, c.N, c.R, c.LockHash())
}

// DecodeScript parses multisig script bytes back into a config. The result
// carries no wallet, alias or since.
func DecodeScript(script []byte) (*Config, error) {
	if len(script) < scriptHeaderSize {
		return nil, txerr.New(txerr.InvalidMultisigConfig, "script too short: %d bytes", len(script))
	}
	if script[0] != 0 {
		return nil, txerr.New(txerr.InvalidMultisigConfig, "reserved byte is %#x", script[0])
	}
	r, m, n := script[1], script[2], script[3]
	if len(script) != scriptHeaderSize+types.Blake160Size*int(n) {
		return nil, txerr.New(txerr.InvalidMultisigConfig, "script of %d bytes cannot hold %d signers", len(script), n)
	}
	c := &Config{M: m, N: n, R: r, Blake160s: make([]types.Blake160, n)}
	for i := range c.Blake160s {
		off := scriptHeaderSize + i*types.Blake160Size
		copy(c.Blake160s[i][:], script[off:off+types.Blake160Size])
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// DecodeWitnessLock splits a witness lock into its config and the
// signatures that follow the script.
func DecodeWitnessLock(lock []byte) (*Config, [][]byte, error) {
	if len(lock) < scriptHeaderSize {
		return nil, nil, txerr.New(txerr.InvalidMultisigConfig, "witness lock too short: %d bytes", len(lock))
	}
	scriptLen := scriptHeaderSize + types.Blake160Size*int(lock[3])
	if len(lock) < scriptLen {
		return nil, nil, txerr.New(txerr.InvalidMultisigConfig, "witness lock truncated")
	}
	cfg, err := DecodeScript(lock[:scriptLen])
	if err != nil {
		return nil, nil, err
	}
	rest := lock[scriptLen:]
	if len(rest)%crypto.SignatureSize != 0 {
		return nil, nil, txerr.New(txerr.InvalidMultisigConfig, "witness lock carries a partial signature")
	}
	sigs := make([][]byte, 0, len(rest)/crypto.SignatureSize)
	for off := 0; off < len(rest); off += crypto.SignatureSize {
		sigs = append(sigs, rest[off:off+crypto.SignatureSize])
	}
	return cfg, sigs, nil
}

// MarshalJSON keeps the derived lock hash alongside the stored fields for
// readers of exported payloads.
func (c *Config) MarshalJSON() ([]byte, error) {
	type plain Config
	return json.Marshal(struct {
		*plain
		LockHash types.Hash `json:"lock_hash"`
	}{(*plain)(c), c.LockHash()})
}

// UnmarshalJSON decodes a config; the derived lock hash is recomputed, not
// trusted.
func (c *Config) UnmarshalJSON(data []byte) error {
	type plain Config
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = Config(p)
	return nil
}

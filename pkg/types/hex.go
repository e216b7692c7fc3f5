package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Bytes is a byte slice that encodes to 0x-prefixed hex in JSON, the form the
// node RPC uses for every variable-length field.
type Bytes []byte

// String returns the 0x-prefixed hex encoding.
func (b Bytes) String() string {
	return "0x" + hex.EncodeToString(b)
}

// MarshalJSON encodes the bytes as a hex string.
func (b Bytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

// UnmarshalJSON decodes a hex string.
func (b *Bytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	raw, err := DecodeHex(s)
	if err != nil {
		return fmt.Errorf("invalid hex bytes: %w", err)
	}
	*b = raw
	return nil
}

// Uint64 encodes as a 0x-prefixed hex quantity ("0x1a").
type Uint64 uint64

// MarshalJSON encodes the number as a hex quantity.
func (u Uint64) MarshalJSON() ([]byte, error) {
	return json.Marshal(EncodeUint64(uint64(u)))
}

// UnmarshalJSON decodes a hex quantity.
func (u *Uint64) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := DecodeUint64(s)
	if err != nil {
		return err
	}
	*u = Uint64(v)
	return nil
}

// Uint32 encodes as a 0x-prefixed hex quantity.
type Uint32 uint32

// MarshalJSON encodes the number as a hex quantity.
func (u Uint32) MarshalJSON() ([]byte, error) {
	return json.Marshal(EncodeUint64(uint64(u)))
}

// UnmarshalJSON decodes a hex quantity.
func (u *Uint32) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := DecodeUint64(s)
	if err != nil {
		return err
	}
	if v > 0xffffffff {
		return fmt.Errorf("hex quantity %s overflows uint32", s)
	}
	*u = Uint32(v)
	return nil
}

// EncodeUint64 formats v as a hex quantity.
func EncodeUint64(v uint64) string {
	return "0x" + strconv.FormatUint(v, 16)
}

// DecodeUint64 parses a 0x-prefixed hex quantity.
func DecodeUint64(s string) (uint64, error) {
	if !strings.HasPrefix(s, "0x") {
		return 0, fmt.Errorf("hex quantity %q missing 0x prefix", s)
	}
	v, err := strconv.ParseUint(s[2:], 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid hex quantity %q: %w", s, err)
	}
	return v, nil
}

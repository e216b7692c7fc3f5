package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Network selects the address prefix and system cell deps.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
)

// Address HRP (human-readable part) constants.
const (
	MainnetHRP = "ckb"
	TestnetHRP = "ckt"
)

// Address payload format tags.
const (
	formatFull      byte = 0x00
	formatShort     byte = 0x01
	formatFullData  byte = 0x02
	formatFullType  byte = 0x04
	shortSecpIndex  byte = 0x00
	shortMultiIndex byte = 0x01
)

// ErrInvalidAddress is returned for any address that cannot be decoded.
var ErrInvalidAddress = errors.New("invalid address")

// HRP returns the bech32 prefix for the network.
func (n Network) HRP() string {
	if n == Testnet {
		return TestnetHRP
	}
	return MainnetHRP
}

// NetworkFromHRP maps a bech32 prefix to a network.
func NetworkFromHRP(hrp string) (Network, error) {
	switch hrp {
	case MainnetHRP:
		return Mainnet, nil
	case TestnetHRP:
		return Testnet, nil
	}
	return "", fmt.Errorf("%w: unknown prefix %q", ErrInvalidAddress, hrp)
}

// Address is a lock script rendered for one network.
type Address struct {
	Network Network
	Script  Script
}

// NewAddress pairs a lock script with a network.
func NewAddress(network Network, lock Script) Address {
	return Address{Network: network, Script: lock}
}

// String returns the full-format bech32m address.
func (a Address) String() string {
	s, err := a.Encode()
	if err != nil {
		return ""
	}
	return s
}

// Encode renders the full-format (0x00) bech32m address:
// 0x00 | code_hash | hash_type | args.
func (a Address) Encode() (string, error) {
	payload := make([]byte, 0, 1+HashSize+1+len(a.Script.Args))
	payload = append(payload, formatFull)
	payload = append(payload, a.Script.CodeHash[:]...)
	payload = append(payload, byte(a.Script.HashType))
	payload = append(payload, a.Script.Args...)
	return Bech32EncodeVariant(a.Network.HRP(), payload, Bech32m)
}

// MarshalJSON encodes the address string.
func (a Address) MarshalJSON() ([]byte, error) {
	s, err := a.Encode()
	if err != nil {
		return nil, err
	}
	return json.Marshal(s)
}

// UnmarshalJSON decodes an address string.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress decodes a full-format address and the deprecated short and
// old full formats.
func ParseAddress(s string) (Address, error) {
	hrp, payload, variant, err := Bech32DecodeVariant(s)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	network, err := NetworkFromHRP(hrp)
	if err != nil {
		return Address{}, err
	}
	if len(payload) == 0 {
		return Address{}, fmt.Errorf("%w: empty payload", ErrInvalidAddress)
	}

	switch payload[0] {
	case formatFull:
		if variant != Bech32m {
			return Address{}, fmt.Errorf("%w: full format requires bech32m", ErrInvalidAddress)
		}
		if len(payload) < 1+HashSize+1 {
			return Address{}, fmt.Errorf("%w: full payload too short", ErrInvalidAddress)
		}
		ht := HashType(payload[1+HashSize])
		if ht > HashTypeData1 {
			return Address{}, fmt.Errorf("%w: hash type %d", ErrInvalidAddress, ht)
		}
		var lock Script
		copy(lock.CodeHash[:], payload[1:1+HashSize])
		lock.HashType = ht
		lock.Args = append([]byte{}, payload[2+HashSize:]...)
		return Address{Network: network, Script: lock}, nil

	case formatShort:
		if variant != Bech32 || len(payload) != 2+Blake160Size {
			return Address{}, fmt.Errorf("%w: short payload", ErrInvalidAddress)
		}
		lock := Script{HashType: HashTypeType, Args: append([]byte{}, payload[2:]...)}
		switch payload[1] {
		case shortSecpIndex:
			lock.CodeHash = SecpCodeHash
		case shortMultiIndex:
			lock.CodeHash = MultisigCodeHash
		default:
			return Address{}, fmt.Errorf("%w: short code hash index %d", ErrInvalidAddress, payload[1])
		}
		return Address{Network: network, Script: lock}, nil

	case formatFullData, formatFullType:
		if variant != Bech32 || len(payload) < 1+HashSize {
			return Address{}, fmt.Errorf("%w: old full payload", ErrInvalidAddress)
		}
		lock := Script{HashType: HashTypeData, Args: append([]byte{}, payload[1+HashSize:]...)}
		if payload[0] == formatFullType {
			lock.HashType = HashTypeType
		}
		copy(lock.CodeHash[:], payload[1:1+HashSize])
		return Address{Network: network, Script: lock}, nil
	}
	return Address{}, fmt.Errorf("%w: unknown format %#x", ErrInvalidAddress, payload[0])
}

// ParseAddressOn decodes s and checks it belongs to the given network.
func ParseAddressOn(network Network, s string) (Address, error) {
	a, err := ParseAddress(s)
	if err != nil {
		return Address{}, err
	}
	if a.Network != network {
		return Address{}, fmt.Errorf("%w: %s address on %s", ErrInvalidAddress, a.Network, network)
	}
	return a, nil
}

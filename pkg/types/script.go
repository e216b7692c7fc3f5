package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// HashType selects how a script's code hash is matched against cell deps.
type HashType uint8

const (
	HashTypeData  HashType = 0x00 // code hash is the data hash of the code cell
	HashTypeType  HashType = 0x01 // code hash is the type script hash of the code cell
	HashTypeData1 HashType = 0x02 // data hash, VM version 1
)

// String returns the RPC name of the hash type.
func (ht HashType) String() string {
	switch ht {
	case HashTypeData:
		return "data"
	case HashTypeType:
		return "type"
	case HashTypeData1:
		return "data1"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(ht))
	}
}

// ParseHashType converts an RPC name into a HashType.
func ParseHashType(s string) (HashType, error) {
	switch s {
	case "data":
		return HashTypeData, nil
	case "type":
		return HashTypeType, nil
	case "data1":
		return HashTypeData1, nil
	}
	return 0, fmt.Errorf("unknown hash type %q", s)
}

// MarshalJSON encodes the hash type by name.
func (ht HashType) MarshalJSON() ([]byte, error) {
	return json.Marshal(ht.String())
}

// UnmarshalJSON decodes a hash type name.
func (ht *HashType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseHashType(s)
	if err != nil {
		return err
	}
	*ht = parsed
	return nil
}

// System script code hashes (hash type "type"), identical on mainnet and
// testnet.
var (
	SecpCodeHash     = MustHexToHash("0x9bd7e06f3ecf4be0f2fcd2188b23f1b9fcc88e5d4b65a8637b17723bbda3cce8")
	MultisigCodeHash = MustHexToHash("0x5c5069eb0857efc65e1bca0c07df34c31663b3622fd3876c876320fc9634e2a8")
	DaoCodeHash      = MustHexToHash("0x82d76d1b75fe2fd9a27dfbaa65a039221a380d76c926f378d3f81cf3e7e13f2e")
)

// Script is a lock or type script: code hash, hash type and arguments.
type Script struct {
	CodeHash Hash     `json:"code_hash"`
	HashType HashType `json:"hash_type"`
	Args     Bytes    `json:"args"`
}

// NewSecpScript returns the single-key lock for a public key fingerprint.
func NewSecpScript(blake160 Blake160) Script {
	return Script{CodeHash: SecpCodeHash, HashType: HashTypeType, Args: blake160.Bytes()}
}

// NewDaoScript returns the DAO type script.
func NewDaoScript() Script {
	return Script{CodeHash: DaoCodeHash, HashType: HashTypeType, Args: []byte{}}
}

// Equal reports whether both scripts have the same code hash, hash type and
// args.
func (s Script) Equal(other Script) bool {
	return s.CodeHash == other.CodeHash &&
		s.HashType == other.HashType &&
		bytes.Equal(s.Args, other.Args)
}

// IsSecp reports whether s is a single-key secp256k1/blake160 lock.
func (s Script) IsSecp() bool {
	return s.CodeHash == SecpCodeHash && s.HashType == HashTypeType
}

// IsMultisig reports whether s is a multisig lock.
func (s Script) IsMultisig() bool {
	return s.CodeHash == MultisigCodeHash && s.HashType == HashTypeType
}

// IsDao reports whether s is the DAO type script.
func (s Script) IsDao() bool {
	return s.CodeHash == DaoCodeHash && s.HashType == HashTypeType
}

// Serialize returns the molecule table encoding of the script.
func (s Script) Serialize() []byte {
	return SerializeTable([][]byte{
		s.CodeHash[:],
		{byte(s.HashType)},
		SerializeBytes(s.Args),
	})
}

// Hash returns the script hash (lock hash / type hash).
func (s Script) Hash() Hash {
	return CKBHash(s.Serialize())
}

// OccupiedBytes is the number of bytes the script occupies in a cell.
func (s Script) OccupiedBytes() uint64 {
	return HashSize + 1 + uint64(len(s.Args))
}

// Clone returns a deep copy of the script.
func (s Script) Clone() Script {
	args := make([]byte, len(s.Args))
	copy(args, s.Args)
	return Script{CodeHash: s.CodeHash, HashType: s.HashType, Args: args}
}

// SerializeScriptOpt encodes an optional script; nil is None.
func SerializeScriptOpt(s *Script) []byte {
	if s == nil {
		return nil
	}
	return s.Serialize()
}

// DecodeScript parses a molecule-encoded script.
func DecodeScript(data []byte) (Script, error) {
	fields, err := DecodeTable(data)
	if err != nil {
		return Script{}, err
	}
	if len(fields) != 3 || len(fields[0]) != HashSize || len(fields[1]) != 1 {
		return Script{}, fmt.Errorf("%w: script layout", ErrMolecule)
	}
	args, err := DecodeBytes(fields[2])
	if err != nil {
		return Script{}, err
	}
	var s Script
	copy(s.CodeHash[:], fields[0])
	s.HashType = HashType(fields[1][0])
	s.Args = args
	return s, nil
}

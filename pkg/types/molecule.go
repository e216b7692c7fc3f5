package types

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Molecule is the chain's canonical serialization. All integers are little
// endian; dynamic containers start with a u32 total size.

// ErrMolecule is returned when a molecule buffer is malformed.
var ErrMolecule = errors.New("malformed molecule data")

const moleculeHeader = 4

// PackUint32 encodes v as 4 little-endian bytes.
func PackUint32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// PackUint64 encodes v as 8 little-endian bytes.
func PackUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

// SerializeBytes encodes a molecule Bytes: u32 length followed by data.
func SerializeBytes(data []byte) []byte {
	out := make([]byte, 0, moleculeHeader+len(data))
	out = append(out, PackUint32(uint32(len(data)))...)
	return append(out, data...)
}

// SerializeBytesOpt encodes an optional Bytes; nil is None (no bytes at all).
func SerializeBytesOpt(data []byte) []byte {
	if data == nil {
		return nil
	}
	return SerializeBytes(data)
}

// SerializeFixVec encodes a vector of fixed-size items: u32 item count
// followed by the items.
func SerializeFixVec(items [][]byte) []byte {
	out := PackUint32(uint32(len(items)))
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

// SerializeTable encodes a table (or dynamic vector): u32 total size, one u32
// offset per field, then the fields.
func SerializeTable(fields [][]byte) []byte {
	headerSize := moleculeHeader * (1 + len(fields))
	total := headerSize
	for _, f := range fields {
		total += len(f)
	}

	out := make([]byte, 0, total)
	out = append(out, PackUint32(uint32(total))...)
	offset := headerSize
	for _, f := range fields {
		out = append(out, PackUint32(uint32(offset))...)
		offset += len(f)
	}
	for _, f := range fields {
		out = append(out, f...)
	}
	return out
}

// SerializeDynVec encodes a vector of dynamically sized items. The layout is
// identical to a table.
func SerializeDynVec(items [][]byte) []byte {
	return SerializeTable(items)
}

// DecodeTable splits a table buffer into its raw fields. It verifies the
// header and offsets but not the fields themselves.
func DecodeTable(data []byte) ([][]byte, error) {
	if len(data) < moleculeHeader {
		return nil, fmt.Errorf("%w: table shorter than header", ErrMolecule)
	}
	total := int(binary.LittleEndian.Uint32(data))
	if total != len(data) {
		return nil, fmt.Errorf("%w: table size %d, buffer %d", ErrMolecule, total, len(data))
	}
	if total == moleculeHeader {
		return [][]byte{}, nil
	}
	if total < 2*moleculeHeader {
		return nil, fmt.Errorf("%w: truncated offsets", ErrMolecule)
	}
	first := int(binary.LittleEndian.Uint32(data[moleculeHeader:]))
	if first%moleculeHeader != 0 || first < 2*moleculeHeader || first > total {
		return nil, fmt.Errorf("%w: bad first offset %d", ErrMolecule, first)
	}
	count := first/moleculeHeader - 1
	offsets := make([]int, count+1)
	for i := 0; i < count; i++ {
		offsets[i] = int(binary.LittleEndian.Uint32(data[moleculeHeader*(i+1):]))
	}
	offsets[count] = total

	fields := make([][]byte, count)
	for i := 0; i < count; i++ {
		start, end := offsets[i], offsets[i+1]
		if start > end || end > total {
			return nil, fmt.Errorf("%w: field %d offsets out of order", ErrMolecule, i)
		}
		fields[i] = data[start:end]
	}
	return fields, nil
}

// DecodeBytes decodes a molecule Bytes into its payload.
func DecodeBytes(data []byte) ([]byte, error) {
	if len(data) < moleculeHeader {
		return nil, fmt.Errorf("%w: bytes shorter than header", ErrMolecule)
	}
	n := int(binary.LittleEndian.Uint32(data))
	if n != len(data)-moleculeHeader {
		return nil, fmt.Errorf("%w: bytes length %d, payload %d", ErrMolecule, n, len(data)-moleculeHeader)
	}
	out := make([]byte, n)
	copy(out, data[moleculeHeader:])
	return out, nil
}

// DecodeBytesOpt decodes an optional Bytes; an empty field is None (nil).
func DecodeBytesOpt(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	return DecodeBytes(data)
}

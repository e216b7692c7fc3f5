package types

import (
	"errors"
	"fmt"
	"math/bits"
)

// Epoch field widths inside a packed epoch value.
const (
	epochNumberBits = 24
	epochIndexBits  = 16
	epochLengthBits = 16

	epochIndexShift  = epochNumberBits
	epochLengthShift = epochNumberBits + epochIndexBits

	MaxEpochNumber = 1<<epochNumberBits - 1
	MaxEpochIndex  = 1<<epochIndexBits - 1
	MaxEpochLength = 1<<epochLengthBits - 1
)

// ErrEpochOverflow is returned when an epoch field does not fit its width.
var ErrEpochOverflow = errors.New("epoch field overflow")

// Epoch is a decomposed epoch position: whole epoch Number plus the fraction
// Index/Length within it.
type Epoch struct {
	Number uint64 `json:"number"`
	Index  uint64 `json:"index"`
	Length uint64 `json:"length"`
}

// ParseEpoch decomposes a packed epoch value (number bits 0-23, index bits
// 24-39, length bits 40-55).
func ParseEpoch(packed uint64) Epoch {
	return Epoch{
		Number: packed & MaxEpochNumber,
		Index:  (packed >> epochIndexShift) & MaxEpochIndex,
		Length: (packed >> epochLengthShift) & MaxEpochLength,
	}
}

// Pack re-encodes the epoch. It fails if any field exceeds its width.
func (e Epoch) Pack() (uint64, error) {
	if e.Number > MaxEpochNumber || e.Index > MaxEpochIndex || e.Length > MaxEpochLength {
		return 0, fmt.Errorf("%w: %s", ErrEpochOverflow, e)
	}
	return e.Length<<epochLengthShift | e.Index<<epochIndexShift | e.Number, nil
}

// String renders the epoch as "number+index/length".
func (e Epoch) String() string {
	return fmt.Sprintf("%d+%d/%d", e.Number, e.Index, e.Length)
}

// FractionAfter reports whether e's in-epoch position index/length is
// strictly later than other's, compared by cross-multiplication.
func (e Epoch) FractionAfter(other Epoch) bool {
	hiA, loA := bits.Mul64(e.Index, other.Length)
	hiB, loB := bits.Mul64(other.Index, e.Length)
	if hiA != hiB {
		return hiA > hiB
	}
	return loA > loB
}

// Compare orders two epochs by number, then by fraction.
func (e Epoch) Compare(other Epoch) int {
	switch {
	case e.Number < other.Number:
		return -1
	case e.Number > other.Number:
		return 1
	case e.FractionAfter(other):
		return 1
	case other.FractionAfter(e):
		return -1
	}
	return 0
}

// AddEpochs returns e advanced by n whole epochs.
func (e Epoch) AddEpochs(n uint64) Epoch {
	e.Number += n
	return e
}

// SinceMetric is the unit of a since value.
type SinceMetric uint8

const (
	SinceBlockNumber SinceMetric = 0
	SinceEpoch       SinceMetric = 1
	SinceTimestamp   SinceMetric = 2
)

const (
	sinceRelativeFlag = uint64(1) << 63
	sinceMetricShift  = 61
	sinceMetricMask   = uint64(0x3) << sinceMetricShift
	sinceValueMask    = uint64(1)<<56 - 1
	sinceReservedMask = uint64(0x1f) << 56
)

// ErrInvalidSince is returned for a since value with reserved bits set or an
// out-of-range value.
var ErrInvalidSince = errors.New("invalid since value")

// Since is an input time lock: flag byte (relative bit, metric bits) over a
// 56-bit value.
type Since uint64

// NewSince builds a since value from its parts.
func NewSince(relative bool, metric SinceMetric, value uint64) (Since, error) {
	if metric > SinceTimestamp {
		return 0, fmt.Errorf("%w: metric %d", ErrInvalidSince, metric)
	}
	if value > sinceValueMask {
		return 0, fmt.Errorf("%w: value %d exceeds 56 bits", ErrInvalidSince, value)
	}
	v := uint64(metric)<<sinceMetricShift | value
	if relative {
		v |= sinceRelativeFlag
	}
	return Since(v), nil
}

// EpochSince returns the absolute epoch since for e: (0x20 << 56) +
// (length << 40) + (index << 24) + number.
func EpochSince(e Epoch) (Since, error) {
	packed, err := e.Pack()
	if err != nil {
		return 0, err
	}
	return NewSince(false, SinceEpoch, packed)
}

// Relative reports whether the since is relative to the input's commitment.
func (s Since) Relative() bool {
	return uint64(s)&sinceRelativeFlag != 0
}

// Metric returns the since unit.
func (s Since) Metric() SinceMetric {
	return SinceMetric((uint64(s) & sinceMetricMask) >> sinceMetricShift)
}

// Value returns the 56-bit value.
func (s Since) Value() uint64 {
	return uint64(s) & sinceValueMask
}

// Validate checks the reserved flag bits and metric.
func (s Since) Validate() error {
	if uint64(s)&sinceReservedMask != 0 {
		return fmt.Errorf("%w: reserved bits set in %#x", ErrInvalidSince, uint64(s))
	}
	if s.Metric() > SinceTimestamp {
		return fmt.Errorf("%w: metric bits 11", ErrInvalidSince)
	}
	return nil
}

// Epoch returns the decoded epoch for an epoch-metric since.
func (s Since) Epoch() (Epoch, bool) {
	if s.Metric() != SinceEpoch {
		return Epoch{}, false
	}
	return ParseEpoch(s.Value()), true
}

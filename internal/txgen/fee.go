package txgen

import (
	"math/bits"

	"github.com/Klingon-tech/cellwallet/pkg/tx"
)

// FeeOption selects how the fee is charged. A non-zero Fee is an absolute
// amount in shannons and wins over FeeRate (shannons per 1000 bytes). When
// both are zero the default rate applies.
type FeeOption struct {
	Fee     uint64
	FeeRate uint64
}

// Absolute reports whether the option charges a fixed fee.
func (o FeeOption) Absolute() bool {
	return o.Fee > 0
}

// Rate returns the fee rate in effect in rate mode.
func (o FeeOption) Rate() uint64 {
	if o.FeeRate == 0 {
		return tx.DefaultFeeRate
	}
	return o.FeeRate
}

// feeFor prices a transaction whose witnesses already hold placeholders of
// their final size.
func (o FeeOption) feeFor(t *tx.Transaction) (uint64, error) {
	if o.Absolute() {
		return o.Fee, nil
	}
	return tx.RequiredFee(t, o.Rate())
}

// addCapacity sums capacities, reporting overflow.
func addCapacity(values ...uint64) (uint64, bool) {
	var total uint64
	for _, v := range values {
		sum, carry := bits.Add64(total, v, 0)
		if carry != 0 {
			return 0, false
		}
		total = sum
	}
	return total, true
}

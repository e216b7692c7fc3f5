package tx

import (
	"fmt"
	"math/big"
)

// FeeRate is expressed in shannons per 1000 bytes.
const feeRateUnit = 1000

// DefaultFeeRate is the wallet's default fee rate (shannons per KB).
const DefaultFeeRate = 1000

// FeeForSize returns ceil(size * rate / 1000). The product is computed with
// big integers; the result must still fit a uint64.
func FeeForSize(size, feeRate uint64) (uint64, error) {
	product := new(big.Int).Mul(new(big.Int).SetUint64(size), new(big.Int).SetUint64(feeRate))
	unit := big.NewInt(feeRateUnit)
	quo, rem := new(big.Int).QuoRem(product, unit, new(big.Int))
	if rem.Sign() > 0 {
		quo.Add(quo, big.NewInt(1))
	}
	if !quo.IsUint64() {
		return 0, fmt.Errorf("fee overflow for size %d at rate %d", size, feeRate)
	}
	return quo.Uint64(), nil
}

// RequiredFee returns the fee for a fully built transaction at the given
// fee rate. Witnesses must already hold placeholders of their final size.
func RequiredFee(transaction *Transaction, feeRate uint64) (uint64, error) {
	return FeeForSize(transaction.SerializedSize(), feeRate)
}

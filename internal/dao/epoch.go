// Package dao computes the economics of Nervos DAO withdrawals: the lock
// period a deposit must serve and the minimal since of the phase-2 input.
package dao

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Klingon-tech/cellwallet/pkg/types"
)

// LockPeriodEpochs is the deposit lock cycle. A withdrawal may only
// complete after a whole number of cycles since the deposit.
const LockPeriodEpochs = 180

// DataSize is the size of a DAO cell's data: zeros for a deposit, the
// deposit block number for a withdrawing cell.
const DataSize = 8

var (
	// ErrInvalidDaoData is returned when a DAO cell's data is not 8 bytes.
	ErrInvalidDaoData = errors.New("dao cell data must be 8 bytes")
	// ErrWithdrawBeforeDeposit is returned when the withdraw epoch precedes
	// the deposit epoch.
	ErrWithdrawBeforeDeposit = errors.New("withdraw epoch precedes deposit epoch")
	// ErrNotDeposit is returned when a cell is not an unspent DAO deposit.
	ErrNotDeposit = errors.New("cell is not a dao deposit")
)

// DepositData is the data of a fresh deposit cell.
func DepositData() []byte {
	return make([]byte, DataSize)
}

// WithdrawingData records the deposit block number in a phase-1 cell.
func WithdrawingData(depositBlockNumber uint64) []byte {
	return types.PackUint64(depositBlockNumber)
}

// DepositBlockNumber reads the deposit block number out of a phase-1 cell.
func DepositBlockNumber(data []byte) (uint64, error) {
	if len(data) != DataSize {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidDaoData, len(data))
	}
	return binary.LittleEndian.Uint64(data), nil
}

// IsDepositData reports whether data marks an unwithdrawn deposit.
func IsDepositData(data []byte) bool {
	if len(data) != DataSize {
		return false
	}
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}

// ElapsedEpochs counts the epochs a deposit has served by the time of the
// withdraw request. A partially served epoch counts as a whole one when the
// withdraw's in-epoch position is later than the deposit's.
func ElapsedEpochs(deposit, withdraw types.Epoch) (uint64, error) {
	if withdraw.Number < deposit.Number {
		return 0, fmt.Errorf("%w: %s < %s", ErrWithdrawBeforeDeposit, withdraw, deposit)
	}
	elapsed := withdraw.Number - deposit.Number
	if withdraw.FractionAfter(deposit) {
		elapsed++
	}
	return elapsed, nil
}

// LockedEpochs rounds elapsed up to a whole number of lock periods.
func LockedEpochs(elapsed uint64) uint64 {
	periods := elapsed / LockPeriodEpochs
	if elapsed%LockPeriodEpochs != 0 {
		periods++
	}
	return periods * LockPeriodEpochs
}

// MinimalSince returns the absolute epoch since from which the deposit can
// be withdrawn: the deposit's position advanced by the locked epochs.
func MinimalSince(deposit, withdraw types.Epoch) (types.Since, error) {
	elapsed, err := ElapsedEpochs(deposit, withdraw)
	if err != nil {
		return 0, err
	}
	unlock := deposit.AddEpochs(LockedEpochs(elapsed))
	return types.EpochSince(unlock)
}

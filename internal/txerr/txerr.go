// Package txerr defines the typed failures surfaced by transaction
// generation, signing and broadcast. Every failure carries a
// machine-readable Kind plus a human-readable message.
package txerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	CellIsNotYetLive                     Kind = "CellIsNotYetLive"
	TransactionIsNotCommittedYet         Kind = "TransactionIsNotCommittedYet"
	CapacityNotEnough                    Kind = "CapacityNotEnough"
	CapacityNotEnoughForChange           Kind = "CapacityNotEnoughForChange"
	CapacityNotEnoughForChangeByTransfer Kind = "CapacityNotEnoughForChangeByTransfer"
	MultisigConfigNeedError              Kind = "MultisigConfigNeedError"
	NoMatchAddressForSign                Kind = "NoMatchAddressForSign"
	InvalidMultisigConfig                Kind = "InvalidMultisigConfig"
	HardwareTimeout                      Kind = "HardwareTimeout"
	DeviceError                          Kind = "DeviceError"
	DecryptionFailed                     Kind = "DecryptionFailed"
	InvalidPath                          Kind = "InvalidPath"
	InvalidMnemonic                      Kind = "InvalidMnemonic"
	NodeDisconnected                     Kind = "NodeDisconnected"
	TransactionNotFullySigned            Kind = "TransactionNotFullySigned"
)

// Error is a classified failure. Err, when set, is the underlying cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

// New creates a classified error.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so callers can test
// errors.Is(err, txerr.Sentinel(txerr.NoMatchAddressForSign)).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinel returns a bare error of the given kind for use with errors.Is.
func Sentinel(kind Kind) error {
	return &Error{Kind: kind}
}

// KindOf returns the kind of the first classified error in err's chain, or
// "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err's chain holds a failure of the given kind.
func IsKind(err error, kind Kind) bool {
	return errors.Is(err, Sentinel(kind))
}

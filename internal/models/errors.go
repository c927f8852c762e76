package models

import (
	"errors"

	"github.com/mmynk/settleup/internal/money"
)

// Error kinds returned by ledger operations. Callers match them with errors.Is.
var (
	ErrInvalidSplit              = errors.New("invalid split")
	ErrOverPayment               = errors.New("over payment")
	ErrOverReversal              = errors.New("over reversal")
	ErrNegativeAmount            = money.ErrNegativeAmount
	ErrAmountOverflow            = money.ErrOverflow
	ErrEmptyAllocationSet        = errors.New("empty allocation set")
	ErrAllocationNotFound        = errors.New("allocation not found")
	ErrDirectionMismatch         = errors.New("direction mismatch")
	ErrAllocationAmountMismatch  = errors.New("allocation amount mismatch")
	ErrPartialSettlementRejected = errors.New("partial settlement rejected")
	ErrReversalInconsistent      = errors.New("reversal inconsistent")
	ErrImmutableAfterSettlement  = errors.New("immutable after settlement")
	ErrConcurrentModification    = errors.New("concurrent modification")

	ErrNotFound       = errors.New("not found")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrDuplicateSplit = errors.New("duplicate split")
)

// kinds is checked in order; wrapper kinds come first so a rejected batch
// reports as rejected rather than by its cause.
var kinds = []struct {
	err  error
	name string
}{
	{ErrPartialSettlementRejected, "PartialSettlementRejected"},
	{ErrReversalInconsistent, "ReversalInconsistent"},
	{ErrConcurrentModification, "ConcurrentModification"},
	{ErrInvalidSplit, "InvalidSplit"},
	{ErrOverPayment, "OverPayment"},
	{ErrOverReversal, "OverReversal"},
	{ErrNegativeAmount, "NegativeAmount"},
	{ErrAmountOverflow, "AmountOverflow"},
	{ErrEmptyAllocationSet, "EmptyAllocationSet"},
	{ErrAllocationNotFound, "AllocationNotFound"},
	{ErrDirectionMismatch, "DirectionMismatch"},
	{ErrAllocationAmountMismatch, "AllocationAmountMismatch"},
	{ErrImmutableAfterSettlement, "ImmutableAfterSettlement"},
	{ErrNotFound, "NotFound"},
	{ErrInvalidAmount, "InvalidAmount"},
	{ErrDuplicateSplit, "DuplicateSplit"},
}

// Kind returns the stable name of the first error kind err matches,
// or "" if it matches none.
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return ""
}

// Kinds returns the names of every error kind err matches, outermost
// first. A rejected batch yields the wrapper followed by its cause.
func Kinds(err error) []string {
	var names []string
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			names = append(names, k.name)
		}
	}
	return names
}

// ErrorForKind is the inverse of Kind.
func ErrorForKind(name string) error {
	for _, k := range kinds {
		if k.name == name {
			return k.err
		}
	}
	return nil
}

// IsRetryable reports whether the request may succeed when retried with
// fresh state. Only ConcurrentModification is retryable.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

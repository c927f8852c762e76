package models

import "github.com/mmynk/settleup/internal/money"

// Expense is a source transaction recorded for a group.
// Its splits are derived at creation time.
type Expense struct {
	// ID is the unique identifier for the expense (UUID format).
	ID string

	// GroupID is the group this expense belongs to.
	GroupID string

	// Description is the human-readable label for the expense.
	Description string

	// PayerID is the member who paid the full amount.
	PayerID string

	// Amount is the total of the expense.
	Amount money.Amount

	// CreatedAt is the Unix timestamp when the expense was created.
	CreatedAt int64

	// Paid is true once every derived split is settled.
	Paid bool

	// Version is the store revision; 0 means not yet stored.
	Version int64
}

// Split is an obligation of OwedBy to OwedTo for one expense.
//
// Invariants: 0 <= Remaining <= Original and Paid == Remaining.IsZero().
type Split struct {
	// ID is the unique identifier for the split (UUID format).
	ID string

	// GroupID is the group this split belongs to.
	GroupID string

	// ExpenseID references the expense the split was derived from.
	ExpenseID string

	// ExpenseCreatedAt is copied from the expense so unpaid splits can be
	// ordered without loading expenses.
	ExpenseCreatedAt int64

	// OwedBy is the member who owes the money.
	OwedBy string

	// OwedTo is the member who is owed (the expense payer).
	OwedTo string

	// Original is the amount owed when the split was created.
	Original money.Amount

	// Remaining is the unsettled part of Original.
	Remaining money.Amount

	// Paid mirrors Remaining.IsZero().
	Paid bool

	// Version is the store revision; 0 means not yet stored.
	Version int64
}

// State returns the split's settlement state.
func (s *Split) State() SplitState {
	switch {
	case s.Remaining.IsZero():
		return SplitFullySettled
	case s.Remaining.Cmp(s.Original) == 0:
		return SplitUnsettled
	default:
		return SplitPartiallySettled
	}
}

// Settled returns Original - Remaining.
func (s *Split) Settled() money.Amount {
	settled, err := s.Original.Sub(s.Remaining)
	if err != nil {
		return money.Zero
	}
	return settled
}

// Clone returns a copy of the split.
func (s *Split) Clone() *Split {
	c := *s
	return &c
}

// Clone returns a copy of the expense.
func (e *Expense) Clone() *Expense {
	c := *e
	return &c
}

// SplitState is the position of a split in its settlement state machine.
type SplitState string

const (
	SplitUnsettled        SplitState = "unsettled"
	SplitPartiallySettled SplitState = "partially_settled"
	SplitFullySettled     SplitState = "fully_settled"
)

package models

import "github.com/mmynk/settleup/internal/money"

// HistoryEvent records one settlement action between two members.
// Events are never deleted; reversal retires allocations instead.
type HistoryEvent struct {
	// ID is the unique identifier for the event (UUID format).
	ID string

	// GroupID is the group this event belongs to.
	GroupID string

	// PayerID is the member who paid (debtor settling up).
	PayerID string

	// PayeeID is the member who received payment.
	PayeeID string

	// Total is the sum of allocation amounts at the time of recording.
	// It is kept as recorded; see ActiveTotal for the live figure.
	Total money.Amount

	// CreatedAt is the Unix timestamp when the event was recorded.
	CreatedAt int64

	// CreatedBy is the member ID who recorded this event.
	CreatedBy string

	// Note is an optional description.
	Note string

	// Status tracks reversal of the event.
	Status EventStatus

	// Allocations are ordered by Seq.
	Allocations []Allocation

	// Version is the store revision; 0 means not yet stored.
	Version int64
}

// Allocation is the part of a HistoryEvent applied to one split.
type Allocation struct {
	// Seq is the allocation's position within its event, starting at 0.
	Seq int

	// SplitID references the settled split.
	SplitID string

	// Amount is how much of the split this allocation settled.
	Amount money.Amount

	// Direction tells which member owed on the split.
	Direction Direction

	// ReversedAt is the Unix timestamp of reversal, 0 while active.
	ReversedAt int64
}

// Active reports whether the allocation still counts against its split.
func (a Allocation) Active() bool { return a.ReversedAt == 0 }

// Direction distinguishes which side of the payer/payee pair owed on a split.
type Direction int

const (
	// DirectionPayerOwesPayee means the payment reduced the payer's debt to the payee.
	DirectionPayerOwesPayee Direction = 1
	// DirectionPayeeOwesPayer means the payment reduced the payee's debt to the payer.
	DirectionPayeeOwesPayer Direction = -1
)

// DirectionFromPositive converts the display layer's boolean form.
func DirectionFromPositive(positive bool) Direction {
	if positive {
		return DirectionPayerOwesPayee
	}
	return DirectionPayeeOwesPayer
}

// Positive reports whether d is DirectionPayerOwesPayee.
func (d Direction) Positive() bool { return d == DirectionPayerOwesPayee }

func (d Direction) String() string {
	if d.Positive() {
		return "payer_owes_payee"
	}
	return "payee_owes_payer"
}

// EventStatus is the reversal state of a HistoryEvent.
type EventStatus string

const (
	EventActive            EventStatus = "active"
	EventPartiallyReversed EventStatus = "partially_reversed"
	EventFullyReversed     EventStatus = "fully_reversed"
)

// ActiveAllocations returns the allocations that have not been reversed.
func (e *HistoryEvent) ActiveAllocations() []Allocation {
	var active []Allocation
	for _, a := range e.Allocations {
		if a.Active() {
			active = append(active, a)
		}
	}
	return active
}

// ActiveTotal returns the signed sum of active allocations in minor units:
// positive allocations add, opposite-direction ones subtract.
func (e *HistoryEvent) ActiveTotal() int64 {
	var total int64
	for _, a := range e.Allocations {
		if !a.Active() {
			continue
		}
		total += int64(a.Direction) * a.Amount.Minor()
	}
	return total
}

// Clone returns a deep copy of the event.
func (e *HistoryEvent) Clone() *HistoryEvent {
	c := *e
	c.Allocations = append([]Allocation(nil), e.Allocations...)
	return &c
}

package ledger

import (
	"context"
	"fmt"
	"slices"

	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/money"
	"github.com/mmynk/settleup/internal/storage"
)

// ActiveAllocated sums active allocation amounts per split across events.
func ActiveAllocated(events []*models.HistoryEvent) (map[string]money.Amount, error) {
	sums := make(map[string]money.Amount)
	for _, e := range events {
		for _, a := range e.Allocations {
			if !a.Active() {
				continue
			}
			sum, err := sums[a.SplitID].Add(a.Amount)
			if err != nil {
				return nil, fmt.Errorf("split %s allocations: %w", a.SplitID, err)
			}
			sums[a.SplitID] = sum
		}
	}
	return sums, nil
}

// hasActiveAllocations reports whether any of the split IDs is referenced by
// an active allocation in the group's history.
func hasActiveAllocations(ctx context.Context, tx storage.Tx, groupID string, splitIDs ...string) (bool, error) {
	events, err := tx.ListEventsByGroup(ctx, groupID)
	if err != nil {
		return false, fmt.Errorf("failed to list events: %w", err)
	}
	sums, err := ActiveAllocated(events)
	if err != nil {
		return false, err
	}
	for _, id := range splitIDs {
		if !sums[id].IsZero() {
			return true, nil
		}
	}
	return false, nil
}

// UpdateOriginal changes the original amount of a split that has no active
// allocations. The remainder is reset to the new amount.
func (l *Ledger) UpdateOriginal(ctx context.Context, groupID, splitID string, amount money.Amount) (*models.Split, error) {
	if amount.IsZero() {
		return nil, fmt.Errorf("%w: split amount must be positive", models.ErrInvalidSplit)
	}
	var updated *models.Split
	err := l.store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		split, err := tx.GetSplit(ctx, groupID, splitID)
		if err != nil {
			return err
		}
		settled, err := hasActiveAllocations(ctx, tx, groupID, splitID)
		if err != nil {
			return err
		}
		if settled || split.Remaining.Cmp(split.Original) != 0 {
			return fmt.Errorf("%w: split %s has settlements", models.ErrImmutableAfterSettlement, splitID)
		}
		split.Original = amount
		split.Remaining = amount
		split.Paid = false
		if err := tx.PutSplit(ctx, split); err != nil {
			return fmt.Errorf("failed to update split: %w", err)
		}
		updated = split
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteExpense removes an expense and its splits. It is rejected with
// ErrImmutableAfterSettlement while any split has an active allocation.
func (l *Ledger) DeleteExpense(ctx context.Context, groupID, expenseID string) error {
	err := l.store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		expense, err := tx.GetExpense(ctx, groupID, expenseID)
		if err != nil {
			return err
		}
		splits, err := tx.ListSplitsByExpense(ctx, groupID, expenseID)
		if err != nil {
			return fmt.Errorf("failed to list splits: %w", err)
		}
		ids := make([]string, len(splits))
		for i, s := range splits {
			ids[i] = s.ID
		}
		settled, err := hasActiveAllocations(ctx, tx, groupID, ids...)
		if err != nil {
			return err
		}
		if settled {
			return fmt.Errorf("%w: expense %s has settled splits", models.ErrImmutableAfterSettlement, expenseID)
		}
		for _, s := range splits {
			if err := tx.DeleteSplit(ctx, s); err != nil {
				return fmt.Errorf("failed to delete split: %w", err)
			}
		}
		if err := tx.DeleteExpense(ctx, expense); err != nil {
			return fmt.Errorf("failed to delete expense: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	l.logger.Info("Expense deleted", "expense_id", expenseID, "group_id", groupID)
	return nil
}

// Discrepancy is a split whose settled amount disagrees with its history.
type Discrepancy struct {
	SplitID   string
	Settled   money.Amount // Original - Remaining
	Allocated money.Amount // sum of active allocations
	Reason    string
}

// Audit checks every split of the group against the conservation
// invariant original - remaining == sum(active allocations) and the
// paid flag. It returns one Discrepancy per violation.
func (l *Ledger) Audit(ctx context.Context, groupID string) ([]Discrepancy, error) {
	var found []Discrepancy
	err := l.store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		splits, err := tx.ListSplitsByGroup(ctx, groupID)
		if err != nil {
			return fmt.Errorf("failed to list splits: %w", err)
		}
		events, err := tx.ListEventsByGroup(ctx, groupID)
		if err != nil {
			return fmt.Errorf("failed to list events: %w", err)
		}
		allocated, err := ActiveAllocated(events)
		if err != nil {
			return err
		}
		found = audit(splits, allocated)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(found) > 0 {
		l.logger.Warn("Ledger audit found discrepancies", "group_id", groupID, "count", len(found))
	}
	return found, nil
}

func audit(splits []*models.Split, allocated map[string]money.Amount) []Discrepancy {
	SortSplits(splits)
	var found []Discrepancy
	known := make(map[string]bool, len(splits))
	for _, s := range splits {
		known[s.ID] = true
		d := Discrepancy{SplitID: s.ID, Allocated: allocated[s.ID]}
		settled, err := s.Original.Sub(s.Remaining)
		switch {
		case err != nil:
			d.Reason = "remaining exceeds original"
		case settled.Cmp(d.Allocated) != 0:
			d.Settled = settled
			d.Reason = "settled amount differs from active allocations"
		case s.Paid != s.Remaining.IsZero():
			d.Settled = settled
			d.Reason = "paid flag disagrees with remaining"
		default:
			continue
		}
		found = append(found, d)
	}
	var missing []string
	for id, amt := range allocated {
		if !known[id] && !amt.IsZero() {
			missing = append(missing, id)
		}
	}
	slices.Sort(missing)
	for _, id := range missing {
		found = append(found, Discrepancy{SplitID: id, Allocated: allocated[id], Reason: "active allocation references missing split"})
	}
	return found
}

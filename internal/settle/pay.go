package settle

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/mmynk/settleup/internal/calculator"
	"github.com/mmynk/settleup/internal/history"
	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/money"
	"github.com/mmynk/settleup/internal/storage"
)

// Payment settles Amount against one split.
type Payment struct {
	SplitID string
	Amount  money.Amount
}

// PayRequest is a batch of payments from PayerID to PayeeID.
type PayRequest struct {
	GroupID   string
	PayerID   string
	PayeeID   string
	CreatedBy string
	Note      string
	Payments  []Payment
}

// PaySplits settles every payment in the batch and records one history
// event for it. Either every payment is applied or none is: any invalid
// payment rejects the whole batch with ErrPartialSettlementRejected
// wrapping the cause.
//
// Every split must be owed by the payer to the payee.
func (c *Coordinator) PaySplits(ctx context.Context, req PayRequest) (*Result, error) {
	var result *Result
	err := c.run(ctx, OpPaySplits, func(ctx context.Context, tx storage.Tx) error {
		splits, err := c.loadBatch(ctx, tx, req)
		if err != nil {
			return err
		}

		allocs := make([]history.AllocationRequest, len(req.Payments))
		was := make([]bool, len(splits))
		for i, p := range req.Payments {
			was[i] = splits[i].Paid
			if _, err := c.ledger.ApplySettlementTx(ctx, tx, splits[i], p.Amount); err != nil {
				return err
			}
			allocs[i] = history.AllocationRequest{
				SplitID:   p.SplitID,
				Amount:    p.Amount,
				Direction: models.DirectionPayerOwesPayee,
			}
		}

		event, err := c.recorder.Record(ctx, tx, history.EventInfo{
			GroupID:   req.GroupID,
			PayerID:   req.PayerID,
			PayeeID:   req.PayeeID,
			CreatedBy: req.CreatedBy,
			Note:      req.Note,
		}, allocs)
		if err != nil {
			return err
		}

		expenses, err := syncExpenses(ctx, tx, req.GroupID, paidFlipped(splits, was))
		if err != nil {
			return err
		}
		result = &Result{Event: event, Splits: splits, Expenses: expenses}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("Splits paid",
		"group_id", req.GroupID,
		"event_id", result.Event.ID,
		"payer_id", req.PayerID,
		"payee_id", req.PayeeID,
		"splits", len(result.Splits),
		"total", result.Event.Total.Minor(),
	)
	return result, nil
}

// loadBatch reads and validates every split of the batch before anything is
// written. Validation failures are wrapped in ErrPartialSettlementRejected;
// store failures are returned as-is so conflicts stay retryable.
func (c *Coordinator) loadBatch(ctx context.Context, tx storage.Tx, req PayRequest) ([]*models.Split, error) {
	if len(req.Payments) == 0 {
		return nil, rejected(models.ErrEmptyAllocationSet)
	}
	if req.PayerID == "" || req.PayeeID == "" || req.PayerID == req.PayeeID {
		return nil, rejected(fmt.Errorf("%w: payer %q and payee %q must be distinct members",
			models.ErrDirectionMismatch, req.PayerID, req.PayeeID))
	}

	splits := make([]*models.Split, len(req.Payments))
	seen := make(map[string]bool, len(req.Payments))
	for i, p := range req.Payments {
		if seen[p.SplitID] {
			return nil, rejected(fmt.Errorf("%w: %s", models.ErrDuplicateSplit, p.SplitID))
		}
		seen[p.SplitID] = true

		if p.Amount.IsZero() {
			return nil, rejected(fmt.Errorf("%w: zero payment for split %s", models.ErrInvalidAmount, p.SplitID))
		}

		split, err := tx.GetSplit(ctx, req.GroupID, p.SplitID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil, rejected(err)
			}
			return nil, err
		}
		if split.OwedBy != req.PayerID || split.OwedTo != req.PayeeID {
			return nil, rejected(fmt.Errorf("%w: split %s is owed by %s to %s",
				models.ErrDirectionMismatch, split.ID, split.OwedBy, split.OwedTo))
		}
		if p.Amount.Cmp(split.Remaining) > 0 {
			return nil, rejected(fmt.Errorf("%w: split %s has %s remaining, requested %s",
				models.ErrOverPayment, split.ID, split.Remaining, p.Amount))
		}
		splits[i] = split
	}

	if err := checkPairOwed(ctx, tx, req); err != nil {
		return nil, err
	}
	return splits, nil
}

// checkPairOwed rejects a batch whose total exceeds everything the payer
// still owes the payee across the group.
func checkPairOwed(ctx context.Context, tx storage.Tx, req PayRequest) error {
	amounts := make([]money.Amount, len(req.Payments))
	for i, p := range req.Payments {
		amounts[i] = p.Amount
	}
	total, err := money.Sum(amounts...)
	if err != nil {
		return rejected(fmt.Errorf("%w: batch total: %w", models.ErrInvalidAmount, err))
	}

	group, err := tx.ListSplitsByGroup(ctx, req.GroupID)
	if err != nil {
		return fmt.Errorf("failed to list splits: %w", err)
	}
	owed, err := calculator.PairOwed(group, req.PayerID, req.PayeeID)
	switch {
	case errors.Is(err, money.ErrOverflow):
		// More is owed than any batch total can express.
	case err != nil:
		return err
	case total.Cmp(owed) > 0:
		return rejected(fmt.Errorf("%w: batch of %s exceeds the %s %s owes %s",
			models.ErrOverPayment, total, owed, req.PayerID, req.PayeeID))
	}
	return nil
}

// syncExpenses recomputes the paid flag of the expenses owning flipped, the
// splits whose own paid flag changed in this transaction. The expense is
// written even when its flag stays the same, so two transactions that each
// complete a different split of one expense conflict instead of both
// leaving it unpaid. Payments that change no split's paid flag leave
// expenses alone and do not contend with each other.
func syncExpenses(ctx context.Context, tx storage.Tx, groupID string, flipped []*models.Split) ([]*models.Expense, error) {
	var ids []string
	for _, s := range flipped {
		ids = append(ids, s.ExpenseID)
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	expenses := make([]*models.Expense, 0, len(ids))
	for _, id := range ids {
		expense, err := tx.GetExpense(ctx, groupID, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load expense: %w", err)
		}
		siblings, err := tx.ListSplitsByExpense(ctx, groupID, id)
		if err != nil {
			return nil, fmt.Errorf("failed to list splits: %w", err)
		}
		expense.Paid = true
		for _, s := range siblings {
			if !s.Remaining.IsZero() {
				expense.Paid = false
				break
			}
		}
		if err := tx.PutExpense(ctx, expense); err != nil {
			return nil, fmt.Errorf("failed to update expense: %w", err)
		}
		expenses = append(expenses, expense)
	}
	return expenses, nil
}

// paidFlipped returns the splits whose paid flag differs from was.
func paidFlipped(splits []*models.Split, was []bool) []*models.Split {
	var flipped []*models.Split
	for i, s := range splits {
		if s.Paid != was[i] {
			flipped = append(flipped, s)
		}
	}
	return flipped
}

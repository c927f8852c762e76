package settle

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmynk/settleup/internal/history"
	"github.com/mmynk/settleup/internal/ledger"
	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/money"
	"github.com/mmynk/settleup/internal/storage"
)

// UnpayEvent reverses every active allocation of an event and marks it
// fully reversed. An event with nothing left to reverse fails with
// ErrAllocationNotFound. If any split can no longer take its allocation
// back, the whole operation fails with ErrReversalInconsistent.
func (c *Coordinator) UnpayEvent(ctx context.Context, groupID, eventID string) (*Result, error) {
	var result *Result
	err := c.run(ctx, OpUnpayEvent, func(ctx context.Context, tx storage.Tx) error {
		event, err := tx.GetEvent(ctx, groupID, eventID)
		if err != nil {
			return err
		}
		active := event.ActiveAllocations()
		if len(active) == 0 {
			return fmt.Errorf("%w: event %s has no active allocations", models.ErrAllocationNotFound, eventID)
		}

		// Reverse in memory first so a bad allocation aborts before any write.
		splits := make([]*models.Split, len(active))
		was := make([]bool, len(active))
		for i, a := range active {
			split, err := loadForReversal(ctx, tx, groupID, a.SplitID)
			if err != nil {
				return err
			}
			was[i] = split.Paid
			if _, err := ledger.ReverseSettlement(split, a.Amount); err != nil {
				return inconsistent(err)
			}
			splits[i] = split
		}

		for _, split := range splits {
			if err := tx.PutSplit(ctx, split); err != nil {
				return fmt.Errorf("failed to update split: %w", err)
			}
		}
		if _, err := c.recorder.MarkEventReversed(ctx, tx, event); err != nil {
			return err
		}
		expenses, err := syncExpenses(ctx, tx, groupID, paidFlipped(splits, was))
		if err != nil {
			return err
		}
		result = &Result{Event: event, Splits: splits, Expenses: expenses}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("Event unpaid",
		"group_id", groupID,
		"event_id", eventID,
		"splits", len(result.Splits),
	)
	return result, nil
}

// UnpaySingleAllocation reverses the active allocation of splitID within
// an event, leaving the event's other allocations in place. amount and
// positive must match what the allocation recorded; they guard against a
// caller acting on stale state.
func (c *Coordinator) UnpaySingleAllocation(ctx context.Context, groupID, eventID, splitID string, amount money.Amount, positive bool) (*Result, error) {
	var result *Result
	err := c.run(ctx, OpUnpaySingleAllocation, func(ctx context.Context, tx storage.Tx) error {
		event, err := tx.GetEvent(ctx, groupID, eventID)
		if err != nil {
			return err
		}
		alloc, err := history.FindActive(event, splitID)
		if err != nil {
			return err
		}
		if alloc.Amount.Cmp(amount) != 0 {
			return fmt.Errorf("%w: allocation of split %s is %s, caller sent %s",
				models.ErrAllocationAmountMismatch, splitID, alloc.Amount, amount)
		}
		if alloc.Direction != models.DirectionFromPositive(positive) {
			return fmt.Errorf("%w: allocation of split %s is %s",
				models.ErrDirectionMismatch, splitID, alloc.Direction)
		}

		split, err := loadForReversal(ctx, tx, groupID, splitID)
		if err != nil {
			return err
		}
		if _, err := ledger.ReverseSettlement(split.Clone(), alloc.Amount); err != nil {
			return inconsistent(err)
		}
		was := []bool{split.Paid}
		if _, err := c.ledger.ReverseSettlementTx(ctx, tx, split, alloc.Amount); err != nil {
			return err
		}
		if _, err := c.recorder.MarkAllocationReversed(ctx, tx, event, splitID); err != nil {
			return err
		}
		splits := []*models.Split{split}
		expenses, err := syncExpenses(ctx, tx, groupID, paidFlipped(splits, was))
		if err != nil {
			return err
		}
		result = &Result{Event: event, Splits: splits, Expenses: expenses}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("Allocation unpaid",
		"group_id", groupID,
		"event_id", eventID,
		"split_id", splitID,
		"status", result.Event.Status,
	)
	return result, nil
}

// loadForReversal reads a split an allocation refers to. A split that no
// longer exists makes the reversal inconsistent.
func loadForReversal(ctx context.Context, tx storage.Tx, groupID, splitID string) (*models.Split, error) {
	split, err := tx.GetSplit(ctx, groupID, splitID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, inconsistent(err)
	}
	return split, err
}

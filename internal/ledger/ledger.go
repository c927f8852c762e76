// Package ledger owns the set of splits for each group: creation from
// expenses, settlement, reversal, and the unpaid view.
package ledger

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/money"
	"github.com/mmynk/settleup/internal/storage"
)

// Ledger manages splits in a storage.Store.
type Ledger struct {
	store  storage.Store
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Ledger backed by store.
func New(store storage.Store, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: store, logger: logger, now: time.Now}
}

// AddExpense stores expense and the splits derived from shares in one
// transaction. shares maps every participating member (the payer included)
// to the part of the expense they consumed.
func (l *Ledger) AddExpense(ctx context.Context, expense *models.Expense, shares map[string]money.Amount) ([]*models.Split, error) {
	if expense.ID == "" {
		expense.ID = uuid.New().String()
	}
	if expense.CreatedAt == 0 {
		expense.CreatedAt = l.now().Unix()
	}

	var splits []*models.Split
	err := l.store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		e := expense.Clone()
		planned, err := BuildSplits(e, shares)
		if err != nil {
			return err
		}
		// The expense row goes first; splits reference it.
		e.Paid = len(planned) == 0
		if err := tx.PutExpense(ctx, e); err != nil {
			return fmt.Errorf("failed to insert expense: %w", err)
		}
		built, err := l.CreateSplits(ctx, tx, e, shares)
		if err != nil {
			return err
		}
		*expense = *e
		splits = built
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.Info("Expense added",
		"expense_id", expense.ID,
		"group_id", expense.GroupID,
		"amount", expense.Amount.Minor(),
		"splits", len(splits),
	)
	return splits, nil
}

// CreateSplits creates one split per member who owes the payer a positive
// amount. Shares must add up to the expense amount within one minor unit.
func (l *Ledger) CreateSplits(ctx context.Context, tx storage.Tx, expense *models.Expense, shares map[string]money.Amount) ([]*models.Split, error) {
	splits, err := BuildSplits(expense, shares)
	if err != nil {
		return nil, err
	}
	for _, s := range splits {
		s.ID = uuid.New().String()
		if err := tx.PutSplit(ctx, s); err != nil {
			return nil, fmt.Errorf("failed to insert split: %w", err)
		}
	}
	return splits, nil
}

// BuildSplits validates shares against the expense and returns unsaved
// splits ordered by member ID.
func BuildSplits(expense *models.Expense, shares map[string]money.Amount) ([]*models.Split, error) {
	if expense.PayerID == "" {
		return nil, fmt.Errorf("%w: expense has no payer", models.ErrInvalidSplit)
	}
	if len(shares) == 0 {
		return nil, fmt.Errorf("%w: no shares", models.ErrInvalidSplit)
	}

	members := make([]string, 0, len(shares))
	for m := range shares {
		members = append(members, m)
	}
	slices.Sort(members)

	amounts := make([]money.Amount, 0, len(members))
	for _, m := range members {
		if m == "" {
			return nil, fmt.Errorf("%w: empty member ID", models.ErrInvalidSplit)
		}
		amounts = append(amounts, shares[m])
	}
	total, err := money.Sum(amounts...)
	if err != nil {
		return nil, fmt.Errorf("%w: shares total: %w", models.ErrInvalidSplit, err)
	}
	diff := total.Minor() - expense.Amount.Minor()
	if diff < -1 || diff > 1 {
		return nil, fmt.Errorf("%w: shares total %d, expense amount %d",
			models.ErrInvalidSplit, total.Minor(), expense.Amount.Minor())
	}

	var splits []*models.Split
	for _, m := range members {
		share := shares[m]
		if m == expense.PayerID || share.IsZero() {
			continue
		}
		splits = append(splits, &models.Split{
			GroupID:          expense.GroupID,
			ExpenseID:        expense.ID,
			ExpenseCreatedAt: expense.CreatedAt,
			OwedBy:           m,
			OwedTo:           expense.PayerID,
			Original:         share,
			Remaining:        share,
		})
	}
	return splits, nil
}

// ApplySettlement reduces the split's remaining amount and returns what is
// left. It fails with ErrOverPayment if amount exceeds the remainder.
func ApplySettlement(split *models.Split, amount money.Amount) (money.Amount, error) {
	if amount.IsZero() {
		return split.Remaining, fmt.Errorf("%w: zero settlement on split %s", models.ErrInvalidAmount, split.ID)
	}
	remaining, err := split.Remaining.Sub(amount)
	if err != nil {
		return split.Remaining, fmt.Errorf("%w: split %s has %s remaining, requested %s",
			models.ErrOverPayment, split.ID, split.Remaining, amount)
	}
	split.Remaining = remaining
	split.Paid = remaining.IsZero()
	return remaining, nil
}

// ReverseSettlement restores amount to the split's remainder. It fails with
// ErrOverReversal if the remainder would exceed the original amount.
func ReverseSettlement(split *models.Split, amount money.Amount) (money.Amount, error) {
	remaining, err := split.Remaining.Add(amount)
	if err != nil || remaining.Cmp(split.Original) > 0 {
		return split.Remaining, fmt.Errorf("%w: split %s has %s remaining of %s, reversing %s",
			models.ErrOverReversal, split.ID, split.Remaining, split.Original, amount)
	}
	split.Remaining = remaining
	split.Paid = remaining.IsZero()
	return remaining, nil
}

// ApplySettlementTx settles amount against a split loaded in tx and writes
// it back. The write is checked against the version the split was read at.
func (l *Ledger) ApplySettlementTx(ctx context.Context, tx storage.Tx, split *models.Split, amount money.Amount) (money.Amount, error) {
	remaining, err := ApplySettlement(split, amount)
	if err != nil {
		return remaining, err
	}
	if err := tx.PutSplit(ctx, split); err != nil {
		return remaining, fmt.Errorf("failed to update split: %w", err)
	}
	return remaining, nil
}

// ReverseSettlementTx restores amount to a split loaded in tx and writes it
// back. The write is checked against the version the split was read at.
func (l *Ledger) ReverseSettlementTx(ctx context.Context, tx storage.Tx, split *models.Split, amount money.Amount) (money.Amount, error) {
	remaining, err := ReverseSettlement(split, amount)
	if err != nil {
		return remaining, err
	}
	if err := tx.PutSplit(ctx, split); err != nil {
		return remaining, fmt.Errorf("failed to update split: %w", err)
	}
	return remaining, nil
}

// GetUnpaidSplits returns the group's splits with a positive remainder,
// ordered by expense creation time, then owed-by, then owed-to.
func (l *Ledger) GetUnpaidSplits(ctx context.Context, groupID string) ([]*models.Split, error) {
	var unpaid []*models.Split
	err := l.store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		splits, err := tx.ListSplitsByGroup(ctx, groupID)
		if err != nil {
			return err
		}
		for _, s := range splits {
			if !s.Remaining.IsZero() {
				unpaid = append(unpaid, s)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list unpaid splits: %w", err)
	}
	SortSplits(unpaid)
	return unpaid, nil
}

// ListSplits returns every split of the group in display order.
func (l *Ledger) ListSplits(ctx context.Context, groupID string) ([]*models.Split, error) {
	var splits []*models.Split
	err := l.store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		splits, err = tx.ListSplitsByGroup(ctx, groupID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list splits: %w", err)
	}
	SortSplits(splits)
	return splits, nil
}

// SortSplits orders splits by expense creation time, owed-by, owed-to,
// expense ID and finally split ID so the order is total.
func SortSplits(splits []*models.Split) {
	slices.SortFunc(splits, func(a, b *models.Split) int {
		return cmp.Or(
			cmp.Compare(a.ExpenseCreatedAt, b.ExpenseCreatedAt),
			cmp.Compare(a.OwedBy, b.OwedBy),
			cmp.Compare(a.OwedTo, b.OwedTo),
			cmp.Compare(a.ExpenseID, b.ExpenseID),
			cmp.Compare(a.ID, b.ID),
		)
	})
}

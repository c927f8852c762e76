package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mmynk/settleup/internal/models"
)

type tx struct {
	tx *sql.Tx
}

// checkUpdated turns a versioned UPDATE or DELETE that matched no row into
// a concurrent modification.
func checkUpdated(res sql.Result, kind, id string, version int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s is no longer at version %d", models.ErrConcurrentModification, kind, id, version)
	}
	return nil
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s not found: %s: %w", kind, id, models.ErrNotFound)
}

const expenseColumns = "group_id, id, description, payer_id, amount, created_at, paid, version"

func scanExpense(row interface{ Scan(...any) error }) (*models.Expense, error) {
	e := &models.Expense{}
	err := row.Scan(&e.GroupID, &e.ID, &e.Description, &e.PayerID, &e.Amount, &e.CreatedAt, &e.Paid, &e.Version)
	return e, err
}

func (t *tx) GetExpense(ctx context.Context, groupID, expenseID string) (*models.Expense, error) {
	e, err := scanExpense(t.tx.QueryRowContext(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE group_id = ? AND id = ?",
		groupID, expenseID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("expense", expenseID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", mapError(err))
	}
	return e, nil
}

func (t *tx) PutExpense(ctx context.Context, e *models.Expense) error {
	if e.Version == 0 {
		_, err := t.tx.ExecContext(ctx,
			"INSERT INTO expenses ("+expenseColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, 1)",
			e.GroupID, e.ID, e.Description, e.PayerID, e.Amount, e.CreatedAt, e.Paid,
		)
		if err != nil {
			return fmt.Errorf("failed to insert expense: %w", mapError(err))
		}
		e.Version = 1
		return nil
	}
	res, err := t.tx.ExecContext(ctx,
		`UPDATE expenses SET description = ?, payer_id = ?, amount = ?, created_at = ?, paid = ?, version = version + 1
		 WHERE group_id = ? AND id = ? AND version = ?`,
		e.Description, e.PayerID, e.Amount, e.CreatedAt, e.Paid, e.GroupID, e.ID, e.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", mapError(err))
	}
	if err := checkUpdated(res, "expense", e.ID, e.Version); err != nil {
		return err
	}
	e.Version++
	return nil
}

func (t *tx) DeleteExpense(ctx context.Context, e *models.Expense) error {
	res, err := t.tx.ExecContext(ctx,
		"DELETE FROM expenses WHERE group_id = ? AND id = ? AND version = ?",
		e.GroupID, e.ID, e.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", mapError(err))
	}
	return checkUpdated(res, "expense", e.ID, e.Version)
}

const splitColumns = "group_id, id, expense_id, expense_created_at, owed_by, owed_to, original, remaining, paid, version"

func scanSplit(row interface{ Scan(...any) error }) (*models.Split, error) {
	s := &models.Split{}
	err := row.Scan(&s.GroupID, &s.ID, &s.ExpenseID, &s.ExpenseCreatedAt, &s.OwedBy, &s.OwedTo,
		&s.Original, &s.Remaining, &s.Paid, &s.Version)
	return s, err
}

func (t *tx) GetSplit(ctx context.Context, groupID, splitID string) (*models.Split, error) {
	s, err := scanSplit(t.tx.QueryRowContext(ctx,
		"SELECT "+splitColumns+" FROM splits WHERE group_id = ? AND id = ?",
		groupID, splitID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("split", splitID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get split: %w", mapError(err))
	}
	return s, nil
}

func (t *tx) listSplits(ctx context.Context, where string, args ...any) ([]*models.Split, error) {
	rows, err := t.tx.QueryContext(ctx, "SELECT "+splitColumns+" FROM splits WHERE "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list splits: %w", mapError(err))
	}
	defer rows.Close()

	var splits []*models.Split
	for rows.Next() {
		s, err := scanSplit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan split: %w", err)
		}
		splits = append(splits, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate splits: %w", mapError(err))
	}
	return splits, nil
}

func (t *tx) ListSplitsByGroup(ctx context.Context, groupID string) ([]*models.Split, error) {
	return t.listSplits(ctx, "group_id = ?", groupID)
}

func (t *tx) ListSplitsByExpense(ctx context.Context, groupID, expenseID string) ([]*models.Split, error) {
	return t.listSplits(ctx, "group_id = ? AND expense_id = ?", groupID, expenseID)
}

func (t *tx) PutSplit(ctx context.Context, s *models.Split) error {
	if s.Version == 0 {
		_, err := t.tx.ExecContext(ctx,
			"INSERT INTO splits ("+splitColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)",
			s.GroupID, s.ID, s.ExpenseID, s.ExpenseCreatedAt, s.OwedBy, s.OwedTo, s.Original, s.Remaining, s.Paid,
		)
		if err != nil {
			return fmt.Errorf("failed to insert split: %w", mapError(err))
		}
		s.Version = 1
		return nil
	}
	res, err := t.tx.ExecContext(ctx,
		`UPDATE splits SET original = ?, remaining = ?, paid = ?, version = version + 1
		 WHERE group_id = ? AND id = ? AND version = ?`,
		s.Original, s.Remaining, s.Paid, s.GroupID, s.ID, s.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update split: %w", mapError(err))
	}
	if err := checkUpdated(res, "split", s.ID, s.Version); err != nil {
		return err
	}
	s.Version++
	return nil
}

func (t *tx) DeleteSplit(ctx context.Context, s *models.Split) error {
	res, err := t.tx.ExecContext(ctx,
		"DELETE FROM splits WHERE group_id = ? AND id = ? AND version = ?",
		s.GroupID, s.ID, s.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to delete split: %w", mapError(err))
	}
	return checkUpdated(res, "split", s.ID, s.Version)
}

const eventColumns = "group_id, id, payer_id, payee_id, total, created_at, created_by, note, status, version"

func scanEvent(row interface{ Scan(...any) error }) (*models.HistoryEvent, error) {
	e := &models.HistoryEvent{}
	err := row.Scan(&e.GroupID, &e.ID, &e.PayerID, &e.PayeeID, &e.Total, &e.CreatedAt,
		&e.CreatedBy, &e.Note, &e.Status, &e.Version)
	return e, err
}

func (t *tx) GetEvent(ctx context.Context, groupID, eventID string) (*models.HistoryEvent, error) {
	e, err := scanEvent(t.tx.QueryRowContext(ctx,
		"SELECT "+eventColumns+" FROM history_events WHERE group_id = ? AND id = ?",
		groupID, eventID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("history event", eventID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get history event: %w", mapError(err))
	}
	allocs, err := t.allocations(ctx, groupID, "event_id = ?", eventID)
	if err != nil {
		return nil, err
	}
	e.Allocations = allocs[eventID]
	return e, nil
}

func (t *tx) ListEventsByGroup(ctx context.Context, groupID string) ([]*models.HistoryEvent, error) {
	rows, err := t.tx.QueryContext(ctx,
		"SELECT "+eventColumns+" FROM history_events WHERE group_id = ? ORDER BY created_at DESC, id",
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list history events: %w", mapError(err))
	}
	defer rows.Close()

	var events []*models.HistoryEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history events: %w", mapError(err))
	}

	allocs, err := t.allocations(ctx, groupID, "1 = 1")
	if err != nil {
		return nil, err
	}
	for _, e := range events {
		e.Allocations = allocs[e.ID]
	}
	return events, nil
}

// allocations loads the group's allocations matching where, keyed by event
// and ordered by seq.
func (t *tx) allocations(ctx context.Context, groupID, where string, args ...any) (map[string][]models.Allocation, error) {
	rows, err := t.tx.QueryContext(ctx,
		"SELECT event_id, seq, split_id, amount, direction, reversed_at FROM allocations WHERE group_id = ? AND "+where+" ORDER BY event_id, seq",
		append([]any{groupID}, args...)...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get allocations: %w", mapError(err))
	}
	defer rows.Close()

	out := make(map[string][]models.Allocation)
	for rows.Next() {
		var (
			eventID string
			a       models.Allocation
		)
		if err := rows.Scan(&eventID, &a.Seq, &a.SplitID, &a.Amount, &a.Direction, &a.ReversedAt); err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		out[eventID] = append(out[eventID], a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate allocations: %w", mapError(err))
	}
	return out, nil
}

// PutEvent inserts a new event with its allocations, or updates an existing
// event's status and its allocations' reversal stamps. Allocation amounts
// and directions never change after insert.
func (t *tx) PutEvent(ctx context.Context, e *models.HistoryEvent) error {
	if e.Version == 0 {
		_, err := t.tx.ExecContext(ctx,
			"INSERT INTO history_events ("+eventColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)",
			e.GroupID, e.ID, e.PayerID, e.PayeeID, e.Total, e.CreatedAt, e.CreatedBy, e.Note, e.Status,
		)
		if err != nil {
			return fmt.Errorf("failed to insert history event: %w", mapError(err))
		}
		for _, a := range e.Allocations {
			_, err := t.tx.ExecContext(ctx,
				`INSERT INTO allocations (group_id, event_id, seq, split_id, amount, direction, reversed_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				e.GroupID, e.ID, a.Seq, a.SplitID, a.Amount, a.Direction, a.ReversedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to insert allocation: %w", mapError(err))
			}
		}
		e.Version = 1
		return nil
	}

	res, err := t.tx.ExecContext(ctx,
		`UPDATE history_events SET note = ?, status = ?, version = version + 1
		 WHERE group_id = ? AND id = ? AND version = ?`,
		e.Note, e.Status, e.GroupID, e.ID, e.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update history event: %w", mapError(err))
	}
	if err := checkUpdated(res, "history event", e.ID, e.Version); err != nil {
		return err
	}
	for _, a := range e.Allocations {
		_, err := t.tx.ExecContext(ctx,
			"UPDATE allocations SET reversed_at = ? WHERE group_id = ? AND event_id = ? AND seq = ?",
			a.ReversedAt, e.GroupID, e.ID, a.Seq,
		)
		if err != nil {
			return fmt.Errorf("failed to update allocation: %w", mapError(err))
		}
	}
	e.Version++
	return nil
}

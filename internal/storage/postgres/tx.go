package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mmynk/settleup/internal/models"
)

type tx struct {
	tx pgx.Tx
}

func checkUpdated(tag pgconn.CommandTag, kind, id string, version int64) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s %s is no longer at version %d", models.ErrConcurrentModification, kind, id, version)
	}
	return nil
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s not found: %s: %w", kind, id, models.ErrNotFound)
}

const expenseColumns = "group_id, id, description, payer_id, amount, created_at, paid, version"

func (t *tx) GetExpense(ctx context.Context, groupID, expenseID string) (*models.Expense, error) {
	e := &models.Expense{}
	err := t.tx.QueryRow(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE group_id = $1 AND id = $2",
		groupID, expenseID,
	).Scan(&e.GroupID, &e.ID, &e.Description, &e.PayerID, &e.Amount, &e.CreatedAt, &e.Paid, &e.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("expense", expenseID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", mapError(err))
	}
	return e, nil
}

func (t *tx) PutExpense(ctx context.Context, e *models.Expense) error {
	if e.Version == 0 {
		_, err := t.tx.Exec(ctx,
			"INSERT INTO expenses ("+expenseColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, 1)",
			e.GroupID, e.ID, e.Description, e.PayerID, e.Amount, e.CreatedAt, e.Paid,
		)
		if err != nil {
			return fmt.Errorf("failed to insert expense: %w", mapError(err))
		}
		e.Version = 1
		return nil
	}
	tag, err := t.tx.Exec(ctx,
		`UPDATE expenses SET description = $1, payer_id = $2, amount = $3, created_at = $4, paid = $5, version = version + 1
		 WHERE group_id = $6 AND id = $7 AND version = $8`,
		e.Description, e.PayerID, e.Amount, e.CreatedAt, e.Paid, e.GroupID, e.ID, e.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", mapError(err))
	}
	if err := checkUpdated(tag, "expense", e.ID, e.Version); err != nil {
		return err
	}
	e.Version++
	return nil
}

func (t *tx) DeleteExpense(ctx context.Context, e *models.Expense) error {
	tag, err := t.tx.Exec(ctx,
		"DELETE FROM expenses WHERE group_id = $1 AND id = $2 AND version = $3",
		e.GroupID, e.ID, e.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", mapError(err))
	}
	return checkUpdated(tag, "expense", e.ID, e.Version)
}

const splitColumns = "group_id, id, expense_id, expense_created_at, owed_by, owed_to, original, remaining, paid, version"

func scanSplit(row pgx.Row) (*models.Split, error) {
	s := &models.Split{}
	err := row.Scan(&s.GroupID, &s.ID, &s.ExpenseID, &s.ExpenseCreatedAt, &s.OwedBy, &s.OwedTo,
		&s.Original, &s.Remaining, &s.Paid, &s.Version)
	return s, err
}

func (t *tx) GetSplit(ctx context.Context, groupID, splitID string) (*models.Split, error) {
	s, err := scanSplit(t.tx.QueryRow(ctx,
		"SELECT "+splitColumns+" FROM splits WHERE group_id = $1 AND id = $2",
		groupID, splitID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("split", splitID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get split: %w", mapError(err))
	}
	return s, nil
}

func (t *tx) listSplits(ctx context.Context, where string, args ...any) ([]*models.Split, error) {
	rows, err := t.tx.Query(ctx, "SELECT "+splitColumns+" FROM splits WHERE "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list splits: %w", mapError(err))
	}
	splits, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Split, error) {
		return scanSplit(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan splits: %w", mapError(err))
	}
	return splits, nil
}

func (t *tx) ListSplitsByGroup(ctx context.Context, groupID string) ([]*models.Split, error) {
	return t.listSplits(ctx, "group_id = $1", groupID)
}

func (t *tx) ListSplitsByExpense(ctx context.Context, groupID, expenseID string) ([]*models.Split, error) {
	return t.listSplits(ctx, "group_id = $1 AND expense_id = $2", groupID, expenseID)
}

func (t *tx) PutSplit(ctx context.Context, s *models.Split) error {
	if s.Version == 0 {
		_, err := t.tx.Exec(ctx,
			"INSERT INTO splits ("+splitColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1)",
			s.GroupID, s.ID, s.ExpenseID, s.ExpenseCreatedAt, s.OwedBy, s.OwedTo, s.Original, s.Remaining, s.Paid,
		)
		if err != nil {
			return fmt.Errorf("failed to insert split: %w", mapError(err))
		}
		s.Version = 1
		return nil
	}
	tag, err := t.tx.Exec(ctx,
		`UPDATE splits SET original = $1, remaining = $2, paid = $3, version = version + 1
		 WHERE group_id = $4 AND id = $5 AND version = $6`,
		s.Original, s.Remaining, s.Paid, s.GroupID, s.ID, s.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update split: %w", mapError(err))
	}
	if err := checkUpdated(tag, "split", s.ID, s.Version); err != nil {
		return err
	}
	s.Version++
	return nil
}

func (t *tx) DeleteSplit(ctx context.Context, s *models.Split) error {
	tag, err := t.tx.Exec(ctx,
		"DELETE FROM splits WHERE group_id = $1 AND id = $2 AND version = $3",
		s.GroupID, s.ID, s.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to delete split: %w", mapError(err))
	}
	return checkUpdated(tag, "split", s.ID, s.Version)
}

const eventColumns = "group_id, id, payer_id, payee_id, total, created_at, created_by, note, status, version"

func scanEvent(row pgx.Row) (*models.HistoryEvent, error) {
	e := &models.HistoryEvent{}
	var status string
	err := row.Scan(&e.GroupID, &e.ID, &e.PayerID, &e.PayeeID, &e.Total, &e.CreatedAt,
		&e.CreatedBy, &e.Note, &status, &e.Version)
	e.Status = models.EventStatus(status)
	return e, err
}

func (t *tx) GetEvent(ctx context.Context, groupID, eventID string) (*models.HistoryEvent, error) {
	e, err := scanEvent(t.tx.QueryRow(ctx,
		"SELECT "+eventColumns+" FROM history_events WHERE group_id = $1 AND id = $2",
		groupID, eventID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("history event", eventID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get history event: %w", mapError(err))
	}
	allocs, err := t.allocations(ctx, groupID, &eventID)
	if err != nil {
		return nil, err
	}
	e.Allocations = allocs[eventID]
	return e, nil
}

func (t *tx) ListEventsByGroup(ctx context.Context, groupID string) ([]*models.HistoryEvent, error) {
	rows, err := t.tx.Query(ctx,
		"SELECT "+eventColumns+" FROM history_events WHERE group_id = $1 ORDER BY created_at DESC, id",
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list history events: %w", mapError(err))
	}
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.HistoryEvent, error) {
		return scanEvent(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan history events: %w", mapError(err))
	}

	allocs, err := t.allocations(ctx, groupID, nil)
	if err != nil {
		return nil, err
	}
	for _, e := range events {
		e.Allocations = allocs[e.ID]
	}
	return events, nil
}

// allocations loads the group's allocations, or one event's when eventID
// is set, keyed by event and ordered by seq.
func (t *tx) allocations(ctx context.Context, groupID string, eventID *string) (map[string][]models.Allocation, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT event_id, seq, split_id, amount, direction, reversed_at FROM allocations
		 WHERE group_id = $1 AND ($2::text IS NULL OR event_id = $2)
		 ORDER BY event_id, seq`,
		groupID, eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get allocations: %w", mapError(err))
	}
	defer rows.Close()

	out := make(map[string][]models.Allocation)
	for rows.Next() {
		var (
			id        string
			direction int
			a         models.Allocation
		)
		if err := rows.Scan(&id, &a.Seq, &a.SplitID, &a.Amount, &direction, &a.ReversedAt); err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		a.Direction = models.Direction(direction)
		out[id] = append(out[id], a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate allocations: %w", mapError(err))
	}
	return out, nil
}

// PutEvent inserts a new event with its allocations, or updates an existing
// event's status and its allocations' reversal stamps.
func (t *tx) PutEvent(ctx context.Context, e *models.HistoryEvent) error {
	if e.Version == 0 {
		_, err := t.tx.Exec(ctx,
			"INSERT INTO history_events ("+eventColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1)",
			e.GroupID, e.ID, e.PayerID, e.PayeeID, e.Total, e.CreatedAt, e.CreatedBy, e.Note, string(e.Status),
		)
		if err != nil {
			return fmt.Errorf("failed to insert history event: %w", mapError(err))
		}
		batch := &pgx.Batch{}
		for _, a := range e.Allocations {
			batch.Queue(
				`INSERT INTO allocations (group_id, event_id, seq, split_id, amount, direction, reversed_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				e.GroupID, e.ID, a.Seq, a.SplitID, a.Amount, int(a.Direction), a.ReversedAt,
			)
		}
		if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert allocations: %w", mapError(err))
		}
		e.Version = 1
		return nil
	}

	tag, err := t.tx.Exec(ctx,
		`UPDATE history_events SET note = $1, status = $2, version = version + 1
		 WHERE group_id = $3 AND id = $4 AND version = $5`,
		e.Note, string(e.Status), e.GroupID, e.ID, e.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update history event: %w", mapError(err))
	}
	if err := checkUpdated(tag, "history event", e.ID, e.Version); err != nil {
		return err
	}
	batch := &pgx.Batch{}
	for _, a := range e.Allocations {
		batch.Queue(
			"UPDATE allocations SET reversed_at = $1 WHERE group_id = $2 AND event_id = $3 AND seq = $4",
			a.ReversedAt, e.GroupID, e.ID, a.Seq,
		)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to update allocations: %w", mapError(err))
	}
	e.Version++
	return nil
}

// Package storage provides abstractions for persistent ledger storage.
package storage

import (
	"context"

	"github.com/mmynk/settleup/internal/models"
)

// Store is the entity store behind the ledger. All reads and writes go
// through a transaction so multi-entity read-modify-write is atomic.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL,
// in-memory) without changing the ledger.
type Store interface {
	// RunInTx runs fn in a single transaction. If fn returns an error, or
	// ctx is cancelled before commit, nothing fn wrote becomes visible.
	// A lost optimistic race is reported as models.ErrConcurrentModification.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Close releases any resources held by the store.
	Close() error
}

// Tx is a unit of work against the store.
//
// Put methods insert when the entity's Version is 0 and otherwise update
// only if the stored version still equals entity.Version; on success the
// entity's Version is advanced. A version mismatch returns
// models.ErrConcurrentModification. Get methods return
// models.ErrNotFound (wrapped) for missing entities.
type Tx interface {
	GetExpense(ctx context.Context, groupID, expenseID string) (*models.Expense, error)
	PutExpense(ctx context.Context, expense *models.Expense) error
	DeleteExpense(ctx context.Context, expense *models.Expense) error

	GetSplit(ctx context.Context, groupID, splitID string) (*models.Split, error)
	// ListSplitsByGroup returns every split of the group in no particular order.
	ListSplitsByGroup(ctx context.Context, groupID string) ([]*models.Split, error)
	ListSplitsByExpense(ctx context.Context, groupID, expenseID string) ([]*models.Split, error)
	PutSplit(ctx context.Context, split *models.Split) error
	DeleteSplit(ctx context.Context, split *models.Split) error

	GetEvent(ctx context.Context, groupID, eventID string) (*models.HistoryEvent, error)
	// ListEventsByGroup returns the group's events newest first.
	ListEventsByGroup(ctx context.Context, groupID string) ([]*models.HistoryEvent, error)
	PutEvent(ctx context.Context, event *models.HistoryEvent) error
}

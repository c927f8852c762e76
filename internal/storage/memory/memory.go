// Package memory provides an in-process implementation of storage.Store
// with optimistic concurrency. Transactions buffer their writes and
// validate entity versions at commit, so transactions over disjoint
// entities never wait on each other beyond the commit itself.
package memory

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/storage"
)

// Ensure Store implements storage.Store
var _ storage.Store = (*Store)(nil)

type key struct {
	group string
	id    string
}

// Store implements storage.Store in memory.
type Store struct {
	mu       sync.RWMutex
	expenses map[key]*models.Expense
	splits   map[key]*models.Split
	events   map[key]*models.HistoryEvent
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		expenses: make(map[key]*models.Expense),
		splits:   make(map[key]*models.Split),
		events:   make(map[key]*models.HistoryEvent),
	}
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// RunInTx runs fn against a buffered transaction and commits its writes if
// every written entity is still at the version the transaction based it on.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := &tx{
		store:    s,
		expenses: make(map[key]pending[models.Expense]),
		splits:   make(map[key]pending[models.Split]),
		events:   make(map[key]pending[models.HistoryEvent]),
	}
	if err := fn(ctx, t); err != nil {
		return err
	}
	return s.commit(ctx, t)
}

func (s *Store) commit(ctx context.Context, t *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Cancellation is honoured up to the point of publishing writes.
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validate(s.expenses, t.expenses, expenseVersion); err != nil {
		return err
	}
	if err := validate(s.splits, t.splits, splitVersion); err != nil {
		return err
	}
	if err := validate(s.events, t.events, eventVersion); err != nil {
		return err
	}
	apply(s.expenses, t.expenses)
	apply(s.splits, t.splits)
	apply(s.events, t.events)
	return nil
}

// pending is a buffered write. value is nil for a delete; base is the
// committed version the write expects (0 for an insert).
type pending[T any] struct {
	base  int64
	value *T
}

func validate[T any](committed map[key]*T, writes map[key]pending[T], version func(*T) int64) error {
	for k, w := range writes {
		var current int64
		if cur, ok := committed[k]; ok {
			current = version(cur)
		}
		if current != w.base {
			return fmt.Errorf("%w: %s/%s at version %d, expected %d",
				models.ErrConcurrentModification, k.group, k.id, current, w.base)
		}
	}
	return nil
}

func apply[T any](committed map[key]*T, writes map[key]pending[T]) {
	for k, w := range writes {
		if w.value == nil {
			delete(committed, k)
			continue
		}
		committed[k] = w.value
	}
}

func expenseVersion(e *models.Expense) int64    { return e.Version }
func splitVersion(s *models.Split) int64        { return s.Version }
func eventVersion(e *models.HistoryEvent) int64 { return e.Version }

// Snapshot returns a deterministic JSON encoding of the committed state.
// Two snapshots are byte-for-byte equal iff the stored entities are equal.
func (s *Store) Snapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := struct {
		Expenses []*models.Expense
		Splits   []*models.Split
		Events   []*models.HistoryEvent
	}{
		Expenses: sortedValues(s.expenses),
		Splits:   sortedValues(s.splits),
		Events:   sortedValues(s.events),
	}
	return json.Marshal(state)
}

func sortedValues[T any](m map[key]*T) []*T {
	keys := make([]key, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b key) int {
		return cmp.Or(cmp.Compare(a.group, b.group), cmp.Compare(a.id, b.id))
	})
	out := make([]*T, len(keys))
	for i, k := range keys {
		out[i] = m[k]
	}
	return out
}

func sortNewestFirst(events []*models.HistoryEvent) {
	slices.SortFunc(events, func(a, b *models.HistoryEvent) int {
		return cmp.Or(cmp.Compare(b.CreatedAt, a.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
}

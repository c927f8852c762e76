package memory

import (
	"context"
	"fmt"

	"github.com/mmynk/settleup/internal/models"
)

type tx struct {
	store    *Store
	expenses map[key]pending[models.Expense]
	splits   map[key]pending[models.Split]
	events   map[key]pending[models.HistoryEvent]
}

// accessor bundles the per-entity functions the generic helpers need.
type accessor[T any] struct {
	kind       string
	version    func(*T) int64
	setVersion func(*T, int64)
	clone      func(*T) *T
}

var (
	expenseAccess = accessor[models.Expense]{
		kind:       "expense",
		version:    expenseVersion,
		setVersion: func(e *models.Expense, v int64) { e.Version = v },
		clone:      (*models.Expense).Clone,
	}
	splitAccess = accessor[models.Split]{
		kind:       "split",
		version:    splitVersion,
		setVersion: func(s *models.Split, v int64) { s.Version = v },
		clone:      (*models.Split).Clone,
	}
	eventAccess = accessor[models.HistoryEvent]{
		kind:       "history event",
		version:    eventVersion,
		setVersion: func(e *models.HistoryEvent, v int64) { e.Version = v },
		clone:      (*models.HistoryEvent).Clone,
	}
)

func get[T any](s *Store, committed map[key]*T, writes map[key]pending[T], acc accessor[T], k key) (*T, error) {
	if w, ok := writes[k]; ok {
		if w.value == nil {
			return nil, fmt.Errorf("%s not found: %s: %w", acc.kind, k.id, models.ErrNotFound)
		}
		return acc.clone(w.value), nil
	}
	s.mu.RLock()
	cur, ok := committed[k]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s not found: %s: %w", acc.kind, k.id, models.ErrNotFound)
	}
	return acc.clone(cur), nil
}

// base returns the committed version a new write of k must be based on,
// checking the caller's expected version against what is visible now.
func base[T any](s *Store, committed map[key]*T, writes map[key]pending[T], acc accessor[T], k key, expected int64) (int64, error) {
	if w, ok := writes[k]; ok {
		var visible int64
		if w.value != nil {
			visible = acc.version(w.value)
		}
		if visible != expected {
			return 0, fmt.Errorf("%w: %s %s at version %d, expected %d",
				models.ErrConcurrentModification, acc.kind, k.id, visible, expected)
		}
		return w.base, nil
	}
	s.mu.RLock()
	cur, ok := committed[k]
	s.mu.RUnlock()
	var visible int64
	if ok {
		visible = acc.version(cur)
	}
	if visible != expected {
		return 0, fmt.Errorf("%w: %s %s at version %d, expected %d",
			models.ErrConcurrentModification, acc.kind, k.id, visible, expected)
	}
	return visible, nil
}

func put[T any](s *Store, committed map[key]*T, writes map[key]pending[T], acc accessor[T], k key, v *T) error {
	b, err := base(s, committed, writes, acc, k, acc.version(v))
	if err != nil {
		return err
	}
	acc.setVersion(v, acc.version(v)+1)
	writes[k] = pending[T]{base: b, value: acc.clone(v)}
	return nil
}

func del[T any](s *Store, committed map[key]*T, writes map[key]pending[T], acc accessor[T], k key, v *T) error {
	if acc.version(v) == 0 {
		return fmt.Errorf("%s not found: %s: %w", acc.kind, k.id, models.ErrNotFound)
	}
	b, err := base(s, committed, writes, acc, k, acc.version(v))
	if err != nil {
		return err
	}
	writes[k] = pending[T]{base: b}
	return nil
}

func list[T any](s *Store, committed map[key]*T, writes map[key]pending[T], acc accessor[T], match func(key, *T) bool) []*T {
	seen := make(map[key]bool)
	var out []*T
	for k, w := range writes {
		seen[k] = true
		if w.value != nil && match(k, w.value) {
			out = append(out, acc.clone(w.value))
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, v := range committed {
		if seen[k] || !match(k, v) {
			continue
		}
		out = append(out, acc.clone(v))
	}
	return out
}

func (t *tx) GetExpense(_ context.Context, groupID, expenseID string) (*models.Expense, error) {
	return get(t.store, t.store.expenses, t.expenses, expenseAccess, key{groupID, expenseID})
}

func (t *tx) PutExpense(_ context.Context, expense *models.Expense) error {
	return put(t.store, t.store.expenses, t.expenses, expenseAccess, key{expense.GroupID, expense.ID}, expense)
}

func (t *tx) DeleteExpense(_ context.Context, expense *models.Expense) error {
	return del(t.store, t.store.expenses, t.expenses, expenseAccess, key{expense.GroupID, expense.ID}, expense)
}

func (t *tx) GetSplit(_ context.Context, groupID, splitID string) (*models.Split, error) {
	return get(t.store, t.store.splits, t.splits, splitAccess, key{groupID, splitID})
}

func (t *tx) ListSplitsByGroup(_ context.Context, groupID string) ([]*models.Split, error) {
	return list(t.store, t.store.splits, t.splits, splitAccess, func(k key, _ *models.Split) bool {
		return k.group == groupID
	}), nil
}

func (t *tx) ListSplitsByExpense(_ context.Context, groupID, expenseID string) ([]*models.Split, error) {
	return list(t.store, t.store.splits, t.splits, splitAccess, func(k key, s *models.Split) bool {
		return k.group == groupID && s.ExpenseID == expenseID
	}), nil
}

func (t *tx) PutSplit(_ context.Context, split *models.Split) error {
	return put(t.store, t.store.splits, t.splits, splitAccess, key{split.GroupID, split.ID}, split)
}

func (t *tx) DeleteSplit(_ context.Context, split *models.Split) error {
	return del(t.store, t.store.splits, t.splits, splitAccess, key{split.GroupID, split.ID}, split)
}

func (t *tx) GetEvent(_ context.Context, groupID, eventID string) (*models.HistoryEvent, error) {
	return get(t.store, t.store.events, t.events, eventAccess, key{groupID, eventID})
}

func (t *tx) ListEventsByGroup(_ context.Context, groupID string) ([]*models.HistoryEvent, error) {
	events := list(t.store, t.store.events, t.events, eventAccess, func(k key, _ *models.HistoryEvent) bool {
		return k.group == groupID
	})
	sortNewestFirst(events)
	return events, nil
}

func (t *tx) PutEvent(_ context.Context, event *models.HistoryEvent) error {
	return put(t.store, t.store.events, t.events, eventAccess, key{event.GroupID, event.ID}, event)
}

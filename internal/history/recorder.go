// Package history owns the append-only record of settlement events.
//
// Event state transitions are pure functions on *models.HistoryEvent so the
// reconciliation coordinator can apply them inside its own transaction.
// Events are never deleted; reversal retires allocations and moves the
// event through partially_reversed to fully_reversed.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/money"
	"github.com/mmynk/settleup/internal/storage"
)

// Recorder reads and writes history events.
type Recorder struct {
	store  storage.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder creates a Recorder backed by store.
func NewRecorder(store storage.Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger, now: time.Now}
}

// AllocationRequest is one split's share of a new event.
type AllocationRequest struct {
	SplitID   string
	Amount    money.Amount
	Direction models.Direction
}

// EventInfo describes who settled with whom.
type EventInfo struct {
	GroupID   string
	PayerID   string
	PayeeID   string
	CreatedBy string
	Note      string
}

// Record appends a new event inside tx. The event total is the sum of the
// allocation amounts.
func (r *Recorder) Record(ctx context.Context, tx storage.Tx, info EventInfo, allocs []AllocationRequest) (*models.HistoryEvent, error) {
	event, err := NewEvent(info.PayerID, info.PayeeID, info.GroupID, allocs, r.now())
	if err != nil {
		return nil, err
	}
	event.CreatedBy = info.CreatedBy
	event.Note = info.Note
	if err := tx.PutEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to record event: %w", err)
	}
	r.logger.Debug("History event recorded",
		"event_id", event.ID,
		"group_id", info.GroupID,
		"allocations", len(event.Allocations),
		"total", event.Total.Minor(),
	)
	return event, nil
}

// MarkAllocationReversed retires the active allocation of splitID in an
// event loaded in tx and writes the event back.
func (r *Recorder) MarkAllocationReversed(ctx context.Context, tx storage.Tx, event *models.HistoryEvent, splitID string) (models.Allocation, error) {
	reversed, err := ReverseAllocation(event, splitID, r.now())
	if err != nil {
		return reversed, err
	}
	if err := tx.PutEvent(ctx, event); err != nil {
		return reversed, fmt.Errorf("failed to update event: %w", err)
	}
	r.logger.Debug("Allocation reversed",
		"event_id", event.ID,
		"split_id", splitID,
		"status", event.Status,
	)
	return reversed, nil
}

// MarkEventReversed retires every active allocation of an event loaded in
// tx and writes the event back.
func (r *Recorder) MarkEventReversed(ctx context.Context, tx storage.Tx, event *models.HistoryEvent) ([]models.Allocation, error) {
	reversed, err := ReverseEvent(event, r.now())
	if err != nil {
		return nil, err
	}
	if err := tx.PutEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to update event: %w", err)
	}
	r.logger.Debug("Event reversed", "event_id", event.ID, "allocations", len(reversed))
	return reversed, nil
}

// GetEvent retrieves one event.
func (r *Recorder) GetEvent(ctx context.Context, groupID, eventID string) (*models.HistoryEvent, error) {
	var event *models.HistoryEvent
	err := r.store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		event, err = tx.GetEvent(ctx, groupID, eventID)
		return err
	})
	return event, err
}

// ListEvents returns the group's events, newest first, including reversed ones.
func (r *Recorder) ListEvents(ctx context.Context, groupID string) ([]*models.HistoryEvent, error) {
	var events []*models.HistoryEvent
	err := r.store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		events, err = tx.ListEventsByGroup(ctx, groupID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

// NewEvent builds an unsaved event from the given allocations.
func NewEvent(payer, payee, groupID string, allocs []AllocationRequest, now time.Time) (*models.HistoryEvent, error) {
	if len(allocs) == 0 {
		return nil, models.ErrEmptyAllocationSet
	}
	event := &models.HistoryEvent{
		ID:          uuid.New().String(),
		GroupID:     groupID,
		PayerID:     payer,
		PayeeID:     payee,
		CreatedAt:   now.Unix(),
		Status:      models.EventActive,
		Allocations: make([]models.Allocation, len(allocs)),
	}
	for i, a := range allocs {
		if a.Amount.IsZero() {
			return nil, fmt.Errorf("%w: zero allocation for split %s", models.ErrInvalidAmount, a.SplitID)
		}
		event.Allocations[i] = models.Allocation{
			Seq:       i,
			SplitID:   a.SplitID,
			Amount:    a.Amount,
			Direction: a.Direction,
		}
		total, err := event.Total.Add(a.Amount)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrInvalidAmount, err)
		}
		event.Total = total
	}
	return event, nil
}

// FindActive returns the active allocation of splitID in event.
func FindActive(event *models.HistoryEvent, splitID string) (models.Allocation, error) {
	for _, a := range event.Allocations {
		if a.SplitID == splitID && a.Active() {
			return a, nil
		}
	}
	return models.Allocation{}, fmt.Errorf("%w: split %s in event %s", models.ErrAllocationNotFound, splitID, event.ID)
}

// ReverseAllocation retires exactly one active allocation and updates the
// event status. It returns the retired allocation.
func ReverseAllocation(event *models.HistoryEvent, splitID string, now time.Time) (models.Allocation, error) {
	for i, a := range event.Allocations {
		if a.SplitID != splitID || !a.Active() {
			continue
		}
		event.Allocations[i].ReversedAt = stamp(now)
		event.Status = statusOf(event)
		return event.Allocations[i], nil
	}
	return models.Allocation{}, fmt.Errorf("%w: split %s in event %s", models.ErrAllocationNotFound, splitID, event.ID)
}

// ReverseEvent retires every active allocation. An event with none left
// fails with ErrAllocationNotFound and is left unchanged.
func ReverseEvent(event *models.HistoryEvent, now time.Time) ([]models.Allocation, error) {
	var reversed []models.Allocation
	for i, a := range event.Allocations {
		if !a.Active() {
			continue
		}
		event.Allocations[i].ReversedAt = stamp(now)
		reversed = append(reversed, event.Allocations[i])
	}
	if len(reversed) == 0 {
		return nil, fmt.Errorf("%w: event %s has no active allocations", models.ErrAllocationNotFound, event.ID)
	}
	event.Status = statusOf(event)
	return reversed, nil
}

// stamp never returns 0, which marks an allocation as active.
func stamp(now time.Time) int64 {
	return max(now.Unix(), 1)
}

func statusOf(event *models.HistoryEvent) models.EventStatus {
	active := len(event.ActiveAllocations())
	switch {
	case active == 0:
		return models.EventFullyReversed
	case active < len(event.Allocations):
		return models.EventPartiallyReversed
	default:
		return models.EventActive
	}
}

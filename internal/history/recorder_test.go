package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/money"
	"github.com/mmynk/settleup/internal/storage"
	"github.com/mmynk/settleup/internal/storage/memory"
)

var now = time.Unix(1_700_000_000, 0)

func twoAllocations() []AllocationRequest {
	return []AllocationRequest{
		{SplitID: "s1", Amount: money.MustNew(30), Direction: models.DirectionPayerOwesPayee},
		{SplitID: "s2", Amount: money.MustNew(10), Direction: models.DirectionPayerOwesPayee},
	}
}

func TestNewEvent(t *testing.T) {
	e, err := NewEvent("B", "A", "g", twoAllocations(), now)
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, models.EventActive, e.Status)
	assert.Equal(t, int64(40), e.Total.Minor())
	assert.Equal(t, now.Unix(), e.CreatedAt)
	for i, a := range e.Allocations {
		assert.Equal(t, i, a.Seq)
		assert.True(t, a.Active())
	}
}

func TestNewEventRejects(t *testing.T) {
	_, err := NewEvent("B", "A", "g", nil, now)
	assert.ErrorIs(t, err, models.ErrEmptyAllocationSet)

	_, err = NewEvent("B", "A", "g", []AllocationRequest{{SplitID: "s1"}}, now)
	assert.ErrorIs(t, err, models.ErrInvalidAmount)
}

func TestReverseAllocation(t *testing.T) {
	e, err := NewEvent("B", "A", "g", twoAllocations(), now)
	require.NoError(t, err)

	got, err := ReverseAllocation(e, "s1", now)
	require.NoError(t, err)
	assert.Equal(t, "s1", got.SplitID)
	assert.Equal(t, models.EventPartiallyReversed, e.Status)
	assert.Equal(t, int64(10), e.ActiveTotal())

	_, err = ReverseAllocation(e, "s1", now)
	assert.ErrorIs(t, err, models.ErrAllocationNotFound)

	_, err = ReverseAllocation(e, "s2", now)
	require.NoError(t, err)
	assert.Equal(t, models.EventFullyReversed, e.Status)
}

func TestReverseEvent(t *testing.T) {
	e, err := NewEvent("B", "A", "g", twoAllocations(), now)
	require.NoError(t, err)
	_, err = ReverseAllocation(e, "s2", now)
	require.NoError(t, err)

	reversed, err := ReverseEvent(e, now)
	require.NoError(t, err)
	require.Len(t, reversed, 1)
	assert.Equal(t, "s1", reversed[0].SplitID)
	assert.Equal(t, models.EventFullyReversed, e.Status)
	assert.Zero(t, e.ActiveTotal())

	before := e.Clone()
	_, err = ReverseEvent(e, now)
	assert.ErrorIs(t, err, models.ErrAllocationNotFound)
	assert.Equal(t, before, e)
}

func TestReversalStampNeverZero(t *testing.T) {
	e, err := NewEvent("B", "A", "g", twoAllocations(), time.Unix(0, 0))
	require.NoError(t, err)
	a, err := ReverseAllocation(e, "s1", time.Unix(0, 0))
	require.NoError(t, err)
	assert.False(t, a.Active())
}

func TestRecorderPersists(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	r := NewRecorder(store, nil)
	r.now = func() time.Time { return now }

	var id string
	err := store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		e, err := r.Record(ctx, tx, EventInfo{GroupID: "g", PayerID: "B", PayeeID: "A", CreatedBy: "B", Note: "rent"}, twoAllocations())
		if err != nil {
			return err
		}
		id = e.ID
		return nil
	})
	require.NoError(t, err)

	err = store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		e, err := tx.GetEvent(ctx, "g", id)
		if err != nil {
			return err
		}
		_, err = r.MarkAllocationReversed(ctx, tx, e, "s2")
		return err
	})
	require.NoError(t, err)

	got, err := r.GetEvent(ctx, "g", id)
	require.NoError(t, err)
	assert.Equal(t, "rent", got.Note)
	assert.Equal(t, "B", got.CreatedBy)
	assert.Equal(t, models.EventPartiallyReversed, got.Status)
	assert.Equal(t, int64(2), got.Version)

	events, err := r.ListEvents(ctx, "g")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, id, events[0].ID)
}

package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/money"
	"github.com/mmynk/settleup/internal/storage"
)

func putSplit(t *testing.T, s *Store, split *models.Split) {
	t.Helper()
	err := s.RunInTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		return tx.PutSplit(ctx, split)
	})
	require.NoError(t, err)
}

func newSplit(id string) *models.Split {
	return &models.Split{
		ID: id, GroupID: "g", ExpenseID: "e", OwedBy: "B", OwedTo: "A",
		Original: money.MustNew(30), Remaining: money.MustNew(30),
	}
}

func TestPutAdvancesVersion(t *testing.T) {
	s := New()
	split := newSplit("s1")
	putSplit(t, s, split)
	assert.Equal(t, int64(1), split.Version)

	putSplit(t, s, split)
	assert.Equal(t, int64(2), split.Version)
}

func TestStaleWriteRejected(t *testing.T) {
	s := New()
	putSplit(t, s, newSplit("s1"))
	ctx := context.Background()

	var stale *models.Split
	require.NoError(t, s.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		stale, err = tx.GetSplit(ctx, "g", "s1")
		return err
	}))

	fresh := stale.Clone()
	putSplit(t, s, fresh)

	err := s.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.PutSplit(ctx, stale)
	})
	assert.ErrorIs(t, err, models.ErrConcurrentModification)
}

func TestCommitValidatesAgainstConcurrentCommit(t *testing.T) {
	s := New()
	putSplit(t, s, newSplit("s1"))
	ctx := context.Background()

	err := s.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		split, err := tx.GetSplit(ctx, "g", "s1")
		if err != nil {
			return err
		}
		split.Remaining = money.MustNew(10)
		if err := tx.PutSplit(ctx, split); err != nil {
			return err
		}
		// Another transaction commits the same split first.
		rival := newSplit("s1")
		rival.Version = 1
		rival.Remaining = money.MustNew(20)
		putSplit(t, s, rival)
		return nil
	})
	require.ErrorIs(t, err, models.ErrConcurrentModification)

	require.NoError(t, s.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		got, err := tx.GetSplit(ctx, "g", "s1")
		require.NoError(t, err)
		assert.Equal(t, int64(20), got.Remaining.Minor())
		return nil
	}))
}

func TestFailedTxWritesNothing(t *testing.T) {
	s := New()
	putSplit(t, s, newSplit("s1"))
	before, err := s.Snapshot()
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.RunInTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		split, err := tx.GetSplit(ctx, "g", "s1")
		if err != nil {
			return err
		}
		split.Remaining = money.Zero
		if err := tx.PutSplit(ctx, split); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	after, err := s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCancelledBeforeCommit(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	err := s.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		cancel()
		return tx.PutSplit(ctx, newSplit("s1"))
	})
	require.ErrorIs(t, err, context.Canceled)

	snap, err := s.Snapshot()
	require.NoError(t, err)
	assert.NotContains(t, string(snap), "s1")
}

func TestReadYourWrites(t *testing.T) {
	s := New()
	ctx := context.Background()
	err := s.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		require.NoError(t, tx.PutSplit(ctx, newSplit("s1")))
		require.NoError(t, tx.PutSplit(ctx, newSplit("s2")))

		splits, err := tx.ListSplitsByExpense(ctx, "g", "e")
		require.NoError(t, err)
		assert.Len(t, splits, 2)

		got, err := tx.GetSplit(ctx, "g", "s1")
		require.NoError(t, err)
		return tx.DeleteSplit(ctx, got)
	})
	require.NoError(t, err)

	require.NoError(t, s.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		_, err := tx.GetSplit(ctx, "g", "s1")
		assert.ErrorIs(t, err, models.ErrNotFound)
		splits, err := tx.ListSplitsByGroup(ctx, "g")
		require.NoError(t, err)
		assert.Len(t, splits, 1)
		return nil
	}))
}

func TestEventsNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		for i, id := range []string{"old", "new", "mid"} {
			created := []int64{1, 3, 2}[i]
			if err := tx.PutEvent(ctx, &models.HistoryEvent{ID: id, GroupID: "g", CreatedAt: created}); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, s.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		events, err := tx.ListEventsByGroup(ctx, "g")
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.Equal(t, "new", events[0].ID)
		assert.Equal(t, "mid", events[1].ID)
		assert.Equal(t, "old", events[2].ID)
		return nil
	}))
}

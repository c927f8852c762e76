package settle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/settleup/internal/history"
	"github.com/mmynk/settleup/internal/ledger"
	"github.com/mmynk/settleup/internal/metrics"
	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/money"
	"github.com/mmynk/settleup/internal/storage"
	"github.com/mmynk/settleup/internal/storage/memory"
)

const group = "g1"

type fixture struct {
	store   *memory.Store
	ledger  *ledger.Ledger
	coord   *Coordinator
	metrics *metrics.Metrics
	splits  map[string]*models.Split // by OwedBy
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newFixture stores an expense of 90 paid by A and shared evenly by A, B
// and C, which yields splits B->A:30 and C->A:30.
func newFixture(t *testing.T, wrap func(storage.Store) storage.Store, opts ...Option) *fixture {
	t.Helper()
	mem := memory.New()
	var store storage.Store = mem
	if wrap != nil {
		store = wrap(mem)
	}
	logger := quietLogger()
	l := ledger.New(store, logger)
	m := metrics.New(prometheus.NewRegistry())
	opts = append([]Option{WithLogger(logger), WithMetrics(m), WithRetry(5, time.Millisecond)}, opts...)
	c := New(store, l, history.NewRecorder(store, logger), opts...)

	splits, err := l.AddExpense(context.Background(), &models.Expense{
		GroupID:     group,
		Description: "dinner",
		PayerID:     "A",
		Amount:      money.MustNew(90),
		CreatedAt:   100,
	}, map[string]money.Amount{
		"A": money.MustNew(30),
		"B": money.MustNew(30),
		"C": money.MustNew(30),
	})
	require.NoError(t, err)
	require.Len(t, splits, 2)

	f := &fixture{store: mem, ledger: l, coord: c, metrics: m, splits: map[string]*models.Split{}}
	for _, s := range splits {
		f.splits[s.OwedBy] = s
	}
	return f
}

func (f *fixture) split(t *testing.T, owedBy string) *models.Split {
	t.Helper()
	all, err := f.ledger.ListSplits(context.Background(), group)
	require.NoError(t, err)
	for _, s := range all {
		if s.OwedBy == owedBy {
			return s
		}
	}
	t.Fatalf("no split owed by %s", owedBy)
	return nil
}

func (f *fixture) snapshot(t *testing.T) string {
	t.Helper()
	b, err := f.store.Snapshot()
	require.NoError(t, err)
	return string(b)
}

func (f *fixture) audit(t *testing.T) {
	t.Helper()
	found, err := f.ledger.Audit(context.Background(), group)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func pay(owedBy, owedTo string, payments ...Payment) PayRequest {
	return PayRequest{GroupID: group, PayerID: owedBy, PayeeID: owedTo, CreatedBy: owedBy, Payments: payments}
}

func TestScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	b := f.splits["B"]

	res, err := f.coord.PaySplits(ctx, pay("B", "A", Payment{SplitID: b.ID, Amount: money.MustNew(30)}))
	require.NoError(t, err)
	require.Len(t, res.Event.Allocations, 1)
	alloc := res.Event.Allocations[0]
	assert.Equal(t, b.ID, alloc.SplitID)
	assert.Equal(t, int64(30), alloc.Amount.Minor())
	assert.True(t, alloc.Direction.Positive())
	assert.True(t, f.split(t, "B").Paid)
	assert.True(t, f.split(t, "B").Remaining.IsZero())

	res, err = f.coord.UnpayEvent(ctx, group, res.Event.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EventFullyReversed, res.Event.Status)
	assert.Equal(t, int64(30), f.split(t, "B").Remaining.Minor())
	assert.False(t, f.split(t, "B").Paid)

	before := f.snapshot(t)
	_, err = f.coord.UnpayEvent(ctx, group, res.Event.ID)
	assert.ErrorIs(t, err, models.ErrAllocationNotFound)
	assert.Equal(t, before, f.snapshot(t))
	f.audit(t)
}

func TestPaySplits_Partial(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	c := f.splits["C"]

	_, err := f.coord.PaySplits(ctx, pay("C", "A", Payment{SplitID: c.ID, Amount: money.MustNew(12)}))
	require.NoError(t, err)
	got := f.split(t, "C")
	assert.Equal(t, int64(18), got.Remaining.Minor())
	assert.Equal(t, models.SplitPartiallySettled, got.State())
	assert.False(t, got.Paid)

	_, err = f.coord.PaySplits(ctx, pay("C", "A", Payment{SplitID: c.ID, Amount: money.MustNew(18)}))
	require.NoError(t, err)
	assert.Equal(t, models.SplitFullySettled, f.split(t, "C").State())
	f.audit(t)
}

func TestPaySplits_ExpensePaidFlag(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	res, err := f.coord.PaySplits(ctx, pay("B", "A", Payment{SplitID: f.splits["B"].ID, Amount: money.MustNew(10)}))
	require.NoError(t, err)
	assert.Empty(t, res.Expenses, "no split changed its paid flag")

	res, err = f.coord.PaySplits(ctx, pay("B", "A", Payment{SplitID: f.splits["B"].ID, Amount: money.MustNew(20)}))
	require.NoError(t, err)
	require.Len(t, res.Expenses, 1)
	assert.False(t, res.Expenses[0].Paid, "C has not paid yet")

	res, err = f.coord.PaySplits(ctx, pay("C", "A", Payment{SplitID: f.splits["C"].ID, Amount: money.MustNew(30)}))
	require.NoError(t, err)
	require.Len(t, res.Expenses, 1)
	assert.True(t, res.Expenses[0].Paid)

	res, err = f.coord.UnpayEvent(ctx, group, res.Event.ID)
	require.NoError(t, err)
	require.Len(t, res.Expenses, 1)
	assert.False(t, res.Expenses[0].Paid)
}

func TestPaySplits_Rejected(t *testing.T) {
	tests := []struct {
		name     string
		req      func(f *fixture) PayRequest
		wantKind error
	}{
		{
			name:     "empty batch",
			req:      func(f *fixture) PayRequest { return pay("B", "A") },
			wantKind: models.ErrEmptyAllocationSet,
		},
		{
			name: "over payment",
			req: func(f *fixture) PayRequest {
				return pay("B", "A", Payment{SplitID: f.splits["B"].ID, Amount: money.MustNew(31)})
			},
			wantKind: models.ErrOverPayment,
		},
		{
			name: "zero amount",
			req: func(f *fixture) PayRequest {
				return pay("B", "A", Payment{SplitID: f.splits["B"].ID, Amount: money.Zero})
			},
			wantKind: models.ErrInvalidAmount,
		},
		{
			name: "duplicate split",
			req: func(f *fixture) PayRequest {
				id := f.splits["B"].ID
				return pay("B", "A",
					Payment{SplitID: id, Amount: money.MustNew(10)},
					Payment{SplitID: id, Amount: money.MustNew(10)})
			},
			wantKind: models.ErrDuplicateSplit,
		},
		{
			name: "unknown split",
			req: func(f *fixture) PayRequest {
				return pay("B", "A", Payment{SplitID: "missing", Amount: money.MustNew(1)})
			},
			wantKind: models.ErrNotFound,
		},
		{
			name: "split owed by someone else",
			req: func(f *fixture) PayRequest {
				return pay("B", "A", Payment{SplitID: f.splits["C"].ID, Amount: money.MustNew(1)})
			},
			wantKind: models.ErrDirectionMismatch,
		},
		{
			name: "reversed direction",
			req: func(f *fixture) PayRequest {
				return pay("A", "B", Payment{SplitID: f.splits["B"].ID, Amount: money.MustNew(1)})
			},
			wantKind: models.ErrDirectionMismatch,
		},
		{
			name: "second payment of batch invalid",
			req: func(f *fixture) PayRequest {
				return PayRequest{GroupID: group, PayerID: "B", PayeeID: "A", Payments: []Payment{
					{SplitID: f.splits["B"].ID, Amount: money.MustNew(30)},
					{SplitID: f.splits["C"].ID, Amount: money.MustNew(40)},
				}}
			},
			wantKind: models.ErrDirectionMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			before := f.snapshot(t)

			res, err := f.coord.PaySplits(context.Background(), tt.req(f))
			require.Error(t, err)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, models.ErrPartialSettlementRejected)
			assert.ErrorIs(t, err, tt.wantKind)
			assert.Equal(t, "PartialSettlementRejected", models.Kind(err))
			assert.Equal(t, before, f.snapshot(t), "failed call must not change the store")
			assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Operations(OpPaySplits, "PartialSettlementRejected")))
		})
	}
}

func TestPaySplits_MultiSplitBatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	// A second expense paid by A leaves B owing A on two splits.
	more, err := f.ledger.AddExpense(ctx, &models.Expense{
		GroupID: group, PayerID: "A", Amount: money.MustNew(20), CreatedAt: 200,
	}, map[string]money.Amount{"A": money.MustNew(10), "B": money.MustNew(10)})
	require.NoError(t, err)
	require.Len(t, more, 1)

	res, err := f.coord.PaySplits(ctx, pay("B", "A",
		Payment{SplitID: f.splits["B"].ID, Amount: money.MustNew(30)},
		Payment{SplitID: more[0].ID, Amount: money.MustNew(4)},
	))
	require.NoError(t, err)
	assert.Equal(t, int64(34), res.Event.Total.Minor())
	require.Len(t, res.Event.Allocations, 2)
	assert.Equal(t, 0, res.Event.Allocations[0].Seq)
	assert.Equal(t, 1, res.Event.Allocations[1].Seq)
	f.audit(t)
}

func TestUnpaySingleAllocation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	more, err := f.ledger.AddExpense(ctx, &models.Expense{
		GroupID: group, PayerID: "A", Amount: money.MustNew(20), CreatedAt: 200,
	}, map[string]money.Amount{"A": money.MustNew(10), "B": money.MustNew(10)})
	require.NoError(t, err)
	first, second := f.splits["B"].ID, more[0].ID

	paid, err := f.coord.PaySplits(ctx, pay("B", "A",
		Payment{SplitID: first, Amount: money.MustNew(30)},
		Payment{SplitID: second, Amount: money.MustNew(10)},
	))
	require.NoError(t, err)
	eventID := paid.Event.ID

	t.Run("amount mismatch", func(t *testing.T) {
		before := f.snapshot(t)
		_, err := f.coord.UnpaySingleAllocation(ctx, group, eventID, first, money.MustNew(29), true)
		assert.ErrorIs(t, err, models.ErrAllocationAmountMismatch)
		assert.Equal(t, before, f.snapshot(t))
	})

	t.Run("direction mismatch", func(t *testing.T) {
		before := f.snapshot(t)
		_, err := f.coord.UnpaySingleAllocation(ctx, group, eventID, first, money.MustNew(30), false)
		assert.ErrorIs(t, err, models.ErrDirectionMismatch)
		assert.Equal(t, before, f.snapshot(t))
	})

	t.Run("split not in event", func(t *testing.T) {
		before := f.snapshot(t)
		_, err := f.coord.UnpaySingleAllocation(ctx, group, eventID, f.splits["C"].ID, money.MustNew(30), true)
		assert.ErrorIs(t, err, models.ErrAllocationNotFound)
		assert.Equal(t, before, f.snapshot(t))
	})

	t.Run("partial round trip", func(t *testing.T) {
		res, err := f.coord.UnpaySingleAllocation(ctx, group, eventID, first, money.MustNew(30), true)
		require.NoError(t, err)
		assert.Equal(t, models.EventPartiallyReversed, res.Event.Status)
		assert.Equal(t, int64(10), res.Event.ActiveTotal())
		assert.Equal(t, int64(40), res.Event.Total.Minor(), "recorded total is kept")
		assert.Equal(t, int64(30), f.split(t, "B").Remaining.Minor())

		splits, err := f.ledger.ListSplits(ctx, group)
		require.NoError(t, err)
		for _, s := range splits {
			if s.ID == second {
				assert.True(t, s.Paid, "other allocation untouched")
			}
		}
		f.audit(t)
	})

	t.Run("same allocation twice", func(t *testing.T) {
		_, err := f.coord.UnpaySingleAllocation(ctx, group, eventID, first, money.MustNew(30), true)
		assert.ErrorIs(t, err, models.ErrAllocationNotFound)
	})

	t.Run("unpay rest of event", func(t *testing.T) {
		res, err := f.coord.UnpayEvent(ctx, group, eventID)
		require.NoError(t, err)
		assert.Equal(t, models.EventFullyReversed, res.Event.Status)
		require.Len(t, res.Splits, 1)
		assert.Equal(t, second, res.Splits[0].ID)
		assert.Equal(t, int64(10), res.Splits[0].Remaining.Minor())
		f.audit(t)
	})
}

func TestUnpayEvent_Inconsistent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	b := f.splits["B"]
	res, err := f.coord.PaySplits(ctx, pay("B", "A", Payment{SplitID: b.ID, Amount: money.MustNew(30)}))
	require.NoError(t, err)

	// Corrupt the split behind the ledger's back so the reversal overflows.
	err = f.store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		s, err := tx.GetSplit(ctx, group, b.ID)
		if err != nil {
			return err
		}
		s.Remaining = money.MustNew(10)
		return tx.PutSplit(ctx, s)
	})
	require.NoError(t, err)

	before := f.snapshot(t)
	_, err = f.coord.UnpayEvent(ctx, group, res.Event.ID)
	assert.ErrorIs(t, err, models.ErrReversalInconsistent)
	assert.ErrorIs(t, err, models.ErrOverReversal)
	assert.False(t, models.IsRetryable(err))
	assert.Equal(t, before, f.snapshot(t))
}

func TestUnpayEvent_UnknownEvent(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.coord.UnpayEvent(context.Background(), group, "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCancelledContext(t *testing.T) {
	f := newFixture(t, nil)
	before := f.snapshot(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.coord.PaySplits(ctx, pay("B", "A", Payment{SplitID: f.splits["B"].ID, Amount: money.MustNew(30)}))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, before, f.snapshot(t))
}

// staleListStore hides every split from group listings, as a lagging
// index would.
type staleListStore struct{ storage.Store }

type staleListTx struct{ storage.Tx }

func (s staleListStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	return s.Store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return fn(ctx, staleListTx{tx})
	})
}

func (staleListTx) ListSplitsByGroup(context.Context, string) ([]*models.Split, error) {
	return nil, nil
}

func TestPaySplits_BatchExceedsPairOwed(t *testing.T) {
	f := newFixture(t, func(s storage.Store) storage.Store { return staleListStore{s} })
	before := f.snapshot(t)

	_, err := f.coord.PaySplits(context.Background(), pay("B", "A", Payment{SplitID: f.splits["B"].ID, Amount: money.MustNew(5)}))
	assert.ErrorIs(t, err, models.ErrPartialSettlementRejected)
	assert.ErrorIs(t, err, models.ErrOverPayment)
	assert.Equal(t, before, f.snapshot(t))
}

func TestRandomPayUnpayKeepsLedgerBalanced(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	rng := rand.New(rand.NewPCG(7, 11))
	owers := []string{"B", "C"}
	var events []*models.HistoryEvent
	succeeded := make(map[string]int)

	for step := range 300 {
		before := f.snapshot(t)
		var (
			op  string
			err error
		)
		switch n := rng.IntN(3); {
		case n == 0 || len(events) == 0:
			op = "pay"
			s := f.split(t, owers[rng.IntN(len(owers))])
			amount := money.MustNew(rng.Int64N(s.Original.Minor()) + 1)
			var res *Result
			res, err = f.coord.PaySplits(ctx, pay(s.OwedBy, "A", Payment{SplitID: s.ID, Amount: amount}))
			if err == nil {
				events = append(events, res.Event)
			}
		case n == 1:
			op = "unpay event"
			e := events[rng.IntN(len(events))]
			_, err = f.coord.UnpayEvent(ctx, group, e.ID)
		default:
			op = "unpay allocation"
			e := events[rng.IntN(len(events))]
			a := e.Allocations[0]
			_, err = f.coord.UnpaySingleAllocation(ctx, group, e.ID, a.SplitID, a.Amount, a.Direction.Positive())
		}

		if err != nil {
			assert.Equal(t, before, f.snapshot(t), "step %d: rejected %s changed the store", step, op)
		} else {
			succeeded[op]++
		}
		f.audit(t)
	}

	for _, op := range []string{"pay", "unpay event", "unpay allocation"} {
		assert.Positive(t, succeeded[op], "no successful %s", op)
	}
}

// hookStore runs hook once, after fn has done its reads and writes but
// before the transaction commits.
type hookStore struct {
	storage.Store
	mu   sync.Mutex
	hook func()
}

func (h *hookStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	return h.Store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		err := fn(ctx, tx)
		h.mu.Lock()
		hook := h.hook
		h.hook = nil
		h.mu.Unlock()
		if hook != nil {
			hook()
		}
		return err
	})
}

func TestPaySplits_RetriesLostRace(t *testing.T) {
	ctx := context.Background()
	hs := &hookStore{}
	f := newFixture(t, func(s storage.Store) storage.Store {
		hs.Store = s
		return hs
	})
	b := f.splits["B"]

	// A rival coordinator on the unwrapped store commits first.
	rival := New(f.store, ledger.New(f.store, quietLogger()), history.NewRecorder(f.store, quietLogger()),
		WithLogger(quietLogger()))
	hs.hook = func() {
		_, err := rival.PaySplits(ctx, pay("B", "A", Payment{SplitID: b.ID, Amount: money.MustNew(10)}))
		require.NoError(t, err)
	}

	res, err := f.coord.PaySplits(ctx, pay("B", "A", Payment{SplitID: b.ID, Amount: money.MustNew(20)}))
	require.NoError(t, err)
	assert.True(t, res.Splits[0].Paid, "retry must see the rival's payment")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Conflicts(OpPaySplits)))
	f.audit(t)
}

func TestPaySplits_RetryRevalidates(t *testing.T) {
	ctx := context.Background()
	hs := &hookStore{}
	f := newFixture(t, func(s storage.Store) storage.Store {
		hs.Store = s
		return hs
	})
	b := f.splits["B"]
	rival := New(f.store, ledger.New(f.store, quietLogger()), history.NewRecorder(f.store, quietLogger()),
		WithLogger(quietLogger()))
	hs.hook = func() {
		_, err := rival.PaySplits(ctx, pay("B", "A", Payment{SplitID: b.ID, Amount: money.MustNew(20)}))
		require.NoError(t, err)
	}

	_, err := f.coord.PaySplits(ctx, pay("B", "A", Payment{SplitID: b.ID, Amount: money.MustNew(20)}))
	assert.ErrorIs(t, err, models.ErrOverPayment)
	assert.Equal(t, int64(10), f.split(t, "B").Remaining.Minor())
	f.audit(t)
}

// conflictStore fails the first n transactions with a lost race.
type conflictStore struct {
	storage.Store
	remaining atomic.Int32
	calls     atomic.Int32
}

func (c *conflictStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	c.calls.Add(1)
	if c.remaining.Add(-1) >= 0 {
		return models.ErrConcurrentModification
	}
	return c.Store.RunInTx(ctx, fn)
}

func TestRetryExhausted(t *testing.T) {
	cs := &conflictStore{}
	f := newFixture(t, func(s storage.Store) storage.Store {
		cs.Store = s
		return cs
	}, WithRetry(3, time.Millisecond))
	before := f.snapshot(t)

	cs.remaining.Store(10)
	cs.calls.Store(0)
	_, err := f.coord.PaySplits(context.Background(), pay("B", "A", Payment{SplitID: f.splits["B"].ID, Amount: money.MustNew(5)}))
	assert.ErrorIs(t, err, models.ErrConcurrentModification)
	assert.True(t, models.IsRetryable(err))
	assert.Equal(t, int32(3), cs.calls.Load())
	assert.Equal(t, before, f.snapshot(t))
}

func TestRetryRecovers(t *testing.T) {
	cs := &conflictStore{}
	f := newFixture(t, func(s storage.Store) storage.Store {
		cs.Store = s
		return cs
	})
	cs.remaining.Store(2)
	cs.calls.Store(0)

	_, err := f.coord.PaySplits(context.Background(), pay("B", "A", Payment{SplitID: f.splits["B"].ID, Amount: money.MustNew(5)}))
	require.NoError(t, err)
	assert.Equal(t, int32(3), cs.calls.Load())
	assert.Equal(t, int64(25), f.split(t, "B").Remaining.Minor())
}

func TestConcurrentPayments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, WithRetry(50, time.Millisecond))
	b := f.splits["B"]

	const workers = 10
	var (
		wg      sync.WaitGroup
		settled atomic.Int64
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.coord.PaySplits(ctx, pay("B", "A", Payment{SplitID: b.ID, Amount: money.MustNew(2)}))
			switch {
			case err == nil:
				settled.Add(2)
			case errors.Is(err, models.ErrConcurrentModification):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	got := f.split(t, "B")
	assert.Equal(t, 30-settled.Load(), got.Remaining.Minor())
	f.audit(t)
}

func TestDisjointSplitsDoNotConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, WithRetry(1, time.Millisecond))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, member := range []string{"B", "C"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.coord.PaySplits(ctx, pay(member, "A", Payment{SplitID: f.splits[member].ID, Amount: money.MustNew(10)}))
		}()
	}
	wg.Wait()
	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
}

func TestConcurrentCompletionMarksExpensePaid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, WithRetry(20, time.Millisecond))

	var wg sync.WaitGroup
	for _, member := range []string{"B", "C"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.coord.PaySplits(ctx, pay(member, "A", Payment{SplitID: f.splits[member].ID, Amount: money.MustNew(30)}))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	err := f.store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		e, err := tx.GetExpense(ctx, group, f.splits["B"].ExpenseID)
		if err != nil {
			return err
		}
		assert.True(t, e.Paid)
		return nil
	})
	require.NoError(t, err)
}

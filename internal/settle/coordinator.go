// Package settle is the reconciliation coordinator: every multi-entity
// ledger mutation (paying splits, unpaying an event, unpaying one
// allocation) runs here as a single store transaction.
//
// Validation happens before any write inside the transaction, so a
// rejected request leaves the store untouched. Transactions that lose an
// optimistic concurrency race are retried with fresh reads up to a bounded
// number of attempts.
package settle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/mmynk/settleup/internal/history"
	"github.com/mmynk/settleup/internal/ledger"
	"github.com/mmynk/settleup/internal/metrics"
	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/storage"
)

const (
	DefaultMaxAttempts = 3
	DefaultRetryBase   = 10 * time.Millisecond
)

// Operation names used in logs and metrics.
const (
	OpPaySplits             = "pay_splits"
	OpUnpayEvent            = "unpay_event"
	OpUnpaySingleAllocation = "unpay_single_allocation"
)

// Coordinator applies settlements and reversals atomically.
type Coordinator struct {
	store       storage.Store
	ledger      *ledger.Ledger
	recorder    *history.Recorder
	logger      *slog.Logger
	metrics     *metrics.Metrics
	maxAttempts int
	retryBase   time.Duration
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithRetry bounds retries on ConcurrentModification. maxAttempts counts
// the first try; 1 disables retrying.
func WithRetry(maxAttempts int, base time.Duration) Option {
	return func(c *Coordinator) {
		c.maxAttempts = max(maxAttempts, 1)
		if base > 0 {
			c.retryBase = base
		}
	}
}

// New creates a Coordinator over the given ledger, recorder and store.
func New(store storage.Store, l *ledger.Ledger, r *history.Recorder, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:       store,
		ledger:      l,
		recorder:    r,
		logger:      slog.Default(),
		maxAttempts: DefaultMaxAttempts,
		retryBase:   DefaultRetryBase,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Result is the authoritative state after a committed operation. Callers
// use it to reconcile any optimistic local state.
type Result struct {
	Event    *models.HistoryEvent
	Splits   []*models.Split
	Expenses []*models.Expense
}

// run executes fn in a transaction, retrying lost races with exponential
// backoff. The last ConcurrentModification is returned once attempts run out.
func (c *Coordinator) run(ctx context.Context, op string, fn func(ctx context.Context, tx storage.Tx) error) error {
	start := time.Now()
	attempt := 0

	backoff := retry.WithMaxRetries(uint64(c.maxAttempts-1),
		retry.WithJitterPercent(20, retry.NewExponential(c.retryBase)))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := c.store.RunInTx(ctx, fn)
		if models.IsRetryable(err) {
			c.metrics.ConflictRetried(op)
			c.logger.Debug("Ledger transaction conflict", "operation", op, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})

	c.metrics.ObserveOperation(op, err, time.Since(start))
	if err != nil {
		c.logger.Warn("Ledger operation failed",
			"operation", op,
			"kind", models.Kind(err),
			"attempts", attempt,
			"error", err,
		)
	}
	return err
}

func rejected(err error) error {
	return fmt.Errorf("%w: %w", models.ErrPartialSettlementRejected, err)
}

func inconsistent(err error) error {
	return fmt.Errorf("%w: %w", models.ErrReversalInconsistent, err)
}

package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"mintgate/internal/mint/metrics"
	"mintgate/internal/mint/models"
	"mintgate/internal/mint/ports"
	"mintgate/pkg/platform/sentinel"
)

// Submitter resends a ledger row's mint request to the provider.
type Submitter interface {
	Submit(ctx context.Context, mint *models.Mint) error
}

// Lease elects a single poller across instances.
type Lease interface {
	// Acquire takes or extends the lease for ttl. It reports false when another
	// holder owns it.
	Acquire(ctx context.Context, ttl time.Duration) (bool, error)
	Release(ctx context.Context) error
}

// PollResult summarises one pass over the pending rows.
type PollResult struct {
	Checked     int
	Applied     int
	Resubmitted int
	Expired     int
	Errors      int
}

// Worker is the poll-mode trigger of the reconciler. A provider error for one
// row is logged and the row is retried on the next cycle; it never stops the
// loop.
type Worker struct {
	reconciler *Reconciler
	store      ports.LedgerStore
	provider   ports.Provider
	submitter  Submitter
	lease      Lease

	interval      time.Duration
	batchSize     int
	concurrency   int
	callTimeout   time.Duration
	minAge        time.Duration
	pendingExpiry time.Duration

	logger  *slog.Logger
	metrics *metrics.Metrics
	clock   func() time.Time
}

type WorkerOption func(*Worker)

// WithInterval sets the time between polls. Default 30s.
func WithInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithBatchSize sets how many pending rows are read per page. Default 100.
func WithBatchSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

// WithConcurrency bounds parallel provider queries. Default 4.
func WithConcurrency(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithCallTimeout bounds each provider query. A timeout leaves the row pending.
func WithCallTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.callTimeout = d
		}
	}
}

// WithMinAge skips rows younger than d so polling does not race the
// admission's own submission. Default 1m.
func WithMinAge(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d >= 0 {
			w.minAge = d
		}
	}
}

// WithPendingExpiry marks rows failed when the provider has no record of them
// after d. Zero (the default) disables expiry.
func WithPendingExpiry(d time.Duration) WorkerOption {
	return func(w *Worker) {
		w.pendingExpiry = d
	}
}

// WithSubmitter enables resubmission of rows the provider has no record of.
func WithSubmitter(s Submitter) WorkerOption {
	return func(w *Worker) {
		w.submitter = s
	}
}

// WithLease restricts polling to the lease holder.
func WithLease(l Lease) WorkerOption {
	return func(w *Worker) {
		w.lease = l
	}
}

func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func WithWorkerMetrics(m *metrics.Metrics) WorkerOption {
	return func(w *Worker) {
		w.metrics = m
	}
}

func WithWorkerClock(clock func() time.Time) WorkerOption {
	return func(w *Worker) {
		if clock != nil {
			w.clock = clock
		}
	}
}

func NewWorker(reconciler *Reconciler, store ports.LedgerStore, provider ports.Provider, opts ...WorkerOption) *Worker {
	w := &Worker{
		reconciler:  reconciler,
		store:       store,
		provider:    provider,
		interval:    30 * time.Second,
		batchSize:   100,
		concurrency: 4,
		callTimeout: 5 * time.Second,
		minAge:      time.Minute,
		logger:      slog.Default(),
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run polls until ctx is cancelled. It always returns nil on cancellation.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "reconciliation worker started",
		"interval", w.interval.String(),
		"pending_expiry", w.pendingExpiry.String(),
	)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if w.lease != nil {
				releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
				if err := w.lease.Release(releaseCtx); err != nil {
					w.logger.Warn("failed to release reconciliation lease", "error", err)
				}
				cancel()
			}
			w.logger.Info("reconciliation worker stopped")
			return nil
		case <-ticker.C:
			if _, err := w.PollOnce(ctx); err != nil && ctx.Err() == nil {
				w.logger.ErrorContext(ctx, "reconciliation poll failed", "error", err)
			}
		}
	}
}

// PollOnce checks every pending row old enough to have been submitted.
func (w *Worker) PollOnce(ctx context.Context) (PollResult, error) {
	var result PollResult

	if w.lease != nil {
		held, err := w.lease.Acquire(ctx, 2*w.interval)
		if err != nil {
			return result, err
		}
		if !held {
			w.logger.DebugContext(ctx, "reconciliation lease held elsewhere; skipping poll")
			return result, nil
		}
	}

	now := w.clock()
	before := now.Add(-w.minAge)
	var after models.PendingCursor
	for {
		page, err := w.store.ListPending(ctx, after, before, w.batchSize)
		if err != nil {
			return result, err
		}
		if len(page) == 0 {
			break
		}
		w.pollPage(ctx, page, now, &result)
		if len(page) < w.batchSize || ctx.Err() != nil {
			break
		}
		after = models.CursorAt(page[len(page)-1])
	}

	w.refreshGauge(ctx)
	if result.Checked > 0 {
		w.logger.InfoContext(ctx, "reconciliation poll completed",
			"checked", result.Checked,
			"applied", result.Applied,
			"resubmitted", result.Resubmitted,
			"expired", result.Expired,
			"errors", result.Errors,
		)
	}
	return result, nil
}

type rowResult int

const (
	rowUnchanged rowResult = iota
	rowApplied
	rowResubmitted
	rowExpired
	rowError
)

func (w *Worker) pollPage(ctx context.Context, page []*models.Mint, now time.Time, result *PollResult) {
	results := make([]rowResult, len(page))

	var g errgroup.Group
	g.SetLimit(w.concurrency)
	for i, mint := range page {
		g.Go(func() error {
			results[i] = w.reconcileRow(ctx, mint, now)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // rows never return errors; failures are counted in results

	for _, r := range results {
		result.Checked++
		switch r {
		case rowApplied:
			result.Applied++
		case rowResubmitted:
			result.Resubmitted++
		case rowExpired:
			result.Expired++
		case rowError:
			result.Errors++
		}
	}
}

func (w *Worker) reconcileRow(ctx context.Context, mint *models.Mint, now time.Time) rowResult {
	ref := mint.ReferenceID.String()

	callCtx, cancel := context.WithTimeout(ctx, w.callTimeout)
	status, err := w.provider.GetMintRequest(callCtx, mint.CollectionAddress, ref)
	cancel()

	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return w.handleMissing(ctx, mint, now)
	case err != nil:
		w.logger.WarnContext(ctx, "provider query failed; mint stays pending",
			"error", err,
			"reference_id", ref,
		)
		return rowError
	}

	outcome, err := w.reconciler.Apply(ctx, models.Notification{
		ReferenceID:  ref,
		TokenID:      status.TokenID,
		Status:       string(status.Status),
		OwnerAddress: status.OwnerAddress,
	}, SourcePoll)
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to apply polled status",
			"error", err,
			"reference_id", ref,
		)
		return rowError
	}
	if outcome.Applied {
		return rowApplied
	}
	return rowUnchanged
}

// handleMissing deals with a pending row the provider has never heard of:
// past the expiry it is marked failed (its token id stays burned), otherwise
// it is resubmitted under the same reference id.
func (w *Worker) handleMissing(ctx context.Context, mint *models.Mint, now time.Time) rowResult {
	ref := mint.ReferenceID.String()

	if w.pendingExpiry > 0 && now.Sub(mint.CreatedAt) >= w.pendingExpiry {
		if _, err := w.reconciler.Apply(ctx, models.Notification{
			ReferenceID: ref,
			Status:      string(models.StatusFailed),
		}, SourceExpiry); err != nil {
			w.logger.ErrorContext(ctx, "failed to expire pending mint", "error", err, "reference_id", ref)
			return rowError
		}
		w.logger.WarnContext(ctx, "expired pending mint unknown to provider",
			"reference_id", ref,
			"token_id", mint.TokenID,
			"age", now.Sub(mint.CreatedAt).String(),
		)
		return rowExpired
	}

	if w.submitter == nil {
		w.logger.WarnContext(ctx, "pending mint unknown to provider", "reference_id", ref)
		return rowUnchanged
	}
	if err := w.submitter.Submit(ctx, mint); err != nil {
		w.logger.WarnContext(ctx, "resubmission failed; mint stays pending", "error", err, "reference_id", ref)
		return rowError
	}
	w.logger.InfoContext(ctx, "resubmitted pending mint unknown to provider",
		"reference_id", ref,
		"token_id", mint.TokenID,
	)
	return rowResubmitted
}

func (w *Worker) refreshGauge(ctx context.Context) {
	if w.metrics == nil {
		return
	}
	counts, err := w.store.CountByStatus(ctx)
	if err != nil {
		w.logger.WarnContext(ctx, "failed to count mints by status", "error", err)
		return
	}
	labelled := make(map[string]int64, len(counts))
	for status, n := range counts {
		labelled[string(status)] = n
	}
	w.metrics.SetMintsByStatus(labelled)
}

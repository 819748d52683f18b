// Package reconcile resolves pending ledger rows to their provider-confirmed
// outcome, from webhooks or by polling.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mintgate/internal/mint/metrics"
	"mintgate/internal/mint/models"
	"mintgate/internal/mint/ports"
	dErrors "mintgate/pkg/domain-errors"
	"mintgate/pkg/platform/sentinel"
)

// Trigger sources, used for logs and metrics.
const (
	SourceWebhook = "webhook"
	SourcePoll    = "poll"
	SourceExpiry  = "expiry"
)

// Outcome describes what Apply did with a notification.
type Outcome struct {
	ReferenceID uuid.UUID
	// Status is the ledger status after Apply.
	Status models.Status
	// Applied is false when the notification changed nothing.
	Applied bool
}

// Reconciler owns the pending → terminal transition of ledger rows.
type Reconciler struct {
	tx      ports.TxRunner
	phases  []models.Phase
	events  ports.EventPublisher
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	clock   func() time.Time
}

type Option func(*Reconciler)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) {
		r.metrics = m
	}
}

func WithEventPublisher(p ports.EventPublisher) Option {
	return func(r *Reconciler) {
		r.events = p
	}
}

func WithClock(clock func() time.Time) Option {
	return func(r *Reconciler) {
		if clock != nil {
			r.clock = clock
		}
	}
}

func New(tx ports.TxRunner, phases []models.Phase, opts ...Option) *Reconciler {
	r := &Reconciler{
		tx:     tx,
		phases: phases,
		logger: slog.Default(),
		tracer: otel.Tracer("mintgate/reconcile"),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Apply moves a pending row to the notified terminal status.
//
//   - succeeded: unlock the wallet, decrement the allowance when the row's
//     phase is allow-listed, mark the row succeeded
//   - failed: unlock the wallet, mark the row failed; allowance is untouched
//   - pending: no-op
//
// All writes for one notification share a transaction. Re-applying a
// notification to a terminal row changes nothing.
func (r *Reconciler) Apply(ctx context.Context, n models.Notification, source string) (*Outcome, error) {
	ctx, span := r.tracer.Start(ctx, "mint.reconcile", trace.WithAttributes(
		attribute.String("mint.reference_id", n.ReferenceID),
		attribute.String("mint.status", n.Status),
		attribute.String("reconcile.source", source),
	))
	defer span.End()

	referenceID, err := uuid.Parse(n.ReferenceID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "reference id must be a UUID")
	}
	status, err := models.ParseStatus(n.Status)
	if err != nil {
		return nil, err
	}
	if status == models.StatusPending {
		r.metrics.IncReconciliation(source, "noop")
		return &Outcome{ReferenceID: referenceID, Status: models.StatusPending}, nil
	}

	now := r.clock()
	var (
		mint    *models.Mint
		applied bool
	)
	err = r.tx.RunInTx(ctx, func(ctx context.Context, store ports.Store) error {
		var err error
		mint, err = store.FindMintForUpdate(ctx, referenceID)
		if err != nil {
			return err
		}
		if mint.Status.IsTerminal() {
			if mint.Status != status {
				r.logger.WarnContext(ctx, "ignoring conflicting notification for terminal mint",
					"reference_id", referenceID.String(),
					"ledger_status", string(mint.Status),
					"notified_status", string(status),
					"source", source,
				)
			}
			return nil
		}
		r.checkConsistency(ctx, mint, n, source)

		if err := store.UpdateMintStatus(ctx, referenceID, status, now); err != nil {
			return fmt.Errorf("update mint status: %w", err)
		}
		if err := store.Unlock(ctx, mint.WalletAddress, referenceID); err != nil {
			return err
		}
		if status == models.StatusSucceeded && r.allowListed(mint.Phase) {
			if err := store.DecrementAllowance(ctx, mint.WalletAddress, mint.Phase); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
				return fmt.Errorf("decrement allowance: %w", err)
			}
		}
		mint.Status = status
		applied = true
		return nil
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no mint with reference id "+referenceID.String())
		}
		r.metrics.IncReconciliation(source, "error")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reconcile mint")
	}

	if !applied {
		r.metrics.IncReconciliation(source, "noop")
		return &Outcome{ReferenceID: referenceID, Status: mint.Status}, nil
	}

	r.logger.InfoContext(ctx, "mint reconciled",
		"reference_id", referenceID.String(),
		"token_id", mint.TokenID,
		"wallet", mint.WalletAddress,
		"status", string(status),
		"source", source,
	)
	r.metrics.IncReconciliation(source, string(status))
	r.publish(ctx, mint, now)
	return &Outcome{ReferenceID: referenceID, Status: status, Applied: true}, nil
}

// checkConsistency logs when the provider disagrees with the ledger about the
// token or owner. The provider is the source of truth for the outcome only.
func (r *Reconciler) checkConsistency(ctx context.Context, mint *models.Mint, n models.Notification, source string) {
	if n.TokenID != "" && n.TokenID != strconv.FormatInt(mint.TokenID, 10) {
		r.logger.WarnContext(ctx, "provider token id differs from ledger",
			"reference_id", mint.ReferenceID.String(),
			"ledger_token_id", mint.TokenID,
			"provider_token_id", n.TokenID,
			"source", source,
		)
	}
	if n.OwnerAddress != "" && !strings.EqualFold(n.OwnerAddress, mint.WalletAddress) {
		r.logger.WarnContext(ctx, "provider owner differs from ledger",
			"reference_id", mint.ReferenceID.String(),
			"ledger_wallet", mint.WalletAddress,
			"provider_owner", n.OwnerAddress,
			"source", source,
		)
	}
}

func (r *Reconciler) allowListed(phase int) bool {
	return phase >= 0 && phase < len(r.phases) && r.phases[phase].AllowListEnabled
}

func (r *Reconciler) publish(ctx context.Context, mint *models.Mint, now time.Time) {
	if r.events == nil {
		return
	}
	eventType := models.EventSucceeded
	if mint.Status == models.StatusFailed {
		eventType = models.EventFailed
	}
	err := r.events.Publish(ctx, models.Event{
		Type:              eventType,
		ReferenceID:       mint.ReferenceID.String(),
		TokenID:           mint.TokenID,
		CollectionAddress: mint.CollectionAddress,
		WalletAddress:     mint.WalletAddress,
		Phase:             mint.Phase,
		OccurredAt:        now,
	})
	if err != nil {
		r.logger.WarnContext(ctx, "failed to publish mint event",
			"error", err,
			"type", string(eventType),
			"reference_id", mint.ReferenceID.String(),
		)
	}
}

// Package webhook receives provider status updates delivered through Amazon SNS.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mintgate/internal/mint/metrics"
	"mintgate/internal/mint/models"
	"mintgate/internal/mint/reconcile"
	"mintgate/internal/webhook/sns"
	dErrors "mintgate/pkg/domain-errors"
	"mintgate/pkg/platform/httputil"
	"mintgate/pkg/requestcontext"
)

const maxBodyBytes = 256 << 10

// EnvelopeVerifier authenticates SNS deliveries.
type EnvelopeVerifier interface {
	Verify(ctx context.Context, env *sns.Envelope) error
	ConfirmSubscription(ctx context.Context, env *sns.Envelope) error
}

// Reconciler applies a provider notification to the ledger.
type Reconciler interface {
	Apply(ctx context.Context, n models.Notification, source string) (*reconcile.Outcome, error)
}

// Deduplicator remembers SNS message ids. Seen reports true for a repeat.
type Deduplicator interface {
	Seen(ctx context.Context, id string) (bool, error)
	Forget(ctx context.Context, id string) error
}

// Event is the provider payload carried in the SNS Message field.
type Event struct {
	EventName string              `json:"event_name"`
	Data      models.Notification `json:"data"`
}

type Handler struct {
	verifier   EnvelopeVerifier
	reconciler Reconciler
	dedup      Deduplicator
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type Option func(*Handler)

// WithDeduplicator drops redelivered messages. Without it, redeliveries are
// applied again, which is harmless because Apply is idempotent.
func WithDeduplicator(d Deduplicator) Option {
	return func(h *Handler) {
		h.dedup = d
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

func New(verifier EnvelopeVerifier, reconciler Reconciler, opts ...Option) *Handler {
	h := &Handler{
		verifier:   verifier,
		reconciler: reconciler,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/webhook", h.HandleWebhook)
}

// HandleWebhook answers 2xx for everything SNS should not redeliver, including
// events for unknown references, and 5xx when a retry could succeed.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.reject(ctx, w, "unknown", "read_error", dErrors.New(dErrors.CodeBadRequest, "unreadable body"), err)
		return
	}
	var env sns.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		h.reject(ctx, w, "unknown", "malformed", dErrors.New(dErrors.CodeBadRequest, "invalid SNS envelope"), err)
		return
	}

	if err := h.verifier.Verify(ctx, &env); err != nil {
		if errors.Is(err, sns.ErrTopicNotAllowed) {
			h.reject(ctx, w, env.Type, "topic_rejected", dErrors.New(dErrors.CodeForbidden, "topic not allowed"), err)
			return
		}
		h.reject(ctx, w, env.Type, "invalid_signature", dErrors.New(dErrors.CodeUnauthorized, "invalid SNS signature"), err)
		return
	}

	switch env.Type {
	case sns.TypeSubscriptionConfirmation:
		if err := h.verifier.ConfirmSubscription(ctx, &env); err != nil {
			h.logger.ErrorContext(ctx, "failed to confirm SNS subscription",
				"topic_arn", env.TopicArn,
				"error", err,
				"request_id", requestID,
			)
			h.metrics.IncWebhook(env.Type, "error")
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "subscription confirmation failed"))
			return
		}
		h.logger.InfoContext(ctx, "confirmed SNS subscription",
			"topic_arn", env.TopicArn,
			"request_id", requestID,
		)
		h.ack(w, env.Type, "confirmed")
	case sns.TypeNotification:
		h.handleNotification(ctx, w, &env)
	default:
		h.logger.InfoContext(ctx, "ignoring SNS message",
			"type", env.Type,
			"request_id", requestID,
		)
		h.ack(w, env.Type, "ignored")
	}
}

func (h *Handler) handleNotification(ctx context.Context, w http.ResponseWriter, env *sns.Envelope) {
	requestID := requestcontext.RequestID(ctx)

	if h.dedup != nil {
		seen, err := h.dedup.Seen(ctx, env.MessageID)
		if err != nil {
			h.logger.WarnContext(ctx, "webhook dedup unavailable, processing anyway",
				"message_id", env.MessageID,
				"error", err,
				"request_id", requestID,
			)
		} else if seen {
			h.ack(w, env.Type, "duplicate")
			return
		}
	}

	var event Event
	if err := json.Unmarshal([]byte(env.Message), &event); err != nil {
		h.logger.WarnContext(ctx, "undecodable webhook event",
			"message_id", env.MessageID,
			"error", err,
			"request_id", requestID,
		)
		h.ack(w, env.Type, "malformed")
		return
	}
	if event.EventName != models.EventMintRequestUpdated {
		h.logger.DebugContext(ctx, "ignoring webhook event",
			"event_name", event.EventName,
			"request_id", requestID,
		)
		h.ack(w, env.Type, "ignored")
		return
	}

	outcome, err := h.reconciler.Apply(ctx, event.Data, reconcile.SourceWebhook)
	if err != nil {
		switch dErrors.CodeOf(err) {
		case dErrors.CodeNotFound:
			h.logger.WarnContext(ctx, "webhook for unknown mint",
				"reference_id", event.Data.ReferenceID,
				"request_id", requestID,
			)
			h.ack(w, env.Type, "unknown_reference")
		case dErrors.CodeInvalidInput, dErrors.CodeValidation:
			h.logger.WarnContext(ctx, "invalid mint_request_updated payload",
				"reference_id", event.Data.ReferenceID,
				"status", event.Data.Status,
				"error", err,
				"request_id", requestID,
			)
			h.ack(w, env.Type, "malformed")
		default:
			h.forget(ctx, env.MessageID)
			h.logger.ErrorContext(ctx, "failed to apply webhook",
				"reference_id", event.Data.ReferenceID,
				"error", err,
				"request_id", requestID,
			)
			h.metrics.IncWebhook(env.Type, "error")
			httputil.WriteError(w, err)
		}
		return
	}

	h.logger.InfoContext(ctx, "applied mint status",
		"reference_id", event.Data.ReferenceID,
		"status", string(outcome.Status),
		"applied", outcome.Applied,
		"request_id", requestID,
	)
	h.ack(w, env.Type, "applied")
}

// forget lets SNS redeliver a message whose processing failed.
func (h *Handler) forget(ctx context.Context, messageID string) {
	if h.dedup == nil {
		return
	}
	if err := h.dedup.Forget(ctx, messageID); err != nil {
		h.logger.WarnContext(ctx, "failed to forget webhook message",
			"message_id", messageID,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

func (h *Handler) ack(w http.ResponseWriter, messageType, result string) {
	h.metrics.IncWebhook(messageType, result)
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": result})
}

func (h *Handler) reject(ctx context.Context, w http.ResponseWriter, messageType, result string, public, cause error) {
	h.logger.WarnContext(ctx, "rejected webhook",
		"type", messageType,
		"result", result,
		"error", cause,
		"request_id", requestcontext.RequestID(ctx),
	)
	h.metrics.IncWebhook(messageType, result)
	httputil.WriteError(w, public)
}

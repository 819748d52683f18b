package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"mintgate/internal/mint/metrics"
	"mintgate/internal/mint/models"
	"mintgate/internal/mint/reconcile"
	"mintgate/internal/mint/store"
	"mintgate/internal/webhook/sns"
	dErrors "mintgate/pkg/domain-errors"
	"mintgate/pkg/testutil"
)

const (
	topicARN = "arn:aws:sns:us-east-2:783421985614:mint-updates"
	alice    = "0xa11ce00000000000000000000000000000000001"
)

type fakeVerifier struct {
	err        error
	confirmErr error
	confirmed  int
}

func (f *fakeVerifier) Verify(context.Context, *sns.Envelope) error { return f.err }

func (f *fakeVerifier) ConfirmSubscription(context.Context, *sns.Envelope) error {
	f.confirmed++
	return f.confirmErr
}

type fakeDedup struct {
	seen      map[string]bool
	err       error
	forgotten []string
}

func (f *fakeDedup) Seen(_ context.Context, id string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.seen[id] {
		return true, nil
	}
	f.seen[id] = true
	return false, nil
}

func (f *fakeDedup) Forget(_ context.Context, id string) error {
	delete(f.seen, id)
	f.forgotten = append(f.forgotten, id)
	return nil
}

type failingReconciler struct{ err error }

func (f failingReconciler) Apply(context.Context, models.Notification, string) (*reconcile.Outcome, error) {
	return nil, f.err
}

type WebhookSuite struct {
	suite.Suite
	ctx      context.Context
	store    *store.Memory
	verifier *fakeVerifier
	dedup    *fakeDedup
	metrics  *metrics.Metrics
	mint     *models.Mint
}

func TestWebhookSuite(t *testing.T) {
	suite.Run(t, new(WebhookSuite))
}

func (s *WebhookSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewMemory()
	s.verifier = &fakeVerifier{}
	s.dedup = &fakeDedup{seen: map[string]bool{}}
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.mint = models.NewPendingMint(uuid.New(), 6, "0xcollection", alice, 0, now)
	s.Require().NoError(s.store.InsertMint(s.ctx, s.mint))
	s.Require().NoError(s.store.Lock(s.ctx, &models.LockedAddress{Address: alice, ReferenceID: s.mint.ReferenceID, LockedAt: now}))
}

func (s *WebhookSuite) router(reconciler Reconciler) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(s.verifier, reconciler,
		WithDeduplicator(s.dedup),
		WithLogger(logger),
		WithMetrics(s.metrics),
	)
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func (s *WebhookSuite) reconciler() *reconcile.Reconciler {
	return reconcile.New(s.store, []models.Phase{{Name: "Public"}})
}

func (s *WebhookSuite) notification(messageID, eventName string, data models.Notification) *sns.Envelope {
	msg, err := json.Marshal(Event{EventName: eventName, Data: data})
	s.Require().NoError(err)
	return &sns.Envelope{
		Type:      sns.TypeNotification,
		MessageID: messageID,
		TopicArn:  topicARN,
		Message:   string(msg),
	}
}

func (s *WebhookSuite) post(router http.Handler, env *sns.Envelope) int {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/webhook", env)
	req.Header.Set("Content-Type", "text/plain; charset=UTF-8")
	return testutil.DoRequest(router, req).Code
}

func (s *WebhookSuite) succeeded() models.Notification {
	return models.Notification{
		ReferenceID:  s.mint.ReferenceID.String(),
		TokenID:      "6",
		Status:       string(models.StatusSucceeded),
		OwnerAddress: alice,
	}
}

func (s *WebhookSuite) TestAppliesMintRequestUpdated() {
	code := s.post(s.router(s.reconciler()), s.notification("m-1", models.EventMintRequestUpdated, s.succeeded()))
	s.Equal(http.StatusOK, code)

	mint, err := s.store.FindMint(s.ctx, s.mint.ReferenceID)
	s.Require().NoError(err)
	s.Equal(models.StatusSucceeded, mint.Status)
	locked, err := s.store.IsLocked(s.ctx, alice)
	s.Require().NoError(err)
	s.False(locked)
	s.InDelta(1, promtest.ToFloat64(s.metrics.WebhooksTotal.WithLabelValues(sns.TypeNotification, "applied")), 0)
}

func (s *WebhookSuite) TestDuplicateDeliveryIsAcknowledged() {
	router := s.router(s.reconciler())
	env := s.notification("m-1", models.EventMintRequestUpdated, s.succeeded())

	s.Equal(http.StatusOK, s.post(router, env))
	s.Equal(http.StatusOK, s.post(router, env))
	s.InDelta(1, promtest.ToFloat64(s.metrics.WebhooksTotal.WithLabelValues(sns.TypeNotification, "duplicate")), 0)
}

func (s *WebhookSuite) TestDedupOutageStillApplies() {
	s.dedup.err = errors.New("redis down")
	s.Equal(http.StatusOK, s.post(s.router(s.reconciler()), s.notification("m-1", models.EventMintRequestUpdated, s.succeeded())))

	mint, err := s.store.FindMint(s.ctx, s.mint.ReferenceID)
	s.Require().NoError(err)
	s.Equal(models.StatusSucceeded, mint.Status)
}

func (s *WebhookSuite) TestIgnoresOtherEvents() {
	s.Equal(http.StatusOK, s.post(s.router(s.reconciler()), s.notification("m-1", "metadata_updated", s.succeeded())))

	mint, err := s.store.FindMint(s.ctx, s.mint.ReferenceID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, mint.Status)
}

func (s *WebhookSuite) TestUnknownReferenceIsAcknowledged() {
	n := s.succeeded()
	n.ReferenceID = uuid.NewString()
	s.Equal(http.StatusOK, s.post(s.router(s.reconciler()), s.notification("m-1", models.EventMintRequestUpdated, n)))
	s.InDelta(1, promtest.ToFloat64(s.metrics.WebhooksTotal.WithLabelValues(sns.TypeNotification, "unknown_reference")), 0)
}

func (s *WebhookSuite) TestMalformedPayloadIsAcknowledged() {
	n := s.succeeded()
	n.ReferenceID = "not-a-uuid"
	s.Equal(http.StatusOK, s.post(s.router(s.reconciler()), s.notification("m-1", models.EventMintRequestUpdated, n)))

	env := s.notification("m-2", models.EventMintRequestUpdated, s.succeeded())
	env.Message = "{"
	s.Equal(http.StatusOK, s.post(s.router(s.reconciler()), env))
}

func (s *WebhookSuite) TestApplyFailureAllowsRedelivery() {
	router := s.router(failingReconciler{err: dErrors.Wrap(errors.New("deadlock"), dErrors.CodeInternal, "failed to reconcile mint")})

	s.Equal(http.StatusInternalServerError, s.post(router, s.notification("m-1", models.EventMintRequestUpdated, s.succeeded())))
	s.Equal([]string{"m-1"}, s.dedup.forgotten)
	s.False(s.dedup.seen["m-1"])
}

func (s *WebhookSuite) TestRejectsUnverifiedDeliveries() {
	s.Run("bad signature", func() {
		s.verifier.err = sns.ErrInvalidSignature
		s.Equal(http.StatusUnauthorized, s.post(s.router(s.reconciler()), s.notification("m-1", models.EventMintRequestUpdated, s.succeeded())))
	})

	s.Run("foreign topic", func() {
		s.verifier.err = sns.ErrTopicNotAllowed
		s.Equal(http.StatusForbidden, s.post(s.router(s.reconciler()), s.notification("m-1", models.EventMintRequestUpdated, s.succeeded())))
	})

	mint, err := s.store.FindMint(s.ctx, s.mint.ReferenceID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, mint.Status)
}

func (s *WebhookSuite) TestMalformedEnvelope() {
	req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/webhook", "not json")
	s.Equal(http.StatusBadRequest, testutil.DoRequest(s.router(s.reconciler()), req).Code)
}

func (s *WebhookSuite) TestSubscriptionConfirmation() {
	env := &sns.Envelope{
		Type:         sns.TypeSubscriptionConfirmation,
		MessageID:    "c-1",
		TopicArn:     topicARN,
		SubscribeURL: "https://sns.us-east-2.amazonaws.com/?Action=ConfirmSubscription",
	}

	s.Run("confirmed", func() {
		s.Equal(http.StatusOK, s.post(s.router(s.reconciler()), env))
		s.Equal(1, s.verifier.confirmed)
	})

	s.Run("confirmation fails", func() {
		s.verifier.confirmErr = errors.New("timeout")
		s.Equal(http.StatusInternalServerError, s.post(s.router(s.reconciler()), env))
	})
}

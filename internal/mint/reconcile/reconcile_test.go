package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"mintgate/internal/mint/metrics"
	"mintgate/internal/mint/models"
	"mintgate/internal/mint/ports/mocks"
	"mintgate/internal/mint/store"
	dErrors "mintgate/pkg/domain-errors"
)

const (
	collection = "0xc011ec7100000000000000000000000000000001"
	alice      = "0xa11ce00000000000000000000000000000000001"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testPhases() []models.Phase {
	return []models.Phase{
		{
			Name:             "Presale",
			Start:            t0,
			End:              t0.Add(24 * time.Hour),
			AllowListEnabled: true,
			TokenIDs:         models.FixedRange{Start: 1, End: 10},
		},
		{
			Name:               "Public Sale",
			Start:              t0.Add(48 * time.Hour),
			End:                t0.Add(72 * time.Hour),
			MaxTokensPerWallet: 5,
			TokenIDs:           models.Rollover{EndTokenID: 20},
		},
	}
}

type ReconcilerSuite struct {
	suite.Suite
	ctx        context.Context
	store      *store.Memory
	metrics    *metrics.Metrics
	reconciler *Reconciler
}

func TestReconcilerSuite(t *testing.T) {
	suite.Run(t, new(ReconcilerSuite))
}

func (s *ReconcilerSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewMemory()
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())
	s.reconciler = New(s.store, testPhases(),
		WithMetrics(s.metrics),
		WithClock(func() time.Time { return t0.Add(time.Hour) }),
	)
}

// admitted seeds the state an admission leaves behind: a pending row, the
// wallet lock and, for allow-listed phases, the allowlist reference.
func (s *ReconcilerSuite) admitted(tokenID int64, phase int) *models.Mint {
	mint := models.NewPendingMint(uuid.New(), tokenID, collection, alice, phase, t0)
	s.Require().NoError(s.store.InsertMint(s.ctx, mint))
	s.Require().NoError(s.store.Lock(s.ctx, &models.LockedAddress{Address: alice, ReferenceID: mint.ReferenceID, LockedAt: t0}))
	if phase == 0 {
		s.Require().NoError(s.store.UpsertAllowlistEntry(s.ctx, &models.AllowlistEntry{Address: alice, Phase: 0, QuantityAllowed: 2}))
		s.Require().NoError(s.store.SetAllowlistReference(s.ctx, alice, 0, mint.ReferenceID))
	}
	return mint
}

func (s *ReconcilerSuite) apply(ref uuid.UUID, status models.Status) *Outcome {
	out, err := s.reconciler.Apply(s.ctx, models.Notification{
		ReferenceID:  ref.String(),
		TokenID:      "1",
		Status:       string(status),
		OwnerAddress: alice,
	}, SourceWebhook)
	s.Require().NoError(err)
	return out
}

func (s *ReconcilerSuite) allowance() int64 {
	entry, err := s.store.FindAllowlistEntry(s.ctx, alice, 0)
	s.Require().NoError(err)
	return entry.QuantityAllowed
}

func (s *ReconcilerSuite) locked() bool {
	locked, err := s.store.IsLocked(s.ctx, alice)
	s.Require().NoError(err)
	return locked
}

func (s *ReconcilerSuite) TestSucceeded() {
	mint := s.admitted(1, 0)

	out := s.apply(mint.ReferenceID, models.StatusSucceeded)
	s.True(out.Applied)
	s.Equal(models.StatusSucceeded, out.Status)

	stored, err := s.store.FindMint(s.ctx, mint.ReferenceID)
	s.Require().NoError(err)
	s.Equal(models.StatusSucceeded, stored.Status)
	s.Equal(t0.Add(time.Hour), stored.UpdatedAt)
	s.False(s.locked())
	s.Equal(int64(1), s.allowance())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.ReconciliationsTotal.WithLabelValues(SourceWebhook, "succeeded")))
}

func (s *ReconcilerSuite) TestFailedKeepsAllowance() {
	mint := s.admitted(1, 0)

	out := s.apply(mint.ReferenceID, models.StatusFailed)
	s.True(out.Applied)
	s.False(s.locked())
	s.Equal(int64(2), s.allowance())
}

func (s *ReconcilerSuite) TestIdempotent() {
	for _, status := range []models.Status{models.StatusSucceeded, models.StatusFailed} {
		s.Run(string(status), func() {
			s.SetupTest()
			mint := s.admitted(1, 0)

			s.True(s.apply(mint.ReferenceID, status).Applied)
			allowance := s.allowance()

			second := s.apply(mint.ReferenceID, status)
			s.False(second.Applied)
			s.Equal(status, second.Status)
			s.Equal(allowance, s.allowance())
			s.False(s.locked())
		})
	}
}

func (s *ReconcilerSuite) TestTerminalRowIgnoresConflictingStatus() {
	mint := s.admitted(1, 0)
	s.apply(mint.ReferenceID, models.StatusSucceeded)

	out := s.apply(mint.ReferenceID, models.StatusFailed)
	s.False(out.Applied)
	s.Equal(models.StatusSucceeded, out.Status)
	s.Equal(int64(1), s.allowance())
}

func (s *ReconcilerSuite) TestPendingIsNoop() {
	mint := s.admitted(1, 0)

	out := s.apply(mint.ReferenceID, models.StatusPending)
	s.False(out.Applied)
	s.True(s.locked())
}

func (s *ReconcilerSuite) TestUnlockKeepsNewerLock() {
	mint := s.admitted(1, 0)
	s.Require().NoError(s.store.Unlock(s.ctx, alice, mint.ReferenceID))
	newer := uuid.New()
	s.Require().NoError(s.store.Lock(s.ctx, &models.LockedAddress{Address: alice, ReferenceID: newer, LockedAt: t0}))

	s.apply(mint.ReferenceID, models.StatusFailed)
	s.True(s.locked(), "a late notification must not release another mint's lock")
}

func (s *ReconcilerSuite) TestNonAllowlistPhaseSkipsAllowance() {
	mint := s.admitted(11, 1)

	out := s.apply(mint.ReferenceID, models.StatusSucceeded)
	s.True(out.Applied)
	s.False(s.locked())
}

func (s *ReconcilerSuite) TestErrors() {
	s.Run("malformed reference", func() {
		_, err := s.reconciler.Apply(s.ctx, models.Notification{ReferenceID: "42", Status: "succeeded"}, SourceWebhook)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("unknown status", func() {
		_, err := s.reconciler.Apply(s.ctx, models.Notification{ReferenceID: uuid.NewString(), Status: "burned"}, SourceWebhook)
		s.Error(err)
	})

	s.Run("unknown reference", func() {
		_, err := s.reconciler.Apply(s.ctx, models.Notification{ReferenceID: uuid.NewString(), Status: "succeeded"}, SourceWebhook)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ReconcilerSuite) TestPublishesTerminalEvent() {
	ctrl := gomock.NewController(s.T())
	events := mocks.NewMockEventPublisher(ctrl)
	s.reconciler = New(s.store, testPhases(), WithEventPublisher(events))
	mint := s.admitted(1, 0)

	events.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e models.Event) error {
		s.Equal(models.EventFailed, e.Type)
		s.Equal(mint.ReferenceID.String(), e.ReferenceID)
		return nil
	})

	s.apply(mint.ReferenceID, models.StatusFailed)
	s.apply(mint.ReferenceID, models.StatusFailed)
}

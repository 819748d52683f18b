//go:build integration

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"mintgate/internal/mint/models"
	"mintgate/internal/mint/ports"
	"mintgate/pkg/platform/sentinel"
	"mintgate/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *Postgres
	ctx   context.Context
	now   time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.GetManager().GetPostgres(s.T())
	s.store = NewPostgres(s.pg.DB)
	s.ctx = context.Background()
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateMintTables(s.ctx))
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (s *PostgresStoreSuite) pending(tokenID int64, wallet string, phase int) *models.Mint {
	return models.NewPendingMint(uuid.New(), tokenID, collection, wallet, phase, s.now)
}

func (s *PostgresStoreSuite) TestInsertAndFind() {
	mint := s.pending(6, alice, 0)
	s.Require().NoError(s.store.InsertMint(s.ctx, mint))

	found, err := s.store.FindMint(s.ctx, mint.ReferenceID)
	s.Require().NoError(err)
	s.Equal(int64(6), found.TokenID)
	s.Equal(alice, found.WalletAddress)
	s.Equal(models.StatusPending, found.Status)
	s.True(found.CreatedAt.Equal(s.now))

	_, err = s.store.FindMint(s.ctx, uuid.New())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestUniqueConstraints() {
	first := s.pending(1, alice, 0)
	s.Require().NoError(s.store.InsertMint(s.ctx, first))

	s.ErrorIs(s.store.InsertMint(s.ctx, s.pending(1, bob, 0)), sentinel.ErrConflict)

	s.Require().NoError(s.store.Lock(s.ctx, &models.LockedAddress{Address: alice, ReferenceID: first.ReferenceID, LockedAt: s.now}))
	s.ErrorIs(s.store.Lock(s.ctx, &models.LockedAddress{Address: alice, ReferenceID: uuid.New(), LockedAt: s.now}), sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestStatusTransitions() {
	mint := s.pending(1, alice, 0)
	s.Require().NoError(s.store.InsertMint(s.ctx, mint))

	s.Require().NoError(s.store.UpdateMintStatus(s.ctx, mint.ReferenceID, models.StatusFailed, s.now.Add(time.Minute)))
	s.ErrorIs(s.store.UpdateMintStatus(s.ctx, mint.ReferenceID, models.StatusSucceeded, s.now), sentinel.ErrInvalidState)
	s.ErrorIs(s.store.UpdateMintStatus(s.ctx, uuid.New(), models.StatusSucceeded, s.now), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestCountsExcludeFailed() {
	ok := s.pending(1, alice, 0)
	failed := s.pending(2, alice, 0)
	s.Require().NoError(s.store.InsertMint(s.ctx, ok))
	s.Require().NoError(s.store.InsertMint(s.ctx, failed))
	s.Require().NoError(s.store.InsertMint(s.ctx, s.pending(11, bob, 1)))
	s.Require().NoError(s.store.UpdateMintStatus(s.ctx, failed.ReferenceID, models.StatusFailed, s.now))

	phaseCount, err := s.store.CountPhaseMints(s.ctx, 0)
	s.Require().NoError(err)
	s.Equal(int64(1), phaseCount)

	total, err := s.store.CountAllMints(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(2), total)

	walletCount, err := s.store.CountWalletPhaseMints(s.ctx, alice, 0)
	s.Require().NoError(err)
	s.Equal(int64(1), walletCount)

	maxID, found, err := s.store.MaxTokenID(s.ctx, 0)
	s.Require().NoError(err)
	s.True(found)
	s.Equal(int64(2), maxID, "failed ids stay burned")

	_, found, err = s.store.MaxTokenID(s.ctx, 5)
	s.Require().NoError(err)
	s.False(found)

	byStatus, err := s.store.CountByStatus(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(2), byStatus[models.StatusPending])
	s.Equal(int64(1), byStatus[models.StatusFailed])
	s.Equal(int64(0), byStatus[models.StatusSucceeded])
}

func (s *PostgresStoreSuite) TestListPending() {
	for i := int64(1); i <= 3; i++ {
		mint := s.pending(i, alice, 0)
		mint.CreatedAt = s.now.Add(time.Duration(i) * time.Minute)
		s.Require().NoError(s.store.InsertMint(s.ctx, mint))
	}

	page, err := s.store.ListPending(s.ctx, models.PendingCursor{}, s.now.Add(time.Hour), 2)
	s.Require().NoError(err)
	s.Require().Len(page, 2)
	s.Equal(int64(1), page[0].TokenID)

	rest, err := s.store.ListPending(s.ctx, models.CursorAt(page[1]), s.now.Add(time.Hour), 2)
	s.Require().NoError(err)
	s.Require().Len(rest, 1)
	s.Equal(int64(3), rest[0].TokenID)

	young, err := s.store.ListPending(s.ctx, models.PendingCursor{}, s.now.Add(90*time.Second), 10)
	s.Require().NoError(err)
	s.Len(young, 1)
}

func (s *PostgresStoreSuite) TestListPendingCursorBreaksTimestampTies() {
	for i := int64(1); i <= 3; i++ {
		s.Require().NoError(s.store.InsertMint(s.ctx, s.pending(i, alice, 0)))
	}

	first, err := s.store.ListPending(s.ctx, models.PendingCursor{}, s.now, 2)
	s.Require().NoError(err)
	s.Require().Len(first, 2)
	rest, err := s.store.ListPending(s.ctx, models.CursorAt(first[1]), s.now, 2)
	s.Require().NoError(err)
	s.Require().Len(rest, 1)

	seen := map[int64]bool{}
	for _, m := range append(first, rest...) {
		seen[m.TokenID] = true
	}
	s.Len(seen, 3)
}

func (s *PostgresStoreSuite) TestAllowlist() {
	s.Require().NoError(s.store.UpsertAllowlistEntries(s.ctx, 0, []*models.AllowlistEntry{
		{Address: alice, Phase: 0, QuantityAllowed: 2},
		{Address: bob, Phase: 0, QuantityAllowed: 1},
	}))

	entry, err := s.store.FindAllowlistEntry(s.ctx, alice, 0)
	s.Require().NoError(err)
	s.Equal(int64(2), entry.QuantityAllowed)
	s.Nil(entry.ReferenceID)

	ref := uuid.New()
	s.Require().NoError(s.store.SetAllowlistReference(s.ctx, alice, 0, ref))
	s.Require().NoError(s.store.DecrementAllowance(s.ctx, alice, 0))
	s.Require().NoError(s.store.DecrementAllowance(s.ctx, alice, 0))
	s.Require().NoError(s.store.DecrementAllowance(s.ctx, alice, 0))

	entry, err = s.store.FindAllowlistEntry(s.ctx, alice, 0)
	s.Require().NoError(err)
	s.Zero(entry.QuantityAllowed, "allowance floors at zero")
	s.Require().NotNil(entry.ReferenceID)
	s.Equal(ref, *entry.ReferenceID)

	s.ErrorIs(s.store.DecrementAllowance(s.ctx, "0xnobody", 0), sentinel.ErrNotFound)

	s.Require().NoError(s.store.UpsertAllowlistEntry(s.ctx, &models.AllowlistEntry{Address: alice, Phase: 1, QuantityAllowed: 4}))
	entries, err := s.store.ListAllowlistEntries(s.ctx, alice)
	s.Require().NoError(err)
	s.Len(entries, 2)
}

func (s *PostgresStoreSuite) TestUnlockOnlyMatchingReference() {
	ref := uuid.New()
	s.Require().NoError(s.store.Lock(s.ctx, &models.LockedAddress{Address: alice, ReferenceID: ref, LockedAt: s.now}))

	s.Require().NoError(s.store.Unlock(s.ctx, alice, uuid.New()))
	locked, err := s.store.IsLocked(s.ctx, alice)
	s.Require().NoError(err)
	s.True(locked)

	s.Require().NoError(s.store.Unlock(s.ctx, alice, ref))
	s.Require().NoError(s.store.Unlock(s.ctx, alice, ref))
	locked, err = s.store.IsLocked(s.ctx, alice)
	s.Require().NoError(err)
	s.False(locked)
}

func (s *PostgresStoreSuite) TestRunInTxRollsBack() {
	mint := s.pending(1, alice, 0)
	boom := errors.New("boom")

	err := s.store.RunInTx(s.ctx, func(ctx context.Context, tx ports.Store) error {
		s.Require().NoError(tx.AcquireAdmissionLock(ctx, "mint:test"))
		s.Require().NoError(tx.InsertMint(ctx, mint))
		return boom
	})
	s.ErrorIs(err, boom)

	_, err = s.store.FindMint(s.ctx, mint.ReferenceID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestAdvisoryLockRequiresTx() {
	s.Error(s.store.AcquireAdmissionLock(s.ctx, "mint:test"))
}

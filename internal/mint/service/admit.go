package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mintgate/internal/mint/models"
	"mintgate/internal/mint/phase"
	"mintgate/internal/mint/ports"
	dErrors "mintgate/pkg/domain-errors"
	"mintgate/pkg/platform/sentinel"
	"mintgate/pkg/requestcontext"
)

// AdmitMint decides whether wallet may mint at now and, if so, reserves the
// next token id and submits the mint.
//
// Steps 1-7 (resolve phase, lock check, capacity, allowlist, wallet limit,
// allocate, write ledger + lock) run in one transaction. The provider call
// happens after commit; if it fails the row stays pending and reconciliation
// resolves it.
func (s *Service) AdmitMint(ctx context.Context, wallet string, now time.Time) (*models.Admission, error) {
	start := time.Now()
	wallet = NormalizeAddress(wallet)
	requestID := requestcontext.RequestID(ctx)

	ctx, span := s.tracer.Start(ctx, "mint.admit", trace.WithAttributes(
		attribute.String("mint.wallet", wallet),
		attribute.String("mint.auth_method", requestcontext.AuthMethod(ctx)),
	))
	defer span.End()

	active, index, ok := phase.Active(now, s.cfg.Phases)
	if !ok {
		err := dErrors.New(dErrors.CodeNoActivePhase, "no mint phase is active")
		s.denied(ctx, span, wallet, err, start)
		return nil, err
	}
	span.SetAttributes(attribute.String("mint.phase", active.Name))

	// Fail fast without reserving anything while the provider is known to be down.
	if s.provider != nil && !s.provider.Available() {
		err := dErrors.New(dErrors.CodeProviderUnavailable, "minting provider is temporarily unavailable")
		s.denied(ctx, span, wallet, err, start)
		return nil, err
	}

	var mint *models.Mint
	err := s.tx.RunInTx(ctx, func(ctx context.Context, store ports.Store) error {
		var err error
		mint, err = s.reserve(ctx, store, active, index, wallet, now)
		return err
	})
	if err != nil {
		err = translateReserveError(err)
		s.denied(ctx, span, wallet, err, start)
		return nil, err
	}

	s.logger.InfoContext(ctx, "mint admitted",
		"wallet", wallet,
		"phase", active.Name,
		"token_id", mint.TokenID,
		"reference_id", mint.ReferenceID.String(),
		"request_id", requestID,
	)
	span.SetAttributes(
		attribute.Int64("mint.token_id", mint.TokenID),
		attribute.String("mint.reference_id", mint.ReferenceID.String()),
	)

	s.publish(ctx, models.EventAdmitted, mint, now)
	if err := s.Submit(ctx, mint); err != nil {
		s.logger.ErrorContext(ctx, "mint submission failed; ledger row stays pending",
			"error", err,
			"reference_id", mint.ReferenceID.String(),
			"token_id", mint.TokenID,
			"request_id", requestID,
		)
	}
	s.metrics.ObserveAdmission("admitted", start)

	return &models.Admission{
		TokenID:           mint.TokenID,
		CollectionAddress: mint.CollectionAddress,
		WalletAddress:     mint.WalletAddress,
		ReferenceID:       mint.ReferenceID,
		Phase:             mint.Phase,
	}, nil
}

// reserve runs inside the admission transaction.
func (s *Service) reserve(ctx context.Context, store ports.Store, active models.Phase, index int, wallet string, now time.Time) (*models.Mint, error) {
	// Lock order: collection, then phases by ascending index. Every admission
	// takes them in this order.
	if s.accountant.GlobalCap() > 0 {
		if err := store.AcquireAdmissionLock(ctx, "mint:"+s.collection); err != nil {
			return nil, err
		}
	}
	// A roll-over phase allocates above the previous phase's highest id, so it
	// also waits for admissions still in flight there.
	if active.IsRollover() && index > 0 {
		if err := store.AcquireAdmissionLock(ctx, s.phaseLockKey(index-1)); err != nil {
			return nil, err
		}
	}
	if err := store.AcquireAdmissionLock(ctx, s.phaseLockKey(index)); err != nil {
		return nil, err
	}

	locked, err := store.IsLocked(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("check wallet lock: %w", err)
	}
	if locked {
		return nil, dErrors.New(dErrors.CodeWalletLocked, "wallet already has a mint in progress")
	}

	if err := s.accountant.CheckCapacity(ctx, store, index); err != nil {
		return nil, err
	}

	if active.AllowListEnabled {
		entry, err := store.FindAllowlistEntryForUpdate(ctx, wallet, index)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.New(dErrors.CodeNotAllowlisted, fmt.Sprintf("wallet is not on the %s allowlist", active.Name))
			}
			return nil, fmt.Errorf("find allowlist entry: %w", err)
		}
		if !entry.HasAllowance() {
			return nil, dErrors.New(dErrors.CodeNoAllowanceLeft, fmt.Sprintf("wallet has no %s allowance left", active.Name))
		}
	}

	if active.HasWalletLimit() {
		minted, err := store.CountWalletPhaseMints(ctx, wallet, index)
		if err != nil {
			return nil, fmt.Errorf("count wallet mints: %w", err)
		}
		if minted >= active.MaxTokensPerWallet {
			return nil, dErrors.New(dErrors.CodeWalletLimitReached,
				fmt.Sprintf("wallet reached the %s limit of %d", active.Name, active.MaxTokensPerWallet))
		}
	}

	tokenID, err := s.allocator.NextTokenID(ctx, store, index)
	if err != nil {
		return nil, err
	}

	mint := models.NewPendingMint(s.newReferenceID(), tokenID, s.collection, wallet, index, now)
	if err := store.InsertMint(ctx, mint); err != nil {
		return nil, err
	}
	if err := store.Lock(ctx, &models.LockedAddress{Address: wallet, ReferenceID: mint.ReferenceID, LockedAt: now}); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeWalletLocked, "wallet already has a mint in progress")
		}
		return nil, err
	}
	if active.AllowListEnabled {
		if err := store.SetAllowlistReference(ctx, wallet, index, mint.ReferenceID); err != nil {
			return nil, fmt.Errorf("record allowlist reference: %w", err)
		}
	}
	return mint, nil
}

func (s *Service) phaseLockKey(index int) string {
	return fmt.Sprintf("mint:%s:phase:%d", s.collection, index)
}

// translateReserveError keeps domain errors and maps store facts onto codes.
func translateReserveError(err error) error {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		return err
	}
	if errors.Is(err, sentinel.ErrConflict) {
		return dErrors.Wrap(err, dErrors.CodeConflict, "duplicate entry")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "admission timed out")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to process mint request")
}

func (s *Service) denied(ctx context.Context, span trace.Span, wallet string, err error, start time.Time) {
	code := dErrors.CodeOf(err)
	span.SetStatus(codes.Error, string(code))
	if dErrors.IsAdmissionDenial(err) {
		s.logger.InfoContext(ctx, "mint denied",
			"wallet", wallet,
			"reason", string(code),
			"detail", err.Error(),
			"request_id", requestcontext.RequestID(ctx),
		)
	} else {
		span.RecordError(err)
		s.logger.ErrorContext(ctx, "mint admission failed",
			"wallet", wallet,
			"code", string(code),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	s.metrics.ObserveAdmission(string(code), start)
}

package service

import (
	"context"
	"fmt"
	"time"

	"mintgate/internal/mint/models"
)

// Submit sends a ledger row's mint request to the provider. It is used after
// admission commits and by reconciliation to resubmit rows the provider never
// received; the provider deduplicates by reference id.
//
// The call is detached from the caller's cancellation so a client hanging up
// after commit does not abort the submission.
func (s *Service) Submit(ctx context.Context, mint *models.Mint) error {
	if s.provider == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.submitTimeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "mint.submit")
	defer span.End()

	var metadata *models.NFTMetadata
	if s.metadata != nil {
		md, err := s.metadata.Metadata(ctx, mint.TokenID)
		if err != nil {
			// Minting without metadata is preferable to not minting; metadata can be refreshed later.
			s.logger.WarnContext(ctx, "metadata lookup failed; submitting without metadata",
				"error", err,
				"token_id", mint.TokenID,
			)
		} else {
			metadata = md
		}
	}

	err := s.provider.CreateMintRequest(ctx, models.MintRequest{
		CollectionAddress: mint.CollectionAddress,
		OwnerAddress:      mint.WalletAddress,
		ReferenceID:       mint.ReferenceID.String(),
		TokenID:           mint.TokenID,
		Metadata:          metadata,
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("create mint request %s: %w", mint.ReferenceID, err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, eventType models.EventType, mint *models.Mint, now time.Time) {
	if s.events == nil {
		return
	}
	event := models.Event{
		Type:              eventType,
		ReferenceID:       mint.ReferenceID.String(),
		TokenID:           mint.TokenID,
		CollectionAddress: mint.CollectionAddress,
		WalletAddress:     mint.WalletAddress,
		Phase:             mint.Phase,
		OccurredAt:        now,
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish mint event",
			"error", err,
			"type", string(eventType),
			"reference_id", event.ReferenceID,
		)
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mintgate/internal/mint/models"
	dErrors "mintgate/pkg/domain-errors"
	"mintgate/pkg/platform/sentinel"
)

// Config reports the sale configuration with live capacities and counts.
// It only reads; eligibility and config endpoints never mutate lock or
// allowlist state.
func (s *Service) Config(ctx context.Context) (*models.CollectionConfig, error) {
	out := &models.CollectionConfig{
		ChainName:                     s.cfg.ChainName,
		CollectionAddress:             s.collection,
		MaxTokenSupplyAcrossAllPhases: optional(s.cfg.MaxTokenSupplyAcrossAllPhases),
		MintPhases:                    make([]models.PhaseView, 0, len(s.cfg.Phases)),
	}

	total, err := s.accountant.TotalMintedCount(ctx, s.store)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load configuration")
	}
	out.TotalMinted = total

	for i, p := range s.cfg.Phases {
		capacity, err := s.accountant.PhaseCapacity(ctx, s.store, i)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load configuration")
		}
		minted, err := s.accountant.PhaseMintedCount(ctx, s.store, i)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load configuration")
		}
		view := models.PhaseView{
			Name:               p.Name,
			StartTime:          p.Start.Unix(),
			EndTime:            p.End.Unix(),
			EnableAllowList:    p.AllowListEnabled,
			MaxTokensPerWallet: optional(p.MaxTokensPerWallet),
			Capacity:           capacity,
			TotalMinted:        minted,
		}
		switch ids := p.TokenIDs.(type) {
		case models.FixedRange:
			view.StartTokenID, view.EndTokenID = &ids.Start, &ids.End
		case models.Rollover:
			view.EnableTokenIDRollOver = true
			view.EndTokenID = optional(ids.EndTokenID)
			view.MaxTokenSupply = optional(ids.MaxTokenSupply)
		}
		out.MintPhases = append(out.MintPhases, view)
	}
	return out, nil
}

// Eligibility reports, for each phase, whether wallet may take part.
func (s *Service) Eligibility(ctx context.Context, wallet string, now time.Time) (*models.Eligibility, error) {
	wallet = NormalizeAddress(wallet)

	locked, err := s.store.IsLocked(ctx, wallet)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check eligibility")
	}
	entries, err := s.store.ListAllowlistEntries(ctx, wallet)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check eligibility")
	}
	allowances := make(map[int]int64, len(entries))
	for _, e := range entries {
		allowances[e.Phase] = e.QuantityAllowed
	}

	out := &models.Eligibility{
		ChainName:                     s.cfg.ChainName,
		CollectionAddress:             s.collection,
		MaxTokenSupplyAcrossAllPhases: optional(s.cfg.MaxTokenSupplyAcrossAllPhases),
		Address:                       wallet,
		IsLocked:                      locked,
		MintPhases:                    make([]models.PhaseEligibility, 0, len(s.cfg.Phases)),
	}
	for i, p := range s.cfg.Phases {
		pe := models.PhaseEligibility{
			Name:      p.Name,
			StartTime: p.Start.Unix(),
			EndTime:   p.End.Unix(),
			IsActive:  p.Contains(now),
		}
		switch ids := p.TokenIDs.(type) {
		case models.FixedRange:
			pe.StartTokenID, pe.EndTokenID = &ids.Start, &ids.End
		case models.Rollover:
			pe.EndTokenID = optional(ids.EndTokenID)
		}
		if p.AllowListEnabled {
			if allowance, listed := allowances[i]; listed {
				pe.IsEligible = true
				pe.WalletTokenAllowance = &allowance
			}
		} else {
			pe.IsEligible = true
			pe.MaxTokensPerWallet = optional(p.MaxTokensPerWallet)
		}
		out.MintPhases = append(out.MintPhases, pe)
	}
	return out, nil
}

// MintRequest proxies the provider's view of a mint request.
func (s *Service) MintRequest(ctx context.Context, referenceID string) (*models.ProviderStatus, error) {
	if _, err := uuid.Parse(referenceID); err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "reference id must be a UUID")
	}
	if s.provider == nil {
		return nil, dErrors.New(dErrors.CodeProviderUnavailable, "minting provider is not configured")
	}
	status, err := s.provider.GetMintRequest(ctx, s.collection, referenceID)
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "mint request not found")
		case errors.Is(err, sentinel.ErrUnavailable):
			return nil, dErrors.Wrap(err, dErrors.CodeProviderUnavailable, "minting provider is temporarily unavailable")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("failed to query mint request %s", referenceID))
		}
	}
	return status, nil
}

func optional(v int64) *int64 {
	if v <= 0 {
		return nil
	}
	return &v
}

// Package supply enforces per-phase and collection-wide supply caps and
// allocates token ids.
package supply

import (
	"context"
	"fmt"

	"mintgate/internal/mint/models"
	dErrors "mintgate/pkg/domain-errors"
)

// Accountant computes capacities and minted counts. Pending rows count as
// minted: a pending mint reserves its capacity until reconciliation resolves it.
type Accountant struct {
	phases    []models.Phase
	globalCap int64
	allocator *Allocator
}

// NewAccountant creates an accountant. globalCap <= 0 disables the
// collection-wide cap.
func NewAccountant(phases []models.Phase, globalCap int64, allocator *Allocator) *Accountant {
	if allocator == nil {
		allocator = NewAllocator(phases)
	}
	return &Accountant{phases: phases, globalCap: globalCap, allocator: allocator}
}

// GlobalCap returns the collection-wide cap, or 0 when none is configured.
func (a *Accountant) GlobalCap() int64 {
	return a.globalCap
}

// PhaseCapacity returns how many tokens the phase may hold.
//
//   - fixed range: end - start + 1
//   - roll-over with maxTokenSupply: that value
//   - roll-over with endTokenID: endTokenID - max id of the previous phase
func (a *Accountant) PhaseCapacity(ctx context.Context, r LedgerReader, index int) (int64, error) {
	if err := a.allocator.checkIndex(index); err != nil {
		return 0, err
	}
	p := a.phases[index]
	switch ids := p.TokenIDs.(type) {
	case models.FixedRange:
		return ids.Capacity(), nil
	case models.Rollover:
		switch {
		case ids.MaxTokenSupply > 0:
			return ids.MaxTokenSupply, nil
		case ids.EndTokenID > 0:
			prev, err := a.allocator.PreviousMaxTokenID(ctx, r, index)
			if err != nil {
				return 0, err
			}
			return max(ids.EndTokenID-prev, 0), nil
		}
	}
	return 0, configurationError(p)
}

// PhaseMintedCount counts pending and succeeded rows of the phase.
func (a *Accountant) PhaseMintedCount(ctx context.Context, r LedgerReader, index int) (int64, error) {
	n, err := r.CountPhaseMints(ctx, index)
	if err != nil {
		return 0, fmt.Errorf("count mints of phase %d: %w", index, err)
	}
	return n, nil
}

// TotalMintedCount counts pending and succeeded rows across all phases.
func (a *Accountant) TotalMintedCount(ctx context.Context, r LedgerReader) (int64, error) {
	n, err := r.CountAllMints(ctx)
	if err != nil {
		return 0, fmt.Errorf("count all mints: %w", err)
	}
	return n, nil
}

// CheckCapacity fails with CodeCapacityExceeded when the phase is full, when
// the collection-wide cap is reached, or when a range-bounded phase has no
// token ids left. Failed mints burn ids without holding capacity, so a bounded
// range can run out before its count does.
func (a *Accountant) CheckCapacity(ctx context.Context, r LedgerReader, index int) error {
	capacity, err := a.PhaseCapacity(ctx, r, index)
	if err != nil {
		return err
	}
	minted, err := a.PhaseMintedCount(ctx, r, index)
	if err != nil {
		return err
	}
	if minted >= capacity {
		return dErrors.New(dErrors.CodeCapacityExceeded,
			fmt.Sprintf("phase %q is sold out (%d of %d)", a.phases[index].Name, minted, capacity))
	}

	if a.globalCap > 0 {
		total, err := a.TotalMintedCount(ctx, r)
		if err != nil {
			return err
		}
		if total >= a.globalCap {
			return dErrors.New(dErrors.CodeCapacityExceeded,
				fmt.Sprintf("collection supply cap reached (%d of %d)", total, a.globalCap))
		}
	}

	upper, bounded := a.upperTokenID(index)
	if !bounded {
		return nil
	}
	next, err := a.allocator.NextTokenID(ctx, r, index)
	if err != nil {
		return err
	}
	if next > upper {
		return dErrors.New(dErrors.CodeCapacityExceeded,
			fmt.Sprintf("phase %q has no token ids left", a.phases[index].Name))
	}
	return nil
}

// upperTokenID is the highest id the phase may allocate, when bounded.
func (a *Accountant) upperTokenID(index int) (int64, bool) {
	switch ids := a.phases[index].TokenIDs.(type) {
	case models.FixedRange:
		return ids.End, true
	case models.Rollover:
		if ids.EndTokenID > 0 {
			return ids.EndTokenID, true
		}
	}
	return 0, false
}

func configurationError(p models.Phase) error {
	return dErrors.New(dErrors.CodeConfiguration,
		fmt.Sprintf("phase %q: capacity cannot be derived from its token id strategy", p.Name))
}

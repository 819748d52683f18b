package supply

import (
	"context"
	"fmt"

	"mintgate/internal/mint/models"
)

// LedgerReader is the ledger view the accountant and allocator need. The
// engine passes its tx-scoped store so every read sees the same snapshot.
type LedgerReader interface {
	CountPhaseMints(ctx context.Context, phase int) (int64, error)
	CountAllMints(ctx context.Context) (int64, error)
	MaxTokenID(ctx context.Context, phase int) (int64, bool, error)
}

// Allocator derives token ids from durable ledger state. There is no
// in-process counter: the next id is always max(ledger) + 1, so ids survive
// restarts, are shared by every instance and are never reissued after failure.
type Allocator struct {
	phases []models.Phase
}

func NewAllocator(phases []models.Phase) *Allocator {
	return &Allocator{phases: phases}
}

// NextTokenID returns the id the next admission in phase index receives.
func (a *Allocator) NextTokenID(ctx context.Context, r LedgerReader, index int) (int64, error) {
	if err := a.checkIndex(index); err != nil {
		return 0, err
	}
	maxID, ok, err := r.MaxTokenID(ctx, index)
	if err != nil {
		return 0, fmt.Errorf("max token id of phase %d: %w", index, err)
	}
	if ok {
		return maxID + 1, nil
	}
	return a.firstTokenID(ctx, r, index)
}

// PreviousMaxTokenID is the id a roll-over phase continues from: the highest
// id minted in the previous phase, or the previous phase's own starting point
// minus one when it minted nothing. Zero before the first phase.
func (a *Allocator) PreviousMaxTokenID(ctx context.Context, r LedgerReader, index int) (int64, error) {
	if index <= 0 {
		return 0, nil
	}
	maxID, ok, err := r.MaxTokenID(ctx, index-1)
	if err != nil {
		return 0, fmt.Errorf("max token id of phase %d: %w", index-1, err)
	}
	if ok {
		return maxID, nil
	}
	first, err := a.firstTokenID(ctx, r, index-1)
	if err != nil {
		return 0, err
	}
	return first - 1, nil
}

// firstTokenID is the id a phase allocates when it has no rows yet.
func (a *Allocator) firstTokenID(ctx context.Context, r LedgerReader, index int) (int64, error) {
	switch ids := a.phases[index].TokenIDs.(type) {
	case models.FixedRange:
		return ids.Start, nil
	case models.Rollover:
		prev, err := a.PreviousMaxTokenID(ctx, r, index)
		if err != nil {
			return 0, err
		}
		return prev + 1, nil
	default:
		return 0, configurationError(a.phases[index])
	}
}

func (a *Allocator) checkIndex(index int) error {
	if index < 0 || index >= len(a.phases) {
		return fmt.Errorf("phase index %d out of range", index)
	}
	return nil
}

// Package phase resolves the active mint phase and validates the schedule.
package phase

import (
	"fmt"
	"time"

	"mintgate/internal/mint/models"
	dErrors "mintgate/pkg/domain-errors"
)

// Active returns the first phase whose closed window contains now.
// Overlapping windows are rejected by ValidateSchedule; if a misconfigured
// schedule slips through anyway, the earliest configured phase wins.
func Active(now time.Time, phases []models.Phase) (models.Phase, int, bool) {
	for i, p := range phases {
		if p.Contains(now) {
			return p, i, true
		}
	}
	return models.Phase{}, -1, false
}

// ValidateSchedule checks the static invariants of a phase schedule. Any
// violation is a configuration error and must stop startup.
func ValidateSchedule(phases []models.Phase) error {
	if len(phases) == 0 {
		return configError("at least one mint phase is required")
	}

	for i, p := range phases {
		if p.Name == "" {
			return configError(fmt.Sprintf("phase %d: name is required", i))
		}
		if !p.Start.Before(p.End) {
			return configError(fmt.Sprintf("phase %q: start must be before end", p.Name))
		}
		if !p.AllowListEnabled && !p.HasWalletLimit() {
			return configError(fmt.Sprintf("phase %q: maxTokensPerWallet is required when the allowlist is disabled", p.Name))
		}
		if p.MaxTokensPerWallet < 0 {
			return configError(fmt.Sprintf("phase %q: maxTokensPerWallet must not be negative", p.Name))
		}

		switch ids := p.TokenIDs.(type) {
		case models.FixedRange:
			if ids.Start < 0 || ids.End < ids.Start {
				return configError(fmt.Sprintf("phase %q: invalid token range %d-%d", p.Name, ids.Start, ids.End))
			}
		case models.Rollover:
			hasSupply, hasEnd := ids.MaxTokenSupply > 0, ids.EndTokenID > 0
			if hasSupply == hasEnd {
				return configError(fmt.Sprintf("phase %q: roll-over needs exactly one of maxTokenSupply or endTokenID", p.Name))
			}
			if i > 0 && !p.Start.After(phases[i-1].End) {
				return configError(fmt.Sprintf("phase %q: roll-over phase must start after the phase it continues from", p.Name))
			}
			if hasEnd && ids.EndTokenID < staticFirstTokenID(phases, i) {
				return configError(fmt.Sprintf("phase %q: endTokenID %d is below the first roll-over id %d", p.Name, ids.EndTokenID, staticFirstTokenID(phases, i)))
			}
		default:
			return configError(fmt.Sprintf("phase %q: token id strategy is required", p.Name))
		}
	}

	for i := range phases {
		for j := i + 1; j < len(phases); j++ {
			a, b := phases[i], phases[j]
			if !a.Start.After(b.End) && !b.Start.After(a.End) {
				return configError(fmt.Sprintf("phases %q and %q have overlapping time windows", a.Name, b.Name))
			}
			if rangesOverlap(phases, i, j) {
				return configError(fmt.Sprintf("phases %q and %q have overlapping token ranges", a.Name, b.Name))
			}
		}
	}
	return nil
}

// staticFirstTokenID is the first id a phase would allocate if no phase had
// minted yet.
func staticFirstTokenID(phases []models.Phase, i int) int64 {
	if fixed, ok := phases[i].TokenIDs.(models.FixedRange); ok {
		return fixed.Start
	}
	if i == 0 {
		return 1
	}
	return staticFirstTokenID(phases, i-1)
}

// rangesOverlap compares the id ranges of phase i and a later phase j.
// Fixed ranges are compared pairwise. A roll-over phase only ever allocates
// above what earlier phases minted, so it is compared against later fixed
// ranges alone, using its lowest possible first id.
func rangesOverlap(phases []models.Phase, i, j int) bool {
	later, ok := phases[j].TokenIDs.(models.FixedRange)
	if !ok {
		return false
	}
	var earlier models.FixedRange
	switch ids := phases[i].TokenIDs.(type) {
	case models.FixedRange:
		earlier = ids
	case models.Rollover:
		if ids.EndTokenID == 0 {
			return false
		}
		earlier = models.FixedRange{Start: staticFirstTokenID(phases, i), End: ids.EndTokenID}
	default:
		return false
	}
	return earlier.Start <= later.End && later.Start <= earlier.End
}

func configError(msg string) error {
	return dErrors.New(dErrors.CodeConfiguration, msg)
}

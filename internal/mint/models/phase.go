package models

import (
	"fmt"
	"time"
)

// TokenIDs is the token-id strategy of a phase: FixedRange or Rollover.
// The interface is sealed; callers switch on the concrete type exhaustively.
type TokenIDs interface {
	isTokenIDs()
}

// FixedRange allocates ids from a configured inclusive range.
type FixedRange struct {
	Start int64
	End   int64
}

// Capacity is the number of ids in the range.
func (r FixedRange) Capacity() int64 {
	return r.End - r.Start + 1
}

// Contains reports whether tokenID falls inside the range.
func (r FixedRange) Contains(tokenID int64) bool {
	return tokenID >= r.Start && tokenID <= r.End
}

func (FixedRange) isTokenIDs() {}

// Rollover continues from the previous phase's highest id.
// Exactly one of MaxTokenSupply or EndTokenID is set (non-zero).
type Rollover struct {
	MaxTokenSupply int64
	EndTokenID     int64
}

func (Rollover) isTokenIDs() {}

// Phase is one window of the mint schedule. Phases are immutable at runtime.
//
// Invariants (checked by phase.ValidateSchedule):
//   - Start is before End
//   - windows and fixed ranges of different phases never overlap
//   - a phase without an allowlist has MaxTokensPerWallet > 0
type Phase struct {
	Name               string
	Start              time.Time
	End                time.Time
	AllowListEnabled   bool
	MaxTokensPerWallet int64
	TokenIDs           TokenIDs
}

// Contains reports whether now lies in the closed window [Start, End].
// Windows are whole seconds, so now is compared at second precision.
func (p Phase) Contains(now time.Time) bool {
	sec := now.Unix()
	return sec >= p.Start.Unix() && sec <= p.End.Unix()
}

// HasWalletLimit reports whether the phase caps mints per wallet.
func (p Phase) HasWalletLimit() bool {
	return p.MaxTokensPerWallet > 0
}

// IsRollover reports whether the phase derives its ids from the previous phase.
func (p Phase) IsRollover() bool {
	_, ok := p.TokenIDs.(Rollover)
	return ok
}

func (p Phase) String() string {
	return fmt.Sprintf("%s [%s, %s]", p.Name, p.Start.UTC().Format(time.RFC3339), p.End.UTC().Format(time.RFC3339))
}

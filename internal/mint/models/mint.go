package models

import (
	"bytes"
	"time"

	"github.com/google/uuid"

	dErrors "mintgate/pkg/domain-errors"
)

// Status is the lifecycle state of a ledger row.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// ParseStatus validates a provider or database status string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusSucceeded, StatusFailed:
		return Status(s), nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown mint status: "+s)
	}
}

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// CanTransitionTo allows only pending → succeeded and pending → failed.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusPending && next.IsTerminal()
}

// CountsTowardSupply reports whether a row in this state holds capacity.
// Pending rows reserve capacity so concurrent admissions cannot oversell.
func (s Status) CountsTowardSupply() bool {
	return s == StatusPending || s == StatusSucceeded
}

// Mint is one row of the mint ledger. Rows are append-only apart from the
// status transition written by reconciliation.
type Mint struct {
	ReferenceID       uuid.UUID `json:"uuid"`
	TokenID           int64     `json:"tokenID"`
	CollectionAddress string    `json:"collectionAddress"`
	WalletAddress     string    `json:"walletAddress"`
	Phase             int       `json:"phase"`
	Status            Status    `json:"status"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// NewPendingMint builds the row written on admission.
func NewPendingMint(referenceID uuid.UUID, tokenID int64, collection, wallet string, phase int, now time.Time) *Mint {
	return &Mint{
		ReferenceID:       referenceID,
		TokenID:           tokenID,
		CollectionAddress: collection,
		WalletAddress:     wallet,
		Phase:             phase,
		Status:            StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// PendingCursor is a position in the (created_at, reference_id) order of
// pending rows. The zero value is before every row.
type PendingCursor struct {
	CreatedAt   time.Time
	ReferenceID uuid.UUID
}

// CursorAt returns the cursor positioned on m.
func CursorAt(m *Mint) PendingCursor {
	return PendingCursor{CreatedAt: m.CreatedAt, ReferenceID: m.ReferenceID}
}

func (c PendingCursor) IsZero() bool {
	return c.CreatedAt.IsZero()
}

// Before reports whether the cursor sorts strictly before m.
func (c PendingCursor) Before(m *Mint) bool {
	if c.IsZero() || m.CreatedAt.After(c.CreatedAt) {
		return true
	}
	return m.CreatedAt.Equal(c.CreatedAt) && bytes.Compare(m.ReferenceID[:], c.ReferenceID[:]) > 0
}

// AllowlistEntry is a wallet's remaining allowance in one phase.
type AllowlistEntry struct {
	Address         string     `json:"address"`
	Phase           int        `json:"phase"`
	QuantityAllowed int64      `json:"quantityAllowed"`
	ReferenceID     *uuid.UUID `json:"uuid,omitempty"`
}

// HasAllowance reports whether at least one mint is left.
func (e *AllowlistEntry) HasAllowance() bool {
	return e.QuantityAllowed > 0
}

// LockedAddress marks a wallet with a mint in flight. Existence means locked.
type LockedAddress struct {
	Address     string    `json:"address"`
	ReferenceID uuid.UUID `json:"uuid"`
	LockedAt    time.Time `json:"lockedAt"`
}

// Admission is the result of a successful AdmitMint.
type Admission struct {
	TokenID           int64     `json:"tokenID"`
	CollectionAddress string    `json:"collectionAddress"`
	WalletAddress     string    `json:"walletAddress"`
	ReferenceID       uuid.UUID `json:"uuid"`
	Phase             int       `json:"-"`
}

// Package ports defines the interfaces the mint services depend on. Stores,
// the minting provider and event sinks are adapters behind these ports.
package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"mintgate/internal/mint/models"
)

// LedgerStore is the append-only record of mint attempts.
type LedgerStore interface {
	// InsertMint writes a pending row. Returns sentinel.ErrConflict when the
	// reference id or (collection, token id) already exists.
	InsertMint(ctx context.Context, mint *models.Mint) error

	// FindMint returns sentinel.ErrNotFound when no row has the reference id.
	FindMint(ctx context.Context, referenceID uuid.UUID) (*models.Mint, error)

	// FindMintForUpdate is FindMint with a row lock held until the transaction ends.
	FindMintForUpdate(ctx context.Context, referenceID uuid.UUID) (*models.Mint, error)

	// UpdateMintStatus moves a pending row to a terminal status. Returns
	// sentinel.ErrInvalidState if the row is no longer pending.
	UpdateMintStatus(ctx context.Context, referenceID uuid.UUID, status models.Status, now time.Time) error

	// CountPhaseMints counts pending and succeeded rows of a phase.
	CountPhaseMints(ctx context.Context, phase int) (int64, error)

	// CountAllMints counts pending and succeeded rows across phases.
	CountAllMints(ctx context.Context) (int64, error)

	// CountWalletPhaseMints counts a wallet's pending and succeeded rows in a phase.
	CountWalletPhaseMints(ctx context.Context, wallet string, phase int) (int64, error)

	// MaxTokenID returns the highest token id of a phase across all statuses.
	// ok is false when the phase has no rows.
	MaxTokenID(ctx context.Context, phase int) (maxID int64, ok bool, err error)

	// ListPending returns up to limit pending rows created at or before
	// createdBefore that sort after the cursor, ordered by
	// (created_at, reference_id).
	ListPending(ctx context.Context, after models.PendingCursor, createdBefore time.Time, limit int) ([]*models.Mint, error)

	// CountByStatus returns row counts keyed by status.
	CountByStatus(ctx context.Context) (map[models.Status]int64, error)
}

// AllowlistStore holds per-phase allowances.
type AllowlistStore interface {
	// FindAllowlistEntry returns sentinel.ErrNotFound when the wallet is not listed.
	FindAllowlistEntry(ctx context.Context, address string, phase int) (*models.AllowlistEntry, error)

	// FindAllowlistEntryForUpdate is FindAllowlistEntry with a row lock.
	FindAllowlistEntryForUpdate(ctx context.Context, address string, phase int) (*models.AllowlistEntry, error)

	// ListAllowlistEntries returns every phase entry for a wallet.
	ListAllowlistEntries(ctx context.Context, address string) ([]*models.AllowlistEntry, error)

	// SetAllowlistReference records the last mint reference issued for an entry.
	SetAllowlistReference(ctx context.Context, address string, phase int, referenceID uuid.UUID) error

	// DecrementAllowance lowers quantity_allowed by one, never below zero.
	DecrementAllowance(ctx context.Context, address string, phase int) error

	// UpsertAllowlistEntry creates or replaces an entry's allowance.
	UpsertAllowlistEntry(ctx context.Context, entry *models.AllowlistEntry) error
}

// LockStore is the set of wallets with a mint in flight.
type LockStore interface {
	IsLocked(ctx context.Context, address string) (bool, error)

	// Lock returns sentinel.ErrConflict if the wallet is already locked.
	Lock(ctx context.Context, lock *models.LockedAddress) error

	// Unlock removes the lock held for referenceID. Unlocking a wallet that is
	// not locked, or locked by another reference, is a no-op.
	Unlock(ctx context.Context, address string, referenceID uuid.UUID) error
}

// Store is the full persistence surface of the mint module.
type Store interface {
	LedgerStore
	AllowlistStore
	LockStore

	// AcquireAdmissionLock serialises admissions sharing key until the
	// transaction ends.
	AcquireAdmissionLock(ctx context.Context, key string) error
}

// TxRunner runs fn inside one transaction. Any error returned by fn rolls
// back every write made through the tx-scoped store.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}

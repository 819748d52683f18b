package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"mintgate/internal/mint/models"
	"mintgate/internal/mint/ports"
	dErrors "mintgate/pkg/domain-errors"
	"mintgate/pkg/platform/sentinel"
	txcontext "mintgate/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

// Postgres persists the mint tables. Calls made with a context carrying a
// transaction (see RunInTx) run inside it; other calls use the pool.
type Postgres struct {
	db        *sql.DB
	txTimeout time.Duration
}

var (
	_ ports.Store    = (*Postgres)(nil)
	_ ports.TxRunner = (*Postgres)(nil)
)

// PostgresOption configures a Postgres store.
type PostgresOption func(*Postgres)

// WithTxTimeout bounds transactions started without a caller deadline.
func WithTxTimeout(d time.Duration) PostgresOption {
	return func(p *Postgres) {
		if d > 0 {
			p.txTimeout = d
		}
	}
}

func NewPostgres(db *sql.DB, opts ...PostgresOption) *Postgres {
	p := &Postgres{db: db, txTimeout: defaultTxTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

func (p *Postgres) conn(ctx context.Context) txcontext.Querier {
	return txcontext.Conn(ctx, p.db)
}

// RunInTx runs fn in a READ COMMITTED transaction. Admission relies on
// advisory and row locks taken inside fn, not on the isolation level.
func (p *Postgres) RunInTx(ctx context.Context, fn func(ctx context.Context, store ports.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if txcontext.InTx(ctx) {
		return fn(ctx, p)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.txTimeout)
		defer cancel()
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // rollback after commit is a no-op
	}()

	if err := fn(txcontext.WithTx(ctx, tx), p); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// AcquireAdmissionLock takes a transaction-scoped advisory lock on key.
func (p *Postgres) AcquireAdmissionLock(ctx context.Context, key string) error {
	if !txcontext.InTx(ctx) {
		return errors.New("advisory lock requires a transaction")
	}
	if _, err := p.conn(ctx).ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
		return fmt.Errorf("acquire admission lock %q: %w", key, err)
	}
	return nil
}

const mintColumns = `reference_id, token_id, collection_address, wallet_address, phase, status, created_at, updated_at`

func (p *Postgres) InsertMint(ctx context.Context, mint *models.Mint) error {
	_, err := p.conn(ctx).ExecContext(ctx, `
		INSERT INTO mints (`+mintColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, mint.ReferenceID, mint.TokenID, mint.CollectionAddress, mint.WalletAddress,
		mint.Phase, string(mint.Status), mint.CreatedAt, mint.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert mint %s: %w", mint.ReferenceID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert mint: %w", err)
	}
	return nil
}

func (p *Postgres) FindMint(ctx context.Context, referenceID uuid.UUID) (*models.Mint, error) {
	return p.findMint(ctx, `SELECT `+mintColumns+` FROM mints WHERE reference_id = $1`, referenceID)
}

func (p *Postgres) FindMintForUpdate(ctx context.Context, referenceID uuid.UUID) (*models.Mint, error) {
	return p.findMint(ctx, `SELECT `+mintColumns+` FROM mints WHERE reference_id = $1 FOR UPDATE`, referenceID)
}

func (p *Postgres) findMint(ctx context.Context, query string, referenceID uuid.UUID) (*models.Mint, error) {
	mint, err := scanMint(p.conn(ctx).QueryRowContext(ctx, query, referenceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find mint %s: %w", referenceID, err)
	}
	return mint, nil
}

// UpdateMintStatus only touches pending rows, so a terminal row can never move.
func (p *Postgres) UpdateMintStatus(ctx context.Context, referenceID uuid.UUID, status models.Status, now time.Time) error {
	if !status.IsTerminal() {
		return sentinel.ErrInvalidState
	}
	res, err := p.conn(ctx).ExecContext(ctx, `
		UPDATE mints SET status = $2, updated_at = $3
		WHERE reference_id = $1 AND status = 'pending'
	`, referenceID, string(status), now)
	if err != nil {
		return fmt.Errorf("update mint status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update mint status: %w", err)
	}
	if rows == 0 {
		if _, err := p.FindMint(ctx, referenceID); err != nil {
			return err
		}
		return sentinel.ErrInvalidState
	}
	return nil
}

func (p *Postgres) CountPhaseMints(ctx context.Context, phase int) (int64, error) {
	return p.count(ctx, `SELECT COUNT(*) FROM mints WHERE phase = $1 AND status IN ('pending', 'succeeded')`, phase)
}

func (p *Postgres) CountAllMints(ctx context.Context) (int64, error) {
	return p.count(ctx, `SELECT COUNT(*) FROM mints WHERE status IN ('pending', 'succeeded')`)
}

func (p *Postgres) CountWalletPhaseMints(ctx context.Context, wallet string, phase int) (int64, error) {
	return p.count(ctx, `
		SELECT COUNT(*) FROM mints
		WHERE wallet_address = $1 AND phase = $2 AND status IN ('pending', 'succeeded')
	`, wallet, phase)
}

func (p *Postgres) count(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	if err := p.conn(ctx).QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count mints: %w", err)
	}
	return n, nil
}

func (p *Postgres) MaxTokenID(ctx context.Context, phase int) (int64, bool, error) {
	var maxID sql.NullInt64
	if err := p.conn(ctx).QueryRowContext(ctx, `SELECT MAX(token_id) FROM mints WHERE phase = $1`, phase).Scan(&maxID); err != nil {
		return 0, false, fmt.Errorf("max token id: %w", err)
	}
	return maxID.Int64, maxID.Valid, nil
}

func (p *Postgres) ListPending(ctx context.Context, after models.PendingCursor, createdBefore time.Time, limit int) ([]*models.Mint, error) {
	var afterAt sql.NullTime
	if !after.IsZero() {
		afterAt = sql.NullTime{Time: after.CreatedAt, Valid: true}
	}
	rows, err := p.conn(ctx).QueryContext(ctx, `
		SELECT `+mintColumns+` FROM mints
		WHERE status = 'pending'
		  AND created_at <= $1
		  AND ($2::timestamptz IS NULL OR (created_at, reference_id) > ($2, $3::uuid))
		ORDER BY created_at, reference_id
		LIMIT $4
	`, createdBefore, afterAt, after.ReferenceID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending mints: %w", err)
	}
	defer rows.Close()

	var out []*models.Mint
	for rows.Next() {
		mint, err := scanMint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending mint: %w", err)
		}
		out = append(out, mint)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending mints: %w", err)
	}
	return out, nil
}

func (p *Postgres) CountByStatus(ctx context.Context) (map[models.Status]int64, error) {
	rows, err := p.conn(ctx).QueryContext(ctx, `SELECT status, COUNT(*) FROM mints GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count mints by status: %w", err)
	}
	defer rows.Close()

	counts := map[models.Status]int64{
		models.StatusPending:   0,
		models.StatusSucceeded: 0,
		models.StatusFailed:    0,
	}
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[models.Status(status)] = n
	}
	return counts, rows.Err()
}

func (p *Postgres) FindAllowlistEntry(ctx context.Context, address string, phase int) (*models.AllowlistEntry, error) {
	return p.findAllowlistEntry(ctx, `
		SELECT address, phase, quantity_allowed, reference_id FROM allowlist
		WHERE address = $1 AND phase = $2
	`, address, phase)
}

func (p *Postgres) FindAllowlistEntryForUpdate(ctx context.Context, address string, phase int) (*models.AllowlistEntry, error) {
	return p.findAllowlistEntry(ctx, `
		SELECT address, phase, quantity_allowed, reference_id FROM allowlist
		WHERE address = $1 AND phase = $2
		FOR UPDATE
	`, address, phase)
}

func (p *Postgres) findAllowlistEntry(ctx context.Context, query, address string, phase int) (*models.AllowlistEntry, error) {
	entry, err := scanAllowlistEntry(p.conn(ctx).QueryRowContext(ctx, query, address, phase))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find allowlist entry: %w", err)
	}
	return entry, nil
}

func (p *Postgres) ListAllowlistEntries(ctx context.Context, address string) ([]*models.AllowlistEntry, error) {
	rows, err := p.conn(ctx).QueryContext(ctx, `
		SELECT address, phase, quantity_allowed, reference_id FROM allowlist
		WHERE address = $1 ORDER BY phase
	`, address)
	if err != nil {
		return nil, fmt.Errorf("list allowlist entries: %w", err)
	}
	defer rows.Close()

	var out []*models.AllowlistEntry
	for rows.Next() {
		entry, err := scanAllowlistEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan allowlist entry: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (p *Postgres) SetAllowlistReference(ctx context.Context, address string, phase int, referenceID uuid.UUID) error {
	return p.execOne(ctx, "set allowlist reference", `
		UPDATE allowlist SET reference_id = $3 WHERE address = $1 AND phase = $2
	`, address, phase, referenceID)
}

func (p *Postgres) DecrementAllowance(ctx context.Context, address string, phase int) error {
	return p.execOne(ctx, "decrement allowance", `
		UPDATE allowlist SET quantity_allowed = GREATEST(quantity_allowed - 1, 0)
		WHERE address = $1 AND phase = $2
	`, address, phase)
}

func (p *Postgres) UpsertAllowlistEntry(ctx context.Context, entry *models.AllowlistEntry) error {
	_, err := p.conn(ctx).ExecContext(ctx, `
		INSERT INTO allowlist (address, phase, quantity_allowed)
		VALUES ($1, $2, $3)
		ON CONFLICT (address, phase) DO UPDATE SET quantity_allowed = EXCLUDED.quantity_allowed
	`, entry.Address, entry.Phase, entry.QuantityAllowed)
	if err != nil {
		return fmt.Errorf("upsert allowlist entry: %w", err)
	}
	return nil
}

// UpsertAllowlistEntries loads many entries for one phase in a single statement.
func (p *Postgres) UpsertAllowlistEntries(ctx context.Context, phase int, entries []*models.AllowlistEntry) error {
	if len(entries) == 0 {
		return nil
	}
	addresses := make([]string, len(entries))
	quantities := make([]int64, len(entries))
	for i, e := range entries {
		addresses[i] = e.Address
		quantities[i] = e.QuantityAllowed
	}
	_, err := p.conn(ctx).ExecContext(ctx, `
		INSERT INTO allowlist (address, phase, quantity_allowed)
		SELECT a, $1, q FROM unnest($2::text[], $3::bigint[]) AS t(a, q)
		ON CONFLICT (address, phase) DO UPDATE SET quantity_allowed = EXCLUDED.quantity_allowed
	`, phase, pq.Array(addresses), pq.Array(quantities))
	if err != nil {
		return fmt.Errorf("upsert allowlist entries: %w", err)
	}
	return nil
}

func (p *Postgres) IsLocked(ctx context.Context, address string) (bool, error) {
	var locked bool
	err := p.conn(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM locked_addresses WHERE address = $1)`, address).Scan(&locked)
	if err != nil {
		return false, fmt.Errorf("check wallet lock: %w", err)
	}
	return locked, nil
}

func (p *Postgres) Lock(ctx context.Context, lock *models.LockedAddress) error {
	_, err := p.conn(ctx).ExecContext(ctx, `
		INSERT INTO locked_addresses (address, reference_id, locked_at) VALUES ($1, $2, $3)
	`, lock.Address, lock.ReferenceID, lock.LockedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("lock wallet: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("lock wallet: %w", err)
	}
	return nil
}

func (p *Postgres) Unlock(ctx context.Context, address string, referenceID uuid.UUID) error {
	_, err := p.conn(ctx).ExecContext(ctx,
		`DELETE FROM locked_addresses WHERE address = $1 AND reference_id = $2`, address, referenceID)
	if err != nil {
		return fmt.Errorf("unlock wallet: %w", err)
	}
	return nil
}

// execOne runs an update that must match exactly one row.
func (p *Postgres) execOne(ctx context.Context, op, query string, args ...any) error {
	res, err := p.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMint(row rowScanner) (*models.Mint, error) {
	var (
		mint   models.Mint
		status string
	)
	if err := row.Scan(&mint.ReferenceID, &mint.TokenID, &mint.CollectionAddress, &mint.WalletAddress,
		&mint.Phase, &status, &mint.CreatedAt, &mint.UpdatedAt); err != nil {
		return nil, err
	}
	mint.Status = models.Status(status)
	return &mint, nil
}

func scanAllowlistEntry(row rowScanner) (*models.AllowlistEntry, error) {
	var (
		entry models.AllowlistEntry
		ref   uuid.NullUUID
	)
	if err := row.Scan(&entry.Address, &entry.Phase, &entry.QuantityAllowed, &ref); err != nil {
		return nil, err
	}
	if ref.Valid {
		entry.ReferenceID = &ref.UUID
	}
	return &entry, nil
}

// isUniqueViolation recognises unique_violation from either driver.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

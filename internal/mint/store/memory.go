package store

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"mintgate/internal/mint/models"
	"mintgate/internal/mint/ports"
	"mintgate/pkg/platform/sentinel"
)

type allowlistKey struct {
	address string
	phase   int
}

type tokenKey struct {
	collection string
	tokenID    int64
}

// memState is one consistent snapshot of the mint tables.
type memState struct {
	mints     map[uuid.UUID]models.Mint
	tokens    map[tokenKey]uuid.UUID
	allowlist map[allowlistKey]models.AllowlistEntry
	locks     map[string]models.LockedAddress
}

func newMemState() *memState {
	return &memState{
		mints:     make(map[uuid.UUID]models.Mint),
		tokens:    make(map[tokenKey]uuid.UUID),
		allowlist: make(map[allowlistKey]models.AllowlistEntry),
		locks:     make(map[string]models.LockedAddress),
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		mints:     make(map[uuid.UUID]models.Mint, len(s.mints)),
		tokens:    make(map[tokenKey]uuid.UUID, len(s.tokens)),
		allowlist: make(map[allowlistKey]models.AllowlistEntry, len(s.allowlist)),
		locks:     make(map[string]models.LockedAddress, len(s.locks)),
	}
	for k, v := range s.mints {
		c.mints[k] = v
	}
	for k, v := range s.tokens {
		c.tokens[k] = v
	}
	for k, v := range s.allowlist {
		if v.ReferenceID != nil {
			ref := *v.ReferenceID
			v.ReferenceID = &ref
		}
		c.allowlist[k] = v
	}
	for k, v := range s.locks {
		c.locks[k] = v
	}
	return c
}

var (
	_ ports.Store    = (*Memory)(nil)
	_ ports.TxRunner = (*Memory)(nil)
	_ ports.Store    = (*memTx)(nil)
)

// Memory is an in-process Store and TxRunner for tests and local runs.
// Transactions are serialised: each runs against a private copy of the state
// which replaces the shared state only on commit.
type Memory struct {
	txMu  sync.Mutex
	mu    sync.RWMutex
	state *memState
}

func NewMemory() *Memory {
	return &Memory{state: newMemState()}
}

// RunInTx runs fn with exclusive access; an error discards every write.
func (m *Memory) RunInTx(ctx context.Context, fn func(ctx context.Context, store ports.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	work := m.state.clone()
	m.mu.RUnlock()

	if err := fn(ctx, &memTx{state: work}); err != nil {
		return err
	}

	m.mu.Lock()
	m.state = work
	m.mu.Unlock()
	return nil
}

// read runs fn against the committed state.
func read[T any](m *Memory, fn func(s *memState) (T, error)) (T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(m.state)
}

// write applies fn as its own single-statement transaction.
func (m *Memory) write(ctx context.Context, fn func(s *memState) error) error {
	return m.RunInTx(ctx, func(_ context.Context, st ports.Store) error {
		return fn(st.(*memTx).state)
	})
}

func (m *Memory) InsertMint(ctx context.Context, mint *models.Mint) error {
	return m.write(ctx, func(s *memState) error { return s.insertMint(mint) })
}

func (m *Memory) FindMint(_ context.Context, referenceID uuid.UUID) (*models.Mint, error) {
	return read(m, func(s *memState) (*models.Mint, error) { return s.findMint(referenceID) })
}

func (m *Memory) FindMintForUpdate(ctx context.Context, referenceID uuid.UUID) (*models.Mint, error) {
	return m.FindMint(ctx, referenceID)
}

func (m *Memory) UpdateMintStatus(ctx context.Context, referenceID uuid.UUID, status models.Status, now time.Time) error {
	return m.write(ctx, func(s *memState) error { return s.updateMintStatus(referenceID, status, now) })
}

func (m *Memory) CountPhaseMints(_ context.Context, phase int) (int64, error) {
	return read(m, func(s *memState) (int64, error) {
		return s.countMints(func(mt models.Mint) bool { return mt.Phase == phase }), nil
	})
}

func (m *Memory) CountAllMints(context.Context) (int64, error) {
	return read(m, func(s *memState) (int64, error) { return s.countMints(func(models.Mint) bool { return true }), nil })
}

func (m *Memory) CountWalletPhaseMints(_ context.Context, wallet string, phase int) (int64, error) {
	return read(m, func(s *memState) (int64, error) {
		return s.countMints(func(mt models.Mint) bool { return mt.Phase == phase && mt.WalletAddress == wallet }), nil
	})
}

func (m *Memory) MaxTokenID(_ context.Context, phase int) (int64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	maxID, ok := m.state.maxTokenID(phase)
	return maxID, ok, nil
}

func (m *Memory) ListPending(_ context.Context, after models.PendingCursor, createdBefore time.Time, limit int) ([]*models.Mint, error) {
	return read(m, func(s *memState) ([]*models.Mint, error) {
		return s.listPending(after, createdBefore, limit), nil
	})
}

func (m *Memory) CountByStatus(context.Context) (map[models.Status]int64, error) {
	return read(m, func(s *memState) (map[models.Status]int64, error) { return s.countByStatus(), nil })
}

func (m *Memory) FindAllowlistEntry(_ context.Context, address string, phase int) (*models.AllowlistEntry, error) {
	return read(m, func(s *memState) (*models.AllowlistEntry, error) { return s.findAllowlistEntry(address, phase) })
}

func (m *Memory) FindAllowlistEntryForUpdate(ctx context.Context, address string, phase int) (*models.AllowlistEntry, error) {
	return m.FindAllowlistEntry(ctx, address, phase)
}

func (m *Memory) ListAllowlistEntries(_ context.Context, address string) ([]*models.AllowlistEntry, error) {
	return read(m, func(s *memState) ([]*models.AllowlistEntry, error) { return s.listAllowlistEntries(address), nil })
}

func (m *Memory) SetAllowlistReference(ctx context.Context, address string, phase int, referenceID uuid.UUID) error {
	return m.write(ctx, func(s *memState) error { return s.setAllowlistReference(address, phase, referenceID) })
}

func (m *Memory) DecrementAllowance(ctx context.Context, address string, phase int) error {
	return m.write(ctx, func(s *memState) error { return s.decrementAllowance(address, phase) })
}

func (m *Memory) UpsertAllowlistEntry(ctx context.Context, entry *models.AllowlistEntry) error {
	return m.write(ctx, func(s *memState) error { s.upsertAllowlistEntry(entry); return nil })
}

func (m *Memory) IsLocked(_ context.Context, address string) (bool, error) {
	return read(m, func(s *memState) (bool, error) { _, ok := s.locks[address]; return ok, nil })
}

func (m *Memory) Lock(ctx context.Context, lock *models.LockedAddress) error {
	return m.write(ctx, func(s *memState) error { return s.lock(lock) })
}

func (m *Memory) Unlock(ctx context.Context, address string, referenceID uuid.UUID) error {
	return m.write(ctx, func(s *memState) error { s.unlock(address, referenceID); return nil })
}

// AcquireAdmissionLock is a no-op: memory transactions are already serialised.
func (m *Memory) AcquireAdmissionLock(context.Context, string) error {
	return nil
}

// memTx is the Store handed to a RunInTx body. It owns its state copy.
type memTx struct {
	state *memState
}

func (t *memTx) InsertMint(_ context.Context, mint *models.Mint) error {
	return t.state.insertMint(mint)
}

func (t *memTx) FindMint(_ context.Context, referenceID uuid.UUID) (*models.Mint, error) {
	return t.state.findMint(referenceID)
}

func (t *memTx) FindMintForUpdate(_ context.Context, referenceID uuid.UUID) (*models.Mint, error) {
	return t.state.findMint(referenceID)
}

func (t *memTx) UpdateMintStatus(_ context.Context, referenceID uuid.UUID, status models.Status, now time.Time) error {
	return t.state.updateMintStatus(referenceID, status, now)
}

func (t *memTx) CountPhaseMints(_ context.Context, phase int) (int64, error) {
	return t.state.countMints(func(mt models.Mint) bool { return mt.Phase == phase }), nil
}

func (t *memTx) CountAllMints(context.Context) (int64, error) {
	return t.state.countMints(func(models.Mint) bool { return true }), nil
}

func (t *memTx) CountWalletPhaseMints(_ context.Context, wallet string, phase int) (int64, error) {
	return t.state.countMints(func(mt models.Mint) bool { return mt.Phase == phase && mt.WalletAddress == wallet }), nil
}

func (t *memTx) MaxTokenID(_ context.Context, phase int) (int64, bool, error) {
	maxID, ok := t.state.maxTokenID(phase)
	return maxID, ok, nil
}

func (t *memTx) ListPending(_ context.Context, after models.PendingCursor, createdBefore time.Time, limit int) ([]*models.Mint, error) {
	return t.state.listPending(after, createdBefore, limit), nil
}

func (t *memTx) CountByStatus(context.Context) (map[models.Status]int64, error) {
	return t.state.countByStatus(), nil
}

func (t *memTx) FindAllowlistEntry(_ context.Context, address string, phase int) (*models.AllowlistEntry, error) {
	return t.state.findAllowlistEntry(address, phase)
}

func (t *memTx) FindAllowlistEntryForUpdate(_ context.Context, address string, phase int) (*models.AllowlistEntry, error) {
	return t.state.findAllowlistEntry(address, phase)
}

func (t *memTx) ListAllowlistEntries(_ context.Context, address string) ([]*models.AllowlistEntry, error) {
	return t.state.listAllowlistEntries(address), nil
}

func (t *memTx) SetAllowlistReference(_ context.Context, address string, phase int, referenceID uuid.UUID) error {
	return t.state.setAllowlistReference(address, phase, referenceID)
}

func (t *memTx) DecrementAllowance(_ context.Context, address string, phase int) error {
	return t.state.decrementAllowance(address, phase)
}

func (t *memTx) UpsertAllowlistEntry(_ context.Context, entry *models.AllowlistEntry) error {
	t.state.upsertAllowlistEntry(entry)
	return nil
}

func (t *memTx) IsLocked(_ context.Context, address string) (bool, error) {
	_, ok := t.state.locks[address]
	return ok, nil
}

func (t *memTx) Lock(_ context.Context, lock *models.LockedAddress) error {
	return t.state.lock(lock)
}

func (t *memTx) Unlock(_ context.Context, address string, referenceID uuid.UUID) error {
	t.state.unlock(address, referenceID)
	return nil
}

func (t *memTx) AcquireAdmissionLock(context.Context, string) error {
	return nil
}

func (s *memState) insertMint(mint *models.Mint) error {
	key := tokenKey{collection: mint.CollectionAddress, tokenID: mint.TokenID}
	if _, exists := s.mints[mint.ReferenceID]; exists {
		return sentinel.ErrConflict
	}
	if _, exists := s.tokens[key]; exists {
		return sentinel.ErrConflict
	}
	s.mints[mint.ReferenceID] = *mint
	s.tokens[key] = mint.ReferenceID
	return nil
}

func (s *memState) findMint(referenceID uuid.UUID) (*models.Mint, error) {
	mint, ok := s.mints[referenceID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &mint, nil
}

func (s *memState) updateMintStatus(referenceID uuid.UUID, status models.Status, now time.Time) error {
	mint, ok := s.mints[referenceID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !mint.Status.CanTransitionTo(status) {
		return sentinel.ErrInvalidState
	}
	mint.Status = status
	mint.UpdatedAt = now
	s.mints[referenceID] = mint
	return nil
}

func (s *memState) countMints(match func(models.Mint) bool) int64 {
	var n int64
	for _, mint := range s.mints {
		if mint.Status.CountsTowardSupply() && match(mint) {
			n++
		}
	}
	return n
}

func (s *memState) maxTokenID(phase int) (int64, bool) {
	var (
		maxID int64
		found bool
	)
	for _, mint := range s.mints {
		if mint.Phase != phase {
			continue
		}
		if !found || mint.TokenID > maxID {
			maxID, found = mint.TokenID, true
		}
	}
	return maxID, found
}

func (s *memState) listPending(after models.PendingCursor, createdBefore time.Time, limit int) []*models.Mint {
	var out []*models.Mint
	for _, mint := range s.mints {
		if mint.Status != models.StatusPending || mint.CreatedAt.After(createdBefore) {
			continue
		}
		if after.Before(&mint) {
			m := mint
			out = append(out, &m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return bytes.Compare(out[i].ReferenceID[:], out[j].ReferenceID[:]) < 0
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *memState) countByStatus() map[models.Status]int64 {
	counts := map[models.Status]int64{
		models.StatusPending:   0,
		models.StatusSucceeded: 0,
		models.StatusFailed:    0,
	}
	for _, mint := range s.mints {
		counts[mint.Status]++
	}
	return counts
}

func (s *memState) findAllowlistEntry(address string, phase int) (*models.AllowlistEntry, error) {
	entry, ok := s.allowlist[allowlistKey{address: address, phase: phase}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &entry, nil
}

func (s *memState) listAllowlistEntries(address string) []*models.AllowlistEntry {
	var out []*models.AllowlistEntry
	for key, entry := range s.allowlist {
		if key.address == address {
			e := entry
			out = append(out, &e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Phase < out[j].Phase })
	return out
}

func (s *memState) setAllowlistReference(address string, phase int, referenceID uuid.UUID) error {
	key := allowlistKey{address: address, phase: phase}
	entry, ok := s.allowlist[key]
	if !ok {
		return sentinel.ErrNotFound
	}
	ref := referenceID
	entry.ReferenceID = &ref
	s.allowlist[key] = entry
	return nil
}

func (s *memState) decrementAllowance(address string, phase int) error {
	key := allowlistKey{address: address, phase: phase}
	entry, ok := s.allowlist[key]
	if !ok {
		return sentinel.ErrNotFound
	}
	if entry.QuantityAllowed > 0 {
		entry.QuantityAllowed--
	}
	s.allowlist[key] = entry
	return nil
}

func (s *memState) upsertAllowlistEntry(entry *models.AllowlistEntry) {
	e := *entry
	if e.ReferenceID != nil {
		ref := *e.ReferenceID
		e.ReferenceID = &ref
	}
	s.allowlist[allowlistKey{address: e.Address, phase: e.Phase}] = e
}

func (s *memState) lock(lock *models.LockedAddress) error {
	if _, exists := s.locks[lock.Address]; exists {
		return sentinel.ErrConflict
	}
	s.locks[lock.Address] = *lock
	return nil
}

func (s *memState) unlock(address string, referenceID uuid.UUID) {
	if held, ok := s.locks[address]; ok && held.ReferenceID == referenceID {
		delete(s.locks, address)
	}
}

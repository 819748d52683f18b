// Package allowlist reads operator allowlist files and loads them into the ledger.
package allowlist

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"mintgate/internal/mint/models"
)

const defaultBatchSize = 500

// Store upserts one entry at a time.
type Store interface {
	UpsertAllowlistEntry(ctx context.Context, entry *models.AllowlistEntry) error
}

// BulkStore is implemented by stores that can upsert many entries in one statement.
type BulkStore interface {
	UpsertAllowlistEntries(ctx context.Context, phase int, entries []*models.AllowlistEntry) error
}

// Parse reads one address per line, optionally followed by ",quantity".
// Blank lines and lines starting with '#' are skipped. Addresses are
// lower-cased; a repeated address keeps its last quantity and its first
// position.
func Parse(r io.Reader, phase int, defaultQuantity int64) ([]*models.AllowlistEntry, error) {
	if defaultQuantity < 1 {
		return nil, fmt.Errorf("default quantity must be positive, got %d", defaultQuantity)
	}

	var entries []*models.AllowlistEntry
	index := make(map[string]*models.AllowlistEntry)

	scanner := bufio.NewScanner(r)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		address, rawQty, hasQty := strings.Cut(text, ",")
		address = strings.ToLower(strings.TrimSpace(address))
		if !common.IsHexAddress(address) {
			return nil, fmt.Errorf("line %d: invalid address %q", line, address)
		}

		quantity := defaultQuantity
		if hasQty {
			q, err := strconv.ParseInt(strings.TrimSpace(rawQty), 10, 64)
			if err != nil || q < 0 {
				return nil, fmt.Errorf("line %d: invalid quantity %q", line, rawQty)
			}
			quantity = q
		}

		if existing, ok := index[address]; ok {
			existing.QuantityAllowed = quantity
			continue
		}
		entry := &models.AllowlistEntry{Address: address, Phase: phase, QuantityAllowed: quantity}
		index[address] = entry
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read allowlist: %w", err)
	}
	return entries, nil
}

// Load upserts entries into phase, in batches when the store supports it.
// It returns how many entries were written before any error.
func Load(ctx context.Context, store Store, phase int, entries []*models.AllowlistEntry) (int, error) {
	if bulk, ok := store.(BulkStore); ok {
		written := 0
		for start := 0; start < len(entries); start += defaultBatchSize {
			end := min(start+defaultBatchSize, len(entries))
			if err := bulk.UpsertAllowlistEntries(ctx, phase, entries[start:end]); err != nil {
				return written, fmt.Errorf("load allowlist batch at %d: %w", start, err)
			}
			written = end
		}
		return written, nil
	}

	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		e.Phase = phase
		if err := store.UpsertAllowlistEntry(ctx, e); err != nil {
			return i, fmt.Errorf("load allowlist entry %s: %w", e.Address, err)
		}
	}
	return len(entries), nil
}

package allowlist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mintgate/internal/mint/models"
	"mintgate/internal/mint/store"
)

const (
	alice = "0xa11ce00000000000000000000000000000000001"
	bob   = "0xb0b0000000000000000000000000000000000002"
)

func TestParse(t *testing.T) {
	input := strings.Join([]string{
		"# presale",
		"0xA11CE00000000000000000000000000000000001",
		"",
		bob + ", 3",
		alice + ",2",
	}, "\n")

	entries, err := Parse(strings.NewReader(input), 1, 1)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, &models.AllowlistEntry{Address: alice, Phase: 1, QuantityAllowed: 2}, entries[0])
	assert.Equal(t, &models.AllowlistEntry{Address: bob, Phase: 1, QuantityAllowed: 3}, entries[1])
}

func TestParseErrors(t *testing.T) {
	for name, input := range map[string]string{
		"bad address":       "0x1234",
		"bad quantity":      alice + ",lots",
		"negative quantity": alice + ",-1",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader("\n"+input), 0, 1)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "line 2")
		})
	}

	_, err := Parse(strings.NewReader(alice), 0, 0)
	assert.Error(t, err)
}

func TestLoadIntoMemoryStore(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	entries := []*models.AllowlistEntry{{Address: alice, QuantityAllowed: 2}, {Address: bob, QuantityAllowed: 1}}

	n, err := Load(ctx, mem, 0, entries)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	entry, err := mem.FindAllowlistEntry(ctx, alice, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), entry.QuantityAllowed)
}

type bulkRecorder struct {
	batches []int
	failAt  int
}

func (b *bulkRecorder) UpsertAllowlistEntry(context.Context, *models.AllowlistEntry) error {
	return errors.New("single upserts not expected")
}

func (b *bulkRecorder) UpsertAllowlistEntries(_ context.Context, _ int, entries []*models.AllowlistEntry) error {
	if b.failAt > 0 && len(b.batches) == b.failAt {
		return errors.New("connection reset")
	}
	b.batches = append(b.batches, len(entries))
	return nil
}

func manyEntries(n int) []*models.AllowlistEntry {
	out := make([]*models.AllowlistEntry, n)
	for i := range out {
		out[i] = &models.AllowlistEntry{Address: fmt.Sprintf("0x%040x", i+1), QuantityAllowed: 1}
	}
	return out
}

func TestLoadBatches(t *testing.T) {
	rec := &bulkRecorder{}
	n, err := Load(context.Background(), rec, 0, manyEntries(1200))
	require.NoError(t, err)
	assert.Equal(t, 1200, n)
	assert.Equal(t, []int{500, 500, 200}, rec.batches)

	rec = &bulkRecorder{failAt: 1}
	n, err = Load(context.Background(), rec, 0, manyEntries(1200))
	require.Error(t, err)
	assert.Equal(t, 500, n)
}

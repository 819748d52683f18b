package metadata

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "6"), []byte(`{
		"name": "Copypasta #6",
		"image": "ipfs://cid/6.png",
		"attributes": [{"trait_type": "Id", "value": "6"}]
	}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "7"), []byte(`{not json`), 0o600))

	src := NewDir(root)
	ctx := context.Background()

	t.Run("present", func(t *testing.T) {
		md, err := src.Metadata(ctx, 6)
		require.NoError(t, err)
		require.NotNil(t, md)
		assert.Equal(t, "Copypasta #6", md.Name)
		require.Len(t, md.Attributes, 1)
		assert.Equal(t, "Id", md.Attributes[0].TraitType)
	})

	t.Run("missing is not an error", func(t *testing.T) {
		md, err := src.Metadata(ctx, 8)
		require.NoError(t, err)
		assert.Nil(t, md)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := src.Metadata(ctx, 7)
		assert.Error(t, err)
	})
}

type fakeBucket struct {
	objects map[string]string
	err     error
	opened  []string
}

func (b *fakeBucket) NewReader(_ context.Context, bucket, object string) (io.ReadCloser, error) {
	b.opened = append(b.opened, bucket+"/"+object)
	if b.err != nil {
		return nil, b.err
	}
	body, ok := b.objects[object]
	if !ok {
		return nil, storage.ErrObjectNotExist
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func TestGCS(t *testing.T) {
	ctx := context.Background()
	bucket := &fakeBucket{objects: map[string]string{
		"tokens/6": `{"name": "Copypasta #6", "image": "ipfs://cid/6.png"}`,
		"tokens/7": `{not json`,
	}}
	src := NewGCSWithReader(bucket, " nft-metadata ", "/tokens/")

	t.Run("present", func(t *testing.T) {
		md, err := src.Metadata(ctx, 6)
		require.NoError(t, err)
		require.NotNil(t, md)
		assert.Equal(t, "Copypasta #6", md.Name)
		assert.Contains(t, bucket.opened, "nft-metadata/tokens/6")
	})

	t.Run("missing object is not an error", func(t *testing.T) {
		md, err := src.Metadata(ctx, 8)
		require.NoError(t, err)
		assert.Nil(t, md)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := src.Metadata(ctx, 7)
		assert.Error(t, err)
	})

	t.Run("bucket error", func(t *testing.T) {
		failing := NewGCSWithReader(&fakeBucket{err: errors.New("permission denied")}, "nft-metadata", "")
		_, err := failing.Metadata(ctx, 6)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "gs://nft-metadata/6")
	})

	t.Run("no client", func(t *testing.T) {
		_, err := NewGCS(nil, "nft-metadata", "").Metadata(ctx, 6)
		assert.Error(t, err)
	})
}

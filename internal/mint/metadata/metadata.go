// Package metadata loads per-token NFT metadata from a directory or a GCS
// bucket. Missing metadata is not an error: the token is minted without it.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"cloud.google.com/go/storage"

	"mintgate/internal/mint/models"
)

const maxMetadataBytes = 1 << 20

// Dir reads <dir>/<tokenID> JSON files.
type Dir struct {
	root string
}

func NewDir(root string) *Dir {
	return &Dir{root: root}
}

func (d *Dir) Metadata(_ context.Context, tokenID int64) (*models.NFTMetadata, error) {
	raw, err := os.ReadFile(filepath.Join(d.root, strconv.FormatInt(tokenID, 10)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read metadata for token %d: %w", tokenID, err)
	}
	return decode(tokenID, raw)
}

// ObjectReader opens one object of a bucket.
type ObjectReader interface {
	NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error)
}

type storageReader struct {
	client *storage.Client
}

func (r storageReader) NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	return r.client.Bucket(bucket).Object(object).NewReader(ctx)
}

// GCS reads gs://<bucket>/<prefix><tokenID>.
type GCS struct {
	objects ObjectReader
	bucket  string
	prefix  string
}

func NewGCS(client *storage.Client, bucket, prefix string) *GCS {
	var objects ObjectReader
	if client != nil {
		objects = storageReader{client: client}
	}
	return NewGCSWithReader(objects, bucket, prefix)
}

// NewGCSWithReader builds a GCS source over any ObjectReader.
func NewGCSWithReader(objects ObjectReader, bucket, prefix string) *GCS {
	return &GCS{
		objects: objects,
		bucket:  strings.TrimSpace(bucket),
		prefix:  strings.TrimLeft(prefix, "/"),
	}
}

func (g *GCS) Metadata(ctx context.Context, tokenID int64) (*models.NFTMetadata, error) {
	if g.objects == nil {
		return nil, errors.New("metadata: nil storage client")
	}
	object := g.prefix + strconv.FormatInt(tokenID, 10)
	r, err := g.objects.NewReader(ctx, g.bucket, object)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open gs://%s/%s: %w", g.bucket, object, err)
	}
	defer r.Close()

	raw, err := io.ReadAll(io.LimitReader(r, maxMetadataBytes))
	if err != nil {
		return nil, fmt.Errorf("read gs://%s/%s: %w", g.bucket, object, err)
	}
	return decode(tokenID, raw)
}

func decode(tokenID int64, raw []byte) (*models.NFTMetadata, error) {
	var md models.NFTMetadata
	if err := json.Unmarshal(raw, &md); err != nil {
		return nil, fmt.Errorf("decode metadata for token %d: %w", tokenID, err)
	}
	return &md, nil
}

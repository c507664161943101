package store

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCS is a KV backed by one Google Cloud Storage bucket; each key is an
// object name.
type GCS struct {
	bucket *storage.BucketHandle
	name   string
}

// NewGCS returns a KV over the named bucket. The client is owned by the
// caller.
func NewGCS(client *storage.Client, bucket string) *GCS {
	return &GCS{bucket: client.Bucket(bucket), name: bucket}
}

func (g *GCS) Exists(ctx context.Context, key string) (bool, error) {
	_, err := g.bucket.Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("gcs attrs %s/%s: %w", g.name, key, err)
	}
	return true, nil
}

func (g *GCS) Read(ctx context.Context, key string) (string, error) {
	r, err := g.bucket.Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("gcs read %s/%s: %w", g.name, key, err)
	}
	defer r.Close()

	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("gcs read %s/%s: %w", g.name, key, err)
	}
	return string(b), nil
}

func (g *GCS) Write(ctx context.Context, key, value string) error {
	w := g.bucket.Object(key).NewWriter(ctx)
	w.ContentType = "text/plain; charset=utf-8"
	if _, err := io.WriteString(w, value); err != nil {
		w.Close()
		return fmt.Errorf("gcs write %s/%s: %w", g.name, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs write %s/%s: %w", g.name, key, err)
	}
	return nil
}

func (g *GCS) Delete(ctx context.Context, key string) error {
	err := g.bucket.Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs delete %s/%s: %w", g.name, key, err)
	}
	return nil
}

func (g *GCS) List(ctx context.Context, prefix string) ([]string, error) {
	it := g.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	var keys []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gcs list %s/%s: %w", g.name, prefix, err)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}

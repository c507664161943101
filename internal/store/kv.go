// Package store persists user reaction lists, app installations and OAuth
// state in a key-value backend (SQLite, Google Cloud Storage or memory).
package store

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned by Read for a missing key.
var ErrNotFound = errors.New("store: key not found")

// KV is a durable string store. Deleting a missing key is not an error.
type KV interface {
	Exists(ctx context.Context, key string) (bool, error)
	Read(ctx context.Context, key string) (string, error)
	Write(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// List returns the keys starting with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// WithPrefix scopes kv to keys under prefix so several stores can share one
// backend.
func WithPrefix(kv KV, prefix string) KV {
	if prefix == "" {
		return kv
	}
	return &prefixed{kv: kv, prefix: prefix}
}

type prefixed struct {
	kv     KV
	prefix string
}

func (p *prefixed) Exists(ctx context.Context, key string) (bool, error) {
	return p.kv.Exists(ctx, p.prefix+key)
}

func (p *prefixed) Read(ctx context.Context, key string) (string, error) {
	return p.kv.Read(ctx, p.prefix+key)
}

func (p *prefixed) Write(ctx context.Context, key, value string) error {
	return p.kv.Write(ctx, p.prefix+key, value)
}

func (p *prefixed) Delete(ctx context.Context, key string) error {
	return p.kv.Delete(ctx, p.prefix+key)
}

func (p *prefixed) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := p.kv.List(ctx, p.prefix+prefix)
	if err != nil {
		return nil, err
	}
	for i, k := range keys {
		keys[i] = strings.TrimPrefix(k, p.prefix)
	}
	return keys, nil
}

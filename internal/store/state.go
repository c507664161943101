package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultStateExpiry is how long an OAuth state stays valid.
const DefaultStateExpiry = 10 * time.Minute

// StateStore issues one-time OAuth state values.
type StateStore struct {
	kv     KV
	expiry time.Duration
	now    func() time.Time // injectable for testing
}

// StateOption configures a StateStore.
type StateOption func(*StateStore)

// WithStateExpiry sets how long an issued state is accepted.
func WithStateExpiry(d time.Duration) StateOption {
	return func(s *StateStore) {
		s.expiry = d
	}
}

// WithStateClock sets a custom time function (for testing).
func WithStateClock(fn func() time.Time) StateOption {
	return func(s *StateStore) {
		s.now = fn
	}
}

// NewStateStore creates a state store.
func NewStateStore(kv KV, opts ...StateOption) *StateStore {
	s := &StateStore{
		kv:     kv,
		expiry: DefaultStateExpiry,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue creates and persists a new state value.
func (s *StateStore) Issue(ctx context.Context) (string, error) {
	state := uuid.NewString()
	issued := s.now().UTC().Format(time.RFC3339Nano)
	if err := s.kv.Write(ctx, state, issued); err != nil {
		return "", fmt.Errorf("save oauth state: %w", err)
	}
	return state, nil
}

// Consume reports whether state was issued and has not expired. A state can
// be consumed once.
func (s *StateStore) Consume(ctx context.Context, state string) (bool, error) {
	if _, err := uuid.Parse(state); err != nil {
		return false, nil
	}

	issued, err := s.kv.Read(ctx, state)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read oauth state: %w", err)
	}
	if err := s.kv.Delete(ctx, state); err != nil {
		return false, fmt.Errorf("delete oauth state: %w", err)
	}

	at, err := time.Parse(time.RFC3339Nano, issued)
	if err != nil {
		return false, nil
	}
	return s.now().Sub(at) <= s.expiry, nil
}

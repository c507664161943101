package emoji

import "time"

// Snapshot is an immutable point-in-time set of valid base short-codes for
// one workspace. Build a new Snapshot to change it; never modify one in place.
type Snapshot struct {
	names     map[string]struct{}
	fetchedAt time.Time
}

// NewSnapshot builds a snapshot from any number of name lists.
func NewSnapshot(fetchedAt time.Time, sources ...[]string) *Snapshot {
	size := 0
	for _, src := range sources {
		size += len(src)
	}
	names := make(map[string]struct{}, size)
	for _, src := range sources {
		for _, n := range src {
			if n != "" {
				names[n] = struct{}{}
			}
		}
	}
	return &Snapshot{names: names, fetchedAt: fetchedAt}
}

// Contains reports whether name is a known base short-code.
func (s *Snapshot) Contains(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.names[name]
	return ok
}

// Len returns the number of distinct names.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.names)
}

// FetchedAt is when the data behind the snapshot was retrieved.
func (s *Snapshot) FetchedAt() time.Time {
	return s.fetchedAt
}

// Age returns how old the snapshot is relative to now.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.fetchedAt)
}

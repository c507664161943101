package slack

import (
	"sync"
	"time"
)

const (
	// defaultDedupCapacity caps how many delivery ids are remembered.
	defaultDedupCapacity = 10000
	// defaultDedupWindow covers Slack's retry schedule (1 min, 5 min).
	defaultDedupWindow = 10 * time.Minute
)

// Dedup remembers recently handled delivery ids so that Slack's retries of
// an already handled event are dropped.
type Dedup struct {
	mu       sync.Mutex
	seen     map[string]time.Time
	capacity int
	window   time.Duration
	now      func() time.Time // injectable for testing
}

// DedupOption configures a Dedup.
type DedupOption func(*Dedup)

// WithDedupCapacity sets the maximum number of remembered ids.
func WithDedupCapacity(n int) DedupOption {
	return func(d *Dedup) {
		d.capacity = n
	}
}

// WithDedupWindow sets how long an id is remembered.
func WithDedupWindow(w time.Duration) DedupOption {
	return func(d *Dedup) {
		d.window = w
	}
}

// WithDedupClock sets a custom time function (for testing).
func WithDedupClock(fn func() time.Time) DedupOption {
	return func(d *Dedup) {
		d.now = fn
	}
}

// NewDedup creates an empty Dedup.
func NewDedup(opts ...DedupOption) *Dedup {
	d := &Dedup{
		seen:     make(map[string]time.Time),
		capacity: defaultDedupCapacity,
		window:   defaultDedupWindow,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// First records id and reports whether this is its first delivery within
// the window. An empty id is always treated as first.
func (d *Dedup) First(id string) bool {
	if id == "" {
		return true
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if at, ok := d.seen[id]; ok && now.Sub(at) < d.window {
		return false
	}

	if len(d.seen) >= d.capacity {
		d.evictLocked(now)
	}
	if len(d.seen) >= d.capacity {
		d.dropOldestLocked()
	}
	d.seen[id] = now
	return true
}

// Len returns the number of remembered ids.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

func (d *Dedup) evictLocked(now time.Time) {
	for id, at := range d.seen {
		if now.Sub(at) >= d.window {
			delete(d.seen, id)
		}
	}
}

// dropOldestLocked makes room when every remembered id is still live.
func (d *Dedup) dropOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, at := range d.seen {
		if oldestID == "" || at.Before(oldest) {
			oldestID, oldest = id, at
		}
	}
	delete(d.seen, oldestID)
}

package emoji

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTTL is how long a vocabulary snapshot is served before refresh.
	DefaultTTL = 60 * time.Second
	// defaultFetchTimeout bounds a single refresh, both sources included.
	defaultFetchTimeout = 20 * time.Second
)

// Category is a named group of built-in emoji.
type Category struct {
	Name       string
	EmojiNames []string
}

// Listing is what a workspace's emoji directory returns.
type Listing struct {
	Custom     []string
	Categories []Category
}

// Directory lists the emoji of one workspace. Implementations call a
// rate-limited API; the cache calls it at most once per TTL per workspace.
type Directory interface {
	ListEmoji(ctx context.Context) (*Listing, error)
}

// RetryLaterError is returned by a Directory that was asked to back off.
type RetryLaterError struct {
	After time.Duration
	Err   error
}

func (e *RetryLaterError) Error() string {
	return fmt.Sprintf("retry after %s: %v", e.After, e.Err)
}

func (e *RetryLaterError) Unwrap() error { return e.Err }

// StandardSource lists standard (unicode) emoji short-codes from a
// best-effort external directory.
type StandardSource interface {
	StandardEmoji(ctx context.Context) ([]string, error)
}

// Cache holds one vocabulary snapshot per workspace.
//
// Snapshots are swapped atomically and never modified, so readers never see a
// partially built vocabulary. Refreshes for the same workspace are collapsed
// into a single fetch.
type Cache struct {
	standard     StandardSource
	ttl          time.Duration
	fetchTimeout time.Duration
	background   bool
	now          func() time.Time // injectable for testing
	logger       *slog.Logger

	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	snap atomic.Pointer[Snapshot]
	// gen is bumped by Invalidate; fetched is the gen the snapshot was
	// fetched under.
	gen     atomic.Uint64
	fetched atomic.Uint64

	mu        sync.Mutex
	dir       Directory
	failedErr error
	retryAt   time.Time
}

func (e *cacheEntry) fail(err error, retryAt time.Time) {
	e.mu.Lock()
	e.failedErr, e.retryAt = err, retryAt
	e.mu.Unlock()
}

// backingOff returns the last failure while the directory must not be
// called again.
func (e *cacheEntry) backingOff(now time.Time) (time.Time, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failedErr == nil || !now.Before(e.retryAt) {
		return time.Time{}, nil
	}
	return e.retryAt, e.failedErr
}

func (e *cacheEntry) directory() Directory {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dir
}

func (e *cacheEntry) setDirectory(d Directory) {
	e.mu.Lock()
	e.dir = d
	e.mu.Unlock()
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithTTL sets the maximum snapshot age.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithCacheClock sets a custom time function (for testing).
func WithCacheClock(fn func() time.Time) CacheOption {
	return func(c *Cache) {
		c.now = fn
	}
}

// WithCacheLogger sets the structured logger.
func WithCacheLogger(l *slog.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = l
	}
}

// WithFetchTimeout bounds how long one refresh may take.
func WithFetchTimeout(d time.Duration) CacheOption {
	return func(c *Cache) {
		c.fetchTimeout = d
	}
}

// WithBackgroundRefresh makes Run keep every known workspace fresh. Reads
// then return the present snapshot regardless of age and only block when a
// workspace has no snapshot yet.
func WithBackgroundRefresh() CacheOption {
	return func(c *Cache) {
		c.background = true
	}
}

// NewCache creates a vocabulary cache. standard may be nil, in which case
// snapshots hold workspace emoji only.
func NewCache(standard StandardSource, opts ...CacheOption) *Cache {
	c := &Cache{
		standard:     standard,
		ttl:          DefaultTTL,
		fetchTimeout: defaultFetchTimeout,
		now:          time.Now,
		logger:       slog.Default(),
		entries:      make(map[string]*cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Vocabulary returns the snapshot for workspaceID, fetching it through dir
// when there is none or, in lazy mode, when it is older than the TTL or was
// invalidated.
//
// A failed workspace fetch is returned to the caller and the previous
// snapshot, if any, stays in place. After a failure the directory is left
// alone for one TTL, or longer if it asked for it: the previous snapshot is
// served meanwhile and, without one, the failure is returned again.
func (c *Cache) Vocabulary(ctx context.Context, workspaceID string, dir Directory) (*Snapshot, error) {
	e := c.entry(workspaceID, dir)

	snap := e.snap.Load()
	if snap != nil && (c.background || !c.stale(e, snap)) {
		return snap, nil
	}

	if retryAt, err := e.backingOff(c.now()); err != nil {
		if snap != nil {
			c.logger.Debug("serving stale emoji vocabulary",
				"workspace", workspaceID,
				"fetched_at", snap.FetchedAt(),
				"retry_at", retryAt,
			)
			return snap, nil
		}
		return nil, fmt.Errorf("emoji directory unavailable until %s: %w", retryAt.Format(time.RFC3339), err)
	}

	return c.refresh(ctx, workspaceID, e)
}

// Invalidate marks the workspace's snapshot as stale. The snapshot keeps
// being served until the next refresh replaces it.
func (c *Cache) Invalidate(workspaceID string) {
	c.mu.RLock()
	e, ok := c.entries[workspaceID]
	c.mu.RUnlock()
	if ok {
		e.gen.Add(1)
	}
}

// Forget drops everything known about a workspace (e.g. after uninstall).
func (c *Cache) Forget(workspaceID string) {
	c.mu.Lock()
	delete(c.entries, workspaceID)
	c.mu.Unlock()
}

// Run refreshes all known workspaces once per TTL until ctx is cancelled.
// It is a no-op returning immediately unless WithBackgroundRefresh was set.
// Cancelling leaves the last good snapshots in place.
func (c *Cache) Run(ctx context.Context) error {
	if !c.background {
		return nil
	}

	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	c.logger.Info("emoji refresh loop started", "interval", c.ttl.String())
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("emoji refresh loop stopped")
			return nil
		case <-ticker.C:
			c.RefreshAll(ctx)
		}
	}
}

// RefreshAll refreshes every workspace that has been seen so far. Errors are
// logged; the affected workspaces keep their previous snapshot.
func (c *Cache) RefreshAll(ctx context.Context) {
	c.mu.RLock()
	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	c.mu.RUnlock()

	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		c.mu.RLock()
		e, ok := c.entries[id]
		c.mu.RUnlock()
		if !ok {
			continue
		}
		if _, err := c.refresh(ctx, id, e); err != nil {
			c.logger.Error("emoji refresh failed", "workspace", id, "error", err)
		}
	}
}

func (c *Cache) stale(e *cacheEntry, snap *Snapshot) bool {
	return e.gen.Load() != e.fetched.Load() || snap.Age(c.now()) > c.ttl
}

// entry returns the workspace entry, creating it on first use. The latest
// directory is remembered for background refreshes.
func (c *Cache) entry(workspaceID string, dir Directory) *cacheEntry {
	c.mu.RLock()
	e, ok := c.entries[workspaceID]
	c.mu.RUnlock()

	if !ok {
		c.mu.Lock()
		if e, ok = c.entries[workspaceID]; !ok {
			e = &cacheEntry{}
			c.entries[workspaceID] = e
		}
		c.mu.Unlock()
	}

	if dir != nil {
		e.setDirectory(dir)
	}
	return e
}

// refresh fetches a new snapshot for the workspace. Concurrent callers for the
// same workspace share one fetch. The fetch is detached from the caller's
// cancellation so one impatient caller cannot fail the others.
func (c *Cache) refresh(ctx context.Context, workspaceID string, e *cacheEntry) (*Snapshot, error) {
	ch := c.group.DoChan(workspaceID, func() (any, error) {
		dir := e.directory()
		if dir == nil {
			return nil, fmt.Errorf("no emoji directory for workspace %s", workspaceID)
		}

		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()

		gen := e.gen.Load()
		snap, err := c.fetch(fctx, workspaceID, dir)
		if err != nil {
			wait := c.ttl
			var later *RetryLaterError
			if errors.As(err, &later) && later.After > wait {
				wait = later.After
			}
			e.fail(err, c.now().Add(wait))
			return nil, err
		}
		e.snap.Store(snap)
		e.fetched.Store(gen)
		e.fail(nil, time.Time{})
		return snap, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	}
}

// fetch builds a snapshot from the workspace directory and the standard
// source. Only a workspace failure is an error.
func (c *Cache) fetch(ctx context.Context, workspaceID string, dir Directory) (*Snapshot, error) {
	start := c.now()

	listing, err := dir.ListEmoji(ctx)
	if err != nil {
		return nil, fmt.Errorf("list workspace emoji: %w", err)
	}

	var builtins []string
	for _, cat := range listing.Categories {
		builtins = append(builtins, cat.EmojiNames...)
	}

	var standard []string
	if c.standard != nil {
		standard, err = c.standard.StandardEmoji(ctx)
		if err != nil {
			c.logger.Warn("standard emoji unavailable, using workspace emoji only",
				"workspace", workspaceID,
				"error", err,
			)
			standard = nil
		}
	}

	snap := NewSnapshot(c.now(), listing.Custom, builtins, standard)
	c.logger.Info("emoji vocabulary refreshed",
		"workspace", workspaceID,
		"custom", len(listing.Custom),
		"builtin", len(builtins),
		"standard", len(standard),
		"total", snap.Len(),
		"elapsed", c.now().Sub(start).String(),
	)
	return snap, nil
}

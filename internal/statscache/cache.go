/*
Package statscache memoizes [catalog.TableStats] lookups with bounded
staleness, per spec.md §4.2.

Concurrent misses for the same table coalesce into a single underlying
fetch via [singleflight.Group], matching the requirement spec.md §4.2/§9
call out explicitly; the background refresh loop is adapted from the
pack's richcatalog.DBCatalog (Refresh/StartAutoRefresh), trading its
whole-snapshot checksum comparison for simple per-entry age comparison
since this cache is keyed per table rather than one global snapshot.
*/
package statscache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pgrest/pgrest/internal/catalog"
)

// entry is the Stats Cache Entry of spec.md §3.
type entry struct {
	stats    *catalog.TableStats
	loadedAt time.Time
}

// Cache memoizes catalog.Fetcher results behind a single shared map keyed
// by table name.
type Cache struct {
	fetcher catalog.Fetcher
	enabled bool

	mu      sync.RWMutex
	entries map[string]entry

	group singleflight.Group

	logger func(format string, args ...any)
}

// Option configures a [Cache] at construction time.
type Option func(*Cache)

// WithLogger installs a logging hook for swallowed background-refresh
// errors (spec.md §7 "swallows transient introspection errors on
// background refresh but surfaces them on a synchronous miss").
func WithLogger(log func(format string, args ...any)) Option {
	return func(c *Cache) { c.logger = log }
}

// New builds a Cache. When enabled is false, Get always delegates
// directly to fetcher (spec.md §4.2 "Disabled mode").
func New(fetcher catalog.Fetcher, enabled bool, opts ...Option) *Cache {
	c := &Cache{
		fetcher: fetcher,
		enabled: enabled,
		entries: make(map[string]entry),
		logger:  func(string, ...any) {},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the TableStats for table, populating the cache on miss.
// Concurrent misses for the same table observe exactly one underlying
// fetch (spec.md §4.2/§5).
func (c *Cache) Get(ctx context.Context, table string) (*catalog.TableStats, error) {
	if !c.enabled {
		return c.fetcher.FetchTableStats(ctx, table)
	}

	c.mu.RLock()
	e, ok := c.entries[table]
	c.mu.RUnlock()
	if ok {
		return e.stats, nil
	}

	v, err, _ := c.group.Do(table, func() (any, error) {
		// Re-check under the singleflight key: another goroutine may have
		// populated the entry between the RLock above and entering Do.
		c.mu.RLock()
		if e, ok := c.entries[table]; ok {
			c.mu.RUnlock()
			return e.stats, nil
		}
		c.mu.RUnlock()

		stats, err := c.fetcher.FetchTableStats(ctx, table)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[table] = entry{stats: stats, loadedAt: time.Now()}
		c.mu.Unlock()
		return stats, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*catalog.TableStats), nil
}

// Reset drops every cached entry (spec.md §4.2, POST /reset_table_stats_cache).
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// StartRefresh launches a background task that, every interval, replaces
// entries whose loadedAt is more than interval before the sweep. On fetch error the old
// entry is retained and the error is logged, never poisoned (spec.md §4.2).
// The returned func stops the loop.
func (c *Cache) StartRefresh(ctx context.Context, interval time.Duration) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.sweep(ctx, interval)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (c *Cache) sweep(ctx context.Context, interval time.Duration) {
	c.mu.RLock()
	stale := make([]string, 0)
	cutoff := time.Now().Add(-interval)
	for table, e := range c.entries {
		if e.loadedAt.Before(cutoff) {
			stale = append(stale, table)
		}
	}
	c.mu.RUnlock()

	for _, table := range stale {
		stats, err := c.fetcher.FetchTableStats(ctx, table)
		if err != nil {
			c.logger("statscache: background refresh of %q failed, keeping stale entry: %v", table, err)
			continue
		}
		c.mu.Lock()
		c.entries[table] = entry{stats: stats, loadedAt: time.Now()}
		c.mu.Unlock()
	}
}

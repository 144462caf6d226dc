package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/aq-dashboard-service/internal/catalog"
	"github.com/couchcryptid/aq-dashboard-service/internal/domain"
	"github.com/couchcryptid/aq-dashboard-service/internal/observability"
)

// TableLoader builds a table for a dataset.
type TableLoader interface {
	Load(ctx context.Context, ds catalog.Dataset) (*domain.NormalizedTable, error)
}

// Publisher receives every freshly built table.
type Publisher interface {
	PublishTable(ctx context.Context, table *domain.NormalizedTable) error
}

// defaultPublishTimeout bounds one background snapshot publish.
const defaultPublishTimeout = 5 * time.Minute

// TableCache memoizes normalized tables per distinct source set and cleaning
// rules, with LRU eviction. Concurrent requests for the same key share one load.
//
// Fresh tables are published in the background; Drain waits for those
// publishes at shutdown.
type TableCache struct {
	loader    TableLoader
	publisher Publisher
	cache     *lruCache
	group     singleflight.Group
	logger    *slog.Logger
	metrics   *observability.Metrics

	publishTimeout time.Duration
	publishing     sync.WaitGroup

	mu sync.Mutex
	// generations counts refreshes per dataset. A load started in an older
	// generation is handed to its waiters but never cached.
	generations map[string]uint64
	draining    bool
}

// NewTableCache creates a cache decorator around a loader. publisher may be nil.
func NewTableCache(loader TableLoader, maxEntries int, publisher Publisher, logger *slog.Logger, metrics *observability.Metrics) *TableCache {
	return &TableCache{
		loader:    loader,
		publisher: publisher,
		cache:     newLRUCache(maxEntries),
		logger:    logger,
		metrics:   metrics,

		publishTimeout: defaultPublishTimeout,
		generations:    make(map[string]uint64),
	}
}

// Get returns the cached table for ds or loads it. Failed loads are not cached.
func (c *TableCache) Get(ctx context.Context, ds catalog.Dataset) (*domain.NormalizedTable, error) {
	key := CacheKey(ds)
	if t, ok := c.cache.get(key); ok {
		c.metrics.Cache.WithLabelValues("hit").Inc()
		return t, nil
	}

	gen := c.generation(ds.Spec.Name)
	v, err, shared := c.group.Do(fmt.Sprintf("%s#%d", key, gen), func() (any, error) {
		if t, ok := c.cache.get(key); ok {
			return t, nil
		}
		// Shared by every waiter, so one caller going away must not abort it.
		t, err := c.loader.Load(context.WithoutCancel(ctx), ds)
		if err != nil {
			return nil, err
		}
		if !c.store(ds.Spec.Name, gen, key, t) {
			c.logger.Info("dataset refreshed during load, not caching", "dataset", ds.Spec.Name)
			return t, nil
		}
		c.publish(t)
		return t, nil
	})
	if shared {
		c.metrics.Cache.WithLabelValues("shared").Inc()
	} else {
		c.metrics.Cache.WithLabelValues("miss").Inc()
	}
	if err != nil {
		return nil, err
	}
	return v.(*domain.NormalizedTable), nil
}

// InvalidateDataset drops every cached table of the named dataset and
// returns how many were removed. Loads already in flight finish for their
// waiters but their tables are not cached.
func (c *TableCache) InvalidateDataset(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[name]++
	return c.cache.removePrefix(name + "@")
}

func (c *TableCache) generation(name string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[name]
}

// store caches t unless the dataset was invalidated after generation gen began.
func (c *TableCache) store(name string, gen uint64, key string, t *domain.NormalizedTable) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[name] != gen {
		return false
	}
	c.cache.put(key, t)
	return true
}

func (c *TableCache) publish(t *domain.NormalizedTable) {
	if c.publisher == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draining {
		c.logger.Warn("snapshot publish skipped, shutting down", "dataset", t.Spec.Name)
		return
	}
	c.publishing.Add(1)
	go func() {
		defer c.publishing.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.publishTimeout)
		defer cancel()
		if err := c.publisher.PublishTable(ctx, t); err != nil {
			c.logger.Warn("snapshot publish failed", "dataset", t.Spec.Name, "error", err)
		}
	}()
}

// Drain stops new snapshot publishes and waits for the ones in progress,
// or until ctx is done.
func (c *TableCache) Drain(ctx context.Context) error {
	c.mu.Lock()
	c.draining = true
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.publishing.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CacheKey identifies a table by dataset name, rule fingerprint, and the
// ordered source set.
func CacheKey(ds catalog.Dataset) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\n", ds.Spec.Fingerprint())
	for _, s := range ds.Sources {
		fmt.Fprintf(h, "%s|%s|%d\n", s.ID, s.Location, s.Year)
	}
	return ds.Spec.Name + "@" + hex.EncodeToString(h.Sum(nil)[:8])
}

// lruCache is a simple thread-safe LRU cache for normalized tables.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value *domain.NormalizedTable
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (*domain.NormalizedTable, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value *domain.NormalizedTable) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) removePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key, e := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			c.remove(e)
			n++
		}
	}
	return n
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}

package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Cache is a tagged in-memory key/value cache with TTL expiry and hit/miss
// accounting. Entries past their deadline are treated as misses on read and
// lazily purged; a background sweeper removes the rest. Tags are immutable
// after Set and drive bulk invalidation.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	clock   clockwork.Clock

	// lifetime counters; survive Clear, reset only on process restart
	hits   uint64
	misses uint64

	sweepInterval time.Duration
	stopSweep     chan struct{}
	sweepOnce     sync.Once
}

type entry struct {
	key       string
	value     interface{}
	tags      map[string]struct{}
	createdAt time.Time
	expiresAt time.Time
	hitCount  uint64
}

// Options configures optional cache behaviour.
type Options struct {
	// SweepInterval controls the background expiry sweep; zero disables it.
	SweepInterval time.Duration
	// Clock overrides the time source; nil uses the real clock.
	Clock clockwork.Clock
}

// New creates a Cache. Call Stop when done if a sweep interval is set.
// Parameters:
//   - opts: optional behaviour; nil uses defaults (no sweeper, real clock).
// Returns:
//   - *Cache: ready-to-use cache.
func New(opts *Options) *Cache {
	c := &Cache{
		entries:   make(map[string]*entry),
		clock:     clockwork.NewRealClock(),
		stopSweep: make(chan struct{}),
	}
	if opts != nil {
		if opts.Clock != nil {
			c.clock = opts.Clock
		}
		c.sweepInterval = opts.SweepInterval
	}
	if c.sweepInterval > 0 {
		go c.sweepLoop()
	}
	return c
}

// Get returns the value for key, counting a hit or miss. Expired entries
// are purged and count as misses.
// Parameters:
//   - key: cache key.
// Returns:
//   - interface{}: stored value, nil on miss.
//   - bool: true on hit.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if c.clock.Now().After(e.expiresAt) {
		delete(c.entries, key)
		c.misses++
		return nil, false
	}
	e.hitCount++
	c.hits++
	return e.value, true
}

// Set creates or overwrites an entry. The tag set is copied and immutable
// afterwards.
// Parameters:
//   - key: cache key.
//   - value: value to store.
//   - ttl: time to live; must be positive.
//   - tags: labels for group invalidation.
func (c *Cache) Set(key string, value interface{}, ttl time.Duration, tags []string) {
	now := c.clock.Now()
	e := &entry{
		key:       key,
		value:     value,
		tags:      make(map[string]struct{}, len(tags)),
		createdAt: now,
		expiresAt: now.Add(ttl),
	}
	for _, t := range tags {
		e.tags[t] = struct{}{}
	}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// InvalidateByTags removes every entry whose tag set intersects the given
// tags, and only those.
// Parameters:
//   - tags: tags to invalidate.
// Returns:
//   - int: number of removed entries.
func (c *Cache) InvalidateByTags(tags []string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		for _, t := range tags {
			if _, ok := e.tags[t]; ok {
				delete(c.entries, key)
				removed++
				break
			}
		}
	}
	return removed
}

// Clear removes all entries. Lifetime hit/miss counters are deliberately
// kept so dashboards show cumulative efficiency across clears.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.mu.Unlock()
}

// KeyStats describes one entry in the top-keys listing.
type KeyStats struct {
	Key  string `json:"key"`
	Hits uint64 `json:"hits"`
}

// Stats is a snapshot of cache performance.
type Stats struct {
	Hits          uint64     `json:"hits"`
	Misses        uint64     `json:"misses"`
	HitRate       float64    `json:"hitRate"`
	Size          int        `json:"size"`
	AvgHitsPerKey float64    `json:"avgHitsPerEntry"`
	MemoryUsage   int        `json:"memoryUsage"`
	TopKeys       []KeyStats `json:"topKeys"`
}

// GetStats returns a snapshot of lifetime counters and current contents.
// Memory usage is an approximation based on key and value sizes.
func (c *Cache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Hits:   c.hits,
		Misses: c.misses,
		Size:   len(c.entries),
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}

	var entryHits uint64
	for _, e := range c.entries {
		entryHits += e.hitCount
		s.MemoryUsage += approxSize(e)
		s.TopKeys = append(s.TopKeys, KeyStats{Key: e.key, Hits: e.hitCount})
	}
	if len(c.entries) > 0 {
		s.AvgHitsPerKey = float64(entryHits) / float64(len(c.entries))
	}

	sort.Slice(s.TopKeys, func(i, j int) bool {
		if s.TopKeys[i].Hits != s.TopKeys[j].Hits {
			return s.TopKeys[i].Hits > s.TopKeys[j].Hits
		}
		return s.TopKeys[i].Key < s.TopKeys[j].Key
	})
	if len(s.TopKeys) > 10 {
		s.TopKeys = s.TopKeys[:10]
	}
	return s
}

// Stop terminates the background sweeper, if any.
func (c *Cache) Stop() {
	c.sweepOnce.Do(func() { close(c.stopSweep) })
}

func (c *Cache) sweepLoop() {
	ticker := c.clock.NewTicker(c.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Chan():
			c.sweep()
		case <-c.stopSweep:
			return
		}
	}
}

func (c *Cache) sweep() {
	now := c.clock.Now()
	c.mu.Lock()
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}

func approxSize(e *entry) int {
	size := len(e.key) + 96 // struct and map overhead, roughly
	switch v := e.value.(type) {
	case string:
		size += len(v)
	case []byte:
		size += len(v)
	default:
		size += 64
	}
	for t := range e.tags {
		size += len(t)
	}
	return size
}

package history

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ttlByLevel is how long entries stay fresh. Coarse aggregates change little per new sample.
var ttlByLevel = map[Level]time.Duration{
	LevelRaw:     30 * time.Second,
	Level1Min:    time.Minute,
	Level5Min:    2 * time.Minute,
	LevelHourly:  10 * time.Minute,
	Level6Hourly: 30 * time.Minute,
	LevelDaily:   time.Hour,
	LevelWeekly:  3 * time.Hour,
	LevelMonthly: 6 * time.Hour,
}

// TTLFor returns the cache lifetime of results at level
func TTLFor(level Level) time.Duration {
	if ttl, ok := ttlByLevel[level]; ok {
		return ttl
	}
	return time.Minute
}

// AggregateKey identifies a rate-independent bucket sequence
type AggregateKey struct {
	DeviceID string
	Start    int64
	End      int64
	Level    Level
}

// Key identifies a priced result
type Key struct {
	AggregateKey
	RateVersion string
}

// NewKey builds the cache key of a query
func NewKey(deviceID string, w Window, level Level, rateVersion string) Key {
	return Key{
		AggregateKey: AggregateKey{
			DeviceID: deviceID,
			Start:    w.Start.UnixNano(),
			End:      w.End.UnixNano(),
			Level:    level,
		},
		RateVersion: rateVersion,
	}
}

// String renders the key for single-flight grouping and logs
func (k Key) String() string {
	return fmt.Sprintf("%s|%d|%d|%s|%s", k.DeviceID, k.Start, k.End, k.Level, k.RateVersion)
}

// Entry is a cached result. It is shared between readers and never mutated after Put.
type Entry struct {
	Buckets []Bucket
	Cost    CostSeries
	Meta    Metadata

	expiresAt time.Time
}

type aggregateEntry struct {
	buckets   []Bucket
	expiresAt time.Time
}

// CacheStats is a point-in-time view of cache activity
type CacheStats struct {
	Results       int    `json:"results"`
	Aggregates    int    `json:"aggregates"`
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Invalidations uint64 `json:"invalidations"`
}

// Cache memoizes aggregates and priced results in memory. Expiry is checked lazily on read.
type Cache struct {
	clock Clock

	results    sync.Map // Key -> *Entry
	aggregates sync.Map // AggregateKey -> *aggregateEntry

	// generations counts invalidations per device; a computation stores its result
	// only if the generation it started under is still current
	generations sync.Map // string -> *atomic.Uint64

	hits          atomic.Uint64
	misses        atomic.Uint64
	invalidations atomic.Uint64
}

// NewCache creates an empty cache
func NewCache(clock Clock) *Cache {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Cache{clock: clock}
}

func (c *Cache) generation(deviceID string) *atomic.Uint64 {
	if g, ok := c.generations.Load(deviceID); ok {
		return g.(*atomic.Uint64)
	}
	g, _ := c.generations.LoadOrStore(deviceID, new(atomic.Uint64))
	return g.(*atomic.Uint64)
}

// Generation returns the current invalidation generation of a device
func (c *Cache) Generation(deviceID string) uint64 {
	return c.generation(deviceID).Load()
}

// Get returns a fresh entry for key
func (c *Cache) Get(key Key) (*Entry, bool) {
	v, ok := c.results.Load(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	entry := v.(*Entry)
	if !c.clock.Now().Before(entry.expiresAt) {
		c.results.CompareAndDelete(key, v)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return entry, true
}

// Put stores entry under key for ttl
func (c *Cache) Put(key Key, entry *Entry, ttl time.Duration) {
	entry.expiresAt = c.clock.Now().Add(ttl)
	c.results.Store(key, entry)
}

// PutIfCurrent stores entry only if no invalidation for the device happened
// since generation gen was read. It reports whether the entry was kept.
func (c *Cache) PutIfCurrent(key Key, entry *Entry, ttl time.Duration, gen uint64) bool {
	g := c.generation(key.DeviceID)
	if g.Load() != gen {
		return false
	}
	c.Put(key, entry, ttl)
	// An invalidation may have run between the check and the store
	if g.Load() != gen {
		c.results.CompareAndDelete(key, entry)
		return false
	}
	return true
}

// GetAggregate returns fresh rate-independent buckets for key
func (c *Cache) GetAggregate(key AggregateKey) ([]Bucket, bool) {
	v, ok := c.aggregates.Load(key)
	if !ok {
		return nil, false
	}
	entry := v.(*aggregateEntry)
	if !c.clock.Now().Before(entry.expiresAt) {
		c.aggregates.CompareAndDelete(key, v)
		return nil, false
	}
	return entry.buckets, true
}

// PutAggregateIfCurrent stores buckets under the same generation rule as PutIfCurrent
func (c *Cache) PutAggregateIfCurrent(key AggregateKey, buckets []Bucket, ttl time.Duration, gen uint64) bool {
	g := c.generation(key.DeviceID)
	if g.Load() != gen {
		return false
	}
	entry := &aggregateEntry{buckets: buckets, expiresAt: c.clock.Now().Add(ttl)}
	c.aggregates.Store(key, entry)
	if g.Load() != gen {
		c.aggregates.CompareAndDelete(key, entry)
		return false
	}
	return true
}

// Invalidate drops every entry of deviceID whose window ends at or after after.
// It returns the number of priced results removed.
func (c *Cache) Invalidate(deviceID string, after time.Time) int {
	c.generation(deviceID).Add(1)
	c.invalidations.Add(1)

	bound := after.UnixNano()
	c.aggregates.Range(func(k, _ any) bool {
		key := k.(AggregateKey)
		if key.DeviceID == deviceID && key.End >= bound {
			c.aggregates.Delete(k)
		}
		return true
	})

	removed := 0
	c.results.Range(func(k, _ any) bool {
		key := k.(Key)
		if key.DeviceID == deviceID && key.End >= bound {
			c.results.Delete(k)
			removed++
		}
		return true
	})
	return removed
}

// InvalidateRate drops priced results of deviceID computed with a rate version
// other than version. Aggregates are kept. An empty deviceID applies to all devices.
func (c *Cache) InvalidateRate(deviceID, version string) int {
	c.invalidations.Add(1)

	removed := 0
	c.results.Range(func(k, _ any) bool {
		key := k.(Key)
		if (deviceID == "" || key.DeviceID == deviceID) && key.RateVersion != version {
			c.results.Delete(k)
			removed++
		}
		return true
	})
	return removed
}

// Stats returns entry counts and hit counters
func (c *Cache) Stats() CacheStats {
	stats := CacheStats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Invalidations: c.invalidations.Load(),
	}
	c.results.Range(func(_, _ any) bool {
		stats.Results++
		return true
	})
	c.aggregates.Range(func(_, _ any) bool {
		stats.Aggregates++
		return true
	})
	return stats
}

// Package cache keeps recently assembled reports keyed by the request that
// produced them.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/rahul/archcopilot/internal/design"
)

const (
	defaultMaxEntries  = 256
	defaultBufferItems = 64
	defaultTTL         = time.Hour
)

// ReportCache is a TTL cache of design reports. Stored and returned reports
// are copies, so callers may not alias cached data.
type ReportCache struct {
	cache *ristretto.Cache
	ttl   time.Duration

	mu     sync.Mutex
	hits   int64
	misses int64
}

type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// New creates a cache holding at most maxEntries reports. Each entry costs
// one unit regardless of size.
func New(maxEntries int64, ttl time.Duration) (*ReportCache, error) {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        maxEntries * 10,
		MaxCost:            maxEntries,
		BufferItems:        defaultBufferItems,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &ReportCache{cache: c, ttl: ttl}, nil
}

// Key hashes the provider name and the canonical JSON of req.
func Key(provider string, req design.DesignRequest) string {
	data, _ := json.Marshal(req)
	sum := sha256.Sum256(append([]byte(provider+"\x00"), data...))
	return hex.EncodeToString(sum[:])
}

func (c *ReportCache) Get(key string) (*design.DesignReport, bool) {
	value, found := c.cache.Get(key)
	raw, ok := value.([]byte)
	if !found || !ok {
		c.record(false)
		return nil, false
	}
	var report design.DesignReport
	if err := json.Unmarshal(raw, &report); err != nil {
		c.record(false)
		return nil, false
	}
	c.record(true)
	return &report, true
}

// Set stores report. It reports whether the cache admitted the entry.
func (c *ReportCache) Set(key string, report *design.DesignReport) bool {
	if report == nil {
		return false
	}
	raw, err := json.Marshal(report)
	if err != nil {
		return false
	}
	return c.cache.SetWithTTL(key, raw, 1, c.ttl)
}

// Wait blocks until pending writes are visible to Get.
func (c *ReportCache) Wait() { c.cache.Wait() }

func (c *ReportCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses}
}

func (c *ReportCache) Close() { c.cache.Close() }

func (c *ReportCache) record(hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.hits++
	} else {
		c.misses++
	}
}

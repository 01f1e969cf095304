package search

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultCacheTTL is how long a response stays servable.
const DefaultCacheTTL = 5 * time.Minute

// DefaultCacheSize bounds the number of cached responses.
const DefaultCacheSize = 1000

// CacheStats reports response cache effectiveness.
type CacheStats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Size    int     `json:"size"`
	HitRate float64 `json:"hit_rate"`
}

// responseCache is a TTL bounded LRU of search responses.
type responseCache struct {
	lru    *expirable.LRU[string, *Response]
	hits   atomic.Int64
	misses atomic.Int64
}

func newResponseCache(size int, ttl time.Duration) *responseCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &responseCache{lru: expirable.NewLRU[string, *Response](size, nil, ttl)}
}

func (c *responseCache) get(key string) (*Response, bool) {
	resp, ok := c.lru.Get(key)
	if !ok {
		c.misses.Add(1)
		CacheRequests.WithLabelValues("miss").Inc()
		return nil, false
	}
	c.hits.Add(1)
	CacheRequests.WithLabelValues("hit").Inc()
	return resp.clone(), true
}

func (c *responseCache) put(key string, resp *Response) {
	c.lru.Add(key, resp.clone())
}

func (c *responseCache) stats() CacheStats {
	s := CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   c.lru.Len(),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

// cacheKey hashes the query with the JSON form of opts. encoding/json
// sorts map keys, so equal options always produce the same key.
func cacheKey(query string, opts Options) (string, error) {
	b, err := json.Marshal(opts)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(query))
	h.Write([]byte{0})
	h.Write(b)
	return hex.EncodeToString(h.Sum(nil)), nil
}

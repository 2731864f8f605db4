package linediff

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Result is a memoized diff of two texts.
type Result struct {
	Rows  []Row `json:"rows"`
	Stats Stats `json:"stats"`
}

// Cache memoizes diffs keyed on the exact pair of input texts. Concurrent
// requests for the same pair share one computation. Cached results must be
// treated as read-only.
type Cache struct {
	limits Limits
	size   int

	mu      sync.Mutex
	entries map[string]*Result
	order   []string // insertion order, oldest first
	group   singleflight.Group

	hits, misses int
}

// NewCache returns a cache holding up to size results. A size of zero or
// less disables memoization but keeps the size limits.
func NewCache(size int, limits Limits) *Cache {
	return &Cache{
		limits:  limits,
		size:    size,
		entries: make(map[string]*Result),
	}
}

// Diff returns the aligned rows for oldText and newText.
func (c *Cache) Diff(oldText, newText string) (*Result, error) {
	oldLines, newLines := Split(oldText), Split(newText)
	if err := c.limits.Check(oldLines, newLines); err != nil {
		return nil, err
	}
	if c.size <= 0 {
		return compute(oldLines, newLines), nil
	}

	key := cacheKey(oldText, newText)
	c.mu.Lock()
	if r, ok := c.entries[key]; ok {
		c.hits++
		c.mu.Unlock()
		return r, nil
	}
	c.mu.Unlock()

	v, _, _ := c.group.Do(key, func() (any, error) {
		c.mu.Lock()
		if r, ok := c.entries[key]; ok {
			c.hits++
			c.mu.Unlock()
			return r, nil
		}
		c.misses++
		c.mu.Unlock()
		r := compute(oldLines, newLines)
		c.store(key, r)
		return r, nil
	})
	return v.(*Result), nil
}

// Limits returns the size policy applied before every diff.
func (c *Cache) Limits() Limits { return c.limits }

// Len returns the number of cached results.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Counters returns hit and miss totals. A miss is one computation; callers
// that joined an in-flight computation count as neither.
func (c *Cache) Counters() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *Cache) store(key string, r *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		return
	}
	for len(c.order) >= c.size {
		delete(c.entries, c.order[0])
		c.order = c.order[1:]
	}
	c.entries[key] = r
	c.order = append(c.order, key)
}

func compute(oldLines, newLines []string) *Result {
	rows := Align(Compute(oldLines, newLines))
	return &Result{Rows: rows, Stats: Count(rows)}
}

// cacheKey hashes both texts; the length prefix keeps ("ab","c") and
// ("a","bc") apart.
func cacheKey(oldText, newText string) string {
	h := sha256.New()
	var n [8]byte
	l := uint64(len(oldText))
	for i := range n {
		n[i] = byte(l >> (8 * i))
	}
	h.Write(n[:])
	h.Write([]byte(oldText))
	h.Write([]byte(newText))
	return hex.EncodeToString(h.Sum(nil))
}

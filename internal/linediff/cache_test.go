package linediff

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_Memoizes(t *testing.T) {
	c := NewCache(4, Limits{})
	r1, err := c.Diff("a\nb", "a\nc")
	require.NoError(t, err)
	r2, err := c.Diff("a\nb", "a\nc")
	require.NoError(t, err)

	assert.Same(t, r1, r2)
	assert.Equal(t, Stats{Same: 1, Added: 1, Deleted: 1}, r1.Stats)
	hits, misses := c.Counters()
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)
}

func TestCache_KeyDistinguishesSplitPoint(t *testing.T) {
	c := NewCache(4, Limits{})
	r1, err := c.Diff("ab", "c")
	require.NoError(t, err)
	r2, err := c.Diff("a", "bc")
	require.NoError(t, err)
	assert.NotSame(t, r1, r2)
	assert.Equal(t, 2, c.Len())
}

func TestCache_Evicts(t *testing.T) {
	c := NewCache(2, Limits{})
	for _, s := range []string{"x", "y", "z"} {
		_, err := c.Diff(s, "")
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Len())

	// "x" was evicted, so this is a miss.
	_, err := c.Diff("x", "")
	require.NoError(t, err)
	_, misses := c.Counters()
	assert.Equal(t, 4, misses)
}

func TestCache_Disabled(t *testing.T) {
	c := NewCache(0, Limits{})
	r, err := c.Diff("a", "b")
	require.NoError(t, err)
	assert.Len(t, r.Rows, 2)
	assert.Equal(t, 0, c.Len())
}

func TestCache_EnforcesLimits(t *testing.T) {
	c := NewCache(4, Limits{MaxLines: 2})
	_, err := c.Diff(strings.Repeat("l\n", 5), "")
	require.ErrorIs(t, err, ErrTooLarge)
	assert.Equal(t, 0, c.Len())
}

func TestCache_Concurrent(t *testing.T) {
	c := NewCache(8, Limits{})
	old := strings.Repeat("line\n", 200)
	new := strings.Repeat("line\nother\n", 100)

	var wg sync.WaitGroup
	results := make([]*Result, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := c.Diff(old, new)
			if err == nil {
				results[i] = r
			}
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, results[0].Stats, r.Stats)
	}
	assert.Equal(t, 1, c.Len())
	hits, misses := c.Counters()
	assert.Equal(t, 1, misses, "joined callers share one computation")
	assert.LessOrEqual(t, hits, len(results)-1)
}

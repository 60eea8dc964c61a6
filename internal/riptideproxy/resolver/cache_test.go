package resolver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/project"
)

func withFakeClock(t *testing.T) (advance func(time.Duration)) {
	t.Helper()
	start := time.Now()
	cur := start
	old := nowFn
	nowFn = func() time.Time { return cur }
	t.Cleanup(func() { nowFn = old })
	return func(d time.Duration) { cur = cur.Add(d) }
}

// TestProjectCacheSlidingTTL exercises P2: a lookup within the TTL window
// is a hit (no reload needed), and one past the TTL is a miss.
func TestProjectCacheSlidingTTL(t *testing.T) {
	advance := withFakeClock(t)
	c := NewProjectCache(10 * time.Second)
	p := &project.Project{Name: "proj1"}
	c.Put("proj1.yml", p)

	advance(5 * time.Second)
	got, ok := c.Get("proj1.yml")
	require.True(t, ok)
	assert.Same(t, p, got)

	// A hit refreshes LastAccess, so another 6s hop (11s since Put, past
	// the TTL) should still be fresh relative to the refreshed timestamp.
	advance(6 * time.Second)
	_, ok = c.Get("proj1.yml")
	require.True(t, ok)

	advance(11 * time.Second)
	_, ok = c.Get("proj1.yml")
	assert.False(t, ok, "entry should be stale past the TTL")
}

func TestProjectCacheFlush(t *testing.T) {
	c := NewProjectCache(time.Minute)
	c.Put("a", &project.Project{Name: "a"})
	c.Flush()
	_, ok := c.Get("a")
	assert.False(t, ok)
}

// TestAddressCacheNeverCachesEmpty exercises P3.
func TestAddressCacheNeverCachesEmpty(t *testing.T) {
	c := NewAddressCache(time.Minute)
	c.Put("proj1--web", "")
	_, ok := c.Get("proj1--web")
	assert.False(t, ok)

	c.Put("proj1--web", "http://10.0.0.5:8080")
	got, ok := c.Get("proj1--web")
	require.True(t, ok)
	assert.Equal(t, "http://10.0.0.5:8080", got)
}

func TestAddressCacheSlidingTTL(t *testing.T) {
	advance := withFakeClock(t)
	c := NewAddressCache(10 * time.Second)
	c.Put("k", "http://10.0.0.1:80")

	advance(11 * time.Second)
	_, ok := c.Get("k")
	assert.False(t, ok)
}

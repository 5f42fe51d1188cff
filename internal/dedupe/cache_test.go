// ABOUTME: Tests for the handled-key cache
// ABOUTME: Uses a manual clock so expiry and pruning are deterministic

package dedupe

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (m *manualClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *manualClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func newTestCache(ttl time.Duration, size int) (*Cache, *manualClock) {
	clock := &manualClock{now: time.Unix(1_700_000_000, 0)}
	return New(ttl, size).WithClock(clock.Now), clock
}

func TestCache_Seen(t *testing.T) {
	c, _ := newTestCache(time.Minute, 10)

	assert.False(t, c.Seen("run1:call1"))
	c.Record("run1:call1")
	assert.True(t, c.Seen("run1:call1"))
	assert.False(t, c.Seen("run1:call2"))
}

func TestCache_Expiry(t *testing.T) {
	c, clock := newTestCache(time.Minute, 10)

	c.Record("k")
	clock.Advance(59 * time.Second)
	assert.True(t, c.Seen("k"))

	clock.Advance(time.Second)
	assert.False(t, c.Seen("k"))
}

func TestCache_RecordRefreshes(t *testing.T) {
	c, clock := newTestCache(time.Minute, 10)

	c.Record("k")
	clock.Advance(40 * time.Second)
	c.Record("k")
	clock.Advance(40 * time.Second)

	assert.True(t, c.Seen("k"), "refreshed key should outlive its first ttl")
}

func TestCache_PrunesExpiredOnWrite(t *testing.T) {
	c, clock := newTestCache(time.Minute, 10)

	c.Record("a", "b", "c")
	assert.Equal(t, 3, c.Len())

	clock.Advance(2 * time.Minute)
	c.Record("d")
	assert.Equal(t, 1, c.Len())
}

func TestCache_EvictsOldest(t *testing.T) {
	c, clock := newTestCache(time.Hour, 3)

	for _, k := range []string{"first", "second", "third"} {
		c.Record(k)
		clock.Advance(time.Millisecond)
	}
	c.Record("fourth")

	assert.False(t, c.Seen("first"))
	assert.True(t, c.Seen("second"))
	assert.True(t, c.Seen("third"))
	assert.True(t, c.Seen("fourth"))

	c.Record("fifth")
	assert.False(t, c.Seen("second"))
	assert.Equal(t, 3, c.Len())
}

func TestCache_ZeroTTLNeverExpires(t *testing.T) {
	c, clock := newTestCache(0, 0)

	c.Record("k")
	clock.Advance(1000 * time.Hour)
	assert.True(t, c.Seen("k"))
}

func TestCache_ConcurrentRecord(t *testing.T) {
	c := New(time.Minute, 0)

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			c.Record("run1:call1", "run1:call2")
			_ = c.Seen("run1:call1")
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, c.Len())
}

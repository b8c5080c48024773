package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheSetGetTouchesLastAccess(t *testing.T) {
	c := New([]int{1})
	it := NewItem([]byte("foo"), 1, 0, 64, 0)
	require.NoError(t, c.Set(it))
	it.lastAccess = -1

	got, err := c.Get([]byte("foo"))
	require.NoError(t, err)
	assert.Equal(t, it, got)
	assert.True(t, got.Fetched())
	assert.NotEqual(t, int64(-1), got.LastAccess(), "Get must refresh the last-access time")
}

func TestCacheGetMissingReturnsErrNotFound(t *testing.T) {
	c := New([]int{1})
	_, err := c.Get([]byte("nope"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCacheDeleteRemovesFromIndexAndQueue(t *testing.T) {
	c := New([]int{1})
	it := NewItem([]byte("foo"), 1, 0, 64, 0)
	require.NoError(t, c.Set(it))
	require.NoError(t, c.Delete([]byte("foo")))

	_, err := c.Get([]byte("foo"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, c.queueFor(1).Len())
}

func TestLRUQueueCrawlQWalksTailToHead(t *testing.T) {
	q := newLRUQueue()
	older := NewItem([]byte("older"), 1, 0, 1, 0)
	newer := NewItem([]byte("newer"), 1, 0, 1, 0)
	q.pushFront(older) // inserted first, so it ends up closer to the tail
	q.pushFront(newer)

	cur := new(int) // any comparable pointer works as a Sentinel
	q.LinkTail(cur)

	ent, ok := q.CrawlQ(cur)
	require.True(t, ok)
	assert.Equal(t, older, ent)

	ent, ok = q.CrawlQ(cur)
	require.True(t, ok)
	assert.Equal(t, newer, ent)

	_, ok = q.CrawlQ(cur)
	assert.False(t, ok, "walk must stop once the sentinel reaches the head")
}

func TestHashIndexIteratorNilDuringExpansion(t *testing.T) {
	c := New([]int{1})
	c.SetExpanding(true)
	assert.Nil(t, c.index.Iterator())
}

func TestHashIndexIteratorEmitsCheckpoints(t *testing.T) {
	idx := newHashIndex()
	for i := 0; i < hashWalkChunk+1; i++ {
		idx.put(NewItem([]byte{byte(i)}, 1, 0, 1, 0))
	}

	iter := idx.Iterator()
	require.NotNil(t, iter)

	entries, checkpoints := 0, 0
	for {
		ent, more := iter.Next()
		if !more {
			break
		}
		if ent == nil {
			checkpoints++
			continue
		}
		entries++
	}
	assert.Equal(t, hashWalkChunk+1, entries)
	assert.Equal(t, 1, checkpoints, "one checkpoint after the first full chunk")
}

func TestEntryLockerTryLockIsExclusive(t *testing.T) {
	l := newEntryLocker()
	tok, ok := l.TryLock(42)
	require.True(t, ok)

	_, ok = l.TryLock(42)
	assert.False(t, ok, "a held hash value must refuse a second lock")

	tok.Unlock()
	_, ok = l.TryLock(42)
	assert.True(t, ok, "unlocking must free the hash value for reuse")
}

func TestRefCounterIncrDecr(t *testing.T) {
	rc := refCounter{}
	it := NewItem([]byte("foo"), 1, 0, 1, 0) // starts at 1 (owner reference)
	assert.Equal(t, 2, rc.Incr(it))
	assert.Equal(t, 1, rc.Decr(it))
}

func TestFlushCheckerOldestLiveCutover(t *testing.T) {
	f := &flushChecker{}
	it := NewItem([]byte("foo"), 1, 0, 1, 0)
	it.lastAccess = 100

	assert.False(t, f.IsFlushed(it), "no flush issued yet")
	f.setOldestLive(200)
	assert.True(t, f.IsFlushed(it), "touched before the flush cutover")

	it.lastAccess = 250
	assert.False(t, f.IsFlushed(it), "touched after the flush cutover")
}

func TestClassStatsAccumulatesAcrossCalls(t *testing.T) {
	s := newClassStats()
	s.AddCrawlStats(1, 2, 1, 10)
	s.AddCrawlStats(1, 1, 0, 5)

	snap := s.Snapshot()
	assert.Equal(t, ClassCrawlStats{Reclaimed: 3, Unfetched: 1, Checked: 15}, snap[1])
}

// Package cache is a reference host cache: the external collaborators the
// crawler package needs (Entry, per-class LRU, hash index, refcounting,
// flush predicate) wired together over a plain in-memory store. It plays
// the role do_item_get/do_item_link/assoc_* play in the original, grounded
// on the sharded-map-plus-RWMutex shape of the multi-tenant session store.
package cache

import (
	"errors"
	"sync"

	"github.com/ocx/cachecrawler/internal/crawler"
)

var ErrNotFound = errors.New("cache: key not found")

// Cache is an in-memory, class-partitioned item store.
type Cache struct {
	classes []int

	mu     sync.RWMutex
	queues map[int]*lruQueue
	locks  map[int]*sync.Mutex

	index  *hashIndex
	locker *entryLocker
	flush  *flushChecker
	stats  *classStats
	run    *runningFlag

	clock crawler.Clock
}

// New builds a Cache offering exactly the given class ids. classes must
// already be LRU-sublist-tagged (crawler.ExpandSizeClass per size class,
// as internal/config's defaultClasses does), not bare size-class numbers,
// so that Crawl's explicit-class-id submission form resolves against the
// scheduler's cursors.
func New(classes []int) *Cache {
	c := &Cache{
		classes: append([]int(nil), classes...),
		queues:  make(map[int]*lruQueue, len(classes)),
		locks:   make(map[int]*sync.Mutex, len(classes)),
		index:   newHashIndex(),
		locker:  newEntryLocker(),
		flush:   &flushChecker{},
		stats:   newClassStats(),
		run:     &runningFlag{},
		clock:   crawler.NewSystemClock(),
	}
	for _, cid := range classes {
		c.queues[cid] = newLRUQueue()
		c.locks[cid] = &sync.Mutex{}
	}
	return c
}

func (c *Cache) queueFor(classID int) *lruQueue {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.queues[classID]
}

func (c *Cache) classLock(classID int) *sync.Mutex {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.locks[classID]
}

// Set inserts or replaces the item under key, linking it at the head of
// its class's LRU list (do_item_link).
func (c *Cache) Set(it *Item) error {
	c.mu.RLock()
	q, ok := c.queues[it.ClassID()]
	c.mu.RUnlock()
	if !ok {
		return errors.New("cache: unknown class id")
	}
	it.lastAccess = c.clock.Now()
	if old, ok := c.index.get(it.Key()); ok {
		if oq := c.queueFor(old.ClassID()); oq != nil {
			oq.removeItem(old)
		}
	}
	c.index.put(it)
	q.pushFront(it)
	return nil
}

// Get returns the item for key, touching its last-access time and fetched
// flag as a real read would (do_item_get).
func (c *Cache) Get(key []byte) (*Item, error) {
	it, ok := c.index.get(key)
	if !ok {
		return nil, ErrNotFound
	}
	it.Touch(c.clock.Now())
	return it, nil
}

// Delete removes key from both the hash index and its class's LRU list.
func (c *Cache) Delete(key []byte) error {
	it, ok := c.index.get(key)
	if !ok {
		return ErrNotFound
	}
	c.index.delete(key)
	if q := c.queueFor(it.ClassID()); q != nil {
		q.removeItem(it)
	}
	return nil
}

// FlushAll marks every entry last touched before now as flushed, matching
// memcached's flush_all oldest_live cutover.
func (c *Cache) FlushAll(now int64) {
	c.flush.setOldestLive(now)
}

// SetExpanding toggles the simulated hash-table-expansion window that
// makes HashIndex.Iterator() unavailable (spec §4.5/§8 S4).
func (c *Cache) SetExpanding(v bool) {
	c.index.setExpanding(v)
}

// Stats returns the accumulated per-class crawl stats recorded by the
// scheduler's ClassStats collaborator calls.
func (c *Cache) Stats() map[int]ClassCrawlStats {
	return c.stats.Snapshot()
}

// Running reports whether a crawl is believed active, as last set through
// the RunningFlag collaborator (only meaningful if Collaborators().Running
// was not overridden with an external flag, e.g. crawler.Metrics).
func (c *Cache) Running() bool {
	return c.run.Running()
}

// Collaborators builds the crawler.Collaborators bundle backed by this
// cache. StorageValidator is left nil; wire internal/extstore's
// implementation in before constructing the scheduler if external storage
// is in play. Running may likewise be swapped for a crawler.Metrics
// instance by simply overwriting the returned struct's Running field.
func (c *Cache) Collaborators() crawler.Collaborators {
	return crawler.Collaborators{
		Classes:   append([]int(nil), c.classes...),
		Queue:     func(classID int) crawler.Queue { return c.queueFor(classID) },
		ClassLock: func(classID int) crawler.ClassLock { return c.classLock(classID) },
		Index:     c.index,
		Locker:    c.locker,
		RefCounts: refCounter{},
		Reclaim:   &reclaimer{c: c},
		Flush:     c.flush,
		Stats:     c.stats,
		Running:   c.run,
		Clock:     c.clock,
	}
}

// Package crawler implements the background item crawler: a cooperative
// scanner over a cache's per-class LRU queues (and, in hash-walk mode, its
// hash index) that reclaims expired entries and streams point-in-time
// enumerations of live entries to an attached client.
//
// The package never touches slab storage, the hash table, or refcounting
// directly. It consumes those as the interfaces below, supplied by a host
// cache at construction time.
package crawler

import "time"

// Entry is the host cache's view of a single cached record. The crawler
// treats it as opaque beyond these accessors.
type Entry interface {
	Key() []byte
	ClassID() int
	ExpTime() int64 // relative unix seconds; 0 = never expires
	LastAccess() int64
	CAS() uint64
	Size() uint64
	Fetched() bool
	KeyBinary() bool
	HasExternalHeader() bool
	ExternalPage() uint32
	ExternalOffset() uint32
	Flags() uint64
}

// Sentinel is the opaque cursor handle a Queue splices into its list. The
// crawler package never looks inside it; only the Queue implementation
// needs to know its layout.
type Sentinel interface{}

// Queue is one per-class LRU list. Implementations provide the splice
// primitives the original C code gets from sharing memory layout between
// item and crawler cursor; here that's an explicit interface instead.
type Queue interface {
	// LinkTail inserts the sentinel at the tail of the list.
	LinkTail(s Sentinel)
	// UnlinkTail removes the sentinel from the list.
	UnlinkTail(s Sentinel)
	// CrawlQ swaps the sentinel with its predecessor and returns the entry
	// it passed over, or (nil, false) when the head of the list is reached.
	CrawlQ(s Sentinel) (Entry, bool)
	// Len reports the current number of live (non-sentinel) entries.
	Len() int
}

// HashIndex provides the hash-walk mode's bucket-by-bucket iterator.
type HashIndex interface {
	// Iterator returns nil if a hash-table expansion is in progress and
	// acquiring the iterator would require waiting for it.
	Iterator() Iterator
	Hash(key []byte) uint32
}

// Iterator walks the hash table bucket-by-bucket, holding a bucket lock
// between calls that return an entry.
type Iterator interface {
	// Next returns the next entry and true, or (nil, true) to signal a
	// safe "between buckets" checkpoint, or (nil, false) when the walk is
	// exhausted.
	Next() (Entry, bool)
	// Final releases any held lock and unblocks hash-table expansion. Must
	// always be called once iteration ends.
	Final()
}

// LockToken is held while an entry's hash-bucket lock is engaged.
type LockToken interface {
	Unlock()
}

// EntryLocker hands out non-blocking per-entry locks keyed by hash value.
type EntryLocker interface {
	// TryLock returns (nil, false) if the entry is already locked.
	TryLock(hv uint32) (LockToken, bool)
}

// RefCounter is the entry's atomic reference count. Both methods return the
// count after the operation, matching the host cache's atomic primitive.
type RefCounter interface {
	Incr(e Entry) int
	Decr(e Entry) int
}

// Reclaimer removes an entry found to be reclaimable.
type Reclaimer interface {
	// UnlinkNoLock removes the entry from the hash index and its class
	// list without taking the class LRU lock (the caller already holds it).
	UnlinkNoLock(e Entry, hv uint32)
	// Remove drops the reference obtained by the queue walk, freeing the
	// entry once its refcount reaches zero.
	Remove(e Entry)
}

// FlushChecker reports whether an entry predates the most recent global
// flush command.
type FlushChecker interface {
	IsFlushed(e Entry) bool
}

// StorageValidator checks and reclaims entries backed by external storage
// (HasExternalHeader() == true).
type StorageValidator interface {
	Validate(e Entry) bool
	Delete(e Entry)
}

// ClassLock guards one class's LRU list.
type ClassLock interface {
	Lock()
	Unlock()
}

// Clock supplies the crawler's notion of time, decoupled from wall-clock
// reads so tests can control it.
type Clock interface {
	Now() int64 // monotonic-ish seconds since process start reference
	ProcessStarted() int64
}

// ClassStats receives per-class crawl summaries at class completion,
// mirroring do_item_stats_add_crawl.
type ClassStats interface {
	AddCrawlStats(classID int, reclaimed, unfetched, checked int)
}

// RunningFlag is the external stats_state.lru_crawler_running boolean.
type RunningFlag interface {
	SetRunning(bool)
}

// Collaborators bundles every external dependency the crawler core
// consumes. A host cache builds one of these and hands it to NewScheduler.
type Collaborators struct {
	Classes   []int // class ids this cache offers; NewScheduler pumps them in ascending order
	Queue     func(classID int) Queue
	ClassLock func(classID int) ClassLock
	Index     HashIndex
	Locker    EntryLocker
	RefCounts RefCounter
	Reclaim   Reclaimer
	Flush     FlushChecker
	Storage   StorageValidator // optional; nil disables external-storage checks
	Stats     ClassStats
	Running   RunningFlag
	Clock     Clock
}

type systemClock struct{ start time.Time }

// NewSystemClock returns a Clock backed by the real clock: Now counts whole
// seconds since construction, and ProcessStarted is the construction time
// in unix seconds.
func NewSystemClock() Clock {
	return &systemClock{start: time.Now()}
}

func (c *systemClock) Now() int64            { return int64(time.Since(c.start) / time.Second) }
func (c *systemClock) ProcessStarted() int64 { return c.start.Unix() }

package cache

import (
	"hash/fnv"
	"sync"

	"github.com/ocx/cachecrawler/internal/crawler"
)

// hashIndex is the key->Item lookup table plus the hash-walk iterator. Real
// memcached buckets a power-of-two hash table and walks it bucket by
// bucket, holding one bucket lock at a time; here the table is a single
// RWMutex-guarded map and the iterator instead walks it in fixed-size
// chunks, emitting a checkpoint between chunks so callers get the same
// "safe to pause" cadence.
type hashIndex struct {
	mu        sync.RWMutex
	byKey     map[string]*Item
	expanding bool
}

const hashWalkChunk = 64

func newHashIndex() *hashIndex {
	return &hashIndex{byKey: make(map[string]*Item)}
}

func (h *hashIndex) Hash(key []byte) uint32 {
	f := fnv.New32a()
	f.Write(key)
	return f.Sum32()
}

func (h *hashIndex) put(it *Item) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.byKey[string(it.Key())] = it
}

func (h *hashIndex) get(key []byte) (*Item, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	it, ok := h.byKey[string(key)]
	return it, ok
}

func (h *hashIndex) delete(key []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.byKey, string(key))
}

// setExpanding simulates assoc_expand's rehash-in-progress window, during
// which Iterator() must refuse to hand out a walk (spec §4.5/§8 S4).
func (h *hashIndex) setExpanding(v bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.expanding = v
}

func (h *hashIndex) Iterator() crawler.Iterator {
	h.mu.RLock()
	expanding := h.expanding
	h.mu.RUnlock()
	if expanding {
		return nil
	}

	h.mu.RLock()
	keys := make([]string, 0, len(h.byKey))
	for k := range h.byKey {
		keys = append(keys, k)
	}
	h.mu.RUnlock()

	return &hashIterator{h: h, keys: keys}
}

// hashIterator walks a snapshot of keys taken at iterator creation,
// re-resolving each to its current Item (or skipping it if deleted
// meanwhile) so concurrent mutation never panics mid-walk.
type hashIterator struct {
	h               *hashIndex
	keys            []string
	pos             int
	sinceCheckpoint int
}

func (it *hashIterator) Next() (crawler.Entry, bool) {
	if it.pos >= len(it.keys) {
		return nil, false
	}
	if it.sinceCheckpoint >= hashWalkChunk {
		it.sinceCheckpoint = 0
		return nil, true
	}

	key := it.keys[it.pos]
	it.pos++
	it.sinceCheckpoint++
	it.h.mu.RLock()
	item, ok := it.h.byKey[key]
	it.h.mu.RUnlock()
	if !ok {
		return it.Next()
	}
	return item, true
}

func (it *hashIterator) Final() {}

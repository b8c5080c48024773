package cache

import "sync/atomic"

// Item is the cache's concrete record type: the host-side implementation of
// crawler.Entry. A *Item is never mutated by the crawler package directly;
// it only reads through the accessor methods and adjusts refcount.
type Item struct {
	key        []byte
	classID    int
	expTime    int64
	lastAccess int64
	cas        uint64
	size       uint64
	flags      uint64
	binary     bool
	extHeader  bool
	extPage    uint32
	extOffset  uint32

	fetched  atomic.Bool
	refcount atomic.Int32
}

// NewItem constructs an Item with an initial refcount of 1, matching the
// convention that the owning hash-table/LRU reference counts as one hold.
func NewItem(key []byte, classID int, expTime int64, size uint64, flags uint64) *Item {
	it := &Item{
		key:     append([]byte(nil), key...),
		classID: classID,
		expTime: expTime,
		size:    size,
		flags:   flags,
	}
	it.refcount.Store(1)
	return it
}

func (it *Item) Key() []byte            { return it.key }
func (it *Item) ClassID() int           { return it.classID }
func (it *Item) ExpTime() int64         { return it.expTime }
func (it *Item) LastAccess() int64      { return it.lastAccess }
func (it *Item) CAS() uint64            { return it.cas }
func (it *Item) Size() uint64           { return it.size }
func (it *Item) Fetched() bool          { return it.fetched.Load() }
func (it *Item) KeyBinary() bool        { return it.binary }
func (it *Item) HasExternalHeader() bool { return it.extHeader }
func (it *Item) ExternalPage() uint32   { return it.extPage }
func (it *Item) ExternalOffset() uint32 { return it.extOffset }
func (it *Item) Flags() uint64          { return it.flags }

// Touch records a read, matching memcached's do_item_get bumping
// last-access time and the fetched flag.
func (it *Item) Touch(now int64) {
	it.lastAccess = now
	it.fetched.Store(true)
}

// MarkExternal flags the item as backed by external storage (spec §9's
// external-storage validator hook), recording the page/offset it lives at.
func (it *Item) MarkExternal(page, offset uint32) {
	it.extHeader = true
	it.extPage = page
	it.extOffset = offset
}

func (it *Item) SetBinaryKey(v bool) { it.binary = v }
func (it *Item) SetCAS(v uint64)     { it.cas = v }

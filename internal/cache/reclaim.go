package cache

import "github.com/ocx/cachecrawler/internal/crawler"

// reclaimer wires the crawler's Reclaimer hook back into the owning Cache:
// UnlinkNoLock drops the entry from both indexes while the caller still
// holds the class lock, Remove drops the crawl-walk's own reference.
type reclaimer struct {
	c *Cache
}

func (r *reclaimer) UnlinkNoLock(e crawler.Entry, hv uint32) {
	it := e.(*Item)
	r.c.index.delete(it.Key())
	if q := r.c.queueFor(it.ClassID()); q != nil {
		q.removeItem(it)
	}
}

func (r *reclaimer) Remove(e crawler.Entry) {
	it := e.(*Item)
	it.refcount.Add(-1)
}

package cache

import "github.com/ocx/cachecrawler/internal/crawler"

// refCounter adapts Item's atomic refcount to crawler.RefCounter. Entries
// not produced by this package (none should reach the crawler otherwise)
// would panic on the type assertion, which is the intended failure mode:
// the crawler only ever hands back entries it received from this cache.
type refCounter struct{}

func (refCounter) Incr(e crawler.Entry) int {
	it := e.(*Item)
	return int(it.refcount.Add(1))
}

func (refCounter) Decr(e crawler.Entry) int {
	it := e.(*Item)
	return int(it.refcount.Add(-1))
}

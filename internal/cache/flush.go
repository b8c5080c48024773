package cache

import (
	"sync/atomic"

	"github.com/ocx/cachecrawler/internal/crawler"
)

// flushChecker mirrors memcached's oldest_live: a flush_all sets a cutover
// timestamp, and any entry last touched before it is considered flushed
// even though it hasn't been unlinked yet.
type flushChecker struct {
	oldestLive atomic.Int64
}

func (f *flushChecker) setOldestLive(t int64) { f.oldestLive.Store(t) }

func (f *flushChecker) IsFlushed(e crawler.Entry) bool {
	cutoff := f.oldestLive.Load()
	if cutoff == 0 {
		return false
	}
	return e.LastAccess() < cutoff
}

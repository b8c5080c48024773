package cache

import (
	"sync"

	"github.com/ocx/cachecrawler/internal/crawler"
)

// entryLocker hands out non-blocking per-hash-value locks, standing in for
// the original's per-bucket item lock array.
type entryLocker struct {
	mu   sync.Mutex
	held map[uint32]bool
}

func newEntryLocker() *entryLocker {
	return &entryLocker{held: make(map[uint32]bool)}
}

type lockToken struct {
	l  *entryLocker
	hv uint32
}

func (t lockToken) Unlock() {
	t.l.mu.Lock()
	delete(t.l.held, t.hv)
	t.l.mu.Unlock()
}

func (l *entryLocker) TryLock(hv uint32) (crawler.LockToken, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[hv] {
		return nil, false
	}
	l.held[hv] = true
	return lockToken{l: l, hv: hv}, true
}

package cache

import (
	"container/list"
	"sync"

	"github.com/ocx/cachecrawler/internal/crawler"
)

// lruQueue is one class's LRU list: front is the head (most recently used),
// back is the tail (least recently used, where cursors start). A crawler
// cursor is spliced directly into this same list as a list.Element, the Go
// equivalent of the original's shared item/crawler-cursor memory layout.
type lruQueue struct {
	mu   sync.Mutex
	lst  *list.List
	elem map[crawler.Sentinel]*list.Element
}

func newLRUQueue() *lruQueue {
	return &lruQueue{lst: list.New(), elem: make(map[crawler.Sentinel]*list.Element)}
}

// pushFront links a live item at the head, matching do_item_link_q.
func (q *lruQueue) pushFront(it *Item) *list.Element {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lst.PushFront(it)
}

func (q *lruQueue) removeElem(e *list.Element) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lst.Remove(e)
}

// removeItem removes it by identity scan, used by Reclaimer when only the
// Entry (not its list.Element) is known.
func (q *lruQueue) removeItem(it *Item) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for e := q.lst.Front(); e != nil; e = e.Next() {
		if e.Value == it {
			q.lst.Remove(e)
			return
		}
	}
}

func (q *lruQueue) LinkTail(s crawler.Sentinel) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.elem[s] = q.lst.PushBack(s)
}

func (q *lruQueue) UnlinkTail(s crawler.Sentinel) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.elem[s]; ok {
		q.lst.Remove(e)
		delete(q.elem, s)
	}
}

// CrawlQ swaps the sentinel one step toward the head and returns the entry
// it passed over, matching do_item_crawl_q's pointer-splice walk.
func (q *lruQueue) CrawlQ(s crawler.Sentinel) (crawler.Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.elem[s]
	if !ok {
		return nil, false
	}
	prev := e.Prev()
	if prev == nil {
		return nil, false
	}
	it, ok := prev.Value.(*Item)
	if !ok {
		return nil, false
	}
	q.lst.MoveBefore(e, prev)
	return it, true
}

func (q *lruQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for e := q.lst.Front(); e != nil; e = e.Next() {
		if _, ok := e.Value.(*Item); ok {
			n++
		}
	}
	return n
}

package crawler

import "time"

// minItemsPerWrite is the between-buckets flush threshold of spec §4.5:
// enough accumulated records to make a write syscall worthwhile.
const minItemsPerWrite = 16

// runHashWalk is C5: an alternate driver over the hash index instead of the
// per-class LRU queues, used only for dump policies (spec §9's open
// question rules out expire here since hv/classID are unavailable).
func (s *Scheduler) runHashWalk() {
	scan := s.scan
	iter := s.col.Index.Iterator()
	if iter == nil {
		// Hash table expansion in progress; finalize will emit the
		// lock-error line (spec §4.5/§8 S4).
		if lk, ok := scan.mod.(lockable); ok {
			lk.setLocked()
		}
		return
	}
	defer iter.Final()

	budget := s.pace.CrawlsPerSleep
	items := 0

	for {
		ent, more := iter.Next()
		if !more {
			return
		}
		if ent == nil {
			// Between buckets: safe point to flush and pace.
			if scan.client != nil {
				if items > minItemsPerWrite {
					if scan.client.Flush() != 0 {
						return
					}
					items = 0
				}
			} else if scan.mod.needsClient() {
				return
			}

			if s.pace.CrawlsPerSleep > 0 {
				budget--
				if budget <= 0 {
					s.mu.Unlock()
					time.Sleep(s.pace.SleepFor)
					s.mu.Lock()
					budget = s.pace.CrawlsPerSleep
				}
			} else {
				s.mu.Unlock()
				s.mu.Lock()
			}
			continue
		}

		if rc := s.col.RefCounts.Incr(ent); rc < 2 {
			s.col.RefCounts.Decr(ent)
			continue
		}

		// An entry lock is held across this eval via the iterator, so the
		// buffer is grown rather than flushed here (spec §4.5).
		if scan.client != nil && scan.client.Free() < MinBufSpace {
			scan.client.EnsureSpace(MinBufSpace)
		}

		ctx := s.moduleContext(scan)
		reclaimed, unfetched := scan.mod.eval(ctx, ent, 0, 0)
		if s.metrics != nil {
			s.metrics.RecordPump(reclaimed, unfetched)
		}
		budget--
		items++
	}
}

package crawler

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// PaceConfig controls the scheduler's cooperative yielding (spec §5
// fairness & pacing).
type PaceConfig struct {
	CrawlsPerSleep int           // entries evaluated before a sleep; 0 disables sleeping
	SleepFor       time.Duration // duration slept when CrawlsPerSleep is exhausted
}

// DefaultPaceConfig mirrors the upstream defaults (1000 entries per
// 500-microsecond sleep).
func DefaultPaceConfig() PaceConfig {
	return PaceConfig{CrawlsPerSleep: 1000, SleepFor: 500 * time.Microsecond}
}

// activeScan is the single shared slot of spec §3's "Active Scan". Only the
// scheduler goroutine reads or mutates it once bound; Scheduler.mu guards
// the bind/unbind transitions.
type activeScan struct {
	mod       module
	scanType  ScanType
	client    *Client
	hashWalk  bool
	startedAt int64 // for ScanDuration metric
}

// Scheduler is the Control Surface + Scheduler Loop (C4/C6): a single
// background worker that pumps per-class cursors or drives a hash walk,
// guarded by one mutex that doubles as the pause/resume handle of spec
// §9 ("scheduler-mutex as pause handle").
type Scheduler struct {
	col     Collaborators
	log     *slog.Logger
	pace    PaceConfig
	metrics *Metrics

	mu      sync.Mutex
	cond    *sync.Cond
	cursors map[int]*cursor

	running     bool // worker goroutine alive
	wakeHash    bool // next wake should run the hash walk (crawler_count == -1)
	classCount  int  // number of enabled cursors == crawler_count when >= 0
	scan        *activeScan
	stopping    bool
	stopCh      chan struct{}

	blockAEUntil int64 // spec §4.6/§8 S6: autoexpire throttle deadline
}

// NewScheduler builds a scheduler over the given host-cache collaborators.
// It does not start the worker; call Start.
func NewScheduler(col Collaborators, pace PaceConfig, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	if col.Clock == nil {
		col.Clock = NewSystemClock()
	}
	classes := append([]int(nil), col.Classes...)
	sort.Ints(classes)
	col.Classes = classes
	s := &Scheduler{
		col:     col,
		log:     log,
		pace:    pace,
		cursors: make(map[int]*cursor, len(col.Classes)),
	}
	s.cond = sync.NewCond(&s.mu)
	for _, c := range col.Classes {
		s.cursors[c] = newCursor(c)
	}
	return s
}

// WithMetrics attaches a Metrics instance the scheduler reports into. Safe
// to call before Start only.
func (s *Scheduler) WithMetrics(m *Metrics) *Scheduler {
	s.metrics = m
	return s
}

// Start spawns the worker goroutine. It blocks until the worker has reached
// its first condvar wait, matching start_worker's handshake guarantee.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	ready := make(chan struct{})
	go s.run(ready)
	s.mu.Unlock()
	<-ready
	s.log.Info("crawler scheduler started", "classes", len(s.cursors))
}

// Stop signals the worker to exit at its next wake and, if wait is true,
// blocks until it has done so.
func (s *Scheduler) Stop(wait bool) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.stopping = true
	done := make(chan struct{})
	s.stopCh = done
	s.cond.Broadcast()
	s.mu.Unlock()
	if wait {
		<-done
	}
	s.log.Info("crawler scheduler stopped")
}

// Pause acquires the scheduler mutex, stalling the worker at its next
// pacing tick. Resume releases it. These rely on the invariant that the
// worker never holds mu across blocking I/O (spec §9).
func (s *Scheduler) Pause()  { s.mu.Lock() }
func (s *Scheduler) Resume() { s.mu.Unlock() }

// SubmitResult is the result code of Submit/Crawl (spec §4.6/§6).
type SubmitResult int

const (
	SubmitOK SubmitResult = iota
	SubmitRunning
	SubmitBadClass
	SubmitError
	SubmitNotStarted
)

func (r SubmitResult) String() string {
	switch r {
	case SubmitOK:
		return "OK"
	case SubmitRunning:
		return "RUNNING"
	case SubmitBadClass:
		return "BADCLASS"
	case SubmitError:
		return "ERROR"
	case SubmitNotStarted:
		return "NOTSTARTED"
	default:
		return "UNKNOWN"
	}
}

// autoExpireThrottle is how long a refused autoexpire submission blocks
// further autoexpire submissions (spec §4.6/§8 S6).
const autoExpireThrottle = 60 * time.Second

// Submit starts a scan of type t over classes, or a hash walk when hashWalk
// is true (classes is then ignored), with the given budget and optional
// client, per spec §4.6. remaining uses capRemaining to mean "cap to
// current class size".
func (s *Scheduler) Submit(classes []int, hashWalk bool, t ScanType, remaining int, client *Client) SubmitResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		s.recordSubmit(SubmitNotStarted)
		return SubmitNotStarted
	}

	now := s.col.Clock.Now()

	if s.scan != nil {
		if t == ScanAutoExpire && s.scan.scanType == ScanAutoExpire && !s.scan.hashWalk && !hashWalk {
			s.mergeClasses(classes, remaining)
			s.recordSubmit(SubmitOK)
			return SubmitOK
		}
		if t == ScanAutoExpire {
			s.blockAEUntil = now + int64(autoExpireThrottle/time.Second)
		}
		s.recordSubmit(SubmitRunning)
		return SubmitRunning
	}
	if t == ScanAutoExpire && now < s.blockAEUntil {
		s.recordSubmit(SubmitRunning)
		return SubmitRunning
	}

	if hashWalk && t != ScanMetadump && t != ScanMgdump {
		// spec §9 open question: expire's eval assumes a real hv/class id;
		// hash-walk passes zeros, so expire is never accepted here.
		s.recordSubmit(SubmitError)
		return SubmitError
	}

	mod := newModule(t, nil, now)

	if needsClient(mod) && client == nil {
		s.recordSubmit(SubmitError)
		return SubmitError
	}

	started := 0
	if hashWalk {
		s.wakeHash = true
		started = 1
	} else {
		for _, cid := range classes {
			cur, ok := s.cursors[cid]
			if !ok {
				s.recordSubmit(SubmitBadClass)
				return SubmitBadClass
			}
			if cur.enabled {
				continue
			}
			q := s.col.Queue(cid)
			n := remaining
			if n == capRemaining {
				n = q.Len()
			}
			if n != 0 {
				n++
			}
			cur.start(n)
			q.LinkTail(cur)
			s.classCount++
			started++
		}
	}

	if started == 0 {
		s.recordSubmit(SubmitNotStarted)
		return SubmitNotStarted
	}

	s.scan = &activeScan{mod: mod, scanType: t, client: client, hashWalk: hashWalk, startedAt: now}
	if s.col.Running != nil {
		s.col.Running.SetRunning(true)
	}
	s.cond.Broadcast()
	s.recordSubmit(SubmitOK)
	s.log.Info("crawler scan submitted", "type", t.String(), "classes", started, "hash_walk", hashWalk)
	return SubmitOK
}

func (s *Scheduler) recordSubmit(r SubmitResult) {
	if s.metrics != nil {
		s.metrics.RecordSubmit(r)
	}
}

// mergeClasses folds additional classes into an in-flight autoexpire scan,
// per spec §4.6's autoexpire merge rule.
func (s *Scheduler) mergeClasses(classes []int, remaining int) {
	for _, cid := range classes {
		cur, ok := s.cursors[cid]
		if !ok || cur.enabled {
			continue
		}
		q := s.col.Queue(cid)
		n := remaining
		if n == capRemaining {
			n = q.Len()
		}
		if n != 0 {
			n++
		}
		cur.start(n)
		q.LinkTail(cur)
		s.classCount++
	}
}

func needsClient(m module) bool { return m.needsClient() }

// run is the worker goroutine body: spec §4.4 steps 1-4 in a loop.
func (s *Scheduler) run(ready chan struct{}) {
	s.mu.Lock()
	for {
		if ready != nil {
			close(ready)
			ready = nil
		}
		for s.scan == nil && !s.wakeHash && !s.stopping {
			s.cond.Wait()
		}
		if s.stopping {
			s.running = false
			done := s.stopCh
			s.mu.Unlock()
			if done != nil {
				close(done)
			}
			return
		}

		if s.wakeHash {
			s.wakeHash = false
			s.runHashWalk()
			s.finalizeScan()
			continue
		}

		s.pumpClasses()
		s.finalizeScan()
	}
}

// pumpClasses drives step 3 of spec §4.4: round-robin over ascending class
// ids while any cursor remains enabled.
func (s *Scheduler) pumpClasses() {
	budget := s.pace.CrawlsPerSleep
	for s.classCount > 0 {
		for _, cid := range s.col.Classes {
			cur := s.cursors[cid]
			if !cur.enabled {
				continue
			}
			if !s.pumpOneClass(cur) {
				continue
			}
			// An entry was evaluated: apply pacing (spec §5).
			if s.pace.CrawlsPerSleep > 0 {
				budget--
				if budget <= 0 {
					s.mu.Unlock()
					time.Sleep(s.pace.SleepFor)
					s.mu.Lock()
					budget = s.pace.CrawlsPerSleep
				}
			} else {
				// Still cycle the lock so submit/pause/stop can run.
				s.mu.Unlock()
				s.mu.Lock()
			}
		}
	}
}

// pumpOneClass advances one class's cursor by at most one step, evaluating
// an entry if one was found and survived the refcount/trylock checks.
// Reports whether an entry was actually evaluated (the pacing trigger of
// spec §5); class termination, lock contention, and refcount races all
// report false since none of them evaluated an entry.
func (s *Scheduler) pumpOneClass(cur *cursor) bool {
	scan := s.scan
	mod := scan.mod

	if scan.client != nil && scan.client.Free() < MinBufSpace {
		if scan.client.Flush() != 0 {
			s.endClass(cur)
			return false
		}
	}
	if mod.needsClient() && scan.client == nil {
		s.endClass(cur)
		return false
	}

	classLock := s.col.ClassLock(cur.classID)
	classLock.Lock()

	q := s.col.Queue(cur.classID)
	ent, ok := q.CrawlQ(cur)
	if !ok {
		classLock.Unlock()
		s.endClass(cur)
		return false
	}
	if cur.stepDone() {
		classLock.Unlock()
		s.endClass(cur)
		return false
	}

	hv := s.col.Index.Hash(ent.Key())
	tok, ok := s.col.Locker.TryLock(hv)
	if !ok {
		classLock.Unlock()
		return false
	}

	if rc := s.col.RefCounts.Incr(ent); rc != 2 {
		s.col.RefCounts.Decr(ent)
		tok.Unlock()
		classLock.Unlock()
		return false
	}

	cur.checked++
	if !mod.needsLock() {
		classLock.Unlock()
	}

	ctx := s.moduleContext(scan)
	reclaimed, unfetched := mod.eval(ctx, ent, hv, cur.classID)
	if reclaimed {
		cur.reclaimed++
	}
	if unfetched {
		cur.unfetched++
	}
	if s.metrics != nil {
		s.metrics.RecordPump(reclaimed, unfetched)
	}

	tok.Unlock()
	if mod.needsLock() {
		classLock.Unlock()
	}
	return true
}

// endClass retires one class's cursor: spec §4.1's termination path.
func (s *Scheduler) endClass(cur *cursor) {
	cur.enabled = false
	q := s.col.Queue(cur.classID)
	q.UnlinkTail(cur)
	s.classCount--

	if s.col.Stats != nil {
		s.col.Stats.AddCrawlStats(cur.classID, cur.reclaimed, cur.unfetched, cur.checked)
	}
	if s.scan != nil {
		s.scan.mod.doneClass(s.moduleContext(s.scan), cur.classID)
	}
}

// finalizeScan runs step 4 of spec §4.4: drain the client, release it, and
// clear the active slot.
func (s *Scheduler) finalizeScan() {
	scan := s.scan
	if scan == nil {
		return
	}
	ctx := s.moduleContext(scan)
	scan.mod.finalize(ctx)

	if scan.client != nil {
		for scan.client.Used() > 0 && !scan.client.Closed() {
			if scan.client.Flush() != 0 {
				break
			}
		}
		scan.client.Release()
	}

	if s.metrics != nil {
		s.metrics.RecordScanComplete(scan.scanType, float64(s.col.Clock.Now()-scan.startedAt))
	}

	s.scan = nil
	if s.col.Running != nil {
		s.col.Running.SetRunning(false)
	}
}

func (s *Scheduler) moduleContext(scan *activeScan) *moduleContext {
	return &moduleContext{
		clock:     s.col.Clock,
		flush:     s.col.Flush,
		storage:   s.col.Storage,
		refcounts: s.col.RefCounts,
		reclaim:   s.col.Reclaim,
		client:    scan.client,
	}
}

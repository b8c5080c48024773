package crawler

import (
	"strconv"
)

// ScanType identifies one of the closed set of scan modules (spec §4.3).
type ScanType int

const (
	ScanExpire ScanType = iota
	ScanAutoExpire
	ScanMetadump
	ScanMgdump
)

func (t ScanType) String() string {
	switch t {
	case ScanExpire:
		return "expire"
	case ScanAutoExpire:
		return "autoexpire"
	case ScanMetadump:
		return "metadump"
	case ScanMgdump:
		return "mgdump"
	default:
		return "unknown"
	}
}

// moduleContext is everything a bound module's hooks may need, assembled
// once per scan by the scheduler.
type moduleContext struct {
	clock     Clock
	flush     FlushChecker
	storage   StorageValidator
	refcounts RefCounter
	reclaim   Reclaimer
	client    *Client
}

// module is the dispatch surface spec §4.3/§9 calls a "closed tagged
// variant" in place of a function-pointer table: one value per scan,
// selected by ScanType at submission time.
type module interface {
	needsLock() bool
	needsClient() bool
	// eval reports (reclaimed, unfetched) so the scheduler can update the
	// per-class cursor's own counters (spec §4.1); dump modules, which
	// never reclaim, always report (false, false).
	eval(ctx *moduleContext, ent Entry, hv uint32, classID int) (reclaimed, unfetched bool)
	doneClass(ctx *moduleContext, classID int)
	finalize(ctx *moduleContext)
}

func newModule(t ScanType, externalStats *ExpireStats, now int64) module {
	switch t {
	case ScanExpire, ScanAutoExpire:
		return newExpireModule(externalStats, now)
	case ScanMetadump:
		return &metadumpModule{}
	case ScanMgdump:
		return &mgdumpModule{}
	default:
		panic("crawler: unknown scan type")
	}
}

// ============================================================================
// expire / autoexpire
// ============================================================================

// ExpireStats is the per-class bucket of spec §3's "Expire Stats".
type ExpireStats struct {
	StartTime    int64
	EndTime      int64
	RunComplete  bool
	Seen         int
	Reclaimed    int
	NoExp        int
	TTLHourPlus  int
	Histo        [61]int
}

// ExpireReport is the overall expire/autoexpire run. IsExternal marks a
// report built by NewExpireReport; the expire module always allocates its
// own report, with IsExternal false.
type ExpireReport struct {
	IsExternal   bool
	StartTime    int64
	EndTime      int64
	CrawlComplete bool
	PerClass     map[int]*ExpireStats
}

type expireModule struct {
	report *ExpireReport
}

func newExpireModule(external *ExpireStats, now int64) *expireModule {
	_ = external // unused: the module always allocates its own report
	return &expireModule{
		report: &ExpireReport{
			StartTime: now,
			PerClass:  make(map[int]*ExpireStats),
		},
	}
}

// NewExpireReport returns an empty report marked IsExternal. Neither
// newModule nor Submit accepts a report, so the expire module never uses
// one built here.
func NewExpireReport() *ExpireReport {
	return &ExpireReport{IsExternal: true, PerClass: make(map[int]*ExpireStats)}
}

func (m *expireModule) statsFor(classID int, now int64) *ExpireStats {
	s, ok := m.report.PerClass[classID]
	if !ok {
		s = &ExpireStats{StartTime: now}
		m.report.PerClass[classID] = s
	}
	return s
}

func (m *expireModule) needsLock() bool   { return true }
func (m *expireModule) needsClient() bool { return false }

func (m *expireModule) eval(ctx *moduleContext, ent Entry, hv uint32, classID int) (reclaimed, unfetched bool) {
	now := ctx.clock.Now()
	s := m.statsFor(classID, now)

	isFlushed := ctx.flush.IsFlushed(ent)
	isValid := true
	if ent.HasExternalHeader() && ctx.storage != nil {
		isValid = ctx.storage.Validate(ent)
	}

	reclaimable := (ent.ExpTime() != 0 && ent.ExpTime() < now) || isFlushed || !isValid

	if reclaimable {
		s.Reclaimed++
		unfetched = !ent.Fetched() && !isFlushed
		if ent.HasExternalHeader() && ctx.storage != nil {
			ctx.storage.Delete(ent)
		}
		ctx.reclaim.UnlinkNoLock(ent, hv)
		ctx.reclaim.Remove(ent)
		return true, unfetched
	}

	s.Seen++
	ctx.refcounts.Decr(ent)
	switch {
	case ent.ExpTime() == 0:
		s.NoExp++
	case ent.ExpTime()-now > 3599:
		s.TTLHourPlus++
	default:
		bucket := int((ent.ExpTime() - now) / 60)
		if bucket >= 0 && bucket <= 60 {
			s.Histo[bucket]++
		}
	}
	return false, false
}

func (m *expireModule) doneClass(ctx *moduleContext, classID int) {
	s := m.statsFor(classID, ctx.clock.Now())
	s.EndTime = ctx.clock.Now()
	s.RunComplete = true
}

func (m *expireModule) finalize(ctx *moduleContext) {
	m.report.EndTime = ctx.clock.Now()
	m.report.CrawlComplete = true
}

// ============================================================================
// metadump
// ============================================================================

type metadumpModule struct {
	locked bool
}

func (m *metadumpModule) needsLock() bool   { return false }
func (m *metadumpModule) needsClient() bool { return true }

func (m *metadumpModule) eval(ctx *moduleContext, ent Entry, hv uint32, classID int) (reclaimed, unfetched bool) {
	isFlushed := ctx.flush.IsFlushed(ent)
	isValid := true
	if ent.HasExternalHeader() && ctx.storage != nil {
		isValid = ctx.storage.Validate(ent)
	}
	if (ent.ExpTime() != 0 && ent.ExpTime() < ctx.clock.Now()) || isFlushed || !isValid {
		ctx.refcounts.Decr(ent)
		return false, false
	}

	// spec §4.3 guard: a uriEncode'd key triples in the worst case (every
	// byte percent-encoded), so it must fit in half of MinBufSpace for the
	// rest of the fixed-format fields to have room; this can only trip for
	// a pathologically large key, since memcached bounds keys at 250 bytes.
	if len(ent.Key())*3 >= MinBufSpace/2 {
		ctx.refcounts.Decr(ent)
		return false, false
	}

	started := ctx.clock.ProcessStarted()
	line := make([]byte, 0, 256)
	line = append(line, "key="...)
	line = append(line, uriEncode(ent.Key())...)
	line = append(line, ' ')

	line = append(line, "exp="...)
	if ent.ExpTime() == 0 {
		line = append(line, '-', '1')
	} else {
		line = strconv.AppendInt(line, ent.ExpTime()+started, 10)
	}
	line = append(line, ' ')

	line = append(line, "la="...)
	line = strconv.AppendInt(line, ent.LastAccess()+started, 10)
	line = append(line, ' ')

	line = append(line, "cas="...)
	line = strconv.AppendUint(line, ent.CAS(), 10)
	line = append(line, ' ')

	if ent.Fetched() {
		line = append(line, "fetch=yes "...)
	} else {
		line = append(line, "fetch=no "...)
	}

	line = append(line, "cls="...)
	line = strconv.AppendInt(line, int64(classID), 10)
	line = append(line, ' ')

	line = append(line, "size="...)
	line = strconv.AppendUint(line, ent.Size(), 10)
	line = append(line, ' ')

	line = append(line, "flags="...)
	line = strconv.AppendUint(line, ent.Flags(), 10)

	if ent.HasExternalHeader() {
		line = append(line, ' ')
		line = append(line, "ext_page="...)
		line = strconv.AppendUint(line, uint64(ent.ExternalPage()), 10)
		line = append(line, ' ')
		line = append(line, "ext_offset="...)
		line = strconv.AppendUint(line, uint64(ent.ExternalOffset()), 10)
	}
	line = append(line, '\n')

	ctx.refcounts.Decr(ent)

	// spec §4.3 guard: the assembled record must fit MinBufSpace-1; this
	// mirrors the original's buffer-overrun assertion rather than letting
	// Append silently truncate it.
	if len(line) >= MinBufSpace-1 {
		return false, false
	}

	ctx.client.EnsureSpace(MinBufSpace)
	ctx.client.Append(line)
	return false, false
}

func (m *metadumpModule) doneClass(ctx *moduleContext, classID int) {}

func (m *metadumpModule) finalize(ctx *moduleContext) {
	if ctx.client == nil {
		return
	}
	if ctx.client.Flush() == 0 {
		if m.locked {
			ctx.client.EnsureSpace(len(lockedErr))
			ctx.client.Append([]byte(lockedErr))
		} else {
			ctx.client.EnsureSpace(len(metaEnd))
			ctx.client.Append([]byte(metaEnd))
		}
	}
}

// setLocked marks that the hash iterator was unavailable (spec §4.5/§7).
func (m *metadumpModule) setLocked() { m.locked = true }

const (
	metaEnd   = "END\r\n"
	mgEnd     = "EN\r\n"
	lockedErr = "ERROR locked try again later\r\n"
)

// ============================================================================
// mgdump
// ============================================================================

type mgdumpModule struct {
	locked bool
}

func (m *mgdumpModule) needsLock() bool   { return false }
func (m *mgdumpModule) needsClient() bool { return true }

func (m *mgdumpModule) eval(ctx *moduleContext, ent Entry, hv uint32, classID int) (reclaimed, unfetched bool) {
	isFlushed := ctx.flush.IsFlushed(ent)
	if (ent.ExpTime() != 0 && ent.ExpTime() < ctx.clock.Now()) || isFlushed {
		ctx.refcounts.Decr(ent)
		return false, false
	}

	line := make([]byte, 0, 64)
	line = append(line, "mg "...)
	if ent.KeyBinary() {
		line = append(line, base64Encode(ent.Key())...)
		line = append(line, ' ', 'b', '\r', '\n')
	} else {
		line = append(line, ent.Key()...)
		line = append(line, '\r', '\n')
	}

	ctx.refcounts.Decr(ent)

	ctx.client.EnsureSpace(MinBufSpace)
	ctx.client.Append(line)
	return false, false
}

func (m *mgdumpModule) doneClass(ctx *moduleContext, classID int) {}

func (m *mgdumpModule) finalize(ctx *moduleContext) {
	if ctx.client == nil {
		return
	}
	if ctx.client.Flush() == 0 {
		if m.locked {
			ctx.client.EnsureSpace(len(lockedErr))
			ctx.client.Append([]byte(lockedErr))
		} else {
			ctx.client.EnsureSpace(len(mgEnd))
			ctx.client.Append([]byte(mgEnd))
		}
	}
}

func (m *mgdumpModule) setLocked() { m.locked = true }

// lockable is implemented by the dump modules so the hash-walk path can
// flag "iterator unavailable" without a type switch on every call site.
type lockable interface {
	setLocked()
}

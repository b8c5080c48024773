package crawler

import (
	"strings"
	"testing"
)

func newTestModuleContext(clock Clock, flush FlushChecker, refcounts RefCounter, reclaim Reclaimer, client *Client) *moduleContext {
	return &moduleContext{
		clock:     clock,
		flush:     flush,
		refcounts: refcounts,
		reclaim:   reclaim,
		client:    client,
	}
}

func TestExpireModuleReclaimsExpiredEntry(t *testing.T) {
	clock := &fakeClock{now: 1000}
	flush := newFakeFlush()
	refcounts := newFakeRefCounts()
	queues := map[int]*fakeQueue{1: newFakeQueue()}
	reclaim := newFakeReclaim(queues)

	ent := &fakeEntry{key: []byte("foo"), classID: 1, expTime: 999}
	queues[1].items = append(queues[1].items, ent)

	mod := newExpireModule(nil, clock.Now())
	ctx := newTestModuleContext(clock, flush, refcounts, reclaim, nil)

	reclaimed, unfetched := mod.eval(ctx, ent, 0, 1)
	if !reclaimed {
		t.Fatal("expected expired entry to be reclaimed")
	}
	if !unfetched {
		t.Fatal("expected never-fetched entry to be counted unfetched")
	}

	stats := mod.report.PerClass[1]
	if stats.Reclaimed != 1 || stats.Seen != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(reclaim.unlinked) != 1 || len(reclaim.removed) != 1 {
		t.Fatalf("expected one unlink and one remove, got %d/%d", len(reclaim.unlinked), len(reclaim.removed))
	}
}

func TestExpireModuleBucketsLiveEntry(t *testing.T) {
	clock := &fakeClock{now: 1000}
	flush := newFakeFlush()
	refcounts := newFakeRefCounts()
	reclaim := newFakeReclaim(map[int]*fakeQueue{})

	ent := &fakeEntry{key: []byte("foo"), classID: 2, expTime: 1000 + 30} // 30s TTL left, bucket 0
	refcounts.seed(ent, 2)

	mod := newExpireModule(nil, clock.Now())
	ctx := newTestModuleContext(clock, flush, refcounts, reclaim, nil)

	reclaimed, unfetched := mod.eval(ctx, ent, 0, 2)
	if reclaimed || unfetched {
		t.Fatal("live entry must not be reported as reclaimed/unfetched")
	}

	stats := mod.report.PerClass[2]
	if stats.Seen != 1 {
		t.Fatalf("Seen = %d, want 1", stats.Seen)
	}
	if stats.Histo[0] != 1 {
		t.Fatalf("expected bucket 0 to receive the entry, got %+v", stats.Histo)
	}
}

func TestExpireModuleNoExpBucket(t *testing.T) {
	clock := &fakeClock{now: 1000}
	ent := &fakeEntry{key: []byte("foo"), classID: 1, expTime: 0}
	mod := newExpireModule(nil, clock.Now())
	ctx := newTestModuleContext(clock, newFakeFlush(), newFakeRefCounts(), newFakeReclaim(nil), nil)

	mod.eval(ctx, ent, 0, 1)
	if mod.report.PerClass[1].NoExp != 1 {
		t.Fatal("expired-never entry should tally into NoExp")
	}
}

func TestMetadumpRecordFormat(t *testing.T) {
	conn := &fakeConn{}
	client := OpenClient(conn)
	clock := &fakeClock{now: 500, started: 100}

	ent := &fakeEntry{
		key: []byte("foo"), classID: 3, expTime: 0, lastAcc: 400,
		cas: 7, size: 64, flags: 1, fetched: false,
	}
	refcounts := newFakeRefCounts()

	mod := &metadumpModule{}
	ctx := newTestModuleContext(clock, newFakeFlush(), refcounts, newFakeReclaim(nil), client)
	mod.eval(ctx, ent, 0, 3)
	mod.finalize(ctx)
	client.Flush()

	out := string(conn.bytes())
	wantLine := "key=foo exp=-1 la=500 cas=7 fetch=no cls=3 size=64 flags=1\n"
	if !strings.HasPrefix(out, wantLine) {
		t.Fatalf("record = %q, want prefix %q", out, wantLine)
	}
	if !strings.HasSuffix(out, metaEnd) {
		t.Fatalf("expected trailer %q, got %q", metaEnd, out)
	}

	// Round-trip: splitting on spaces yields 8 key=value tokens in order.
	line := strings.TrimSuffix(wantLine, "\n")
	tokens := strings.Split(line, " ")
	if len(tokens) != 8 {
		t.Fatalf("expected 8 tokens, got %d: %v", len(tokens), tokens)
	}
}

func TestMetadumpSkipsExpiredEntry(t *testing.T) {
	conn := &fakeConn{}
	client := OpenClient(conn)
	clock := &fakeClock{now: 1000}
	ent := &fakeEntry{key: []byte("foo"), classID: 1, expTime: 1}
	refcounts := newFakeRefCounts()
	refcounts.seed(ent, 2)

	mod := &metadumpModule{}
	ctx := newTestModuleContext(clock, newFakeFlush(), refcounts, newFakeReclaim(nil), client)
	mod.eval(ctx, ent, 0, 1)
	mod.finalize(ctx)
	client.Flush()

	if string(conn.bytes()) != metaEnd {
		t.Fatalf("expected only the trailer for a skipped entry, got %q", conn.bytes())
	}
}

func TestMetadumpLockedEmitsErrorLine(t *testing.T) {
	conn := &fakeConn{}
	client := OpenClient(conn)
	mod := &metadumpModule{}
	mod.setLocked()
	ctx := &moduleContext{clock: &fakeClock{}, client: client}
	mod.finalize(ctx)
	client.Flush()

	if string(conn.bytes()) != lockedErr {
		t.Fatalf("got %q, want %q", conn.bytes(), lockedErr)
	}
}

func TestMgdumpAsciiKey(t *testing.T) {
	conn := &fakeConn{}
	client := OpenClient(conn)
	clock := &fakeClock{now: 100}
	ent := &fakeEntry{key: []byte("foo"), classID: 1}
	refcounts := newFakeRefCounts()
	refcounts.seed(ent, 2)

	mod := &mgdumpModule{}
	ctx := newTestModuleContext(clock, newFakeFlush(), refcounts, newFakeReclaim(nil), client)
	mod.eval(ctx, ent, 0, 1)
	mod.finalize(ctx)
	client.Flush()

	want := "mg foo\r\n" + mgEnd
	if got := string(conn.bytes()); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

// TestMgdumpBinaryKeyScenarioS3 matches spec §8 scenario S3.
func TestMgdumpBinaryKeyScenarioS3(t *testing.T) {
	conn := &fakeConn{}
	client := OpenClient(conn)
	clock := &fakeClock{now: 100}
	ent := &fakeEntry{key: []byte{0x00, 0xFF}, classID: 1, binary: true}
	refcounts := newFakeRefCounts()
	refcounts.seed(ent, 2)

	mod := &mgdumpModule{}
	ctx := newTestModuleContext(clock, newFakeFlush(), refcounts, newFakeReclaim(nil), client)
	mod.eval(ctx, ent, 0, 1)
	mod.finalize(ctx)
	client.Flush()

	want := "mg AP8= b\r\n" + mgEnd
	if got := string(conn.bytes()); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

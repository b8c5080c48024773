package crawler

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestHashWalkMgdumpEmitsAllLiveEntries(t *testing.T) {
	tc := newTestCollaborators(nil)

	live1 := &fakeEntry{key: []byte("a"), classID: 1}
	live2 := &fakeEntry{key: []byte("b"), classID: 1}
	expired := &fakeEntry{key: []byte("c"), classID: 1, expTime: 1}
	tc.clock.now = 1000
	tc.refcounts.seed(live1, 2)
	tc.refcounts.seed(live2, 2)
	tc.refcounts.seed(expired, 2)

	tc.setIterator(newFakeIterator(1, live1, live2, expired))

	conn := &fakeConn{}
	client := OpenClient(conn)

	s := NewScheduler(tc.collaborators(), testPace(), slog.Default())
	s.Start()
	defer s.Stop(true)

	if res := s.Submit(nil, true, ScanMgdump, 0, client); res != SubmitOK {
		t.Fatalf("Submit = %v, want OK", res)
	}

	deadline := time.Now().Add(time.Second)
	for tc.running.last() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	out := string(conn.bytes())
	if !strings.Contains(out, "mg a\r\n") || !strings.Contains(out, "mg b\r\n") {
		t.Fatalf("expected both live entries in output, got %q", out)
	}
	if strings.Contains(out, "mg c\r\n") {
		t.Fatal("expired entry must not be emitted")
	}
	if !strings.HasSuffix(out, mgEnd) {
		t.Fatalf("expected trailer %q, got %q", mgEnd, out)
	}
}

package crawler

import (
	"testing"
	"time"
)

func TestParseScanTypeKnownNames(t *testing.T) {
	cases := map[string]ScanType{
		"expire":     ScanExpire,
		"autoexpire": ScanAutoExpire,
		"metadump":   ScanMetadump,
		"mgdump":     ScanMgdump,
		"MgDump":     ScanMgdump,
	}
	for name, want := range cases {
		got, err := ParseScanType(name)
		if err != nil {
			t.Fatalf("ParseScanType(%q) error: %v", name, err)
		}
		if got != want {
			t.Fatalf("ParseScanType(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestParseScanTypeUnknownNameErrors(t *testing.T) {
	if _, err := ParseScanType("bogus"); err == nil {
		t.Fatal("expected an error for an unknown scan type name")
	}
}

func TestParseSlabsSpecSingleIDExpandsToFourSublists(t *testing.T) {
	classes, ok := parseSlabsSpec("3")
	if !ok {
		t.Fatal("expected valid spec")
	}
	want := []int{3 | TempLRU, 3 | HotLRU, 3 | WarmLRU, 3 | ColdLRU}
	if len(classes) != len(want) {
		t.Fatalf("got %v, want %v", classes, want)
	}
	for i, c := range want {
		if classes[i] != c {
			t.Fatalf("got %v, want %v", classes, want)
		}
	}
}

func TestParseSlabsSpecCommaList(t *testing.T) {
	classes, ok := parseSlabsSpec("1, 2")
	if !ok {
		t.Fatal("expected valid spec")
	}
	if len(classes) != 8 {
		t.Fatalf("expected 8 expanded class ids, got %d", len(classes))
	}
}

func TestParseSlabsSpecRejectsOutOfRange(t *testing.T) {
	if _, ok := parseSlabsSpec("0"); ok {
		t.Fatal("class id below PowerSmallest must be rejected")
	}
	if _, ok := parseSlabsSpec("9999"); ok {
		t.Fatal("class id above MaxSlabClasses must be rejected")
	}
}

func TestParseSlabsSpecRejectsGarbage(t *testing.T) {
	if _, ok := parseSlabsSpec("nope"); ok {
		t.Fatal("non-numeric spec must be rejected")
	}
	if _, ok := parseSlabsSpec(""); ok {
		t.Fatal("empty spec must be rejected")
	}
}

func TestCrawlAllDispatchesEveryClass(t *testing.T) {
	tc := newTestCollaborators([]int{1, 2})
	s := NewScheduler(tc.collaborators(), testPace(), nil)
	s.Start()
	defer s.Stop(true)

	if res := s.Crawl("all", ScanExpire, 0, nil); res != SubmitOK {
		t.Fatalf("Crawl(all) = %v, want OK", res)
	}
}

func TestCrawlHashDispatchesHashWalk(t *testing.T) {
	tc := newTestCollaborators(nil)
	tc.setExpanding(true) // force an immediate, deterministic finish
	s := NewScheduler(tc.collaborators(), testPace(), nil)
	s.Start()
	defer s.Stop(true)

	conn := &fakeConn{}
	client := OpenClient(conn)
	if res := s.Crawl("hash", ScanMetadump, 0, client); res != SubmitOK {
		t.Fatalf("Crawl(hash) = %v, want OK", res)
	}
}

// TestCrawlExplicitClassIDReachesTaggedSublists matches spec §4.6's
// explicit-class-number submission form: Crawl("3", …) must resolve
// against the host cache's LRU-sublist-tagged cursors (ExpandSizeClass),
// not bare size-class ids, and actually reclaim an expired entry seeded
// into one of the four sublists.
func TestCrawlExplicitClassIDReachesTaggedSublists(t *testing.T) {
	classes := ExpandSizeClass(3)
	tc := newTestCollaborators(classes)
	hot := 3 | HotLRU
	ent := &fakeEntry{key: []byte("foo"), classID: hot, expTime: -1}
	tc.queues[hot].items = append(tc.queues[hot].items, ent)

	s := NewScheduler(tc.collaborators(), testPace(), nil)
	s.Start()
	defer s.Stop(true)

	if res := s.Crawl("3", ScanExpire, 0, nil); res != SubmitOK {
		t.Fatalf("Crawl(3) = %v, want OK", res)
	}

	waitForIdle(t, tc, time.Second)

	if len(tc.reclaim.removed) != 1 {
		t.Fatalf("expected the seeded entry to be reclaimed, got %d removals", len(tc.reclaim.removed))
	}
}

func TestCrawlBadSpecReturnsBadClass(t *testing.T) {
	tc := newTestCollaborators([]int{1})
	s := NewScheduler(tc.collaborators(), testPace(), nil)
	s.Start()
	defer s.Stop(true)

	if res := s.Crawl("nope", ScanExpire, 0, nil); res != SubmitBadClass {
		t.Fatalf("Crawl(nope) = %v, want BADCLASS", res)
	}
}

package crawler

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseScanType maps the admin surface's scan type names to ScanType
// constants, the Go equivalent of lru_crawler_crawl's subcommand string.
func ParseScanType(name string) (ScanType, error) {
	switch strings.ToLower(name) {
	case "expire":
		return ScanExpire, nil
	case "autoexpire":
		return ScanAutoExpire, nil
	case "metadump":
		return ScanMetadump, nil
	case "mgdump":
		return ScanMgdump, nil
	default:
		return 0, fmt.Errorf("crawler: unknown scan type %q", name)
	}
}

// LRU sublist tags (spec glossary "Class / LRU sublist"): a class id's low
// bits select the size class, its high bits select which of the four
// per-size sublists it addresses.
const (
	ColdLRU = 0
	WarmLRU = 64
	HotLRU  = 128
	TempLRU = 192
)

// PowerSmallest and MaxSlabClasses bound the parseable class id range for
// Crawl's explicit-id form.
const (
	PowerSmallest  = 1
	MaxSlabClasses = 64
)

// ExpandSizeClass returns the four LRU-sublist ids a size class addresses
// (base|TempLRU, base|HotLRU, base|WarmLRU, base|ColdLRU), matching how
// memcached indexes lru_locks[]/crawlers[] by class|LRU tag rather than by
// bare size class. A host cache's Collaborators.Classes must be built from
// this expansion (one entry per sublist, not one per bare size class) for
// Crawl's explicit-id submission form to resolve against live cursors.
func ExpandSizeClass(base int) []int {
	return []int{base | TempLRU, base | HotLRU, base | WarmLRU, base | ColdLRU}
}

// Crawl is the high-level submission API of spec §4.6: it parses a slabs
// spec string ("all", "hash", or a comma-separated list of class ids) and
// dispatches to Submit.
func (s *Scheduler) Crawl(slabsSpec string, t ScanType, remaining int, client *Client) SubmitResult {
	switch slabsSpec {
	case "all":
		return s.Submit(s.col.Classes, false, t, remaining, client)
	case "hash":
		return s.Submit(nil, true, t, remaining, client)
	default:
		classes, ok := parseSlabsSpec(slabsSpec)
		if !ok {
			s.recordSubmit(SubmitBadClass)
			return SubmitBadClass
		}
		return s.Submit(classes, false, t, remaining, client)
	}
}

// parseSlabsSpec expands a comma-separated list of size-class ids into the
// four LRU-sublist class ids each one addresses.
func parseSlabsSpec(spec string) ([]int, bool) {
	var classes []int
	for _, p := range strings.Split(spec, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		sid, err := strconv.ParseUint(p, 10, 32)
		if err != nil || sid < PowerSmallest || sid >= MaxSlabClasses {
			return nil, false
		}
		classes = append(classes, ExpandSizeClass(int(sid))...)
	}
	if len(classes) == 0 {
		return nil, false
	}
	return classes, true
}

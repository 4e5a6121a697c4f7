package migrate

import (
	"fmt"
	"strings"
	"sync"
)

// summaryKinds fixes the reporting order.
var summaryKinds = []string{
	"users", "labels", "groupings", "periods",
	"work items", "sub-items", "comments", "attachments", "relations",
}

// Count is migrated-of-total for one entity kind.
type Count struct {
	Migrated int
	Total    int
}

// Summary accumulates per-kind counts for one project run. Safe for
// concurrent use; the story fan-out records from several goroutines.
type Summary struct {
	mu     sync.Mutex
	counts map[string]*Count
}

func NewSummary() *Summary {
	return &Summary{counts: make(map[string]*Count)}
}

// Record counts one attempted entity of a kind, migrated or not.
func (s *Summary) Record(kind string, migrated bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counts[kind]
	if !ok {
		c = &Count{}
		s.counts[kind] = c
	}
	c.Total++
	if migrated {
		c.Migrated++
	}
}

// Get returns the count for a kind.
func (s *Summary) Get(kind string) Count {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.counts[kind]; ok {
		return *c
	}
	return Count{}
}

// String renders one line per attempted kind, in a fixed order.
func (s *Summary) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var b strings.Builder
	for _, kind := range summaryKinds {
		c, ok := s.counts[kind]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "  %-12s %d/%d\n", kind, c.Migrated, c.Total)
	}
	return b.String()
}

// Package filter selects growth events for display.
package filter

import (
	"path/filepath"
	"slices"

	"github.com/dyluth/accrete/pkg/events"
)

// Criteria defines filtering criteria for growth events.
// All filters are ANDed together - an event must match ALL criteria to pass.
type Criteria struct {
	KindGlob      string // Glob pattern for event kind, empty = no filter
	AggregateGlob string // Glob pattern for aggregate id, empty = no filter
	Pathways      []int  // Pathway indices, empty = no filter
}

// Matches returns true if the event matches all filter criteria.
// Empty/zero criteria values are treated as "match all" for that criterion.
func (c *Criteria) Matches(ev *events.Event) bool {
	if c.KindGlob != "" {
		matched, err := filepath.Match(c.KindGlob, string(ev.Kind))
		if err != nil || !matched {
			return false
		}
	}

	// Events without an aggregate id (run_completed, stopped at entry) never match a pattern.
	if c.AggregateGlob != "" {
		matched, err := filepath.Match(c.AggregateGlob, ev.AggregateID)
		if err != nil || !matched {
			return false
		}
	}

	if len(c.Pathways) > 0 && !slices.Contains(c.Pathways, ev.Pathway) {
		return false
	}

	return true
}

// HasFilters returns true if any filters are active.
func (c *Criteria) HasFilters() bool {
	return c.KindGlob != "" || c.AggregateGlob != "" || len(c.Pathways) > 0
}

// Validate rejects malformed glob patterns.
func (c *Criteria) Validate() error {
	for _, pattern := range []string{c.KindGlob, c.AggregateGlob} {
		if pattern == "" {
			continue
		}
		if _, err := filepath.Match(pattern, ""); err != nil {
			return err
		}
	}
	return nil
}

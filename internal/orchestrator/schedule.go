package orchestrator

import "github.com/dyluth/accrete/internal/config"

const (
	// AutoOrientations is the first orientation count in auto mode.
	AutoOrientations = 8

	// OrientationStep is added between pathways in auto mode.
	OrientationStep = 8

	// MaxOrientations caps auto escalation.
	MaxOrientations = 256
)

// Schedule tracks the orientation count across growth steps or pathways. Fixed
// schedules never change.
type Schedule struct {
	auto    bool
	current int
}

// NewSchedule starts a schedule from the configured orientations.
func NewSchedule(o config.Orientations) *Schedule {
	if o.Auto || o.Count <= 0 {
		return &Schedule{auto: true, current: AutoOrientations}
	}
	return &Schedule{current: o.Count}
}

// Current is the count to request now.
func (s *Schedule) Current() int {
	return s.current
}

// Auto reports whether the schedule escalates.
func (s *Schedule) Auto() bool {
	return s.auto
}

// Double escalates multiplicatively, used between fixed-composition steps.
func (s *Schedule) Double() {
	if s.auto {
		s.current = min(s.current*2, MaxOrientations)
	}
}

// Step escalates additively, used between pathways.
func (s *Schedule) Step() {
	if s.auto {
		s.current = min(s.current+OrientationStep, MaxOrientations)
	}
}

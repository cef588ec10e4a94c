package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind names a growth transition.
type Kind string

const (
	// KindPathwayStarted is published when a pathway is seeded with its first unit
	KindPathwayStarted Kind = "pathway_started"

	// KindStepStarted is published before a unit is added to the current seeds
	KindStepStarted Kind = "step_started"

	// KindStepCompleted is published after a growth step with the number of retained seeds
	KindStepCompleted Kind = "step_completed"

	// KindPathwayDone is published when every unit of a pathway has been consumed or the
	// seed list ran empty
	KindPathwayDone Kind = "pathway_done"

	// KindStopped is published when a stop request or cancellation ends the run
	KindStopped Kind = "stopped"

	// KindRunCompleted is published once the whole window of pathways has been processed
	KindRunCompleted Kind = "run_completed"
)

// Validate checks the kind is one of the defined values.
func (k Kind) Validate() error {
	switch k {
	case KindPathwayStarted, KindStepStarted, KindStepCompleted, KindPathwayDone, KindStopped, KindRunCompleted:
		return nil
	default:
		return fmt.Errorf("invalid event kind: %q", k)
	}
}

// Event is one growth transition.
type Event struct {
	ID           string `json:"id"`                     // UUID
	RunID        string `json:"run_id"`                 // Run name the event belongs to
	Kind         Kind   `json:"kind"`                   // Transition
	AggregateID  string `json:"aggregate_id,omitempty"` // Aggregate id after the step, e.g. ag_a_002_b_001
	Pathway      int    `json:"pathway"`                // Pathway index, -1 for fixed-composition runs
	Step         int    `json:"step,omitempty"`         // Units placed so far
	Orientations int    `json:"orientations,omitempty"` // Orientations requested per seed
	Seeds        int    `json:"seeds"`                  // Seeds retained after the step
	Message      string `json:"message,omitempty"`      // Free-form detail
	CreatedAtMs  int64  `json:"created_at_ms"`          // Unix timestamp in milliseconds
}

// NewEvent creates an event with a fresh id and the current time.
func NewEvent(run string, kind Kind) *Event {
	return &Event{
		ID:          uuid.New().String(),
		RunID:       run,
		Kind:        kind,
		CreatedAtMs: time.Now().UnixMilli(),
	}
}

// Validate checks the event's fields are well formed.
func (e *Event) Validate() error {
	if _, err := uuid.Parse(e.ID); err != nil {
		return fmt.Errorf("invalid event id: %w", err)
	}
	if e.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := e.Kind.Validate(); err != nil {
		return err
	}
	if e.Seeds < 0 {
		return fmt.Errorf("seeds must be >= 0, got %d", e.Seeds)
	}
	return nil
}

// CreatedAt returns the creation time.
func (e *Event) CreatedAt() time.Time {
	return time.UnixMilli(e.CreatedAtMs)
}

package events

import "fmt"

// Channel pattern: accrete:{run}:{event_type}_events

// GrowthEventsChannel returns the Pub/Sub channel name for growth events.
// Pattern: accrete:{run}:growth_events
func GrowthEventsChannel(run string) string {
	return fmt.Sprintf("accrete:%s:growth_events", run)
}

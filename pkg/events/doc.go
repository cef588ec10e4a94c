// Package events carries growth progress over Redis Pub/Sub.
//
// A running growth job publishes one Event per transition (pathway started, step
// started and completed, pathway done, stop observed, run completed) to a channel
// namespaced by the run name, so several runs can share one Redis server:
//
//	accrete:{run}:growth_events
//
// Delivery is at-most-once. Nothing is written to Redis keys; a subscriber that is not
// listening when an event is published never sees it. The directory tree remains the
// only record of a run.
//
// # Usage Example
//
//	client, err := events.NewClientFromURL("redis://localhost:6379/0", "water-cluster")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	ev := events.NewEvent("water-cluster", events.KindStepStarted)
//	ev.AggregateID = "ag_a_002"
//	ev.Pathway = 0
//	ev.Step = 2
//	if err := client.Publish(ctx, ev); err != nil {
//		log.Printf("event dropped: %v", err)
//	}
package events

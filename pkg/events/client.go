package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Client publishes and subscribes to the growth events of one run.
// The client is thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	rdb *redis.Client
	run string
}

// NewClient creates a new events client for the specified run.
//
// Returns an error if run is empty.
func NewClient(redisOpts *redis.Options, run string) (*Client, error) {
	if run == "" {
		return nil, fmt.Errorf("run name cannot be empty")
	}

	return &Client{
		rdb: redis.NewClient(redisOpts),
		run: run,
	}, nil
}

// NewClientFromURL parses a redis:// URL and creates a client for run.
func NewClientFromURL(url, run string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return NewClient(opts, run)
}

// Run returns the run name the client is scoped to.
func (c *Client) Run() string {
	return c.run
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Publish validates ev and publishes it on the run's growth channel.
// The event's RunID is forced to the client's run.
func (c *Client) Publish(ctx context.Context, ev *Event) error {
	ev.RunID = c.run
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := c.rdb.Publish(ctx, GrowthEventsChannel(c.run), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish growth event: %w", err)
	}
	return nil
}

// Subscription represents an active Pub/Sub subscription to growth events.
// Caller must call Close() when done to clean up resources.
type Subscription struct {
	events <-chan *Event
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of growth events. It is closed when the subscription ends.
func (s *Subscription) Events() <-chan *Event {
	return s.events
}

// Errors returns the channel of subscription errors.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and cleans up resources. Implements io.Closer.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// Subscribe subscribes to the run's growth events.
// Caller must call subscription.Close() when done. Context cancellation also stops
// the subscription.
//
// The subscription is confirmed before Subscribe returns, so events published after
// it returns are delivered. Events are delivered on a buffered channel (size 10).
func (c *Client) Subscribe(ctx context.Context) (*Subscription, error) {
	pubsub := c.rdb.Subscribe(ctx, GrowthEventsChannel(c.run))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to growth events: %w", err)
	}

	eventsChan := make(chan *Event, 10)
	errorsChan := make(chan error, 10)

	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					// Skip the message, report on the error channel
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal growth event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &ev:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

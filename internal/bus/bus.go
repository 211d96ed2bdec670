// Package bus publishes recommendation events for downstream analytics
// consumers. The orchestrator emits serve and assignment events; no
// consumer inside this service depends on them, so publishing is
// fire-and-forget.
package bus

import (
	"context"
	"time"
)

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Bus defines the interface for event bus implementations.
type Bus interface {
	// Publish publishes an event to a topic.
	Publish(ctx context.Context, topic string, event Event) error

	// Subscribe registers a handler for events on a topic.
	Subscribe(ctx context.Context, topic string, handler Handler) error

	// Close closes the bus and releases resources.
	Close() error
}

// Event represents a bus event.
type Event struct {
	// ID is the unique event identifier.
	ID string `json:"id"`

	// Type is the event type, matching the topic it is published on.
	Type string `json:"type"`

	// Source is the service that generated the event.
	Source string `json:"source"`

	// Timestamp is when the event was created (unix millis).
	Timestamp int64 `json:"timestamp"`

	// Payload contains the event data.
	Payload any `json:"payload"`
}

// NewEvent creates an event stamped with the current time.
func NewEvent(id, eventType string, payload any) Event {
	return Event{
		ID:        id,
		Type:      eventType,
		Source:    "dishcovery",
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}
}

// Topics emitted by the recommendation core.
const (
	// TopicRecommendServed carries one event per successful
	// recommendation response.
	TopicRecommendServed = "recommend.served"

	// TopicExperimentAssigned carries one event per request that
	// resolved an experiment assignment.
	TopicExperimentAssigned = "experiment.assigned"
)

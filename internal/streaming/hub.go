package streaming

import (
	"context"
	"slices"
	"time"
)

// Event is a real-time canvas change broadcast to subscribers.
type Event struct {
	Kind         string    `json:"type"`
	ElementID    string    `json:"elementId,omitempty"`
	ConversionID string    `json:"conversionId,omitempty"`
	Source       string    `json:"source,omitempty"`
	Payload      any       `json:"payload,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// EventFilter specifies which events a subscriber wants to receive.
type EventFilter struct {
	ElementID string   `json:"elementId,omitempty"`
	Kinds     []string `json:"kinds,omitempty"`
}

// EventHub provides pub/sub for canvas events.
type EventHub interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan Event, func(), error)
}

// matchFilter returns true if the event passes the filter criteria.
func matchFilter(f EventFilter, e Event) bool {
	if f.ElementID != "" && f.ElementID != e.ElementID {
		return false
	}
	if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, e.Kind) {
		return false
	}
	return true
}

func stamp(e Event) Event {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return e
}

package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	ObservationCreated       = "observation.created"
	ObservationStatusChanged = "observation.status_changed"
	ObservationUpdated       = "observation.updated"
	ObservationDeleted       = "observation.deleted"
	AssigneeAdded            = "assignee.added"
	ThemeChanged             = "theme.changed"
)

type EventPayload map[string]any

// Event describes one applied mutation. It is emitted after the new state
// has been persisted.
type Event struct {
	TS         time.Time    `json:"ts"`
	Type       string       `json:"type"`
	EntityKind string       `json:"entity_kind"`
	EntityID   string       `json:"entity_id,omitempty"`
	Payload    EventPayload `json:"payload,omitempty"`
}

type Sink interface {
	Append(ctx context.Context, evt Event) error
}

// Writer stamps events and hands them to Sink. A zero Writer drops events.
type Writer struct {
	Sink Sink
	Now  func() time.Time
}

func (w Writer) Append(ctx context.Context, evtType, entityKind, entityID string, payload EventPayload) error {
	if w.Sink == nil {
		return nil
	}
	if w.Now == nil {
		w.Now = time.Now
	}
	if payload == nil {
		payload = EventPayload{}
	}
	return w.Sink.Append(ctx, Event{
		TS:         w.Now().UTC(),
		Type:       evtType,
		EntityKind: entityKind,
		EntityID:   entityID,
		Payload:    payload,
	})
}

// LogSink writes events to a structured logger at debug level.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Append(ctx context.Context, evt Event) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{
		slog.String("type", evt.Type),
		slog.String("entity_kind", evt.EntityKind),
	}
	if evt.EntityID != "" {
		attrs = append(attrs, slog.String("entity_id", evt.EntityID))
	}
	for k, v := range evt.Payload {
		attrs = append(attrs, slog.Any(k, v))
	}
	logger.DebugContext(ctx, "state changed", attrs...)
	return nil
}

// Recorder keeps events in memory and lets consumers subscribe to new ones.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	subs   []chan Event
}

func (r *Recorder) Append(_ context.Context, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	for _, ch := range r.subs {
		select {
		case ch <- evt:
		default:
		}
	}
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Subscribe returns a buffered channel of future events. Slow consumers
// miss events rather than block writers.
func (r *Recorder) Subscribe(buffer int) <-chan Event {
	ch := make(chan Event, buffer)
	r.mu.Lock()
	r.subs = append(r.subs, ch)
	r.mu.Unlock()
	return ch
}

// Multi fans an event out to every sink and returns the first error.
type Multi []Sink

func (m Multi) Append(ctx context.Context, evt Event) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Append(ctx, evt); err != nil && first == nil {
			first = err
		}
	}
	return first
}

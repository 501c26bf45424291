package events_test

import (
	"context"
	"testing"
	"time"

	"auditline/internal/events"
)

func TestWriterStampsAndRecords(t *testing.T) {
	rec := &events.Recorder{}
	fixed := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	w := events.Writer{Sink: rec, Now: func() time.Time { return fixed }}
	sub := rec.Subscribe(1)
	if err := w.Append(context.Background(), events.AssigneeAdded, "assignee", "Bob", nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	got := rec.Events()
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].Type != events.AssigneeAdded || got[0].EntityID != "Bob" || !got[0].TS.Equal(fixed) {
		t.Fatalf("unexpected event %+v", got[0])
	}
	if got[0].Payload == nil {
		t.Fatalf("payload should default to empty map")
	}
	select {
	case evt := <-sub:
		if evt.Type != events.AssigneeAdded {
			t.Fatalf("subscriber got %s", evt.Type)
		}
	default:
		t.Fatalf("subscriber did not receive event")
	}
}

func TestZeroWriterDropsEvents(t *testing.T) {
	if err := (events.Writer{}).Append(context.Background(), events.ThemeChanged, "theme", "", nil); err != nil {
		t.Fatalf("zero writer should be a no-op: %v", err)
	}
}

func TestMultiFansOut(t *testing.T) {
	a, b := &events.Recorder{}, &events.Recorder{}
	m := events.Multi{a, nil, b, events.LogSink{}}
	if err := m.Append(context.Background(), events.Event{Type: events.ObservationDeleted}); err != nil {
		t.Fatal(err)
	}
	if len(a.Events()) != 1 || len(b.Events()) != 1 {
		t.Fatalf("expected both recorders to receive the event")
	}
}

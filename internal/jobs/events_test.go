package jobs

import (
	"testing"

	"audiobook-studio/internal/domain"
)

// TestEventBusSince verifies incremental event reads by sequence.
func TestEventBusSince(t *testing.T) {
	bus := NewEventBus(3)
	bus.Publish(Event{Type: EventTypeStatus, Message: "1"})
	bus.Publish(Event{Type: EventTypeLog, Message: "2"})
	bus.Publish(Event{Type: EventTypeProgress, Message: "3"})

	events := bus.Since(1)
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].Seq != 2 || events[1].Seq != 3 {
		t.Fatalf("unexpected seqs: %+v", events)
	}
}

// TestEventBusCapsHistory verifies buffer limit trimming behavior.
func TestEventBusCapsHistory(t *testing.T) {
	bus := NewEventBus(2)
	bus.Publish(Event{Message: "1"})
	bus.Publish(Event{Message: "2"})
	bus.Publish(Event{Message: "3"})

	events := bus.Since(0)
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].Message != "2" || events[1].Message != "3" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

// TestEventBusPreservesPayloadFields verifies published fields survive intact.
func TestEventBusPreservesPayloadFields(t *testing.T) {
	bus := NewEventBus(10)
	published := bus.Publish(Event{
		Type:     EventTypeProgress,
		JobID:    "job-1",
		Status:   domain.JobStatusInProgress,
		File:     "book.epub",
		Percent:  45,
		VoiceKey: "en_US-amy-medium",
	})

	if published.Seq != 1 || published.Timestamp.IsZero() {
		t.Fatalf("event = %+v, want assigned seq and timestamp", published)
	}

	events := bus.Since(0)
	if len(events) != 1 {
		t.Fatalf("len = %d, want 1", len(events))
	}
	got := events[0]
	if got.File != "book.epub" || got.Percent != 45 || got.VoiceKey != "en_US-amy-medium" {
		t.Fatalf("event = %+v, want payload fields preserved", got)
	}
}

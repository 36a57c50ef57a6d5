package events

import (
	"log/slog"
	"testing"

	"flasharb/core/types"
)

func TestRecorderRetainsOrder(t *testing.T) {
	r := NewRecorder(8)
	r.Emit(&types.Event{Type: "first"})
	r.Emit(&types.Event{Type: "second"})

	got := r.Events()
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].EventType() != "first" || got[1].EventType() != "second" {
		t.Fatalf("order not preserved: %v", got)
	}
}

func TestRecorderBounded(t *testing.T) {
	r := NewRecorder(2)
	r.Emit(&types.Event{Type: "a"})
	r.Emit(&types.Event{Type: "b"})
	r.Emit(&types.Event{Type: "c"})

	got := r.Events()
	if len(got) != 2 {
		t.Fatalf("expected 2 retained events, got %d", len(got))
	}
	if got[0].EventType() != "b" || got[1].EventType() != "c" {
		t.Fatalf("oldest event not evicted: %v", got)
	}
}

func TestRecorderIgnoresNil(t *testing.T) {
	r := NewRecorder(4)
	r.Emit(nil)
	if len(r.Events()) != 0 {
		t.Fatalf("nil event retained")
	}
	var absent *Recorder
	absent.Emit(&types.Event{Type: "x"}) // must not panic
}

func TestLogEmitterForwards(t *testing.T) {
	next := NewRecorder(4)
	emitter := LogEmitter{Logger: slog.Default(), Next: next}
	emitter.Emit(&types.Event{Type: "settlement.settled"})

	if got := next.Events(); len(got) != 1 || got[0].EventType() != "settlement.settled" {
		t.Fatalf("event not forwarded: %v", got)
	}
}

package events

import (
	"log/slog"
	"sync"
)

// Event represents a structured state change emitted by the settlement
// service.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC observers,
// off-process indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// is the default wired into engines that expose events optionally.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Recorder retains emitted events in order. Used by tests and by the RPC
// layer's bounded event feed.
type Recorder struct {
	mu     sync.Mutex
	limit  int
	events []Event
}

// NewRecorder constructs a recorder that retains at most limit events,
// discarding the oldest first. A non-positive limit retains everything.
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	if r.limit > 0 && len(r.events) > r.limit {
		r.events = r.events[len(r.events)-r.limit:]
	}
}

// Events returns a snapshot of the retained events.
func (r *Recorder) Events() []Event {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// LogEmitter mirrors every event onto a structured logger before forwarding to
// the wrapped emitter.
type LogEmitter struct {
	Logger *slog.Logger
	Next   Emitter
}

// Emit implements the Emitter interface.
func (l LogEmitter) Emit(evt Event) {
	if evt == nil {
		return
	}
	if l.Logger != nil {
		l.Logger.Info("event emitted", slog.String("event", evt.EventType()))
	}
	if l.Next != nil {
		l.Next.Emit(evt)
	}
}

package types

// Event represents a typed event emitted during settlement and
// administrative state transitions.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// EventType implements the events.Event interface.
func (e *Event) EventType() string {
	if e == nil {
		return ""
	}
	return e.Type
}

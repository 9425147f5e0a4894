package parsing

// DebugSink receives one event per classification decision made while
// parsing. Implementations must never influence the parse outcome.
type DebugSink interface {
	Emit(event string, context map[string]any)
}

// NopSink discards all events. Parsers fall back to it when no sink
// is supplied, so internals never need nil checks.
type NopSink struct{}

func (NopSink) Emit(string, map[string]any) {}

// Event is a recorded debug event.
type Event struct {
	Event   string         `json:"event"`
	Context map[string]any `json:"context,omitempty"`
}

// RecordingSink collects events in order, for offline audit of parse
// decisions. Not safe for concurrent use; each parse gets its own.
type RecordingSink struct {
	Events []Event
}

func (s *RecordingSink) Emit(event string, context map[string]any) {
	s.Events = append(s.Events, Event{Event: event, Context: context})
}

package domain

// Event types dispatched on the in-process bus.
const (
	EventApplicationCreated  = "APPLICATION_CREATED"
	EventDeadlineApproaching = "DEADLINE_APPROACHING"
	EventDeadlineMissed      = "DEADLINE_MISSED"
)

// Event is a transient typed notification of a state change. It lives only
// for the duration of one emit call and its fan-out; it is never persisted.
type Event struct {
	Type    string
	Payload map[string]any
}

// String returns a string payload field, or "" when absent or mistyped.
func (e Event) String(key string) string {
	s, _ := e.Payload[key].(string)
	return s
}

// Int returns an integer payload field. JSON round-trips turn numbers into
// float64, so both forms are accepted.
func (e Event) Int(key string) (int, bool) {
	switch v := e.Payload[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

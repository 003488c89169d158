package logging

// Standardized attribute keys shared across packages so log output stays
// greppable.
const (
	FieldComponent = "component"
	FieldEventType = "event_type"
	FieldErrorHint = "error_hint"
	FieldSessionID = "session_id"
	FieldFrame     = "frame"
	FieldTimestamp = "timestamp"
)

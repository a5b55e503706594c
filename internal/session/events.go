package session

// EventKind discriminates the JSON events delivered to subscribers.
type EventKind string

const (
	EventTranscriptUpdate EventKind = "transcript_update"
	EventSuggestionUpdate EventKind = "suggestion_update"
	EventCommandResponse  EventKind = "command_response"
	EventConnectionStatus EventKind = "connection_status"
	EventError            EventKind = "error"
)

// Event is one message broadcast to a session's subscribers.
type Event struct {
	Kind EventKind `json:"type"`
	Data any       `json:"data"`
}

package transcript

import "time"

// SourceKind identifies which backend a session ingests from.
type SourceKind string

const (
	SourceCloud       SourceKind = "cloud"
	SourceBotRealtime SourceKind = "bot_realtime"
	SourceLocal       SourceKind = "local"
)

// Valid reports whether the kind is one of the known backends.
func (k SourceKind) Valid() bool {
	switch k {
	case SourceCloud, SourceBotRealtime, SourceLocal:
		return true
	}
	return false
}

// Fragment is one raw unit emitted by a transcript source before sequencing.
// Index is the vendor's sequence index when the source provides one
// (polling path); -1 means no index.
type Fragment struct {
	Text        string
	IsFinal     bool
	Speaker     string
	Confidence  float64
	StartOffset float64
	EndOffset   float64
	DedupKey    string
	Index       int64
	Source      SourceKind
}

// SegmentContext carries the rolling window of recent final texts
// delivered alongside every segment.
type SegmentContext struct {
	RecentSegments []string `json:"previous_segments"`
	StartOffset    float64  `json:"start_time,omitempty"`
	EndOffset      float64  `json:"end_time,omitempty"`
}

// Segment is the normalized, numbered unit delivered to subscribers.
type Segment struct {
	SessionID     string         `json:"session_id"`
	SegmentNumber uint64         `json:"segment_number"`
	Speaker       string         `json:"speaker"`
	Text          string         `json:"segment"`
	IsFinal       bool           `json:"is_final"`
	Confidence    float64        `json:"confidence"`
	Timestamp     time.Time      `json:"timestamp"`
	Context       SegmentContext `json:"context"`
}

// StatusKind is the connection state reported by a connector.
type StatusKind string

const (
	StatusConnecting    StatusKind = "connecting"
	StatusConnected     StatusKind = "connected"
	StatusAuthenticated StatusKind = "authenticated"
	StatusPolling       StatusKind = "polling"
	StatusError         StatusKind = "error"
	StatusDisconnected  StatusKind = "disconnected"
)

// ConnectionStatus is emitted whenever the underlying transport's state
// changes. Events from one connector are totally ordered by the connector.
type ConnectionStatus struct {
	Kind    StatusKind `json:"status"`
	Message string     `json:"error,omitempty"`
}

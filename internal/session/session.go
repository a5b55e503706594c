package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/meetstream/meeting-gateway/internal/automation"
	"github.com/meetstream/meeting-gateway/internal/connector"
	"github.com/meetstream/meeting-gateway/internal/observability"
	"github.com/meetstream/meeting-gateway/internal/transcript"
)

const forwardQueueSize = 64

// Session is one active transcription instance: it owns a connector, a
// sequencer, its subscriber hub, and a bounded forward queue whose worker
// lives exactly as long as the session.
type Session struct {
	ID        string
	Name      string
	Source    transcript.SourceKind
	CreatedAt time.Time

	conn       *connector.Connector
	seq        *transcript.Sequencer
	hub        *Hub
	automation automation.Client
	metrics    *observability.SessionMetrics
	logger     zerolog.Logger

	mu           sync.Mutex
	segmentCount uint64
	speakerStats map[string]int
	finalTexts   []string
	lastStatus   transcript.ConnectionStatus

	forwardQueue chan transcript.Segment
	forwardDone  chan struct{}
	ingestDone   chan struct{}
}

func newSession(id, name string, kind transcript.SourceKind, conn *connector.Connector, seqCfg transcript.SequencerConfig, client automation.Client) *Session {
	return &Session{
		ID:           id,
		Name:         name,
		Source:       kind,
		CreatedAt:    time.Now().UTC(),
		conn:         conn,
		seq:          transcript.NewSequencer(id, seqCfg),
		hub:          NewHub(observability.SessionLogger(id)),
		automation:   client,
		metrics:      observability.NewSessionMetrics(id, string(kind)),
		logger:       observability.SessionLogger(id),
		speakerStats: make(map[string]int),
		lastStatus:   transcript.ConnectionStatus{Kind: transcript.StatusConnecting},
		forwardQueue: make(chan transcript.Segment, forwardQueueSize),
		forwardDone:  make(chan struct{}),
		ingestDone:   make(chan struct{}),
	}
}

// start launches the connector and the session's two goroutines.
func (s *Session) start() {
	s.conn.Start()
	go s.ingest()
	go s.forwardLoop()
}

// ingest is the session's single consumer of the connector streams. It is
// the only goroutine that touches the sequencer, which keeps segment
// numbering strictly sequential.
func (s *Session) ingest() {
	defer close(s.ingestDone)

	fragments := s.conn.Fragments()
	statuses := s.conn.Status()

	for fragments != nil || statuses != nil {
		select {
		case frag, ok := <-fragments:
			if !ok {
				fragments = nil
				continue
			}
			s.handleFragment(frag)

		case st, ok := <-statuses:
			if !ok {
				statuses = nil
				continue
			}
			s.handleStatus(st)
		}
	}
}

func (s *Session) handleFragment(frag transcript.Fragment) {
	seg, ok := s.seq.Process(frag)
	if !ok {
		return
	}

	s.mu.Lock()
	s.segmentCount++
	s.speakerStats[seg.Speaker]++
	if seg.IsFinal {
		s.finalTexts = append(s.finalTexts, seg.Text)
	}
	s.mu.Unlock()

	s.metrics.RecordSegment(string(frag.Source))
	s.logger.Debug().
		Uint64("segment_number", seg.SegmentNumber).
		Str("speaker", seg.Speaker).
		Bool("is_final", seg.IsFinal).
		Msg("Segment emitted")

	s.hub.Broadcast(Event{Kind: EventTranscriptUpdate, Data: seg})

	// Hand off to the forward worker; a full queue drops the forward
	// rather than stalling ingestion.
	select {
	case s.forwardQueue <- seg:
	default:
		s.logger.Warn().Uint64("segment_number", seg.SegmentNumber).Msg("Forward queue full, dropping segment forward")
		s.metrics.RecordForward(false)
	}
}

func (s *Session) handleStatus(st transcript.ConnectionStatus) {
	s.mu.Lock()
	s.lastStatus = st
	s.mu.Unlock()

	s.metrics.RecordConnectorState(int(s.conn.State()))
	s.logger.Info().Str("status", string(st.Kind)).Str("message", st.Message).Msg("Connection status changed")
	s.hub.Broadcast(Event{Kind: EventConnectionStatus, Data: st})
}

// forwardLoop delivers segments to the automation workflow one at a time.
func (s *Session) forwardLoop() {
	defer close(s.forwardDone)

	for seg := range s.forwardQueue {
		if s.automation == nil {
			continue
		}
		if err := s.automation.SendSegment(context.Background(), seg); err != nil {
			s.logger.Warn().Err(err).Uint64("segment_number", seg.SegmentNumber).Msg("Failed to forward segment")
			s.metrics.RecordForward(false)
			continue
		}
		s.metrics.RecordForward(true)
	}
}

// teardown closes the connector, waits for ingestion and the forward
// worker to exit, then closes every subscriber. Synchronous by design:
// when it returns all transport resources are released.
func (s *Session) teardown() {
	s.conn.Close()
	<-s.ingestDone
	close(s.forwardQueue)
	<-s.forwardDone
	s.hub.CloseAll()
	s.metrics.RecordSessionEnd()
	s.logger.Info().Msg("Session stopped")
}

// fullTranscript reconstructs the ordered concatenation of all final
// segment texts seen so far.
func (s *Session) fullTranscript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.finalTexts, " ")
}

// Status is the snapshot returned for status queries.
type Status struct {
	SessionID         string                      `json:"session_id"`
	SessionName       string                      `json:"session_name"`
	Source            transcript.SourceKind       `json:"source"`
	DurationMinutes   float64                     `json:"duration_minutes"`
	SegmentCount      uint64                      `json:"segment_count"`
	SpeakerStats      map[string]int              `json:"speaker_stats"`
	Connection        transcript.ConnectionStatus `json:"connection"`
	ConnectorState    string                      `json:"connector_state"`
	ActiveSubscribers int                         `json:"active_subscribers"`
}

func (s *Session) snapshot() *Status {
	s.mu.Lock()
	stats := make(map[string]int, len(s.speakerStats))
	for k, v := range s.speakerStats {
		stats[k] = v
	}
	count := s.segmentCount
	last := s.lastStatus
	s.mu.Unlock()

	return &Status{
		SessionID:         s.ID,
		SessionName:       s.Name,
		Source:            s.Source,
		DurationMinutes:   time.Since(s.CreatedAt).Minutes(),
		SegmentCount:      count,
		SpeakerStats:      stats,
		Connection:        last,
		ConnectorState:    s.conn.State().String(),
		ActiveSubscribers: s.hub.Count(),
	}
}

func (s *Session) commandContext() automation.CommandContext {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := make(map[string]int, len(s.speakerStats))
	for k, v := range s.speakerStats {
		stats[k] = v
	}
	return automation.CommandContext{
		DurationMinutes:     time.Since(s.CreatedAt).Minutes(),
		TotalSegments:       s.segmentCount,
		SpeakerDistribution: stats,
	}
}

package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/meetstream/meeting-gateway/internal/automation"
	"github.com/meetstream/meeting-gateway/internal/connector"
	"github.com/meetstream/meeting-gateway/internal/observability"
	"github.com/meetstream/meeting-gateway/internal/source"
	"github.com/meetstream/meeting-gateway/internal/transcript"
)

// StartRequest carries the parameters for a new session.
type StartRequest struct {
	Source       transcript.SourceKind
	Name         string
	TranscriptID string
}

// SourceFactory builds the transcript source (and optional polling
// fallback) for a start request. It returns
// transcript.ErrMissingCredentials when the requested variant is not
// configured.
type SourceFactory func(req StartRequest, logger zerolog.Logger) (source.TranscriptSource, source.Poller, error)

// Registry owns every active session. All lookups go through it; session
// lifecycles never outlive a registry Stop or Shutdown call.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	factory    SourceFactory
	automation automation.Client
	connCfg    connector.Config
	seqCfg     transcript.SequencerConfig
	logger     zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(factory SourceFactory, client automation.Client, connCfg connector.Config, seqCfg transcript.SequencerConfig) *Registry {
	return &Registry{
		sessions:   make(map[string]*Session),
		factory:    factory,
		automation: client,
		connCfg:    connCfg,
		seqCfg:     seqCfg,
		logger:     observability.GetLogger().With().Str("component", "session-registry").Logger(),
	}
}

// Create builds and starts a new session, returning its identifier
// immediately. Connection establishment happens in the background; its
// progress is observable via status queries and subscriber events.
func (r *Registry) Create(req StartRequest) (string, error) {
	if !req.Source.Valid() {
		return "", fmt.Errorf("unknown source %q", req.Source)
	}

	id := uuid.New().String()
	logger := observability.SessionLogger(id)

	src, poller, err := r.factory(req, logger)
	if err != nil {
		return "", err
	}

	conn := connector.New(src, poller, r.connCfg, logger)
	sess := newSession(id, req.Name, req.Source, conn, r.seqCfg, r.automation)

	r.mu.Lock()
	r.sessions[id] = sess
	r.mu.Unlock()

	sess.start()
	r.logger.Info().
		Str("session_id", id).
		Str("source", string(req.Source)).
		Str("session_name", req.Name).
		Msg("Session created")
	return id, nil
}

// Stop tears down the identified session. It returns
// transcript.ErrNotFound when no such session exists; a second Stop for
// the same id therefore fails rather than double-closing.
func (r *Registry) Stop(id string) error {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return transcript.ErrNotFound
	}

	sess.teardown()
	return nil
}

// Status returns a point-in-time snapshot of the identified session.
func (r *Registry) Status(id string) (*Status, bool) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return sess.snapshot(), true
}

// Subscribe attaches a subscriber to the identified session.
func (r *Registry) Subscribe(id string, sub Subscriber) error {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return transcript.ErrNotFound
	}
	sess.hub.Add(sub)
	return nil
}

// Unsubscribe detaches a subscriber from the identified session. Missing
// sessions are ignored; the session may already have been stopped.
func (r *Registry) Unsubscribe(id string, sub Subscriber) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok {
		sess.hub.Remove(sub)
	}
}

// ForwardCommand sends a user command plus the session's accumulated
// transcript to the automation workflow, broadcasts the response to
// subscribers, and returns it to the caller.
func (r *Registry) ForwardCommand(ctx context.Context, id, command string) (*automation.CommandResponse, error) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, transcript.ErrNotFound
	}

	if r.automation == nil {
		return nil, fmt.Errorf("automation workflow not configured")
	}

	resp, err := r.automation.SendCommand(ctx, id, command, sess.fullTranscript(), sess.commandContext())
	if err != nil {
		return nil, err
	}

	sess.hub.Broadcast(Event{Kind: EventCommandResponse, Data: resp})
	return resp, nil
}

// BroadcastSuggestions delivers externally produced suggestions to the
// session's subscribers.
func (r *Registry) BroadcastSuggestions(id string, suggestions []string) error {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return transcript.ErrNotFound
	}
	sess.hub.Broadcast(Event{Kind: EventSuggestionUpdate, Data: map[string]any{
		"session_id":  id,
		"suggestions": suggestions,
	}})
	return nil
}

// Count returns the number of active sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Shutdown stops every active session. Used during graceful server
// shutdown so transports and subscribers are released deterministically.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	remaining := make([]*Session, 0, len(r.sessions))
	for id, sess := range r.sessions {
		remaining = append(remaining, sess)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, sess := range remaining {
		sess.teardown()
	}
	if len(remaining) > 0 {
		r.logger.Info().Int("count", len(remaining)).Msg("All sessions stopped")
	}
}

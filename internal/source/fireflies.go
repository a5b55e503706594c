package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/meetstream/meeting-gateway/internal/transcript"
)

const (
	defaultRealtimeURL = "wss://api.fireflies.ai/ws/realtime"
	defaultGraphQLURL  = "https://api.fireflies.ai/graphql"

	authTimeout = 10 * time.Second
)

// FirefliesOptions configures the bot-realtime source. TranscriptID keys
// the push feed to one external meeting transcript.
type FirefliesOptions struct {
	APIKey       string
	TranscriptID string
	RealtimeURL  string
	GraphQLURL   string
}

// realtimeEvent is the wire shape of one Fireflies push event.
type realtimeEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// transcriptionChunk is the payload of a transcription.broadcast event.
type transcriptionChunk struct {
	TranscriptID string  `json:"transcript_id"`
	ChunkID      string  `json:"chunk_id"`
	Text         string  `json:"text"`
	SpeakerName  string  `json:"speaker_name"`
	StartTime    float64 `json:"start_time"`
	EndTime      float64 `json:"end_time"`
}

// FirefliesSource is the bot-realtime variant: it subscribes to a push
// feed keyed by an external transcript id. Authentication only, no audio
// push. Channels stay open across transport drops; only Close ends them.
type FirefliesSource struct {
	opts   FirefliesOptions
	logger zerolog.Logger

	fragments chan transcript.Fragment
	status    chan transcript.ConnectionStatus

	mu        sync.Mutex
	conn      *websocket.Conn
	open      bool
	closed    bool
	closeOnce sync.Once
	readWG    sync.WaitGroup
}

// NewFirefliesSource creates a bot-realtime source.
func NewFirefliesSource(opts FirefliesOptions, logger zerolog.Logger) *FirefliesSource {
	if opts.RealtimeURL == "" {
		opts.RealtimeURL = defaultRealtimeURL
	}
	return &FirefliesSource{
		opts:      opts,
		logger:    logger.With().Str("source", "fireflies").Str("transcript_id", opts.TranscriptID).Logger(),
		fragments: make(chan transcript.Fragment, 100),
		status:    make(chan transcript.ConnectionStatus, 16),
	}
}

// Open dials the realtime feed and waits for the authentication ack.
// An auth.failed reply returns ErrAuth; transport failures return a
// retryable ConnectError.
func (f *FirefliesSource) Open(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return transcript.ErrNotConnected
	}
	if f.open {
		f.mu.Unlock()
		return nil
	}
	f.mu.Unlock()

	if f.opts.APIKey == "" {
		return transcript.ErrAuth
	}

	url := fmt.Sprintf("%s?transcriptId=%s", f.opts.RealtimeURL, f.opts.TranscriptID)
	header := http.Header{}
	header.Set("Authorization", "Bearer "+f.opts.APIKey)

	dialer := websocket.Dialer{HandshakeTimeout: authTimeout}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return transcript.ErrAuth
		}
		return transcript.NewConnectError(fmt.Errorf("failed to dial realtime feed: %w", err))
	}

	f.emitStatus(transcript.ConnectionStatus{Kind: transcript.StatusConnected})

	// The feed confirms authentication before broadcasting anything.
	conn.SetReadDeadline(time.Now().Add(authTimeout))
	var ack realtimeEvent
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		return transcript.NewConnectError(fmt.Errorf("failed to read auth ack: %w", err))
	}
	conn.SetReadDeadline(time.Time{})

	switch ack.Event {
	case "auth.success", "connection.established":
		// Authenticated.
	case "auth.failed":
		conn.Close()
		return transcript.ErrAuth
	default:
		conn.Close()
		return transcript.NewConnectError(fmt.Errorf("unexpected handshake event %q", ack.Event))
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		conn.Close()
		return transcript.ErrNotConnected
	}
	f.conn = conn
	f.open = true
	f.mu.Unlock()

	f.emitStatus(transcript.ConnectionStatus{Kind: transcript.StatusAuthenticated})
	f.logger.Info().Msg("Fireflies realtime feed authenticated")

	f.readWG.Add(1)
	go f.readLoop(conn)
	return nil
}

func (f *FirefliesSource) readLoop(conn *websocket.Conn) {
	defer f.readWG.Done()
	for {
		var event realtimeEvent
		if err := conn.ReadJSON(&event); err != nil {
			f.mu.Lock()
			wasOpen := f.open && f.conn == conn
			if wasOpen {
				f.open = false
				f.conn = nil
			}
			closed := f.closed
			f.mu.Unlock()

			if wasOpen && !closed {
				f.logger.Warn().Err(err).Msg("Realtime feed dropped")
				f.emitStatus(transcript.ConnectionStatus{Kind: transcript.StatusDisconnected, Message: err.Error()})
			}
			return
		}

		switch event.Event {
		case "transcription.broadcast":
			f.handleChunk(event.Data)
		case "connection.error":
			f.emitStatus(transcript.ConnectionStatus{Kind: transcript.StatusError, Message: string(event.Data)})
		default:
			f.logger.Debug().Str("event", event.Event).Msg("Unhandled realtime event")
		}
	}
}

func (f *FirefliesSource) handleChunk(data json.RawMessage) {
	var chunk transcriptionChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		f.logger.Warn().Err(err).Msg("Malformed transcription payload, dropping")
		return
	}
	if chunk.Text == "" {
		return
	}

	f.emitFragment(transcript.Fragment{
		Text:        chunk.Text,
		IsFinal:     true,
		Speaker:     chunk.SpeakerName,
		Confidence:  1.0,
		StartOffset: chunk.StartTime,
		EndOffset:   chunk.EndTime,
		DedupKey:    chunk.ChunkID,
		Index:       -1,
		Source:      transcript.SourceBotRealtime,
	})
}

// Fragments returns the fragment stream.
func (f *FirefliesSource) Fragments() <-chan transcript.Fragment {
	return f.fragments
}

// Status returns the connection status stream.
func (f *FirefliesSource) Status() <-chan transcript.ConnectionStatus {
	return f.status
}

// Close tears down the feed. Idempotent and safe to call concurrently
// with the read loop: the closed flag stops further emits, and the read
// loop is drained before the output channels close.
func (f *FirefliesSource) Close() error {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.open = false
		conn := f.conn
		f.conn = nil
		f.mu.Unlock()

		if conn != nil {
			conn.Close()
		}
		f.readWG.Wait()
		close(f.fragments)
		close(f.status)
		f.logger.Info().Msg("Fireflies source closed")
	})
	return nil
}

// emitFragment delivers one fragment unless the source is closed. The
// send happens under the mutex so Close cannot shut the channel between
// the check and the send.
func (f *FirefliesSource) emitFragment(frag transcript.Fragment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case f.fragments <- frag:
	default:
		f.logger.Warn().Str("dedup_key", frag.DedupKey).Msg("Fragment channel full, dropping chunk")
	}
}

func (f *FirefliesSource) emitStatus(st transcript.ConnectionStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case f.status <- st:
	default:
	}
}

// FirefliesPoller is the pull fallback: it fetches the full sentence list
// for the transcript via the GraphQL API. Sentences carry a strictly
// increasing index the connector uses to drop already-emitted entries.
type FirefliesPoller struct {
	opts   FirefliesOptions
	client *http.Client
	logger zerolog.Logger
}

// NewFirefliesPoller creates the polling fallback client.
func NewFirefliesPoller(opts FirefliesOptions, logger zerolog.Logger) *FirefliesPoller {
	if opts.GraphQLURL == "" {
		opts.GraphQLURL = defaultGraphQLURL
	}
	return &FirefliesPoller{
		opts:   opts,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger.With().Str("source", "fireflies_poll").Logger(),
	}
}

const transcriptQuery = `query GetTranscript($id: String!) {
  transcript(id: $id) {
    id
    title
    sentences { index text speaker_name start_time end_time }
  }
}`

type graphQLResponse struct {
	Data struct {
		Transcript *struct {
			Sentences []struct {
				Index       int64   `json:"index"`
				Text        string  `json:"text"`
				SpeakerName string  `json:"speaker_name"`
				StartTime   float64 `json:"start_time"`
				EndTime     float64 `json:"end_time"`
			} `json:"sentences"`
		} `json:"transcript"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Poll fetches the current full sentence list as fragments.
func (p *FirefliesPoller) Poll(ctx context.Context) ([]transcript.Fragment, error) {
	body, err := json.Marshal(map[string]any{
		"query":     transcriptQuery,
		"variables": map[string]string{"id": p.opts.TranscriptID},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.opts.GraphQLURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.opts.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("polling request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, transcript.ErrAuth
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("polling request failed: HTTP %d", resp.StatusCode)
	}

	var parsed graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode polling response: %w", err)
	}
	if len(parsed.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", parsed.Errors[0].Message)
	}
	if parsed.Data.Transcript == nil {
		return nil, nil
	}

	fragments := make([]transcript.Fragment, 0, len(parsed.Data.Transcript.Sentences))
	for _, s := range parsed.Data.Transcript.Sentences {
		if s.Text == "" {
			continue
		}
		fragments = append(fragments, transcript.Fragment{
			Text:        s.Text,
			IsFinal:     true,
			Speaker:     s.SpeakerName,
			Confidence:  1.0,
			StartOffset: s.StartTime,
			EndOffset:   s.EndTime,
			Index:       s.Index,
			Source:      transcript.SourceBotRealtime,
		})
	}
	return fragments, nil
}

// Package automation talks to the external analysis workflow over HTTP
// webhooks. Delivery is fire-and-forget from the ingestion path's point
// of view: errors are logged by callers, never propagated into ingestion.
package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/meetstream/meeting-gateway/internal/resilience"
	"github.com/meetstream/meeting-gateway/internal/transcript"
)

// CommandContext summarizes the session for a command request.
type CommandContext struct {
	DurationMinutes     float64        `json:"duration_minutes"`
	TotalSegments       uint64         `json:"total_segments"`
	SpeakerDistribution map[string]int `json:"speaker_distribution"`
}

// CommandResponse is the workflow's answer to a user command.
type CommandResponse struct {
	Response    string   `json:"response"`
	Suggestions []string `json:"suggestions"`
}

// Client is the outbound contract the session layer depends on.
type Client interface {
	SendSegment(ctx context.Context, seg transcript.Segment) error
	SendCommand(ctx context.Context, sessionID, command, fullTranscript string, cmdCtx CommandContext) (*CommandResponse, error)
}

// Config holds the webhook endpoints and timeouts.
type Config struct {
	TranscriptURL  string
	CommandURL     string
	SegmentTimeout time.Duration // default 10s
	CommandTimeout time.Duration // default 30s
}

// HTTPClient delivers segments and commands to the automation workflow.
// A circuit breaker keeps a dead workflow endpoint from tying up the
// per-session forward workers.
type HTTPClient struct {
	cfg     Config
	client  *http.Client
	breaker *resilience.CircuitBreaker
	logger  zerolog.Logger
}

// NewHTTPClient creates the webhook client.
func NewHTTPClient(cfg Config, logger zerolog.Logger) *HTTPClient {
	if cfg.SegmentTimeout <= 0 {
		cfg.SegmentTimeout = 10 * time.Second
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 30 * time.Second
	}
	return &HTTPClient{
		cfg:     cfg,
		client:  &http.Client{},
		breaker: resilience.NewCircuitBreaker("automation", 5, 30*time.Second),
		logger:  logger.With().Str("component", "automation").Logger(),
	}
}

// SendSegment forwards one transcript segment for analysis.
func (c *HTTPClient) SendSegment(ctx context.Context, seg transcript.Segment) error {
	if c.cfg.TranscriptURL == "" {
		return nil
	}

	return c.breaker.Call(func() error {
		ctx, cancel := context.WithTimeout(ctx, c.cfg.SegmentTimeout)
		defer cancel()

		resp, err := c.post(ctx, c.cfg.TranscriptURL, seg)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("transcript webhook returned HTTP %d", resp.StatusCode)
		}
		return nil
	})
}

// commandPayload is the wire shape of a command request.
type commandPayload struct {
	SessionID      string         `json:"session_id"`
	Timestamp      string         `json:"timestamp"`
	Command        string         `json:"command"`
	FullTranscript string         `json:"full_transcript"`
	Context        CommandContext `json:"conversation_context"`
}

// SendCommand forwards a user command with full session context and waits
// for the workflow's answer. On timeout it returns a structured fallback
// response instead of an error, so the caller always has something to
// show.
func (c *HTTPClient) SendCommand(ctx context.Context, sessionID, command, fullTranscript string, cmdCtx CommandContext) (*CommandResponse, error) {
	if c.cfg.CommandURL == "" {
		return nil, errors.New("command webhook not configured")
	}

	payload := commandPayload{
		SessionID:      sessionID,
		Timestamp:      time.Now().UTC().Format(time.RFC3339Nano),
		Command:        command,
		FullTranscript: fullTranscript,
		Context:        cmdCtx,
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.CommandTimeout)
	defer cancel()

	resp, err := c.post(ctx, c.cfg.CommandURL, payload)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.logger.Warn().Str("session_id", sessionID).Msg("Command webhook timed out")
			return &CommandResponse{
				Response:    "The request took too long to process. Please try again.",
				Suggestions: []string{},
			}, nil
		}
		return nil, fmt.Errorf("command webhook failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("command webhook returned HTTP %d", resp.StatusCode)
	}

	var out CommandResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode command response: %w", err)
	}
	return &out, nil
}

func (c *HTTPClient) post(ctx context.Context, url string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.client.Do(req)
}

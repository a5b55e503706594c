// Package connector wraps a transcript source's primary transport with
// reconnect-and-backoff and a polling fallback, hiding transport flakiness
// from the session layer. Transport failures never surface as errors; they
// surface only as connection status events.
package connector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/meetstream/meeting-gateway/internal/resilience"
	"github.com/meetstream/meeting-gateway/internal/source"
	"github.com/meetstream/meeting-gateway/internal/transcript"
)

// State is the connector's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateReconnecting
	StatePolling
	StateError
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateReconnecting:
		return "reconnecting"
	case StatePolling:
		return "polling"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Config tunes retry and polling behavior.
type Config struct {
	MaxAttempts  int           // Failed connects before falling back to polling
	BaseDelay    time.Duration // Reconnect wait is BaseDelay * attempt
	MaxDelay     time.Duration // Cap on the reconnect wait
	PollInterval time.Duration // Interval of the polling fallback loop
}

// DefaultConfig returns the standard connector tuning.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		BaseDelay:    5 * time.Second,
		MaxDelay:     30 * time.Second,
		PollInterval: 3 * time.Second,
	}
}

// Connector manages one resilient connection: primary streaming transport,
// reconnect with linear backoff, then a pull-style polling fallback. It
// exposes a single stable fragment stream plus a status stream whose
// events are totally ordered.
type Connector struct {
	src    source.TranscriptSource
	poller source.Poller
	cfg    Config
	logger zerolog.Logger

	fragments chan transcript.Fragment
	status    chan transcript.ConnectionStatus

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	state     State
	lastIndex int64

	closeOnce sync.Once
}

// New creates a connector around src. The poller may be nil when the
// backend has no pull-style query; the connector then terminates in the
// error state instead of falling back.
func New(src source.TranscriptSource, poller source.Poller, cfg Config, logger zerolog.Logger) *Connector {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 5 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Connector{
		src:       src,
		poller:    poller,
		cfg:       cfg,
		logger:    logger.With().Str("component", "connector").Logger(),
		fragments: make(chan transcript.Fragment, 100),
		status:    make(chan transcript.ConnectionStatus, 32),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		state:     StateIdle,
		lastIndex: -1,
	}
}

// Start launches the connect/retry/poll loop.
func (c *Connector) Start() {
	go c.run()
}

// Fragments returns the stable fragment stream. It is closed only when
// the connector is closed.
func (c *Connector) Fragments() <-chan transcript.Fragment {
	return c.fragments
}

// Status returns the connection status stream.
func (c *Connector) Status() <-chan transcript.ConnectionStatus {
	return c.status
}

// State returns the current lifecycle state.
func (c *Connector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connector) run() {
	defer close(c.done)

	attempt := 0
	for {
		if c.ctx.Err() != nil {
			return
		}

		c.transition(StateConnecting, transcript.ConnectionStatus{Kind: transcript.StatusConnecting})

		err := c.src.Open(c.ctx)
		if err != nil {
			if errors.Is(err, transcript.ErrAuth) {
				// Credentials are invalid, not transient. Terminal.
				c.transition(StateError, transcript.ConnectionStatus{Kind: transcript.StatusError, Message: err.Error()})
				c.logger.Error().Err(err).Msg("Authentication failed, giving up")
				return
			}
			if c.ctx.Err() != nil {
				return
			}

			attempt++
			if attempt >= c.cfg.MaxAttempts {
				c.logger.Warn().Int("attempts", attempt).Msg("Max connection attempts reached, switching to polling")
				c.runPolling()
				return
			}

			delay := resilience.LinearBackoff(attempt, c.cfg.BaseDelay, c.cfg.MaxDelay)
			c.transition(StateReconnecting, transcript.ConnectionStatus{
				Kind:    transcript.StatusDisconnected,
				Message: fmt.Sprintf("reconnecting in %s (attempt %d/%d)", delay, attempt, c.cfg.MaxAttempts),
			})
			c.logger.Warn().Err(err).Dur("delay", delay).Int("attempt", attempt).Msg("Connection attempt failed, retrying")
			if resilience.Wait(c.ctx, delay) != nil {
				return
			}
			continue
		}

		c.transition(StateStreaming, transcript.ConnectionStatus{Kind: transcript.StatusConnected})
		attempt = 0

		if !c.pumpStreaming() {
			return
		}

		// Transport dropped mid-stream; fall back into the retry loop.
		attempt++
		delay := resilience.LinearBackoff(attempt, c.cfg.BaseDelay, c.cfg.MaxDelay)
		c.transition(StateReconnecting, transcript.ConnectionStatus{
			Kind:    transcript.StatusDisconnected,
			Message: fmt.Sprintf("stream lost, reconnecting in %s", delay),
		})
		if resilience.Wait(c.ctx, delay) != nil {
			return
		}
	}
}

// pumpStreaming forwards fragments and status events from the source until
// the stream drops (returns true) or the connector is closed (false).
func (c *Connector) pumpStreaming() bool {
	for {
		select {
		case <-c.ctx.Done():
			return false

		case frag, ok := <-c.src.Fragments():
			if !ok {
				return false
			}
			c.emitFragment(frag)

		case st, ok := <-c.src.Status():
			if !ok {
				return false
			}
			// The streaming transition already announced connected;
			// forwarding the source's own copy would double it up.
			if st.Kind != transcript.StatusConnected {
				c.emitStatus(st)
			}
			if st.Kind == transcript.StatusDisconnected {
				return true
			}
		}
	}
}

// runPolling periodically fetches the full fragment list and emits only
// fragments with an index above the highest one already emitted.
func (c *Connector) runPolling() {
	c.transition(StatePolling, transcript.ConnectionStatus{Kind: transcript.StatusPolling})

	if c.poller == nil {
		c.transition(StateError, transcript.ConnectionStatus{
			Kind:    transcript.StatusError,
			Message: "no polling fallback available",
		})
		c.logger.Error().Msg("Streaming failed and the source has no polling fallback")
		return
	}

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if !c.pollOnce() {
			return
		}
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Connector) pollOnce() bool {
	frags, err := c.poller.Poll(c.ctx)
	if err != nil {
		if errors.Is(err, transcript.ErrAuth) {
			c.transition(StateError, transcript.ConnectionStatus{Kind: transcript.StatusError, Message: err.Error()})
			return false
		}
		if c.ctx.Err() != nil {
			return false
		}
		c.logger.Warn().Err(err).Msg("Polling fetch failed")
		return true
	}

	for _, frag := range frags {
		if frag.Index >= 0 && frag.Index <= c.lastSeenIndex() {
			continue
		}
		c.emitFragment(frag)
	}
	return true
}

func (c *Connector) emitFragment(frag transcript.Fragment) {
	if frag.Index >= 0 {
		c.mu.Lock()
		if frag.Index > c.lastIndex {
			c.lastIndex = frag.Index
		}
		c.mu.Unlock()
	}

	select {
	case c.fragments <- frag:
	case <-c.ctx.Done():
	}
}

func (c *Connector) emitStatus(st transcript.ConnectionStatus) {
	select {
	case c.status <- st:
	case <-c.ctx.Done():
	}
}

func (c *Connector) lastSeenIndex() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastIndex
}

// transition records the new state and emits its status event before any
// of the transition's effects begin.
func (c *Connector) transition(next State, st transcript.ConnectionStatus) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = next
	c.mu.Unlock()

	c.logger.Debug().Str("state", next.String()).Msg("Connector state change")
	c.emitStatus(st)
}

// Close tears down the connector: the retry/poll loop is cancelled, the
// source's transport resources are released, and both output channels are
// closed. Terminal and idempotent; safe to call from any goroutine.
func (c *Connector) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.src.Close()
		<-c.done

		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()

		// Last event on the stream, then no further emissions ever.
		select {
		case c.status <- transcript.ConnectionStatus{Kind: transcript.StatusDisconnected, Message: "closed"}:
		default:
		}
		close(c.fragments)
		close(c.status)
		c.logger.Info().Msg("Connector closed")
	})
	return nil
}

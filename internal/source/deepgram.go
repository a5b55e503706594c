package source

import (
	"context"
	"fmt"
	"sync"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/meetstream/meeting-gateway/internal/transcript"
)

// DeepgramOptions configures the cloud streaming source.
type DeepgramOptions struct {
	APIKey     string
	Model      string
	Language   string
	SampleRate int
	Encoding   string
}

// deepgramCallbackHandler implements the LiveMessageCallback interface.
// It embeds the default handler and overrides only the methods we need.
type deepgramCallbackHandler struct {
	*websocketv1api.DefaultCallbackHandler
	onMessage func(*msginterfaces.MessageResponse)
	onError   func(*msginterfaces.ErrorResponse) error
}

func (h *deepgramCallbackHandler) Message(msg *msginterfaces.MessageResponse) error {
	h.onMessage(msg)
	return nil
}

func (h *deepgramCallbackHandler) Error(resp *msginterfaces.ErrorResponse) error {
	if h.onError != nil {
		return h.onError(resp)
	}
	return h.DefaultCallbackHandler.Error(resp)
}

// DeepgramSource is the cloud streaming variant: a persistent full-duplex
// transport where the caller pushes raw audio frames and Deepgram pushes
// transcript fragments back asynchronously.
type DeepgramSource struct {
	opts   DeepgramOptions
	logger zerolog.Logger

	fragments chan transcript.Fragment
	status    chan transcript.ConnectionStatus

	mu        sync.Mutex
	client    *listenClient.WSCallback
	open      bool
	closed    bool
	closeOnce sync.Once
}

// NewDeepgramSource creates a cloud streaming source. Channels are buffered
// so a slow consumer never stalls the SDK's callback goroutine.
func NewDeepgramSource(opts DeepgramOptions, logger zerolog.Logger) *DeepgramSource {
	if opts.Model == "" {
		opts.Model = "nova-2"
	}
	if opts.Language == "" {
		opts.Language = "de"
	}
	if opts.SampleRate == 0 {
		opts.SampleRate = 16000
	}
	if opts.Encoding == "" {
		opts.Encoding = "linear16"
	}
	return &DeepgramSource{
		opts:      opts,
		logger:    logger.With().Str("source", "deepgram").Logger(),
		fragments: make(chan transcript.Fragment, 100),
		status:    make(chan transcript.ConnectionStatus, 16),
	}
}

// Open establishes the Deepgram streaming connection.
func (d *DeepgramSource) Open(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return transcript.ErrNotConnected
	}
	if d.open {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	if d.opts.APIKey == "" {
		return transcript.ErrAuth
	}

	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          d.opts.Model,
		Language:       d.opts.Language,
		Punctuate:      true,
		SmartFormat:    true,
		InterimResults: true,
		UtteranceEndMs: "1000",
		VadEvents:      true,
		Encoding:       d.opts.Encoding,
		Channels:       1,
		SampleRate:     d.opts.SampleRate,
	}

	callback := &deepgramCallbackHandler{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		onMessage:              d.handleMessage,
		onError: func(resp *msginterfaces.ErrorResponse) error {
			d.logger.Warn().Str("type", resp.Type).Str("description", resp.Description).Msg("Deepgram error event")
			// Treat transport errors as a dropped connection; the
			// connector reacts to the disconnected status and reopens.
			d.mu.Lock()
			d.open = false
			d.client = nil
			d.mu.Unlock()
			d.emitStatus(transcript.ConnectionStatus{Kind: transcript.StatusDisconnected, Message: resp.Description})
			return nil
		},
	}

	client, err := listenClient.NewWSUsingCallback(ctx, d.opts.APIKey, nil, tOptions, callback)
	if err != nil {
		return transcript.NewConnectError(fmt.Errorf("failed to create Deepgram client: %w", err))
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		client.Finish()
		return transcript.ErrNotConnected
	}
	d.client = client
	d.open = true
	d.mu.Unlock()

	d.emitStatus(transcript.ConnectionStatus{Kind: transcript.StatusConnected})

	d.logger.Info().
		Str("model", d.opts.Model).
		Str("language", d.opts.Language).
		Msg("Deepgram streaming connection established")
	return nil
}

func (d *DeepgramSource) handleMessage(msg *msginterfaces.MessageResponse) {
	if msg == nil {
		return
	}

	switch msg.Type {
	case "Results", "Message":
		if len(msg.Channel.Alternatives) == 0 {
			return
		}
		alt := msg.Channel.Alternatives[0]
		if alt.Transcript == "" {
			return
		}

		d.emitFragment(transcript.Fragment{
			Text:        alt.Transcript,
			IsFinal:     msg.IsFinal,
			Confidence:  alt.Confidence,
			StartOffset: msg.Start,
			EndOffset:   msg.Start + msg.Duration,
			Index:       -1,
			Source:      transcript.SourceCloud,
		})

	case "Metadata", "SpeechStarted", "UtteranceEnd":
		// Informational events, no fragment to emit.

	default:
		d.logger.Debug().Str("type", msg.Type).Msg("Unhandled Deepgram message type")
	}
}

// SendAudio pushes one raw audio frame to Deepgram.
func (d *DeepgramSource) SendAudio(data []byte) error {
	d.mu.Lock()
	client := d.client
	open := d.open
	d.mu.Unlock()

	if !open || client == nil {
		return transcript.ErrNotConnected
	}
	if _, err := client.Write(data); err != nil {
		return fmt.Errorf("failed to send audio to Deepgram: %w", err)
	}
	return nil
}

// Fragments returns the fragment stream.
func (d *DeepgramSource) Fragments() <-chan transcript.Fragment {
	return d.fragments
}

// Status returns the connection status stream.
func (d *DeepgramSource) Status() <-chan transcript.ConnectionStatus {
	return d.status
}

// Close finishes the stream and releases the transport. Idempotent. The
// closed flag is raised under the mutex before the channels shut, so a
// late SDK callback cannot send into a closed channel.
func (d *DeepgramSource) Close() error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.open = false
		client := d.client
		d.client = nil
		d.mu.Unlock()

		if client != nil {
			client.Finish()
		}
		close(d.fragments)
		close(d.status)
		d.logger.Info().Msg("Deepgram source closed")
	})
	return nil
}

// emitFragment delivers one fragment unless the source is closed. The
// send happens under the mutex so Close cannot shut the channel between
// the check and the send.
func (d *DeepgramSource) emitFragment(frag transcript.Fragment) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	select {
	case d.fragments <- frag:
	default:
		d.logger.Warn().Msg("Fragment channel full, dropping transcription")
	}
}

func (d *DeepgramSource) emitStatus(st transcript.ConnectionStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	select {
	case d.status <- st:
	default:
	}
}

package source

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/meetstream/meeting-gateway/internal/audio"
	"github.com/meetstream/meeting-gateway/internal/transcript"
)

// LocalOptions configures the local audio-capture variant.
type LocalOptions struct {
	Deepgram    DeepgramOptions
	FFmpegPath  string
	InputFormat string
	InputDevice string
	SampleRate  int
}

// LocalSource owns a physical/virtual audio input device and a nested
// streaming transport to the cloud backend. Captured PCM is pumped into
// the nested source; fragments come back re-labeled as local.
type LocalSource struct {
	opts   LocalOptions
	logger zerolog.Logger
	cloud  *DeepgramSource

	fragments chan transcript.Fragment
	status    chan transcript.ConnectionStatus

	mu        sync.Mutex
	capture   *audio.Capture
	open      bool
	closed    bool
	closeOnce sync.Once
	forwardWG sync.WaitGroup
}

// NewLocalSource creates a local-capture source.
func NewLocalSource(opts LocalOptions, logger zerolog.Logger) *LocalSource {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 16000
	}
	opts.Deepgram.SampleRate = opts.SampleRate
	opts.Deepgram.Encoding = "linear16"

	l := &LocalSource{
		opts:      opts,
		logger:    logger.With().Str("source", "local").Logger(),
		cloud:     NewDeepgramSource(opts.Deepgram, logger),
		fragments: make(chan transcript.Fragment, 100),
		status:    make(chan transcript.ConnectionStatus, 16),
	}
	l.forwardWG.Add(2)
	go l.forwardFragments()
	go l.forwardStatus()
	return l
}

// forwardFragments re-labels fragments from the nested cloud source.
func (l *LocalSource) forwardFragments() {
	defer l.forwardWG.Done()
	for frag := range l.cloud.Fragments() {
		frag.Source = transcript.SourceLocal
		select {
		case l.fragments <- frag:
		default:
			l.logger.Warn().Msg("Fragment channel full, dropping transcription")
		}
	}
}

func (l *LocalSource) forwardStatus() {
	defer l.forwardWG.Done()
	for st := range l.cloud.Status() {
		select {
		case l.status <- st:
		default:
		}
	}
}

// Open starts the capture process and the nested streaming transport.
func (l *LocalSource) Open(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return transcript.ErrNotConnected
	}
	if l.open {
		return nil
	}

	if err := l.cloud.Open(ctx); err != nil {
		return err
	}

	capture := audio.NewCapture(audio.CaptureOptions{
		FFmpegPath:  l.opts.FFmpegPath,
		InputFormat: l.opts.InputFormat,
		InputDevice: l.opts.InputDevice,
		SampleRate:  l.opts.SampleRate,
	}, l.logger)

	if err := capture.Start(); err != nil {
		return transcript.NewConnectError(err)
	}

	l.capture = capture
	l.open = true

	go l.pumpAudio(capture)
	return nil
}

// pumpAudio pushes captured PCM chunks to the nested cloud source until
// the capture ends.
func (l *LocalSource) pumpAudio(capture *audio.Capture) {
	for chunk := range capture.Chunks() {
		if err := l.cloud.SendAudio(chunk); err != nil {
			if !errors.Is(err, transcript.ErrNotConnected) {
				l.logger.Warn().Err(err).Msg("Failed to forward captured audio")
			}
		}
	}

	l.mu.Lock()
	wasOpen := l.open
	l.open = false
	closed := l.closed
	l.mu.Unlock()

	if wasOpen && !closed {
		l.emitStatus(transcript.ConnectionStatus{Kind: transcript.StatusDisconnected, Message: "audio capture ended"})
	}
}

// Fragments returns the fragment stream.
func (l *LocalSource) Fragments() <-chan transcript.Fragment {
	return l.fragments
}

// Status returns the connection status stream.
func (l *LocalSource) Status() <-chan transcript.ConnectionStatus {
	return l.status
}

// Close stops the capture process and the nested transport. Idempotent.
func (l *LocalSource) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.open = false
		capture := l.capture
		l.capture = nil
		l.mu.Unlock()

		if capture != nil {
			capture.Stop()
		}

		l.cloud.Close()
		l.forwardWG.Wait()
		close(l.fragments)
		close(l.status)
		l.logger.Info().Msg("Local source closed")
	})
	return nil
}

// emitStatus delivers one status event unless the source is closed. The
// send happens under the mutex so Close cannot shut the channel between
// the check and the send.
func (l *LocalSource) emitStatus(st transcript.ConnectionStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	select {
	case l.status <- st:
	default:
	}
}

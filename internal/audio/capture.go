package audio

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
)

// CaptureOptions configures the ffmpeg capture process.
type CaptureOptions struct {
	FFmpegPath  string
	InputFormat string // pulse, alsa, avfoundation
	InputDevice string
	SampleRate  int
}

// Capture records from a local audio device via ffmpeg and delivers
// 16-bit mono PCM in fixed 100ms chunks. Reads from the process are
// decoupled from consumers through a ring buffer so a slow consumer
// loses old audio instead of backing up the pipe.
type Capture struct {
	opts      CaptureOptions
	logger    zerolog.Logger
	chunkSize int

	chunks chan []byte

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	running bool
	stopped bool
}

// NewCapture creates a capture handle. Nothing runs until Start.
func NewCapture(opts CaptureOptions, logger zerolog.Logger) *Capture {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.InputFormat == "" {
		opts.InputFormat = "pulse"
	}
	if opts.InputDevice == "" {
		opts.InputDevice = "default"
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = 16000
	}
	return &Capture{
		opts:      opts,
		logger:    logger.With().Str("component", "audio_capture").Logger(),
		chunkSize: opts.SampleRate / 10 * 2,
		chunks:    make(chan []byte, 16),
	}
}

func captureArgs(opts CaptureOptions) []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", opts.InputFormat,
		"-i", opts.InputDevice,
		"-ac", "1",
		"-ar", strconv.Itoa(opts.SampleRate),
		"-f", "s16le",
		"-",
	}
}

// Start spawns the capture process and begins chunking its output. The
// chunk channel closes when the process exits or Stop is called.
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return fmt.Errorf("capture already stopped")
	}
	if c.running {
		return nil
	}

	cmd := exec.Command(c.opts.FFmpegPath, captureArgs(c.opts)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create capture pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start audio capture: %w", err)
	}

	c.cmd = cmd
	c.stdout = stdout
	c.running = true

	go c.pump(stdout)

	c.logger.Info().
		Str("device", c.opts.InputDevice).
		Int("sample_rate", c.opts.SampleRate).
		Msg("Audio capture started")
	return nil
}

// pump reads process output into the ring buffer and drains it in
// chunk-sized pieces. Full chunk channel means the consumer is behind;
// the chunk is dropped.
func (c *Capture) pump(stdout io.Reader) {
	defer close(c.chunks)

	ring := NewRingBuffer(c.chunkSize * 8)
	readBuf := make([]byte, c.chunkSize)

	for {
		n, err := stdout.Read(readBuf)
		if n > 0 {
			if dropped := ring.Write(readBuf[:n]); dropped > 0 {
				c.logger.Warn().Int("bytes", dropped).Msg("Capture buffer overrun, dropping oldest audio")
			}
			for ring.Available() >= c.chunkSize {
				chunk := make([]byte, c.chunkSize)
				ring.Read(chunk)
				select {
				case c.chunks <- chunk:
				default:
					c.logger.Warn().Msg("Chunk consumer behind, dropping audio chunk")
				}
			}
		}
		if err != nil {
			c.mu.Lock()
			wasRunning := c.running
			c.running = false
			stopped := c.stopped
			c.mu.Unlock()

			if wasRunning && !stopped {
				c.logger.Warn().Err(err).Msg("Audio capture ended")
			}
			return
		}
	}
}

// Chunks returns the PCM chunk stream. Closed once capture ends.
func (c *Capture) Chunks() <-chan []byte {
	return c.chunks
}

// Running reports whether the capture process is live.
func (c *Capture) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Stop terminates the capture process and waits for it to exit.
// Idempotent.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	c.running = false
	cmd := c.cmd
	stdout := c.stdout
	c.cmd = nil
	c.stdout = nil
	c.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		cmd.Process.Signal(os.Interrupt)
	}
	if stdout != nil {
		stdout.Close()
	}
	if cmd != nil {
		cmd.Wait()
	}
	c.logger.Info().Msg("Audio capture stopped")
	return nil
}

package transcript

import (
	"strings"
	"time"
)

const (
	defaultBufferSize = 50
	contextWindowSize = 5
)

// SequencerConfig controls sequencing behavior for one session.
type SequencerConfig struct {
	// FinalOnly drops interim fragments; only committed text is emitted.
	FinalOnly bool

	// BufferSize bounds the rolling buffer of recent final texts.
	// Zero means the default of 50.
	BufferSize int
}

// Sequencer deduplicates and numbers fragments from one connector into
// segments. It is not safe for concurrent use: the session's ingest
// goroutine is its sole caller, which keeps segment numbering strictly
// sequential.
type Sequencer struct {
	sessionID string
	finalOnly bool

	next      uint64
	seenKeys  map[string]struct{}
	recent    []string
	maxRecent int
}

// NewSequencer creates a sequencer for one session. A sequencer carries no
// resume state; restarting means constructing a new one.
func NewSequencer(sessionID string, cfg SequencerConfig) *Sequencer {
	size := cfg.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}
	return &Sequencer{
		sessionID: sessionID,
		finalOnly: cfg.FinalOnly,
		seenKeys:  make(map[string]struct{}),
		maxRecent: size,
	}
}

// Process runs one fragment through dedup and sequencing. It returns the
// emitted segment, or false when the fragment was dropped (interim in
// final-only mode, empty text, or duplicate dedup key).
func (s *Sequencer) Process(frag Fragment) (Segment, bool) {
	text := strings.TrimSpace(frag.Text)
	if text == "" {
		return Segment{}, false
	}

	if s.finalOnly && !frag.IsFinal {
		return Segment{}, false
	}

	if frag.DedupKey != "" {
		if _, dup := s.seenKeys[frag.DedupKey]; dup {
			return Segment{}, false
		}
		s.seenKeys[frag.DedupKey] = struct{}{}
	}

	speaker := frag.Speaker
	if speaker == "" {
		speaker = "unknown"
	}

	seg := Segment{
		SessionID:     s.sessionID,
		SegmentNumber: s.next,
		Speaker:       speaker,
		Text:          text,
		IsFinal:       frag.IsFinal,
		Confidence:    frag.Confidence,
		Timestamp:     time.Now().UTC(),
		Context: SegmentContext{
			RecentSegments: s.recentWindow(),
			StartOffset:    frag.StartOffset,
			EndOffset:      frag.EndOffset,
		},
	}
	s.next++

	if frag.IsFinal {
		s.recent = append(s.recent, text)
		if len(s.recent) > s.maxRecent {
			s.recent = s.recent[1:]
		}
	}

	return seg, true
}

// recentWindow returns up to the last five final texts, oldest first.
func (s *Sequencer) recentWindow() []string {
	n := len(s.recent)
	if n == 0 {
		return nil
	}
	start := n - contextWindowSize
	if start < 0 {
		start = 0
	}
	window := make([]string, n-start)
	copy(window, s.recent[start:])
	return window
}

// Count returns how many segments have been emitted so far.
func (s *Sequencer) Count() uint64 {
	return s.next
}

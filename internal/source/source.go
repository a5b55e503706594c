package source

import (
	"context"

	"github.com/meetstream/meeting-gateway/internal/transcript"
)

// TranscriptSource is the capability contract every transcript backend
// implements. Open performs auth/handshake; Fragments and Status deliver
// until the source is closed. Close is idempotent and safe to call from a
// different goroutine than Open.
type TranscriptSource interface {
	Open(ctx context.Context) error
	Fragments() <-chan transcript.Fragment
	Status() <-chan transcript.ConnectionStatus
	Close() error
}

// AudioSink is implemented by sources that accept pushed audio frames
// (the cloud streaming variant).
type AudioSink interface {
	SendAudio(data []byte) error
}

// Poller is the pull-style fallback query for a source. Poll returns the
// full current fragment list; callers are responsible for dropping
// fragments whose index they have already seen.
type Poller interface {
	Poll(ctx context.Context) ([]transcript.Fragment, error)
}

package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/meetstream/meeting-gateway/internal/automation"
	"github.com/meetstream/meeting-gateway/internal/connector"
	"github.com/meetstream/meeting-gateway/internal/source"
	"github.com/meetstream/meeting-gateway/internal/transcript"
)

// fakeSource connects successfully and lets tests inject fragments.
type fakeSource struct {
	mu        sync.Mutex
	closed    bool
	fragments chan transcript.Fragment
	status    chan transcript.ConnectionStatus
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		fragments: make(chan transcript.Fragment, 16),
		status:    make(chan transcript.ConnectionStatus, 16),
	}
}

func (f *fakeSource) Open(ctx context.Context) error { return nil }

func (f *fakeSource) Fragments() <-chan transcript.Fragment { return f.fragments }

func (f *fakeSource) Status() <-chan transcript.ConnectionStatus { return f.status }

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.fragments)
		close(f.status)
	}
	return nil
}

// fakeSubscriber records delivered events; failSend makes every Send
// return an error.
type fakeSubscriber struct {
	mu       sync.Mutex
	events   []Event
	closed   bool
	failSend bool
}

func (s *fakeSubscriber) Send(event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSend {
		return errors.New("send failed")
	}
	s.events = append(s.events, event)
	return nil
}

func (s *fakeSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSubscriber) eventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *fakeSubscriber) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSubscriber) lastEvent() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return Event{}, false
	}
	return s.events[len(s.events)-1], true
}

// fakeAutomation records forwarded segments and answers commands.
type fakeAutomation struct {
	mu       sync.Mutex
	segments []transcript.Segment
	lastFull string
	response *automation.CommandResponse
	err      error
}

func (a *fakeAutomation) SendSegment(ctx context.Context, seg transcript.Segment) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.segments = append(a.segments, seg)
	return nil
}

func (a *fakeAutomation) SendCommand(ctx context.Context, sessionID, command, fullTranscript string, cmdCtx automation.CommandContext) (*automation.CommandResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastFull = fullTranscript
	if a.err != nil {
		return nil, a.err
	}
	return a.response, nil
}

func (a *fakeAutomation) segmentCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.segments)
}

func testRegistry(t *testing.T, src *fakeSource, client automation.Client) *Registry {
	t.Helper()
	factory := func(req StartRequest, logger zerolog.Logger) (source.TranscriptSource, source.Poller, error) {
		return src, nil, nil
	}
	cfg := connector.Config{
		MaxAttempts:  3,
		BaseDelay:    time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
	}
	return NewRegistry(factory, client, cfg, transcript.SequencerConfig{FinalOnly: true})
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("Condition not met before timeout")
}

func TestCreateAndStatus(t *testing.T) {
	src := newFakeSource()
	reg := testRegistry(t, src, nil)

	id, err := reg.Create(StartRequest{Source: transcript.SourceCloud, Name: "standup"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer reg.Stop(id)

	if reg.Count() != 1 {
		t.Errorf("Expected 1 session, got %d", reg.Count())
	}

	status, ok := reg.Status(id)
	if !ok {
		t.Fatal("Expected status for active session")
	}
	if status.SessionID != id {
		t.Errorf("Expected session id %q, got %q", id, status.SessionID)
	}
	if status.SessionName != "standup" {
		t.Errorf("Expected session name standup, got %q", status.SessionName)
	}
	if status.Source != transcript.SourceCloud {
		t.Errorf("Expected source cloud, got %q", status.Source)
	}
}

func TestCreateRejectsUnknownSource(t *testing.T) {
	reg := testRegistry(t, newFakeSource(), nil)
	if _, err := reg.Create(StartRequest{Source: "carrier_pigeon"}); err == nil {
		t.Error("Expected error for unknown source")
	}
}

func TestCreatePropagatesFactoryError(t *testing.T) {
	factory := func(req StartRequest, logger zerolog.Logger) (source.TranscriptSource, source.Poller, error) {
		return nil, nil, transcript.ErrMissingCredentials
	}
	reg := NewRegistry(factory, nil, connector.DefaultConfig(), transcript.SequencerConfig{})

	_, err := reg.Create(StartRequest{Source: transcript.SourceCloud})
	if !errors.Is(err, transcript.ErrMissingCredentials) {
		t.Errorf("Expected ErrMissingCredentials, got %v", err)
	}
}

func TestFragmentsReachSubscribersAndAutomation(t *testing.T) {
	src := newFakeSource()
	auto := &fakeAutomation{}
	reg := testRegistry(t, src, auto)

	id, err := reg.Create(StartRequest{Source: transcript.SourceCloud})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer reg.Stop(id)

	sub := &fakeSubscriber{}
	if err := reg.Subscribe(id, sub); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	src.fragments <- transcript.Fragment{Text: "hello there", IsFinal: true, Speaker: "alice", Index: -1, Source: transcript.SourceCloud}

	waitFor(t, time.Second, func() bool { return auto.segmentCount() == 1 })
	waitFor(t, time.Second, func() bool {
		last, ok := sub.lastEvent()
		return ok && last.Kind == EventTranscriptUpdate
	})

	status, _ := reg.Status(id)
	if status.SegmentCount != 1 {
		t.Errorf("Expected 1 segment, got %d", status.SegmentCount)
	}
	if status.SpeakerStats["alice"] != 1 {
		t.Errorf("Expected 1 segment for alice, got %d", status.SpeakerStats["alice"])
	}
	if status.ActiveSubscribers != 1 {
		t.Errorf("Expected 1 subscriber, got %d", status.ActiveSubscribers)
	}
}

func TestStopClosesSubscribersAndRemovesSession(t *testing.T) {
	src := newFakeSource()
	reg := testRegistry(t, src, nil)

	id, err := reg.Create(StartRequest{Source: transcript.SourceBotRealtime})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	subs := []*fakeSubscriber{{}, {}, {}}
	for _, sub := range subs {
		if err := reg.Subscribe(id, sub); err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}
	}

	if err := reg.Stop(id); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	for i, sub := range subs {
		if !sub.isClosed() {
			t.Errorf("Expected subscriber %d to be closed", i)
		}
	}
	if _, ok := reg.Status(id); ok {
		t.Error("Expected no status after stop")
	}
	if err := reg.Stop(id); !errors.Is(err, transcript.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second stop, got %v", err)
	}
}

func TestBroadcastDropsOnlyFailingSubscriber(t *testing.T) {
	src := newFakeSource()
	reg := testRegistry(t, src, nil)

	id, err := reg.Create(StartRequest{Source: transcript.SourceCloud})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer reg.Stop(id)

	healthy1 := &fakeSubscriber{}
	failing := &fakeSubscriber{failSend: true}
	healthy2 := &fakeSubscriber{}
	for _, sub := range []Subscriber{healthy1, failing, healthy2} {
		if err := reg.Subscribe(id, sub); err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}
	}

	src.fragments <- transcript.Fragment{Text: "update one", IsFinal: true, Index: -1, Source: transcript.SourceCloud}

	waitFor(t, time.Second, func() bool {
		return healthy1.eventCount() == 1 && healthy2.eventCount() == 1
	})
	waitFor(t, time.Second, func() bool { return failing.isClosed() })

	status, _ := reg.Status(id)
	if status.ActiveSubscribers != 2 {
		t.Errorf("Expected 2 subscribers after drop, got %d", status.ActiveSubscribers)
	}
}

func TestForwardCommand(t *testing.T) {
	src := newFakeSource()
	auto := &fakeAutomation{response: &automation.CommandResponse{
		Response:    "Summary so far: greetings.",
		Suggestions: []string{"Ask about the agenda"},
	}}
	reg := testRegistry(t, src, auto)

	id, err := reg.Create(StartRequest{Source: transcript.SourceCloud})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer reg.Stop(id)

	sub := &fakeSubscriber{}
	if err := reg.Subscribe(id, sub); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	src.fragments <- transcript.Fragment{Text: "hello", IsFinal: true, Index: -1, Source: transcript.SourceCloud}
	src.fragments <- transcript.Fragment{Text: "world", IsFinal: true, Index: -1, Source: transcript.SourceCloud}
	waitFor(t, time.Second, func() bool {
		status, _ := reg.Status(id)
		return status != nil && status.SegmentCount == 2
	})

	resp, err := reg.ForwardCommand(context.Background(), id, "summarize")
	if err != nil {
		t.Fatalf("ForwardCommand failed: %v", err)
	}
	if resp.Response != "Summary so far: greetings." {
		t.Errorf("Unexpected response: %q", resp.Response)
	}

	auto.mu.Lock()
	full := auto.lastFull
	auto.mu.Unlock()
	if full != "hello world" {
		t.Errorf("Expected full transcript %q, got %q", "hello world", full)
	}

	last, ok := sub.lastEvent()
	if !ok || last.Kind != EventCommandResponse {
		t.Errorf("Expected command_response broadcast, got %+v", last)
	}
}

func TestForwardCommandUnknownSession(t *testing.T) {
	reg := testRegistry(t, newFakeSource(), &fakeAutomation{})
	if _, err := reg.ForwardCommand(context.Background(), "missing", "summarize"); !errors.Is(err, transcript.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestBroadcastSuggestions(t *testing.T) {
	src := newFakeSource()
	reg := testRegistry(t, src, nil)

	id, err := reg.Create(StartRequest{Source: transcript.SourceLocal})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer reg.Stop(id)

	sub := &fakeSubscriber{}
	if err := reg.Subscribe(id, sub); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := reg.BroadcastSuggestions(id, []string{"Follow up on deadlines"}); err != nil {
		t.Fatalf("BroadcastSuggestions failed: %v", err)
	}

	last, ok := sub.lastEvent()
	if !ok || last.Kind != EventSuggestionUpdate {
		t.Errorf("Expected suggestion_update, got %+v", last)
	}
}

func TestShutdownStopsAllSessions(t *testing.T) {
	reg := testRegistry(t, newFakeSource(), nil)

	// Each session needs its own source; rebuild the factory per call.
	sources := make([]*fakeSource, 0, 3)
	reg.factory = func(req StartRequest, logger zerolog.Logger) (source.TranscriptSource, source.Poller, error) {
		src := newFakeSource()
		sources = append(sources, src)
		return src, nil, nil
	}

	for i := 0; i < 3; i++ {
		if _, err := reg.Create(StartRequest{Source: transcript.SourceCloud}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	if reg.Count() != 3 {
		t.Fatalf("Expected 3 sessions, got %d", reg.Count())
	}

	reg.Shutdown()

	if reg.Count() != 0 {
		t.Errorf("Expected 0 sessions after shutdown, got %d", reg.Count())
	}
	for i, src := range sources {
		src.mu.Lock()
		closed := src.closed
		src.mu.Unlock()
		if !closed {
			t.Errorf("Expected source %d to be closed", i)
		}
	}
}

package deepgram

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"

	"github.com/sjawhar/pitchspeak/internal/transcript"
	"github.com/sjawhar/pitchspeak/internal/transport"
)

type recordedEvents struct {
	mu          sync.Mutex
	calls       []string
	transcripts []transcript.Entry
	failures    []error
}

func (e *recordedEvents) add(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, name)
}

func (e *recordedEvents) Connected() { e.add("connected") }
func (e *recordedEvents) Ended()     { e.add("ended") }
func (e *recordedEvents) StartFailed(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, "start_failed")
	e.failures = append(e.failures, err)
}
func (e *recordedEvents) FinalTranscript(role transcript.Role, text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, "transcript")
	e.transcripts = append(e.transcripts, transcript.Entry{Role: role, Text: text})
}

func (e *recordedEvents) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

type fakeConn struct {
	mu        sync.Mutex
	connectOK bool
	written   int
	stopped   int
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written += len(p)
	return len(p), nil
}

func (c *fakeConn) Connect() bool { return c.connectOK }

func (c *fakeConn) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped++
}

type fakeSource struct {
	mu       sync.Mutex
	startErr error
	started  bool
	stopped  chan struct{}
	once     sync.Once
}

func newFakeSource() *fakeSource {
	return &fakeSource{stopped: make(chan struct{})}
}

func (s *fakeSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return s.startErr
}

func (s *fakeSource) Stream(w io.Writer) error {
	if _, err := w.Write(make([]byte, 320)); err != nil {
		return err
	}
	<-s.stopped
	return nil
}

func (s *fakeSource) Stop() error {
	s.once.Do(func() { close(s.stopped) })
	return nil
}

func newTestTransport(t *testing.T, conn *fakeConn, source *fakeSource, events transport.Events) (*Transport, *interfaces.LiveTranscriptionOptions) {
	t.Helper()
	var captured *interfaces.LiveTranscriptionOptions
	dial := func(_ context.Context, _ string, _ *interfaces.ClientOptions, tOptions *interfaces.LiveTranscriptionOptions, _ api.LiveMessageCallback) (liveConn, error) {
		captured = tOptions
		return conn, nil
	}
	d := New(source, events, Options{APIKey: "dg", UserSpeaker: 0}, withDialer(dial))
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { _ = d.Stop(context.Background()) })
	return d, captured
}

func finalMessage(speechFinal bool, words ...api.Word) *api.MessageResponse {
	text := ""
	for _, w := range words {
		text += w.PunctuatedWord + " "
	}
	return &api.MessageResponse{
		IsFinal:     true,
		SpeechFinal: speechFinal,
		Channel: api.Channel{Alternatives: []api.Alternative{{
			Transcript: text,
			Words:      words,
		}}},
	}
}

func word(speaker int, text string) api.Word {
	s := speaker
	return api.Word{Speaker: &s, PunctuatedWord: text}
}

func TestTransportStartConfiguresStream(t *testing.T) {
	source := newFakeSource()
	_, opts := newTestTransport(t, &fakeConn{connectOK: true}, source, &recordedEvents{})

	if opts == nil || !opts.Diarize || opts.Encoding != "linear16" || opts.SampleRate != 16000 || opts.Model != "nova-2" {
		t.Fatalf("unexpected transcription options: %+v", opts)
	}
	if !source.started {
		t.Fatal("expected audio source to be started")
	}
}

func TestTransportConnectFailure(t *testing.T) {
	dial := func(context.Context, string, *interfaces.ClientOptions, *interfaces.LiveTranscriptionOptions, api.LiveMessageCallback) (liveConn, error) {
		return &fakeConn{connectOK: false}, nil
	}
	d := New(newFakeSource(), &recordedEvents{}, Options{}, withDialer(dial))

	if err := d.Start(context.Background()); !errors.Is(err, ErrConnectFailed) {
		t.Fatalf("expected ErrConnectFailed, got %v", err)
	}
}

func TestTransportFinalWordsMapToRoles(t *testing.T) {
	events := &recordedEvents{}
	d, _ := newTestTransport(t, &fakeConn{connectOK: true}, newFakeSource(), events)

	_ = d.Open(&api.OpenResponse{})
	_ = d.Message(&api.MessageResponse{
		IsFinal: false,
		Channel: api.Channel{Alternatives: []api.Alternative{{Transcript: "I ne"}}},
	})
	_ = d.Message(finalMessage(false, word(0, "I"), word(0, "need")))
	_ = d.Message(finalMessage(true, word(0, "an"), word(0, "app."), word(1, "Which"), word(1, "platform?")))

	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.transcripts) != 2 {
		t.Fatalf("expected 2 transcripts, got %+v", events.transcripts)
	}
	if events.transcripts[0].Role != transcript.RoleUser || events.transcripts[0].Text != "I need an app." {
		t.Fatalf("unexpected user turn: %+v", events.transcripts[0])
	}
	if events.transcripts[1].Role != transcript.RoleAssistant || events.transcripts[1].Text != "Which platform?" {
		t.Fatalf("unexpected assistant turn: %+v", events.transcripts[1])
	}
}

func TestTransportStopFlushesAndEndsOnce(t *testing.T) {
	events := &recordedEvents{}
	conn := &fakeConn{connectOK: true}
	d, _ := newTestTransport(t, conn, newFakeSource(), events)

	_ = d.Open(&api.OpenResponse{})
	_ = d.Message(finalMessage(false, word(0, "Pending"), word(0, "words.")))

	if err := d.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	_ = d.Close(&api.CloseResponse{})
	if err := d.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}

	want := []string{"connected", "transcript", "ended"}
	got := events.Calls()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if conn.stopped != 1 {
		t.Fatalf("expected connection stopped once, got %d", conn.stopped)
	}
}

func TestTransportErrorBeforeOpenIsStartFailure(t *testing.T) {
	events := &recordedEvents{}
	d, _ := newTestTransport(t, &fakeConn{connectOK: true}, newFakeSource(), events)

	_ = d.Error(&api.ErrorResponse{ErrCode: "401", Description: "bad key"})

	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.failures) != 1 {
		t.Fatalf("expected one start failure, got %v", events.failures)
	}
}

func TestTransportSilenceEndsCall(t *testing.T) {
	events := &recordedEvents{}
	dial := func(context.Context, string, *interfaces.ClientOptions, *interfaces.LiveTranscriptionOptions, api.LiveMessageCallback) (liveConn, error) {
		return &fakeConn{connectOK: true}, nil
	}
	d := New(newFakeSource(), events, Options{SilenceTimeout: 20 * time.Millisecond}, withDialer(dial))
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	_ = d.Open(&api.OpenResponse{})
	_ = d.UtteranceEnd(&api.UtteranceEndResponse{})

	deadline := time.After(time.Second)
	for {
		calls := events.Calls()
		if len(calls) > 0 && calls[len(calls)-1] == "ended" {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("expected silence to end the call, got %v", calls)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

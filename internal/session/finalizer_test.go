package session

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sjawhar/pitchspeak/internal/estimate"
	"github.com/sjawhar/pitchspeak/internal/llm"
	"github.com/sjawhar/pitchspeak/internal/quota"
	"github.com/sjawhar/pitchspeak/internal/storage"
	"github.com/sjawhar/pitchspeak/internal/summary"
	"github.com/sjawhar/pitchspeak/internal/transcript"
)

type fakeSummarizer struct {
	mu      sync.Mutex
	calls   int
	results []error
	result  estimate.Result
}

// halfwayProgress returns an estimator whose clock reads halfway through the
// expected duration on every call after Start.
func halfwayProgress() *summary.Progress {
	base := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	var reads atomic.Int32
	now := func() time.Time {
		if reads.Add(1) == 1 {
			return base
		}
		return base.Add(10 * time.Second)
	}
	return summary.NewProgress(20*time.Second, now)
}

func (s *fakeSummarizer) NewProgress() *summary.Progress { return halfwayProgress() }

func (s *fakeSummarizer) Summarize(_ context.Context, snapshot []transcript.Entry, progress *summary.Progress) (estimate.Result, error) {
	if progress != nil {
		progress.Start()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(snapshot) == 0 {
		return estimate.Result{}, &summary.Error{Kind: summary.KindEmptyTranscript}
	}
	if len(s.results) > 0 {
		err := s.results[0]
		s.results = s.results[1:]
		if err != nil {
			return estimate.Result{}, err
		}
	}
	return s.result, nil
}

func (s *fakeSummarizer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeStore struct {
	mu    sync.Mutex
	calls int
	errs  []error
	saved []estimate.Result
}

func (s *fakeStore) Save(_ context.Context, _ string, result estimate.Result, _ []transcript.Entry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return "", err
		}
	}
	s.saved = append(s.saved, result)
	return "conv-1", nil
}

func sampleEstimate() estimate.Result {
	return estimate.Result{
		ProjectSummary: "Booking app",
		FullSummary:    "Client wants a booking app.",
		Estimation:     estimate.Estimation{Features: []string{"calendar"}},
	}
}

func oneEntry() []transcript.Entry {
	return []transcript.Entry{{Role: transcript.RoleUser, Text: "hello", Timestamp: 1}}
}

func TestFinalizeSavesSummary(t *testing.T) {
	pipeline := &fakeSummarizer{result: sampleEstimate()}
	store := &fakeStore{}
	listener := newRecordingListener()
	f := NewFinalizer(pipeline, store, listener)

	id, err := f.Finalize(context.Background(), "alice", oneEntry())
	require.NoError(t, err)
	assert.Equal(t, "conv-1", id)
	assert.False(t, f.Pending())
	assert.Equal(t, []string{"saved"}, listener.Events())
}

func TestRetryAfterStoreFailureOnlySaves(t *testing.T) {
	pipeline := &fakeSummarizer{result: sampleEstimate()}
	store := &fakeStore{errs: []error{errors.New("disk full")}}
	listener := newRecordingListener()
	f := NewFinalizer(pipeline, store, listener)
	ctx := context.Background()

	_, err := f.Finalize(ctx, "alice", oneEntry())
	assert.ErrorIs(t, err, ErrStoreFailure)
	assert.True(t, f.Pending())

	id, err := f.Retry(ctx)
	require.NoError(t, err)
	assert.Equal(t, "conv-1", id)
	assert.Equal(t, 1, pipeline.Calls(), "summary is not recomputed on save retry")
	assert.Equal(t, 2, store.calls)
	assert.False(t, f.Pending())
	assert.Equal(t, []string{"save_failed", "saved"}, listener.Events())
}

func TestRetryAfterSummaryFailureResummarizesSameSnapshot(t *testing.T) {
	pipeline := &fakeSummarizer{
		result:  sampleEstimate(),
		results: []error{&summary.Error{Kind: summary.KindMalformedResponse, Raw: "not json"}},
	}
	store := &fakeStore{}
	listener := newRecordingListener()
	f := NewFinalizer(pipeline, store, listener)
	ctx := context.Background()

	_, err := f.Finalize(ctx, "alice", oneEntry())
	assert.ErrorIs(t, err, summary.ErrMalformedResponse)
	assert.Equal(t, 0, store.calls, "nothing persisted on malformed response")

	_, err = f.Retry(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pipeline.Calls())
	assert.Equal(t, 1, store.calls)
}

func TestRetryWithNothingPending(t *testing.T) {
	f := NewFinalizer(&fakeSummarizer{}, &fakeStore{}, nil)
	_, err := f.Retry(context.Background())
	assert.ErrorIs(t, err, ErrNothingToRetry)
}

func TestEmptyTranscriptIsNotRetried(t *testing.T) {
	pipeline := &fakeSummarizer{}
	store := &fakeStore{}
	f := NewFinalizer(pipeline, store, nil)

	_, err := f.Finalize(context.Background(), "alice", nil)
	assert.ErrorIs(t, err, summary.ErrEmptyTranscript)
	assert.False(t, f.Pending())
	assert.Equal(t, 0, store.calls)
}

type progressListener struct {
	NopListener
	mu     sync.Mutex
	values []int
}

func (l *progressListener) SummaryProgress(p int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.values = append(l.values, p)
}

type slowSummarizer struct{ fakeSummarizer }

func (s *slowSummarizer) Summarize(ctx context.Context, snapshot []transcript.Entry, progress *summary.Progress) (estimate.Result, error) {
	progress.Start()
	time.Sleep(60 * time.Millisecond)
	return s.fakeSummarizer.Summarize(ctx, snapshot, nil)
}

func TestFinalizeReportsProgress(t *testing.T) {
	listener := &progressListener{}
	pipeline := &slowSummarizer{fakeSummarizer{result: sampleEstimate()}}
	f := NewFinalizer(pipeline, &fakeStore{}, listener, WithProgressInterval(10*time.Millisecond))

	_, err := f.Finalize(context.Background(), "alice", oneEntry())
	require.NoError(t, err)

	listener.mu.Lock()
	defer listener.mu.Unlock()
	require.NotEmpty(t, listener.values)
	assert.Equal(t, 100, listener.values[len(listener.values)-1])
	assert.Contains(t, listener.values, 47)
}

type scriptedLLM struct {
	mu    sync.Mutex
	calls int
	reply string
}

func (s *scriptedLLM) Complete(context.Context, []llm.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.reply, nil
}

func TestEndToEndConversationIsSaved(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "e2e.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	const limit = 3
	gate := quota.NewGate(store, limit, 24*time.Hour)
	// Two earlier attempts leave one remaining.
	gate.TryConsume(ctx, "alice")
	gate.TryConsume(ctx, "alice")
	require.Equal(t, 1, gate.Peek(ctx, "alice").Remaining)

	collaborator := &scriptedLLM{reply: "```json\n" + `{"projectSummary":"Salon booking app","estimation":{"timeframe":"3 months","complexity":"Medium","features":["calendar","payments"]},"fullSummary":"The client wants a salon booking app."}` + "\n```"}
	pipeline := summary.NewPipeline(collaborator)
	listener := newRecordingListener()
	finalizer := NewFinalizer(pipeline, store, listener)

	c := NewController(gate, transcript.NewLog(), WithHandoff(finalizer), WithListener(listener))
	tr := &fakeTransport{}
	c.SetTransport(tr)

	outcome, err := c.RequestStart(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, StartConnecting, outcome)
	assert.Equal(t, 0, gate.Peek(ctx, "alice").Remaining)

	c.Connected()
	c.FinalTranscript(transcript.RoleUser, "I need a booking app for my salon.")
	c.FinalTranscript(transcript.RoleAssistant, "Do you need online payments?")
	c.Ended()

	var id string
	select {
	case id = <-listener.saved:
	case err := <-listener.failed:
		t.Fatalf("conversation failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for save")
	}
	c.Wait()

	rec, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.OwnerID)
	assert.Equal(t, "Salon booking app", rec.ProjectSummary)
	assert.Equal(t, []string{"calendar", "payments"}, rec.Estimation.Features)
	require.Len(t, rec.Transcripts, 2)
	assert.Equal(t, transcript.RoleUser, rec.Transcripts[0].Role)
	assert.Equal(t, 1, collaborator.calls)

	// The quota is now exhausted.
	_, err = c.RequestStart(ctx, "alice")
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	starts, _ := tr.Counts()
	assert.Equal(t, 1, starts)
}

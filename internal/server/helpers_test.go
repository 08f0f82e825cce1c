package server

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sjawhar/pitchspeak/internal/estimate"
	"github.com/sjawhar/pitchspeak/internal/quota"
	"github.com/sjawhar/pitchspeak/internal/storage"
	"github.com/sjawhar/pitchspeak/internal/summary"
	"github.com/sjawhar/pitchspeak/internal/transcript"
)

const (
	testOwner      = "user-1"
	testAdminToken = "admin-secret"
)

func testStaticFS(t *testing.T) fs.FS {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>ok</html>"), 0o644); err != nil {
		t.Fatalf("write index.html failed: %v", err)
	}
	return os.DirFS(dir)
}

func newTestStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleResult() estimate.Result {
	return estimate.Result{
		ProjectSummary: "Booking app for a salon",
		Estimation: estimate.Estimation{
			Timeframe:  "6-8 weeks",
			Complexity: "Medium",
			Features:   []string{"Online booking", "Reminders"},
		},
		FullSummary: "The client wants a booking app.",
	}
}

type stubSummarizer struct {
	mu     sync.Mutex
	result estimate.Result
	err    error
	calls  int
	last   []transcript.Entry
}

func (s *stubSummarizer) NewProgress() *summary.Progress { return summary.NewProgress(0, nil) }

func (s *stubSummarizer) Summarize(_ context.Context, snapshot []transcript.Entry, _ *summary.Progress) (estimate.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.last = snapshot
	return s.result, s.err
}

type fakeMailer struct {
	to  string
	pdf []byte
	err error
}

func (m *fakeMailer) Send(_ context.Context, to string, _ estimate.Record, pdf []byte) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.to = to
	m.pdf = pdf
	return "msg-1", nil
}

type fakeDrive struct {
	uploads int
}

func (d *fakeDrive) Upload(context.Context, estimate.Record, []byte) (string, error) {
	d.uploads++
	return "file-1", nil
}

type testEnv struct {
	store      *storage.SQLiteStore
	gate       *quota.Gate
	summarizer *stubSummarizer
	hub        *Hub
	opts       Options
}

func newTestEnv(t *testing.T, limit int) *testEnv {
	t.Helper()
	store := newTestStore(t)
	env := &testEnv{
		store:      store,
		gate:       quota.NewGate(store, limit, 24*time.Hour),
		summarizer: &stubSummarizer{result: sampleResult()},
		hub:        NewHub(),
	}
	env.opts = Options{
		Gate:             env.gate,
		Summarizer:       env.summarizer,
		AdminToken:       testAdminToken,
		PageSize:         10,
		QuotaBackend:     "sqlite",
		ProgressInterval: 10 * time.Millisecond,
	}
	return env
}

package session

import (
	"context"
	"sync"
	"time"

	"github.com/sjawhar/pitchspeak/internal/quota"
)

type fakeGate struct {
	mu       sync.Mutex
	calls    int
	allow    bool
	release  chan struct{}
	decision quota.Decision
}

func newFakeGate(allow bool) *fakeGate {
	return &fakeGate{allow: allow}
}

func (g *fakeGate) TryConsume(_ context.Context, _ string) quota.Decision {
	if g.release != nil {
		<-g.release
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	d := g.decision
	d.Allowed = g.allow
	if d.ResetAt.IsZero() {
		d.ResetAt = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	}
	return d
}

func (g *fakeGate) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fakeTransport struct {
	mu       sync.Mutex
	starts   int
	stops    int
	startErr error
	onStart  func()
}

func (t *fakeTransport) Start(context.Context) error {
	t.mu.Lock()
	t.starts++
	err := t.startErr
	onStart := t.onStart
	t.mu.Unlock()
	if err == nil && onStart != nil {
		onStart()
	}
	return err
}

func (t *fakeTransport) Stop(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stops++
	return nil
}

func (t *fakeTransport) Counts() (int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.starts, t.stops
}

// recordingListener captures event names in order.
type recordingListener struct {
	mu     sync.Mutex
	events []string
	errs   []error
	saved  chan string
	failed chan error
}

func newRecordingListener() *recordingListener {
	return &recordingListener{saved: make(chan string, 4), failed: make(chan error, 4)}
}

func (l *recordingListener) record(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, name)
}

func (l *recordingListener) recordErr(name string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, name)
	l.errs = append(l.errs, err)
}

func (l *recordingListener) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *recordingListener) Errors() []error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]error(nil), l.errs...)
}

func (l *recordingListener) AuthRequired() { l.record("auth_required") }
func (l *recordingListener) QuotaRefused(quota.Decision) { l.record("quota_refused") }
func (l *recordingListener) Connecting(quota.Decision) { l.record("connecting") }
func (l *recordingListener) Connected() { l.record("connected") }
func (l *recordingListener) Ended(int) { l.record("ended") }
func (l *recordingListener) TransportFailed(err error) { l.recordErr("transport_failed", err) }
func (l *recordingListener) SummaryProgress(int) {}
func (l *recordingListener) SummaryFailed(err error) {
	l.recordErr("summary_failed", err)
	l.failed <- err
}
func (l *recordingListener) SaveFailed(err error) {
	l.recordErr("save_failed", err)
	l.failed <- err
}
func (l *recordingListener) Saved(id string) {
	l.record("saved")
	l.saved <- id
}

package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sjawhar/pitchspeak/internal/estimate"
	"github.com/sjawhar/pitchspeak/internal/summary"
	"github.com/sjawhar/pitchspeak/internal/transcript"
)

const defaultProgressInterval = 500 * time.Millisecond

type pendingConversation struct {
	owner    string
	snapshot []transcript.Entry
	result   *estimate.Result
}

// Finalizer summarizes an ended session and saves the result. The most
// recent failed conversation is kept for Retry: if the summary succeeded
// only the save is repeated, otherwise the same snapshot is summarized
// again.
type Finalizer struct {
	pipeline Summarizer
	store    Store
	listener Listener
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	pending *pendingConversation
}

type FinalizerOption func(*Finalizer)

func WithProgressInterval(d time.Duration) FinalizerOption {
	return func(f *Finalizer) {
		if d > 0 {
			f.interval = d
		}
	}
}

func WithFinalizerLogger(logger *slog.Logger) FinalizerOption {
	return func(f *Finalizer) { f.logger = logger }
}

func NewFinalizer(pipeline Summarizer, store Store, listener Listener, opts ...FinalizerOption) *Finalizer {
	if listener == nil {
		listener = NopListener{}
	}
	f := &Finalizer{
		pipeline: pipeline,
		store:    store,
		listener: listener,
		interval: defaultProgressInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Finalize summarizes snapshot and saves it for ownerID, returning the new
// conversation id.
func (f *Finalizer) Finalize(ctx context.Context, ownerID string, snapshot []transcript.Entry) (string, error) {
	return f.process(ctx, &pendingConversation{owner: ownerID, snapshot: snapshot})
}

// Retry repeats the failed step of the last failed conversation.
func (f *Finalizer) Retry(ctx context.Context) (string, error) {
	f.mu.Lock()
	p := f.pending
	f.pending = nil
	f.mu.Unlock()

	if p == nil {
		return "", ErrNothingToRetry
	}
	return f.process(ctx, p)
}

// Pending reports whether a failed conversation is waiting for Retry.
func (f *Finalizer) Pending() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending != nil
}

func (f *Finalizer) process(ctx context.Context, p *pendingConversation) (string, error) {
	if p.result == nil {
		result, err := f.summarize(ctx, p.snapshot)
		if err != nil {
			if summary.KindOf(err) != summary.KindEmptyTranscript {
				f.keep(p)
			}
			f.listener.SummaryFailed(err)
			return "", err
		}
		p.result = &result
	}

	id, err := f.store.Save(ctx, p.owner, *p.result, p.snapshot)
	if err != nil {
		f.keep(p)
		serr := &StoreError{Err: err}
		f.logger.Error("summary computed but not saved", "owner", p.owner, "error", err)
		f.listener.SaveFailed(serr)
		return "", serr
	}

	f.logger.Info("conversation saved", "owner", p.owner, "id", id)
	f.listener.Saved(id)
	return id, nil
}

func (f *Finalizer) keep(p *pendingConversation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = p
}

// summarize runs the pipeline while reporting its progress to the listener.
func (f *Finalizer) summarize(ctx context.Context, snapshot []transcript.Entry) (estimate.Result, error) {
	progress := f.pipeline.NewProgress()
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				f.listener.SummaryProgress(progress.Value())
			}
		}
	}()

	result, err := f.pipeline.Summarize(ctx, snapshot, progress)
	close(done)
	<-stopped

	if err == nil {
		f.listener.SummaryProgress(100)
	}
	return result, err
}

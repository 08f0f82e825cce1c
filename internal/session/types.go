package session

import (
	"context"

	"github.com/sjawhar/pitchspeak/internal/estimate"
	"github.com/sjawhar/pitchspeak/internal/quota"
	"github.com/sjawhar/pitchspeak/internal/summary"
	"github.com/sjawhar/pitchspeak/internal/transcript"
)

type Gate interface {
	TryConsume(ctx context.Context, ownerID string) quota.Decision
}

// Summarizer turns a transcript snapshot into an estimate. Each attempt gets
// its own progress estimator from NewProgress.
type Summarizer interface {
	NewProgress() *summary.Progress
	Summarize(ctx context.Context, snapshot []transcript.Entry, progress *summary.Progress) (estimate.Result, error)
}

type Store interface {
	Save(ctx context.Context, ownerID string, result estimate.Result, transcripts []transcript.Entry) (string, error)
}

// Handoff receives the transcript of every session that ended while connected.
type Handoff interface {
	Finalize(ctx context.Context, ownerID string, snapshot []transcript.Entry) (string, error)
}

// Listener observes a session's lifecycle. Methods may be called from
// background goroutines and must not block for long.
type Listener interface {
	AuthRequired()
	QuotaRefused(d quota.Decision)
	Connecting(d quota.Decision)
	Connected()
	Ended(entries int)
	TransportFailed(err error)
	SummaryProgress(percent int)
	SummaryFailed(err error)
	SaveFailed(err error)
	Saved(id string)
}

// NopListener ignores every event. Embed it to observe only some events.
type NopListener struct{}

func (NopListener) AuthRequired() {}
func (NopListener) QuotaRefused(quota.Decision) {}
func (NopListener) Connecting(quota.Decision) {}
func (NopListener) Connected() {}
func (NopListener) Ended(int) {}
func (NopListener) TransportFailed(error) {}
func (NopListener) SummaryProgress(int) {}
func (NopListener) SummaryFailed(error) {}
func (NopListener) SaveFailed(error) {}
func (NopListener) Saved(string) {}

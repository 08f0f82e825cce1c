// Package summary turns a finished conversation transcript into a structured
// project estimate.
package summary

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sjawhar/pitchspeak/internal/estimate"
	"github.com/sjawhar/pitchspeak/internal/llm"
	"github.com/sjawhar/pitchspeak/internal/transcript"
)

const DefaultTimeout = 30 * time.Second

// Pipeline calls the summarization collaborator once per transcript snapshot.
// Concurrent requests for an identical snapshot share a single call. Failed
// attempts are not retried. A Pipeline is safe to share between sessions;
// each attempt reports through its own Progress.
type Pipeline struct {
	client       llm.Client
	systemPrompt string
	timeout      time.Duration
	expected     time.Duration
	now          func() time.Time
	group        singleflight.Group
	logger       *slog.Logger
}

type Option func(*pipelineOptions)

type pipelineOptions struct {
	systemPrompt string
	timeout      time.Duration
	expected     time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

func WithSystemPrompt(prompt string) Option {
	return func(o *pipelineOptions) {
		if strings.TrimSpace(prompt) != "" {
			o.systemPrompt = prompt
		}
	}
}

// WithTimeout bounds a single collaborator call.
func WithTimeout(d time.Duration) Option {
	return func(o *pipelineOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithExpectedDuration sets how long progress takes to approach its ceiling.
func WithExpectedDuration(d time.Duration) Option {
	return func(o *pipelineOptions) { o.expected = d }
}

func WithClock(now func() time.Time) Option {
	return func(o *pipelineOptions) { o.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *pipelineOptions) { o.logger = logger }
}

func NewPipeline(client llm.Client, opts ...Option) *Pipeline {
	o := pipelineOptions{
		systemPrompt: DefaultSystemPrompt,
		timeout:      DefaultTimeout,
		expected:     20 * time.Second,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Pipeline{
		client:       client,
		systemPrompt: o.systemPrompt,
		timeout:      o.timeout,
		expected:     o.expected,
		now:          o.now,
		logger:       o.logger,
	}
}

// NewProgress returns an idle estimator for one summarization attempt.
func (p *Pipeline) NewProgress() *Progress {
	return NewProgress(p.expected, p.now)
}

// Summarize produces an estimate from snapshot, reporting through progress.
// A nil progress is allowed. The snapshot is only read.
func (p *Pipeline) Summarize(ctx context.Context, snapshot []transcript.Entry, progress *Progress) (estimate.Result, error) {
	if len(snapshot) == 0 {
		return estimate.Result{}, &Error{Kind: KindEmptyTranscript}
	}
	if progress == nil {
		progress = p.NewProgress()
	}
	progress.Start()

	dialogue := transcript.Dialogue(snapshot)
	v, err, shared := p.group.Do(promptHash(dialogue), func() (any, error) {
		return p.run(ctx, dialogue)
	})
	if shared {
		p.logger.Debug("summary request shared with in-flight call", "entries", len(snapshot))
	}
	if err != nil {
		progress.Fail()
		return estimate.Result{}, err
	}
	progress.Complete()
	return v.(estimate.Result), nil
}

func (p *Pipeline) run(ctx context.Context, dialogue string) (estimate.Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	started := time.Now()
	raw, err := p.client.Complete(callCtx, buildMessages(p.systemPrompt, dialogue))
	if err != nil {
		p.logger.Warn("summarization call failed", "error", err, "elapsed", time.Since(started))
		return estimate.Result{}, &Error{Kind: KindCollaboratorUnavailable, Err: err}
	}

	result, err := ParseResult(raw)
	if err != nil {
		p.logger.Warn("summarization reply rejected", "error", err, "bytes", len(raw))
		return estimate.Result{}, &Error{Kind: KindMalformedResponse, Raw: raw, Err: err}
	}

	p.logger.Info("conversation summarized", "features", len(result.Estimation.Features), "elapsed", time.Since(started))
	return result, nil
}

func promptHash(dialogue string) string {
	sum := sha256.Sum256([]byte(dialogue))
	return hex.EncodeToString(sum[:])
}

package summary

import (
	"sync"
	"time"
)

const progressCeiling = 95

type progressState int

const (
	progressIdle progressState = iota
	progressRunning
	progressDone
)

// Progress is a time-based estimate of how far along a summarization call is.
// While running it climbs toward the ceiling over the expected duration and
// never reaches 100 until Complete is called.
type Progress struct {
	mu       sync.Mutex
	state    progressState
	started  time.Time
	last     int
	expected time.Duration
	now      func() time.Time
}

func NewProgress(expected time.Duration, now func() time.Time) *Progress {
	if expected <= 0 {
		expected = 20 * time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &Progress{expected: expected, now: now}
}

func (p *Progress) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = progressRunning
	p.started = p.now()
	p.last = 0
}

func (p *Progress) Complete() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = progressDone
	p.last = 100
}

// Fail resets progress to zero.
func (p *Progress) Fail() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = progressIdle
	p.last = 0
}

func (p *Progress) Value() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case progressDone:
		return 100
	case progressIdle:
		return 0
	}

	elapsed := p.now().Sub(p.started)
	pct := int(float64(progressCeiling) * float64(elapsed) / float64(p.expected))
	if pct > progressCeiling {
		pct = progressCeiling
	}
	if pct > p.last {
		p.last = pct
	}
	return p.last
}

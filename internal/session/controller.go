// Package session drives one voice conversation from admission to a saved
// estimate.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sjawhar/pitchspeak/internal/transcript"
	"github.com/sjawhar/pitchspeak/internal/transport"
)

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// StartOutcome tells the caller what RequestStart did.
type StartOutcome int

const (
	// StartIgnored means a session was already starting or running.
	StartIgnored StartOutcome = iota
	StartRefused
	StartConnecting
)

var errEndedBeforeConnect = errors.New("call ended before it connected")

// Controller is the state machine for a single client's voice session:
// Idle -> Connecting -> Connected -> Idle. The transport's ended event is
// the only way back to Idle from Connected.
type Controller struct {
	gate      Gate
	log       *transcript.Log
	handoff   Handoff
	listener  Listener
	logger    *slog.Logger
	now       func() time.Time
	transport transport.Transport

	mu        sync.Mutex
	state     State
	admitting bool
	owner     string

	wg sync.WaitGroup
}

var _ transport.Events = (*Controller)(nil)

type Option func(*Controller)

func WithHandoff(h Handoff) Option {
	return func(c *Controller) { c.handoff = h }
}

func WithListener(l Listener) Option {
	return func(c *Controller) {
		if l != nil {
			c.listener = l
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func NewController(gate Gate, log *transcript.Log, opts ...Option) *Controller {
	if log == nil {
		log = transcript.NewLog()
	}
	c := &Controller{
		gate:     gate,
		log:      log,
		listener: NopListener{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetTransport attaches the voice transport. It must be called before
// RequestStart.
func (c *Controller) SetTransport(t transport.Transport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transport = t
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns a copy of the current session's transcript.
func (c *Controller) Snapshot() []transcript.Entry {
	return c.log.Snapshot()
}

// RequestStart admits and starts a session for ownerID. Calls made while a
// session is starting or running are ignored and consume no quota.
func (c *Controller) RequestStart(ctx context.Context, ownerID string) (StartOutcome, error) {
	c.mu.Lock()
	if c.state != StateIdle || c.admitting {
		c.mu.Unlock()
		return StartIgnored, nil
	}
	if c.transport == nil {
		c.mu.Unlock()
		return StartIgnored, ErrNoTransport
	}
	if ownerID == "" {
		c.mu.Unlock()
		c.listener.AuthRequired()
		return StartRefused, ErrUnauthenticated
	}
	c.admitting = true
	c.mu.Unlock()

	decision := c.gate.TryConsume(ctx, ownerID)

	c.mu.Lock()
	c.admitting = false
	if !decision.Allowed {
		c.mu.Unlock()
		c.logger.Info("session refused by quota", "owner", ownerID, "reset_at", decision.ResetAt)
		c.listener.QuotaRefused(decision)
		return StartRefused, &QuotaError{Decision: decision}
	}
	c.state = StateConnecting
	c.owner = ownerID
	c.log.Clear()
	t := c.transport
	c.mu.Unlock()

	c.listener.Connecting(decision)

	if err := t.Start(ctx); err != nil {
		c.mu.Lock()
		reverted := c.state == StateConnecting
		if reverted {
			c.state = StateIdle
		}
		c.mu.Unlock()

		terr := &TransportError{Err: err}
		c.logger.Warn("transport failed to start", "owner", ownerID, "error", err)
		if reverted {
			c.listener.TransportFailed(terr)
		}
		return StartRefused, terr
	}

	return StartConnecting, nil
}

// RequestStop asks the transport to end the call. The state only changes
// when the transport reports the call ended.
func (c *Controller) RequestStop(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	t := c.transport
	c.mu.Unlock()

	if err := t.Stop(ctx); err != nil {
		return &TransportError{Err: err}
	}
	return nil
}

// Abandon ends the session without waiting for the transport, for when the
// client has gone away. A connected session is finalized as if it ended.
func (c *Controller) Abandon() {
	c.finish(nil)
}

// Wait blocks until every hand-off started by this controller has returned.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) Connected() {
	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	c.state = StateConnected
	c.mu.Unlock()

	c.listener.Connected()
}

func (c *Controller) Ended() {
	c.finish(nil)
}

func (c *Controller) StartFailed(err error) {
	c.finish(err)
}

func (c *Controller) FinalTranscript(role transcript.Role, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConnected {
		c.logger.Debug("dropping transcript outside a connected session", "state", c.state.String())
		return
	}
	entry := transcript.Entry{Role: role, Text: text, Timestamp: c.now().UnixMilli()}
	if err := c.log.Append(entry); err != nil {
		c.logger.Warn("dropping transcript entry", "error", err)
	}
}

// finish moves the controller back to Idle. From Connecting the session
// never started and is reported as a transport failure. From Connected the
// transcript is handed off for summarization.
func (c *Controller) finish(cause error) {
	c.mu.Lock()
	prev := c.state
	if prev == StateIdle {
		c.mu.Unlock()
		return
	}
	c.state = StateIdle
	owner := c.owner
	var snapshot []transcript.Entry
	if prev == StateConnected {
		snapshot = c.log.Snapshot()
	}
	c.mu.Unlock()

	if prev == StateConnecting {
		if cause == nil {
			cause = errEndedBeforeConnect
		}
		c.listener.TransportFailed(&TransportError{Err: cause})
		return
	}

	// An empty session has nothing to summarize and is not handed off.
	// Registered before any listener call so Wait covers the hand-off.
	handoff := c.handoff != nil && len(snapshot) > 0
	if handoff {
		c.wg.Add(1)
	}
	if cause != nil {
		c.logger.Warn("call failed while connected", "owner", owner, "error", cause)
		c.listener.TransportFailed(&TransportError{Err: cause})
	}
	c.logger.Info("session ended", "owner", owner, "entries", len(snapshot))
	c.listener.Ended(len(snapshot))

	if !handoff {
		return
	}
	go func() {
		defer c.wg.Done()
		if _, err := c.handoff.Finalize(context.Background(), owner, snapshot); err != nil {
			c.logger.Warn("conversation not saved", "owner", owner, "error", err)
		}
	}()
}

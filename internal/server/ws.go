package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sjawhar/pitchspeak/internal/quota"
	"github.com/sjawhar/pitchspeak/internal/session"
	"github.com/sjawhar/pitchspeak/internal/summary"
	"github.com/sjawhar/pitchspeak/internal/transcript"
	"github.com/sjawhar/pitchspeak/internal/transport"
)

const (
	writeTimeout = 10 * time.Second
	startTimeout = 10 * time.Second
)

// Client frames on /ws/session besides the voice agent's own frames.
const (
	frameSessionStart = "session.start"
	frameSessionStop  = "session.stop"
	frameSummaryRetry = "summary.retry"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func registerWSRoutes(mux *http.ServeMux, hub *Hub, store ConversationStore, opts Options) {
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		owner := OwnerFromContext(r.Context())
		if owner == "" {
			writeJSONError(w, http.StatusUnauthorized, "sign in required")
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			opts.Logger.Warn("ws upgrade failed", "error", err)
			return
		}
		defer func() { _ = conn.Close() }()

		ch := hub.Subscribe(owner)
		defer hub.Unsubscribe(ch)

		out := &socketWriter{conn: conn}
		_ = out.send(ConnectionEvent{Event: newEvent(eventConnection, time.Now().UTC()), Connected: true})

		for msg := range ch {
			if err := out.write(msg); err != nil {
				return
			}
		}
	})

	mux.HandleFunc("GET /ws/session", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			opts.Logger.Warn("ws upgrade failed", "error", err)
			return
		}
		defer func() { _ = conn.Close() }()

		owner := OwnerFromContext(r.Context())
		logger := opts.Logger.With("owner", owner, "request_id", r.Header.Get("X-Request-Id"))
		out := &socketWriter{conn: conn}
		_ = out.send(ConnectionEvent{Event: newEvent(eventConnection, time.Now().UTC()), Connected: true})

		s := newSocketSession(owner, out, hub, store, opts, logger)
		defer s.close()

		for {
			var frame transport.Frame
			if err := conn.ReadJSON(&frame); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Debug("session socket closed", "error", err)
				}
				return
			}
			s.handle(r.Context(), frame)
		}
	})
}

// socketSession wires one browser tab to its own controller, relay and
// finalizer. The summary pipeline and stores are shared.
type socketSession struct {
	owner      string
	out        *socketWriter
	controller *session.Controller
	finalizer  *session.Finalizer
	relay      *transport.Relay
	logger     *slog.Logger
	retries    sync.WaitGroup
}

func newSocketSession(owner string, out *socketWriter, hub *Hub, store ConversationStore, opts Options, logger *slog.Logger) *socketSession {
	listener := &socketListener{owner: owner, out: out, hub: hub, logger: logger}
	finalizer := session.NewFinalizer(opts.Summarizer, store, listener,
		session.WithProgressInterval(opts.ProgressInterval),
		session.WithFinalizerLogger(logger),
	)
	controller := session.NewController(opts.Gate, transcript.NewLog(),
		session.WithHandoff(finalizer),
		session.WithListener(listener),
		session.WithLogger(logger),
	)
	relay := transport.NewRelay(out, controller)
	controller.SetTransport(relay)

	return &socketSession{
		owner:      owner,
		out:        out,
		controller: controller,
		finalizer:  finalizer,
		relay:      relay,
		logger:     logger,
	}
}

func (s *socketSession) handle(ctx context.Context, frame transport.Frame) {
	switch frame.Type {
	case frameSessionStart:
		startCtx, cancel := context.WithTimeout(ctx, startTimeout)
		defer cancel()
		outcome, err := s.controller.RequestStart(startCtx, s.owner)
		if outcome == session.StartIgnored && err == nil {
			s.logger.Debug("duplicate start ignored", "state", s.controller.State().String())
		}
	case frameSessionStop:
		err := s.controller.RequestStop(ctx)
		if errors.Is(err, session.ErrNotConnected) {
			s.out.sendError(codeNotConnected, "no call in progress", false)
		} else if err != nil {
			s.out.sendError(codeTransport, "voice assistant error, try again", true)
		}
	case frameSummaryRetry:
		s.retries.Add(1)
		go func() {
			defer s.retries.Done()
			if _, err := s.finalizer.Retry(context.Background()); errors.Is(err, session.ErrNothingToRetry) {
				s.out.sendError(codeNothingToRetry, "nothing to retry", false)
			}
		}()
	default:
		if !s.relay.Handle(frame) {
			s.out.sendError(codeBadFrame, "unknown frame type "+frame.Type, false)
		}
	}
}

// close finalizes a call the tab left mid-way and waits for pending saves.
func (s *socketSession) close() {
	s.controller.Abandon()
	s.controller.Wait()
	s.retries.Wait()
}

// socketWriter serializes writes to one websocket connection and sends
// relay commands as versioned events.
type socketWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *socketWriter) write(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *socketWriter) send(event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.write(payload)
}

func (s *socketWriter) sendError(code, message string, retryable bool) {
	_ = s.send(ErrorEvent{
		Event:     newEvent(eventError, time.Now().UTC()),
		Code:      code,
		Message:   message,
		Retryable: retryable,
	})
}

func (s *socketWriter) SendCommand(command string) error {
	return s.send(newEvent(eventTransportPrefix+command, time.Now().UTC()))
}

// socketListener turns lifecycle events into websocket frames. Saved
// conversations are also announced on the owner's notification hub.
type socketListener struct {
	owner  string
	out    *socketWriter
	hub    *Hub
	logger *slog.Logger
}

func (l *socketListener) emit(event any) {
	if err := l.out.send(event); err != nil {
		l.logger.Debug("session event dropped", "error", err)
	}
}

func (l *socketListener) AuthRequired() {
	l.out.sendError(codeAuthRequired, "sign in required", false)
}

func (l *socketListener) QuotaRefused(d quota.Decision) {
	l.emit(quotaEvent(eventQuotaRefused, d, (&session.QuotaError{Decision: d}).Error()))
}

func (l *socketListener) Connecting(d quota.Decision) {
	l.emit(quotaEvent(eventSessionConnecting, d, ""))
}

func (l *socketListener) Connected() {
	l.emit(newEvent(eventSessionConnected, time.Now().UTC()))
}

func (l *socketListener) Ended(entries int) {
	l.emit(SessionEndedEvent{Event: newEvent(eventSessionEnded, time.Now().UTC()), Entries: entries})
}

func (l *socketListener) TransportFailed(error) {
	l.out.sendError(codeTransport, "voice assistant error, try again", true)
}

func (l *socketListener) SummaryProgress(percent int) {
	l.emit(SummaryProgressEvent{Event: newEvent(eventSummaryProgress, time.Now().UTC()), Percent: percent})
}

func (l *socketListener) SummaryFailed(err error) {
	retryable := summary.KindOf(err) != summary.KindEmptyTranscript
	l.out.sendError(codeSummaryFailed, "failed to save conversation, try again", retryable)
}

func (l *socketListener) SaveFailed(error) {
	l.out.sendError(codeSaveFailed, "estimate computed but not saved, try again", true)
}

func (l *socketListener) Saved(id string) {
	l.emit(ConversationSavedEvent{Event: newEvent(eventConversationSaved, time.Now().UTC()), ConversationID: id})
	if l.hub != nil {
		l.hub.BroadcastConversationSaved(l.owner, id)
	}
}

func quotaEvent(eventType string, d quota.Decision, message string) QuotaEvent {
	return QuotaEvent{
		Event:     newEvent(eventType, time.Now().UTC()),
		Remaining: d.Remaining,
		Limit:     d.Limit,
		ResetAt:   d.ResetAt,
		Message:   message,
	}
}

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sjawhar/pitchspeak/internal/transcript"
)

// Commands sent to a browser-hosted voice agent.
const (
	CommandStart = "start"
	CommandStop  = "stop"
)

// Frame types reported by a browser-hosted voice agent.
const (
	FrameCallStart  = "call-start"
	FrameCallEnd    = "call-end"
	FrameCallError  = "call-error"
	FrameTranscript = "transcript"
)

const transcriptFinal = "final"

// Commander delivers transport commands to the client that hosts the call.
type Commander interface {
	SendCommand(command string) error
}

// Frame is a message from the browser voice agent.
type Frame struct {
	Type           string `json:"type"`
	Role           string `json:"role,omitempty"`
	TranscriptType string `json:"transcriptType,omitempty"`
	Transcript     string `json:"transcript,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Relay is a Transport for voice calls that run in the user's browser. The
// server only sends start/stop commands and receives call events back.
type Relay struct {
	commander Commander
	events    Events
	logger    *slog.Logger
}

func NewRelay(commander Commander, events Events) *Relay {
	return &Relay{commander: commander, events: events, logger: slog.Default()}
}

func (r *Relay) Start(_ context.Context) error {
	if err := r.commander.SendCommand(CommandStart); err != nil {
		return fmt.Errorf("send start command: %w", err)
	}
	return nil
}

func (r *Relay) Stop(_ context.Context) error {
	if err := r.commander.SendCommand(CommandStop); err != nil {
		return fmt.Errorf("send stop command: %w", err)
	}
	return nil
}

// Handle routes a client frame to Events. It reports false for frame types
// the relay does not own. Partial transcripts are dropped here.
func (r *Relay) Handle(frame Frame) bool {
	switch frame.Type {
	case FrameCallStart:
		r.events.Connected()
	case FrameCallEnd:
		r.events.Ended()
	case FrameCallError:
		msg := strings.TrimSpace(frame.Error)
		if msg == "" {
			msg = "voice call error"
		}
		r.events.StartFailed(errors.New(msg))
	case FrameTranscript:
		if frame.TranscriptType != transcriptFinal {
			return true
		}
		role := transcript.Role(frame.Role)
		if !role.Valid() {
			r.logger.Warn("dropping transcript with unknown role", "role", frame.Role)
			return true
		}
		r.events.FinalTranscript(role, frame.Transcript)
	default:
		return false
	}
	return true
}

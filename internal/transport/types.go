// Package transport connects a session controller to a voice-call provider.
package transport

import (
	"context"

	"github.com/sjawhar/pitchspeak/internal/transcript"
)

// Transport starts and stops the underlying voice call. Neither method waits
// for the call to actually connect or end; those arrive as Events.
type Transport interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Events receives lifecycle and transcript notifications from a Transport.
// Implementations must be safe for concurrent use.
type Events interface {
	Connected()
	Ended()
	StartFailed(err error)
	FinalTranscript(role transcript.Role, text string)
}

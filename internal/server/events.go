package server

import "time"

const EventVersion = 1

type Event struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
}

type ConnectionEvent struct {
	Event
	Connected bool `json:"connected"`
}

// QuotaEvent carries the owner's quota after an admission attempt. It is
// sent as session_connecting when admitted and quota_refused otherwise.
type QuotaEvent struct {
	Event
	Remaining int       `json:"remaining"`
	Limit     int       `json:"limit"`
	ResetAt   time.Time `json:"reset_at"`
	Message   string    `json:"message,omitempty"`
}

type SessionEndedEvent struct {
	Event
	Entries int `json:"entries"`
}

type SummaryProgressEvent struct {
	Event
	Percent int `json:"percent"`
}

type ConversationSavedEvent struct {
	Event
	ConversationID string `json:"conversation_id"`
}

// ErrorEvent reports a failure with a stable code and a user-facing message.
type ErrorEvent struct {
	Event
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

const (
	eventConnection        = "connection"
	eventSessionConnecting = "session_connecting"
	eventSessionConnected  = "session_connected"
	eventSessionEnded      = "session_ended"
	eventQuotaRefused      = "quota_refused"
	eventSummaryProgress   = "summary_progress"
	eventConversationSaved = "conversation_saved"
	eventError             = "error"
	eventTransportPrefix   = "transport."
)

const (
	codeAuthRequired   = "auth_required"
	codeTransport      = "transport_failed"
	codeSummaryFailed  = "summary_failed"
	codeSaveFailed     = "save_failed"
	codeNotConnected   = "not_connected"
	codeNothingToRetry = "nothing_to_retry"
	codeBadFrame       = "bad_frame"
)

func newEvent(eventType string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:      eventType,
		Version:   EventVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}

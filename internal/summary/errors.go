package summary

import (
	"errors"
	"fmt"
)

// Kind classifies why a summarization attempt failed.
type Kind string

const (
	KindCollaboratorUnavailable Kind = "collaborator_unavailable"
	KindMalformedResponse       Kind = "malformed_response"
	KindEmptyTranscript         Kind = "empty_transcript"
)

var (
	ErrCollaboratorUnavailable = errors.New("summarization service unavailable")
	ErrMalformedResponse       = errors.New("malformed summary response")
	ErrEmptyTranscript         = errors.New("transcript is empty")
)

func (k Kind) sentinel() error {
	switch k {
	case KindCollaboratorUnavailable:
		return ErrCollaboratorUnavailable
	case KindMalformedResponse:
		return ErrMalformedResponse
	case KindEmptyTranscript:
		return ErrEmptyTranscript
	default:
		return nil
	}
}

// Error is returned by Pipeline.Summarize. Raw holds the collaborator's text
// for malformed responses.
type Error struct {
	Kind Kind
	Raw  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.sentinel().Error()
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	errs := []error{e.Kind.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// KindOf returns the Kind of a summarization error, or "" for other errors.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

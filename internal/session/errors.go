package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/sjawhar/pitchspeak/internal/quota"
)

var (
	ErrUnauthenticated  = errors.New("sign in required")
	ErrQuotaExceeded    = errors.New("usage limit reached")
	ErrTransportFailure = errors.New("voice transport failure")
	ErrStoreFailure     = errors.New("failed to save conversation")
	ErrNotConnected     = errors.New("no connected session")
	ErrNoTransport      = errors.New("no transport attached")
	ErrNothingToRetry   = errors.New("nothing to retry")
)

// QuotaError reports a refused start along with when the quota resets.
type QuotaError struct {
	Decision quota.Decision
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s, resets at %s", ErrQuotaExceeded, e.Decision.ResetAt.UTC().Format(time.RFC3339))
}

func (e *QuotaError) Unwrap() error { return ErrQuotaExceeded }

type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", ErrTransportFailure, e.Err)
}

func (e *TransportError) Unwrap() []error { return []error{ErrTransportFailure, e.Err} }

// StoreError reports that a computed summary could not be persisted. The
// summary is kept so a retry only repeats the save.
type StoreError struct {
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", ErrStoreFailure, e.Err)
}

func (e *StoreError) Unwrap() []error { return []error{ErrStoreFailure, e.Err} }

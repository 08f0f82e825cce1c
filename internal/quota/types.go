package quota

import (
	"context"
	"time"
)

// KeyPrefix namespaces per-owner counters in the counter store.
const KeyPrefix = "ai-call:"

// Key returns the counter key for an owner.
func Key(ownerID string) string {
	return KeyPrefix + ownerID
}

// Usage is the state of one counter as observed by a single atomic operation.
// Prior is the value before the increment (equal to Count for reads). TTL is
// the time left in the current window, zero or negative when unknown.
type Usage struct {
	Prior  int64
	Count  int64
	TTL    time.Duration
	Exists bool
}

// Counter is the atomic windowed counter a Gate depends on.
//
// ConsumeQuota must read, increment and report the TTL as one indivisible
// step, setting the expiry to window only when the increment created the
// counter. InspectQuota must not modify anything.
type Counter interface {
	ConsumeQuota(ctx context.Context, key string, window time.Duration) (Usage, error)
	InspectQuota(ctx context.Context, key string) (Usage, error)
}

// Decision is the outcome of an admission attempt.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	Limit     int       `json:"limit"`
	ResetAt   time.Time `json:"reset_at"`
}

// Status is a read-only view of an owner's quota.
type Status struct {
	Remaining int       `json:"remaining"`
	Limit     int       `json:"limit"`
	ResetAt   time.Time `json:"reset_at"`
}

// Package estimate defines the structured project estimate produced from a
// conversation and the persisted record that wraps it.
package estimate

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sjawhar/pitchspeak/internal/transcript"
)

var (
	// ErrNotFound is returned when no conversation matches the requested id.
	ErrNotFound = errors.New("conversation not found")
	// ErrInvalidResult is returned by Validate.
	ErrInvalidResult = errors.New("invalid summary")
)

// Estimation is the sizing block of a summary. Every field is optional except
// Features, which keeps the order the collaborator produced.
type Estimation struct {
	Timeframe  string   `json:"timeframe,omitempty"`
	Complexity string   `json:"complexity,omitempty"`
	Cost       string   `json:"cost,omitempty"`
	Features   []string `json:"features"`
}

// Result is the summary of one conversation, before it is persisted.
type Result struct {
	ProjectSummary string     `json:"projectSummary"`
	Estimation     Estimation `json:"estimation"`
	FullSummary    string     `json:"fullSummary"`
}

// Validate checks that the required fields are present.
func (r Result) Validate() error {
	var missing []string
	if strings.TrimSpace(r.ProjectSummary) == "" {
		missing = append(missing, "projectSummary")
	}
	if strings.TrimSpace(r.FullSummary) == "" {
		missing = append(missing, "fullSummary")
	}
	if r.Estimation.Features == nil {
		missing = append(missing, "estimation.features")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidResult, strings.Join(missing, ", "))
	}
	return nil
}

// Record is a persisted conversation summary. ID and CreatedAt are assigned
// by the store and never change.
type Record struct {
	ID          string             `json:"id"`
	CreatedAt   time.Time          `json:"created_at"`
	OwnerID     string             `json:"owner_id,omitempty"`
	Transcripts []transcript.Entry `json:"transcripts"`
	Result
}

// PageRequest selects one page of a listing. An empty Cursor means the
// newest page.
type PageRequest struct {
	Cursor string
	Limit  int
}

// Page is one page of records, newest first. NextCursor is empty on the
// last page.
type Page struct {
	Records    []Record `json:"records"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

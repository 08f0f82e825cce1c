package summary

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/sjawhar/pitchspeak/internal/estimate"
)

// StripCodeFence removes a surrounding ``` or ```json fence from a model
// reply.
func StripCodeFence(text string) string {
	cleaned := strings.TrimSpace(text)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}

	cleaned = strings.TrimPrefix(cleaned, "```")
	if nl := strings.IndexByte(cleaned, '\n'); nl >= 0 && strings.TrimSpace(cleaned[:nl]) == "json" {
		cleaned = cleaned[nl+1:]
	} else {
		cleaned = strings.TrimPrefix(cleaned, "json")
	}
	cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
	return strings.TrimSpace(cleaned)
}

type rawEstimation struct {
	Timeframe  *string   `json:"timeframe"`
	Complexity *string   `json:"complexity"`
	Cost       *string   `json:"cost"`
	Features   *[]string `json:"features"`
}

type rawResult struct {
	ProjectSummary *string        `json:"projectSummary"`
	Estimation     *rawEstimation `json:"estimation"`
	FullSummary    *string        `json:"fullSummary"`
}

// ParseResult decodes a collaborator reply into a Result. Unknown fields,
// missing required fields, and trailing content are all rejected.
func ParseResult(text string) (estimate.Result, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(StripCodeFence(text))))
	dec.DisallowUnknownFields()

	var raw rawResult
	if err := dec.Decode(&raw); err != nil {
		return estimate.Result{}, fmt.Errorf("decode summary json: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return estimate.Result{}, fmt.Errorf("unexpected content after summary json")
	}

	switch {
	case raw.ProjectSummary == nil:
		return estimate.Result{}, fmt.Errorf("missing projectSummary")
	case raw.FullSummary == nil:
		return estimate.Result{}, fmt.Errorf("missing fullSummary")
	case raw.Estimation == nil:
		return estimate.Result{}, fmt.Errorf("missing estimation")
	case raw.Estimation.Features == nil || *raw.Estimation.Features == nil:
		return estimate.Result{}, fmt.Errorf("missing estimation.features")
	}

	result := estimate.Result{
		ProjectSummary: strings.TrimSpace(*raw.ProjectSummary),
		FullSummary:    strings.TrimSpace(*raw.FullSummary),
		Estimation: estimate.Estimation{
			Timeframe:  deref(raw.Estimation.Timeframe),
			Complexity: deref(raw.Estimation.Complexity),
			Cost:       deref(raw.Estimation.Cost),
			Features:   *raw.Estimation.Features,
		},
	}
	if err := result.Validate(); err != nil {
		return estimate.Result{}, err
	}
	return result, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

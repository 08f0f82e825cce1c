package estimate

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/sjawhar/pitchspeak/internal/transcript"
)

func TestResultValidate(t *testing.T) {
	valid := Result{
		ProjectSummary: "Booking app",
		FullSummary:    "A mobile booking app for salons.",
		Estimation:     Estimation{Features: []string{}},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid result, got %v", err)
	}

	err := Result{ProjectSummary: " "}.Validate()
	if err == nil {
		t.Fatal("expected error for empty result")
	}
	for _, field := range []string{"projectSummary", "fullSummary", "estimation.features"} {
		if !strings.Contains(err.Error(), field) {
			t.Fatalf("expected %s in error, got %v", field, err)
		}
	}
}

func TestRecordJSONFlattensResult(t *testing.T) {
	rec := Record{
		ID:        "0b6f7c1e-3f53-4d43-9c38-2b8d3e2c4a10",
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		OwnerID:   "user-1",
		Transcripts: []transcript.Entry{
			{Role: transcript.RoleUser, Text: "hello", Timestamp: 1},
		},
		Result: Result{
			ProjectSummary: "Booking app",
			FullSummary:    "Details",
			Estimation:     Estimation{Timeframe: "3 months", Features: []string{"auth", "calendar"}},
		},
	}

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload["projectSummary"] != "Booking app" {
		t.Fatalf("expected flattened projectSummary, got %v", payload)
	}
	estimation, ok := payload["estimation"].(map[string]any)
	if !ok {
		t.Fatalf("expected estimation object, got %T", payload["estimation"])
	}
	if _, present := estimation["cost"]; present {
		t.Fatalf("expected empty cost to be omitted, got %v", estimation)
	}
}

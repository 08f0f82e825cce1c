package summary

import (
	"strings"
	"testing"
)

const validReply = `{
  "projectSummary": "Salon booking app",
  "estimation": {"timeframe": "2-3 months", "complexity": "Medium", "features": ["calendar", "payments", "reminders"]},
  "fullSummary": "The client wants a booking app for salons."
}`

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "bare", in: ` {"a":1} `, want: `{"a":1}`},
		{name: "json fence", in: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "plain fence", in: "```\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "inline json fence", in: "```json{\"a\":1}```", want: `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripCodeFence(tt.in); got != tt.want {
				t.Fatalf("StripCodeFence(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseResultValid(t *testing.T) {
	for name, reply := range map[string]string{
		"bare":   validReply,
		"fenced": "```json\n" + validReply + "\n```",
	} {
		t.Run(name, func(t *testing.T) {
			result, err := ParseResult(reply)
			if err != nil {
				t.Fatalf("ParseResult failed: %v", err)
			}
			if result.ProjectSummary != "Salon booking app" {
				t.Fatalf("unexpected project summary %q", result.ProjectSummary)
			}
			if strings.Join(result.Estimation.Features, ",") != "calendar,payments,reminders" {
				t.Fatalf("features order changed: %v", result.Estimation.Features)
			}
			if result.Estimation.Cost != "" {
				t.Fatalf("expected missing cost to stay empty, got %q", result.Estimation.Cost)
			}
		})
	}
}

func TestParseResultNullOptionalFields(t *testing.T) {
	reply := `{"projectSummary":"x","estimation":{"timeframe":null,"cost":null,"features":[]},"fullSummary":"y"}`
	result, err := ParseResult(reply)
	if err != nil {
		t.Fatalf("ParseResult failed: %v", err)
	}
	if result.Estimation.Features == nil || len(result.Estimation.Features) != 0 {
		t.Fatalf("expected empty non-nil features, got %#v", result.Estimation.Features)
	}
}

func TestParseResultRejects(t *testing.T) {
	tests := map[string]string{
		"not json":         "not json",
		"empty":            "",
		"missing features": `{"projectSummary":"x","estimation":{},"fullSummary":"y"}`,
		"null features":    `{"projectSummary":"x","estimation":{"features":null},"fullSummary":"y"}`,
		"missing summary":  `{"estimation":{"features":[]},"fullSummary":"y"}`,
		"blank summary":    `{"projectSummary":"  ","estimation":{"features":[]},"fullSummary":"y"}`,
		"missing estimate": `{"projectSummary":"x","fullSummary":"y"}`,
		"unknown field":    `{"projectSummary":"x","estimation":{"features":[]},"fullSummary":"y","mood":"happy"}`,
		"wrong type":       `{"projectSummary":"x","estimation":{"features":"auth"},"fullSummary":"y"}`,
		"trailing text":    `{"projectSummary":"x","estimation":{"features":[]},"fullSummary":"y"} thanks!`,
	}
	for name, reply := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseResult(reply); err == nil {
				t.Fatalf("expected ParseResult(%q) to fail", reply)
			}
		})
	}
}

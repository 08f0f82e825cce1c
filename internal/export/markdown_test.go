package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderMarkdown(t *testing.T) {
	got := RenderMarkdown(sampleRecord())

	for _, want := range []string{
		"# Project Estimation Report",
		"_Conversation 0b7f3c1e-8f1a-4d59-9a43-3c8f4b1e2d10, 2026-03-04T10:30:00Z_",
		"## Project Overview\n\nBooking app for a salon",
		"- **Complexity:** Medium",
		"- **Estimated Cost:** $15,000",
		"1. Online booking\n2. Reminders\n3. Staff calendar\n",
		"**[10:30:00] Assistant:** What would you like to build?",
		"**[10:30:05] User:** A booking app for my salon.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("expected markdown to contain %q\n%s", want, got)
		}
	}
}

func TestRenderMarkdownWithoutTranscript(t *testing.T) {
	rec := sampleRecord()
	rec.Transcripts = nil
	rec.Estimation.Cost = ""

	got := RenderMarkdown(rec)
	if strings.Contains(got, "## Transcript") || strings.Contains(got, "Estimated Cost") {
		t.Fatalf("unexpected sections in markdown:\n%s", got)
	}
}

func TestWriterWritesDatedFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	w := NewWriter(dir)
	rec := sampleRecord()

	path, err := w.Write(rec)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	want := filepath.Join(dir, "2026-03-04-"+rec.ID+".md")
	if path != want {
		t.Fatalf("expected path %q, got %q", want, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if string(data) != RenderMarkdown(rec) {
		t.Fatal("file contents differ from rendered markdown")
	}
}

package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sjawhar/pitchspeak/internal/estimate"
)

// RenderMarkdown formats a saved conversation as a Markdown document with
// the estimate followed by the transcript.
func RenderMarkdown(rec estimate.Record) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Project Estimation Report\n\n")
	fmt.Fprintf(&b, "_Conversation %s, %s_\n\n", rec.ID, rec.CreatedAt.UTC().Format(time.RFC3339))

	fmt.Fprintf(&b, "## Project Overview\n\n%s\n\n", strings.TrimSpace(rec.ProjectSummary))

	fmt.Fprintf(&b, "## Estimation Details\n\n")
	fmt.Fprintf(&b, "- **Complexity:** %s\n", rec.Estimation.Complexity)
	fmt.Fprintf(&b, "- **Timeframe:** %s\n", rec.Estimation.Timeframe)
	if cost := strings.TrimSpace(rec.Estimation.Cost); cost != "" {
		fmt.Fprintf(&b, "- **Estimated Cost:** %s\n", cost)
	}
	b.WriteString("\n### Key Features\n\n")
	for i, feature := range rec.Estimation.Features {
		fmt.Fprintf(&b, "%d. %s\n", i+1, feature)
	}

	fmt.Fprintf(&b, "\n## Detailed Summary\n\n%s\n", strings.TrimSpace(rec.FullSummary))

	if len(rec.Transcripts) > 0 {
		b.WriteString("\n## Transcript\n\n")
		for _, entry := range rec.Transcripts {
			ts := time.UnixMilli(entry.Timestamp).UTC().Format("15:04:05")
			fmt.Fprintf(&b, "**[%s] %s:** %s\n\n", ts, entry.Role.Label(), strings.TrimSpace(entry.Text))
		}
	}

	return b.String()
}

// Writer saves Markdown exports into a directory, one file per conversation.
type Writer struct {
	dir string
	mu  sync.Mutex
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

func (w *Writer) Write(rec estimate.Record) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", w.dir, err)
	}

	path := w.PathFor(rec)
	if err := os.WriteFile(path, []byte(RenderMarkdown(rec)), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

func (w *Writer) PathFor(rec estimate.Record) string {
	date := rec.CreatedAt.UTC().Format("2006-01-02")
	return filepath.Join(w.dir, date+"-"+rec.ID+".md")
}

package deepgram

import (
	"strings"
	"sync"
)

// Word is one recognized word from a diarizing speech-to-text stream.
type Word struct {
	Speaker *int
	Text    string
	Start   float64
	End     float64
}

// Turn is a run of consecutive words from the same speaker.
type Turn struct {
	Speaker int
	Text    string
	Start   float64
	End     float64
}

// GroupTurns merges consecutive words by speaker. Words without a speaker
// are attributed to speaker -1.
func GroupTurns(words []Word) []Turn {
	var turns []Turn
	for _, w := range words {
		text := strings.TrimSpace(w.Text)
		if text == "" {
			continue
		}
		speaker := -1
		if w.Speaker != nil {
			speaker = *w.Speaker
		}

		if n := len(turns); n > 0 && turns[n-1].Speaker == speaker {
			turns[n-1].Text += " " + text
			turns[n-1].End = w.End
			continue
		}
		turns = append(turns, Turn{Speaker: speaker, Text: text, Start: w.Start, End: w.End})
	}
	return turns
}

// UtteranceBuffer accumulates words from is_final results until the speaker
// finishes the utterance.
type UtteranceBuffer struct {
	mu    sync.Mutex
	words []Word
}

func (b *UtteranceBuffer) Add(words []Word) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.words = append(b.words, words...)
}

// Flush returns the buffered words grouped into turns and empties the buffer.
func (b *UtteranceBuffer) Flush() []Turn {
	b.mu.Lock()
	words := b.words
	b.words = nil
	b.mu.Unlock()

	return GroupTurns(words)
}

func (b *UtteranceBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.words)
}

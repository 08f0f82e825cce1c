package deepgram

import (
	"sync"
	"time"
)

const defaultSilenceTimeout = 30 * time.Second

// SilenceTimer calls its callback once the stream has been quiet for the
// timeout after an utterance ended. Speech disarms it.
type SilenceTimer struct {
	timeout time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	onQuiet func()
}

func NewSilenceTimer(timeout time.Duration, onQuiet func()) *SilenceTimer {
	if timeout <= 0 {
		timeout = defaultSilenceTimeout
	}
	return &SilenceTimer{timeout: timeout, onQuiet: onQuiet}
}

// Speech cancels a pending silence callback.
func (s *SilenceTimer) Speech() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// UtteranceEnd (re)arms the timer.
func (s *SilenceTimer) UtteranceEnd() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}

	s.timer = time.AfterFunc(s.timeout, func() {
		s.mu.Lock()
		callback := s.onQuiet
		s.timer = nil
		s.mu.Unlock()

		if callback != nil {
			callback()
		}
	})
}

func (s *SilenceTimer) Stop() {
	s.Speech()
}

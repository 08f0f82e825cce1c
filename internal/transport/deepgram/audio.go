package deepgram

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	microphone "github.com/deepgram/deepgram-go-sdk/v3/pkg/audio/microphone"
)

var defaultSampleRates = []int{16000, 48000, 44100, 32000, 24000}

// Microphone is the default input device as an AudioSource.
type Microphone struct {
	*microphone.Microphone
	SampleRate int
}

// OpenMicrophone opens the default input at the first sample rate the
// device accepts. The returned release func tears down the audio library.
func OpenMicrophone(preferred []int, logger *slog.Logger) (*Microphone, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	microphone.Initialize()
	release := func() { microphone.Teardown() }

	var errs []error
	for _, rate := range SampleRateCandidates(preferred) {
		mic, err := microphone.New(microphone.AudioConfig{InputChannels: 1, SamplingRate: float32(rate)})
		if err != nil {
			logger.Warn("microphone open failed", "sample_rate", rate, "error", err)
			errs = append(errs, fmt.Errorf("%d Hz: %w", rate, err))
			continue
		}
		logger.Info("microphone opened", "sample_rate", rate)
		return &Microphone{Microphone: mic, SampleRate: rate}, release, nil
	}

	release()
	return nil, func() {}, fmt.Errorf("no usable microphone sample rate: %w", errors.Join(errs...))
}

// SampleRateCandidates returns the preferred rates followed by common
// defaults, without duplicates or non-positive values.
func SampleRateCandidates(preferred []int) []int {
	combined := append(append([]int{}, preferred...), defaultSampleRates...)

	seen := make(map[int]struct{}, len(combined))
	result := make([]int, 0, len(combined))
	for _, rate := range combined {
		if rate <= 0 {
			continue
		}
		if _, ok := seen[rate]; ok {
			continue
		}
		seen[rate] = struct{}{}
		result = append(result, rate)
	}
	return result
}

// ParseSampleRates parses a comma separated list such as "48000,44100".
// Invalid entries are skipped.
func ParseSampleRates(raw string) []int {
	var rates []int
	for _, part := range strings.Split(raw, ",") {
		rate, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || rate <= 0 {
			continue
		}
		rates = append(rates, rate)
	}
	return rates
}

// Package deepgram streams the local microphone to Deepgram live
// transcription. It needs cgo for the PortAudio microphone.
package deepgram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/sjawhar/pitchspeak/internal/transcript"
	"github.com/sjawhar/pitchspeak/internal/transport"
)

var _ transport.Transport = (*Transport)(nil)

var ErrConnectFailed = errors.New("deepgram connect failed")

// AudioSource produces linear16 PCM for a live transcription stream.
type AudioSource interface {
	Start() error
	Stream(w io.Writer) error
	Stop() error
}

type Options struct {
	APIKey     string
	Model      string
	Language   string
	SampleRate int
	// UserSpeaker is the diarized speaker index treated as the user. Every
	// other speaker is recorded as the assistant.
	UserSpeaker    int
	SilenceTimeout time.Duration
}

type liveConn interface {
	io.Writer
	Connect() bool
	Stop()
}

type dialFunc func(ctx context.Context, apiKey string, cOptions *interfaces.ClientOptions, tOptions *interfaces.LiveTranscriptionOptions, callback api.LiveMessageCallback) (liveConn, error)

func dialLive(ctx context.Context, apiKey string, cOptions *interfaces.ClientOptions, tOptions *interfaces.LiveTranscriptionOptions, callback api.LiveMessageCallback) (liveConn, error) {
	conn, err := client.NewWSUsingCallback(ctx, apiKey, cOptions, tOptions, callback)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

var initOnce sync.Once

// Transport streams local audio to Deepgram live transcription. Final words
// are buffered until the utterance completes and reported per speaker turn.
type Transport struct {
	opts   Options
	source AudioSource
	events transport.Events
	dial   dialFunc
	logger *slog.Logger

	buffer  UtteranceBuffer
	silence *SilenceTimer

	mu        sync.Mutex
	conn      liveConn
	cancel    context.CancelFunc
	connected bool
	ended     bool
}

type Option func(*Transport)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Transport) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func withDialer(dial dialFunc) Option {
	return func(d *Transport) { d.dial = dial }
}

func New(source AudioSource, events transport.Events, opts Options, options ...Option) *Transport {
	if opts.Model == "" {
		opts.Model = "nova-2"
	}
	if opts.Language == "" {
		opts.Language = "en-US"
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = 16000
	}

	d := &Transport{
		opts:   opts,
		source: source,
		events: events,
		dial:   dialLive,
		logger: slog.Default(),
	}
	for _, opt := range options {
		opt(d)
	}
	d.silence = NewSilenceTimer(opts.SilenceTimeout, func() {
		d.logger.Info("silence timeout reached, ending call")
		if err := d.Stop(context.Background()); err != nil {
			d.logger.Warn("stop after silence failed", "error", err)
		}
	})
	return d
}

func (d *Transport) Start(ctx context.Context) error {
	initOnce.Do(func() {
		client.Init(client.InitLib{LogLevel: client.LogLevelDefault})
	})

	d.mu.Lock()
	if d.conn != nil {
		d.mu.Unlock()
		return errors.New("deepgram transport already started")
	}
	d.connected = false
	d.ended = false
	d.mu.Unlock()

	cOptions := &interfaces.ClientOptions{EnableKeepAlive: true}
	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:       d.opts.Model,
		Language:    d.opts.Language,
		Diarize:     true,
		Punctuate:   true,
		SmartFormat: true,
		Encoding:    "linear16",
		SampleRate:  d.opts.SampleRate,
		Channels:    1,
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	conn, err := d.dial(streamCtx, d.opts.APIKey, cOptions, tOptions, d)
	if err != nil {
		cancel()
		return fmt.Errorf("create deepgram client: %w", err)
	}
	if !conn.Connect() {
		cancel()
		return ErrConnectFailed
	}
	if err := d.source.Start(); err != nil {
		conn.Stop()
		cancel()
		return fmt.Errorf("start audio source: %w", err)
	}

	d.mu.Lock()
	d.conn = conn
	d.cancel = cancel
	d.mu.Unlock()

	go d.pump(streamCtx, conn)
	return nil
}

// Stop closes the stream. The call is reported as ended once.
func (d *Transport) Stop(_ context.Context) error {
	d.mu.Lock()
	conn, cancel := d.conn, d.cancel
	d.conn, d.cancel = nil, nil
	d.mu.Unlock()

	if conn == nil {
		return nil
	}
	d.silence.Stop()
	cancel()

	var errs []error
	if err := d.source.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop audio source: %w", err))
	}
	conn.Stop()
	d.end()
	return errors.Join(errs...)
}

func (d *Transport) pump(ctx context.Context, w io.Writer) {
	for {
		if ctx.Err() != nil {
			return
		}
		err := d.source.Stream(w)
		if err == nil || ctx.Err() != nil {
			return
		}
		if strings.Contains(strings.ToLower(err.Error()), "overflow") {
			d.logger.Warn("audio input overflow, restarting stream")
			time.Sleep(250 * time.Millisecond)
			continue
		}
		d.logger.Error("audio stream failed", "error", err)
		if stopErr := d.Stop(context.Background()); stopErr != nil {
			d.logger.Warn("stop after stream failure", "error", stopErr)
		}
		return
	}
}

// end flushes any buffered words and reports Ended at most once per call.
func (d *Transport) end() {
	d.mu.Lock()
	if d.ended {
		d.mu.Unlock()
		return
	}
	d.ended = true
	wasConnected := d.connected
	d.mu.Unlock()

	if !wasConnected {
		d.events.StartFailed(errors.New("deepgram closed before the call connected"))
		return
	}
	d.flush()
	d.events.Ended()
}

func (d *Transport) flush() {
	for _, turn := range d.buffer.Flush() {
		d.events.FinalTranscript(d.roleFor(turn.Speaker), turn.Text)
	}
}

func (d *Transport) roleFor(speaker int) transcript.Role {
	if speaker == d.opts.UserSpeaker {
		return transcript.RoleUser
	}
	return transcript.RoleAssistant
}

func (d *Transport) Open(*api.OpenResponse) error {
	d.mu.Lock()
	d.connected = true
	d.mu.Unlock()

	d.logger.Info("connected to Deepgram")
	d.events.Connected()
	return nil
}

func (d *Transport) Message(mr *api.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 || !mr.IsFinal {
		return nil
	}
	alt := mr.Channel.Alternatives[0]
	if strings.TrimSpace(alt.Transcript) == "" {
		return nil
	}

	words := make([]Word, 0, len(alt.Words))
	for _, w := range alt.Words {
		words = append(words, Word{Speaker: w.Speaker, Text: w.PunctuatedWord, Start: w.Start, End: w.End})
	}
	d.buffer.Add(words)
	d.silence.Speech()

	if mr.SpeechFinal {
		d.flush()
	}
	return nil
}

func (d *Transport) Metadata(*api.MetadataResponse) error { return nil }

func (d *Transport) SpeechStarted(*api.SpeechStartedResponse) error {
	d.silence.Speech()
	return nil
}

func (d *Transport) UtteranceEnd(*api.UtteranceEndResponse) error {
	d.flush()
	d.silence.UtteranceEnd()
	return nil
}

func (d *Transport) Close(*api.CloseResponse) error {
	d.logger.Info("disconnected from Deepgram")
	d.end()
	go func() {
		if err := d.Stop(context.Background()); err != nil {
			d.logger.Warn("cleanup after close failed", "error", err)
		}
	}()
	return nil
}

func (d *Transport) Error(er *api.ErrorResponse) error {
	d.logger.Warn("deepgram error", "code", er.ErrCode, "description", er.Description)

	d.mu.Lock()
	connected := d.connected
	d.mu.Unlock()
	if !connected {
		d.events.StartFailed(fmt.Errorf("deepgram error %s: %s", er.ErrCode, er.Description))
	}
	return nil
}

func (d *Transport) UnhandledEvent([]byte) error { return nil }

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sjawhar/pitchspeak/internal/quota"
	"github.com/sjawhar/pitchspeak/internal/session"
	"github.com/sjawhar/pitchspeak/internal/transcript"
	"github.com/sjawhar/pitchspeak/internal/transport/deepgram"
)

const stopGracePeriod = 10 * time.Second

func newRecordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Hold one estimation call through the local microphone",
		Long: `Hold one estimation call through the local microphone.

The call uses one session from the owner's quota. It ends on Ctrl-C or after
the configured silence timeout, then the conversation is summarized and saved.

Examples:
  pitchspeak record --owner alice
  pitchspeak record --owner alice --sample-rates 48000,44100`,
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, _ := cmd.Flags().GetString("owner")
			rates, _ := cmd.Flags().GetString("sample-rates")

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if a.cfg.DeepgramAPIKey == "" {
				return errors.New("deepgram API key not configured: set PITCHSPEAK_DEEPGRAM_API_KEY")
			}

			preferred := append([]int{a.cfg.MicSampleRate}, deepgram.ParseSampleRates(rates)...)
			mic, release, err := deepgram.OpenMicrophone(preferred, a.logger)
			if err != nil {
				return err
			}
			defer release()

			out := cmd.OutOrStdout()
			listener := newConsoleListener(out)
			finalizer := session.NewFinalizer(a.pipeline(), a.store, listener, session.WithFinalizerLogger(a.logger))
			controller := session.NewController(a.gate, transcript.NewLog(),
				session.WithHandoff(finalizer),
				session.WithListener(listener),
				session.WithLogger(a.logger),
			)
			controller.SetTransport(deepgram.New(mic, controller, deepgram.Options{
				APIKey:         a.cfg.DeepgramAPIKey,
				Model:          a.cfg.DeepgramModel,
				Language:       a.cfg.DeepgramLanguage,
				SampleRate:     mic.SampleRate,
				UserSpeaker:    a.cfg.UserSpeaker,
				SilenceTimeout: a.cfg.ParsedSilenceTimeout(),
			}, deepgram.WithLogger(a.logger)))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if _, err := controller.RequestStart(ctx, owner); err != nil {
				return err
			}

			select {
			case <-listener.done:
			case <-ctx.Done():
				endCall(controller, listener.done)
			}

			controller.Wait()
			if finalizer.Pending() {
				fmt.Fprintln(out, "Conversation not saved; retrying once.")
				if _, err := finalizer.Retry(context.Background()); err != nil {
					return fmt.Errorf("conversation not saved: %w", err)
				}
			}
			return listener.err()
		},
	}
	cmd.Flags().String("owner", "", "owner id the session is charged to")
	cmd.Flags().String("sample-rates", "", "comma-separated microphone sample rates to try first")
	return cmd
}

// endCall asks the transport to hang up and waits for it to report the end.
// A call that never connected, or that does not end in time, is abandoned.
func endCall(controller *session.Controller, done <-chan struct{}) {
	stopCtx, cancel := context.WithTimeout(context.Background(), stopGracePeriod)
	defer cancel()

	if err := controller.RequestStop(stopCtx); err != nil {
		controller.Abandon()
		return
	}
	select {
	case <-done:
	case <-stopCtx.Done():
		controller.Abandon()
	}
}

// consoleListener prints session progress for the record command. done is
// closed once the call is over, whether it ended or never started.
type consoleListener struct {
	out  io.Writer
	done chan struct{}

	mu      sync.Mutex
	closed  bool
	failure error
	saved   string
	lastPct int
}

var _ session.Listener = (*consoleListener)(nil)

func newConsoleListener(out io.Writer) *consoleListener {
	return &consoleListener{out: out, done: make(chan struct{}), lastPct: -1}
}

func (l *consoleListener) printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, format, args...)
}

func (l *consoleListener) finish(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.failure = err
	close(l.done)
}

// err reports a transport failure unless the conversation was saved anyway.
func (l *consoleListener) err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.saved != "" {
		return nil
	}
	return l.failure
}

func (l *consoleListener) AuthRequired() {
	l.finish(session.ErrUnauthenticated)
}

func (l *consoleListener) QuotaRefused(d quota.Decision) {
	l.printf("Daily session limit reached (%d). Resets at %s.\n", d.Limit, d.ResetAt.Local().Format(time.Kitchen))
}

func (l *consoleListener) Connecting(d quota.Decision) {
	l.printf("Connecting... %d of %d sessions left today.\n", d.Remaining, d.Limit)
}

func (l *consoleListener) Connected() {
	l.printf("Connected. Describe your project; press Ctrl-C to finish.\n")
}

func (l *consoleListener) Ended(entries int) {
	if entries == 0 {
		l.printf("Call ended. Nothing was said; no estimate saved.\n")
	} else {
		l.printf("Call ended with %d transcript entries. Summarizing...\n", entries)
	}
	l.finish(nil)
}

func (l *consoleListener) TransportFailed(err error) {
	l.printf("Voice assistant error: %v\n", err)
	l.finish(err)
}

func (l *consoleListener) SummaryProgress(percent int) {
	l.mu.Lock()
	if percent/25 == l.lastPct/25 {
		l.mu.Unlock()
		return
	}
	l.lastPct = percent
	l.mu.Unlock()
	l.printf("Summary %d%%\n", percent)
}

func (l *consoleListener) SummaryFailed(err error) {
	l.printf("Summary failed: %v\n", err)
}

func (l *consoleListener) SaveFailed(err error) {
	l.printf("Estimate computed but not saved: %v\n", err)
}

func (l *consoleListener) Saved(id string) {
	l.mu.Lock()
	l.saved = id
	l.mu.Unlock()
	l.printf("Saved conversation %s\n", id)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/sjawhar/pitchspeak/internal/config"
	"github.com/sjawhar/pitchspeak/internal/llm"
	"github.com/sjawhar/pitchspeak/internal/quota"
	"github.com/sjawhar/pitchspeak/internal/storage"
	"github.com/sjawhar/pitchspeak/internal/summary"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pitchspeak",
		Short:         "Voice project estimation with per-user session quotas",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "pitchspeak.yaml", "path to the YAML config file")
	root.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")

	root.AddCommand(
		newServeCmd(),
		newRecordCmd(),
		newQuotaCmd(),
		newHistoryCmd(),
		newShowCmd(),
		newExportCmd(),
		newMCPCmd(),
	)
	return root
}

// app holds what every subcommand opens: config, logger, the conversation
// store and the quota gate.
type app struct {
	cfg      config.Config
	warnings []string
	logger   *slog.Logger
	store    *storage.SQLiteStore
	gate     *quota.Gate
	closers  []func() error
}

func newApp(cmd *cobra.Command) (*app, error) {
	configPath, _ := cmd.Flags().GetString("config")
	levelName, _ := cmd.Flags().GetString("log-level")

	level, err := parseLogLevel(levelName)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, warnings, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a := &app{cfg: cfg, warnings: warnings, logger: logger, store: store}
	a.closers = append(a.closers, store.Close)

	counter, err := a.quotaCounter(cmd.Context())
	if err != nil {
		a.close()
		return nil, err
	}
	a.gate = quota.NewGate(counter, cfg.QuotaDailyLimit, cfg.ParsedQuotaWindow(), quota.WithLogger(logger))

	return a, nil
}

// quotaCounter picks the counter backing the gate. A Redis server that does
// not answer at startup is only logged: the gate fails open per call.
func (a *app) quotaCounter(ctx context.Context) (quota.Counter, error) {
	switch a.cfg.QuotaBackend {
	case config.QuotaBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPassword,
			DB:       a.cfg.RedisDB,
		})
		a.closers = append(a.closers, client.Close)
		if ctx == nil {
			ctx = context.Background()
		}
		if err := client.Ping(ctx).Err(); err != nil {
			a.logger.Warn("redis quota backend unreachable", "addr", a.cfg.RedisAddr, "error", err)
		}
		return quota.NewRedisCounter(client), nil
	case config.QuotaBackendSQLite:
		return a.store, nil
	default:
		return nil, fmt.Errorf("unknown quota backend %q", a.cfg.QuotaBackend)
	}
}

// pipeline builds the summary pipeline for the configured model. Without a
// usable model every attempt fails as collaborator-unavailable, so sessions
// are still admitted and transcripts can be retried once a key is set.
func (a *app) pipeline() *summary.Pipeline {
	opts := []summary.Option{
		summary.WithTimeout(a.cfg.ParsedSummaryTimeout()),
		summary.WithExpectedDuration(a.cfg.ParsedSummaryExpectedDuration()),
		summary.WithLogger(a.logger),
	}
	if a.cfg.SummarySystemPrompt != "" {
		opts = append(opts, summary.WithSystemPrompt(a.cfg.SummarySystemPrompt))
	}

	client, err := llm.NewClientForModel(a.cfg.SummaryModel, a.cfg.LLMAPIKey(), llm.WithJSONResponse())
	if err != nil {
		a.logger.Warn("summary model unavailable", "model", a.cfg.SummaryModel, "error", err)
		client = unavailableClient{err: err}
	}
	return summary.NewPipeline(client, opts...)
}

func (a *app) logWarnings() {
	for _, w := range a.warnings {
		a.logger.Warn(w)
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}

type unavailableClient struct {
	err error
}

func (c unavailableClient) Complete(context.Context, []llm.Message) (string, error) {
	return "", c.err
}

func parseLogLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return 0, errors.New("invalid --log-level " + name + ": use debug, info, warn or error")
	}
	return level, nil
}

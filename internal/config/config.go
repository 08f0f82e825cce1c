package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the namespace prefix for all pitchspeak environment variables.
const EnvPrefix = "PITCHSPEAK_"

const (
	QuotaBackendSQLite = "sqlite"
	QuotaBackendRedis  = "redis"
)

// Config holds all application configuration. Secrets (API keys, tokens) are
// loaded exclusively from environment variables and never appear in the
// config file.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	DBPath     string `yaml:"db_path"`

	QuotaDailyLimit int    `yaml:"quota_daily_limit"`
	QuotaWindow     string `yaml:"quota_window"`
	QuotaBackend    string `yaml:"quota_backend"`
	RedisAddr       string `yaml:"redis_addr"`
	RedisDB         int    `yaml:"redis_db"`

	SummaryModel            string `yaml:"summary_model"`
	SummaryTimeout          string `yaml:"summary_timeout"`
	SummaryExpectedDuration string `yaml:"summary_expected_duration"`
	SummarySystemPrompt     string `yaml:"summary_system_prompt"`

	HistoryPageSize int    `yaml:"history_page_size"`
	OwnerHeader     string `yaml:"owner_header"`

	DeepgramModel    string `yaml:"deepgram_model"`
	DeepgramLanguage string `yaml:"deepgram_language"`
	MicSampleRate    int    `yaml:"mic_sample_rate"`
	UserSpeaker      int    `yaml:"user_speaker"`
	SilenceTimeout   string `yaml:"silence_timeout"`

	EmailFrom             string `yaml:"email_from"`
	GDriveFolderID        string `yaml:"gdrive_folder_id"`
	GoogleCredentialsFile string `yaml:"google_credentials_file"`

	// Secrets: env vars only, never serialized to YAML.
	DeepgramAPIKey  string `yaml:"-"`
	OpenAIAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
	GeminiAPIKey    string `yaml:"-"`
	ResendAPIKey    string `yaml:"-"`
	RedisPassword   string `yaml:"-"`
	AdminToken      string `yaml:"-"`
}

func defaults() Config {
	return Config{
		ListenAddr:              ":8080",
		DBPath:                  "data/pitchspeak.db",
		QuotaDailyLimit:         5,
		QuotaWindow:             "24h",
		QuotaBackend:            QuotaBackendSQLite,
		RedisAddr:               "localhost:6379",
		SummaryModel:            "openai/gpt-4o",
		SummaryTimeout:          "30s",
		SummaryExpectedDuration: "20s",
		HistoryPageSize:         10,
		OwnerHeader:             "X-Auth-User",
		DeepgramModel:           "nova-2",
		DeepgramLanguage:        "en-US",
		MicSampleRate:           16000,
		SilenceTimeout:          "30s",
		EmailFrom:               "Project Estimates <estimates@pitchspeak.dev>",
		GoogleCredentialsFile:   "./service-account.json",
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// It returns the config, any validation warnings, and an error if the file
// exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// ParsedQuotaWindow returns QuotaWindow as a time.Duration, falling back to
// 24h if the value is invalid or not positive.
func (c *Config) ParsedQuotaWindow() time.Duration {
	return parsePositive(c.QuotaWindow, 24*time.Hour)
}

// ParsedSummaryTimeout returns SummaryTimeout, falling back to 30s.
func (c *Config) ParsedSummaryTimeout() time.Duration {
	return parsePositive(c.SummaryTimeout, 30*time.Second)
}

// ParsedSummaryExpectedDuration returns SummaryExpectedDuration, falling back to 20s.
func (c *Config) ParsedSummaryExpectedDuration() time.Duration {
	return parsePositive(c.SummaryExpectedDuration, 20*time.Second)
}

// ParsedSilenceTimeout returns SilenceTimeout, falling back to 30s.
func (c *Config) ParsedSilenceTimeout() time.Duration {
	return parsePositive(c.SilenceTimeout, 30*time.Second)
}

// SummaryProvider returns the provider half of SummaryModel ("openai" for
// "openai/gpt-4o"). A bare model name is treated as OpenAI.
func (c *Config) SummaryProvider() string {
	provider, _, ok := strings.Cut(c.SummaryModel, "/")
	if !ok {
		return "openai"
	}
	return provider
}

// LLMAPIKey returns the API key for the configured summary provider.
func (c *Config) LLMAPIKey() string {
	switch c.SummaryProvider() {
	case "anthropic":
		return c.AnthropicAPIKey
	case "gemini":
		return c.GeminiAPIKey
	default:
		return c.OpenAIAPIKey
	}
}

func parsePositive(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func applyEnvOverrides(cfg *Config) {
	setString(&cfg.ListenAddr, "LISTEN_ADDR")
	setString(&cfg.DBPath, "DB_PATH")
	setInt(&cfg.QuotaDailyLimit, "QUOTA_DAILY_LIMIT")
	setString(&cfg.QuotaWindow, "QUOTA_WINDOW")
	setString(&cfg.QuotaBackend, "QUOTA_BACKEND")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setInt(&cfg.RedisDB, "REDIS_DB")
	setString(&cfg.SummaryModel, "SUMMARY_MODEL")
	setString(&cfg.SummaryTimeout, "SUMMARY_TIMEOUT")
	setString(&cfg.SummaryExpectedDuration, "SUMMARY_EXPECTED_DURATION")
	setString(&cfg.SummarySystemPrompt, "SUMMARY_SYSTEM_PROMPT")
	setInt(&cfg.HistoryPageSize, "HISTORY_PAGE_SIZE")
	setString(&cfg.OwnerHeader, "OWNER_HEADER")
	setString(&cfg.DeepgramModel, "DEEPGRAM_MODEL")
	setString(&cfg.DeepgramLanguage, "DEEPGRAM_LANGUAGE")
	setInt(&cfg.MicSampleRate, "MIC_SAMPLE_RATE")
	setInt(&cfg.UserSpeaker, "USER_SPEAKER")
	setString(&cfg.SilenceTimeout, "SILENCE_TIMEOUT")
	setString(&cfg.EmailFrom, "EMAIL_FROM")
	setString(&cfg.GDriveFolderID, "GDRIVE_FOLDER_ID")
	setString(&cfg.GoogleCredentialsFile, "GOOGLE_CREDENTIALS_FILE")
}

func setString(dst *string, key string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	v := os.Getenv(EnvPrefix + key)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		*dst = n
	}
}

func loadSecrets(cfg *Config) {
	cfg.DeepgramAPIKey = os.Getenv(EnvPrefix + "DEEPGRAM_API_KEY")
	cfg.OpenAIAPIKey = os.Getenv(EnvPrefix + "OPENAI_API_KEY")
	cfg.AnthropicAPIKey = os.Getenv(EnvPrefix + "ANTHROPIC_API_KEY")
	cfg.GeminiAPIKey = os.Getenv(EnvPrefix + "GEMINI_API_KEY")
	cfg.ResendAPIKey = os.Getenv(EnvPrefix + "RESEND_API_KEY")
	cfg.RedisPassword = os.Getenv(EnvPrefix + "REDIS_PASSWORD")
	cfg.AdminToken = os.Getenv(EnvPrefix + "ADMIN_TOKEN")
}

func validate(cfg *Config) []string {
	var warnings []string

	if cfg.LLMAPIKey() == "" {
		warnings = append(warnings, fmt.Sprintf("No API key for summary provider %q: conversations cannot be summarized. Set %s%s_API_KEY.",
			cfg.SummaryProvider(), EnvPrefix, strings.ToUpper(cfg.SummaryProvider())))
	}
	if cfg.DeepgramAPIKey == "" {
		warnings = append(warnings, "Deepgram API key not configured: the record command is disabled. Set "+EnvPrefix+"DEEPGRAM_API_KEY.")
	}
	if cfg.ResendAPIKey == "" {
		warnings = append(warnings, "Resend API key not configured: emailing estimates is disabled. Set "+EnvPrefix+"RESEND_API_KEY.")
	}
	if cfg.AdminToken == "" {
		warnings = append(warnings, "Admin token not configured: listing all conversations is disabled.")
	}
	if cfg.QuotaDailyLimit <= 0 {
		warnings = append(warnings, fmt.Sprintf("Invalid quota_daily_limit %d: using default 5.", cfg.QuotaDailyLimit))
		cfg.QuotaDailyLimit = 5
	}
	if cfg.QuotaBackend != QuotaBackendSQLite && cfg.QuotaBackend != QuotaBackendRedis {
		warnings = append(warnings, fmt.Sprintf("Unknown quota_backend %q: using sqlite.", cfg.QuotaBackend))
		cfg.QuotaBackend = QuotaBackendSQLite
	}
	if cfg.HistoryPageSize <= 0 {
		warnings = append(warnings, fmt.Sprintf("Invalid history_page_size %d: using default 10.", cfg.HistoryPageSize))
		cfg.HistoryPageSize = 10
	}
	if _, err := time.ParseDuration(cfg.QuotaWindow); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid quota_window %q: using default 24h.", cfg.QuotaWindow))
	}
	if _, err := time.ParseDuration(cfg.SummaryTimeout); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid summary_timeout %q: using default 30s.", cfg.SummaryTimeout))
	}

	return warnings
}

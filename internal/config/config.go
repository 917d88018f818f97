package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Defaults for the monitor. Each can be overridden from the environment.
const (
	DefaultPollSchedule   = "@every 5m"
	DefaultRetrySchedule  = "@every 1m"
	DefaultStatusInterval = 10 * time.Minute
	DefaultLookback       = 5 * time.Minute
	DefaultFetchLimit     = 200
	DefaultCallTimeout    = 30 * time.Second
	DefaultRetention      = time.Hour
	DefaultSettleDelay    = 10 * time.Second
	DefaultKeywordsFile   = "keywords.json"
	DefaultStorePath      = ":memory:"
	PlaceholderToken      = "YOUR_BOT_TOKEN"
)

var (
	ErrMissingToken     = errors.New("bot token is required")
	ErrPlaceholderToken = errors.New("bot token is still the placeholder value")
	ErrMissingTarget    = errors.New("target user id is required")
)

// Config holds the monitor settings.
type Config struct {
	BotToken       string        `env:"TGMON_BOT_TOKEN"`
	TargetUserID   int64         `env:"TGMON_TARGET_USER_ID"`
	KeywordsFile   string        `env:"TGMON_KEYWORDS_FILE"    envDefault:"keywords.json"`
	StorePath      string        `env:"TGMON_STORE_PATH"       envDefault:":memory:"`
	PollSchedule   string        `env:"TGMON_POLL_SCHEDULE"    envDefault:"@every 5m"`
	RetrySchedule  string        `env:"TGMON_RETRY_SCHEDULE"   envDefault:"@every 1m"`
	StatusInterval time.Duration `env:"TGMON_STATUS_INTERVAL"  envDefault:"10m"`
	Lookback       time.Duration `env:"TGMON_LOOKBACK"         envDefault:"5m"`
	FetchLimit     int           `env:"TGMON_FETCH_LIMIT"      envDefault:"200"`
	CallTimeout    time.Duration `env:"TGMON_CALL_TIMEOUT"     envDefault:"30s"`
	Retention      time.Duration `env:"TGMON_RETENTION"        envDefault:"1h"`
	SettleDelay    time.Duration `env:"TGMON_SETTLE_DELAY"     envDefault:"10s"`
	Debug          bool          `env:"TGMON_DEBUG"`

	poll  cron.Schedule
	retry cron.Schedule
}

// Default returns the built-in settings with no credentials.
func Default() *Config {
	return &Config{
		KeywordsFile:   DefaultKeywordsFile,
		StorePath:      DefaultStorePath,
		PollSchedule:   DefaultPollSchedule,
		RetrySchedule:  DefaultRetrySchedule,
		StatusInterval: DefaultStatusInterval,
		Lookback:       DefaultLookback,
		FetchLimit:     DefaultFetchLimit,
		CallTimeout:    DefaultCallTimeout,
		Retention:      DefaultRetention,
		SettleDelay:    DefaultSettleDelay,
	}
}

// Load reads an optional .env file from the working directory, then the
// process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return LoadEnv()
}

// LoadEnv populates a Config from the process environment only.
func LoadEnv() (*Config, error) {
	cfg := Default()
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate rejects missing or placeholder credentials and bad cadences. It
// must pass before the scheduler starts.
func (c *Config) Validate() error {
	token := strings.TrimSpace(c.BotToken)
	switch {
	case token == "":
		return ErrMissingToken
	case token == PlaceholderToken:
		return ErrPlaceholderToken
	}
	// Negative ids are group and channel chats, which are valid targets.
	if c.TargetUserID == 0 {
		return ErrMissingTarget
	}
	if c.FetchLimit <= 0 {
		return fmt.Errorf("fetch limit must be positive, got %d", c.FetchLimit)
	}
	if c.StatusInterval <= 0 {
		return fmt.Errorf("status interval must be positive, got %s", c.StatusInterval)
	}
	if c.Lookback < 0 {
		return fmt.Errorf("lookback must not be negative, got %s", c.Lookback)
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("settle delay must not be negative, got %s", c.SettleDelay)
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("call timeout must be positive, got %s", c.CallTimeout)
	}

	poll, err := cron.ParseStandard(c.PollSchedule)
	if err != nil {
		return fmt.Errorf("poll schedule %q: %w", c.PollSchedule, err)
	}
	retry, err := cron.ParseStandard(c.RetrySchedule)
	if err != nil {
		return fmt.Errorf("retry schedule %q: %w", c.RetrySchedule, err)
	}
	c.poll, c.retry = poll, retry
	return nil
}

// Poll returns the parsed poll cadence. Call Validate first.
func (c *Config) Poll() cron.Schedule { return c.poll }

// Retry returns the parsed error-recovery cadence. Call Validate first.
func (c *Config) Retry() cron.Schedule { return c.retry }

// KeywordsPath resolves the keyword file against the working directory.
func (c *Config) KeywordsPath() string {
	if filepath.IsAbs(c.KeywordsFile) {
		return c.KeywordsFile
	}
	wd, err := os.Getwd()
	if err != nil {
		return c.KeywordsFile
	}
	return filepath.Join(wd, c.KeywordsFile)
}

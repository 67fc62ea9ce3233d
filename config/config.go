// Package config provides configuration management for the recap bot.
// It supports loading configuration from a YAML file, environment variables,
// and secrets stored in the system keyring.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/recap-bot/pkg/calendar"
	rerrors "github.com/otherjamesbrown/recap-bot/pkg/errors"
	"github.com/otherjamesbrown/recap-bot/pkg/pipeline"
	"github.com/otherjamesbrown/recap-bot/pkg/scheduler"
	"github.com/otherjamesbrown/recap-bot/pkg/series"
)

// Default configuration values.
const (
	DefaultConfigDir            = ".recap"
	DefaultConfigFile           = "config.yaml"
	DefaultNotificationMinutes  = 60
	DefaultCheckIntervalMinutes = 5
	DefaultHost                 = "0.0.0.0"
	DefaultPort                 = 8080
	DefaultRequestTimeout       = 30 * time.Second
	DefaultFetchWindow          = 2 * time.Hour
	DefaultLookbackDays         = 30
	DefaultSearchLimit          = 10

	// MaxScheduledFetchWindow caps the look-ahead when recaps are scheduled
	// in Slack, keeping it inside the processed-event retention.
	MaxScheduledFetchWindow = scheduler.DefaultRetention
)

// Calendar source types.
const (
	SourceAppsScript = "appsscript"
	SourceICS        = "ics"
	SourceGoogle     = "google"
)

// FirefliesConfig holds transcript-service settings.
type FirefliesConfig struct {
	APIKey       string `yaml:"api_key,omitempty"`
	URL          string `yaml:"url,omitempty"`
	LookbackDays int    `yaml:"lookback_days,omitempty"`
	SearchLimit  int    `yaml:"search_limit,omitempty"`
}

// SlackConfig holds messaging settings.
type SlackConfig struct {
	BotToken      string `yaml:"bot_token,omitempty"`
	SigningSecret string `yaml:"signing_secret,omitempty"`
	APIURL        string `yaml:"api_url,omitempty"`

	// Channels maps a route (engineering, product, design, standups, default)
	// to a channel name.
	Channels map[string]string `yaml:"channels,omitempty"`

	// Delivery is "immediate" (default) or "scheduled".
	Delivery string `yaml:"delivery,omitempty"`
}

// CalendarSourceConfig describes one calendar backend.
type CalendarSourceConfig struct {
	Name string `yaml:"name"`
	// Type is appsscript, ics or google.
	Type string `yaml:"type"`
	// URL is the feed or endpoint. For google it optionally overrides the API base URL.
	URL string `yaml:"url,omitempty"`
	// Location is the IANA zone for floating ICS times.
	Location string `yaml:"location,omitempty"`

	// Google Calendar API settings.
	CalendarID      string `yaml:"calendar_id,omitempty"`
	CredentialsFile string `yaml:"credentials_file,omitempty"`
	APIKey          string `yaml:"api_key,omitempty"`
}

// CalendarConfig holds calendar settings.
type CalendarConfig struct {
	Sources []CalendarSourceConfig `yaml:"sources"`
	// WindowMode is lead (default) or precise.
	WindowMode  string        `yaml:"window_mode,omitempty"`
	FetchWindow time.Duration `yaml:"fetch_window,omitempty"`
}

// ScheduleConfig holds polling settings.
type ScheduleConfig struct {
	NotificationMinutes  int `yaml:"notification_minutes_before"`
	CheckIntervalMinutes int `yaml:"check_interval_minutes"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config holds the bot configuration.
type Config struct {
	Fireflies FirefliesConfig   `yaml:"fireflies"`
	Slack     SlackConfig       `yaml:"slack"`
	Calendar  CalendarConfig    `yaml:"calendar"`
	Schedule  ScheduleConfig    `yaml:"schedule"`
	Matching  series.Thresholds `yaml:"matching"`
	Server    ServerConfig      `yaml:"server"`
	Log       LogConfig         `yaml:"log"`

	// RedisURL enables dispatch-event publishing when set.
	RedisURL string `yaml:"redis_url,omitempty"`
	// DatabaseURL enables the Postgres log sink when set.
	DatabaseURL string `yaml:"database_url,omitempty"`

	// RequestTimeout bounds every collaborator call.
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty"`
}

// SecretLookup returns a stored secret by name.
type SecretLookup func(name string) (string, bool)

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Fireflies: FirefliesConfig{
			LookbackDays: DefaultLookbackDays,
			SearchLimit:  DefaultSearchLimit,
		},
		Slack: SlackConfig{Delivery: "immediate"},
		Calendar: CalendarConfig{
			WindowMode:  "lead",
			FetchWindow: DefaultFetchWindow,
		},
		Schedule: ScheduleConfig{
			NotificationMinutes:  DefaultNotificationMinutes,
			CheckIntervalMinutes: DefaultCheckIntervalMinutes,
		},
		Matching:       series.DefaultThresholds(),
		Server:         ServerConfig{Host: DefaultHost, Port: DefaultPort},
		Log:            LogConfig{Level: "info", Format: "auto"},
		RequestTimeout: DefaultRequestTimeout,
	}
}

// CheckInterval returns the poll interval as a duration.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.Schedule.CheckIntervalMinutes) * time.Minute
}

// ConfigDir returns the configuration directory path.
// Uses $RECAP_CONFIG_DIR if set, otherwise ~/.recap
func ConfigDir() (string, error) {
	if dir := os.Getenv("RECAP_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, DefaultConfigDir), nil
}

// ConfigPath returns the full path to the configuration file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// LoadConfig loads the configuration without validating it.
// Configuration is loaded in this order (later sources override earlier):
// 1. Default values
// 2. Config file (~/.recap/config.yaml or $RECAP_CONFIG_DIR/config.yaml)
// 3. Environment variables
// 4. Keyring secrets, only for secrets still empty
//
// secrets may be nil.
func LoadConfig(secrets SecretLookup) (*Config, error) {
	cfg := DefaultConfig()

	configPath, err := ConfigPath()
	if err != nil {
		return nil, fmt.Errorf("getting config path: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, err
	}

	if secrets != nil {
		loadSecrets(cfg, secrets)
	}

	return cfg, nil
}

// loadFromFile overlays a YAML file onto cfg. Keys absent from the file keep
// their current values.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// loadFromEnv overlays environment variables onto the configuration.
// The unprefixed names are the ones deployments already use.
func loadFromEnv(cfg *Config) error {
	setString(&cfg.Fireflies.APIKey, "FIREFLIES_API_KEY")
	setString(&cfg.Fireflies.URL, "RECAP_FIREFLIES_URL")
	setString(&cfg.Slack.BotToken, "SLACK_BOT_TOKEN")
	setString(&cfg.Slack.SigningSecret, "SLACK_SIGNING_SECRET")
	setString(&cfg.Slack.APIURL, "RECAP_SLACK_API_URL")
	setString(&cfg.Slack.Delivery, "RECAP_DELIVERY")
	setString(&cfg.Calendar.WindowMode, "RECAP_WINDOW_MODE")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "RECAP_LOG_FORMAT")
	setString(&cfg.RedisURL, "REDIS_URL")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.Server.Host, "HOST")

	ints := []struct {
		dst *int
		env string
	}{
		{&cfg.Schedule.NotificationMinutes, "NOTIFICATION_MINUTES_BEFORE"},
		{&cfg.Schedule.CheckIntervalMinutes, "CHECK_INTERVAL_MINUTES"},
		{&cfg.Server.Port, "PORT"},
		{&cfg.Fireflies.LookbackDays, "RECAP_LOOKBACK_DAYS"},
		{&cfg.Matching.MinSharedWords, "RECAP_MIN_SHARED_WORDS"},
	}
	for _, e := range ints {
		v := os.Getenv(e.env)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", rerrors.ErrConfig, e.env, v)
		}
		*e.dst = n
	}

	if v := os.Getenv("RECAP_MIN_OVERLAP_RATIO"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: RECAP_MIN_OVERLAP_RATIO=%q is not a number", rerrors.ErrConfig, v)
		}
		cfg.Matching.MinOverlapRatio = f
	}

	durations := []struct {
		dst *time.Duration
		env string
	}{
		{&cfg.RequestTimeout, "RECAP_REQUEST_TIMEOUT"},
		{&cfg.Calendar.FetchWindow, "RECAP_FETCH_WINDOW"},
	}
	for _, e := range durations {
		v := os.Getenv(e.env)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", rerrors.ErrConfig, e.env, v, err)
		}
		*e.dst = d
	}

	// A single calendar can be configured entirely from the environment.
	if url := os.Getenv("RECAP_CALENDAR_URL"); url != "" {
		typ := os.Getenv("RECAP_CALENDAR_TYPE")
		if typ == "" {
			typ = SourceAppsScript
			if strings.HasSuffix(strings.ToLower(url), ".ics") || strings.HasPrefix(url, "webcal://") {
				typ = SourceICS
			}
		}
		cfg.Calendar.Sources = []CalendarSourceConfig{{Name: typ, Type: typ, URL: url}}
	}

	return nil
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

// loadSecrets fills secrets that neither the file nor the environment set.
func loadSecrets(cfg *Config, lookup SecretLookup) {
	fill := func(dst *string, name string) {
		if *dst != "" {
			return
		}
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}
	fill(&cfg.Fireflies.APIKey, "fireflies_api_key")
	fill(&cfg.Slack.BotToken, "slack_bot_token")
	fill(&cfg.Slack.SigningSecret, "slack_signing_secret")
}

// Validate checks that the configuration is complete enough to run the bot.
// Every failure wraps errors.ErrConfig.
func (c *Config) Validate() error {
	var problems []string

	if c.Fireflies.APIKey == "" {
		problems = append(problems, "fireflies.api_key is required (FIREFLIES_API_KEY)")
	}
	if c.Slack.BotToken == "" {
		problems = append(problems, "slack.bot_token is required (SLACK_BOT_TOKEN)")
	}
	if c.Slack.SigningSecret == "" {
		problems = append(problems, "slack.signing_secret is required (SLACK_SIGNING_SECRET)")
	}
	if len(c.Calendar.Sources) == 0 {
		problems = append(problems, "at least one calendar source is required")
	}
	for i, src := range c.Calendar.Sources {
		switch src.Type {
		case SourceAppsScript, SourceICS:
			if src.URL == "" {
				problems = append(problems, fmt.Sprintf("calendar.sources[%d].url is required", i))
			}
		case SourceGoogle:
			if src.CredentialsFile == "" && src.APIKey == "" {
				problems = append(problems, fmt.Sprintf("calendar.sources[%d] needs credentials_file or api_key", i))
			}
		default:
			problems = append(problems, fmt.Sprintf("calendar.sources[%d].type %q must be %s, %s or %s", i, src.Type, SourceAppsScript, SourceICS, SourceGoogle))
		}
		if src.Location != "" {
			if _, err := time.LoadLocation(src.Location); err != nil {
				problems = append(problems, fmt.Sprintf("calendar.sources[%d].location: %v", i, err))
			}
		}
	}
	if _, err := calendar.ParseWindowMode(c.Calendar.WindowMode); err != nil {
		problems = append(problems, err.Error())
	}
	delivery, err := pipeline.ParseDeliveryMode(c.Slack.Delivery)
	if err != nil {
		problems = append(problems, err.Error())
	}
	// Processed entries expire after the retention period, so a scheduled
	// recap must not be planned further ahead than that.
	if delivery == pipeline.DeliveryScheduled && c.Calendar.FetchWindow > MaxScheduledFetchWindow {
		problems = append(problems, fmt.Sprintf("calendar.fetch_window %s exceeds %s with scheduled delivery", c.Calendar.FetchWindow, MaxScheduledFetchWindow))
	}
	if c.Schedule.NotificationMinutes <= 0 {
		problems = append(problems, "schedule.notification_minutes_before must be positive")
	}
	if c.Schedule.CheckIntervalMinutes <= 0 {
		problems = append(problems, "schedule.check_interval_minutes must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}
	if c.RequestTimeout <= 0 {
		problems = append(problems, "request_timeout must be positive")
	}
	if c.Matching.MinOverlapRatio <= 0 || c.Matching.MinOverlapRatio > 1 {
		problems = append(problems, "matching.min_overlap_ratio must be in (0, 1]")
	}
	if c.Matching.MinSharedWords < 1 {
		problems = append(problems, "matching.min_shared_words must be at least 1")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", rerrors.ErrConfig, strings.Join(problems, "; "))
	}
	return nil
}

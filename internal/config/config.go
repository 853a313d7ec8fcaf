package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone   = "UTC"
	configPathEnv     = "TIMELINE_CONFIG"
	databaseDriverEnv = "DATABASE_DRIVER"
	databaseDSNEnv    = "DATABASE_DSN"
	providerEnv       = "GENERATOR_PROVIDER"
	apiKeyEnv         = "GENERATOR_API_KEY"
	modelEnv          = "GENERATOR_MODEL"
	endpointEnv       = "GENERATOR_ENDPOINT"
	cronSecretEnv     = "CRON_SECRET"
	httpAddrEnv       = "HTTP_ADDR"
	logLevelEnv       = "LOG_LEVEL"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrMissingCredential is returned by Validate when no generator API key is configured.
var ErrMissingCredential = errors.New("generator api key is not configured")

// Config holds high-level settings required across the application.
type Config struct {
	Database      DatabaseConfig     `yaml:"database"`
	Generator     GeneratorConfig    `yaml:"generator"`
	Ingest        IngestConfig       `yaml:"ingest"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Server        ServerConfig       `yaml:"server"`
	Feed          FeedConfig         `yaml:"feed"`
	Notifications NotificationConfig `yaml:"notifications"`
	Logging       LoggingConfig      `yaml:"logging"`
}

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// GeneratorConfig defines how to contact the generative text service.
type GeneratorConfig struct {
	Provider     string        `yaml:"provider"`
	Endpoint     string        `yaml:"endpoint"`
	Model        string        `yaml:"model"`
	APIKey       string        `yaml:"apiKey"`
	SystemPrompt string        `yaml:"systemPrompt"`
	Temperature  float64       `yaml:"temperature"`
	MaxTokens    int           `yaml:"maxTokens"`
	Timeout      time.Duration `yaml:"timeout"`
}

// IngestConfig shapes the prompts and the accepted date window.
type IngestConfig struct {
	WindowDays     int    `yaml:"windowDays"`
	MinItems       int    `yaml:"minItems"`
	MaxItems       int    `yaml:"maxItems"`
	TopicPrimary   string `yaml:"topicPrimary"`
	TopicSecondary string `yaml:"topicSecondary"`
}

// SchedulerConfig defines when ingestion should run.
type SchedulerConfig struct {
	Disabled   bool           `yaml:"disabled"`
	RunOnStart bool           `yaml:"runOnStart"`
	Interval   time.Duration  `yaml:"interval"`
	Timezone   string         `yaml:"timezone"`
	location   *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// ServerConfig configures the HTTP trigger surface.
type ServerConfig struct {
	Addr       string `yaml:"addr"`
	CronSecret string `yaml:"cronSecret"`
}

// FeedConfig tunes the change notification bridge.
type FeedConfig struct {
	Window      time.Duration `yaml:"window"`
	Buffer      int           `yaml:"buffer"`
	RecentLimit int           `yaml:"recentLimit"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// Enabled reports whether both token and chat are present.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// LoggingConfig controls the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads the YAML file named by $TIMELINE_CONFIG (if any) and applies environment overrides.
func Load() Config {
	return LoadFrom(os.Getenv(configPathEnv))
}

// LoadFrom reads YAML configuration at path (if non-empty) and applies environment overrides.
func LoadFrom(path string) Config {
	cfg := defaultConfig()

	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.applyProviderDefaults()
	cfg.bindTimezone()

	return cfg
}

// Validate reports configuration errors that must stop the service at startup.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Generator.APIKey) == "" {
		return ErrMissingCredential
	}
	switch c.Generator.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("unknown generator provider %q", c.Generator.Provider)
	}
	if err := c.ValidateStorage(); err != nil {
		return err
	}
	if c.Ingest.WindowDays <= 0 {
		return fmt.Errorf("ingest.windowDays must be positive, got %d", c.Ingest.WindowDays)
	}
	if c.Ingest.MinItems <= 0 || c.Ingest.MaxItems < c.Ingest.MinItems {
		return fmt.Errorf("ingest item bounds invalid: min=%d max=%d", c.Ingest.MinItems, c.Ingest.MaxItems)
	}
	return nil
}

// ValidateStorage checks only the database section; commands that never call the generator use it.
func (c Config) ValidateStorage() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database dsn is empty")
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDriverEnv); v != "" {
		c.Database.Driver = v
	}

	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(providerEnv); v != "" && v != c.Generator.Provider {
		c.Generator.Provider = v
		// endpoint and model defaults belong to the previous provider
		c.Generator.Endpoint = ""
		c.Generator.Model = ""
	}

	if v := os.Getenv(apiKeyEnv); v != "" {
		c.Generator.APIKey = v
	}

	if v := os.Getenv(modelEnv); v != "" {
		c.Generator.Model = v
	}

	if v := os.Getenv(endpointEnv); v != "" {
		c.Generator.Endpoint = v
	}

	if v := os.Getenv(cronSecretEnv); v != "" {
		c.Server.CronSecret = v
	}

	if v := os.Getenv(httpAddrEnv); v != "" {
		c.Server.Addr = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
}

func (c *Config) applyProviderDefaults() {
	switch c.Generator.Provider {
	case ProviderGemini:
		if c.Generator.Endpoint == "" {
			c.Generator.Endpoint = "https://generativelanguage.googleapis.com/v1beta"
		}
		if c.Generator.Model == "" {
			c.Generator.Model = "gemini-1.5-flash"
		}
	case ProviderOpenAI:
		if c.Generator.Endpoint == "" {
			c.Generator.Endpoint = "https://api.x.ai/v1/chat/completions"
		}
		if c.Generator.Model == "" {
			c.Generator.Model = "grok-2"
		}
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Database.Driver != "" {
		base.Database.Driver = override.Database.Driver
	}
	if override.Database.DSN != "" {
		base.Database.DSN = override.Database.DSN
	}

	if override.Generator.Provider != "" && override.Generator.Provider != base.Generator.Provider {
		base.Generator.Provider = override.Generator.Provider
		base.Generator.Endpoint = ""
		base.Generator.Model = ""
	}
	if override.Generator.Endpoint != "" {
		base.Generator.Endpoint = override.Generator.Endpoint
	}
	if override.Generator.Model != "" {
		base.Generator.Model = override.Generator.Model
	}
	if override.Generator.APIKey != "" {
		base.Generator.APIKey = override.Generator.APIKey
	}
	if override.Generator.SystemPrompt != "" {
		base.Generator.SystemPrompt = override.Generator.SystemPrompt
	}
	if override.Generator.Temperature != 0 {
		base.Generator.Temperature = override.Generator.Temperature
	}
	if override.Generator.MaxTokens != 0 {
		base.Generator.MaxTokens = override.Generator.MaxTokens
	}
	if override.Generator.Timeout != 0 {
		base.Generator.Timeout = override.Generator.Timeout
	}

	if override.Ingest.WindowDays != 0 {
		base.Ingest.WindowDays = override.Ingest.WindowDays
	}
	if override.Ingest.MinItems != 0 {
		base.Ingest.MinItems = override.Ingest.MinItems
	}
	if override.Ingest.MaxItems != 0 {
		base.Ingest.MaxItems = override.Ingest.MaxItems
	}
	if override.Ingest.TopicPrimary != "" {
		base.Ingest.TopicPrimary = override.Ingest.TopicPrimary
	}
	if override.Ingest.TopicSecondary != "" {
		base.Ingest.TopicSecondary = override.Ingest.TopicSecondary
	}

	if override.Scheduler.Disabled {
		base.Scheduler.Disabled = true
	}
	if override.Scheduler.RunOnStart {
		base.Scheduler.RunOnStart = true
	}
	if override.Scheduler.Interval != 0 {
		base.Scheduler.Interval = override.Scheduler.Interval
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}

	if override.Server.Addr != "" {
		base.Server.Addr = override.Server.Addr
	}
	if override.Server.CronSecret != "" {
		base.Server.CronSecret = override.Server.CronSecret
	}

	if override.Feed.Window != 0 {
		base.Feed.Window = override.Feed.Window
	}
	if override.Feed.Buffer != 0 {
		base.Feed.Buffer = override.Feed.Buffer
	}
	if override.Feed.RecentLimit != 0 {
		base.Feed.RecentLimit = override.Feed.RecentLimit
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Database: DatabaseConfig{Driver: DriverSQLite, DSN: "timeline.db"},
		Generator: GeneratorConfig{
			Provider:     ProviderGemini,
			SystemPrompt: "You track recent developments and report them strictly as JSON.",
			Temperature:  0.7,
			MaxTokens:    4000,
			Timeout:      60 * time.Second,
		},
		Ingest: IngestConfig{
			WindowDays:     30,
			MinItems:       5,
			MaxItems:       10,
			TopicPrimary:   "yapay zeka",
			TopicSecondary: "artificial intelligence",
		},
		Scheduler: SchedulerConfig{Interval: 24 * time.Hour, Timezone: defaultTimezone, location: tz},
		Server:    ServerConfig{Addr: ":8080"},
		Feed:      FeedConfig{Window: 24 * time.Hour, Buffer: 16, RecentLimit: 10},
		Logging:   LoggingConfig{Level: "info"},
	}
}

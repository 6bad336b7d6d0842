package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/curator-agent/internal/models"
)

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Selector  SelectorConfig  `mapstructure:"selector"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Publish   PublishConfig   `mapstructure:"publish"`
	Server    ServerConfig    `mapstructure:"server"`
	Genres    []GenreConfig   `mapstructure:"genres"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json or console
	Output string `mapstructure:"output"` // stdout or file path
}

// SchedulerConfig holds scheduler settings
type SchedulerConfig struct {
	TickCron     string        `mapstructure:"tick_cron"`
	LockTTL      time.Duration `mapstructure:"lock_ttl"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// SelectorConfig tunes the fetch fan-out per run
type SelectorConfig struct {
	FetchConcurrency int           `mapstructure:"fetch_concurrency"`
	FetchTimeout     time.Duration `mapstructure:"fetch_timeout"`
}

// SourcesConfig holds fetch adapter settings
type SourcesConfig struct {
	YouTube YouTubeConfig `mapstructure:"youtube"`
	Retry   RetryConfig   `mapstructure:"retry"`
}

// YouTubeConfig holds YouTube Data API settings
type YouTubeConfig struct {
	APIKey     string `mapstructure:"api_key"`
	MaxResults int64  `mapstructure:"max_results"`
}

// RetryConfig holds the bounded backoff applied by fetch adapters
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	Multiplier  float64       `mapstructure:"multiplier"`
}

// PublishConfig holds webhook publisher settings
type PublishConfig struct {
	Endpoint     string        `mapstructure:"endpoint"`
	TokenURL     string        `mapstructure:"token_url"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// ServerConfig holds the HTTP trigger/health server settings
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// GenreConfig declares one genre in the config file
type GenreConfig struct {
	ID                 string        `mapstructure:"id"`
	Name               string        `mapstructure:"name"`
	ContentType        string        `mapstructure:"content_type"` // article or video
	Keywords           []string      `mapstructure:"keywords"`
	Sources            []string      `mapstructure:"sources"`
	ScheduleInterval   time.Duration `mapstructure:"schedule_interval"`
	ScheduleAnchor     string        `mapstructure:"schedule_anchor"` // optional "HH:MM"
	DailyPostLimit     int           `mapstructure:"daily_post_limit"`
	MaxItemsPerRun     int           `mapstructure:"max_items_per_run"`
	AutoPostingEnabled bool          `mapstructure:"auto_posting_enabled"`
	DedupStrictness    string        `mapstructure:"dedup_strictness"`
	DedupWindowDays    int           `mapstructure:"dedup_window_days"`
}

// ToModel converts the declaration into the validated genre snapshot the
// pipeline operates on.
func (g GenreConfig) ToModel() (models.Genre, error) {
	genre := models.Genre{
		ID:          g.ID,
		Name:        g.Name,
		ContentType: models.ContentType(g.ContentType),
		Keywords:    g.Keywords,
		Sources:     g.Sources,
		Schedule: models.Schedule{
			Interval: g.ScheduleInterval,
			Anchor:   g.ScheduleAnchor,
		},
		DailyPostLimit:     g.DailyPostLimit,
		MaxItemsPerRun:     g.MaxItemsPerRun,
		AutoPostingEnabled: g.AutoPostingEnabled,
		DedupStrictness:    models.DedupStrictness(g.DedupStrictness),
		DedupWindowDays:    g.DedupWindowDays,
	}
	if err := genre.Validate(); err != nil {
		return models.Genre{}, err
	}
	return genre, nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Load .env file if present (ignore errors if not found)
	_ = godotenv.Load()
	_ = godotenv.Load(".env.local")

	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")

		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".curator-agent"))
		}
	}

	// Environment variables
	v.SetEnvPrefix("CURATOR")
	v.AutomaticEnv()

	// Explicit bindings for nested keys (Viper doesn't auto-bind underscored nested keys)
	v.BindEnv("database.dsn", "CURATOR_DATABASE_DSN")
	v.BindEnv("sources.youtube.api_key", "CURATOR_SOURCES_YOUTUBE_API_KEY")
	v.BindEnv("publish.endpoint", "CURATOR_PUBLISH_ENDPOINT")
	v.BindEnv("publish.token_url", "CURATOR_PUBLISH_TOKEN_URL")
	v.BindEnv("publish.client_id", "CURATOR_PUBLISH_CLIENT_ID")
	v.BindEnv("publish.client_secret", "CURATOR_PUBLISH_CLIENT_SECRET")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.dsn", "./data/curator.db")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stdout")

	// Scheduler defaults
	v.SetDefault("scheduler.tick_cron", "*/10 * * * *") // Evaluate all genres every 10 minutes
	v.SetDefault("scheduler.lock_ttl", "5m")
	v.SetDefault("scheduler.cache_ttl", "15m")
	v.SetDefault("scheduler.retry_backoff", "5m")

	// Selector defaults
	v.SetDefault("selector.fetch_concurrency", 4)
	v.SetDefault("selector.fetch_timeout", "60s")

	// Sources defaults
	v.SetDefault("sources.youtube.max_results", 25)
	v.SetDefault("sources.retry.max_attempts", 3)
	v.SetDefault("sources.retry.base_delay", "1s")
	v.SetDefault("sources.retry.multiplier", 2.0)

	// Publish defaults
	v.SetDefault("publish.timeout", "30s")

	// Server defaults
	v.SetDefault("server.port", 8080)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Publish.Endpoint == "" {
		return fmt.Errorf("publish.endpoint is required")
	}
	if len(c.Genres) == 0 {
		return fmt.Errorf("at least one genre must be configured")
	}
	seen := make(map[string]bool, len(c.Genres))
	for _, g := range c.Genres {
		if seen[g.ID] {
			return fmt.Errorf("duplicate genre id %q", g.ID)
		}
		seen[g.ID] = true
		if _, err := g.ToModel(); err != nil {
			return err
		}
		if g.ContentType == string(models.ContentTypeVideo) && c.Sources.YouTube.APIKey == "" {
			return fmt.Errorf("genre %s: sources.youtube.api_key is required for video genres", g.ID)
		}
	}
	return nil
}

// GenreModels converts every declared genre, failing on the first invalid one.
func (c *Config) GenreModels() ([]models.Genre, error) {
	genres := make([]models.Genre, 0, len(c.Genres))
	for _, g := range c.Genres {
		genre, err := g.ToModel()
		if err != nil {
			return nil, err
		}
		genres = append(genres, genre)
	}
	return genres, nil
}

// FileGenreProvider re-reads the config file on every call so a run never
// acts on a stale genre policy.
type FileGenreProvider struct {
	path string
}

// NewFileGenreProvider creates a provider bound to one config path.
func NewFileGenreProvider(path string) *FileGenreProvider {
	return &FileGenreProvider{path: path}
}

// Genres implements the scheduler's GenreProvider contract.
func (p *FileGenreProvider) Genres(_ context.Context) ([]models.Genre, error) {
	cfg, err := Load(p.path)
	if err != nil {
		return nil, err
	}
	return cfg.GenreModels()
}

// StaticGenreProvider serves a fixed snapshot, for one-shot CLI runs and tests.
type StaticGenreProvider struct {
	genres []models.Genre
}

// NewStaticGenreProvider creates a provider over a fixed genre list.
func NewStaticGenreProvider(genres []models.Genre) *StaticGenreProvider {
	return &StaticGenreProvider{genres: genres}
}

// Genres implements the scheduler's GenreProvider contract.
func (p *StaticGenreProvider) Genres(_ context.Context) ([]models.Genre, error) {
	return p.genres, nil
}

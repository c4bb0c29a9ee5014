package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Notion    NotionConfig    `yaml:"notion" mapstructure:"notion"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Jina      JinaConfig      `yaml:"jina" mapstructure:"jina"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Match     MatchConfig     `yaml:"match" mapstructure:"match"`
	Scrape    ScrapeConfig    `yaml:"scrape" mapstructure:"scrape"`
	Archive   ArchiveConfig   `yaml:"archive" mapstructure:"archive"`
	Notify    NotifyConfig    `yaml:"notify" mapstructure:"notify"`
	Crawl     CrawlConfig     `yaml:"crawl" mapstructure:"crawl"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig selects the registry backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite, postgres or notion
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// NotionConfig holds the Notion token and database IDs.
type NotionConfig struct {
	Token     string  `yaml:"token" mapstructure:"token"`
	ProjectDB string  `yaml:"project_db" mapstructure:"project_db"`
	DetailDB  string  `yaml:"detail_db" mapstructure:"detail_db"`
	IntakeDB  string  `yaml:"intake_db" mapstructure:"intake_db"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// JinaConfig holds Jina AI Reader settings.
type JinaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// ExtractConfig selects the extraction oracle.
type ExtractConfig struct {
	Provider        string `yaml:"provider" mapstructure:"provider"` // llm or heuristic
	MaxContentChars int    `yaml:"max_content_chars" mapstructure:"max_content_chars"`
}

// MatchConfig tunes entity resolution.
type MatchConfig struct {
	Threshold float64 `yaml:"threshold" mapstructure:"threshold"`
}

// ScrapeConfig configures page fetching.
type ScrapeConfig struct {
	UserAgent    string   `yaml:"user_agent" mapstructure:"user_agent"`
	ExcludePaths []string `yaml:"exclude_paths" mapstructure:"exclude_paths"`

	// Jina reader breaker: BreakerFailures failures with no gap longer than
	// BreakerWindowSeconds skip the reader for BreakerCooldownSeconds.
	BreakerFailures        int `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerWindowSeconds   int `yaml:"breaker_window_seconds" mapstructure:"breaker_window_seconds"`
	BreakerCooldownSeconds int `yaml:"breaker_cooldown_seconds" mapstructure:"breaker_cooldown_seconds"`
}

// ArchiveConfig selects where fetched pages are archived.
type ArchiveConfig struct {
	Driver    string `yaml:"driver" mapstructure:"driver"` // local, s3 or none
	Dir       string `yaml:"dir" mapstructure:"dir"`
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	Region    string `yaml:"region" mapstructure:"region"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
}

// NotifyConfig holds the chat webhook settings.
type NotifyConfig struct {
	WebhookURL  string `yaml:"webhook_url" mapstructure:"webhook_url"`
	RegistryURL string `yaml:"registry_url" mapstructure:"registry_url"`
}

// CrawlConfig configures the news source crawlers.
type CrawlConfig struct {
	Pages             int     `yaml:"pages" mapstructure:"pages"`
	Concurrency       int     `yaml:"concurrency" mapstructure:"concurrency"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	SourcesFile       string  `yaml:"sources_file" mapstructure:"sources_file"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	CORSOrigins    []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	DedupeMinutes  int      `yaml:"dedupe_minutes" mapstructure:"dedupe_minutes"`
	DedupeCapacity int      `yaml:"dedupe_capacity" mapstructure:"dedupe_capacity"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config.yaml and the environment.
// Environment variables use the REGISTRY_ prefix, e.g.
// REGISTRY_NOTION_TOKEN for notion.token.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("REGISTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "registry.db")
	v.SetDefault("notion.rate_limit", 3)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("extract.provider", "llm")
	v.SetDefault("extract.max_content_chars", 6000)
	v.SetDefault("match.threshold", 0.80)
	v.SetDefault("scrape.exclude_paths", []string{"/video/*", "/tags/*", "/user/*", "/login*", "/*.pdf", "/*.zip"})
	v.SetDefault("scrape.breaker_failures", 3)
	v.SetDefault("scrape.breaker_window_seconds", 30)
	v.SetDefault("scrape.breaker_cooldown_seconds", 60)
	v.SetDefault("archive.driver", "local")
	v.SetDefault("archive.dir", "archives")
	v.SetDefault("archive.region", "us-east-1")
	v.SetDefault("archive.use_ssl", true)
	v.SetDefault("crawl.pages", 2)
	v.SetDefault("crawl.concurrency", 3)
	v.SetDefault("crawl.requests_per_second", 1.0)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.dedupe_minutes", 10)
	v.SetDefault("server.dedupe_capacity", 1024)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validation modes, one per family of commands.
const (
	ModeRegistry = "registry" // commands that only read or write the registry
	ModeIngest   = "ingest"   // commands that fetch and extract pages
	ModeServe    = "serve"
)

// Validate checks the settings mode depends on and reports every problem
// at once.
func (c *Config) Validate(mode string) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch mode {
	case ModeRegistry, ModeIngest, ModeServe:
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			add("store.database_url is required for %s", c.Store.Driver)
		}
	case "notion":
		if c.Notion.Token == "" {
			add("notion.token is required")
		}
		if c.Notion.ProjectDB == "" {
			add("notion.project_db is required")
		}
	default:
		add("unknown store.driver %q", c.Store.Driver)
	}
	if c.Match.Threshold <= 0 || c.Match.Threshold > 1 {
		add("match.threshold must be in (0, 1], got %v", c.Match.Threshold)
	}

	if mode == ModeIngest || mode == ModeServe {
		switch c.Extract.Provider {
		case "llm":
			if c.Anthropic.Key == "" {
				add("anthropic.key is required for the llm extractor")
			}
		case "heuristic":
		default:
			add("unknown extract.provider %q", c.Extract.Provider)
		}

		switch c.Archive.Driver {
		case "local", "none", "":
		case "s3":
			if c.Archive.Endpoint == "" || c.Archive.Bucket == "" {
				add("archive.endpoint and archive.bucket are required for s3")
			}
		default:
			add("unknown archive.driver %q", c.Archive.Driver)
		}
	}

	if mode == ModeServe && c.Server.Port <= 0 {
		add("server.port must be > 0")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

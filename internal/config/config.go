// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Site     SiteConfig     `mapstructure:"site"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port               int      `mapstructure:"port"`
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// SiteConfig describes the restaurant chain site being crawled.
type SiteConfig struct {
	BaseURL             string   `mapstructure:"base_url"`
	RestaurantsPath     string   `mapstructure:"restaurants_path"`
	ExcludedRestaurants []string `mapstructure:"excluded_restaurants"`
}

// CrawlerConfig governs fetch and scheduling behavior.
type CrawlerConfig struct {
	Concurrency    int           `mapstructure:"concurrency"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	JitterMinMs    int           `mapstructure:"jitter_min_ms"`
	JitterMaxMs    int           `mapstructure:"jitter_max_ms"`
	TimeoutSeconds int           `mapstructure:"timeout_seconds"`
	UserAgent      string        `mapstructure:"user_agent"`
	Interval       time.Duration `mapstructure:"interval"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxScrolls    int  `mapstructure:"max_scrolls"`
	ScrollPauseMs int  `mapstructure:"scroll_pause_ms"`
	SettleMs      int  `mapstructure:"settle_ms"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// StorageConfig selects where rendered listing snapshots are written.
type StorageConfig struct {
	Backend     string `mapstructure:"backend"`
	BaseDir     string `mapstructure:"base_dir"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN         string `mapstructure:"dsn"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Name        string `mapstructure:"name"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	MaxConns    int32  `mapstructure:"max_conns"`
	MinConns    int32  `mapstructure:"min_conns"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// PubSubConfig holds metadata for run notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Supported snapshot backends.
const (
	StorageBackendNone   = "none"
	StorageBackendMemory = "memory"
	StorageBackendLocal  = "local"
	StorageBackendGCS    = "gcs"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MENU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_allowed_origins", []string{})
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("site.base_url", "https://coffeemania.ru")
	v.SetDefault("site.restaurants_path", "/restaurants")
	v.SetDefault("site.excluded_restaurants", []string{})
	v.SetDefault("crawler.concurrency", 20)
	v.SetDefault("crawler.max_attempts", 3)
	v.SetDefault("crawler.jitter_min_ms", 10)
	v.SetDefault("crawler.jitter_max_ms", 20)
	v.SetDefault("crawler.timeout_seconds", 10)
	v.SetDefault("crawler.user_agent", "menu-crawler/0.1")
	v.SetDefault("crawler.interval", time.Hour)
	v.SetDefault("crawler.rate_limit_rps", 0)
	v.SetDefault("crawler.rate_limit_burst", 1)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.max_scrolls", 20)
	v.SetDefault("headless.scroll_pause_ms", 0)
	v.SetDefault("headless.settle_ms", 1000)
	v.SetDefault("headless.nav_timeout_seconds", 60)
	v.SetDefault("storage.backend", StorageBackendNone)
	v.SetDefault("storage.base_dir", "")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "snapshots")
	v.SetDefault("storage.content_type", "text/html; charset=utf-8")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.host", "127.0.0.1")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "project")
	v.SetDefault("db.user", "user")
	v.SetDefault("db.password", "pass")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.auto_migrate", false)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "menu-crawl-runs")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if u, err := url.Parse(c.Site.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("site.base_url must be an absolute URL")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.MaxAttempts <= 0 {
		return fmt.Errorf("crawler.max_attempts must be > 0")
	}
	if c.Crawler.JitterMinMs < 0 || c.Crawler.JitterMaxMs < c.Crawler.JitterMinMs {
		return fmt.Errorf("crawler.jitter_max_ms must be >= crawler.jitter_min_ms >= 0")
	}
	if c.Crawler.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.timeout_seconds must be > 0")
	}
	if c.Crawler.Interval <= 0 {
		return fmt.Errorf("crawler.interval must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxScrolls <= 0 {
		return fmt.Errorf("headless.max_scrolls must be > 0 when headless is enabled")
	}
	switch c.Storage.Backend {
	case "", StorageBackendNone, StorageBackendMemory:
	case StorageBackendLocal:
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir must be set for the local backend")
		}
	case StorageBackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	if c.DB.DSN == "" && c.DB.Host == "" {
		return fmt.Errorf("db.dsn or db.host must be set")
	}
	return nil
}

// ConnString returns db.dsn when set, otherwise a DSN assembled from the discrete fields.
func (c DBConfig) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// FetchTimeout converts crawler.timeout_seconds into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Crawler.TimeoutSeconds) * time.Second
}

// Jitter returns the bounds of the pre-request delay window.
func (c Config) Jitter() (time.Duration, time.Duration) {
	return time.Duration(c.Crawler.JitterMinMs) * time.Millisecond,
		time.Duration(c.Crawler.JitterMaxMs) * time.Millisecond
}

// RestaurantsURL is the absolute URL of the directory listing page.
func (c Config) RestaurantsURL() string {
	return strings.TrimRight(c.Site.BaseURL, "/") + c.Site.RestaurantsPath
}

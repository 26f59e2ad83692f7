// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/tibia-housing-crawler/internal/housing"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "HOUSECRAWLER"

// Output modes.
const (
	OutputDB   = "db"
	OutputFile = "file"
)

// Config captures all crawler configuration knobs loaded via Viper.
type Config struct {
	Scrape  ScrapeConfig  `mapstructure:"scrape"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	DB      DBConfig      `mapstructure:"db"`
	Output  OutputConfig  `mapstructure:"output"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ScrapeConfig governs pacing, retries and the town fan-out.
type ScrapeConfig struct {
	Delay       time.Duration `mapstructure:"delay"`
	Concurrency int           `mapstructure:"concurrency"`
	MaxRetries  int           `mapstructure:"max_retries"`
	RetryBase   float64       `mapstructure:"retry_base"`
	RetryUnit   time.Duration `mapstructure:"retry_unit"`
	MaxPages    int           `mapstructure:"max_pages"`
	PageDelay   time.Duration `mapstructure:"page_delay"`
	// PerTown fetches each town separately; otherwise one paginated
	// listing per category covers all towns.
	PerTown bool     `mapstructure:"per_town"`
	Towns   []string `mapstructure:"towns"`
}

// HTTPConfig configures the fetch client.
type HTTPConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	UserAgent         string        `mapstructure:"user_agent"`
	Charset           string        `mapstructure:"charset"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// OutputConfig selects where listings end up.
type OutputConfig struct {
	Mode      string `mapstructure:"mode"`
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// MetricsConfig configures the ops endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load builds a Config from an optional .env file, the environment and an
// optional YAML file. DATABASE_URL is honoured when db.dsn is unset.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("db.dsn", EnvPrefix+"_DB_DSN", "DATABASE_URL"); err != nil {
		return Config{}, fmt.Errorf("bind db.dsn: %w", err)
	}

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
	v.SetDefault("scrape.delay", 2*time.Second)
	v.SetDefault("scrape.concurrency", 1)
	v.SetDefault("scrape.max_retries", 3)
	v.SetDefault("scrape.retry_base", 2.0)
	v.SetDefault("scrape.retry_unit", time.Second)
	v.SetDefault("scrape.max_pages", 50)
	v.SetDefault("scrape.page_delay", 500*time.Millisecond)
	v.SetDefault("scrape.per_town", true)
	v.SetDefault("scrape.towns", housing.Towns)
	v.SetDefault("http.base_url", housing.DefaultBaseURL)
	v.SetDefault("http.timeout", 15*time.Second)
	v.SetDefault("http.user_agent", "")
	v.SetDefault("http.charset", "ISO-8859-1")
	v.SetDefault("http.requests_per_second", 0.0)
	v.SetDefault("http.burst", 1)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("output.mode", OutputDB)
	v.SetDefault("output.dir", "Output")
	v.SetDefault("output.gcs_bucket", "")
	v.SetDefault("output.gcs_prefix", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("metrics.addr", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Scrape.Concurrency <= 0 {
		return fmt.Errorf("scrape.concurrency must be > 0")
	}
	if c.Scrape.MaxRetries < 0 {
		return fmt.Errorf("scrape.max_retries must be >= 0")
	}
	if c.Scrape.Delay < 0 {
		return fmt.Errorf("scrape.delay must be >= 0")
	}
	if c.Scrape.PageDelay < 0 {
		return fmt.Errorf("scrape.page_delay must be >= 0")
	}
	if c.Scrape.RetryBase < 1 {
		return fmt.Errorf("scrape.retry_base must be >= 1")
	}
	if c.Scrape.MaxPages <= 0 {
		return fmt.Errorf("scrape.max_pages must be > 0")
	}
	if c.Scrape.PerTown && len(c.Scrape.Towns) == 0 {
		return fmt.Errorf("scrape.towns must not be empty when scrape.per_town is set")
	}
	if c.HTTP.BaseURL == "" {
		return fmt.Errorf("http.base_url is required")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	switch c.Output.Mode {
	case OutputDB:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn (or DATABASE_URL) is required when output.mode is %q", OutputDB)
		}
	case OutputFile:
		if c.Output.Dir == "" && c.Output.GCSBucket == "" {
			return fmt.Errorf("output.dir or output.gcs_bucket is required when output.mode is %q", OutputFile)
		}
	default:
		return fmt.Errorf("output.mode must be %q or %q, got %q", OutputDB, OutputFile, c.Output.Mode)
	}
	return nil
}

// Policy returns the pacing knobs shared by the task runner and retrier.
func (c Config) Policy() housing.RequestPolicy {
	return housing.RequestPolicy{
		Delay:       c.Scrape.Delay,
		Concurrency: c.Scrape.Concurrency,
		MaxRetries:  c.Scrape.MaxRetries,
		RetryBase:   c.Scrape.RetryBase,
		RetryUnit:   c.Scrape.RetryUnit,
	}
}

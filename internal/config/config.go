package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"github.com/uqmarks/uqmarks/internal/semester"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Log       LogConfig
	Scrape    ScrapeConfig
	Cache     CacheConfig
	Analytics AnalyticsConfig
	Notify    NotifyConfig
	Semester  SemesterConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

type ScrapeConfig struct {
	Timeout       string
	RatePerSecond float64
	UserAgent     string
	AutoDiscover  bool
}

type CacheConfig struct {
	TTL  string
	Size int
}

type AnalyticsConfig struct {
	Timezone string
}

type NotifyConfig struct {
	Enabled         bool
	WebhookURL      string
	ErrorWebhookURL string
	ManagerID       string
}

type SemesterConfig struct {
	// Seed is a comma-separated list of semester ids, newest first.
	Seed string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Scrape: ScrapeConfig{
			Timeout:       "20s",
			RatePerSecond: 2,
			UserAgent:     "uqmarks/1.0",
		},
		Cache: CacheConfig{
			TTL:  "24h",
			Size: 4096,
		},
		Analytics: AnalyticsConfig{
			Timezone: "Australia/Brisbane",
		},
		Notify: NotifyConfig{
			Enabled: true,
		},
		Semester: SemesterConfig{
			Seed: "2023S1",
		},
	}
}

// Load reads configuration in increasing order of precedence: defaults, the
// JSON file at $XDG_CONFIG_HOME/uqmarks/config.json, then UQMARKS_*
// environment variables. A .env file in the working directory is loaded
// into the environment first without replacing variables that are already
// set. Secrets are only read from the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}
	f, err := openConfigFile(configFilePath())
	if err != nil {
		return Config{}, err
	}
	return loadWith(f)
}

func loadWith(b backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if _, err := time.ParseDuration(c.Scrape.Timeout); err != nil {
		return fmt.Errorf("scrape.timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.Cache.TTL); err != nil {
		return fmt.Errorf("cache.ttl: %w", err)
	}
	if _, err := time.LoadLocation(c.Analytics.Timezone); err != nil {
		return fmt.Errorf("analytics.timezone: %w", err)
	}
	if _, err := c.SeedOfferings(); err != nil {
		return fmt.Errorf("semester.seed: %w", err)
	}
	return nil
}

// ScrapeTimeout is the per-request bound for course site fetches.
func (c Config) ScrapeTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Scrape.Timeout)
	return d
}

func (c Config) CacheTTL() time.Duration {
	d, _ := time.ParseDuration(c.Cache.TTL)
	return d
}

// Location is the zone analytics buckets are computed in.
func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Analytics.Timezone)
}

// SeedOfferings parses the semester seed list.
func (c Config) SeedOfferings() ([]semester.Offering, error) {
	var out []semester.Offering
	for _, id := range strings.Split(c.Semester.Seed, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		o, err := semester.ParseID(id)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// Addr is the listen address of the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

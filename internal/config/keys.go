package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
)

func (t keyType) String() string {
	switch t {
	case kInt:
		return "integer"
	case kBool:
		return "boolean"
	case kFloat:
		return "number"
	default:
		return "string"
	}
}

// keySpec describes one config key. duration marks string keys that hold a
// time.ParseDuration value.
type keySpec struct {
	key      string
	typ      keyType
	env      string
	secret   bool
	duration bool
	apply    func(cfg *Config, v any)
	extract  func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "UQMARKS_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "UQMARKS_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "UQMARKS_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "UQMARKS_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "scrape.timeout", typ: kString, env: "UQMARKS_SCRAPE_TIMEOUT", duration: true,
		apply:   func(cfg *Config, v any) { cfg.Scrape.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Scrape.Timeout },
	},
	{
		key: "scrape.rate_per_second", typ: kFloat, env: "UQMARKS_SCRAPE_RATE_PER_SECOND",
		apply:   func(cfg *Config, v any) { cfg.Scrape.RatePerSecond = v.(float64) },
		extract: func(cfg Config) any { return cfg.Scrape.RatePerSecond },
	},
	{
		key: "scrape.user_agent", typ: kString, env: "UQMARKS_SCRAPE_USER_AGENT",
		apply:   func(cfg *Config, v any) { cfg.Scrape.UserAgent = v.(string) },
		extract: func(cfg Config) any { return cfg.Scrape.UserAgent },
	},
	{
		key: "scrape.auto_discover", typ: kBool, env: "UQMARKS_SCRAPE_AUTO_DISCOVER",
		apply:   func(cfg *Config, v any) { cfg.Scrape.AutoDiscover = v.(bool) },
		extract: func(cfg Config) any { return cfg.Scrape.AutoDiscover },
	},
	{
		key: "cache.ttl", typ: kString, env: "UQMARKS_CACHE_TTL", duration: true,
		apply:   func(cfg *Config, v any) { cfg.Cache.TTL = v.(string) },
		extract: func(cfg Config) any { return cfg.Cache.TTL },
	},
	{
		key: "cache.size", typ: kInt, env: "UQMARKS_CACHE_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Cache.Size = v.(int) },
		extract: func(cfg Config) any { return cfg.Cache.Size },
	},
	{
		key: "analytics.timezone", typ: kString, env: "UQMARKS_ANALYTICS_TIMEZONE",
		apply:   func(cfg *Config, v any) { cfg.Analytics.Timezone = v.(string) },
		extract: func(cfg Config) any { return cfg.Analytics.Timezone },
	},
	{
		key: "notify.enabled", typ: kBool, env: "UQMARKS_NOTIFY_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Notify.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Notify.Enabled },
	},
	{
		key: "notify.webhook_url", typ: kString, env: "UQMARKS_NOTIFY_WEBHOOK_URL",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Notify.WebhookURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Notify.WebhookURL },
	},
	{
		key: "notify.error_webhook_url", typ: kString, env: "UQMARKS_NOTIFY_ERROR_WEBHOOK_URL",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Notify.ErrorWebhookURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Notify.ErrorWebhookURL },
	},
	{
		key: "notify.manager_id", typ: kString, env: "UQMARKS_NOTIFY_MANAGER_ID",
		apply:   func(cfg *Config, v any) { cfg.Notify.ManagerID = v.(string) },
		extract: func(cfg Config) any { return cfg.Notify.ManagerID },
	},
	{
		key: "semester.seed", typ: kString, env: "UQMARKS_SEMESTER_SEED",
		apply:   func(cfg *Config, v any) { cfg.Semester.Seed = v.(string) },
		extract: func(cfg Config) any { return cfg.Semester.Seed },
	},
}

// parse converts a raw string to the Go type of the key.
func (s keySpec) parse(raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	}
	if s.duration {
		if _, err := time.ParseDuration(raw); err != nil {
			return nil, err
		}
	}
	return raw, nil
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

func applyBackend(cfg *Config, b backend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		v, ok, err := b.value(s)
		if err != nil {
			return err
		}
		if ok {
			s.apply(cfg, v)
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}

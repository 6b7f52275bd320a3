package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName        string            `mapstructure:"app_name"`
	Env            string            `mapstructure:"app_env"`
	LogLevel       string            `mapstructure:"log_level"`
	BaseURL        string            `mapstructure:"base_url"`
	TimeoutSeconds int64             `mapstructure:"timeout_seconds"`
	Timeout        time.Duration     `mapstructure:"-"`
	RawHeaders     string            `mapstructure:"headers"`
	Headers        map[string]string `mapstructure:"-"`
	SchemaFile     string            `mapstructure:"schema_file"`
	PublishersFile string            `mapstructure:"publishers_file"`
	RateLimitRPS   float64           `mapstructure:"rate_limit_rps"`
	RateLimitBurst int               `mapstructure:"rate_limit_burst"`

	JournalType            string        `mapstructure:"journal_type"`
	JournalPath            string        `mapstructure:"journal_path"`
	JournalTTLSeconds      int64         `mapstructure:"journal_ttl_seconds"`
	JournalCleanupSeconds  int64         `mapstructure:"journal_cleanup_interval_seconds"`
	JournalTTL             time.Duration `mapstructure:"-"`
	JournalCleanupInterval time.Duration `mapstructure:"-"`
}

const envPrefix = "PORTALDB"

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix(envPrefix)

	v.SetDefault("app_name", "portaldb")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "warn")
	v.SetDefault("base_url", "http://localhost:3000")
	v.SetDefault("timeout_seconds", 30)
	v.SetDefault("headers", "")
	v.SetDefault("schema_file", "")
	v.SetDefault("publishers_file", "")
	v.SetDefault("rate_limit_rps", 0)
	v.SetDefault("rate_limit_burst", 1)
	v.SetDefault("journal_type", "none")
	v.SetDefault("journal_path", "./data/journal.db")
	v.SetDefault("journal_ttl_seconds", int64((7*24*time.Hour)/time.Second))
	v.SetDefault("journal_cleanup_interval_seconds", int64((6*time.Hour)/time.Second))

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("invalid base_url (must not be empty)")
	}

	if cfg.TimeoutSeconds < 0 {
		return nil, fmt.Errorf("invalid timeout_seconds (must be zero or positive seconds)")
	}
	cfg.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second

	if cfg.RateLimitRPS < 0 {
		return nil, fmt.Errorf("invalid rate_limit_rps (must be zero or positive)")
	}
	if cfg.RateLimitBurst < 1 {
		return nil, fmt.Errorf("invalid rate_limit_burst (must be at least 1)")
	}

	headers, err := ParseHeaders(cfg.RawHeaders)
	if err != nil {
		return nil, fmt.Errorf("invalid headers: %w", err)
	}
	cfg.Headers = headers

	if cfg.JournalTTLSeconds <= 0 {
		return nil, fmt.Errorf("invalid journal_ttl_seconds (must be positive seconds)")
	}
	if cfg.JournalCleanupSeconds <= 0 {
		return nil, fmt.Errorf("invalid journal_cleanup_interval_seconds (must be positive seconds)")
	}
	cfg.JournalTTL = time.Duration(cfg.JournalTTLSeconds) * time.Second
	cfg.JournalCleanupInterval = time.Duration(cfg.JournalCleanupSeconds) * time.Second

	return &cfg, nil
}

// ParseHeaders reads the headers setting. Two forms are accepted:
//
//	Authorization=Bearer x,Accept=application/json, text/csv
//	{"Prefer": "return=representation, count=exact"}
//
// In the pair form a segment without '=' continues the previous value, so
// comma lists survive as long as their items contain no '='. Values that do
// (Prefer lists) need the JSON object form.
func ParseHeaders(raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if strings.HasPrefix(raw, "{") {
		return parseJSONHeaders(raw)
	}

	out := make(map[string]string)
	var last string
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, val, ok := strings.Cut(pair, "=")
		if !ok {
			if last == "" {
				return nil, fmt.Errorf("header %q is not in key=value form", pair)
			}
			out[last] += ", " + pair
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("header %q is not in key=value form", pair)
		}
		out[key] = strings.TrimSpace(val)
		last = key
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func parseJSONHeaders(raw string) (map[string]string, error) {
	var in map[string]string
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return nil, fmt.Errorf("headers: decode JSON object: %w", err)
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		k = strings.TrimSpace(k)
		if k == "" {
			return nil, fmt.Errorf("headers: empty header name")
		}
		out[k] = strings.TrimSpace(v)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

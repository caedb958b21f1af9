package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DataPath          string        `yaml:"data"`               // GAPMINDER_DATA (default "data/gapminder.csv")
	HTTPAddr          string        `yaml:"http_addr"`          // GAPMINDER_HTTP_ADDR (default ":8080")
	NATSURL           string        `yaml:"nats_url"`           // GAPMINDER_NATS_URL (optional, empty = no NATS)
	Variant           string        `yaml:"variant"`            // GAPMINDER_VARIANT ("single" or "regions")
	Verbose           bool          `yaml:"verbose"`            // GAPMINDER_VERBOSE
	YearStart         int           `yaml:"year_start"`         // GAPMINDER_YEAR_START (default 1970)
	YearEnd           int           `yaml:"year_end"`           // GAPMINDER_YEAR_END (default 2010)
	ExcludedCountries []string      `yaml:"excluded_countries"` // GAPMINDER_EXCLUDED (comma separated)
	SessionIdleTTL    time.Duration `yaml:"session_idle_ttl"`   // GAPMINDER_SESSION_IDLE_TTL (default 30m; 0 = never)
	RateLimit         float64       `yaml:"rate_limit"`         // GAPMINDER_RATE_LIMIT requests/s per client (0 = off)
}

func Default() *Config {
	return &Config{
		DataPath:          "data/gapminder.csv",
		HTTPAddr:          ":8080",
		Variant:           "single",
		YearStart:         1970,
		YearEnd:           2010,
		ExcludedCountries: []string{"Tokelau", "Åland"},
		SessionIdleTTL:    30 * time.Minute,
		RateLimit:         20,
	}
}

// Load reads the optional YAML file at path over the defaults, then
// applies GAPMINDER_* environment overrides. An empty path or a missing
// file leaves the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, c); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	c.DataPath = envOrDefault("GAPMINDER_DATA", c.DataPath)
	c.HTTPAddr = envOrDefault("GAPMINDER_HTTP_ADDR", c.HTTPAddr)
	c.NATSURL = envOrDefault("GAPMINDER_NATS_URL", c.NATSURL)
	c.Variant = envOrDefault("GAPMINDER_VARIANT", c.Variant)

	if v := os.Getenv("GAPMINDER_VERBOSE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("GAPMINDER_VERBOSE: %w", err)
		}
		c.Verbose = b
	}
	for key, dst := range map[string]*int{
		"GAPMINDER_YEAR_START": &c.YearStart,
		"GAPMINDER_YEAR_END":   &c.YearEnd,
	} {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}
	if v := os.Getenv("GAPMINDER_EXCLUDED"); v != "" {
		c.ExcludedCountries = nil
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				c.ExcludedCountries = append(c.ExcludedCountries, name)
			}
		}
	}
	if v := os.Getenv("GAPMINDER_SESSION_IDLE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("GAPMINDER_SESSION_IDLE_TTL: %w", err)
		}
		c.SessionIdleTTL = d
	}
	if v := os.Getenv("GAPMINDER_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("GAPMINDER_RATE_LIMIT: %w", err)
		}
		c.RateLimit = f
	}
	return nil
}

// Validate checks the values cobra flags may have changed after Load.
func (c *Config) Validate() error {
	if c.DataPath == "" {
		return fmt.Errorf("data path is required")
	}
	switch c.Variant {
	case "single", "regions":
	default:
		return fmt.Errorf("unknown variant %q (want single or regions)", c.Variant)
	}
	if c.YearStart > c.YearEnd {
		return fmt.Errorf("year range %d-%d is inverted", c.YearStart, c.YearEnd)
	}
	if c.SessionIdleTTL < 0 {
		return fmt.Errorf("session idle ttl must not be negative")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

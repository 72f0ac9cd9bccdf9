package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the full configuration required to initialise the scrape engine.
type Config struct {
	Site    SiteConfig    `yaml:"site"`
	Relay   RelayConfig   `yaml:"relay"`
	Render  RenderConfig  `yaml:"render"`
	Pacing  PacingConfig  `yaml:"pacing"`
	Robots  RobotsConfig  `yaml:"robots"`
	DB      SQLConfig     `yaml:"db"`
	API     APIConfig     `yaml:"api"`
	Logging LoggingConfig `yaml:"logging"`
}

// SiteConfig identifies the scraped source site.
type SiteConfig struct {
	BaseURL string `yaml:"base_url"`
	// ListingPath is a printf-style template producing the listing path for a
	// page number, eg. "/page/%d".
	ListingPath string `yaml:"listing_path"`
	UserAgent   string `yaml:"user_agent"`
}

// RelayConfig describes the CORS-bypassing fetch relay.
type RelayConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Endpoint     string   `yaml:"endpoint"`
	Timeout      Duration `yaml:"timeout"`
	MaxBodyBytes int64    `yaml:"max_body_bytes"`
}

// RenderConfig controls optional JavaScript rendering.
type RenderConfig struct {
	Enabled            bool     `yaml:"enabled"`
	Timeout            Duration `yaml:"timeout"`
	WaitForSelector    string   `yaml:"wait_for_selector"`
	ConcurrentSessions int      `yaml:"concurrent_sessions"`
	DisableHeadless    bool     `yaml:"disable_headless"`
}

// PacingConfig throttles the per-card loop.
type PacingConfig struct {
	CardDelay Duration        `yaml:"card_delay"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig applies an optional token bucket on top of the fixed delay.
type RateLimitConfig struct {
	Requests int      `yaml:"requests"`
	Window   Duration `yaml:"window"`
}

// RobotsConfig configures robots.txt handling for the source site.
type RobotsConfig struct {
	Respect   bool     `yaml:"respect"`
	Overrides []string `yaml:"overrides"`
	UserAgent string   `yaml:"user_agent"`
	CacheTTL  Duration `yaml:"cache_ttl"`
}

// SQLConfig describes the relational catalog used for persistence.
type SQLConfig struct {
	Driver          string   `yaml:"driver"`
	DSN             string   `yaml:"dsn"`
	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
	AutoMigrate     bool     `yaml:"auto_migrate"`
}

// APIConfig configures the HTTP control surface.
type APIConfig struct {
	Listen            string `yaml:"listen"`
	MaxConcurrentRuns int    `yaml:"max_concurrent_runs"`
}

// LoggingConfig selects log verbosity and format.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Structured bool   `yaml:"structured"`
}

// MobileUserAgent is the fixed mobile-browser identification string used for
// outbound requests, both by the relay and by the direct client.
const MobileUserAgent = "Mozilla/5.0 (Linux; Android 10; K) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Mobile Safari/537.36"

// DefaultRelayEndpoint is a pinned public relay; deployments should override it.
const DefaultRelayEndpoint = "https://cinecrawler-relay.onrender.com/fetch"

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		Site: SiteConfig{
			ListingPath: "/page/%d",
			UserAgent:   MobileUserAgent,
		},
		Relay: RelayConfig{
			Enabled:      true,
			Endpoint:     DefaultRelayEndpoint,
			Timeout:      DurationFrom(20 * time.Second),
			MaxBodyBytes: 6 * 1024 * 1024,
		},
		Render: RenderConfig{
			Enabled:            false,
			Timeout:            DurationFrom(15 * time.Second),
			ConcurrentSessions: 1,
		},
		Pacing: PacingConfig{
			CardDelay: DurationFrom(500 * time.Millisecond),
		},
		Robots: RobotsConfig{
			Respect:   false,
			Overrides: []string{},
			UserAgent: MobileUserAgent,
			CacheTTL:  DurationFrom(6 * time.Hour),
		},
		DB: SQLConfig{
			Driver:      "sqlite3",
			DSN:         "cinecrawler.db",
			AutoMigrate: true,
		},
		API: APIConfig{
			Listen:            ":8080",
			MaxConcurrentRuns: 5,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Structured: true,
		},
	}
}

// Load reads, merges, and validates configuration from a YAML file.
func Load(path string) (*Config, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer fh.Close()
	return LoadFromReader(fh)
}

// LoadFromReader decodes configuration from an arbitrary reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decodeYAML(r, &cfg); err != nil {
		return nil, err
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

func (c *Config) normalise() {
	c.Site.BaseURL = strings.TrimRight(strings.TrimSpace(c.Site.BaseURL), "/")
	c.Relay.Endpoint = strings.TrimSpace(c.Relay.Endpoint)
	if c.Site.UserAgent == "" {
		c.Site.UserAgent = MobileUserAgent
	}
	if c.Robots.UserAgent == "" {
		c.Robots.UserAgent = c.Site.UserAgent
	}
	if c.Relay.MaxBodyBytes <= 0 {
		c.Relay.MaxBodyBytes = 6 * 1024 * 1024
	}
}

// Validate enforces required invariants for the scraper configuration.
func (c Config) Validate() error {
	if c.Site.BaseURL == "" {
		return errors.New("site.base_url must be configured")
	}
	if u, err := url.Parse(c.Site.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("site.base_url %q is not an absolute URL", c.Site.BaseURL)
	}
	if !strings.Contains(c.Site.ListingPath, "%d") {
		return fmt.Errorf("site.listing_path %q must contain a %%d page placeholder", c.Site.ListingPath)
	}
	if c.Relay.Enabled && c.Relay.Endpoint == "" {
		return errors.New("relay.endpoint must be set when relay is enabled")
	}
	if c.Pacing.CardDelay.Duration < 0 {
		return fmt.Errorf("pacing.card_delay must be >= 0 (got %s)", c.Pacing.CardDelay)
	}
	if rl := c.Pacing.RateLimit; rl.Requests < 0 {
		return fmt.Errorf("pacing.rate_limit.requests must be >= 0 (got %d)", rl.Requests)
	}
	if c.DB.Driver != "" {
		switch c.DB.Driver {
		case "sqlite3", "postgres":
		default:
			return fmt.Errorf("unsupported db.driver %q", c.DB.Driver)
		}
		if c.DB.DSN == "" {
			return errors.New("db.dsn must be set when db.driver is configured")
		}
	}
	if c.API.MaxConcurrentRuns < 0 {
		return fmt.Errorf("api.max_concurrent_runs must be >= 0 (got %d)", c.API.MaxConcurrentRuns)
	}
	return nil
}

package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadFromReaderMergesDefaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(`
site:
  base_url: "https://example-movies.site/"
pacing:
  card_delay: 250ms
`))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Site.BaseURL != "https://example-movies.site" {
		t.Errorf("base_url = %q, want trailing slash trimmed", cfg.Site.BaseURL)
	}
	if cfg.Site.UserAgent != MobileUserAgent {
		t.Errorf("user_agent = %q, want the fixed mobile string", cfg.Site.UserAgent)
	}
	if cfg.Relay.Endpoint != DefaultRelayEndpoint {
		t.Errorf("relay endpoint = %q", cfg.Relay.Endpoint)
	}
	if cfg.Pacing.CardDelay.Duration != 250*time.Millisecond {
		t.Errorf("card_delay = %s, want 250ms", cfg.Pacing.CardDelay)
	}
	if cfg.DB.Driver != "sqlite3" {
		t.Errorf("db driver = %q", cfg.DB.Driver)
	}
}

func TestLoadFromReaderRejectsUnknownKeys(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader(`
site:
  base_url: "https://example-movies.site"
  basue_url_typo: "x"
`))
	if err == nil {
		t.Fatal("unknown key accepted, want error")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(c *Config) {}, true},
		{"missing base url", func(c *Config) { c.Site.BaseURL = "" }, false},
		{"relative base url", func(c *Config) { c.Site.BaseURL = "example.com/x" }, false},
		{"listing path without placeholder", func(c *Config) { c.Site.ListingPath = "/page/" }, false},
		{"relay enabled without endpoint", func(c *Config) { c.Relay.Endpoint = "" }, false},
		{"negative card delay", func(c *Config) { c.Pacing.CardDelay = DurationFrom(-time.Second) }, false},
		{"unsupported driver", func(c *Config) { c.DB.Driver = "oracle" }, false},
		{"driver without dsn", func(c *Config) { c.DB.DSN = "" }, false},
		{"no db at all", func(c *Config) { c.DB.Driver = ""; c.DB.DSN = "" }, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.Site.BaseURL = "https://example-movies.site"
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.ok && err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("Validate accepted invalid config")
			}
		})
	}
}

func TestDurationText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("1m30s")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if d.Duration != 90*time.Second {
		t.Errorf("parsed %s, want 1m30s", d.Duration)
	}
	out, err := d.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	if string(out) != "1m30s" {
		t.Errorf("marshalled %q", out)
	}
}

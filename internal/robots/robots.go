// Package robots evaluates robots.txt rules for the scraped site, fetching
// the rules through the same page client the scraper uses.
package robots

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"cinecrawler/internal/config"
	"cinecrawler/internal/relay"
)

// Agent answers allow/deny for the scraped site. The scraper talks to a
// single host, so a single cached ruleset with a TTL is enough; fetching a
// different host transparently replaces the cache.
type Agent struct {
	client    relay.Client
	userAgent string
	ttl       time.Duration
	respect   bool
	overrides map[string]struct{}

	mu      sync.Mutex
	host    string
	rules   *robotstxt.RobotsData
	fetched time.Time
}

// NewAgent constructs a robots agent from configuration.
func NewAgent(cfg config.RobotsConfig, client relay.Client) *Agent {
	ttl := cfg.CacheTTL.Duration
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	a := &Agent{
		client:    client,
		userAgent: cfg.UserAgent,
		ttl:       ttl,
		respect:   cfg.Respect,
		overrides: make(map[string]struct{}, len(cfg.Overrides)),
	}
	for _, host := range cfg.Overrides {
		if host = strings.ToLower(strings.TrimSpace(host)); host != "" {
			a.overrides[host] = struct{}{}
		}
	}
	return a
}

// Allowed reports whether the target URL is permitted. Errors while fetching
// or parsing robots.txt fail open.
func (a *Agent) Allowed(ctx context.Context, target string) bool {
	parsed, err := url.Parse(target)
	if err != nil || !parsed.IsAbs() {
		return false
	}
	if !a.respect {
		return true
	}
	if _, ok := a.overrides[strings.ToLower(parsed.Hostname())]; ok {
		return true
	}

	rules, err := a.rulesFor(ctx, parsed)
	if err != nil {
		return true
	}
	group := rules.FindGroup(a.userAgent)
	if group == nil {
		if group = rules.FindGroup("*"); group == nil {
			return true
		}
	}
	return group.Test(parsed.Path)
}

func (a *Agent) rulesFor(ctx context.Context, target *url.URL) (*robotstxt.RobotsData, error) {
	host := strings.ToLower(target.Host)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rules != nil && a.host == host && time.Since(a.fetched) < a.ttl {
		return a.rules, nil
	}

	page, err := a.client.Fetch(ctx, target.Scheme+"://"+target.Host+"/robots.txt")
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	if page.Status >= 400 {
		return nil, fmt.Errorf("robots returned status %d", page.Status)
	}
	data, err := robotstxt.FromBytes(page.HTML)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}

	a.host = host
	a.rules = data
	a.fetched = time.Now()
	return data, nil
}

// Purge drops the cached ruleset so the next check refetches it.
func (a *Agent) Purge() {
	a.mu.Lock()
	a.rules = nil
	a.host = ""
	a.mu.Unlock()
}

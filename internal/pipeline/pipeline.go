// Package pipeline drives the scrape-and-reconcile loop: one listing page at
// a time, one card at a time, strictly in listing order so serial assignment
// and duplicate matching stay deterministic.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"cinecrawler/internal/config"
	"cinecrawler/internal/dedupe"
	"cinecrawler/internal/extract"
	"cinecrawler/internal/normalize"
	"cinecrawler/internal/relay"
	"cinecrawler/internal/robots"
	"cinecrawler/pkg/types"
)

// Engine orchestrates fetching, extraction, and reconciliation for scrape runs.
type Engine struct {
	cfg    config.Config
	client relay.Client
	robots *robots.Agent
	pacer  *Pacer
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine builds a scrape engine from configuration, wiring the page client
// (relay or direct, optionally behind a renderer) and the politeness layers.
func NewEngine(cfg config.Config) (*Engine, error) {
	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	client, err := buildClient(cfg)
	if err != nil {
		return nil, err
	}
	e := newEngine(cfg, client, logger)
	return e, nil
}

// NewEngineWithClient builds an engine around a caller-supplied page client.
func NewEngineWithClient(cfg config.Config, client relay.Client) *Engine {
	return newEngine(cfg, client, slog.Default())
}

func newEngine(cfg config.Config, client relay.Client, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		client: client,
		robots: robots.NewAgent(cfg.Robots, client),
		pacer:  NewPacer(cfg.Pacing),
		logger: logger,
		now:    time.Now,
	}
}

func buildClient(cfg config.Config) (relay.Client, error) {
	var primary relay.Client
	if cfg.Relay.Enabled {
		relayClient, err := relay.NewRelayClient(relay.Options{
			Endpoint:     cfg.Relay.Endpoint,
			Timeout:      cfg.Relay.Timeout.Duration,
			MaxBodyBytes: cfg.Relay.MaxBodyBytes,
		})
		if err != nil {
			return nil, fmt.Errorf("relay client: %w", err)
		}
		primary = relayClient
	} else {
		primary = relay.NewDirectClient(relay.Options{
			UserAgent:    cfg.Site.UserAgent,
			Timeout:      cfg.Relay.Timeout.Duration,
			MaxBodyBytes: cfg.Relay.MaxBodyBytes,
		})
	}

	if !cfg.Render.Enabled {
		return primary, nil
	}
	renderer := relay.NewRenderer(relay.RenderOptions{
		Timeout:            cfg.Render.Timeout.Duration,
		WaitForSelector:    cfg.Render.WaitForSelector,
		UserAgent:          cfg.Site.UserAgent,
		MaxBodyBytes:       cfg.Relay.MaxBodyBytes,
		DisableHeadless:    cfg.Render.DisableHeadless,
		ConcurrentSessions: cfg.Render.ConcurrentSessions,
	})
	return relay.NewComposite(primary, renderer), nil
}

// ScrapePage processes one listing page end to end. Page-level failures are
// reported through the hooks and never abort the run; the returned error is
// reserved for context cancellation.
func (e *Engine) ScrapePage(ctx context.Context, rc *RunContext, hooks Hooks, pageURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	hooks.progress(SeverityInfo, fmt.Sprintf("scraping %s", pageURL))
	e.logger.Info("page started", "url", pageURL)

	if !e.robots.Allowed(ctx, pageURL) {
		hooks.progress(SeverityWarning, fmt.Sprintf("skipping %s: disallowed by robots.txt", pageURL))
		return nil
	}

	page, err := e.client.Fetch(ctx, pageURL)
	if err != nil {
		rc.Counts.Failed++
		hooks.progress(SeverityError, fmt.Sprintf("failed to fetch %s: %v", pageURL, err))
		e.logger.Warn("listing fetch failed", "url", pageURL, "error", err)
		return nil
	}

	cards, err := extract.Cards(page.HTML, page.FinalURL)
	if err != nil {
		rc.Counts.Failed++
		hooks.progress(SeverityError, fmt.Sprintf("failed to parse %s: %v", pageURL, err))
		return nil
	}
	if len(cards) == 0 {
		hooks.progress(SeverityWarning, fmt.Sprintf("no entries found on %s", pageURL))
		return nil
	}
	hooks.progress(SeverityInfo, fmt.Sprintf("found %d entries on %s", len(cards), pageURL))

	serial := normalize.NextSerial(rc.Existing, rc.Scraped) + len(rc.Scraped)

	for _, card := range cards {
		if err := ctx.Err(); err != nil {
			hooks.progress(SeverityWarning, "stop requested, halting run")
			return err
		}
		if rc.StopRequested() {
			hooks.progress(SeverityWarning, "stop requested, halting run")
			return nil
		}

		if e.processCard(ctx, rc, hooks, card, serial) {
			serial++
		}

		// Fixed spacing after every card regardless of outcome, so the
		// source and relay never see a burst.
		if err := e.pacer.Wait(ctx); err != nil {
			hooks.progress(SeverityWarning, "stop requested, halting run")
			return err
		}
	}

	rc.Counts.Pages++
	return nil
}

// processCard handles a single card and reports whether it consumed the
// current serial number (ie. produced a new record).
func (e *Engine) processCard(ctx context.Context, rc *RunContext, hooks Hooks, card types.Card, serial int) bool {
	if card.DetailURL == "" {
		rc.Counts.Failed++
		hooks.progress(SeverityError, fmt.Sprintf("no detail link for %q", card.Title))
		hooks.item(ItemEvent{Outcome: OutcomeError})
		return false
	}

	page, err := e.client.Fetch(ctx, card.DetailURL)
	if err != nil {
		rc.Counts.Failed++
		hooks.progress(SeverityError, fmt.Sprintf("failed to fetch %s: %v", card.DetailURL, err))
		hooks.item(ItemEvent{Outcome: OutcomeError, Err: err})
		e.logger.Warn("detail fetch failed", "url", card.DetailURL, "error", err)
		return false
	}

	rec, err := extract.DetailAt(page.HTML, page.FinalURL, card.IsAdult, serial, e.now())
	if err != nil {
		rc.Counts.Failed++
		hooks.progress(SeverityError, fmt.Sprintf("failed to parse %s: %v", card.DetailURL, err))
		hooks.item(ItemEvent{Outcome: OutcomeError, Err: err})
		return false
	}
	if rec.Title == "" {
		rec.Title = card.Title
	}
	if rec.ImageURL == "" {
		rec.ImageURL = card.ImageURL
	}

	res := dedupe.ReconcileAt(&rec, rc.Existing, rc.Scraped, e.now())
	switch res.Outcome {
	case dedupe.OutcomeNew:
		rc.Scraped = append(rc.Scraped, &rec)
		rc.Counts.New++
		hooks.progress(SeveritySuccess, fmt.Sprintf("scraped %q (%s)", rec.Title, rec.ID))
		hooks.item(ItemEvent{Outcome: dedupe.OutcomeNew, Record: &rec})
		return true
	case dedupe.OutcomeUpdated:
		rc.Counts.Updated++
		hooks.progress(SeveritySuccess, fmt.Sprintf("updated %q status to %q", res.Matched.Title, res.Matched.Status))
		hooks.item(ItemEvent{Outcome: dedupe.OutcomeUpdated, Record: &rec, Matched: res.Matched})
	default:
		rc.Counts.Duplicates++
		hooks.progress(SeverityInfo, fmt.Sprintf("skipped duplicate %q", rec.Title))
		hooks.item(ItemEvent{Outcome: dedupe.OutcomeDuplicate, Record: &rec, Matched: res.Matched})
	}
	return false
}

// ScrapePages drives a contiguous range of listing pages.
func (e *Engine) ScrapePages(ctx context.Context, rc *RunContext, hooks Hooks, from, to int) error {
	if from < 1 {
		from = 1
	}
	for p := from; p <= to; p++ {
		if rc.StopRequested() {
			return nil
		}
		rc.CurrentPage = p
		if err := e.ScrapePage(ctx, rc, hooks, e.ListingURL(p)); err != nil {
			return err
		}
	}
	return nil
}

// ScrapeLinks drives an explicit list of listing page URLs.
func (e *Engine) ScrapeLinks(ctx context.Context, rc *RunContext, hooks Hooks, urls []string) error {
	for i, u := range urls {
		if rc.StopRequested() {
			return nil
		}
		rc.CurrentPage = i + 1
		if err := e.ScrapePage(ctx, rc, hooks, u); err != nil {
			return err
		}
	}
	return nil
}

// ListingURL renders the listing URL for a page number. Page one is the bare
// base URL on most archives.
func (e *Engine) ListingURL(page int) string {
	if page <= 1 {
		return e.cfg.Site.BaseURL + "/"
	}
	return e.cfg.Site.BaseURL + fmt.Sprintf(e.cfg.Site.ListingPath, page)
}

func buildLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unsupported log level %q", cfg.Level)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Structured {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler), nil
}

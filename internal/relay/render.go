package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// RenderOptions configures the JavaScript rendering client.
type RenderOptions struct {
	Timeout            time.Duration
	WaitForSelector    string
	UserAgent          string
	MaxBodyBytes       int64
	DisableHeadless    bool
	ConcurrentSessions int
}

// Renderer executes headless Chrome sessions for pages the site builds
// client-side. It satisfies Client so the Composite can treat it uniformly.
type Renderer struct {
	opts      RenderOptions
	semaphore chan struct{}
	logger    *slog.Logger
}

// NewRenderer constructs a renderer with bounded concurrency.
func NewRenderer(opts RenderOptions) *Renderer {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 6 * 1024 * 1024
	}
	if opts.ConcurrentSessions <= 0 {
		opts.ConcurrentSessions = 1
	}
	return &Renderer{
		opts:      opts,
		semaphore: make(chan struct{}, opts.ConcurrentSessions),
		logger:    slog.Default(),
	}
}

// Fetch navigates to the target URL and exports the final DOM outer HTML.
func (r *Renderer) Fetch(parentCtx context.Context, targetURL string) (*Page, error) {
	select {
	case r.semaphore <- struct{}{}:
		defer func() { <-r.semaphore }()
	case <-parentCtx.Done():
		return nil, &FetchError{URL: targetURL, Message: "render cancelled", Err: parentCtx.Err()}
	}

	ctx, cancel := context.WithTimeout(parentCtx, r.opts.Timeout)
	defer cancel()

	headless := !r.opts.DisableHeadless
	execOpts := []chromedp.ExecAllocatorOption{
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
	}
	if ua := strings.TrimSpace(r.opts.UserAgent); ua != "" {
		execOpts = append(execOpts, chromedp.UserAgent(ua))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, execOpts...)
	defer allocCancel()
	chromeCtx, chromeCancel := chromedp.NewContext(allocCtx)
	defer chromeCancel()

	var html string
	var finalURL string

	actions := []chromedp.Action{chromedp.Navigate(targetURL)}
	if sel := strings.TrimSpace(r.opts.WaitForSelector); sel != "" {
		actions = append(actions,
			chromedp.WaitReady(sel, chromedp.ByQuery),
			chromedp.Sleep(250*time.Millisecond),
		)
	} else {
		actions = append(actions, chromedp.Sleep(1500*time.Millisecond))
	}
	actions = append(actions,
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Location(&finalURL),
	)

	start := time.Now()
	if err := chromedp.Run(chromeCtx, actions...); err != nil {
		return nil, &FetchError{URL: targetURL, Message: "chromedp run", Err: err}
	}
	r.logger.Debug("render complete",
		"url", targetURL,
		"latency_ms", time.Since(start).Milliseconds(),
		"html_bytes", len(html),
	)

	if int64(len(html)) > r.opts.MaxBodyBytes {
		html = html[:r.opts.MaxBodyBytes]
	}
	if finalURL == "" {
		finalURL = targetURL
	}
	return &Page{
		HTML:     []byte(html),
		FinalURL: finalURL,
		Status:   200,
	}, nil
}

// Composite prefers the renderer and falls back to the primary client when
// rendering fails.
type Composite struct {
	primary  Client
	renderer Client
	logger   *slog.Logger
}

// NewComposite builds a composite page client from a primary client and an
// optional renderer.
func NewComposite(primary Client, renderer Client) *Composite {
	return &Composite{primary: primary, renderer: renderer, logger: slog.Default()}
}

// Fetch delegates to the renderer first when one is configured.
func (c *Composite) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	if c.renderer != nil {
		page, err := c.renderer.Fetch(ctx, targetURL)
		if err == nil {
			return page, nil
		}
		c.logger.Warn("renderer failed, falling back to primary client",
			"url", targetURL, "error", err)
	}
	if c.primary == nil {
		return nil, &FetchError{URL: targetURL, Message: "no page client configured"}
	}
	return c.primary.Fetch(ctx, targetURL)
}

var _ Client = (*RelayClient)(nil)
var _ Client = (*DirectClient)(nil)
var _ Client = (*Renderer)(nil)
var _ Client = (*Composite)(nil)

// String implements fmt.Stringer for logging.
func (p *Page) String() string {
	return fmt.Sprintf("page[%s status=%d bytes=%d]", p.FinalURL, p.Status, len(p.HTML))
}

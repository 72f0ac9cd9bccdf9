package pipeline

import (
	"context"
	"fmt"
	"testing"

	"cinecrawler/internal/config"
	"cinecrawler/internal/dedupe"
	"cinecrawler/internal/relay"
	"cinecrawler/pkg/types"
)

// fakeClient serves canned pages keyed by URL and records fetch order.
type fakeClient struct {
	pages   map[string]string
	fetched []string
}

func (f *fakeClient) Fetch(ctx context.Context, targetURL string) (*relay.Page, error) {
	f.fetched = append(f.fetched, targetURL)
	html, ok := f.pages[targetURL]
	if !ok {
		return nil, &relay.FetchError{URL: targetURL, Message: "no such page"}
	}
	return &relay.Page{HTML: []byte(html), FinalURL: targetURL, Status: 200}, nil
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Site.BaseURL = "https://example.com"
	cfg.Pacing.CardDelay = config.DurationFrom(0)
	return cfg
}

func listingPage(cards ...string) string {
	page := `<html><body><div class="blog-items">`
	for _, c := range cards {
		page += c
	}
	return page + `</div></body></html>`
}

func cardEntry(href, title string) string {
	return fmt.Sprintf(`<article class="latest-movies"><a href=%q><img src="/t.jpg" alt=%q></a></article>`, href, title)
}

const detailAlpha = `<html><body>
<h1 class="entry-title">Alpha Strike</h1>
<p><b>Quality:</b> WEB-DL<br><b>Language:</b> Hindi</p>
<div class="download-links"><a href="/get-link/alpha">Download [720p • 1.2GB]</a></div>
</body></html>`

const detailBeta = `<html><body>
<h1 class="entry-title">Beta Night</h1>
<span class="status-badge">S02</span>
</body></html>`

func betaExisting() *types.ScrapedRecord {
	return &types.ScrapedRecord{
		ID:          "movie5",
		Title:       "Beta Night",
		ImageURL:    "https://example.com/t.jpg",
		ContentType: "Movie",
		Status:      "Online",
	}
}

func TestScrapePageEndToEnd(t *testing.T) {
	client := &fakeClient{pages: map[string]string{
		"https://example.com/": listingPage(
			cardEntry("/movie/alpha", "Alpha Strike"),
			cardEntry("/movie/beta", "Beta Night"),
		),
		"https://example.com/movie/alpha": detailAlpha,
		"https://example.com/movie/beta":  detailBeta,
	}}
	engine := NewEngineWithClient(testConfig(), client)

	existing := betaExisting()
	rc := NewRunContext([]*types.ScrapedRecord{existing})

	var progress []Progress
	var items []ItemEvent
	hooks := Hooks{
		OnProgress: func(p Progress) { progress = append(progress, p) },
		OnItem:     func(evt ItemEvent) { items = append(items, evt) },
	}

	if err := engine.ScrapePage(context.Background(), rc, hooks, "https://example.com/"); err != nil {
		t.Fatalf("ScrapePage: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("got %d item events, want 2", len(items))
	}
	if items[0].Outcome != dedupe.OutcomeNew {
		t.Errorf("first outcome = %q, want new", items[0].Outcome)
	}
	if items[0].Record.ID != "movie6" {
		t.Errorf("new record id = %q, want movie6 (existing max 5 + 1)", items[0].Record.ID)
	}
	if items[0].Record.Title != "Alpha Strike" || items[0].Record.Quality != "WEB-DL" {
		t.Errorf("new record = %+v", items[0].Record)
	}
	if len(items[0].Record.DownloadGroups) != 1 || len(items[0].Record.DownloadGroups[0].Links) != 1 {
		t.Errorf("new record download groups = %+v", items[0].Record.DownloadGroups)
	}

	if items[1].Outcome != dedupe.OutcomeUpdated {
		t.Errorf("second outcome = %q, want updated", items[1].Outcome)
	}
	if items[1].Matched != existing {
		t.Error("updated event must reference the matched existing record")
	}
	if existing.Status != "S02" {
		t.Errorf("existing status = %q, want overwritten to S02", existing.Status)
	}
	if existing.ID != "movie5" {
		t.Errorf("existing id mutated to %q", existing.ID)
	}

	if len(progress) < 3 {
		t.Errorf("got %d progress events, want at least 3", len(progress))
	}
	if len(rc.Scraped) != 1 {
		t.Errorf("in-run dataset holds %d records, want 1", len(rc.Scraped))
	}
	if rc.Counts.New != 1 || rc.Counts.Updated != 1 || rc.Counts.Duplicates != 0 {
		t.Errorf("counts = %+v", rc.Counts)
	}
}

func TestScrapePageDuplicate(t *testing.T) {
	client := &fakeClient{pages: map[string]string{
		"https://example.com/":           listingPage(cardEntry("/movie/beta", "Beta Night")),
		"https://example.com/movie/beta": `<html><body><h1>Beta Night</h1></body></html>`,
	}}
	engine := NewEngineWithClient(testConfig(), client)

	existing := betaExisting() // status Online matches the detail default
	rc := NewRunContext([]*types.ScrapedRecord{existing})

	var items []ItemEvent
	hooks := Hooks{OnItem: func(evt ItemEvent) { items = append(items, evt) }}

	if err := engine.ScrapePage(context.Background(), rc, hooks, "https://example.com/"); err != nil {
		t.Fatalf("ScrapePage: %v", err)
	}
	if len(items) != 1 || items[0].Outcome != dedupe.OutcomeDuplicate {
		t.Fatalf("items = %+v, want one duplicate", items)
	}
	if len(rc.Scraped) != 0 {
		t.Errorf("duplicate appended to the in-run dataset: %v", rc.Scraped)
	}
}

func TestScrapePageCooperativeStop(t *testing.T) {
	client := &fakeClient{pages: map[string]string{
		"https://example.com/": listingPage(
			cardEntry("/movie/one", "One"),
			cardEntry("/movie/two", "Two"),
			cardEntry("/movie/three", "Three"),
		),
		"https://example.com/movie/one":   `<html><body><h1>One</h1></body></html>`,
		"https://example.com/movie/two":   `<html><body><h1>Two</h1></body></html>`,
		"https://example.com/movie/three": `<html><body><h1>Three</h1></body></html>`,
	}}
	engine := NewEngineWithClient(testConfig(), client)
	rc := NewRunContext(nil)

	var items []ItemEvent
	var sawStop bool
	hooks := Hooks{
		OnProgress: func(p Progress) {
			if p.Severity == SeverityWarning {
				sawStop = true
			}
		},
		OnItem: func(evt ItemEvent) {
			items = append(items, evt)
			rc.RequestStop()
		},
	}

	if err := engine.ScrapePage(context.Background(), rc, hooks, "https://example.com/"); err != nil {
		t.Fatalf("ScrapePage: %v", err)
	}

	if len(items) != 1 {
		t.Fatalf("got %d item events, want exactly 1", len(items))
	}
	if !sawStop {
		t.Error("no stop-requested progress event emitted")
	}
	for _, url := range client.fetched {
		if url == "https://example.com/movie/two" {
			t.Error("card 2 detail fetch started after stop was requested")
		}
	}
}

func TestScrapePagePerCardFailureContinues(t *testing.T) {
	client := &fakeClient{pages: map[string]string{
		"https://example.com/": listingPage(
			cardEntry("/movie/missing", "Missing"),
			cardEntry("/movie/alpha", "Alpha Strike"),
		),
		"https://example.com/movie/alpha": detailAlpha,
	}}
	engine := NewEngineWithClient(testConfig(), client)
	rc := NewRunContext(nil)

	var items []ItemEvent
	var errsReported int
	hooks := Hooks{
		OnProgress: func(p Progress) {
			if p.Severity == SeverityError {
				errsReported++
			}
		},
		OnItem: func(evt ItemEvent) { items = append(items, evt) },
	}

	if err := engine.ScrapePage(context.Background(), rc, hooks, "https://example.com/"); err != nil {
		t.Fatalf("ScrapePage: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("got %d item events, want 2 (error + new)", len(items))
	}
	if items[0].Outcome != OutcomeError {
		t.Errorf("first outcome = %q, want error", items[0].Outcome)
	}
	if items[1].Outcome != dedupe.OutcomeNew {
		t.Errorf("second outcome = %q, want new: one bad card must not halt the page", items[1].Outcome)
	}
	if errsReported == 0 {
		t.Error("card failure was not reported through progress")
	}
	if rc.Counts.Failed != 1 {
		t.Errorf("Counts.Failed = %d, want 1", rc.Counts.Failed)
	}
}

func TestScrapePageZeroCardsWarns(t *testing.T) {
	client := &fakeClient{pages: map[string]string{
		"https://example.com/": `<html><body><p>maintenance</p></body></html>`,
	}}
	engine := NewEngineWithClient(testConfig(), client)
	rc := NewRunContext(nil)

	var warned bool
	hooks := Hooks{OnProgress: func(p Progress) {
		if p.Severity == SeverityWarning {
			warned = true
		}
	}}
	if err := engine.ScrapePage(context.Background(), rc, hooks, "https://example.com/"); err != nil {
		t.Fatalf("ScrapePage: %v", err)
	}
	if !warned {
		t.Error("zero recognisable entries must surface as a warning, not an error")
	}
}

func TestScrapePageListingFetchFailureIsNotFatal(t *testing.T) {
	client := &fakeClient{pages: map[string]string{}}
	engine := NewEngineWithClient(testConfig(), client)
	rc := NewRunContext(nil)

	var sawError bool
	hooks := Hooks{OnProgress: func(p Progress) {
		if p.Severity == SeverityError {
			sawError = true
		}
	}}
	if err := engine.ScrapePage(context.Background(), rc, hooks, "https://example.com/"); err != nil {
		t.Fatalf("page-level fetch failure must not abort the run, got %v", err)
	}
	if !sawError {
		t.Error("listing fetch failure was not reported")
	}
}

func TestListingURL(t *testing.T) {
	engine := NewEngineWithClient(testConfig(), &fakeClient{})
	if got := engine.ListingURL(1); got != "https://example.com/" {
		t.Errorf("ListingURL(1) = %q", got)
	}
	if got := engine.ListingURL(4); got != "https://example.com/page/4" {
		t.Errorf("ListingURL(4) = %q", got)
	}
}

func TestScrapePagesRange(t *testing.T) {
	client := &fakeClient{pages: map[string]string{
		"https://example.com/":       listingPage(cardEntry("/movie/one", "One")),
		"https://example.com/page/2": listingPage(cardEntry("/movie/two", "Two")),
		"https://example.com/movie/one": `<html><body><h1>One</h1></body></html>`,
		"https://example.com/movie/two": `<html><body><h1>Two</h1></body></html>`,
	}}
	engine := NewEngineWithClient(testConfig(), client)
	rc := NewRunContext(nil)

	if err := engine.ScrapePages(context.Background(), rc, Hooks{}, 1, 2); err != nil {
		t.Fatalf("ScrapePages: %v", err)
	}
	if len(rc.Scraped) != 2 {
		t.Fatalf("scraped %d records, want 2", len(rc.Scraped))
	}
	// Page 2's serial base re-counts the in-run dataset on top of the max
	// suffix, so the second record skips a number.
	if rc.Scraped[0].ID != "movie1" || rc.Scraped[1].ID != "movie3" {
		t.Errorf("serials = %q, %q; want movie1, movie3", rc.Scraped[0].ID, rc.Scraped[1].ID)
	}
	if rc.Counts.Pages != 2 {
		t.Errorf("Counts.Pages = %d, want 2", rc.Counts.Pages)
	}
}

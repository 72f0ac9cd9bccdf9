package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"cinecrawler/internal/config"
	"cinecrawler/internal/dedupe"
	"cinecrawler/internal/pipeline"
	"cinecrawler/internal/storage"
	"cinecrawler/pkg/types"
)

type urlList []string

func (u *urlList) String() string { return strings.Join(*u, ",") }

func (u *urlList) Set(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("url must not be empty")
	}
	*u = append(*u, value)
	return nil
}

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "Path to scraper configuration file")
	from := flag.Int("from", 1, "First listing page to scrape")
	to := flag.Int("to", 1, "Last listing page to scrape")
	exportPath := flag.String("export", "", "Optional path to write the collected dataset as JSON")
	var urls urlList
	flag.Var(&urls, "url", "Listing page URL to scrape (repeatable; overrides -from/-to)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	engine, err := pipeline.NewEngine(*cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise engine: %v\n", err)
		os.Exit(1)
	}

	catalog, err := storage.NewCatalog(cfg.DB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open catalog: %v\n", err)
		os.Exit(1)
	}
	defer catalog.Close()

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The engine runs on its own context so that a signal does not abort the
	// fetch in flight.
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	existing, err := catalog.LoadAll(runCtx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load existing dataset: %v\n", err)
		os.Exit(1)
	}

	rc := pipeline.NewRunContext(existing)
	go func() {
		// The first signal flips the cooperative flag: the card in flight
		// finishes and the run halts at the next card boundary. A second
		// signal cancels the run outright.
		<-sigCtx.Done()
		rc.RequestStop()
		stop()
		again := make(chan os.Signal, 1)
		signal.Notify(again, syscall.SIGINT, syscall.SIGTERM)
		<-again
		cancelRun()
	}()

	var updated []*types.ScrapedRecord
	hooks := pipeline.Hooks{
		OnProgress: func(p pipeline.Progress) {
			fmt.Printf("[%s] %s\n", p.Severity, p.Message)
		},
		OnItem: func(evt pipeline.ItemEvent) {
			if evt.Outcome == dedupe.OutcomeUpdated && evt.Matched != nil {
				updated = append(updated, evt.Matched)
			}
		},
	}

	if len(urls) > 0 {
		err = engine.ScrapeLinks(runCtx, rc, hooks, urls)
	} else {
		err = engine.ScrapePages(runCtx, rc, hooks, *from, *to)
	}
	if err != nil && runCtx.Err() == nil {
		fmt.Fprintf(os.Stderr, "scraper stopped with error: %v\n", err)
		os.Exit(1)
	}

	persistCtx := context.Background()
	toSave := append(append([]*types.ScrapedRecord(nil), rc.Scraped...), updated...)
	if err := catalog.SaveAll(persistCtx, toSave); err != nil {
		fmt.Fprintf(os.Stderr, "failed to persist results: %v\n", err)
		os.Exit(1)
	}

	if *exportPath != "" {
		dataset := append(append([]*types.ScrapedRecord(nil), existing...), rc.Scraped...)
		if err := storage.ExportFile(*exportPath, dataset); err != nil {
			fmt.Fprintf(os.Stderr, "failed to export dataset: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("done: %d pages, %d new, %d updated, %d duplicates, %d failed\n",
		rc.Counts.Pages, rc.Counts.New, rc.Counts.Updated, rc.Counts.Duplicates, rc.Counts.Failed)
}

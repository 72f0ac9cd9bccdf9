package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"cinecrawler/internal/config"
	"cinecrawler/internal/dedupe"
	"cinecrawler/internal/pipeline"
	"cinecrawler/internal/storage"
	"cinecrawler/pkg/types"
)

// ErrMaxConcurrency signals that the global run limit has been reached.
var ErrMaxConcurrency = errors.New("maximum concurrent runs reached")

// RunManager coordinates scrape-run lifecycles keyed by run identifier. Each
// run owns an isolated RunContext; concurrent runs never share mutable state.
type RunManager struct {
	mu         sync.RWMutex
	runs       map[string]*Run
	order      []string
	baseConfig config.Config
	catalog    *storage.Catalog
	maxRuns    int
	running    int
	rootCtx    context.Context
	logger     *slog.Logger

	// newEngine is swapped in tests to inject a scripted page client.
	newEngine func(config.Config) (*pipeline.Engine, error)
}

// NewRunManager constructs a manager with the provided defaults.
func NewRunManager(base config.Config, catalog *storage.Catalog, rootCtx context.Context, logger *slog.Logger) *RunManager {
	maxRuns := base.API.MaxConcurrentRuns
	if maxRuns <= 0 {
		maxRuns = 5
	}
	if rootCtx == nil {
		rootCtx = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RunManager{
		runs:       make(map[string]*Run),
		baseConfig: base,
		catalog:    catalog,
		maxRuns:    maxRuns,
		rootCtx:    rootCtx,
		logger:     logger,
		newEngine:  pipeline.NewEngine,
	}
}

// StartRun validates the request, materialises a config, and launches a run.
func (m *RunManager) StartRun(req CreateRunRequest) (*Run, error) {
	cfg, err := m.buildConfig(req)
	if err != nil {
		return nil, err
	}
	engine, err := m.newEngine(cfg)
	if err != nil {
		return nil, err
	}

	run := newRun(generateRunID(), m, cfg)

	m.mu.Lock()
	if m.running >= m.maxRuns {
		m.mu.Unlock()
		return nil, ErrMaxConcurrency
	}
	m.running++
	m.runs[run.id] = run
	m.order = append(m.order, run.id)
	m.mu.Unlock()

	run.start(m.rootCtx, engine, req)
	return run, nil
}

// ListRuns captures current summaries for all runs, oldest first.
func (m *RunManager) ListRuns() []RunSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	summaries := make([]RunSummary, 0, len(m.order))
	for _, id := range m.order {
		summaries = append(summaries, m.runs[id].Snapshot())
	}
	return summaries
}

// GetRun returns the backing run by id.
func (m *RunManager) GetRun(id string) (*Run, bool) {
	id = strings.TrimSpace(id)
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	return run, ok
}

// GetRunDetail captures the latest summary plus the effective config.
func (m *RunManager) GetRunDetail(id string) (RunDetail, bool) {
	run, ok := m.GetRun(id)
	if !ok {
		return RunDetail{}, false
	}
	return RunDetail{Run: run.Snapshot(), Config: run.cfg}, true
}

// CancelRun requests a cooperative stop of the identified run.
func (m *RunManager) CancelRun(id string) error {
	run, ok := m.GetRun(id)
	if !ok {
		return fmt.Errorf("run %q not found", id)
	}
	if !run.Cancel("cancel requested via API") {
		return fmt.Errorf("run %q not running", id)
	}
	return nil
}

// Shutdown stops all active runs.
func (m *RunManager) Shutdown() {
	m.mu.RLock()
	snapshot := make([]*Run, 0, len(m.runs))
	for _, run := range m.runs {
		snapshot = append(snapshot, run)
	}
	m.mu.RUnlock()

	for _, run := range snapshot {
		run.abort("manager shutdown")
	}
}

func (m *RunManager) buildConfig(req CreateRunRequest) (config.Config, error) {
	hasPages := req.Pages != nil
	hasURLs := len(req.URLs) > 0
	if hasPages == hasURLs {
		return config.Config{}, errors.New("exactly one of pages or urls is required")
	}
	if hasPages {
		if req.Pages.From < 1 || req.Pages.To < req.Pages.From {
			return config.Config{}, fmt.Errorf("invalid page range %d..%d", req.Pages.From, req.Pages.To)
		}
	}
	for _, u := range req.URLs {
		if strings.TrimSpace(u) == "" {
			return config.Config{}, errors.New("urls must not contain empty entries")
		}
	}

	cfg := m.baseConfig
	if req.CardDelayMS != nil {
		if *req.CardDelayMS < 0 {
			return config.Config{}, errors.New("card_delay_ms must be >= 0")
		}
		cfg.Pacing.CardDelay = config.DurationFrom(time.Duration(*req.CardDelayMS) * time.Millisecond)
	}
	if ep := strings.TrimSpace(req.RelayEndpoint); ep != "" {
		cfg.Relay.Endpoint = ep
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func (m *RunManager) notifyCompletion() {
	m.mu.Lock()
	if m.running > 0 {
		m.running--
	}
	m.mu.Unlock()
}

// Run tracks the lifecycle and state of one scrape-run execution.
type Run struct {
	id  string
	cfg config.Config

	mu          sync.Mutex
	status      RunStatus
	counts      pipeline.Counts
	lastMessage string
	lastError   string
	createdAt   time.Time
	startedAt   *time.Time
	completedAt *time.Time

	rc     *pipeline.RunContext
	cancel context.CancelFunc

	subscribers map[chan SSEEvent]struct{}
	subMu       sync.RWMutex

	manager *RunManager
}

func newRun(id string, manager *RunManager, cfg config.Config) *Run {
	return &Run{
		id:          id,
		cfg:         cfg,
		status:      RunStatusPending,
		createdAt:   time.Now(),
		subscribers: make(map[chan SSEEvent]struct{}),
		manager:     manager,
	}
}

func (r *Run) start(parentCtx context.Context, engine *pipeline.Engine, req CreateRunRequest) {
	runCtx, cancel := context.WithCancel(parentCtx)

	started := time.Now()
	r.mu.Lock()
	r.status = RunStatusRunning
	r.startedAt = &started
	r.lastMessage = "running"
	r.cancel = cancel
	r.mu.Unlock()

	r.broadcast("run_started", nil, nil)

	go func() {
		existing, err := r.manager.catalog.LoadAll(runCtx)
		if err != nil {
			r.handleCompletion(nil, nil, fmt.Errorf("load existing dataset: %w", err))
			return
		}
		rc := pipeline.NewRunContext(existing)
		r.mu.Lock()
		r.rc = rc
		r.mu.Unlock()

		var updated []*types.ScrapedRecord
		hooks := pipeline.Hooks{
			OnProgress: func(p pipeline.Progress) {
				r.mu.Lock()
				r.counts = rc.Counts
				r.lastMessage = p.Message
				r.mu.Unlock()
				r.broadcast("progress", &p, nil)
			},
			OnItem: func(evt pipeline.ItemEvent) {
				if evt.Outcome == dedupe.OutcomeUpdated && evt.Matched != nil {
					updated = append(updated, evt.Matched)
				}
				r.mu.Lock()
				r.counts = rc.Counts
				r.mu.Unlock()
				r.broadcast("item", nil, itemPayload(evt))
			},
		}

		var runErr error
		if req.Pages != nil {
			runErr = engine.ScrapePages(runCtx, rc, hooks, req.Pages.From, req.Pages.To)
		} else {
			runErr = engine.ScrapeLinks(runCtx, rc, hooks, req.URLs)
		}
		r.handleCompletion(rc, updated, runErr)
	}()
}

func (r *Run) handleCompletion(rc *pipeline.RunContext, updated []*types.ScrapedRecord, err error) {
	// Persist what the run collected even when it was cut short.
	if rc != nil {
		persistCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		toSave := append(append([]*types.ScrapedRecord(nil), rc.Scraped...), updated...)
		if saveErr := r.manager.catalog.SaveAll(persistCtx, toSave); saveErr != nil {
			r.manager.logger.Error("persist run results", "run_id", r.id, "error", saveErr)
			if err == nil {
				err = saveErr
			}
		}
	}

	now := time.Now()
	r.mu.Lock()
	status := RunStatusCompleted
	message := "completed"
	errorText := ""
	switch {
	case errors.Is(err, context.Canceled):
		status = RunStatusCancelled
		message = "cancelled"
	case err != nil:
		status = RunStatusFailed
		message = "failed"
		errorText = err.Error()
	case r.rc != nil && r.rc.StopRequested():
		status = RunStatusCancelled
		message = "cancelled"
	}
	if rc != nil {
		r.counts = rc.Counts
	}
	r.status = status
	r.completedAt = &now
	r.lastMessage = message
	r.lastError = errorText
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	eventType := "run_completed"
	switch status {
	case RunStatusCancelled:
		eventType = "run_cancelled"
	case RunStatusFailed:
		eventType = "run_failed"
	}
	r.broadcast(eventType, nil, nil)
	r.manager.notifyCompletion()
}

// Cancel requests a cooperative stop. The engine finishes the card in flight
// and halts at the next card boundary; the run context stays live so the
// fetch already started is never cut off mid-extraction.
func (r *Run) Cancel(reason string) bool {
	return r.stop(reason, false)
}

// abort also cancels the run context, aborting any in-flight fetch. Used on
// process shutdown, where waiting out a card is not an option.
func (r *Run) abort(reason string) bool {
	return r.stop(reason, true)
}

func (r *Run) stop(reason string, hard bool) bool {
	r.mu.Lock()
	if r.status != RunStatusRunning {
		r.mu.Unlock()
		return false
	}
	r.status = RunStatusCancelling
	r.lastMessage = reason
	rc := r.rc
	cancel := r.cancel
	r.mu.Unlock()

	r.broadcast("run_cancelling", nil, nil)
	if rc != nil {
		rc.RequestStop()
	}
	if hard && cancel != nil {
		cancel()
	}
	return true
}

// Snapshot returns a copy of the public run state.
func (r *Run) Snapshot() RunSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	summary := RunSummary{
		RunID:       r.id,
		Status:      r.status,
		Counts:      r.counts,
		LastMessage: r.lastMessage,
		CreatedAt:   r.createdAt,
		Error:       r.lastError,
	}
	if r.startedAt != nil {
		started := *r.startedAt
		summary.StartedAt = &started
	}
	if r.completedAt != nil {
		completed := *r.completedAt
		summary.CompletedAt = &completed
	}
	return summary
}

// Subscribe registers an SSE subscriber for the run. The returned cancel
// function must be called exactly once.
func (r *Run) Subscribe() (<-chan SSEEvent, func()) {
	ch := make(chan SSEEvent, 16)

	r.subMu.Lock()
	r.subscribers[ch] = struct{}{}
	r.subMu.Unlock()

	initial := SSEEvent{
		Type:      "snapshot",
		Timestamp: time.Now(),
		Run:       r.Snapshot(),
	}
	select {
	case ch <- initial:
	default:
	}

	cancel := func() {
		r.subMu.Lock()
		if _, ok := r.subscribers[ch]; ok {
			delete(r.subscribers, ch)
			close(ch)
		}
		r.subMu.Unlock()
	}
	return ch, cancel
}

func (r *Run) broadcast(eventType string, progress *pipeline.Progress, item *ItemPayload) {
	envelope := SSEEvent{
		Type:      eventType,
		Timestamp: time.Now(),
		Run:       r.Snapshot(),
		Progress:  progress,
		Item:      item,
	}

	r.subMu.RLock()
	defer r.subMu.RUnlock()
	for ch := range r.subscribers {
		select {
		case ch <- envelope:
		default:
		}
	}
}

func itemPayload(evt pipeline.ItemEvent) *ItemPayload {
	payload := &ItemPayload{
		Outcome: string(evt.Outcome),
		Record:  evt.Record,
		Matched: evt.Matched,
	}
	if evt.Err != nil {
		payload.Error = evt.Err.Error()
	}
	return payload
}

func generateRunID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

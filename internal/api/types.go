package api

import (
	"time"

	"cinecrawler/internal/config"
	"cinecrawler/internal/pipeline"
	"cinecrawler/pkg/types"
)

// CreateRunRequest captures the payload used to launch a scrape run. Exactly
// one of Pages or URLs must be provided.
type CreateRunRequest struct {
	Pages *PageRange `json:"pages,omitempty"`
	URLs  []string   `json:"urls,omitempty"`

	// CardDelayMS overrides the fixed inter-card spacing for this run.
	CardDelayMS *int `json:"card_delay_ms,omitempty"`
	// RelayEndpoint overrides the configured relay for this run.
	RelayEndpoint string `json:"relay_endpoint,omitempty"`
}

// PageRange selects an inclusive listing-page range.
type PageRange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// RunStatus captures the lifecycle stage of a run.
type RunStatus string

const (
	RunStatusPending    RunStatus = "pending"
	RunStatusRunning    RunStatus = "running"
	RunStatusCancelling RunStatus = "cancelling"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusCancelled  RunStatus = "cancelled"
	RunStatusFailed     RunStatus = "failed"
)

// RunSummary surfaces the high-level state of a scrape run.
type RunSummary struct {
	RunID       string          `json:"run_id"`
	Status      RunStatus       `json:"status"`
	Counts      pipeline.Counts `json:"counts"`
	LastMessage string          `json:"last_message,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// RunDetail extends the summary with the effective configuration.
type RunDetail struct {
	Run    RunSummary    `json:"run"`
	Config config.Config `json:"config"`
}

// ItemPayload is the JSON-safe projection of a per-card outcome.
type ItemPayload struct {
	Outcome string               `json:"outcome"`
	Record  *types.ScrapedRecord `json:"record,omitempty"`
	Matched *types.ScrapedRecord `json:"matched,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// SSEEvent envelopes run state for Server-Sent Event clients.
type SSEEvent struct {
	Type      string             `json:"type"`
	Timestamp time.Time          `json:"timestamp"`
	Run       RunSummary         `json:"run"`
	Progress  *pipeline.Progress `json:"progress,omitempty"`
	Item      *ItemPayload       `json:"item,omitempty"`
}

package pipeline

import (
	"sync/atomic"

	"cinecrawler/pkg/types"
)

// Counts tallies per-run outcomes.
type Counts struct {
	New        int `json:"new"`
	Updated    int `json:"updated"`
	Duplicates int `json:"duplicates"`
	Failed     int `json:"failed"`
	Pages      int `json:"pages"`
}

// RunContext carries the mutable state of one scrape run. It is owned
// exclusively by the engine for the duration of the run; the reconciler sees
// its datasets by reference for read and in-place status updates. Only
// RequestStop may be called from another goroutine.
type RunContext struct {
	// Existing is the caller-seeded dataset; Scraped accumulates records
	// collected during this run.
	Existing []*types.ScrapedRecord
	Scraped  []*types.ScrapedRecord

	CurrentPage int
	Counts      Counts

	stop atomic.Bool
}

// NewRunContext seeds a run with a previously collected dataset.
func NewRunContext(existing []*types.ScrapedRecord) *RunContext {
	return &RunContext{Existing: existing}
}

// RequestStop asks the run to halt cooperatively. The engine finishes the
// card it is processing and stops before starting the next one.
func (rc *RunContext) RequestStop() {
	rc.stop.Store(true)
}

// StopRequested reports whether a cooperative stop is pending.
func (rc *RunContext) StopRequested() bool {
	return rc.stop.Load()
}

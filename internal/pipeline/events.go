package pipeline

import (
	"cinecrawler/internal/dedupe"
	"cinecrawler/pkg/types"
)

// Severity tags a free-text progress message.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Progress is the free-text progress event handed to the caller.
type Progress struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// OutcomeError marks a card that failed before reconciliation could run.
const OutcomeError = dedupe.Outcome("error")

// ItemEvent is the structured per-card outcome handed to the caller. Record is
// nil for error outcomes; Matched is set for duplicate and updated outcomes.
type ItemEvent struct {
	Outcome dedupe.Outcome       `json:"outcome"`
	Record  *types.ScrapedRecord `json:"record,omitempty"`
	Matched *types.ScrapedRecord `json:"matched,omitempty"`
	Err     error                `json:"-"`
}

// Hooks are the two narrow callback contracts the caller supplies. Either may
// be nil; events are emitted synchronously in processing order.
type Hooks struct {
	OnProgress func(Progress)
	OnItem     func(ItemEvent)
}

func (h Hooks) progress(severity Severity, message string) {
	if h.OnProgress != nil {
		h.OnProgress(Progress{Severity: severity, Message: message})
	}
}

func (h Hooks) item(evt ItemEvent) {
	if h.OnItem != nil {
		h.OnItem(evt)
	}
}

// Package dedupe decides whether a freshly scraped record is new, an exact
// duplicate, or a status update of an already collected entity.
package dedupe

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"cinecrawler/pkg/types"
)

// Outcome classifies a reconciliation decision.
type Outcome string

const (
	OutcomeNew       Outcome = "new"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeUpdated   Outcome = "updated"
)

// Result carries the decision plus the matched record for duplicate/updated
// outcomes.
type Result struct {
	Outcome Outcome
	Matched *types.ScrapedRecord
}

// Reconcile scans the existing dataset followed by the in-run dataset, in
// order, and returns the first match. A matched record whose status differs is
// mutated in place; the candidate is never appended here - that is the
// orchestrator's job on a new outcome.
func Reconcile(candidate *types.ScrapedRecord, existing, inRun []*types.ScrapedRecord) Result {
	return ReconcileAt(candidate, existing, inRun, time.Now())
}

// ReconcileAt is Reconcile with an explicit instant for the update timestamp.
func ReconcileAt(candidate *types.ScrapedRecord, existing, inRun []*types.ScrapedRecord, now time.Time) Result {
	for _, dataset := range [][]*types.ScrapedRecord{existing, inRun} {
		for _, rec := range dataset {
			if rec == nil || !sameEntity(candidate, rec) {
				continue
			}
			// Same franchise, different season: keep scanning.
			if cs, cok := seasonMarker(candidate.Status); cok {
				if rs, rok := seasonMarker(rec.Status); rok && cs != rs {
					continue
				}
			}
			if candidate.Status != rec.Status {
				rec.Status = candidate.Status
				rec.LastUpdated = now
				return Result{Outcome: OutcomeUpdated, Matched: rec}
			}
			return Result{Outcome: OutcomeDuplicate, Matched: rec}
		}
	}
	return Result{Outcome: OutcomeNew}
}

// sameEntity applies the nine-field case- and whitespace-insensitive equality.
// Status is deliberately excluded so season/availability changes reconcile as
// updates instead of fresh records.
func sameEntity(a, b *types.ScrapedRecord) bool {
	fields := [][2]string{
		{a.Title, b.Title},
		{a.ImageURL, b.ImageURL},
		{a.Quality, b.Quality},
		{a.ContentType, b.ContentType},
		{a.Genre, b.Genre},
		{a.Resolution, b.Resolution},
		{a.ReleaseInfo, b.ReleaseInfo},
		{a.Cast, b.Cast},
		{a.Storyline, b.Storyline},
		{a.RawLanguage, b.RawLanguage},
	}
	for _, pair := range fields {
		if !strings.EqualFold(collapseSpace(pair[0]), collapseSpace(pair[1])) {
			return false
		}
	}
	return true
}

var seasonMarkerRe = regexp.MustCompile(`(?i)\bS(\d+)\b`)

// seasonMarker extracts the season number from a status like "S02".
func seasonMarker(status string) (int, bool) {
	m := seasonMarkerRe.FindStringSubmatch(status)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

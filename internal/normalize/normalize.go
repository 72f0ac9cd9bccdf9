// Package normalize holds the pure text transforms that turn raw scraped
// strings into their canonical forms.
package normalize

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"cinecrawler/pkg/types"
)

type relativeUnit struct {
	pattern *regexp.Regexp
	apply   func(now time.Time, n int) time.Time
}

// Units are tried in a fixed priority order; only the first match applies.
var relativeUnits = []relativeUnit{
	{regexp.MustCompile(`(?i)(\d+)\s*seconds?\s*ago`), func(now time.Time, n int) time.Time {
		return now.Add(-time.Duration(n) * time.Second)
	}},
	{regexp.MustCompile(`(?i)(\d+)\s*minutes?\s*ago`), func(now time.Time, n int) time.Time {
		return now.Add(-time.Duration(n) * time.Minute)
	}},
	{regexp.MustCompile(`(?i)(\d+)\s*hours?\s*ago`), func(now time.Time, n int) time.Time {
		return now.Add(-time.Duration(n) * time.Hour)
	}},
	{regexp.MustCompile(`(?i)(\d+)\s*days?\s*ago`), func(now time.Time, n int) time.Time {
		return now.AddDate(0, 0, -n)
	}},
	{regexp.MustCompile(`(?i)(\d+)\s*weeks?\s*ago`), func(now time.Time, n int) time.Time {
		return now.AddDate(0, 0, -7*n)
	}},
	{regexp.MustCompile(`(?i)(\d+)\s*months?\s*ago`), func(now time.Time, n int) time.Time {
		return now.AddDate(0, -n, 0)
	}},
	{regexp.MustCompile(`(?i)(\d+)\s*years?\s*ago`), func(now time.Time, n int) time.Time {
		return now.AddDate(-n, 0, 0)
	}},
}

// ParseRelativeTime converts strings like "3 hours ago" into a timestamp
// relative to the wall clock. Unrecognised or empty input yields now.
func ParseRelativeTime(text string) time.Time {
	return ParseRelativeTimeAt(text, time.Now())
}

// ParseRelativeTimeAt is ParseRelativeTime with an explicit reference instant.
func ParseRelativeTimeAt(text string, now time.Time) time.Time {
	text = strings.TrimSpace(text)
	if text == "" {
		return now
	}
	for _, unit := range relativeUnits {
		m := unit.pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		return unit.apply(now, n)
	}
	return now
}

var (
	dualRe      = regexp.MustCompile(`(?i)\bdual\b(\s+audio\b)?`)
	langSepRepl = strings.NewReplacer("[", ",", "]", ",", "–", ",")
	commaRunRe  = regexp.MustCompile(`\s*,[\s,]*`)
)

// NormalizeLanguage canonicalises a scraped language tag list: "Dual" becomes
// "Dual Audio", bracket and en-dash separators become commas, and comma runs
// collapse so the result never starts, ends, or doubles a comma.
func NormalizeLanguage(text string) string {
	s := dualRe.ReplaceAllString(text, "Dual Audio")
	s = langSepRepl.Replace(s)
	s = commaRunRe.ReplaceAllString(s, ", ")
	return strings.Trim(strings.TrimSpace(s), ", ")
}

var seasonNoteRe = regexp.MustCompile(`(?i)\[\s*s\d+[^\]]*added\s*\]`)

// CleanTitle strips season/episode-count annotations like "[S01 Ep 1-10 Added]"
// and collapses internal whitespace.
func CleanTitle(text string) string {
	s := seasonNoteRe.ReplaceAllString(text, " ")
	return strings.Join(strings.Fields(s), " ")
}

// ResolveURL resolves ref against base, passing absolute URLs through
// unchanged. It never fails: on any parse error the input comes back as-is.
func ResolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ref
	}
	if u, err := url.Parse(ref); err == nil && u.IsAbs() {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	resolved, err := b.Parse(ref)
	if err != nil {
		return ref
	}
	return resolved.String()
}

// GenerateID builds a record identifier from a content type and serial number,
// eg. ("Web Series", 7) -> "webseries7".
func GenerateID(contentType string, serial int) string {
	t := strings.ToLower(contentType)
	t = strings.Join(strings.Fields(t), "")
	if t == "" {
		t = "movie"
	}
	return t + strconv.Itoa(serial)
}

var idSuffixRe = regexp.MustCompile(`(\d+)$`)

// NextSerial scans the trailing digits of every record id in both datasets and
// returns max+1, or 1 when neither dataset carries a numeric suffix.
func NextSerial(existing, inRun []*types.ScrapedRecord) int {
	max := 0
	scan := func(records []*types.ScrapedRecord) {
		for _, rec := range records {
			if rec == nil {
				continue
			}
			m := idSuffixRe.FindStringSubmatch(rec.ID)
			if m == nil {
				continue
			}
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			if n > max {
				max = n
			}
		}
	}
	scan(existing)
	scan(inRun)
	return max + 1
}

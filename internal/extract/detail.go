package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"cinecrawler/internal/normalize"
	"cinecrawler/pkg/types"
)

// DefaultServerLabel groups download links when the site exposes a single
// mirror class per page.
const DefaultServerLabel = "Server 1"

var (
	getLinkPathRe  = regexp.MustCompile(`(?i)/get[-_]?link`)
	downloadTextRe = regexp.MustCompile(`(?i)download\s*\[\s*([^\x{2022}\]]+?)\s*\x{2022}\s*([^\]]+?)\s*\]`)
)

// Detail extracts the full structured record from a detail page. Every field
// is independently optional: a missing label or container degrades to an
// empty value, never an error.
func Detail(markup []byte, baseURL string, adult bool, serial int) (types.ScrapedRecord, error) {
	return DetailAt(markup, baseURL, adult, serial, time.Now())
}

// DetailAt is Detail with an explicit reference instant for timestamp fields.
func DetailAt(markup []byte, baseURL string, adult bool, serial int, now time.Time) (types.ScrapedRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return types.ScrapedRecord{}, fmt.Errorf("parse detail: %w", err)
	}

	rec := types.NewRecordDefaults()
	rec.SourceURL = baseURL
	rec.IsAdult = adult

	applyLabelledFields(doc, &rec)

	if ct := contentType(doc); ct != "" {
		rec.ContentType = ct
	}
	rec.Title = normalize.CleanTitle(firstText(doc, "h1.entry-title", "h1.post-title", "h1", "h2"))
	rec.ImageURL = normalize.ResolveURL(baseURL, imageSrc(firstMatch(doc, "div.poster img", "div.entry-content img", "img")))
	rec.Storyline = firstText(doc, "div.storyline p", "div.synopsis p", "div.entry-content p")

	doc.Find("div.screenshots img, div.movie-screenshots img").Each(func(_ int, s *goquery.Selection) {
		src := normalize.ResolveURL(baseURL, imageSrc(s))
		if src != "" {
			rec.Screenshots = append(rec.Screenshots, src)
		}
	})

	if status := firstText(doc, "span.status-badge", ".movie-status"); status != "" {
		rec.Status = status
	}

	uploaded := normalize.ParseRelativeTimeAt(firstText(doc, "span.upload-time", "time.entry-date"), now)
	rec.CreatedAt = uploaded
	rec.LastUpdated = uploaded

	if links := downloadLinks(doc, baseURL); len(links) > 0 {
		rec.DownloadGroups = []types.DownloadGroup{{Server: DefaultServerLabel, Links: links}}
	}

	rec.ID = normalize.GenerateID(rec.ContentType, serial)
	return rec, nil
}

// applyLabelledFields captures the text immediately following each known
// bold/emphasis label, up to the next tag.
func applyLabelledFields(doc *goquery.Document, rec *types.ScrapedRecord) {
	doc.Find("b, strong").Each(func(_ int, s *goquery.Selection) {
		label := strings.ToLower(strings.TrimSuffix(collapseSpace(s.Text()), ":"))
		value := textAfter(s)
		if value == "" {
			return
		}
		switch label {
		case "imdb", "imdb rating":
			setIfEmpty(&rec.IMDBRating, value)
		case "genre":
			setIfEmpty(&rec.Genre, value)
		case "language":
			if rec.RawLanguage == "" {
				rec.RawLanguage = value
				rec.Language = normalize.NormalizeLanguage(value)
			}
		case "quality":
			setIfEmpty(&rec.Quality, value)
		case "resolution":
			setIfEmpty(&rec.Resolution, value)
		case "released":
			setIfEmpty(&rec.ReleaseInfo, value)
		case "cast":
			setIfEmpty(&rec.Cast, value)
		}
	})
}

func contentType(doc *goquery.Document) string {
	if ct := firstText(doc, "span.content-type-label", ".type-badge"); ct != "" {
		return ct
	}
	var ct string
	doc.Find("b, strong").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		label := strings.ToLower(strings.TrimSuffix(collapseSpace(s.Text()), ":"))
		if label != "type" {
			return true
		}
		ct = textAfter(s)
		return ct == ""
	})
	return ct
}

func downloadLinks(doc *goquery.Document, baseURL string) []types.DownloadLink {
	var links []types.DownloadLink
	doc.Find("div.download-links a[href], div.dlinks a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || !getLinkPathRe.MatchString(href) {
			return
		}
		m := downloadTextRe.FindStringSubmatch(collapseSpace(s.Text()))
		if m == nil {
			return
		}
		links = append(links, types.DownloadLink{
			Quality: strings.TrimSpace(m[1]),
			Size:    strings.TrimSpace(m[2]),
			URL:     normalize.ResolveURL(baseURL, href),
		})
	})
	return links
}

// textAfter returns the text node content directly following the selection's
// element, stopping at the next tag.
func textAfter(s *goquery.Selection) string {
	node := s.Get(0)
	if node == nil {
		return ""
	}
	var b strings.Builder
	for sibling := node.NextSibling; sibling != nil; sibling = sibling.NextSibling {
		if sibling.Type == html.ElementNode {
			break
		}
		if sibling.Type == html.TextNode {
			b.WriteString(sibling.Data)
		}
	}
	value := strings.TrimLeft(collapseSpace(b.String()), ":- ")
	return strings.TrimSpace(value)
}

// firstText tries each selector in order and returns the first non-empty text.
func firstText(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if text := collapseSpace(doc.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

// firstMatch tries each selector in order and returns the first non-empty
// selection, or nil when none match.
func firstMatch(doc *goquery.Document, selectors ...string) *goquery.Selection {
	for _, sel := range selectors {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			return s
		}
	}
	return nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func setIfEmpty(dst *string, value string) {
	if *dst == "" {
		*dst = value
	}
}

// Package extract parses listing and detail markup into the structured shapes
// the pipeline reconciles and persists.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"cinecrawler/internal/normalize"
	"cinecrawler/pkg/types"
)

// Listing entry containers, most specific first. The site has shuffled its
// markup between these shapes over time.
var cardSelectors = []string{
	"div.blog-items article.latest-movies",
	"div.post-list div.post-item",
	"article.post",
}

var adultBadgeSelector = "span.adult-badge, .badge-18, img.adult-icon"

// Cards enumerates the entry elements of a listing page. Entries lacking both
// a detail link and a title are dropped; a listing with no recognisable
// entries yields an empty slice, not an error.
func Cards(markup []byte, baseURL string) ([]types.Card, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}

	var entries *goquery.Selection
	for _, sel := range cardSelectors {
		entries = doc.Find(sel)
		if entries.Length() > 0 {
			break
		}
	}

	cards := make([]types.Card, 0, entries.Length())
	entries.Each(func(_ int, s *goquery.Selection) {
		card := types.Card{
			IsAdult: s.Find(adultBadgeSelector).Length() > 0,
		}

		if href, ok := s.Find("a[href]").First().Attr("href"); ok {
			card.DetailURL = normalize.ResolveURL(baseURL, strings.TrimSpace(href))
		}

		img := s.Find("img").First()
		card.Title = normalize.CleanTitle(cardTitle(s, img))
		card.ImageURL = normalize.ResolveURL(baseURL, imageSrc(img))

		if card.DetailURL == "" && card.Title == "" {
			return
		}
		cards = append(cards, card)
	})
	return cards, nil
}

// cardTitle prefers the thumbnail's alt/title attributes and degrades to the
// entry heading.
func cardTitle(entry, img *goquery.Selection) string {
	if alt, ok := img.Attr("alt"); ok && strings.TrimSpace(alt) != "" {
		return alt
	}
	if title, ok := img.Attr("title"); ok && strings.TrimSpace(title) != "" {
		return title
	}
	return strings.TrimSpace(entry.Find("h2, h3, .post-title").First().Text())
}

// imageSrc handles lazy-load attribute variants before the plain src.
func imageSrc(img *goquery.Selection) string {
	if img == nil {
		return ""
	}
	for _, attr := range []string{"data-lazy-src", "data-src", "src"} {
		if v, ok := img.Attr(attr); ok {
			v = strings.TrimSpace(v)
			if v != "" && !strings.HasPrefix(v, "data:") {
				return v
			}
		}
	}
	return ""
}

package extract

import "testing"

const listingFixture = `
<html><body>
<div class="blog-items">
  <article class="latest-movies">
    <a href="/movie/alpha-2026"><img data-lazy-src="/thumbs/alpha.jpg" alt="Alpha Strike [S01 Ep 1-10 Added]"></a>
  </article>
  <article class="latest-movies">
    <span class="adult-badge">18+</span>
    <a href="https://cdn.example.net/movie/beta"><img src="/thumbs/beta.jpg" title="Beta Night"></a>
  </article>
  <article class="latest-movies">
    <h2>Gamma Rising</h2>
  </article>
  <article class="latest-movies">
    <img src="data:image/gif;base64,R0lGOD">
  </article>
</div>
</body></html>`

func TestCards(t *testing.T) {
	cards, err := Cards([]byte(listingFixture), "https://example.com/page/1")
	if err != nil {
		t.Fatalf("Cards: %v", err)
	}
	if len(cards) != 3 {
		t.Fatalf("got %d cards, want 3 (entry with neither link nor title must drop)", len(cards))
	}

	first := cards[0]
	if first.DetailURL != "https://example.com/movie/alpha-2026" {
		t.Errorf("DetailURL = %q", first.DetailURL)
	}
	if first.Title != "Alpha Strike" {
		t.Errorf("Title = %q, want season annotation stripped", first.Title)
	}
	if first.ImageURL != "https://example.com/thumbs/alpha.jpg" {
		t.Errorf("ImageURL = %q", first.ImageURL)
	}
	if first.IsAdult {
		t.Error("first card flagged adult")
	}

	second := cards[1]
	if !second.IsAdult {
		t.Error("second card should carry the adult flag")
	}
	if second.DetailURL != "https://cdn.example.net/movie/beta" {
		t.Errorf("absolute DetailURL rewritten: %q", second.DetailURL)
	}
	if second.Title != "Beta Night" {
		t.Errorf("Title = %q, want img title attribute fallback", second.Title)
	}

	third := cards[2]
	if third.Title != "Gamma Rising" || third.DetailURL != "" {
		t.Errorf("heading-only card = %+v", third)
	}
}

func TestCardsEmptyListing(t *testing.T) {
	cards, err := Cards([]byte("<html><body><p>nothing here</p></body></html>"), "https://example.com")
	if err != nil {
		t.Fatalf("Cards: %v", err)
	}
	if len(cards) != 0 {
		t.Fatalf("got %d cards, want 0", len(cards))
	}
}

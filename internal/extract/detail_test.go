package extract

import (
	"testing"
	"time"
)

const detailFixture = `
<html><body>
<h1 class="entry-title">Alpha Strike [S01 Ep 1-10 Added]</h1>
<span class="content-type-label">Web Series</span>
<span class="status-badge">S01</span>
<span class="upload-time">3 hours ago</span>
<div class="poster"><img data-src="/posters/alpha.jpg"></div>
<div class="movie-info">
  <p><b>IMDb:</b> 7.9/10<br>
     <b>Genre:</b> Action, Thriller<br>
     <b>Language:</b> Dual [Hindi – English]<br>
     <b>Quality:</b> WEB-DL<br>
     <b>Resolution:</b> 720p, 1080p<br>
     <b>Released:</b> 2026<br>
     <b>Cast:</b> A. Actor, B. Actress</p>
</div>
<div class="storyline"><p>A squad races against time.</p></div>
<div class="screenshots">
  <img data-lazy-src="/shots/1.jpg">
  <img data-lazy-src="">
  <img src="/shots/2.jpg">
</div>
<div class="download-links">
  <a href="/get-link/alpha-720">Download [720p • 1.2GB]</a>
  <a href="/get-link/alpha-1080">Download [1080p • 2.4GB]</a>
  <a href="/get-link/alpha-zip">Grab the pack</a>
  <a href="/outside/alpha">Download [480p • 600MB]</a>
</div>
</body></html>`

func TestDetailAt(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	rec, err := DetailAt([]byte(detailFixture), "https://example.com/movie/alpha-2026", false, 7, now)
	if err != nil {
		t.Fatalf("DetailAt: %v", err)
	}

	if rec.ID != "webseries7" {
		t.Errorf("ID = %q, want webseries7", rec.ID)
	}
	if rec.Title != "Alpha Strike" {
		t.Errorf("Title = %q", rec.Title)
	}
	if rec.ContentType != "Web Series" {
		t.Errorf("ContentType = %q", rec.ContentType)
	}
	if rec.Status != "S01" {
		t.Errorf("Status = %q", rec.Status)
	}
	if rec.IMDBRating != "7.9/10" {
		t.Errorf("IMDBRating = %q", rec.IMDBRating)
	}
	if rec.Genre != "Action, Thriller" {
		t.Errorf("Genre = %q", rec.Genre)
	}
	if rec.RawLanguage != "Dual [Hindi – English]" {
		t.Errorf("RawLanguage = %q, want the unnormalized source text", rec.RawLanguage)
	}
	if rec.Language != "Dual Audio, Hindi, English" {
		t.Errorf("Language = %q", rec.Language)
	}
	if rec.Quality != "WEB-DL" {
		t.Errorf("Quality = %q", rec.Quality)
	}
	if rec.Resolution != "720p, 1080p" {
		t.Errorf("Resolution = %q", rec.Resolution)
	}
	if rec.ReleaseInfo != "2026" {
		t.Errorf("ReleaseInfo = %q", rec.ReleaseInfo)
	}
	if rec.Cast != "A. Actor, B. Actress" {
		t.Errorf("Cast = %q", rec.Cast)
	}
	if rec.Storyline != "A squad races against time." {
		t.Errorf("Storyline = %q", rec.Storyline)
	}
	if rec.ImageURL != "https://example.com/posters/alpha.jpg" {
		t.Errorf("ImageURL = %q", rec.ImageURL)
	}

	wantShots := []string{
		"https://example.com/shots/1.jpg",
		"https://example.com/shots/2.jpg",
	}
	if len(rec.Screenshots) != len(wantShots) {
		t.Fatalf("Screenshots = %v, want %v", rec.Screenshots, wantShots)
	}
	for i := range wantShots {
		if rec.Screenshots[i] != wantShots[i] {
			t.Errorf("Screenshots[%d] = %q, want %q", i, rec.Screenshots[i], wantShots[i])
		}
	}

	if len(rec.DownloadGroups) != 1 {
		t.Fatalf("DownloadGroups = %v, want one group", rec.DownloadGroups)
	}
	group := rec.DownloadGroups[0]
	if group.Server != DefaultServerLabel {
		t.Errorf("Server = %q", group.Server)
	}
	if len(group.Links) != 2 {
		t.Fatalf("got %d links, want 2 (unmatched text and non-get-link hrefs drop)", len(group.Links))
	}
	if group.Links[0].Quality != "720p" || group.Links[0].Size != "1.2GB" {
		t.Errorf("first link = %+v", group.Links[0])
	}
	if group.Links[1].URL != "https://example.com/get-link/alpha-1080" {
		t.Errorf("second link URL = %q", group.Links[1].URL)
	}

	wantTime := now.Add(-3 * time.Hour)
	if !rec.CreatedAt.Equal(wantTime) || !rec.LastUpdated.Equal(wantTime) {
		t.Errorf("timestamps = %v/%v, want both %v", rec.CreatedAt, rec.LastUpdated, wantTime)
	}
}

func TestDetailAtSparsePage(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	rec, err := DetailAt([]byte("<html><body><h2>Bare Title</h2></body></html>"),
		"https://example.com/movie/bare", true, 3, now)
	if err != nil {
		t.Fatalf("DetailAt: %v", err)
	}
	if rec.ID != "movie3" {
		t.Errorf("ID = %q, want movie3 from the Movie default", rec.ID)
	}
	if rec.Title != "Bare Title" {
		t.Errorf("Title = %q", rec.Title)
	}
	if rec.ContentType != "Movie" {
		t.Errorf("ContentType = %q, want Movie default", rec.ContentType)
	}
	if rec.Status != "Online" {
		t.Errorf("Status = %q, want Online default", rec.Status)
	}
	if !rec.IsAdult {
		t.Error("adult flag from the card must carry through")
	}
	if !rec.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want the reference now", rec.CreatedAt)
	}
	if rec.Quality != "" || rec.Genre != "" || len(rec.DownloadGroups) != 0 {
		t.Errorf("sparse page produced non-empty optional fields: %+v", rec)
	}
}

func TestDetailTypeLabelFallback(t *testing.T) {
	page := `<html><body><p><b>Type:</b> Anime</p></body></html>`
	rec, err := DetailAt([]byte(page), "https://example.com/x", false, 1, time.Now())
	if err != nil {
		t.Fatalf("DetailAt: %v", err)
	}
	if rec.ContentType != "Anime" {
		t.Errorf("ContentType = %q, want Anime via Type: label fallback", rec.ContentType)
	}
	if rec.ID != "anime1" {
		t.Errorf("ID = %q, want anime1", rec.ID)
	}
}

package types

import "time"

// Card is the minimal addressable unit found on a listing page.
type Card struct {
	DetailURL string `json:"detailUrl"`
	Title     string `json:"title"`
	ImageURL  string `json:"imageUrl"`
	IsAdult   bool   `json:"isAdult"`
}

// DownloadLink is a single mirror entry parsed from a detail page.
type DownloadLink struct {
	Quality string `json:"quality"`
	Size    string `json:"size"`
	URL     string `json:"url"`
}

// DownloadGroup bundles the links exposed under one server label.
type DownloadGroup struct {
	Server string         `json:"server"`
	Links  []DownloadLink `json:"links"`
}

// ScrapedRecord is the canonical representation of one scraped title.
type ScrapedRecord struct {
	ID        string `json:"id"`
	SourceURL string `json:"sourceUrl"`
	Title     string `json:"title"`
	ImageURL  string `json:"imageUrl"`
	Quality   string `json:"quality"`
	// Language is the normalized comma-separated tag list; RawLanguage keeps
	// the source text because duplicate matching runs against it.
	Language    string `json:"language"`
	RawLanguage string `json:"rawLanguage"`
	ContentType string `json:"contentType"`
	Status      string `json:"status"`
	IsAdult     bool   `json:"isAdult"`

	IMDBRating  string `json:"imdbRating"`
	Genre       string `json:"genre"`
	Resolution  string `json:"resolution"`
	ReleaseInfo string `json:"releaseInfo"`
	Cast        string `json:"cast"`
	Storyline   string `json:"storyline"`

	Screenshots    []string        `json:"screenshots"`
	DownloadGroups []DownloadGroup `json:"downloadGroups"`

	CreatedAt   time.Time `json:"createdAt"`
	LastUpdated time.Time `json:"lastUpdated"`

	// Static defaults carried for the consuming site, never derived from scraping.
	Visibility string `json:"visibility"`
	Views      int    `json:"views"`
	Downloads  int    `json:"downloads"`
}

// NewRecordDefaults returns a record pre-populated with the static fields
// every freshly scraped title starts with.
func NewRecordDefaults() ScrapedRecord {
	return ScrapedRecord{
		ContentType: "Movie",
		Status:      "Online",
		Visibility:  "public",
	}
}

package storage

import (
	"bytes"
	"strings"
	"testing"

	"cinecrawler/pkg/types"
)

func TestImportJSONRequiresArray(t *testing.T) {
	if _, err := ImportJSON(strings.NewReader(`{"id":"movie1"}`)); err == nil {
		t.Fatal("object accepted, want error")
	}
	if _, err := ImportJSON(strings.NewReader(`"movie1"`)); err == nil {
		t.Fatal("scalar accepted, want error")
	}
}

func TestImportJSONToleratesUnknownFields(t *testing.T) {
	recs, err := ImportJSON(strings.NewReader(`[
		{"id":"movie1","title":"Alpha","somethingWeNeverHeardOf":true},
		{"id":"movie2"}
	]`))
	if err != nil {
		t.Fatalf("ImportJSON: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].Title != "Alpha" {
		t.Errorf("title = %q", recs[0].Title)
	}
}

func TestImportJSONEmptyArray(t *testing.T) {
	recs, err := ImportJSON(strings.NewReader(`[]`))
	if err != nil {
		t.Fatalf("ImportJSON: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("got %d records, want 0", len(recs))
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	orig := sampleRecord("movie7")

	var buf bytes.Buffer
	if err := ExportJSON(&buf, []*types.ScrapedRecord{orig}); err != nil {
		t.Fatalf("ExportJSON: %v", err)
	}
	recs, err := ImportJSON(&buf)
	if err != nil {
		t.Fatalf("ImportJSON: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	got := recs[0]
	if got.ID != orig.ID || got.Title != orig.Title || got.RawLanguage != orig.RawLanguage {
		t.Errorf("round-tripped record = %+v", got)
	}
	if len(got.DownloadGroups) != 1 || got.DownloadGroups[0].Server != "Server 1" {
		t.Errorf("download groups = %+v", got.DownloadGroups)
	}
	if !got.CreatedAt.Equal(orig.CreatedAt) {
		t.Errorf("createdAt = %v, want %v", got.CreatedAt, orig.CreatedAt)
	}
}

func TestExportJSONEmptyDatasetIsArray(t *testing.T) {
	var buf bytes.Buffer
	if err := ExportJSON(&buf, nil); err != nil {
		t.Fatalf("ExportJSON: %v", err)
	}
	if s := strings.TrimSpace(buf.String()); s != "[]" {
		t.Errorf("empty dataset serialised as %q, want []", s)
	}
}

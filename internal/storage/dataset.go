package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"cinecrawler/pkg/types"
)

// ImportJSON reads a dataset from r. The only structural requirement is that
// the top level is a JSON array; individual entries carry whatever fields
// they carry.
func ImportJSON(r io.Reader) ([]*types.ScrapedRecord, error) {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, errors.New("dataset must be a JSON array")
	}
	var recs []*types.ScrapedRecord
	for dec.More() {
		var rec types.ScrapedRecord
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("decode record %d: %w", len(recs), err)
		}
		recs = append(recs, &rec)
	}
	return recs, nil
}

// ExportJSON writes the dataset to w as an indented JSON array.
func ExportJSON(w io.Writer, recs []*types.ScrapedRecord) error {
	if recs == nil {
		recs = []*types.ScrapedRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(recs); err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}
	return nil
}

// ImportFile loads a dataset file from disk.
func ImportFile(path string) ([]*types.ScrapedRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return ImportJSON(f)
}

// ExportFile writes a dataset file to disk.
func ExportFile(path string, recs []*types.ScrapedRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create dataset: %w", err)
	}
	if err := ExportJSON(f, recs); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

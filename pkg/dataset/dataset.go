// Package dataset reads the entry list and persists run output.
package dataset

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Sternrassler/fpl-league-fetcher/pkg/aggregate"
	"github.com/Sternrassler/fpl-league-fetcher/pkg/fpl"
)

// LoadEntries reads a JSON array of {"Player Name", "Player ID"} records.
func LoadEntries(path string) ([]fpl.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open entries: %w", err)
	}
	defer f.Close()

	entries, err := ReadEntries(f)
	if err != nil {
		return nil, fmt.Errorf("read entries from %s: %w", path, err)
	}
	return entries, nil
}

// ReadEntries decodes an entry list from r.
func ReadEntries(r io.Reader) ([]fpl.Entry, error) {
	var entries []fpl.Entry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode entries: %w", err)
	}
	if entries == nil {
		entries = []fpl.Entry{}
	}
	return entries, nil
}

// Dedupe drops repeated entry IDs, keeping the first occurrence and the
// original order. It returns the number of dropped records.
func Dedupe(entries []fpl.Entry) ([]fpl.Entry, int) {
	seen := make(map[int]struct{}, len(entries))
	out := make([]fpl.Entry, 0, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.ID]; ok {
			continue
		}
		seen[e.ID] = struct{}{}
		out = append(out, e)
	}
	return out, len(entries) - len(out)
}

// WriteRows writes rows as one JSON array. An empty set is written as [].
func WriteRows(path string, rows []fpl.Row) error {
	if rows == nil {
		rows = []fpl.Row{}
	}
	return writeJSON(path, rows)
}

// WriteReport writes the failed/no-data entry report.
func WriteReport(path string, report aggregate.Report) error {
	if report.Failed == nil {
		report.Failed = []int{}
	}
	if report.NoData == nil {
		report.NoData = []int{}
	}
	return writeJSON(path, report)
}

// writeJSON encodes v into a temp file next to path and renames it into
// place, so readers never observe a partial file.
func writeJSON(path string, v any) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	enc := json.NewEncoder(tmp)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}

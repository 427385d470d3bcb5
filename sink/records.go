// Package sink writes ingested records and per-run job statistics to disk.
package sink

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/bassamadnan/gmail-ingest/gmail"
)

// RecordColumns is the header of the output table.
var RecordColumns = []string{"Subject", "From", "Date", "Body", "Attachments"}

// CSV appends records to a CSV table, dropping rows that are identical to
// a row already present.
type CSV struct {
	path string
}

func NewCSV(path string) *CSV {
	return &CSV{path: path}
}

func (c *CSV) Path() string { return c.path }

// Append merges records into the table and rewrites it. It returns the
// number of rows that were not already present.
func (c *CSV) Append(records []gmail.Record) (int, error) {
	existing, err := c.Rows()
	if err != nil {
		return 0, err
	}

	seen := make(map[string]struct{}, len(existing)+len(records))
	merged := make([][]string, 0, len(existing)+len(records))
	for _, row := range existing {
		key := rowKey(row)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, row)
	}
	added := 0
	for _, rec := range records {
		row, err := recordRow(rec)
		if err != nil {
			return 0, err
		}
		key := rowKey(row)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, row)
		added++
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(RecordColumns); err != nil {
		return 0, err
	}
	if err := w.WriteAll(merged); err != nil {
		return 0, fmt.Errorf("encoding %s: %w", c.path, err)
	}

	if dir := filepath.Dir(c.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("creating output directory %s: %w", dir, err)
		}
	}
	if err := atomic.WriteFile(c.path, &buf); err != nil {
		return 0, fmt.Errorf("writing %s: %w", c.path, err)
	}
	return added, nil
}

// Rows returns the data rows of the table without the header. A missing
// file has no rows.
func (c *CSV) Rows() ([][]string, error) {
	f, err := os.Open(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening %s: %w", c.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", c.path, err)
	}
	if len(rows) > 0 && isHeader(rows[0]) {
		rows = rows[1:]
	}
	return rows, nil
}

func recordRow(rec gmail.Record) ([]string, error) {
	attachments := rec.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	list, err := json.Marshal(attachments)
	if err != nil {
		return nil, err
	}
	row := []string{rec.Subject, rec.From, rec.Date, rec.Body, string(list)}
	for i, field := range row {
		row[i] = normalizeNewlines(field)
	}
	return row, nil
}

// normalizeNewlines stores CRLF as LF. The CSV reader drops a carriage
// return before a newline, so rows are kept in the form they read back as.
func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

func isHeader(row []string) bool {
	if len(row) != len(RecordColumns) {
		return false
	}
	for i, col := range RecordColumns {
		if row[i] != col {
			return false
		}
	}
	return true
}

func rowKey(row []string) string {
	return normalizeNewlines(strings.Join(row, "\x1f"))
}

// Package cursor persists the date of the most recently ingested message.
package cursor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"

	"github.com/bassamadnan/gmail-ingest/query"
)

type record struct {
	LastTimestamp string `json:"last_timestamp"`
}

// Store reads and writes the cursor file.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string { return s.path }

// Load returns the stored date, or "" when no cursor has been written yet.
func (s *Store) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("reading cursor %s: %w", s.path, err)
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", fmt.Errorf("parsing cursor %s: %w", s.path, err)
	}
	return strings.TrimSpace(rec.LastTimestamp), nil
}

// Save replaces the stored date. Readers see either the old or the new file.
func (s *Store) Save(date string) error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating cursor directory %s: %w", dir, err)
		}
	}
	data, err := json.Marshal(record{LastTimestamp: date})
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing cursor %s: %w", s.path, err)
	}
	return nil
}

// Advance stores t's calendar date if it is later than the current cursor.
// It reports whether the cursor moved. An unreadable current value is
// overwritten.
func (s *Store) Advance(t time.Time) (bool, error) {
	next := t.Format(query.DateLayout)
	current, err := s.Load()
	if err == nil && current != "" {
		if cur, perr := time.Parse(query.DateLayout, current); perr == nil {
			y, m, d := t.Date()
			day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
			if !day.After(cur) {
				return false, nil
			}
		}
	}
	if err := s.Save(next); err != nil {
		return false, err
	}
	return true, nil
}

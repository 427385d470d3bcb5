package sink

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	JobName      = "Gmail_Email_Ingestion"
	statsSheet   = "Sheet1"
	statsTimeFmt = "2006-01-02 15:04:05"
)

// StatsColumns is the header of the job statistics table.
var StatsColumns = []string{
	"Job_Name", "Start_Time", "End_Time", "Duration_Seconds",
	"Emails_Processed", "Errors_Encountered", "Output_File", "Status", "Run_ID",
}

// JobStats is one row of the job statistics table.
type JobStats struct {
	RunID      string
	Start      time.Time
	End        time.Time
	Processed  int
	Errors     int
	OutputFile string
	Status     string
}

func (s JobStats) row() []any {
	return []any{
		JobName,
		s.Start.Format(statsTimeFmt),
		s.End.Format(statsTimeFmt),
		s.End.Sub(s.Start).Seconds(),
		s.Processed,
		s.Errors,
		s.OutputFile,
		s.Status,
		s.RunID,
	}
}

// Stats appends job statistics rows to an XLSX workbook.
type Stats struct {
	path string
}

func NewStats(path string) *Stats {
	return &Stats{path: path}
}

func (s *Stats) Path() string { return s.path }

// Append adds one row, creating the workbook with a header if needed.
func (s *Stats) Append(stats JobStats) error {
	f, err := s.open()
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := f.GetRows(statsSheet)
	if err != nil {
		return fmt.Errorf("reading %s: %w", s.path, err)
	}
	next := len(rows) + 1
	if len(rows) == 0 {
		header := make([]any, len(StatsColumns))
		for i, col := range StatsColumns {
			header[i] = col
		}
		if err := f.SetSheetRow(statsSheet, "A1", &header); err != nil {
			return err
		}
		next = 2
	}

	cell, err := excelize.CoordinatesToCellName(1, next)
	if err != nil {
		return err
	}
	row := stats.row()
	if err := f.SetSheetRow(statsSheet, cell, &row); err != nil {
		return fmt.Errorf("writing stats row: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating stats directory %s: %w", dir, err)
		}
	}
	if err := f.SaveAs(s.path); err != nil {
		return fmt.Errorf("saving %s: %w", s.path, err)
	}
	return nil
}

// Rows returns all rows including the header.
func (s *Stats) Rows() ([][]string, error) {
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	return f.GetRows(statsSheet)
}

func (s *Stats) open() (*excelize.File, error) {
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return excelize.NewFile(), nil
	}
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", s.path, err)
	}
	if idx, _ := f.GetSheetIndex(statsSheet); idx == -1 {
		if _, err := f.NewSheet(statsSheet); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

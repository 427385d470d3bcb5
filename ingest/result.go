package ingest

import "time"

// Status is the terminal state of a run.
type Status int

const (
	StatusCompleted Status = iota
	StatusPartial
	StatusFailed
)

// String returns the value written to the stats table's Status column.
func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "Completed"
	case StatusPartial:
		return "Completed with errors"
	case StatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Result describes one run. Err is set only for StatusFailed.
type Result struct {
	RunID     string
	Query     string
	Start     time.Time
	End       time.Time
	Processed int
	Errors    int
	NewRows   int
	Cursor    string // cursor after the run, "" if none
	Status    Status
	Err       error
}

func (r Result) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

func (r *Result) resolveStatus() {
	switch {
	case r.Err != nil:
		r.Status = StatusFailed
	case r.Errors > 0:
		r.Status = StatusPartial
	default:
		r.Status = StatusCompleted
	}
}

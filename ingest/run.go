// Package ingest runs one incremental fetch of matching messages into the
// output table and advances the cursor.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/bassamadnan/gmail-ingest/gmail"
	"github.com/bassamadnan/gmail-ingest/query"
	"github.com/bassamadnan/gmail-ingest/sink"
)

// MessageSource is the mail provider. *gmail.Client implements it.
type MessageSource interface {
	List(ctx context.Context, q string, max int64) ([]string, error)
	Get(ctx context.Context, id string) (*gmailapi.Message, error)
	Attachment(ctx context.Context, messageID, attachmentID string) ([]byte, error)
}

type CursorStore interface {
	Load() (string, error)
	Advance(t time.Time) (bool, error)
}

type RecordSink interface {
	Append(records []gmail.Record) (int, error)
	Path() string
}

type StatsSink interface {
	Append(stats sink.JobStats) error
}

// Config holds the per-run settings taken from the email and paths sections.
type Config struct {
	Preferences   query.Preferences
	Incremental   bool
	AttachmentDir string
}

// Runner executes ingestion runs. Runs must not overlap.
type Runner struct {
	cfg     Config
	source  MessageSource
	cursor  CursorStore
	records RecordSink
	stats   StatsSink
	logger  *log.Logger

	now   func() time.Time
	newID func() string
}

func NewRunner(cfg Config, source MessageSource, cursor CursorStore, records RecordSink, stats StatsSink, logger *log.Logger) *Runner {
	return &Runner{
		cfg:     cfg,
		source:  source,
		cursor:  cursor,
		records: records,
		stats:   stats,
		logger:  logger.WithPrefix("ingest"),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Run performs one ingestion and always appends a job statistics row.
// It never panics; failures are reported through the returned Result.
func (r *Runner) Run(ctx context.Context) Result {
	res := Result{RunID: r.newID(), Start: r.now()}
	logger := r.logger.With("run", res.RunID)
	logger.Info("Job started")

	func() {
		defer func() {
			if p := recover(); p != nil {
				res.Err = fmt.Errorf("panic: %v", p)
				logger.Error("Job failed due to panic", "panic", p, "stack", string(debug.Stack()))
			}
		}()
		if err := r.ingest(ctx, &res, logger); err != nil {
			res.Err = err
			logger.Error("Job failed due to error", "error", err)
		}
	}()

	res.End = r.now()
	res.resolveStatus()
	r.appendStats(res, logger)
	return res
}

func (r *Runner) ingest(ctx context.Context, res *Result, logger *log.Logger) error {
	cursor, err := r.cursor.Load()
	if err != nil {
		logger.Warn("Ignoring unreadable cursor", "error", err)
		res.Errors++
		cursor = ""
	}
	res.Cursor = cursor
	if r.cfg.Incremental && cursor != "" {
		logger.Info("Using incremental load", "after", cursor)
	}

	res.Query = query.Build(r.cfg.Preferences, cursor, r.cfg.Incremental, r.now())
	logger.Info("Built query", "query", res.Query)

	ids, err := r.source.List(ctx, res.Query, r.cfg.Preferences.MaxResults)
	if err != nil {
		logger.Error("Error listing messages", "error", err)
		res.Errors++
		ids = nil
	}
	logger.Info("Listed messages", "count", len(ids))

	if len(ids) > 0 {
		if err := os.MkdirAll(r.cfg.AttachmentDir, 0o755); err != nil {
			return fmt.Errorf("creating attachment directory: %w", err)
		}
	}

	var (
		records []gmail.Record
		latest  time.Time
	)
	for _, id := range ids {
		msg, err := r.source.Get(ctx, id)
		if err != nil {
			logger.Error("Error fetching message", "id", id, "error", err)
			res.Errors++
			continue
		}
		parsed := gmail.Parse(msg)
		rec := gmail.Record{
			Subject:     parsed.Subject,
			From:        parsed.From,
			Date:        parsed.Date,
			Body:        parsed.Body,
			Attachments: r.saveAttachments(ctx, id, parsed.Attachments, res, logger),
		}
		records = append(records, rec)
		res.Processed++

		day, err := gmail.ParseHeaderDate(rec.Date)
		if err != nil {
			logger.Debug("Date header not used for cursor", "id", id, "error", err)
			continue
		}
		if latest.IsZero() || day.After(latest) {
			latest = day
		}
	}

	if len(records) == 0 {
		logger.Info("No new emails found.")
		return nil
	}

	added, err := r.records.Append(records)
	if err != nil {
		return fmt.Errorf("saving records: %w", err)
	}
	res.NewRows = added
	logger.Info("Saved emails", "count", len(records), "new_rows", added, "path", r.records.Path())

	if latest.IsZero() {
		logger.Info("No parseable dates in this run; cursor unchanged")
		return nil
	}
	moved, err := r.cursor.Advance(latest)
	if err != nil {
		return fmt.Errorf("advancing cursor: %w", err)
	}
	if moved {
		res.Cursor = latest.Format(query.DateLayout)
		logger.Info("Cursor advanced", "last_timestamp", res.Cursor)
	} else {
		logger.Info("Cursor already at or past latest message date", "latest", latest.Format(query.DateLayout))
	}
	return nil
}

// saveAttachments writes each attachment under the attachment directory by
// its original base filename, overwriting existing files.
func (r *Runner) saveAttachments(ctx context.Context, msgID string, refs []gmail.AttachmentRef, res *Result, logger *log.Logger) []string {
	var paths []string
	for _, ref := range refs {
		name := filepath.Base(ref.Filename)
		if name == "." || name == ".." || name == string(filepath.Separator) {
			logger.Warn("Skipping attachment with unusable filename", "id", msgID, "filename", ref.Filename)
			res.Errors++
			continue
		}

		data := ref.Data
		if ref.AttachmentID != "" {
			var err error
			data, err = r.source.Attachment(ctx, msgID, ref.AttachmentID)
			if err != nil {
				logger.Error("Error downloading attachment", "id", msgID, "filename", name, "error", err)
				res.Errors++
				continue
			}
		}

		path := filepath.Join(r.cfg.AttachmentDir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			logger.Error("Error writing attachment", "path", path, "error", err)
			res.Errors++
			continue
		}
		paths = append(paths, path)
	}
	return paths
}

func (r *Runner) appendStats(res Result, logger *log.Logger) {
	stats := sink.JobStats{
		RunID:      res.RunID,
		Start:      res.Start,
		End:        res.End,
		Processed:  res.Processed,
		Errors:     res.Errors,
		OutputFile: r.records.Path(),
		Status:     res.Status.String(),
	}
	if err := r.stats.Append(stats); err != nil {
		logger.Error("Failed to log job stats", "error", err)
		return
	}
	logger.Info("Job stats logged",
		"status", res.Status,
		"processed", res.Processed,
		"errors", res.Errors,
		"duration", res.Duration(),
	)
}

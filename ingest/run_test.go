package ingest

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/bassamadnan/gmail-ingest/cursor"
	"github.com/bassamadnan/gmail-ingest/gmail"
	"github.com/bassamadnan/gmail-ingest/query"
	"github.com/bassamadnan/gmail-ingest/sink"
)

// fakeSource implements MessageSource from an in-memory mailbox.
type fakeSource struct {
	ids         []string
	messages    map[string]*gmailapi.Message
	attachments map[string][]byte
	listErr     error
	getErr      map[string]error
	attErr      map[string]error
	panicOnGet  bool

	queries []string
}

func (f *fakeSource) List(ctx context.Context, q string, max int64) ([]string, error) {
	f.queries = append(f.queries, q)
	if f.listErr != nil {
		return nil, f.listErr
	}
	ids := f.ids
	if int64(len(ids)) > max {
		ids = ids[:max]
	}
	return ids, nil
}

func (f *fakeSource) Get(ctx context.Context, id string) (*gmailapi.Message, error) {
	if f.panicOnGet {
		panic("source exploded")
	}
	if err := f.getErr[id]; err != nil {
		return nil, err
	}
	return f.messages[id], nil
}

func (f *fakeSource) Attachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	if err := f.attErr[attachmentID]; err != nil {
		return nil, err
	}
	return f.attachments[attachmentID], nil
}

func message(id, subject, date string, parts ...*gmailapi.MessagePart) *gmailapi.Message {
	payload := &gmailapi.MessagePart{
		MimeType: "multipart/mixed",
		Body:     &gmailapi.MessagePartBody{},
		Headers: []*gmailapi.MessagePartHeader{
			{Name: "Subject", Value: subject},
			{Name: "From", Value: "sender@example.com"},
			{Name: "Date", Value: date},
		},
		Parts: append([]*gmailapi.MessagePart{{
			MimeType: "text/plain",
			Body:     &gmailapi.MessagePartBody{Data: base64.URLEncoding.EncodeToString([]byte("body of " + subject))},
		}}, parts...),
	}
	return &gmailapi.Message{Id: id, Payload: payload}
}

type failingSink struct{ path string }

func (f failingSink) Append([]gmail.Record) (int, error) { return 0, errors.New("disk full") }
func (f failingSink) Path() string                        { return f.path }

type env struct {
	dir     string
	cursor  *cursor.Store
	records *sink.CSV
	stats   *sink.Stats
	now     time.Time
}

func newEnv(t *testing.T) *env {
	dir := t.TempDir()
	return &env{
		dir:     dir,
		cursor:  cursor.NewStore(filepath.Join(dir, "last_run.json")),
		records: sink.NewCSV(filepath.Join(dir, "emails.csv")),
		stats:   sink.NewStats(filepath.Join(dir, "job_stats.xlsx")),
		now:     time.Date(2024, time.March, 20, 9, 0, 0, 0, time.UTC),
	}
}

func (e *env) runner(src MessageSource, prefs query.Preferences) *Runner {
	if prefs.MaxResults == 0 {
		prefs.MaxResults = 100
	}
	r := NewRunner(Config{
		Preferences:   prefs,
		Incremental:   true,
		AttachmentDir: filepath.Join(e.dir, "attachments"),
	}, src, e.cursor, e.records, e.stats, log.New(io.Discard))
	r.now = func() time.Time { return e.now }
	return r
}

func (e *env) statsRows(t *testing.T) [][]string {
	t.Helper()
	rows, err := e.stats.Rows()
	if err != nil {
		t.Fatal(err)
	}
	return rows
}

func TestRunNoMessages(t *testing.T) {
	e := newEnv(t)
	res := e.runner(&fakeSource{}, query.Preferences{}).Run(context.Background())

	if res.Status != StatusCompleted || res.Processed != 0 {
		t.Errorf("result = %+v", res)
	}
	if res.Query != "after:2024/03/01 before:2024/03/31" {
		t.Errorf("query = %q", res.Query)
	}
	if _, err := os.Stat(e.records.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("output table should not be written, stat err = %v", err)
	}
	if _, err := os.Stat(e.cursor.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("cursor should not be written, stat err = %v", err)
	}

	rows := e.statsRows(t)
	if len(rows) != 2 {
		t.Fatalf("expected header + 1 stats row, got %d", len(rows))
	}
	if rows[1][4] != "0" || rows[1][7] != "Completed" {
		t.Errorf("stats row = %q", rows[1])
	}
}

func TestRunListErrorCounts(t *testing.T) {
	e := newEnv(t)
	res := e.runner(&fakeSource{listErr: errors.New("503")}, query.Preferences{}).Run(context.Background())

	if res.Status != StatusPartial || res.Errors != 1 || res.Err != nil {
		t.Errorf("result = %+v", res)
	}
	rows := e.statsRows(t)
	if len(rows) != 2 || rows[1][7] != "Completed with errors" || rows[1][5] != "1" {
		t.Errorf("stats rows = %q", rows)
	}
}

func TestRunSkipsFailedMessages(t *testing.T) {
	e := newEnv(t)
	src := &fakeSource{
		ids: []string{"a", "b", "c"},
		messages: map[string]*gmailapi.Message{
			"a": message("a", "first", "Mon, 04 Mar 2024 10:00:00 +0000"),
			"c": message("c", "third", "Tue, 12 Mar 2024 08:00:00 +0000"),
		},
		getErr: map[string]error{"b": errors.New("not found")},
	}

	res := e.runner(src, query.Preferences{}).Run(context.Background())
	if res.Processed != 2 || res.Errors != 1 || res.Status != StatusPartial {
		t.Errorf("result = %+v", res)
	}
	rows, err := e.records.Rows()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Errorf("rows = %d, want 2", len(rows))
	}
	if got, _ := e.cursor.Load(); got != "2024/03/12" {
		t.Errorf("cursor = %q, want 2024/03/12", got)
	}
}

func TestRunUnparseableDateKeepsRow(t *testing.T) {
	e := newEnv(t)
	src := &fakeSource{
		ids: []string{"a", "b"},
		messages: map[string]*gmailapi.Message{
			"a": message("a", "ok", "Fri, 08 Mar 2024 10:00:00 +0000"),
			"b": message("b", "odd", "Sat, 9 Mar 2024 10:00:00 +0000"),
		},
	}

	res := e.runner(src, query.Preferences{}).Run(context.Background())
	if res.Status != StatusCompleted || res.Processed != 2 {
		t.Errorf("result = %+v", res)
	}
	rows, _ := e.records.Rows()
	if len(rows) != 2 {
		t.Errorf("rows = %d, want 2", len(rows))
	}
	if got, _ := e.cursor.Load(); got != "2024/03/08" {
		t.Errorf("cursor = %q, want 2024/03/08", got)
	}
}

func TestRunNoParseableDatesLeavesCursor(t *testing.T) {
	e := newEnv(t)
	if err := e.cursor.Save("2024/03/01"); err != nil {
		t.Fatal(err)
	}
	src := &fakeSource{
		ids:      []string{"a"},
		messages: map[string]*gmailapi.Message{"a": message("a", "odd", "garbage")},
	}

	e.runner(src, query.Preferences{}).Run(context.Background())
	if got, _ := e.cursor.Load(); got != "2024/03/01" {
		t.Errorf("cursor = %q, want unchanged 2024/03/01", got)
	}
	if rows, _ := e.records.Rows(); len(rows) != 1 {
		t.Errorf("rows = %d, want 1", len(rows))
	}
}

func TestRunTwiceDeduplicatesAndUsesCursor(t *testing.T) {
	e := newEnv(t)
	shared := message("s", "shared", "Wed, 06 Mar 2024 10:00:00 +0000")
	src := &fakeSource{
		ids: []string{"x", "s"},
		messages: map[string]*gmailapi.Message{
			"x": message("x", "older", "Mon, 04 Mar 2024 10:00:00 +0000"),
			"s": shared,
			"y": message("y", "newer", "Thu, 07 Mar 2024 10:00:00 +0000"),
		},
	}
	prefs := query.Preferences{From: "sender@example.com", AfterDate: "2024/01/01", BeforeDate: "2024/12/31"}

	first := e.runner(src, prefs).Run(context.Background())
	if first.Cursor != "2024/03/06" {
		t.Fatalf("first cursor = %q", first.Cursor)
	}

	src.ids = []string{"s", "y"}
	second := e.runner(src, prefs).Run(context.Background())
	if second.NewRows != 1 {
		t.Errorf("second run new rows = %d, want 1", second.NewRows)
	}
	if want := "from:sender@example.com after:2024/03/06 before:2024/12/31"; src.queries[1] != want {
		t.Errorf("second query = %q, want %q", src.queries[1], want)
	}

	rows, _ := e.records.Rows()
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	n := 0
	for _, r := range rows {
		if r[0] == "shared" {
			n++
		}
	}
	if n != 1 {
		t.Errorf("shared row appears %d times", n)
	}
	if got, _ := e.cursor.Load(); got != "2024/03/07" {
		t.Errorf("cursor = %q, want 2024/03/07", got)
	}
	if rows := e.statsRows(t); len(rows) != 3 {
		t.Errorf("stats rows = %d, want header + 2", len(rows))
	}
}

func TestRunTwiceSameCRLFMessageStoredOnce(t *testing.T) {
	e := newEnv(t)
	msg := message("c", "crlf", "Wed, 06 Mar 2024 10:00:00 +0000")
	msg.Payload.Parts[0].Body.Data = base64.URLEncoding.EncodeToString([]byte("line1\r\nline2\r\n"))
	src := &fakeSource{ids: []string{"c"}, messages: map[string]*gmailapi.Message{"c": msg}}

	first := e.runner(src, query.Preferences{}).Run(context.Background())
	if first.NewRows != 1 {
		t.Fatalf("first run new rows = %d, want 1", first.NewRows)
	}
	second := e.runner(src, query.Preferences{}).Run(context.Background())
	if second.NewRows != 0 {
		t.Errorf("second run new rows = %d, want 0", second.NewRows)
	}
	if second.Status != StatusCompleted {
		t.Errorf("second status = %v", second.Status)
	}

	rows, _ := e.records.Rows()
	if len(rows) != 1 {
		t.Errorf("rows = %d, want 1", len(rows))
	}
}

func TestRunCursorNeverMovesBack(t *testing.T) {
	e := newEnv(t)
	if err := e.cursor.Save("2024/03/15"); err != nil {
		t.Fatal(err)
	}
	src := &fakeSource{
		ids:      []string{"a"},
		messages: map[string]*gmailapi.Message{"a": message("a", "late arrival", "Sun, 10 Mar 2024 10:00:00 +0000")},
	}
	res := e.runner(src, query.Preferences{}).Run(context.Background())
	if res.Cursor != "2024/03/15" {
		t.Errorf("result cursor = %q", res.Cursor)
	}
	if got, _ := e.cursor.Load(); got != "2024/03/15" {
		t.Errorf("cursor = %q, want 2024/03/15", got)
	}
}

func TestRunSavesAttachments(t *testing.T) {
	e := newEnv(t)
	pdf := &gmailapi.MessagePart{
		MimeType: "application/pdf",
		Filename: "../../invoice.pdf",
		Body:     &gmailapi.MessagePartBody{AttachmentId: "att-1"},
	}
	broken := &gmailapi.MessagePart{
		MimeType: "image/png",
		Filename: "logo.png",
		Body:     &gmailapi.MessagePartBody{AttachmentId: "att-2"},
	}
	src := &fakeSource{
		ids:         []string{"a"},
		messages:    map[string]*gmailapi.Message{"a": message("a", "with files", "Mon, 18 Mar 2024 10:00:00 +0000", pdf, broken)},
		attachments: map[string][]byte{"att-1": []byte("%PDF-1.7")},
		attErr:      map[string]error{"att-2": errors.New("gone")},
	}

	attDir := filepath.Join(e.dir, "attachments")
	if err := os.MkdirAll(attDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(attDir, "invoice.pdf"), []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := e.runner(src, query.Preferences{HasAttachment: true}).Run(context.Background())
	if res.Processed != 1 || res.Errors != 1 || res.Status != StatusPartial {
		t.Errorf("result = %+v", res)
	}

	data, err := os.ReadFile(filepath.Join(attDir, "invoice.pdf"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "%PDF-1.7" {
		t.Errorf("attachment not overwritten: %q", data)
	}

	rows, _ := e.records.Rows()
	if len(rows) != 1 {
		t.Fatalf("rows = %d", len(rows))
	}
	if !strings.Contains(rows[0][4], "invoice.pdf") || strings.Contains(rows[0][4], "logo.png") {
		t.Errorf("attachments column = %q", rows[0][4])
	}
	if !strings.HasPrefix(res.Query, "has:attachment ") {
		t.Errorf("query = %q", res.Query)
	}
}

func TestRunSinkFailureIsFatal(t *testing.T) {
	e := newEnv(t)
	src := &fakeSource{
		ids:      []string{"a"},
		messages: map[string]*gmailapi.Message{"a": message("a", "x", "Mon, 18 Mar 2024 10:00:00 +0000")},
	}
	r := NewRunner(Config{Incremental: true, AttachmentDir: e.dir, Preferences: query.Preferences{MaxResults: 10}},
		src, e.cursor, failingSink{path: "broken.csv"}, e.stats, log.New(io.Discard))

	res := r.Run(context.Background())
	if res.Status != StatusFailed || res.Err == nil {
		t.Errorf("result = %+v", res)
	}
	if _, err := os.Stat(e.cursor.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Error("cursor must not advance when the sink fails")
	}
	rows := e.statsRows(t)
	if len(rows) != 2 || rows[1][7] != "Failed" || rows[1][6] != "broken.csv" {
		t.Errorf("stats rows = %q", rows)
	}
}

func TestRunRecoversFromPanic(t *testing.T) {
	e := newEnv(t)
	src := &fakeSource{ids: []string{"a"}, panicOnGet: true}

	res := e.runner(src, query.Preferences{}).Run(context.Background())
	if res.Status != StatusFailed || res.Err == nil || !strings.Contains(res.Err.Error(), "source exploded") {
		t.Errorf("result = %+v", res)
	}
	if rows := e.statsRows(t); len(rows) != 2 {
		t.Errorf("stats rows = %d, want header + 1", len(rows))
	}
}

func TestRunMaxResultsPassedToSource(t *testing.T) {
	e := newEnv(t)
	src := &fakeSource{
		ids: []string{"a", "b", "c"},
		messages: map[string]*gmailapi.Message{
			"a": message("a", "1", "Mon, 04 Mar 2024 10:00:00 +0000"),
			"b": message("b", "2", "Mon, 04 Mar 2024 10:00:00 +0000"),
			"c": message("c", "3", "Mon, 04 Mar 2024 10:00:00 +0000"),
		},
	}
	res := e.runner(src, query.Preferences{MaxResults: 2}).Run(context.Background())
	if res.Processed != 2 {
		t.Errorf("processed = %d, want 2", res.Processed)
	}
}

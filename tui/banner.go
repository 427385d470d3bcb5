// Package tui renders the console lines printed by the long-running process.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bassamadnan/gmail-ingest/ingest"
)

// BannerInfo is shown when the scheduler starts.
type BannerInfo struct {
	ConfigPath string
	Schedule   string
	Next       time.Time
	Output     string
	Mode       string
}

func StartBanner(info BannerInfo) string {
	lines := []string{
		TitleStyle.Render("Smart scheduler started in background..."),
		"",
		field("Config", info.ConfigPath),
		field("Schedule", info.Schedule),
		field("Next run", formatTime(info.Next)),
		field("Output", info.Output),
		field("Mode", info.Mode),
	}
	return BannerBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func StopBanner() string {
	return TitleStyle.Render("Smart scheduler stopped.")
}

// RunSummary is a single line describing a finished run.
func RunSummary(res ingest.Result) string {
	var badge lipgloss.Style
	switch res.Status {
	case ingest.StatusCompleted:
		badge = StatusSuccessStyle
	case ingest.StatusPartial:
		badge = StatusWarnStyle
	default:
		badge = StatusErrorStyle
	}

	details := []string{
		fmt.Sprintf("processed %d", res.Processed),
		fmt.Sprintf("errors %d", res.Errors),
		fmt.Sprintf("new rows %d", res.NewRows),
	}
	if res.Cursor != "" {
		details = append(details, "cursor "+res.Cursor)
	}
	details = append(details, "took "+res.Duration().Round(time.Millisecond).String())

	line := badge.Render(res.Status.String()) + " " + strings.Join(details, " | ")
	if res.Query != "" {
		line += "\n" + SecondaryTextStyle.Render("  query: "+truncate(res.Query, 100))
	}
	if res.Err != nil {
		line += "\n" + SecondaryTextStyle.Render("  error: "+res.Err.Error())
	}
	return line
}

func field(key, val string) string {
	if val == "" {
		val = "-"
	}
	return HeaderKeyStyle.Render(fmt.Sprintf("%-9s", key)) + " " + HeaderValStyle.Render(val)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "???"
	}
	return t.Local().Format("2006-01-02 15:04")
}

// truncate shortens a string to a max length, adding "..." if truncated.
// Lengths count runes, so multi-byte characters are never split.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 0 {
		return ""
	}
	if maxLen < 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

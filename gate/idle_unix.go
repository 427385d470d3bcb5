//go:build linux || freebsd || openbsd || netbsd

package gate

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// xprintidle reports X11 idle time via the xprintidle utility.
type xprintidle struct {
	command string
}

// NewIdleDetector returns the detector for this platform.
func NewIdleDetector() IdleDetector {
	return xprintidle{command: "xprintidle"}
}

func (x xprintidle) Idle(ctx context.Context) (time.Duration, error) {
	out, err := exec.CommandContext(ctx, x.command).Output()
	if err != nil {
		return 0, fmt.Errorf("running %s: %w", x.command, err)
	}
	return parseIdleMillis(string(out))
}

func parseIdleMillis(s string) (time.Duration, error) {
	ms, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing idle time %q: %w", s, err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

//go:build windows

package gate

import (
	"context"
	"time"

	"golang.org/x/sys/windows"
)

var procGetForegroundWindow = windows.NewLazySystemDLL("user32.dll").NewProc("GetForegroundWindow")

// foregroundWindow treats the host as active while a foreground window
// exists and as idle indefinitely when none does (locked or asleep).
type foregroundWindow struct{}

// NewIdleDetector returns the detector for this platform.
func NewIdleDetector() IdleDetector {
	return foregroundWindow{}
}

func (foregroundWindow) Idle(ctx context.Context) (time.Duration, error) {
	if err := procGetForegroundWindow.Find(); err != nil {
		return 0, err
	}
	hwnd, _, _ := procGetForegroundWindow.Call()
	if hwnd != 0 {
		return 0, nil
	}
	return time.Duration(1<<63 - 1), nil
}

// Package gate decides whether the host is in a fit state to run a
// scheduled ingestion.
package gate

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
)

// Gate is one precondition checked before a scheduled run.
type Gate interface {
	Name() string
	// Check reports whether the run may proceed and, if not, why.
	Check(ctx context.Context) (ok bool, reason string)
}

// CheckAll evaluates gates in order and stops at the first failure.
func CheckAll(ctx context.Context, gates []Gate) (ok bool, failed string, reason string) {
	for _, g := range gates {
		if ok, reason := g.Check(ctx); !ok {
			return false, g.Name(), reason
		}
	}
	return true, "", ""
}

// Network passes when a TCP connection to Addr can be opened.
type Network struct {
	Addr    string
	Timeout time.Duration
}

func (n Network) Name() string { return "network" }

func (n Network) Check(ctx context.Context) (bool, string) {
	timeout := n.Timeout
	if timeout == 0 {
		timeout = 3 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", n.Addr)
	if err != nil {
		return false, "No internet connection."
	}
	conn.Close()
	return true, ""
}

// MemoryStats returns available and total physical memory in bytes.
type MemoryStats func(ctx context.Context) (available, total uint64, err error)

// SystemMemory reads memory figures from the OS.
func SystemMemory(ctx context.Context) (uint64, uint64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, 0, err
	}
	return vm.Available, vm.Total, nil
}

// Memory passes when more than MinFreePercent of memory is available.
type Memory struct {
	MinFreePercent float64
	Stats          MemoryStats
}

func (m Memory) Name() string { return "memory" }

func (m Memory) Check(ctx context.Context) (bool, string) {
	stats := m.Stats
	if stats == nil {
		stats = SystemMemory
	}
	available, total, err := stats(ctx)
	if err != nil {
		return false, fmt.Sprintf("Unable to read memory usage: %v", err)
	}
	if total == 0 {
		return false, "Unable to read memory usage: total memory reported as 0."
	}
	free := float64(available) * 100 / float64(total)
	if free > m.MinFreePercent {
		return true, ""
	}
	return false, fmt.Sprintf("Less than %v%% free RAM.", m.MinFreePercent)
}

// IdleDetector reports how long the host has gone without user input.
type IdleDetector interface {
	Idle(ctx context.Context) (time.Duration, error)
}

// Idle passes while the host has been idle for less than MaxIdle.
// Detection errors count as active.
type Idle struct {
	MaxIdle  time.Duration
	Detector IdleDetector
}

func (i Idle) Name() string { return "idle" }

func (i Idle) Check(ctx context.Context) (bool, string) {
	detector := i.Detector
	if detector == nil {
		detector = NewIdleDetector()
	}
	idle, err := detector.Idle(ctx)
	if err != nil {
		return true, ""
	}
	if idle < i.MaxIdle {
		return true, ""
	}
	return false, fmt.Sprintf("Host is idle > %v or locked.", i.MaxIdle)
}

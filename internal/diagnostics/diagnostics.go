// Package diagnostics captures a system snapshot when the capture tool
// observes sustained ring buffer pressure, to help explain why a consumer
// fell behind.
package diagnostics

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Snapshot returns a human-readable summary of system and Go runtime state.
// The CPU figure is the utilization since boot so the call never sleeps.
func Snapshot(reason string) string {
	var info strings.Builder

	info.WriteString(fmt.Sprintf("reason: %s\n", reason))

	if cpuPercent, err := cpu.Percent(0, false); err == nil && len(cpuPercent) > 0 {
		info.WriteString(fmt.Sprintf("cpu utilization: %.2f%%\n", cpuPercent[0]))
	}

	if vmStat, err := mem.VirtualMemory(); err == nil {
		info.WriteString(fmt.Sprintf("ram usage: %.2f%%\n", vmStat.UsedPercent))
	}

	if swapStat, err := mem.SwapMemory(); err == nil {
		info.WriteString(fmt.Sprintf("swap usage: %.2f%%\n", swapStat.UsedPercent))
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	info.WriteString(fmt.Sprintf("go runtime: alloc = %v MiB, sys = %v MiB, numgc = %v, goroutines = %d\n",
		bToMb(m.Alloc), bToMb(m.Sys), m.NumGC, runtime.NumGoroutine()))

	return info.String()
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}

// Package timeutil formats durations and timestamps for CLI output.
package timeutil

import (
	"fmt"
	"time"
)

// LocalTimeFormat is how timestamps are shown in tables.
const LocalTimeFormat = "Mon Jan 2 15:04:05 2006"

// Uptime renders d as "3d 0h 30m 15s", dropping leading zero units.
func Uptime(d time.Duration) string {
	d = d.Truncate(time.Second)
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

// Local renders t in local time, or "-" for the zero time.
func Local(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(LocalTimeFormat)
}

// Elapsed renders a sweep or writeback duration with millisecond precision.
func Elapsed(d time.Duration) string {
	if d < time.Millisecond {
		return d.String()
	}
	return d.Round(time.Millisecond).String()
}

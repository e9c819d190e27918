package logger

import (
	"log/slog"
	"strings"
	"time"
)

// Status is "fail" for a non-nil err and "ok" otherwise.
func Status(err error) string {
	if err != nil {
		return "fail"
	}
	return "ok"
}

// StatusAttr is the "status" attribute every summary line carries.
func StatusAttr(err error) slog.Attr {
	return slog.String("status", Status(err))
}

// Took returns the time elapsed since start, rounded to milliseconds.
func Took(start time.Time) time.Duration {
	return RoundMS(time.Since(start))
}

// TookAttr is the "duration" attribute for work that began at start.
func TookAttr(start time.Time) slog.Attr {
	return slog.Duration("duration", Took(start))
}

// RoundMS rounds d to the nearest millisecond; negative input yields zero.
func RoundMS(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d.Round(time.Millisecond)
}

// Preview joins the first limit values with ", " and returns how many were
// left out.
func Preview(values []string, limit int) (string, int) {
	if limit < 0 {
		limit = 0
	}
	if len(values) <= limit {
		return strings.Join(values, ", "), 0
	}
	return strings.Join(values[:limit], ", "), len(values) - limit
}

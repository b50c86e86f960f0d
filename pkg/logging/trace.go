package logging

import "log/slog"

// EnableTrace turns on per-item trace logs. Default is false; flip it
// by hand when chasing a specific pipeline run.
var EnableTrace = false

// Trace logs at DEBUG level, but only if EnableTrace is true. Call
// sites are the per-request and per-row hot loops, which would swamp
// the log at Debug proper.
func Trace(msg string, args ...any) {
	if EnableTrace {
		slog.Debug(msg, args...)
	}
}

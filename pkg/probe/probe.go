// Package probe runs the startup checks. Critical failures stop the
// process before the scheduler starts; the rest only log, since the
// pipeline degrades rather than breaks without them.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// defaultTimeout bounds a single check when the probe does not set its
// own. Checks that hit the network want a larger one.
const defaultTimeout = 5 * time.Second

// Probe is one startup check.
type Probe struct {
	Name     string
	Check    func(ctx context.Context) error
	Critical bool
	// Timeout overrides defaultTimeout when positive.
	Timeout time.Duration
}

// Result is the outcome of one probe.
type Result struct {
	Probe    Probe
	Error    error
	Duration time.Duration
}

// Run executes the probes in order. Each check gets its own deadline so
// a hung dependency cannot stall startup indefinitely.
func Run(ctx context.Context, probes []Probe) []Result {
	results := make([]Result, len(probes))
	for i, p := range probes {
		timeout := p.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		checkCtx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		err := p.Check(checkCtx)
		cancel()
		results[i] = Result{Probe: p, Error: err, Duration: time.Since(start)}
	}
	return results
}

// AnalyzeResults logs every outcome and returns the critical failures
// joined into one error, nil when none failed.
func AnalyzeResults(results []Result) error {
	slog.Info("Startup Checks Summary")

	var critical []error
	for _, r := range results {
		line := fmt.Sprintf("[%s] %-20s (%v)", status(r), r.Probe.Name, r.Duration.Round(time.Millisecond))
		if r.Error == nil {
			slog.Info(line)
			continue
		}
		slog.Error(line, "error", r.Error)
		if r.Probe.Critical {
			critical = append(critical, fmt.Errorf("%s: %w", r.Probe.Name, r.Error))
		}
	}
	return errors.Join(critical...)
}

func status(r Result) string {
	if r.Error != nil {
		return "FAIL"
	}
	return "PASS"
}

// Package maintenance repairs state that only a restart invalidates.
// It runs once at boot, before the scheduler starts. The periodic
// sweeps (retry cooldowns, retention pruning) live with the pipeline;
// this is only what must not wait for the first scheduled pass.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"argusgo/pkg/config"
	"argusgo/pkg/db"
)

// QueueStore releases enrichment claims.
type QueueStore interface {
	ReleaseStuckClaims(ctx context.Context, olderThan time.Duration) (int, error)
}

// Run executes the boot repairs. The claim release must succeed; the
// sqlite housekeeping costs performance when skipped, not correctness,
// so its failures are logged and swallowed.
func Run(ctx context.Context, s QueueStore, d *db.DB, cfg *config.Config) error {
	slog.Info("Running startup maintenance...")

	// No enrichment worker survives a restart, so every claim in the
	// table is an orphan regardless of age.
	if n, err := s.ReleaseStuckClaims(ctx, 0); err != nil {
		return fmt.Errorf("claim release failed: %w", err)
	} else if n > 0 {
		slog.Warn("Released enrichment claims orphaned by restart", "count", n)
	}

	// Nothing else is writing yet; fold the WAL back and refresh the
	// planner statistics while it is cheap.
	if _, err := d.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE);"); err != nil {
		slog.Error("WAL checkpoint failed", "error", err)
	}
	if _, err := d.ExecContext(ctx, "ANALYZE;"); err != nil {
		slog.Error("ANALYZE failed", "error", err)
	}

	if retention := time.Duration(cfg.Maintenance.CacheRetention); retention > 0 {
		if err := d.PruneCache(retention); err != nil {
			slog.Error("Cache pruning failed", "error", err)
		}
	}

	return nil
}

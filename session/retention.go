package session

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"time"

	"github.com/onnwee/voice-archiver/db"
)

// StartRetentionJob periodically deletes completed audit rows older than the
// configured horizon. Env knobs:
//
//	SESSION_RETENTION_MAX_AGE  (default 24h)
//	SESSION_RETENTION_INTERVAL (default 10m)
func StartRetentionJob(ctx context.Context, dbc *sql.DB) {
	maxAge := 24 * time.Hour
	if v := os.Getenv("SESSION_RETENTION_MAX_AGE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			maxAge = d
		}
	}
	interval := 10 * time.Minute
	if v := os.Getenv("SESSION_RETENTION_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			interval = d
		}
	}

	slog.Info("session retention job starting",
		slog.Duration("max_age", maxAge),
		slog.Duration("interval", interval))

	prune := func() {
		n, err := db.PruneSessions(ctx, dbc, maxAge)
		if err != nil {
			slog.Warn("session retention prune failed", slog.Any("err", err))
			return
		}
		if n > 0 {
			slog.Info("pruned old recording sessions", slog.Int64("rows", n))
		}
	}

	prune()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("session retention job stopped")
			return
		case <-ticker.C:
			prune()
		}
	}
}

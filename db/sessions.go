package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// SessionRow is one recording-session audit record.
type SessionRow struct {
	ID           string     `json:"id"`
	GuildID      string     `json:"guild_id"`
	ChannelID    string     `json:"channel_id"`
	ChannelName  string     `json:"channel_name"`
	TargetUserID string     `json:"target_user_id"`
	StartedAt    time.Time  `json:"started_at"`
	StoppedAt    *time.Time `json:"stopped_at,omitempty"`
}

// SessionStore is the Postgres-backed audit store consumed by the session
// orchestrator.
type SessionStore struct {
	DB *sql.DB
}

// RecordStart opens an audit row for a new recording session. A start in a
// guild that still has an open row supersedes it: the stale row is closed
// first, so at most one open session exists per guild.
func (s *SessionStore) RecordStart(ctx context.Context, guildID, channelID, channelName, userID string) error {
	if _, err := s.DB.ExecContext(ctx,
		`UPDATE recording_sessions SET stopped_at=NOW() WHERE guild_id=$1 AND stopped_at IS NULL`, guildID); err != nil {
		return fmt.Errorf("close stale session: %w", err)
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO recording_sessions (id, guild_id, channel_id, channel_name, target_user_id, started_at)
		 VALUES ($1,$2,$3,$4,$5,NOW())`,
		uuid.New().String(), guildID, channelID, channelName, userID)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// RecordStop closes the open audit row for a guild, if any.
func (s *SessionStore) RecordStop(ctx context.Context, guildID string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE recording_sessions SET stopped_at=NOW() WHERE guild_id=$1 AND stopped_at IS NULL`, guildID)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

// ListOpenSessions returns sessions that have started but not stopped.
func ListOpenSessions(ctx context.Context, db *sql.DB) ([]SessionRow, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, guild_id, channel_id, COALESCE(channel_name,''), target_user_id, started_at
		 FROM recording_sessions WHERE stopped_at IS NULL ORDER BY started_at`)
	if err != nil {
		return nil, fmt.Errorf("query open sessions: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Warn("failed to close rows", slog.Any("err", err))
		}
	}()
	var out []SessionRow
	for rows.Next() {
		var r SessionRow
		if err := rows.Scan(&r.ID, &r.GuildID, &r.ChannelID, &r.ChannelName, &r.TargetUserID, &r.StartedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListRecentSessions returns the most recent sessions, open or closed.
func ListRecentSessions(ctx context.Context, db *sql.DB, limit int) ([]SessionRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx,
		`SELECT id, guild_id, channel_id, COALESCE(channel_name,''), target_user_id, started_at, stopped_at
		 FROM recording_sessions ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent sessions: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Warn("failed to close rows", slog.Any("err", err))
		}
	}()
	var out []SessionRow
	for rows.Next() {
		var r SessionRow
		if err := rows.Scan(&r.ID, &r.GuildID, &r.ChannelID, &r.ChannelName, &r.TargetUserID, &r.StartedAt, &r.StoppedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PruneSessions deletes completed sessions older than maxAge. Open sessions
// are never pruned.
func PruneSessions(ctx context.Context, db *sql.DB, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge)
	res, err := db.ExecContext(ctx,
		`DELETE FROM recording_sessions WHERE stopped_at IS NOT NULL AND started_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	return res.RowsAffected()
}

// Package archive persists delivered submissions for operator bookkeeping.
// It is optional: the bot runs fully in-memory when the archive database
// is disabled.
package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/requestbot/core/logger"
	"github.com/m3rciful/requestbot/delivery"
	"github.com/m3rciful/requestbot/session"

	"log/slog"
)

// Store writes delivered requests to the archive database.
type Store struct {
	db *sqlx.DB
}

// NewStore wraps an open archive database connection.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

const insertRequest = `
	INSERT INTO requests (user_id, display_name, handle, description, media_ref, tier, attachment_delivered, delivered_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// Save records a delivered submission and its delivery outcome.
func (s *Store) Save(ctx context.Context, rec session.Record, out delivery.Outcome) error {
	start := time.Now()
	_, err := s.db.ExecContext(ctx, insertRequest,
		rec.UserID,
		rec.DisplayName,
		rec.Handle,
		rec.Description,
		rec.MediaRef,
		int(out.Tier),
		out.AttachmentDelivered,
		time.Now().UTC(),
	)
	if err != nil {
		logger.DB.Error("archive insert failed",
			slog.String("event", "archive.save"),
			slog.String("status", "fail"),
			slog.Int64("user_id", rec.UserID),
			slog.Duration("duration", logger.Took(start)),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("archive insert: %w", err)
	}

	logger.DB.Debug("request archived",
		slog.String("event", "archive.save"),
		slog.String("status", "ok"),
		slog.Int64("user_id", rec.UserID),
		slog.String("tier", out.Tier.String()),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}

// Stats summarizes archived requests for the operator /stats command.
type Stats struct {
	Total    int `db:"total"`
	Degraded int `db:"degraded"`
	Last24h  int `db:"last_24h"`
}

const selectStats = `
	SELECT
		COUNT(*) AS total,
		COUNT(*) FILTER (WHERE NOT attachment_delivered) AS degraded,
		COUNT(*) FILTER (WHERE delivered_at > NOW() - INTERVAL '24 hours') AS last_24h
	FROM requests`

// LoadStats aggregates archive counters.
func (s *Store) LoadStats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.db.GetContext(ctx, &st, selectStats); err != nil {
		return Stats{}, fmt.Errorf("archive stats: %w", err)
	}
	return st, nil
}

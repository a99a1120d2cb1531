package repository

import (
	"context"
	"database/sql"
	"fmt"

	"aquarium-monitor/internal/models"

	"go.uber.org/zap"
)

// FeedHistoryRepository feed_history table
type FeedHistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewFeedHistoryRepository creates the repository
func NewFeedHistoryRepository(db *sql.DB, logger *zap.Logger) *FeedHistoryRepository {
	return &FeedHistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Insert stores one entry; re-inserting the same id is ignored
func (r *FeedHistoryRepository) Insert(ctx context.Context, e models.FeedHistoryEntry) error {
	if e.ID == "" {
		return fmt.Errorf("id is required")
	}
	if e.DeviceID == "" {
		return fmt.Errorf("device_id is required")
	}

	query := `
		INSERT INTO feed_history (id, device_id, fed_at, amount, feed_type, success, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`

	var errText sql.NullString
	if e.Error != "" {
		errText = sql.NullString{String: e.Error, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.DeviceID, e.Timestamp, e.Amount, string(e.Type), e.Success, errText,
	)
	if err != nil {
		return fmt.Errorf("failed to insert feed history: %w", err)
	}

	r.logger.Debug("Inserted feed history",
		zap.String("id", e.ID),
		zap.String("device_id", e.DeviceID),
	)
	return nil
}

// RecordFeed implements feeder.HistoryRecorder
func (r *FeedHistoryRepository) RecordFeed(ctx context.Context, e models.FeedHistoryEntry) error {
	return r.Insert(ctx, e)
}

// ListRecent newest first
func (r *FeedHistoryRepository) ListRecent(ctx context.Context, deviceID string, limit int) ([]models.FeedHistoryEntry, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `
		SELECT id, device_id, fed_at, amount, feed_type, success, error
		FROM feed_history
		WHERE device_id = $1
		ORDER BY fed_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query feed history: %w", err)
	}
	defer rows.Close()

	entries := []models.FeedHistoryEntry{}
	for rows.Next() {
		var (
			e        models.FeedHistoryEntry
			feedType string
			errText  sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.DeviceID, &e.Timestamp, &e.Amount, &feedType, &e.Success, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan feed history: %w", err)
		}
		e.Type = models.FeedType(feedType)
		if errText.Valid {
			e.Error = errText.String
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate feed history: %w", err)
	}
	return entries, nil
}

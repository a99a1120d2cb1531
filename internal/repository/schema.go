package repository

import (
	"context"
	"database/sql"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS feed_history (
		id         UUID PRIMARY KEY,
		device_id  TEXT NOT NULL,
		fed_at     TIMESTAMPTZ NOT NULL,
		amount     DOUBLE PRECISION NOT NULL,
		feed_type  TEXT NOT NULL,
		success    BOOLEAN NOT NULL,
		error      TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_feed_history_device_fed_at ON feed_history (device_id, fed_at DESC)`,
	`CREATE TABLE IF NOT EXISTS sensor_readings (
		device_id      TEXT NOT NULL,
		recorded_at    TIMESTAMPTZ NOT NULL,
		temperature    DOUBLE PRECISION,
		ph             DOUBLE PRECISION,
		turbidity      DOUBLE PRECISION,
		ammonia        DOUBLE PRECISION,
		uv             DOUBLE PRECISION,
		water_level    INTEGER,
		water_level_cm DOUBLE PRECISION,
		food_empty     BOOLEAN,
		PRIMARY KEY (device_id, recorded_at)
	)`,
}

// EnsureSchema creates the tables when missing
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"aquarium-monitor/internal/common/config"

	_ "github.com/lib/pq"
)

// NewPostgresDB opens a lib/pq pool sized from cfg and pings it
func NewPostgresDB(ctx context.Context, cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database %s@%s:%d: %w", cfg.Database, cfg.Host, cfg.Port, err)
	}
	return db, nil
}

// Close closes db if not nil
func Close(db *sql.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}

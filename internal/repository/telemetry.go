package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"aquarium-monitor/internal/models"

	"go.uber.org/zap"
)

// TelemetryRepository sensor_readings table
type TelemetryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTelemetryRepository creates the repository
func NewTelemetryRepository(db *sql.DB, logger *zap.Logger) *TelemetryRepository {
	return &TelemetryRepository{
		db:     db,
		logger: logger,
	}
}

// Insert stores one reading; duplicates of (device_id, recorded_at) are ignored
func (r *TelemetryRepository) Insert(ctx context.Context, reading models.SensorReading) error {
	if reading.DeviceID == "" {
		return fmt.Errorf("device_id is required")
	}

	query := `
		INSERT INTO sensor_readings (
			device_id, recorded_at, temperature, ph, turbidity, ammonia,
			uv, water_level, water_level_cm, food_empty
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (device_id, recorded_at) DO NOTHING
	`

	s := reading.Sensors
	_, err := r.db.ExecContext(ctx, query,
		reading.DeviceID, reading.RecordedAt,
		s.Temperature, s.PH, s.Turbidity, s.Ammonia,
		s.UV, s.WaterLevel, s.WaterLevelCm, s.FoodEmpty,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sensor reading: %w", err)
	}
	return nil
}

// RecordTelemetry implements monitor.TelemetrySink
func (r *TelemetryRepository) RecordTelemetry(ctx context.Context, deviceID string, sensors models.Sensors, at time.Time) error {
	return r.Insert(ctx, models.SensorReading{DeviceID: deviceID, RecordedAt: at, Sensors: sensors})
}

// ListSince readings at or after since, oldest first
func (r *TelemetryRepository) ListSince(ctx context.Context, deviceID string, since time.Time, limit int) ([]models.SensorReading, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}
	if limit <= 0 || limit > 10000 {
		limit = 1000
	}

	query := `
		SELECT device_id, recorded_at, temperature, ph, turbidity, ammonia,
		       uv, water_level, water_level_cm, food_empty
		FROM sensor_readings
		WHERE device_id = $1 AND recorded_at >= $2
		ORDER BY recorded_at ASC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, deviceID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sensor readings: %w", err)
	}
	defer rows.Close()

	readings := []models.SensorReading{}
	for rows.Next() {
		var rd models.SensorReading
		s := &rd.Sensors
		if err := rows.Scan(
			&rd.DeviceID, &rd.RecordedAt,
			&s.Temperature, &s.PH, &s.Turbidity, &s.Ammonia,
			&s.UV, &s.WaterLevel, &s.WaterLevelCm, &s.FoodEmpty,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sensor reading: %w", err)
		}
		readings = append(readings, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sensor readings: %w", err)
	}

	r.logger.Debug("Listed sensor readings",
		zap.String("device_id", deviceID),
		zap.Int("count", len(readings)),
	)
	return readings, nil
}

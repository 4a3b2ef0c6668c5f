// Package store appends every decoded measurement to an SQLite log and
// serves per-device history.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/uwave/internal/registry"
	_ "modernc.org/sqlite"
)

// DefaultHistoryLimit caps History when limit <= 0.
const DefaultHistoryLimit = 100

// Measurement is one logged reading.
type Measurement struct {
	DeviceID     string    `json:"device_id"`
	Name         string    `json:"name"`
	Value        float64   `json:"value"`
	BatteryLevel *int      `json:"battery_level"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// Store is a measurement log backed by a single SQLite connection.
type Store struct {
	db     *sql.DB
	logger *logrus.Logger
}

// Open opens (or creates) the database at path and applies the schema.
// ":memory:" is accepted for tests.
func Open(ctx context.Context, path string, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	s := &Store{db: db, logger: logger}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	statements := []string{
		`PRAGMA journal_mode = WAL;`,
		`CREATE TABLE IF NOT EXISTS measurements (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device_id TEXT NOT NULL,
			name TEXT NOT NULL,
			value REAL NOT NULL,
			battery INTEGER,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_measurements_device ON measurements(device_id, recorded_at);`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate failed: %w", err)
		}
	}
	return nil
}

// Append logs one measurement.
func (s *Store) Append(ctx context.Context, m Measurement) error {
	var battery any
	if m.BatteryLevel != nil {
		battery = *m.BatteryLevel
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO measurements (device_id, name, value, battery, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		m.DeviceID, m.Name, m.Value, battery, m.RecordedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append measurement for %s: %w", m.DeviceID, err)
	}
	return nil
}

// History returns the newest measurements for a device, newest first.
func (s *Store) History(ctx context.Context, deviceID string, limit int) ([]Measurement, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT device_id, name, value, battery, recorded_at FROM measurements
		 WHERE device_id = ? ORDER BY id DESC LIMIT ?`, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history for %s: %w", deviceID, err)
	}
	defer rows.Close()

	out := []Measurement{}
	for rows.Next() {
		var (
			m        Measurement
			battery  sql.NullInt64
			recorded string
		)
		if err := rows.Scan(&m.DeviceID, &m.Name, &m.Value, &battery, &recorded); err != nil {
			return nil, err
		}
		if battery.Valid {
			v := int(battery.Int64)
			m.BatteryLevel = &v
		}
		if t, err := time.Parse(time.RFC3339Nano, recorded); err == nil {
			m.RecordedAt = t.UTC()
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// HandleEvent logs measured registry updates. Write errors are logged.
func (s *Store) HandleEvent(ev registry.Event) {
	if ev.Type != registry.Updated || !ev.Measured || ev.Record.Measurement == nil {
		return
	}
	m := Measurement{
		DeviceID:     ev.Record.ID,
		Name:         ev.Record.Name,
		Value:        *ev.Record.Measurement,
		BatteryLevel: ev.Record.BatteryLevel,
		RecordedAt:   ev.Record.UpdatedAt,
	}
	if err := s.Append(context.Background(), m); err != nil {
		s.logger.WithFields(logrus.Fields{
			"device_id": m.DeviceID,
			"error":     err,
		}).Warn("Failed to log measurement")
	}
}

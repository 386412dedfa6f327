// Package lidardb archives encoded fog-lidar measurements in sqlite.
//
// Each step's measurement buffer is stored compressed next to the xxhash64
// of its raw bytes, grouped under a recording session. Loading a
// measurement decompresses it and verifies the checksum before returning
// the buffer.
package lidardb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/idslab-autosec/AutoSVT-carla/internal/lidar/measurement"
	"github.com/idslab-autosec/AutoSVT-carla/internal/monitoring"
)

var (
	// ErrNotFound is returned when a session or measurement does not exist.
	ErrNotFound = errors.New("lidardb: not found")
	// ErrChecksumMismatch is returned when a stored payload no longer
	// matches the checksum recorded with it.
	ErrChecksumMismatch = errors.New("lidardb: checksum mismatch")
)

// LidarDB is an open measurement archive. The embedded *sql.DB is exposed
// for ad-hoc queries.
type LidarDB struct {
	*sql.DB
	compression Compression
}

// Option configures Open.
type Option func(*LidarDB)

// WithCompression sets the codec used by RecordMeasurement.
func WithCompression(c Compression) Option {
	return func(ldb *LidarDB) { ldb.compression = c }
}

// Open opens (or creates) the archive at path and migrates it to the
// latest schema.
func Open(path string, opts ...Option) (*LidarDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	ldb := &LidarDB{DB: db, compression: CompressionZstd}
	for _, opt := range opts {
		opt(ldb)
	}
	if ldb.compression > CompressionLZ4 {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnknownCompression, ldb.compression)
	}

	if err := ldb.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}

	version, dirty, err := ldb.MigrateVersion()
	if err != nil {
		monitoring.Logf("[lidardb] opened %s (compression %s), schema version unavailable: %v", path, ldb.compression, err)
		return ldb, nil
	}
	monitoring.Logf("[lidardb] opened %s (schema v%d, dirty=%v, compression %s)", path, version, dirty, ldb.compression)
	return ldb, nil
}

// Compression returns the codec new measurements are written with.
func (ldb *LidarDB) Compression() Compression { return ldb.compression }

// Session is one recording run of a sensor.
type Session struct {
	ID               string   `json:"session_id"`
	SensorID         string   `json:"sensor_id"`
	StartTimestamp   float64  `json:"start_timestamp"`
	EndTimestamp     *float64 `json:"end_timestamp,omitempty"`
	MeasurementCount int      `json:"measurement_count"`
	PointsCount      int64    `json:"points_count"`
	Notes            string   `json:"session_notes"`
}

// StartSession creates a session and returns its generated ID.
func (ldb *LidarDB) StartSession(ctx context.Context, sensorID, notes string) (string, error) {
	id := uuid.NewString()
	_, err := ldb.ExecContext(ctx, `
		INSERT INTO fog_sessions (session_id, sensor_id, session_notes)
		VALUES (?, ?, ?)
	`, id, sensorID, notes)
	if err != nil {
		return "", fmt.Errorf("failed to start session: %w", err)
	}
	return id, nil
}

// EndSession stamps the session end time and its measurement statistics.
func (ldb *LidarDB) EndSession(ctx context.Context, sessionID string) error {
	res, err := ldb.ExecContext(ctx, `
		UPDATE fog_sessions
		SET
			end_timestamp = UNIXEPOCH('subsec'),
			measurement_count = (
				SELECT COUNT(*) FROM fog_measurements WHERE session_id = ?
			),
			points_count = (
				SELECT COALESCE(SUM(point_count), 0) FROM fog_measurements WHERE session_id = ?
			)
		WHERE session_id = ?
	`, sessionID, sessionID, sessionID)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}
	return nil
}

// GetSession returns one session.
func (ldb *LidarDB) GetSession(ctx context.Context, sessionID string) (Session, error) {
	var s Session
	var end sql.NullFloat64
	err := ldb.QueryRowContext(ctx, `
		SELECT session_id, sensor_id, start_timestamp, end_timestamp,
		       measurement_count, points_count, session_notes
		FROM fog_sessions WHERE session_id = ?
	`, sessionID).Scan(&s.ID, &s.SensorID, &s.StartTimestamp, &end, &s.MeasurementCount, &s.PointsCount, &s.Notes)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return Session{}, fmt.Errorf("failed to query session: %w", err)
	}
	if end.Valid {
		s.EndTimestamp = &end.Float64
	}
	return s, nil
}

// ListSessions returns sessions newest first, optionally limited to one sensor.
func (ldb *LidarDB) ListSessions(ctx context.Context, sensorID string) ([]Session, error) {
	rows, err := ldb.QueryContext(ctx, `
		SELECT session_id, sensor_id, start_timestamp, end_timestamp,
		       measurement_count, points_count, session_notes
		FROM fog_sessions
		WHERE ? = '' OR sensor_id = ?
		ORDER BY start_timestamp DESC, rowid DESC
	`, sensorID, sensorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		var end sql.NullFloat64
		if err := rows.Scan(&s.ID, &s.SensorID, &s.StartTimestamp, &end, &s.MeasurementCount, &s.PointsCount, &s.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		if end.Valid {
			v := end.Float64
			s.EndTimestamp = &v
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// MeasurementMeta describes one archived step. Step, FogDensity and MOR are
// supplied by the caller; the rest is derived from the buffer on record.
type MeasurementMeta struct {
	SessionID       string      `json:"session_id"`
	Step            uint64      `json:"step"`
	WriteTimestamp  float64     `json:"write_timestamp"`
	FogDensity      float64     `json:"fog_density"`
	MOR             float64     `json:"mor"`
	HorizontalAngle float32     `json:"horizontal_angle"`
	ChannelCount    int         `json:"channel_count"`
	PointCount      int         `json:"point_count"`
	Compression     Compression `json:"compression"`
	RawSize         int         `json:"raw_size"`
	StoredSize      int         `json:"stored_size"`
	Checksum        uint64      `json:"checksum"`
}

// RecordMeasurement validates buf as a measurement, compresses it and stores
// it under (sessionID, meta.Step). The completed metadata is returned.
func (ldb *LidarDB) RecordMeasurement(ctx context.Context, sessionID string, meta MeasurementMeta, buf []byte) (MeasurementMeta, error) {
	m, err := measurement.Decode(buf)
	if err != nil {
		return MeasurementMeta{}, fmt.Errorf("refusing to archive step %d: %w", meta.Step, err)
	}

	payload, applied, err := compress(ldb.compression, buf)
	if err != nil {
		return MeasurementMeta{}, err
	}

	meta.SessionID = sessionID
	meta.HorizontalAngle = m.HorizontalAngle()
	meta.ChannelCount = m.ChannelCount()
	meta.PointCount = m.Len()
	meta.Compression = applied
	meta.RawSize = len(buf)
	meta.StoredSize = len(payload)
	meta.Checksum = xxhash.Sum64(buf)

	tx, err := ldb.BeginTx(ctx, nil)
	if err != nil {
		return MeasurementMeta{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM fog_sessions WHERE session_id = ?`, sessionID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return MeasurementMeta{}, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return MeasurementMeta{}, fmt.Errorf("failed to look up session: %w", err)
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO fog_measurements (
			session_id, step, fog_density, mor, horizontal_angle,
			channel_count, point_count, compression, raw_size, checksum, payload
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING write_timestamp
	`,
		sessionID, int64(meta.Step), meta.FogDensity, meta.MOR, float64(meta.HorizontalAngle),
		meta.ChannelCount, meta.PointCount, applied.String(), meta.RawSize, int64(meta.Checksum), payload,
	).Scan(&meta.WriteTimestamp)
	if err != nil {
		return MeasurementMeta{}, fmt.Errorf("failed to insert measurement %d: %w", meta.Step, err)
	}

	if err := tx.Commit(); err != nil {
		return MeasurementMeta{}, fmt.Errorf("failed to commit measurement %d: %w", meta.Step, err)
	}
	return meta, nil
}

// LoadMeasurement returns the raw measurement buffer of one step.
func (ldb *LidarDB) LoadMeasurement(ctx context.Context, sessionID string, step uint64) ([]byte, error) {
	var (
		codec    string
		rawSize  int
		checksum int64
		payload  []byte
	)
	err := ldb.QueryRowContext(ctx, `
		SELECT compression, raw_size, checksum, payload
		FROM fog_measurements
		WHERE session_id = ? AND step = ?
	`, sessionID, int64(step)).Scan(&codec, &rawSize, &checksum, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: session %s step %d", ErrNotFound, sessionID, step)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query measurement: %w", err)
	}

	c, err := ParseCompression(codec)
	if err != nil {
		return nil, err
	}
	raw, err := decompress(c, payload, rawSize)
	if err != nil {
		return nil, fmt.Errorf("session %s step %d: %w", sessionID, step, err)
	}
	if len(raw) != rawSize || xxhash.Sum64(raw) != uint64(checksum) {
		return nil, fmt.Errorf("%w: session %s step %d", ErrChecksumMismatch, sessionID, step)
	}
	return raw, nil
}

// ListMeasurements returns the metadata of every step in a session in step
// order.
func (ldb *LidarDB) ListMeasurements(ctx context.Context, sessionID string) ([]MeasurementMeta, error) {
	rows, err := ldb.QueryContext(ctx, `
		SELECT step, write_timestamp, fog_density, mor, horizontal_angle,
		       channel_count, point_count, compression, raw_size, LENGTH(payload), checksum
		FROM fog_measurements
		WHERE session_id = ?
		ORDER BY step
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query measurements: %w", err)
	}
	defer rows.Close()

	var metas []MeasurementMeta
	for rows.Next() {
		var (
			m        MeasurementMeta
			step     int64
			angle    float64
			codec    string
			checksum int64
		)
		if err := rows.Scan(&step, &m.WriteTimestamp, &m.FogDensity, &m.MOR, &angle,
			&m.ChannelCount, &m.PointCount, &codec, &m.RawSize, &m.StoredSize, &checksum); err != nil {
			return nil, fmt.Errorf("failed to scan measurement row: %w", err)
		}
		if m.Compression, err = ParseCompression(codec); err != nil {
			return nil, err
		}
		m.SessionID = sessionID
		m.Step = uint64(step)
		m.HorizontalAngle = float32(angle)
		m.Checksum = uint64(checksum)
		metas = append(metas, m)
	}
	return metas, rows.Err()
}

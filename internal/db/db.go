// Package db persists processed sessions to SQLite: the session row with
// its clock-offset estimate, the per-frame raw and fused angles, and the
// per-session summary. The schema is managed by embedded golang-migrate
// files so a fresh database is always brought to the current version on
// open.
package db

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"github.com/gaitworks/flexion/internal/fusion"
	"github.com/gaitworks/flexion/internal/pose"
)

type DB struct {
	*sql.DB
}

// NewDB opens (or creates) the SQLite database at path and migrates it to
// the latest schema version.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// A single writer keeps modernc's file locking simple; readers
	// multiplex over it.
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.Exec(`PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to set pragmas: %w", err)
	}

	db := &DB{sqlDB}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// SessionRecord is one row of the sessions table.
type SessionRecord struct {
	ID               string    `json:"session_id"`
	CreatedAt        time.Time `json:"created_at"`
	FPS              float64   `json:"fps"`
	OffsetMS         *float64  `json:"offset_ms,omitempty"`
	CorrelationScore *float64  `json:"correlation_score,omitempty"`
	Notes            string    `json:"notes,omitempty"`
}

// InsertSession records a new session row.
func (db *DB) InsertSession(rec SessionRecord) error {
	_, err := db.Exec(
		`INSERT INTO sessions (session_id, created_at, fps, offset_ms, correlation_score, notes)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CreatedAt.UTC(), rec.FPS, rec.OffsetMS, rec.CorrelationScore, rec.Notes,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session %s: %w", rec.ID, err)
	}
	return nil
}

// SetSessionAlignment stores the clock-offset estimate on an existing
// session row.
func (db *DB) SetSessionAlignment(sessionID string, offsetMS, score float64) error {
	res, err := db.Exec(
		`UPDATE sessions SET offset_ms = ?, correlation_score = ? WHERE session_id = ?`,
		offsetMS, score, sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to update alignment for %s: %w", sessionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetSession loads one session row.
func (db *DB) GetSession(sessionID string) (SessionRecord, error) {
	var rec SessionRecord
	var notes sql.NullString
	err := db.QueryRow(
		`SELECT session_id, created_at, fps, offset_ms, correlation_score, notes
		 FROM sessions WHERE session_id = ?`, sessionID,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.FPS, &rec.OffsetMS, &rec.CorrelationScore, &notes)
	if err != nil {
		return SessionRecord{}, err
	}
	rec.Notes = notes.String
	return rec, nil
}

// ListSessions returns all sessions, newest first.
func (db *DB) ListSessions() ([]SessionRecord, error) {
	rows, err := db.Query(
		`SELECT session_id, created_at, fps, offset_ms, correlation_score, notes
		 FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var notes sql.NullString
		if err := rows.Scan(&rec.ID, &rec.CreatedAt, &rec.FPS,
			&rec.OffsetMS, &rec.CorrelationScore, &notes); err != nil {
			return nil, err
		}
		rec.Notes = notes.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and, via foreign keys, its frames and
// summary.
func (db *DB) DeleteSession(sessionID string) error {
	res, err := db.Exec(`DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// FrameRow is one per-frame, per-joint trajectory row. Angles are NaN
// where the pipeline could not produce a value.
type FrameRow struct {
	FrameIndex  int     `json:"frame_index"`
	TimestampMS float64 `json:"timestamp_ms"`
	RawAngle    float64 `json:"raw_angle"`
	FusedAngle  float64 `json:"fused_angle"`
	Confidence  float64 `json:"confidence"`
}

// nullable maps NaN to NULL; SQLite has no NaN representation worth
// round-tripping through drivers.
func nullable(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func fromNull(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

// InsertTrajectory stores the raw and fused per-frame series for one joint
// in a single transaction.
func (db *DB) InsertTrajectory(sessionID string, joint pose.JointID,
	raw []pose.AngleSample, fused []fusion.FrameAngle) error {
	if len(raw) != len(fused) {
		return fmt.Errorf("trajectory length mismatch: %d raw, %d fused", len(raw), len(fused))
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO frame_angles (session_id, joint, frame_index, timestamp_ms, raw_angle, fused_angle, confidence)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range raw {
		_, err := stmt.Exec(sessionID, string(joint), i, raw[i].TimestampMS,
			nullable(raw[i].AngleDeg), nullable(fused[i].AngleDeg), nullable(raw[i].Confidence))
		if err != nil {
			return fmt.Errorf("failed to insert frame %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// GetTrajectory loads the per-frame series for one joint, in frame order.
func (db *DB) GetTrajectory(sessionID string, joint pose.JointID) ([]FrameRow, error) {
	rows, err := db.Query(
		`SELECT frame_index, timestamp_ms, raw_angle, fused_angle, confidence
		 FROM frame_angles WHERE session_id = ? AND joint = ? ORDER BY frame_index`,
		sessionID, string(joint))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FrameRow
	for rows.Next() {
		var fr FrameRow
		var raw, fused, conf sql.NullFloat64
		if err := rows.Scan(&fr.FrameIndex, &fr.TimestampMS, &raw, &fused, &conf); err != nil {
			return nil, err
		}
		fr.RawAngle = fromNull(raw)
		fr.FusedAngle = fromNull(fused)
		fr.Confidence = fromNull(conf)
		out = append(out, fr)
	}
	return out, rows.Err()
}

// InsertSummary stores (or replaces) a session's aggregate metrics.
func (db *DB) InsertSummary(sessionID string, s pose.SessionSummary) error {
	_, err := db.Exec(
		`INSERT OR REPLACE INTO session_summaries (
			session_id, total_frames, duration_seconds,
			left_knee_rom, right_knee_rom,
			left_knee_max_flexion, right_knee_max_flexion,
			left_knee_min_flexion, right_knee_min_flexion,
			left_knee_peak_velocity, right_knee_peak_velocity,
			mean_asymmetry, max_asymmetry,
			left_knee_max_valgus, right_knee_max_valgus
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, s.TotalFrames, nullable(s.DurationSeconds),
		nullable(s.LeftKneeROM), nullable(s.RightKneeROM),
		nullable(s.LeftKneeMaxFlexion), nullable(s.RightKneeMaxFlexion),
		nullable(s.LeftKneeMinFlexion), nullable(s.RightKneeMinFlexion),
		nullable(s.LeftKneePeakVelocity), nullable(s.RightKneePeakVelocity),
		nullable(s.MeanAsymmetry), nullable(s.MaxAsymmetry),
		nullable(s.LeftKneeMaxValgus), nullable(s.RightKneeMaxValgus),
	)
	if err != nil {
		return fmt.Errorf("failed to insert summary for %s: %w", sessionID, err)
	}
	return nil
}

// GetSummary loads a session's aggregate metrics. FPS comes from the
// session row so the summary is self-contained for callers.
func (db *DB) GetSummary(sessionID string) (pose.SessionSummary, error) {
	var s pose.SessionSummary
	var vals [13]sql.NullFloat64
	err := db.QueryRow(
		`SELECT m.total_frames, s.fps, m.duration_seconds,
			m.left_knee_rom, m.right_knee_rom,
			m.left_knee_max_flexion, m.right_knee_max_flexion,
			m.left_knee_min_flexion, m.right_knee_min_flexion,
			m.left_knee_peak_velocity, m.right_knee_peak_velocity,
			m.mean_asymmetry, m.max_asymmetry,
			m.left_knee_max_valgus, m.right_knee_max_valgus
		 FROM session_summaries m
		 JOIN sessions s ON s.session_id = m.session_id
		 WHERE m.session_id = ?`, sessionID,
	).Scan(&s.TotalFrames, &s.FPS, &vals[0], &vals[1], &vals[2], &vals[3], &vals[4],
		&vals[5], &vals[6], &vals[7], &vals[8], &vals[9], &vals[10], &vals[11], &vals[12])
	if err != nil {
		return pose.SessionSummary{}, err
	}
	s.DurationSeconds = fromNull(vals[0])
	s.LeftKneeROM = fromNull(vals[1])
	s.RightKneeROM = fromNull(vals[2])
	s.LeftKneeMaxFlexion = fromNull(vals[3])
	s.RightKneeMaxFlexion = fromNull(vals[4])
	s.LeftKneeMinFlexion = fromNull(vals[5])
	s.RightKneeMinFlexion = fromNull(vals[6])
	s.LeftKneePeakVelocity = fromNull(vals[7])
	s.RightKneePeakVelocity = fromNull(vals[8])
	s.MeanAsymmetry = fromNull(vals[9])
	s.MaxAsymmetry = fromNull(vals[10])
	s.LeftKneeMaxValgus = fromNull(vals[11])
	s.RightKneeMaxValgus = fromNull(vals[12])
	return s, nil
}

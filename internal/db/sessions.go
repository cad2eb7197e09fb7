package db

import (
	"database/sql"
	"time"
)

// CaptureSession is the stored summary of one finished (or running) capture.
type CaptureSession struct {
	ID             string     `json:"id"`
	ModelID        *int64     `json:"model_id,omitempty"`
	Protocol       string     `json:"protocol,omitempty"`
	Status         string     `json:"status"`
	BytesSeen      int64      `json:"bytes_seen"`
	FramesSeen     int64      `json:"frames_seen"`
	FramesRejected int64      `json:"frames_rejected"`
	NoiseBytes     int64      `json:"noise_bytes"`
	StartedAt      time.Time  `json:"started_at"`
	StoppedAt      *time.Time `json:"stopped_at,omitempty"`
}

// RecordSessionStart inserts a running capture session row.
func (db *DB) RecordSessionStart(s CaptureSession) error {
	_, err := db.Exec(`
		INSERT INTO capture_sessions (id, model_id, protocol, status, started_at)
		VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.ModelID, s.Protocol, s.Status, s.StartedAt)
	return err
}

// FinalizeSession updates a session row with its final status and counters.
func (db *DB) FinalizeSession(s CaptureSession) error {
	_, err := db.Exec(`
		UPDATE capture_sessions
		SET protocol = ?, status = ?, bytes_seen = ?, frames_seen = ?,
		    frames_rejected = ?, noise_bytes = ?, stopped_at = ?
		WHERE id = ?`,
		s.Protocol, s.Status, s.BytesSeen, s.FramesSeen,
		s.FramesRejected, s.NoiseBytes, s.StoppedAt, s.ID)
	return err
}

// Sessions returns the most recent capture sessions, newest first.
func (db *DB) Sessions(limit int) ([]CaptureSession, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT id, model_id, protocol, status, bytes_seen, frames_seen,
		       frames_rejected, noise_bytes, started_at, stopped_at
		FROM capture_sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []CaptureSession
	for rows.Next() {
		var (
			s       CaptureSession
			modelID sql.NullInt64
			stopped sql.NullTime
		)
		if err := rows.Scan(&s.ID, &modelID, &s.Protocol, &s.Status, &s.BytesSeen,
			&s.FramesSeen, &s.FramesRejected, &s.NoiseBytes, &s.StartedAt, &stopped); err != nil {
			return nil, err
		}
		if modelID.Valid {
			s.ModelID = &modelID.Int64
		}
		if stopped.Valid {
			t := stopped.Time
			s.StoppedAt = &t
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

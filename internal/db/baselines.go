package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/electrifix/scootertap/internal/baseline"
	"github.com/electrifix/scootertap/internal/protocol"
)

// StoredBaseline is a baseline row with its database identity. Comparison
// uses the most recent baseline per model; older rows are retained as
// history.
type StoredBaseline struct {
	ID int64 `json:"id"`
	baseline.Baseline
}

// SaveBaseline inserts a new baseline for its model and returns the row ID.
// An existing baseline for the model is superseded, not mutated.
func (db *DB) SaveBaseline(b *baseline.Baseline) (int64, error) {
	ranges, err := json.Marshal(b.Ranges)
	if err != nil {
		return 0, fmt.Errorf("encoding ranges: %w", err)
	}
	modes, err := json.Marshal(b.Modes)
	if err != nil {
		return 0, fmt.Errorf("encoding modes: %w", err)
	}

	capturedAt := b.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now().UTC()
	}

	res, err := db.Exec(`
		INSERT INTO baselines (model_id, ranges, modes, sample_count, notes, captured_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		b.ModelID, string(ranges), string(modes), b.SampleCount, b.Notes, capturedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ActiveBaseline returns the most recent baseline for a model, or ErrNotFound
// when the model has never been learned.
func (db *DB) ActiveBaseline(modelID int64) (*StoredBaseline, error) {
	row := db.QueryRow(`
		SELECT id, model_id, ranges, modes, sample_count, notes, captured_at
		FROM baselines WHERE model_id = ?
		ORDER BY captured_at DESC, id DESC LIMIT 1`, modelID)

	b, err := scanBaseline(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("baseline for model %d: %w", modelID, ErrNotFound)
	}
	return b, err
}

// BaselinesForModel returns all baselines for a model, newest first.
func (db *DB) BaselinesForModel(modelID int64) ([]StoredBaseline, error) {
	rows, err := db.Query(`
		SELECT id, model_id, ranges, modes, sample_count, notes, captured_at
		FROM baselines WHERE model_id = ?
		ORDER BY captured_at DESC, id DESC`, modelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var baselines []StoredBaseline
	for rows.Next() {
		b, err := scanBaseline(rows)
		if err != nil {
			return nil, err
		}
		baselines = append(baselines, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return baselines, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBaseline(row rowScanner) (*StoredBaseline, error) {
	var (
		b      StoredBaseline
		ranges string
		modes  string
	)
	if err := row.Scan(&b.ID, &b.ModelID, &ranges, &modes, &b.SampleCount, &b.Notes, &b.CapturedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(ranges), &b.Ranges); err != nil {
		return nil, fmt.Errorf("decoding ranges for baseline %d: %w", b.ID, err)
	}
	if modes != "" {
		if err := json.Unmarshal([]byte(modes), &b.Modes); err != nil {
			return nil, fmt.Errorf("decoding modes for baseline %d: %w", b.ID, err)
		}
	}
	if b.Ranges == nil {
		b.Ranges = make(map[protocol.Field]baseline.Range)
	}
	return &b, nil
}

package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

// ScooterModel is one supported scooter, pinning the protocol and serial
// parameters used when opening a tap against it.
type ScooterModel struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Protocol  string    `json:"protocol"`
	BaudRate  int       `json:"baud_rate"`
	RPMPerKMH float64   `json:"rpm_per_kmh"`
	CreatedAt time.Time `json:"created_at"`
}

// Models returns all scooter models, ordered by name.
func (db *DB) Models() ([]ScooterModel, error) {
	rows, err := db.Query(`
		SELECT id, name, protocol, baud_rate, rpm_per_kmh, created_at
		FROM scooter_models ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var models []ScooterModel
	for rows.Next() {
		var m ScooterModel
		if err := rows.Scan(&m.ID, &m.Name, &m.Protocol, &m.BaudRate, &m.RPMPerKMH, &m.CreatedAt); err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return models, nil
}

// ModelByID returns one scooter model, or ErrNotFound.
func (db *DB) ModelByID(id int64) (*ScooterModel, error) {
	var m ScooterModel
	err := db.QueryRow(`
		SELECT id, name, protocol, baud_rate, rpm_per_kmh, created_at
		FROM scooter_models WHERE id = ?`, id).
		Scan(&m.ID, &m.Name, &m.Protocol, &m.BaudRate, &m.RPMPerKMH, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scooter model %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateModel inserts a new scooter model and returns its ID.
func (db *DB) CreateModel(m ScooterModel) (int64, error) {
	if m.RPMPerKMH == 0 {
		m.RPMPerKMH = 24.5
	}
	res, err := db.Exec(`
		INSERT INTO scooter_models (name, protocol, baud_rate, rpm_per_kmh)
		VALUES (?, ?, ?, ?)`,
		m.Name, m.Protocol, m.BaudRate, m.RPMPerKMH)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

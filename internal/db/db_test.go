package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/electrifix/scootertap/internal/baseline"
	"github.com/electrifix/scootertap/internal/protocol"
)

// newTestDB opens a fresh database in a temp dir and applies all migrations.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.MigrateUp("../../migrations"))
	return db
}

func TestMigrationsSeedModels(t *testing.T) {
	db := newTestDB(t)

	models, err := db.Models()
	require.NoError(t, err)
	require.Len(t, models, 2)

	// Ordered by name.
	assert.Equal(t, "Dragon GTR V2", models[0].Name)
	assert.Equal(t, "jp_qs_s4", models[0].Protocol)
	assert.Equal(t, 1200, models[0].BaudRate)

	assert.Equal(t, "Ninebot Max G30", models[1].Name)
	assert.Equal(t, "ninebot", models[1].Protocol)
	assert.Equal(t, 115200, models[1].BaudRate)
}

func TestMigrateUpIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.MigrateUp("../../migrations"))

	version, dirty, err := db.MigrateVersion("../../migrations")
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(2), version)
}

func TestModelByID(t *testing.T) {
	db := newTestDB(t)

	models, err := db.Models()
	require.NoError(t, err)

	m, err := db.ModelByID(models[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models[0].Name, m.Name)
	assert.Equal(t, 24.5, m.RPMPerKMH)

	_, err = db.ModelByID(9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateModel(t *testing.T) {
	db := newTestDB(t)

	id, err := db.CreateModel(ScooterModel{
		Name:     "Kugoo M4",
		Protocol: "jp_qs_s4",
		BaudRate: 1200,
	})
	require.NoError(t, err)

	m, err := db.ModelByID(id)
	require.NoError(t, err)
	assert.Equal(t, "Kugoo M4", m.Name)
	assert.Equal(t, 24.5, m.RPMPerKMH) // default applied
}

func TestBaselineRoundTrip(t *testing.T) {
	db := newTestDB(t)
	models, err := db.Models()
	require.NoError(t, err)
	modelID := models[0].ID

	_, err = db.ActiveBaseline(modelID)
	assert.ErrorIs(t, err, ErrNotFound)

	b := &baseline.Baseline{
		ModelID:     modelID,
		SampleCount: 120,
		Notes:       "bench run, no load",
		Ranges: map[protocol.Field]baseline.Range{
			protocol.FieldVoltage:  {Min: 42.0, Max: 54.6},
			protocol.FieldThrottle: {Min: 0, Max: 100},
		},
		Modes: []protocol.Mode{protocol.ModeEco, protocol.ModeSport},
	}
	id, err := db.SaveBaseline(b)
	require.NoError(t, err)
	assert.NotZero(t, id)

	got, err := db.ActiveBaseline(modelID)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, 120, got.SampleCount)
	assert.Equal(t, "bench run, no load", got.Notes)
	assert.Equal(t, baseline.Range{Min: 42.0, Max: 54.6}, got.Ranges[protocol.FieldVoltage])
	assert.Equal(t, []protocol.Mode{protocol.ModeEco, protocol.ModeSport}, got.Modes)
}

func TestRelearnSupersedesBaseline(t *testing.T) {
	db := newTestDB(t)
	models, err := db.Models()
	require.NoError(t, err)
	modelID := models[0].ID

	old := &baseline.Baseline{
		ModelID:    modelID,
		CapturedAt: time.Now().Add(-time.Hour),
		Ranges:     map[protocol.Field]baseline.Range{protocol.FieldVoltage: {Min: 40, Max: 50}},
	}
	_, err = db.SaveBaseline(old)
	require.NoError(t, err)

	fresh := &baseline.Baseline{
		ModelID:    modelID,
		CapturedAt: time.Now(),
		Ranges:     map[protocol.Field]baseline.Range{protocol.FieldVoltage: {Min: 42, Max: 54}},
	}
	freshID, err := db.SaveBaseline(fresh)
	require.NoError(t, err)

	active, err := db.ActiveBaseline(modelID)
	require.NoError(t, err)
	assert.Equal(t, freshID, active.ID)
	assert.Equal(t, baseline.Range{Min: 42, Max: 54}, active.Ranges[protocol.FieldVoltage])

	history, err := db.BaselinesForModel(modelID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
	assert.Equal(t, freshID, history[0].ID)
}

func TestSessionLifecycleRows(t *testing.T) {
	db := newTestDB(t)
	models, err := db.Models()
	require.NoError(t, err)
	modelID := models[0].ID

	started := time.Now().UTC().Truncate(time.Second)
	s := CaptureSession{
		ID:        "0c0ffee0-0000-4000-8000-000000000001",
		ModelID:   &modelID,
		Protocol:  "jp_qs_s4",
		Status:    "locked",
		StartedAt: started,
	}
	require.NoError(t, db.RecordSessionStart(s))

	stopped := started.Add(30 * time.Second)
	s.BytesSeen = 4200
	s.FramesSeen = 250
	s.FramesRejected = 3
	s.NoiseBytes = 450
	s.StoppedAt = &stopped
	require.NoError(t, db.FinalizeSession(s))

	sessions, err := db.Sessions(10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	got := sessions[0]
	assert.Equal(t, s.ID, got.ID)
	require.NotNil(t, got.ModelID)
	assert.Equal(t, modelID, *got.ModelID)
	assert.Equal(t, int64(250), got.FramesSeen)
	require.NotNil(t, got.StoppedAt)
	assert.True(t, got.StoppedAt.Equal(stopped))
}

package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/jmylchreest/subarr/internal/config"
	"github.com/jmylchreest/subarr/internal/models"
)

func TestNew_CreatesDirectoryAndSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history", "subarr.db")

	db, err := New(config.DatabaseConfig{Path: path, LogLevel: "silent"}, nil)
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, path)

	// Schema should already be migrated.
	assert.True(t, db.DB.Migrator().HasTable(&models.JobHistory{}))
}

func TestDB_Ping(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	assert.NoError(t, db.Ping(ctx))
}

func TestDB_Close(t *testing.T) {
	db := setupTestDB(t)

	require.NoError(t, db.Close())

	// Ping should fail after close.
	assert.Error(t, db.Ping(context.Background()))
}

func TestDB_JobHistoryRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	started := time.Now().Add(-time.Minute)
	rec := models.NewJobHistory(
		models.NewULID(),
		"/videos/a.mp4",
		"/videos/a_subtitled_20260101_120000.mp4",
		"llm",
		models.JobStatusCompleted,
		"",
		started,
		time.Now(),
	)
	require.NoError(t, db.DB.Create(rec).Error)

	var got models.JobHistory
	require.NoError(t, db.DB.First(&got, "input_path = ?", "/videos/a.mp4").Error)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, "llm", got.Engine)
	assert.False(t, got.ID.IsZero())
}

func TestDB_SQLitePragmas(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	var journalMode string
	require.NoError(t, db.DB.Raw("PRAGMA journal_mode").Scan(&journalMode).Error)
	assert.Equal(t, "wal", journalMode)

	var foreignKeys int
	require.NoError(t, db.DB.Raw("PRAGMA foreign_keys").Scan(&foreignKeys).Error)
	assert.Equal(t, 1, foreignKeys)
}

func TestGormLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected logger.LogLevel
	}{
		{"silent", logger.Silent},
		{"error", logger.Error},
		{"warn", logger.Warn},
		{"info", logger.Info},
		{"unknown", logger.Warn},
		{"", logger.Warn},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.expected, gormLogLevel(tt.level))
		})
	}
}

func TestTruncateSQL(t *testing.T) {
	short := "SELECT 1"
	assert.Equal(t, short, truncateSQL(short))

	long := "SELECT " + string(make([]byte, maxSQLLogLength))
	got := truncateSQL(long)
	assert.Len(t, got, maxSQLLogLength+len("... (truncated)"))
	assert.Contains(t, got, "truncated")
}

// setupTestDB creates a file-backed SQLite database under a test temp dir.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	cfg := config.DatabaseConfig{
		Path:     filepath.Join(t.TempDir(), "subarr.db"),
		LogLevel: "silent",
	}

	db, err := New(cfg, nil)
	require.NoError(t, err)

	return db
}

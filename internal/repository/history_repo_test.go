package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/subarr/internal/config"
	"github.com/jmylchreest/subarr/internal/database"
	"github.com/jmylchreest/subarr/internal/models"
)

func setupRepo(t *testing.T) JobHistoryRepository {
	t.Helper()
	db, err := database.New(config.DatabaseConfig{
		Path:     filepath.Join(t.TempDir(), "test.db"),
		LogLevel: "silent",
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewJobHistoryRepository(db.DB)
}

func record(input string, status models.JobStatus, completed time.Time) *models.JobHistory {
	return models.NewJobHistory(models.NewULID(), input, "", "llm", status, "", completed.Add(-time.Minute), completed)
}

func TestHistoryRepoCreateAndGet(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	rec := record("/videos/a.mp4", models.JobStatusCompleted, time.Now())
	require.NoError(t, repo.Create(ctx, rec))

	got, err := repo.GetByJobID(ctx, rec.JobID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "/videos/a.mp4", got.InputPath)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.False(t, got.ID.IsZero(), "BeforeCreate must assign a ULID")

	missing, err := repo.GetByJobID(ctx, models.NewULID())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestHistoryRepoCreateValidates(t *testing.T) {
	repo := setupRepo(t)

	bad := &models.JobHistory{Engine: "llm", Status: models.JobStatusFailed}
	err := repo.Create(context.Background(), bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInputPathRequired)
}

func TestHistoryRepoListByStatus(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, repo.Create(ctx, record("/videos/a.mp4", models.JobStatusCompleted, now.Add(-2*time.Hour))))
	require.NoError(t, repo.Create(ctx, record("/videos/b.mp4", models.JobStatusFailed, now.Add(-time.Hour))))
	require.NoError(t, repo.Create(ctx, record("/videos/c.mp4", models.JobStatusCompleted, now)))

	all, err := repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "/videos/c.mp4", all[0].InputPath, "newest first")

	completed, err := repo.ListByStatus(ctx, models.JobStatusCompleted, 10)
	require.NoError(t, err)
	require.Len(t, completed, 2)

	limited, err := repo.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestHistoryRepoDeleteOlderThan(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, record("/videos/old.mp4", models.JobStatusCompleted, time.Now().AddDate(0, 0, -40))))
	require.NoError(t, repo.Create(ctx, record("/videos/new.mp4", models.JobStatusCompleted, time.Now())))

	removed, err := repo.DeleteOlderThan(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	remaining, err := repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "/videos/new.mp4", remaining[0].InputPath)
}

package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatusIsTerminal(t *testing.T) {
	tests := []struct {
		status JobStatus
		want   bool
	}{
		{JobStatusPending, false},
		{JobStatusRunning, false},
		{JobStatusCompleted, true},
		{JobStatusFailed, true},
		{JobStatusSkipped, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.IsTerminal())
		})
	}
}

func TestJobHistoryValidate(t *testing.T) {
	valid := JobHistory{
		InputPath: "/videos/talk.mp4",
		Engine:    "llm",
		Status:    JobStatusCompleted,
	}
	require.NoError(t, valid.Validate())

	noInput := valid
	noInput.InputPath = ""
	assert.ErrorIs(t, noInput.Validate(), ErrInputPathRequired)

	noEngine := valid
	noEngine.Engine = ""
	assert.ErrorIs(t, noEngine.Validate(), ErrEngineRequired)

	badStatus := valid
	badStatus.Status = "exploded"
	assert.ErrorIs(t, badStatus.Validate(), ErrInvalidStatus)
}

func TestNewJobHistory(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	completed := started.Add(95 * time.Second)

	jobID := NewULID()
	h := NewJobHistory(jobID, "/videos/talk.mp4", "/videos/talk_subtitled_20260301_100135.mp4",
		"llm", JobStatusCompleted, "", started, completed)

	assert.Equal(t, jobID, h.JobID)
	assert.Equal(t, int64(95000), h.DurationMs)
	require.NotNil(t, h.StartedAt)
	require.NotNil(t, h.CompletedAt)
	assert.Equal(t, started, *h.StartedAt)
	assert.NoError(t, h.Validate())
}

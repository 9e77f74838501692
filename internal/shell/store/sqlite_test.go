package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

func setupTestStore(t *testing.T) Store {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func createTestRun(t *testing.T, s Store, stack string, action RunAction) *Run {
	t.Helper()
	run := &Run{StackName: stack, Action: action}
	require.NoError(t, s.CreateRun(context.Background(), run))
	return run
}

// =============================================================================
// Run Tests
// =============================================================================

func TestCreateRunFillsDefaults(t *testing.T) {
	s := setupTestStore(t)

	run := createTestRun(t, s, "dev", RunActionUp)

	assert.NotEmpty(t, run.ID)
	assert.Equal(t, RunStatusStarted, run.Status)
	assert.False(t, run.StartedAt.IsZero())
	assert.Nil(t, run.FinishedAt)
}

func TestCreateRunDuplicateID(t *testing.T) {
	s := setupTestStore(t)

	run := createTestRun(t, s, "dev", RunActionUp)

	dup := &Run{ID: run.ID, StackName: "dev", Action: RunActionDown}
	err := s.CreateRun(context.Background(), dup)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestGetRunRoundTrip(t *testing.T) {
	s := setupTestStore(t)

	run := createTestRun(t, s, "dev", RunActionUp)

	got, err := s.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "dev", got.StackName)
	assert.Equal(t, RunActionUp, got.Action)
	assert.Equal(t, RunStatusStarted, got.Status)
	assert.WithinDuration(t, run.StartedAt, got.StartedAt, time.Millisecond)
}

func TestGetRunNotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetRun(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFinishRunSucceeded(t *testing.T) {
	s := setupTestStore(t)

	run := createTestRun(t, s, "dev", RunActionUp)
	require.NoError(t, s.FinishRun(context.Background(), run.ID, RunStatusSucceeded, ""))

	got, err := s.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusSucceeded, got.Status)
	assert.True(t, got.Finished())
	require.NotNil(t, got.FinishedAt)
	assert.Empty(t, got.Error)
}

func TestFinishRunFailedRecordsError(t *testing.T) {
	s := setupTestStore(t)

	run := createTestRun(t, s, "dev", RunActionUp)
	require.NoError(t, s.FinishRun(context.Background(), run.ID, RunStatusFailed, "database not ready"))

	got, err := s.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, got.Status)
	assert.Equal(t, "database not ready", got.Error)
}

func TestFinishRunTwice(t *testing.T) {
	s := setupTestStore(t)

	run := createTestRun(t, s, "dev", RunActionUp)
	require.NoError(t, s.FinishRun(context.Background(), run.ID, RunStatusSucceeded, ""))

	err := s.FinishRun(context.Background(), run.ID, RunStatusFailed, "late")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRunFinished)
}

func TestFinishRunNotFound(t *testing.T) {
	s := setupTestStore(t)

	err := s.FinishRun(context.Background(), "missing", RunStatusSucceeded, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRunsNewestFirst(t *testing.T) {
	s := setupTestStore(t)

	first := &Run{StackName: "dev", Action: RunActionUp, StartedAt: time.Now().UTC().Add(-2 * time.Hour)}
	require.NoError(t, s.CreateRun(context.Background(), first))
	second := &Run{StackName: "dev", Action: RunActionDown, StartedAt: time.Now().UTC().Add(-time.Hour)}
	require.NoError(t, s.CreateRun(context.Background(), second))
	third := &Run{StackName: "dev", Action: RunActionUp, StartedAt: time.Now().UTC()}
	require.NoError(t, s.CreateRun(context.Background(), third))

	runs, err := s.ListRuns(context.Background(), "dev", 10)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, third.ID, runs[0].ID)
	assert.Equal(t, second.ID, runs[1].ID)
	assert.Equal(t, first.ID, runs[2].ID)
}

func TestListRunsFiltersByStack(t *testing.T) {
	s := setupTestStore(t)

	createTestRun(t, s, "dev", RunActionUp)
	createTestRun(t, s, "other", RunActionUp)

	runs, err := s.ListRuns(context.Background(), "dev", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "dev", runs[0].StackName)

	all, err := s.ListRuns(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestListRunsLimit(t *testing.T) {
	s := setupTestStore(t)

	for i := 0; i < 5; i++ {
		run := &Run{StackName: "dev", Action: RunActionUp, StartedAt: time.Now().UTC().Add(time.Duration(i) * time.Minute)}
		require.NoError(t, s.CreateRun(context.Background(), run))
	}

	runs, err := s.ListRuns(context.Background(), "dev", 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestLatestRun(t *testing.T) {
	s := setupTestStore(t)

	older := &Run{StackName: "dev", Action: RunActionUp, StartedAt: time.Now().UTC().Add(-time.Hour)}
	require.NoError(t, s.CreateRun(context.Background(), older))
	newer := &Run{StackName: "dev", Action: RunActionDestroy, StartedAt: time.Now().UTC()}
	require.NoError(t, s.CreateRun(context.Background(), newer))

	got, err := s.LatestRun(context.Background(), "dev")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID)
	assert.Equal(t, RunActionDestroy, got.Action)
}

func TestLatestRunEmptyStack(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.LatestRun(context.Background(), "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

// =============================================================================
// Event Tests
// =============================================================================

func TestAppendAndListEvents(t *testing.T) {
	s := setupTestStore(t)
	run := createTestRun(t, s, "dev", RunActionUp)

	events := []*Event{
		{RunID: run.ID, ServiceName: "db", ContainerID: "abc123", Type: "container_started"},
		{RunID: run.ID, ServiceName: "db", Type: "database_ready", Message: "3 attempts"},
		{RunID: run.ID, ServiceName: "app", ContainerID: "def456", Type: "container_started"},
	}
	for _, e := range events {
		require.NoError(t, s.AppendEvent(context.Background(), e))
		assert.NotZero(t, e.ID)
	}

	got, err := s.ListEvents(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Insertion order preserved
	assert.Equal(t, "container_started", got[0].Type)
	assert.Equal(t, "db", got[0].ServiceName)
	assert.Equal(t, "database_ready", got[1].Type)
	assert.Equal(t, "3 attempts", got[1].Message)
	assert.Equal(t, "app", got[2].ServiceName)
}

func TestAppendEventUnknownRun(t *testing.T) {
	s := setupTestStore(t)

	err := s.AppendEvent(context.Background(), &Event{RunID: "missing", Type: "container_started"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListEventsEmptyRun(t *testing.T) {
	s := setupTestStore(t)
	run := createTestRun(t, s, "dev", RunActionUp)

	got, err := s.ListEvents(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

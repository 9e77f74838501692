package store

import (
	"context"
	"time"
)

// =============================================================================
// Journal Types
// =============================================================================

// RunAction is the lifecycle action a run records.
type RunAction string

const (
	RunActionUp      RunAction = "up"
	RunActionDown    RunAction = "down"
	RunActionDestroy RunAction = "destroy"
	RunActionBuild   RunAction = "build"
)

// RunStatus is the state of a recorded run.
type RunStatus string

const (
	RunStatusStarted   RunStatus = "started"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one recorded lifecycle action on a stack.
type Run struct {
	ID         string     `json:"id"`
	StackName  string     `json:"stack_name"`
	Action     RunAction  `json:"action"`
	Status     RunStatus  `json:"status"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Finished reports whether the run reached a final status.
func (r *Run) Finished() bool {
	return r.Status == RunStatusSucceeded || r.Status == RunStatusFailed
}

// Event is one per-service occurrence within a run (image built, container
// started, probe succeeded, ...).
type Event struct {
	ID          int64     `json:"id"`
	RunID       string    `json:"run_id"`
	ServiceName string    `json:"service_name,omitempty"`
	ContainerID string    `json:"container_id,omitempty"`
	Type        string    `json:"type"`
	Message     string    `json:"message,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for the run journal.
type Store interface {
	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	FinishRun(ctx context.Context, id string, status RunStatus, errMsg string) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, stackName string, limit int) ([]Run, error)
	LatestRun(ctx context.Context, stackName string) (*Run, error)

	// Event operations
	AppendEvent(ctx context.Context, event *Event) error
	ListEvents(ctx context.Context, runID string) ([]Event, error)

	Close() error
}

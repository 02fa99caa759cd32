// Package job runs reconciliation tasks asynchronously and records their
// status and progress log.
package job

import (
	"context"
	"time"
)

// Status constants. These strings are persisted and returned by the API verbatim.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusError    = "error"
)

// Job is the persisted record of one task execution.
type Job struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
	Log       string    `json:"log,omitempty"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Terminal reports whether the job has finished.
func (j *Job) Terminal() bool {
	return j.Status == StatusComplete || j.Status == StatusError
}

// Task is a unit of work. Implementations are structs carrying every
// service, entity and parameter they need.
type Task interface {
	Run(ctx context.Context, jc *Context) error
}

// Kinded is implemented by tasks that name themselves for job records and metrics.
type Kinded interface {
	Kind() string
}

// TaskFunc adapts a function to the Task interface.
type TaskFunc func(ctx context.Context, jc *Context) error

// Run calls f(ctx, jc).
func (f TaskFunc) Run(ctx context.Context, jc *Context) error {
	return f(ctx, jc)
}

func kindOf(t Task) string {
	if k, ok := t.(Kinded); ok && k.Kind() != "" {
		return k.Kind()
	}
	return "task"
}

// Store persists jobs. Get returns an error matching apperrors.ErrNotFound
// for unknown ids.
type Store interface {
	Create(ctx context.Context, j *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	List(ctx context.Context, limit int) ([]Job, error)
	UpdateLog(ctx context.Context, id, log string) error
	UpdateStatus(ctx context.Context, id, status string) error
}

// MetricsRecorder is an optional interface for recording job metrics.
type MetricsRecorder interface {
	RecordJobCreated(ctx context.Context, kind string)
	RecordJobCompleted(ctx context.Context, kind string, success bool, durationSeconds float64)
}

package job

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// defaultListLimit caps List when the caller passes no limit.
const defaultListLimit = 100

// Runner creates job records and executes tasks on their own goroutines.
//
// The Runner holds no job state: the Store is the source of truth for
// status and log. Running tasks cannot be cancelled; once submitted a task
// runs to completion or failure.
type Runner struct {
	store   Store
	metrics MetricsRecorder
	logger  *slog.Logger
	now     func() time.Time

	wg sync.WaitGroup
}

// NewRunner creates a runner backed by store. metrics may be nil.
func NewRunner(store Store, metrics MetricsRecorder) *Runner {
	return &Runner{
		store:   store,
		metrics: metrics,
		logger:  slog.With("component", "runner"),
		now:     time.Now,
	}
}

// Submit persists a running job for task, starts it in the background and
// returns the job id. creator identifies who asked for the work.
func (r *Runner) Submit(ctx context.Context, creator string, task Task) (string, error) {
	now := r.now().UTC()
	j := &Job{
		ID:        uuid.NewString(),
		Kind:      kindOf(task),
		Status:    StatusRunning,
		CreatedBy: creator,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.store.Create(ctx, j); err != nil {
		return "", fmt.Errorf("creating job: %w", err)
	}

	if r.metrics != nil {
		r.metrics.RecordJobCreated(ctx, j.Kind)
	}
	r.logger.Info("Job submitted", "jobId", j.ID, "kind", j.Kind, "createdBy", creator)

	r.wg.Add(1)
	go r.execute(j, task)

	return j.ID, nil
}

// execute runs task for j and records the terminal status.
func (r *Runner) execute(j *Job, task Task) {
	defer r.wg.Done()

	ctx := context.Background()
	jc := newContext(j, r.store)
	start := r.now()

	err := r.run(ctx, jc, task)

	status := StatusComplete
	if err != nil {
		status = StatusError
		jc.Log(err.Error())
	}
	j.Status = status
	if uerr := r.store.UpdateStatus(ctx, j.ID, status); uerr != nil {
		jc.logger.Error("Failed to persist job status", "status", status, "error", uerr)
	}

	if r.metrics != nil {
		r.metrics.RecordJobCompleted(ctx, j.Kind, err == nil, r.now().Sub(start).Seconds())
	}
	if err != nil {
		jc.logger.Warn("Job failed", "error", err)
		return
	}
	jc.logger.Info("Job complete", "duration", r.now().Sub(start))
}

// run invokes the task, converting a panic into an error.
func (r *Runner) run(ctx context.Context, jc *Context, task Task) (err error) {
	defer func() {
		if p := recover(); p != nil {
			jc.logger.Error("Panic recovered", "error", p)
			err = fmt.Errorf("job panicked: %v", p)
		}
	}()
	return task.Run(ctx, jc)
}

// Get returns the job record.
func (r *Runner) Get(ctx context.Context, id string) (*Job, error) {
	return r.store.Get(ctx, id)
}

// GetLog returns the accumulated log of a job, "" when nothing was logged.
func (r *Runner) GetLog(ctx context.Context, id string) (string, error) {
	j, err := r.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return j.Log, nil
}

// List returns the most recent jobs, newest first.
func (r *Runner) List(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	return r.store.List(ctx, limit)
}

// Wait blocks until every started execution has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// WaitContext is Wait bounded by ctx.
func (r *Runner) WaitContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

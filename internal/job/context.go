package job

import (
	"context"
	"fmt"
	"log/slog"
)

// Context is handed to a running Task. Log is its only mutation surface.
// A Context belongs to one execution goroutine and is not safe for
// concurrent use.
type Context struct {
	job    *Job
	store  Store
	logger *slog.Logger
}

func newContext(j *Job, store Store) *Context {
	return &Context{
		job:    j,
		store:  store,
		logger: slog.With("component", "job", "jobId", j.ID, "kind", j.Kind),
	}
}

// JobID returns the id of the job being executed.
func (c *Context) JobID() string {
	return c.job.ID
}

// Log appends a line to the job log and persists the whole log immediately.
// A persistence failure is reported through slog and otherwise ignored.
func (c *Context) Log(message string) {
	if c.job.Log == "" {
		c.job.Log = message
	} else {
		c.job.Log += "\n" + message
	}
	c.logger.Debug("Job log", "line", message)

	if c.store == nil {
		return
	}
	// Detached so a log line is still written while the task unwinds.
	ctx := context.Background()
	if err := c.store.UpdateLog(ctx, c.job.ID, c.job.Log); err != nil {
		c.logger.Warn("Failed to persist job log", "error", err)
	}
}

// Logf formats according to a format specifier and appends the result.
func (c *Context) Logf(format string, args ...any) {
	c.Log(fmt.Sprintf(format, args...))
}


// Package testutil provides polling helpers for tests that observe
// asynchronous jobs and schedulers.
package testutil

import (
	"context"
	"coursesync/internal/job"
	"sync/atomic"
	"testing"
	"time"
)

// WaitOptions bounds a poll.
type WaitOptions struct {
	Timeout  time.Duration
	Interval time.Duration
}

// WaitOption adjusts WaitOptions.
type WaitOption func(*WaitOptions)

// WithTimeout sets the maximum wait (default: 5s).
func WithTimeout(d time.Duration) WaitOption {
	return func(o *WaitOptions) { o.Timeout = d }
}

// WithInterval sets the pause between checks (default: 10ms).
func WithInterval(d time.Duration) WaitOption {
	return func(o *WaitOptions) { o.Interval = d }
}

// WaitFor checks condition until it holds or the timeout passes, and
// reports whether it held.
func WaitFor(tb testing.TB, condition func() bool, opts ...WaitOption) bool {
	tb.Helper()

	o := WaitOptions{Timeout: 5 * time.Second, Interval: 10 * time.Millisecond}
	for _, opt := range opts {
		opt(&o)
	}

	deadline := time.Now().Add(o.Timeout)
	for {
		if condition() {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		time.Sleep(o.Interval)
	}
}

// JobGetter reads job records. *job.Runner implements it.
type JobGetter interface {
	Get(ctx context.Context, id string) (*job.Job, error)
}

// MustWaitForJob polls until the job reaches a terminal status and returns
// it. The test fails on timeout or when the job cannot be read.
func MustWaitForJob(tb testing.TB, jobs JobGetter, id string, opts ...WaitOption) *job.Job {
	tb.Helper()

	var (
		last    *job.Job
		readErr error
	)
	ok := WaitFor(tb, func() bool {
		last, readErr = jobs.Get(context.Background(), id)
		return readErr != nil || last.Terminal()
	}, opts...)
	switch {
	case readErr != nil:
		tb.Fatalf("reading job %s: %v", id, readErr)
	case !ok:
		tb.Fatalf("timed out waiting for job %s (status: %s)", id, last.Status)
	}
	return last
}

// MustWaitForCount polls until counter reaches target, failing the test on timeout.
func MustWaitForCount(tb testing.TB, counter *atomic.Int64, target int64, opts ...WaitOption) {
	tb.Helper()
	if !WaitFor(tb, func() bool { return counter.Load() >= target }, opts...) {
		tb.Fatalf("timed out waiting for counter to reach %d (current: %d)", target, counter.Load())
	}
}

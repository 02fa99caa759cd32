// Package scheduler submits tasks on cron schedules.
package scheduler

import (
	"context"
	"coursesync/internal/job"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Creator is recorded as the creator of scheduled jobs.
const Creator = "system:scheduler"

// Submitter starts tasks as jobs. *job.Runner implements it.
type Submitter interface {
	Submit(ctx context.Context, creator string, task job.Task) (string, error)
}

// Factory builds the task for one firing of an entry.
type Factory func() (job.Task, error)

// Entry is one row of the schedule table. Spec is a standard 5-field cron
// expression; an empty Spec disables the entry.
type Entry struct {
	Name    string
	Spec    string
	Factory Factory
}

type scheduled struct {
	Entry
	schedule cron.Schedule
	next     time.Time
}

// Scheduler fires table entries at their scheduled times.
type Scheduler struct {
	runner  Submitter
	entries []*scheduled
	logger  *slog.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// New parses every enabled entry. An invalid expression is an error.
func New(runner Submitter, entries []Entry) (*Scheduler, error) {
	s := &Scheduler{
		runner: runner,
		logger: slog.With("component", "scheduler"),
		now:    time.Now,
		after:  time.After,
	}
	for _, e := range entries {
		if e.Spec == "" {
			s.logger.Info("Schedule disabled", "entry", e.Name)
			continue
		}
		if e.Factory == nil {
			return nil, fmt.Errorf("schedule %s: missing task factory", e.Name)
		}
		sched, err := cron.ParseStandard(e.Spec)
		if err != nil {
			return nil, fmt.Errorf("schedule %s: parsing %q: %w", e.Name, e.Spec, err)
		}
		s.entries = append(s.entries, &scheduled{Entry: e, schedule: sched})
	}
	return s, nil
}

// Len returns the number of enabled entries.
func (s *Scheduler) Len() int {
	return len(s.entries)
}

// Start runs the timer loop until ctx is cancelled. It returns at once
// when no entry is enabled.
func (s *Scheduler) Start(ctx context.Context) {
	if len(s.entries) == 0 {
		s.logger.Info("No scheduled entries")
		return
	}

	now := s.now()
	for _, e := range s.entries {
		e.next = e.schedule.Next(now)
		s.logger.Info("Scheduled", "entry", e.Name, "spec", e.Spec, "next", e.next)
	}

	for {
		wait := max(s.earliest().Sub(s.now()), 0)
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return
		case <-s.after(wait):
			s.runDue(ctx, s.now())
		}
	}
}

func (s *Scheduler) earliest() time.Time {
	next := s.entries[0].next
	for _, e := range s.entries[1:] {
		if e.next.Before(next) {
			next = e.next
		}
	}
	return next
}

// runDue submits every entry whose fire time has passed and advances it.
// It returns the number of jobs submitted.
func (s *Scheduler) runDue(ctx context.Context, now time.Time) int {
	submitted := 0
	for _, e := range s.entries {
		if e.next.After(now) {
			continue
		}
		e.next = e.schedule.Next(now)

		task, err := e.Factory()
		if err != nil {
			s.logger.Error("Failed to build scheduled task", "entry", e.Name, "error", err)
			continue
		}
		id, err := s.runner.Submit(ctx, Creator, task)
		if err != nil {
			s.logger.Error("Failed to submit scheduled task", "entry", e.Name, "error", err)
			continue
		}
		submitted++
		s.logger.Info("Submitted scheduled job", "entry", e.Name, "jobId", id, "next", e.next)
	}
	return submitted
}

// AuditSource builds membership audit tasks. *reconcile.Service implements it.
type AuditSource interface {
	AuditTask() job.Task
}

// DefaultEntries is the production schedule table.
func DefaultEntries(audits AuditSource, membershipAudit string) []Entry {
	return []Entry{
		{
			Name: "membership-audit",
			Spec: membershipAudit,
			Factory: func() (job.Task, error) {
				return audits.AuditTask(), nil
			},
		},
	}
}

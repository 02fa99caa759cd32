package job

import (
	"context"
	"coursesync/internal/apperrors"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store. It backs tests and one-shot CLI
// runs where no database is configured.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

// Create stores a copy of j.
func (s *MemoryStore) Create(_ context.Context, j *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[j.ID]; exists {
		return apperrors.Conflict("job", j.ID, "job "+j.ID+" already exists")
	}
	cp := *j
	s.jobs[j.ID] = &cp
	return nil
}

// Get returns a copy of the job.
func (s *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, apperrors.NotFound("job", id)
	}
	cp := *j
	return &cp, nil
}

// List returns up to limit jobs, newest first.
func (s *MemoryStore) List(_ context.Context, limit int) ([]Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	jobs := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, *j)
	}
	sort.Slice(jobs, func(a, b int) bool {
		return jobs[a].CreatedAt.After(jobs[b].CreatedAt)
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// UpdateLog replaces the stored log.
func (s *MemoryStore) UpdateLog(_ context.Context, id, log string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return apperrors.NotFound("job", id)
	}
	j.Log = log
	return nil
}

// UpdateStatus replaces the stored status.
func (s *MemoryStore) UpdateStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return apperrors.NotFound("job", id)
	}
	j.Status = status
	return nil
}

var _ Store = (*MemoryStore)(nil)

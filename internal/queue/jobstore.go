package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrJobNotFound is returned when updating a job the store does not hold.
var ErrJobNotFound = errors.New("job not found")

// JobStore persists jobs between attempts.
type JobStore interface {
	// Add stores a new pending job.
	Add(ctx context.Context, job Job) error
	// Claim marks up to limit pending jobs due at now as running and
	// returns them. A job is handed to at most one caller.
	Claim(ctx context.Context, now time.Time, limit int) ([]Job, error)
	// Update replaces a job after an attempt.
	Update(ctx context.Context, job Job) error
	// Delete drops a job in a terminal state.
	Delete(ctx context.Context, id string) error
	// Recover returns jobs left running by a previous process to pending.
	Recover(ctx context.Context, now time.Time) (int, error)
	// Len counts pending and running jobs.
	Len(ctx context.Context) (int, error)
}

// MemoryJobStore keeps jobs in process memory.
type MemoryJobStore struct {
	mu   sync.Mutex
	jobs map[string]Job
}

// NewMemoryJobStore creates an empty MemoryJobStore.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]Job)}
}

func (m *MemoryJobStore) Add(ctx context.Context, job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	return nil
}

func (m *MemoryJobStore) Claim(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []Job
	for _, j := range m.jobs {
		if j.State == StatePending && !j.NextAttemptAt.After(now) {
			due = append(due, j)
		}
	}
	sort.Slice(due, func(i, k int) bool { return due[i].NextAttemptAt.Before(due[k].NextAttemptAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	for i := range due {
		due[i].State = StateRunning
		m.jobs[due[i].ID] = due[i]
	}
	return due, nil
}

func (m *MemoryJobStore) Update(ctx context.Context, job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		return ErrJobNotFound
	}
	m.jobs[job.ID] = job
	return nil
}

func (m *MemoryJobStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
	return nil
}

func (m *MemoryJobStore) Recover(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, j := range m.jobs {
		if j.State == StateRunning {
			j.State = StatePending
			j.NextAttemptAt = now
			m.jobs[id] = j
			n++
		}
	}
	return n, nil
}

func (m *MemoryJobStore) Len(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs), nil
}

// Snapshot returns a copy of every stored job.
func (m *MemoryJobStore) Snapshot() []Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j)
	}
	return out
}

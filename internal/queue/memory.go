package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryQueue is an in-process Queue for tests and single-node setups
// without Redis. Jobs do not survive a restart.
type MemoryQueue struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	pending []string // job IDs in FIFO order
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{jobs: map[string]*Job{}}
}

// Enqueue stores the job and appends it to the pending list.
func (q *MemoryQueue) Enqueue(_ context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	cp := *job
	q.jobs[job.ID] = &cp
	q.pending = append(q.pending, job.ID)
	return nil
}

// Dequeue pops the oldest pending job.
func (q *MemoryQueue) Dequeue(_ context.Context) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.pending) > 0 {
		id := q.pending[0]
		q.pending = q.pending[1:]
		if job, ok := q.jobs[id]; ok {
			cp := *job
			return &cp, nil
		}
	}
	return nil, ErrQueueEmpty
}

// Get returns the stored record for a job ID.
func (q *MemoryQueue) Get(_ context.Context, jobID string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

// UpdateStatus advances a job's status and attaches the result.
func (q *MemoryQueue) UpdateStatus(_ context.Context, jobID string, status JobStatus, result json.RawMessage) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	if !ValidTransition(job.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, status)
	}

	job.Status = status
	if result != nil {
		job.Result = result
	}
	job.UpdatedAt = time.Now()

	cp := *job
	return &cp, nil
}

// ListUserJobs returns the user's jobs, most recently updated first.
func (q *MemoryQueue) ListUserJobs(_ context.Context, userID uint, limit int) ([]Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if limit <= 0 {
		limit = 10
	}

	var jobs []Job
	for _, job := range q.jobs {
		if job.UserID == userID {
			jobs = append(jobs, *job)
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].UpdatedAt.After(jobs[j].UpdatedAt)
	})
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

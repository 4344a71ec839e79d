// Package queue provides the asynchronous transformation job queue.
// Jobs are enqueued by the API and consumed by the worker process.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// JobStatus is the lifecycle state of a transformation job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusError      JobStatus = "error"
)

var (
	// ErrJobNotFound is returned when a job ID has no stored record.
	ErrJobNotFound = errors.New("job not found")

	// ErrQueueEmpty is returned by Dequeue when no job is waiting.
	ErrQueueEmpty = errors.New("no jobs queued")

	// ErrInvalidTransition is returned for status updates that would move
	// a job backwards in its lifecycle.
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// statusRank orders the lifecycle so status can only move forward.
// completed and error are both terminal.
var statusRank = map[JobStatus]int{
	JobStatusQueued:     0,
	JobStatusProcessing: 1,
	JobStatusCompleted:  2,
	JobStatusError:      2,
}

// ValidTransition reports whether a job may move from one status to
// another. Terminal states accept no further updates.
func ValidTransition(from, to JobStatus) bool {
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}

// Job is one queued transformation request and its eventual result.
type Job struct {
	ID               string          `json:"job_id"`
	UserID           uint            `json:"user_id"`
	DocumentID       uint            `json:"document_id"`
	TemplateInputID  uint            `json:"template_input_id"`
	TemplateOutputID uint            `json:"template_output_id"`
	Status           JobStatus       `json:"status"`
	Result           json.RawMessage `json:"result,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Queue stores jobs and hands them to workers.
type Queue interface {
	// Enqueue persists a new job and makes it available for workers.
	// The job must arrive with ID, status, and timestamps already set.
	Enqueue(ctx context.Context, job *Job) error

	// Dequeue pops the oldest waiting job, or ErrQueueEmpty.
	Dequeue(ctx context.Context) (*Job, error)

	// Get returns the stored record for a job ID.
	Get(ctx context.Context, jobID string) (*Job, error)

	// UpdateStatus advances a job's status and optionally attaches a
	// result payload. Backward transitions fail with ErrInvalidTransition.
	UpdateStatus(ctx context.Context, jobID string, status JobStatus, result json.RawMessage) (*Job, error)

	// ListUserJobs returns a user's jobs, most recently updated first.
	ListUserJobs(ctx context.Context, userID uint, limit int) ([]Job, error)
}

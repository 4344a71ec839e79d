// Package worker consumes transformation jobs from the queue and runs
// them through the document pipeline without the synchronous time budget.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/marcus/docmorph/internal/logger"
	"github.com/marcus/docmorph/internal/queue"
	"github.com/marcus/docmorph/internal/service"
)

// Transformer is the slice of DocumentService the worker needs.
type Transformer interface {
	TransformForJob(ctx context.Context, userID, documentID, templateInputID, templateOutputID uint) (*service.TransformOutcome, error)
}

// Worker polls the job queue and processes transformation jobs one at a
// time.
type Worker struct {
	queue        queue.Queue
	docs         Transformer
	pollInterval time.Duration
}

// New creates a Worker.
// Parameters:
//   - q: job queue to poll.
//   - docs: transformation pipeline.
//   - pollInterval: sleep between polls when the queue is empty.
// Returns:
//   - *Worker: initialized worker.
func New(q queue.Queue, docs Transformer, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Worker{
		queue:        q,
		docs:         docs,
		pollInterval: pollInterval,
	}
}

// Run polls for jobs until the context is canceled. Queue errors are
// logged and retried after a backoff; they never stop the loop.
// Parameters:
//   - ctx: cancel to shut the worker down.
// Returns:
//   - error: ctx.Err() once the context ends.
func (w *Worker) Run(ctx context.Context) error {
	logger.CtxInfo(ctx, "transformation worker started", logger.Fields{
		"poll_interval": w.pollInterval.String(),
	})

	for {
		job, err := w.queue.Dequeue(ctx)
		switch {
		case errors.Is(err, queue.ErrQueueEmpty):
			if !w.sleep(ctx, w.pollInterval) {
				return ctx.Err()
			}
			continue
		case err != nil:
			logger.CtxError(ctx, "failed to dequeue job", err)
			// Back off harder on queue errors, which usually mean Redis
			// is unreachable or restarting.
			if !w.sleep(ctx, 2*w.pollInterval) {
				return ctx.Err()
			}
			continue
		}

		w.process(ctx, job)

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// process runs one job end to end and records its terminal status.
func (w *Worker) process(ctx context.Context, job *queue.Job) {
	log := logger.FromContext(ctx).WithField(logger.FieldJobID, job.ID)
	ctx = logger.WithLogger(ctx, log)

	log.WithFields(logger.Fields{
		logger.FieldUserID:     job.UserID,
		logger.FieldDocumentID: job.DocumentID,
	}).Info("processing transformation job")

	if _, err := w.queue.UpdateStatus(ctx, job.ID, queue.JobStatusProcessing, nil); err != nil {
		log.WithError(err).Error("failed to mark job processing")
		return
	}

	start := time.Now()
	outcome, err := w.docs.TransformForJob(ctx, job.UserID, job.DocumentID, job.TemplateInputID, job.TemplateOutputID)
	if err != nil {
		w.fail(ctx, job, err)
		return
	}

	payload, err := json.Marshal(outcome)
	if err != nil {
		w.fail(ctx, job, err)
		return
	}

	if _, err := w.queue.UpdateStatus(ctx, job.ID, queue.JobStatusCompleted, payload); err != nil {
		log.WithError(err).Error("failed to mark job completed")
		return
	}

	log.WithFields(logger.Fields{
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
		logger.FieldStatus:     outcome.Status,
	}).Info("transformation job completed")
}

// fail records an error outcome for the job.
func (w *Worker) fail(ctx context.Context, job *queue.Job, cause error) {
	logger.CtxError(ctx, "transformation job failed", cause, logger.Fields{
		logger.FieldJobID: job.ID,
	})

	payload, _ := json.Marshal(map[string]interface{}{
		"error":       cause.Error(),
		"document_id": job.DocumentID,
		"message":     "Error during document transformation",
	})
	if _, err := w.queue.UpdateStatus(ctx, job.ID, queue.JobStatusError, payload); err != nil {
		logger.CtxError(ctx, "failed to mark job errored", err, logger.Fields{
			logger.FieldJobID: job.ID,
		})
	}
}

// sleep waits for d or until the context is canceled; it reports whether
// the full duration elapsed.
func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

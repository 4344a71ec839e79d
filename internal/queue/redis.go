package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	jobKeyPrefix = "transform_job:"
	queueKey     = "transform_jobs"

	// defaultRetention is how long completed and errored jobs stay
	// readable before Redis drops them.
	defaultRetention = 7 * 24 * time.Hour
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// Retention overrides how long terminal jobs stay readable.
	Retention time.Duration
}

// RedisQueue implements Queue on a Redis list plus per-job keys.
type RedisQueue struct {
	client    *redis.Client
	retention time.Duration
}

// NewRedisQueue creates a Redis-backed job queue and verifies the
// connection.
// Parameters:
//   - cfg: Redis connection settings.
// Returns:
//   - *RedisQueue: connected queue.
//   - error: non-nil if Redis is unreachable.
func NewRedisQueue(cfg RedisConfig) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	retention := cfg.Retention
	if retention <= 0 {
		retention = defaultRetention
	}
	return &RedisQueue{client: client, retention: retention}, nil
}

// Enqueue stores the job record and pushes it onto the work list.
func (q *RedisQueue) Enqueue(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	if err := q.client.Set(ctx, jobKeyPrefix+job.ID, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	if err := q.client.LPush(ctx, queueKey, data).Err(); err != nil {
		return fmt.Errorf("redis lpush: %w", err)
	}
	return nil
}

// Dequeue pops the oldest waiting job from the work list.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Job, error) {
	data, err := q.client.RPop(ctx, queueKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrQueueEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("redis rpop: %w", err)
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, nil
}

// Get returns the stored record for a job ID.
func (q *RedisQueue) Get(ctx context.Context, jobID string) (*Job, error) {
	data, err := q.client.Get(ctx, jobKeyPrefix+jobID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, nil
}

// UpdateStatus advances a job's status, attaches the result, and sets the
// retention TTL once the job reaches a terminal state.
func (q *RedisQueue) UpdateStatus(ctx context.Context, jobID string, status JobStatus, result json.RawMessage) (*Job, error) {
	job, err := q.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if !ValidTransition(job.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, status)
	}

	job.Status = status
	if result != nil {
		job.Result = result
	}
	job.UpdatedAt = time.Now()

	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.Set(ctx, jobKeyPrefix+jobID, data, 0).Err(); err != nil {
		return nil, fmt.Errorf("redis set: %w", err)
	}

	if status == JobStatusCompleted || status == JobStatusError {
		if err := q.client.Expire(ctx, jobKeyPrefix+jobID, q.retention).Err(); err != nil {
			return nil, fmt.Errorf("redis expire: %w", err)
		}
	}
	return job, nil
}

// ListUserJobs scans job keys and returns the user's jobs, most recently
// updated first.
func (q *RedisQueue) ListUserJobs(ctx context.Context, userID uint, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 10
	}

	var jobs []Job
	iter := q.client.Scan(ctx, 0, jobKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := q.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var job Job
		if err := json.Unmarshal(data, &job); err != nil {
			continue
		}
		if job.UserID == userID {
			jobs = append(jobs, job)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].UpdatedAt.After(jobs[j].UpdatedAt)
	})
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// Close closes the Redis connection.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

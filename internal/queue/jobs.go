package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"chatrelay-backend/internal/models"
)

const (
	jobsKey       = "queue:ai-jobs"
	processingKey = "queue:ai-jobs:processing"
	delayedKey    = "queue:ai-jobs:delayed"
	completedKey  = "queue:ai-jobs:completed"
	failedKey     = "queue:ai-jobs:failed"

	// Bounded retention of finished job records, for inspection only.
	keepCompleted = 10
	keepFailed    = 5

	lockTTL = 10 * time.Minute
)

// RetryPolicy configures redelivery of failed compute jobs.
type RetryPolicy struct {
	MaxAttempts int
	BackoffBase time.Duration
}

// DefaultRetryPolicy matches the queue options the pipeline was sized for:
// three attempts, exponential backoff starting at two seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BackoffBase: 2 * time.Second}
}

// NextDelay returns the backoff before redelivering a job whose given
// attempt (1-based) just failed: base * 2^(attempt-1).
func (p RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.BackoffBase * (1 << uint(attempt-1))
}

// JobQueue is the durable compute queue for "generate AI reply" jobs,
// backed by a Redis list plus a sorted set of delayed retries. A dequeue
// moves the entry onto a processing list rather than removing it, so a job
// is never held only in worker memory: Ack removes it once the attempt has
// been settled (completed, retried, or failed terminally), Requeue puts it
// back, and RecoverStale returns orphaned processing entries to the queue
// after a worker crash.
type JobQueue struct {
	rdb    *redis.Client
	policy RetryPolicy
}

func NewJobQueue(rdb *redis.Client, policy RetryPolicy) *JobQueue {
	return &JobQueue{rdb: rdb, policy: policy}
}

func (q *JobQueue) Policy() RetryPolicy {
	return q.policy
}

// EnqueueAIJob creates a compute job for a user message and pushes it onto
// the queue. Returns the assigned job id.
func (q *JobQueue) EnqueueAIJob(ctx context.Context, conversationID, message, userID string) (string, error) {
	job := &models.AIJob{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Message:        message,
		UserID:         userID,
		Attempt:        0,
		EnqueuedAt:     time.Now().UTC(),
	}
	if err := q.push(ctx, job); err != nil {
		return "", err
	}
	log.Printf("queue: enqueued AI job %s for conversation %s", job.ID, conversationID)
	return job.ID, nil
}

func (q *JobQueue) push(ctx context.Context, job *models.AIJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.rdb.LPush(ctx, jobsKey, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Dequeue blocks up to timeout for the next job, parking its entry on the
// processing list until the caller settles it with Ack or Requeue. Returns
// (nil, nil) when the timeout elapses with no work.
func (q *JobQueue) Dequeue(ctx context.Context, timeout time.Duration) (*models.AIJob, error) {
	payload, err := q.rdb.BLMove(ctx, jobsKey, processingKey, "RIGHT", "LEFT", timeout).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}

	var job models.AIJob
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		// Unparseable entries would wedge the processing list forever.
		q.rdb.LRem(ctx, processingKey, 1, payload)
		return nil, fmt.Errorf("failed to parse job payload: %w", err)
	}
	job.Receipt = payload
	return &job, nil
}

// Ack removes a dequeued job's processing entry once its attempt has been
// settled. Safe to call at most once per dequeue.
func (q *JobQueue) Ack(ctx context.Context, job *models.AIJob) {
	if job.Receipt == "" {
		return
	}
	if err := q.rdb.LRem(ctx, processingKey, 1, job.Receipt).Err(); err != nil {
		log.Printf("queue: ack for job %s failed: %v", job.ID, err)
	}
}

// Requeue returns a dequeued but unprocessed job to the queue, for when a
// worker cannot run the attempt it popped (lock held elsewhere, shutdown).
func (q *JobQueue) Requeue(ctx context.Context, job *models.AIJob) error {
	if job.Receipt == "" {
		return q.push(ctx, job)
	}
	pipe := q.rdb.TxPipeline()
	pipe.LPush(ctx, jobsKey, job.Receipt)
	pipe.LRem(ctx, processingKey, 1, job.Receipt)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to requeue job %s: %w", job.ID, err)
	}
	return nil
}

// RecoverStale moves every processing entry back onto the queue and returns
// how many were moved. Run at worker startup: entries still parked there
// belong to attempts that died mid-flight. A recovered job another live
// worker is still holding gets redelivered, where the per-job lock refuses
// the duplicate attempt.
func (q *JobQueue) RecoverStale(ctx context.Context) (int, error) {
	moved := 0
	for {
		_, err := q.rdb.LMove(ctx, processingKey, jobsKey, "LEFT", "RIGHT").Result()
		if err == redis.Nil {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("failed to recover stale jobs: %w", err)
		}
		moved++
	}
}

// AcquireLock claims a job for a single in-flight attempt. At most one
// worker holds a given job id at a time.
func (q *JobQueue) AcquireLock(ctx context.Context, jobID string) bool {
	locked, err := q.rdb.SetNX(ctx, "job_lock:"+jobID, "1", lockTTL).Result()
	if err != nil {
		log.Printf("queue: lock acquire for job %s failed: %v", jobID, err)
		return false
	}
	return locked
}

func (q *JobQueue) ReleaseLock(ctx context.Context, jobID string) {
	if err := q.rdb.Del(ctx, "job_lock:"+jobID).Err(); err != nil {
		log.Printf("queue: lock release for job %s failed: %v", jobID, err)
	}
}

// ScheduleRetry places a failed job in the delay set, due after the
// policy's backoff for the attempt that just failed.
func (q *JobQueue) ScheduleRetry(ctx context.Context, job *models.AIJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job for retry: %w", err)
	}
	runAt := time.Now().Add(q.policy.NextDelay(job.Attempt))
	if err := q.rdb.ZAdd(ctx, delayedKey, redis.Z{
		Score:  float64(runAt.Unix()),
		Member: data,
	}).Err(); err != nil {
		return fmt.Errorf("failed to schedule retry: %w", err)
	}
	return nil
}

// MoveDue pushes delayed jobs whose backoff has elapsed back onto the
// queue. Called periodically by the pump.
func (q *JobQueue) MoveDue(ctx context.Context) error {
	now := fmt.Sprintf("%d", time.Now().Unix())
	members, err := q.rdb.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min: "-inf", Max: now, Offset: 0, Count: 100,
	}).Result()
	if err != nil || len(members) == 0 {
		return err
	}

	pipe := q.rdb.TxPipeline()
	for _, m := range members {
		pipe.LPush(ctx, jobsKey, m)
		pipe.ZRem(ctx, delayedKey, m)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// StartDelayPump runs MoveDue every interval until ctx is canceled.
func (q *JobQueue) StartDelayPump(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := q.MoveDue(ctx); err != nil && err != context.Canceled {
					log.Printf("queue: delay pump failed: %v", err)
				}
			}
		}
	}()
}

// jobRecord is the retained trace of a finished job.
type jobRecord struct {
	Job        models.AIJob `json:"job"`
	Error      string       `json:"error,omitempty"`
	FinishedAt time.Time    `json:"finished_at"`
}

// MarkCompleted records a terminal success, keeping only the most recent
// records.
func (q *JobQueue) MarkCompleted(ctx context.Context, job *models.AIJob) {
	q.retain(ctx, completedKey, keepCompleted, jobRecord{Job: *job, FinishedAt: time.Now().UTC()})
}

// MarkFailed records a terminal failure after retry exhaustion.
func (q *JobQueue) MarkFailed(ctx context.Context, job *models.AIJob, jobErr error) {
	rec := jobRecord{Job: *job, FinishedAt: time.Now().UTC()}
	if jobErr != nil {
		rec.Error = jobErr.Error()
	}
	q.retain(ctx, failedKey, keepFailed, rec)
}

func (q *JobQueue) retain(ctx context.Context, key string, keep int64, rec jobRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		log.Printf("queue: failed to marshal job record: %v", err)
		return
	}
	pipe := q.rdb.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, keep-1)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("queue: failed to retain job record on %s: %v", key, err)
	}
}

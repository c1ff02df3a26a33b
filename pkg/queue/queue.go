package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueuePolls is the Redis list key for poll finalization jobs.
	QueuePolls = "worker:poll_finalize"
	// QueueGroups is the Redis list key for discussion-group provisioning jobs.
	QueueGroups = "worker:groups"
	// QueueDLQ is the dead-letter queue for failed jobs after retries.
	QueueDLQ = "worker:dlq"
	// MaxRetries is the number of times to retry a job before moving to DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypePollFinalize   JobType = "poll_finalize"
	JobTypeGroupProvision JobType = "group_provision"
)

// PollFinalizePayload carries the final tallies of a closed question so the
// worker can persist them onto the durable question and analytics records.
type PollFinalizePayload struct {
	ConferenceID  uuid.UUID      `json:"conference_id"`
	QuestionID    uuid.UUID      `json:"question_id"`
	Reason        string         `json:"reason"`
	TotalVotes    int            `json:"total_votes"`
	OptionCounts  map[string]int `json:"option_counts"`
	Percentages   map[string]int `json:"percentages"`
	CorrectOption string         `json:"correct_option"`
	CorrectCount  int            `json:"correct_count"`
	ClosedAt      time.Time      `json:"closed_at"`
}

// GroupProvisionPayload requests lazy creation of a conference's discussion group.
type GroupProvisionPayload struct {
	ConferenceID uuid.UUID `json:"conference_id"`
	Title        string    `json:"title"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Queue enqueues and dequeues jobs via Redis.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

// EnqueuePollFinalize enqueues a poll finalization job.
func (q *Queue) EnqueuePollFinalize(ctx context.Context, payload PollFinalizePayload) error {
	if err := q.enqueue(ctx, QueuePolls, JobTypePollFinalize, payload); err != nil {
		return err
	}
	q.logger.Debug("enqueued poll finalize job", zap.String("question_id", payload.QuestionID.String()))
	return nil
}

// EnqueueGroupProvision enqueues a discussion-group provisioning job.
func (q *Queue) EnqueueGroupProvision(ctx context.Context, payload GroupProvisionPayload) error {
	if err := q.enqueue(ctx, QueueGroups, JobTypeGroupProvision, payload); err != nil {
		return err
	}
	q.logger.Debug("enqueued group provision job", zap.String("conference_id", payload.ConferenceID.String()))
	return nil
}

func (q *Queue) enqueue(ctx context.Context, key string, jobType JobType, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	job := Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Payload:   body,
		Attempt:   0,
		CreatedAt: time.Now(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, key, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	return nil
}

// Dequeue blocks until a job is available or ctx is done. Returns job and key (queue name).
func (q *Queue) Dequeue(ctx context.Context) (*Job, string, error) {
	result, err := q.client.BLPop(ctx, 0, QueuePolls, QueueGroups).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, "", nil
		}
		return nil, "", err
	}
	if len(result) < 2 {
		return nil, "", nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, "", nil
	}
	return &job, result[0], nil
}

// Retry re-enqueues a job with incremented attempt. If attempt >= MaxRetries, pushes to DLQ instead.
func (q *Queue) Retry(ctx context.Context, job *Job, key string) error {
	job.Attempt++
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if job.Attempt >= MaxRetries {
		if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
			return err
		}
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return nil
	}
	if key == "" {
		key = QueuePolls
	}
	if err := q.client.RPush(ctx, key, raw).Err(); err != nil {
		return err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}

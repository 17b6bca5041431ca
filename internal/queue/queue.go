// Package queue is the durable work queue half of the job orchestrator:
// at-least-once delivery over Redis lists, one list per Job.Kind so
// each kind is drained by its own worker goroutines and a slow kind
// (such as the Renderer's ApplyPlan) does not hold up the others.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bobarin/reelforge/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// QueueName returns the Redis list key for a given job kind.
func QueueName(kind models.JobKind) string {
	return "queue:" + string(kind)
}

// AllQueueNames enumerates every queue a worker pool drains.
func AllQueueNames() []string {
	kinds := []models.JobKind{
		models.JobKindProbe,
		models.JobKindTranscribe,
		models.JobKindDetectSilence,
		models.JobKindDetectScenes,
		models.JobKindDescribeFrames,
		models.JobKindIndexScenes,
		models.JobKindSelectClips,
		models.JobKindPlanHeuristic,
		models.JobKindPlanStory,
		models.JobKindApplyPlan,
	}
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = QueueName(k)
	}
	return names
}

// Message is the queue envelope: just enough to let a worker look up the
// authoritative Job row in the Registry. Every other input a handler needs
// is a deterministic function of Registry state, not carried here.
type Message struct {
	JobID     uuid.UUID      `json:"job_id"`
	MediaID   uuid.UUID      `json:"media_id"`
	Kind      models.JobKind `json:"kind"`
	CreatedAt time.Time      `json:"created_at"`
}

type Queue struct {
	client *redis.Client
}

func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

// Enqueue pushes a job onto its kind's queue.
func (q *Queue) Enqueue(ctx context.Context, jobID, mediaID uuid.UUID, kind models.JobKind) error {
	msg := Message{JobID: jobID, MediaID: mediaID, Kind: kind, CreatedAt: time.Now()}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal job message: %w", err)
	}
	return q.client.RPush(ctx, QueueName(kind), data).Err()
}

// EnqueueAfter re-enqueues a job after a delay — used both for the
// Orchestrator's retry backoff and for a worker that claimed a job whose
// preconditions were not yet met (re-enqueued with a short delay, not
// failed). Implemented with a Redis sorted-set timer list
// rather than a blocking sleep, so the worker pool is never starved.
func (q *Queue) EnqueueAfter(ctx context.Context, jobID, mediaID uuid.UUID, kind models.JobKind, delay time.Duration) error {
	msg := Message{JobID: jobID, MediaID: mediaID, Kind: kind, CreatedAt: time.Now()}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal job message: %w", err)
	}
	readyAt := float64(time.Now().Add(delay).Unix())
	return q.client.ZAdd(ctx, delayedSetName(kind), &redis.Z{Score: readyAt, Member: data}).Err()
}

// PromoteDueDelayed moves any delayed message whose deadline has passed
// back onto the live queue for its kind. Workers call this once per poll
// cycle before blocking on Dequeue.
func (q *Queue) PromoteDueDelayed(ctx context.Context, kind models.JobKind) error {
	setName := delayedSetName(kind)
	now := float64(time.Now().Unix())
	due, err := q.client.ZRangeByScore(ctx, setName, &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%f", now)}).Result()
	if err != nil {
		return fmt.Errorf("failed to scan delayed set: %w", err)
	}
	for _, data := range due {
		if err := q.client.RPush(ctx, QueueName(kind), data).Err(); err != nil {
			return fmt.Errorf("failed to promote delayed job: %w", err)
		}
		q.client.ZRem(ctx, setName, data)
	}
	return nil
}

func delayedSetName(kind models.JobKind) string {
	return "delayed:" + string(kind)
}

// Dequeue blocks up to timeout waiting for a message on queueName.
func (q *Queue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Message, error) {
	result, err := q.client.BLPop(ctx, timeout, queueName).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	var msg Message
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job message: %w", err)
	}
	return &msg, nil
}

func (q *Queue) QueueLength(ctx context.Context, queueName string) (int64, error) {
	return q.client.LLen(ctx, queueName).Result()
}

package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"tripflow/internal/models"
)

const (
	readyKey      = "itinerary:ready"
	inflightKey   = "itinerary:inflight"
	scheduledKey  = "itinerary:scheduled"
	jobMetaPrefix = "itinerary:job:"
)

// Queue is a durable at-least-once itinerary job queue in Redis. Jobs wait in
// a ready list, hold a visibility lease while in flight, and sit in a
// scheduled set while backing off between retries. A worker that dies without
// acking loses its lease and the job is redelivered.
type Queue struct {
	client        *redis.Client
	visibilityTTL time.Duration
}

// New builds a queue over an existing Redis client.
func New(client *redis.Client, visibility time.Duration) *Queue {
	if visibility == 0 {
		visibility = 5 * time.Minute
	}
	return &Queue{
		client:        client,
		visibilityTTL: visibility,
	}
}

func metaKey(itineraryID string) string {
	return jobMetaPrefix + itineraryID
}

// Enqueue appends an itinerary job to the ready queue. Returns immediately;
// ordering across itineraries is not guaranteed.
func (q *Queue) Enqueue(ctx context.Context, itineraryID string) error {
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, metaKey(itineraryID),
		"enqueued_at", time.Now().UnixMilli(),
		"attempt", 1,
	)
	pipe.RPush(ctx, readyKey, itineraryID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue itinerary %s: %w", itineraryID, err)
	}
	return nil
}

// DequeueWithLease pops the next ready job and places it into the in-flight
// set with a visibility deadline. The second return is false when the queue
// is empty.
func (q *Queue) DequeueWithLease(ctx context.Context) (models.ItineraryJob, bool, error) {
	deadline := time.Now().Add(q.visibilityTTL).UnixMilli()
	res, err := dequeueScript.Run(ctx, q.client, []string{readyKey, inflightKey}, deadline).Result()
	if err == redis.Nil {
		return models.ItineraryJob{}, false, nil
	}
	if err != nil {
		return models.ItineraryJob{}, false, fmt.Errorf("dequeue: %w", err)
	}
	id, ok := res.(string)
	if !ok {
		return models.ItineraryJob{}, false, fmt.Errorf("unexpected type from dequeue script: %T", res)
	}

	job := models.ItineraryJob{ItineraryID: id, Attempt: 1}
	meta, err := q.client.HGetAll(ctx, metaKey(id)).Result()
	if err == nil {
		if ms, err := strconv.ParseInt(meta["enqueued_at"], 10, 64); err == nil {
			job.EnqueuedAt = time.UnixMilli(ms)
		}
		if n, err := strconv.Atoi(meta["attempt"]); err == nil && n > 0 {
			job.Attempt = n
		}
	}
	return job, true, nil
}

// ExtendLease pushes the visibility deadline forward for an in-flight job.
func (q *Queue) ExtendLease(ctx context.Context, itineraryID string, extension time.Duration) error {
	return q.client.ZAdd(ctx, inflightKey, redis.Z{
		Score:  float64(time.Now().Add(extension).UnixMilli()),
		Member: itineraryID,
	}).Err()
}

// Ack removes a job from in-flight tracking and deletes its meta record.
func (q *Queue) Ack(ctx context.Context, itineraryID string) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, inflightKey, itineraryID)
	pipe.Del(ctx, metaKey(itineraryID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ack itinerary %s: %w", itineraryID, err)
	}
	return nil
}

// ScheduleRetry moves a failed job into the scheduled set for redelivery at
// runAt and bumps its attempt count.
func (q *Queue) ScheduleRetry(ctx context.Context, itineraryID string, runAt time.Time) error {
	pipe := q.client.TxPipeline()
	pipe.HIncrBy(ctx, metaKey(itineraryID), "attempt", 1)
	pipe.ZRem(ctx, inflightKey, itineraryID)
	pipe.ZAdd(ctx, scheduledKey, redis.Z{Score: float64(runAt.UnixMilli()), Member: itineraryID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("schedule retry for %s: %w", itineraryID, err)
	}
	return nil
}

// PromoteScheduled moves due scheduled jobs into the ready queue. It returns
// how many were promoted.
func (q *Queue) PromoteScheduled(ctx context.Context, now time.Time, limit int64) (int, error) {
	ids, err := q.client.ZRangeByScore(ctx, scheduledKey, &redis.ZRangeBy{
		Min:    "-inf",
		Max:    fmt.Sprintf("%d", now.UnixMilli()),
		Offset: 0,
		Count:  limit,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("range scheduled: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := q.client.TxPipeline()
	for _, id := range ids {
		pipe.ZRem(ctx, scheduledKey, id)
		pipe.RPush(ctx, readyKey, id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("promote scheduled: %w", err)
	}
	return len(ids), nil
}

// RequeueExpired reclaims leases that timed out, re-enqueuing the jobs and
// counting the redelivery as a new attempt.
func (q *Queue) RequeueExpired(ctx context.Context, now time.Time, limit int64) ([]string, error) {
	ids, err := q.client.ZRangeByScore(ctx, inflightKey, &redis.ZRangeBy{
		Min:    "-inf",
		Max:    fmt.Sprintf("%d", now.UnixMilli()),
		Offset: 0,
		Count:  limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("range inflight: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := q.client.TxPipeline()
	for _, id := range ids {
		pipe.ZRem(ctx, inflightKey, id)
		pipe.HIncrBy(ctx, metaKey(id), "attempt", 1)
		pipe.RPush(ctx, readyKey, id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("requeue expired: %w", err)
	}
	return ids, nil
}

// WaitingCount returns jobs waiting for delivery: ready plus scheduled.
func (q *Queue) WaitingCount(ctx context.Context) (int64, error) {
	pipe := q.client.Pipeline()
	ready := pipe.LLen(ctx, readyKey)
	scheduled := pipe.ZCard(ctx, scheduledKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("waiting count: %w", err)
	}
	return ready.Val() + scheduled.Val(), nil
}

// ActiveCount returns jobs currently leased by workers.
func (q *Queue) ActiveCount(ctx context.Context) (int64, error) {
	n, err := q.client.ZCard(ctx, inflightKey).Result()
	if err != nil {
		return 0, fmt.Errorf("active count: %w", err)
	}
	return n, nil
}

var dequeueScript = redis.NewScript(`
local job = redis.call('LPOP', KEYS[1])
if job then
  redis.call('ZADD', KEYS[2], ARGV[1], job)
  return job
end
return nil
`)

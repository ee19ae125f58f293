package queue

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestQueue(t *testing.T, visibility time.Duration) *Queue {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client, visibility)
}

func TestQueue_EnqueueDequeueAck(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, time.Minute)

	if err := q.Enqueue(ctx, "itin-1"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	waiting, err := q.WaitingCount(ctx)
	if err != nil || waiting != 1 {
		t.Fatalf("waiting = %d err=%v, want 1", waiting, err)
	}

	job, ok, err := q.DequeueWithLease(ctx)
	if err != nil || !ok {
		t.Fatalf("dequeue: ok=%v err=%v", ok, err)
	}
	if job.ItineraryID != "itin-1" {
		t.Fatalf("dequeued %q", job.ItineraryID)
	}
	if job.Attempt != 1 {
		t.Fatalf("attempt = %d, want 1", job.Attempt)
	}
	if job.EnqueuedAt.IsZero() {
		t.Fatal("enqueued_at not recorded")
	}

	active, err := q.ActiveCount(ctx)
	if err != nil || active != 1 {
		t.Fatalf("active = %d err=%v, want 1", active, err)
	}
	waiting, _ = q.WaitingCount(ctx)
	if waiting != 0 {
		t.Fatalf("waiting = %d after dequeue, want 0", waiting)
	}

	if err := q.Ack(ctx, "itin-1"); err != nil {
		t.Fatalf("ack: %v", err)
	}
	active, _ = q.ActiveCount(ctx)
	if active != 0 {
		t.Fatalf("active = %d after ack, want 0", active)
	}
}

func TestQueue_EmptyDequeue(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, time.Minute)

	_, ok, err := q.DequeueWithLease(ctx)
	if err != nil {
		t.Fatalf("dequeue empty: %v", err)
	}
	if ok {
		t.Fatal("expected no job from empty queue")
	}
}

func TestQueue_ExpiredLeaseIsRedelivered(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, 10*time.Millisecond)

	if err := q.Enqueue(ctx, "itin-2"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, ok, err := q.DequeueWithLease(ctx); err != nil || !ok {
		t.Fatalf("first dequeue: ok=%v err=%v", ok, err)
	}

	// The worker "dies" here; the lease deadline passes.
	ids, err := q.RequeueExpired(ctx, time.Now().Add(time.Second), 100)
	if err != nil {
		t.Fatalf("requeue expired: %v", err)
	}
	if len(ids) != 1 || ids[0] != "itin-2" {
		t.Fatalf("reclaimed %v, want [itin-2]", ids)
	}

	job, ok, err := q.DequeueWithLease(ctx)
	if err != nil || !ok {
		t.Fatalf("redelivery: ok=%v err=%v", ok, err)
	}
	if job.Attempt != 2 {
		t.Fatalf("redelivered attempt = %d, want 2", job.Attempt)
	}
}

func TestQueue_ScheduleRetryAndPromote(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, time.Minute)

	if err := q.Enqueue(ctx, "itin-3"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, ok, _ := q.DequeueWithLease(ctx); !ok {
		t.Fatal("dequeue")
	}

	runAt := time.Now().Add(30 * time.Second)
	if err := q.ScheduleRetry(ctx, "itin-3", runAt); err != nil {
		t.Fatalf("schedule retry: %v", err)
	}

	// Scheduled jobs still count as waiting but are not ready yet.
	waiting, _ := q.WaitingCount(ctx)
	if waiting != 1 {
		t.Fatalf("waiting = %d, want 1", waiting)
	}
	if _, ok, _ := q.DequeueWithLease(ctx); ok {
		t.Fatal("scheduled job must not be ready before promotion")
	}

	n, err := q.PromoteScheduled(ctx, runAt.Add(time.Second), 100)
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if n != 1 {
		t.Fatalf("promoted %d, want 1", n)
	}

	job, ok, err := q.DequeueWithLease(ctx)
	if err != nil || !ok {
		t.Fatalf("dequeue after promote: ok=%v err=%v", ok, err)
	}
	if job.Attempt != 2 {
		t.Fatalf("attempt = %d after retry, want 2", job.Attempt)
	}
}

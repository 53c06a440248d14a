package queue_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/MaximushkaBed/telegram-sales-parser/internal/database"
	"github.com/MaximushkaBed/telegram-sales-parser/internal/queue"

	_ "modernc.org/sqlite"
)

func newTestQueue(t *testing.T, maxAttempts int) queue.Queue {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "queue_test.db"))
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	return queue.NewSQLiteQueue(db, maxAttempts, nil)
}

func testPayload(subID int64) queue.Payload {
	return queue.Payload{
		SubscriptionID: subID,
		OwnerID:        10,
		ChatID:         -100555,
		MessageID:      42,
		AuthorID:       9000,
		Text:           "продам шкаф",
		Timestamp:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSQLiteQueue_EnqueueLeaseComplete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := newTestQueue(t, 5)

	if err := q.Enqueue(ctx, testPayload(1)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	job, err := q.Lease(ctx, time.Minute)
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	if job == nil {
		t.Fatal("Lease returned no job for a non-empty queue")
	}
	if job.Attempts != 1 {
		t.Errorf("job.Attempts = %d, want 1", job.Attempts)
	}
	if job.Payload.SubscriptionID != 1 || job.Payload.Text != "продам шкаф" {
		t.Errorf("leased payload = %+v", job.Payload)
	}

	// The job is leased, so a second lease must come up empty.
	if second, err := q.Lease(ctx, time.Minute); err != nil || second != nil {
		t.Fatalf("second Lease = (%v, %v), want no job while leased", second, err)
	}

	if err := q.Complete(ctx, job.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if third, err := q.Lease(ctx, time.Minute); err != nil || third != nil {
		t.Fatalf("Lease after Complete = (%v, %v), want empty queue", third, err)
	}
}

func TestSQLiteQueue_EnqueueRejectsUnaddressedPayload(t *testing.T) {
	t.Parallel()

	q := newTestQueue(t, 5)
	if err := q.Enqueue(context.Background(), testPayload(0)); err == nil {
		t.Fatal("Enqueue accepted a payload without a subscription id")
	}
}

func TestSQLiteQueue_FailReleasesForRetry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := newTestQueue(t, 5)

	if err := q.Enqueue(ctx, testPayload(1)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	job, err := q.Lease(ctx, time.Minute)
	if err != nil || job == nil {
		t.Fatalf("Lease = (%v, %v)", job, err)
	}

	if err := q.Fail(ctx, job.ID, errors.New("transient")); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	retried, err := q.Lease(ctx, time.Minute)
	if err != nil {
		t.Fatalf("Lease after Fail: %v", err)
	}
	if retried == nil {
		t.Fatal("failed job was not released for retry")
	}
	if retried.ID != job.ID {
		t.Errorf("retried job id = %d, want %d", retried.ID, job.ID)
	}
	if retried.Attempts != 2 {
		t.Errorf("retried job attempts = %d, want 2", retried.Attempts)
	}
}

func TestSQLiteQueue_FailParksExhaustedJob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := newTestQueue(t, 2)

	if err := q.Enqueue(ctx, testPayload(1)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	for attempt := 1; attempt <= 2; attempt++ {
		job, err := q.Lease(ctx, time.Minute)
		if err != nil || job == nil {
			t.Fatalf("Lease on attempt %d = (%v, %v)", attempt, job, err)
		}
		if err := q.Fail(ctx, job.ID, errors.New("persistent failure")); err != nil {
			t.Fatalf("Fail on attempt %d: %v", attempt, err)
		}
	}

	// The attempt budget is spent; the job must stay parked.
	if job, err := q.Lease(ctx, time.Minute); err != nil || job != nil {
		t.Fatalf("Lease after exhausting attempts = (%v, %v), want no job", job, err)
	}
}

func TestSQLiteQueue_ReapExpiredReleasesLeases(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := newTestQueue(t, 5)

	if err := q.Enqueue(ctx, testPayload(1)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// Take a lease that expires immediately, simulating a crashed worker.
	job, err := q.Lease(ctx, -time.Second)
	if err != nil || job == nil {
		t.Fatalf("Lease = (%v, %v)", job, err)
	}

	// An expired lease is leasable again without reaping; the reaper just
	// clears it eagerly so waiting workers pick it up sooner.
	n, err := q.ReapExpired(ctx)
	if err != nil {
		t.Fatalf("ReapExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("ReapExpired reclaimed %d leases, want 1", n)
	}

	reclaimed, err := q.Lease(ctx, time.Minute)
	if err != nil || reclaimed == nil {
		t.Fatalf("Lease after reap = (%v, %v)", reclaimed, err)
	}
	if reclaimed.ID != job.ID {
		t.Errorf("reclaimed job id = %d, want %d", reclaimed.ID, job.ID)
	}
}

func TestSQLiteQueue_OrderIsFIFO(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := newTestQueue(t, 5)

	for i := int64(1); i <= 3; i++ {
		p := testPayload(i)
		p.MessageID = i
		if err := q.Enqueue(ctx, p); err != nil {
			t.Fatalf("Enqueue %d: %v", i, err)
		}
	}

	for want := int64(1); want <= 3; want++ {
		job, err := q.Lease(ctx, time.Minute)
		if err != nil || job == nil {
			t.Fatalf("Lease = (%v, %v)", job, err)
		}
		if job.Payload.MessageID != want {
			t.Errorf("leased message %d, want %d", job.Payload.MessageID, want)
		}
		if err := q.Complete(ctx, job.ID); err != nil {
			t.Fatalf("Complete: %v", err)
		}
	}
}

// Package queue provides the durable job queue between the ingestion
// gateway and the pipeline workers. Jobs survive restarts and are delivered
// at least once; consumers lease a job for a bounded duration and must
// complete, abort, or fail it.
package queue

import (
	"context"
	"time"
)

// Attachment is an opaque reference to one downloadable file plus the file
// extension to store it under.
type Attachment struct {
	FileID    string `json:"file_id"`
	Extension string `json:"extension"`
}

// Payload is the wire contract between the gateway and the workers. Each
// payload addresses exactly one subscription, so media storage and record
// persistence downstream are tenant-scoped.
type Payload struct {
	SubscriptionID int64        `json:"subscription_id"`
	OwnerID        int64        `json:"owner_id"`
	ChatID         int64        `json:"chat_id"`
	MessageID      int64        `json:"message_id"`
	AuthorID       int64        `json:"author_id"`
	Text           string       `json:"text"`
	Timestamp      time.Time    `json:"timestamp"`
	Attachments    []Attachment `json:"attachments"`
}

// Job is one leased queue entry.
type Job struct {
	ID       int64
	Attempts int
	Payload  Payload
}

// Queue is the durable broker consumed by the pipeline. Implementations
// must guarantee at-least-once delivery: a leased job whose lease expires
// without Complete/Abort/Fail becomes leasable again.
type Queue interface {
	// Enqueue appends one job. An error means the job was not accepted.
	Enqueue(ctx context.Context, payload Payload) error

	// Lease claims the oldest available job for leaseFor. Returns nil, nil
	// when no job is available.
	Lease(ctx context.Context, leaseFor time.Duration) (*Job, error)

	// Complete marks a job done. Used for successful persistence and for
	// silently absorbed duplicates.
	Complete(ctx context.Context, jobID int64) error

	// Abort terminally discards a job that must not be retried, recording
	// the reason.
	Abort(ctx context.Context, jobID int64, reason string) error

	// Fail releases a job after a transient error so another lease can
	// retry it. A job exhausting its attempts budget is parked as failed.
	Fail(ctx context.Context, jobID int64, jobErr error) error

	// ReapExpired releases expired leases and parks jobs that ran out of
	// attempts. Returns the number of leases released.
	ReapExpired(ctx context.Context) (int, error)
}

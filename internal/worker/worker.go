// Package worker consumes pipeline jobs from the durable queue, resolves
// media, classifies the message, and persists the outcome. Any number of
// workers may run concurrently, in one process or many; duplicate
// deliveries are absorbed by the sale record uniqueness constraint, so no
// cross-job coordination is needed.
package worker

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/MaximushkaBed/telegram-sales-parser/internal/classifier"
	"github.com/MaximushkaBed/telegram-sales-parser/internal/database"
	"github.com/MaximushkaBed/telegram-sales-parser/internal/media"
	"github.com/MaximushkaBed/telegram-sales-parser/internal/queue"
)

// Pipeline states, logged as each job moves through its lifecycle.
const (
	stateReceived      = "received"
	stateMediaResolved = "media_resolved"
	stateClassified    = "classified"
	statePersisted     = "persisted"
	stateAborted       = "aborted"
)

// Worker processes jobs one at a time: lease, run the pipeline, settle.
type Worker struct {
	queue        queue.Queue
	store        database.Store
	fetcher      *media.Fetcher
	engine       *classifier.Engine
	leaseFor     time.Duration
	pollInterval time.Duration
	log          *slog.Logger
}

// NewWorker creates a pipeline worker. leaseFor must comfortably exceed the
// worst-case oracle plus download time so a live worker never loses its
// lease mid-job.
func NewWorker(
	q queue.Queue,
	store database.Store,
	fetcher *media.Fetcher,
	engine *classifier.Engine,
	leaseFor time.Duration,
	pollInterval time.Duration,
	log *slog.Logger,
) *Worker {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Worker{
		queue:        q,
		store:        store,
		fetcher:      fetcher,
		engine:       engine,
		leaseFor:     leaseFor,
		pollInterval: pollInterval,
		log:          log,
	}
}

// Run consumes jobs until the context is cancelled. No single-job failure
// stops the loop; the worker keeps consuming after any error.
func (w *Worker) Run(ctx context.Context) error {
	for {
		job, err := w.queue.Lease(ctx, w.leaseFor)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.log.ErrorContext(ctx, "Failed to lease job", "error", err)
		}

		if job != nil {
			w.Process(ctx, job)
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.pollInterval):
		}
	}
}

// Process runs one job through the pipeline state machine and settles it
// on the queue.
func (w *Worker) Process(ctx context.Context, job *queue.Job) {
	p := job.Payload
	log := w.log.With(
		"job_id", job.ID,
		"chat_id", p.ChatID,
		"message_id", p.MessageID,
		"subscription_id", p.SubscriptionID,
	)
	log.DebugContext(ctx, "Job picked up", "state", stateReceived, "attempt", job.Attempts)

	// Media acquisition is best-effort and never fails the job; a skipped
	// attachment just leaves the record without a media pointer.
	mediaPath := w.fetcher.Save(ctx, p.OwnerID, p.ChatID, p.MessageID, p.Attachments)
	log.DebugContext(ctx, "Media resolved", "state", stateMediaResolved, "media_path", mediaPath)

	// Oracle failures degrade to a rule-only verdict inside the engine.
	result := w.engine.Classify(ctx, p.Text)
	log.DebugContext(ctx, "Message classified", "state", stateClassified,
		"rule_match", result.RuleMatch, "oracle_match", result.OracleMatch)

	sub, err := w.store.GetSubscriptionByID(ctx, p.SubscriptionID)
	if err != nil {
		w.settleFailed(ctx, log, job.ID, fmt.Errorf("looking up subscription: %w", err))
		return
	}
	if sub == nil {
		// Data-consistency failure: the gateway enqueued a job for a
		// subscription that no longer exists. Retrying cannot fix it.
		log.ErrorContext(ctx, "Integrity error: subscription vanished, aborting job", "state", stateAborted)
		if abortErr := w.queue.Abort(ctx, job.ID, "subscription vanished"); abortErr != nil {
			log.ErrorContext(ctx, "Failed to abort job", "error", abortErr)
		}
		return
	}

	record := &database.SaleRecord{
		MessageID:      p.MessageID,
		SubscriptionID: sub.ID,
		AuthorID:       p.AuthorID,
		Text:           p.Text,
		Timestamp:      p.Timestamp.UTC(),
		RuleMatch:      result.RuleMatch,
		OracleMatch:    result.OracleMatch,
	}
	if mediaPath != "" {
		record.MediaPath = sql.NullString{String: mediaPath, Valid: true}
	}

	inserted, err := w.store.UpsertSaleRecord(ctx, record)
	if err != nil {
		w.settleFailed(ctx, log, job.ID, fmt.Errorf("persisting sale record: %w", err))
		return
	}

	if !inserted {
		log.DebugContext(ctx, "Duplicate delivery absorbed", "state", statePersisted)
	} else {
		log.InfoContext(ctx, "Job persisted", "state", statePersisted, "is_sale", record.IsSale)
	}

	if err := w.queue.Complete(ctx, job.ID); err != nil {
		// The record is already persisted; a redelivery will be absorbed
		// by the uniqueness constraint.
		log.ErrorContext(ctx, "Failed to complete job after persistence", "error", err)
	}
}

func (w *Worker) settleFailed(ctx context.Context, log *slog.Logger, jobID int64, jobErr error) {
	log.WarnContext(ctx, "Job failed, releasing for retry", "error", jobErr)
	if err := w.queue.Fail(ctx, jobID, jobErr); err != nil {
		log.ErrorContext(ctx, "Failed to release job", "error", err)
	}
}

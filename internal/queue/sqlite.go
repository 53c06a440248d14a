package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Job states stored in the jobs table.
const (
	statusPending = "pending"
	statusDone    = "done"
	statusAborted = "aborted"
	statusFailed  = "failed"
)

// sqliteQueue implements Queue on top of the application's SQLite database,
// outbox style: the jobs table is the broker, leases make delivery
// at-least-once across any number of worker processes.
type sqliteQueue struct {
	db          *sqlx.DB
	maxAttempts int
	logger      *slog.Logger
}

// NewSQLiteQueue creates a Queue backed by the jobs table of the given
// database. maxAttempts bounds redelivery of a repeatedly failing job.
func NewSQLiteQueue(db *sqlx.DB, maxAttempts int, logger *slog.Logger) Queue {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &sqliteQueue{
		db:          db,
		maxAttempts: maxAttempts,
		logger:      logger.With("component", "queue"),
	}
}

func (q *sqliteQueue) Enqueue(ctx context.Context, payload Payload) error {
	if payload.SubscriptionID == 0 {
		return fmt.Errorf("job payload must address a subscription")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal job payload: %w", err)
	}

	_, err = q.db.ExecContext(ctx,
		`INSERT INTO jobs (payload, status, attempts, created_at) VALUES (?, ?, 0, ?);`,
		string(body), statusPending, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to enqueue job (chat %d, message %d): %w",
			payload.ChatID, payload.MessageID, err)
	}

	q.logger.DebugContext(ctx, "Job enqueued",
		"chat_id", payload.ChatID,
		"message_id", payload.MessageID,
		"subscription_id", payload.SubscriptionID)
	return nil
}

func (q *sqliteQueue) Lease(ctx context.Context, leaseFor time.Duration) (*Job, error) {
	now := time.Now().UTC()

	// Single UPDATE..RETURNING keeps claim-and-read atomic; with SQLite's
	// one-writer model no two workers can lease the same row.
	row := q.db.QueryRowxContext(ctx, `
        UPDATE jobs
        SET leased_until = ?, attempts = attempts + 1
        WHERE id = (
            SELECT id FROM jobs
            WHERE status = ? AND (leased_until IS NULL OR leased_until <= ?)
            ORDER BY id
            LIMIT 1
        )
        RETURNING id, payload, attempts;`,
		now.Add(leaseFor), statusPending, now)

	var (
		id       int64
		body     string
		attempts int
	)
	if err := row.Scan(&id, &body, &attempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lease job: %w", err)
	}

	var payload Payload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		// A payload that cannot be decoded can never succeed; park it.
		q.logger.ErrorContext(ctx, "Failed to decode leased job payload, parking job",
			"job_id", id, "error", err)
		if abortErr := q.Abort(ctx, id, fmt.Sprintf("undecodable payload: %v", err)); abortErr != nil {
			return nil, fmt.Errorf("failed to park undecodable job %d: %w", id, abortErr)
		}
		return nil, nil
	}

	return &Job{ID: id, Attempts: attempts, Payload: payload}, nil
}

func (q *sqliteQueue) Complete(ctx context.Context, jobID int64) error {
	if err := q.setTerminal(ctx, jobID, statusDone, ""); err != nil {
		return err
	}
	q.logger.DebugContext(ctx, "Job completed", "job_id", jobID)
	return nil
}

func (q *sqliteQueue) Abort(ctx context.Context, jobID int64, reason string) error {
	if err := q.setTerminal(ctx, jobID, statusAborted, reason); err != nil {
		return err
	}
	q.logger.WarnContext(ctx, "Job aborted", "job_id", jobID, "reason", reason)
	return nil
}

func (q *sqliteQueue) Fail(ctx context.Context, jobID int64, jobErr error) error {
	lastError := ""
	if jobErr != nil {
		lastError = jobErr.Error()
	}

	// Release the lease so the job becomes immediately leasable again,
	// unless the attempts budget is spent.
	result, err := q.db.ExecContext(ctx, `
        UPDATE jobs
        SET leased_until = NULL,
            last_error = ?,
            status = CASE WHEN attempts >= ? THEN ? ELSE status END
        WHERE id = ? AND status = ?;`,
		lastError, q.maxAttempts, statusFailed, jobID, statusPending)
	if err != nil {
		return fmt.Errorf("failed to release job %d: %w", jobID, err)
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		q.logger.WarnContext(ctx, "Tried to fail a job that is not pending", "job_id", jobID)
	}

	q.logger.DebugContext(ctx, "Job released for retry", "job_id", jobID, "error", lastError)
	return nil
}

func (q *sqliteQueue) ReapExpired(ctx context.Context) (int, error) {
	now := time.Now().UTC()

	parked, err := q.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, last_error = COALESCE(last_error, 'attempts exhausted')
         WHERE status = ? AND leased_until IS NOT NULL AND leased_until <= ? AND attempts >= ?;`,
		statusFailed, statusPending, now, q.maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("failed to park exhausted jobs: %w", err)
	}
	if n, err := parked.RowsAffected(); err == nil && n > 0 {
		q.logger.WarnContext(ctx, "Parked jobs with exhausted attempts", "count", n)
	}

	released, err := q.db.ExecContext(ctx,
		`UPDATE jobs SET leased_until = NULL
         WHERE status = ? AND leased_until IS NOT NULL AND leased_until <= ?;`,
		statusPending, now)
	if err != nil {
		return 0, fmt.Errorf("failed to release expired leases: %w", err)
	}

	n, err := released.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count released leases: %w", err)
	}
	if n > 0 {
		q.logger.InfoContext(ctx, "Released expired job leases", "count", n)
	}
	return int(n), nil
}

func (q *sqliteQueue) setTerminal(ctx context.Context, jobID int64, status, lastError string) error {
	var lastErrorValue any
	if lastError != "" {
		lastErrorValue = lastError
	}

	_, err := q.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, leased_until = NULL, last_error = COALESCE(?, last_error) WHERE id = ?;`,
		status, lastErrorValue, jobID)
	if err != nil {
		return fmt.Errorf("failed to mark job %d as %s: %w", jobID, status, err)
	}
	return nil
}

package worker

import (
	"context"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MaximushkaBed/telegram-sales-parser/internal/classifier"
	"github.com/MaximushkaBed/telegram-sales-parser/internal/database"
	"github.com/MaximushkaBed/telegram-sales-parser/internal/media"
	"github.com/MaximushkaBed/telegram-sales-parser/internal/queue"
)

// Pool runs a fixed number of workers over the shared queue. Jobs for
// different subscriptions are fully independent and jobs for the same
// subscription commute through the keyed upsert, so workers need no
// coordination beyond the queue lease.
type Pool struct {
	count   int
	workers []*Worker
	log     *slog.Logger
}

// NewPool creates count workers sharing the given dependencies.
func NewPool(
	count int,
	q queue.Queue,
	store database.Store,
	fetcher *media.Fetcher,
	engine *classifier.Engine,
	leaseFor time.Duration,
	pollInterval time.Duration,
	log *slog.Logger,
) *Pool {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if count < 1 {
		count = 1
	}

	workers := make([]*Worker, count)
	for i := range workers {
		workers[i] = NewWorker(q, store, fetcher, engine, leaseFor, pollInterval,
			log.With("component", "worker", "worker_id", i+1))
	}

	return &Pool{count: count, workers: workers, log: log.With("component", "worker_pool")}
}

// Run starts all workers and blocks until the context is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	p.log.Info("Starting worker pool", "count", p.count)

	g, gCtx := errgroup.WithContext(ctx)
	for _, w := range p.workers {
		g.Go(func() error {
			return w.Run(gCtx)
		})
	}

	err := g.Wait()
	p.log.Info("Worker pool stopped")
	return err
}

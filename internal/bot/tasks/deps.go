// Package tasks implements the periodic maintenance tasks of the sales
// parser: queue lease reaping and database maintenance.
package tasks

import (
	"log/slog"

	"github.com/MaximushkaBed/telegram-sales-parser/internal/database"
	"github.com/MaximushkaBed/telegram-sales-parser/internal/queue"
)

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger *slog.Logger
	Store  database.Store
	Queue  queue.Queue
}

// Package handlers contains Telegram bot command, callback, and group
// message handlers, along with their registration logic.
package handlers

import (
	"log/slog"

	"github.com/MaximushkaBed/telegram-sales-parser/internal/database"
	"github.com/MaximushkaBed/telegram-sales-parser/internal/gateway"
	"github.com/MaximushkaBed/telegram-sales-parser/internal/report"
)

// HandlerDeps provides dependencies for Telegram handlers.
type HandlerDeps struct {
	Logger    *slog.Logger
	Store     database.Store
	Gateway   *gateway.Gateway
	Extractor *report.Extractor
}

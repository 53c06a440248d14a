// Package report is the read side of the pipeline: it turns persisted
// sale records into an ordered tabular export for one owner.
package report

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/MaximushkaBed/telegram-sales-parser/internal/database"
)

// User-facing empty-result conditions, distinct from system failures. The
// caller reports these back to the requester instead of treating them as
// errors of the pipeline.
var (
	ErrNoSubscriptions = errors.New("no subscriptions for owner")
	ErrNoRecords       = errors.New("no qualifying records in range")
)

// Row is one line of the export.
type Row struct {
	Timestamp   time.Time
	ChatTitle   string
	Text        string
	AuthorID    int64
	RuleMatch   bool
	OracleMatch bool
	MediaPath   string
}

// Extractor builds reports from the store.
type Extractor struct {
	store database.Store
	log   *slog.Logger
}

// NewExtractor creates an Extractor over the given store.
func NewExtractor(store database.Store, log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Extractor{
		store: store,
		log:   log.With("component", "report"),
	}
}

// Extract returns all sale-flagged rows for the owner within the optional
// inclusive bounds, newest first. It fails with ErrNoSubscriptions when the
// owner tracks no chats and ErrNoRecords when nothing qualifies.
func (e *Extractor) Extract(ctx context.Context, ownerID int64, from, to *time.Time) ([]Row, error) {
	subs, err := e.store.ListSubscriptionsByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil, ErrNoSubscriptions
	}

	records, err := e.store.FindSaleRecordsByOwnerInRange(ctx, ownerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query sale records: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNoRecords
	}

	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		mediaPath := "none"
		if rec.MediaPath.Valid && rec.MediaPath.String != "" {
			mediaPath = rec.MediaPath.String
		}
		rows = append(rows, Row{
			Timestamp:   rec.Timestamp,
			ChatTitle:   rec.ChatTitle,
			Text:        rec.Text,
			AuthorID:    rec.AuthorID,
			RuleMatch:   rec.RuleMatch,
			OracleMatch: rec.OracleMatch,
			MediaPath:   mediaPath,
		})
	}

	e.log.InfoContext(ctx, "Report extracted", "owner_id", ownerID, "rows", len(rows))
	return rows, nil
}

// csvHeader is the fixed column layout of the export.
var csvHeader = []string{
	"Date", "Chat", "Message text", "Author (TG ID)", "Sale (rule)", "Sale (oracle)", "Media path",
}

// WriteCSV renders rows as a CSV document.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, row := range rows {
		record := []string{
			row.Timestamp.UTC().Format("2006-01-02 15:04:05"),
			row.ChatTitle,
			row.Text,
			strconv.FormatInt(row.AuthorID, 10),
			yesNo(row.RuleMatch),
			yesNo(row.OracleMatch),
			row.MediaPath,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

package handlers

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/MaximushkaBed/telegram-sales-parser/internal/report"
)

const (
	reportFilename = "sales_report.csv"
	reportDateOnly = "2006-01-02"
)

// NewReportHandler returns a handler for the /report command. The command
// accepts an optional "YYYY-MM-DD YYYY-MM-DD" date range after the command
// name; without arguments the report covers all stored records.
func NewReportHandler(deps HandlerDeps) bot.HandlerFunc {
	return reportHandler{deps}.Handle
}

type reportHandler struct {
	deps HandlerDeps
}

func (h reportHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "report")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Report handler received update with nil message or sender", "update_id", update.ID)
		return
	}

	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID
	log.InfoContext(ctx, "Handling /report command", "user_id", userID)

	owner, err := h.deps.Store.GetOwnerByTelegramID(ctx, userID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to look up owner", "user_id", userID, "error", err)
		sendText(ctx, b, log, chatID, msgError)
		return
	}
	if owner == nil {
		sendText(ctx, b, log, chatID, msgNeedStart)
		return
	}

	from, to, err := parseReportRange(update.Message.Text)
	if err != nil {
		sendText(ctx, b, log, chatID, "Неверный формат дат. Используйте: /report ГГГГ-ММ-ДД ГГГГ-ММ-ДД")
		return
	}

	rows, err := h.deps.Extractor.Extract(ctx, owner.ID, from, to)
	switch {
	case errors.Is(err, report.ErrNoSubscriptions):
		sendText(ctx, b, log, chatID, "У вас нет чатов для парсинга. Добавьте меня в чат как администратора.")
		return
	case errors.Is(err, report.ErrNoRecords):
		sendText(ctx, b, log, chatID, "За выбранный период нет сообщений о продаже.")
		return
	case err != nil:
		log.ErrorContext(ctx, "Failed to extract report", "owner_id", owner.ID, "error", err)
		sendText(ctx, b, log, chatID, "Произошла ошибка при генерации отчета. Попробуйте позже.")
		return
	}

	var buf bytes.Buffer
	if err := report.WriteCSV(&buf, rows); err != nil {
		log.ErrorContext(ctx, "Failed to encode report", "owner_id", owner.ID, "error", err)
		sendText(ctx, b, log, chatID, "Произошла ошибка при генерации отчета. Попробуйте позже.")
		return
	}

	_, err = b.SendDocument(ctx, &bot.SendDocumentParams{
		ChatID: chatID,
		Document: &models.InputFileUpload{
			Filename: reportFilename,
			Data:     &buf,
		},
		Caption: "Ваш отчет о сообщениях о продаже готов.",
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to send report document", "error", err, "chat_id", chatID)
		return
	}

	log.InfoContext(ctx, "Report sent", "owner_id", owner.ID, "rows", len(rows))
}

// parseReportRange extracts optional from/to bounds from the command text.
// The upper bound is stretched to the end of its day so that records dated
// within the last day are included.
func parseReportRange(text string) (from, to *time.Time, err error) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return nil, nil, nil
	}
	if len(fields) != 3 {
		return nil, nil, errors.New("expected two dates")
	}

	fromDay, err := time.Parse(reportDateOnly, fields[1])
	if err != nil {
		return nil, nil, err
	}
	toDay, err := time.Parse(reportDateOnly, fields[2])
	if err != nil {
		return nil, nil, err
	}

	upper := toDay.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return &fromDay, &upper, nil
}

package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const (
	// callbackPrefix namespaces subscription toggle buttons so the callback
	// handler only sees its own data.
	callbackPrefix  = "sub_"
	callbackEnable  = "enable"
	callbackDisable = "disable"
)

// NewToggleCallbackHandler returns a handler for the subscription toggle
// buttons attached by /chats and by the chat membership flow.
func NewToggleCallbackHandler(deps HandlerDeps) bot.HandlerFunc {
	return toggleCallbackHandler{deps}.Handle
}

type toggleCallbackHandler struct {
	deps HandlerDeps
}

func (h toggleCallbackHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "toggle_callback")

	if update.CallbackQuery == nil {
		log.WarnContext(ctx, "Callback handler received update without callback query", "update_id", update.ID)
		return
	}

	cb := update.CallbackQuery
	enable, subID, err := parseToggleData(cb.Data)
	if err != nil {
		log.WarnContext(ctx, "Ignoring malformed callback data", "data", cb.Data, "error", err)
		answerCallback(ctx, b, log, cb.ID, "Ошибка: некорректный запрос.", true)
		return
	}

	userID := cb.From.ID
	log.InfoContext(ctx, "Handling subscription toggle", "user_id", userID, "subscription_id", subID, "enable", enable)

	owner, err := h.deps.Store.GetOwnerByTelegramID(ctx, userID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to look up owner", "user_id", userID, "error", err)
		answerCallback(ctx, b, log, cb.ID, msgError, true)
		return
	}
	if owner == nil {
		answerCallback(ctx, b, log, cb.ID, msgNeedStart, true)
		return
	}

	if err := h.deps.Store.SetSubscriptionEnabled(ctx, subID, owner.ID, enable); err != nil {
		log.WarnContext(ctx, "Failed to toggle subscription", "subscription_id", subID, "owner_id", owner.ID, "error", err)
		answerCallback(ctx, b, log, cb.ID, "Ошибка: чат не найден или не принадлежит вам.", true)
		return
	}

	status := "отключен"
	if enable {
		status = "включен"
	}

	title := fmt.Sprintf("чат %d", subID)
	if sub, err := h.deps.Store.GetSubscriptionByID(ctx, subID); err == nil && sub != nil {
		title = subscriptionTitle(*sub)
	}

	if msg := cb.Message.Message; msg != nil {
		_, err := b.EditMessageText(ctx, &bot.EditMessageTextParams{
			ChatID:    msg.Chat.ID,
			MessageID: msg.ID,
			Text:      fmt.Sprintf("Парсинг в чате %s успешно %s.", title, status),
		})
		if err != nil {
			log.ErrorContext(ctx, "Failed to edit toggle message", "error", err, "chat_id", msg.Chat.ID)
		}
	}

	answerCallback(ctx, b, log, cb.ID, fmt.Sprintf("Парсинг %s.", status), false)
}

// parseToggleData decodes "sub_enable_{id}" / "sub_disable_{id}" callback data.
func parseToggleData(data string) (enable bool, subID int64, err error) {
	rest, ok := strings.CutPrefix(data, callbackPrefix)
	if !ok {
		return false, 0, fmt.Errorf("missing %q prefix", callbackPrefix)
	}
	action, idStr, ok := strings.Cut(rest, "_")
	if !ok {
		return false, 0, fmt.Errorf("missing action separator in %q", data)
	}
	switch action {
	case callbackEnable:
		enable = true
	case callbackDisable:
		enable = false
	default:
		return false, 0, fmt.Errorf("unknown action %q", action)
	}
	subID, err = strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return false, 0, fmt.Errorf("parsing subscription id: %w", err)
	}
	return enable, subID, nil
}

func answerCallback(ctx context.Context, b *bot.Bot, log *slog.Logger, id, text string, alert bool) {
	_, err := b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: id,
		Text:            text,
		ShowAlert:       alert,
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to answer callback query", "error", err, "callback_id", id)
	}
}

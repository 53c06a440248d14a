package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/MaximushkaBed/telegram-sales-parser/internal/database"
)

// NewChatsHandler returns a handler for the /chats command, which lists the
// owner's tracked chats with toggle buttons.
func NewChatsHandler(deps HandlerDeps) bot.HandlerFunc {
	return chatsHandler{deps}.Handle
}

type chatsHandler struct {
	deps HandlerDeps
}

func (h chatsHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "chats")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Chats handler received update with nil message or sender", "update_id", update.ID)
		return
	}

	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID
	log.InfoContext(ctx, "Handling /chats command", "user_id", userID)

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

	subs, err := h.deps.Store.ListSubscriptionsByOwner(ctx, owner.ID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to list subscriptions", "owner_id", owner.ID, "error", err)
		sendText(ctx, b, log, chatID, msgError)
		return
	}
	if len(subs) == 0 {
		sendText(ctx, b, log, chatID, "У вас пока нет чатов для парсинга. Добавьте меня в чат как администратора.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Ваши чаты:\n\n")
	for _, sub := range subs {
		status := "❌ Парсинг отключен"
		if sub.Enabled {
			status = "✅ Парсинг включен"
		}
		fmt.Fprintf(&sb, "%s (ID: %d)\nСтатус: %s\n\n", subscriptionTitle(sub), sub.ChatID, status)
	}

	_, err = b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        sb.String(),
		ReplyMarkup: toggleKeyboard(subs),
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to send chat list", "error", err, "chat_id", chatID)
	}
}

// toggleKeyboard builds one enable/disable button per subscription.
func toggleKeyboard(subs []database.Subscription) *models.InlineKeyboardMarkup {
	rows := make([][]models.InlineKeyboardButton, 0, len(subs))
	for _, sub := range subs {
		label := fmt.Sprintf("Включить парсинг в %s", subscriptionTitle(sub))
		action := callbackEnable
		if sub.Enabled {
			label = fmt.Sprintf("Отключить парсинг в %s", subscriptionTitle(sub))
			action = callbackDisable
		}
		rows = append(rows, []models.InlineKeyboardButton{{
			Text:         label,
			CallbackData: fmt.Sprintf("%s%s_%d", callbackPrefix, action, sub.ID),
		}})
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func subscriptionTitle(sub database.Subscription) string {
	if sub.Title != "" {
		return sub.Title
	}
	return fmt.Sprintf("чат %d", sub.ChatID)
}

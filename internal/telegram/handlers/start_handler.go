package handlers

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const (
	msgWelcome = "Добро пожаловать! Вы зарегистрированы. " +
		"Добавьте меня администратором в чаты, которые хотите отслеживать, " +
		"затем используйте /chats для управления парсингом и /report для выгрузки."
	msgWelcomeBack = "С возвращением! Используйте /chats для управления чатами и /report для выгрузки."
	msgNeedStart   = "Пожалуйста, сначала зарегистрируйтесь командой /start."
	msgError       = "Произошла ошибка. Попробуйте позже."
)

// NewStartHandler returns a handler for the /start command, which registers
// the sender as an owner.
func NewStartHandler(deps HandlerDeps) bot.HandlerFunc {
	return startHandler{deps}.Handle
}

type startHandler struct {
	deps HandlerDeps
}

func (h startHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "start")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Start handler received update with nil message or sender", "update_id", update.ID)
		return
	}

	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID
	log.InfoContext(ctx, "Handling /start command", "user_id", userID)

	owner, err := h.deps.Store.GetOwnerByTelegramID(ctx, userID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to look up owner", "user_id", userID, "error", err)
		sendText(ctx, b, log, chatID, msgError)
		return
	}

	reply := msgWelcomeBack
	if owner == nil {
		if _, err := h.deps.Store.CreateOwner(ctx, userID); err != nil {
			log.ErrorContext(ctx, "Failed to register owner", "user_id", userID, "error", err)
			sendText(ctx, b, log, chatID, msgError)
			return
		}
		reply = msgWelcome
	}

	sendText(ctx, b, log, chatID, reply)
}

func sendText(ctx context.Context, b *bot.Bot, log *slog.Logger, chatID int64, text string) {
	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text}); err != nil {
		log.ErrorContext(ctx, "Failed to send message", "error", err, "chat_id", chatID)
	}
}

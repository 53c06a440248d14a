package handlers

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/MaximushkaBed/telegram-sales-parser/internal/database"
	"github.com/MaximushkaBed/telegram-sales-parser/internal/gateway"
	"github.com/MaximushkaBed/telegram-sales-parser/internal/queue"
)

// NewUpdateHandler returns the default handler covering the two update
// shapes the command router cannot: the bot being added to a chat
// (my_chat_member) and new messages in tracked groups.
func NewUpdateHandler(deps HandlerDeps) bot.HandlerFunc {
	return updateHandler{deps}.Handle
}

type updateHandler struct {
	deps HandlerDeps
}

func (h updateHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	switch {
	case update.MyChatMember != nil:
		h.handleMembershipChange(ctx, b, update.MyChatMember)
	case update.Message != nil && isGroupChat(update.Message.Chat.Type):
		h.handleGroupMessage(ctx, update.Message)
	}
}

// handleMembershipChange registers a disabled subscription when a known
// owner adds the bot to a chat, then asks the owner in private whether to
// start parsing it.
func (h updateHandler) handleMembershipChange(ctx context.Context, b *bot.Bot, upd *models.ChatMemberUpdated) {
	log := h.deps.Logger.With("handler", "membership")

	if !becameMember(upd.OldChatMember, upd.NewChatMember) {
		return
	}

	chatID := upd.Chat.ID
	userID := upd.From.ID
	log.InfoContext(ctx, "Bot added to chat", "chat_id", chatID, "user_id", userID, "title", upd.Chat.Title)

	owner, err := h.deps.Store.GetOwnerByTelegramID(ctx, userID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to look up owner", "user_id", userID, "error", err)
		return
	}
	if owner == nil {
		log.DebugContext(ctx, "Adder is not a registered owner, ignoring", "user_id", userID)
		return
	}

	existing, err := h.deps.Store.GetSubscription(ctx, chatID, owner.ID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to look up subscription", "chat_id", chatID, "owner_id", owner.ID, "error", err)
		return
	}

	sub := &database.Subscription{ChatID: chatID, OwnerID: owner.ID, Title: upd.Chat.Title, Enabled: false}
	if err := h.deps.Store.UpsertSubscription(ctx, sub); err != nil {
		log.ErrorContext(ctx, "Failed to upsert subscription", "chat_id", chatID, "owner_id", owner.ID, "error", err)
		return
	}
	if existing != nil {
		// Re-added to a known chat: the title refresh above is enough.
		return
	}

	keyboard := &models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{
		{{Text: "✅ Включить парсинг", CallbackData: fmt.Sprintf("%s%s_%d", callbackPrefix, callbackEnable, sub.ID)}},
		{{Text: "❌ Отключить парсинг", CallbackData: fmt.Sprintf("%s%s_%d", callbackPrefix, callbackDisable, sub.ID)}},
	}}
	_, err = b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      userID,
		Text:        fmt.Sprintf("Вы добавили меня в чат %s. Хотите включить парсинг сообщений о продаже в этом чате?", subscriptionTitle(*sub)),
		ReplyMarkup: keyboard,
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to send parsing prompt", "error", err, "user_id", userID)
	}
}

// handleGroupMessage forwards a group message into the processing pipeline.
func (h updateHandler) handleGroupMessage(ctx context.Context, msg *models.Message) {
	log := h.deps.Logger.With("handler", "group_message")

	if msg.From == nil {
		log.DebugContext(ctx, "Skipping group message without sender", "chat_id", msg.Chat.ID, "message_id", msg.ID)
		return
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	raw := gateway.RawMessage{
		ChatID:      msg.Chat.ID,
		MessageID:   int64(msg.ID),
		AuthorID:    msg.From.ID,
		Text:        text,
		Timestamp:   time.Unix(int64(msg.Date), 0).UTC(),
		Attachments: extractAttachments(msg),
	}

	result, err := h.deps.Gateway.HandleMessage(ctx, raw)
	if err != nil {
		log.ErrorContext(ctx, "Failed to submit group message",
			"chat_id", msg.Chat.ID, "message_id", msg.ID,
			"accepted", result.Accepted, "failed", result.Failed, "error", err)
		return
	}
	if result.Accepted > 0 {
		log.DebugContext(ctx, "Group message enqueued",
			"chat_id", msg.Chat.ID, "message_id", msg.ID, "accepted", result.Accepted)
	}
}

// attachmentPriority is the ordered list of attachment extractors; the
// first kind present in a message wins. For photos Telegram sends every
// resolution and the last entry is the largest.
var attachmentPriority = []func(*models.Message) *queue.Attachment{
	func(msg *models.Message) *queue.Attachment {
		if len(msg.Photo) == 0 {
			return nil
		}
		return &queue.Attachment{FileID: msg.Photo[len(msg.Photo)-1].FileID, Extension: ".jpg"}
	},
	func(msg *models.Message) *queue.Attachment {
		if msg.Video == nil {
			return nil
		}
		return &queue.Attachment{FileID: msg.Video.FileID, Extension: ".mp4"}
	},
	func(msg *models.Message) *queue.Attachment {
		if msg.Document == nil {
			return nil
		}
		ext := filepath.Ext(msg.Document.FileName)
		if ext == "" {
			ext = ".bin"
		}
		return &queue.Attachment{FileID: msg.Document.FileID, Extension: ext}
	},
}

// extractAttachments picks at most one attachment per message according to
// attachmentPriority.
func extractAttachments(msg *models.Message) []queue.Attachment {
	for _, extract := range attachmentPriority {
		if att := extract(msg); att != nil {
			return []queue.Attachment{*att}
		}
	}
	return nil
}

func isGroupChat(t models.ChatType) bool {
	return t == models.ChatTypeGroup || t == models.ChatTypeSupergroup
}

// becameMember reports whether the transition means the bot just joined:
// previously out of the chat, now a member or administrator.
func becameMember(prev, curr models.ChatMember) bool {
	wasIn := prev.Type == models.ChatMemberTypeMember || prev.Type == models.ChatMemberTypeAdministrator
	isIn := curr.Type == models.ChatMemberTypeMember || curr.Type == models.ChatMemberTypeAdministrator
	return isIn && !wasIn
}

// Package gateway fans a raw conversation event out into per-subscription
// pipeline jobs. It performs only a read and an enqueue: classification,
// media acquisition, and persistence all happen downstream so the inbound
// transport is never blocked on them.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/MaximushkaBed/telegram-sales-parser/internal/database"
	"github.com/MaximushkaBed/telegram-sales-parser/internal/queue"
)

// RawMessage is one inbound conversation event, already reduced to the
// fields the pipeline cares about. Attachments carries at most one entry,
// chosen by the transport adapter's priority order.
type RawMessage struct {
	ChatID      int64
	MessageID   int64
	AuthorID    int64
	Text        string
	Timestamp   time.Time
	Attachments []queue.Attachment
}

// SubmitResult reports the fan-out outcome so callers can observe partial
// enqueue failures even though processing stays asynchronous.
type SubmitResult struct {
	Accepted int
	Failed   int
}

// Gateway routes raw events onto the durable queue.
type Gateway struct {
	store database.Store
	queue queue.Queue
	log   *slog.Logger
}

// NewGateway creates a Gateway over the given store and queue.
func NewGateway(store database.Store, q queue.Queue, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Gateway{
		store: store,
		queue: q,
		log:   log.With("component", "gateway"),
	}
}

// HandleMessage enqueues one job per enabled subscription of the event's
// chat. A chat with no enabled subscriptions is a no-op, not an error:
// parsing may legitimately be off for every owner of that conversation.
// Jobs carry identical message content; only the subscription address
// differs.
func (g *Gateway) HandleMessage(ctx context.Context, msg RawMessage) (SubmitResult, error) {
	var result SubmitResult

	subs, err := g.store.FindEnabledSubscriptions(ctx, msg.ChatID)
	if err != nil {
		return result, fmt.Errorf("failed to look up subscriptions for chat %d: %w", msg.ChatID, err)
	}
	if len(subs) == 0 {
		g.log.DebugContext(ctx, "No enabled subscriptions for chat, skipping", "chat_id", msg.ChatID)
		return result, nil
	}

	var enqueueErrs []error
	for _, sub := range subs {
		payload := queue.Payload{
			SubscriptionID: sub.ID,
			OwnerID:        sub.OwnerID,
			ChatID:         msg.ChatID,
			MessageID:      msg.MessageID,
			AuthorID:       msg.AuthorID,
			Text:           msg.Text,
			Timestamp:      msg.Timestamp.UTC(),
			Attachments:    msg.Attachments,
		}

		if err := g.queue.Enqueue(ctx, payload); err != nil {
			g.log.ErrorContext(ctx, "Failed to enqueue job",
				"chat_id", msg.ChatID, "message_id", msg.MessageID,
				"subscription_id", sub.ID, "error", err)
			result.Failed++
			enqueueErrs = append(enqueueErrs, err)
			continue
		}
		result.Accepted++
	}

	g.log.InfoContext(ctx, "Message fanned out",
		"chat_id", msg.ChatID, "message_id", msg.MessageID,
		"accepted", result.Accepted, "failed", result.Failed)

	return result, errors.Join(enqueueErrs...)
}

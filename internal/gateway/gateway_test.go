package gateway_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MaximushkaBed/telegram-sales-parser/internal/database"
	"github.com/MaximushkaBed/telegram-sales-parser/internal/gateway"
	"github.com/MaximushkaBed/telegram-sales-parser/internal/queue"
)

type stubStore struct {
	database.Store

	subs    []database.Subscription
	findErr error
}

func (s *stubStore) FindEnabledSubscriptions(_ context.Context, _ int64) ([]database.Subscription, error) {
	return s.subs, s.findErr
}

type recordingQueue struct {
	queue.Queue

	enqueued []queue.Payload
	failFor  map[int64]error
}

func (q *recordingQueue) Enqueue(_ context.Context, p queue.Payload) error {
	if err, ok := q.failFor[p.SubscriptionID]; ok {
		return err
	}
	q.enqueued = append(q.enqueued, p)
	return nil
}

func TestGateway_HandleMessage(t *testing.T) {
	t.Parallel()

	msg := gateway.RawMessage{
		ChatID:    -100555,
		MessageID: 42,
		AuthorID:  9000,
		Text:      "продам лодку",
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.FixedZone("MSK", 3*60*60)),
		Attachments: []queue.Attachment{
			{FileID: "abc", Extension: ".jpg"},
		},
	}

	t.Run("Fans out to every enabled subscription", func(t *testing.T) {
		t.Parallel()

		store := &stubStore{subs: []database.Subscription{
			{ID: 1, ChatID: msg.ChatID, OwnerID: 10},
			{ID: 2, ChatID: msg.ChatID, OwnerID: 20},
		}}
		q := &recordingQueue{}
		gw := gateway.NewGateway(store, q, nil)

		result, err := gw.HandleMessage(context.Background(), msg)
		if err != nil {
			t.Fatalf("HandleMessage: %v", err)
		}
		if result.Accepted != 2 || result.Failed != 0 {
			t.Fatalf("result = %+v, want 2 accepted", result)
		}
		if len(q.enqueued) != 2 {
			t.Fatalf("enqueued %d payloads, want 2", len(q.enqueued))
		}

		for i, want := range []struct{ subID, ownerID int64 }{{1, 10}, {2, 20}} {
			p := q.enqueued[i]
			if p.SubscriptionID != want.subID || p.OwnerID != want.ownerID {
				t.Errorf("payload %d addressed to (sub %d, owner %d), want (sub %d, owner %d)",
					i, p.SubscriptionID, p.OwnerID, want.subID, want.ownerID)
			}
			if p.ChatID != msg.ChatID || p.MessageID != msg.MessageID || p.AuthorID != msg.AuthorID || p.Text != msg.Text {
				t.Errorf("payload %d content differs from source message: %+v", i, p)
			}
			if p.Timestamp.Location() != time.UTC {
				t.Errorf("payload %d timestamp not normalized to UTC: %v", i, p.Timestamp)
			}
			if len(p.Attachments) != 1 || p.Attachments[0].FileID != "abc" {
				t.Errorf("payload %d attachments = %+v", i, p.Attachments)
			}
		}
	})

	t.Run("No subscriptions means no enqueue", func(t *testing.T) {
		t.Parallel()

		q := &recordingQueue{}
		gw := gateway.NewGateway(&stubStore{}, q, nil)

		result, err := gw.HandleMessage(context.Background(), msg)
		if err != nil {
			t.Fatalf("HandleMessage: %v", err)
		}
		if result.Accepted != 0 || result.Failed != 0 {
			t.Errorf("result = %+v, want zero", result)
		}
		if len(q.enqueued) != 0 {
			t.Errorf("enqueued %d payloads, want 0", len(q.enqueued))
		}
	})

	t.Run("Partial enqueue failure is counted and reported", func(t *testing.T) {
		t.Parallel()

		store := &stubStore{subs: []database.Subscription{
			{ID: 1, OwnerID: 10},
			{ID: 2, OwnerID: 20},
			{ID: 3, OwnerID: 30},
		}}
		enqueueErr := errors.New("disk full")
		q := &recordingQueue{failFor: map[int64]error{2: enqueueErr}}
		gw := gateway.NewGateway(store, q, nil)

		result, err := gw.HandleMessage(context.Background(), msg)
		if !errors.Is(err, enqueueErr) {
			t.Fatalf("HandleMessage err = %v, want wrapped enqueue error", err)
		}
		if result.Accepted != 2 || result.Failed != 1 {
			t.Errorf("result = %+v, want 2 accepted / 1 failed", result)
		}
	})

	t.Run("Subscription lookup failure aborts", func(t *testing.T) {
		t.Parallel()

		lookupErr := errors.New("db locked")
		q := &recordingQueue{}
		gw := gateway.NewGateway(&stubStore{findErr: lookupErr}, q, nil)

		_, err := gw.HandleMessage(context.Background(), msg)
		if !errors.Is(err, lookupErr) {
			t.Fatalf("HandleMessage err = %v, want lookup error", err)
		}
		if len(q.enqueued) != 0 {
			t.Errorf("enqueued %d payloads, want 0", len(q.enqueued))
		}
	})
}

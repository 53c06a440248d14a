package database_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/MaximushkaBed/telegram-sales-parser/internal/database"

	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) database.Store {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "store_test.db"))
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	return database.NewStore(db, nil)
}

func mustCreateOwner(t *testing.T, store database.Store, telegramUserID int64) *database.Owner {
	t.Helper()

	owner, err := store.CreateOwner(context.Background(), telegramUserID)
	if err != nil {
		t.Fatalf("CreateOwner(%d): %v", telegramUserID, err)
	}
	return owner
}

func mustCreateSubscription(t *testing.T, store database.Store, chatID, ownerID int64, title string, enabled bool) *database.Subscription {
	t.Helper()

	sub := &database.Subscription{ChatID: chatID, OwnerID: ownerID, Title: title, Enabled: enabled}
	if err := store.UpsertSubscription(context.Background(), sub); err != nil {
		t.Fatalf("UpsertSubscription(chat %d, owner %d): %v", chatID, ownerID, err)
	}
	if sub.ID == 0 {
		t.Fatalf("UpsertSubscription did not populate subscription id")
	}
	return sub
}

func TestStore_Owners(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	missing, err := store.GetOwnerByTelegramID(ctx, 12345)
	if err != nil {
		t.Fatalf("GetOwnerByTelegramID: %v", err)
	}
	if missing != nil {
		t.Fatalf("got owner %+v for unknown id, want nil", missing)
	}

	created := mustCreateOwner(t, store, 12345)
	if created.ID == 0 {
		t.Error("CreateOwner did not populate the owner id")
	}

	found, err := store.GetOwnerByTelegramID(ctx, 12345)
	if err != nil {
		t.Fatalf("GetOwnerByTelegramID after create: %v", err)
	}
	if found == nil || found.ID != created.ID || found.TelegramUserID != 12345 {
		t.Errorf("found owner = %+v, want id %d", found, created.ID)
	}

	if _, err := store.CreateOwner(ctx, 12345); err == nil {
		t.Error("CreateOwner accepted a duplicate telegram user id")
	}
}

func TestStore_Subscriptions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)
	owner := mustCreateOwner(t, store, 100)
	other := mustCreateOwner(t, store, 200)

	sub := mustCreateSubscription(t, store, -100555, owner.ID, "Барахолка", false)

	t.Run("Upsert refreshes title but keeps enabled flag", func(t *testing.T) {
		if err := store.SetSubscriptionEnabled(ctx, sub.ID, owner.ID, true); err != nil {
			t.Fatalf("SetSubscriptionEnabled: %v", err)
		}

		again := &database.Subscription{ChatID: -100555, OwnerID: owner.ID, Title: "Новое имя", Enabled: false}
		if err := store.UpsertSubscription(ctx, again); err != nil {
			t.Fatalf("second UpsertSubscription: %v", err)
		}

		if again.ID != sub.ID {
			t.Errorf("upsert created a new row: id %d, want %d", again.ID, sub.ID)
		}
		if again.Title != "Новое имя" {
			t.Errorf("title = %q, want refreshed title", again.Title)
		}
		if !again.Enabled {
			t.Error("enabled flag was reset by upsert, want it preserved")
		}
	})

	t.Run("Toggle is scoped to the owning tenant", func(t *testing.T) {
		if err := store.SetSubscriptionEnabled(ctx, sub.ID, other.ID, false); err == nil {
			t.Error("SetSubscriptionEnabled succeeded for a foreign owner")
		}
	})

	t.Run("FindEnabledSubscriptions spans owners of one chat", func(t *testing.T) {
		mustCreateSubscription(t, store, -100555, other.ID, "Барахолка", false)

		enabled, err := store.FindEnabledSubscriptions(ctx, -100555)
		if err != nil {
			t.Fatalf("FindEnabledSubscriptions: %v", err)
		}
		if len(enabled) != 1 || enabled[0].OwnerID != owner.ID {
			t.Errorf("enabled subscriptions = %+v, want only the toggled-on one", enabled)
		}
	})

	t.Run("ListSubscriptionsByOwner", func(t *testing.T) {
		subs, err := store.ListSubscriptionsByOwner(ctx, owner.ID)
		if err != nil {
			t.Fatalf("ListSubscriptionsByOwner: %v", err)
		}
		if len(subs) != 1 || subs[0].ID != sub.ID {
			t.Errorf("subscriptions = %+v, want the single owned one", subs)
		}
	})
}

func TestStore_UpsertSaleRecordIdempotency(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)
	owner := mustCreateOwner(t, store, 100)
	sub := mustCreateSubscription(t, store, -100555, owner.ID, "Барахолка", true)

	record := &database.SaleRecord{
		MessageID:      42,
		SubscriptionID: sub.ID,
		AuthorID:       9000,
		Text:           "продам диван",
		Timestamp:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		RuleMatch:      true,
		OracleMatch:    false,
	}

	inserted, err := store.UpsertSaleRecord(ctx, record)
	if err != nil {
		t.Fatalf("UpsertSaleRecord: %v", err)
	}
	if !inserted {
		t.Fatal("first insert reported as duplicate")
	}

	// Same message redelivered for the same subscription is absorbed.
	dup := *record
	dup.Text = "different text from a redelivery"
	inserted, err = store.UpsertSaleRecord(ctx, &dup)
	if err != nil {
		t.Fatalf("duplicate UpsertSaleRecord: %v", err)
	}
	if inserted {
		t.Error("duplicate insert was not absorbed")
	}

	// Same message for a different subscription is a distinct record.
	otherOwner := mustCreateOwner(t, store, 200)
	otherSub := mustCreateSubscription(t, store, -100555, otherOwner.ID, "Барахолка", true)

	distinct := *record
	distinct.SubscriptionID = otherSub.ID
	inserted, err = store.UpsertSaleRecord(ctx, &distinct)
	if err != nil {
		t.Fatalf("UpsertSaleRecord for second subscription: %v", err)
	}
	if !inserted {
		t.Error("record for a second subscription was treated as duplicate")
	}
}

func TestStore_FindSaleRecordsByOwnerInRange(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)
	owner := mustCreateOwner(t, store, 100)
	sub := mustCreateSubscription(t, store, -100555, owner.ID, "Барахолка", true)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	insert := func(messageID int64, ts time.Time, isSale bool, mediaPath string) {
		t.Helper()
		rec := &database.SaleRecord{
			MessageID:      messageID,
			SubscriptionID: sub.ID,
			AuthorID:       9000,
			Text:           "запись",
			Timestamp:      ts,
			RuleMatch:      isSale,
		}
		if mediaPath != "" {
			rec.MediaPath = sql.NullString{String: mediaPath, Valid: true}
		}
		if _, err := store.UpsertSaleRecord(ctx, rec); err != nil {
			t.Fatalf("UpsertSaleRecord(%d): %v", messageID, err)
		}
	}

	insert(1, base.Add(-48*time.Hour), true, "")
	insert(2, base, true, "path/media_1.jpg")
	insert(3, base.Add(time.Hour), false, "") // not a sale, must never appear
	insert(4, base.Add(24*time.Hour), true, "")

	t.Run("Open range returns all sales newest first", func(t *testing.T) {
		rows, err := store.FindSaleRecordsByOwnerInRange(ctx, owner.ID, nil, nil)
		if err != nil {
			t.Fatalf("FindSaleRecordsByOwnerInRange: %v", err)
		}
		if len(rows) != 3 {
			t.Fatalf("got %d rows, want 3 sale records", len(rows))
		}
		if rows[0].MessageID != 4 || rows[1].MessageID != 2 || rows[2].MessageID != 1 {
			t.Errorf("order = [%d %d %d], want newest first", rows[0].MessageID, rows[1].MessageID, rows[2].MessageID)
		}
		if rows[0].ChatTitle != "Барахолка" || rows[0].ChatID != -100555 {
			t.Errorf("joined chat columns = (%q, %d)", rows[0].ChatTitle, rows[0].ChatID)
		}
	})

	t.Run("Bounded range filters inclusively", func(t *testing.T) {
		from := base.Add(-48 * time.Hour)
		to := base
		rows, err := store.FindSaleRecordsByOwnerInRange(ctx, owner.ID, &from, &to)
		if err != nil {
			t.Fatalf("FindSaleRecordsByOwnerInRange: %v", err)
		}
		if len(rows) != 2 || rows[0].MessageID != 2 || rows[1].MessageID != 1 {
			t.Fatalf("rows = %+v, want exactly the two boundary records newest first", rows)
		}
		if !rows[0].MediaPath.Valid || rows[0].MediaPath.String != "path/media_1.jpg" {
			t.Errorf("media path = %+v", rows[0].MediaPath)
		}
	})

	t.Run("Out-of-range window is empty", func(t *testing.T) {
		from := base.Add(100 * time.Hour)
		to := base.Add(200 * time.Hour)
		rows, err := store.FindSaleRecordsByOwnerInRange(ctx, owner.ID, &from, &to)
		if err != nil {
			t.Fatalf("FindSaleRecordsByOwnerInRange: %v", err)
		}
		if len(rows) != 0 {
			t.Errorf("rows = %+v, want none", rows)
		}
	})

	t.Run("Foreign owner sees nothing", func(t *testing.T) {
		other := mustCreateOwner(t, store, 200)
		rows, err := store.FindSaleRecordsByOwnerInRange(ctx, other.ID, nil, nil)
		if err != nil {
			t.Fatalf("FindSaleRecordsByOwnerInRange: %v", err)
		}
		if len(rows) != 0 {
			t.Errorf("foreign owner got %d rows, want 0", len(rows))
		}
	})
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store defines the interface for database operations. Methods accept
// context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// GetOwnerByTelegramID retrieves an owner by Telegram user id.
	// Returns nil, nil if not found.
	GetOwnerByTelegramID(ctx context.Context, telegramUserID int64) (*Owner, error)

	// CreateOwner registers a new owner for the given Telegram user id.
	CreateOwner(ctx context.Context, telegramUserID int64) (*Owner, error)

	// GetSubscription retrieves one owner's subscription for a chat.
	// Returns nil, nil if not found.
	GetSubscription(ctx context.Context, chatID, ownerID int64) (*Subscription, error)

	// GetSubscriptionByID retrieves a subscription by primary key.
	// Returns nil, nil if not found.
	GetSubscriptionByID(ctx context.Context, id int64) (*Subscription, error)

	// UpsertSubscription inserts a subscription, or refreshes its title if
	// one already exists for the (chat_id, owner_id) pair. The passed
	// struct is updated with the stored row.
	UpsertSubscription(ctx context.Context, sub *Subscription) error

	// SetSubscriptionEnabled toggles parsing for a subscription, scoped to
	// its owner so one tenant cannot flip another's record.
	SetSubscriptionEnabled(ctx context.Context, subscriptionID, ownerID int64, enabled bool) error

	// ListSubscriptionsByOwner retrieves all subscriptions of one owner.
	ListSubscriptionsByOwner(ctx context.Context, ownerID int64) ([]Subscription, error)

	// FindEnabledSubscriptions retrieves all enabled subscriptions for an
	// external chat id, across all owners.
	FindEnabledSubscriptions(ctx context.Context, chatID int64) ([]Subscription, error)

	// UpsertSaleRecord inserts a classified record. If a record already
	// exists for (message_id, subscription_id) the insert is a no-op and
	// inserted is false. This is the idempotency barrier for redelivered
	// jobs.
	UpsertSaleRecord(ctx context.Context, record *SaleRecord) (inserted bool, err error)

	// FindSaleRecordsByOwnerInRange retrieves sale-flagged records for all
	// of an owner's subscriptions, bounds inclusive, newest first. Nil
	// bounds are open-ended.
	FindSaleRecordsByOwnerInRange(ctx context.Context, ownerID int64, from, to *time.Time) ([]SaleRecordRow, error)

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx. It requires
// a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlxStore) GetOwnerByTelegramID(ctx context.Context, telegramUserID int64) (*Owner, error) {
	var owner Owner
	err := s.db.GetContext(ctx, &owner,
		`SELECT id, telegram_user_id, registered_at FROM owners WHERE telegram_user_id = ?;`,
		telegramUserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get owner %d: %w", telegramUserID, err)
	}
	return &owner, nil
}

func (s *sqlxStore) CreateOwner(ctx context.Context, telegramUserID int64) (*Owner, error) {
	if telegramUserID == 0 {
		return nil, fmt.Errorf("owner must have a non-zero telegram user id")
	}

	owner := &Owner{
		TelegramUserID: telegramUserID,
		RegisteredAt:   time.Now().UTC(),
	}

	result, err := s.db.NamedExecContext(ctx,
		`INSERT INTO owners (telegram_user_id, registered_at) VALUES (:telegram_user_id, :registered_at);`,
		owner)
	if err != nil {
		return nil, fmt.Errorf("failed to create owner %d: %w", telegramUserID, err)
	}

	if id, err := result.LastInsertId(); err == nil {
		owner.ID = id
	} else {
		s.logger.WarnContext(ctx, "Could not retrieve last insert ID after creating owner",
			"telegram_user_id", telegramUserID, "error", err)
	}

	s.logger.InfoContext(ctx, "Owner registered", "telegram_user_id", telegramUserID, "owner_id", owner.ID)
	return owner, nil
}

func (s *sqlxStore) GetSubscription(ctx context.Context, chatID, ownerID int64) (*Subscription, error) {
	var sub Subscription
	err := s.db.GetContext(ctx, &sub,
		`SELECT id, chat_id, owner_id, title, enabled, created_at, updated_at
         FROM subscriptions WHERE chat_id = ? AND owner_id = ?;`,
		chatID, ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get subscription (chat %d, owner %d): %w", chatID, ownerID, err)
	}
	return &sub, nil
}

func (s *sqlxStore) GetSubscriptionByID(ctx context.Context, id int64) (*Subscription, error) {
	var sub Subscription
	err := s.db.GetContext(ctx, &sub,
		`SELECT id, chat_id, owner_id, title, enabled, created_at, updated_at
         FROM subscriptions WHERE id = ?;`,
		id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get subscription %d: %w", id, err)
	}
	return &sub, nil
}

func (s *sqlxStore) UpsertSubscription(ctx context.Context, sub *Subscription) error {
	if sub == nil {
		return fmt.Errorf("cannot upsert nil subscription")
	}
	if sub.ChatID == 0 {
		return fmt.Errorf("subscription must have a non-zero chat_id")
	}
	if sub.OwnerID == 0 {
		return fmt.Errorf("subscription must have a non-zero owner_id")
	}

	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now

	// A subscription is never replaced: on conflict only the display title
	// is refreshed, the enabled flag keeps its stored value.
	_, err := s.db.NamedExecContext(ctx, `
        INSERT INTO subscriptions (chat_id, owner_id, title, enabled, created_at, updated_at)
        VALUES (:chat_id, :owner_id, :title, :enabled, :created_at, :updated_at)
        ON CONFLICT (chat_id, owner_id)
        DO UPDATE SET title = excluded.title, updated_at = excluded.updated_at;`,
		sub)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription (chat %d, owner %d): %w", sub.ChatID, sub.OwnerID, err)
	}

	stored, err := s.GetSubscription(ctx, sub.ChatID, sub.OwnerID)
	if err != nil {
		return err
	}
	if stored == nil {
		return fmt.Errorf("subscription (chat %d, owner %d) vanished after upsert", sub.ChatID, sub.OwnerID)
	}
	*sub = *stored

	s.logger.DebugContext(ctx, "Subscription upserted",
		"subscription_id", sub.ID, "chat_id", sub.ChatID, "owner_id", sub.OwnerID)
	return nil
}

func (s *sqlxStore) SetSubscriptionEnabled(ctx context.Context, subscriptionID, ownerID int64, enabled bool) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET enabled = ?, updated_at = ? WHERE id = ? AND owner_id = ?;`,
		enabled, time.Now().UTC(), subscriptionID, ownerID)
	if err != nil {
		return fmt.Errorf("failed to set enabled=%t for subscription %d: %w", enabled, subscriptionID, err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("subscription %d not found for owner %d", subscriptionID, ownerID)
	}

	s.logger.InfoContext(ctx, "Subscription toggled",
		"subscription_id", subscriptionID, "owner_id", ownerID, "enabled", enabled)
	return nil
}

func (s *sqlxStore) ListSubscriptionsByOwner(ctx context.Context, ownerID int64) ([]Subscription, error) {
	var subs []Subscription
	err := s.db.SelectContext(ctx, &subs,
		`SELECT id, chat_id, owner_id, title, enabled, created_at, updated_at
         FROM subscriptions WHERE owner_id = ? ORDER BY id;`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions for owner %d: %w", ownerID, err)
	}
	return subs, nil
}

func (s *sqlxStore) FindEnabledSubscriptions(ctx context.Context, chatID int64) ([]Subscription, error) {
	var subs []Subscription
	err := s.db.SelectContext(ctx, &subs,
		`SELECT id, chat_id, owner_id, title, enabled, created_at, updated_at
         FROM subscriptions WHERE chat_id = ? AND enabled = 1 ORDER BY id;`,
		chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to find enabled subscriptions for chat %d: %w", chatID, err)
	}
	return subs, nil
}

func (s *sqlxStore) UpsertSaleRecord(ctx context.Context, record *SaleRecord) (bool, error) {
	if record == nil {
		return false, fmt.Errorf("cannot save nil sale record")
	}
	if record.MessageID == 0 {
		return false, fmt.Errorf("sale record must have a non-zero message_id")
	}
	if record.SubscriptionID == 0 {
		return false, fmt.Errorf("sale record must have a non-zero subscription_id")
	}
	if record.Timestamp.IsZero() {
		return false, fmt.Errorf("sale record must have a non-zero timestamp")
	}

	record.IsSale = record.RuleMatch || record.OracleMatch
	record.CreatedAt = time.Now().UTC()

	// DO NOTHING on conflict: a redelivered job must not overwrite the
	// write-once classification fact, and concurrent workers racing on the
	// same key resolve through this constraint alone.
	result, err := s.db.NamedExecContext(ctx, `
        INSERT INTO sale_records
            (message_id, subscription_id, author_id, text, timestamp,
             rule_match, oracle_match, is_sale, media_path, created_at)
        VALUES
            (:message_id, :subscription_id, :author_id, :text, :timestamp,
             :rule_match, :oracle_match, :is_sale, :media_path, :created_at)
        ON CONFLICT (message_id, subscription_id) DO NOTHING;`,
		record)
	if err != nil {
		return false, fmt.Errorf("failed to save sale record (message %d, subscription %d): %w",
			record.MessageID, record.SubscriptionID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected for sale record: %w", err)
	}
	if affected == 0 {
		s.logger.DebugContext(ctx, "Duplicate sale record absorbed",
			"message_id", record.MessageID, "subscription_id", record.SubscriptionID)
		return false, nil
	}

	if id, err := result.LastInsertId(); err == nil {
		record.ID = id
	}

	s.logger.DebugContext(ctx, "Sale record saved",
		"message_id", record.MessageID, "subscription_id", record.SubscriptionID, "is_sale", record.IsSale)
	return true, nil
}

func (s *sqlxStore) FindSaleRecordsByOwnerInRange(ctx context.Context, ownerID int64, from, to *time.Time) ([]SaleRecordRow, error) {
	query := `
        SELECT r.id, r.message_id, r.subscription_id, r.author_id, r.text, r.timestamp,
               r.rule_match, r.oracle_match, r.is_sale, r.media_path, r.created_at,
               s.chat_id AS chat_id, s.title AS chat_title
        FROM sale_records r
        JOIN subscriptions s ON s.id = r.subscription_id
        WHERE s.owner_id = ? AND r.is_sale = 1`
	args := []any{ownerID}

	if from != nil {
		query += ` AND r.timestamp >= ?`
		args = append(args, from.UTC())
	}
	if to != nil {
		query += ` AND r.timestamp <= ?`
		args = append(args, to.UTC())
	}
	query += ` ORDER BY r.timestamp DESC;`

	var rows []SaleRecordRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query sale records for owner %d: %w", ownerID, err)
	}
	return rows, nil
}

// RunSQLMaintenance performs VACUUM and ANALYZE on the database.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	start := time.Now()

	if _, err := s.db.ExecContext(ctx, "VACUUM;"); err != nil {
		return fmt.Errorf("failed to run VACUUM: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "ANALYZE;"); err != nil {
		return fmt.Errorf("failed to run ANALYZE: %w", err)
	}

	s.logger.InfoContext(ctx, "SQL maintenance completed", "duration", time.Since(start))
	return nil
}

package database

import (
	"database/sql"
	"time"
)

// Owner is a registered tenant identity, keyed by the opaque Telegram user
// id. Owners are created on first registration and never deleted.
type Owner struct {
	ID             int64     `db:"id"`
	TelegramUserID int64     `db:"telegram_user_id"`
	RegisteredAt   time.Time `db:"registered_at"`
}

// Subscription is one owner's independent tracking record for one external
// conversation. The same chat_id may appear in several subscriptions, one
// per owner; (chat_id, owner_id) is unique. Subscriptions are soft-disabled
// via Enabled, never physically deleted.
type Subscription struct {
	ID        int64     `db:"id"`
	ChatID    int64     `db:"chat_id"`
	OwnerID   int64     `db:"owner_id"`
	Title     string    `db:"title"`
	Enabled   bool      `db:"enabled"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// SaleRecord is a persisted classification outcome for one message within
// one subscription. (message_id, subscription_id) is unique; re-delivery of
// the same job must not create a duplicate. Records are write-once.
type SaleRecord struct {
	ID             int64          `db:"id"`
	MessageID      int64          `db:"message_id"`
	SubscriptionID int64          `db:"subscription_id"`
	AuthorID       int64          `db:"author_id"`
	Text           string         `db:"text"`
	Timestamp      time.Time      `db:"timestamp"`
	RuleMatch      bool           `db:"rule_match"`
	OracleMatch    bool           `db:"oracle_match"`
	IsSale         bool           `db:"is_sale"`
	MediaPath      sql.NullString `db:"media_path"`
	CreatedAt      time.Time      `db:"created_at"`
}

// SaleRecordRow is a SaleRecord joined with its subscription's chat title
// and chat id, as returned by the report query.
type SaleRecordRow struct {
	SaleRecord
	ChatID    int64  `db:"chat_id"`
	ChatTitle string `db:"chat_title"`
}

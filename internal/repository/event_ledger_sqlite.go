package repository

import (
	"context"
	"database/sql"
	"errors"
)

// SQLiteEventLedger is the single-node variant of PostgresEventLedger.
type SQLiteEventLedger struct {
	db *sql.DB
}

func NewSQLiteEventLedger(db *sql.DB) *SQLiteEventLedger {
	return &SQLiteEventLedger{db: db}
}

func (r *SQLiteEventLedger) Seen(ctx context.Context, messageID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		"SELECT 1 FROM processed_messages WHERE message_id = ?",
		messageID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *SQLiteEventLedger) MarkProcessed(ctx context.Context, messageID, channelID string) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO processed_messages (message_id, channel_id) VALUES (?, ?) ON CONFLICT (message_id) DO NOTHING",
		messageID, channelID)
	return err
}

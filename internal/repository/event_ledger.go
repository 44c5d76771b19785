package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresEventLedger records transcript-synced message ids in Postgres.
type PostgresEventLedger struct {
	db *pgxpool.Pool
}

func NewPostgresEventLedger(db *pgxpool.Pool) *PostgresEventLedger {
	return &PostgresEventLedger{db: db}
}

func (r *PostgresEventLedger) Seen(ctx context.Context, messageID string) (bool, error) {
	var one int
	err := r.db.QueryRow(ctx,
		"SELECT 1 FROM processed_messages WHERE message_id = $1",
		messageID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *PostgresEventLedger) MarkProcessed(ctx context.Context, messageID, channelID string) error {
	_, err := r.db.Exec(ctx,
		"INSERT INTO processed_messages (message_id, channel_id) VALUES ($1, $2) ON CONFLICT (message_id) DO NOTHING",
		messageID, channelID)
	return err
}

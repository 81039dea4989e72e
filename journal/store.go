// Package journal persists every redemption settlement to Postgres.
package journal

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"ticketfy-checkin/models"
)

const DefaultListLimit = 100

const schema = `
CREATE TABLE IF NOT EXISTS checkin_journal (
	id UUID PRIMARY KEY,
	event_id TEXT NOT NULL,
	ticket_id TEXT NOT NULL,
	owner_address TEXT NOT NULL,
	validator_address TEXT NOT NULL,
	outcome TEXT NOT NULL,
	tx_hash TEXT,
	message TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS checkin_journal_event_created_idx
	ON checkin_journal (event_id, created_at DESC);
`

// DB is satisfied by *pgxpool.Pool.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Store struct {
	db DB
}

func NewStore(db DB) *Store {
	return &Store{db: db}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create checkin_journal: %w", err)
	}
	return nil
}

// Record inserts a settlement.
func (s *Store) Record(ctx context.Context, settlement models.Settlement) error {
	var txHash *string
	if settlement.TxHash != "" {
		txHash = &settlement.TxHash
	}

	query := `
		INSERT INTO checkin_journal (id, event_id, ticket_id, owner_address, validator_address, outcome, tx_hash, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.Exec(ctx, query,
		uuid.New(),
		settlement.EventID,
		settlement.TicketID,
		settlement.Owner,
		settlement.Validator,
		string(settlement.Outcome),
		txHash,
		settlement.Message,
		settlement.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert journal entry for %s: %w", settlement.TicketID, err)
	}
	return nil
}

// List returns an event's journal, newest first.
func (s *Store) List(ctx context.Context, eventID string, limit int) ([]models.JournalEntry, error) {
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}

	query := `
		SELECT id, event_id, ticket_id, owner_address, validator_address, outcome, tx_hash, message, created_at
		FROM checkin_journal
		WHERE event_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.db.Query(ctx, query, eventID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	entries := []models.JournalEntry{}
	for rows.Next() {
		var entry models.JournalEntry
		err := rows.Scan(
			&entry.ID,
			&entry.EventID,
			&entry.TicketID,
			&entry.Owner,
			&entry.Validator,
			&entry.Outcome,
			&entry.TxHash,
			&entry.Message,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	return entries, nil
}

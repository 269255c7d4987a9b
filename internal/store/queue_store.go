package store

import (
	"context"

	"github.com/AdamBeresnev/quadras-match/internal/match"
	"github.com/jmoiron/sqlx"
)

const (
	saveQueueEntryQuery = `
		INSERT INTO queue_entries (venue_id, team_id, available_from, available_until, created_at)
		VALUES (:venue_id, :team_id, :available_from, :available_until, :created_at)
		ON CONFLICT(venue_id, team_id) DO UPDATE SET
			available_from = excluded.available_from,
			available_until = excluded.available_until
	`
	deleteQueueEntryQuery = "DELETE FROM queue_entries WHERE venue_id = ? AND team_id = ?"
	getQueueEntriesQuery  = "SELECT * FROM queue_entries ORDER BY created_at ASC"
)

type QueueStore struct {
	db *sqlx.DB
}

func NewQueueStore(db *sqlx.DB) *QueueStore {
	return &QueueStore{db: db}
}

func (s *QueueStore) SaveQueueEntry(ctx context.Context, e *match.QueueEntry) error {
	_, err := s.db.NamedExecContext(ctx, saveQueueEntryQuery, e)
	return err
}

func (s *QueueStore) DeleteQueueEntry(ctx context.Context, venueID, teamID string) error {
	_, err := s.db.ExecContext(ctx, deleteQueueEntryQuery, venueID, teamID)
	return err
}

func (s *QueueStore) GetQueueEntries(ctx context.Context) ([]match.QueueEntry, error) {
	var entries []match.QueueEntry
	err := s.db.SelectContext(ctx, &entries, getQueueEntriesQuery)
	return entries, err
}

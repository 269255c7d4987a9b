package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/AdamBeresnev/quadras-match/internal/match"
	"github.com/AdamBeresnev/quadras-match/internal/team"
	"github.com/jmoiron/sqlx"
)

type TeamStore struct {
	db *sqlx.DB
}

const (
	getTeamQuery    = "SELECT * FROM teams WHERE id = ?"
	listTeamsQuery  = "SELECT * FROM teams ORDER BY name ASC"
	createTeamQuery = `
		INSERT INTO teams (id, name, created_at) VALUES (:id, :name, :created_at)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`
)

func NewTeamStore(db *sqlx.DB) *TeamStore {
	return &TeamStore{db: db}
}

func (s *TeamStore) GetTeam(ctx context.Context, id string) (*team.Team, error) {
	var t team.Team
	err := s.db.GetContext(ctx, &t, getTeamQuery, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, match.ErrTeamNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *TeamStore) ListTeams(ctx context.Context) ([]team.Team, error) {
	var teams []team.Team
	err := s.db.SelectContext(ctx, &teams, listTeamsQuery)
	return teams, err
}

// CreateTeam inserts the team or renames an existing one.
func (s *TeamStore) CreateTeam(ctx context.Context, t *team.Team) error {
	_, err := s.db.NamedExecContext(ctx, createTeamQuery, t)
	return err
}

// SeedTeams upserts every team in a single transaction.
func (s *TeamStore) SeedTeams(ctx context.Context, teams []team.Team) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i := range teams {
		if _, err := tx.NamedExecContext(ctx, createTeamQuery, &teams[i]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/AdamBeresnev/quadras-match/internal/match"
	"github.com/jmoiron/sqlx"
)

const (
	saveChallengeQuery = `
		INSERT INTO challenges (
			id, challenger_team_id, challenged_team_id, venue_id, field_id, proposed_datetime,
			message, is_ranked, state, match_id, created_at, resolved_at
		) VALUES (
			:id, :challenger_team_id, :challenged_team_id, :venue_id, :field_id, :proposed_datetime,
			:message, :is_ranked, :state, :match_id, :created_at, :resolved_at
		)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			match_id = excluded.match_id,
			resolved_at = excluded.resolved_at
	`
	getChallengeQuery         = "SELECT * FROM challenges WHERE id = ?"
	getChallengesForTeamQuery = "SELECT * FROM challenges WHERE challenger_team_id = ? OR challenged_team_id = ? ORDER BY created_at DESC"
	getPendingChallengesQuery = "SELECT * FROM challenges WHERE state = 'pending' ORDER BY created_at ASC"
)

type ChallengeStore struct {
	db *sqlx.DB
}

func NewChallengeStore(db *sqlx.DB) *ChallengeStore {
	return &ChallengeStore{db: db}
}

func (s *ChallengeStore) SaveChallenge(ctx context.Context, c *match.Challenge) error {
	_, err := s.db.NamedExecContext(ctx, saveChallengeQuery, c)
	return err
}

func (s *ChallengeStore) GetChallenge(ctx context.Context, id string) (*match.Challenge, error) {
	var c match.Challenge
	err := s.db.GetContext(ctx, &c, getChallengeQuery, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, match.ErrChallengeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *ChallengeStore) GetChallengesForTeam(ctx context.Context, teamID string) ([]match.Challenge, error) {
	var challenges []match.Challenge
	err := s.db.SelectContext(ctx, &challenges, getChallengesForTeamQuery, teamID, teamID)
	return challenges, err
}

func (s *ChallengeStore) GetPendingChallenges(ctx context.Context) ([]match.Challenge, error) {
	var challenges []match.Challenge
	err := s.db.SelectContext(ctx, &challenges, getPendingChallengesQuery)
	return challenges, err
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/AdamBeresnev/quadras-match/internal/match"
	"github.com/jmoiron/sqlx"
)

const (
	saveMatchQuery = `
		INSERT INTO matches (
			id, venue_id, field_id, team_a_id, team_b_id, scheduled_at, ends_at, is_ranked, state, origin,
			challenge_id, score_a, score_b, resolution, result_revision,
			home_report_home, home_report_away, home_reported_at,
			away_report_home, away_report_away, away_reported_at,
			confirmations, cancel_requested_by, created_at, updated_at, finished_at
		) VALUES (
			:id, :venue_id, :field_id, :team_a_id, :team_b_id, :scheduled_at, :ends_at, :is_ranked, :state, :origin,
			:challenge_id, :score_a, :score_b, :resolution, :result_revision,
			:home_report_home, :home_report_away, :home_reported_at,
			:away_report_home, :away_report_away, :away_reported_at,
			:confirmations, :cancel_requested_by, :created_at, :updated_at, :finished_at
		)
		ON CONFLICT(id) DO UPDATE SET
			team_b_id = excluded.team_b_id,
			state = excluded.state,
			score_a = excluded.score_a,
			score_b = excluded.score_b,
			resolution = excluded.resolution,
			result_revision = excluded.result_revision,
			home_report_home = excluded.home_report_home,
			home_report_away = excluded.home_report_away,
			home_reported_at = excluded.home_reported_at,
			away_report_home = excluded.away_report_home,
			away_report_away = excluded.away_report_away,
			away_reported_at = excluded.away_reported_at,
			confirmations = excluded.confirmations,
			cancel_requested_by = excluded.cancel_requested_by,
			updated_at = excluded.updated_at,
			finished_at = excluded.finished_at
	`
	deleteMatchQuery       = "DELETE FROM matches WHERE id = ?"
	getMatchQuery          = "SELECT * FROM matches WHERE id = ?"
	getMatchesForTeamQuery = "SELECT * FROM matches WHERE team_a_id = ? OR team_b_id = ? ORDER BY scheduled_at ASC"
	getActiveMatchesQuery  = "SELECT * FROM matches WHERE state NOT IN ('FINISHED', 'CANCELLED') ORDER BY scheduled_at ASC"
	confirmationsSeparator = ","
)

// matchRow flattens the per-side score reports into columns.
type matchRow struct {
	match.Match
	HomeReportHome *int       `db:"home_report_home"`
	HomeReportAway *int       `db:"home_report_away"`
	HomeReportedAt *time.Time `db:"home_reported_at"`
	AwayReportHome *int       `db:"away_report_home"`
	AwayReportAway *int       `db:"away_report_away"`
	AwayReportedAt *time.Time `db:"away_reported_at"`
	ConfirmedSides string     `db:"confirmations"`
}

func toMatchRow(m *match.Match) matchRow {
	row := matchRow{Match: m.Clone()}
	if r := m.HomeReport; r != nil {
		row.HomeReportHome, row.HomeReportAway, row.HomeReportedAt = &r.HomeScore, &r.AwayScore, &r.ReportedAt
	}
	if r := m.AwayReport; r != nil {
		row.AwayReportHome, row.AwayReportAway, row.AwayReportedAt = &r.HomeScore, &r.AwayScore, &r.ReportedAt
	}
	sides := make([]string, len(m.Confirmations))
	for i, s := range m.Confirmations {
		sides[i] = string(s)
	}
	row.ConfirmedSides = strings.Join(sides, confirmationsSeparator)
	return row
}

func rowReport(home, away *int, at *time.Time) *match.ScoreReport {
	if home == nil || away == nil {
		return nil
	}
	r := &match.ScoreReport{HomeScore: *home, AwayScore: *away}
	if at != nil {
		r.ReportedAt = *at
	}
	return r
}

func (r *matchRow) toMatch() match.Match {
	m := r.Match
	m.HomeReport = rowReport(r.HomeReportHome, r.HomeReportAway, r.HomeReportedAt)
	m.AwayReport = rowReport(r.AwayReportHome, r.AwayReportAway, r.AwayReportedAt)
	m.Confirmations = []match.Side{}
	if r.ConfirmedSides != "" {
		for _, s := range strings.Split(r.ConfirmedSides, confirmationsSeparator) {
			m.Confirmations = append(m.Confirmations, match.Side(s))
		}
	}
	return m
}

func toMatches(rows []matchRow) []match.Match {
	out := make([]match.Match, len(rows))
	for i := range rows {
		out[i] = rows[i].toMatch()
	}
	return out
}

type MatchStore struct {
	db *sqlx.DB
}

func NewMatchStore(db *sqlx.DB) *MatchStore {
	return &MatchStore{db: db}
}

// SaveMatch inserts the match or overwrites its mutable columns.
func (s *MatchStore) SaveMatch(ctx context.Context, m *match.Match) error {
	_, err := s.db.NamedExecContext(ctx, saveMatchQuery, toMatchRow(m))
	return err
}

func (s *MatchStore) DeleteMatch(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, deleteMatchQuery, id)
	return err
}

func (s *MatchStore) GetMatch(ctx context.Context, id string) (*match.Match, error) {
	var row matchRow
	err := s.db.GetContext(ctx, &row, getMatchQuery, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, match.ErrMatchNotFound
	}
	if err != nil {
		return nil, err
	}
	m := row.toMatch()
	return &m, nil
}

func (s *MatchStore) GetMatchesForTeam(ctx context.Context, teamID string) ([]match.Match, error) {
	var rows []matchRow
	err := s.db.SelectContext(ctx, &rows, getMatchesForTeamQuery, teamID, teamID)
	return toMatches(rows), err
}

func (s *MatchStore) GetActiveMatches(ctx context.Context) ([]match.Match, error) {
	var rows []matchRow
	err := s.db.SelectContext(ctx, &rows, getActiveMatchesQuery)
	return toMatches(rows), err
}

package store

import (
	"context"
	"testing"
	"time"

	"github.com/AdamBeresnev/quadras-match/internal/db"
	"github.com/AdamBeresnev/quadras-match/internal/match"
	"github.com/AdamBeresnev/quadras-match/internal/team"
	"github.com/AdamBeresnev/quadras-match/internal/utils"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates an in-memory SQLite database and applies migrations
func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	database, err := sqlx.Connect("sqlite3", "file::memory:")
	require.NoError(t, err, "Failed to connect to in-memory DB")
	// Every new connection would open a fresh in-memory database.
	database.SetMaxOpenConns(1)

	_, err = database.Exec("PRAGMA foreign_keys = ON;")
	require.NoError(t, err)

	require.NoError(t, db.RunMigrations(database), "Failed to apply migrations")
	t.Cleanup(func() { database.Close() })
	return database
}

var kickoff = time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)

func newMatch(state match.State) *match.Match {
	return &match.Match{
		ID:          uuid.NewString(),
		VenueID:     "v1",
		FieldID:     utils.Ptr("f1"),
		TeamAID:     "t1",
		TeamBID:     utils.Ptr("t2"),
		ScheduledAt: kickoff,
		EndsAt:      kickoff.Add(time.Hour),
		IsRanked:    true,
		State:       state,
		Origin:      match.OriginBooking,
		CreatedAt:   kickoff.Add(-8 * time.Hour),
		UpdatedAt:   kickoff.Add(-8 * time.Hour),
	}
}

func TestSaveAndGetMatch(t *testing.T) {
	database := setupTestDB(t)
	store := NewMatchStore(database)
	ctx := context.Background()

	m := newMatch(match.Scheduled)
	require.NoError(t, store.SaveMatch(ctx, m))

	got, err := store.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)
	assert.Equal(t, "f1", *got.FieldID)
	assert.Equal(t, "t2", *got.TeamBID)
	assert.True(t, m.ScheduledAt.Equal(got.ScheduledAt))
	assert.True(t, got.IsRanked)
	assert.Equal(t, match.Scheduled, got.State)
	assert.Nil(t, got.HomeReport)
	assert.Empty(t, got.Confirmations)
	assert.Nil(t, got.ScoreA)

	// Finish it: reports, confirmations and final score round-trip.
	reportedAt := kickoff.Add(90 * time.Minute)
	m.HomeReport = &match.ScoreReport{HomeScore: 3, AwayScore: 2, ReportedAt: reportedAt}
	m.AwayReport = &match.ScoreReport{HomeScore: 3, AwayScore: 2, ReportedAt: reportedAt.Add(time.Minute)}
	m.Confirmations = []match.Side{match.Home, match.Away}
	m.State = match.Finished
	m.ScoreA = utils.Ptr(3)
	m.ScoreB = utils.Ptr(2)
	m.Resolution = match.ResolutionAgreed
	m.FinishedAt = utils.Ptr(reportedAt.Add(time.Minute))
	m.ResultRevision = 2
	m.UpdatedAt = reportedAt.Add(time.Minute)
	require.NoError(t, store.SaveMatch(ctx, m))

	got, err = store.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, match.Finished, got.State)
	assert.Equal(t, 3, *got.ScoreA)
	assert.Equal(t, 2, *got.ScoreB)
	assert.Equal(t, match.ResolutionAgreed, got.Resolution)
	assert.Equal(t, 2, got.ResultRevision)
	require.NotNil(t, got.HomeReport)
	require.NotNil(t, got.AwayReport)
	assert.Equal(t, 3, got.AwayReport.HomeScore)
	assert.True(t, reportedAt.Equal(got.HomeReport.ReportedAt))
	assert.Equal(t, []match.Side{match.Home, match.Away}, got.Confirmations)
	require.NotNil(t, got.FinishedAt)

	_, err = store.GetMatch(ctx, "missing")
	assert.ErrorIs(t, err, match.ErrMatchNotFound)
}

func TestMatchQueries(t *testing.T) {
	database := setupTestDB(t)
	store := NewMatchStore(database)
	ctx := context.Background()

	open := newMatch(match.AwaitingOpponent)
	open.TeamBID = nil
	done := newMatch(match.Finished)
	cancelled := newMatch(match.Cancelled)
	cancelled.TeamAID = "t3"
	cancelled.TeamBID = nil
	for _, m := range []*match.Match{open, done, cancelled} {
		require.NoError(t, store.SaveMatch(ctx, m))
	}

	active, err := store.GetActiveMatches(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, open.ID, active[0].ID)
	assert.Nil(t, active[0].TeamBID)

	testCases := []struct {
		team string
		want int
	}{
		{team: "t1", want: 2},
		{team: "t2", want: 1},
		{team: "t3", want: 1},
		{team: "t9", want: 0},
	}
	for _, tc := range testCases {
		t.Run(tc.team, func(t *testing.T) {
			got, err := store.GetMatchesForTeam(ctx, tc.team)
			require.NoError(t, err)
			assert.Len(t, got, tc.want)
		})
	}

	require.NoError(t, store.DeleteMatch(ctx, open.ID))
	_, err = store.GetMatch(ctx, open.ID)
	assert.ErrorIs(t, err, match.ErrMatchNotFound)
}

func TestChallengeStore(t *testing.T) {
	database := setupTestDB(t)
	matches := NewMatchStore(database)
	store := NewChallengeStore(database)
	ctx := context.Background()

	c := &match.Challenge{
		ID:               uuid.NewString(),
		ChallengerTeamID: "t1",
		ChallengedTeamID: "t2",
		VenueID:          "v1",
		ProposedDatetime: kickoff,
		Message:          "bora?",
		IsRanked:         true,
		State:            match.ChallengePending,
		CreatedAt:        kickoff.Add(-24 * time.Hour),
	}
	require.NoError(t, store.SaveChallenge(ctx, c))

	pending, err := store.GetPendingChallenges(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "bora?", pending[0].Message)
	assert.Nil(t, pending[0].FieldID)

	m := newMatch(match.Scheduled)
	m.Origin = match.OriginChallenge
	m.ChallengeID = utils.Ptr(c.ID)
	require.NoError(t, matches.SaveMatch(ctx, m))

	c.State = match.ChallengeAccepted
	c.MatchID = utils.Ptr(m.ID)
	c.ResolvedAt = utils.Ptr(kickoff.Add(-time.Hour))
	require.NoError(t, store.SaveChallenge(ctx, c))

	got, err := store.GetChallenge(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, match.ChallengeAccepted, got.State)
	assert.Equal(t, m.ID, *got.MatchID)

	pending, err = store.GetPendingChallenges(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	forTeam, err := store.GetChallengesForTeam(ctx, "t2")
	require.NoError(t, err)
	assert.Len(t, forTeam, 1)

	_, err = store.GetChallenge(ctx, "missing")
	assert.ErrorIs(t, err, match.ErrChallengeNotFound)

	same := *c
	same.ID = uuid.NewString()
	same.ChallengedTeamID = "t1"
	assert.Error(t, store.SaveChallenge(ctx, &same), "schema rejects self challenges")
}

func TestQueueStore(t *testing.T) {
	database := setupTestDB(t)
	store := NewQueueStore(database)
	ctx := context.Background()

	e := &match.QueueEntry{
		TeamID:         "t1",
		VenueID:        "v1",
		AvailableFrom:  kickoff,
		AvailableUntil: kickoff.Add(2 * time.Hour),
		CreatedAt:      kickoff.Add(-time.Hour),
	}
	require.NoError(t, store.SaveQueueEntry(ctx, e))

	e.AvailableUntil = kickoff.Add(3 * time.Hour)
	require.NoError(t, store.SaveQueueEntry(ctx, e))

	entries, err := store.GetQueueEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, kickoff.Add(3*time.Hour).Equal(entries[0].AvailableUntil))

	require.NoError(t, store.DeleteQueueEntry(ctx, "v1", "t1"))
	entries, err = store.GetQueueEntries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTeamStore(t *testing.T) {
	database := setupTestDB(t)
	store := NewTeamStore(database)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, store.SeedTeams(ctx, []team.Team{
		{ID: "t1", Name: "Tigres", CreatedAt: now},
		{ID: "t2", Name: "Leoes", CreatedAt: now},
	}))
	require.NoError(t, store.CreateTeam(ctx, &team.Team{ID: "t1", Name: "Tigres FC", CreatedAt: now}))

	got, err := store.GetTeam(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Tigres FC", got.Name)

	teams, err := store.ListTeams(ctx)
	require.NoError(t, err)
	require.Len(t, teams, 2)
	assert.Equal(t, "Leoes", teams[0].Name)

	_, err = store.GetTeam(ctx, "t9")
	assert.ErrorIs(t, err, match.ErrTeamNotFound)
}

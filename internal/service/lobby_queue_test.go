package service

import (
	"context"
	"testing"
	"time"

	"github.com/AdamBeresnev/quadras-match/internal/events"
	"github.com/AdamBeresnev/quadras-match/internal/match"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func window(fromHour, untilHour int) match.Window {
	return match.Window{From: at(fromHour, 0), Until: at(untilHour, 0)}
}

func TestLobbyPairsOldestEntryFirst(t *testing.T) {
	h := newHarness(t, WithDeferredPairing())
	ctx := context.Background()

	for _, j := range []struct {
		team string
		w    match.Window
	}{
		{"A", window(18, 20)},
		{"B", window(21, 23)},
		{"C", window(19, 22)},
	} {
		_, m, err := h.lobby.Join(ctx, "v1", j.team, j.w)
		require.NoError(t, err)
		assert.Nil(t, m)
		h.clock.Advance(time.Minute)
	}

	matches, err := h.lobby.TryPair(ctx, "v1")
	require.NoError(t, err)
	require.Len(t, matches, 1)

	m := matches[0]
	assert.Equal(t, "A", m.TeamAID)
	assert.Equal(t, "C", *m.TeamBID)
	assert.Equal(t, at(19, 0), m.ScheduledAt)
	assert.Equal(t, at(20, 0), m.EndsAt)
	assert.Equal(t, match.Scheduled, m.State)
	assert.Equal(t, match.OriginLobby, m.Origin)
	assert.Nil(t, m.FieldID)

	remaining := h.lobby.List("v1")
	require.Len(t, remaining, 1)
	assert.Equal(t, "B", remaining[0].TeamID)
}

func TestLobbyJoinPairsImmediately(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, m, err := h.lobby.Join(ctx, "v1", "t1", window(18, 21))
	require.NoError(t, err)
	assert.Nil(t, m)

	h.clock.Advance(time.Minute)
	_, m, err = h.lobby.Join(ctx, "v1", "t2", window(20, 23))
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "t1", m.TeamAID)
	assert.Equal(t, "t2", *m.TeamBID)
	assert.Equal(t, at(20, 0), m.ScheduledAt)
	assert.Empty(t, h.lobby.List("v1"))
	assert.Equal(t, []events.Type{events.MatchScheduled}, h.emitter.types(m.ID))
}

func TestLobbyPrefersEarliestOverlap(t *testing.T) {
	h := newHarness(t, WithDeferredPairing())
	ctx := context.Background()

	_, _, err := h.lobby.Join(ctx, "v1", "A", window(14, 22))
	require.NoError(t, err)
	h.clock.Advance(time.Minute)
	_, _, err = h.lobby.Join(ctx, "v1", "B", window(20, 22))
	require.NoError(t, err)
	h.clock.Advance(time.Minute)
	_, _, err = h.lobby.Join(ctx, "v1", "C", window(15, 17))
	require.NoError(t, err)

	matches, err := h.lobby.TryPair(ctx, "v1")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "C", *matches[0].TeamBID)
	assert.Equal(t, at(15, 0), matches[0].ScheduledAt)
}

func TestLobbyOverlapMustFitASlot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, _, err := h.lobby.Join(ctx, "v1", "t1", match.Window{From: at(18, 0), Until: at(19, 30)})
	require.NoError(t, err)
	_, m, err := h.lobby.Join(ctx, "v1", "t2", match.Window{From: at(19, 0), Until: at(21, 0)})
	require.NoError(t, err)
	assert.Nil(t, m, "30 minutes of overlap cannot host a 60 minute slot")
	assert.Len(t, h.lobby.List("v1"), 2)
}

func TestLobbySkipsBusyTeam(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.book(t, "t1", 18)
	_, _, err := h.lobby.Join(ctx, "v1", "t1", window(18, 19))
	require.NoError(t, err)
	_, m, err := h.lobby.Join(ctx, "v1", "t2", window(18, 20))
	require.NoError(t, err)
	assert.Nil(t, m)
	assert.Len(t, h.lobby.List("v1"), 2)
}

func TestLobbyJoinValidation(t *testing.T) {
	testCases := []struct {
		name    string
		venueID string
		team    string
		w       match.Window
		wantErr error
	}{
		{name: "until before from", venueID: "v1", team: "t1", w: window(20, 18), wantErr: match.ErrQueueWindowInvalid},
		{name: "empty window", venueID: "v1", team: "t1", w: window(20, 20), wantErr: match.ErrQueueWindowInvalid},
		{name: "already ended", venueID: "v1", team: "t1", w: window(8, 9), wantErr: match.ErrQueueWindowInvalid},
		{name: "venue closed", venueID: "v1", team: "t1", w: match.Window{From: at(23, 30), Until: at(23, 59)}, wantErr: match.ErrQueueWindowInvalid},
		{name: "unknown venue", venueID: "nope", team: "t1", w: window(18, 20), wantErr: match.ErrVenueNotFound},
		{name: "missing team", venueID: "v1", team: "", w: window(18, 20), wantErr: match.ErrInvalidInput},
		{name: "started but still open", venueID: "v1", team: "t1", w: window(9, 12)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			e, _, err := h.lobby.Join(context.Background(), tc.venueID, tc.team, tc.w)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Empty(t, h.lobby.List(tc.venueID))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.w.From, e.AvailableFrom)
		})
	}
}

func TestLobbyRejoinReplacesWindow(t *testing.T) {
	h := newHarness(t, WithDeferredPairing())
	ctx := context.Background()

	first, _, err := h.lobby.Join(ctx, "v1", "t1", window(18, 20))
	require.NoError(t, err)
	_, _, err = h.lobby.Join(ctx, "v1", "t2", window(12, 14))
	require.NoError(t, err)

	h.clock.Advance(time.Hour)
	second, _, err := h.lobby.Join(ctx, "v1", "t1", window(19, 22))
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	entries := h.lobby.List("v1")
	require.Len(t, entries, 2)
	assert.Equal(t, "t1", entries[0].TeamID)
	assert.Equal(t, at(19, 0), entries[0].AvailableFrom)
}

func TestLobbyLeave(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, _, err := h.lobby.Join(ctx, "v1", "t1", window(18, 20))
	require.NoError(t, err)

	require.NoError(t, h.lobby.Leave(ctx, "v1", "t1"))
	assert.Empty(t, h.lobby.List("v1"))
	assert.ErrorIs(t, h.lobby.Leave(ctx, "v1", "t1"), match.ErrQueueEntryNotFound)
}

func TestLobbySweep(t *testing.T) {
	h := newHarness(t, WithDeferredPairing())
	ctx := context.Background()

	_, _, err := h.lobby.Join(ctx, "v1", "early", window(10, 12))
	require.NoError(t, err)
	_, _, err = h.lobby.Join(ctx, "v1", "t1", window(18, 20))
	require.NoError(t, err)
	_, _, err = h.lobby.Join(ctx, "v1", "t2", window(19, 21))
	require.NoError(t, err)

	h.clock.Advance(3 * time.Hour) // 13:00
	assert.Equal(t, 1, h.lobby.Sweep(ctx, h.clock.Now()))
	assert.Empty(t, h.lobby.List("v1"))

	_, _, err = h.lobby.Join(ctx, "v1", "late", window(14, 23))
	require.NoError(t, err)
	h.clock.Advance(defaultQueueTTL)
	assert.Equal(t, 0, h.lobby.Sweep(ctx, h.clock.Now()))
	assert.Empty(t, h.lobby.List("v1"))
}

func TestParseWindow(t *testing.T) {
	cat := newHarness(t).catalog
	venue, err := cat.Venue("v1")
	require.NoError(t, err)

	testCases := []struct {
		name      string
		from      string
		until     string
		want      match.Window
		wantError bool
	}{
		{name: "rfc3339", from: "2026-03-02T18:00:00Z", until: "2026-03-02T20:00:00Z", want: window(18, 20)},
		{name: "clock times", from: "18:00", until: "20:30", want: match.Window{From: at(18, 0), Until: at(20, 30)}},
		{name: "clock times with seconds", from: "18:00:00", until: "19:00:00", want: window(18, 19)},
		{name: "past midnight", from: "22:00", until: "01:00", want: match.Window{From: at(22, 0), Until: at(22, 0).Add(3 * time.Hour)}},
		{name: "garbage", from: "soon", until: "20:00", wantError: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w, err := ParseWindow(venue, testNow, tc.from, tc.until)
			if tc.wantError {
				assert.ErrorIs(t, err, match.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.True(t, tc.want.From.Equal(w.From), "from %s", w.From)
			assert.True(t, tc.want.Until.Equal(w.Until), "until %s", w.Until)
		})
	}
}

func TestLobbyPairsInsideOpeningHours(t *testing.T) {
	testCases := []struct {
		name      string
		w         match.Window
		paired    bool
		scheduled time.Time
	}{
		{
			name:   "overlap only reaches past closing",
			w:      match.Window{From: at(22, 30), Until: at(27, 0)},
			paired: false,
		},
		{
			name:      "overlap ends after closing",
			w:         match.Window{From: at(21, 30), Until: at(26, 0)},
			paired:    true,
			scheduled: at(21, 30),
		},
		{
			name:      "overlap starts before opening",
			w:         match.Window{From: at(29, 0), Until: at(33, 30)},
			paired:    true,
			scheduled: at(32, 0),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()

			_, _, err := h.lobby.Join(ctx, "v1", "t1", tc.w)
			require.NoError(t, err)
			_, m, err := h.lobby.Join(ctx, "v1", "t2", tc.w)
			require.NoError(t, err)

			if !tc.paired {
				assert.Nil(t, m)
				assert.Len(t, h.lobby.List("v1"), 2)
				return
			}
			require.NotNil(t, m)
			assert.Equal(t, tc.scheduled, m.ScheduledAt)

			venue, err := h.catalog.Venue("v1")
			require.NoError(t, err)
			open := venue.OpenWindow(m.ScheduledAt)
			assert.False(t, m.ScheduledAt.Before(open.From))
			assert.False(t, m.EndsAt.After(open.Until))
		})
	}
}

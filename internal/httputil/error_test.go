package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AdamBeresnev/quadras-match/internal/match"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	testCases := []struct {
		err  error
		want int
	}{
		{err: match.ErrSlotUnavailable, want: http.StatusConflict},
		{err: match.ErrHoldExpired, want: http.StatusConflict},
		{err: match.ErrTeamBusy, want: http.StatusConflict},
		{err: match.ErrMatchNotOpen, want: http.StatusUnprocessableEntity},
		{err: match.ErrSlotOutOfWindow, want: http.StatusUnprocessableEntity},
		{err: match.ErrNotChallengedTeam, want: http.StatusForbidden},
		{err: match.ErrWrongSide, want: http.StatusForbidden},
		{err: match.ErrMatchNotFound, want: http.StatusNotFound},
		{err: match.Invalidf("bad"), want: http.StatusBadRequest},
		{err: fmt.Errorf("wrapped: %w", match.ErrAlreadyResolved), want: http.StatusUnprocessableEntity},
		{err: errors.New("disk on fire"), want: http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			assert.Equal(t, tc.want, StatusFor(tc.err))
		})
	}
}

func TestWriteError(t *testing.T) {
	t.Run("domain error", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil), match.Withf(match.ErrTeamBusy, "team t1 is busy"))

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "team_busy", body["code"])
		assert.Equal(t, "team t1 is busy", body["error"])
	})

	t.Run("infrastructure error is hidden", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("database is locked"))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "locked")
	})
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		TeamID string `json:"team_id"`
	}

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"team_id":"t1"}`))
	require.NoError(t, DecodeJSON(r, &v))
	assert.Equal(t, "t1", v.TeamID)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"team_id":`))
	assert.ErrorIs(t, DecodeJSON(r, &v), match.ErrInvalidInput)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	assert.ErrorIs(t, DecodeJSON(r, &v), match.ErrInvalidInput)
}

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AdamBeresnev/quadras-match/internal/match"
	"github.com/AdamBeresnev/quadras-match/internal/team"
	"github.com/alexedwards/scs/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type teamsFunc func(id string) bool

func (f teamsFunc) GetTeam(ctx context.Context, id string) (*team.Team, error) {
	if !f(id) {
		return nil, match.ErrTeamNotFound
	}
	return &team.Team{ID: id}, nil
}

func TestLoadActingTeamFromHeader(t *testing.T) {
	sm := scs.New()
	var got string
	var ok bool
	h := sm.LoadAndSave(LoadActingTeam(sm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = GetTeamIDFromContext(r.Context())
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TeamHeader, " t1 ")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.True(t, ok)
	assert.Equal(t, "t1", got)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, ok)
}

func TestResolveTeam(t *testing.T) {
	known := teamsFunc(func(id string) bool { return id == "t1" || id == "t2" })
	withTeam := context.WithValue(context.Background(), team.TeamIDKey, "t1")

	testCases := []struct {
		name    string
		ctx     context.Context
		body    string
		teams   TeamLookup
		want    string
		wantErr error
	}{
		{name: "identity only", ctx: withTeam, teams: known, want: "t1"},
		{name: "body only", ctx: context.Background(), body: "t2", teams: known, want: "t2"},
		{name: "identity and same body", ctx: withTeam, body: "t1", teams: known, want: "t1"},
		{name: "identity and other body", ctx: withTeam, body: "t2", teams: known, wantErr: match.ErrTeamMismatch},
		{name: "nothing", ctx: context.Background(), teams: known, wantErr: match.ErrInvalidInput},
		{name: "unknown team", ctx: context.Background(), body: "t9", teams: known, wantErr: match.ErrTeamNotFound},
		{name: "no directory", ctx: context.Background(), body: "t9", want: "t9"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResolveTeam(tc.ctx, tc.teams, tc.body)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRequestLoggerAttachesLogger(t *testing.T) {
	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEqual(t, zerolog.Disabled, zerolog.Ctx(r.Context()).GetLevel())
		w.WriteHeader(http.StatusTeapot)
	})
	chain := RequestLogger(zerolog.Nop().Level(zerolog.InfoLevel))
	for i := len(chain) - 1; i >= 0; i-- {
		h = chain[i](h)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestRequireArbiter(t *testing.T) {
	testCases := []struct {
		name   string
		token  string
		header string
		team   string
		status int
	}{
		{name: "valid token", token: "s3cret", header: "s3cret", status: http.StatusNoContent},
		{name: "wrong token", token: "s3cret", header: "guess", status: http.StatusForbidden},
		{name: "missing token", token: "s3cret", status: http.StatusForbidden},
		{name: "acting team with token", token: "s3cret", header: "s3cret", team: "t1", status: http.StatusForbidden},
		{name: "resolution disabled", token: "", header: "", status: http.StatusForbidden},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := RequireArbiter(tc.token)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			}))

			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tc.header != "" {
				req.Header.Set(ArbiterHeader, tc.header)
			}
			if tc.team != "" {
				req = req.WithContext(context.WithValue(req.Context(), team.TeamIDKey, tc.team))
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusForbidden {
				assert.Contains(t, rec.Body.String(), "not_arbiter")
			}
		})
	}
}

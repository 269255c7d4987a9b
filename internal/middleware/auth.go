package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/AdamBeresnev/quadras-match/internal/match"
	"github.com/AdamBeresnev/quadras-match/internal/team"
	"github.com/alexedwards/scs/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

const (
	SessionTeamKey = "teamID"
	TeamHeader     = "X-Team-ID"
)

// TeamLookup is the team directory.
type TeamLookup interface {
	GetTeam(ctx context.Context, id string) (*team.Team, error)
}

// LoadActingTeam puts the acting team in the request context. The session wins over the
// X-Team-ID header. Requests without either pass through unchanged.
func LoadActingTeam(sessionManager *scs.SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			teamID := sessionManager.GetString(r.Context(), SessionTeamKey)
			if teamID == "" {
				teamID = strings.TrimSpace(r.Header.Get(TeamHeader))
			}
			if teamID == "" {
				next.ServeHTTP(w, r)
				return
			}

			hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("team_id", teamID)
			})
			ctx := context.WithValue(r.Context(), team.TeamIDKey, teamID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetTeamIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(team.TeamIDKey).(string)
	return id, ok && id != ""
}

// ResolveTeam returns the team acting on a request. bodyTeamID is the team_id field of the
// request body, used when the request carries no identity; when both are present they must
// agree. The team must exist in the directory when one is given.
func ResolveTeam(ctx context.Context, teams TeamLookup, bodyTeamID string) (string, error) {
	teamID, ok := GetTeamIDFromContext(ctx)
	bodyTeamID = strings.TrimSpace(bodyTeamID)
	switch {
	case ok && bodyTeamID != "" && bodyTeamID != teamID:
		return "", match.ErrTeamMismatch
	case !ok:
		teamID = bodyTeamID
	}
	if teamID == "" {
		return "", match.Invalidf("team_id is required")
	}

	if teams != nil {
		if _, err := teams.GetTeam(ctx, teamID); err != nil {
			return "", err
		}
	}
	return teamID, nil
}

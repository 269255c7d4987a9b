package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/AdamBeresnev/quadras-match/internal/httputil"
	"github.com/AdamBeresnev/quadras-match/internal/match"
	"github.com/AdamBeresnev/quadras-match/internal/middleware"
	"github.com/AdamBeresnev/quadras-match/internal/service"
	"github.com/AdamBeresnev/quadras-match/internal/utils"
	"github.com/go-chi/chi/v5"
)

type teamRequest struct {
	TeamID string `json:"team_id"`
}

type bookRequest struct {
	TeamID    string    `json:"team_id"`
	SlotStart time.Time `json:"slot_start"`
	IsRanked  bool      `json:"is_ranked"`
}

type scoreRequest struct {
	TeamID    string `json:"team_id"`
	HomeScore *int   `json:"home_score"`
	AwayScore *int   `json:"away_score"`
	Side      string `json:"side"`
}

type confirmRequest struct {
	TeamID string `json:"team_id"`
	Side   string `json:"side"`
}

type lobbyJoinRequest struct {
	TeamID         string `json:"team_id"`
	AvailableFrom  string `json:"available_from"`
	AvailableUntil string `json:"available_until"`
}

type challengeFields struct {
	ChallengerTeamID string    `json:"challenger_team_id"`
	ChallengedTeamID string    `json:"challenged_team_id"`
	VenueID          string    `json:"venue_id"`
	FieldID          *string   `json:"field_id"`
	ProposedDatetime time.Time `json:"proposed_datetime"`
	Message          string    `json:"message"`
	IsRanked         bool      `json:"is_ranked"`
}

// challengeRequest accepts the body flat or wrapped in a "challenge" object.
type challengeRequest struct {
	challengeFields
	Challenge *challengeFields `json:"challenge"`
}

func (c *challengeRequest) fields() challengeFields {
	if c.Challenge != nil {
		return *c.Challenge
	}
	return c.challengeFields
}

type venueView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Timezone    string `json:"timezone"`
	OpensAt     string `json:"opens_at"`
	ClosesAt    string `json:"closes_at"`
	SlotMinutes int    `json:"slot_minutes"`
}

type fieldView struct {
	ID          string `json:"id"`
	VenueID     string `json:"venue_id"`
	Name        string `json:"name"`
	SlotMinutes int    `json:"slot_minutes"`
}

type lobbyJoinResponse struct {
	Entry match.QueueEntry `json:"entry"`
	Match *match.Match     `json:"match,omitempty"`
}

func clock(d time.Duration) string {
	return time.Time{}.Add(d).Format("15:04")
}

// decodeOptional decodes a JSON body when one is present.
func decodeOptional(r *http.Request, v any) error {
	if r.ContentLength == 0 {
		return nil
	}
	return httputil.DecodeJSON(r, v)
}

func (app *application) createSession(w http.ResponseWriter, r *http.Request) {
	var req teamRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	t, err := app.teams.GetTeam(r.Context(), strings.TrimSpace(req.TeamID))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if err := app.sessions.RenewToken(r.Context()); err != nil {
		httputil.InternalServerError(w, r, "failed to renew session", err)
		return
	}
	app.sessions.Put(r.Context(), middleware.SessionTeamKey, t.ID)
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (app *application) destroySession(w http.ResponseWriter, r *http.Request) {
	if err := app.sessions.Destroy(r.Context()); err != nil {
		httputil.InternalServerError(w, r, "failed to destroy session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (app *application) listTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := app.teams.ListTeams(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, teams)
}

func (app *application) listTeamMatches(w http.ResponseWriter, r *http.Request) {
	teamID := chi.URLParam(r, "id")
	if _, err := app.teams.GetTeam(r.Context(), teamID); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	state := match.State(strings.ToUpper(r.URL.Query().Get("status")))
	if state != "" && !state.Valid() {
		httputil.BadRequest(w, r, "unknown status "+string(state), nil)
		return
	}

	matches, err := app.lifecycle.ListForTeam(r.Context(), teamID, state)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, matches)
}

func (app *application) listVenues(w http.ResponseWriter, r *http.Request) {
	venues := app.catalog.Venues()
	out := make([]venueView, 0, len(venues))
	for _, v := range venues {
		out = append(out, venueView{
			ID:          v.ID,
			Name:        v.Name,
			Timezone:    v.Location.String(),
			OpensAt:     clock(v.OpensAt),
			ClosesAt:    clock(v.ClosesAt),
			SlotMinutes: int(v.SlotDuration / time.Minute),
		})
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (app *application) listFields(w http.ResponseWriter, r *http.Request) {
	fields, err := app.catalog.Fields(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	out := make([]fieldView, 0, len(fields))
	for _, f := range fields {
		out = append(out, fieldView{ID: f.ID, VenueID: f.VenueID, Name: f.Name, SlotMinutes: int(f.SlotDuration / time.Minute)})
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (app *application) listOpenMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := app.coordinator.ListOpenMatches(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, matches)
}

func (app *application) listLobby(w http.ResponseWriter, r *http.Request) {
	venueID := chi.URLParam(r, "id")
	if _, err := app.catalog.Venue(venueID); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app.lobby.List(venueID))
}

func (app *application) joinLobby(w http.ResponseWriter, r *http.Request) {
	venueID := chi.URLParam(r, "id")
	var req lobbyJoinRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	teamID, err := middleware.ResolveTeam(r.Context(), app.teams, req.TeamID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	venue, err := app.catalog.Venue(venueID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	window, err := service.ParseWindow(venue, app.clock.Now(), req.AvailableFrom, req.AvailableUntil)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	entry, paired, err := app.lobby.Join(r.Context(), venueID, teamID, window)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	status := http.StatusOK
	if paired != nil {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, lobbyJoinResponse{Entry: entry, Match: paired})
}

func (app *application) leaveLobby(w http.ResponseWriter, r *http.Request) {
	teamID, err := middleware.ResolveTeam(r.Context(), app.teams, r.URL.Query().Get("team_id"))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if err := app.lobby.Leave(r.Context(), chi.URLParam(r, "id"), teamID); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (app *application) listSlots(w http.ResponseWriter, r *http.Request) {
	fieldID := chi.URLParam(r, "id")
	field, err := app.catalog.Field(fieldID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	venue, err := app.catalog.Venue(field.VenueID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	date := app.clock.Now().In(venue.Location)
	if s := r.URL.Query().Get("date"); s != "" {
		date, err = time.ParseInLocation(time.DateOnly, s, venue.Location)
		if err != nil {
			httputil.BadRequest(w, r, "date must be YYYY-MM-DD", err)
			return
		}
	}

	slots, err := app.slots.ListSlots(r.Context(), fieldID, date)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, slots)
}

func (app *application) bookSlot(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if req.SlotStart.IsZero() {
		httputil.BadRequest(w, r, "slot_start is required", nil)
		return
	}
	teamID, err := middleware.ResolveTeam(r.Context(), app.teams, req.TeamID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	m, err := app.coordinator.BookSlot(r.Context(), chi.URLParam(r, "id"), req.SlotStart, teamID, req.IsRanked)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, m)
}

func (app *application) getMatch(w http.ResponseWriter, r *http.Request) {
	m, err := app.lifecycle.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}

// actingTeam resolves the acting team from an optional body carrying team_id.
func (app *application) actingTeam(r *http.Request) (string, error) {
	var req teamRequest
	if err := decodeOptional(r, &req); err != nil {
		return "", err
	}
	return middleware.ResolveTeam(r.Context(), app.teams, req.TeamID)
}

func (app *application) joinMatch(w http.ResponseWriter, r *http.Request) {
	teamID, err := app.actingTeam(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	m, err := app.lifecycle.JoinOpenMatch(r.Context(), chi.URLParam(r, "id"), teamID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}

func (app *application) reportScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if req.HomeScore == nil || req.AwayScore == nil {
		httputil.BadRequest(w, r, "home_score and away_score are required", nil)
		return
	}
	side, err := match.ParseSide(req.Side)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	teamID, err := middleware.ResolveTeam(r.Context(), app.teams, req.TeamID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	m, err := app.lifecycle.ReportScore(r.Context(), chi.URLParam(r, "id"), teamID, side, *req.HomeScore, *req.AwayScore)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}

func (app *application) confirmScore(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	side, err := match.ParseSide(req.Side)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	teamID, err := middleware.ResolveTeam(r.Context(), app.teams, req.TeamID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	m, err := app.lifecycle.Confirm(r.Context(), chi.URLParam(r, "id"), teamID, side)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}

func (app *application) disputeMatch(w http.ResponseWriter, r *http.Request) {
	teamID, err := app.actingTeam(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	m, err := app.lifecycle.Dispute(r.Context(), chi.URLParam(r, "id"), teamID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}

func (app *application) cancelMatch(w http.ResponseWriter, r *http.Request) {
	teamID, err := app.actingTeam(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	m, err := app.lifecycle.Cancel(r.Context(), chi.URLParam(r, "id"), teamID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}

func (app *application) resolveMatch(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if req.HomeScore == nil || req.AwayScore == nil {
		httputil.BadRequest(w, r, "home_score and away_score are required", nil)
		return
	}

	m, err := app.lifecycle.Resolve(r.Context(), chi.URLParam(r, "id"), *req.HomeScore, *req.AwayScore)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}

func (app *application) listChallenges(w http.ResponseWriter, r *http.Request) {
	teamID, err := middleware.ResolveTeam(r.Context(), app.teams, r.URL.Query().Get("team_id"))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	challenges, err := app.challenges.ListForTeam(r.Context(), teamID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, challenges)
}

func (app *application) proposeChallenge(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	in := req.fields()
	if in.FieldID != nil {
		in.FieldID = utils.StringOrNil(*in.FieldID)
	}

	challenger, err := middleware.ResolveTeam(r.Context(), app.teams, in.ChallengerTeamID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if in.ChallengedTeamID != "" && in.ChallengedTeamID != challenger {
		if _, err := app.teams.GetTeam(r.Context(), in.ChallengedTeamID); err != nil {
			httputil.WriteError(w, r, err)
			return
		}
	}

	c, err := app.challenges.Propose(r.Context(), service.ProposeInput{
		ChallengerTeamID: challenger,
		ChallengedTeamID: in.ChallengedTeamID,
		VenueID:          in.VenueID,
		FieldID:          in.FieldID,
		ProposedDatetime: in.ProposedDatetime,
		Message:          in.Message,
		IsRanked:         in.IsRanked,
	})
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, c)
}

func (app *application) getChallenge(w http.ResponseWriter, r *http.Request) {
	c, err := app.challenges.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (app *application) acceptChallenge(w http.ResponseWriter, r *http.Request) {
	teamID, err := app.actingTeam(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	m, err := app.challenges.Accept(r.Context(), chi.URLParam(r, "id"), teamID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}

func (app *application) rejectChallenge(w http.ResponseWriter, r *http.Request) {
	teamID, err := app.actingTeam(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	c, err := app.challenges.Reject(r.Context(), chi.URLParam(r, "id"), teamID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

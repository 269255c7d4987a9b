package main

import (
	"context"
	"net/http"

	"github.com/AdamBeresnev/quadras-match/internal/catalog"
	"github.com/AdamBeresnev/quadras-match/internal/httputil"
	"github.com/AdamBeresnev/quadras-match/internal/middleware"
	"github.com/AdamBeresnev/quadras-match/internal/service"
	"github.com/AdamBeresnev/quadras-match/internal/team"
	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

// TeamDirectory is the identity collaborator.
type TeamDirectory interface {
	middleware.TeamLookup
	ListTeams(ctx context.Context) ([]team.Team, error)
}

type application struct {
	clock       clockwork.Clock
	catalog     *catalog.Catalog
	teams       TeamDirectory
	sessions    *scs.SessionManager
	slots       *service.SlotRegistry
	lifecycle   *service.MatchLifecycle
	coordinator *service.Coordinator
	lobby       *service.LobbyQueue
	challenges  *service.ChallengeNegotiator
	corsOrigins []string
	arbiterKey  string
}

func newRouter(app *application) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	for _, mw := range middleware.RequestLogger(log.Logger) {
		r.Use(mw)
	}
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   app.corsOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", middleware.TeamHeader, middleware.ArbiterHeader},
		AllowCredentials: true,
	}).Handler)
	r.Use(app.sessions.LoadAndSave)
	r.Use(middleware.LoadActingTeam(app.sessions))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.NotFound(w, r, "route not found")
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/session", app.createSession)
		r.Delete("/session", app.destroySession)

		r.Get("/teams", app.listTeams)
		r.Get("/teams/{id}/matches", app.listTeamMatches)

		r.Get("/venues", app.listVenues)
		r.Route("/venues/{id}", func(r chi.Router) {
			r.Get("/fields", app.listFields)
			r.Get("/open-matches", app.listOpenMatches)
			r.Get("/lobby", app.listLobby)
			r.Post("/lobby/join", app.joinLobby)
			r.Delete("/lobby/leave", app.leaveLobby)
		})

		r.Get("/fields/{id}/slots", app.listSlots)
		r.Post("/fields/{id}/book", app.bookSlot)

		r.Route("/matches/{id}", func(r chi.Router) {
			r.Get("/", app.getMatch)
			r.Post("/join", app.joinMatch)
			r.Post("/score", app.reportScore)
			r.Post("/confirm", app.confirmScore)
			r.Post("/dispute", app.disputeMatch)
			r.Post("/cancel", app.cancelMatch)
			r.With(middleware.RequireArbiter(app.arbiterKey)).Post("/resolve", app.resolveMatch)
		})

		r.Get("/challenges", app.listChallenges)
		r.Post("/challenges", app.proposeChallenge)
		r.Route("/challenges/{id}", func(r chi.Router) {
			r.Get("/", app.getChallenge)
			r.Post("/accept", app.acceptChallenge)
			r.Post("/reject", app.rejectChallenge)
		})
	})

	return r
}

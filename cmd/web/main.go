package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/AdamBeresnev/quadras-match/internal/catalog"
	"github.com/AdamBeresnev/quadras-match/internal/config"
	"github.com/AdamBeresnev/quadras-match/internal/db"
	"github.com/AdamBeresnev/quadras-match/internal/events"
	"github.com/AdamBeresnev/quadras-match/internal/service"
	"github.com/AdamBeresnev/quadras-match/internal/store"
	"github.com/AdamBeresnev/quadras-match/internal/team"
	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	cfg.SetupLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg config.Config) error {
	database, err := db.InitDB(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.RunMigrations(database); err != nil {
		return err
	}

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return err
	}

	teamStore := store.NewTeamStore(database)
	if err := seedTeams(ctx, teamStore, cat); err != nil {
		return err
	}

	publisher, closePublisher, err := newPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	defer closePublisher()
	dispatcher := events.NewDispatcher(publisher, cfg.EventBuffer)

	clk := clockwork.NewRealClock()
	matchStore := store.NewMatchStore(database)

	slots := service.NewSlotRegistry(cat, clk, service.WithHoldTTL(cfg.HoldTTL))
	teams := service.NewTeamSchedules()
	lifecycle := service.NewMatchLifecycle(clk, teams, slots,
		service.WithMatchRepository(matchStore),
		service.WithEmitter(dispatcher),
		service.WithOpenMatchTTL(cfg.OpenMatchTTL),
		service.WithReportGrace(cfg.ReportGrace),
	)
	coordinator := service.NewCoordinator(cat, slots, teams, lifecycle)
	challenges := service.NewChallengeNegotiator(cat, clk, coordinator,
		service.WithChallengeRepository(store.NewChallengeStore(database)),
		service.WithExpiryHorizon(cfg.ChallengeExpiry),
	)
	lobby := service.NewLobbyQueue(cat, clk, coordinator,
		service.WithQueueRepository(store.NewQueueStore(database)),
		service.WithQueueTTL(cfg.QueueTTL),
	)

	if _, err := coordinator.Restore(ctx, matchStore); err != nil {
		return err
	}
	if _, err := challenges.Restore(ctx); err != nil {
		return err
	}
	if _, err := lobby.Restore(ctx); err != nil {
		return err
	}

	sessionManager := scs.New()
	sessionManager.Lifetime = cfg.SessionLifetime
	sessionManager.Store = sqlite3store.New(database.DB)

	app := &application{
		clock:       clk,
		catalog:     cat,
		teams:       teamStore,
		sessions:    sessionManager,
		slots:       slots,
		lifecycle:   lifecycle,
		coordinator: coordinator,
		lobby:       lobby,
		challenges:  challenges,
		corsOrigins: cfg.CORSOrigins,
		arbiterKey:  cfg.ArbiterToken,
	}
	if cfg.ArbiterToken == "" {
		log.Warn().Msg("ARBITER_TOKEN not set, dispute resolution is disabled")
	}
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           newRouter(app),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return service.NewSweeper(clk, cfg.SweepInterval, slots, lobby, challenges, lifecycle).Run(gctx)
	})
	g.Go(func() error {
		return dispatcher.Run(gctx)
	})

	return g.Wait()
}

func seedTeams(ctx context.Context, s *store.TeamStore, cat *catalog.Catalog) error {
	configured := cat.Teams()
	if len(configured) == 0 {
		return nil
	}
	now := time.Now().UTC()
	teams := make([]team.Team, 0, len(configured))
	for _, t := range configured {
		teams = append(teams, team.Team{ID: t.ID, Name: t.Name, CreatedAt: now})
	}
	if err := s.SeedTeams(ctx, teams); err != nil {
		return err
	}
	log.Info().Int("teams", len(teams)).Msg("seeded teams")
	return nil
}

// newPublisher connects to JetStream when NATS_URL is set and logs events otherwise.
func newPublisher(ctx context.Context, cfg config.Config) (events.Publisher, func(), error) {
	if cfg.NATSURL == "" {
		log.Info().Msg("NATS_URL not set, events go to the log")
		return events.LogPublisher{}, func() {}, nil
	}

	jsCfg := events.DefaultJetStreamConfig()
	jsCfg.URL = cfg.NATSURL
	jsCfg.StreamName = cfg.NATSStream
	jsCfg.SubjectPrefix = cfg.NATSSubjectPrefix
	pub, err := events.NewJetStreamPublisher(ctx, jsCfg)
	if err != nil {
		return nil, nil, err
	}
	return pub, pub.Close, nil
}

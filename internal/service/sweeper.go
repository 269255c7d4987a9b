package service

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const defaultSweepInterval = time.Second

// Sweeper drives every time-based transition from a single ticker: hold expiry, queue
// expiry and pairing, challenge expiry and match timeouts.
type Sweeper struct {
	clock      clockwork.Clock
	interval   time.Duration
	slots      *SlotRegistry
	lobby      *LobbyQueue
	challenges *ChallengeNegotiator
	lifecycle  *MatchLifecycle
}

func NewSweeper(clk clockwork.Clock, interval time.Duration, slots *SlotRegistry, lobby *LobbyQueue, challenges *ChallengeNegotiator, lifecycle *MatchLifecycle) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Sweeper{
		clock:      clk,
		interval:   interval,
		slots:      slots,
		lobby:      lobby,
		challenges: challenges,
		lifecycle:  lifecycle,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.interval).Msg("sweeper started")
	s.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("sweeper stopped")
			return nil
		case <-ticker.Chan():
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass over every component.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := s.clock.Now()
	holds := s.slots.Sweep(now)
	expired := s.challenges.Sweep(ctx, now)
	transitions := s.lifecycle.Sweep(ctx, now)
	paired := s.lobby.Sweep(ctx, now)

	if holds+expired+transitions+paired > 0 {
		log.Debug().
			Int("expired_holds", holds).
			Int("expired_challenges", expired).
			Int("match_transitions", transitions).
			Int("lobby_pairs", paired).
			Msg("sweep")
	}
}

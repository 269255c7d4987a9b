package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/AdamBeresnev/quadras-match/internal/catalog"
	"github.com/AdamBeresnev/quadras-match/internal/match"
	"github.com/AdamBeresnev/quadras-match/internal/utils"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const resolvedChallengeRetention = 24 * time.Hour

// ChallengeMatcher creates the match of an accepted challenge.
type ChallengeMatcher interface {
	CreateFromChallenge(ctx context.Context, c match.Challenge) (match.Match, error)
	GetMatch(ctx context.Context, id string) (match.Match, error)
	Discard(ctx context.Context, m match.Match)
	Announce(m match.Match)
}

type ProposeInput struct {
	ChallengerTeamID string
	ChallengedTeamID string
	VenueID          string
	FieldID          *string
	ProposedDatetime time.Time
	Message          string
	IsRanked         bool
}

type challengeUnit struct {
	mu   sync.Mutex
	gone bool
	c    match.Challenge
}

// ChallengeNegotiator runs direct team-to-team proposals. Every challenge is its own lock
// unit, so accept and reject of the same challenge are serialised.
type ChallengeNegotiator struct {
	catalog Catalog
	clock   clockwork.Clock
	matcher ChallengeMatcher
	repo    ChallengeRepository
	expiry  time.Duration

	mu    sync.RWMutex
	units map[string]*challengeUnit
}

type NegotiatorOption func(*ChallengeNegotiator)

func WithChallengeRepository(r ChallengeRepository) NegotiatorOption {
	return func(n *ChallengeNegotiator) { n.repo = r }
}

// WithExpiryHorizon keeps pending challenges open for d past their proposed time.
func WithExpiryHorizon(d time.Duration) NegotiatorOption {
	return func(n *ChallengeNegotiator) {
		if d >= 0 {
			n.expiry = d
		}
	}
}

func NewChallengeNegotiator(cat Catalog, clk clockwork.Clock, matcher ChallengeMatcher, opts ...NegotiatorOption) *ChallengeNegotiator {
	n := &ChallengeNegotiator{
		catalog: cat,
		clock:   clk,
		matcher: matcher,
		units:   make(map[string]*challengeUnit),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *ChallengeNegotiator) unit(id string) *challengeUnit {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.units[id]
}

// Propose records a pending challenge from one team to another.
func (n *ChallengeNegotiator) Propose(ctx context.Context, in ProposeInput) (match.Challenge, error) {
	if err := ctx.Err(); err != nil {
		return match.Challenge{}, err
	}
	if in.ChallengerTeamID == "" || in.ChallengedTeamID == "" {
		return match.Challenge{}, match.Invalidf("challenger_team_id and challenged_team_id are required")
	}
	if in.ChallengerTeamID == in.ChallengedTeamID {
		return match.Challenge{}, match.ErrSameTeam
	}
	venue, err := n.catalog.Venue(in.VenueID)
	if err != nil {
		return match.Challenge{}, err
	}

	now := n.clock.Now()
	if !in.ProposedDatetime.After(now) {
		return match.Challenge{}, match.ErrProposalInPast
	}

	if in.FieldID != nil {
		field, err := n.catalog.Field(*in.FieldID)
		if err != nil {
			return match.Challenge{}, err
		}
		if field.VenueID != venue.ID {
			return match.Challenge{}, match.Withf(match.ErrFieldNotFound, "field %s is not at venue %s", field.ID, venue.ID)
		}
		if _, err := catalog.SlotAt(venue, field, in.ProposedDatetime); err != nil {
			return match.Challenge{}, err
		}
	}

	c := match.Challenge{
		ID:               uuid.NewString(),
		ChallengerTeamID: in.ChallengerTeamID,
		ChallengedTeamID: in.ChallengedTeamID,
		VenueID:          in.VenueID,
		FieldID:          in.FieldID,
		ProposedDatetime: in.ProposedDatetime,
		Message:          in.Message,
		IsRanked:         in.IsRanked,
		State:            match.ChallengePending,
		CreatedAt:        now,
	}
	if n.repo != nil {
		if err := n.repo.SaveChallenge(ctx, &c); err != nil {
			return match.Challenge{}, fmt.Errorf("failed to persist challenge: %w", err)
		}
	}

	n.mu.Lock()
	n.units[c.ID] = &challengeUnit{c: c}
	n.mu.Unlock()

	log.Info().
		Str("challenge_id", c.ID).
		Str("challenger_team_id", c.ChallengerTeamID).
		Str("challenged_team_id", c.ChallengedTeamID).
		Time("proposed_datetime", c.ProposedDatetime).
		Msg("challenge proposed")
	return c, nil
}

// Load puts a persisted challenge back under management without writing it.
func (n *ChallengeNegotiator) Load(c match.Challenge) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.units[c.ID] = &challengeUnit{c: c}
}

// Restore reloads pending challenges from the repository.
func (n *ChallengeNegotiator) Restore(ctx context.Context) (int, error) {
	if n.repo == nil {
		return 0, nil
	}
	pending, err := n.repo.GetPendingChallenges(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load pending challenges: %w", err)
	}
	for _, c := range pending {
		n.Load(c)
	}
	log.Info().Int("challenges", len(pending)).Msg("restored pending challenges")
	return len(pending), nil
}

func (n *ChallengeNegotiator) save(ctx context.Context, u *challengeUnit, next match.Challenge) error {
	if n.repo != nil {
		if err := n.repo.SaveChallenge(ctx, &next); err != nil {
			return fmt.Errorf("failed to persist challenge %s: %w", next.ID, err)
		}
	}
	u.c = next
	return nil
}

// expireIfDue moves a pending challenge past its horizon to expired. Called with u locked.
func (n *ChallengeNegotiator) expireIfDue(ctx context.Context, u *challengeUnit, now time.Time) error {
	if u.c.State != match.ChallengePending || now.Before(u.c.ProposedDatetime.Add(n.expiry)) {
		return nil
	}
	next := u.c
	next.State = match.ChallengeExpired
	next.ResolvedAt = utils.Ptr(now)
	if err := n.save(ctx, u, next); err != nil {
		return err
	}
	log.Info().Str("challenge_id", next.ID).Msg("challenge expired")
	return nil
}

// withUnit runs fn with the challenge locked and due expiry applied.
func (n *ChallengeNegotiator) withUnit(ctx context.Context, id string, fn func(u *challengeUnit, now time.Time) error) error {
	u := n.unit(id)
	if u == nil {
		return n.archived(ctx, id, fn)
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.gone {
		return n.archived(ctx, id, fn)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	now := n.clock.Now()
	if err := n.expireIfDue(ctx, u, now); err != nil {
		return err
	}
	return fn(u, now)
}

// archived serves evicted challenges, which are always resolved. The unit is detached, so
// nothing fn changes is kept.
func (n *ChallengeNegotiator) archived(ctx context.Context, id string, fn func(u *challengeUnit, now time.Time) error) error {
	if n.repo == nil {
		return match.ErrChallengeNotFound
	}
	c, err := n.repo.GetChallenge(ctx, id)
	if err != nil {
		return err
	}
	return fn(&challengeUnit{c: *c}, n.clock.Now())
}

// Accept answers the challenge on behalf of the challenged team and schedules the match.
// Accepting an accepted challenge returns the match created the first time.
func (n *ChallengeNegotiator) Accept(ctx context.Context, id, teamID string) (match.Match, error) {
	var out match.Match
	err := n.withUnit(ctx, id, func(u *challengeUnit, now time.Time) error {
		if teamID != u.c.ChallengedTeamID {
			return match.ErrNotChallengedTeam
		}

		switch u.c.State {
		case match.ChallengeAccepted:
			m, err := n.matcher.GetMatch(ctx, utils.OrZero(u.c.MatchID))
			if err != nil {
				return err
			}
			out = m
			return nil
		case match.ChallengeRejected, match.ChallengeExpired:
			return match.Withf(match.ErrAlreadyResolved, "challenge is already %s", u.c.State)
		}

		m, err := n.matcher.CreateFromChallenge(ctx, u.c)
		if err != nil {
			return err
		}

		next := u.c
		next.State = match.ChallengeAccepted
		next.MatchID = utils.Ptr(m.ID)
		next.ResolvedAt = utils.Ptr(now)
		if err := n.save(ctx, u, next); err != nil {
			n.matcher.Discard(ctx, m)
			return err
		}

		n.matcher.Announce(m)
		log.Info().Str("challenge_id", id).Str("match_id", m.ID).Msg("challenge accepted")
		out = m
		return nil
	})
	return out, err
}

// Reject declines the challenge. Rejecting twice returns the same rejected challenge.
func (n *ChallengeNegotiator) Reject(ctx context.Context, id, teamID string) (match.Challenge, error) {
	var out match.Challenge
	err := n.withUnit(ctx, id, func(u *challengeUnit, now time.Time) error {
		if teamID != u.c.ChallengedTeamID {
			return match.ErrNotChallengedTeam
		}

		switch u.c.State {
		case match.ChallengeRejected:
			out = u.c
			return nil
		case match.ChallengeAccepted, match.ChallengeExpired:
			return match.Withf(match.ErrAlreadyResolved, "challenge is already %s", u.c.State)
		}

		next := u.c
		next.State = match.ChallengeRejected
		next.ResolvedAt = utils.Ptr(now)
		if err := n.save(ctx, u, next); err != nil {
			return err
		}
		log.Info().Str("challenge_id", id).Msg("challenge rejected")
		out = u.c
		return nil
	})
	return out, err
}

func (n *ChallengeNegotiator) Get(ctx context.Context, id string) (match.Challenge, error) {
	var out match.Challenge
	err := n.withUnit(ctx, id, func(u *challengeUnit, _ time.Time) error {
		out = u.c
		return nil
	})
	return out, err
}

func (n *ChallengeNegotiator) snapshot() []*challengeUnit {
	n.mu.RLock()
	defer n.mu.RUnlock()
	units := make([]*challengeUnit, 0, len(n.units))
	for _, u := range n.units {
		units = append(units, u)
	}
	return units
}

// ListForTeam returns the challenges sent or received by the team, newest first.
func (n *ChallengeNegotiator) ListForTeam(ctx context.Context, teamID string) ([]match.Challenge, error) {
	now := n.clock.Now()
	seen := make(map[string]bool)
	out := []match.Challenge{}
	for _, u := range n.snapshot() {
		u.mu.Lock()
		c, live := u.c, !u.gone
		u.mu.Unlock()
		if !live || !c.Involves(teamID) {
			continue
		}
		if c.State == match.ChallengePending && !now.Before(c.ProposedDatetime.Add(n.expiry)) {
			c.State = match.ChallengeExpired
		}
		seen[c.ID] = true
		out = append(out, c)
	}

	if n.repo != nil {
		archived, err := n.repo.GetChallengesForTeam(ctx, teamID)
		if err != nil {
			return nil, fmt.Errorf("failed to get team challenges: %w", err)
		}
		for _, c := range archived {
			if !seen[c.ID] {
				out = append(out, c)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Sweep expires pending challenges past their horizon and evicts long-resolved ones.
// Returns the number expired.
func (n *ChallengeNegotiator) Sweep(ctx context.Context, now time.Time) int {
	expired := 0
	for _, u := range n.snapshot() {
		u.mu.Lock()
		if u.gone {
			u.mu.Unlock()
			continue
		}
		before := u.c.State
		if err := n.expireIfDue(ctx, u, now); err != nil {
			log.Error().Err(err).Str("challenge_id", u.c.ID).Msg("failed to expire challenge")
		} else if before != u.c.State {
			expired++
		}

		evict := n.repo != nil && u.c.ResolvedAt != nil && now.After(u.c.ResolvedAt.Add(resolvedChallengeRetention))
		if evict {
			u.gone = true
		}
		id := u.c.ID
		u.mu.Unlock()

		if evict {
			n.mu.Lock()
			delete(n.units, id)
			n.mu.Unlock()
		}
	}
	return expired
}

package service

import (
	"context"
	"fmt"
	"time"

	"github.com/AdamBeresnev/quadras-match/internal/match"
	"github.com/AdamBeresnev/quadras-match/internal/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Coordinator composes the slot registry, team schedules and the match lifecycle into the
// multi-step flows that create matches. Every flow either completes or undoes each step it
// already took.
type Coordinator struct {
	catalog   Catalog
	slots     *SlotRegistry
	teams     *TeamSchedules
	lifecycle *MatchLifecycle
}

func NewCoordinator(cat Catalog, slots *SlotRegistry, teams *TeamSchedules, lifecycle *MatchLifecycle) *Coordinator {
	return &Coordinator{
		catalog:   cat,
		slots:     slots,
		teams:     teams,
		lifecycle: lifecycle,
	}
}

// BookSlot books a field slot for teamID and publishes it as an open match.
func (c *Coordinator) BookSlot(ctx context.Context, fieldID string, slotStart time.Time, teamID string, isRanked bool) (match.Match, error) {
	if teamID == "" {
		return match.Match{}, match.Invalidf("team_id is required")
	}
	field, err := c.catalog.Field(fieldID)
	if err != nil {
		return match.Match{}, err
	}

	h, err := c.slots.Reserve(ctx, fieldID, slotStart)
	if err != nil {
		return match.Match{}, err
	}

	w := match.Window{From: h.Start, Until: h.End}
	id := uuid.NewString()
	if err := c.teams.Claim(teamID, id, w); err != nil {
		c.slots.Release(h)
		return match.Match{}, err
	}

	m, err := c.lifecycle.Create(ctx, match.Match{
		ID:          id,
		VenueID:     field.VenueID,
		FieldID:     utils.Ptr(fieldID),
		TeamAID:     teamID,
		ScheduledAt: h.Start,
		EndsAt:      h.End,
		IsRanked:    isRanked,
		State:       match.AwaitingOpponent,
		Origin:      match.OriginBooking,
	})
	if err != nil {
		c.teams.Release(teamID, id)
		c.slots.Release(h)
		return match.Match{}, err
	}

	if err := c.slots.ConfirmBooking(h, m.ID); err != nil {
		c.lifecycle.Drop(ctx, m.ID)
		c.teams.Release(teamID, id)
		return match.Match{}, err
	}

	log.Info().
		Str("match_id", m.ID).
		Str("field_id", fieldID).
		Str("team_id", teamID).
		Time("scheduled_at", m.ScheduledAt).
		Msg("slot booked")
	return m, nil
}

// ListOpenMatches returns the matches of a venue still waiting for an opponent.
func (c *Coordinator) ListOpenMatches(venueID string) ([]match.Match, error) {
	if _, err := c.catalog.Venue(venueID); err != nil {
		return nil, err
	}
	return c.lifecycle.ListOpen(venueID), nil
}

// CreateFromPairing schedules a field-less match for a lobby pair.
func (c *Coordinator) CreateFromPairing(ctx context.Context, venueID, teamA, teamB string, w match.Window) (match.Match, error) {
	if teamA == teamB {
		return match.Match{}, match.ErrSameTeam
	}
	if _, err := c.catalog.Venue(venueID); err != nil {
		return match.Match{}, err
	}

	id := uuid.NewString()
	teams := []string{teamA, teamB}
	if err := c.teams.ClaimAll(teams, id, w); err != nil {
		return match.Match{}, err
	}

	m, err := c.lifecycle.Create(ctx, match.Match{
		ID:          id,
		VenueID:     venueID,
		TeamAID:     teamA,
		TeamBID:     utils.Ptr(teamB),
		ScheduledAt: w.From,
		EndsAt:      w.Until,
		IsRanked:    true,
		State:       match.Scheduled,
		Origin:      match.OriginLobby,
	})
	if err != nil {
		c.releaseTeams(teams, id)
		return match.Match{}, err
	}
	c.lifecycle.Announce(m)
	return m, nil
}

// CreateFromChallenge schedules the match agreed in an accepted challenge. When the
// challenge names a field its slot is booked first. The match is announced by the caller
// through Announce once the challenge itself is saved.
func (c *Coordinator) CreateFromChallenge(ctx context.Context, ch match.Challenge) (match.Match, error) {
	venue, err := c.catalog.Venue(ch.VenueID)
	if err != nil {
		return match.Match{}, err
	}

	w := match.Window{From: ch.ProposedDatetime, Until: ch.ProposedDatetime.Add(venue.SlotDuration)}
	var hold *match.SlotHandle
	if ch.FieldID != nil {
		h, err := c.slots.Reserve(ctx, *ch.FieldID, ch.ProposedDatetime)
		if err != nil {
			return match.Match{}, err
		}
		hold = &h
		w = match.Window{From: h.Start, Until: h.End}
	}
	undoHold := func() {
		if hold != nil {
			c.slots.Release(*hold)
		}
	}

	id := uuid.NewString()
	teams := []string{ch.ChallengerTeamID, ch.ChallengedTeamID}
	if err := c.teams.ClaimAll(teams, id, w); err != nil {
		undoHold()
		return match.Match{}, err
	}

	m, err := c.lifecycle.Create(ctx, match.Match{
		ID:          id,
		VenueID:     ch.VenueID,
		FieldID:     ch.FieldID,
		TeamAID:     ch.ChallengerTeamID,
		TeamBID:     utils.Ptr(ch.ChallengedTeamID),
		ScheduledAt: w.From,
		EndsAt:      w.Until,
		IsRanked:    ch.IsRanked,
		State:       match.Scheduled,
		Origin:      match.OriginChallenge,
		ChallengeID: utils.Ptr(ch.ID),
	})
	if err != nil {
		c.releaseTeams(teams, id)
		undoHold()
		return match.Match{}, err
	}

	if hold != nil {
		if err := c.slots.ConfirmBooking(*hold, m.ID); err != nil {
			c.lifecycle.Drop(ctx, m.ID)
			c.releaseTeams(teams, id)
			return match.Match{}, err
		}
	}
	return m, nil
}

// Discard undoes a match created by one of the flows above when a later step outside the
// coordinator failed.
func (c *Coordinator) Discard(ctx context.Context, m match.Match) {
	c.lifecycle.Drop(ctx, m.ID)
	if m.FieldID != nil {
		c.slots.ReleaseBooking(*m.FieldID, m.ScheduledAt, m.ID)
	}
	c.releaseTeams(m.Teams(), m.ID)
}

// Announce publishes the scheduled event of a match returned by CreateFromChallenge.
func (c *Coordinator) Announce(m match.Match) {
	c.lifecycle.Announce(m)
}

// GetMatch returns a match by id.
func (c *Coordinator) GetMatch(ctx context.Context, id string) (match.Match, error) {
	return c.lifecycle.Get(ctx, id)
}

func (c *Coordinator) releaseTeams(teams []string, matchID string) {
	for _, t := range teams {
		c.teams.Release(t, matchID)
	}
}

// Restore reloads active matches and rebinds their slots and team windows. Conflicts are
// logged and the match is still loaded.
func (c *Coordinator) Restore(ctx context.Context, repo MatchRepository) (int, error) {
	matches, err := repo.GetActiveMatches(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load active matches: %w", err)
	}

	for _, m := range matches {
		c.lifecycle.Load(m)
		w := match.Window{From: m.ScheduledAt, Until: m.EndsAt}
		if m.FieldID != nil {
			if err := c.slots.Bind(*m.FieldID, w, m.ID); err != nil {
				log.Warn().Err(err).Str("match_id", m.ID).Msg("failed to rebind slot")
			}
		}
		for _, team := range m.Teams() {
			if err := c.teams.Claim(team, m.ID, w); err != nil {
				log.Warn().Err(err).Str("match_id", m.ID).Str("team_id", team).Msg("failed to rebind team window")
			}
		}
	}

	log.Info().Int("matches", len(matches)).Msg("restored active matches")
	return len(matches), nil
}

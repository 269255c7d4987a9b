package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/AdamBeresnev/quadras-match/internal/events"
	"github.com/AdamBeresnev/quadras-match/internal/match"
	"github.com/AdamBeresnev/quadras-match/internal/utils"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	defaultOpenMatchTTL = 48 * time.Hour
	defaultReportGrace  = 72 * time.Hour
	// Terminal matches stay in memory at least this long past the report window.
	terminalRetention = 24 * time.Hour
)

// SlotReleaser gives a booked slot back to the free pool.
type SlotReleaser interface {
	ReleaseBooking(fieldID string, start time.Time, matchID string)
}

type matchUnit struct {
	mu   sync.Mutex
	gone bool
	m    match.Match
}

// MatchLifecycle owns every match and drives its state machine. Each match is its own lock
// unit; the index lock is only held to find units.
type MatchLifecycle struct {
	clock       clockwork.Clock
	teams       *TeamSchedules
	slots       SlotReleaser
	repo        MatchRepository
	emitter     Emitter
	openTTL     time.Duration
	reportGrace time.Duration

	mu    sync.RWMutex
	units map[string]*matchUnit
}

type LifecycleOption func(*MatchLifecycle)

func WithMatchRepository(r MatchRepository) LifecycleOption {
	return func(l *MatchLifecycle) { l.repo = r }
}

func WithEmitter(e Emitter) LifecycleOption {
	return func(l *MatchLifecycle) {
		if e != nil {
			l.emitter = e
		}
	}
}

// WithOpenMatchTTL bounds how long a match may wait for an opponent.
func WithOpenMatchTTL(d time.Duration) LifecycleOption {
	return func(l *MatchLifecycle) {
		if d > 0 {
			l.openTTL = d
		}
	}
}

// WithReportGrace bounds how long after kickoff scores may be reported or disputed.
func WithReportGrace(d time.Duration) LifecycleOption {
	return func(l *MatchLifecycle) {
		if d > 0 {
			l.reportGrace = d
		}
	}
}

func NewMatchLifecycle(clk clockwork.Clock, teams *TeamSchedules, slots SlotReleaser, opts ...LifecycleOption) *MatchLifecycle {
	l := &MatchLifecycle{
		clock:       clk,
		teams:       teams,
		slots:       slots,
		emitter:     nopEmitter{},
		openTTL:     defaultOpenMatchTTL,
		reportGrace: defaultReportGrace,
		units:       make(map[string]*matchUnit),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Create registers a new match. Slot and team claims are the caller's business, and so is
// calling Announce once the surrounding flow has committed.
func (l *MatchLifecycle) Create(ctx context.Context, m match.Match) (match.Match, error) {
	if err := ctx.Err(); err != nil {
		return match.Match{}, err
	}
	if m.TeamBID != nil && *m.TeamBID == m.TeamAID {
		return match.Match{}, match.ErrSameTeam
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := l.clock.Now()
	m.CreatedAt = now
	m.UpdatedAt = now

	if l.repo != nil {
		if err := l.repo.SaveMatch(ctx, &m); err != nil {
			return match.Match{}, fmt.Errorf("failed to persist match: %w", err)
		}
	}

	l.mu.Lock()
	l.units[m.ID] = &matchUnit{m: m.Clone()}
	l.mu.Unlock()

	log.Info().
		Str("match_id", m.ID).
		Str("venue_id", m.VenueID).
		Str("state", string(m.State)).
		Str("origin", string(m.Origin)).
		Time("scheduled_at", m.ScheduledAt).
		Msg("match created")
	return m, nil
}

// Announce publishes the scheduled event of a match created directly in SCHEDULED.
func (l *MatchLifecycle) Announce(m match.Match) {
	if m.State != match.Scheduled {
		return
	}
	l.emitter.Emit(events.NewMatchEvent(events.MatchScheduled, &m, l.clock.Now()))
}

// Drop removes a match that was created as part of a step that later failed.
func (l *MatchLifecycle) Drop(ctx context.Context, id string) {
	l.mu.Lock()
	u, ok := l.units[id]
	delete(l.units, id)
	l.mu.Unlock()
	if ok {
		u.mu.Lock()
		u.gone = true
		u.mu.Unlock()
	}
	if l.repo != nil {
		if err := l.repo.DeleteMatch(ctx, id); err != nil {
			log.Error().Err(err).Str("match_id", id).Msg("failed to delete rolled back match")
		}
	}
}

// Load puts a persisted match back under management without writing it.
func (l *MatchLifecycle) Load(m match.Match) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.units[m.ID] = &matchUnit{m: m.Clone()}
}

func (l *MatchLifecycle) unit(id string) *matchUnit {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.units[id]
}

// step mutates a working copy of the match and reports whether anything changed.
type step func(m *match.Match, now time.Time) (bool, error)

// mutate runs fn under the match lock. Time-driven transitions are applied first. The
// working copy only replaces the stored match after it has been persisted.
func (l *MatchLifecycle) mutate(ctx context.Context, id string, fn step) (match.Match, error) {
	u := l.unit(id)
	if u == nil {
		return l.mutateArchived(ctx, id, fn)
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.gone {
		return l.mutateArchived(ctx, id, fn)
	}
	if err := ctx.Err(); err != nil {
		return match.Match{}, err
	}

	now := l.clock.Now()
	cur := u.m.Clone()
	if l.advance(&cur, now) {
		if err := l.commit(ctx, u, cur, now); err != nil {
			return match.Match{}, err
		}
	}

	next := u.m.Clone()
	changed, err := fn(&next, now)
	if err != nil {
		return u.m.Clone(), err
	}
	if changed {
		if err := l.commit(ctx, u, next, now); err != nil {
			return match.Match{}, err
		}
	}
	return u.m.Clone(), nil
}

// mutateArchived serves operations on matches evicted from memory. Those are terminal, so
// only no-op outcomes are allowed.
func (l *MatchLifecycle) mutateArchived(ctx context.Context, id string, fn step) (match.Match, error) {
	if l.repo == nil {
		return match.Match{}, match.ErrMatchNotFound
	}
	m, err := l.repo.GetMatch(ctx, id)
	if err != nil {
		return match.Match{}, err
	}
	changed, err := fn(m, l.clock.Now())
	if err != nil {
		return *m, err
	}
	if changed {
		return *m, match.ErrInvalidState
	}
	return *m, nil
}

func (l *MatchLifecycle) commit(ctx context.Context, u *matchUnit, next match.Match, now time.Time) error {
	next.UpdatedAt = now
	if l.repo != nil {
		if err := l.repo.SaveMatch(ctx, &next); err != nil {
			return fmt.Errorf("failed to persist match %s: %w", next.ID, err)
		}
	}
	prev := u.m
	u.m = next
	l.afterTransition(&prev, &u.m, now)
	return nil
}

// afterTransition applies the side effects of entering a new state. Called with the match
// locked; only leaf locks are taken from here.
func (l *MatchLifecycle) afterTransition(prev, next *match.Match, now time.Time) {
	if prev.State == next.State {
		return
	}

	log.Info().
		Str("match_id", next.ID).
		Str("from", string(prev.State)).
		Str("to", string(next.State)).
		Msg("match transition")

	snapshot := next.Clone()
	switch next.State {
	case match.Scheduled:
		l.emitter.Emit(events.NewMatchEvent(events.MatchScheduled, &snapshot, now))
	case match.Cancelled:
		if next.FieldID != nil {
			l.slots.ReleaseBooking(*next.FieldID, next.ScheduledAt, next.ID)
		}
		for _, team := range next.Teams() {
			l.teams.Release(team, next.ID)
		}
		l.emitter.Emit(events.NewMatchEvent(events.MatchCancelled, &snapshot, now))
	case match.Finished:
		for _, team := range next.Teams() {
			l.teams.Release(team, next.ID)
		}
		l.emitter.Emit(events.NewMatchEvent(events.MatchFinished, &snapshot, now))
	case match.Disputed:
		l.emitter.Emit(events.NewMatchEvent(events.MatchDisputed, &snapshot, now))
	}
}

// advance applies the transitions driven purely by time.
func (l *MatchLifecycle) advance(m *match.Match, now time.Time) bool {
	switch m.State {
	case match.AwaitingOpponent:
		if !now.Before(m.ScheduledAt) || !now.Before(m.CreatedAt.Add(l.openTTL)) {
			m.State = match.Cancelled
			return true
		}
	case match.Scheduled:
		if !now.Before(m.ScheduledAt) {
			m.State = match.AwaitingScore
			return true
		}
	}
	return false
}

func (l *MatchLifecycle) reportDeadline(m *match.Match) time.Time {
	return m.ScheduledAt.Add(l.reportGrace)
}

func finalize(m *match.Match, home, away int, res match.Resolution, now time.Time) {
	// CONFIRMED is transient: the result is final as soon as both sides agree.
	m.State = match.Confirmed
	m.ScoreA = utils.Ptr(home)
	m.ScoreB = utils.Ptr(away)
	m.Resolution = res
	m.FinishedAt = utils.Ptr(now)
	m.ResultRevision++
	m.State = match.Finished
}

func addConfirmation(m *match.Match, side match.Side) {
	if !m.HasConfirmed(side) {
		m.Confirmations = append(m.Confirmations, side)
	}
}

// Get returns the match with time-driven transitions applied.
func (l *MatchLifecycle) Get(ctx context.Context, id string) (match.Match, error) {
	return l.mutate(ctx, id, func(*match.Match, time.Time) (bool, error) { return false, nil })
}

// JoinOpenMatch binds teamID as the opponent of an open match.
func (l *MatchLifecycle) JoinOpenMatch(ctx context.Context, id, teamID string) (match.Match, error) {
	if teamID == "" {
		return match.Match{}, match.Invalidf("team_id is required")
	}

	claimed := false
	m, err := l.mutate(ctx, id, func(m *match.Match, now time.Time) (bool, error) {
		if m.State != match.AwaitingOpponent {
			return false, match.ErrMatchNotOpen
		}
		if teamID == m.TeamAID {
			return false, match.ErrSameTeam
		}
		if err := l.teams.Claim(teamID, m.ID, match.Window{From: m.ScheduledAt, Until: m.EndsAt}); err != nil {
			return false, err
		}
		claimed = true
		m.TeamBID = utils.Ptr(teamID)
		m.State = match.Scheduled
		return true, nil
	})
	if err != nil && claimed && !errors.Is(err, match.ErrInvalidTransition) {
		l.teams.Release(teamID, id)
	}
	return m, err
}

func (l *MatchLifecycle) checkSide(m *match.Match, teamID string, side match.Side) error {
	own, ok := m.SideOf(teamID)
	if !ok {
		return match.ErrNotParticipant
	}
	if own != side {
		return match.ErrWrongSide
	}
	return nil
}

// ReportScore records one side's claim of the final score and reconciles it against the
// other side's report.
func (l *MatchLifecycle) ReportScore(ctx context.Context, id, teamID string, side match.Side, home, away int) (match.Match, error) {
	if home < 0 || away < 0 {
		return match.Match{}, match.Invalidf("scores must not be negative")
	}

	return l.mutate(ctx, id, func(m *match.Match, now time.Time) (bool, error) {
		if err := l.checkSide(m, teamID, side); err != nil {
			return false, err
		}
		if m.State != match.AwaitingScore && m.State != match.ScoreReported {
			return false, match.Withf(match.ErrInvalidState, "cannot report a score while match is %s", m.State)
		}
		if !now.Before(l.reportDeadline(m)) {
			return false, match.ErrReportWindowClosed
		}

		report := &match.ScoreReport{HomeScore: home, AwayScore: away, ReportedAt: now}
		m.SetReport(side, report)
		addConfirmation(m, side)

		other := m.Report(side.Other())
		switch {
		case other == nil:
			m.State = match.ScoreReported
		case report.Equal(other):
			finalize(m, home, away, match.ResolutionAgreed, now)
		default:
			m.State = match.Disputed
		}
		return true, nil
	})
}

// Confirm lets a side accept the other side's pending report without resubmitting it.
func (l *MatchLifecycle) Confirm(ctx context.Context, id, teamID string, side match.Side) (match.Match, error) {
	return l.mutate(ctx, id, func(m *match.Match, now time.Time) (bool, error) {
		if err := l.checkSide(m, teamID, side); err != nil {
			return false, err
		}

		switch m.State {
		case match.Finished:
			return false, nil
		case match.ScoreReported:
			pending := m.Report(side.Other())
			if pending == nil {
				// The reporting side has already confirmed its own report.
				return false, nil
			}
			if !now.Before(l.reportDeadline(m)) {
				return false, match.ErrReportWindowClosed
			}
			m.SetReport(side, &match.ScoreReport{HomeScore: pending.HomeScore, AwayScore: pending.AwayScore, ReportedAt: now})
			addConfirmation(m, side)
			finalize(m, pending.HomeScore, pending.AwayScore, match.ResolutionAgreed, now)
			return true, nil
		default:
			return false, match.Withf(match.ErrInvalidState, "nothing to confirm while match is %s", m.State)
		}
	})
}

// Dispute escalates a match for external arbitration, even when both reports agreed.
func (l *MatchLifecycle) Dispute(ctx context.Context, id, teamID string) (match.Match, error) {
	return l.mutate(ctx, id, func(m *match.Match, now time.Time) (bool, error) {
		if _, ok := m.SideOf(teamID); !ok {
			return false, match.ErrNotParticipant
		}

		switch m.State {
		case match.Disputed:
			return false, nil
		case match.AwaitingScore, match.ScoreReported:
		case match.Finished:
			if m.Resolution == match.ResolutionArbitrated {
				return false, match.Withf(match.ErrInvalidState, "arbitrated results are final")
			}
			if !now.Before(l.reportDeadline(m)) {
				return false, match.ErrReportWindowClosed
			}
			m.ScoreA = nil
			m.ScoreB = nil
			m.Resolution = ""
			m.FinishedAt = nil
		default:
			return false, match.Withf(match.ErrInvalidState, "cannot dispute a match that is %s", m.State)
		}
		m.State = match.Disputed
		return true, nil
	})
}

// Resolve is the arbitration input: it settles a disputed match with an authoritative score.
func (l *MatchLifecycle) Resolve(ctx context.Context, id string, home, away int) (match.Match, error) {
	if home < 0 || away < 0 {
		return match.Match{}, match.Invalidf("scores must not be negative")
	}

	return l.mutate(ctx, id, func(m *match.Match, now time.Time) (bool, error) {
		if m.State == match.Finished && m.Resolution == match.ResolutionArbitrated &&
			utils.OrZero(m.ScoreA) == home && utils.OrZero(m.ScoreB) == away {
			return false, nil
		}
		if m.State != match.Disputed {
			return false, match.Withf(match.ErrInvalidState, "only disputed matches can be resolved, match is %s", m.State)
		}
		finalize(m, home, away, match.ResolutionArbitrated, now)
		return true, nil
	})
}

// Cancel withdraws a match before kickoff. An open match is cancelled by its only team; a
// scheduled match needs both teams to ask.
func (l *MatchLifecycle) Cancel(ctx context.Context, id, teamID string) (match.Match, error) {
	return l.mutate(ctx, id, func(m *match.Match, now time.Time) (bool, error) {
		if _, ok := m.SideOf(teamID); !ok {
			return false, match.ErrNotParticipant
		}
		if m.State == match.Cancelled {
			return false, nil
		}
		if m.State != match.AwaitingOpponent && m.State != match.Scheduled {
			if !now.Before(m.ScheduledAt) {
				return false, match.ErrCancelWindowClosed
			}
			return false, match.Withf(match.ErrInvalidState, "cannot cancel a match that is %s", m.State)
		}

		if m.State == match.Scheduled {
			if m.CancelRequestedBy == nil {
				m.CancelRequestedBy = utils.Ptr(teamID)
				return true, nil
			}
			if *m.CancelRequestedBy == teamID {
				return false, nil
			}
		}
		m.State = match.Cancelled
		return true, nil
	})
}

// snapshot returns every live unit.
func (l *MatchLifecycle) snapshot() []*matchUnit {
	l.mu.RLock()
	defer l.mu.RUnlock()
	units := make([]*matchUnit, 0, len(l.units))
	for _, u := range l.units {
		units = append(units, u)
	}
	return units
}

// view copies the match under its lock with time-driven transitions applied to the copy.
func (l *MatchLifecycle) view(u *matchUnit, now time.Time) (match.Match, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.gone {
		return match.Match{}, false
	}
	m := u.m.Clone()
	l.advance(&m, now)
	return m, true
}

// ListOpen is the derived "open matches" view of a venue, soonest first.
func (l *MatchLifecycle) ListOpen(venueID string) []match.Match {
	now := l.clock.Now()
	open := []match.Match{}
	for _, u := range l.snapshot() {
		m, ok := l.view(u, now)
		if ok && m.VenueID == venueID && m.State == match.AwaitingOpponent {
			open = append(open, m)
		}
	}
	sort.Slice(open, func(i, j int) bool {
		if open[i].ScheduledAt.Equal(open[j].ScheduledAt) {
			return open[i].CreatedAt.Before(open[j].CreatedAt)
		}
		return open[i].ScheduledAt.Before(open[j].ScheduledAt)
	})
	return open
}

// ListForTeam returns the team's matches, optionally filtered by state, soonest first.
// Archived matches are read from the repository.
func (l *MatchLifecycle) ListForTeam(ctx context.Context, teamID string, state match.State) ([]match.Match, error) {
	now := l.clock.Now()
	seen := make(map[string]bool)
	out := []match.Match{}
	for _, u := range l.snapshot() {
		m, ok := l.view(u, now)
		if !ok {
			continue
		}
		if _, party := m.SideOf(teamID); !party {
			continue
		}
		seen[m.ID] = true
		if state == "" || m.State == state {
			out = append(out, m)
		}
	}

	if l.repo != nil {
		archived, err := l.repo.GetMatchesForTeam(ctx, teamID)
		if err != nil {
			return nil, fmt.Errorf("failed to get team matches: %w", err)
		}
		for _, m := range archived {
			if seen[m.ID] || (state != "" && m.State != state) {
				continue
			}
			out = append(out, m)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

// Sweep applies time-driven transitions to every match and evicts long-finished ones.
func (l *MatchLifecycle) Sweep(ctx context.Context, now time.Time) int {
	transitions := 0
	for _, u := range l.snapshot() {
		u.mu.Lock()
		if u.gone {
			u.mu.Unlock()
			continue
		}
		cur := u.m.Clone()
		if l.advance(&cur, now) {
			if err := l.commit(ctx, u, cur, now); err != nil {
				log.Error().Err(err).Str("match_id", cur.ID).Msg("failed to apply timed transition")
			} else {
				transitions++
			}
		}
		evict := l.repo != nil && u.m.State.Terminal() &&
			now.After(l.reportDeadline(&u.m).Add(terminalRetention)) &&
			now.After(u.m.UpdatedAt.Add(terminalRetention))
		if evict {
			u.gone = true
		}
		id := u.m.ID
		u.mu.Unlock()

		if evict {
			l.mu.Lock()
			delete(l.units, id)
			l.mu.Unlock()
		}
	}
	return transitions
}

package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AdamBeresnev/quadras-match/internal/match"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const defaultQueueTTL = 24 * time.Hour

// Pairer turns two compatible queue entries into a scheduled match.
type Pairer interface {
	CreateFromPairing(ctx context.Context, venueID, teamA, teamB string, w match.Window) (match.Match, error)
}

type venueQueue struct {
	mu      sync.Mutex
	entries []match.QueueEntry // oldest first
}

func (q *venueQueue) indexOf(teamID string) int {
	for i, e := range q.entries {
		if e.TeamID == teamID {
			return i
		}
	}
	return -1
}

func (q *venueQueue) remove(i int) {
	q.entries = append(q.entries[:i], q.entries[i+1:]...)
}

// LobbyQueue holds teams looking for an opponent at a venue and pairs them. Each venue queue
// is locked on its own.
type LobbyQueue struct {
	catalog  Catalog
	clock    clockwork.Clock
	pairer   Pairer
	repo     QueueRepository
	queueTTL time.Duration
	deferred bool

	mu     sync.Mutex
	queues map[string]*venueQueue
}

type LobbyOption func(*LobbyQueue)

func WithQueueRepository(r QueueRepository) LobbyOption {
	return func(q *LobbyQueue) { q.repo = r }
}

// WithQueueTTL bounds how long an entry may wait in a queue.
func WithQueueTTL(d time.Duration) LobbyOption {
	return func(q *LobbyQueue) {
		if d > 0 {
			q.queueTTL = d
		}
	}
}

// WithDeferredPairing leaves pairing to TryPair and Sweep instead of running it on Join.
func WithDeferredPairing() LobbyOption {
	return func(q *LobbyQueue) { q.deferred = true }
}

func NewLobbyQueue(cat Catalog, clk clockwork.Clock, pairer Pairer, opts ...LobbyOption) *LobbyQueue {
	q := &LobbyQueue{
		catalog:  cat,
		clock:    clk,
		pairer:   pairer,
		queueTTL: defaultQueueTTL,
		queues:   make(map[string]*venueQueue),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (l *LobbyQueue) queue(venueID string) *venueQueue {
	l.mu.Lock()
	defer l.mu.Unlock()
	q, ok := l.queues[venueID]
	if !ok {
		q = &venueQueue{}
		l.queues[venueID] = q
	}
	return q
}

func (l *LobbyQueue) venueIDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]string, 0, len(l.queues))
	for id := range l.queues {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Join adds the team to the venue queue, or replaces the window of its existing entry, then
// tries to pair the queue. The returned match is set when the join produced a pairing for
// this team.
func (l *LobbyQueue) Join(ctx context.Context, venueID, teamID string, w match.Window) (match.QueueEntry, *match.Match, error) {
	if err := ctx.Err(); err != nil {
		return match.QueueEntry{}, nil, err
	}
	if teamID == "" {
		return match.QueueEntry{}, nil, match.Invalidf("team_id is required")
	}
	venue, err := l.catalog.Venue(venueID)
	if err != nil {
		return match.QueueEntry{}, nil, err
	}

	now := l.clock.Now()
	switch {
	case !w.Until.After(w.From):
		return match.QueueEntry{}, nil, match.Withf(match.ErrQueueWindowInvalid, "available_until must be after available_from")
	case !w.Until.After(now):
		return match.QueueEntry{}, nil, match.Withf(match.ErrQueueWindowInvalid, "availability window has already ended")
	case !venue.OverlapsOpenHours(w):
		return match.QueueEntry{}, nil, match.Withf(match.ErrQueueWindowInvalid, "availability window does not overlap the opening hours of venue %s", venueID)
	}

	q := l.queue(venueID)
	q.mu.Lock()
	defer q.mu.Unlock()

	entry := match.QueueEntry{
		TeamID:         teamID,
		VenueID:        venueID,
		AvailableFrom:  w.From,
		AvailableUntil: w.Until,
		CreatedAt:      now,
	}
	i := q.indexOf(teamID)
	if i >= 0 {
		entry.CreatedAt = q.entries[i].CreatedAt
	}

	if l.repo != nil {
		if err := l.repo.SaveQueueEntry(ctx, &entry); err != nil {
			return match.QueueEntry{}, nil, fmt.Errorf("failed to persist queue entry: %w", err)
		}
	}
	if i >= 0 {
		q.entries[i] = entry
	} else {
		q.entries = append(q.entries, entry)
	}

	log.Info().
		Str("venue_id", venueID).
		Str("team_id", teamID).
		Time("available_from", w.From).
		Time("available_until", w.Until).
		Msg("team joined lobby")

	if l.deferred {
		return entry, nil, nil
	}
	for _, m := range l.pair(ctx, venueID, venue, q, now) {
		if _, ok := m.SideOf(teamID); ok {
			return entry, &m, nil
		}
	}
	return entry, nil, nil
}

// Leave removes the team from the venue queue.
func (l *LobbyQueue) Leave(ctx context.Context, venueID, teamID string) error {
	q := l.queue(venueID)
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexOf(teamID)
	if i < 0 {
		return match.ErrQueueEntryNotFound
	}
	if l.repo != nil {
		if err := l.repo.DeleteQueueEntry(ctx, venueID, teamID); err != nil {
			return fmt.Errorf("failed to delete queue entry: %w", err)
		}
	}
	q.remove(i)
	log.Info().Str("venue_id", venueID).Str("team_id", teamID).Msg("team left lobby")
	return nil
}

// List returns the venue queue, oldest entry first.
func (l *LobbyQueue) List(venueID string) []match.QueueEntry {
	q := l.queue(venueID)
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]match.QueueEntry{}, q.entries...)
}

// Load puts a persisted entry back in its queue without writing it.
func (l *LobbyQueue) Load(e match.QueueEntry) {
	q := l.queue(e.VenueID)
	q.mu.Lock()
	defer q.mu.Unlock()
	if i := q.indexOf(e.TeamID); i >= 0 {
		q.entries[i] = e
	} else {
		q.entries = append(q.entries, e)
	}
	sort.SliceStable(q.entries, func(i, j int) bool { return q.entries[i].CreatedAt.Before(q.entries[j].CreatedAt) })
}

// Restore reloads persisted queue entries.
func (l *LobbyQueue) Restore(ctx context.Context) (int, error) {
	if l.repo == nil {
		return 0, nil
	}
	entries, err := l.repo.GetQueueEntries(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load queue entries: %w", err)
	}
	for _, e := range entries {
		l.Load(e)
	}
	log.Info().Int("entries", len(entries)).Msg("restored lobby queues")
	return len(entries), nil
}

// TryPair runs one pairing pass over the venue queue.
func (l *LobbyQueue) TryPair(ctx context.Context, venueID string) ([]match.Match, error) {
	venue, err := l.catalog.Venue(venueID)
	if err != nil {
		return nil, err
	}
	q := l.queue(venueID)
	q.mu.Lock()
	defer q.mu.Unlock()
	return l.pair(ctx, venueID, venue, q, l.clock.Now()), nil
}

type candidate struct {
	index   int
	overlap match.Window
}

// pair repeatedly takes the oldest entry that has a compatible partner and hands the pair to
// the Pairer. The partner is the later entry whose usable overlap starts earliest; older
// entries win ties. Called with q locked.
func (l *LobbyQueue) pair(ctx context.Context, venueID string, venue *match.Venue, q *venueQueue, now time.Time) []match.Match {
	var created []match.Match
	for {
		m, ok := l.pairOnce(ctx, venueID, venue, q, now)
		if !ok {
			return created
		}
		created = append(created, m)
	}
}

func (l *LobbyQueue) pairOnce(ctx context.Context, venueID string, venue *match.Venue, q *venueQueue, now time.Time) (match.Match, bool) {
	for i := range q.entries {
		a := q.entries[i]
		for _, c := range l.candidates(q, i, venue, now) {
			b := q.entries[c.index]
			w := match.Window{From: c.overlap.From, Until: c.overlap.From.Add(venue.SlotDuration)}
			m, err := l.pairer.CreateFromPairing(ctx, venueID, a.TeamID, b.TeamID, w)
			if err != nil {
				log.Warn().Err(err).
					Str("venue_id", venueID).
					Str("team_a_id", a.TeamID).
					Str("team_b_id", b.TeamID).
					Msg("skipping lobby pair")
				continue
			}

			// Remove the later index first so the earlier one stays valid.
			q.remove(c.index)
			q.remove(i)
			l.forget(ctx, venueID, a.TeamID, b.TeamID)

			log.Info().
				Str("venue_id", venueID).
				Str("match_id", m.ID).
				Str("team_a_id", a.TeamID).
				Str("team_b_id", b.TeamID).
				Time("scheduled_at", m.ScheduledAt).
				Msg("lobby pair created")
			return m, true
		}
	}
	return match.Match{}, false
}

func (l *LobbyQueue) candidates(q *venueQueue, i int, venue *match.Venue, now time.Time) []candidate {
	a := q.entries[i]
	slot := venue.SlotDuration
	var out []candidate
	for j := i + 1; j < len(q.entries); j++ {
		b := q.entries[j]
		if b.TeamID == a.TeamID {
			continue
		}
		ov, ok := a.Window().Overlap(b.Window())
		if !ok {
			continue
		}
		if ov.From.Before(now) {
			ov.From = now
		}
		ov, ok = openOverlap(venue, ov, slot)
		if !ok {
			continue
		}
		out = append(out, candidate{index: j, overlap: ov})
	}
	sort.SliceStable(out, func(x, y int) bool { return out[x].overlap.From.Before(out[y].overlap.From) })
	return out
}

// openOverlap returns the earliest part of w that lies inside one opening window of the
// venue and is long enough for a slot. The previous local day is checked for venues open
// past midnight.
func openOverlap(venue *match.Venue, w match.Window, slot time.Duration) (match.Window, bool) {
	if w.Duration() < slot {
		return match.Window{}, false
	}
	for day := w.From.Add(-24 * time.Hour); ; day = day.Add(24 * time.Hour) {
		open := venue.OpenWindow(day)
		if !open.From.Before(w.Until) {
			return match.Window{}, false
		}
		if ov, ok := w.Overlap(open); ok && ov.Duration() >= slot {
			return ov, true
		}
	}
}

func (l *LobbyQueue) forget(ctx context.Context, venueID string, teams ...string) {
	if l.repo == nil {
		return
	}
	for _, team := range teams {
		if err := l.repo.DeleteQueueEntry(ctx, venueID, team); err != nil {
			log.Error().Err(err).Str("venue_id", venueID).Str("team_id", team).Msg("failed to delete paired queue entry")
		}
	}
}

// Sweep drops entries whose window ended or that waited longer than the queue TTL, then
// pairs every queue. Returns the number of matches created.
func (l *LobbyQueue) Sweep(ctx context.Context, now time.Time) int {
	paired := 0
	for _, venueID := range l.venueIDs() {
		q := l.queue(venueID)
		q.mu.Lock()

		kept := q.entries[:0]
		var stale []string
		for _, e := range q.entries {
			if !now.Before(e.AvailableUntil) || !now.Before(e.CreatedAt.Add(l.queueTTL)) {
				stale = append(stale, e.TeamID)
				continue
			}
			kept = append(kept, e)
		}
		q.entries = kept
		if len(stale) > 0 {
			l.forget(ctx, venueID, stale...)
			log.Debug().Str("venue_id", venueID).Strs("team_ids", stale).Msg("expired lobby entries")
		}

		if venue, err := l.catalog.Venue(venueID); err == nil {
			paired += len(l.pair(ctx, venueID, venue, q, now))
		}
		q.mu.Unlock()
	}
	return paired
}

var clockLayouts = []string{"15:04", "15:04:05"}

// ParseWindow reads an availability window given either as RFC3339 timestamps or as
// HH:MM[:SS] times on the venue-local day of now. A clock-time window ending at or before
// its start ends on the next day.
func ParseWindow(venue *match.Venue, now time.Time, from, until string) (match.Window, error) {
	f, fClock, err := parseInstant(venue, now, from)
	if err != nil {
		return match.Window{}, match.Invalidf("invalid available_from %q", from)
	}
	u, uClock, err := parseInstant(venue, now, until)
	if err != nil {
		return match.Window{}, match.Invalidf("invalid available_until %q", until)
	}
	if fClock && uClock && !u.After(f) {
		u = u.Add(24 * time.Hour)
	}
	return match.Window{From: f, Until: u}, nil
}

func parseInstant(venue *match.Venue, now time.Time, s string) (time.Time, bool, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, false, nil
	}
	local := now.In(venue.Location)
	for _, layout := range clockLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		return time.Date(local.Year(), local.Month(), local.Day(), t.Hour(), t.Minute(), t.Second(), 0, venue.Location), true, nil
	}
	return time.Time{}, false, fmt.Errorf("unrecognised time %q", s)
}

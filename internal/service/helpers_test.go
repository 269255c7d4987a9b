package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AdamBeresnev/quadras-match/internal/catalog"
	"github.com/AdamBeresnev/quadras-match/internal/events"
	"github.com/AdamBeresnev/quadras-match/internal/match"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

// 2026-03-02 is a Monday; every fixture slot lies on that day.
var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

const testCatalog = `
venues:
  - id: v1
    name: Arena Norte
    timezone: UTC
    opens_at: "08:00"
    closes_at: "23:00"
    slot_minutes: 60
    fields:
      - id: f1
        name: Quadra 1
      - id: f2
        name: Quadra 2
  - id: v2
    name: Arena Sul
    timezone: UTC
    opens_at: "08:00"
    closes_at: "23:00"
    fields:
      - id: f3
        name: Quadra 3
teams:
  - id: t1
    name: Tigres
  - id: t2
    name: Leoes
`

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 2, hour, minute, 0, 0, time.UTC)
}

var errStoreDown = errors.New("store unavailable")

// memMatchRepo is an in-memory MatchRepository that can be told to fail writes.
type memMatchRepo struct {
	mu      sync.Mutex
	matches map[string]match.Match
	fail    bool
}

func newMemMatchRepo() *memMatchRepo {
	return &memMatchRepo{matches: make(map[string]match.Match)}
}

func (r *memMatchRepo) setFail(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = fail
}

func (r *memMatchRepo) SaveMatch(ctx context.Context, m *match.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errStoreDown
	}
	r.matches[m.ID] = m.Clone()
	return nil
}

func (r *memMatchRepo) DeleteMatch(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.matches, id)
	return nil
}

func (r *memMatchRepo) GetMatch(ctx context.Context, id string) (*match.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok {
		return nil, match.ErrMatchNotFound
	}
	c := m.Clone()
	return &c, nil
}

func (r *memMatchRepo) GetMatchesForTeam(ctx context.Context, teamID string) ([]match.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []match.Match
	for _, m := range r.matches {
		if _, ok := m.SideOf(teamID); ok {
			out = append(out, m.Clone())
		}
	}
	return out, nil
}

func (r *memMatchRepo) GetActiveMatches(ctx context.Context) ([]match.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []match.Match
	for _, m := range r.matches {
		if !m.State.Terminal() {
			out = append(out, m.Clone())
		}
	}
	return out, nil
}

func (r *memMatchRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.matches)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (e *recordingEmitter) Emit(ev events.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *recordingEmitter) types(matchID string) []events.Type {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []events.Type
	for _, ev := range e.events {
		if ev.MatchID == matchID {
			out = append(out, ev.Type)
		}
	}
	return out
}

func (e *recordingEmitter) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.events)
}

func (e *recordingEmitter) last(matchID string) events.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.events) - 1; i >= 0; i-- {
		if e.events[i].MatchID == matchID {
			return e.events[i]
		}
	}
	return events.Event{}
}

type harness struct {
	clock      *clockwork.FakeClock
	catalog    *catalog.Catalog
	slots      *SlotRegistry
	teams      *TeamSchedules
	repo       *memMatchRepo
	emitter    *recordingEmitter
	lifecycle  *MatchLifecycle
	coord      *Coordinator
	lobby      *LobbyQueue
	challenges *ChallengeNegotiator
}

func newHarness(t *testing.T, lobbyOpts ...LobbyOption) *harness {
	t.Helper()

	cat, err := catalog.Parse([]byte(testCatalog))
	require.NoError(t, err)

	h := &harness{
		clock:   clockwork.NewFakeClockAt(testNow),
		catalog: cat,
		teams:   NewTeamSchedules(),
		repo:    newMemMatchRepo(),
		emitter: &recordingEmitter{},
	}
	h.slots = NewSlotRegistry(cat, h.clock)
	h.lifecycle = NewMatchLifecycle(h.clock, h.teams, h.slots,
		WithMatchRepository(h.repo),
		WithEmitter(h.emitter),
	)
	h.coord = NewCoordinator(cat, h.slots, h.teams, h.lifecycle)
	h.lobby = NewLobbyQueue(cat, h.clock, h.coord, lobbyOpts...)
	h.challenges = NewChallengeNegotiator(cat, h.clock, h.coord)
	return h
}

// book creates an open match for team at the given hour on field f1.
func (h *harness) book(t *testing.T, team string, hour int) match.Match {
	t.Helper()
	m, err := h.coord.BookSlot(context.Background(), "f1", at(hour, 0), team, true)
	require.NoError(t, err)
	return m
}

// scheduled creates a match between t1 (home) and t2 (away) at the given hour.
func (h *harness) scheduled(t *testing.T, hour int) match.Match {
	t.Helper()
	m := h.book(t, "t1", hour)
	m, err := h.lifecycle.JoinOpenMatch(context.Background(), m.ID, "t2")
	require.NoError(t, err)
	return m
}

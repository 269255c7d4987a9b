package service

import (
	"sync"

	"github.com/AdamBeresnev/quadras-match/internal/match"
)

type teamUnit struct {
	mu     sync.Mutex
	claims map[string]match.Window // match id -> play window
}

// TeamSchedules keeps the active play windows of every team so that no team is bound to
// two overlapping matches. Team locks are leaves: nothing else is locked while holding one.
type TeamSchedules struct {
	mu    sync.Mutex
	units map[string]*teamUnit
}

func NewTeamSchedules() *TeamSchedules {
	return &TeamSchedules{units: make(map[string]*teamUnit)}
}

func (s *TeamSchedules) unit(teamID string) *teamUnit {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.units[teamID]
	if !ok {
		u = &teamUnit{claims: make(map[string]match.Window)}
		s.units[teamID] = u
	}
	return u
}

// Claim binds the window to the team for matchID. Re-claiming for the same match is a no-op.
func (s *TeamSchedules) Claim(teamID, matchID string, w match.Window) error {
	u := s.unit(teamID)
	u.mu.Lock()
	defer u.mu.Unlock()

	for id, other := range u.claims {
		if id == matchID {
			continue
		}
		if _, ok := w.Overlap(other); ok {
			return match.Withf(match.ErrTeamBusy, "team %s already has match %s at that time", teamID, id)
		}
	}
	u.claims[matchID] = w
	return nil
}

// ClaimAll claims the window for every team or for none of them.
func (s *TeamSchedules) ClaimAll(teamIDs []string, matchID string, w match.Window) error {
	for i, id := range teamIDs {
		if err := s.Claim(id, matchID, w); err != nil {
			for _, done := range teamIDs[:i] {
				s.Release(done, matchID)
			}
			return err
		}
	}
	return nil
}

func (s *TeamSchedules) Release(teamID, matchID string) {
	u := s.unit(teamID)
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.claims, matchID)
}

// Busy reports whether the team has any claim overlapping w.
func (s *TeamSchedules) Busy(teamID string, w match.Window) bool {
	u := s.unit(teamID)
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, other := range u.claims {
		if _, ok := w.Overlap(other); ok {
			return true
		}
	}
	return false
}

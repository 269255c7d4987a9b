package events

import (
	"time"

	"github.com/AdamBeresnev/quadras-match/internal/match"
	"github.com/google/uuid"
)

type Type string

const (
	MatchScheduled Type = "scheduled"
	MatchFinished  Type = "finished"
	MatchDisputed  Type = "disputed"
	MatchCancelled Type = "cancelled"
)

// Event is the envelope published to the message bus.
type Event struct {
	ID         string       `json:"event_id"`
	Type       Type         `json:"event_type"`
	MatchID    string       `json:"match_id"`
	OccurredAt time.Time    `json:"occurred_at"`
	Payload    MatchPayload `json:"payload"`
}

// MatchPayload carries what the ranking engine needs from a match. Scores are only set on
// finished events.
type MatchPayload struct {
	VenueID     string           `json:"venue_id"`
	FieldID     *string          `json:"field_id,omitempty"`
	TeamAID     string           `json:"team_a_id"`
	TeamBID     *string          `json:"team_b_id,omitempty"`
	ScheduledAt time.Time        `json:"scheduled_at"`
	IsRanked    bool             `json:"is_ranked"`
	State       match.State      `json:"state"`
	ScoreA      *int             `json:"score_a,omitempty"`
	ScoreB      *int             `json:"score_b,omitempty"`
	Resolution  match.Resolution `json:"resolution,omitempty"`
	// Revision and Supersedes are set on finished events. A superseding event
	// replaces the earlier finished event for the same match.
	Revision   int  `json:"revision,omitempty"`
	Supersedes bool `json:"supersedes,omitempty"`
}

func NewMatchEvent(t Type, m *match.Match, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		MatchID:    m.ID,
		OccurredAt: at,
		Payload: MatchPayload{
			VenueID:     m.VenueID,
			FieldID:     m.FieldID,
			TeamAID:     m.TeamAID,
			TeamBID:     m.TeamBID,
			ScheduledAt: m.ScheduledAt,
			IsRanked:    m.IsRanked,
			State:       m.State,
			ScoreA:      m.ScoreA,
			ScoreB:      m.ScoreB,
			Resolution:  m.Resolution,
			Revision:    finishedRevision(t, m),
			Supersedes:  t == MatchFinished && m.ResultRevision > 1,
		},
	}
}

func finishedRevision(t Type, m *match.Match) int {
	if t != MatchFinished {
		return 0
	}
	return m.ResultRevision
}

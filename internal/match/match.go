package match

import (
	"encoding/json"
	"time"

	"github.com/AdamBeresnev/quadras-match/internal/utils"
)

type State string

const (
	AwaitingOpponent State = "AWAITING_OPPONENT"
	Scheduled        State = "SCHEDULED"
	AwaitingScore    State = "AWAITING_SCORE"
	ScoreReported    State = "SCORE_REPORTED"
	Confirmed        State = "CONFIRMED"
	Disputed         State = "DISPUTED"
	Finished         State = "FINISHED"
	Cancelled        State = "CANCELLED"
)

// Terminal reports whether no further transition can leave the state.
func (s State) Terminal() bool {
	return s == Finished || s == Cancelled
}

func (s State) Valid() bool {
	switch s {
	case AwaitingOpponent, Scheduled, AwaitingScore, ScoreReported, Confirmed, Disputed, Finished, Cancelled:
		return true
	}
	return false
}

type Side string

const (
	Home Side = "home"
	Away Side = "away"
)

func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case Home, Away:
		return Side(s), nil
	}
	return "", Invalidf("side must be %q or %q", Home, Away)
}

func (s Side) Other() Side {
	if s == Home {
		return Away
	}
	return Home
}

type Origin string

const (
	OriginBooking   Origin = "booking"
	OriginLobby     Origin = "lobby"
	OriginChallenge Origin = "challenge"
)

type Resolution string

const (
	ResolutionAgreed     Resolution = "agreed"
	ResolutionArbitrated Resolution = "arbitrated"
)

// ScoreReport is one side's claim of the final score, always home/away from team A's view.
type ScoreReport struct {
	HomeScore  int       `json:"home_score"`
	AwayScore  int       `json:"away_score"`
	ReportedAt time.Time `json:"reported_at"`
}

func (r *ScoreReport) Equal(o *ScoreReport) bool {
	return r != nil && o != nil && r.HomeScore == o.HomeScore && r.AwayScore == o.AwayScore
}

type Match struct {
	ID      string  `db:"id" json:"id"`
	VenueID string  `db:"venue_id" json:"venue_id"`
	FieldID *string `db:"field_id" json:"field_id"`

	TeamAID string  `db:"team_a_id" json:"team_a_id"`
	TeamBID *string `db:"team_b_id" json:"team_b_id"`

	ScheduledAt time.Time `db:"scheduled_at" json:"scheduled_at"`
	EndsAt      time.Time `db:"ends_at" json:"ends_at"`
	IsRanked    bool      `db:"is_ranked" json:"is_ranked"`
	State       State     `db:"state" json:"state"`
	Origin      Origin    `db:"origin" json:"origin"`
	ChallengeID *string   `db:"challenge_id" json:"challenge_id,omitempty"`

	// Set only once the result is final (agreement or arbitration).
	ScoreA     *int       `db:"score_a" json:"score_a"`
	ScoreB     *int       `db:"score_b" json:"score_b"`
	Resolution Resolution `db:"resolution" json:"resolution,omitempty"`
	// ResultRevision counts how many times a result was made final. Above 1 the
	// latest result replaces one already announced.
	ResultRevision int `db:"result_revision" json:"result_revision"`

	HomeReport        *ScoreReport `db:"-" json:"home_report,omitempty"`
	AwayReport        *ScoreReport `db:"-" json:"away_report,omitempty"`
	Confirmations     []Side       `db:"-" json:"confirmations"`
	CancelRequestedBy *string      `db:"cancel_requested_by" json:"cancel_requested_by,omitempty"`

	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}

// ReportedBy lists the sides holding a pending or final report.
func (m *Match) ReportedBy() []Side {
	sides := make([]Side, 0, 2)
	if m.HomeReport != nil {
		sides = append(sides, Home)
	}
	if m.AwayReport != nil {
		sides = append(sides, Away)
	}
	return sides
}

func (m *Match) Report(side Side) *ScoreReport {
	if side == Home {
		return m.HomeReport
	}
	return m.AwayReport
}

func (m *Match) SetReport(side Side, r *ScoreReport) {
	if side == Home {
		m.HomeReport = r
	} else {
		m.AwayReport = r
	}
}

// SideOf returns the side played by the team, or false when it is not a party.
func (m *Match) SideOf(teamID string) (Side, bool) {
	if teamID == m.TeamAID {
		return Home, true
	}
	if m.TeamBID != nil && *m.TeamBID == teamID {
		return Away, true
	}
	return "", false
}

func (m *Match) HasConfirmed(side Side) bool {
	for _, s := range m.Confirmations {
		if s == side {
			return true
		}
	}
	return false
}

// Teams returns the ids of every team bound to the match.
func (m *Match) Teams() []string {
	if m.TeamBID == nil {
		return []string{m.TeamAID}
	}
	return []string{m.TeamAID, *m.TeamBID}
}

// Clone returns a deep copy safe to hand out of a lock.
func (m *Match) Clone() Match {
	c := *m
	if m.FieldID != nil {
		c.FieldID = utils.Ptr(*m.FieldID)
	}
	if m.TeamBID != nil {
		c.TeamBID = utils.Ptr(*m.TeamBID)
	}
	if m.ChallengeID != nil {
		c.ChallengeID = utils.Ptr(*m.ChallengeID)
	}
	if m.ScoreA != nil {
		c.ScoreA = utils.Ptr(*m.ScoreA)
	}
	if m.ScoreB != nil {
		c.ScoreB = utils.Ptr(*m.ScoreB)
	}
	if m.HomeReport != nil {
		r := *m.HomeReport
		c.HomeReport = &r
	}
	if m.AwayReport != nil {
		r := *m.AwayReport
		c.AwayReport = &r
	}
	if m.CancelRequestedBy != nil {
		c.CancelRequestedBy = utils.Ptr(*m.CancelRequestedBy)
	}
	if m.FinishedAt != nil {
		c.FinishedAt = utils.Ptr(*m.FinishedAt)
	}
	c.Confirmations = append([]Side{}, m.Confirmations...)
	return c
}

// MarshalJSON adds the derived reported_by list.
func (m Match) MarshalJSON() ([]byte, error) {
	type plain Match
	return json.Marshal(struct {
		plain
		ReportedBy []Side `json:"reported_by"`
	}{plain(m), m.ReportedBy()})
}

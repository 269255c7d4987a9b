package match

import "time"

type ChallengeState string

const (
	ChallengePending  ChallengeState = "pending"
	ChallengeAccepted ChallengeState = "accepted"
	ChallengeRejected ChallengeState = "rejected"
	ChallengeExpired  ChallengeState = "expired"
)

type Challenge struct {
	ID               string         `db:"id" json:"id"`
	ChallengerTeamID string         `db:"challenger_team_id" json:"challenger_team_id"`
	ChallengedTeamID string         `db:"challenged_team_id" json:"challenged_team_id"`
	VenueID          string         `db:"venue_id" json:"venue_id"`
	FieldID          *string        `db:"field_id" json:"field_id,omitempty"`
	ProposedDatetime time.Time      `db:"proposed_datetime" json:"proposed_datetime"`
	Message          string         `db:"message" json:"message"`
	IsRanked         bool           `db:"is_ranked" json:"is_ranked"`
	State            ChallengeState `db:"state" json:"state"`
	MatchID          *string        `db:"match_id" json:"match_id,omitempty"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	ResolvedAt       *time.Time     `db:"resolved_at" json:"resolved_at,omitempty"`
}

func (c *Challenge) Involves(teamID string) bool {
	return c.ChallengerTeamID == teamID || c.ChallengedTeamID == teamID
}

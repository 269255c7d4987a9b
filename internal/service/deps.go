package service

import (
	"context"

	"github.com/AdamBeresnev/quadras-match/internal/events"
	"github.com/AdamBeresnev/quadras-match/internal/match"
)

// Catalog is the venue/field collaborator.
type Catalog interface {
	Venue(id string) (*match.Venue, error)
	Field(id string) (*match.Field, error)
}

// MatchRepository persists matches. Implementations must be safe for concurrent use.
type MatchRepository interface {
	SaveMatch(ctx context.Context, m *match.Match) error
	DeleteMatch(ctx context.Context, id string) error
	GetMatch(ctx context.Context, id string) (*match.Match, error)
	GetMatchesForTeam(ctx context.Context, teamID string) ([]match.Match, error)
	GetActiveMatches(ctx context.Context) ([]match.Match, error)
}

type ChallengeRepository interface {
	SaveChallenge(ctx context.Context, c *match.Challenge) error
	GetChallenge(ctx context.Context, id string) (*match.Challenge, error)
	GetChallengesForTeam(ctx context.Context, teamID string) ([]match.Challenge, error)
	GetPendingChallenges(ctx context.Context) ([]match.Challenge, error)
}

// QueueRepository persists lobby entries so a restart does not empty the queues.
type QueueRepository interface {
	SaveQueueEntry(ctx context.Context, e *match.QueueEntry) error
	DeleteQueueEntry(ctx context.Context, venueID, teamID string) error
	GetQueueEntries(ctx context.Context) ([]match.QueueEntry, error)
}

// Emitter receives lifecycle events for the ranking and notification collaborators.
// Emit must not block.
type Emitter interface {
	Emit(e events.Event)
}

type nopEmitter struct{}

func (nopEmitter) Emit(events.Event) {}

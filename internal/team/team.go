package team

import "time"

type ContextKey string

const TeamIDKey ContextKey = "teamID"

type Team struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

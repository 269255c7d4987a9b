package match

import "time"

type Venue struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Location *time.Location `json:"-"`
	// Daily opening hours as offsets from local midnight.
	OpensAt      time.Duration `json:"-"`
	ClosesAt     time.Duration `json:"-"`
	SlotDuration time.Duration `json:"-"`
}

// OpenWindow returns the opening window of the venue on the local day containing t.
func (v *Venue) OpenWindow(t time.Time) Window {
	local := t.In(v.Location)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, v.Location)
	return Window{From: midnight.Add(v.OpensAt), Until: midnight.Add(v.ClosesAt)}
}

// OverlapsOpenHours reports whether w intersects any opening window of the venue.
func (v *Venue) OverlapsOpenHours(w Window) bool {
	day := v.OpenWindow(w.From).From.Add(-24 * time.Hour)
	for !day.After(w.Until) {
		if _, ok := w.Overlap(v.OpenWindow(day)); ok {
			return true
		}
		day = day.Add(24 * time.Hour)
	}
	return false
}

type Field struct {
	ID           string        `json:"id"`
	VenueID      string        `json:"venue_id"`
	Name         string        `json:"name"`
	SlotDuration time.Duration `json:"-"`
}

type QueueEntry struct {
	TeamID         string    `db:"team_id" json:"team_id"`
	VenueID        string    `db:"venue_id" json:"venue_id"`
	AvailableFrom  time.Time `db:"available_from" json:"available_from"`
	AvailableUntil time.Time `db:"available_until" json:"available_until"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

func (e *QueueEntry) Window() Window {
	return Window{From: e.AvailableFrom, Until: e.AvailableUntil}
}

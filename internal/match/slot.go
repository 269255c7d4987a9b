package match

import "time"

type SlotStatus string

const (
	SlotFree   SlotStatus = "free"
	SlotHeld   SlotStatus = "held"
	SlotBooked SlotStatus = "booked"
)

type Slot struct {
	FieldID string     `json:"field_id"`
	Start   time.Time  `json:"start"`
	End     time.Time  `json:"end"`
	Status  SlotStatus `json:"status"`
	MatchID *string    `json:"match_id,omitempty"`
}

// SlotHandle is the proof of a short-lived exclusive hold on a slot.
type SlotHandle struct {
	FieldID   string
	Start     time.Time
	End       time.Time
	Token     string
	ExpiresAt time.Time
}

// Window is a half-open time interval [From, Until).
type Window struct {
	From  time.Time `json:"available_from"`
	Until time.Time `json:"available_until"`
}

func (w Window) Duration() time.Duration {
	return w.Until.Sub(w.From)
}

// Overlap returns the intersection of two windows and whether it is non-empty.
func (w Window) Overlap(o Window) (Window, bool) {
	from := w.From
	if o.From.After(from) {
		from = o.From
	}
	until := w.Until
	if o.Until.Before(until) {
		until = o.Until
	}
	if !until.After(from) {
		return Window{}, false
	}
	return Window{From: from, Until: until}, true
}

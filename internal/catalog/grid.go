package catalog

import (
	"time"

	"github.com/AdamBeresnev/quadras-match/internal/match"
)

// SlotsForDay lays the field's fixed-duration slots over the venue's opening window of the
// local day that contains date.
func SlotsForDay(v *match.Venue, f *match.Field, date time.Time) []match.Window {
	open := v.OpenWindow(date)
	d := f.SlotDuration
	if d <= 0 {
		return nil
	}

	var slots []match.Window
	for start := open.From; !start.Add(d).After(open.Until); start = start.Add(d) {
		slots = append(slots, match.Window{From: start, Until: start.Add(d)})
	}
	return slots
}

// SlotAt returns the slot of the field beginning exactly at start. It fails with
// ErrSlotOutOfWindow when start is not on the field's slot grid inside opening hours.
func SlotAt(v *match.Venue, f *match.Field, start time.Time) (match.Window, error) {
	d := f.SlotDuration
	// The previous local day matters when opening hours run past midnight.
	for _, day := range []time.Time{start, start.Add(-24 * time.Hour)} {
		open := v.OpenWindow(day)
		if start.Before(open.From) || start.Add(d).After(open.Until) {
			continue
		}
		if start.Sub(open.From)%d != 0 {
			return match.Window{}, match.Withf(match.ErrSlotOutOfWindow, "slot start %s is not aligned to %s slots", start.Format(time.RFC3339), d)
		}
		return match.Window{From: start, Until: start.Add(d)}, nil
	}
	return match.Window{}, match.ErrSlotOutOfWindow
}

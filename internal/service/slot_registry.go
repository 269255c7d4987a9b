package service

import (
	"context"
	"sync"
	"time"

	"github.com/AdamBeresnev/quadras-match/internal/catalog"
	"github.com/AdamBeresnev/quadras-match/internal/match"
	"github.com/AdamBeresnev/quadras-match/internal/utils"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const defaultHoldTTL = 10 * time.Second

type slotKey struct {
	fieldID string
	start   int64
}

func keyOf(fieldID string, start time.Time) slotKey {
	return slotKey{fieldID: fieldID, start: start.Unix()}
}

type slotUnit struct {
	mu        sync.Mutex
	dead      bool // removed from the index; lookups must retry
	end       time.Time
	status    match.SlotStatus
	token     string
	expiresAt time.Time
	matchID   string
}

// expire returns an elapsed hold to the free pool.
func (u *slotUnit) expire(now time.Time) {
	if u.status == match.SlotHeld && !now.Before(u.expiresAt) {
		u.status = match.SlotFree
		u.token = ""
	}
}

// SlotRegistry owns the bookable slots of every field and guarantees at most one active
// hold or booking per slot. Each slot is locked on its own.
type SlotRegistry struct {
	catalog Catalog
	clock   clockwork.Clock
	holdTTL time.Duration

	mu    sync.Mutex
	units map[slotKey]*slotUnit
}

type SlotRegistryOption func(*SlotRegistry)

// WithHoldTTL overrides how long a reservation stays held before it expires.
func WithHoldTTL(d time.Duration) SlotRegistryOption {
	return func(r *SlotRegistry) {
		if d > 0 {
			r.holdTTL = d
		}
	}
}

func NewSlotRegistry(cat Catalog, clk clockwork.Clock, opts ...SlotRegistryOption) *SlotRegistry {
	r := &SlotRegistry{
		catalog: cat,
		clock:   clk,
		holdTTL: defaultHoldTTL,
		units:   make(map[slotKey]*slotUnit),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// lockUnit returns the locked unit for key, creating it when missing.
func (r *SlotRegistry) lockUnit(key slotKey) *slotUnit {
	for {
		r.mu.Lock()
		u, ok := r.units[key]
		if !ok {
			u = &slotUnit{status: match.SlotFree}
			r.units[key] = u
		}
		r.mu.Unlock()

		u.mu.Lock()
		if !u.dead {
			return u
		}
		u.mu.Unlock()
	}
}

// lockExisting returns the locked unit for key or nil when the slot is untracked.
func (r *SlotRegistry) lockExisting(key slotKey) *slotUnit {
	r.mu.Lock()
	u := r.units[key]
	r.mu.Unlock()
	if u == nil {
		return nil
	}
	u.mu.Lock()
	if u.dead {
		u.mu.Unlock()
		return nil
	}
	return u
}

func (r *SlotRegistry) resolve(fieldID string) (*match.Field, *match.Venue, error) {
	field, err := r.catalog.Field(fieldID)
	if err != nil {
		return nil, nil, err
	}
	venue, err := r.catalog.Venue(field.VenueID)
	if err != nil {
		return nil, nil, err
	}
	return field, venue, nil
}

// Reserve places a short-lived exclusive hold on the slot starting at slotStart.
func (r *SlotRegistry) Reserve(ctx context.Context, fieldID string, slotStart time.Time) (match.SlotHandle, error) {
	if err := ctx.Err(); err != nil {
		return match.SlotHandle{}, err
	}

	field, venue, err := r.resolve(fieldID)
	if err != nil {
		return match.SlotHandle{}, err
	}
	w, err := catalog.SlotAt(venue, field, slotStart)
	if err != nil {
		return match.SlotHandle{}, err
	}

	now := r.clock.Now()
	if w.From.Before(now) {
		return match.SlotHandle{}, match.ErrSlotInPast
	}

	u := r.lockUnit(keyOf(fieldID, w.From))
	defer u.mu.Unlock()

	u.expire(now)
	if u.status != match.SlotFree {
		return match.SlotHandle{}, match.ErrSlotUnavailable
	}

	u.status = match.SlotHeld
	u.end = w.Until
	u.token = uuid.NewString()
	u.expiresAt = now.Add(r.holdTTL)

	log.Debug().
		Str("field_id", fieldID).
		Time("slot_start", w.From).
		Time("expires_at", u.expiresAt).
		Msg("slot held")

	return match.SlotHandle{
		FieldID:   fieldID,
		Start:     w.From,
		End:       w.Until,
		Token:     u.token,
		ExpiresAt: u.expiresAt,
	}, nil
}

// Release drops a hold. Releasing a hold that expired or was converted is a no-op.
func (r *SlotRegistry) Release(h match.SlotHandle) {
	u := r.lockExisting(keyOf(h.FieldID, h.Start))
	if u == nil {
		return
	}
	defer u.mu.Unlock()
	if u.status == match.SlotHeld && u.token == h.Token {
		u.status = match.SlotFree
		u.token = ""
		log.Debug().Str("field_id", h.FieldID).Time("slot_start", h.Start).Msg("slot hold released")
	}
}

// ConfirmBooking converts a live hold into a booking bound to matchID.
func (r *SlotRegistry) ConfirmBooking(h match.SlotHandle, matchID string) error {
	u := r.lockExisting(keyOf(h.FieldID, h.Start))
	if u == nil {
		return match.ErrHoldExpired
	}
	defer u.mu.Unlock()

	u.expire(r.clock.Now())
	if u.status != match.SlotHeld || u.token != h.Token {
		return match.ErrHoldExpired
	}
	u.status = match.SlotBooked
	u.token = ""
	u.matchID = matchID
	return nil
}

// ReleaseBooking frees a booked slot if it is still bound to matchID.
func (r *SlotRegistry) ReleaseBooking(fieldID string, start time.Time, matchID string) {
	u := r.lockExisting(keyOf(fieldID, start))
	if u == nil {
		return
	}
	defer u.mu.Unlock()
	if u.status == match.SlotBooked && u.matchID == matchID {
		u.status = match.SlotFree
		u.matchID = ""
		log.Debug().Str("field_id", fieldID).Time("slot_start", start).Str("match_id", matchID).Msg("slot booking released")
	}
}

// Bind marks a slot as booked by matchID without a prior hold. Used when reloading state.
func (r *SlotRegistry) Bind(fieldID string, w match.Window, matchID string) error {
	u := r.lockUnit(keyOf(fieldID, w.From))
	defer u.mu.Unlock()
	if u.status == match.SlotBooked && u.matchID != matchID {
		return match.ErrSlotUnavailable
	}
	u.status = match.SlotBooked
	u.end = w.Until
	u.token = ""
	u.matchID = matchID
	return nil
}

// ListSlots returns the availability of every slot of the field on the local day of date.
func (r *SlotRegistry) ListSlots(ctx context.Context, fieldID string, date time.Time) ([]match.Slot, error) {
	field, venue, err := r.resolve(fieldID)
	if err != nil {
		return nil, err
	}

	now := r.clock.Now()
	windows := catalog.SlotsForDay(venue, field, date)
	slots := make([]match.Slot, 0, len(windows))
	for _, w := range windows {
		s := match.Slot{FieldID: fieldID, Start: w.From, End: w.Until, Status: match.SlotFree}
		if u := r.lockExisting(keyOf(fieldID, w.From)); u != nil {
			u.expire(now)
			s.Status = u.status
			if u.status == match.SlotBooked {
				s.MatchID = utils.Ptr(u.matchID)
			}
			u.mu.Unlock()
		}
		slots = append(slots, s)
	}
	return slots, nil
}

// Sweep expires stale holds and forgets free and long-played slots. Returns the number of
// holds expired.
func (r *SlotRegistry) Sweep(now time.Time) int {
	expired := 0
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, u := range r.units {
		// Busy units are left for the next sweep.
		if !u.mu.TryLock() {
			continue
		}
		if u.status == match.SlotHeld && !now.Before(u.expiresAt) {
			expired++
		}
		u.expire(now)
		// Played slots can never be reserved again.
		if u.status == match.SlotFree || (u.status == match.SlotBooked && now.After(u.end.Add(24*time.Hour))) {
			u.dead = true
			delete(r.units, key)
		}
		u.mu.Unlock()
	}
	if expired > 0 {
		log.Debug().Int("expired", expired).Msg("expired slot holds")
	}
	return expired
}

package match

import (
	"errors"
	"fmt"
)

// Error kinds. Every *Error matches exactly one of these through errors.Is.
var (
	ErrConflict          = errors.New("conflict")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrNotAuthorized     = errors.New("not authorized")
	ErrWindowViolation   = errors.New("window violation")
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
)

type Error struct {
	Kind    error
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return t.Code == e.Code
	}
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

// Compare with errors.Is; the returned values from operations may carry a more specific message.
var (
	ErrSlotUnavailable    = newError(ErrConflict, "slot_unavailable", "slot is already held or booked")
	ErrHoldExpired        = newError(ErrConflict, "hold_expired", "slot hold expired before the booking was confirmed")
	ErrTeamBusy           = newError(ErrConflict, "team_busy", "team already has an active match overlapping this time")
	ErrSlotOutOfWindow    = newError(ErrWindowViolation, "slot_out_of_window", "slot is outside the venue opening hours")
	ErrSlotInPast         = newError(ErrWindowViolation, "slot_in_past", "slot start is in the past")
	ErrReportWindowClosed = newError(ErrWindowViolation, "report_window_closed", "score report window is closed")
	ErrCancelWindowClosed = newError(ErrWindowViolation, "cancel_window_closed", "match can no longer be cancelled")
	ErrQueueWindowInvalid = newError(ErrWindowViolation, "queue_window_invalid", "availability window is invalid for this venue")
	ErrProposalInPast     = newError(ErrWindowViolation, "proposal_in_past", "proposed datetime is in the past")
	ErrMatchNotOpen       = newError(ErrInvalidTransition, "match_not_open", "match is not awaiting an opponent")
	ErrSameTeam           = newError(ErrInvalidTransition, "same_team", "a team cannot play against itself")
	ErrAlreadyResolved    = newError(ErrInvalidTransition, "already_resolved", "challenge is already resolved")
	ErrInvalidState       = newError(ErrInvalidTransition, "invalid_state", "operation is not valid in the current match state")
	ErrNotChallengedTeam  = newError(ErrNotAuthorized, "not_challenged_team", "only the challenged team can answer a challenge")
	ErrNotParticipant     = newError(ErrNotAuthorized, "not_participant", "team is not a party to this match")
	ErrWrongSide          = newError(ErrNotAuthorized, "wrong_side", "side does not belong to the acting team")
	ErrNotArbiter         = newError(ErrNotAuthorized, "not_arbiter", "only the arbiter can resolve a dispute")
	ErrTeamMismatch       = newError(ErrNotAuthorized, "team_mismatch", "team_id does not match the authenticated team")
	ErrMatchNotFound      = newError(ErrNotFound, "match_not_found", "match not found")
	ErrChallengeNotFound  = newError(ErrNotFound, "challenge_not_found", "challenge not found")
	ErrFieldNotFound      = newError(ErrNotFound, "field_not_found", "field not found")
	ErrVenueNotFound      = newError(ErrNotFound, "venue_not_found", "venue not found")
	ErrTeamNotFound       = newError(ErrNotFound, "team_not_found", "team not found")
	ErrQueueEntryNotFound = newError(ErrNotFound, "queue_entry_not_found", "team is not queued at this venue")
)

// Invalidf builds an ErrInvalidInput error.
func Invalidf(format string, args ...any) *Error {
	return newError(ErrInvalidInput, "invalid_input", fmt.Sprintf(format, args...))
}

// Withf returns a copy of a coded error carrying a more specific message.
func Withf(base *Error, format string, args ...any) *Error {
	return newError(base.Kind, base.Code, fmt.Sprintf(format, args...))
}

// Kind returns the taxonomy kind of err, or nil for infrastructure errors.
func Kind(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}

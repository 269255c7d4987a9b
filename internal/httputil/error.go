package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/AdamBeresnev/quadras-match/internal/match"
	"github.com/rs/zerolog/hlog"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// StatusFor maps an error to its HTTP status by taxonomy kind.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, match.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, match.ErrInvalidTransition), errors.Is(err, match.ErrWindowViolation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, match.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, match.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, match.ErrInvalidInput):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// WriteError writes err as a JSON error body. Domain errors keep their message and code;
// anything else is logged and hidden behind a generic 500.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		InternalServerError(w, r, "request failed", err)
		return
	}

	var e *match.Error
	code := "error"
	if errors.As(err, &e) {
		code = e.Code
	}
	hlog.FromRequest(r).Warn().Err(err).Int("status", status).Str("code", code).Msg("request rejected")
	WriteJSON(w, status, errorBody{Error: err.Error(), Code: code})
}

func InternalServerError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	hlog.FromRequest(r).Error().Err(err).Msg(msg)
	WriteJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error", Code: "internal"})
}

func BadRequest(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ev := hlog.FromRequest(r).Warn().Str("message", msg)
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("bad request")
	WriteJSON(w, http.StatusBadRequest, errorBody{Error: msg, Code: "invalid_input"})
}

func NotFound(w http.ResponseWriter, r *http.Request, msg string) {
	hlog.FromRequest(r).Warn().Str("message", msg).Msg("not found")
	WriteJSON(w, http.StatusNotFound, errorBody{Error: msg, Code: "not_found"})
}

// DecodeJSON reads a single JSON object from the request body into v.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return match.Invalidf("request body is empty")
		}
		return match.Invalidf("invalid JSON body: %v", err)
	}
	return nil
}

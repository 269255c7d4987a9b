package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/AdamBeresnev/quadras-match/internal/httputil"
	"github.com/AdamBeresnev/quadras-match/internal/match"
)

const ArbiterHeader = "X-Arbiter-Token"

// RequireArbiter only lets through requests carrying the arbiter token. Requests acting as a
// team are refused even with the token, so a party to a dispute cannot settle it. An empty
// token refuses everything.
func RequireArbiter(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, acting := GetTeamIDFromContext(r.Context()); acting {
				httputil.WriteError(w, r, match.ErrNotArbiter)
				return
			}
			given := r.Header.Get(ArbiterHeader)
			if token == "" || subtle.ConstantTimeCompare([]byte(given), []byte(token)) != 1 {
				httputil.WriteError(w, r, match.ErrNotArbiter)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

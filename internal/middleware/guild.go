package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RequireGuild rejects requests whose token does not cover the guild named
// by the route parameter.
func RequireGuild(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			guildID := chi.URLParam(r, param)
			if guildID == "" || !claims.CanAccess(guildID) {
				http.Error(w, "token does not cover this guild", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"shopbot/internal/auth"

	"github.com/go-chi/chi/v5"
)

func guildRouter() http.Handler {
	router := chi.NewRouter()
	router.With(RequireGuild("guildID")).Get("/guilds/{guildID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return router
}

func serveGuild(ctx context.Context, path string) int {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil).WithContext(ctx)
	guildRouter().ServeHTTP(rr, req)
	return rr.Code
}

func TestRequireGuildMissingClaims(t *testing.T) {
	if code := serveGuild(context.Background(), "/guilds/g1"); code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestRequireGuildOtherGuild(t *testing.T) {
	ctx := ContextWithClaims(context.Background(), &auth.Claims{UserID: "u1", GuildID: "g2"})
	if code := serveGuild(ctx, "/guilds/g1"); code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestRequireGuildMatches(t *testing.T) {
	ctx := ContextWithClaims(context.Background(), &auth.Claims{UserID: "u1", GuildID: "g1"})
	if code := serveGuild(ctx, "/guilds/g1"); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	ctx = ContextWithClaims(context.Background(), &auth.Claims{UserID: "u1", GuildID: auth.AllGuilds})
	if code := serveGuild(ctx, "/guilds/g9"); code != http.StatusOK {
		t.Fatalf("expected wildcard token to pass, got %d", code)
	}
}

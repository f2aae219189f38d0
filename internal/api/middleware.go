// Package api wires HTTP handlers onto the application services. Handlers
// decode and validate transport concerns only; domain rules live below.
package api

import (
	"context"
	"net/http"

	"github.com/askloop/askloop/server/internal/auth"
	"github.com/askloop/askloop/server/internal/api/respond"
)

type contextKey string

const actorContextKey contextKey = "actor"

// AuthMiddleware resolves the acting identity from the Authorization
// header and stores it in the request context.
func AuthMiddleware(authorizer auth.Authorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey, err := auth.ExtractAPIKey(r)
			if err != nil {
				respond.WriteError(w, http.StatusUnauthorized, err.Error())
				return
			}
			actor, err := authorizer.Authorize(r.Context(), apiKey, r.Method, r.URL.Path)
			if err != nil {
				respond.WriteError(w, http.StatusUnauthorized, "invalid API key")
				return
			}
			ctx := context.WithValue(r.Context(), actorContextKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorFrom returns the authenticated actor stored by AuthMiddleware.
func ActorFrom(ctx context.Context) (*auth.ActorInfo, bool) {
	actor, ok := ctx.Value(actorContextKey).(*auth.ActorInfo)
	return actor, ok
}

// requireActor fetches the actor or writes a 401 and returns false.
func requireActor(w http.ResponseWriter, r *http.Request) (*auth.ActorInfo, bool) {
	actor, ok := ActorFrom(r.Context())
	if !ok || actor == nil {
		respond.WriteError(w, http.StatusUnauthorized, "authentication required")
		return nil, false
	}
	return actor, true
}

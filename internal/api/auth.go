package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"zapisnik/internal/config"
	"zapisnik/internal/models"
)

type actorContextKey struct{}

// ActorFromContext returns the authenticated actor set by HTTPAuth.
func ActorFromContext(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(models.Actor)
	return actor, ok
}

// HTTPAuth resolves the API key header to the actor (member or admin)
// the key was issued to.
type HTTPAuth struct {
	cfg             *config.APIConfig
	clientsByAPIKey map[string]config.APIClientKey
}

func NewHTTPAuth(cfg *config.APIConfig) *HTTPAuth {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}

	return &HTTPAuth{
		cfg:             cfg,
		clientsByAPIKey: m,
	}
}

// Wrap enforces API-key authentication for everything under /api/.
func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.cfg.Auth.Enabled || !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}

		client, ok := a.authenticate(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, reasonUnauthenticated, "invalid or missing api key")
			return
		}

		actor := models.Actor{ID: client.UserID, Role: client.Role}
		if actor.Role == "" {
			actor.Role = models.RoleUser
		}

		ctx := context.WithValue(r.Context(), actorContextKey{}, actor)
		ctx = context.WithValue(ctx, clientNameContextKey{}, client.Name)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *HTTPAuth) authenticate(r *http.Request) (config.APIClientKey, bool) {
	header := a.cfg.Auth.HeaderAPIKey
	if header == "" {
		header = "x-api-key"
	}

	apiKey := strings.TrimSpace(r.Header.Get(header))
	if apiKey == "" {
		return config.APIClientKey{}, false
	}

	client, ok := a.clientsByAPIKey[apiKey]
	if !ok {
		return config.APIClientKey{}, false
	}
	if subtle.ConstantTimeCompare([]byte(client.Key), []byte(apiKey)) != 1 {
		return config.APIClientKey{}, false
	}
	return client, true
}

type clientNameContextKey struct{}

func clientNameFromContext(ctx context.Context) string {
	name, _ := ctx.Value(clientNameContextKey{}).(string)
	if name == "" {
		return "unknown"
	}
	return name
}

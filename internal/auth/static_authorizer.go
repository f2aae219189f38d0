package auth

import (
	"context"
	"errors"
	"strings"
)

const (
	// LocalDevKeyPrefix marks API keys accepted by the static authorizer.
	// The suffix after the prefix becomes the actor id, so local tooling
	// can act as any number of distinct users.
	LocalDevKeyPrefix = "sk_local_askloop_"
)

// StaticAuthorizer resolves local development keys without an external
// identity provider. Production deployments replace it behind the
// Authorizer interface.
type StaticAuthorizer struct{}

// NewStaticAuthorizer creates a StaticAuthorizer for local development.
func NewStaticAuthorizer() *StaticAuthorizer {
	return &StaticAuthorizer{}
}

// Authorize accepts any key with the local prefix and derives the actor id
// from the key suffix.
func (s *StaticAuthorizer) Authorize(ctx context.Context, apiKey, operation, resource string) (*ActorInfo, error) {
	if !strings.HasPrefix(apiKey, LocalDevKeyPrefix) {
		return nil, errors.New("invalid API key for local development")
	}
	actorID := strings.TrimPrefix(apiKey, LocalDevKeyPrefix)
	if actorID == "" {
		return nil, errors.New("empty actor suffix in local API key")
	}
	return &ActorInfo{
		ActorID:     actorID,
		DisplayName: actorID,
		Email:       actorID + "@local.askloop.dev",
		Permissions: []string{"*"},
	}, nil
}

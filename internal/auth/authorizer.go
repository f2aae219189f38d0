package auth

import (
	"context"
)

// ActorInfo describes an authenticated actor as resolved by the external
// authentication collaborator. The core trusts it and never re-implements
// authentication.
type ActorInfo struct {
	ActorID     string   `json:"actor_id"`
	DisplayName string   `json:"display_name"`
	Email       string   `json:"email"`
	Permissions []string `json:"permissions"`
}

// Authorizer validates API keys and resolves the acting identity in one call.
type Authorizer interface {
	// Authorize validates the API key and checks whether the actor may
	// perform the operation. Returns ActorInfo when authorized.
	Authorize(ctx context.Context, apiKey, operation, resource string) (*ActorInfo, error)
}

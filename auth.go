package docquery

import (
	"context"

	"github.com/hugr-lab/docquery/auth"
)

// Authenticator validates bearer tokens and returns user identity.
// This is re-exported from the auth package for convenience.
type Authenticator = auth.Authenticator

// CollectionAuthorizer decides whether an identity may read a collection.
type CollectionAuthorizer = auth.CollectionAuthorizer

// Grant allows an identity to read the collections matching its patterns.
type Grant = auth.Grant

// TokenAuth authenticates static tokens and authorizes collections per identity.
type TokenAuth = auth.TokenAuth

// BearerAuth creates an Authenticator from a validation function.
//
// Example:
//
//	auth := docquery.BearerAuth(func(token string) (string, error) {
//	    user, err := validateWithMyBackend(token)
//	    if err != nil {
//	        return "", docquery.ErrUnauthorized
//	    }
//	    return user.ID, nil
//	})
func BearerAuth(validateFunc func(token string) (identity string, err error)) Authenticator {
	return auth.BearerAuth(validateFunc)
}

// NewTokenAuth creates a TokenAuth from token to identity pairs and grants.
// Use the result as both ServerConfig.Auth and ServerConfig.Authorizer.
func NewTokenAuth(tokens map[string]string, grants ...Grant) *TokenAuth {
	return auth.NewTokenAuth(tokens, grants...)
}

// NoAuth returns an Authenticator that allows all requests without validation.
// Useful for development and testing. DO NOT use in production.
func NoAuth() Authenticator {
	return auth.NoAuth()
}

// IdentityFromContext retrieves the authenticated user identity from context.
// Returns empty string if no identity is set (unauthenticated request).
// Custom collections can use it inside Scan to tailor results per caller.
func IdentityFromContext(ctx context.Context) string {
	return auth.IdentityFromContext(ctx)
}

package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
)

// bearerAuthenticator wraps a user-provided validation function.
type bearerAuthenticator struct {
	validateFunc func(token string) (identity string, err error)
}

// BearerAuth creates an Authenticator from a validation function.
// This is the simplest way to add authentication.
//
// Example:
//
//	auth := BearerAuth(func(token string) (string, error) {
//	    user, err := validateWithMyBackend(token)
//	    if err != nil {
//	        return "", err
//	    }
//	    return user.ID, nil
//	})
func BearerAuth(validateFunc func(token string) (identity string, err error)) Authenticator {
	return &bearerAuthenticator{
		validateFunc: validateFunc,
	}
}

// Authenticate implements Authenticator for bearerAuthenticator.
func (b *bearerAuthenticator) Authenticate(ctx context.Context, token string) (string, error) {
	return b.validateFunc(token)
}

// Grant allows an identity to read collections. Patterns are "schema.collection";
// "*" matches any schema or collection name.
type Grant struct {
	Identity    string
	Collections []string
}

// TokenAuth authenticates a fixed set of tokens and authorizes collections
// per identity. It implements CollectionAuthorizer.
type TokenAuth struct {
	tokens map[string]string
	grants map[string][]string
}

// NewTokenAuth creates a TokenAuth from token to identity pairs.
// Identities without a grant may read every collection.
func NewTokenAuth(tokens map[string]string, grants ...Grant) *TokenAuth {
	t := &TokenAuth{
		tokens: make(map[string]string, len(tokens)),
		grants: make(map[string][]string, len(grants)),
	}
	for tok, id := range tokens {
		t.tokens[tok] = id
	}
	for _, g := range grants {
		t.grants[g.Identity] = append(t.grants[g.Identity], g.Collections...)
	}
	return t
}

// Authenticate implements Authenticator.
func (t *TokenAuth) Authenticate(ctx context.Context, token string) (string, error) {
	for known, identity := range t.tokens {
		if subtle.ConstantTimeCompare([]byte(known), []byte(token)) == 1 {
			return identity, nil
		}
	}
	return "", ErrUnauthenticated
}

// AuthorizeCollection implements CollectionAuthorizer.
func (t *TokenAuth) AuthorizeCollection(ctx context.Context, schema, collection string) error {
	identity := IdentityFromContext(ctx)
	patterns, ok := t.grants[identity]
	if !ok {
		return nil
	}
	for _, p := range patterns {
		ps, pc, found := strings.Cut(p, ".")
		if !found {
			ps, pc = "*", p
		}
		if (ps == "*" || ps == schema) && (pc == "*" || pc == collection) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s may not read %s.%s", ErrForbidden, identity, schema, collection)
}

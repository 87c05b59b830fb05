package identity

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrMissingToken  = errors.New("missing_token")
	ErrInvalidToken  = errors.New("invalid_token")
	ErrNotConfigured = errors.New("identity_not_configured")
)

// Identity is an account verified by the identity provider.
type Identity struct {
	UserID string
	Email  string
}

// Provider validates a bearer token.
type Provider interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// Resolution is the result of a lenient lookup: either an identity, or the reason the caller
// is treated as unauthenticated.
type Resolution struct {
	identity *Identity
	reason   error
}

func Authenticated(id Identity) Resolution {
	return Resolution{identity: &id}
}

func Unauthenticated(reason error) Resolution {
	return Resolution{reason: reason}
}

// Identity returns the verified identity, if there is one.
func (r Resolution) Identity() (Identity, bool) {
	if r.identity == nil {
		return Identity{}, false
	}
	return *r.identity, true
}

// Reason is nil when no token was presented at all.
func (r Resolution) Reason() error {
	return r.reason
}

// Resolve never fails: an absent, expired or otherwise invalid token degrades to Unauthenticated.
func Resolve(ctx context.Context, p Provider, authorization string) Resolution {
	token, ok := BearerToken(authorization)
	if !ok {
		if strings.TrimSpace(authorization) == "" {
			return Unauthenticated(nil)
		}
		return Unauthenticated(ErrInvalidToken)
	}
	if p == nil {
		return Unauthenticated(ErrNotConfigured)
	}
	id, err := p.Verify(ctx, token)
	if err != nil {
		return Unauthenticated(err)
	}
	return Authenticated(id)
}

// Authenticate is the strict form used where an account is required.
func Authenticate(ctx context.Context, p Provider, authorization string) (Identity, error) {
	token, ok := BearerToken(authorization)
	if !ok {
		if strings.TrimSpace(authorization) == "" {
			return Identity{}, ErrMissingToken
		}
		return Identity{}, ErrInvalidToken
	}
	if p == nil {
		return Identity{}, ErrNotConfigured
	}
	return p.Verify(ctx, token)
}

func BearerToken(authorization string) (string, bool) {
	parts := strings.Fields(authorization)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

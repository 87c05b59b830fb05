package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/charitydesk/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func signToken(t *testing.T, secret string, c jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func newTestProvider() *JWTProvider {
	return newJWTProvider(config.IdentityConfig{JWTSecret: "secret", Audience: "authenticated"}, func() time.Time { return testNow })
}

func TestVerifyValidToken(t *testing.T) {
	token := signToken(t, "secret", jwt.MapClaims{
		"sub":   "user-1",
		"email": "jane@x.com",
		"aud":   "authenticated",
		"exp":   testNow.Add(time.Hour).Unix(),
	})

	id, err := newTestProvider().Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "user-1", Email: "jane@x.com"}, id)
}

func TestVerifyRejects(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		claims jwt.MapClaims
	}{
		{"wrong secret", "other", jwt.MapClaims{"sub": "u", "aud": "authenticated", "exp": testNow.Add(time.Hour).Unix()}},
		{"expired", "secret", jwt.MapClaims{"sub": "u", "aud": "authenticated", "exp": testNow.Add(-time.Hour).Unix()}},
		{"missing exp", "secret", jwt.MapClaims{"sub": "u", "aud": "authenticated"}},
		{"wrong audience", "secret", jwt.MapClaims{"sub": "u", "aud": "anon", "exp": testNow.Add(time.Hour).Unix()}},
		{"missing subject", "secret", jwt.MapClaims{"aud": "authenticated", "exp": testNow.Add(time.Hour).Unix()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestProvider().Verify(context.Background(), signToken(t, tt.secret, tt.claims))
			assert.True(t, errors.Is(err, ErrInvalidToken), "got %v", err)
		})
	}
}

func TestVerifyWithoutSecret(t *testing.T) {
	p := newJWTProvider(config.IdentityConfig{}, time.Now)
	_, err := p.Verify(context.Background(), "x.y.z")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestResolveIsLenient(t *testing.T) {
	p := newTestProvider()
	ctx := context.Background()

	res := Resolve(ctx, p, "")
	_, ok := res.Identity()
	assert.False(t, ok)
	assert.NoError(t, res.Reason())

	res = Resolve(ctx, p, "Bearer garbage")
	_, ok = res.Identity()
	assert.False(t, ok)
	assert.ErrorIs(t, res.Reason(), ErrInvalidToken)

	token := signToken(t, "secret", jwt.MapClaims{"sub": "user-9", "aud": "authenticated", "exp": testNow.Add(time.Hour).Unix()})
	res = Resolve(ctx, p, "Bearer "+token)
	id, ok := res.Identity()
	require.True(t, ok)
	assert.Equal(t, "user-9", id.UserID)
}

func TestAuthenticateIsStrict(t *testing.T) {
	p := newTestProvider()
	ctx := context.Background()

	_, err := Authenticate(ctx, p, "")
	assert.ErrorIs(t, err, ErrMissingToken)
	_, err = Authenticate(ctx, p, "Basic abc")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = Authenticate(ctx, p, "Bearer nope")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/charitydesk/internal/config"
)

const clockSkew = 30 * time.Second

type claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// JWTProvider verifies HS256 access tokens issued by the hosted auth service.
type JWTProvider struct {
	secret []byte
	parser *jwt.Parser
}

func NewJWTProvider(cfg config.Config) Provider {
	return newJWTProvider(cfg.Identity, time.Now)
}

func newJWTProvider(cfg config.IdentityConfig, now func() time.Time) *JWTProvider {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(now),
		jwt.WithExpirationRequired(),
	}
	if issuer := strings.TrimSpace(cfg.Issuer); issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience := strings.TrimSpace(cfg.Audience); audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return &JWTProvider{
		secret: []byte(strings.TrimSpace(cfg.JWTSecret)),
		parser: jwt.NewParser(opts...),
	}
}

func (p *JWTProvider) Verify(ctx context.Context, token string) (Identity, error) {
	if len(p.secret) == 0 {
		return Identity{}, ErrNotConfigured
	}

	c := &claims{}
	parsed, err := p.parser.ParseWithClaims(token, c, func(t *jwt.Token) (any, error) {
		return p.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	if strings.TrimSpace(c.Subject) == "" {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, errors.New("subject claim required"))
	}
	return Identity{
		UserID: strings.TrimSpace(c.Subject),
		Email:  strings.TrimSpace(c.Email),
	}, nil
}

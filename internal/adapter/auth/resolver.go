// Package auth resolves bearer tokens into domain actors. Tokens are HS256
// JWTs whose subject is the actor id and whose "role" claim is the actor role.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/neomorfeo/foodflow/internal/domain"
)

// Compile-time check: Resolver implements domain.ActorResolver.
var _ domain.ActorResolver = (*Resolver)(nil)

// Config defines how tokens are signed and verified.
type Config struct {
	Secret []byte
	Issuer string
	Now    func() time.Time
}

// claims is the token body.
type claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Resolver verifies bearer tokens.
type Resolver struct {
	cfg Config
}

// NewResolver validates cfg and returns a ready resolver.
func NewResolver(cfg Config) (*Resolver, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token secret is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Resolver{cfg: cfg}, nil
}

// Resolve accepts either a raw token or an Authorization header value
// ("Bearer <token>"). Every failure wraps domain.ErrUnauthenticated.
func (r *Resolver) Resolve(_ context.Context, credentials string) (domain.Actor, error) {
	token := bearerToken(credentials)
	if token == "" {
		return domain.Actor{}, fmt.Errorf("%w: missing bearer token", domain.ErrUnauthenticated)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(r.cfg.Now),
	}
	if r.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.cfg.Issuer))
	}

	var parsed claims
	if _, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return r.cfg.Secret, nil
	}, opts...); err != nil {
		return domain.Actor{}, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}

	subject := strings.TrimSpace(parsed.Subject)
	if subject == "" {
		return domain.Actor{}, fmt.Errorf("%w: token has no subject", domain.ErrUnauthenticated)
	}
	role := domain.Role(parsed.Role)
	if !role.Valid() {
		return domain.Actor{}, fmt.Errorf("%w: unknown role %q", domain.ErrUnauthenticated, parsed.Role)
	}

	return domain.Actor{ID: subject, Role: role}, nil
}

// Issue signs a token for the actor that expires after ttl.
func (r *Resolver) Issue(actor domain.Actor, ttl time.Duration) (string, error) {
	now := r.cfg.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    r.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: string(actor.Role),
	})
	signed, err := token.SignedString(r.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

func bearerToken(credentials string) string {
	credentials = strings.TrimSpace(credentials)
	if scheme, rest, ok := strings.Cut(credentials, " "); ok {
		if !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(rest)
	}
	return credentials
}

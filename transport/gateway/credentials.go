package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credentials supplies a bearer token for calls to endpoint.
type Credentials interface {
	Token(ctx context.Context, endpoint string) (string, error)
}

// StaticToken sends the same token with every request.
type StaticToken string

func (s StaticToken) Token(context.Context, string) (string, error) {
	if s == "" {
		return "", errors.New("empty static token")
	}
	return string(s), nil
}

// SignedToken mints a short-lived HS256 token per request, with the
// endpoint as audience.
type SignedToken struct {
	Secret  []byte
	Issuer  string
	Subject string
	// TTL defaults to one minute.
	TTL time.Duration

	now func() time.Time
}

func (s *SignedToken) Token(_ context.Context, endpoint string) (string, error) {
	if len(s.Secret) == 0 {
		return "", errors.New("signing secret is empty")
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	t := now()
	claims := jwt.RegisteredClaims{
		Issuer:    s.Issuer,
		Subject:   s.Subject,
		Audience:  jwt.ClaimStrings{endpoint},
		IssuedAt:  jwt.NewNumericDate(t),
		NotBefore: jwt.NewNumericDate(t),
		ExpiresAt: jwt.NewNumericDate(t.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
}

// Package servicetoken issues and validates the short-lived HS256 bearer
// tokens peers attach to inter-service calls. The issuer claim names the
// calling system and the audience names the receiving one.
package servicetoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"infosync/pkg/domain"
)

var ErrInvalidToken = errors.New("invalid service token")

// Signer mints tokens for calls made by one system.
type Signer struct {
	secret []byte
	issuer domain.System
	ttl    time.Duration
	now    func() time.Time
}

func NewSigner(secret string, issuer domain.System, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Signer{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
}

// Sign returns a token addressed to audience.
func (s *Signer) Sign(audience domain.System) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Issuer:    string(s.issuer),
		Audience:  jwt.ClaimStrings{string(audience)},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign service token: %w", err)
	}
	return signed, nil
}

// Validator accepts tokens addressed to one system.
type Validator struct {
	secret   []byte
	audience domain.System
}

func NewValidator(secret string, audience domain.System) *Validator {
	return &Validator{secret: []byte(secret), audience: audience}
}

// Validate checks signature, expiry and audience and returns the caller.
func (v *Validator) Validate(raw string) (domain.System, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(string(v.audience)),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	caller, err := domain.ParseSystem(claims.Issuer)
	if err != nil {
		return "", fmt.Errorf("%w: unknown issuer %q", ErrInvalidToken, claims.Issuer)
	}
	return caller, nil
}

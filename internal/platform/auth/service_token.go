package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultServiceTokenLifetime = 5 * time.Minute

// ServiceTokenIssuer mints short-lived HS256 tokens the dashboard presents to
// the count API. A fresh token is minted per request.
type ServiceTokenIssuer struct {
	signingKey []byte
	subject    string
	issuer     string
	audience   string
	lifetime   time.Duration
	now        func() time.Time
}

// NewServiceTokenIssuer creates an issuer. A zero lifetime defaults to five
// minutes.
func NewServiceTokenIssuer(signingKey []byte, subject, issuer, audience string, lifetime time.Duration) *ServiceTokenIssuer {
	if lifetime <= 0 {
		lifetime = defaultServiceTokenLifetime
	}
	return &ServiceTokenIssuer{
		signingKey: signingKey,
		subject:    subject,
		issuer:     issuer,
		audience:   audience,
		lifetime:   lifetime,
		now:        time.Now,
	}
}

// Issue returns a signed token carrying RoleDashboard.
func (s *ServiceTokenIssuer) Issue() (string, error) {
	if len(s.signingKey) == 0 {
		return "", fmt.Errorf("service token: empty signing key")
	}

	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
			ID:        uuid.New().String(),
		},
		Roles: []string{RoleDashboard},
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("signing service token: %w", err)
	}
	return signed, nil
}

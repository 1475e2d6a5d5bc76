// Package auth verifies identity-provider tokens and issues the API's own
// short-lived session tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/persistorai/cadence/internal/models"
)

const (
	sessionIssuer   = "cadence"
	sessionAudience = "internal"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid or expired token")

// IdentityClaims are the claims of a token minted by the identity provider.
type IdentityClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// SessionClaims are the claims of an internal session token.
type SessionClaims struct {
	jwt.RegisteredClaims
	UserID          string      `json:"userId"`
	TenantID        string      `json:"tenantId,omitempty"`
	Role            models.Role `json:"role,omitempty"`
	IsPlatformAdmin bool        `json:"isPlatformAdmin"`
}

// Principal is the authenticated caller. Exactly one of Identity or Session
// is populated depending on the token kind.
type Principal struct {
	Identity *models.Identity
	Session  *SessionClaims
}

// Tokens verifies inbound bearer tokens and signs session tokens.
type Tokens struct {
	identitySecret []byte
	identityIssuer string
	sessionSecret  []byte
	sessionTTL     time.Duration
	now            func() time.Time
}

// NewTokens creates a Tokens. identityIssuer may be empty to accept any issuer.
func NewTokens(identitySecret, identityIssuer, sessionSecret string, sessionTTL time.Duration) *Tokens {
	return &Tokens{
		identitySecret: []byte(identitySecret),
		identityIssuer: identityIssuer,
		sessionSecret:  []byte(sessionSecret),
		sessionTTL:     sessionTTL,
		now:            time.Now,
	}
}

// SessionTTL returns the lifetime of issued session tokens.
func (t *Tokens) SessionTTL() time.Duration { return t.sessionTTL }

// Authenticate verifies raw as a session token first and falls back to an
// identity token.
func (t *Tokens) Authenticate(raw string) (Principal, error) {
	if s, err := t.verifySession(raw); err == nil {
		return Principal{Session: s}, nil
	}

	id, err := t.verifyIdentity(raw)
	if err != nil {
		return Principal{}, err
	}

	return Principal{Identity: id}, nil
}

func (t *Tokens) verifyIdentity(raw string) (*models.Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	}
	if t.identityIssuer != "" {
		opts = append(opts, jwt.WithIssuer(t.identityIssuer))
	}

	var claims IdentityClaims
	if _, err := jwt.ParseWithClaims(raw, &claims, t.keyFunc(t.identitySecret), opts...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return &models.Identity{ExternalID: claims.Subject, Email: claims.Email, Name: claims.Name}, nil
}

func (t *Tokens) verifySession(raw string) (*SessionClaims, error) {
	var claims SessionClaims
	_, err := jwt.ParseWithClaims(raw, &claims, t.keyFunc(t.sessionSecret),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithAudience(sessionAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing user", ErrInvalidToken)
	}

	return &claims, nil
}

func (t *Tokens) keyFunc(secret []byte) jwt.Keyfunc {
	return func(*jwt.Token) (any, error) {
		if len(secret) == 0 {
			return nil, errors.New("signing secret not configured")
		}

		return secret, nil
	}
}

// IssueSession signs a session token for the given caller.
func (t *Tokens) IssueSession(userID, tenantID string, role models.Role, platformAdmin bool) (string, error) {
	now := t.now()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{sessionAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.sessionTTL)),
		},
		UserID:          userID,
		TenantID:        tenantID,
		Role:            role,
		IsPlatformAdmin: platformAdmin,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.sessionSecret)
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}

	return signed, nil
}

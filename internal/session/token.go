// Package session tracks who is logged in: signed bearer tokens for the HTTP
// API and the currentUser marker in the local key-value area for the CLI.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/conorfennell/qaforum/internal/domain"
)

// ErrInvalidToken is returned for tokens that are malformed, expired or
// signed with another secret.
var ErrInvalidToken = errors.New("invalid session token")

// Claims carries the session marker inside a token.
type Claims struct {
	UserID   int64  `json:"uid"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies HS256 session tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens returns a Tokens using secret, issuing tokens valid for ttl.
func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a signed token for m.
func (t *Tokens) Issue(m domain.SessionMarker) (string, error) {
	now := t.now()
	claims := &Claims{
		UserID:   m.ID,
		Username: m.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   m.Username,
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Parse verifies raw and returns the marker it carries.
func (t *Tokens) Parse(raw string) (domain.SessionMarker, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(tok *jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return domain.SessionMarker{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || c.Username == "" {
		return domain.SessionMarker{}, ErrInvalidToken
	}
	return domain.SessionMarker{ID: c.UserID, Username: c.Username}, nil
}

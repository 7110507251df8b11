package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned for tokens that fail signature, expiry or claim checks.
var ErrInvalidToken = errors.New("invalid session token")

const issuer = "astralis-storefront"

// Manager issues and verifies HS256 session tokens. A token carries only the
// cart session id; the cart itself lives server-side.
type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewManager creates a token manager. Tokens expire after ttl, which matches
// the cart TTL.
func NewManager(secret string, ttl time.Duration) *Manager {
	return &Manager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

type claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Issued is a freshly started session.
type Issued struct {
	SessionID string    `json:"session_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Issue starts a new session with a random id and signs a token for it.
func (m *Manager) Issue() (*Issued, error) {
	now := m.now()
	sid := uuid.NewString()
	expiresAt := now.Add(m.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		SessionID: sid,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}

	return &Issued{SessionID: sid, Token: signed, ExpiresAt: expiresAt.UTC().Truncate(time.Second)}, nil
}

// Parse verifies token and returns the session id it carries.
func (m *Manager) Parse(token string) (string, error) {
	var c claims
	keyFunc := func(*jwt.Token) (any, error) { return m.secret, nil }
	parsed, err := jwt.ParseWithClaims(token, &c, keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || c.SessionID == "" {
		return "", ErrInvalidToken
	}
	return c.SessionID, nil
}

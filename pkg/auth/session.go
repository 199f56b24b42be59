package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultIssuer     = "citefleurie-admin"
	minSecretLength   = 32
	defaultSessionTTL = 12 * time.Hour
)

var (
	// ErrInvalidSession covers malformed, expired, foreign and revoked tokens.
	ErrInvalidSession = errors.New("invalid session")
	// ErrWeakSecret is returned when the signing secret is too short.
	ErrWeakSecret = fmt.Errorf("session secret must be at least %d bytes", minSecretLength)
)

// Session is the verified content of an admin token.
type Session struct {
	ID        string
	Subject   string
	ExpiresAt time.Time
}

// SessionManager issues and verifies HS256 admin session tokens.
type SessionManager struct {
	secret  []byte
	ttl     time.Duration
	issuer  string
	revoker Revoker
	now     func() time.Time
}

// NewSessionManager builds a manager. A nil revoker disables logout revocation.
func NewSessionManager(secret string, ttl time.Duration, revoker Revoker) (*SessionManager, error) {
	if len(secret) < minSecretLength {
		return nil, ErrWeakSecret
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &SessionManager{
		secret:  []byte(secret),
		ttl:     ttl,
		issuer:  defaultIssuer,
		revoker: revoker,
		now:     time.Now,
	}, nil
}

// TTL returns the lifetime of issued tokens.
func (m *SessionManager) TTL() time.Duration {
	return m.ttl
}

// Issue signs a new token for subject.
func (m *SessionManager) Issue(subject string) (string, Session, error) {
	now := m.now().UTC()
	session := Session{
		ID:        uuid.NewString(),
		Subject:   subject,
		ExpiresAt: now.Add(m.ttl),
	}
	claims := jwt.RegisteredClaims{
		ID:        session.ID,
		Subject:   subject,
		Issuer:    m.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", Session{}, fmt.Errorf("sign session: %w", err)
	}
	return token, session, nil
}

// Verify checks signature, issuer, expiry and revocation.
func (m *SessionManager) Verify(ctx context.Context, token string) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, ErrInvalidSession
	}
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !parsed.Valid {
		return Session{}, ErrInvalidSession
	}
	if claims.ID == "" || claims.Subject == "" {
		return Session{}, ErrInvalidSession
	}
	if m.revoker != nil {
		revoked, err := m.revoker.IsRevoked(ctx, claims.ID)
		if err != nil {
			return Session{}, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return Session{}, ErrInvalidSession
		}
	}
	return Session{ID: claims.ID, Subject: claims.Subject, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Revoke invalidates a verified session for the rest of its lifetime.
func (m *SessionManager) Revoke(ctx context.Context, session Session) error {
	if m.revoker == nil {
		return nil
	}
	ttl := session.ExpiresAt.Sub(m.now())
	return m.revoker.Revoke(ctx, session.ID, ttl)
}

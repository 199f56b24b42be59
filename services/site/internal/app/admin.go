package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"sync"
	"time"

	"citefleurie/internal/util"
	"citefleurie/pkg/auth"
)

// dummyHash keeps the bcrypt cost paid when the email does not match.
var dummyHash = sync.OnceValue(func() string {
	hash, err := auth.HashPassword("not-the-admin-password")
	if err != nil {
		panic("admin: build dummy password hash: " + err.Error())
	}
	return hash
})

// LoginResult is a freshly issued admin session.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Login checks the configured admin credentials and issues a session token.
func (a *App) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return LoginResult{}, validationf("email and password are required")
	}
	hash := a.adminPasswordHash
	known := a.adminEmail != "" && hash != "" &&
		subtle.ConstantTimeCompare([]byte(email), []byte(a.adminEmail)) == 1
	if !known {
		hash = dummyHash()
	}
	if !auth.CheckPassword(password, hash) || !known {
		util.LoggerFromContext(ctx).Warn("admin_login_failed")
		return LoginResult{}, ErrUnauthorized
	}
	token, session, err := a.sessions.Issue(email)
	if err != nil {
		return LoginResult{}, err
	}
	util.LoggerFromContext(ctx).Info("admin_login", "session_id", session.ID)
	return LoginResult{Token: token, ExpiresAt: session.ExpiresAt}, nil
}

// Authorize is the admin capability check run before every admin operation.
func (a *App) Authorize(ctx context.Context, token string) (auth.Session, error) {
	session, err := a.sessions.Verify(ctx, token)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidSession) {
			util.LoggerFromContext(ctx).Error("admin_session_check_failed", "err", err)
		}
		return auth.Session{}, ErrUnauthorized
	}
	return session, nil
}

// Logout revokes the session for the rest of its lifetime.
func (a *App) Logout(ctx context.Context, session auth.Session) error {
	if err := a.sessions.Revoke(ctx, session); err != nil {
		return storageErr("could not revoke session", err)
	}
	return nil
}

// SessionTTL is the lifetime of issued admin tokens.
func (a *App) SessionTTL() time.Duration {
	return a.sessions.TTL()
}

package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"citefleurie/pkg/auth"
	"citefleurie/pkg/mailer"
	"citefleurie/pkg/storage"
	"citefleurie/pkg/store"
)

const (
	defaultMaxUploadBytes = 10 << 20
	defaultSignedURLTTL   = 60 * time.Second
	defaultCallTimeout    = 10 * time.Second
)

// Config holds the collaborators and limits of the site core. Every
// collaborator is built by the caller so tests can inject fakes.
type Config struct {
	Store    store.Store
	Objects  storage.ObjectStore
	Mailer   mailer.Sender
	Sessions *auth.SessionManager

	AdminEmail        string
	AdminPasswordHash string

	// ContactEmail receives contact notifications; MailFrom is the sender.
	ContactEmail string
	MailFrom     string
	SiteName     string

	MaxUploadBytes int64
	SignedURLTTL   time.Duration
	CallTimeout    time.Duration
	Now            func() time.Time
}

// App is the core application service wiring storage, mail and admin sessions.
type App struct {
	store    store.Store
	objects  storage.ObjectStore
	mailer   mailer.Sender
	sessions *auth.SessionManager

	adminEmail        string
	adminPasswordHash string
	contactEmail      string
	mailFrom          string
	siteName          string

	maxUploadBytes int64
	signedURLTTL   time.Duration
	callTimeout    time.Duration
	now            func() time.Time
}

// New validates cfg and builds the application.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("metadata store required")
	}
	if cfg.Objects == nil {
		return nil, errors.New("object store required")
	}
	if cfg.Mailer == nil {
		return nil, errors.New("mailer required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session manager required")
	}
	if strings.TrimSpace(cfg.ContactEmail) == "" || strings.TrimSpace(cfg.MailFrom) == "" {
		return nil, errors.New("contact and sender addresses required")
	}
	a := &App{
		store:             cfg.Store,
		objects:           cfg.Objects,
		mailer:            cfg.Mailer,
		sessions:          cfg.Sessions,
		adminEmail:        strings.ToLower(strings.TrimSpace(cfg.AdminEmail)),
		adminPasswordHash: cfg.AdminPasswordHash,
		contactEmail:      cfg.ContactEmail,
		mailFrom:          cfg.MailFrom,
		siteName:          cfg.SiteName,
		maxUploadBytes:    cfg.MaxUploadBytes,
		signedURLTTL:      cfg.SignedURLTTL,
		callTimeout:       cfg.CallTimeout,
		now:               cfg.Now,
	}
	if a.maxUploadBytes <= 0 {
		a.maxUploadBytes = defaultMaxUploadBytes
	}
	if a.signedURLTTL <= 0 {
		a.signedURLTTL = defaultSignedURLTTL
	}
	if a.callTimeout <= 0 {
		a.callTimeout = defaultCallTimeout
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.siteName == "" {
		a.siteName = "Restaurant"
	}
	return a, nil
}

// MaxUploadBytes is the largest accepted menu file.
func (a *App) MaxUploadBytes() int64 {
	return a.maxUploadBytes
}

// bounded derives the context for a single store or relay call.
func (a *App) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.callTimeout)
}

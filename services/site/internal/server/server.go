package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"citefleurie/internal/ratelimit"
	"citefleurie/internal/util"
	"citefleurie/pkg/auth"
	"citefleurie/services/site/internal/app"
)

// SessionCookie carries the admin token for browser clients.
const SessionCookie = "citefleurie_session"

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	ContactLimiter ratelimit.Limiter
	LoginLimiter   ratelimit.Limiter
	TrustedProxies *util.ProxyAllowlist
	CORSOrigins    []string
	// ObjectHandler serves signed object URLs when the in-process object store is used.
	ObjectHandler http.Handler
	SecureCookies bool
}

// Server exposes HTTP endpoints for the restaurant site and its back-office.
type Server struct {
	app            *app.App
	contactLimiter ratelimit.Limiter
	loginLimiter   ratelimit.Limiter
	proxies        *util.ProxyAllowlist
	corsOrigins    []string
	secureCookies  bool
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	if cfg.ContactLimiter == nil || cfg.LoginLimiter == nil {
		return nil, errors.New("rate limiters required")
	}
	s := &Server{
		app:            cfg.App,
		contactLimiter: cfg.ContactLimiter,
		loginLimiter:   cfg.LoginLimiter,
		proxies:        cfg.TrustedProxies,
		corsOrigins:    cfg.CORSOrigins,
		secureCookies:  cfg.SecureCookies,
		mux:            http.NewServeMux(),
	}
	s.routes()
	if cfg.ObjectHandler != nil {
		s.mux.Handle("/objects/", cfg.ObjectHandler)
	}
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.corsOrigins, s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// admin session
	s.mux.Handle("/auth/login", s.withRateLimit(s.loginLimiter, s.handleLogin))
	s.mux.Handle("/auth/logout", s.withAdmin(s.handleLogout))

	// menus
	s.mux.HandleFunc("/menu", s.handleMenu)
	s.mux.HandleFunc("/menu-url", s.handleMenuURL)

	// contact
	s.mux.Handle("/contact-email", s.withRateLimit(s.contactLimiter, s.handleContact))

	// opening hours
	s.mux.HandleFunc("/opening-hours", s.handleOpeningHours)
	s.mux.Handle("/opening-hours/duplicates", s.withAdmin(s.handleDuplicates))
	s.mux.Handle("/opening-hours/reset", s.withAdmin(s.handleReset))

	// settings
	s.mux.HandleFunc("/settings", s.handleSettings)

	s.mux.Handle("/admin/reconcile", s.withAdmin(s.handleReconcile))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type adminHandler func(http.ResponseWriter, *http.Request, auth.Session)

func (s *Server) withAdmin(next adminHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok := s.authorize(w, r)
		if !ok {
			return
		}
		next(w, r, session)
	})
}

// authorize runs the admin capability check and answers 401 itself on failure.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) (auth.Session, bool) {
	token, ok := sessionToken(r)
	if !ok {
		writeAppError(w, r, app.ErrUnauthorized)
		return auth.Session{}, false
	}
	session, err := s.app.Authorize(r.Context(), token)
	if err != nil {
		writeAppError(w, r, err)
		return auth.Session{}, false
	}
	return session, true
}

func (s *Server) withRateLimit(limiter ratelimit.Limiter, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r)
			return
		}
		decision := limiter.Allow(r.Context(), util.ClientIP(r, s.proxies))
		if !decision.Allowed {
			retry := int(decision.RetryAfter.Round(time.Second) / time.Second)
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			writeAppError(w, r, app.ErrRateLimited)
			return
		}
		next(w, r)
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.app.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    res.Token,
		Path:     "/",
		Expires:  res.ExpiresAt,
		MaxAge:   int(s.app.SessionTTL() / time.Second),
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	writeData(w, http.StatusOK, res)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, session auth.Session) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	if err := s.app.Logout(r.Context(), session); err != nil {
		writeAppError(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	writeData(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func sessionToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		return token, token != ""
	}
	if c, err := r.Cookie(SessionCookie); err == nil && strings.TrimSpace(c.Value) != "" {
		return strings.TrimSpace(c.Value), true
	}
	return "", false
}

// detached keeps request values (logger, request id) but not the client's cancellation.
func detached(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

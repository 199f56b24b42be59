package server

import (
	"errors"
	"net/http"
	"strings"

	"citefleurie/internal/util"
	"citefleurie/pkg/auth"
	"citefleurie/pkg/domain"
	"citefleurie/services/site/internal/app"
)

// multipart framing allowance on top of the file limit
const multipartOverhead = 1 << 20

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type openingHourUpdate struct {
	ID string `json:"id"`
	domain.OpeningHourPatch
}

type resetRequest struct {
	Confirm bool `json:"confirm"`
}

// /menu: GET public list, POST and DELETE admin.
func (s *Server) handleMenu(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		assets, err := s.app.ListMenus(r.Context())
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, assets)
	case http.MethodPost:
		if _, ok := s.authorize(w, r); ok {
			s.handleUploadMenu(w, r)
		}
	case http.MethodDelete:
		if _, ok := s.authorize(w, r); !ok {
			return
		}
		if err := s.app.DeleteMenu(detached(r.Context()), r.URL.Query().Get("id")); err != nil {
			writeAppError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w, r)
	}
}

func (s *Server) handleUploadMenu(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.app.MaxUploadBytes()+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid form data")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", "file is required (field: file)")
		return
	}
	defer file.Close()

	asset, err := s.app.CreateMenu(detached(r.Context()), app.MenuUpload{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, asset)
}

// /menu-url?id= or ?key=: a fresh short-lived link, never cached.
func (s *Server) handleMenuURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	q := r.URL.Query()
	access, err := s.app.MenuAccessURL(r.Context(), q.Get("id"), q.Get("key"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeData(w, http.StatusOK, access)
}

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	var req app.ContactSubmission
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ClientIP = util.ClientIP(r, s.proxies)
	req.UserAgent = r.UserAgent()

	msg, err := s.app.SubmitContact(detached(r.Context()), req)
	if errors.Is(err, app.ErrEmail) {
		writeAppErrorWithData(w, r, err, map[string]string{"id": msg.ID})
		return
	}
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"id": msg.ID})
}

// /opening-hours: GET public (seeding the defaults first), writes admin.
func (s *Server) handleOpeningHours(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		if _, err := s.app.InitializeDefaults(r.Context()); err != nil {
			writeAppError(w, r, err)
			return
		}
		hours, err := s.app.ListOpeningHours(r.Context())
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, hours)
		return
	}
	if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodDelete {
		methodNotAllowed(w, r)
		return
	}
	if _, ok := s.authorize(w, r); !ok {
		return
	}
	switch r.Method {
	case http.MethodPost:
		var entry domain.OpeningHour
		if !decodeJSON(w, r, &entry) {
			return
		}
		created, err := s.app.CreateOpeningHour(r.Context(), entry)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeData(w, http.StatusCreated, created)
	case http.MethodPut:
		var req openingHourUpdate
		if !decodeJSON(w, r, &req) {
			return
		}
		id := req.ID
		if id == "" {
			id = r.URL.Query().Get("id")
		}
		updated, err := s.app.UpdateOpeningHour(r.Context(), id, req.OpeningHourPatch)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, updated)
	case http.MethodDelete:
		if err := s.app.DeleteOpeningHour(r.Context(), r.URL.Query().Get("id")); err != nil {
			writeAppError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func (s *Server) handleDuplicates(w http.ResponseWriter, r *http.Request, _ auth.Session) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	report, err := s.app.DetectDuplicates(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, report)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request, session auth.Session) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	var req resetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	hours, err := s.app.ResetOpeningHours(r.Context(), req.Confirm)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	util.LoggerFromContext(r.Context()).Info("opening_hours_reset_by", "subject", session.Subject)
	writeData(w, http.StatusOK, hours)
}

// /settings: GET public, PUT admin.
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		settings, err := s.app.GetSettings(r.Context())
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, settings)
	case http.MethodPut:
		if _, ok := s.authorize(w, r); !ok {
			return
		}
		var req domain.SiteSettings
		if !decodeJSON(w, r, &req) {
			return
		}
		settings, err := s.app.UpdateSettings(r.Context(), req)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, settings)
	default:
		methodNotAllowed(w, r)
	}
}

// /admin/reconcile: GET reports, POST also purges stale orphans.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request, _ auth.Session) {
	var purge bool
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		purge = true
	default:
		methodNotAllowed(w, r)
		return
	}
	if v := strings.TrimSpace(r.URL.Query().Get("purge")); v == "false" {
		purge = false
	}
	report, err := s.app.Reconcile(r.Context(), purge)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, report)
}

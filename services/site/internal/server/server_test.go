package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"citefleurie/internal/ratelimit"
	"citefleurie/pkg/auth"
	"citefleurie/pkg/mailer"
	"citefleurie/pkg/storage"
	"citefleurie/pkg/store"
	"citefleurie/services/site/internal/app"
)

const (
	adminEmail    = "admin@example.com"
	adminPassword = "s3cret-admin-password"
	sessionSecret = "0123456789abcdef0123456789abcdef"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type harness struct {
	srv    *httptest.Server
	store  *store.MemoryStore
	mailer *fakeMailer
	redis  *miniredis.Miniredis
}

func newHarness(t *testing.T, contactPerMinute int) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	contactLimiter, err := ratelimit.NewRedisLimiter(client, "contact", ratelimit.Rule{Limit: contactPerMinute, Window: time.Minute})
	if err != nil {
		t.Fatalf("contact limiter: %v", err)
	}
	loginLimiter, err := ratelimit.NewRedisLimiter(client, "login", ratelimit.Rule{Limit: 20, Window: time.Minute})
	if err != nil {
		t.Fatalf("login limiter: %v", err)
	}
	hash, err := auth.HashPassword(adminPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	sessions, err := auth.NewSessionManager(sessionSecret, time.Hour, auth.NewRedisRevoker(client))
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}

	h := &harness{store: store.NewMemoryStore(), mailer: &fakeMailer{}, redis: mr}
	var handler http.Handler
	h.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(h.srv.Close)
	objects := storage.NewMemoryObjectStore(h.srv.URL + "/objects")

	core, err := app.New(app.Config{
		Store:             h.store,
		Objects:           objects,
		Mailer:            h.mailer,
		Sessions:          sessions,
		AdminEmail:        adminEmail,
		AdminPasswordHash: hash,
		ContactEmail:      "owner@example.com",
		MailFrom:          "site@example.com",
		SiteName:          "La Cité Fleurie",
	})
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	s, err := New(Config{
		App:            core,
		ContactLimiter: contactLimiter,
		LoginLimiter:   loginLimiter,
		ObjectHandler:  objects,
	})
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	handler = s.Router()
	return h
}

type envelopeBody struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
	Code      string          `json:"code"`
	RequestID string          `json:"requestId"`
}

func (h *harness) do(t *testing.T, method, path, token string, body io.Reader, contentType string) (*http.Response, envelopeBody) {
	t.Helper()
	req, err := http.NewRequest(method, h.srv.URL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var env envelopeBody
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("%s %s: decode envelope: %v", method, path, err)
	}
	return resp, env
}

func (h *harness) doJSON(t *testing.T, method, path, token string, payload any) (*http.Response, envelopeBody) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return h.do(t, method, path, token, bytes.NewReader(raw), "application/json")
}

func (h *harness) login(t *testing.T) string {
	t.Helper()
	resp, env := h.doJSON(t, http.MethodPost, "/auth/login", "", map[string]string{"email": adminEmail, "password": adminPassword})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status %d: %s", resp.StatusCode, env.Error)
	}
	var res struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(env.Data, &res); err != nil || res.Token == "" {
		t.Fatalf("login token: %v", err)
	}
	return res.Token
}

func multipartMenu(t *testing.T, title, fileName, contentType string, data []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("title", title); err != nil {
		t.Fatalf("write field: %v", err)
	}
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+fileName+`"`)
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestHealthz(t *testing.T) {
	h := newHarness(t, 5)
	resp, err := http.Get(h.srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("X-Request-Id") == "" {
		t.Fatalf("status %d, request id %q", resp.StatusCode, resp.Header.Get("X-Request-Id"))
	}
}

func TestMenuEndpointsScenario(t *testing.T) {
	h := newHarness(t, 5)
	payload := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("x"), 1<<20)...)

	body, ct := multipartMenu(t, "Menu du jour", "menu.pdf", "application/pdf", payload)
	if resp, env := h.do(t, http.MethodPost, "/menu", "", body, ct); resp.StatusCode != http.StatusUnauthorized || env.Code != "AUTH_INVALID_TOKEN" {
		t.Fatalf("anonymous upload: status %d code %q", resp.StatusCode, env.Code)
	}

	token := h.login(t)
	body, ct = multipartMenu(t, "Menu du jour", "menu.pdf", "application/pdf", payload)
	resp, env := h.do(t, http.MethodPost, "/menu", token, body, ct)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload status %d: %s", resp.StatusCode, env.Error)
	}
	var created struct {
		ID          string `json:"id"`
		ContentType string `json:"contentType"`
	}
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("decode created: %v", err)
	}

	resp, env = h.do(t, http.MethodGet, "/menu", "", nil, "")
	var list []struct {
		ID          string `json:"id"`
		Title       string `json:"title"`
		ContentType string `json:"contentType"`
	}
	if err := json.Unmarshal(env.Data, &list); err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("list: status %d err %v", resp.StatusCode, err)
	}
	if len(list) != 1 || list[0].Title != "Menu du jour" || list[0].ContentType != "application/pdf" {
		t.Fatalf("unexpected list %+v", list)
	}

	resp, env = h.do(t, http.MethodGet, "/menu-url?id="+created.ID, "", nil, "")
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Cache-Control") != "no-store" {
		t.Fatalf("menu-url status %d cache %q", resp.StatusCode, resp.Header.Get("Cache-Control"))
	}
	var access struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(env.Data, &access); err != nil {
		t.Fatalf("decode access: %v", err)
	}
	fileResp, err := http.Get(access.URL)
	if err != nil {
		t.Fatalf("fetch signed url: %v", err)
	}
	got, _ := io.ReadAll(fileResp.Body)
	fileResp.Body.Close()
	if fileResp.StatusCode != http.StatusOK || !bytes.Equal(got, payload) {
		t.Fatalf("signed url returned status %d, %d bytes", fileResp.StatusCode, len(got))
	}

	if resp, _ := h.do(t, http.MethodDelete, "/menu?id="+created.ID, token, nil, ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status %d", resp.StatusCode)
	}
	_, env = h.do(t, http.MethodGet, "/menu", "", nil, "")
	if err := json.Unmarshal(env.Data, &list); err != nil || len(list) != 0 {
		t.Fatalf("expected empty list after delete, got %+v (%v)", list, err)
	}
	if resp, env := h.do(t, http.MethodGet, "/menu-url?id="+created.ID, "", nil, ""); resp.StatusCode != http.StatusNotFound || env.Success {
		t.Fatalf("menu-url after delete: status %d", resp.StatusCode)
	}
}

func TestMenuUploadValidation(t *testing.T) {
	h := newHarness(t, 5)
	token := h.login(t)

	body, ct := multipartMenu(t, "Menu", "notes.txt", "text/plain", []byte("hello"))
	resp, env := h.do(t, http.MethodPost, "/menu", token, body, ct)
	if resp.StatusCode != http.StatusBadRequest || env.Code != "VALIDATION_FAILED" || env.RequestID == "" {
		t.Fatalf("text upload: status %d code %q request id %q", resp.StatusCode, env.Code, env.RequestID)
	}

	body, ct = multipartMenu(t, "", "menu.pdf", "application/pdf", []byte("%PDF-1.4\n"))
	resp, env = h.do(t, http.MethodPost, "/menu", token, body, ct)
	if resp.StatusCode != http.StatusBadRequest || env.Error != "title is required" {
		t.Fatalf("untitled upload: status %d (%s)", resp.StatusCode, env.Error)
	}
	if n, _ := h.store.CountMenuAssets(context.Background()); n != 0 {
		t.Fatalf("rejected uploads created %d records", n)
	}
}

func TestContactEndpoint(t *testing.T) {
	h := newHarness(t, 2)
	msg := map[string]string{"name": "Ana", "email": "ana@example.com", "message": "Bonjour"}

	resp, env := h.doJSON(t, http.MethodPost, "/contact-email", "", msg)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("contact status %d: %s", resp.StatusCode, env.Error)
	}
	if len(h.mailer.sent) != 2 {
		t.Fatalf("sent %d emails", len(h.mailer.sent))
	}

	resp, env = h.doJSON(t, http.MethodPost, "/contact-email", "", map[string]string{"name": "Ana", "message": "x"})
	if resp.StatusCode != http.StatusBadRequest || env.Code != "VALIDATION_FAILED" {
		t.Fatalf("missing email: status %d code %q", resp.StatusCode, env.Code)
	}

	resp, env = h.doJSON(t, http.MethodPost, "/contact-email", "", msg)
	if resp.StatusCode != http.StatusTooManyRequests || resp.Header.Get("Retry-After") == "" {
		t.Fatalf("expected rate limit, got %d (%s)", resp.StatusCode, env.Code)
	}
}

func TestContactEndpointRelayDown(t *testing.T) {
	h := newHarness(t, 5)
	h.mailer.err = errors.New("connection refused")

	resp, env := h.doJSON(t, http.MethodPost, "/contact-email", "", map[string]string{"name": "Ana", "email": "ana@example.com", "message": "Bonjour"})
	if resp.StatusCode != http.StatusBadGateway || env.Code != "EMAIL_FAILED" {
		t.Fatalf("status %d code %q", resp.StatusCode, env.Code)
	}
	if strings.Contains(env.Error, "connection refused") {
		t.Fatal("relay error leaked to the client")
	}
	var data struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.ID == "" {
		t.Fatalf("expected recorded id in response: %v", err)
	}
	if _, ok, _ := h.store.GetContactMessage(context.Background(), data.ID); !ok {
		t.Fatal("message not recorded")
	}
}

func TestContactEndpointFailsClosedWithoutRedis(t *testing.T) {
	h := newHarness(t, 5)
	h.redis.Close()
	resp, _ := h.doJSON(t, http.MethodPost, "/contact-email", "", map[string]string{"name": "Ana", "email": "ana@example.com", "message": "Bonjour"})
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status %d, want 429", resp.StatusCode)
	}
}

func TestOpeningHoursEndpoints(t *testing.T) {
	h := newHarness(t, 5)

	resp, env := h.do(t, http.MethodGet, "/opening-hours", "", nil, "")
	var hours []struct {
		ID        string `json:"id"`
		DayOfWeek string `json:"dayOfWeek"`
	}
	if err := json.Unmarshal(env.Data, &hours); err != nil || resp.StatusCode != http.StatusOK || len(hours) != 7 {
		t.Fatalf("list: status %d, %d entries, err %v", resp.StatusCode, len(hours), err)
	}
	if hours[0].DayOfWeek != "Lundi" {
		t.Fatalf("first day %q", hours[0].DayOfWeek)
	}

	if resp, _ := h.doJSON(t, http.MethodPut, "/opening-hours", "", map[string]any{"id": hours[0].ID, "closeTime": "15:00"}); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous update: status %d", resp.StatusCode)
	}
	token := h.login(t)
	resp, env = h.doJSON(t, http.MethodPut, "/opening-hours", token, map[string]any{"id": hours[0].ID, "closeTime": "15:00"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status %d: %s", resp.StatusCode, env.Error)
	}

	if resp, _ := h.doJSON(t, http.MethodPost, "/opening-hours", token, map[string]any{"dayOfWeek": "Lundi", "isOpen": false}); resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d", resp.StatusCode)
	}
	_, env = h.do(t, http.MethodGet, "/opening-hours/duplicates", token, nil, "")
	var report struct {
		Total         int  `json:"total"`
		HasDuplicates bool `json:"hasDuplicates"`
	}
	if err := json.Unmarshal(env.Data, &report); err != nil || !report.HasDuplicates || report.Total != 8 {
		t.Fatalf("duplicates report %+v (%v)", report, err)
	}

	if resp, _ := h.doJSON(t, http.MethodPost, "/opening-hours/reset", token, map[string]bool{"confirm": false}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unconfirmed reset: status %d", resp.StatusCode)
	}
	resp, env = h.doJSON(t, http.MethodPost, "/opening-hours/reset", token, map[string]bool{"confirm": true})
	if err := json.Unmarshal(env.Data, &hours); err != nil || resp.StatusCode != http.StatusOK || len(hours) != 7 {
		t.Fatalf("reset: status %d, %d entries", resp.StatusCode, len(hours))
	}
}

func TestSettingsEndpoints(t *testing.T) {
	h := newHarness(t, 5)
	_, env := h.do(t, http.MethodGet, "/settings", "", nil, "")
	var settings struct {
		Phone            string `json:"phone"`
		PhoneLink        string `json:"phoneLink"`
		AnnouncementText string `json:"announcementText"`
	}
	if err := json.Unmarshal(env.Data, &settings); err != nil || settings.PhoneLink != "tel:+41227930350" {
		t.Fatalf("default settings %+v (%v)", settings, err)
	}

	token := h.login(t)
	resp, env := h.doJSON(t, http.MethodPut, "/settings", token, map[string]any{
		"phone":              "022 793 03 51",
		"contactEmail":       "hello@example.com",
		"announcementText":   "<p>Fermé lundi</p>",
		"announcementActive": true,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status %d: %s", resp.StatusCode, env.Error)
	}
	_, env = h.do(t, http.MethodGet, "/settings", "", nil, "")
	if err := json.Unmarshal(env.Data, &settings); err != nil || settings.AnnouncementText != "Fermé lundi" || settings.Phone != "022 793 03 51" {
		t.Fatalf("updated settings %+v (%v)", settings, err)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	h := newHarness(t, 5)
	token := h.login(t)
	if resp, _ := h.do(t, http.MethodGet, "/admin/reconcile", token, nil, ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("reconcile status %d", resp.StatusCode)
	}
	if resp, _ := h.do(t, http.MethodPost, "/auth/logout", token, nil, ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("logout status %d", resp.StatusCode)
	}
	if resp, _ := h.do(t, http.MethodGet, "/admin/reconcile", token, nil, ""); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("revoked token status %d", resp.StatusCode)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	h := newHarness(t, 5)
	resp, env := h.doJSON(t, http.MethodPost, "/auth/login", "", map[string]string{"email": adminEmail, "password": "nope"})
	if resp.StatusCode != http.StatusUnauthorized || env.Success {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

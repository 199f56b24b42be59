package storage

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type memoryObject struct {
	data         []byte
	contentType  string
	lastModified time.Time
}

// MemoryObjectStore keeps objects in-process and serves its own signed URLs.
// Used for local development and tests; mount it under the path of baseURL.
type MemoryObjectStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject

	baseURL  string
	basePath string
	secret   []byte
	seq      atomic.Uint64
	now      func() time.Time
}

// NewMemoryObjectStore builds a store whose signed URLs start with baseURL.
func NewMemoryObjectStore(baseURL string) *MemoryObjectStore {
	baseURL = strings.TrimRight(baseURL, "/")
	basePath := ""
	if u, err := url.Parse(baseURL); err == nil {
		basePath = u.Path
	}
	secret := make([]byte, 32)
	_, _ = rand.Read(secret)
	return &MemoryObjectStore{
		objects:  make(map[string]memoryObject),
		baseURL:  baseURL,
		basePath: basePath,
		secret:   secret,
		now:      time.Now,
	}
}

// SetClock overrides the time source used for signing and expiry checks.
func (m *MemoryObjectStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

func (m *MemoryObjectStore) clock() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now()
}

// Put stores a copy of the reader's content.
func (m *MemoryObjectStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read object: %w", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("put object: size mismatch: got %d want %d", len(data), size)
	}
	m.mu.Lock()
	m.objects[key] = memoryObject{data: data, contentType: contentType, lastModified: m.now().UTC()}
	m.mu.Unlock()
	return nil
}

// Stat returns object metadata or ErrObjectNotFound.
func (m *MemoryObjectStore) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, err
	}
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return ObjectInfo{}, fmt.Errorf("stat %s: %w", key, ErrObjectNotFound)
	}
	return ObjectInfo{Key: key, Size: int64(len(obj.data)), ContentType: obj.contentType, LastModified: obj.lastModified}, nil
}

// PresignGet returns a URL carrying an expiry and an HMAC over key, expiry and a nonce.
func (m *MemoryObjectStore) PresignGet(ctx context.Context, key string, expiry time.Duration, fileName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	expires := strconv.FormatInt(m.clock().Add(expiry).Unix(), 10)
	nonce := strconv.FormatUint(m.seq.Add(1), 10)
	q := url.Values{}
	q.Set("expires", expires)
	q.Set("n", nonce)
	if disposition := inlineDisposition(fileName); disposition != "" {
		q.Set("response-content-disposition", disposition)
	}
	q.Set("sig", m.sign(key, expires, nonce))
	return m.baseURL + "/" + key + "?" + q.Encode(), nil
}

// Delete removes an object; a missing key reports ErrObjectNotFound.
func (m *MemoryObjectStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return fmt.Errorf("delete %s: %w", key, ErrObjectNotFound)
	}
	delete(m.objects, key)
	return nil
}

// List returns objects under prefix sorted by key.
func (m *MemoryObjectStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := make([]ObjectInfo, 0, len(m.objects))
	for key, obj := range m.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		out = append(out, ObjectInfo{Key: key, Size: int64(len(obj.data)), ContentType: obj.contentType, LastModified: obj.lastModified})
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// ServeHTTP serves objects behind a valid, unexpired signature.
func (m *MemoryObjectStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	key := strings.TrimPrefix(r.URL.Path, m.basePath+"/")
	q := r.URL.Query()
	expires, nonce, sig := q.Get("expires"), q.Get("n"), q.Get("sig")
	if !hmac.Equal([]byte(sig), []byte(m.sign(key, expires, nonce))) {
		http.Error(w, "signature mismatch", http.StatusForbidden)
		return
	}
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil || m.clock().Unix() > exp {
		http.Error(w, "request has expired", http.StatusForbidden)
		return
	}
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		http.Error(w, "no such key", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", obj.contentType)
	if disposition := q.Get("response-content-disposition"); disposition != "" {
		w.Header().Set("Content-Disposition", disposition)
	}
	http.ServeContent(w, r, "", obj.lastModified, bytes.NewReader(obj.data))
}

func (m *MemoryObjectStore) sign(key, expires, nonce string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(key + "\n" + expires + "\n" + nonce))
	return hex.EncodeToString(mac.Sum(nil))
}

package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"citefleurie/internal/util"
	"citefleurie/pkg/domain"
	"citefleurie/pkg/storage"
)

const menuKeyPrefix = "menus/"

// MenuUpload is the input of CreateMenu.
type MenuUpload struct {
	Title       string
	Description string
	FileName    string
	ContentType string
	Body        io.Reader
}

// MenuAccess is a freshly signed, short-lived link to a menu file.
type MenuAccess struct {
	URL       string            `json:"url"`
	ExpiresAt time.Time         `json:"expiresAt"`
	FileName  string            `json:"fileName"`
	Render    domain.RenderKind `json:"render"`
}

// CreateMenu uploads the file, then records it. The two writes are not
// atomic: if the record write fails the object stays behind and is logged
// as menu_object_orphaned for the reconciliation sweep.
func (a *App) CreateMenu(ctx context.Context, in MenuUpload) (domain.MenuAsset, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return domain.MenuAsset{}, validationf("title is required")
	}
	if in.Body == nil {
		return domain.MenuAsset{}, validationf("file is required")
	}
	data, err := io.ReadAll(io.LimitReader(in.Body, a.maxUploadBytes+1))
	if err != nil {
		return domain.MenuAsset{}, validationf("could not read file")
	}
	if int64(len(data)) > a.maxUploadBytes {
		return domain.MenuAsset{}, validationf("file too large (max %d bytes)", a.maxUploadBytes)
	}
	if len(data) == 0 {
		return domain.MenuAsset{}, validationf("file is empty")
	}
	contentType, ok := menuContentType(in.ContentType, data)
	if !ok {
		return domain.MenuAsset{}, validationf("unsupported file type: only PDF and images are accepted")
	}

	now := a.now().UTC()
	fileName := filepath.Base(strings.TrimSpace(in.FileName))
	if fileName == "." || fileName == "/" {
		fileName = ""
	}
	key := buildMenuKey(now, fileName)
	logger := util.LoggerFromContext(ctx).With("storage_key", key)

	putCtx, cancel := a.bounded(ctx)
	err = a.objects.Put(putCtx, key, bytes.NewReader(data), int64(len(data)), contentType)
	cancel()
	if err != nil {
		return domain.MenuAsset{}, storageErr("upload failed", err)
	}

	countCtx, cancel := a.bounded(ctx)
	order, err := a.store.CountMenuAssets(countCtx)
	cancel()
	if err != nil {
		logger.Error("menu_object_orphaned", "stage", "count", "err", err)
		return domain.MenuAsset{}, storageErr("could not record menu", err)
	}

	asset := domain.MenuAsset{
		Title:        title,
		Description:  strings.TrimSpace(in.Description),
		StorageKey:   key,
		FileName:     fileName,
		ContentType:  contentType,
		SizeBytes:    int64(len(data)),
		DisplayOrder: order,
		CreatedAt:    now,
	}
	if contentType == "application/pdf" {
		asset.PageCount = pdfPageCount(data)
	}

	createCtx, cancel := a.bounded(ctx)
	saved, err := a.store.CreateMenuAsset(createCtx, asset)
	cancel()
	if err != nil {
		logger.Error("menu_object_orphaned", "stage", "record", "err", err)
		return domain.MenuAsset{}, storageErr("could not record menu", err)
	}
	logger.Info("menu_created", "menu_id", saved.ID, "content_type", contentType, "bytes", len(data))
	return saved, nil
}

// ListMenus returns every menu asset ordered by display order.
func (a *App) ListMenus(ctx context.Context) ([]domain.MenuAsset, error) {
	ctx, cancel := a.bounded(ctx)
	defer cancel()
	assets, err := a.store.ListMenuAssets(ctx)
	if err != nil {
		return nil, storageErr("could not list menus", err)
	}
	return assets, nil
}

// MenuAccessURL signs a fresh URL for the asset identified by id or, when id
// is empty, by storage key. Only keys of recorded assets are signed.
func (a *App) MenuAccessURL(ctx context.Context, id, key string) (MenuAccess, error) {
	asset, err := a.lookupMenu(ctx, strings.TrimSpace(id), strings.TrimSpace(key))
	if err != nil {
		return MenuAccess{}, err
	}

	statCtx, cancel := a.bounded(ctx)
	_, err = a.objects.Stat(statCtx, asset.StorageKey)
	cancel()
	if errors.Is(err, storage.ErrObjectNotFound) {
		return MenuAccess{}, notFound("link generation failed: file no longer exists")
	}
	if err != nil {
		return MenuAccess{}, storageErr("link generation failed", err)
	}

	expiresAt := a.now().UTC().Add(a.signedURLTTL)
	signCtx, cancel := a.bounded(ctx)
	url, err := a.objects.PresignGet(signCtx, asset.StorageKey, a.signedURLTTL, asset.FileName)
	cancel()
	if err != nil {
		return MenuAccess{}, storageErr("link generation failed", err)
	}
	return MenuAccess{
		URL:       url,
		ExpiresAt: expiresAt,
		FileName:  asset.FileName,
		Render:    asset.Render(),
	}, nil
}

func (a *App) lookupMenu(ctx context.Context, id, key string) (domain.MenuAsset, error) {
	if id == "" && key == "" {
		return domain.MenuAsset{}, validationf("id or key is required")
	}
	ctx, cancel := a.bounded(ctx)
	defer cancel()
	var (
		asset domain.MenuAsset
		ok    bool
		err   error
	)
	if id != "" {
		asset, ok, err = a.store.GetMenuAsset(ctx, id)
	} else {
		asset, ok, err = a.store.GetMenuAssetByKey(ctx, key)
	}
	if err != nil {
		return domain.MenuAsset{}, storageErr("could not load menu", err)
	}
	if !ok {
		return domain.MenuAsset{}, notFound("menu not found")
	}
	return asset, nil
}

// DeleteMenu removes the object best-effort, then the record. Only the record
// delete decides the outcome. An id with no record is a no-op success.
func (a *App) DeleteMenu(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return validationf("id is required")
	}
	getCtx, cancel := a.bounded(ctx)
	asset, ok, err := a.store.GetMenuAsset(getCtx, id)
	cancel()
	if err != nil {
		return storageErr("could not load menu", err)
	}
	if !ok {
		return nil
	}
	logger := util.LoggerFromContext(ctx).With("menu_id", id, "storage_key", asset.StorageKey)

	// Step 1: object, best-effort.
	if asset.StorageKey != "" {
		objCtx, cancel := a.bounded(ctx)
		err := a.objects.Delete(objCtx, asset.StorageKey)
		cancel()
		if err != nil {
			logger.Warn("menu_object_delete_failed", "err", err)
		}
	}

	// Step 2: record, authoritative.
	recCtx, cancel := a.bounded(ctx)
	_, err = a.store.DeleteMenuAsset(recCtx, id)
	cancel()
	if err != nil {
		return storageErr("could not delete menu", err)
	}
	logger.Info("menu_deleted")
	return nil
}

// menuContentType returns the normalized type when it is a PDF or a raster
// image. A missing or generic declared type falls back to sniffing.
func menuContentType(declared string, data []byte) (string, bool) {
	mediaType := ""
	if declared = strings.TrimSpace(declared); declared != "" {
		if parsed, _, err := mime.ParseMediaType(declared); err == nil {
			mediaType = strings.ToLower(parsed)
		}
	}
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType, _, _ = mime.ParseMediaType(http.DetectContentType(data))
	}
	switch {
	case mediaType == "application/pdf":
		return mediaType, true
	case mediaType == "image/svg+xml":
		return "", false
	case strings.HasPrefix(mediaType, "image/"):
		return mediaType, true
	default:
		return "", false
	}
}

func buildMenuKey(now time.Time, fileName string) string {
	name := sanitizeFilename(fileName)
	if name == "" {
		name = "menu"
	}
	return fmt.Sprintf("%s%d-%s_%s", menuKeyPrefix, now.UnixMilli(), uuid.NewString()[:8], name)
}

// sanitizeFilename keeps [A-Za-z0-9._-] and folds every other run into one underscore.
func sanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	for _, r := range strings.TrimSpace(name) {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '_' {
			b.WriteRune(r)
			lastUnderscore = r == '_'
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	// no leading dots: ".." must never survive as a path segment
	return strings.TrimRight(strings.TrimLeft(b.String(), "._"), "_")
}

// pdfPageCount returns 0 when the document cannot be parsed.
func pdfPageCount(data []byte) (pages int) {
	defer func() {
		if recover() != nil {
			pages = 0
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0
	}
	return reader.NumPage()
}

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"citefleurie/pkg/domain"
)

// MemoryStore keeps records in-process. It backs local development
// (databaseURL "memory") and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	assets   map[string]domain.MenuAsset
	hours    map[string]domain.OpeningHour
	messages map[string]domain.ContactMessage
	settings *domain.SiteSettings
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assets:   make(map[string]domain.MenuAsset),
		hours:    make(map[string]domain.OpeningHour),
		messages: make(map[string]domain.ContactMessage),
	}
}

// CreateMenuAsset stores a record, assigning its ID.
func (m *MemoryStore) CreateMenuAsset(ctx context.Context, asset domain.MenuAsset) (domain.MenuAsset, error) {
	if err := ctx.Err(); err != nil {
		return domain.MenuAsset{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.assets {
		if existing.StorageKey == asset.StorageKey {
			return domain.MenuAsset{}, fmt.Errorf("storage key %q already recorded", asset.StorageKey)
		}
	}
	if asset.ID == "" {
		asset.ID = uuid.NewString()
	}
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = time.Now().UTC()
	}
	m.assets[asset.ID] = asset
	return asset, nil
}

// ListMenuAssets returns assets ordered by display order, then creation time.
func (m *MemoryStore) ListMenuAssets(ctx context.Context) ([]domain.MenuAsset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	res := make([]domain.MenuAsset, 0, len(m.assets))
	for _, a := range m.assets {
		res = append(res, a)
	}
	m.mu.RUnlock()
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].DisplayOrder != res[j].DisplayOrder {
			return res[i].DisplayOrder < res[j].DisplayOrder
		}
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})
	return res, nil
}

// GetMenuAsset retrieves an asset by ID.
func (m *MemoryStore) GetMenuAsset(ctx context.Context, id string) (domain.MenuAsset, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.MenuAsset{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assets[id]
	return a, ok, nil
}

// GetMenuAssetByKey retrieves an asset by storage key.
func (m *MemoryStore) GetMenuAssetByKey(ctx context.Context, storageKey string) (domain.MenuAsset, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.MenuAsset{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.assets {
		if a.StorageKey == storageKey {
			return a, true, nil
		}
	}
	return domain.MenuAsset{}, false, nil
}

// CountMenuAssets returns the number of assets.
func (m *MemoryStore) CountMenuAssets(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.assets), nil
}

// DeleteMenuAsset removes a record and reports whether it existed.
func (m *MemoryStore) DeleteMenuAsset(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.assets[id]; !ok {
		return false, nil
	}
	delete(m.assets, id)
	return true, nil
}

// ListOpeningHours returns entries ordered by display order.
func (m *MemoryStore) ListOpeningHours(ctx context.Context) ([]domain.OpeningHour, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	res := make([]domain.OpeningHour, 0, len(m.hours))
	for _, h := range m.hours {
		res = append(res, h)
	}
	m.mu.RUnlock()
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].DisplayOrder != res[j].DisplayOrder {
			return res[i].DisplayOrder < res[j].DisplayOrder
		}
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})
	return res, nil
}

// GetOpeningHour retrieves one entry.
func (m *MemoryStore) GetOpeningHour(ctx context.Context, id string) (domain.OpeningHour, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.OpeningHour{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.hours[id]
	return h, ok, nil
}

// CreateOpeningHour inserts one entry.
func (m *MemoryStore) CreateOpeningHour(ctx context.Context, entry domain.OpeningHour) (domain.OpeningHour, error) {
	if err := ctx.Err(); err != nil {
		return domain.OpeningHour{}, err
	}
	entry = stampOpeningHour(entry, time.Now().UTC())
	m.mu.Lock()
	m.hours[entry.ID] = entry
	m.mu.Unlock()
	return entry, nil
}

// UpdateOpeningHour applies a partial update.
func (m *MemoryStore) UpdateOpeningHour(ctx context.Context, id string, patch domain.OpeningHourPatch, updatedAt time.Time) (domain.OpeningHour, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.OpeningHour{}, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.hours[id]
	if !ok {
		return domain.OpeningHour{}, false, nil
	}
	entry = applyOpeningHourPatch(entry, patch, updatedAt)
	m.hours[id] = entry
	return entry, true, nil
}

// DeleteOpeningHour removes one entry.
func (m *MemoryStore) DeleteOpeningHour(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.hours[id]; !ok {
		return false, nil
	}
	delete(m.hours, id)
	return true, nil
}

// CountOpeningHours returns the number of entries.
func (m *MemoryStore) CountOpeningHours(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.hours), nil
}

// SeedOpeningHours inserts entries when there are none.
func (m *MemoryStore) SeedOpeningHours(ctx context.Context, entries []domain.OpeningHour) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.hours) > 0 {
		return false, nil
	}
	m.insertHoursLocked(entries)
	return true, nil
}

// ReplaceOpeningHours swaps all entries for entries.
func (m *MemoryStore) ReplaceOpeningHours(ctx context.Context, entries []domain.OpeningHour) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hours = make(map[string]domain.OpeningHour, len(entries))
	m.insertHoursLocked(entries)
	return nil
}

func (m *MemoryStore) insertHoursLocked(entries []domain.OpeningHour) {
	now := time.Now().UTC()
	for _, entry := range entries {
		entry = stampOpeningHour(entry, now)
		m.hours[entry.ID] = entry
	}
}

// SaveContactMessage stores a message, assigning its ID.
func (m *MemoryStore) SaveContactMessage(ctx context.Context, msg domain.ContactMessage) (domain.ContactMessage, error) {
	if err := ctx.Err(); err != nil {
		return domain.ContactMessage{}, err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	m.messages[msg.ID] = msg
	m.mu.Unlock()
	return msg, nil
}

// GetContactMessage retrieves a message by ID.
func (m *MemoryStore) GetContactMessage(ctx context.Context, id string) (domain.ContactMessage, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.ContactMessage{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg, ok := m.messages[id]
	return msg, ok, nil
}

// ContactMessageCount returns the number of stored messages.
func (m *MemoryStore) ContactMessageCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages)
}

// GetSiteSettings returns the settings if saved.
func (m *MemoryStore) GetSiteSettings(ctx context.Context) (domain.SiteSettings, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.SiteSettings{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.settings == nil {
		return domain.SiteSettings{}, false, nil
	}
	return *m.settings, true, nil
}

// SaveSiteSettings replaces the settings.
func (m *MemoryStore) SaveSiteSettings(ctx context.Context, settings domain.SiteSettings) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.settings = &settings
	m.mu.Unlock()
	return nil
}

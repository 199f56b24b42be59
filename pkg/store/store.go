package store

import (
	"context"
	"time"

	"citefleurie/pkg/domain"
)

// Store defines persistence for menu assets, opening hours, contact messages
// and site settings. Each method is one independent write or read; nothing
// spans the object store.
type Store interface {
	// menu assets
	CreateMenuAsset(ctx context.Context, asset domain.MenuAsset) (domain.MenuAsset, error)
	ListMenuAssets(ctx context.Context) ([]domain.MenuAsset, error)
	GetMenuAsset(ctx context.Context, id string) (domain.MenuAsset, bool, error)
	GetMenuAssetByKey(ctx context.Context, storageKey string) (domain.MenuAsset, bool, error)
	CountMenuAssets(ctx context.Context) (int, error)
	DeleteMenuAsset(ctx context.Context, id string) (bool, error)

	// opening hours
	ListOpeningHours(ctx context.Context) ([]domain.OpeningHour, error)
	GetOpeningHour(ctx context.Context, id string) (domain.OpeningHour, bool, error)
	CreateOpeningHour(ctx context.Context, entry domain.OpeningHour) (domain.OpeningHour, error)
	UpdateOpeningHour(ctx context.Context, id string, patch domain.OpeningHourPatch, updatedAt time.Time) (domain.OpeningHour, bool, error)
	DeleteOpeningHour(ctx context.Context, id string) (bool, error)
	CountOpeningHours(ctx context.Context) (int, error)
	// SeedOpeningHours inserts entries only when the collection is empty and
	// reports whether it did.
	SeedOpeningHours(ctx context.Context, entries []domain.OpeningHour) (bool, error)
	// ReplaceOpeningHours deletes every entry and inserts entries in one transaction.
	ReplaceOpeningHours(ctx context.Context, entries []domain.OpeningHour) error

	// contact messages
	SaveContactMessage(ctx context.Context, msg domain.ContactMessage) (domain.ContactMessage, error)
	GetContactMessage(ctx context.Context, id string) (domain.ContactMessage, bool, error)

	// site settings
	GetSiteSettings(ctx context.Context) (domain.SiteSettings, bool, error)
	SaveSiteSettings(ctx context.Context, settings domain.SiteSettings) error
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"citefleurie/pkg/domain"
)

const migrateLockID int64 = 51213001

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&MenuAssetModel{}, &OpeningHourModel{}, &ContactMessageModel{}, &SiteSettingsModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// withMigrationLock serialises migrations across replicas with a Postgres advisory lock.
func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// CreateMenuAsset inserts a record, assigning its ID.
func (s *GormStore) CreateMenuAsset(ctx context.Context, asset domain.MenuAsset) (domain.MenuAsset, error) {
	if asset.ID == "" {
		asset.ID = uuid.NewString()
	}
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = time.Now().UTC()
	}
	model := menuAssetToModel(asset)
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.MenuAsset{}, err
	}
	return menuAssetFromModel(model), nil
}

// ListMenuAssets returns every asset ordered by display order.
func (s *GormStore) ListMenuAssets(ctx context.Context) ([]domain.MenuAsset, error) {
	var models []MenuAssetModel
	if err := s.db.WithContext(ctx).Order("display_order ASC").Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.MenuAsset, 0, len(models))
	for _, m := range models {
		res = append(res, menuAssetFromModel(m))
	}
	return res, nil
}

// GetMenuAsset retrieves an asset by ID.
func (s *GormStore) GetMenuAsset(ctx context.Context, id string) (domain.MenuAsset, bool, error) {
	return s.firstMenuAsset(ctx, "id = ?", id)
}

// GetMenuAssetByKey retrieves an asset by storage key.
func (s *GormStore) GetMenuAssetByKey(ctx context.Context, storageKey string) (domain.MenuAsset, bool, error) {
	return s.firstMenuAsset(ctx, "storage_key = ?", storageKey)
}

func (s *GormStore) firstMenuAsset(ctx context.Context, query string, arg string) (domain.MenuAsset, bool, error) {
	var model MenuAssetModel
	if err := s.db.WithContext(ctx).First(&model, query, arg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.MenuAsset{}, false, nil
		}
		return domain.MenuAsset{}, false, err
	}
	return menuAssetFromModel(model), true, nil
}

// CountMenuAssets returns the number of assets.
func (s *GormStore) CountMenuAssets(ctx context.Context) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&MenuAssetModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// DeleteMenuAsset removes a record and reports whether it existed.
func (s *GormStore) DeleteMenuAsset(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&MenuAssetModel{}, "id = ?", id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListOpeningHours returns entries ordered by display order.
func (s *GormStore) ListOpeningHours(ctx context.Context) ([]domain.OpeningHour, error) {
	var models []OpeningHourModel
	if err := s.db.WithContext(ctx).Order("display_order ASC").Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.OpeningHour, 0, len(models))
	for _, m := range models {
		res = append(res, openingHourFromModel(m))
	}
	return res, nil
}

// GetOpeningHour retrieves one entry.
func (s *GormStore) GetOpeningHour(ctx context.Context, id string) (domain.OpeningHour, bool, error) {
	var model OpeningHourModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.OpeningHour{}, false, nil
		}
		return domain.OpeningHour{}, false, err
	}
	return openingHourFromModel(model), true, nil
}

// CreateOpeningHour inserts one entry.
func (s *GormStore) CreateOpeningHour(ctx context.Context, entry domain.OpeningHour) (domain.OpeningHour, error) {
	model := openingHourToModel(stampOpeningHour(entry, time.Now().UTC()))
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.OpeningHour{}, err
	}
	return openingHourFromModel(model), nil
}

// UpdateOpeningHour applies a partial update.
func (s *GormStore) UpdateOpeningHour(ctx context.Context, id string, patch domain.OpeningHourPatch, updatedAt time.Time) (domain.OpeningHour, bool, error) {
	res := s.db.WithContext(ctx).Model(&OpeningHourModel{}).Where("id = ?", id).Updates(openingHourUpdates(patch, updatedAt))
	if res.Error != nil {
		return domain.OpeningHour{}, false, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.OpeningHour{}, false, nil
	}
	return s.GetOpeningHour(ctx, id)
}

// DeleteOpeningHour removes one entry.
func (s *GormStore) DeleteOpeningHour(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&OpeningHourModel{}, "id = ?", id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CountOpeningHours returns the number of entries.
func (s *GormStore) CountOpeningHours(ctx context.Context) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&OpeningHourModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// SeedOpeningHours inserts entries when the table is empty.
func (s *GormStore) SeedOpeningHours(ctx context.Context, entries []domain.OpeningHour) (bool, error) {
	seeded := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&OpeningHourModel{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		if err := tx.Create(openingHourModels(entries)).Error; err != nil {
			return err
		}
		seeded = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return seeded, nil
}

// ReplaceOpeningHours swaps the whole table for entries atomically.
func (s *GormStore) ReplaceOpeningHours(ctx context.Context, entries []domain.OpeningHour) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&OpeningHourModel{}).Error; err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		return tx.Create(openingHourModels(entries)).Error
	})
}

// SaveContactMessage inserts a message, assigning its ID.
func (s *GormStore) SaveContactMessage(ctx context.Context, msg domain.ContactMessage) (domain.ContactMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	model := contactMessageToModel(msg)
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.ContactMessage{}, err
	}
	return msg, nil
}

// GetContactMessage retrieves a message by ID.
func (s *GormStore) GetContactMessage(ctx context.Context, id string) (domain.ContactMessage, bool, error) {
	var model ContactMessageModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ContactMessage{}, false, nil
		}
		return domain.ContactMessage{}, false, err
	}
	return contactMessageFromModel(model), true, nil
}

// GetSiteSettings returns the settings row if present.
func (s *GormStore) GetSiteSettings(ctx context.Context) (domain.SiteSettings, bool, error) {
	var model SiteSettingsModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", settingsRowID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.SiteSettings{}, false, nil
		}
		return domain.SiteSettings{}, false, err
	}
	return siteSettingsFromModel(model), true, nil
}

// SaveSiteSettings upserts the settings row; last write wins.
func (s *GormStore) SaveSiteSettings(ctx context.Context, settings domain.SiteSettings) error {
	model := siteSettingsToModel(settings)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"phone", "contact_email", "announcement_text", "announcement_active", "updated_at"}),
	}).Create(&model).Error
}

func openingHourModels(entries []domain.OpeningHour) []OpeningHourModel {
	now := time.Now().UTC()
	models := make([]OpeningHourModel, 0, len(entries))
	for _, entry := range entries {
		models = append(models, openingHourToModel(stampOpeningHour(entry, now)))
	}
	return models
}

func openingHourUpdates(patch domain.OpeningHourPatch, updatedAt time.Time) map[string]any {
	updates := map[string]any{"updated_at": updatedAt.UTC()}
	if patch.IsOpen != nil {
		updates["is_open"] = *patch.IsOpen
	}
	if patch.OpenTime != nil {
		updates["open_time"] = *patch.OpenTime
	}
	if patch.CloseTime != nil {
		updates["close_time"] = *patch.CloseTime
	}
	if patch.SpecialNote != nil {
		updates["special_note"] = *patch.SpecialNote
	}
	return updates
}

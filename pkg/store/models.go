package store

import (
	"time"

	"gorm.io/datatypes"
)

// settingsRowID is the primary key of the single site settings row.
const settingsRowID = "contact"

// GORM models used for persistence.
type MenuAssetModel struct {
	ID           string `gorm:"primaryKey"`
	Title        string `gorm:"not null"`
	Description  string
	StorageKey   string `gorm:"uniqueIndex;not null"`
	FileName     string `gorm:"not null"`
	ContentType  string `gorm:"not null"`
	SizeBytes    int64  `gorm:"not null"`
	PageCount    int
	DisplayOrder int       `gorm:"not null;index"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (MenuAssetModel) TableName() string { return "menu_assets" }

type OpeningHourModel struct {
	ID           string `gorm:"primaryKey"`
	DayOfWeek    string `gorm:"not null;index"`
	IsOpen       bool   `gorm:"not null"`
	OpenTime     string
	CloseTime    string
	SpecialNote  string
	DisplayOrder int       `gorm:"not null;index"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (OpeningHourModel) TableName() string { return "opening_hours" }

type ContactMessageModel struct {
	ID        string `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	Email     string `gorm:"not null;index"`
	Phone     string
	Subject   string
	Message   string            `gorm:"type:text;not null"`
	Meta      datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt time.Time         `gorm:"not null;index"`
}

func (ContactMessageModel) TableName() string { return "contact_messages" }

type SiteSettingsModel struct {
	ID                 string `gorm:"primaryKey"`
	Phone              string
	ContactEmail       string
	AnnouncementText   string `gorm:"type:text"`
	AnnouncementActive bool
	UpdatedAt          time.Time `gorm:"not null"`
}

func (SiteSettingsModel) TableName() string { return "site_settings" }

package domain

import (
	"strings"
	"time"
)

// MenuAsset is a menu file (PDF or image) published on the site.
type MenuAsset struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	StorageKey   string    `json:"storageKey"`
	FileName     string    `json:"fileName"`
	ContentType  string    `json:"contentType"`
	SizeBytes    int64     `json:"sizeBytes"`
	PageCount    int       `json:"pageCount,omitempty"`
	DisplayOrder int       `json:"displayOrder"`
	CreatedAt    time.Time `json:"createdAt"`
}

// RenderKind selects how a menu file is shown to visitors.
type RenderKind string

const (
	RenderImage       RenderKind = "image"
	RenderPDF         RenderKind = "pdf"
	RenderUnsupported RenderKind = "unsupported"
)

// Render reports the rendering strategy for the asset's content type.
func (m MenuAsset) Render() RenderKind {
	switch {
	case m.ContentType == "application/pdf":
		return RenderPDF
	case strings.HasPrefix(m.ContentType, "image/"):
		return RenderImage
	default:
		return RenderUnsupported
	}
}

// OpeningHour is one day of the weekly schedule.
type OpeningHour struct {
	ID           string    `json:"id"`
	DayOfWeek    string    `json:"dayOfWeek"`
	IsOpen       bool      `json:"isOpen"`
	OpenTime     string    `json:"openTime"`
	CloseTime    string    `json:"closeTime"`
	SpecialNote  string    `json:"specialNote,omitempty"`
	DisplayOrder int       `json:"displayOrder"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// OpeningHourPatch carries the fields of a partial update. Nil means unchanged.
type OpeningHourPatch struct {
	IsOpen      *bool   `json:"isOpen,omitempty"`
	OpenTime    *string `json:"openTime,omitempty"`
	CloseTime   *string `json:"closeTime,omitempty"`
	SpecialNote *string `json:"specialNote,omitempty"`
}

// ContactMessage is a submission of the public contact form. Immutable once stored.
type ContactMessage struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Email     string            `json:"email"`
	Phone     string            `json:"phone,omitempty"`
	Subject   string            `json:"subject,omitempty"`
	Message   string            `json:"message"`
	Meta      map[string]string `json:"meta,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// SiteSettings is the singleton contact/announcement record.
type SiteSettings struct {
	Phone              string    `json:"phone"`
	ContactEmail       string    `json:"contactEmail"`
	AnnouncementText   string    `json:"announcementText"`
	AnnouncementActive bool      `json:"announcementActive"`
	UpdatedAt          time.Time `json:"updatedAt,omitempty"`
}

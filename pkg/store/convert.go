package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"citefleurie/pkg/domain"
)

// stampOpeningHour fills the store-owned fields of a new entry.
func stampOpeningHour(entry domain.OpeningHour, now time.Time) domain.OpeningHour {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = now
	}
	return entry
}

func applyOpeningHourPatch(entry domain.OpeningHour, patch domain.OpeningHourPatch, updatedAt time.Time) domain.OpeningHour {
	if patch.IsOpen != nil {
		entry.IsOpen = *patch.IsOpen
	}
	if patch.OpenTime != nil {
		entry.OpenTime = *patch.OpenTime
	}
	if patch.CloseTime != nil {
		entry.CloseTime = *patch.CloseTime
	}
	if patch.SpecialNote != nil {
		entry.SpecialNote = *patch.SpecialNote
	}
	entry.UpdatedAt = updatedAt.UTC()
	return entry
}

func menuAssetToModel(a domain.MenuAsset) MenuAssetModel {
	return MenuAssetModel{
		ID:           a.ID,
		Title:        a.Title,
		Description:  a.Description,
		StorageKey:   a.StorageKey,
		FileName:     a.FileName,
		ContentType:  a.ContentType,
		SizeBytes:    a.SizeBytes,
		PageCount:    a.PageCount,
		DisplayOrder: a.DisplayOrder,
		CreatedAt:    a.CreatedAt,
	}
}

func menuAssetFromModel(m MenuAssetModel) domain.MenuAsset {
	return domain.MenuAsset{
		ID:           m.ID,
		Title:        m.Title,
		Description:  m.Description,
		StorageKey:   m.StorageKey,
		FileName:     m.FileName,
		ContentType:  m.ContentType,
		SizeBytes:    m.SizeBytes,
		PageCount:    m.PageCount,
		DisplayOrder: m.DisplayOrder,
		CreatedAt:    m.CreatedAt,
	}
}

func openingHourToModel(h domain.OpeningHour) OpeningHourModel {
	return OpeningHourModel{
		ID:           h.ID,
		DayOfWeek:    h.DayOfWeek,
		IsOpen:       h.IsOpen,
		OpenTime:     h.OpenTime,
		CloseTime:    h.CloseTime,
		SpecialNote:  h.SpecialNote,
		DisplayOrder: h.DisplayOrder,
		CreatedAt:    h.CreatedAt,
		UpdatedAt:    h.UpdatedAt,
	}
}

func openingHourFromModel(m OpeningHourModel) domain.OpeningHour {
	return domain.OpeningHour{
		ID:           m.ID,
		DayOfWeek:    m.DayOfWeek,
		IsOpen:       m.IsOpen,
		OpenTime:     m.OpenTime,
		CloseTime:    m.CloseTime,
		SpecialNote:  m.SpecialNote,
		DisplayOrder: m.DisplayOrder,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func contactMessageToModel(msg domain.ContactMessage) ContactMessageModel {
	var meta datatypes.JSONMap
	if len(msg.Meta) > 0 {
		meta = make(datatypes.JSONMap, len(msg.Meta))
		for k, v := range msg.Meta {
			meta[k] = v
		}
	}
	return ContactMessageModel{
		ID:        msg.ID,
		Name:      msg.Name,
		Email:     msg.Email,
		Phone:     msg.Phone,
		Subject:   msg.Subject,
		Message:   msg.Message,
		Meta:      meta,
		CreatedAt: msg.CreatedAt,
	}
}

func contactMessageFromModel(m ContactMessageModel) domain.ContactMessage {
	var meta map[string]string
	if len(m.Meta) > 0 {
		meta = make(map[string]string, len(m.Meta))
		for k, v := range m.Meta {
			if s, ok := v.(string); ok {
				meta[k] = s
			}
		}
	}
	return domain.ContactMessage{
		ID:        m.ID,
		Name:      m.Name,
		Email:     m.Email,
		Phone:     m.Phone,
		Subject:   m.Subject,
		Message:   m.Message,
		Meta:      meta,
		CreatedAt: m.CreatedAt,
	}
}

func siteSettingsToModel(s domain.SiteSettings) SiteSettingsModel {
	return SiteSettingsModel{
		ID:                 settingsRowID,
		Phone:              s.Phone,
		ContactEmail:       s.ContactEmail,
		AnnouncementText:   s.AnnouncementText,
		AnnouncementActive: s.AnnouncementActive,
		UpdatedAt:          s.UpdatedAt,
	}
}

func siteSettingsFromModel(m SiteSettingsModel) domain.SiteSettings {
	return domain.SiteSettings{
		Phone:              m.Phone,
		ContactEmail:       m.ContactEmail,
		AnnouncementText:   m.AnnouncementText,
		AnnouncementActive: m.AnnouncementActive,
		UpdatedAt:          m.UpdatedAt,
	}
}

package app

import (
	"context"
	"sort"
	"strings"
	"time"

	"citefleurie/internal/util"
	"citefleurie/pkg/domain"
)

// ExpectedOpeningDays is the number of records a healthy schedule holds.
const ExpectedOpeningDays = 7

// DefaultOpeningHours is the canonical week used by InitializeDefaults and Reset.
func DefaultOpeningHours() []domain.OpeningHour {
	lunch := func(day string, order int) domain.OpeningHour {
		return domain.OpeningHour{DayOfWeek: day, IsOpen: true, OpenTime: "12:00", CloseTime: "14:00", SpecialNote: "Midi uniquement", DisplayOrder: order}
	}
	continuous := func(day, closeAt string, order int) domain.OpeningHour {
		return domain.OpeningHour{DayOfWeek: day, IsOpen: true, OpenTime: "12:00", CloseTime: closeAt, SpecialNote: "Service continu", DisplayOrder: order}
	}
	return []domain.OpeningHour{
		lunch("Lundi", 1),
		lunch("Mardi", 2),
		lunch("Mercredi", 3),
		continuous("Jeudi", "22:00", 4),
		continuous("Vendredi", "23:00", 5),
		continuous("Samedi", "23:00", 6),
		{DayOfWeek: "Dimanche", IsOpen: false, DisplayOrder: 7},
	}
}

// DuplicateReport is the result of DetectDuplicates.
type DuplicateReport struct {
	Total         int      `json:"total"`
	Expected      int      `json:"expected"`
	HasDuplicates bool     `json:"hasDuplicates"`
	DuplicateDays []string `json:"duplicateDays,omitempty"`
}

// ListOpeningHours returns the schedule ordered by display order.
func (a *App) ListOpeningHours(ctx context.Context) ([]domain.OpeningHour, error) {
	ctx, cancel := a.bounded(ctx)
	defer cancel()
	hours, err := a.store.ListOpeningHours(ctx)
	if err != nil {
		return nil, storageErr("could not list opening hours", err)
	}
	return hours, nil
}

// InitializeDefaults seeds the canonical week when the collection is empty.
func (a *App) InitializeDefaults(ctx context.Context) (bool, error) {
	seedCtx, cancel := a.bounded(ctx)
	defer cancel()
	seeded, err := a.store.SeedOpeningHours(seedCtx, a.stampDefaults())
	if err != nil {
		return false, storageErr("could not initialize opening hours", err)
	}
	if seeded {
		util.LoggerFromContext(ctx).Info("opening_hours_seeded")
	}
	return seeded, nil
}

// CreateOpeningHour adds one entry.
func (a *App) CreateOpeningHour(ctx context.Context, entry domain.OpeningHour) (domain.OpeningHour, error) {
	entry.DayOfWeek = strings.TrimSpace(entry.DayOfWeek)
	entry.SpecialNote = strings.TrimSpace(entry.SpecialNote)
	if entry.DayOfWeek == "" {
		return domain.OpeningHour{}, validationf("dayOfWeek is required")
	}
	if err := validateSchedule(entry.IsOpen, entry.OpenTime, entry.CloseTime); err != nil {
		return domain.OpeningHour{}, err
	}
	if !entry.IsOpen {
		entry.OpenTime, entry.CloseTime = "", ""
	}
	if entry.DisplayOrder <= 0 {
		entry.DisplayOrder = canonicalOrder(entry.DayOfWeek)
	}
	now := a.now().UTC()
	entry.ID = ""
	entry.CreatedAt, entry.UpdatedAt = now, now

	ctx, cancel := a.bounded(ctx)
	defer cancel()
	created, err := a.store.CreateOpeningHour(ctx, entry)
	if err != nil {
		return domain.OpeningHour{}, storageErr("could not create opening hour", err)
	}
	return created, nil
}

// UpdateOpeningHour applies a partial update and stamps updatedAt.
func (a *App) UpdateOpeningHour(ctx context.Context, id string, patch domain.OpeningHourPatch) (domain.OpeningHour, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.OpeningHour{}, validationf("id is required")
	}
	if patch.IsOpen == nil && patch.OpenTime == nil && patch.CloseTime == nil && patch.SpecialNote == nil {
		return domain.OpeningHour{}, validationf("no fields to update")
	}
	if patch.SpecialNote != nil {
		note := strings.TrimSpace(*patch.SpecialNote)
		patch.SpecialNote = &note
	}

	getCtx, cancel := a.bounded(ctx)
	current, ok, err := a.store.GetOpeningHour(getCtx, id)
	cancel()
	if err != nil {
		return domain.OpeningHour{}, storageErr("could not load opening hour", err)
	}
	if !ok {
		return domain.OpeningHour{}, notFound("opening hour not found")
	}
	isOpen, openTime, closeTime := current.IsOpen, current.OpenTime, current.CloseTime
	if patch.IsOpen != nil {
		isOpen = *patch.IsOpen
	}
	if patch.OpenTime != nil {
		openTime = strings.TrimSpace(*patch.OpenTime)
		patch.OpenTime = &openTime
	}
	if patch.CloseTime != nil {
		closeTime = strings.TrimSpace(*patch.CloseTime)
		patch.CloseTime = &closeTime
	}
	if err := validateSchedule(isOpen, openTime, closeTime); err != nil {
		return domain.OpeningHour{}, err
	}

	updCtx, cancel := a.bounded(ctx)
	updated, ok, err := a.store.UpdateOpeningHour(updCtx, id, patch, a.now().UTC())
	cancel()
	if err != nil {
		return domain.OpeningHour{}, storageErr("could not update opening hour", err)
	}
	if !ok {
		return domain.OpeningHour{}, notFound("opening hour not found")
	}
	return updated, nil
}

// DeleteOpeningHour removes one entry.
func (a *App) DeleteOpeningHour(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return validationf("id is required")
	}
	ctx, cancel := a.bounded(ctx)
	defer cancel()
	ok, err := a.store.DeleteOpeningHour(ctx, id)
	if err != nil {
		return storageErr("could not delete opening hour", err)
	}
	if !ok {
		return notFound("opening hour not found")
	}
	return nil
}

// DetectDuplicates flags a schedule holding more than seven records.
// Days seen more than once are listed for the operator.
func (a *App) DetectDuplicates(ctx context.Context) (DuplicateReport, error) {
	hours, err := a.ListOpeningHours(ctx)
	if err != nil {
		return DuplicateReport{}, err
	}
	seen := make(map[string]int, len(hours))
	for _, h := range hours {
		seen[strings.ToLower(h.DayOfWeek)]++
	}
	report := DuplicateReport{
		Total:         len(hours),
		Expected:      ExpectedOpeningDays,
		HasDuplicates: len(hours) > ExpectedOpeningDays,
	}
	for _, h := range hours {
		key := strings.ToLower(h.DayOfWeek)
		if seen[key] > 1 {
			report.DuplicateDays = append(report.DuplicateDays, h.DayOfWeek)
			seen[key] = 0
		}
	}
	sort.Strings(report.DuplicateDays)
	return report, nil
}

// ResetOpeningHours replaces the whole schedule with the canonical week.
// It is irreversible and refuses to run without confirm.
func (a *App) ResetOpeningHours(ctx context.Context, confirm bool) ([]domain.OpeningHour, error) {
	if !confirm {
		return nil, validationf("reset requires confirmation")
	}
	replCtx, cancel := a.bounded(ctx)
	err := a.store.ReplaceOpeningHours(replCtx, a.stampDefaults())
	cancel()
	if err != nil {
		return nil, storageErr("could not reset opening hours", err)
	}
	util.LoggerFromContext(ctx).Warn("opening_hours_reset")
	return a.ListOpeningHours(ctx)
}

func (a *App) stampDefaults() []domain.OpeningHour {
	now := a.now().UTC()
	entries := DefaultOpeningHours()
	for i := range entries {
		entries[i].CreatedAt, entries[i].UpdatedAt = now, now
	}
	return entries
}

func canonicalOrder(day string) int {
	for _, h := range DefaultOpeningHours() {
		if strings.EqualFold(h.DayOfWeek, day) {
			return h.DisplayOrder
		}
	}
	return ExpectedOpeningDays + 1
}

func validateSchedule(isOpen bool, openTime, closeTime string) error {
	if !isOpen {
		return nil
	}
	if !validClock(openTime) || !validClock(closeTime) {
		return validationf("openTime and closeTime must use HH:MM")
	}
	// closeTime before openTime is an overnight close
	if closeTime == openTime {
		return validationf("closeTime must differ from openTime")
	}
	return nil
}

func validClock(v string) bool {
	if len(v) != 5 {
		return false
	}
	_, err := time.Parse("15:04", v)
	return err == nil
}

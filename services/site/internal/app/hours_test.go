package app

import (
	"context"
	"errors"
	"testing"

	"citefleurie/pkg/domain"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func assertCanonicalWeek(t *testing.T, hours []domain.OpeningHour) {
	t.Helper()
	if len(hours) != ExpectedOpeningDays {
		t.Fatalf("got %d entries, want %d", len(hours), ExpectedOpeningDays)
	}
	for i, want := range DefaultOpeningHours() {
		if hours[i].DayOfWeek != want.DayOfWeek || hours[i].DisplayOrder != want.DisplayOrder {
			t.Fatalf("entry %d = %s/%d, want %s/%d", i, hours[i].DayOfWeek, hours[i].DisplayOrder, want.DayOfWeek, want.DisplayOrder)
		}
	}
}

func TestInitializeDefaultsOnlyWhenEmpty(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seeded, err := env.app.InitializeDefaults(ctx)
	if err != nil || !seeded {
		t.Fatalf("first init: seeded=%v err=%v", seeded, err)
	}
	seeded, err = env.app.InitializeDefaults(ctx)
	if err != nil || seeded {
		t.Fatalf("second init should be a no-op: seeded=%v err=%v", seeded, err)
	}
	hours, err := env.app.ListOpeningHours(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	assertCanonicalWeek(t, hours)
	if hours[6].IsOpen {
		t.Fatal("Dimanche should be closed by default")
	}
}

func TestResetAlwaysLeavesSevenDays(t *testing.T) {
	for _, extra := range []int{0, 7, 10} {
		env := newTestEnv(t)
		ctx := context.Background()
		for i := 0; i < extra; i++ {
			if _, err := env.app.CreateOpeningHour(ctx, domain.OpeningHour{DayOfWeek: "Lundi", IsOpen: true, OpenTime: "08:00", CloseTime: "09:00"}); err != nil {
				t.Fatalf("create: %v", err)
			}
		}
		hours, err := env.app.ResetOpeningHours(ctx, true)
		if err != nil {
			t.Fatalf("reset from %d: %v", extra, err)
		}
		assertCanonicalWeek(t, hours)
	}
}

func TestResetRequiresConfirmation(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.app.ResetOpeningHours(context.Background(), false); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestDetectDuplicates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.app.InitializeDefaults(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	report, err := env.app.DetectDuplicates(ctx)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if report.HasDuplicates || report.Total != 7 {
		t.Fatalf("clean week reported %+v", report)
	}
	if _, err := env.app.CreateOpeningHour(ctx, domain.OpeningHour{DayOfWeek: "Mardi"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	report, err = env.app.DetectDuplicates(ctx)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if !report.HasDuplicates || report.Total != 8 || len(report.DuplicateDays) != 1 || report.DuplicateDays[0] != "Mardi" {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestUpdateOpeningHour(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.app.InitializeDefaults(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	hours, _ := env.app.ListOpeningHours(ctx)
	monday := hours[0]

	updated, err := env.app.UpdateOpeningHour(ctx, monday.ID, domain.OpeningHourPatch{CloseTime: strPtr("15:00"), SpecialNote: strPtr(" Terrasse ")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.CloseTime != "15:00" || updated.OpenTime != "12:00" || updated.SpecialNote != "Terrasse" {
		t.Fatalf("unexpected update result %+v", updated)
	}
	if updated.UpdatedAt.Before(monday.UpdatedAt) {
		t.Fatal("updatedAt went backwards")
	}

	bad := []domain.OpeningHourPatch{
		{},
		{OpenTime: strPtr("9h")},
		{CloseTime: strPtr("12:00")},
		{OpenTime: strPtr("25:00")},
	}
	for _, patch := range bad {
		if _, err := env.app.UpdateOpeningHour(ctx, monday.ID, patch); !errors.Is(err, ErrValidation) {
			t.Fatalf("patch %+v: expected ErrValidation, got %v", patch, err)
		}
	}

	closed, err := env.app.UpdateOpeningHour(ctx, monday.ID, domain.OpeningHourPatch{IsOpen: boolPtr(false)})
	if err != nil || closed.IsOpen {
		t.Fatalf("closing day: %+v %v", closed, err)
	}
	if _, err := env.app.UpdateOpeningHour(ctx, "missing", domain.OpeningHourPatch{IsOpen: boolPtr(true)}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateOpeningHourAcceptsOvernightClose(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.app.InitializeDefaults(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	hours, _ := env.app.ListOpeningHours(ctx)
	saturday := hours[5]
	if saturday.DayOfWeek != "Samedi" {
		t.Fatalf("entry 5 = %s, want Samedi", saturday.DayOfWeek)
	}

	updated, err := env.app.UpdateOpeningHour(ctx, saturday.ID, domain.OpeningHourPatch{OpenTime: strPtr("19:00"), CloseTime: strPtr("01:00")})
	if err != nil {
		t.Fatalf("overnight update: %v", err)
	}
	if updated.OpenTime != "19:00" || updated.CloseTime != "01:00" || !updated.IsOpen {
		t.Fatalf("unexpected update result %+v", updated)
	}
	if _, err := env.app.UpdateOpeningHour(ctx, saturday.ID, domain.OpeningHourPatch{CloseTime: strPtr("19:00")}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected equal open/close to fail, got %v", err)
	}
}

func TestCreateAndDeleteOpeningHour(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created, err := env.app.CreateOpeningHour(ctx, domain.OpeningHour{DayOfWeek: "Jeudi", IsOpen: true, OpenTime: "12:00", CloseTime: "22:00"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.DisplayOrder != 4 {
		t.Fatalf("display order = %d, want canonical 4", created.DisplayOrder)
	}
	if _, err := env.app.CreateOpeningHour(ctx, domain.OpeningHour{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for missing day, got %v", err)
	}
	if err := env.app.DeleteOpeningHour(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := env.app.DeleteOpeningHour(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smokyabdulrahman/prayer-clock/internal/api"
	"github.com/smokyabdulrahman/prayer-clock/internal/geo"
)

func sampleEntry() ScheduleEntry {
	return ScheduleEntry{
		Timings: api.Timings{
			Fajr:    "05:17",
			Sunrise: "06:48",
			Dhuhr:   "12:13",
			Asr:     "15:02",
			Maghrib: "17:39",
			Isha:    "19:10",
		},
		Timezone: "Europe/London",
		Hijri: &api.HijriDate{
			Day:   "10",
			Year:  "1447",
			Month: api.HijriMonth{Number: 9, En: "Ramaḍān", Ar: "رمضان"},
		},
	}
}

func sampleQuery() ScheduleQuery {
	return ScheduleQuery{
		Date:      time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC),
		Latitude:  51.5074,
		Longitude: -0.1278,
		Method:    4,
		School:    0,
	}
}

func newFileStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	kv, err := NewFileKV(dir)
	if err != nil {
		t.Fatalf("NewFileKV(%q) error: %v", dir, err)
	}
	return New(kv), dir
}

// ---------------------------------------------------------------------------
// Schedules
// ---------------------------------------------------------------------------

func TestSchedule_RoundTrip(t *testing.T) {
	s, _ := newFileStore(t)
	ctx := context.Background()
	q := sampleQuery()

	if err := s.SaveSchedule(ctx, q, sampleEntry()); err != nil {
		t.Fatalf("SaveSchedule error: %v", err)
	}

	entry, err := s.LoadSchedule(ctx, q)
	if err != nil {
		t.Fatalf("LoadSchedule error after save: %v", err)
	}
	if entry.Timings.Fajr != "05:17" {
		t.Errorf("Fajr = %q, want %q", entry.Timings.Fajr, "05:17")
	}
	if entry.Timings.Isha != "19:10" {
		t.Errorf("Isha = %q, want %q", entry.Timings.Isha, "19:10")
	}
	if entry.Timezone != "Europe/London" {
		t.Errorf("Timezone = %q, want %q", entry.Timezone, "Europe/London")
	}
	if entry.Date != "2026-02-28" || entry.Method != 4 {
		t.Errorf("metadata = %s/%d, want 2026-02-28/4", entry.Date, entry.Method)
	}
	if entry.Hijri == nil || entry.Hijri.Month.Ar != "رمضان" {
		t.Errorf("Hijri = %+v, want Ramadan", entry.Hijri)
	}
}

func TestSchedule_Miss(t *testing.T) {
	s, _ := newFileStore(t)

	_, err := s.LoadSchedule(context.Background(), sampleQuery())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for miss, got %v", err)
	}
}

func TestSchedule_DifferentDate(t *testing.T) {
	s, _ := newFileStore(t)
	ctx := context.Background()
	q := sampleQuery()
	_ = s.SaveSchedule(ctx, q, sampleEntry())

	q.Date = q.Date.AddDate(0, 0, 1)
	if _, err := s.LoadSchedule(ctx, q); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for next day, got %v", err)
	}
}

func TestSchedule_DifferentParams(t *testing.T) {
	s, _ := newFileStore(t)
	ctx := context.Background()
	_ = s.SaveSchedule(ctx, sampleQuery(), sampleEntry())

	tests := []struct {
		name   string
		mutate func(*ScheduleQuery)
	}{
		{"method", func(q *ScheduleQuery) { q.Method = 2 }},
		{"school", func(q *ScheduleQuery) { q.School = 1 }},
		{"latitude", func(q *ScheduleQuery) { q.Latitude = 21.4225 }},
		{"longitude", func(q *ScheduleQuery) { q.Longitude = 39.8262 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := sampleQuery()
			tt.mutate(&q)
			if _, err := s.LoadSchedule(ctx, q); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected miss for different %s, got %v", tt.name, err)
			}
		})
	}
}

func TestSchedule_StaleDateInEntry(t *testing.T) {
	s := New(NewMemoryKV())
	ctx := context.Background()
	q := sampleQuery()

	// An entry whose recorded date disagrees with its key is ignored.
	entry := sampleEntry()
	_ = s.setJSON(ctx, q.key(), ScheduleEntry{Date: "2026-02-27", Timings: entry.Timings})
	if _, err := s.LoadSchedule(ctx, q); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for stale entry, got %v", err)
	}
}

func TestSchedule_CorruptedFile(t *testing.T) {
	s, dir := newFileStore(t)
	ctx := context.Background()
	_ = s.SaveSchedule(ctx, sampleQuery(), sampleEntry())

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".json" {
			os.WriteFile(filepath.Join(dir, e.Name()), []byte("not-json"), 0o644)
		}
	}

	if _, err := s.LoadSchedule(ctx, sampleQuery()); !IsNotFound(err) {
		t.Errorf("expected not-found for corrupted file, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Locations
// ---------------------------------------------------------------------------

func TestLocation_RoundTrip(t *testing.T) {
	s, _ := newFileStore(t)
	ctx := context.Background()

	loc := geo.Location{
		Latitude:  51.5074,
		Longitude: -0.1278,
		City:      "London",
		Country:   "United Kingdom",
		Timezone:  "Europe/London",
	}
	if err := s.SaveLocation(ctx, loc, SourceManual); err != nil {
		t.Fatalf("SaveLocation error: %v", err)
	}

	got, err := s.LoadLocation(ctx)
	if err != nil {
		t.Fatalf("LoadLocation error after save: %v", err)
	}
	if got.Location != loc {
		t.Errorf("Location = %+v, want %+v", got.Location, loc)
	}
	if got.Source != SourceManual {
		t.Errorf("Source = %q, want %q", got.Source, SourceManual)
	}
}

func TestLocation_Miss(t *testing.T) {
	s, _ := newFileStore(t)
	if _, err := s.LoadLocation(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLocation_DetectedExpires(t *testing.T) {
	s := New(NewMemoryKV())
	ctx := context.Background()
	saved := time.Date(2026, 2, 28, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return saved }

	_ = s.SaveLocation(ctx, geo.DefaultLocation, SourceDetected)

	s.now = func() time.Time { return saved.Add(23 * time.Hour) }
	if _, err := s.LoadLocation(ctx); err != nil {
		t.Errorf("detected location within a day should load, got %v", err)
	}

	s.now = func() time.Time { return saved.Add(25 * time.Hour) }
	if _, err := s.LoadLocation(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for expired detected location, got %v", err)
	}
}

func TestLocation_ManualNeverExpires(t *testing.T) {
	s := New(NewMemoryKV())
	ctx := context.Background()
	saved := time.Date(2026, 2, 28, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return saved }

	_ = s.SaveLocation(ctx, geo.DefaultLocation, SourceManual)

	s.now = func() time.Time { return saved.AddDate(1, 0, 0) }
	if _, err := s.LoadLocation(ctx); err != nil {
		t.Errorf("manual location should not expire, got %v", err)
	}
}

func TestLocation_Clear(t *testing.T) {
	s, _ := newFileStore(t)
	ctx := context.Background()

	_ = s.SaveLocation(ctx, geo.DefaultLocation, SourceManual)
	if err := s.ClearLocation(ctx); err != nil {
		t.Fatalf("ClearLocation error: %v", err)
	}
	if _, err := s.LoadLocation(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after clear, got %v", err)
	}
	// Clearing twice is fine.
	if err := s.ClearLocation(ctx); err != nil {
		t.Errorf("second ClearLocation error: %v", err)
	}
}

package store

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/smokyabdulrahman/prayer-clock/internal/api"
	"github.com/smokyabdulrahman/prayer-clock/internal/geo"
)

const (
	locationKey = "location"
	scheduleKey = "schedule:%s" // keyed by hash
	detectedTTL = 24 * time.Hour
)

// Location sources.
const (
	SourceManual   = "manual"
	SourceDetected = "detected"
)

// LocationEntry stores a location with where it came from.
// Detected locations expire after a day; manual ones never do.
type LocationEntry struct {
	Location geo.Location `json:"location"`
	Source   string       `json:"source"`
	SavedAt  time.Time    `json:"saved_at"`
}

// ScheduleEntry stores a day's prayer times along with metadata for validation.
type ScheduleEntry struct {
	Date     string         `json:"date"` // YYYY-MM-DD
	Method   int            `json:"method"`
	School   int            `json:"school"`
	Timings  api.Timings    `json:"timings"`
	Timezone string         `json:"timezone"`
	Hijri    *api.HijriDate `json:"hijri,omitempty"`
}

// ScheduleQuery names the parameters that affect a day's prayer times.
type ScheduleQuery struct {
	Date      time.Time
	Latitude  float64
	Longitude float64
	Method    int
	School    int
}

// key builds a deterministic hash from the parameters that affect prayer times,
// so different locations, methods and schools get separate entries.
func (q ScheduleQuery) key() string {
	raw := fmt.Sprintf("%s|%.6f|%.6f|%d|%d", q.dateString(), q.Latitude, q.Longitude, q.Method, q.School)
	h := sha256.Sum256([]byte(raw))
	return fmt.Sprintf(scheduleKey, fmt.Sprintf("%x", h[:8]))
}

func (q ScheduleQuery) dateString() string { return q.Date.Format("2006-01-02") }

// Store reads and writes typed records over a KV.
type Store struct {
	kv  KV
	now func() time.Time
}

// New wraps kv.
func New(kv KV) *Store {
	return &Store{kv: kv, now: time.Now}
}

// Close closes the underlying KV.
func (s *Store) Close() error { return s.kv.Close() }

// LoadLocation returns the saved location, or ErrNotFound when there is none
// or a detected location has gone stale.
func (s *Store) LoadLocation(ctx context.Context) (*LocationEntry, error) {
	var entry LocationEntry
	if err := s.getJSON(ctx, locationKey, &entry); err != nil {
		return nil, err
	}
	if entry.Source == SourceDetected && s.now().Sub(entry.SavedAt) > detectedTTL {
		return nil, ErrNotFound
	}
	return &entry, nil
}

// SaveLocation persists loc with its source.
func (s *Store) SaveLocation(ctx context.Context, loc geo.Location, source string) error {
	return s.setJSON(ctx, locationKey, LocationEntry{
		Location: loc,
		Source:   source,
		SavedAt:  s.now(),
	})
}

// ClearLocation forgets the saved location.
func (s *Store) ClearLocation(ctx context.Context) error {
	return s.kv.Delete(ctx, locationKey)
}

// LoadSchedule returns the saved entry for q, or ErrNotFound if it is missing
// or stored for a different day.
func (s *Store) LoadSchedule(ctx context.Context, q ScheduleQuery) (*ScheduleEntry, error) {
	var entry ScheduleEntry
	if err := s.getJSON(ctx, q.key(), &entry); err != nil {
		return nil, err
	}
	// Stale entries for a previous day are useless.
	if entry.Date != q.dateString() {
		return nil, ErrNotFound
	}
	return &entry, nil
}

// SaveSchedule writes an entry for q.
func (s *Store) SaveSchedule(ctx context.Context, q ScheduleQuery, entry ScheduleEntry) error {
	entry.Date = q.dateString()
	entry.Method = q.Method
	entry.School = q.School
	return s.setJSON(ctx, q.key(), entry)
}

func (s *Store) getJSON(ctx context.Context, key string, v any) error {
	data, err := s.kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		// A corrupt value is as good as none.
		return fmt.Errorf("%w: corrupt %s entry: %v", ErrNotFound, key, err)
	}
	return nil
}

func (s *Store) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s entry: %w", key, err)
	}
	return s.kv.Set(ctx, key, data)
}

// IsNotFound reports whether err means "nothing stored".
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

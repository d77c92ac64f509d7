// Package service owns the live schedule: it resolves the user's location,
// fetches and persists each day's prayer times, and refreshes them after
// midnight at the location or when the location or calculation method changes.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/smokyabdulrahman/prayer-clock/internal/api"
	"github.com/smokyabdulrahman/prayer-clock/internal/geo"
	"github.com/smokyabdulrahman/prayer-clock/internal/metrics"
	"github.com/smokyabdulrahman/prayer-clock/internal/prayer"
	"github.com/smokyabdulrahman/prayer-clock/internal/store"
)

// ScheduleProvider supplies raw prayer times and Hijri dates. *api.Client implements it.
type ScheduleProvider interface {
	FetchByCoordinates(ctx context.Context, date time.Time, lat, lon float64, method, school int) (*api.Response, error)
	HijriDate(ctx context.Context, date time.Time) (*api.HijriDate, error)
}

var _ ScheduleProvider = (*api.Client)(nil)

// Day is one fetched calendar day.
type Day struct {
	Schedule  *prayer.Schedule
	Hijri     *api.HijriDate
	Location  geo.Location
	Method    int
	School    int
	FromStore bool
}

// Options configures a Service. Provider is required; the rest are optional.
type Options struct {
	Provider ScheduleProvider
	Store    *store.Store
	Locator  geo.Locator
	Metrics  metrics.Recorder

	// Location, when set, is used as is and never looked up.
	Location *geo.Location

	// PollInterval, when positive, makes Run check the store this often for
	// a location saved by another process.
	PollInterval time.Duration

	Method int
	School int
	Logger zerolog.Logger

	// OnDay is called after every successful refresh that changed the day.
	OnDay func(*Day)

	// OnError is called when a refresh fails.
	OnError func(error)

	Now   func() time.Time
	After func(time.Duration) <-chan time.Time
}

// RetryInterval is how long Run waits after a failed refresh.
const RetryInterval = time.Minute

// Service is safe for concurrent use.
type Service struct {
	provider ScheduleProvider
	store    *store.Store
	locator  geo.Locator
	metrics  metrics.Recorder
	onDay    func(*Day)
	onError  func(error)
	log      zerolog.Logger
	now      func() time.Time
	after    func(time.Duration) <-chan time.Time
	poll     time.Duration

	mu       sync.Mutex
	location *geo.Location
	pinned   bool // location came from Options or could not be saved
	method   int
	school   int

	current atomic.Pointer[Day]
	changed chan struct{}
}

// New creates a Service.
func New(opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.After == nil {
		opts.After = time.After
	}
	return &Service{
		provider: opts.Provider,
		store:    opts.Store,
		locator:  opts.Locator,
		metrics:  opts.Metrics,
		onDay:    opts.OnDay,
		onError:  opts.OnError,
		log:      opts.Logger.With().Str("component", "service").Logger(),
		now:      opts.Now,
		after:    opts.After,
		poll:     opts.PollInterval,
		method:   opts.Method,
		school:   opts.School,
		location: opts.Location,
		pinned:   opts.Location != nil,
		changed:  make(chan struct{}, 1),
	}
}

// Current returns the last successfully loaded day, or nil.
func (s *Service) Current() *Day {
	return s.current.Load()
}

// ResolveLocation returns the location to use: a stored one, else one from the
// locator, else the default. The result is cached for later calls.
func (s *Service) ResolveLocation(ctx context.Context) geo.Location {
	s.mu.Lock()
	if s.location != nil {
		loc := *s.location
		s.mu.Unlock()
		return loc
	}
	s.mu.Unlock()

	loc := s.lookupLocation(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.location == nil {
		s.location = &loc
	}
	return *s.location
}

func (s *Service) lookupLocation(ctx context.Context) geo.Location {
	if s.store != nil {
		entry, err := s.store.LoadLocation(ctx)
		if err == nil {
			return entry.Location
		}
		if !store.IsNotFound(err) {
			s.log.Warn().Err(err).Msg("failed to load stored location")
		}
	}

	if s.locator != nil {
		loc, err := s.locator.Locate(ctx)
		if err == nil {
			if s.store != nil {
				if err := s.store.SaveLocation(ctx, *loc, store.SourceDetected); err != nil {
					s.log.Warn().Err(err).Msg("failed to save detected location")
				}
			}
			return *loc
		}
		ev := s.log.Info()
		if !errors.Is(err, geo.ErrPermissionDenied) {
			ev = s.log.Warn()
		}
		ev.Err(err).Msg("location detection failed, using default")
	}

	return geo.DefaultLocation
}

// syncLocation adopts a location saved to the store since it was last read,
// for example by `locate` in another process. It reports whether the location
// changed.
func (s *Service) syncLocation(ctx context.Context) bool {
	s.mu.Lock()
	skip := s.pinned || s.location == nil
	s.mu.Unlock()
	if skip || s.store == nil {
		return false
	}

	entry, err := s.store.LoadLocation(ctx)
	if err != nil {
		if !store.IsNotFound(err) {
			s.log.Debug().Err(err).Msg("failed to reload stored location")
		}
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pinned || sameLocation(*s.location, entry.Location) {
		return false
	}
	s.location = &entry.Location
	s.log.Info().Str("location", entry.Location.Label()).Msg("stored location changed")
	return true
}

// sameLocation compares a cached location with a stored one. A timezone the
// cache learned from the provider does not count as a change.
func sameLocation(cached, stored geo.Location) bool {
	if stored.Timezone == "" {
		stored.Timezone = cached.Timezone
	}
	return cached == stored
}

// SetLocation persists loc as the user's chosen location and refreshes.
func (s *Service) SetLocation(ctx context.Context, loc geo.Location) error {
	saved := true
	if s.store != nil {
		if err := s.store.SaveLocation(ctx, loc, store.SourceManual); err != nil {
			s.log.Warn().Err(err).Msg("failed to save location")
			saved = false
		}
	}
	s.mu.Lock()
	s.location = &loc
	if !saved {
		// The store still holds the old location; stop following it.
		s.pinned = true
	}
	s.mu.Unlock()

	s.log.Info().Str("location", loc.Label()).Msg("location changed")
	s.signal()
	_, err := s.Refresh(ctx)
	return err
}

// Method returns the calculation method in use.
func (s *Service) Method() int {
	m, _ := s.params()
	return m
}

// SetMethod switches the calculation method and refreshes.
// It does nothing when method is already in use.
func (s *Service) SetMethod(ctx context.Context, method int) error {
	s.mu.Lock()
	if s.method == method {
		s.mu.Unlock()
		return nil
	}
	s.method = method
	s.mu.Unlock()

	s.log.Info().Int("method", method).Msg("calculation method changed")
	s.signal()
	_, err := s.Refresh(ctx)
	return err
}

// signal wakes Run so it re-plans its midnight timer.
func (s *Service) signal() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

func (s *Service) params() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.method, s.school
}

// Today returns the current calendar date in the location's timezone.
func (s *Service) Today(loc geo.Location) time.Time {
	now := s.now().In(loc.LoadLocation())
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

// Refresh loads today's schedule and publishes it as current.
// On failure the previous day stays current and the error is returned.
func (s *Service) Refresh(ctx context.Context) (*Day, error) {
	s.syncLocation(ctx)
	loc := s.ResolveLocation(ctx)
	day, err := s.Load(ctx, loc, s.Today(loc))
	if err == nil && loc.Timezone == "" {
		day, err = s.adoptTimezone(ctx, loc, day)
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("refresh failed, keeping previous schedule")
		if s.onError != nil {
			s.onError(err)
		}
		return s.Current(), err
	}

	prev := s.current.Swap(day)
	if s.onDay != nil && !sameDay(prev, day) {
		s.onDay(day)
	}
	return day, nil
}

// adoptTimezone handles a location without a timezone, whose date came from
// the local clock. The provider's timezone is kept for later refreshes, and the
// day is reloaded when the calendar date at the location is a different one.
func (s *Service) adoptTimezone(ctx context.Context, loc geo.Location, day *Day) (*Day, error) {
	tz := day.Schedule.Location()
	if tz == time.Local {
		return day, nil
	}
	loc.Timezone = tz.String()

	s.mu.Lock()
	if s.location != nil && s.location.Timezone == "" && sameLocation(loc, *s.location) {
		s.location = &loc
	}
	s.mu.Unlock()

	day.Location = loc
	want := s.Today(loc)
	if want.Equal(day.Schedule.Date()) {
		return day, nil
	}
	s.log.Debug().Str("timezone", loc.Timezone).Str("date", want.Format("2006-01-02")).
		Msg("reloading for the calendar day at the location")
	return s.Load(ctx, loc, want)
}

func sameDay(a, b *Day) bool {
	if a == nil || b == nil {
		return false
	}
	if !a.Schedule.Date().Equal(b.Schedule.Date()) || a.Location != b.Location || a.Method != b.Method || a.School != b.School {
		return false
	}
	for _, n := range prayer.Order {
		pa, _ := a.Schedule.Get(n)
		pb, _ := b.Schedule.Get(n)
		if pa != pb {
			return false
		}
	}
	return true
}

// Load returns the schedule for date at loc, from the store when possible.
func (s *Service) Load(ctx context.Context, loc geo.Location, date time.Time) (*Day, error) {
	method, school := s.params()
	q := store.ScheduleQuery{
		Date:      date,
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		Method:    method,
		School:    school,
	}

	if s.store != nil {
		entry, err := s.store.LoadSchedule(ctx, q)
		if err == nil {
			sched, err := buildSchedule(entry.Timings, date, entry.Timezone)
			if err == nil {
				return &Day{Schedule: sched, Hijri: entry.Hijri, Location: loc, Method: method, School: school, FromStore: true}, nil
			}
			s.log.Warn().Err(err).Msg("stored schedule is invalid, refetching")
		} else if !store.IsNotFound(err) {
			s.log.Warn().Err(err).Msg("failed to read stored schedule")
		}
	}

	start := s.now()
	var (
		resp  *api.Response
		hijri *api.HijriDate
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		resp, err = s.provider.FetchByCoordinates(gctx, date, loc.Latitude, loc.Longitude, method, school)
		return err
	})
	g.Go(func() error {
		h, err := s.provider.HijriDate(gctx, date)
		if err != nil {
			// The timings response carries a Hijri date too.
			s.log.Debug().Err(err).Msg("hijri lookup failed")
			return nil
		}
		hijri = h
		return nil
	})
	if err := g.Wait(); err != nil {
		s.recordFailure("provider")
		return nil, fmt.Errorf("failed to fetch prayer times: %w", err)
	}
	if hijri == nil && resp.Data.Date.Hijri.Day != "" {
		h := resp.Data.Date.Hijri
		hijri = &h
	}

	tz := loc.Timezone
	if tz == "" {
		tz = resp.Data.Meta.Timezone
	}
	sched, err := buildSchedule(resp.Data.Timings, date, tz)
	if err != nil {
		s.recordFailure("parse")
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordFetchSuccess(s.now().Sub(start))
	}

	if s.store != nil {
		entry := store.ScheduleEntry{Timings: resp.Data.Timings, Timezone: tz, Hijri: hijri}
		if err := s.store.SaveSchedule(ctx, q, entry); err != nil {
			s.log.Warn().Err(err).Msg("failed to save schedule")
		}
	}

	return &Day{Schedule: sched, Hijri: hijri, Location: loc, Method: method, School: school}, nil
}

func (s *Service) recordFailure(reason string) {
	if s.metrics != nil {
		s.metrics.RecordFetchFailure(reason)
	}
}

// buildSchedule parses timings for the calendar day of date in timezone tz.
func buildSchedule(timings api.Timings, date time.Time, tz string) (*prayer.Schedule, error) {
	if tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, l)
		}
	}
	sched, err := prayer.ParseTimings(timings, date)
	if err != nil {
		return nil, fmt.Errorf("invalid prayer times for %s: %w", date.Format("2006-01-02"), err)
	}
	return sched, nil
}

// Days loads n consecutive days starting at from, at most four at a time.
func (s *Service) Days(ctx context.Context, loc geo.Location, from time.Time, n int) ([]*Day, error) {
	days := make([]*Day, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := range n {
		g.Go(func() error {
			d, err := s.Load(gctx, loc, from.AddDate(0, 0, i))
			if err != nil {
				return err
			}
			days[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return days, nil
}

// Run refreshes now, then again after each midnight at the location and
// whenever the location or method changes, until ctx is done. Failed
// refreshes are retried every RetryInterval. With a PollInterval, a location
// saved to the store by another process is picked up within one interval.
func (s *Service) Run(ctx context.Context) error {
	var due time.Time // zero: refresh now
	for {
		if due.IsZero() || !s.now().Before(due) {
			due = s.now().Add(RetryInterval)
			if _, err := s.Refresh(ctx); err == nil {
				due = s.nextMidnight()
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}

		wait := max(due.Sub(s.now()), 0)
		if s.poll > 0 {
			wait = min(wait, s.poll)
		}
		s.log.Debug().Dur("wait", wait).Time("due", due).Msg("next refresh scheduled")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.changed:
			due = time.Time{}
		case <-s.after(wait):
			if s.syncLocation(ctx) {
				due = time.Time{}
			}
		}
	}
}

// nextMidnight is just after the next midnight at the current location.
func (s *Service) nextMidnight() time.Time {
	loc := s.ResolveLocation(context.Background())
	return s.Today(loc).AddDate(0, 0, 1).Add(time.Second)
}

package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/smokyabdulrahman/prayer-clock/internal/api"
	"github.com/smokyabdulrahman/prayer-clock/internal/geo"
	"github.com/smokyabdulrahman/prayer-clock/internal/prayer"
	"github.com/smokyabdulrahman/prayer-clock/internal/store"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) FetchByCoordinates(ctx context.Context, date time.Time, lat, lon float64, method, school int) (*api.Response, error) {
	args := m.Called(ctx, date, lat, lon, method, school)
	resp, _ := args.Get(0).(*api.Response)
	return resp, args.Error(1)
}

func (m *mockProvider) HijriDate(ctx context.Context, date time.Time) (*api.HijriDate, error) {
	args := m.Called(ctx, date)
	h, _ := args.Get(0).(*api.HijriDate)
	return h, args.Error(1)
}

type mockLocator struct {
	mock.Mock
}

func (m *mockLocator) Locate(ctx context.Context) (*geo.Location, error) {
	args := m.Called(ctx)
	loc, _ := args.Get(0).(*geo.Location)
	return loc, args.Error(1)
}

type fakeRecorder struct {
	mu        sync.Mutex
	successes int
	failures  []string
}

func (f *fakeRecorder) RecordFetchSuccess(time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.successes++
}

func (f *fakeRecorder) RecordFetchFailure(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, reason)
}

var (
	london = geo.Location{Latitude: 51.5074, Longitude: -0.1278, City: "London", Country: "United Kingdom", Timezone: "UTC"}
	fixed  = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
)

func sampleResponse() *api.Response {
	return &api.Response{
		Code:   200,
		Status: "OK",
		Data: api.Data{
			Timings: api.Timings{
				Fajr: "04:30", Sunrise: "05:50", Dhuhr: "12:15",
				Asr: "15:40", Maghrib: "18:20", Isha: "19:50",
			},
			Date: api.DateInfo{Hijri: api.HijriDate{Day: "6", Year: "1448"}},
			Meta: api.Meta{Timezone: "UTC"},
		},
	}
}

func newService(t *testing.T, p *mockProvider, opts Options) (*Service, *store.Store) {
	t.Helper()
	st := store.New(store.NewMemoryKV())
	opts.Provider = p
	opts.Store = st
	opts.Logger = zerolog.Nop()
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixed }
	}
	if opts.Method == 0 {
		opts.Method = 4
	}
	return New(opts), st
}

func TestLoad_FetchesAndStores(t *testing.T) {
	p := &mockProvider{}
	day := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	p.On("FetchByCoordinates", mock.Anything, day, london.Latitude, london.Longitude, 4, 0).Return(sampleResponse(), nil).Once()
	p.On("HijriDate", mock.Anything, day).Return(&api.HijriDate{Day: "06", Year: "1448", Month: api.HijriMonth{Ar: "ربيع الآخر"}}, nil).Once()

	rec := &fakeRecorder{}
	s, _ := newService(t, p, Options{Metrics: rec})

	d, err := s.Load(context.Background(), london, day)
	require.NoError(t, err)
	assert.False(t, d.FromStore)
	assert.Equal(t, "ربيع الآخر", d.Hijri.Month.Ar)
	fajr, _ := d.Schedule.Get(prayer.Fajr)
	assert.Equal(t, "04:30", fajr.Time.String())
	assert.Equal(t, 1, rec.successes)

	// Second load is served from the store; the mock would fail on a second fetch.
	d, err = s.Load(context.Background(), london, day)
	require.NoError(t, err)
	assert.True(t, d.FromStore)
	assert.Equal(t, "ربيع الآخر", d.Hijri.Month.Ar)
	p.AssertExpectations(t)
}

func TestLoad_HijriFailureFallsBackToTimings(t *testing.T) {
	p := &mockProvider{}
	p.On("FetchByCoordinates", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(sampleResponse(), nil)
	p.On("HijriDate", mock.Anything, mock.Anything).Return(nil, errors.New("gToH down"))

	s, _ := newService(t, p, Options{})
	d, err := s.Load(context.Background(), london, fixed)
	require.NoError(t, err)
	require.NotNil(t, d.Hijri)
	assert.Equal(t, "1448", d.Hijri.Year)
}

func TestLoad_ProviderFailure(t *testing.T) {
	p := &mockProvider{}
	p.On("FetchByCoordinates", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("API returned status 500"))
	p.On("HijriDate", mock.Anything, mock.Anything).Return(&api.HijriDate{}, nil).Maybe()

	rec := &fakeRecorder{}
	s, _ := newService(t, p, Options{Metrics: rec})
	_, err := s.Load(context.Background(), london, fixed)
	assert.ErrorContains(t, err, "status 500")
	assert.Equal(t, []string{"provider"}, rec.failures)
}

func TestLoad_MalformedTimings(t *testing.T) {
	resp := sampleResponse()
	resp.Data.Timings.Asr = "soon"

	p := &mockProvider{}
	p.On("FetchByCoordinates", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(resp, nil)
	p.On("HijriDate", mock.Anything, mock.Anything).Return(&api.HijriDate{}, nil)

	rec := &fakeRecorder{}
	s, st := newService(t, p, Options{Metrics: rec})
	_, err := s.Load(context.Background(), london, fixed)
	require.Error(t, err)
	assert.Equal(t, []string{"parse"}, rec.failures)

	// Nothing invalid is persisted.
	_, err = st.LoadSchedule(context.Background(), store.ScheduleQuery{Date: fixed, Latitude: london.Latitude, Longitude: london.Longitude, Method: 4})
	assert.True(t, store.IsNotFound(err))
}

func TestLoad_UsesResponseTimezoneWhenUnknown(t *testing.T) {
	if _, err := time.LoadLocation("Asia/Riyadh"); err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	resp := sampleResponse()
	resp.Data.Meta.Timezone = "Asia/Riyadh"

	p := &mockProvider{}
	p.On("FetchByCoordinates", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(resp, nil)
	p.On("HijriDate", mock.Anything, mock.Anything).Return(&api.HijriDate{}, nil)

	s, _ := newService(t, p, Options{})
	loc := geo.Location{Latitude: 21.4225, Longitude: 39.8262}
	d, err := s.Load(context.Background(), loc, fixed)
	require.NoError(t, err)
	assert.Equal(t, "Asia/Riyadh", d.Schedule.Location().String())
}

func TestResolveLocation_Chain(t *testing.T) {
	ctx := context.Background()

	t.Run("stored location wins", func(t *testing.T) {
		l := &mockLocator{}
		s, st := newService(t, &mockProvider{}, Options{Locator: l})
		require.NoError(t, st.SaveLocation(ctx, london, store.SourceManual))

		assert.Equal(t, london, s.ResolveLocation(ctx))
		l.AssertNotCalled(t, "Locate", mock.Anything)
	})

	t.Run("detected location is saved", func(t *testing.T) {
		l := &mockLocator{}
		l.On("Locate", mock.Anything).Return(&london, nil).Once()
		s, st := newService(t, &mockProvider{}, Options{Locator: l})

		assert.Equal(t, london, s.ResolveLocation(ctx))
		entry, err := st.LoadLocation(ctx)
		require.NoError(t, err)
		assert.Equal(t, store.SourceDetected, entry.Source)

		// Cached after the first call.
		assert.Equal(t, london, s.ResolveLocation(ctx))
		l.AssertExpectations(t)
	})

	t.Run("default when detection denied", func(t *testing.T) {
		l := &mockLocator{}
		l.On("Locate", mock.Anything).Return(nil, geo.ErrPermissionDenied)
		s, _ := newService(t, &mockProvider{}, Options{Locator: l})

		assert.Equal(t, geo.DefaultLocation, s.ResolveLocation(ctx))
	})

	t.Run("default without locator", func(t *testing.T) {
		s, _ := newService(t, &mockProvider{}, Options{})
		assert.Equal(t, geo.DefaultLocation, s.ResolveLocation(ctx))
	})
}

func TestRefresh_KeepsLastGoodSchedule(t *testing.T) {
	p := &mockProvider{}
	p.On("HijriDate", mock.Anything, mock.Anything).Return(&api.HijriDate{}, nil)
	p.On("FetchByCoordinates", mock.Anything, mock.Anything, mock.Anything, mock.Anything, 4, mock.Anything).Return(sampleResponse(), nil).Once()
	p.On("FetchByCoordinates", mock.Anything, mock.Anything, mock.Anything, mock.Anything, 2, mock.Anything).Return(nil, errors.New("offline"))

	var days []*Day
	s, _ := newService(t, p, Options{OnDay: func(d *Day) { days = append(days, d) }})
	s.location = &london

	first, err := s.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, days, 1)

	err = s.SetMethod(context.Background(), 2)
	require.Error(t, err)
	assert.Same(t, first, s.Current())
	assert.Len(t, days, 1)
}

func TestRefresh_OnDayOnlyOnChange(t *testing.T) {
	p := &mockProvider{}
	p.On("HijriDate", mock.Anything, mock.Anything).Return(&api.HijriDate{}, nil)
	p.On("FetchByCoordinates", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(sampleResponse(), nil)

	calls := 0
	s, _ := newService(t, p, Options{OnDay: func(*Day) { calls++ }})
	s.location = &london

	_, err := s.Refresh(context.Background())
	require.NoError(t, err)
	_, err = s.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	// A new location yields a new day.
	makkah := geo.DefaultLocation
	makkah.Timezone = "UTC"
	require.NoError(t, s.SetLocation(context.Background(), makkah))
	assert.Equal(t, 2, calls)
	assert.Equal(t, makkah, s.Current().Location)
}

func TestDays_Concurrent(t *testing.T) {
	p := &mockProvider{}
	p.On("HijriDate", mock.Anything, mock.Anything).Return(&api.HijriDate{}, nil)
	p.On("FetchByCoordinates", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(sampleResponse(), nil)

	s, _ := newService(t, p, Options{})
	from := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)

	days, err := s.Days(context.Background(), london, from, 7)
	require.NoError(t, err)
	require.Len(t, days, 7)
	for i, d := range days {
		assert.Equal(t, from.AddDate(0, 0, i), d.Schedule.Date(), "day %d out of order", i)
	}
	p.AssertNumberOfCalls(t, "FetchByCoordinates", 7)
}

func TestDays_Error(t *testing.T) {
	p := &mockProvider{}
	p.On("HijriDate", mock.Anything, mock.Anything).Return(&api.HijriDate{}, nil).Maybe()
	p.On("FetchByCoordinates", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("offline"))

	s, _ := newService(t, p, Options{})
	_, err := s.Days(context.Background(), london, fixed, 3)
	assert.ErrorContains(t, err, "offline")
}

func TestRun_RefreshesAtMidnight(t *testing.T) {
	p := &mockProvider{}
	p.On("HijriDate", mock.Anything, mock.Anything).Return(&api.HijriDate{}, nil)
	p.On("FetchByCoordinates", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(sampleResponse(), nil)

	var mu sync.Mutex
	now := fixed
	waits := make(chan time.Duration, 4)
	fire := make(chan time.Time)
	dates := make(chan time.Time, 4)

	s, _ := newService(t, p, Options{
		Now: func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		},
		After: func(d time.Duration) <-chan time.Time {
			waits <- d
			return fire
		},
		OnDay: func(d *Day) { dates <- d.Schedule.Date() },
	})
	s.location = &london

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Equal(t, time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC), <-dates)
	assert.Equal(t, 12*time.Hour+time.Second, <-waits)

	mu.Lock()
	now = time.Date(2026, 10, 19, 0, 0, 1, 0, time.UTC)
	mu.Unlock()
	fire <- now

	assert.Equal(t, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), <-dates)
	<-waits

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestRun_RetriesAfterFailure(t *testing.T) {
	p := &mockProvider{}
	p.On("HijriDate", mock.Anything, mock.Anything).Return(&api.HijriDate{}, nil).Maybe()
	p.On("FetchByCoordinates", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("offline"))

	waits := make(chan time.Duration, 1)
	errs := make(chan error, 1)
	s, _ := newService(t, p, Options{
		After: func(d time.Duration) <-chan time.Time {
			waits <- d
			return make(chan time.Time)
		},
		OnError: func(err error) { errs <- err },
	})
	s.location = &london

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	assert.ErrorContains(t, <-errs, "offline")
	assert.Equal(t, RetryInterval, <-waits)
	assert.Nil(t, s.Current())
}

var paris = geo.Location{Latitude: 48.8566, Longitude: 2.3522, City: "Paris", Country: "France", Timezone: "UTC"}

// newSharedService returns a service and a second Store over the same KV,
// standing in for another process such as `locate`.
func newSharedService(t *testing.T, p *mockProvider, opts Options) (*Service, *store.Store) {
	t.Helper()
	kv := store.NewMemoryKV()
	opts.Provider = p
	opts.Store = store.New(kv)
	opts.Logger = zerolog.Nop()
	opts.Method = 4
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixed }
	}
	return New(opts), store.New(kv)
}

func TestRefresh_FollowsStoredLocation(t *testing.T) {
	ctx := context.Background()
	p := &mockProvider{}
	p.On("HijriDate", mock.Anything, mock.Anything).Return(&api.HijriDate{}, nil)
	p.On("FetchByCoordinates", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(sampleResponse(), nil)

	s, other := newSharedService(t, p, Options{})
	require.NoError(t, other.SaveLocation(ctx, london, store.SourceManual))

	d, err := s.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, "London", d.Location.City)

	require.NoError(t, other.SaveLocation(ctx, paris, store.SourceManual))
	d, err = s.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Paris", d.Location.City)
	assert.Equal(t, paris, s.ResolveLocation(ctx))
}

func TestRefresh_PinnedLocationIgnoresStore(t *testing.T) {
	ctx := context.Background()
	p := &mockProvider{}
	p.On("HijriDate", mock.Anything, mock.Anything).Return(&api.HijriDate{}, nil)
	p.On("FetchByCoordinates", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(sampleResponse(), nil)

	pinned := london
	s, other := newSharedService(t, p, Options{Location: &pinned})
	_, err := s.Refresh(ctx)
	require.NoError(t, err)

	require.NoError(t, other.SaveLocation(ctx, paris, store.SourceManual))
	d, err := s.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, "London", d.Location.City)
}

func TestRun_PicksUpLocationSavedElsewhere(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := &mockProvider{}
	p.On("HijriDate", mock.Anything, mock.Anything).Return(&api.HijriDate{}, nil)
	p.On("FetchByCoordinates", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(sampleResponse(), nil)

	waits := make(chan time.Duration, 4)
	fire := make(chan time.Time)
	days := make(chan *Day, 4)
	s, other := newSharedService(t, p, Options{
		PollInterval: time.Minute,
		After: func(d time.Duration) <-chan time.Time {
			waits <- d
			return fire
		},
		OnDay: func(d *Day) { days <- d },
	})
	require.NoError(t, other.SaveLocation(ctx, london, store.SourceManual))

	go s.Run(ctx)

	assert.Equal(t, "London", (<-days).Location.City)
	assert.Equal(t, time.Minute, <-waits, "poll interval caps the wait")

	// Nothing changed: the poll does not refresh.
	fire <- fixed
	assert.Equal(t, time.Minute, <-waits)
	assert.Empty(t, days)

	require.NoError(t, other.SaveLocation(ctx, paris, store.SourceManual))
	fire <- fixed
	assert.Equal(t, "Paris", (<-days).Location.City)
}

func TestRefresh_UsesCalendarDayAtLocation(t *testing.T) {
	tokyoTZ, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	resp := sampleResponse()
	resp.Data.Meta.Timezone = "Asia/Tokyo"

	p := &mockProvider{}
	p.On("HijriDate", mock.Anything, mock.Anything).Return(&api.HijriDate{}, nil)
	p.On("FetchByCoordinates", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(resp, nil)

	// 20:00 UTC is already 05:00 the next day in Tokyo.
	now := time.Date(2026, 10, 18, 20, 0, 0, 0, time.UTC)
	tokyo := geo.Location{Latitude: 35.6762, Longitude: 139.6503, City: "Tokyo"}
	s, _ := newService(t, p, Options{
		Location: &tokyo,
		Now:      func() time.Time { return now },
	})

	d, err := s.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 19, 0, 0, 0, 0, tokyoTZ), d.Schedule.Date())
	assert.Equal(t, "Asia/Tokyo", d.Location.Timezone)
	assert.Equal(t, "Asia/Tokyo", s.ResolveLocation(context.Background()).Timezone)
	p.AssertCalled(t, "FetchByCoordinates", mock.Anything, mock.MatchedBy(func(date time.Time) bool {
		return date.Format("2006-01-02") == "2026-10-19"
	}), tokyo.Latitude, tokyo.Longitude, 4, 0)

	// The midnight refresh follows Tokyo's clock too.
	assert.Equal(t, time.Date(2026, 10, 20, 0, 0, 1, 0, tokyoTZ), s.nextMidnight())
}

func TestSetMethod_UnchangedIsNoop(t *testing.T) {
	p := &mockProvider{}
	s, _ := newService(t, p, Options{})
	s.location = &london

	require.NoError(t, s.SetMethod(context.Background(), 4))
	assert.Equal(t, 4, s.Method())
	p.AssertNotCalled(t, "FetchByCoordinates", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

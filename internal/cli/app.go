package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/smokyabdulrahman/prayer-clock/internal/api"
	"github.com/smokyabdulrahman/prayer-clock/internal/config"
	"github.com/smokyabdulrahman/prayer-clock/internal/countdown"
	"github.com/smokyabdulrahman/prayer-clock/internal/geo"
	"github.com/smokyabdulrahman/prayer-clock/internal/metrics"
	"github.com/smokyabdulrahman/prayer-clock/internal/prayer"
	"github.com/smokyabdulrahman/prayer-clock/internal/service"
	"github.com/smokyabdulrahman/prayer-clock/internal/store"
)

// app holds the collaborators a command needs, built from the merged config.
type app struct {
	cfg    *config.Config
	log    zerolog.Logger
	client *api.Client
	store  *store.Store // nil when the backend could not be opened
}

func newApp(ctx context.Context) *app {
	cfg := loadedConfig
	if cfg == nil {
		cfg = (&config.Config{}).WithDefaults()
	}

	a := &app{cfg: cfg, log: logger, client: api.NewClient()}
	if FlagAPIURL != "" {
		a.client.BaseURL = FlagAPIURL
	}

	kv, err := store.Open(ctx, store.Options{Backend: cfg.Store, Path: cfg.StorePath, RedisAddr: cfg.RedisAddr})
	if err != nil {
		// Store failure is non-fatal; we just skip persistence.
		a.log.Warn().Err(err).Str("backend", cfg.Store).Msg("store disabled")
	} else {
		a.store = store.New(kv)
	}
	return a
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Debug().Err(err).Msg("failed to close store")
		}
	}
}

// pinnedLocation returns the location named by config or flags, if any.
// Coordinates win over a city; a city is resolved through the API, which
// reports the coordinates and timezone it used.
func (a *app) pinnedLocation(ctx context.Context) (*geo.Location, error) {
	switch {
	case a.cfg.HasCoordinates():
		return &geo.Location{
			Latitude:  a.cfg.Latitude,
			Longitude: a.cfg.Longitude,
			City:      a.cfg.City,
			Country:   a.cfg.Country,
		}, nil
	case a.cfg.City != "":
		if a.cfg.Country == "" {
			return nil, fmt.Errorf("--country is required when using --city")
		}
		resp, err := a.client.FetchByCity(ctx, time.Now(), a.cfg.City, a.cfg.Country, a.cfg.MethodOrDefault(api.DefaultMethod), a.cfg.SchoolOrDefault(0))
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s, %s: %w", a.cfg.City, a.cfg.Country, err)
		}
		return &geo.Location{
			Latitude:  resp.Data.Meta.Latitude,
			Longitude: resp.Data.Meta.Longitude,
			City:      a.cfg.City,
			Country:   a.cfg.Country,
			Timezone:  resp.Data.Meta.Timezone,
		}, nil
	default:
		return nil, nil
	}
}

// service builds a Service from the config. opts may preset callbacks and metrics.
func (a *app) service(ctx context.Context, opts service.Options) (*service.Service, error) {
	pinned, err := a.pinnedLocation(ctx)
	if err != nil {
		return nil, err
	}
	opts.Provider = a.client
	opts.Store = a.store
	opts.Location = pinned
	opts.Locator = geo.NewIPLocator(a.cfg.AutoDetectEnabled())
	opts.Method = a.cfg.MethodOrDefault(api.DefaultMethod)
	opts.School = a.cfg.SchoolOrDefault(0)
	opts.Logger = a.log
	return service.New(opts), nil
}

// today loads today's schedule and computes the countdown state at now.
func (a *app) today(ctx context.Context, m metrics.Recorder) (*service.Day, countdown.State, error) {
	svc, err := a.service(ctx, service.Options{Metrics: m})
	if err != nil {
		return nil, countdown.State{}, err
	}
	day, err := svc.Refresh(ctx)
	if err != nil {
		return nil, countdown.State{}, err
	}
	return day, stateAt(day, time.Now()), nil
}

// stateAt ticks the interval containing now. A degenerate interval still
// yields a usable remaining time, so it is only logged.
func stateAt(day *service.Day, now time.Time) countdown.State {
	now = now.In(day.Schedule.Location())
	iv := countdown.Anchor(prayer.ResolveAt(day.Schedule, now), now)
	st, err := iv.Tick(now)
	if err != nil {
		logger.Warn().Err(err).Msg("progress unknown")
	}
	return st
}

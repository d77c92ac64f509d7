package countdown

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/smokyabdulrahman/prayer-clock/internal/prayer"
)

// Defaults for Options.
const (
	DefaultTickInterval  = time.Second
	DefaultRolloverDelay = time.Second
)

// Ticker delivers tick instants on C.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock provides the current instant and tickers.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// SystemClock is the default Clock backed by the time package.
var SystemClock Clock = systemClock{}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// Observer receives engine output. Calls come from the engine's goroutine,
// one at a time; an observer must not block or call Start/Stop.
type Observer interface {
	OnTick(State)
	OnRollover(from, to Interval)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Tick     func(State)
	Rollover func(from, to Interval)
}

func (o ObserverFuncs) OnTick(s State) {
	if o.Tick != nil {
		o.Tick(s)
	}
}

func (o ObserverFuncs) OnRollover(from, to Interval) {
	if o.Rollover != nil {
		o.Rollover(from, to)
	}
}

// Options configures an Engine.
type Options struct {
	Clock         Clock
	TickInterval  time.Duration
	RolloverDelay time.Duration
	Logger        zerolog.Logger
}

// Engine owns at most one live countdown. Starting a new countdown cancels
// the previous run and waits for it to exit, so two runs never publish at once.
type Engine struct {
	clock         Clock
	tickInterval  time.Duration
	rolloverDelay time.Duration
	log           zerolog.Logger
	observers     []Observer

	ctl sync.Mutex // serializes Start/Stop

	mu      sync.Mutex
	active  *run
	current State
	ok      bool
}

type run struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an idle Engine.
func New(opts Options, observers ...Observer) *Engine {
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.RolloverDelay <= 0 {
		opts.RolloverDelay = DefaultRolloverDelay
	}
	return &Engine{
		clock:         opts.Clock,
		tickInterval:  opts.TickInterval,
		rolloverDelay: opts.RolloverDelay,
		log:           opts.Logger.With().Str("component", "countdown").Logger(),
		observers:     observers,
	}
}

// Start cancels any running countdown and begins ticking against s.
// The first tick is published before Start's goroutine waits on the ticker.
func (e *Engine) Start(ctx context.Context, s *prayer.Schedule) error {
	if s == nil {
		return errors.New("countdown: nil schedule")
	}

	e.ctl.Lock()
	defer e.ctl.Unlock()

	e.stopLocked()

	runCtx, cancel := context.WithCancel(ctx)
	r := &run{id: uuid.NewString(), cancel: cancel, done: make(chan struct{})}

	e.mu.Lock()
	e.active = r
	e.mu.Unlock()

	e.log.Debug().Str("run_id", r.id).Time("schedule_date", s.Date()).Msg("countdown started")
	go e.loop(runCtx, r, s)
	return nil
}

// Stop cancels the running countdown, if any, and waits for it to exit.
func (e *Engine) Stop() {
	e.ctl.Lock()
	defer e.ctl.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	e.mu.Lock()
	prev := e.active
	e.active = nil
	e.mu.Unlock()

	if prev == nil {
		return
	}
	prev.cancel()
	<-prev.done
	e.log.Debug().Str("run_id", prev.id).Msg("countdown stopped")
}

// Running reports whether a countdown is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active != nil
}

// Current returns the most recently published state.
func (e *Engine) Current() (State, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current, e.ok
}

// tracker is the per-run mutable state, touched only by the run's goroutine.
type tracker struct {
	runID      string
	schedule   *prayer.Schedule
	interval   Interval
	started    bool
	rolloverAt time.Time
	warned     bool // degenerate interval already logged
}

func (e *Engine) loop(ctx context.Context, r *run, s *prayer.Schedule) {
	defer close(r.done)

	ticker := e.clock.NewTicker(e.tickInterval)
	defer ticker.Stop()

	t := &tracker{runID: r.id, schedule: s}
	e.step(t, e.clock.Now())

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if ctx.Err() != nil {
				return
			}
			e.step(t, e.clock.Now())
		}
	}
}

// step advances the countdown to now and publishes the resulting state.
func (e *Engine) step(t *tracker, now time.Time) {
	now = now.In(t.schedule.Location())

	switch {
	case !t.started:
		t.interval = Anchor(prayer.ResolveAt(t.schedule, now), now)
		t.started = true
	case now.Before(t.interval.Start):
		// Clock moved backwards past the previous prayer.
		e.reresolve(t, now, "clock moved backwards")
	case !t.rolloverAt.IsZero() && !now.Before(t.rolloverAt):
		e.reresolve(t, now, "rollover")
	case t.rolloverAt.IsZero() && !now.Before(t.interval.End):
		// A rollover tick was missed (suspend, clock jump forward).
		e.reresolve(t, now, "missed rollover")
	}

	st, err := t.interval.Tick(now)
	if err != nil && !t.warned {
		t.warned = true
		e.log.Warn().Err(err).Str("run_id", t.runID).
			Time("start", t.interval.Start).Time("end", t.interval.End).
			Msg("progress unknown")
	}
	if st.Rollover && t.rolloverAt.IsZero() {
		t.rolloverAt = now.Add(e.rolloverDelay)
	}

	e.mu.Lock()
	e.current, e.ok = st, true
	e.mu.Unlock()

	for _, o := range e.observers {
		o.OnTick(st)
	}
}

func (e *Engine) reresolve(t *tracker, now time.Time, reason string) {
	from := t.interval
	t.interval = Anchor(prayer.ResolveAt(t.schedule, now), now)
	t.rolloverAt = time.Time{}
	t.warned = false

	if from.Next.Name == t.interval.Next.Name && from.End.Equal(t.interval.End) {
		return
	}

	e.log.Info().Str("run_id", t.runID).Str("reason", reason).
		Str("from", string(from.Next.Name)).Str("to", string(t.interval.Next.Name)).
		Time("end", t.interval.End).Msg("next prayer changed")

	for _, o := range e.observers {
		o.OnRollover(from, t.interval)
	}
}

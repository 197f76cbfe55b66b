// Package clock implements the session timer: a four-phase state machine
// (idle, running, paused, break) persisted through store.Store so it can be
// rebuilt from timestamps after the process restarts.
package clock

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/joescharf/focus/internal/models"
	"github.com/joescharf/focus/internal/store"
)

// Clock applies timer transitions to the persisted state. Each operation is
// a single atomic store update; an operation returns only after the write has
// committed.
type Clock struct {
	store    store.Store
	notifier Notifier
	now      func() time.Time
	log      zerolog.Logger
}

// Option configures a Clock.
type Option func(*Clock)

// WithNow overrides the wall clock.
func WithNow(now func() time.Time) Option {
	return func(c *Clock) { c.now = now }
}

// WithNotifier sets the notifier called after a natural expiry commits.
func WithNotifier(n Notifier) Option {
	return func(c *Clock) { c.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Clock) { c.log = l }
}

// New creates a Clock over s.
func New(s store.Store, opts ...Option) *Clock {
	c := &Clock{
		store: s,
		now:   time.Now,
		log:   zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Now returns the clock's current time.
func (c *Clock) Now() time.Time { return c.now() }

// State reads the persisted state.
func (c *Clock) State(ctx context.Context) (models.SessionState, error) {
	v, err := c.store.Get(ctx, store.StateKeys...)
	if err != nil {
		return models.SessionState{}, err
	}
	return store.DecodeState(v)
}

// View reads the state and projects it at the current time.
func (c *Clock) View(ctx context.Context) (View, error) {
	s, err := c.State(ctx)
	if err != nil {
		return View{}, err
	}
	return NewView(s, c.now()), nil
}

// transition is a pure state change evaluated inside a store update.
type transition func(s models.SessionState, now time.Time) (models.SessionState, []Event, error)

// apply runs t atomically. Natural-expiry events are written to the
// notification key in the same update, then passed to the notifier.
func (c *Clock) apply(ctx context.Context, op string, t transition) (models.SessionState, error) {
	var (
		before, after models.SessionState
		notes         []models.Notification
	)
	now := c.now()

	err := c.store.Update(ctx, store.StateKeys, func(cur store.Values) (store.Values, error) {
		s, err := store.DecodeState(cur)
		if err != nil {
			return nil, err
		}
		next, events, err := t(s, now)
		if err != nil {
			return nil, err
		}
		before, after = s, next
		notes = notes[:0]
		for _, ev := range events {
			notes = append(notes, newNotification(ev))
		}

		if next == s && len(cur) == len(store.StateKeys) {
			return nil, nil
		}
		out := store.EncodeState(next)
		if len(notes) > 0 {
			out[store.KeyNotification] = store.EncodeNotification(notes[len(notes)-1])
		}
		return out, nil
	})
	if err != nil {
		return models.SessionState{}, fmt.Errorf("%s: %w", op, err)
	}

	if before.Phase != after.Phase {
		c.log.Debug().
			Str("op", op).
			Str("from", string(before.Phase)).
			Str("to", string(after.Phase)).
			Int("remaining", after.RemainingSeconds).
			Msg("phase change")
	}
	if c.notifier != nil {
		for _, n := range notes {
			c.notifier.Notify(ctx, n)
		}
	}
	return after, nil
}

// Start begins a work interval. seconds > 0 overrides the session length when
// idle. Starting an active countdown, or one with nothing remaining and no
// override, leaves the state unchanged. Starting while paused resumes.
func (c *Clock) Start(ctx context.Context, seconds int) (models.SessionState, error) {
	return c.apply(ctx, "start", func(s models.SessionState, now time.Time) (models.SessionState, []Event, error) {
		return applyStart(s, seconds, now), nil, nil
	})
}

// Tick advances the countdown by one second. Only the tick owner calls it.
func (c *Clock) Tick(ctx context.Context) (models.SessionState, error) {
	return c.apply(ctx, "tick", func(s models.SessionState, now time.Time) (models.SessionState, []Event, error) {
		next, events := applyTick(s, now)
		return next, events, nil
	})
}

// Pause freezes the countdown. Time elapsed since the last tick is folded
// in first so a stale anchor is not lost.
func (c *Clock) Pause(ctx context.Context) (models.SessionState, error) {
	return c.apply(ctx, "pause", func(s models.SessionState, now time.Time) (models.SessionState, []Event, error) {
		s, events := applyReconcile(s, now)
		next, err := applyPause(s)
		return next, events, err
	})
}

// Resume restarts the phase that was paused.
func (c *Clock) Resume(ctx context.Context) (models.SessionState, error) {
	return c.apply(ctx, "resume", func(s models.SessionState, now time.Time) (models.SessionState, []Event, error) {
		next, err := applyResume(s, now)
		return next, nil, err
	})
}

// Stop resets to idle. Cumulative runtime is kept.
func (c *Clock) Stop(ctx context.Context) (models.SessionState, error) {
	return c.apply(ctx, "stop", func(s models.SessionState, _ time.Time) (models.SessionState, []Event, error) {
		return applyStop(s), nil, nil
	})
}

// SetDuration changes the work interval length. Only valid while idle.
func (c *Clock) SetDuration(ctx context.Context, seconds int) (models.SessionState, error) {
	return c.apply(ctx, "set duration", func(s models.SessionState, _ time.Time) (models.SessionState, []Event, error) {
		next, err := applySetDuration(s, seconds)
		return next, nil, err
	})
}

// Reconcile recomputes the countdown from the persisted anchor. Call it
// whenever a process takes over ticking.
func (c *Clock) Reconcile(ctx context.Context) (models.SessionState, error) {
	return c.apply(ctx, "reconcile", func(s models.SessionState, now time.Time) (models.SessionState, []Event, error) {
		next, events := applyReconcile(s, now)
		return next, events, nil
	})
}

// ElapsedRuntime returns total work seconds including the running segment.
func (c *Clock) ElapsedRuntime(ctx context.Context) (int64, error) {
	s, err := c.State(ctx)
	if err != nil {
		return 0, err
	}
	return ElapsedRuntime(s, c.now()), nil
}

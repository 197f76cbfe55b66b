package clock

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/joescharf/focus/internal/models"
	"github.com/joescharf/focus/internal/store"
)

const (
	// DefaultTickInterval is the countdown resolution.
	DefaultTickInterval = time.Second
	// DefaultJumpThreshold is the anchor gap above which a tick is replaced
	// by a reconcile, e.g. after the host slept.
	DefaultJumpThreshold = 2 * time.Second
	// DefaultRenewEvery is how many ticks pass between lease renewals.
	DefaultRenewEvery = 5
)

// Lease is the exclusive right to tick. Only one runner may hold it.
type Lease interface {
	Renew(ctx context.Context) error
	Release(ctx context.Context) error
}

// Runner owns the per-second decrement. It reconciles once on start, then
// ticks until ctx is cancelled or the lease is lost.
type Runner struct {
	clock *Clock
	store store.Store

	Interval      time.Duration
	JumpThreshold time.Duration
	Lease         Lease
	RenewEvery    int
	Log           zerolog.Logger
}

// NewRunner creates a runner that ticks c and watches s for transitions made
// by other processes.
func NewRunner(c *Clock, s store.Store) *Runner {
	return &Runner{
		clock:         c,
		store:         s,
		Interval:      DefaultTickInterval,
		JumpThreshold: DefaultJumpThreshold,
		RenewEvery:    DefaultRenewEvery,
		Log:           zerolog.Nop(),
	}
}

// Run blocks until ctx is done. It returns nil on cancellation and an error
// if the lease cannot be renewed.
func (r *Runner) Run(ctx context.Context) error {
	if r.Lease != nil {
		defer func() {
			if err := r.Lease.Release(context.WithoutCancel(ctx)); err != nil {
				r.Log.Warn().Err(err).Msg("release tick lease")
			}
		}()
	}

	s, err := r.clock.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("initial reconcile: %w", err)
	}
	r.Log.Info().
		Str("phase", string(s.Phase)).
		Int("remaining", s.RemainingSeconds).
		Msg("timer runner started")

	// A phase change made elsewhere (start, resume, stop) restarts the
	// schedule so the first decrement lands a full interval later.
	resync := make(chan struct{}, 1)
	cancel := r.store.OnChange(func(ch store.Changes) {
		if _, ok := ch[store.KeyPhase]; !ok {
			return
		}
		select {
		case resync <- struct{}{}:
		default:
		}
	})
	defer cancel()

	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	ticks := 0
	for {
		select {
		case <-ctx.Done():
			r.Log.Info().Msg("timer runner stopped")
			return nil
		case <-resync:
			ticker.Reset(r.Interval)
		case <-ticker.C:
			if err := r.step(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				// Store errors are transient; the next reconcile catches up.
				r.Log.Warn().Err(err).Msg("tick")
			}
			ticks++
			if r.Lease != nil && r.RenewEvery > 0 && ticks%r.RenewEvery == 0 {
				if err := r.Lease.Renew(ctx); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("renew tick lease: %w", err)
				}
			}
		}
	}
}

// step ticks, or reconciles when the wall clock moved further than one
// interval since the anchor.
func (r *Runner) step(ctx context.Context) error {
	threshold := r.JumpThreshold
	_, err := r.clock.apply(ctx, "tick", func(s models.SessionState, now time.Time) (models.SessionState, []Event, error) {
		if s.Phase.Counting() && s.PhaseStartedAtEpochMs != nil &&
			now.UnixMilli()-*s.PhaseStartedAtEpochMs >= threshold.Milliseconds() {
			next, events := applyReconcile(s, now)
			return next, events, nil
		}
		next, events := applyTick(s, now)
		return next, events, nil
	})
	return err
}

package clock

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/focus/internal/models"
	"github.com/joescharf/focus/internal/store"
)

type fakeTime struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeTime) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeTime) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "focus.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

type recorder struct {
	mu    sync.Mutex
	notes []models.Notification
}

func (r *recorder) Notify(_ context.Context, n models.Notification) {
	r.mu.Lock()
	r.notes = append(r.notes, n)
	r.mu.Unlock()
}

func (r *recorder) all() []models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Notification(nil), r.notes...)
}

func newTestClock(t *testing.T) (*Clock, *store.SQLiteStore, *fakeTime, *recorder) {
	t.Helper()
	s := newTestStore(t)
	ft := &fakeTime{t: t0}
	rec := &recorder{}
	return New(s, WithNow(ft.Now), WithNotifier(rec)), s, ft, rec
}

func TestClock_DefaultState(t *testing.T) {
	c, _, _, _ := newTestClock(t)
	s, err := c.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSessionState(), s)
}

func TestClock_StartPersistsAllFields(t *testing.T) {
	c, st, _, _ := newTestClock(t)
	ctx := context.Background()

	s, err := c.Start(ctx, 600)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseRunning, s.Phase)

	v, err := st.Get(ctx, store.StateKeys...)
	require.NoError(t, err)
	assert.Len(t, v, len(store.StateKeys))
	assert.JSONEq(t, `true`, string(v[store.KeyFocus]))
	assert.JSONEq(t, `"running"`, string(v[store.KeyPhase]))
	assert.JSONEq(t, `600`, string(v[store.KeyRemainingSeconds]))

	got, err := c.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestClock_TickToBreakNotifies(t *testing.T) {
	c, st, ft, rec := newTestClock(t)
	ctx := context.Background()

	_, err := c.Start(ctx, 3)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		ft.Advance(time.Second)
		_, err = c.Tick(ctx)
		require.NoError(t, err)
	}

	s, err := c.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseBreak, s.Phase)
	assert.Equal(t, 300, s.RemainingSeconds)
	assert.Equal(t, int64(3), s.CumulativeRuntimeSeconds)

	notes := rec.all()
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationWorkComplete, notes[0].Kind)
	assert.Equal(t, 300, notes[0].BreakSeconds)
	assert.Len(t, notes[0].ID, 26)

	v, err := st.Get(ctx, store.KeyNotification, store.KeyFocus)
	require.NoError(t, err)
	stored, ok, err := store.DecodeNotification(v[store.KeyNotification])
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, notes[0].ID, stored.ID)
	assert.JSONEq(t, `false`, string(v[store.KeyFocus]))
}

func TestClock_ReconcileAfterRestart(t *testing.T) {
	c, st, ft, _ := newTestClock(t)
	ctx := context.Background()

	_, err := c.Start(ctx, 60)
	require.NoError(t, err)

	// The process dies; a new one comes up 75 seconds later.
	ft.Advance(75 * time.Second)
	restarted := New(st, WithNow(ft.Now))

	s, err := restarted.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseBreak, s.Phase)
	assert.Equal(t, 285, s.RemainingSeconds)
	assert.Equal(t, ft.Now().UnixMilli(), *s.PhaseStartedAtEpochMs)

	// Reconciling twice at the same instant changes nothing.
	again, err := restarted.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, s, again)
}

func TestClock_PauseFoldsElapsed(t *testing.T) {
	c, _, ft, _ := newTestClock(t)
	ctx := context.Background()

	_, err := c.Start(ctx, 60)
	require.NoError(t, err)
	ft.Advance(10 * time.Second)

	s, err := c.Pause(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.PhasePaused, s.Phase)
	assert.Equal(t, 50, s.RemainingSeconds)

	ft.Advance(time.Hour)
	v, err := c.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50, v.RemainingSeconds, "paused countdown is frozen")

	s, err = c.Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseRunning, s.Phase)
	assert.Equal(t, 50, s.RemainingSeconds)
}

func TestClock_InvalidTransitions(t *testing.T) {
	c, _, _, _ := newTestClock(t)
	ctx := context.Background()

	_, err := c.Pause(ctx)
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	_, err = c.Resume(ctx)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = c.Start(ctx, 0)
	require.NoError(t, err)
	_, err = c.SetDuration(ctx, 900)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// a failed transition writes nothing
	s, err := c.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseRunning, s.Phase)
	assert.Equal(t, models.DefaultSessionSeconds, s.SessionDurationSeconds)
}

func TestClock_StopKeepsRuntime(t *testing.T) {
	c, _, ft, _ := newTestClock(t)
	ctx := context.Background()

	_, err := c.Start(ctx, 2)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		ft.Advance(time.Second)
		_, err = c.Tick(ctx)
		require.NoError(t, err)
	}

	s, err := c.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseIdle, s.Phase)
	assert.Equal(t, 2, s.RemainingSeconds)
	assert.Equal(t, int64(2), s.CumulativeRuntimeSeconds)

	rt, err := c.ElapsedRuntime(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rt)
}

func TestClock_SetDuration(t *testing.T) {
	c, _, _, _ := newTestClock(t)
	ctx := context.Background()

	s, err := c.SetDuration(ctx, 2700)
	require.NoError(t, err)
	assert.Equal(t, 2700, s.RemainingSeconds)

	v, err := c.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, 900, v.BreakSeconds)
}

func TestClock_ConcurrentTransitionsStayConsistent(t *testing.T) {
	c, _, _, _ := newTestClock(t)
	ctx := context.Background()
	_, err := c.Start(ctx, 600)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Pause(ctx)
			_, _ = c.Resume(ctx)
		}()
	}
	wg.Wait()

	s, err := c.State(ctx)
	require.NoError(t, err)
	if s.Phase == models.PhasePaused {
		assert.Nil(t, s.PhaseStartedAtEpochMs)
	} else {
		assert.Equal(t, models.PhaseRunning, s.Phase)
		assert.NotNil(t, s.PhaseStartedAtEpochMs)
	}
	assert.Equal(t, 600, s.RemainingSeconds)
}

package clock

import (
	"context"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/joescharf/focus/internal/models"
)

// Notifier surfaces timer events after they have been persisted.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n models.Notification)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, n models.Notification) { f(ctx, n) }

// LogNotifier writes events to a structured logger.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Notify logs n at info level.
func (l LogNotifier) Notify(_ context.Context, n models.Notification) {
	ev := l.Logger.Info().
		Str("id", n.ID).
		Str("kind", string(n.Kind)).
		Time("at", n.At)
	if n.BreakSeconds > 0 {
		ev = ev.Int("break_seconds", n.BreakSeconds)
	}
	ev.Msg(Message(n))
}

// Message returns the user-facing text for n.
func Message(n models.Notification) string {
	switch n.Kind {
	case models.NotificationWorkComplete:
		return "Work session complete. Time for a " + (time.Duration(n.BreakSeconds) * time.Second).String() + " break."
	case models.NotificationBreakComplete:
		return "Break is over. Back to work."
	}
	return string(n.Kind)
}

// newNotification stamps ev with a ULID ordered by event time.
func newNotification(ev Event) models.Notification {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	id := ulid.MustNew(ulid.Timestamp(ev.At), ulid.Monotonic(entropy, 0)).String()
	return models.Notification{
		ID:           id,
		Kind:         ev.Kind,
		At:           ev.At.UTC(),
		BreakSeconds: ev.BreakSeconds,
	}
}

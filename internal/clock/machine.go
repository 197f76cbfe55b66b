package clock

import (
	"errors"
	"fmt"
	"time"

	"github.com/joescharf/focus/internal/models"
)

// ErrInvalidTransition is returned when an operation is not allowed from the
// current phase.
var ErrInvalidTransition = errors.New("invalid transition")

// breakTable maps a work interval length to its break length, in seconds.
var breakTable = map[int]int{
	25 * 60: 5 * 60,
	45 * 60: 15 * 60,
	60 * 60: 25 * 60,
}

// DefaultBreakSeconds is used for work intervals missing from the table.
const DefaultBreakSeconds = 5 * 60

// BreakSeconds returns the break that follows a work interval of the given
// length.
func BreakSeconds(sessionSeconds int) int {
	if b, ok := breakTable[sessionSeconds]; ok {
		return b
	}
	return DefaultBreakSeconds
}

// Event is a natural-expiry event produced by a transition.
type Event struct {
	Kind         models.NotificationKind
	At           time.Time
	BreakSeconds int
}

func epochMs(t time.Time) *int64 {
	return models.Int64Ptr(t.UnixMilli())
}

// applyStart implements start. override <= 0 means no override. It returns
// the state unchanged when the countdown is already active or nothing is
// left to run.
func applyStart(s models.SessionState, override int, now time.Time) models.SessionState {
	switch s.Phase {
	case models.PhaseRunning, models.PhaseBreak:
		return s
	case models.PhasePaused:
		if next, err := applyResume(s, now); err == nil {
			return next
		}
		return s
	}

	if override > 0 {
		s.SessionDurationSeconds = override
		s.RemainingSeconds = override
	} else if s.RemainingSeconds <= 0 {
		return s
	}

	s.Phase = models.PhaseRunning
	s.PhaseStartedAtEpochMs = epochMs(now)
	if s.ActiveSessionStartedAtEpochMs == nil {
		s.ActiveSessionStartedAtEpochMs = epochMs(now)
	}
	s.PausedPhase = ""
	return s
}

// applyTick advances a counting phase by one second.
func applyTick(s models.SessionState, now time.Time) (models.SessionState, []Event) {
	if !s.Phase.Counting() {
		return s, nil
	}
	if s.RemainingSeconds > 0 {
		s.RemainingSeconds--
	}
	s.PhaseStartedAtEpochMs = epochMs(now)
	if s.RemainingSeconds > 0 {
		return s, nil
	}
	next, ev := expire(s, now)
	return next, []Event{ev}
}

// expire replays the natural-expiry transition of the current phase.
func expire(s models.SessionState, at time.Time) (models.SessionState, Event) {
	if s.Phase == models.PhaseBreak {
		return completeBreak(s, at)
	}
	return completeWorkInterval(s, at)
}

func completeWorkInterval(s models.SessionState, at time.Time) (models.SessionState, Event) {
	brk := BreakSeconds(s.SessionDurationSeconds)
	s.CumulativeRuntimeSeconds += int64(s.SessionDurationSeconds)
	s.CompletedSessions++
	s.ActiveSessionStartedAtEpochMs = nil
	s.Phase = models.PhaseBreak
	s.RemainingSeconds = brk
	s.PhaseStartedAtEpochMs = epochMs(at)
	return s, Event{Kind: models.NotificationWorkComplete, At: at, BreakSeconds: brk}
}

func completeBreak(s models.SessionState, at time.Time) (models.SessionState, Event) {
	s.Phase = models.PhaseRunning
	s.RemainingSeconds = s.SessionDurationSeconds
	s.PhaseStartedAtEpochMs = epochMs(at)
	s.ActiveSessionStartedAtEpochMs = epochMs(at)
	return s, Event{Kind: models.NotificationBreakComplete, At: at}
}

func applyPause(s models.SessionState) (models.SessionState, error) {
	if !s.Phase.Counting() {
		return s, fmt.Errorf("pause from %s: %w", s.Phase, ErrInvalidTransition)
	}
	s.PausedPhase = s.Phase
	s.Phase = models.PhasePaused
	s.PhaseStartedAtEpochMs = nil
	return s, nil
}

func applyResume(s models.SessionState, now time.Time) (models.SessionState, error) {
	if s.Phase != models.PhasePaused {
		return s, fmt.Errorf("resume from %s: %w", s.Phase, ErrInvalidTransition)
	}
	if s.RemainingSeconds <= 0 {
		return s, fmt.Errorf("resume with nothing remaining: %w", ErrInvalidTransition)
	}
	s.Phase = models.PhaseRunning
	if s.PausedPhase == models.PhaseBreak {
		s.Phase = models.PhaseBreak
	}
	s.PausedPhase = ""
	s.PhaseStartedAtEpochMs = epochMs(now)
	return s, nil
}

func applyStop(s models.SessionState) models.SessionState {
	s.Phase = models.PhaseIdle
	s.RemainingSeconds = s.SessionDurationSeconds
	s.PhaseStartedAtEpochMs = nil
	s.ActiveSessionStartedAtEpochMs = nil
	s.PausedPhase = ""
	return s
}

func applySetDuration(s models.SessionState, seconds int) (models.SessionState, error) {
	if seconds <= 0 {
		return s, fmt.Errorf("duration must be positive, got %d", seconds)
	}
	if s.Phase != models.PhaseIdle {
		return s, fmt.Errorf("set duration while %s: %w", s.Phase, ErrInvalidTransition)
	}
	s.SessionDurationSeconds = seconds
	s.RemainingSeconds = seconds
	return s, nil
}

// applyReconcile folds whole seconds elapsed since the phase anchor into the
// countdown. Crossing a boundary replays the expiry transition at the
// boundary's wall time, chaining work and break as often as the elapsed time
// covers. The anchor of the resulting phase is now.
func applyReconcile(s models.SessionState, now time.Time) (models.SessionState, []Event) {
	if !s.Phase.Counting() {
		return s, nil
	}
	if s.PhaseStartedAtEpochMs == nil {
		s.PhaseStartedAtEpochMs = epochMs(now)
		return s, nil
	}

	anchor := *s.PhaseStartedAtEpochMs
	elapsed := (now.UnixMilli() - anchor) / 1000
	if elapsed < 0 {
		elapsed = 0
	}

	var events []Event
	boundary := anchor
	for elapsed >= int64(s.RemainingSeconds) {
		elapsed -= int64(s.RemainingSeconds)
		boundary += int64(s.RemainingSeconds) * 1000
		var ev Event
		s, ev = expire(s, time.UnixMilli(boundary).In(now.Location()))
		events = append(events, ev)
	}
	s.RemainingSeconds -= int(elapsed)
	s.PhaseStartedAtEpochMs = epochMs(now)
	return s, events
}

// ElapsedRuntime returns cumulative work time plus the in-flight seconds of
// the current work segment. Display only.
func ElapsedRuntime(s models.SessionState, now time.Time) int64 {
	total := s.CumulativeRuntimeSeconds
	if s.Phase != models.PhaseRunning || s.ActiveSessionStartedAtEpochMs == nil {
		return total
	}
	inFlight := (now.UnixMilli() - *s.ActiveSessionStartedAtEpochMs) / 1000
	if inFlight < 0 {
		inFlight = 0
	}
	if limit := int64(s.SessionDurationSeconds); inFlight > limit {
		inFlight = limit
	}
	return total + inFlight
}

// View is the derived display state. It is recomputed on every read and
// never persisted.
type View struct {
	Phase             models.Phase `json:"phase"`
	PausedPhase       models.Phase `json:"paused_phase,omitempty"`
	Focus             bool         `json:"focus"`
	RemainingSeconds  int          `json:"remaining_seconds"`
	SessionSeconds    int          `json:"session_seconds"`
	BreakSeconds      int          `json:"break_seconds"`
	RuntimeSeconds    int64        `json:"runtime_seconds"`
	CompletedSessions int64        `json:"completed_sessions"`
}

// NewView projects state at now, advancing a counting phase by the wall time
// elapsed since its anchor.
func NewView(s models.SessionState, now time.Time) View {
	live, _ := applyReconcile(s, now)
	return View{
		Phase:             live.Phase,
		PausedPhase:       live.PausedPhase,
		Focus:             live.Phase == models.PhaseRunning,
		RemainingSeconds:  live.RemainingSeconds,
		SessionSeconds:    live.SessionDurationSeconds,
		BreakSeconds:      BreakSeconds(live.SessionDurationSeconds),
		RuntimeSeconds:    ElapsedRuntime(live, now),
		CompletedSessions: live.CompletedSessions,
	}
}

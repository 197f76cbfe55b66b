package models

// Phase represents the timer's current mode.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseRunning Phase = "running"
	PhasePaused  Phase = "paused"
	PhaseBreak   Phase = "break"
)

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseIdle, PhaseRunning, PhasePaused, PhaseBreak:
		return true
	}
	return false
}

// Counting reports whether the countdown advances in this phase.
func (p Phase) Counting() bool {
	return p == PhaseRunning || p == PhaseBreak
}

// DefaultSessionSeconds is the work interval used on first install.
const DefaultSessionSeconds = 25 * 60

// SessionState is the persisted timer singleton. It is mutated only by the
// clock package; everything else reads it.
type SessionState struct {
	Phase                  Phase
	SessionDurationSeconds int
	RemainingSeconds       int

	// PhaseStartedAtEpochMs anchors RemainingSeconds to wall-clock time while
	// the countdown is advancing. Nil while Idle or Paused.
	PhaseStartedAtEpochMs *int64

	CumulativeRuntimeSeconds int64
	CompletedSessions        int64

	// ActiveSessionStartedAtEpochMs marks the start of the work segment being
	// counted for runtime. It survives pause/resume and is reset only at
	// session boundaries.
	ActiveSessionStartedAtEpochMs *int64

	// PausedPhase remembers whether Running or Break was interrupted.
	PausedPhase Phase
}

// DefaultSessionState returns the state written on first install.
func DefaultSessionState() SessionState {
	return SessionState{
		Phase:                  PhaseIdle,
		SessionDurationSeconds: DefaultSessionSeconds,
		RemainingSeconds:       DefaultSessionSeconds,
	}
}

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 { return &v }

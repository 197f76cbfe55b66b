package store

import (
	"encoding/json"
	"fmt"

	"github.com/joescharf/focus/internal/models"
)

// Schema keys.
const (
	KeyFocus                         = "focus"
	KeyPhase                         = "phase"
	KeySessionDurationSeconds        = "sessionDurationSeconds"
	KeyRemainingSeconds              = "remainingSeconds"
	KeyPhaseStartedAtEpochMs         = "phaseStartedAtEpochMs"
	KeyCumulativeRuntimeSeconds      = "cumulativeRuntimeSeconds"
	KeyActiveSessionStartedAtEpochMs = "activeSessionStartedAtEpochMs"
	KeyPausedPhase                   = "pausedPhase"
	KeyCompletedSessions             = "completedSessions"
	KeyBlocklist                     = "blocklist"
	KeyNotification                  = "notification"
	KeyTickOwner                     = "tickOwner"
)

// StateKeys are the keys that make up models.SessionState. They are always
// written together.
var StateKeys = []string{
	KeyFocus,
	KeyPhase,
	KeySessionDurationSeconds,
	KeyRemainingSeconds,
	KeyPhaseStartedAtEpochMs,
	KeyCumulativeRuntimeSeconds,
	KeyActiveSessionStartedAtEpochMs,
	KeyPausedPhase,
	KeyCompletedSessions,
}

// AllKeys lists every key in the schema.
var AllKeys = append(append([]string{}, StateKeys...), KeyBlocklist, KeyNotification, KeyTickOwner)

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		// Only called with plain scalars, slices and structs.
		panic(fmt.Sprintf("encode value: %v", err))
	}
	return data
}

// EncodeState converts a session state into schema values. The focus flag is
// derived from the phase and written in the same update.
func EncodeState(s models.SessionState) Values {
	return Values{
		KeyFocus:                         mustJSON(s.Phase == models.PhaseRunning),
		KeyPhase:                         mustJSON(string(s.Phase)),
		KeySessionDurationSeconds:        mustJSON(s.SessionDurationSeconds),
		KeyRemainingSeconds:              mustJSON(s.RemainingSeconds),
		KeyPhaseStartedAtEpochMs:         mustJSON(s.PhaseStartedAtEpochMs),
		KeyCumulativeRuntimeSeconds:      mustJSON(s.CumulativeRuntimeSeconds),
		KeyActiveSessionStartedAtEpochMs: mustJSON(s.ActiveSessionStartedAtEpochMs),
		KeyPausedPhase:                   mustJSON(string(s.PausedPhase)),
		KeyCompletedSessions:             mustJSON(s.CompletedSessions),
	}
}

// DecodeState reads a session state from schema values. Missing keys keep
// their first-install defaults.
func DecodeState(v Values) (models.SessionState, error) {
	s := models.DefaultSessionState()
	var phase, paused string

	fields := []struct {
		key    string
		target any
	}{
		{KeyPhase, &phase},
		{KeySessionDurationSeconds, &s.SessionDurationSeconds},
		{KeyRemainingSeconds, &s.RemainingSeconds},
		{KeyPhaseStartedAtEpochMs, &s.PhaseStartedAtEpochMs},
		{KeyCumulativeRuntimeSeconds, &s.CumulativeRuntimeSeconds},
		{KeyActiveSessionStartedAtEpochMs, &s.ActiveSessionStartedAtEpochMs},
		{KeyPausedPhase, &paused},
		{KeyCompletedSessions, &s.CompletedSessions},
	}
	for _, f := range fields {
		raw, ok := v[f.key]
		if !ok || len(raw) == 0 {
			continue
		}
		if err := json.Unmarshal(raw, f.target); err != nil {
			return s, fmt.Errorf("decode %s: %w", f.key, err)
		}
	}

	if phase != "" {
		s.Phase = models.Phase(phase)
	}
	if !s.Phase.Valid() {
		return s, fmt.Errorf("decode %s: unknown phase %q", KeyPhase, phase)
	}
	s.PausedPhase = models.Phase(paused)
	if s.SessionDurationSeconds <= 0 {
		s.SessionDurationSeconds = models.DefaultSessionSeconds
	}
	return s, nil
}

// EncodeBlocklist encodes the blocked domain list.
func EncodeBlocklist(domains []string) json.RawMessage {
	if domains == nil {
		domains = []string{}
	}
	return mustJSON(domains)
}

// DecodeBlocklist decodes the blocked domain list. A missing value is an
// empty list.
func DecodeBlocklist(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var domains []string
	if err := json.Unmarshal(raw, &domains); err != nil {
		return nil, fmt.Errorf("decode %s: %w", KeyBlocklist, err)
	}
	return domains, nil
}

// EncodeNotification encodes a timer notification.
func EncodeNotification(n models.Notification) json.RawMessage {
	return mustJSON(n)
}

// DecodeNotification decodes a timer notification. ok is false when none has
// been written yet.
func DecodeNotification(raw json.RawMessage) (n models.Notification, ok bool, err error) {
	if len(raw) == 0 || string(raw) == "null" {
		return n, false, nil
	}
	if err := json.Unmarshal(raw, &n); err != nil {
		return n, false, fmt.Errorf("decode %s: %w", KeyNotification, err)
	}
	return n, true, nil
}

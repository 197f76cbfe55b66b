package models

import "time"

// NotificationKind identifies a user-facing timer event.
type NotificationKind string

const (
	NotificationWorkComplete  NotificationKind = "work-complete"
	NotificationBreakComplete NotificationKind = "break-complete"
)

// Notification is emitted by the clock on natural phase expiry.
type Notification struct {
	ID           string           `json:"id"`
	Kind         NotificationKind `json:"kind"`
	At           time.Time        `json:"at"`
	BreakSeconds int              `json:"break_seconds,omitempty"`
}

package catchup

import (
	"context"
	"time"
)

// NotificationKind names what happened to a session.
type NotificationKind string

const (
	KindStateChanged       NotificationKind = "state_changed"
	KindHeartbeatSent      NotificationKind = "heartbeat_sent"
	KindHeartbeatFailed    NotificationKind = "heartbeat_failed"
	KindPromptIssued       NotificationKind = "prompt_issued"
	KindPromptAcknowledged NotificationKind = "prompt_acknowledged"
	KindPromptExpired      NotificationKind = "prompt_expired"
	KindQuizScored         NotificationKind = "quiz_scored"
	KindFinalized          NotificationKind = "finalized"
	KindFinalizeFailed     NotificationKind = "finalize_failed"
	KindDiscarded          NotificationKind = "discarded"
)

// Notification is emitted for every observable change of a session.
type Notification struct {
	Kind        NotificationKind `json:"kind"`
	SessionID   string           `json:"session_id"`
	LessonID    string           `json:"lesson_id"`
	ViewerID    string           `json:"viewer_id"`
	State       State            `json:"state"`
	From        State            `json:"from,omitempty"`
	PositionSec float64          `json:"position_sec"`
	VerifiedSec float64          `json:"verified_sec"`
	PromptID    string           `json:"prompt_id,omitempty"`
	Quiz        *QuizResult      `json:"quiz,omitempty"`
	Decision    *Decision        `json:"decision,omitempty"`
	Error       string           `json:"error,omitempty"`
	At          time.Time        `json:"at"`
}

// EventPublisher forwards session notifications to interested parties (audit, dashboards...).
// Publishing is best-effort: a failure is logged and never affects the session.
type EventPublisher interface {
	Publish(ctx context.Context, n Notification) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Notification) error { return nil }

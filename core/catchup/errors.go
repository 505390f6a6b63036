package catchup

import "errors"

var (
	// attendance service errors
	ErrNotFound    = errors.New("lesson not assigned to viewer")
	ErrRejected    = errors.New("request rejected by attendance service")
	ErrUnavailable = errors.New("attendance service unavailable")

	// session errors
	ErrInvalidToken      = errors.New("invalid playback token")
	ErrInvalidState      = errors.New("action not allowed in current state")
	ErrPromptNotActive   = errors.New("prompt is not the active prompt")
	ErrPromptExpired     = errors.New("prompt countdown expired")
	ErrFinalizeTimeout   = errors.New("finalize timed out; retry later")
	ErrFinalizeInFlight  = errors.New("finalize already in progress")
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionClosed     = errors.New("session closed")
	ErrInvalidQuizAnswer = errors.New("invalid quiz answers")
)

// IsRetryable reports whether an attendance call failed for transport reasons and may be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrFinalizeTimeout)
}

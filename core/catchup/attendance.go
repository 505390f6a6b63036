package catchup

import "context"

// AttendanceService is the external service that owns attendance records.
// Implementations read the acting Viewer from the context (see ContextWithViewer).
type AttendanceService interface {
	// GetPlaybackToken fails with ErrNotFound if the lesson is not assigned to the viewer.
	GetPlaybackToken(ctx context.Context, lessonID string) (PlaybackToken, error)
	// PostWatchBeat is idempotent per call; it only feeds server-side watched-time accounting.
	PostWatchBeat(ctx context.Context, lessonID string, beat WatchBeat) error
	// PostPromptAck fails with ErrRejected if the prompt does not belong to the viewer's active token.
	PostPromptAck(ctx context.Context, lessonID, promptID string) error
	// SubmitQuiz is stateless and repeatable.
	SubmitQuiz(ctx context.Context, lessonID string, answers []QuizAnswer) (QuizResult, error)
	// Finalize is idempotent and returns the same decision once credited.
	Finalize(ctx context.Context, lessonID string) (Decision, error)
}

type ctxKey string

const viewerKey ctxKey = "catchup_viewer"

// ContextWithViewer stores the acting viewer in the context.
func ContextWithViewer(ctx context.Context, v Viewer) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, viewerKey, v)
}

// ViewerFromContext extracts the acting viewer from the context if present.
func ViewerFromContext(ctx context.Context) (Viewer, bool) {
	if ctx == nil {
		return Viewer{}, false
	}
	v, ok := ctx.Value(viewerKey).(Viewer)
	return v, ok
}

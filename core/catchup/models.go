package catchup

import "time"

// State is the lifecycle state of a viewing Session.
type State string

const (
	StateLoading      State = "loading"
	StatePaused       State = "paused"
	StatePlaying      State = "playing"
	StatePromptActive State = "prompt_active"
	StateQuizActive   State = "quiz_active"
	StateFinished     State = "finished"
	StateCredited     State = "credited"
	StateFailed       State = "failed"
)

// IsTerminal reports whether no transition leaves the state.
func (s State) IsTerminal() bool {
	return s == StateCredited || s == StateFailed
}

// Host kinds of a lesson source
const (
	HostFile    = "file"
	HostHLS     = "hls"
	HostYouTube = "youtube"
	HostVimeo   = "vimeo"
)

// PlaybackToken is issued once per viewing attempt. It is never mutated once issued.
type PlaybackToken struct {
	LessonID    string   `json:"lesson_id" validate:"required,notblank"`
	Source      string   `json:"source" validate:"required,notblank"`
	Host        string   `json:"host" validate:"required,oneof=file hls youtube vimeo"`
	DurationSec float64  `json:"duration_sec" validate:"gt=0"`
	Rules       Rules    `json:"rules"`
	Prompts     []Prompt `json:"prompts" validate:"dive"`
	Quiz        *Quiz    `json:"quiz,omitempty"`
}

type Rules struct {
	MinPct            float64 `json:"min_pct" validate:"gte=0,lte=100"`
	AllowFwdWindowSec float64 `json:"allow_fwd_window_sec" validate:"gte=0"`
}

// Prompt is a presence challenge issued when playback reaches AtSec.
type Prompt struct {
	ID    string  `json:"id" validate:"required,notblank"`
	AtSec float64 `json:"at_sec" validate:"gte=0"`
	Text  string  `json:"text" validate:"required,notblank"`
}

type Quiz struct {
	Questions []Question `json:"questions" validate:"required,min=1,dive"`
}

type Question struct {
	ID      string   `json:"id" validate:"required,notblank"`
	Text    string   `json:"text" validate:"required,notblank"`
	Options []string `json:"options" validate:"min=2,dive,required"`
}

// QuizAnswer is the option picked (by index) for a question.
type QuizAnswer struct {
	QuestionID string `json:"question_id" validate:"required"`
	Option     int    `json:"option" validate:"gte=0"`
}

// QuizResult is scored by the attendance service against its own passing policy.
type QuizResult struct {
	Passed   bool    `json:"passed"`
	ScorePct float64 `json:"score_pct"`
}

// WatchBeat attests the position reached and the seconds actually played since the previous beat.
type WatchBeat struct {
	PositionSec  float64 `json:"position"`
	DeltaSeconds float64 `json:"delta_seconds"`
}

// Decision is the authoritative finalization outcome.
type Decision struct {
	Credited bool `json:"credited"`
}

// Viewer identifies the student watching a lesson.
// Token is the credential forwarded to the attendance service on the viewer's behalf.
type Viewer struct {
	ID    string
	Token string
}

type ActivePrompt struct {
	ID           string  `json:"id"`
	Text         string  `json:"text"`
	AtSec        float64 `json:"at_sec"`
	RemainingSec float64 `json:"remaining_sec"`
}

// Snapshot is the read-only view of a Session exposed to the UI.
// CompletionPct and CriteriaMet are advisory: only the attendance service decides credit.
type Snapshot struct {
	ID                  string        `json:"id"`
	LessonID            string        `json:"lesson_id"`
	ViewerID            string        `json:"viewer_id"`
	State               State         `json:"state"`
	Source              string        `json:"source"`
	Host                string        `json:"host"`
	PositionSec         float64       `json:"position_sec"`
	DurationSec         float64       `json:"duration_sec"`
	VerifiedSec         float64       `json:"verified_sec"`
	MaxSeekSec          float64       `json:"max_seek_sec"`
	CompletionPct       float64       `json:"completion_pct"`
	CriteriaMet         bool          `json:"criteria_met"`
	AcknowledgedPrompts []string      `json:"acknowledged_prompts"`
	ActivePrompt        *ActivePrompt `json:"active_prompt,omitempty"`
	Quiz                *Quiz         `json:"quiz,omitempty"`
	QuizResult          *QuizResult   `json:"quiz_result,omitempty"`
	Decision            *Decision     `json:"decision,omitempty"`
	Error               string        `json:"error,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

package attendancesvc

import (
	"context"
	"math"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo/attendance/core"
	"github.com/trezcool/masomo/attendance/core/catchup"
)

type ledgerKey struct {
	viewerID string
	lessonID string
}

// attempt is the server-side evidence of one viewing attempt.
type attempt struct {
	watched    float64
	acked      map[string]bool
	quizPassed bool
}

// ConsoleService is an in-memory attendance service backed by a lesson catalog.
// It is meant for development and tests: it keeps the evidence of every attempt and decides credit itself.
type ConsoleService struct {
	lessons map[string]Lesson
	log     core.Logger

	mu       sync.Mutex
	attempts map[ledgerKey]*attempt
	credited map[ledgerKey]bool
}

var _ catchup.AttendanceService = (*ConsoleService)(nil)

func NewConsoleService(cat Catalog, log core.Logger) *ConsoleService {
	lessons := make(map[string]Lesson, len(cat.Lessons))
	for _, l := range cat.Lessons {
		lessons[l.ID] = l
	}
	return &ConsoleService{
		lessons:  lessons,
		log:      log,
		attempts: make(map[ledgerKey]*attempt),
		credited: make(map[ledgerKey]bool),
	}
}

func viewerID(ctx context.Context) (string, error) {
	v, ok := catchup.ViewerFromContext(ctx)
	if !ok || v.ID == "" {
		return "", errors.Wrap(catchup.ErrRejected, "no viewer")
	}
	return v.ID, nil
}

// GetPlaybackToken opens a new attempt; evidence of previous attempts is dropped.
func (svc *ConsoleService) GetPlaybackToken(ctx context.Context, lessonID string) (catchup.PlaybackToken, error) {
	vid, err := viewerID(ctx)
	if err != nil {
		return catchup.PlaybackToken{}, err
	}
	lesson, ok := svc.lessons[lessonID]
	if !ok || !lesson.assignedTo(vid) {
		return catchup.PlaybackToken{}, errors.Wrapf(catchup.ErrNotFound, "lesson %s", lessonID)
	}

	svc.mu.Lock()
	svc.attempts[ledgerKey{vid, lessonID}] = &attempt{acked: make(map[string]bool)}
	svc.mu.Unlock()

	svc.log.Info("attendance: playback token issued", map[string]interface{}{"viewer": vid, "lesson": lessonID})
	return lesson.Token(), nil
}

// current returns the lesson and open attempt of the viewer. svc.mu must be held.
func (svc *ConsoleService) current(ctx context.Context, lessonID string) (Lesson, *attempt, ledgerKey, error) {
	vid, err := viewerID(ctx)
	if err != nil {
		return Lesson{}, nil, ledgerKey{}, err
	}
	key := ledgerKey{vid, lessonID}
	lesson, ok := svc.lessons[lessonID]
	if !ok {
		return Lesson{}, nil, key, errors.Wrapf(catchup.ErrNotFound, "lesson %s", lessonID)
	}
	att, ok := svc.attempts[key]
	if !ok {
		return lesson, nil, key, errors.Wrap(catchup.ErrRejected, "no playback token issued")
	}
	return lesson, att, key, nil
}

func (svc *ConsoleService) PostWatchBeat(ctx context.Context, lessonID string, beat catchup.WatchBeat) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	lesson, att, _, err := svc.current(ctx, lessonID)
	if err != nil {
		return err
	}
	if beat.DeltaSeconds < 0 || beat.PositionSec < 0 || beat.PositionSec > lesson.DurationSec {
		return errors.Wrap(catchup.ErrRejected, "malformed watch beat")
	}
	att.watched = math.Min(att.watched+beat.DeltaSeconds, lesson.DurationSec)
	return nil
}

func (svc *ConsoleService) PostPromptAck(ctx context.Context, lessonID, promptID string) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	lesson, att, _, err := svc.current(ctx, lessonID)
	if err != nil {
		return err
	}
	for _, p := range lesson.Prompts {
		if p.ID == promptID {
			att.acked[promptID] = true
			return nil
		}
	}
	return errors.Wrapf(catchup.ErrRejected, "prompt %s is not part of lesson %s", promptID, lessonID)
}

// SubmitQuiz scores the answers against the answer key. PassPct defaults to 100.
func (svc *ConsoleService) SubmitQuiz(ctx context.Context, lessonID string, answers []catchup.QuizAnswer) (catchup.QuizResult, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	lesson, att, _, err := svc.current(ctx, lessonID)
	if err != nil {
		return catchup.QuizResult{}, err
	}
	if lesson.Quiz == nil || len(lesson.Quiz.Questions) == 0 {
		return catchup.QuizResult{}, errors.Wrapf(catchup.ErrRejected, "lesson %s has no quiz", lessonID)
	}

	given := make(map[string]int, len(answers))
	for _, a := range answers {
		given[a.QuestionID] = a.Option
	}
	var correct int
	for _, q := range lesson.Quiz.Questions {
		if opt, ok := given[q.ID]; ok && opt == q.Answer {
			correct++
		}
	}
	passPct := lesson.Quiz.PassPct
	if passPct <= 0 {
		passPct = 100
	}
	score := float64(correct) / float64(len(lesson.Quiz.Questions)) * 100
	res := catchup.QuizResult{Passed: score >= passPct, ScorePct: score}
	if res.Passed {
		att.quizPassed = true
	}
	return res, nil
}

// Finalize credits the attempt if the attested watch time reaches the lesson's minimum,
// every prompt was acknowledged and the quiz (if any) was passed. Credit is never withdrawn.
func (svc *ConsoleService) Finalize(ctx context.Context, lessonID string) (catchup.Decision, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	lesson, att, key, err := svc.current(ctx, lessonID)
	if svc.credited[key] {
		return catchup.Decision{Credited: true}, nil
	}
	if err != nil {
		return catchup.Decision{}, err
	}

	credited := att.watched >= lesson.Rules.MinPct/100*lesson.DurationSec &&
		(lesson.Quiz == nil || att.quizPassed)
	for _, p := range lesson.Prompts {
		if !att.acked[p.ID] {
			credited = false
		}
	}
	if credited {
		svc.credited[key] = true
	}
	svc.log.Info("attendance: finalized", map[string]interface{}{
		"viewer":   key.viewerID,
		"lesson":   lessonID,
		"watched":  att.watched,
		"credited": credited,
	})
	return catchup.Decision{Credited: credited}, nil
}

// Watched returns the seconds attested for the viewer's current attempt.
func (svc *ConsoleService) Watched(viewerID, lessonID string) float64 {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if att, ok := svc.attempts[ledgerKey{viewerID, lessonID}]; ok {
		return att.watched
	}
	return 0
}

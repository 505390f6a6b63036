package catchup

import (
	"context"

	"github.com/pkg/errors"
)

// SubmitQuiz has the attendance service score the answers. A pass finishes the lesson;
// a fail keeps the quiz open for another attempt.
func (s *Session) SubmitQuiz(ctx context.Context, answers []QuizAnswer) (QuizResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return QuizResult{}, ErrSessionClosed
	}
	if s.state != StateQuizActive {
		err := s.invalid("submit quiz")
		s.mu.Unlock()
		return QuizResult{}, err
	}
	epoch := s.epoch
	s.mu.Unlock()

	if err := validateAnswers(s.token.Quiz, answers); err != nil {
		return QuizResult{}, err
	}
	res, err := s.svc.SubmitQuiz(s.callCtx(ctx), s.token.LessonID, answers)
	if err != nil {
		return QuizResult{}, errors.Wrap(err, "submitting quiz")
	}
	if err := s.Tick(quizScored{epoch: epoch, result: res}); err != nil {
		return res, err
	}
	return res, nil
}

func (s *Session) quizScored(e quizScored) error {
	if e.epoch != s.epoch || s.state != StateQuizActive {
		return s.invalid("record quiz result")
	}

	res := e.result
	s.quizResult = &res
	recordQuiz(res.Passed)
	s.notify(Notification{Kind: KindQuizScored, Quiz: &res})

	if res.Passed {
		s.transition(trQuizPassed)
	} else {
		s.transition(trQuizFailed)
	}
	return nil
}

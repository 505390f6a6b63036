package catchup

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Session) startFinalize() {
	s.finalizing = true
	s.lastErr = nil
	epoch := s.epoch
	s.effects = append(s.effects, func() {
		_ = s.finalize(s.ctx, epoch)
	})
}

// finalize asks the attendance service for the decision, bounded by FinalizeTimeout.
func (s *Session) finalize(ctx context.Context, epoch uint64) error {
	ctx, cancel := context.WithTimeout(ctx, s.conf.FinalizeTimeout)
	defer cancel()

	decision, err := s.svc.Finalize(ctx, s.token.LessonID)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = errors.Wrapf(ErrFinalizeTimeout, "no decision after %s", s.conf.FinalizeTimeout)
		} else {
			err = errors.Wrap(err, "finalizing attendance")
		}
	}
	return s.Tick(finalized{epoch: epoch, decision: decision, err: err})
}

// finalized applies the service decision. Failures leave the session Finished so that it can be retried.
func (s *Session) finalized(e finalized) error {
	if e.epoch != s.epoch || s.state != StateFinished {
		return nil
	}
	s.finalizing = false

	if e.err != nil {
		s.lastErr = e.err
		finalizeErrors.Inc()
		s.log.Error("catchup: finalize failed", e.err, s.viewer, s.fields(nil))
		s.notify(Notification{Kind: KindFinalizeFailed, Error: e.err.Error()})
		return e.err
	}

	decision := e.decision
	if decision.Credited && !s.allPromptsAcked() {
		s.log.Warn("catchup: credit refused, prompts left unacknowledged", s.viewer, s.fields(nil))
		decision.Credited = false
	}
	s.lastErr = nil
	s.decision = &decision
	s.notify(Notification{Kind: KindFinalized, Decision: &decision})

	if decision.Credited {
		s.transition(trCredited)
	} else {
		s.transition(trDenied)
	}
	return nil
}

// RetryFinalize re-requests the decision after a failed finalize.
// Once decided, the recorded decision is returned without calling the service again.
func (s *Session) RetryFinalize(ctx context.Context) (Decision, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Decision{}, ErrSessionClosed
	}
	if s.decision != nil {
		d := *s.decision
		s.mu.Unlock()
		return d, nil
	}
	if s.state != StateFinished {
		err := s.invalid("finalize")
		s.mu.Unlock()
		return Decision{}, err
	}
	if s.finalizing {
		s.mu.Unlock()
		return Decision{}, ErrFinalizeInFlight
	}
	s.finalizing = true
	s.lastErr = nil
	epoch := s.epoch
	s.mu.Unlock()

	if err := s.finalize(s.callCtx(ctx), epoch); err != nil {
		return Decision{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.decision == nil {
		return Decision{}, s.invalid("finalize")
	}
	return *s.decision, nil
}

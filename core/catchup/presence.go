package catchup

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Session) issuePrompt() {
	p, _ := s.prompts.pop()
	s.active = &p
	s.remaining = s.conf.PromptCountdown
	s.arm(timerCountdown, s.conf.TickInterval, func(epoch uint64) Event { return countdownTick{epoch} })
	s.notify(Notification{Kind: KindPromptIssued, PromptID: p.ID})
}

// countdown runs the active prompt's clock down; reaching zero fails the session for good.
func (s *Session) countdown() {
	delete(s.timers, timerCountdown)
	s.remaining -= s.conf.TickInterval
	s.touch()
	if s.remaining > 0 {
		s.arm(timerCountdown, s.conf.TickInterval, func(epoch uint64) Event { return countdownTick{epoch} })
		return
	}

	s.remaining = 0
	s.expired = s.active.ID
	s.lastErr = errors.Wrapf(ErrPromptExpired, "prompt %s", s.active.ID)
	s.log.Info("catchup: prompt expired", s.viewer, s.fields(map[string]interface{}{"prompt": s.active.ID}))
	s.notify(Notification{Kind: KindPromptExpired, PromptID: s.active.ID})
	s.transition(trPromptExpired)
}

// AckPrompt acknowledges the active prompt. The attendance service must accept the
// acknowledgment before the countdown runs out.
func (s *Session) AckPrompt(ctx context.Context, promptID string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if err := s.checkActivePrompt(promptID); err != nil {
		s.mu.Unlock()
		return err
	}
	epoch := s.epoch
	s.mu.Unlock()

	if err := s.svc.PostPromptAck(s.callCtx(ctx), s.token.LessonID, promptID); err != nil {
		return errors.Wrap(err, "acknowledging prompt")
	}
	return s.Tick(promptAcked{epoch: epoch, promptID: promptID})
}

func (s *Session) checkActivePrompt(promptID string) error {
	if s.state == StatePromptActive && s.active != nil && s.active.ID == promptID {
		return nil
	}
	if s.expired == promptID {
		return ErrPromptExpired
	}
	return ErrPromptNotActive
}

func (s *Session) promptAcked(e promptAcked) error {
	if err := s.checkActivePrompt(e.promptID); err != nil {
		return err
	}
	if e.epoch != s.epoch {
		return ErrPromptNotActive
	}

	s.acked[e.promptID] = true
	s.ackOrder = append(s.ackOrder, e.promptID)
	s.notify(Notification{Kind: KindPromptAcknowledged, PromptID: e.promptID})
	s.transition(trPromptAcked)
	return nil
}

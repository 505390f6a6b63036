package catchup

import (
	"math"

	"github.com/trezcool/masomo/attendance/core"
)

func (s *Session) resolveMedia(durationSec float64) error {
	if s.state != StateLoading {
		return s.invalid("resolve media")
	}
	if durationSec > 0 {
		for _, p := range s.token.Prompts {
			if p.AtSec > durationSec {
				return core.NewValidationError(ErrInvalidToken, core.FieldError{
					Field: "duration_sec",
					Error: "media ends before prompt " + p.ID,
				})
			}
		}
		s.duration = durationSec
	}
	s.transition(trMediaReady)
	return nil
}

// advance moves the playhead by one tick of real playback.
func (s *Session) advance() {
	delete(s.timers, timerPosition)

	step := math.Min(s.conf.TickInterval.Seconds(), s.duration-s.position)
	if step > 0 {
		s.position += step
		s.played += step
		s.furthest = math.Max(s.furthest, s.position)
	}
	s.touch()
	if s.beatDue() {
		s.postBeat()
	}

	if s.checkProgress() {
		return
	}
	s.arm(timerPosition, s.conf.TickInterval, func(epoch uint64) Event { return positionTick{epoch} })
}

// maxSeek is the furthest position a seek may reach: the watermark plus the forward window.
func (s *Session) maxSeek() float64 {
	return math.Min(s.duration, s.verified+s.token.Rules.AllowFwdWindowSec)
}

// seek truncates forward jumps to maxSeek; backward jumps are free.
func (s *Session) seek(target float64) error {
	if s.state != StatePlaying && s.state != StatePaused {
		return s.invalid("seek")
	}
	s.position = math.Max(0, math.Min(target, s.maxSeek()))
	s.furthest = math.Max(s.furthest, s.position)
	s.touch()

	s.checkProgress()
	return nil
}

package catchup

import (
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo/attendance/core/clock"
)

// pendingBeat is a failed beat waiting for its retry timer.
type pendingBeat struct {
	timer clock.Timer
	beat  WatchBeat
}

// beatDue reports whether a full heartbeat interval was played since the previous beat.
// The cadence runs on played time: pauses and prompts suspend it, they do not restart it.
func (s *Session) beatDue() bool {
	return s.played+1e-9 >= s.conf.HeartbeatInterval.Seconds()
}

// postBeat attests the current position along with the seconds played since the previous beat.
func (s *Session) postBeat() {
	s.beatSeq++
	beat := WatchBeat{PositionSec: s.position, DeltaSeconds: s.played}
	s.played = 0
	s.sendBeat(s.beatSeq, 0, beat)
}

func (s *Session) sendBeat(seq uint64, attempt int, beat WatchBeat) {
	lessonID := s.token.LessonID
	s.effects = append(s.effects, func() {
		err := s.svc.PostWatchBeat(s.ctx, lessonID, beat)
		_ = s.Tick(heartbeatDone{seq: seq, attempt: attempt, beat: beat, err: err})
	})
}

// beatDone widens the watermark on success. Failures are retried with backoff while playing,
// unless the service refused the beat.
func (s *Session) beatDone(e heartbeatDone) {
	recordHeartbeat(e.err == nil)

	if e.err == nil {
		if e.beat.PositionSec > s.verified {
			s.verified = e.beat.PositionSec
			s.touch()
		}
		s.notify(Notification{Kind: KindHeartbeatSent})
		return
	}

	flds := s.fields(map[string]interface{}{"beat": e.seq, "attempt": e.attempt})
	s.log.Warn("catchup: heartbeat failed", e.err, flds)
	s.notify(Notification{Kind: KindHeartbeatFailed, Error: e.err.Error()})

	if s.state.IsTerminal() || errors.Is(e.err, ErrRejected) || e.attempt >= s.conf.HeartbeatMaxRetries {
		return
	}
	if s.state != StatePlaying {
		// no timer outlives Playing: the unattested seconds ride along with the next beat
		s.played += e.beat.DeltaSeconds
		return
	}
	seq, attempt, beat := e.seq, e.attempt+1, e.beat
	s.retries[seq] = pendingBeat{
		timer: s.clock.AfterFunc(s.backoff(e.attempt), func() {
			_ = s.Tick(heartbeatRetry{seq: seq, attempt: attempt, beat: beat})
		}),
		beat: beat,
	}
}

func (s *Session) retryBeat(e heartbeatRetry) {
	if _, ok := s.retries[e.seq]; !ok {
		return // cancelled
	}
	delete(s.retries, e.seq)
	s.sendBeat(e.seq, e.attempt, e.beat)
}

// cancelRetries stops every pending retry and folds its seconds back into the unattested ones.
func (s *Session) cancelRetries() {
	for seq, p := range s.retries {
		p.timer.Stop()
		s.played += p.beat.DeltaSeconds
		delete(s.retries, seq)
	}
}

// backoff doubles HeartbeatBackoff per attempt, capped at HeartbeatMaxBackoff.
func (s *Session) backoff(attempt int) time.Duration {
	d := s.conf.HeartbeatBackoff
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= s.conf.HeartbeatMaxBackoff {
			return s.conf.HeartbeatMaxBackoff
		}
	}
	if d > s.conf.HeartbeatMaxBackoff {
		return s.conf.HeartbeatMaxBackoff
	}
	return d
}

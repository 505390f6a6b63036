package catchup

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo/attendance/core"
	"github.com/trezcool/masomo/attendance/core/clock"
)

// Event is an input of the session state machine (see Session.Tick).
type Event interface {
	event()
}

type (
	// MediaReady reports that the media was resolved. A positive DurationSec overrides the token's duration.
	MediaReady struct {
		DurationSec float64
	}

	Play  struct{}
	Pause struct{}

	// Seek moves the playhead. Forward seeks beyond the anti-skip window are truncated.
	Seek struct {
		PositionSec float64
	}
)

func (MediaReady) event() {}
func (Play) event()       {}
func (Pause) event()      {}
func (Seek) event()       {}

// timer events carry the epoch they were armed in; a mismatch means the state they belong to was left.
type (
	positionTick   struct{ epoch uint64 }
	countdownTick  struct{ epoch uint64 }
	heartbeatRetry struct {
		seq     uint64
		attempt int
		beat    WatchBeat
	}
	heartbeatDone struct {
		seq     uint64
		attempt int
		beat    WatchBeat
		err     error
	}
	promptAcked struct {
		epoch    uint64
		promptID string
	}
	quizScored struct {
		epoch  uint64
		result QuizResult
	}
	finalized struct {
		epoch    uint64
		decision Decision
		err      error
	}
)

func (positionTick) event()   {}
func (countdownTick) event()  {}
func (heartbeatRetry) event() {}
func (heartbeatDone) event()  {}
func (promptAcked) event()    {}
func (quizScored) event()     {}
func (finalized) event()      {}

type timerKind int

const (
	timerPosition timerKind = iota
	timerCountdown
)

// Session is one viewing attempt of a lesson.
// All state changes go through Tick; network calls and notifications are run after the lock is released.
type Session struct {
	mu sync.Mutex

	id     string
	viewer Viewer
	token  PlaybackToken
	conf   core.CatchupConfig
	clock  clock.Clock
	svc    AttendanceService
	pub    EventPublisher
	log    core.Logger
	ctx    context.Context // detached from the request that started the session

	state    State
	duration float64
	position float64
	furthest float64 // furthest position actually reached
	verified float64 // watermark: furthest position attested by a heartbeat
	played   float64 // seconds played and not yet attested

	prompts   *promptQueue
	acked     map[string]bool
	ackOrder  []string
	active    *Prompt
	remaining time.Duration
	expired   string

	quizResult *QuizResult
	decision   *Decision
	lastErr    error
	finalizing bool
	closed     bool

	epoch   uint64
	timers  map[timerKind]clock.Timer
	retries map[uint64]pendingBeat
	beatSeq uint64

	effects []func()

	createdAt  time.Time
	updatedAt  time.Time
	terminalAt time.Time
}

func newSession(ctx context.Context, id string, viewer Viewer, token PlaybackToken, deps Deps) *Session {
	now := deps.Clock.Now()
	return &Session{
		id:        id,
		viewer:    viewer,
		token:     token,
		conf:      deps.Conf,
		clock:     deps.Clock,
		svc:       deps.Attendance,
		pub:       deps.Publisher,
		log:       deps.Logger,
		ctx:       ContextWithViewer(context.WithoutCancel(ctx), viewer),
		state:     StateLoading,
		duration:  token.DurationSec,
		prompts:   newPromptQueue(token.Prompts),
		acked:     make(map[string]bool, len(token.Prompts)),
		ackOrder:  make([]string, 0, len(token.Prompts)),
		timers:    make(map[timerKind]clock.Timer),
		retries:   make(map[uint64]pendingBeat),
		createdAt: now,
		updatedAt: now,
	}
}

func (s *Session) ID() string       { return s.id }
func (s *Session) LessonID() string { return s.token.LessonID }
func (s *Session) ViewerID() string { return s.viewer.ID }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Tick applies an event to the session, then runs the side effects it produced.
func (s *Session) Tick(ev Event) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	err := s.apply(ev)
	effects := s.drain()
	s.mu.Unlock()

	run(effects)
	return err
}

func (s *Session) apply(ev Event) error {
	switch e := ev.(type) {
	case MediaReady:
		return s.resolveMedia(e.DurationSec)
	case Play:
		switch s.state {
		case StatePlaying:
			return nil
		case StatePaused:
			s.transition(trPlay)
			return nil
		}
		return s.invalid("play")
	case Pause:
		switch s.state {
		case StatePaused:
			return nil
		case StatePlaying:
			s.transition(trPause)
			return nil
		}
		return s.invalid("pause")
	case Seek:
		return s.seek(e.PositionSec)

	case positionTick:
		if e.epoch == s.epoch {
			s.advance()
		}
	case countdownTick:
		if e.epoch == s.epoch {
			s.countdown()
		}
	case heartbeatDone:
		s.beatDone(e)
	case heartbeatRetry:
		s.retryBeat(e)
	case promptAcked:
		return s.promptAcked(e)
	case quizScored:
		return s.quizScored(e)
	case finalized:
		return s.finalized(e)
	}
	return nil
}

func (s *Session) invalid(action string) error {
	return errors.Wrapf(ErrInvalidState, "cannot %s while %s", action, s.state)
}

// transition moves the session along a table edge: timers of the left state are cancelled
// before the entered state arms its own.
func (s *Session) transition(on trigger) {
	to, ok := transitionFor(s.state, on)
	if !ok {
		s.log.Error("catchup: illegal transition", s.viewer, s.fields(map[string]interface{}{"trigger": on}))
		return
	}

	from := s.state
	s.stopTimers()
	if from == StatePromptActive {
		s.active = nil
		s.remaining = 0
	}
	s.state = to
	s.epoch++
	s.touch()

	s.log.Debug("catchup: transition", s.fields(map[string]interface{}{"from": from, "trigger": on}))
	s.notify(Notification{Kind: KindStateChanged, From: from})
	s.enter(on)
}

func (s *Session) enter(on trigger) {
	switch s.state {
	case StatePlaying:
		s.arm(timerPosition, s.conf.TickInterval, func(epoch uint64) Event { return positionTick{epoch} })
		s.checkProgress()
	case StatePromptActive:
		s.issuePrompt()
	case StateFinished:
		s.startFinalize()
	case StateCredited, StateFailed:
		s.terminalAt = s.clock.Now()
		recordOutcome(s.state, on)
		s.log.Info("catchup: session ended", s.viewer, s.fields(map[string]interface{}{"trigger": on}))
	}
}

// checkProgress fires the transitions due at the current position while playing.
// The earliest unacknowledged prompt wins over the natural end.
func (s *Session) checkProgress() bool {
	if s.state != StatePlaying {
		return false
	}
	if _, ok := s.prompts.due(s.position); ok {
		s.transition(trPromptDue)
		return true
	}
	if s.position >= s.duration {
		s.cancelRetries()
		if s.played > 0 {
			s.postBeat()
		}
		if s.token.Quiz != nil {
			s.transition(trEndedWithQuiz)
		} else {
			s.transition(trEnded)
		}
		return true
	}
	return false
}

func (s *Session) arm(kind timerKind, d time.Duration, ev func(epoch uint64) Event) {
	epoch := s.epoch
	s.timers[kind] = s.clock.AfterFunc(d, func() {
		_ = s.Tick(ev(epoch))
	})
}

func (s *Session) stopTimers() {
	for kind, t := range s.timers {
		t.Stop()
		delete(s.timers, kind)
	}
	s.cancelRetries()
}

func (s *Session) touch() {
	s.updatedAt = s.clock.Now()
}

func (s *Session) fields(extra map[string]interface{}) map[string]interface{} {
	flds := map[string]interface{}{
		"session":  s.id,
		"lesson":   s.token.LessonID,
		"state":    s.state,
		"position": s.position,
		"verified": s.verified,
	}
	for k, v := range extra {
		flds[k] = v
	}
	return flds
}

func (s *Session) notify(n Notification) {
	n.SessionID = s.id
	n.LessonID = s.token.LessonID
	n.ViewerID = s.viewer.ID
	n.State = s.state
	n.PositionSec = s.position
	n.VerifiedSec = s.verified
	n.At = s.clock.Now()
	s.effects = append(s.effects, func() {
		if err := s.pub.Publish(s.ctx, n); err != nil {
			s.log.Warn("catchup: publishing notification failed", err, map[string]interface{}{"kind": n.Kind, "session": n.SessionID})
		}
	})
}

func (s *Session) drain() []func() {
	effects := s.effects
	s.effects = nil
	return effects
}

func run(effects []func()) {
	for _, f := range effects {
		f()
	}
}

// callCtx attaches the session's viewer to a caller context.
func (s *Session) callCtx(ctx context.Context) context.Context {
	return ContextWithViewer(ctx, s.viewer)
}

// Close discards the session: every pending timer is cancelled and later events are refused.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.stopTimers()
	s.epoch++
	if !s.state.IsTerminal() {
		s.notify(Notification{Kind: KindDiscarded})
	}
	s.closed = true
	effects := s.drain()
	s.mu.Unlock()

	run(effects)
}

// terminalSince returns when the session reached a terminal state.
func (s *Session) terminalSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminalAt, s.state.IsTerminal()
}

func (s *Session) lastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

func (s *Session) allPromptsAcked() bool {
	for _, p := range s.token.Prompts {
		if !s.acked[p.ID] {
			return false
		}
	}
	return true
}

func (s *Session) completionPct() float64 {
	if s.duration <= 0 {
		return 0
	}
	return s.position / s.duration * 100
}

// Snapshot returns the current view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:                  s.id,
		LessonID:            s.token.LessonID,
		ViewerID:            s.viewer.ID,
		State:               s.state,
		Source:              s.token.Source,
		Host:                s.token.Host,
		PositionSec:         s.position,
		DurationSec:         s.duration,
		VerifiedSec:         s.verified,
		MaxSeekSec:          s.maxSeek(),
		CompletionPct:       s.completionPct(),
		AcknowledgedPrompts: append([]string{}, s.ackOrder...),
		CreatedAt:           s.createdAt,
		UpdatedAt:           s.updatedAt,
	}
	quizOK := s.token.Quiz == nil || (s.quizResult != nil && s.quizResult.Passed)
	snap.CriteriaMet = snap.CompletionPct >= s.token.Rules.MinPct && s.allPromptsAcked() && quizOK

	if s.active != nil {
		snap.ActivePrompt = &ActivePrompt{
			ID:           s.active.ID,
			Text:         s.active.Text,
			AtSec:        s.active.AtSec,
			RemainingSec: s.remaining.Seconds(),
		}
	}
	if s.state == StateQuizActive {
		snap.Quiz = s.token.Quiz
	}
	if s.quizResult != nil {
		res := *s.quizResult
		snap.QuizResult = &res
	}
	if s.decision != nil {
		d := *s.decision
		snap.Decision = &d
	}
	if s.lastErr != nil {
		snap.Error = s.lastErr.Error()
	}
	return snap
}

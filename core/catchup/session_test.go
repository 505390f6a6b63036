package catchup

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_CreditedPath(t *testing.T) {
	att := newStubAttendance(lessonToken())
	sess, clk, rec := newTestSession(t, lessonToken(), att)
	startPlaying(t, sess)

	clk.Advance(60 * time.Second)
	snap := sess.Snapshot()
	require.Equal(t, StatePromptActive, snap.State)
	require.NotNil(t, snap.ActivePrompt)
	assert.Equal(t, "p1", snap.ActivePrompt.ID)
	assert.Equal(t, 15.0, snap.ActivePrompt.RemainingSec)
	assert.Equal(t, 60.0, snap.PositionSec)

	// the playhead is frozen while the prompt is up
	clk.Advance(5 * time.Second)
	assert.Equal(t, 60.0, sess.Snapshot().PositionSec)
	assert.Equal(t, 10.0, sess.Snapshot().ActivePrompt.RemainingSec)

	require.NoError(t, sess.AckPrompt(context.Background(), "p1"))
	assert.Equal(t, StatePlaying, sess.State())

	clk.Advance(240 * time.Second)
	snap = sess.Snapshot()
	assert.Equal(t, StateCredited, snap.State)
	assert.Equal(t, 300.0, snap.PositionSec)
	assert.Equal(t, 100.0, snap.CompletionPct)
	assert.Equal(t, 300.0, snap.VerifiedSec)
	assert.True(t, snap.CriteriaMet)
	assert.Equal(t, []string{"p1"}, snap.AcknowledgedPrompts)
	require.NotNil(t, snap.Decision)
	assert.True(t, snap.Decision.Credited)

	assert.Equal(t, 1, att.finalizeCalls)
	assert.Equal(t, []string{"p1"}, att.acks)
	assert.Equal(t, 300.0, att.totalDelta(), "every played second is attested")
	for _, v := range att.viewers {
		assert.Equal(t, testViewer, v)
	}

	assert.Equal(t,
		[]State{StatePaused, StatePlaying, StatePromptActive, StatePlaying, StateFinished, StateCredited},
		rec.states(),
	)
	assert.Len(t, rec.kinds(KindFinalized), 1)
	assert.Equal(t, 0, clk.Pending(), "no timer survives a terminal state")
}

func TestSession_SeekClamp(t *testing.T) {
	tests := []struct {
		name    string
		played  time.Duration // playback before seeking
		target  float64
		wantPos float64
	}{
		{name: "forward seek right after start", target: 250, wantPos: 10},
		{name: "within the window", target: 7, wantPos: 7},
		{name: "backward seek", played: 25 * time.Second, target: 3, wantPos: 3},
		{name: "negative target", played: 5 * time.Second, target: -20, wantPos: 0},
		{name: "forward seek after heartbeats", played: 25 * time.Second, target: 250, wantPos: 30}, // watermark 20
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			token := lessonToken()
			token.Prompts = nil
			sess, clk, _ := newTestSession(t, token, newStubAttendance(token))
			startPlaying(t, sess)
			clk.Advance(tc.played)

			if err := sess.Tick(Seek{PositionSec: tc.target}); err != nil {
				t.Fatalf("Tick(Seek) error = %v", err)
			}
			snap := sess.Snapshot()
			if snap.PositionSec != tc.wantPos {
				t.Errorf("PositionSec = %v; want %v", snap.PositionSec, tc.wantPos)
			}
			if want := snap.VerifiedSec + token.Rules.AllowFwdWindowSec; snap.PositionSec > want {
				t.Errorf("PositionSec = %v; exceeds watermark + window (%v)", snap.PositionSec, want)
			}
		})
	}
}

func TestSession_SeekWhilePaused(t *testing.T) {
	sess, _, _ := newTestSession(t, lessonToken(), newStubAttendance(lessonToken()))
	require.NoError(t, sess.Tick(MediaReady{}))

	require.NoError(t, sess.Tick(Seek{PositionSec: 250}))
	assert.Equal(t, 10.0, sess.Snapshot().PositionSec)
	assert.Equal(t, StatePaused, sess.State())
}

func TestSession_SeekOntoPrompt(t *testing.T) {
	token := lessonToken()
	token.Rules.AllowFwdWindowSec = 100
	sess, _, rec := newTestSession(t, token, newStubAttendance(token))
	startPlaying(t, sess)

	require.NoError(t, sess.Tick(Seek{PositionSec: 90}))
	snap := sess.Snapshot()
	assert.Equal(t, StatePromptActive, snap.State, "skipping over a prompt still raises it")
	assert.Equal(t, 90.0, snap.PositionSec)
	assert.Len(t, rec.kinds(KindPromptIssued), 1)
}

func TestSession_PromptExpiry(t *testing.T) {
	att := newStubAttendance(lessonToken())
	sess, clk, rec := newTestSession(t, lessonToken(), att)
	startPlaying(t, sess)

	clk.Advance(60 * time.Second)
	require.Equal(t, StatePromptActive, sess.State())

	clk.Advance(14 * time.Second)
	snap := sess.Snapshot()
	require.Equal(t, StatePromptActive, snap.State)
	assert.Equal(t, 1.0, snap.ActivePrompt.RemainingSec)

	clk.Advance(time.Second)
	snap = sess.Snapshot()
	assert.Equal(t, StateFailed, snap.State)
	assert.Nil(t, snap.ActivePrompt)
	assert.NotEmpty(t, snap.Error)
	assert.Len(t, rec.kinds(KindPromptExpired), 1)

	err := sess.AckPrompt(context.Background(), "p1")
	assert.True(t, errors.Is(err, ErrPromptExpired), "AckPrompt() error = %v; want %v", err, ErrPromptExpired)
	assert.Empty(t, att.acks)

	// Failed is permanent
	assert.True(t, errors.Is(sess.Tick(Play{}), ErrInvalidState))
	_, err = sess.RetryFinalize(context.Background())
	assert.True(t, errors.Is(err, ErrInvalidState))
	clk.Advance(time.Minute)
	assert.Equal(t, StateFailed, sess.State())

	assert.Equal(t, 0, att.finalizeCalls, "finalize is never issued")
	assert.Equal(t, 0, clk.Pending())
}

func TestSession_AckPrompt(t *testing.T) {
	tests := []struct {
		name     string
		promptID string
		ackErr   error
		wantErr  error
		want     State
	}{
		{name: "active prompt", promptID: "p1", want: StatePlaying},
		{name: "unknown prompt", promptID: "p2", wantErr: ErrPromptNotActive, want: StatePromptActive},
		{name: "rejected by service", promptID: "p1", ackErr: ErrRejected, wantErr: ErrRejected, want: StatePromptActive},
		{name: "service unavailable", promptID: "p1", ackErr: ErrUnavailable, wantErr: ErrUnavailable, want: StatePromptActive},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			att := newStubAttendance(lessonToken())
			att.ackErr = tc.ackErr
			sess, clk, _ := newTestSession(t, lessonToken(), att)
			startPlaying(t, sess)
			clk.Advance(60 * time.Second)

			err := sess.AckPrompt(context.Background(), tc.promptID)
			if tc.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, tc.wantErr), "AckPrompt() error = %v; want %v", err, tc.wantErr)
			}
			assert.Equal(t, tc.want, sess.State())
		})
	}
}

func TestSession_AckPromptOutsidePrompt(t *testing.T) {
	sess, _, _ := newTestSession(t, lessonToken(), newStubAttendance(lessonToken()))
	startPlaying(t, sess)

	err := sess.AckPrompt(context.Background(), "p1")
	assert.True(t, errors.Is(err, ErrPromptNotActive))
}

func TestSession_PromptsOrder(t *testing.T) {
	token := lessonToken()
	token.Prompts = []Prompt{
		{ID: "late", AtSec: 40, Text: "late"},
		{ID: "b", AtSec: 20, Text: "b"},
		{ID: "a", AtSec: 20, Text: "a"},
	}
	sess, clk, _ := newTestSession(t, token, newStubAttendance(token))
	startPlaying(t, sess)

	var issued []string
	for step := 0; step < 60 && len(issued) < 3; step++ {
		if sess.State() != StatePromptActive {
			clk.Advance(time.Second)
			continue
		}
		id := sess.Snapshot().ActivePrompt.ID
		issued = append(issued, id)
		require.NoError(t, sess.AckPrompt(context.Background(), id))
	}
	assert.Equal(t, []string{"b", "a", "late"}, issued, "ties keep token order")
}

func TestSession_PauseHaltsClock(t *testing.T) {
	att := newStubAttendance(lessonToken())
	sess, clk, _ := newTestSession(t, lessonToken(), att)
	startPlaying(t, sess)

	clk.Advance(5 * time.Second)
	require.NoError(t, sess.Tick(Pause{}))
	require.NoError(t, sess.Tick(Pause{}), "pausing twice is a no-op")
	assert.Equal(t, 0, clk.Pending())

	clk.Advance(time.Minute)
	snap := sess.Snapshot()
	assert.Equal(t, 5.0, snap.PositionSec)
	assert.Equal(t, 0.0, snap.VerifiedSec)
	assert.Empty(t, att.beats)

	require.NoError(t, sess.Tick(Play{}))
	clk.Advance(10 * time.Second)
	assert.Equal(t, 15.0, sess.Snapshot().PositionSec)
	require.Len(t, att.beats, 1)
	assert.Equal(t, WatchBeat{PositionSec: 10, DeltaSeconds: 10}, att.beats[0], "seconds played before the pause count toward the cadence")
	assert.Equal(t, 10.0, sess.Snapshot().VerifiedSec)
}

func TestSession_PauseToggleKeepsCadence(t *testing.T) {
	token := lessonToken()
	token.Prompts = nil
	att := newStubAttendance(token)
	sess, clk, _ := newTestSession(t, token, att)
	startPlaying(t, sess)

	for round := 0; round < 5; round++ {
		for i := 0; i < 9; i++ {
			clk.Advance(time.Second)
			snap := sess.Snapshot()
			if bound := snap.VerifiedSec + token.Rules.AllowFwdWindowSec; snap.PositionSec > bound {
				t.Fatalf("round %d: PositionSec = %v; exceeds watermark + window (%v)", round, snap.PositionSec, bound)
			}
		}
		require.NoError(t, sess.Tick(Pause{}))
		require.NoError(t, sess.Tick(Play{}))
	}

	snap := sess.Snapshot()
	assert.Equal(t, 45.0, snap.PositionSec)
	assert.Equal(t, 40.0, snap.VerifiedSec)
	assert.Equal(t, []WatchBeat{
		{PositionSec: 10, DeltaSeconds: 10},
		{PositionSec: 20, DeltaSeconds: 10},
		{PositionSec: 30, DeltaSeconds: 10},
		{PositionSec: 40, DeltaSeconds: 10},
	}, att.beats)
}

func TestSession_BeatReportsCurrentTick(t *testing.T) {
	token := lessonToken()
	token.Prompts = nil
	att := newStubAttendance(token)
	sess, clk, _ := newTestSession(t, token, att)
	startPlaying(t, sess)

	clk.Advance(20 * time.Second)
	assert.Equal(t, []WatchBeat{{PositionSec: 10, DeltaSeconds: 10}, {PositionSec: 20, DeltaSeconds: 10}}, att.beats)
	snap := sess.Snapshot()
	assert.Equal(t, snap.PositionSec, snap.VerifiedSec, "a beat attests the tick it is due on")
}

func TestSession_HeartbeatWatermark(t *testing.T) {
	token := lessonToken()
	token.Prompts = nil
	att := newStubAttendance(token)
	sess, clk, _ := newTestSession(t, token, att)
	startPlaying(t, sess)

	var last float64
	for i := 0; i < 10; i++ {
		clk.Advance(7 * time.Second)
		if i == 5 {
			require.NoError(t, sess.Tick(Seek{PositionSec: 0}))
		}
		snap := sess.Snapshot()
		if snap.VerifiedSec < last {
			t.Fatalf("VerifiedSec decreased: %v -> %v", last, snap.VerifiedSec)
		}
		last = snap.VerifiedSec
	}
	assert.Greater(t, last, 0.0)
}

func TestSession_HeartbeatRetry(t *testing.T) {
	tests := []struct {
		name      string
		beatErrs  []error
		beatErr   error
		advance   time.Duration
		wantCalls int // beats sent for the first heartbeat (position 10)
		wantVerif float64
	}{
		{name: "recovers on first retry", beatErrs: []error{ErrUnavailable}, advance: 11 * time.Second, wantCalls: 2, wantVerif: 10},
		{name: "gives up after max retries", beatErr: ErrUnavailable, advance: 19 * time.Second, wantCalls: 4},
		{name: "rejected beats are not retried", beatErr: ErrRejected, advance: 19 * time.Second, wantCalls: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			token := lessonToken()
			token.Prompts = nil
			att := newStubAttendance(token)
			att.beatErrs = tc.beatErrs
			att.beatErr = tc.beatErr
			sess, clk, rec := newTestSession(t, token, att)
			startPlaying(t, sess)

			clk.Advance(tc.advance)
			if got := att.beatsAt(10); got != tc.wantCalls {
				t.Errorf("beats at 10s = %d; want %d", got, tc.wantCalls)
			}
			if got := sess.Snapshot().VerifiedSec; got != tc.wantVerif {
				t.Errorf("VerifiedSec = %v; want %v", got, tc.wantVerif)
			}
			assert.Equal(t, StatePlaying, sess.State(), "heartbeat failures never stop playback")
			assert.NotEmpty(t, rec.kinds(KindHeartbeatFailed))
		})
	}
}

func TestSession_HeartbeatRetryStopsOnPause(t *testing.T) {
	token := lessonToken()
	token.Prompts = nil
	att := newStubAttendance(token)
	att.beatErrs = []error{ErrUnavailable}
	sess, clk, _ := newTestSession(t, token, att)
	startPlaying(t, sess)

	clk.Advance(10 * time.Second)
	require.Len(t, att.beats, 1)
	require.NoError(t, sess.Tick(Pause{}))
	assert.Equal(t, 0, clk.Pending(), "the retry does not outlive Playing")

	clk.Advance(time.Minute)
	assert.Len(t, att.beats, 1)
	assert.Equal(t, 0.0, sess.Snapshot().VerifiedSec)

	// the unattested seconds are overdue and go out with the first tick after resuming
	require.NoError(t, sess.Tick(Play{}))
	clk.Advance(time.Second)
	require.Len(t, att.beats, 2)
	assert.Equal(t, WatchBeat{PositionSec: 11, DeltaSeconds: 11}, att.beats[1])
	assert.Equal(t, 11.0, sess.Snapshot().VerifiedSec)
}

func TestSession_Backoff(t *testing.T) {
	sess, _, _ := newTestSession(t, lessonToken(), newStubAttendance(lessonToken()))
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 8 * time.Second}
	for attempt, w := range want {
		if got := sess.backoff(attempt); got != w {
			t.Errorf("backoff(%d) = %v; want %v", attempt, got, w)
		}
	}
}

func TestSession_QuizGate(t *testing.T) {
	att := newStubAttendance(quizToken())
	sess, clk, rec := newTestSession(t, quizToken(), att)
	startPlaying(t, sess)

	clk.Advance(30 * time.Second)
	snap := sess.Snapshot()
	require.Equal(t, StateQuizActive, snap.State)
	require.NotNil(t, snap.Quiz)
	assert.Equal(t, 0, att.finalizeCalls)

	res, err := sess.SubmitQuiz(context.Background(), []QuizAnswer{{QuestionID: "q1", Option: 0}, {QuestionID: "q2", Option: 0}})
	require.NoError(t, err)
	assert.Equal(t, QuizResult{Passed: false, ScorePct: 50}, res)
	assert.Equal(t, StateQuizActive, sess.State())
	assert.Equal(t, 0, att.finalizeCalls)

	// retries are unlimited
	for i := 0; i < 3; i++ {
		_, err = sess.SubmitQuiz(context.Background(), []QuizAnswer{{QuestionID: "q1", Option: 1}})
		require.NoError(t, err)
	}
	assert.Equal(t, StateQuizActive, sess.State())

	res, err = sess.SubmitQuiz(context.Background(), []QuizAnswer{{QuestionID: "q1", Option: 0}, {QuestionID: "q2", Option: 1}})
	require.NoError(t, err)
	assert.True(t, res.Passed)

	snap = sess.Snapshot()
	assert.Equal(t, StateCredited, snap.State)
	require.NotNil(t, snap.QuizResult)
	assert.Equal(t, 100.0, snap.QuizResult.ScorePct)
	assert.Equal(t, 1, att.finalizeCalls)
	assert.Len(t, rec.kinds(KindQuizScored), 5)

	states := rec.states()
	assert.Equal(t, []State{StateFinished, StateCredited}, states[len(states)-2:])
}

func TestSession_SubmitQuizInvalid(t *testing.T) {
	tests := []struct {
		name    string
		answers []QuizAnswer
	}{
		{name: "unknown question", answers: []QuizAnswer{{QuestionID: "q9", Option: 0}}},
		{name: "answered twice", answers: []QuizAnswer{{QuestionID: "q1", Option: 0}, {QuestionID: "q1", Option: 1}}},
		{name: "option out of range", answers: []QuizAnswer{{QuestionID: "q2", Option: 2}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			att := newStubAttendance(quizToken())
			sess, clk, _ := newTestSession(t, quizToken(), att)
			startPlaying(t, sess)
			clk.Advance(30 * time.Second)

			_, err := sess.SubmitQuiz(context.Background(), tc.answers)
			assert.True(t, errors.Is(err, ErrInvalidQuizAnswer), "SubmitQuiz() error = %v", err)
			assert.Equal(t, 0, att.quizCalls)
			assert.Equal(t, StateQuizActive, sess.State())
		})
	}
}

func TestSession_SubmitQuizOutsideGate(t *testing.T) {
	sess, _, _ := newTestSession(t, quizToken(), newStubAttendance(quizToken()))
	startPlaying(t, sess)

	_, err := sess.SubmitQuiz(context.Background(), []QuizAnswer{{QuestionID: "q1", Option: 0}})
	assert.True(t, errors.Is(err, ErrInvalidState))
}

func TestSession_Denied(t *testing.T) {
	token := lessonToken()
	token.Prompts = nil
	att := newStubAttendance(token)
	att.decision = Decision{Credited: false}
	sess, clk, _ := newTestSession(t, token, att)
	startPlaying(t, sess)

	clk.Advance(300 * time.Second)
	snap := sess.Snapshot()
	assert.Equal(t, StateFailed, snap.State)
	require.NotNil(t, snap.Decision)
	assert.False(t, snap.Decision.Credited)

	d, err := sess.RetryFinalize(context.Background())
	require.NoError(t, err)
	assert.False(t, d.Credited)
	assert.Equal(t, 1, att.finalizeCalls, "a recorded decision is not requested again")
}

func TestSession_FinalizeTimeout(t *testing.T) {
	token := lessonToken()
	token.Prompts = nil
	token.DurationSec = 5
	att := newStubAttendance(token)
	att.blockFinalize = true
	sess, clk, rec := newTestSession(t, token, att)
	startPlaying(t, sess)

	clk.Advance(5 * time.Second)
	snap := sess.Snapshot()
	require.Equal(t, StateFinished, snap.State, "a timeout is not a failure")
	assert.NotEmpty(t, snap.Error)
	assert.Len(t, rec.kinds(KindFinalizeFailed), 1)

	_, err := sess.RetryFinalize(context.Background())
	assert.Equal(t, ErrFinalizeTimeout, errors.Cause(err))
	assert.True(t, IsRetryable(err))
	assert.Equal(t, StateFinished, sess.State())

	att.mu.Lock()
	att.blockFinalize = false
	att.mu.Unlock()

	d, err := sess.RetryFinalize(context.Background())
	require.NoError(t, err)
	assert.True(t, d.Credited)
	snap = sess.Snapshot()
	assert.Equal(t, StateCredited, snap.State)
	assert.Empty(t, snap.Error)
	assert.Equal(t, 3, att.finalizeCalls)
}

func TestSession_FinalizeUnavailable(t *testing.T) {
	token := lessonToken()
	token.Prompts = nil
	token.DurationSec = 5
	att := newStubAttendance(token)
	att.finalizeErr = errors.Wrap(ErrUnavailable, "502 Bad Gateway")
	sess, clk, _ := newTestSession(t, token, att)
	startPlaying(t, sess)

	clk.Advance(5 * time.Second)
	assert.Equal(t, StateFinished, sess.State())

	_, err := sess.RetryFinalize(context.Background())
	assert.Equal(t, ErrUnavailable, errors.Cause(err))
	assert.True(t, IsRetryable(err))
}

func TestSession_CreditRequiresAllPrompts(t *testing.T) {
	sess, _, _ := newTestSession(t, lessonToken(), newStubAttendance(lessonToken()))

	sess.mu.Lock()
	sess.state = StateFinished
	epoch := sess.epoch
	sess.mu.Unlock()

	require.NoError(t, sess.Tick(finalized{epoch: epoch, decision: Decision{Credited: true}}))
	snap := sess.Snapshot()
	assert.Equal(t, StateFailed, snap.State)
	require.NotNil(t, snap.Decision)
	assert.False(t, snap.Decision.Credited)
}

func TestSession_MediaReady(t *testing.T) {
	tests := []struct {
		name     string
		duration float64
		wantErr  error
		want     float64
	}{
		{name: "token duration", duration: 0, want: 300},
		{name: "media duration overrides", duration: 240, want: 240},
		{name: "media shorter than a prompt", duration: 50, wantErr: ErrInvalidToken, want: 300},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sess, _, _ := newTestSession(t, lessonToken(), newStubAttendance(lessonToken()))
			err := sess.Tick(MediaReady{DurationSec: tc.duration})
			if tc.wantErr != nil {
				assert.True(t, errors.Is(err, tc.wantErr), "Tick(MediaReady) error = %v; want %v", err, tc.wantErr)
				assert.Equal(t, StateLoading, sess.State())
			} else {
				assert.NoError(t, err)
				assert.Equal(t, StatePaused, sess.State())
			}
			assert.Equal(t, tc.want, sess.Snapshot().DurationSec)
		})
	}
}

func TestSession_InvalidActions(t *testing.T) {
	sess, _, _ := newTestSession(t, lessonToken(), newStubAttendance(lessonToken()))

	for name, ev := range map[string]Event{
		"play":  Play{},
		"pause": Pause{},
		"seek":  Seek{PositionSec: 5},
	} {
		if err := sess.Tick(ev); !errors.Is(err, ErrInvalidState) {
			t.Errorf("Tick(%s) while loading error = %v; want %v", name, err, ErrInvalidState)
		}
	}

	require.NoError(t, sess.Tick(MediaReady{}))
	if err := sess.Tick(MediaReady{}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Tick(MediaReady) twice error = %v; want %v", err, ErrInvalidState)
	}
}

func TestSession_Close(t *testing.T) {
	att := newStubAttendance(lessonToken())
	sess, clk, rec := newTestSession(t, lessonToken(), att)
	startPlaying(t, sess)
	clk.Advance(3 * time.Second)
	require.NotZero(t, clk.Pending())

	sess.Close()
	sess.Close()
	assert.Equal(t, 0, clk.Pending())
	assert.Len(t, rec.kinds(KindDiscarded), 1)
	assert.Equal(t, ErrSessionClosed, sess.Tick(Play{}))
	assert.Equal(t, ErrSessionClosed, sess.AckPrompt(context.Background(), "p1"))

	clk.Advance(time.Minute)
	assert.Equal(t, 3.0, sess.Snapshot().PositionSec)
}

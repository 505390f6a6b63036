package catchup

// trigger is the cause of a state transition.
type trigger string

const (
	trMediaReady    trigger = "media_ready"
	trPlay          trigger = "play"
	trPause         trigger = "pause"
	trPromptDue     trigger = "prompt_due"
	trPromptAcked   trigger = "prompt_acked"
	trPromptExpired trigger = "prompt_expired"
	trEnded         trigger = "ended"
	trEndedWithQuiz trigger = "ended_with_quiz"
	trQuizPassed    trigger = "quiz_passed"
	trQuizFailed    trigger = "quiz_failed"
	trCredited      trigger = "credited"
	trDenied        trigger = "denied"
)

// transition is a single allowed edge in the session state machine.
type transition struct {
	from State
	on   trigger
	to   State
}

var transitionsTable = []transition{
	{from: StateLoading, on: trMediaReady, to: StatePaused},

	{from: StatePaused, on: trPlay, to: StatePlaying},
	{from: StatePlaying, on: trPause, to: StatePaused},

	// presence prompts
	{from: StatePlaying, on: trPromptDue, to: StatePromptActive},
	{from: StatePromptActive, on: trPromptAcked, to: StatePlaying},
	{from: StatePromptActive, on: trPromptExpired, to: StateFailed},

	// natural end
	{from: StatePlaying, on: trEnded, to: StateFinished},
	{from: StatePlaying, on: trEndedWithQuiz, to: StateQuizActive},

	// quiz gate
	{from: StateQuizActive, on: trQuizPassed, to: StateFinished},
	{from: StateQuizActive, on: trQuizFailed, to: StateQuizActive},

	// finalization
	{from: StateFinished, on: trCredited, to: StateCredited},
	{from: StateFinished, on: trDenied, to: StateFailed},
}

// transitionFor returns the target state of `on` fired from `from`.
func transitionFor(from State, on trigger) (State, bool) {
	for _, tr := range transitionsTable {
		if tr.from == from && tr.on == on {
			return tr.to, true
		}
	}
	return "", false
}

package catchup

import "testing"

func TestPromptQueue(t *testing.T) {
	q := newPromptQueue([]Prompt{
		{ID: "c", AtSec: 90},
		{ID: "a", AtSec: 30},
		{ID: "b2", AtSec: 60},
		{ID: "b1", AtSec: 60},
	})

	if _, ok := q.due(29); ok {
		t.Fatalf("due(29) = true; want false")
	}
	if p, ok := q.due(45); !ok || p.ID != "a" {
		t.Fatalf("due(45) = %v, %v; want a, true", p.ID, ok)
	}

	var order []string
	for q.len() > 0 {
		p, _ := q.pop()
		order = append(order, p.ID)
	}
	want := []string{"a", "b2", "b1", "c"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("pop order = %v; want %v", order, want)
		}
	}
	if _, ok := q.pop(); ok {
		t.Errorf("pop() on empty queue = true; want false")
	}
}

func TestTransitionFor(t *testing.T) {
	tests := []struct {
		from   State
		on     trigger
		want   State
		wantOK bool
	}{
		{StateLoading, trMediaReady, StatePaused, true},
		{StatePaused, trPlay, StatePlaying, true},
		{StatePlaying, trPause, StatePaused, true},
		{StatePlaying, trPromptDue, StatePromptActive, true},
		{StatePromptActive, trPromptExpired, StateFailed, true},
		{StatePlaying, trEndedWithQuiz, StateQuizActive, true},
		{StateQuizActive, trQuizFailed, StateQuizActive, true},
		{StateFinished, trCredited, StateCredited, true},
		{StateLoading, trPlay, "", false},
		{StatePromptActive, trPause, "", false},
		{StateQuizActive, trPromptDue, "", false},
	}
	for _, tc := range tests {
		got, ok := transitionFor(tc.from, tc.on)
		if got != tc.want || ok != tc.wantOK {
			t.Errorf("transitionFor(%s, %s) = %q, %v; want %q, %v", tc.from, tc.on, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestTerminalStatesHaveNoExit(t *testing.T) {
	for _, tr := range transitionsTable {
		if tr.from.IsTerminal() {
			t.Errorf("transition %s --%s--> %s leaves a terminal state", tr.from, tr.on, tr.to)
		}
	}
}

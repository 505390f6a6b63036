package catchup

import "container/heap"

type queuedPrompt struct {
	Prompt
	order int // position in the token; breaks AtSec ties
}

// promptHeap is a min-heap of unacknowledged prompts keyed by (AtSec, order).
type promptHeap []queuedPrompt

func (h promptHeap) Len() int { return len(h) }
func (h promptHeap) Less(i, j int) bool {
	if h[i].AtSec == h[j].AtSec {
		return h[i].order < h[j].order
	}
	return h[i].AtSec < h[j].AtSec
}
func (h promptHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *promptHeap) Push(x interface{}) { *h = append(*h, x.(queuedPrompt)) }
func (h *promptHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// promptQueue schedules the presence prompts of a session.
type promptQueue struct {
	h promptHeap
}

func newPromptQueue(prompts []Prompt) *promptQueue {
	q := &promptQueue{h: make(promptHeap, 0, len(prompts))}
	for i, p := range prompts {
		q.h = append(q.h, queuedPrompt{Prompt: p, order: i})
	}
	heap.Init(&q.h)
	return q
}

// due returns the earliest unacknowledged prompt reached at `position`, without dequeuing it.
func (q *promptQueue) due(position float64) (Prompt, bool) {
	if len(q.h) == 0 || q.h[0].AtSec > position {
		return Prompt{}, false
	}
	return q.h[0].Prompt, true
}

// pop dequeues the earliest prompt.
func (q *promptQueue) pop() (Prompt, bool) {
	if len(q.h) == 0 {
		return Prompt{}, false
	}
	return heap.Pop(&q.h).(queuedPrompt).Prompt, true
}

func (q *promptQueue) len() int { return len(q.h) }

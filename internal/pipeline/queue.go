// Package pipeline provides the bounded hand-off queues between the voice
// pipeline stages. Queues are drop-oldest: a producer never blocks on a
// slow consumer, it evicts the stalest element instead, which keeps the
// pipeline biased toward fresh audio.
package pipeline

import (
	"log/slog"
	"time"
)

// PollInterval is the conventional wait used by stage loops between empty
// queue reads.
const PollInterval = time.Second

// Queue is a bounded FIFO hand-off between two pipeline stages.
type Queue[T any] struct {
	name string
	ch   chan T
	log  *slog.Logger
}

// NewQueue returns a queue holding at most capacity elements. The name is
// used in overflow logs and metrics.
func NewQueue[T any](name string, capacity int, log *slog.Logger) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Queue[T]{name: name, ch: make(chan T, capacity), log: log}
}

// Put enqueues v. When the queue is full the oldest element is evicted and
// logged; Put itself never blocks for long.
func (q *Queue[T]) Put(v T) {
	for {
		select {
		case q.ch <- v:
			return
		default:
		}
		select {
		case <-q.ch:
			q.log.Warn("queue full, dropped oldest element", "queue", q.name)
		default:
		}
	}
}

// Get dequeues the next element, waiting up to timeout. The second return
// is false when the wait elapsed empty-handed.
func (q *Queue[T]) Get(timeout time.Duration) (T, bool) {
	select {
	case v := <-q.ch:
		return v, true
	default:
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case v := <-q.ch:
		return v, true
	case <-timer.C:
		var zero T
		return zero, false
	}
}

// TryGet dequeues without waiting.
func (q *Queue[T]) TryGet() (T, bool) {
	select {
	case v := <-q.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// Len returns the current element count.
func (q *Queue[T]) Len() int { return len(q.ch) }

// Name returns the queue's diagnostic name.
func (q *Queue[T]) Name() string { return q.name }

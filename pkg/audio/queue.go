package audio

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrTimeout is returned by [Queue.Pop] when no frame arrived within the
// requested timeout.
var ErrTimeout = errors.New("audio: queue pop timed out")

// Queue is the bounded hand-off queue between the capture goroutine and the
// segmenter.
//
// Push never blocks: when the queue is full the newest frame is dropped and
// counted. Pop waits at most the given timeout so the consumer can run
// time-based checks while no audio arrives. Queue is safe for one producer
// and one consumer running concurrently.
type Queue struct {
	ch      chan Frame
	dropped atomic.Uint64
	onDrop  func(Frame)
}

// QueueOption configures a [Queue].
type QueueOption func(*Queue)

// WithDropHook registers fn to be called synchronously for every dropped
// frame. fn runs on the producer goroutine and must not block.
func WithDropHook(fn func(Frame)) QueueOption {
	return func(q *Queue) { q.onDrop = fn }
}

// NewQueue returns a queue holding at most capacity frames. A capacity below
// one is raised to one.
func NewQueue(capacity int, opts ...QueueOption) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	q := &Queue{ch: make(chan Frame, capacity)}
	for _, o := range opts {
		o(q)
	}
	return q
}

// TryPush enqueues f without blocking. It reports false when the queue was
// full and f was dropped.
func (q *Queue) TryPush(f Frame) bool {
	select {
	case q.ch <- f:
		return true
	default:
		q.dropped.Add(1)
		if q.onDrop != nil {
			q.onDrop(f)
		}
		return false
	}
}

// Pop dequeues the oldest frame. It returns [ErrTimeout] when nothing arrives
// within timeout and ctx.Err() once ctx is done. A timeout of zero or less
// waits until a frame arrives or ctx is done.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	select {
	case f := <-q.ch:
		return f, nil
	default:
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case f := <-q.ch:
		return f, nil
	case <-expired:
		return Frame{}, ErrTimeout
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// Flush discards every frame currently buffered and returns how many were
// discarded. Frames pushed concurrently with Flush may survive it.
func (q *Queue) Flush() int {
	n := 0
	for {
		select {
		case <-q.ch:
			n++
		default:
			return n
		}
	}
}

// Len returns the number of buffered frames.
func (q *Queue) Len() int { return len(q.ch) }

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return cap(q.ch) }

// Dropped returns the number of frames dropped because the queue was full.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }

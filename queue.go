package robot_interaction

import (
	"context"
	"sync"

	"go.viam.com/utils"
)

// DefaultQueueSize bounds the feedback waiting to be processed.
const DefaultQueueSize = 64

type queueItem struct {
	fb   Feedback
	done chan struct{} // non-nil for flush markers
}

// FeedbackQueue delivers feedback to a handler from a single goroutine, so events
// for a handler are processed in the order they were enqueued no matter how many
// transport goroutines enqueue them.
type FeedbackQueue struct {
	handler *Handler
	items   chan queueItem
	workers *utils.StoppableWorkers

	mu      sync.RWMutex
	stopped bool
}

func NewFeedbackQueue(h *Handler, size int) *FeedbackQueue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	q := &FeedbackQueue{handler: h, items: make(chan queueItem, size)}
	q.workers = utils.NewBackgroundStoppableWorkers(q.run)
	return q
}

func (q *FeedbackQueue) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-q.items:
			if it.done != nil {
				close(it.done)
				continue
			}
			q.handler.Handle(ctx, it.fb)
		}
	}
}

// Enqueue hands fb to the delivery goroutine without waiting for it to be processed.
func (q *FeedbackQueue) Enqueue(fb Feedback) error {
	return q.put(queueItem{fb: fb})
}

// Flush waits until everything enqueued before the call has been processed.
func (q *FeedbackQueue) Flush(ctx context.Context) error {
	done := make(chan struct{})
	q.mu.RLock()
	if q.stopped {
		q.mu.RUnlock()
		return ErrQueueStopped
	}
	select {
	case q.items <- queueItem{done: done}:
		q.mu.RUnlock()
	case <-ctx.Done():
		q.mu.RUnlock()
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.workers.Context().Done():
		return ErrQueueStopped
	}
}

func (q *FeedbackQueue) put(it queueItem) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.stopped {
		return ErrQueueStopped
	}
	select {
	case q.items <- it:
		return nil
	default:
		return ErrQueueFull
	}
}

// Len is the number of events waiting.
func (q *FeedbackQueue) Len() int {
	return len(q.items)
}

// Close stops the delivery goroutine, aborting an event that is waiting for
// exclusive state access. Events still queued are discarded.
func (q *FeedbackQueue) Close() {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()
	q.workers.Stop()
}

package usecase

import (
	"sync"

	"github.com/gammazero/deque"
)

// inbox queues work for the controller loop. push never blocks, so transport
// callbacks can hand off updates without waiting for the loop.
type inbox struct {
	mu    sync.Mutex
	queue deque.Deque[func()]
	wake  chan struct{}
}

func newInbox() *inbox {
	return &inbox{
		queue: deque.Deque[func()]{},
		wake:  make(chan struct{}, 1),
	}
}

func (i *inbox) push(fn func()) {
	i.mu.Lock()
	i.queue.PushBack(fn)
	i.mu.Unlock()

	select {
	case i.wake <- struct{}{}:
	default:
	}
}

// pop returns the oldest queued task, or nil when the queue is empty.
func (i *inbox) pop() func() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.queue.Len() == 0 {
		return nil
	}
	return i.queue.PopFront()
}

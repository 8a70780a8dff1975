package modguard

import (
	"context"
	"sync"
	"time"
)

type scheduledTask struct {
	clientID ClientID
	fireAt   time.Time
	seq      uint64
	run      func(ctx context.Context)
}

// Scheduler is a work queue of deferred per-client tasks ordered by fire
// time. It never starts goroutines; RunDue executes what is due.
type Scheduler struct {
	mu    sync.Mutex
	queue *typedHeap[*scheduledTask]
	seq   uint64
}

// NewScheduler creates an empty Scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		queue: newTypedHeap(func(a, b *scheduledTask) bool {
			if !a.fireAt.Equal(b.fireAt) {
				return a.fireAt.Before(b.fireAt)
			}
			return a.seq < b.seq
		}),
	}
}

// Schedule queues run for clientID at fireAt.
func (s *Scheduler) Schedule(clientID ClientID, fireAt time.Time, run func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	s.queue.HeapPush(&scheduledTask{
		clientID: clientID,
		fireAt:   fireAt,
		seq:      s.seq,
		run:      run,
	})
}

// Cancel drops every queued task for clientID and returns how many.
func (s *Scheduler) Cancel(clientID ClientID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.queue.Filter(func(t *scheduledTask) bool {
		return t.clientID != clientID
	})
}

// Scheduled reports whether clientID has a queued task.
func (s *Scheduler) Scheduled(clientID ClientID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.queue.S {
		if t.clientID == clientID {
			return true
		}
	}
	return false
}

// RunDue runs every task whose fire time is not after now, in fire order.
// Tasks run after the queue lock is released. It returns how many ran.
func (s *Scheduler) RunDue(ctx context.Context, now time.Time) int {
	s.mu.Lock()
	var due []*scheduledTask
	for s.queue.Len() > 0 && !s.queue.HeapPeek().fireAt.After(now) {
		due = append(due, s.queue.HeapPop())
	}
	s.mu.Unlock()

	for _, t := range due {
		t.run(ctx)
	}
	return len(due)
}

// Len returns the number of queued tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

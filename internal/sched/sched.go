// Package sched implements the single-threaded cooperative scheduler
// that owns all protocol state transitions. An external driver calls
// Tick at a fixed cadence; I/O goroutines hand work over through queue
// pushes, which is the only synchronization point.
package sched

import (
	"container/heap"
	"sync"
)

// Task is one deferred unit of work. Tasks run on the goroutine driving
// the scheduler and must not block.
type Task func()

// Scheduler owns a virtual clock, a timer registry, and a set of named
// FIFO task queues.
//
// Drain order is deterministic: within a queue, FIFO; across queues,
// round-robin one task at a time in queue creation order. Tasks pushed
// while a drain is in progress are eligible for the same drain pass
// (run to quiescence).
type Scheduler struct {
	mu      sync.Mutex
	cond    *sync.Cond
	now     uint64
	queues  []*Queue
	rr      int
	timers  timerHeap
	timeSeq uint64
	stopped bool
}

// New returns an empty scheduler at virtual time zero.
func New() *Scheduler {
	s := &Scheduler{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Now returns the current virtual time in ticks.
func (s *Scheduler) Now() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// NewQueue creates a named FIFO task queue. Queues created earlier
// drain earlier within a round.
func (s *Scheduler) NewQueue(name string) *Queue {
	q := &Queue{s: s, name: name}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues = append(s.queues, q)
	return q
}

// Tick advances the virtual clock by one unit, fires every timer whose
// deadline has elapsed (ties broken by registration order), then drains
// all queues to quiescence.
func (s *Scheduler) Tick() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.now++
	due := s.popDueLocked()
	s.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
	s.drain()
}

// popDueLocked removes and returns all elapsed, uncancelled timers.
func (s *Scheduler) popDueLocked() []*Timer {
	var due []*Timer
	for len(s.timers) > 0 && s.timers[0].deadline <= s.now {
		t := heap.Pop(&s.timers).(*Timer)
		if t.stopped {
			continue
		}
		t.fired = true
		due = append(due, t)
	}
	return due
}

// drain runs queued tasks until every queue is empty. Callbacks may
// push further tasks; those run in the same pass.
func (s *Scheduler) drain() {
	for {
		task, ok := s.takeTask(false)
		if !ok {
			return
		}
		task()
	}
}

// RunNextTask blocks until one task is available, runs it, and returns
// true. It returns false once the scheduler is stopped. It backs a
// blocking run loop when no external tick driver is present.
func (s *Scheduler) RunNextTask() bool {
	task, ok := s.takeTask(true)
	if !ok {
		return false
	}
	task()
	return true
}

// takeTask pops one task round-robin across queues. With wait set it
// blocks until a task arrives or the scheduler stops.
func (s *Scheduler) takeTask(wait bool) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if s.stopped {
			return nil, false
		}
		n := len(s.queues)
		for i := 0; i < n; i++ {
			q := s.queues[(s.rr+i)%n]
			if len(q.tasks) == 0 {
				continue
			}
			task := q.tasks[0]
			q.tasks = q.tasks[1:]
			s.rr = (s.rr + i + 1) % n
			return task, true
		}
		if !wait {
			return nil, false
		}
		s.cond.Wait()
	}
}

// StartTimer registers fn to run on the first Tick whose virtual time
// reaches now+delay. A zero delay fires on the next Tick. The returned
// handle cancels the timer via Stop.
func (s *Scheduler) StartTimer(delay uint64, fn func()) *Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if delay == 0 {
		delay = 1
	}
	t := &Timer{
		deadline: s.now + delay,
		seq:      s.timeSeq,
		fn:       fn,
	}
	s.timeSeq++
	if !s.stopped {
		heap.Push(&s.timers, t)
	}
	return t
}

// Stop discards all pending timers and queued tasks and wakes any
// blocked RunNextTask caller. Stopping twice is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	s.timers = nil
	for _, q := range s.queues {
		q.tasks = nil
	}
	s.cond.Broadcast()
}

// Queue is one FIFO task queue. Push is safe to call from any
// goroutine; execution always happens on the scheduler driver.
type Queue struct {
	s     *Scheduler
	name  string
	tasks []Task
}

// Name returns the queue's name.
func (q *Queue) Name() string { return q.name }

// Push enqueues task. It reports false if the scheduler has stopped,
// in which case the task is discarded.
func (q *Queue) Push(task Task) bool {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()
	if q.s.stopped {
		return false
	}
	q.tasks = append(q.tasks, task)
	q.s.cond.Signal()
	return true
}

// Len reports the number of queued tasks.
func (q *Queue) Len() int {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()
	return len(q.tasks)
}

// Timer is a handle to one registered timer callback.
type Timer struct {
	deadline uint64
	seq      uint64
	fn       func()
	stopped  bool
	fired    bool
}

// Stop cancels the timer if it has not fired. Stopping a fired or
// already-stopped timer has no effect. Stop must be called from the
// scheduler context, like every other state mutation.
func (t *Timer) Stop() {
	t.stopped = true
}

// Stopped reports whether Stop was called before the timer fired.
func (t *Timer) Stopped() bool { return t.stopped && !t.fired }

type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline != h[j].deadline {
		return h[i].deadline < h[j].deadline
	}
	return h[i].seq < h[j].seq
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *timerHeap) Push(x any) {
	*h = append(*h, x.(*Timer))
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

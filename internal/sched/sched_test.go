package sched

import (
	"sync"
	"testing"
	"time"
)

func TestTickFiresElapsedTimersInOrder(t *testing.T) {
	s := New()
	var got []int
	s.StartTimer(2, func() { got = append(got, 2) })
	s.StartTimer(1, func() { got = append(got, 1) })
	s.StartTimer(1, func() { got = append(got, 10) })

	s.Tick()
	if len(got) != 2 || got[0] != 1 || got[1] != 10 {
		t.Fatalf("tick1 fired %v", got)
	}
	s.Tick()
	if len(got) != 3 || got[2] != 2 {
		t.Fatalf("tick2 fired %v", got)
	}
	s.Tick()
	if len(got) != 3 {
		t.Fatalf("timers fired more than once: %v", got)
	}
}

func TestZeroDelayFiresNextTick(t *testing.T) {
	s := New()
	fired := false
	s.StartTimer(0, func() { fired = true })
	if fired {
		t.Fatalf("timer fired before any tick")
	}
	s.Tick()
	if !fired {
		t.Fatalf("zero-delay timer did not fire on next tick")
	}
}

func TestTimerStopBeforeFiring(t *testing.T) {
	s := New()
	fired := false
	timer := s.StartTimer(1, func() { fired = true })
	timer.Stop()
	s.Tick()
	if fired {
		t.Fatalf("stopped timer fired")
	}
	// Stopping again, or stopping after the deadline passed, is a no-op.
	timer.Stop()
	s.Tick()
	if fired {
		t.Fatalf("stopped timer fired late")
	}
}

func TestQueueFIFOWithinQueue(t *testing.T) {
	s := New()
	q := s.NewQueue("rx")
	var got []int
	for i := 0; i < 5; i++ {
		i := i
		q.Push(func() { got = append(got, i) })
	}
	s.Tick()
	for i, v := range got {
		if v != i {
			t.Fatalf("out of order: %v", got)
		}
	}
	if q.Len() != 0 {
		t.Fatalf("queue not drained: %d", q.Len())
	}
}

func TestDrainRoundRobinAcrossQueues(t *testing.T) {
	s := New()
	a := s.NewQueue("a")
	b := s.NewQueue("b")
	var got []string
	a.Push(func() { got = append(got, "a1") })
	a.Push(func() { got = append(got, "a2") })
	b.Push(func() { got = append(got, "b1") })

	s.Tick()
	want := []string{"a1", "b1", "a2"}
	if len(got) != len(want) {
		t.Fatalf("drained %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("want %v got %v", want, got)
		}
	}
}

func TestTasksPushedDuringDrainRunSamePass(t *testing.T) {
	s := New()
	q := s.NewQueue("rx")
	var got []string
	q.Push(func() {
		got = append(got, "outer")
		q.Push(func() { got = append(got, "inner") })
	})
	s.Tick()
	if len(got) != 2 || got[1] != "inner" {
		t.Fatalf("inner task deferred past the drain pass: %v", got)
	}
}

func TestTimerCallbackMayPushTask(t *testing.T) {
	s := New()
	q := s.NewQueue("rx")
	ran := false
	s.StartTimer(1, func() {
		q.Push(func() { ran = true })
	})
	s.Tick()
	if !ran {
		t.Fatalf("task pushed from timer callback did not run in the same tick")
	}
}

func TestRunNextTaskBlocksUntilPush(t *testing.T) {
	s := New()
	q := s.NewQueue("rx")
	done := make(chan bool, 1)
	go func() {
		done <- s.RunNextTask()
	}()
	time.Sleep(10 * time.Millisecond)
	ran := make(chan struct{})
	q.Push(func() { close(ran) })

	select {
	case ok := <-done:
		if !ok {
			t.Fatalf("RunNextTask returned false")
		}
	case <-time.After(time.Second):
		t.Fatalf("RunNextTask did not return after push")
	}
	select {
	case <-ran:
	default:
		t.Fatalf("task did not execute")
	}
}

func TestStopWakesRunNextTaskAndDiscardsWork(t *testing.T) {
	s := New()
	q := s.NewQueue("rx")
	done := make(chan bool, 1)
	go func() {
		done <- s.RunNextTask()
	}()
	s.Stop()
	select {
	case ok := <-done:
		if ok {
			t.Fatalf("RunNextTask returned true after stop")
		}
	case <-time.After(time.Second):
		t.Fatalf("RunNextTask did not return after stop")
	}

	if q.Push(func() {}) {
		t.Fatalf("push accepted after stop")
	}
	fired := false
	s.StartTimer(1, func() { fired = true })
	s.Tick()
	if fired {
		t.Fatalf("timer registered after stop fired")
	}
	s.Stop() // second stop is a no-op
}

func TestPushIsSafeAcrossGoroutines(t *testing.T) {
	s := New()
	q := s.NewQueue("rx")
	const n = 64
	var wg sync.WaitGroup
	count := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Push(func() { count++ })
		}()
	}
	wg.Wait()
	s.Tick()
	if count != n {
		t.Fatalf("ran %d of %d tasks", count, n)
	}
}

package actions

import (
	"sync"
	"testing"
	"time"
)

func waitSignal(t *testing.T, ch <-chan string, want string) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("got signal %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

func TestQueueImmediateStartAndCompletion(t *testing.T) {
	q := NewQueue(0)
	done := make(chan string, 1)

	q.Enqueue(&Action{
		ID:         "crack-1",
		Duration:   20 * time.Millisecond,
		OnComplete: func() { done <- "crack-1" },
	})

	if q.Current() == nil {
		t.Fatal("action should start immediately on an idle queue")
	}
	waitSignal(t, done, "crack-1")
}

func TestQueueFIFOCompletionOrder(t *testing.T) {
	q := NewQueue(0)
	done := make(chan string, 3)

	for _, id := range []string{"a", "b", "c"} {
		id := id
		q.Enqueue(&Action{
			ID:         id,
			Duration:   15 * time.Millisecond,
			OnComplete: func() { done <- id },
		})
	}

	if q.Len() != 3 {
		t.Fatalf("Len = %d, want 3", q.Len())
	}
	waitSignal(t, done, "a")
	waitSignal(t, done, "b")
	waitSignal(t, done, "c")
}

func TestQueueSingleConcurrency(t *testing.T) {
	q := NewQueue(0)
	done := make(chan string, 3)

	for _, id := range []string{"x", "y", "z"} {
		id := id
		q.Enqueue(&Action{
			ID:         id,
			Duration:   10 * time.Millisecond,
			OnComplete: func() { done <- id },
		})
		// At any sampled instant exactly one action is current.
		if cur := q.Current(); cur == nil || cur.ID != "x" {
			t.Fatalf("expected x current while enqueueing, got %v", cur)
		}
	}
	waitSignal(t, done, "x")
	waitSignal(t, done, "y")
	waitSignal(t, done, "z")
}

func TestQueueCancelCurrent(t *testing.T) {
	q := NewQueue(0)
	events := make(chan string, 4)

	q.Enqueue(&Action{
		ID:         "slow",
		Duration:   10 * time.Second,
		OnComplete: func() { events <- "slow-complete" },
		OnCancel:   func() { events <- "slow-cancel" },
	})
	q.Enqueue(&Action{
		ID:         "next",
		Duration:   10 * time.Millisecond,
		OnComplete: func() { events <- "next-complete" },
	})

	if !q.Cancel("slow") {
		t.Fatal("Cancel(slow) = false")
	}
	waitSignal(t, events, "slow-cancel")
	waitSignal(t, events, "next-complete")

	// OnComplete must never fire for a cancelled action.
	select {
	case got := <-events:
		t.Fatalf("unexpected trailing signal %q", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestQueueCancelPending(t *testing.T) {
	q := NewQueue(0)
	events := make(chan string, 4)

	q.Enqueue(&Action{ID: "run", Duration: 30 * time.Millisecond,
		OnComplete: func() { events <- "run-complete" }})
	q.Enqueue(&Action{ID: "doomed", Duration: time.Millisecond,
		OnComplete: func() { events <- "doomed-complete" },
		OnCancel:   func() { events <- "doomed-cancel" }})

	if !q.Cancel("doomed") {
		t.Fatal("Cancel(doomed) = false")
	}
	waitSignal(t, events, "doomed-cancel")
	waitSignal(t, events, "run-complete")
}

func TestQueueCancelUnknown(t *testing.T) {
	q := NewQueue(0)
	if q.Cancel("ghost") {
		t.Error("cancelling an unknown id should return false")
	}
}

func TestQueueClear(t *testing.T) {
	q := NewQueue(0)
	var mu sync.Mutex
	var cancelled []string

	record := func(id string) func() {
		return func() {
			mu.Lock()
			cancelled = append(cancelled, id)
			mu.Unlock()
		}
	}

	q.Enqueue(&Action{ID: "a", Duration: 10 * time.Second, OnCancel: record("a")})
	q.Enqueue(&Action{ID: "b", Duration: 10 * time.Second, OnCancel: record("b")})
	q.Enqueue(&Action{ID: "c", Duration: 10 * time.Second, OnCancel: record("c")})

	q.Clear()

	mu.Lock()
	defer mu.Unlock()
	if len(cancelled) != 3 {
		t.Fatalf("cancelled %v, want all three", cancelled)
	}
	if q.Len() != 0 {
		t.Errorf("Len after Clear = %d, want 0", q.Len())
	}
}

func TestQueueProgressClamped(t *testing.T) {
	q := NewQueue(0)
	base := time.Now()
	q.now = func() time.Time { return base }

	q.Enqueue(&Action{ID: "p", Duration: 100 * time.Second})

	q.now = func() time.Time { return base.Add(50 * time.Second) }
	if _, frac, ok := q.Progress(); !ok || frac < 0.49 || frac > 0.51 {
		t.Errorf("mid progress = %v, want ~0.5", frac)
	}

	q.now = func() time.Time { return base.Add(1000 * time.Second) }
	if _, frac, _ := q.Progress(); frac != 1 {
		t.Errorf("late progress = %v, want clamped to 1", frac)
	}

	q.now = func() time.Time { return base.Add(-time.Second) }
	if _, frac, _ := q.Progress(); frac != 0 {
		t.Errorf("early progress = %v, want clamped to 0", frac)
	}
	q.Cancel("p")
}

func TestQueueListenerSeesTransitions(t *testing.T) {
	q := NewQueue(0)
	states := make(chan string, 8)
	q.AddListener(func(cur *Action) {
		if cur == nil {
			states <- "idle"
		} else {
			states <- cur.ID
		}
	})

	done := make(chan string, 1)
	q.Enqueue(&Action{ID: "only", Duration: 15 * time.Millisecond,
		OnComplete: func() { done <- "done" }})

	waitSignal(t, states, "only")
	waitSignal(t, done, "done")
	waitSignal(t, states, "idle")
}

func TestQueueCompleteEnqueuesBehindPending(t *testing.T) {
	q := NewQueue(0)
	done := make(chan string, 3)

	q.Enqueue(&Action{ID: "first", Duration: 10 * time.Millisecond,
		OnComplete: func() {
			done <- "first"
			q.Enqueue(&Action{ID: "late", Duration: time.Millisecond,
				OnComplete: func() { done <- "late" }})
		}})
	q.Enqueue(&Action{ID: "second", Duration: 10 * time.Millisecond,
		OnComplete: func() { done <- "second" }})

	waitSignal(t, done, "first")
	waitSignal(t, done, "second")
	waitSignal(t, done, "late")
}

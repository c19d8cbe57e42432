// Package actions serializes time-costed tool effects. Every simulated
// tool (password cracker, VPN handshake, downloads) runs behind a wall
// clock duration; the queue guarantees a single action executes at a time
// and defers the action's side effects until its timer elapses.
package actions

import (
	"log"
	"sync"
	"time"
)

// Action is one unit of deferred work. OnComplete runs when the duration
// elapses; OnCancel runs instead if the action is cancelled first. For any
// action, OnComplete is invoked at most once and never after OnCancel.
type Action struct {
	ID       string
	Label    string
	Duration time.Duration
	OnProgress func(fraction float64)
	OnComplete func()
	OnCancel   func()
}

// Listener observes queue state transitions. It receives the action that
// just became current, or nil when the queue went idle.
type Listener func(current *Action)

// Queue is a single-lane FIFO scheduler. At most one action is current at
// any instant; the rest wait in arrival order.
type Queue struct {
	mu        sync.Mutex
	current   *Action
	startedAt time.Time
	settled   bool // current action already completed or cancelled
	timer     *time.Timer
	tickStop  chan struct{}
	pending   []*Action
	listeners []Listener
	now       func() time.Time
	tickEvery time.Duration
}

// NewQueue creates an empty queue. tickEvery controls how often OnProgress
// callbacks fire while an action runs; zero disables progress ticks.
func NewQueue(tickEvery time.Duration) *Queue {
	return &Queue{
		now:       time.Now,
		tickEvery: tickEvery,
	}
}

// AddListener registers a transition listener.
func (q *Queue) AddListener(fn Listener) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.listeners = append(q.listeners, fn)
}

// Enqueue adds an action. If the lane is idle and nothing is waiting the
// action starts immediately, otherwise it joins the FIFO tail.
func (q *Queue) Enqueue(a *Action) {
	q.mu.Lock()
	if q.current != nil || len(q.pending) > 0 {
		q.pending = append(q.pending, a)
		q.mu.Unlock()
		return
	}
	q.startLocked(a)
	q.mu.Unlock()
	q.notify(a)
}

// startLocked makes a the current action. Caller holds q.mu.
func (q *Queue) startLocked(a *Action) {
	q.current = a
	q.settled = false
	q.startedAt = q.now()
	q.timer = time.AfterFunc(a.Duration, func() { q.complete(a) })
	if q.tickEvery > 0 && a.OnProgress != nil {
		stop := make(chan struct{})
		q.tickStop = stop
		go q.tickLoop(a, stop)
	}
}

func (q *Queue) tickLoop(a *Action, stop chan struct{}) {
	ticker := time.NewTicker(q.tickEvery)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			_, frac, ok := q.Progress()
			if !ok {
				return
			}
			a.OnProgress(frac)
		}
	}
}

// complete fires when a's timer elapses. If a was cancelled in the
// meantime the call is a no-op.
func (q *Queue) complete(a *Action) {
	q.mu.Lock()
	if q.current != a || q.settled {
		q.mu.Unlock()
		return
	}
	q.settled = true
	q.stopTickLocked()
	q.current = nil
	q.mu.Unlock()

	if a.OnComplete != nil {
		q.invoke("complete", a.ID, a.OnComplete)
	}
	q.advance()
}

// Cancel stops the identified action. A current action has its timer
// halted; a queued action is removed from the lane. OnCancel runs in both
// cases, OnComplete in neither. Returns false if no such action exists.
func (q *Queue) Cancel(id string) bool {
	q.mu.Lock()
	if q.current != nil && q.current.ID == id && !q.settled {
		a := q.current
		q.settled = true
		q.timer.Stop()
		q.stopTickLocked()
		q.current = nil
		q.mu.Unlock()

		if a.OnCancel != nil {
			q.invoke("cancel", a.ID, a.OnCancel)
		}
		q.advance()
		return true
	}
	for i, a := range q.pending {
		if a.ID == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			q.mu.Unlock()
			if a.OnCancel != nil {
				q.invoke("cancel", a.ID, a.OnCancel)
			}
			return true
		}
	}
	q.mu.Unlock()
	return false
}

// Clear cancels the current action and every queued one.
func (q *Queue) Clear() {
	q.mu.Lock()
	var cancelled []*Action
	if q.current != nil && !q.settled {
		q.settled = true
		q.timer.Stop()
		q.stopTickLocked()
		cancelled = append(cancelled, q.current)
		q.current = nil
	}
	cancelled = append(cancelled, q.pending...)
	q.pending = nil
	q.mu.Unlock()

	for _, a := range cancelled {
		if a.OnCancel != nil {
			q.invoke("cancel", a.ID, a.OnCancel)
		}
	}
	q.notify(nil)
}

// advance pops the next pending action, if any, and starts it.
func (q *Queue) advance() {
	q.mu.Lock()
	if q.current != nil || len(q.pending) == 0 {
		q.mu.Unlock()
		q.notify(q.currentUnsafe())
		return
	}
	next := q.pending[0]
	q.pending = q.pending[1:]
	q.startLocked(next)
	q.mu.Unlock()
	q.notify(next)
}

func (q *Queue) currentUnsafe() *Action {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current
}

func (q *Queue) stopTickLocked() {
	if q.tickStop != nil {
		close(q.tickStop)
		q.tickStop = nil
	}
}

// Current returns the running action, nil when idle.
func (q *Queue) Current() *Action {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current
}

// Len returns the number of actions in the lane, including the current one.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.pending)
	if q.current != nil {
		n++
	}
	return n
}

// Progress reports the current action and its completion fraction in
// [0,1]. ok is false when the queue is idle.
func (q *Queue) Progress() (a *Action, fraction float64, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current == nil {
		return nil, 0, false
	}
	a = q.current
	if a.Duration <= 0 {
		return a, 1, true
	}
	fraction = float64(q.now().Sub(q.startedAt)) / float64(a.Duration)
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return a, fraction, true
}

func (q *Queue) invoke(phase, id string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("QUEUE: %s callback for %s panicked: %v", phase, id, r)
		}
	}()
	fn()
}

func (q *Queue) notify(current *Action) {
	q.mu.Lock()
	listeners := make([]Listener, len(q.listeners))
	copy(listeners, q.listeners)
	q.mu.Unlock()
	for _, fn := range listeners {
		fn(current)
	}
}

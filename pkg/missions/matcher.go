package missions

import (
	"github.com/hackmesh/termhack/pkg/events"
)

// Matcher subscribes to the event bus and evaluates the active mission's
// incomplete tasks against each incoming event. Matching is scoped to the
// currently active mission only: with no mission active every event is
// ignored, and tasks of non-active missions are never completed by
// ambient events. Completion is idempotent; re-checking an event against
// an already-done task is a no-op inside Engine.CompleteTask.
type Matcher struct {
	eng    *Engine
	unsubs []func()
}

// matchedTypes is the set of event types task predicates can key on.
var matchedTypes = []events.Type{
	events.EvCommandExecuted,
	events.EvToolUsed,
	events.EvFileRead,
	events.EvServerConnected,
	events.EvServerDisconnected,
	events.EvEmailRead,
}

// NewMatcher creates a matcher and attaches it to the bus.
func NewMatcher(eng *Engine, bus *events.Bus) *Matcher {
	m := &Matcher{eng: eng}
	for _, t := range matchedTypes {
		m.unsubs = append(m.unsubs, bus.Subscribe(t, m.handle))
	}
	return m
}

// Close detaches the matcher from the bus.
func (m *Matcher) Close() {
	for _, u := range m.unsubs {
		u()
	}
	m.unsubs = nil
}

func (m *Matcher) handle(ev events.Event) {
	eng := m.eng
	if ev.Type == events.EvCommandExecuted {
		// The mission timer runs from the first command, not activation.
		eng.TouchClock()
	}

	current := eng.CurrentMission()
	if current == "" {
		return
	}
	mission := eng.reg.Get(current)
	if mission == nil {
		return
	}
	progress := eng.TaskProgress(current)
	for _, task := range mission.Tasks {
		if progress[task.ID] {
			continue
		}
		if task.Match.Matches(ev) {
			eng.CompleteTask(current, task.ID)
		}
	}
}

package missions

import (
	"log"
	"math"
	"sync"
	"time"

	"github.com/hackmesh/termhack/pkg/events"
)

// Config carries the reward and settle tuning for an engine.
type Config struct {
	// SettleDelay is how long the engine waits after the last task of a
	// mission completes before finalizing the mission. Task completions can
	// arrive from callbacks that are still producing side-effect events (a
	// disconnect triggered by the same action, a tool's deferred emission);
	// the delay lets those land, and finalization re-validates every task
	// before committing.
	SettleDelay       time.Duration
	PerfectMultiplier float64
	SpeedMultiplier   float64
	NoHintsMultiplier float64
}

// DefaultConfig mirrors the shipped game tuning.
func DefaultConfig() Config {
	return Config{
		SettleDelay:       50 * time.Millisecond,
		PerfectMultiplier: 1.25,
		SpeedMultiplier:   1.5,
		NoHintsMultiplier: 1.2,
	}
}

// Engine is the per-player mission state machine. Missions move through
// locked -> unlocked -> active -> completed; completed is terminal. All
// runtime mutation happens through Engine methods; other components call
// in rather than touching state directly.
type Engine struct {
	mu     sync.Mutex
	reg    *Registry
	bus    *events.Bus
	player string
	conf   Config

	current      string
	completed    []string // append-only, no duplicates
	completedSet map[string]bool
	progress     map[string]map[string]bool // mission -> task -> done
	hintsUsed    map[string]int
	missionStart time.Time // zero until the first command after activation
	credits      int

	now      func() time.Time
	schedule func(time.Duration, func())
}

// NewEngine creates an engine bound to a mission registry and event bus.
func NewEngine(reg *Registry, bus *events.Bus, player string, conf Config) *Engine {
	return &Engine{
		reg:          reg,
		bus:          bus,
		player:       player,
		conf:         conf,
		completedSet: make(map[string]bool),
		progress:     make(map[string]map[string]bool),
		hintsUsed:    make(map[string]int),
		now:          time.Now,
		schedule: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
	}
}

// State reports a mission's lifecycle state: "locked", "unlocked",
// "active" or "completed". Unknown missions are "locked".
func (e *Engine) State(id string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked(id)
}

func (e *Engine) stateLocked(id string) string {
	m := e.reg.Get(id)
	if m == nil {
		return "locked"
	}
	if e.completedSet[id] {
		return "completed"
	}
	if e.current == id {
		return "active"
	}
	for _, pre := range m.Prerequisites {
		if !e.completedSet[pre] {
			return "locked"
		}
	}
	return "unlocked"
}

// StartMission activates a mission. It refuses (returning false, never
// panicking) when the mission is unknown, already completed, or still
// locked. Existing partial task progress is preserved, supporting
// mid-mission resume; the mission timer is reset and starts lazily on the
// first subsequent command.
func (e *Engine) StartMission(id string) bool {
	e.mu.Lock()
	m := e.reg.Get(id)
	if m == nil || e.completedSet[id] {
		e.mu.Unlock()
		return false
	}
	for _, pre := range m.Prerequisites {
		if !e.completedSet[pre] {
			e.mu.Unlock()
			return false
		}
	}
	p := e.progress[id]
	if p == nil {
		p = make(map[string]bool, len(m.Tasks))
		e.progress[id] = p
	}
	for _, t := range m.Tasks {
		if _, ok := p[t.ID]; !ok {
			p[t.ID] = false
		}
	}
	e.current = id
	e.missionStart = time.Time{}
	player := e.player
	e.mu.Unlock()

	log.Printf("MISSION: %s started %s", player, id)
	e.bus.Emit(events.Event{
		Type:       events.EvMissionStarted,
		Player:     player,
		MissionID:  id,
		CategoryID: m.Category,
	})
	return true
}

// TouchClock starts the active mission's timer if it has not started yet.
// The matcher calls this on every executed command, so timing begins with
// the player's first action, not with mission activation.
func (e *Engine) TouchClock() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != "" && e.missionStart.IsZero() {
		e.missionStart = e.now()
	}
}

// CompleteTask marks a task done. Completing an already-done task is a
// no-op returning false; the flat task reward is credited exactly once.
// When the last task of the mission lands, finalization is scheduled after
// the settle delay.
func (e *Engine) CompleteTask(missionID, taskID string) bool {
	e.mu.Lock()
	m := e.reg.Get(missionID)
	if m == nil {
		e.mu.Unlock()
		return false
	}
	t := m.FindTask(taskID)
	if t == nil {
		e.mu.Unlock()
		return false
	}
	p := e.progress[missionID]
	if p == nil {
		p = make(map[string]bool, len(m.Tasks))
		e.progress[missionID] = p
	}
	if p[taskID] {
		e.mu.Unlock()
		return false
	}
	p[taskID] = true
	e.credits += t.Reward

	allDone := true
	for _, task := range m.Tasks {
		if !p[task.ID] {
			allDone = false
			break
		}
	}
	player := e.player
	e.mu.Unlock()

	e.bus.Emit(events.Event{
		Type:      events.EvTaskCompleted,
		Player:    player,
		MissionID: missionID,
		TaskID:    taskID,
		Reward:    t.Reward,
	})

	if allDone {
		e.schedule(e.conf.SettleDelay, func() { e.finalize(missionID) })
	}
	return true
}

// finalize commits a mission completion. It re-validates under the lock
// that the mission is still current, not already completed, and that every
// task is still true, then computes the stacked reward, appends to the
// completed set and auto-chains to the next eligible mission.
func (e *Engine) finalize(missionID string) {
	e.mu.Lock()
	m := e.reg.Get(missionID)
	if m == nil || e.current != missionID || e.completedSet[missionID] {
		e.mu.Unlock()
		return
	}
	p := e.progress[missionID]
	for _, t := range m.Tasks {
		if !p[t.ID] {
			e.mu.Unlock()
			return
		}
	}

	mult := e.conf.PerfectMultiplier // all tasks done, by definition here
	if m.SpeedBonusSeconds > 0 && !e.missionStart.IsZero() {
		elapsed := e.now().Sub(e.missionStart)
		if elapsed < time.Duration(m.SpeedBonusSeconds)*time.Second {
			mult *= e.conf.SpeedMultiplier
		}
	}
	if e.hintsUsed[missionID] == 0 {
		mult *= e.conf.NoHintsMultiplier
	}
	total := int(math.Round(float64(m.Reward) * mult))
	e.credits += total

	e.completed = append(e.completed, missionID)
	e.completedSet[missionID] = true
	e.current = ""

	catDone := e.reg.CategoryComplete(m.Category, e.completedSet)
	next := e.reg.NextEligible(e.completedSet)
	player := e.player
	e.mu.Unlock()

	log.Printf("MISSION: %s completed %s, reward %d", player, missionID, total)
	e.bus.Emit(events.Event{
		Type:       events.EvMissionCompleted,
		Player:     player,
		MissionID:  missionID,
		CategoryID: m.Category,
		Reward:     total,
	})
	if catDone {
		e.bus.Emit(events.Event{
			Type:       events.EvCategoryCompleted,
			Player:     player,
			CategoryID: m.Category,
		})
	}
	if next != "" {
		e.StartMission(next)
	}
}

// UseHint reveals the next hint of the first incomplete task of the active
// mission and records the usage, which forfeits the no-hints bonus. The
// second return is false when no mission is active or no hint exists.
func (e *Engine) UseHint() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == "" {
		return "", false
	}
	m := e.reg.Get(e.current)
	p := e.progress[e.current]
	for _, t := range m.Tasks {
		if p[t.ID] || len(t.Hints) == 0 {
			continue
		}
		idx := e.hintsUsed[e.current]
		if idx >= len(t.Hints) {
			idx = len(t.Hints) - 1
		}
		e.hintsUsed[e.current]++
		return t.Hints[idx], true
	}
	return "", false
}

// RestartMission is the administrative reset: all task progress for the
// mission returns to false and hint usage is cleared. Completed missions
// cannot be restarted.
func (e *Engine) RestartMission(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	m := e.reg.Get(id)
	if m == nil || e.completedSet[id] {
		return false
	}
	p := make(map[string]bool, len(m.Tasks))
	for _, t := range m.Tasks {
		p[t.ID] = false
	}
	e.progress[id] = p
	delete(e.hintsUsed, id)
	if e.current == id {
		e.missionStart = time.Time{}
	}
	return true
}

// CurrentMission returns the active mission ID, empty when none.
func (e *Engine) CurrentMission() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// CompletedMissions returns a copy of the ordered completion list.
func (e *Engine) CompletedMissions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.completed))
	copy(out, e.completed)
	return out
}

// TaskProgress returns a copy of the task completion map for a mission.
func (e *Engine) TaskProgress(missionID string) map[string]bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]bool, len(e.progress[missionID]))
	for k, v := range e.progress[missionID] {
		out[k] = v
	}
	return out
}

// Credits returns the player's currency balance.
func (e *Engine) Credits() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.credits
}

// HintsUsed returns how many hints were taken during a mission.
func (e *Engine) HintsUsed(missionID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hintsUsed[missionID]
}

// Snapshot is the serializable runtime state handed to the persistence
// layer. The action queue is intentionally not part of it.
type Snapshot struct {
	CurrentMissionID  string
	CompletedMissions []string
	TaskProgress      map[string]map[string]bool
	HintsUsed         map[string]int
	MissionStart      time.Time
	Credits           int
}

// Snapshot exports the runtime state as a plain value.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Snapshot{
		CurrentMissionID:  e.current,
		CompletedMissions: make([]string, len(e.completed)),
		TaskProgress:      make(map[string]map[string]bool, len(e.progress)),
		HintsUsed:         make(map[string]int, len(e.hintsUsed)),
		MissionStart:      e.missionStart,
		Credits:           e.credits,
	}
	copy(s.CompletedMissions, e.completed)
	for mid, tasks := range e.progress {
		tp := make(map[string]bool, len(tasks))
		for tid, done := range tasks {
			tp[tid] = done
		}
		s.TaskProgress[mid] = tp
	}
	for mid, n := range e.hintsUsed {
		s.HintsUsed[mid] = n
	}
	return s
}

// Restore replaces the runtime state from a snapshot, defaulting any
// missing fields. Duplicate completion entries are collapsed on the way
// in so the append-only invariant holds afterwards.
func (e *Engine) Restore(s Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = s.CurrentMissionID
	e.missionStart = s.MissionStart
	e.credits = s.Credits

	e.completed = nil
	e.completedSet = make(map[string]bool)
	for _, id := range s.CompletedMissions {
		if e.completedSet[id] {
			continue
		}
		e.completed = append(e.completed, id)
		e.completedSet[id] = true
	}

	e.progress = make(map[string]map[string]bool)
	for mid, tasks := range s.TaskProgress {
		tp := make(map[string]bool, len(tasks))
		for tid, done := range tasks {
			tp[tid] = done
		}
		e.progress[mid] = tp
	}
	e.hintsUsed = make(map[string]int)
	for mid, n := range s.HintsUsed {
		e.hintsUsed[mid] = n
	}
	if e.current != "" && e.reg.Get(e.current) == nil {
		e.current = ""
	}
}

// UnlockedMissions returns IDs of missions currently in the "unlocked"
// state, in chain order.
func (e *Engine) UnlockedMissions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, m := range e.reg.All() {
		if e.stateLocked(m.ID) == "unlocked" {
			out = append(out, m.ID)
		}
	}
	return out
}

// Overview lists every mission with its state, for display layers.
func (e *Engine) Overview() []MissionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]MissionState, 0, len(e.reg.All()))
	for _, m := range e.reg.All() {
		done := 0
		for _, t := range m.Tasks {
			if e.progress[m.ID][t.ID] {
				done++
			}
		}
		out = append(out, MissionState{
			ID:        m.ID,
			Title:     m.Title,
			Category:  m.Category,
			State:     e.stateLocked(m.ID),
			TasksDone: done,
			TaskCount: len(m.Tasks),
		})
	}
	return out
}

// MissionState is a display row for mission listings.
type MissionState struct {
	ID        string
	Title     string
	Category  string
	State     string
	TasksDone int
	TaskCount int
}

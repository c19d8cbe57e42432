package game

import (
	"sort"
	"sync"

	"github.com/hackmesh/termhack/pkg/actions"
	"github.com/hackmesh/termhack/pkg/boltstore"
	"github.com/hackmesh/termhack/pkg/events"
	"github.com/hackmesh/termhack/pkg/missions"
	"github.com/hackmesh/termhack/pkg/world"
)

// Session is one player's live game state. Every session owns its own
// event bus, mission engine, matcher and action queue; the shared Game
// only contributes static content and command definitions. Transports
// subscribe to the session bus to render asynchronous happenings
// (mission chaining, finished cracks, arriving mail).
type Session struct {
	Player  string
	Bus     *events.Bus
	Engine  *missions.Engine
	Matcher *missions.Matcher
	Actions *actions.Queue

	game      *Game
	discovery *world.Discovery

	mu          sync.Mutex
	currentHost string
	vpn         bool
	cwd         string
	unlocked    map[string]bool
	cracked     map[string]map[string]bool // host id -> file -> done
	inbox       []string                   // email ids in delivery order
	readMail    map[string]bool
	actionSeq   int
}

// NewSession builds a fresh session for a player: starting command set,
// empty discovery, and the first eligible mission auto-started.
func (g *Game) NewSession(player string) *Session {
	s := g.newSessionShell(player)
	for _, name := range g.Conf.StartingCommands {
		s.unlocked[name] = true
	}
	if g.Conf.StartingCredits > 0 {
		s.Engine.Restore(missions.Snapshot{Credits: g.Conf.StartingCredits})
	}
	if first := g.Content().Missions.NextEligible(map[string]bool{}); first != "" {
		s.Engine.StartMission(first)
	}
	return s
}

// RestoreSession rebuilds a session from a persisted save.
func (g *Game) RestoreSession(player string, save *boltstore.SessionSave) *Session {
	s := g.newSessionShell(player)
	s.Engine.Restore(save.Engine)
	for _, name := range save.Unlocked {
		s.unlocked[name] = true
	}
	s.discovery.Restore(save.Discovered)
	for host, files := range save.CrackedFiles {
		m := make(map[string]bool, len(files))
		for _, f := range files {
			m[f] = true
		}
		s.cracked[host] = m
	}
	s.inbox = append(s.inbox, save.Inbox...)
	for _, id := range save.ReadMail {
		s.readMail[id] = true
	}
	// A save from before any mission ever started still gets one.
	if s.Engine.CurrentMission() == "" {
		completed := make(map[string]bool)
		for _, id := range s.Engine.CompletedMissions() {
			completed[id] = true
		}
		if next := g.Content().Missions.NextEligible(completed); next != "" {
			s.Engine.StartMission(next)
		}
	}
	return s
}

func (g *Game) newSessionShell(player string) *Session {
	bus := events.NewBus()
	eng := missions.NewEngine(g.Content().Missions, bus, player, g.missionConfig())
	s := &Session{
		Player:    player,
		Bus:       bus,
		Engine:    eng,
		Actions:   actions.NewQueue(g.Conf.ProgressTick()),
		game:      g,
		discovery: world.NewDiscovery(),
		unlocked:  make(map[string]bool),
		cracked:   make(map[string]map[string]bool),
		readMail:  make(map[string]bool),
	}

	// Mail delivery and command unlocks react to mission transitions, so
	// subscribe before the matcher: briefing mail is already in the inbox
	// when the player's next command runs.
	bus.Subscribe(events.EvMissionStarted, func(ev events.Event) {
		for _, e := range g.Content().Mail.ForMission(ev.MissionID) {
			s.deliverMail(e.ID)
		}
	})
	bus.Subscribe(events.EvMissionCompleted, func(ev events.Event) {
		if m := g.Content().Missions.Get(ev.MissionID); m != nil {
			for _, name := range m.UnlockCommands {
				s.Unlock(name)
			}
		}
	})
	if g.Metrics != nil {
		g.Metrics.ObserveBus(bus)
	}
	if g.Ledger != nil {
		g.Ledger.Attach(bus)
	}
	s.Matcher = missions.NewMatcher(eng, bus)
	return s
}

// Save exports the session as a persistable value.
func (s *Session) Save() *boltstore.SessionSave {
	s.mu.Lock()
	defer s.mu.Unlock()
	save := &boltstore.SessionSave{
		Engine:       s.Engine.Snapshot(),
		Discovered:   s.discovery.VisibleIDs(),
		CrackedFiles: make(map[string][]string, len(s.cracked)),
		Inbox:        append([]string(nil), s.inbox...),
	}
	for name := range s.unlocked {
		save.Unlocked = append(save.Unlocked, name)
	}
	sort.Strings(save.Unlocked)
	for host, files := range s.cracked {
		var list []string
		for f, done := range files {
			if done {
				list = append(list, f)
			}
		}
		sort.Strings(list)
		save.CrackedFiles[host] = list
	}
	for id, read := range s.readMail {
		if read {
			save.ReadMail = append(save.ReadMail, id)
		}
	}
	sort.Strings(save.ReadMail)
	return save
}

// Close detaches the session from its bus and cancels any running tools.
func (s *Session) Close() {
	s.Matcher.Close()
	s.Actions.Clear()
}

// Unlocked reports whether a canonical command name is available.
func (s *Session) Unlocked(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unlocked[name]
}

// Unlock grants a command. Granting twice is a no-op.
func (s *Session) Unlock(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unlocked[name] = true
}

// UnlockedCommands returns the sorted unlocked command names.
func (s *Session) UnlockedCommands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.unlocked))
	for name := range s.unlocked {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// CurrentHost returns the connected host ID, empty when offline.
func (s *Session) CurrentHost() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentHost
}

// VPNActive reports the VPN toggle.
func (s *Session) VPNActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vpn
}

// snapshot captures the context fields the dispatcher stamps onto
// command events.
func (s *Session) snapshot() events.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return events.SessionSnapshot{
		CurrentHost: s.currentHost,
		VPNActive:   s.vpn,
		WorkingDir:  s.cwd,
	}
}

func (s *Session) deliverMail(emailID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.inbox {
		if id == emailID {
			return
		}
	}
	s.inbox = append(s.inbox, emailID)
}

// Inbox returns email IDs in delivery order.
func (s *Session) Inbox() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.inbox...)
}

func (s *Session) markRead(emailID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readMail[emailID] = true
}

func (s *Session) isRead(emailID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readMail[emailID]
}

func (s *Session) isCracked(host, file string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cracked[host][file]
}

func (s *Session) markCracked(host, file string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.cracked[host]
	if m == nil {
		m = make(map[string]bool)
		s.cracked[host] = m
	}
	m[file] = true
}

func (s *Session) nextActionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actionSeq++
	return actionID(s.actionSeq)
}

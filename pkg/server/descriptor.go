package server

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/hackmesh/termhack/pkg/events"
	"github.com/hackmesh/termhack/pkg/game"
)

// ConnState tracks the state of a connection.
type ConnState int

const (
	ConnLogin     ConnState = iota // awaiting connect/create
	ConnConnected                  // logged in with a live session
)

// Descriptor represents a single client connection. For WebSocket
// clients SendFunc overrides the raw TCP write path.
type Descriptor struct {
	ID       int
	Conn     net.Conn
	State    ConnState
	Player   string
	Addr     string
	ConnTime time.Time
	LastCmd  time.Time
	Retries  int
	CmdCount int

	// Session is the player's game state; nil until login completes.
	Session *game.Session

	SendFunc func(msg string)

	mu     sync.Mutex
	unsubs []func()
	closed bool
}

// NewDescriptor wraps a net.Conn into a Descriptor.
func NewDescriptor(id int, conn net.Conn, retries int) *Descriptor {
	now := time.Now()
	return &Descriptor{
		ID:       id,
		Conn:     conn,
		State:    ConnLogin,
		Addr:     conn.RemoteAddr().String(),
		ConnTime: now,
		LastCmd:  now,
		Retries:  retries,
	}
}

// Send writes one line to the client.
func (d *Descriptor) Send(msg string) {
	if d.SendFunc != nil {
		d.SendFunc(msg)
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if !strings.HasSuffix(msg, "\n") {
		msg += "\r\n"
	}
	d.Conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	d.Conn.Write([]byte(msg))
}

// SendResult renders a command result to the client.
func (d *Descriptor) SendResult(res *game.Result) {
	for _, line := range res.Output {
		d.Send(line)
	}
	for _, line := range res.Educational {
		d.Send("[learn] " + line)
	}
}

// Close shuts down the connection. Safe to call more than once.
func (d *Descriptor) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	unsubs := d.unsubs
	d.unsubs = nil
	d.mu.Unlock()

	for _, fn := range unsubs {
		fn()
	}
	d.Conn.Close()
}

// IsClosed returns whether the connection has been closed.
func (d *Descriptor) IsClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Descriptor) addUnsub(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.unsubs = append(d.unsubs, fn)
}

// attachAnnouncer subscribes the descriptor to its session's bus so
// asynchronous happenings (finished cracks, mission chaining, arriving
// mail) reach the terminal without the player polling for them.
func (d *Descriptor) attachAnnouncer(g *game.Game, s *game.Session) {
	sub := func(t events.Type, fn func(events.Event)) {
		d.addUnsub(s.Bus.Subscribe(t, fn))
	}

	sub(events.EvMissionStarted, func(ev events.Event) {
		title := ev.MissionID
		if m := g.Content().Missions.Get(ev.MissionID); m != nil {
			title = m.Title
		}
		d.Send(fmt.Sprintf("*** New mission: %s (%s). Type \"objectives\".", title, ev.MissionID))
		if len(g.Content().Mail.ForMission(ev.MissionID)) > 0 {
			d.Send("*** You have mail.")
		}
	})
	sub(events.EvTaskCompleted, func(ev events.Event) {
		if ev.Reward > 0 {
			d.Send(fmt.Sprintf("*** Objective complete. +%d credits.", ev.Reward))
		} else {
			d.Send("*** Objective complete.")
		}
	})
	sub(events.EvMissionCompleted, func(ev events.Event) {
		d.Send(fmt.Sprintf("*** Mission %s complete! +%d credits.", ev.MissionID, ev.Reward))
	})
	sub(events.EvCategoryCompleted, func(ev events.Event) {
		d.Send(fmt.Sprintf("*** Track %q cleared.", ev.CategoryID))
	})
	sub(events.EvToolUsed, func(ev events.Event) {
		if ev.ToolID == "crack" {
			d.Send(fmt.Sprintf("*** Crack finished: %s is readable now.", ev.Target))
		}
	})
}

// nullConn is a no-op net.Conn for descriptors whose transport is not
// a raw TCP socket.
type nullConn struct{}

func (nullConn) Read([]byte) (int, error)         { return 0, fmt.Errorf("no connection") }
func (nullConn) Write(b []byte) (int, error)      { return len(b), nil }
func (nullConn) Close() error                     { return nil }
func (nullConn) LocalAddr() net.Addr              { return nil }
func (nullConn) RemoteAddr() net.Addr             { return &net.TCPAddr{} }
func (nullConn) SetDeadline(time.Time) error      { return nil }
func (nullConn) SetReadDeadline(time.Time) error  { return nil }
func (nullConn) SetWriteDeadline(time.Time) error { return nil }

// ConnManager tracks all active connections.
type ConnManager struct {
	mu          sync.RWMutex
	descriptors map[int]*Descriptor
	byPlayer    map[string]*Descriptor
	nextID      int
}

// NewConnManager creates a connection manager.
func NewConnManager() *ConnManager {
	return &ConnManager{
		descriptors: make(map[int]*Descriptor),
		byPlayer:    make(map[string]*Descriptor),
		nextID:      1,
	}
}

// NextID returns the next descriptor ID.
func (cm *ConnManager) NextID() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	id := cm.nextID
	cm.nextID++
	return id
}

// Add registers a descriptor.
func (cm *ConnManager) Add(d *Descriptor) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.descriptors[d.ID] = d
}

// Remove unregisters a descriptor.
func (cm *ConnManager) Remove(d *Descriptor) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.descriptors, d.ID)
	if d.Player != "" && cm.byPlayer[d.Player] == d {
		delete(cm.byPlayer, d.Player)
	}
}

// Login binds a descriptor to a player name. One live connection per
// player; a second login is refused while the first holds the session.
func (cm *ConnManager) Login(d *Descriptor, player string) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if _, taken := cm.byPlayer[player]; taken {
		return false
	}
	d.State = ConnConnected
	d.Player = player
	cm.byPlayer[player] = d
	return true
}

// GetByPlayer returns the player's live descriptor, nil when offline.
func (cm *ConnManager) GetByPlayer(player string) *Descriptor {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.byPlayer[player]
}

// ConnectedPlayers returns the names of all logged-in players.
func (cm *ConnManager) ConnectedPlayers() []string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	players := make([]string, 0, len(cm.byPlayer))
	for p := range cm.byPlayer {
		players = append(players, p)
	}
	return players
}

// Count returns the number of active connections.
func (cm *ConnManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.descriptors)
}

// AllDescriptors returns a snapshot of all active descriptors.
func (cm *ConnManager) AllDescriptors() []*Descriptor {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	descs := make([]*Descriptor, 0, len(cm.descriptors))
	for _, d := range cm.descriptors {
		descs = append(descs, d)
	}
	return descs
}

// Package game ties the engine together: command registry and dispatch,
// per-player sessions, simulated filesystem access, in-game mail and the
// content pipeline. Transports call Dispatch with input lines and render
// the results; everything else flows through the event bus.
package game

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"

	"github.com/hackmesh/termhack/pkg/boltstore"
	"github.com/hackmesh/termhack/pkg/missions"
	"github.com/hackmesh/termhack/pkg/telemetry"
	"github.com/hackmesh/termhack/pkg/world"
)

// Content bundles the static definitions the game plays against.
type Content struct {
	World    *world.Registry
	Missions *missions.Registry
	Mail     *MailStore
}

// Content file names inside the content directory.
const (
	WorldFile    = "world.yaml"
	MissionsFile = "missions.yaml"
	MailFile     = "emails.yaml"
)

// LoadContent reads the three content files from a directory.
func LoadContent(dir string) (*Content, error) {
	w, err := world.LoadFile(filepath.Join(dir, WorldFile))
	if err != nil {
		return nil, err
	}
	m, err := missions.LoadFile(filepath.Join(dir, MissionsFile))
	if err != nil {
		return nil, err
	}
	mail, err := LoadMailFile(filepath.Join(dir, MailFile))
	if err != nil {
		return nil, err
	}
	if err := CheckContent(w, m, mail); err != nil {
		return nil, err
	}
	return &Content{World: w, Missions: m, Mail: mail}, nil
}

// CheckContent validates cross-references between the content tables:
// match specs naming hosts/files/emails that exist, briefing emails
// pointing at known missions.
func CheckContent(w *world.Registry, m *missions.Registry, mail *MailStore) error {
	for _, mission := range m.All() {
		for _, task := range mission.Tasks {
			spec := task.Match
			switch spec.Kind {
			case missions.MatchSession:
				if w.GetHost(spec.Server) == nil {
					return fmt.Errorf("mission %q task %q: unknown server %q", mission.ID, task.ID, spec.Server)
				}
			case missions.MatchFile:
				if spec.Host != "" {
					h := w.GetHost(spec.Host)
					if h == nil {
						return fmt.Errorf("mission %q task %q: unknown host %q", mission.ID, task.ID, spec.Host)
					}
					if h.FindFile(spec.File) == nil {
						return fmt.Errorf("mission %q task %q: host %q has no file %q", mission.ID, task.ID, spec.Host, spec.File)
					}
				}
			case missions.MatchEmail:
				if spec.Email != "" && mail.Get(spec.Email) == nil {
					return fmt.Errorf("mission %q task %q: unknown email %q", mission.ID, task.ID, spec.Email)
				}
				if spec.Mission != "" && m.Get(spec.Mission) == nil {
					return fmt.Errorf("mission %q task %q: unknown mission %q in email match", mission.ID, task.ID, spec.Mission)
				}
			}
		}
	}
	for id, e := range mail.byID {
		if e.MissionID != "" && m.Get(e.MissionID) == nil {
			return fmt.Errorf("email %q references unknown mission %q", id, e.MissionID)
		}
	}
	return nil
}

/// Game is the shared half of the engine: content, command registry,
// metrics and persistence. Per-player state lives in Session.
type Game struct {
	Conf    GameConf
	Metrics *Metrics           // optional
	Ledger  *telemetry.Ledger  // optional
	Store   *boltstore.Store   // optional

	mu       sync.RWMutex
	content  *Content
	commands map[string]*Command
	aliases  map[string]string // alias -> canonical name
}

// New creates a game around loaded content and registers the command set.
func New(conf GameConf, content *Content) *Game {
	g := &Game{
		Conf:    conf,
		content: content,
	}
	g.commands, g.aliases = InitCommands()
	return g
}

// Content returns the current content tables. Sessions read through this
// on every command so a hot reload takes effect immediately.
func (g *Game) Content() *Content {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.content
}

// ReplaceContent swaps in new static content. Player runtime state is
// untouched; sessions resolve hosts and missions against the new tables
// on their next command.
func (g *Game) ReplaceContent(content *Content) {
	g.mu.Lock()
	g.content = content
	g.mu.Unlock()
	log.Printf("GAME: content reloaded: %d hosts, %d missions",
		content.World.HostCount(), len(content.Missions.All()))
}

// Lookup resolves a command name or alias, case-insensitively handled by
// the caller lowercasing. Returns nil when unknown.
func (g *Game) Lookup(name string) *Command {
	if cmd, ok := g.commands[name]; ok {
		return cmd
	}
	if canonical, ok := g.aliases[name]; ok {
		return g.commands[canonical]
	}
	return nil
}

// missionConfig renders the game tuning as an engine config.
func (g *Game) missionConfig() missions.Config {
	return missions.Config{
		SettleDelay:       g.Conf.SettleDelay(),
		PerfectMultiplier: g.Conf.PerfectMultiplier,
		SpeedMultiplier:   g.Conf.SpeedMultiplier,
		NoHintsMultiplier: g.Conf.NoHintsMultiplier,
	}
}

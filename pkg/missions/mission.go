// Package missions implements the mission progression engine: mission and
// task definitions, structured task match specifications, the per-player
// state machine and the event-driven task matcher.
package missions

import (
	"fmt"
	"strings"

	"github.com/hackmesh/termhack/pkg/events"
)

// MatchKind selects which family of predicate a task's match spec uses.
type MatchKind string

const (
	MatchCommand MatchKind = "command" // a successfully executed command
	MatchTool    MatchKind = "tool"    // a tool finished running
	MatchSession MatchKind = "session" // connected to / disconnected from a host
	MatchFile    MatchKind = "file"    // a file was read
	MatchEmail   MatchKind = "email"   // an email was read
)

// Session transition names for MatchSession specs.
const (
	TransitionConnect    = "connect"
	TransitionDisconnect = "disconnect"
)

// MatchSpec is a task's completion predicate, interpreted against incoming
// events. It is a tagged union: Kind picks the family, the other fields
// refine it. Matching is structural; connect and disconnect are distinct
// transitions and file names compare by exact equality, so adjacent names
// like secret.txt and secrets.txt can never satisfy each other.
type MatchSpec struct {
	Kind MatchKind `yaml:"kind"`

	// MatchCommand: canonical command name plus optional argument and
	// session-context constraints.
	Command     string   `yaml:"command,omitempty"`
	ArgsEqual   []string `yaml:"args_equal,omitempty"`   // exact argument vector
	ArgsContain []string `yaml:"args_contain,omitempty"` // substrings of the joined args
	OnHost      string   `yaml:"on_host,omitempty"`      // required CurrentHost at invocation
	RequireVPN  bool     `yaml:"require_vpn,omitempty"`

	// MatchTool
	Tool           string `yaml:"tool,omitempty"`
	TargetContains string `yaml:"target_contains,omitempty"`

	// MatchSession
	Transition string `yaml:"transition,omitempty"`
	Server     string `yaml:"server,omitempty"`

	// MatchFile
	Host string `yaml:"host,omitempty"`
	File string `yaml:"file,omitempty"`

	// MatchEmail: either an exact email ID or any email owned by a mission.
	Email   string `yaml:"email,omitempty"`
	Mission string `yaml:"mission,omitempty"`
}

// Validate reports whether the spec is well formed. Used by the content
// linter and at registry load.
func (m MatchSpec) Validate() error {
	switch m.Kind {
	case MatchCommand:
		if m.Command == "" {
			return fmt.Errorf("command match: missing command")
		}
		if len(m.ArgsEqual) > 0 && len(m.ArgsContain) > 0 {
			return fmt.Errorf("command match: args_equal and args_contain are mutually exclusive")
		}
	case MatchTool:
		if m.Tool == "" {
			return fmt.Errorf("tool match: missing tool")
		}
	case MatchSession:
		if m.Transition != TransitionConnect && m.Transition != TransitionDisconnect {
			return fmt.Errorf("session match: transition must be %q or %q, got %q",
				TransitionConnect, TransitionDisconnect, m.Transition)
		}
		if m.Server == "" {
			return fmt.Errorf("session match: missing server")
		}
	case MatchFile:
		if m.File == "" {
			return fmt.Errorf("file match: missing file")
		}
	case MatchEmail:
		if m.Email == "" && m.Mission == "" {
			return fmt.Errorf("email match: need email or mission")
		}
	default:
		return fmt.Errorf("unknown match kind %q", m.Kind)
	}
	return nil
}

// Matches evaluates the spec against an event.
func (m MatchSpec) Matches(ev events.Event) bool {
	switch m.Kind {
	case MatchCommand:
		if ev.Type != events.EvCommandExecuted || !ev.Success {
			return false
		}
		if ev.Command != m.Command {
			return false
		}
		if m.OnHost != "" && ev.Context.CurrentHost != m.OnHost {
			return false
		}
		if m.RequireVPN && !ev.Context.VPNActive {
			return false
		}
		if len(m.ArgsEqual) > 0 {
			if len(ev.Args) != len(m.ArgsEqual) {
				return false
			}
			for i, want := range m.ArgsEqual {
				if ev.Args[i] != want {
					return false
				}
			}
		}
		if len(m.ArgsContain) > 0 {
			joined := strings.Join(ev.Args, " ")
			for _, want := range m.ArgsContain {
				if !strings.Contains(joined, want) {
					return false
				}
			}
		}
		return true

	case MatchTool:
		if ev.Type != events.EvToolUsed || ev.ToolID != m.Tool {
			return false
		}
		return m.TargetContains == "" || strings.Contains(ev.Target, m.TargetContains)

	case MatchSession:
		switch m.Transition {
		case TransitionConnect:
			if ev.Type != events.EvServerConnected {
				return false
			}
		case TransitionDisconnect:
			if ev.Type != events.EvServerDisconnected {
				return false
			}
		default:
			return false
		}
		return ev.ServerID == m.Server

	case MatchFile:
		if ev.Type != events.EvFileRead {
			return false
		}
		if m.Host != "" && ev.HostID != m.Host {
			return false
		}
		return ev.Filename == m.File

	case MatchEmail:
		if ev.Type != events.EvEmailRead {
			return false
		}
		if m.Email != "" {
			return ev.EmailID == m.Email
		}
		return ev.MissionID == m.Mission
	}
	return false
}

// Task is an atomic objective within a mission.
type Task struct {
	ID          string    `yaml:"id"`
	Description string    `yaml:"description"`
	Match       MatchSpec `yaml:"match"`
	Hints       []string  `yaml:"hints"`
	Reward      int       `yaml:"reward"` // flat credits on first completion
}

// Mission is an immutable content unit: ordered tasks plus a completion
// reward. Sequence orders missions within their category.
type Mission struct {
	ID            string   `yaml:"id"`
	Category      string   `yaml:"category"`
	Sequence      int      `yaml:"sequence"`
	Title         string   `yaml:"title"`
	Briefing      []string `yaml:"briefing"`
	Tasks         []Task   `yaml:"tasks"`
	Prerequisites []string `yaml:"prerequisites"`
	Reward        int      `yaml:"reward"`
	// SpeedBonusSeconds is the per-mission threshold for the speed bonus;
	// zero disables the bonus for this mission.
	SpeedBonusSeconds int `yaml:"speed_bonus_seconds"`
	// UnlockCommands are granted to the player on completion.
	UnlockCommands []string `yaml:"unlock_commands"`
}

// FindTask returns the task with the given ID, nil if absent.
func (m *Mission) FindTask(id string) *Task {
	for i := range m.Tasks {
		if m.Tasks[i].ID == id {
			return &m.Tasks[i]
		}
	}
	return nil
}

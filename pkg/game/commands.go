package game

import (
	"fmt"
	"log"
	"strings"

	"github.com/hackmesh/termhack/pkg/events"
)

// HandlerFunc is the signature for command implementations. Handlers
// never panic on bad input; they return a failed Result. A panic that
// does escape is caught at the dispatch boundary and converted to a
// failure.
type HandlerFunc func(g *Game, s *Session, args []string) *Result

// ValidatorFunc checks arguments before the handler runs. The message is
// shown to the player when ok is false.
type ValidatorFunc func(args []string) (ok bool, msg string)

// Command is a registered game command.
type Command struct {
	Name           string
	Aliases        []string
	RequiresUnlock bool // must be in the session's unlocked set
	Validate       ValidatorFunc
	Handler        HandlerFunc
	Usage          string
	Summary        string
}

// Result is what a command hands back to the transport.
type Result struct {
	Output      []string
	Success     bool
	Err         string
	Educational []string
}

func ok(lines ...string) *Result {
	return &Result{Output: lines, Success: true}
}

func fail(err string, lines ...string) *Result {
	return &Result{Output: lines, Success: false, Err: err}
}

// Dispatcher error strings, part of the player-visible contract.
const (
	ErrNotFound   = "Command not found"
	ErrLocked     = "Command locked"
	ErrValidation = "Validation failed"
	ErrExecution  = "Execution error"
)

// InitCommands registers all available game commands and the alias table.
func InitCommands() (map[string]*Command, map[string]string) {
	cmds := make(map[string]*Command)
	aliases := make(map[string]string)

	register := func(c *Command) {
		name := strings.ToLower(c.Name)
		cmds[name] = c
		for _, a := range c.Aliases {
			aliases[strings.ToLower(a)] = name
		}
	}

	// Information
	register(&Command{Name: "help", Aliases: []string{"?"}, Summary: "list available commands", Handler: cmdHelp})
	register(&Command{Name: "whoami", Summary: "show identity and session state", Handler: cmdWhoami})
	register(&Command{Name: "unlocks", Summary: "show unlocked commands", Handler: cmdUnlocks})

	// Network
	register(&Command{Name: "scan", Summary: "scan an organization for hosts",
		Usage: "scan [organization]", Validate: maxArgs(1), Handler: cmdScan})
	register(&Command{Name: "probe", Summary: "inspect a discovered host",
		Usage: "probe <host|ip>", Validate: exactArgs(1, "probe <host|ip>"), Handler: cmdProbe})
	register(&Command{Name: "ssh", Aliases: []string{"connect"}, Summary: "open a session on a host",
		Usage: "ssh <host|ip>", Validate: exactArgs(1, "ssh <host|ip>"), Handler: cmdSSH})
	register(&Command{Name: "disconnect", Aliases: []string{"dc"}, Summary: "close the current session",
		Validate: maxArgs(0), Handler: cmdDisconnect})
	register(&Command{Name: "vpn", RequiresUnlock: true, Summary: "toggle the VPN tunnel",
		Usage: "vpn <on|off>", Validate: vpnArgs, Handler: cmdVPN})

	// Files
	register(&Command{Name: "ls", Aliases: []string{"dir"}, Summary: "list files on the connected host",
		Validate: maxArgs(0), Handler: cmdLs})
	register(&Command{Name: "cat", Aliases: []string{"read", "type"}, Summary: "read a file",
		Usage: "cat <file>", Validate: exactArgs(1, "cat <file>"), Handler: cmdCat})
	register(&Command{Name: "crack", RequiresUnlock: true, Summary: "run the password cracker against a file",
		Usage: "crack <file>", Validate: exactArgs(1, "crack <file>"), Handler: cmdCrack})

	// Tools / queue
	register(&Command{Name: "status", Summary: "show running tool progress",
		Validate: maxArgs(0), Handler: cmdStatus})
	register(&Command{Name: "cancel", Summary: "cancel the running tool",
		Usage: "cancel [action-id]", Validate: maxArgs(1), Handler: cmdCancel})

	// Mail
	register(&Command{Name: "mail", Aliases: []string{"inbox"}, Summary: "list or read mail",
		Usage: "mail [read <n|id>]", Handler: cmdMail})

	// Missions
	register(&Command{Name: "missions", Summary: "list missions and their state",
		Validate: maxArgs(0), Handler: cmdMissions})
	register(&Command{Name: "objectives", Aliases: []string{"obj", "tasks"}, Summary: "show current mission objectives",
		Validate: maxArgs(0), Handler: cmdObjectives})
	register(&Command{Name: "hint", Summary: "reveal a hint (forfeits the no-hints bonus)",
		Validate: maxArgs(0), Handler: cmdHint})
	register(&Command{Name: "start", Summary: "start an unlocked mission",
		Usage: "start <mission-id>", Validate: exactArgs(1, "start <mission-id>"), Handler: cmdStart})
	register(&Command{Name: "restart", Summary: "restart a mission, clearing its progress",
		Usage: "restart <mission-id>", Validate: exactArgs(1, "restart <mission-id>"), Handler: cmdRestart})

	return cmds, aliases
}

// Dispatch resolves and executes one input line for a session. The
// algorithm and its failure taxonomy:
//
//  1. unknown name            -> "Command not found"
//  2. locked command          -> "Command locked"
//  3. validator rejected args -> "Validation failed"
//  4. handler ran             -> its result; panics become "Execution error"
//
// Steps 1-3 emit command:failed; step 4 always emits command:executed
// with a context snapshot captured before the handler ran.
func (g *Game) Dispatch(s *Session, input string) *Result {
	pc := Parse(input)
	if pc.Command == "" {
		return ok()
	}

	cmd := g.Lookup(pc.Command)
	if cmd == nil {
		res := fail(ErrNotFound, fmt.Sprintf("Unknown command %q. Type \"help\" for a list.", pc.Command))
		g.emitFailed(s, pc.Command, pc.Args, ErrNotFound)
		return res
	}

	if cmd.RequiresUnlock && !s.Unlocked(cmd.Name) {
		res := fail(ErrLocked, fmt.Sprintf("%s is locked. Complete missions to unlock new tools.", cmd.Name))
		g.emitFailed(s, cmd.Name, pc.Args, ErrLocked)
		return res
	}

	if cmd.Validate != nil {
		if valid, msg := cmd.Validate(pc.Args); !valid {
			res := fail(ErrValidation, msg)
			g.emitFailed(s, cmd.Name, pc.Args, ErrValidation)
			return res
		}
	}

	// Context is captured before execution so later state changes (the
	// command disconnecting, chained missions) cannot rewrite history.
	snapshot := s.snapshot()
	res := g.execute(cmd, s, pc.Args)

	if g.Metrics != nil {
		g.Metrics.CommandProcessed(res.Success)
	}
	s.Bus.Emit(events.Event{
		Type:    events.EvCommandExecuted,
		Player:  s.Player,
		Command: cmd.Name,
		Args:    pc.Args,
		Success: res.Success,
		Context: snapshot,
	})
	return res
}

// execute runs the handler, converting a panic into a failure result.
func (g *Game) execute(cmd *Command, s *Session, args []string) (res *Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("DISPATCH: %s handler panicked: %v", cmd.Name, r)
			res = fail(ErrExecution, fmt.Sprintf("Error executing command: %v", r))
		}
	}()
	res = cmd.Handler(g, s, args)
	if res == nil {
		res = fail(ErrExecution, "Error executing command: handler returned no result")
	}
	return res
}

func (g *Game) emitFailed(s *Session, command string, args []string, reason string) {
	if g.Metrics != nil {
		g.Metrics.CommandProcessed(false)
	}
	s.Bus.Emit(events.Event{
		Type:    events.EvCommandFailed,
		Player:  s.Player,
		Command: command,
		Args:    args,
		Success: false,
		Error:   reason,
		Context: s.snapshot(),
	})
}

// --- validators ---

func exactArgs(n int, usage string) ValidatorFunc {
	return func(args []string) (bool, string) {
		if len(args) != n {
			return false, "Usage: " + usage
		}
		return true, ""
	}
}

func maxArgs(n int) ValidatorFunc {
	return func(args []string) (bool, string) {
		if len(args) > n {
			return false, "Too many arguments."
		}
		return true, ""
	}
}

func vpnArgs(args []string) (bool, string) {
	if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
		return false, "Usage: vpn <on|off>"
	}
	return true, ""
}

func actionID(n int) string {
	return fmt.Sprintf("action-%d", n)
}

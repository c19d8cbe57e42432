package game

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hackmesh/termhack/pkg/actions"
	"github.com/hackmesh/termhack/pkg/events"
	"github.com/hackmesh/termhack/pkg/world"
)

func cmdHelp(g *Game, s *Session, _ []string) *Result {
	var lines []string
	lines = append(lines, "Available commands:")
	for _, name := range sortedCommandNames(g.commands) {
		cmd := g.commands[name]
		if cmd.RequiresUnlock && !s.Unlocked(cmd.Name) {
			continue
		}
		lines = append(lines, fmt.Sprintf("  %-12s %s", cmd.Name, cmd.Summary))
	}
	lines = append(lines, "Locked tools appear here once missions unlock them.")
	return ok(lines...)
}

func cmdWhoami(g *Game, s *Session, _ []string) *Result {
	host := "offline"
	if h := s.CurrentHost(); h != "" {
		host = h
	}
	vpn := "down"
	if s.VPNActive() {
		vpn = "up"
	}
	return ok(
		fmt.Sprintf("user:     %s", s.Player),
		fmt.Sprintf("credits:  %d", s.Engine.Credits()),
		fmt.Sprintf("session:  %s", host),
		fmt.Sprintf("vpn:      %s", vpn),
	)
}

func cmdUnlocks(_ *Game, s *Session, _ []string) *Result {
	return ok("Unlocked commands: " + strings.Join(s.UnlockedCommands(), ", "))
}

func cmdScan(g *Game, s *Session, args []string) *Result {
	content := g.Content()
	if len(args) == 0 {
		var lines []string
		lines = append(lines, "Known organizations:")
		for _, o := range content.World.Organizations() {
			lines = append(lines, fmt.Sprintf("  %-14s %s (%s)", o.ID, o.Name, o.Sector))
		}
		lines = append(lines, "Run \"scan <organization>\" to sweep its network.")
		return ok(lines...)
	}

	org := content.World.GetOrganization(args[0])
	if org == nil {
		return fail(ErrNotFound, fmt.Sprintf("No such organization: %s", args[0]))
	}
	s.discovery.Reveal(org.ID)
	lines := []string{fmt.Sprintf("Scanning %s...", org.Name)}
	for _, hid := range org.HostIDs {
		h := content.World.GetHost(hid)
		s.discovery.Reveal(h.ID)
		lines = append(lines, fmt.Sprintf("  %-15s %-18s sec=%d", h.IP, h.ID, h.SecurityLevel))
	}
	for _, cid := range org.ContactIDs {
		s.discovery.Reveal(cid)
	}
	lines = append(lines, fmt.Sprintf("%d hosts discovered.", len(org.HostIDs)))
	return &Result{
		Output:  lines,
		Success: true,
		Educational: []string{
			"Network scanning maps which machines answer on a network.",
			"Real-world scanners like nmap do this with crafted packets.",
		},
	}
}

func cmdProbe(g *Game, s *Session, args []string) *Result {
	h := g.Content().World.ResolveHost(args[0])
	if h == nil || !s.discovery.Visible(h.ID) {
		return fail(ErrNotFound, fmt.Sprintf("No route to %s. Scan its organization first.", args[0]))
	}
	lines := []string{
		fmt.Sprintf("host:     %s (%s)", h.ID, h.Name),
		fmt.Sprintf("address:  %s", h.IP),
		fmt.Sprintf("security: level %d", h.SecurityLevel),
	}
	if len(h.Services) > 0 {
		lines = append(lines, "services: "+strings.Join(h.Services, ", "))
	}
	if h.SecurityLevel >= vpnRequiredLevel {
		lines = append(lines, "note:     connections are filtered; a VPN tunnel is required")
	}
	return ok(lines...)
}

// vpnRequiredLevel is the security level at which hosts refuse direct
// connections.
const vpnRequiredLevel = 3

func cmdSSH(g *Game, s *Session, args []string) *Result {
	h := g.Content().World.ResolveHost(args[0])
	if h == nil || !s.discovery.Visible(h.ID) {
		return fail(ErrNotFound, fmt.Sprintf("No route to %s. Scan its organization first.", args[0]))
	}
	if cur := s.CurrentHost(); cur != "" {
		return fail("Already connected", fmt.Sprintf("Already connected to %s. Disconnect first.", cur))
	}
	if h.SecurityLevel >= vpnRequiredLevel && !s.VPNActive() {
		return &Result{
			Success: false,
			Err:     "Connection refused",
			Output:  []string{fmt.Sprintf("%s refused the connection.", h.ID)},
			Educational: []string{
				"Hardened hosts only accept traffic from trusted networks.",
				"Bring the VPN up to route through one.",
			},
		}
	}
	s.setHost(h.ID)
	s.Bus.Emit(events.Event{
		Type:     events.EvServerConnected,
		Player:   s.Player,
		ServerID: h.ID,
	})
	return ok(
		fmt.Sprintf("Connected to %s (%s).", h.ID, h.IP),
		"Type \"ls\" to look around.",
	)
}

func cmdDisconnect(_ *Game, s *Session, _ []string) *Result {
	old := s.clearHost()
	if old == "" {
		// Neutral no-op: nothing to disconnect from, no event emitted.
		return ok("Not connected.")
	}
	s.Bus.Emit(events.Event{
		Type:     events.EvServerDisconnected,
		Player:   s.Player,
		ServerID: old,
	})
	return ok(fmt.Sprintf("Disconnected from %s.", old))
}

func cmdVPN(_ *Game, s *Session, args []string) *Result {
	want := args[0] == "on"
	changed := s.setVPN(want)
	if !changed {
		return ok(fmt.Sprintf("VPN already %s.", args[0]))
	}
	s.Bus.Emit(events.Event{
		Type:   events.EvToolUsed,
		Player: s.Player,
		ToolID: "vpn",
		Target: args[0],
	})
	if want {
		return ok("VPN tunnel established. Your traffic now exits elsewhere.")
	}
	return ok("VPN tunnel closed.")
}

func cmdLs(g *Game, s *Session, _ []string) *Result {
	h, res := s.connectedHost(g)
	if res != nil {
		return res
	}
	if len(h.Files) == 0 {
		return ok("(empty)")
	}
	lines := make([]string, 0, len(h.Files))
	for _, f := range h.Files {
		marker := ""
		if f.Encrypted && !s.isCracked(h.ID, f.Name) {
			marker = "  [encrypted]"
		}
		lines = append(lines, fmt.Sprintf("  %s%s", f.Name, marker))
	}
	return ok(lines...)
}

func cmdCat(g *Game, s *Session, args []string) *Result {
	h, res := s.connectedHost(g)
	if res != nil {
		return res
	}
	f := h.FindFile(args[0])
	if f == nil {
		return fail(ErrNotFound, fmt.Sprintf("No such file: %s", args[0]))
	}
	if f.Encrypted && !s.isCracked(h.ID, f.Name) {
		return &Result{
			Success: false,
			Err:     "File encrypted",
			Output:  []string{fmt.Sprintf("%s is encrypted.", f.Name)},
			Educational: []string{
				"Encrypted data is unreadable without the key.",
				"The crack tool brute-forces weak ciphers, given time.",
			},
		}
	}
	s.Bus.Emit(events.Event{
		Type:     events.EvFileRead,
		Player:   s.Player,
		HostID:   h.ID,
		Filename: f.Name,
	})
	if len(f.Content) == 0 {
		return ok("(empty file)")
	}
	return ok(f.Content...)
}

func cmdCrack(g *Game, s *Session, args []string) *Result {
	h, res := s.connectedHost(g)
	if res != nil {
		return res
	}
	f := h.FindFile(args[0])
	if f == nil {
		return fail(ErrNotFound, fmt.Sprintf("No such file: %s", args[0]))
	}
	if !f.Encrypted {
		return fail("Not encrypted", fmt.Sprintf("%s is not encrypted.", f.Name))
	}
	if s.isCracked(h.ID, f.Name) {
		// Neutral no-op: already done, no event re-emitted.
		return ok(fmt.Sprintf("%s is already decrypted.", f.Name))
	}

	seconds := f.CrackSeconds
	if seconds <= 0 {
		seconds = g.Conf.DefaultCrackSeconds * (1 + h.SecurityLevel)
	}
	hostID, fileName := h.ID, f.Name
	id := s.nextActionID()
	queued := s.Actions.Len() > 0

	// The tool's effect and its event are deferred until the timer
	// elapses; cancellation forfeits both.
	s.Actions.Enqueue(&actions.Action{
		ID:       id,
		Label:    fmt.Sprintf("crack %s:%s", hostID, fileName),
		Duration: time.Duration(seconds) * time.Second,
		OnComplete: func() {
			s.markCracked(hostID, fileName)
			s.Bus.Emit(events.Event{
				Type:   events.EvToolUsed,
				Player: s.Player,
				ToolID: "crack",
				Target: hostID + ":" + fileName,
			})
		},
	})

	msg := fmt.Sprintf("Cracking %s (~%ds). Check \"status\" for progress.", fileName, seconds)
	if queued {
		msg = fmt.Sprintf("Cracker busy; %s queued as %s.", fileName, id)
	}
	return &Result{
		Output:  []string{msg},
		Success: true,
		Educational: []string{
			"Brute-force attacks try keys until one fits; stronger keys take exponentially longer.",
		},
	}
}

func cmdStatus(_ *Game, s *Session, _ []string) *Result {
	a, frac, running := s.Actions.Progress()
	if !running {
		return ok("No tool running.")
	}
	lines := []string{fmt.Sprintf("%s  [%s] %3.0f%%  (%s)", a.Label, progressBar(frac), frac*100, a.ID)}
	if waiting := s.Actions.Len() - 1; waiting > 0 {
		lines = append(lines, fmt.Sprintf("%d queued behind it.", waiting))
	}
	return ok(lines...)
}

func cmdCancel(_ *Game, s *Session, args []string) *Result {
	if len(args) == 1 {
		if !s.Actions.Cancel(args[0]) {
			return fail(ErrNotFound, fmt.Sprintf("No action %s.", args[0]))
		}
		return ok(fmt.Sprintf("Cancelled %s.", args[0]))
	}
	a := s.Actions.Current()
	if a == nil {
		return ok("Nothing to cancel.")
	}
	s.Actions.Cancel(a.ID)
	return ok(fmt.Sprintf("Cancelled %s.", a.Label))
}

func cmdMail(g *Game, s *Session, args []string) *Result {
	content := g.Content()
	inbox := s.Inbox()

	if len(args) == 0 {
		if len(inbox) == 0 {
			return ok("Inbox empty.")
		}
		lines := []string{"Inbox:"}
		for i, id := range inbox {
			e := content.Mail.Get(id)
			if e == nil {
				continue
			}
			marker := "*"
			if s.isRead(id) {
				marker = " "
			}
			lines = append(lines, fmt.Sprintf(" %s %2d  %-22s %s", marker, i+1, e.From, e.Subject))
		}
		lines = append(lines, "Read one with \"mail read <n>\".")
		return ok(lines...)
	}

	if args[0] != "read" || len(args) != 2 {
		return fail(ErrValidation, "Usage: mail [read <n|id>]")
	}

	var e *Email
	if n, err := strconv.Atoi(args[1]); err == nil {
		if n < 1 || n > len(inbox) {
			return fail(ErrNotFound, fmt.Sprintf("No message %d.", n))
		}
		e = content.Mail.Get(inbox[n-1])
	} else {
		for _, id := range inbox {
			if id == args[1] {
				e = content.Mail.Get(id)
				break
			}
		}
	}
	if e == nil {
		return fail(ErrNotFound, fmt.Sprintf("No message %q.", args[1]))
	}

	s.markRead(e.ID)
	s.Bus.Emit(events.Event{
		Type:      events.EvEmailRead,
		Player:    s.Player,
		EmailID:   e.ID,
		MissionID: e.MissionID,
	})
	lines := []string{
		"From:    " + e.From,
		"Subject: " + e.Subject,
		"",
	}
	lines = append(lines, e.Body...)
	return ok(lines...)
}

func cmdMissions(_ *Game, s *Session, _ []string) *Result {
	lines := []string{"Missions:"}
	for _, row := range s.Engine.Overview() {
		switch row.State {
		case "locked":
			lines = append(lines, fmt.Sprintf("  ????????        %-24s [locked]", "\""+row.Category+"\" track"))
		case "completed":
			lines = append(lines, fmt.Sprintf("  %-14s  %-24s [done]", row.ID, row.Title))
		case "active":
			lines = append(lines, fmt.Sprintf("> %-14s  %-24s %d/%d tasks", row.ID, row.Title, row.TasksDone, row.TaskCount))
		default:
			lines = append(lines, fmt.Sprintf("  %-14s  %-24s [available]", row.ID, row.Title))
		}
	}
	return ok(lines...)
}

func cmdObjectives(g *Game, s *Session, _ []string) *Result {
	current := s.Engine.CurrentMission()
	if current == "" {
		return ok("No active mission. All done, or start one with \"start <id>\".")
	}
	m := g.Content().Missions.Get(current)
	if m == nil {
		return fail(ErrNotFound, "Active mission vanished from content; report this.")
	}
	progress := s.Engine.TaskProgress(current)
	lines := []string{fmt.Sprintf("%s — %s", m.ID, m.Title)}
	for _, t := range m.Tasks {
		mark := "[ ]"
		if progress[t.ID] {
			mark = "[x]"
		}
		lines = append(lines, fmt.Sprintf("  %s %s", mark, t.Description))
	}
	return ok(lines...)
}

func cmdHint(_ *Game, s *Session, _ []string) *Result {
	hint, found := s.Engine.UseHint()
	if !found {
		return fail(ErrNotFound, "No hints available.")
	}
	return ok("Hint: "+hint, "(Using hints forfeits the no-hints bonus.)")
}

func cmdStart(_ *Game, s *Session, args []string) *Result {
	if !s.Engine.StartMission(args[0]) {
		return fail(ErrNotFound, fmt.Sprintf("Cannot start %s: unknown, locked, or already completed.", args[0]))
	}
	return ok(fmt.Sprintf("Mission %s is now active. Check \"objectives\".", args[0]))
}

func cmdRestart(_ *Game, s *Session, args []string) *Result {
	if !s.Engine.RestartMission(args[0]) {
		return fail(ErrNotFound, fmt.Sprintf("Cannot restart %s.", args[0]))
	}
	return ok(fmt.Sprintf("Mission %s progress cleared.", args[0]))
}

// --- helpers ---

// connectedHost returns the session's current host, or a failure result
// when the player is offline.
func (s *Session) connectedHost(g *Game) (*world.Host, *Result) {
	id := s.CurrentHost()
	if id == "" {
		return nil, fail("Not connected", "Not connected. Use \"ssh <host>\" first.")
	}
	h := g.Content().World.GetHost(id)
	if h == nil {
		return nil, fail(ErrNotFound, "The host you were on no longer exists.")
	}
	return h, nil
}

func (s *Session) setHost(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentHost = id
	s.cwd = "/"
}

func (s *Session) clearHost() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.currentHost
	s.currentHost = ""
	s.cwd = ""
	return old
}

// setVPN flips the toggle, reporting whether the state changed.
func (s *Session) setVPN(on bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vpn == on {
		return false
	}
	s.vpn = on
	return true
}

func sortedCommandNames(cmds map[string]*Command) []string {
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func progressBar(frac float64) string {
	const width = 20
	filled := int(frac * width)
	if filled > width {
		filled = width
	}
	return strings.Repeat("#", filled) + strings.Repeat("-", width-filled)
}

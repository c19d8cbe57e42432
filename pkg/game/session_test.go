package game

import (
	"strings"
	"testing"
	"time"

	"github.com/hackmesh/termhack/pkg/boltstore"
	"github.com/hackmesh/termhack/pkg/events"
)

// waitCurrentMission polls until the auto-chain lands on the wanted
// mission.
func waitCurrentMission(t *testing.T, s *Session, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Engine.CurrentMission() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("current mission stuck at %q, want %q", s.Engine.CurrentMission(), want)
}

func TestNewSessionAutoStartsFirstMission(t *testing.T) {
	g := newTestGame(t)
	s := g.NewSession("student")
	defer s.Close()

	if cur := s.Engine.CurrentMission(); cur != "welcome-00" {
		t.Fatalf("current mission = %q", cur)
	}
	// The briefing mail arrives with the mission.
	inbox := s.Inbox()
	if len(inbox) != 1 || inbox[0] != "mail-welcome" {
		t.Errorf("inbox = %v", inbox)
	}
	if !s.Unlocked("help") || !s.Unlocked("ssh") {
		t.Error("starting commands missing")
	}
	if s.Unlocked("vpn") || s.Unlocked("crack") {
		t.Error("reward commands unlocked too early")
	}
}

func TestWelcomePlaythrough(t *testing.T) {
	g := newTestGame(t)
	s := g.NewSession("student")
	defer s.Close()
	completions := collect(s, events.EvMissionCompleted)

	run(t, g, s, "help")
	if !s.Engine.TaskProgress("welcome-00")["welcome-task-1"] {
		t.Fatal("help did not complete the first task")
	}

	run(t, g, s, "mail read 1")
	waitMissionState(t, s, "welcome-00", "completed")

	if len(*completions) != 1 || (*completions)[0].MissionID != "welcome-00" {
		t.Fatalf("completions = %+v", *completions)
	}
	// 10+10 task rewards plus round(100 * 1.25 * 1.5 * 1.2): a perfect,
	// fast, hint-free run.
	if credits := s.Engine.Credits(); credits != 245 {
		t.Errorf("credits = %d, want 245", credits)
	}
	// Completion auto-chains into the networking track and unlocks the
	// reward commands.
	waitCurrentMission(t, s, "n00b-01")
	if !s.Unlocked("vpn") || !s.Unlocked("crack") {
		t.Error("completion rewards not unlocked")
	}
	inbox := s.Inbox()
	if len(inbox) != 2 || inbox[1] != "mail-n00b" {
		t.Errorf("inbox = %v", inbox)
	}
}

func TestConnectDisconnectMission(t *testing.T) {
	g := newTestGame(t)
	s := g.NewSession("student")
	defer s.Close()

	// Clear welcome-00 first.
	run(t, g, s, "help")
	run(t, g, s, "mail read 1")
	waitMissionState(t, s, "welcome-00", "completed")
	waitCurrentMission(t, s, "n00b-01")

	run(t, g, s, "scan acme")
	run(t, g, s, "ssh server-01")
	if !s.Engine.TaskProgress("n00b-01")["task-1"] {
		t.Fatal("connect task not completed")
	}
	if s.Engine.State("n00b-01") != "active" {
		t.Fatal("mission settled with a task outstanding")
	}
	run(t, g, s, "disconnect")
	waitMissionState(t, s, "n00b-01", "completed")
	waitCurrentMission(t, s, "n00b-02")
}

func TestDisconnectWhileOfflineEmitsNothing(t *testing.T) {
	g := newTestGame(t)
	s := g.NewSession("student")
	defer s.Close()
	disc := collect(s, events.EvServerDisconnected)

	res := run(t, g, s, "disconnect")
	if res.Output[0] != "Not connected." {
		t.Errorf("output = %v", res.Output)
	}
	if len(*disc) != 0 {
		t.Errorf("offline disconnect emitted %+v", *disc)
	}
}

func TestSSHRequiresDiscoveryAndVPN(t *testing.T) {
	g := newTestGame(t)
	s := g.NewSession("student")
	defer s.Close()
	s.Unlock("vpn")

	if res := g.Dispatch(s, "ssh server-03"); res.Success {
		t.Fatal("connecting to an undiscovered host should fail")
	}
	run(t, g, s, "scan acme")

	res := g.Dispatch(s, "ssh server-03")
	if res.Success || res.Err != "Connection refused" {
		t.Fatalf("hardened host without vpn: %+v", res)
	}
	if len(res.Educational) == 0 {
		t.Error("refusal should teach something")
	}

	run(t, g, s, "vpn on")
	run(t, g, s, "ssh server-03")
	if s.CurrentHost() != "server-03" {
		t.Errorf("current host = %q", s.CurrentHost())
	}
}

func TestSSHRefusesWhenAlreadyConnected(t *testing.T) {
	g := newTestGame(t)
	s := g.NewSession("student")
	defer s.Close()
	run(t, g, s, "scan acme")
	run(t, g, s, "ssh server-01")

	if res := g.Dispatch(s, "ssh server-02"); res.Success {
		t.Error("second ssh should fail until disconnect")
	}
}

func TestVPNToggleEmitsOnlyOnChange(t *testing.T) {
	g := newTestGame(t)
	s := g.NewSession("student")
	defer s.Close()
	s.Unlock("vpn")
	tools := collect(s, events.EvToolUsed)

	run(t, g, s, "vpn on")
	run(t, g, s, "vpn on")
	run(t, g, s, "vpn off")

	if len(*tools) != 2 {
		t.Fatalf("tool:used events = %d, want 2", len(*tools))
	}
	if (*tools)[0].Target != "on" || (*tools)[1].Target != "off" {
		t.Errorf("targets = %q, %q", (*tools)[0].Target, (*tools)[1].Target)
	}
}

func TestCatEncryptedGatedByCrack(t *testing.T) {
	g := newTestGame(t)
	s := g.NewSession("student")
	defer s.Close()
	s.Unlock("crack")
	run(t, g, s, "scan acme")
	run(t, g, s, "ssh server-02")

	res := g.Dispatch(s, "cat vault.dat")
	if res.Success || res.Err != "File encrypted" {
		t.Fatalf("encrypted cat: %+v", res)
	}

	tools := collect(s, events.EvToolUsed)
	run(t, g, s, "crack vault.dat")

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && !s.isCracked("server-02", "vault.dat") {
		time.Sleep(10 * time.Millisecond)
	}
	if !s.isCracked("server-02", "vault.dat") {
		t.Fatal("crack never finished")
	}
	if len(*tools) != 1 || (*tools)[0].Target != "server-02:vault.dat" {
		t.Fatalf("tool events = %+v", *tools)
	}

	res = run(t, g, s, "cat vault.dat")
	if !strings.Contains(strings.Join(res.Output, "\n"), "account numbers") {
		t.Errorf("decrypted output = %v", res.Output)
	}
}

func TestCrackCancelForfeitsTheEffect(t *testing.T) {
	g := newTestGame(t)
	s := g.NewSession("student")
	defer s.Close()
	s.Unlock("crack")
	run(t, g, s, "scan acme")
	run(t, g, s, "ssh server-02")
	tools := collect(s, events.EvToolUsed)

	run(t, g, s, "crack vault.dat")
	run(t, g, s, "cancel")

	time.Sleep(20 * time.Millisecond)
	if s.isCracked("server-02", "vault.dat") {
		t.Error("cancelled crack still took effect")
	}
	if len(*tools) != 0 {
		t.Errorf("cancelled crack emitted %+v", *tools)
	}
	if res := g.Dispatch(s, "cat vault.dat"); res.Success {
		t.Error("file readable after cancelled crack")
	}
}

func TestCrackAlreadyDecryptedIsNeutral(t *testing.T) {
	g := newTestGame(t)
	s := g.NewSession("student")
	defer s.Close()
	s.Unlock("crack")
	run(t, g, s, "scan acme")
	run(t, g, s, "ssh server-02")
	s.markCracked("server-02", "vault.dat")
	tools := collect(s, events.EvToolUsed)

	res := run(t, g, s, "crack vault.dat")
	if !strings.Contains(res.Output[0], "already decrypted") {
		t.Errorf("output = %v", res.Output)
	}
	if len(*tools) != 0 {
		t.Errorf("repeat crack emitted %+v", *tools)
	}
}

func TestMailReadUnknownMessage(t *testing.T) {
	g := newTestGame(t)
	s := g.NewSession("student")
	defer s.Close()

	if res := g.Dispatch(s, "mail read 9"); res.Success {
		t.Error("reading message 9 of a 1-message inbox should fail")
	}
	if res := g.Dispatch(s, "mail read ghost-mail"); res.Success {
		t.Error("reading an undelivered id should fail")
	}
}

func TestHintForfeitsBonus(t *testing.T) {
	g := newTestGame(t)
	s := g.NewSession("student")
	defer s.Close()

	run(t, g, s, "help")
	res := run(t, g, s, "hint")
	if !strings.Contains(res.Output[0], "try the mail command") {
		t.Errorf("hint = %v", res.Output)
	}

	run(t, g, s, "mail read 1")
	waitMissionState(t, s, "welcome-00", "completed")

	// 10+10 task rewards plus round(100 * 1.25 * 1.5): the no-hints
	// multiplier is gone.
	if credits := s.Engine.Credits(); credits != 208 {
		t.Errorf("credits = %d, want 208", credits)
	}
}

func TestSaveRestoreRoundTrip(t *testing.T) {
	g := newTestGame(t)
	s := g.NewSession("student")

	run(t, g, s, "help")
	run(t, g, s, "mail read 1")
	waitMissionState(t, s, "welcome-00", "completed")
	waitCurrentMission(t, s, "n00b-01")
	run(t, g, s, "scan acme")
	run(t, g, s, "ssh server-01")
	s.markCracked("server-02", "vault.dat")
	save := s.Save()
	s.Close()

	s2 := g.RestoreSession("student", save)
	defer s2.Close()

	if s2.Engine.Credits() != 245 {
		t.Errorf("restored credits = %d", s2.Engine.Credits())
	}
	if s2.Engine.State("welcome-00") != "completed" {
		t.Error("completion lost in restore")
	}
	if cur := s2.Engine.CurrentMission(); cur != "n00b-01" {
		t.Errorf("restored mission = %q", cur)
	}
	if !s2.Unlocked("vpn") || !s2.Unlocked("crack") {
		t.Error("unlocks lost in restore")
	}
	if !s2.isCracked("server-02", "vault.dat") {
		t.Error("cracked files lost in restore")
	}
	if !s2.isRead("mail-welcome") {
		t.Error("read marks lost in restore")
	}
	// Discovery survives: probe works without a fresh scan.
	if res := g.Dispatch(s2, "probe server-01"); !res.Success {
		t.Errorf("probe after restore: %v", res.Output)
	}
	// Connection state is transient and not part of the save.
	if s2.CurrentHost() != "" {
		t.Errorf("restored session connected to %q", s2.CurrentHost())
	}
}

func TestRestoreEmptySaveStartsFirstMission(t *testing.T) {
	g := newTestGame(t)
	s := g.RestoreSession("student", &boltstore.SessionSave{})
	defer s.Close()

	if cur := s.Engine.CurrentMission(); cur != "welcome-00" {
		t.Errorf("current mission = %q", cur)
	}
}

func TestHelpHidesLockedCommands(t *testing.T) {
	g := newTestGame(t)
	s := g.NewSession("student")
	defer s.Close()

	res := run(t, g, s, "help")
	joined := strings.Join(res.Output, "\n")
	if strings.Contains(joined, "crack") {
		t.Error("locked crack listed in help")
	}
	s.Unlock("crack")
	res = run(t, g, s, "help")
	if !strings.Contains(strings.Join(res.Output, "\n"), "crack") {
		t.Error("unlocked crack missing from help")
	}
}

func TestObjectivesShowProgressMarks(t *testing.T) {
	g := newTestGame(t)
	s := g.NewSession("student")
	defer s.Close()

	run(t, g, s, "help")
	res := run(t, g, s, "objectives")
	joined := strings.Join(res.Output, "\n")
	if !strings.Contains(joined, "[x] ask for help") {
		t.Errorf("done task unmarked:\n%s", joined)
	}
	if !strings.Contains(joined, "[ ] read your briefing mail") {
		t.Errorf("pending task marked:\n%s", joined)
	}
}

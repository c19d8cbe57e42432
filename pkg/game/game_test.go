package game

import (
	"testing"
	"time"

	"github.com/hackmesh/termhack/pkg/missions"
	"github.com/hackmesh/termhack/pkg/world"
)

// testContent builds the small acme network and welcome/networking
// mission chain the package tests play through.
func testContent(t *testing.T) *Content {
	t.Helper()

	w, err := world.NewRegistry(
		[]world.Host{
			{ID: "server-01", Name: "acme file server", IP: "10.0.0.11",
				OrganizationID: "acme", SecurityLevel: 1,
				Services: []string{"ssh", "smb"},
				Files: []world.File{
					{Name: "readme.txt", Content: []string{"welcome aboard"}},
				}},
			{ID: "server-02", Name: "acme archive", IP: "10.0.0.12",
				OrganizationID: "acme", SecurityLevel: 1,
				Files: []world.File{
					{Name: "secret.txt", Content: []string{"the plans"}},
					{Name: "vault.dat", Content: []string{"account numbers"}, Encrypted: true, CrackSeconds: 1},
				}},
			{ID: "server-03", Name: "acme core router", IP: "10.0.0.13",
				OrganizationID: "acme", SecurityLevel: 3},
		},
		[]world.Organization{
			{ID: "acme", Name: "Acme Corp", Sector: "manufacturing",
				HostIDs:    []string{"server-01", "server-02", "server-03"},
				ContactIDs: []string{"jdoe"}},
		},
		[]world.Contact{
			{ID: "jdoe", Name: "J. Doe", Title: "sysadmin", Email: "jdoe@acme.example", OrganizationID: "acme"},
		},
	)
	if err != nil {
		t.Fatalf("world.NewRegistry: %v", err)
	}

	m, err := missions.NewRegistry(
		[]missions.Category{
			{ID: "basics", Name: "Basics", Order: 1},
			{ID: "networking", Name: "Networking", Order: 2},
		},
		[]missions.Mission{
			{
				ID: "welcome-00", Category: "basics", Sequence: 0, Title: "Welcome",
				Reward: 100, SpeedBonusSeconds: 300,
				UnlockCommands: []string{"vpn", "crack"},
				Tasks: []missions.Task{
					{ID: "welcome-task-1", Description: "ask for help", Reward: 10,
						Match: missions.MatchSpec{Kind: missions.MatchCommand, Command: "help"}},
					{ID: "welcome-task-2", Description: "read your briefing mail", Reward: 10,
						Match: missions.MatchSpec{Kind: missions.MatchEmail, Mission: "welcome-00"},
						Hints: []string{"try the mail command", "mail read 1"}},
				},
			},
			{
				ID: "n00b-01", Category: "networking", Sequence: 1, Title: "First Contact",
				Prerequisites: []string{"welcome-00"}, Reward: 200,
				Tasks: []missions.Task{
					{ID: "task-1", Description: "connect to server-01", Reward: 20,
						Match: missions.MatchSpec{Kind: missions.MatchSession, Transition: missions.TransitionConnect, Server: "server-01"}},
					{ID: "task-2", Description: "disconnect cleanly", Reward: 20,
						Match: missions.MatchSpec{Kind: missions.MatchSession, Transition: missions.TransitionDisconnect, Server: "server-01"}},
				},
			},
			{
				ID: "n00b-02", Category: "networking", Sequence: 2, Title: "Deeper In",
				Prerequisites: []string{"welcome-00"}, Reward: 300,
				Tasks: []missions.Task{
					{ID: "task-1", Description: "read secret.txt on server-02", Reward: 30,
						Match: missions.MatchSpec{Kind: missions.MatchFile, Host: "server-02", File: "secret.txt"}},
				},
			},
		},
	)
	if err != nil {
		t.Fatalf("missions.NewRegistry: %v", err)
	}

	mail, err := NewMailStore([]Email{
		{ID: "mail-welcome", MissionID: "welcome-00", From: "handler@hackmesh",
			Subject: "Welcome to the mesh", Body: []string{"Look around, then read this mail."}},
		{ID: "mail-n00b", MissionID: "n00b-01", From: "handler@hackmesh",
			Subject: "Your first box", Body: []string{"Get onto server-01 and back off again."}},
	})
	if err != nil {
		t.Fatalf("NewMailStore: %v", err)
	}

	return &Content{World: w, Missions: m, Mail: mail}
}

func newTestGame(t *testing.T) *Game {
	t.Helper()
	conf := DefaultConf()
	conf.SettleDelayMS = 1
	conf.ProgressTickMS = 0
	content := testContent(t)
	if err := CheckContent(content.World, content.Missions, content.Mail); err != nil {
		t.Fatalf("CheckContent: %v", err)
	}
	return New(conf, content)
}

// run dispatches a line and fails the test if the result is a failure.
func run(t *testing.T, g *Game, s *Session, line string) *Result {
	t.Helper()
	res := g.Dispatch(s, line)
	if !res.Success {
		t.Fatalf("%q failed: %s %v", line, res.Err, res.Output)
	}
	return res
}

// waitMissionState polls until the mission reaches the wanted state,
// riding out the settle delay.
func waitMissionState(t *testing.T, s *Session, mission, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Engine.State(mission) == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("mission %s never reached %q, stuck at %q", mission, want, s.Engine.State(mission))
}

func TestLoadConfDefaults(t *testing.T) {
	conf := DefaultConf()
	if conf.Port != 7370 || conf.HTTPPort != 7371 {
		t.Errorf("ports = %d/%d", conf.Port, conf.HTTPPort)
	}
	if conf.SettleDelay() != 50*time.Millisecond {
		t.Errorf("settle delay = %v", conf.SettleDelay())
	}
	if conf.DefaultCrackSeconds != 8 {
		t.Errorf("default crack seconds = %d", conf.DefaultCrackSeconds)
	}
}

func TestCheckContentCatchesDanglingRefs(t *testing.T) {
	content := testContent(t)

	m, err := missions.NewRegistry(
		[]missions.Category{{ID: "basics", Name: "Basics", Order: 1}},
		[]missions.Mission{{
			ID: "broken-00", Category: "basics", Title: "Broken", Reward: 1,
			Tasks: []missions.Task{{ID: "t1",
				Match: missions.MatchSpec{Kind: missions.MatchFile, Host: "ghost-host", File: "x.txt"}}},
		}},
	)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if err := CheckContent(content.World, m, content.Mail); err == nil {
		t.Error("unknown host in a file match should fail the content check")
	}
}

func TestReplaceContentSwapsAtomically(t *testing.T) {
	g := newTestGame(t)
	old := g.Content()

	replacement := testContent(t)
	g.ReplaceContent(replacement)
	if g.Content() == old {
		t.Error("content not replaced")
	}
	// Sessions built before the swap keep working against the new content.
	s := g.NewSession("student")
	defer s.Close()
	if res := g.Dispatch(s, "scan acme"); !res.Success {
		t.Errorf("scan after reload failed: %v", res.Output)
	}
}

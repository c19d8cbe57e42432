package game

import (
	"strings"
	"testing"

	"github.com/hackmesh/termhack/pkg/events"
)

func collect(s *Session, types ...events.Type) *[]events.Event {
	var got []events.Event
	for _, t := range types {
		s.Bus.Subscribe(t, func(ev events.Event) { got = append(got, ev) })
	}
	return &got
}

func TestDispatchUnknownCommand(t *testing.T) {
	g := newTestGame(t)
	s := g.NewSession("student")
	defer s.Close()
	failed := collect(s, events.EvCommandFailed)

	res := g.Dispatch(s, "frobnicate now")
	if res.Success || res.Err != ErrNotFound {
		t.Fatalf("result = %+v", res)
	}
	if len(*failed) != 1 {
		t.Fatalf("command:failed events = %d", len(*failed))
	}
	ev := (*failed)[0]
	if ev.Command != "frobnicate" || ev.Error != ErrNotFound {
		t.Errorf("event = %+v", ev)
	}
}

func TestDispatchLockedCommand(t *testing.T) {
	g := newTestGame(t)
	s := g.NewSession("student")
	defer s.Close()
	failed := collect(s, events.EvCommandFailed)

	res := g.Dispatch(s, "vpn on")
	if res.Success || res.Err != ErrLocked {
		t.Fatalf("locked vpn: %+v", res)
	}
	if len(*failed) != 1 || (*failed)[0].Error != ErrLocked {
		t.Fatalf("failed events = %+v", *failed)
	}

	s.Unlock("vpn")
	if res := g.Dispatch(s, "vpn on"); !res.Success {
		t.Errorf("unlocked vpn failed: %v", res.Output)
	}
}

func TestDispatchValidationFailure(t *testing.T) {
	g := newTestGame(t)
	s := g.NewSession("student")
	defer s.Close()
	failed := collect(s, events.EvCommandFailed)

	res := g.Dispatch(s, "probe")
	if res.Success || res.Err != ErrValidation {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Output) == 0 || !strings.HasPrefix(res.Output[0], "Usage:") {
		t.Errorf("output = %v", res.Output)
	}
	if len(*failed) != 1 || (*failed)[0].Error != ErrValidation {
		t.Errorf("failed events = %+v", *failed)
	}
}

func TestDispatchAliasResolvesToCanonicalName(t *testing.T) {
	g := newTestGame(t)
	s := g.NewSession("student")
	defer s.Close()
	executed := collect(s, events.EvCommandExecuted)

	if res := g.Dispatch(s, "dc"); !res.Success {
		t.Fatalf("dc failed: %v", res.Output)
	}
	if len(*executed) != 1 || (*executed)[0].Command != "disconnect" {
		t.Errorf("executed events = %+v", *executed)
	}
}

func TestDispatchCaseInsensitiveCommand(t *testing.T) {
	g := newTestGame(t)
	s := g.NewSession("student")
	defer s.Close()

	if res := g.Dispatch(s, "HELP"); !res.Success {
		t.Errorf("HELP failed: %v", res.Output)
	}
}

func TestDispatchEmptyInput(t *testing.T) {
	g := newTestGame(t)
	s := g.NewSession("student")
	defer s.Close()
	all := collect(s, events.EvCommandExecuted, events.EvCommandFailed)

	res := g.Dispatch(s, "   ")
	if !res.Success {
		t.Errorf("blank line should be a silent success: %+v", res)
	}
	if len(*all) != 0 {
		t.Errorf("blank line emitted events: %+v", *all)
	}
}

func TestDispatchPanicBecomesFailure(t *testing.T) {
	g := newTestGame(t)
	g.commands["explode"] = &Command{
		Name:    "explode",
		Handler: func(*Game, *Session, []string) *Result { panic("kaboom") },
	}
	s := g.NewSession("student")
	defer s.Close()
	executed := collect(s, events.EvCommandExecuted)

	res := g.Dispatch(s, "explode")
	if res.Success || res.Err != ErrExecution {
		t.Fatalf("result = %+v", res)
	}
	if !strings.Contains(res.Output[0], "Error executing command: kaboom") {
		t.Errorf("output = %v", res.Output)
	}
	// A handler that ran, even into a panic, still counts as executed.
	if len(*executed) != 1 || (*executed)[0].Success {
		t.Errorf("executed events = %+v", *executed)
	}
}

func TestDispatchNilResultBecomesFailure(t *testing.T) {
	g := newTestGame(t)
	g.commands["shrug"] = &Command{
		Name:    "shrug",
		Handler: func(*Game, *Session, []string) *Result { return nil },
	}
	s := g.NewSession("student")
	defer s.Close()

	res := g.Dispatch(s, "shrug")
	if res == nil || res.Success || res.Err != ErrExecution {
		t.Fatalf("result = %+v", res)
	}
}

func TestDispatchSnapshotTakenBeforeExecution(t *testing.T) {
	g := newTestGame(t)
	s := g.NewSession("student")
	defer s.Close()
	run(t, g, s, "scan acme")
	run(t, g, s, "ssh server-01")

	executed := collect(s, events.EvCommandExecuted)
	run(t, g, s, "disconnect")

	// The handler cleared the host, but the event context shows the
	// state the command ran against.
	if len(*executed) != 1 {
		t.Fatalf("executed events = %d", len(*executed))
	}
	if ctx := (*executed)[0].Context; ctx.CurrentHost != "server-01" {
		t.Errorf("context host = %q, want server-01", ctx.CurrentHost)
	}
	if s.CurrentHost() != "" {
		t.Errorf("session still connected to %q", s.CurrentHost())
	}
}

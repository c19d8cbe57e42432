package telemetry

import (
	"path/filepath"
	"testing"

	"github.com/hackmesh/termhack/pkg/events"
)

func testLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "telemetry.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLedgerRecordsCommands(t *testing.T) {
	l := testLedger(t)
	bus := events.NewBus()
	l.Attach(bus)

	bus.Emit(events.Event{Type: events.EvCommandExecuted, Player: "student",
		Command: "scan", Args: []string{"acme"}, Success: true})
	bus.Emit(events.Event{Type: events.EvCommandFailed, Player: "student",
		Command: "nmap", Success: false})
	bus.Emit(events.Event{Type: events.EvCommandExecuted, Player: "other",
		Command: "help", Success: true})

	n, err := l.CommandCount("student")
	if err != nil {
		t.Fatalf("CommandCount: %v", err)
	}
	if n != 2 {
		t.Errorf("student command count = %d, want 2", n)
	}
	total, err := l.CommandCount("")
	if err != nil || total != 3 {
		t.Errorf("total command count = %d, %v, want 3", total, err)
	}
}

func TestLedgerRecordsMissionEvents(t *testing.T) {
	l := testLedger(t)
	bus := events.NewBus()
	l.Attach(bus)

	bus.Emit(events.Event{Type: events.EvMissionStarted, Player: "student", MissionID: "welcome-00"})
	bus.Emit(events.Event{Type: events.EvTaskCompleted, Player: "student",
		MissionID: "welcome-00", TaskID: "welcome-task-1", Reward: 10})
	bus.Emit(events.Event{Type: events.EvMissionCompleted, Player: "student",
		MissionID: "welcome-00", Reward: 225})

	got, err := l.MissionEvents("student")
	if err != nil {
		t.Fatalf("MissionEvents: %v", err)
	}
	want := []string{
		"mission:started welcome-00",
		"task:completed welcome-00 welcome-task-1",
		"mission:completed welcome-00",
	}
	if len(got) != len(want) {
		t.Fatalf("rows = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLedgerCloseDetaches(t *testing.T) {
	l := testLedger(t)
	bus := events.NewBus()
	l.Attach(bus)
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Emitting after close must not panic or write.
	bus.Emit(events.Event{Type: events.EvCommandExecuted, Player: "student", Command: "help"})
}

// Package telemetry records gameplay events into a SQLite ledger so an
// instructor can see which commands and missions students attempted. It
// observes the event bus and is entirely optional; the engine runs the
// same with or without it.
package telemetry

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hackmesh/termhack/pkg/events"
)

const schema = `
CREATE TABLE IF NOT EXISTS command_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts TEXT NOT NULL,
	player TEXT NOT NULL,
	command TEXT NOT NULL,
	args TEXT NOT NULL,
	success INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS mission_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts TEXT NOT NULL,
	player TEXT NOT NULL,
	event TEXT NOT NULL,
	mission TEXT NOT NULL,
	task TEXT NOT NULL,
	reward INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_command_log_player ON command_log(player);
CREATE INDEX IF NOT EXISTS idx_mission_log_player ON mission_log(player);
`

// Ledger is an append-only SQLite event log.
type Ledger struct {
	mu     sync.Mutex
	db     *sql.DB
	unsubs []func()
}

// Open opens or creates the ledger database, sets WAL mode and applies
// the schema.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("telemetry: set WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("telemetry: apply schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Attach subscribes the ledger to the bus. Write failures are logged and
// swallowed; telemetry must never disturb gameplay.
func (l *Ledger) Attach(bus *events.Bus) {
	l.unsubs = append(l.unsubs,
		bus.Subscribe(events.EvCommandExecuted, l.recordCommand),
		bus.Subscribe(events.EvCommandFailed, l.recordCommand),
		bus.Subscribe(events.EvTaskCompleted, l.recordMission),
		bus.Subscribe(events.EvMissionStarted, l.recordMission),
		bus.Subscribe(events.EvMissionCompleted, l.recordMission),
	)
}

func (l *Ledger) recordCommand(ev events.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db == nil {
		return
	}
	_, err := l.db.Exec(
		"INSERT INTO command_log (ts, player, command, args, success) VALUES (?, ?, ?, ?, ?)",
		ev.Timestamp.UTC().Format(time.RFC3339Nano),
		ev.Player, ev.Command, strings.Join(ev.Args, " "), boolInt(ev.Success),
	)
	if err != nil {
		log.Printf("TELEMETRY: command insert failed: %v", err)
	}
}

func (l *Ledger) recordMission(ev events.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db == nil {
		return
	}
	_, err := l.db.Exec(
		"INSERT INTO mission_log (ts, player, event, mission, task, reward) VALUES (?, ?, ?, ?, ?, ?)",
		ev.Timestamp.UTC().Format(time.RFC3339Nano),
		ev.Player, string(ev.Type), ev.MissionID, ev.TaskID, ev.Reward,
	)
	if err != nil {
		log.Printf("TELEMETRY: mission insert failed: %v", err)
	}
}

// CommandCount returns the number of logged command executions for a
// player, or for everyone when player is empty.
func (l *Ledger) CommandCount(player string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int
	var err error
	if player == "" {
		err = l.db.QueryRow("SELECT COUNT(*) FROM command_log").Scan(&n)
	} else {
		err = l.db.QueryRow("SELECT COUNT(*) FROM command_log WHERE player = ?", player).Scan(&n)
	}
	return n, err
}

// MissionEvents returns the logged mission event rows for a player in
// insertion order, formatted as "event mission task".
func (l *Ledger) MissionEvents(player string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rows, err := l.db.Query(
		"SELECT event, mission, task FROM mission_log WHERE player = ? ORDER BY id", player)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var event, mission, task string
		if err := rows.Scan(&event, &mission, &task); err != nil {
			return nil, err
		}
		out = append(out, strings.TrimSpace(fmt.Sprintf("%s %s %s", event, mission, task)))
	}
	return out, rows.Err()
}

// Checkpoint flushes the WAL into the main database file so an on-disk
// copy taken afterwards is complete.
func (l *Ledger) Checkpoint() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db == nil {
		return nil
	}
	_, err := l.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// Close detaches from the bus and closes the database.
func (l *Ledger) Close() error {
	for _, u := range l.unsubs {
		u()
	}
	l.unsubs = nil
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package events

import "time"

// Type classifies game events. The string values are a stable contract:
// the task matcher, telemetry ledger and transports all key off them.
type Type string

const (
	EvCommandExecuted    Type = "command:executed"
	EvCommandFailed      Type = "command:failed"
	EvToolUsed           Type = "tool:used"
	EvFileRead           Type = "file:read"
	EvServerConnected    Type = "server:connected"
	EvServerDisconnected Type = "server:disconnected"
	EvEmailRead          Type = "email:read"
	EvMissionStarted     Type = "mission:started"
	EvMissionCompleted   Type = "mission:completed"
	EvTaskCompleted      Type = "task:completed"
	EvCategoryCompleted  Type = "category:completed"
)

// SessionSnapshot is the dispatcher's capture of session context at the
// moment a command was invoked. It is recorded into the event rather than
// re-read later, so state changes triggered by the command itself cannot
// race the matcher's view of where the player was.
type SessionSnapshot struct {
	CurrentHost string // host ID, empty when not connected anywhere
	VPNActive   bool
	WorkingDir  string
}

// Event is a structured game event that flows through the bus. Events are
// values and are never mutated after Emit; each type uses the subset of
// fields relevant to it and leaves the rest zero.
type Event struct {
	Type      Type
	Timestamp time.Time
	Player    string // account name that caused the event

	// command:executed / command:failed
	Command string // canonical command name, never an alias
	Args    []string
	Success bool
	Context SessionSnapshot

	// tool:used
	ToolID string
	Target string

	// file:read
	HostID   string
	Filename string

	// server:connected / server:disconnected
	ServerID string

	// email:read
	EmailID string

	// mission:started / mission:completed / task:completed / category:completed
	MissionID  string
	TaskID     string
	CategoryID string
	Reward     int

	// command:failed detail
	Error string
}

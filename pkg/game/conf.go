package game

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// GameConf holds game-level configuration. Loaded from YAML; zero values
// fall back to the defaults below.
type GameConf struct {
	// --- Identity ---
	Name string `yaml:"name"`
	Port int    `yaml:"port"`
	// HTTPPort serves /metrics, /healthz and the admin API. Zero disables.
	HTTPPort int `yaml:"http_port"`
	// WSPath is the WebSocket terminal endpoint on the HTTP listener.
	WSPath string `yaml:"ws_path"`

	// --- Content ---
	ContentDir   string `yaml:"content_dir"`
	WatchContent bool   `yaml:"watch_content"`

	// --- Persistence ---
	BoltPath      string `yaml:"bolt_path"`
	TelemetryPath string `yaml:"telemetry_path"`
	BackupDir     string `yaml:"backup_dir"`

	// --- Admin API ---
	JWTSecret string `yaml:"jwt_secret"`

	// --- Progression tuning ---
	SettleDelayMS     int     `yaml:"settle_delay_ms"`
	PerfectMultiplier float64 `yaml:"perfect_multiplier"`
	SpeedMultiplier   float64 `yaml:"speed_multiplier"`
	NoHintsMultiplier float64 `yaml:"no_hints_multiplier"`

	// --- Session defaults ---
	StartingCommands []string `yaml:"starting_commands"`
	StartingCredits  int      `yaml:"starting_credits"`

	// --- Tools ---
	DefaultCrackSeconds int `yaml:"default_crack_seconds"`
	ProgressTickMS      int `yaml:"progress_tick_ms"`
}

// DefaultConf returns the shipped defaults.
func DefaultConf() GameConf {
	return GameConf{
		Name:                "termhack",
		Port:                7370,
		HTTPPort:            7371,
		WSPath:              "/ws",
		ContentDir:          "content",
		BoltPath:            "termhack.db",
		BackupDir:           "backups",
		SettleDelayMS:       50,
		PerfectMultiplier:   1.25,
		SpeedMultiplier:     1.5,
		NoHintsMultiplier:   1.2,
		StartingCommands:    []string{"help", "whoami", "unlocks", "mail", "missions", "objectives", "hint", "scan", "probe", "ssh", "disconnect", "ls", "cat", "status", "cancel", "start", "restart"},
		StartingCredits:     0,
		DefaultCrackSeconds: 8,
		ProgressTickMS:      250,
	}
}

// LoadConf reads a YAML config file over the defaults.
func LoadConf(path string) (GameConf, error) {
	conf := DefaultConf()
	data, err := os.ReadFile(path)
	if err != nil {
		return conf, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &conf); err != nil {
		return conf, fmt.Errorf("parse config %s: %w", path, err)
	}
	return conf, nil
}

// SettleDelay returns the mission settle delay as a duration.
func (c GameConf) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMS) * time.Millisecond
}

// ProgressTick returns the action-queue progress tick as a duration.
func (c GameConf) ProgressTick() time.Duration {
	return time.Duration(c.ProgressTickMS) * time.Millisecond
}

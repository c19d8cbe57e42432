package game

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hackmesh/termhack/pkg/events"
)

// Metrics holds Prometheus metric descriptors for the game server.
type Metrics struct {
	registry  *prometheus.Registry
	startTime time.Time

	commandsTotal    prometheus.Counter
	commandFailures  prometheus.Counter
	eventsTotal      *prometheus.CounterVec
	tasksCompleted   prometheus.Counter
	missionsComplete prometheus.Counter
	playersConnected prometheus.Gauge
	actionsPending   prometheus.Gauge
	uptimeSeconds    prometheus.Gauge
	goroutines       prometheus.Gauge

	// SampleActions reports queued actions across live sessions. Set by
	// the transport layer, which knows who is connected.
	SampleActions func() int
}

// NewMetrics creates and registers the game metrics on reg.
func NewMetrics(reg *prometheus.Registry, startTime time.Time) *Metrics {
	m := &Metrics{
		registry:  reg,
		startTime: startTime,
		commandsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "termhack_commands_processed_total",
			Help: "Total commands processed since server start.",
		}),
		commandFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "termhack_command_failures_total",
			Help: "Commands that resolved to a failure result.",
		}),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "termhack_events_total",
			Help: "Game events emitted, by event type.",
		}, []string{"type"}),
		tasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "termhack_tasks_completed_total",
			Help: "Mission tasks completed across all players.",
		}),
		missionsComplete: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "termhack_missions_completed_total",
			Help: "Missions completed across all players.",
		}),
		playersConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "termhack_players_connected",
			Help: "Number of currently connected players.",
		}),
		actionsPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "termhack_actions_pending",
			Help: "Queued or running background actions across all sessions.",
		}),
		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "termhack_uptime_seconds",
			Help: "Server uptime in seconds.",
		}),
		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "termhack_goroutines",
			Help: "Number of active goroutines.",
		}),
	}

	reg.MustRegister(
		m.commandsTotal,
		m.commandFailures,
		m.eventsTotal,
		m.tasksCompleted,
		m.missionsComplete,
		m.playersConnected,
		m.actionsPending,
		m.uptimeSeconds,
		m.goroutines,
	)
	return m
}

// CommandProcessed counts one dispatched command.
func (m *Metrics) CommandProcessed(success bool) {
	m.commandsTotal.Inc()
	if !success {
		m.commandFailures.Inc()
	}
}

// PlayerConnected adjusts the connected-players gauge.
func (m *Metrics) PlayerConnected(delta int) {
	m.playersConnected.Add(float64(delta))
}

// ObserveBus attaches per-event-type counters to a session bus.
func (m *Metrics) ObserveBus(bus *events.Bus) {
	for _, t := range []events.Type{
		events.EvCommandExecuted,
		events.EvCommandFailed,
		events.EvToolUsed,
		events.EvFileRead,
		events.EvServerConnected,
		events.EvServerDisconnected,
		events.EvEmailRead,
		events.EvMissionStarted,
		events.EvMissionCompleted,
		events.EvTaskCompleted,
		events.EvCategoryCompleted,
	} {
		t := t
		bus.Subscribe(t, func(events.Event) {
			m.eventsTotal.WithLabelValues(string(t)).Inc()
			switch t {
			case events.EvTaskCompleted:
				m.tasksCompleted.Inc()
			case events.EvMissionCompleted:
				m.missionsComplete.Inc()
			}
		})
	}
}

// Refresh updates the point-in-time gauges. The HTTP layer calls it
// before serving /metrics.
func (m *Metrics) Refresh() {
	m.uptimeSeconds.Set(time.Since(m.startTime).Seconds())
	m.goroutines.Set(float64(runtime.NumGoroutine()))
	if m.SampleActions != nil {
		m.actionsPending.Set(float64(m.SampleActions()))
	}
}

// Handler serves the registry, refreshing gauges first.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Refresh()
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}

// Package metrics holds the Prometheus collectors of the bot. All methods are
// safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Command outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeDenied  = "denied"
	OutcomeInvalid = "invalid"
	OutcomeError   = "error"
)

// Unlock sources.
const (
	SourceManual = "manual"
	SourceSweep  = "sweep"
)

// Metrics is the set of bot collectors.
type Metrics struct {
	reg prometheus.Registerer

	commands        *prometheus.CounterVec
	messagesDeleted prometheus.Counter
	locks           *prometheus.CounterVec
	unlocks         *prometheus.CounterVec
	sweepRuns       prometheus.Counter
	sweepErrors     prometheus.Counter
}

// New registers the bot collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Name: "modbot_commands_total",
			Help: "Slash commands handled, by command and outcome",
		}, []string{"command", "outcome"}),
		messagesDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "modbot_messages_deleted_total",
			Help: "Messages deleted by the clear command",
		}),
		locks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "modbot_locks_total",
			Help: "Locks applied, by scope",
		}, []string{"scope"}),
		unlocks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "modbot_unlocks_total",
			Help: "Locks lifted, by scope and source",
		}, []string{"scope", "source"}),
		sweepRuns: f.NewCounter(prometheus.CounterOpts{
			Name: "modbot_sweep_runs_total",
			Help: "Expiry sweep passes",
		}),
		sweepErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "modbot_sweep_errors_total",
			Help: "Errors met by the expiry sweep",
		}),
	}
}

// WatchHeartbeat exposes the gateway heartbeat latency in microseconds.
func (m *Metrics) WatchHeartbeat(latency func() time.Duration) {
	if m == nil {
		return
	}
	promauto.With(m.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "modbot_discord_heartbeat_latency_microsec",
		Help: "The latency of a discord heartbeat in microseconds",
	}, func() float64 {
		return float64(latency().Microseconds())
	})
}

// Command counts one handled command with its outcome.
func (m *Metrics) Command(name, outcome string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(name, outcome).Inc()
}

// MessagesDeleted adds n deleted messages.
func (m *Metrics) MessagesDeleted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.messagesDeleted.Add(float64(n))
}

// Lock counts an applied lock in scope.
func (m *Metrics) Lock(scope string) {
	if m == nil {
		return
	}
	m.locks.WithLabelValues(scope).Inc()
}

// Unlock counts a lifted lock in scope by source.
func (m *Metrics) Unlock(scope, source string) {
	if m == nil {
		return
	}
	m.unlocks.WithLabelValues(scope, source).Inc()
}

// SweepRun counts one expiry sweep pass.
func (m *Metrics) SweepRun() {
	if m == nil {
		return
	}
	m.sweepRuns.Inc()
}

// SweepError counts an error met by the expiry sweep.
func (m *Metrics) SweepError() {
	if m == nil {
		return
	}
	m.sweepErrors.Inc()
}

package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/clawcontrol/claw/pkg/models"
)

// PromMetrics exposes board counters and gauges to Prometheus. It satisfies
// the core package's Recorder port.
type PromMetrics struct {
	taskEvents    *prometheus.CounterVec
	notifications *prometheus.CounterVec
	tasksByLane   *prometheus.GaugeVec
	agentsByState *prometheus.GaugeVec
}

// NewPromMetrics creates the collectors and registers them with reg.
func NewPromMetrics(reg prometheus.Registerer) *PromMetrics {
	m := &PromMetrics{
		taskEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claw_task_events_total",
				Help: "Task mutations by kind",
			},
			[]string{"event"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claw_notifications_total",
				Help: "Notification outcomes (enqueued, delivered, failed, dead_lettered, pruned)",
			},
			[]string{"outcome"},
		),
		tasksByLane: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "claw_tasks",
				Help: "Number of tasks per lane",
			},
			[]string{"lane"},
		),
		agentsByState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "claw_agents",
				Help: "Number of registered agents per status",
			},
			[]string{"status"},
		),
	}

	reg.MustRegister(
		m.taskEvents,
		m.notifications,
		m.tasksByLane,
		m.agentsByState,
	)
	return m
}

func (m *PromMetrics) IncTaskEvent(event string) {
	m.taskEvents.WithLabelValues(event).Inc()
}

func (m *PromMetrics) IncNotification(outcome string) {
	m.notifications.WithLabelValues(outcome).Inc()
}

func (m *PromMetrics) SetLaneCounts(counts map[models.Lane]int) {
	for lane, n := range counts {
		m.tasksByLane.WithLabelValues(string(lane)).Set(float64(n))
	}
}

func (m *PromMetrics) SetAgentCounts(counts map[models.AgentStatus]int) {
	for status, n := range counts {
		m.agentsByState.WithLabelValues(string(status)).Set(float64(n))
	}
}

package observability

import (
	"fmt"
	"time"
)

// Metrics holds counters derived from the event log.
type Metrics struct {
	TasksCreated   int            `json:"tasks_created"`
	TasksCompleted int            `json:"tasks_completed"`
	TasksUnblocked int            `json:"tasks_unblocked"`
	TasksRemoved   int            `json:"tasks_removed"`
	Assignments    int            `json:"assignments"`
	Comments       int            `json:"comments"`
	HoursLogged    float64        `json:"hours_logged"`
	LaneEntries    map[string]int `json:"lane_entries"`

	AgentsRegistered  int `json:"agents_registered"`
	AgentsWentOffline int `json:"agents_went_offline"`

	NotificationsEnqueued     int `json:"notifications_enqueued"`
	NotificationsDelivered    int `json:"notifications_delivered"`
	NotificationsFailed       int `json:"notifications_failed"`
	NotificationsDeadLettered int `json:"notifications_dead_lettered"`

	EventCount  int        `json:"event_count"`
	OldestEvent *time.Time `json:"oldest_event,omitempty"`
	NewestEvent *time.Time `json:"newest_event,omitempty"`
}

// MetricsCalculator derives metrics from the event log.
type MetricsCalculator interface {
	Calculate(since time.Time) (*Metrics, error)
}

type metricsCalculator struct {
	eventLog EventLog
}

// NewMetricsCalculator creates a MetricsCalculator reading from eventLog.
func NewMetricsCalculator(eventLog EventLog) MetricsCalculator {
	return &metricsCalculator{eventLog: eventLog}
}

// Calculate aggregates every event since the given time.
func (mc *metricsCalculator) Calculate(since time.Time) (*Metrics, error) {
	events, err := mc.eventLog.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading events for metrics: %w", err)
	}

	m := &Metrics{LaneEntries: make(map[string]int)}
	m.EventCount = len(events)

	for i, event := range events {
		t := event.Time
		if i == 0 {
			m.OldestEvent = &t
		}
		m.NewestEvent = &t

		switch event.Type {
		case "task.created":
			m.TasksCreated++
			if lane := stringField(event.Data, "lane"); lane != "" {
				m.LaneEntries[lane]++
			}
		case "task.status_changed":
			if lane := stringField(event.Data, "to"); lane != "" {
				m.LaneEntries[lane]++
			}
		case "task.completed":
			m.TasksCompleted++
		case "task.unblocked":
			m.TasksUnblocked++
			m.LaneEntries["queued"]++
		case "task.removed":
			m.TasksRemoved++
		case "task.assigned":
			if stringField(event.Data, "agent_id") != "" {
				m.Assignments++
			}
		case "task.commented":
			m.Comments++
		case "task.time_logged":
			if h, ok := event.Data["hours"].(float64); ok {
				m.HoursLogged += h
			}
		case "agent.registered":
			m.AgentsRegistered++
		case "agent.offline":
			m.AgentsWentOffline++
		case "notification.enqueued":
			m.NotificationsEnqueued++
		case "notification.delivered":
			m.NotificationsDelivered++
		case "notification.failed":
			m.NotificationsFailed++
		case "notification.dead_lettered":
			m.NotificationsDeadLettered++
		}
	}

	return m, nil
}

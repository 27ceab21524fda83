package observability

import (
	"fmt"
	"sort"
	"time"

	"github.com/clawcontrol/claw/internal/core"
	"github.com/clawcontrol/claw/pkg/models"
)

// AlertSeverity represents the urgency of an alert.
type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
	SeverityLow    AlertSeverity = "low"
)

// Alert conditions.
const (
	ConditionBlockedTooLong = "task_blocked_too_long"
	ConditionReviewTooLong  = "review_too_long"
	ConditionAgentOffline   = "agent_offline_with_open_work"
	ConditionDeadLettered   = "notifications_dead_lettered"
	ConditionQueueTooLarge  = "queue_too_large"
)

// Alert represents a triggered alert condition.
type Alert struct {
	ID          string        `json:"id"`
	Condition   string        `json:"condition"`
	Severity    AlertSeverity `json:"severity"`
	Message     string        `json:"message"`
	TriggeredAt time.Time     `json:"triggered_at"`
}

// AlertThresholds configures when alerts fire.
type AlertThresholds struct {
	BlockedHours   int `yaml:"blocked_hours" json:"blocked_hours"`
	ReviewDays     int `yaml:"review_days" json:"review_days"`
	OfflineMinutes int `yaml:"offline_minutes" json:"offline_minutes"`
	MaxQueueSize   int `yaml:"max_queue_size" json:"max_queue_size"`
}

// DefaultAlertThresholds returns the thresholds used when none are configured.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		BlockedHours:   24,
		ReviewDays:     3,
		OfflineMinutes: 30,
		MaxQueueSize:   50,
	}
}

// BoardReader is the read side of the board the alert engine inspects.
// core.BoardService satisfies it.
type BoardReader interface {
	ListTasks(filter models.TaskFilter, byPriority bool) ([]*models.Task, error)
	ListAgents(role models.Role) ([]*models.AgentView, error)
	Notifications(agentID string, unreadOnly bool) ([]*models.Notification, error)
}

// AlertEngine evaluates alert conditions.
type AlertEngine interface {
	Evaluate() ([]Alert, error)
}

type alertEngine struct {
	board      BoardReader
	thresholds AlertThresholds
	now        func() time.Time
}

// NewAlertEngine creates an AlertEngine over the live board. A nil now uses
// the wall clock.
func NewAlertEngine(board BoardReader, thresholds AlertThresholds, now func() time.Time) AlertEngine {
	if now == nil {
		now = time.Now
	}
	return &alertEngine{board: board, thresholds: thresholds, now: now}
}

// Evaluate checks every condition and returns the triggered alerts sorted by
// severity, then ID.
func (ae *alertEngine) Evaluate() ([]Alert, error) {
	now := ae.now().UTC()

	tasks, err := ae.board.ListTasks(models.TaskFilter{}, false)
	if err != nil {
		return nil, fmt.Errorf("listing tasks for alerts: %w", err)
	}
	agents, err := ae.board.ListAgents("")
	if err != nil {
		return nil, fmt.Errorf("listing agents for alerts: %w", err)
	}
	notes, err := ae.board.Notifications("", false)
	if err != nil {
		return nil, fmt.Errorf("listing notifications for alerts: %w", err)
	}

	var alerts []Alert
	alerts = append(alerts, ae.checkLaneAges(tasks, now)...)
	alerts = append(alerts, ae.checkOfflineAgents(agents, now)...)
	alerts = append(alerts, ae.checkDeadLetters(notes, now)...)
	alerts = append(alerts, ae.checkQueueSize(tasks, now)...)

	sort.Slice(alerts, func(i, j int) bool {
		ri, rj := severityRank(alerts[i].Severity), severityRank(alerts[j].Severity)
		if ri != rj {
			return ri < rj
		}
		return alerts[i].ID < alerts[j].ID
	})
	return alerts, nil
}

// checkLaneAges flags tasks sitting in blocked or review past the threshold.
func (ae *alertEngine) checkLaneAges(tasks []*models.Task, now time.Time) []Alert {
	blockedLimit := time.Duration(ae.thresholds.BlockedHours) * time.Hour
	reviewLimit := time.Duration(ae.thresholds.ReviewDays) * 24 * time.Hour

	var alerts []Alert
	for _, t := range tasks {
		age := core.Age(t, now)
		switch {
		case t.Lane == models.LaneBlocked && age > blockedLimit:
			alerts = append(alerts, Alert{
				ID:          "blocked-" + t.ID,
				Condition:   ConditionBlockedTooLong,
				Severity:    SeverityHigh,
				Message:     fmt.Sprintf("task %s has been blocked for more than %d hours", t.ID, ae.thresholds.BlockedHours),
				TriggeredAt: now,
			})
		case t.Lane == models.LaneReview && age > reviewLimit:
			alerts = append(alerts, Alert{
				ID:          "review-" + t.ID,
				Condition:   ConditionReviewTooLong,
				Severity:    SeverityMedium,
				Message:     fmt.Sprintf("task %s has been in review for more than %d days", t.ID, ae.thresholds.ReviewDays),
				TriggeredAt: now,
			})
		}
	}
	return alerts
}

// checkOfflineAgents flags agents that vanished while still owning open work.
func (ae *alertEngine) checkOfflineAgents(agents []*models.AgentView, now time.Time) []Alert {
	limit := time.Duration(ae.thresholds.OfflineMinutes) * time.Minute
	var alerts []Alert
	for _, a := range agents {
		if a.Status != models.AgentOffline || a.Workload == 0 || now.Sub(a.LastSeenAt) <= limit {
			continue
		}
		alerts = append(alerts, Alert{
			ID:          "offline-" + a.ID,
			Condition:   ConditionAgentOffline,
			Severity:    SeverityHigh,
			Message:     fmt.Sprintf("agent %s has been offline for more than %d minutes with %d open tasks", a.ID, ae.thresholds.OfflineMinutes, a.Workload),
			TriggeredAt: now,
		})
	}
	return alerts
}

func (ae *alertEngine) checkDeadLetters(notes []*models.Notification, now time.Time) []Alert {
	count := 0
	for _, n := range notes {
		if n.DeadLettered {
			count++
		}
	}
	if count == 0 {
		return nil
	}
	return []Alert{{
		ID:          "dead-letters",
		Condition:   ConditionDeadLettered,
		Severity:    SeverityMedium,
		Message:     fmt.Sprintf("%d notifications could not be delivered and were dead-lettered", count),
		TriggeredAt: now,
	}}
}

func (ae *alertEngine) checkQueueSize(tasks []*models.Task, now time.Time) []Alert {
	queued := 0
	for _, t := range tasks {
		if t.Lane == models.LaneQueued {
			queued++
		}
	}
	if queued <= ae.thresholds.MaxQueueSize {
		return nil
	}
	return []Alert{{
		ID:          "queue-size",
		Condition:   ConditionQueueTooLarge,
		Severity:    SeverityLow,
		Message:     fmt.Sprintf("queue has %d tasks, exceeding the maximum of %d", queued, ae.thresholds.MaxQueueSize),
		TriggeredAt: now,
	}}
}

func severityRank(s AlertSeverity) int {
	switch s {
	case SeverityHigh:
		return 0
	case SeverityMedium:
		return 1
	default:
		return 2
	}
}

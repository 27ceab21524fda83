package models

import "time"

// NotificationType classifies the event a notification reports.
type NotificationType string

const (
	NotifyTaskAssigned  NotificationType = "task-assigned"
	NotifyTaskComment   NotificationType = "task-comment"
	NotifyTaskCompleted NotificationType = "task-completed"
	NotifyTaskBlocked   NotificationType = "task-blocked"
	NotifyTaskUnblocked NotificationType = "task-unblocked"
	NotifyMention       NotificationType = "mention"
)

// Notification is a message for one agent. Delivered tracks the push to the
// agent's endpoint; Read tracks the agent's acknowledgment. They are
// independent.
type Notification struct {
	ID            string           `yaml:"id" json:"id"`
	AgentID       string           `yaml:"agent_id" json:"agentId"`
	Type          NotificationType `yaml:"type" json:"type"`
	Title         string           `yaml:"title" json:"title"`
	Text          string           `yaml:"text" json:"text"`
	TaskID        string           `yaml:"task_id,omitempty" json:"taskId,omitempty"`
	Read          bool             `yaml:"read" json:"read"`
	Delivered     bool             `yaml:"delivered" json:"delivered"`
	Attempts      int              `yaml:"attempts" json:"attempts"`
	NextAttemptAt time.Time        `yaml:"next_attempt_at" json:"nextAttemptAt"`
	LastError     string           `yaml:"last_error,omitempty" json:"lastError,omitempty"`
	DeadLettered  bool             `yaml:"dead_lettered" json:"deadLettered"`
	CreatedAt     time.Time        `yaml:"created_at" json:"createdAt"`
	DeliveredAt   *time.Time       `yaml:"delivered_at,omitempty" json:"deliveredAt,omitempty"`
}

// Pending reports whether the dispatcher should still try to push n.
func (n *Notification) Pending() bool {
	return !n.Delivered && !n.DeadLettered
}

package core

import (
	"sort"
	"strings"
	"time"

	"github.com/clawcontrol/claw/pkg/models"
	"github.com/google/uuid"
)

// DefaultRetention is how long notifications are kept before Prune drops them.
const DefaultRetention = 7 * 24 * time.Hour

// NotificationStore owns notification records.
type NotificationStore interface {
	Enqueue(n models.Notification) (*models.Notification, error)
	// List returns an agent's notifications newest first. An empty agentID
	// lists every agent's notifications.
	List(agentID string, unreadOnly bool) ([]*models.Notification, error)
	// Due returns pending notifications whose next attempt is at or before now,
	// oldest first.
	Due(now time.Time) ([]*models.Notification, error)
	MarkRead(agentID, id string) (*models.Notification, error)
	MarkAllRead(agentID string) (int, error)
	MarkDelivered(id string, at time.Time) error
	// MarkFailed records a failed attempt. deadLetter stops further attempts.
	MarkFailed(id string, cause string, nextAttempt time.Time, deadLetter bool) (*models.Notification, error)
	Prune(now time.Time) ([]string, error)
}

type notificationStore struct {
	coll      Collection[models.Notification]
	retention time.Duration
	now       Clock
}

// NewNotificationStore creates a NotificationStore over coll. A zero
// retention uses DefaultRetention.
func NewNotificationStore(coll Collection[models.Notification], retention time.Duration, now Clock) NotificationStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if now == nil {
		now = systemClock
	}
	return &notificationStore{coll: coll, retention: retention, now: now}
}

func (s *notificationStore) Enqueue(n models.Notification) (*models.Notification, error) {
	n.AgentID = strings.TrimSpace(n.AgentID)
	if n.AgentID == "" {
		return nil, invalid("agentId", "must not be empty")
	}
	if n.Type == "" {
		return nil, invalid("type", "must not be empty")
	}
	now := s.now()
	n.ID = uuid.NewString()
	n.CreatedAt = now
	n.NextAttemptAt = now
	n.Read = false
	n.Delivered = false
	n.DeliveredAt = nil
	n.Attempts = 0
	n.DeadLettered = false
	n.LastError = ""

	err := withLocked(s.coll, "enqueuing notification", func(notes map[string]models.Notification) (bool, error) {
		notes[n.ID] = n
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *notificationStore) List(agentID string, unreadOnly bool) ([]*models.Notification, error) {
	var out []*models.Notification
	err := withLocked(s.coll, "listing notifications", func(notes map[string]models.Notification) (bool, error) {
		for _, n := range notes {
			if agentID != "" && n.AgentID != agentID {
				continue
			}
			if unreadOnly && n.Read {
				continue
			}
			n := n
			out = append(out, &n)
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *notificationStore) Due(now time.Time) ([]*models.Notification, error) {
	var out []*models.Notification
	err := withLocked(s.coll, "listing due notifications", func(notes map[string]models.Notification) (bool, error) {
		for _, n := range notes {
			if n.Pending() && !n.NextAttemptAt.After(now) {
				n := n
				out = append(out, &n)
			}
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *notificationStore) MarkRead(agentID, id string) (*models.Notification, error) {
	var updated models.Notification
	err := withLocked(s.coll, "marking notification read", func(notes map[string]models.Notification) (bool, error) {
		n, ok := notes[id]
		if !ok || n.AgentID != agentID {
			return false, notFound("notification", id)
		}
		updated = n
		if n.Read {
			return false, nil
		}
		n.Read = true
		notes[id] = n
		updated = n
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *notificationStore) MarkAllRead(agentID string) (int, error) {
	count := 0
	err := withLocked(s.coll, "marking notifications read", func(notes map[string]models.Notification) (bool, error) {
		for id, n := range notes {
			if n.AgentID == agentID && !n.Read {
				n.Read = true
				notes[id] = n
				count++
			}
		}
		return count > 0, nil
	})
	return count, err
}

func (s *notificationStore) MarkDelivered(id string, at time.Time) error {
	return withLocked(s.coll, "marking notification delivered", func(notes map[string]models.Notification) (bool, error) {
		n, ok := notes[id]
		if !ok {
			return false, notFound("notification", id)
		}
		n.Delivered = true
		n.DeliveredAt = &at
		n.Attempts++
		n.LastError = ""
		notes[id] = n
		return true, nil
	})
}

func (s *notificationStore) MarkFailed(id string, cause string, nextAttempt time.Time, deadLetter bool) (*models.Notification, error) {
	var updated models.Notification
	err := withLocked(s.coll, "recording delivery failure", func(notes map[string]models.Notification) (bool, error) {
		n, ok := notes[id]
		if !ok {
			return false, notFound("notification", id)
		}
		n.Attempts++
		n.LastError = cause
		n.NextAttemptAt = nextAttempt
		n.DeadLettered = deadLetter
		notes[id] = n
		updated = n
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Prune deletes notifications older than the retention window, whatever
// their read or delivery state.
func (s *notificationStore) Prune(now time.Time) ([]string, error) {
	cutoff := now.Add(-s.retention)
	var removed []string
	err := withLocked(s.coll, "pruning notifications", func(notes map[string]models.Notification) (bool, error) {
		for id, n := range notes {
			if n.CreatedAt.Before(cutoff) {
				delete(notes, id)
				removed = append(removed, id)
			}
		}
		return len(removed) > 0, nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(removed)
	return removed, nil
}

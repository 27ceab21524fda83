package core

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/clawcontrol/claw/pkg/models"
)

// ErrNoRoute is returned by a Deliverer that has no way to reach the agent.
// The notification stays pending and no attempt is counted.
var ErrNoRoute = errors.New("no delivery route for agent")

// Deliverer pushes one notification to its agent. Implementations live in
// internal/delivery.
type Deliverer interface {
	Deliver(ctx context.Context, agent *models.AgentView, n *models.Notification) error
}

// DispatcherConfig tunes delivery. Zero fields take the defaults below.
type DispatcherConfig struct {
	Interval       time.Duration
	Timeout        time.Duration
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

const (
	DefaultDispatchInterval = 5 * time.Second
	DefaultDeliveryTimeout  = 3 * time.Second
	DefaultMaxAttempts      = 8
	DefaultBackoffInitial   = 5 * time.Second
	DefaultBackoffMax       = 5 * time.Minute
)

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultDispatchInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultDeliveryTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BackoffInitial <= 0 {
		c.BackoffInitial = DefaultBackoffInitial
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = DefaultBackoffMax
	}
	return c
}

// DispatchResult summarizes one dispatch tick.
type DispatchResult struct {
	Delivered    int
	Failed       int
	DeadLettered int
	NoRoute      int
}

// HousekeepingResult summarizes one housekeeping pass.
type HousekeepingResult struct {
	PrunedNotifications []string
	OfflineAgents       []string
}

// Dispatcher is the background loop pushing pending notifications. It writes
// only through the notification store and agent registry.
type Dispatcher struct {
	notes     NotificationStore
	agents    AgentRegistry
	deliverer Deliverer
	events    EventLogger
	metrics   Recorder
	logger    *slog.Logger
	cfg       DispatcherConfig
	now       Clock
}

// NewDispatcher creates a Dispatcher. events, metrics and logger may be nil.
func NewDispatcher(notes NotificationStore, agents AgentRegistry, deliverer Deliverer, events EventLogger, metrics Recorder, logger *slog.Logger, cfg DispatcherConfig, now Clock) *Dispatcher {
	if metrics == nil {
		metrics = NopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = systemClock
	}
	return &Dispatcher{
		notes:     notes,
		agents:    agents,
		deliverer: deliverer,
		events:    events,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg.withDefaults(),
		now:       now,
	}
}

// Run dispatches and housekeeps on every tick until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	d.logger.Info("notification dispatcher started", "interval", d.cfg.Interval, "max_attempts", d.cfg.MaxAttempts)
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("notification dispatcher stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := d.DispatchOnce(ctx); err != nil {
				d.logger.Error("dispatch tick failed", "error", err)
			}
			if _, err := d.Housekeep(); err != nil {
				d.logger.Error("housekeeping failed", "error", err)
			}
		}
	}
}

// DispatchOnce attempts every due notification once. A failure on one
// notification never stops the others.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (DispatchResult, error) {
	var res DispatchResult
	now := d.now()
	due, err := d.notes.Due(now)
	if err != nil {
		return res, err
	}

	agents := make(map[string]*models.AgentView)
	for _, n := range due {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		agent, ok := agents[n.AgentID]
		if !ok {
			agent, err = d.agents.Get(n.AgentID)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return res, err
			}
			agents[n.AgentID] = agent
		}
		if agent == nil {
			res.NoRoute++
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
		deliverErr := d.deliverer.Deliver(callCtx, agent, n)
		cancel()

		switch {
		case deliverErr == nil:
			if err := d.notes.MarkDelivered(n.ID, d.now()); err != nil {
				return res, err
			}
			res.Delivered++
			d.metrics.IncNotification("delivered")
			d.logEvent("notification.delivered", map[string]any{
				"notification_id": n.ID, "agent_id": n.AgentID, "type": string(n.Type), "attempts": n.Attempts + 1,
			})
		case errors.Is(deliverErr, ErrNoRoute):
			res.NoRoute++
		default:
			if err := d.recordFailure(n, deliverErr, now, &res); err != nil {
				return res, err
			}
		}
	}
	return res, nil
}

func (d *Dispatcher) recordFailure(n *models.Notification, cause error, now time.Time, res *DispatchResult) error {
	attempts := n.Attempts + 1
	dead := attempts >= d.cfg.MaxAttempts
	next := now.Add(RetryDelay(d.cfg, attempts))
	derr := &DeliveryError{NotificationID: n.ID, AgentID: n.AgentID, Err: cause}

	if _, err := d.notes.MarkFailed(n.ID, cause.Error(), next, dead); err != nil {
		return err
	}
	data := map[string]any{
		"notification_id": n.ID,
		"agent_id":        n.AgentID,
		"type":            string(n.Type),
		"attempts":        attempts,
		"error":           cause.Error(),
	}
	if dead {
		res.DeadLettered++
		d.metrics.IncNotification("dead_lettered")
		d.logger.Error("notification dead-lettered", "error", derr, "attempts", attempts)
		d.logEvent("notification.dead_lettered", data)
		return nil
	}
	res.Failed++
	d.metrics.IncNotification("failed")
	d.logger.Warn("notification delivery failed", "error", derr, "attempts", attempts, "next_attempt_at", next)
	data["next_attempt_at"] = next.Format(time.RFC3339)
	d.logEvent("notification.failed", data)
	return nil
}

// Housekeep prunes expired notifications and marks stale agents offline.
func (d *Dispatcher) Housekeep() (HousekeepingResult, error) {
	var res HousekeepingResult
	now := d.now()

	pruned, err := d.notes.Prune(now)
	if err != nil {
		return res, err
	}
	res.PrunedNotifications = pruned
	for range pruned {
		d.metrics.IncNotification("pruned")
	}
	if len(pruned) > 0 {
		d.logEvent("notification.pruned", map[string]any{"count": len(pruned)})
	}

	offline, err := d.agents.PruneStale(now)
	if err != nil {
		return res, err
	}
	res.OfflineAgents = offline
	for _, id := range offline {
		d.logEvent("agent.offline", map[string]any{"agent_id": id})
	}
	return res, nil
}

func (d *Dispatcher) logEvent(eventType string, data map[string]any) {
	if d.events == nil {
		return
	}
	if err := d.events.LogEvent(eventType, data); err != nil {
		d.logger.Warn("writing event failed", "event", eventType, "error", err)
	}
}

// RetryDelay is the wait before the next attempt after the given number of
// failed attempts: BackoffInitial doubled per attempt, capped at BackoffMax.
func RetryDelay(cfg DispatcherConfig, attempts int) time.Duration {
	cfg = cfg.withDefaults()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.BackoffInitial
	b.MaxInterval = cfg.BackoffMax
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	delay := cfg.BackoffInitial
	for i := 0; i < attempts; i++ {
		delay = b.NextBackOff()
	}
	return delay
}

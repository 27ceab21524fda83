package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/clawcontrol/claw/pkg/models"
	"github.com/redis/go-redis/v9"
)

// ErrNoSubscriber is returned when a publish reached nobody and the
// deliverer was configured to require a listener.
var ErrNoSubscriber = errors.New("no subscriber on channel")

// NotificationChannel returns the Redis channel an agent listens on.
func NotificationChannel(instance, agentID string) string {
	return fmt.Sprintf("claw:%s:agent:%s:notifications", instance, agentID)
}

// RedisDeliverer publishes notifications on per-agent Redis channels.
type RedisDeliverer struct {
	rdb               *redis.Client
	instance          string
	requireSubscriber bool
}

// NewRedisDeliverer creates a RedisDeliverer namespaced by instance. When
// requireSubscriber is set a publish with zero receivers counts as a failure.
func NewRedisDeliverer(opts *redis.Options, instance string, requireSubscriber bool) (*RedisDeliverer, error) {
	if instance == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}
	return &RedisDeliverer{
		rdb:               redis.NewClient(opts),
		instance:          instance,
		requireSubscriber: requireSubscriber,
	}, nil
}

// Ping verifies Redis connectivity.
func (d *RedisDeliverer) Ping(ctx context.Context) error {
	return d.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (d *RedisDeliverer) Close() error {
	return d.rdb.Close()
}

func (d *RedisDeliverer) Deliver(ctx context.Context, agent *models.AgentView, n *models.Notification) error {
	body, err := encodePayload(agent.ID, n)
	if err != nil {
		return err
	}
	channel := NotificationChannel(d.instance, agent.ID)
	receivers, err := d.rdb.Publish(ctx, channel, body).Result()
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", channel, err)
	}
	if receivers == 0 && d.requireSubscriber {
		return fmt.Errorf("publishing to %s: %w", channel, ErrNoSubscriber)
	}
	return nil
}

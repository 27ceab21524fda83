package delivery

import (
	"context"
	"fmt"

	"github.com/clawcontrol/claw/internal/core"
	"github.com/clawcontrol/claw/pkg/models"
)

// MultiDeliverer routes each notification by agent: agents with an Endpoint
// get an HTTP push, the rest go to Redis when it is configured. Agents with
// neither get core.ErrNoRoute and keep their notifications for polling.
type MultiDeliverer struct {
	web    core.Deliverer
	pubsub core.Deliverer
}

// NewMultiDeliverer combines the sinks. Either may be nil.
func NewMultiDeliverer(web, pubsub core.Deliverer) *MultiDeliverer {
	return &MultiDeliverer{web: web, pubsub: pubsub}
}

func (m *MultiDeliverer) Deliver(ctx context.Context, agent *models.AgentView, n *models.Notification) error {
	switch {
	case agent.Endpoint != "" && m.web != nil:
		return m.web.Deliver(ctx, agent, n)
	case m.pubsub != nil:
		return m.pubsub.Deliver(ctx, agent, n)
	default:
		return fmt.Errorf("agent %s: %w", agent.ID, core.ErrNoRoute)
	}
}

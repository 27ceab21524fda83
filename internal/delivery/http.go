package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/clawcontrol/claw/internal/core"
	"github.com/clawcontrol/claw/pkg/models"
)

// HTTPDeliverer POSTs notifications to the agent's Endpoint. Any 2xx
// response counts as delivered.
type HTTPDeliverer struct {
	client *http.Client
}

// NewHTTPDeliverer creates an HTTPDeliverer. A nil client uses a default
// client; per-call timeouts come from the context.
func NewHTTPDeliverer(client *http.Client) *HTTPDeliverer {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPDeliverer{client: client}
}

func (d *HTTPDeliverer) Deliver(ctx context.Context, agent *models.AgentView, n *models.Notification) error {
	if agent.Endpoint == "" {
		return fmt.Errorf("agent %s has no endpoint: %w", agent.ID, core.ErrNoRoute)
	}
	body, err := encodePayload(agent.ID, n)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, agent.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request for %s: %w", agent.Endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Claw-Notification", n.ID)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to %s: %w", agent.Endpoint, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("endpoint %s returned status %d", agent.Endpoint, resp.StatusCode)
	}
	return nil
}

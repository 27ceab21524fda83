package delivery

import (
	"encoding/json"
	"fmt"

	"github.com/clawcontrol/claw/pkg/models"
)

// Payload is the JSON body pushed to an agent.
type Payload struct {
	Notification *models.Notification `json:"notification"`
	AgentID      string               `json:"agentId"`
}

func encodePayload(agentID string, n *models.Notification) ([]byte, error) {
	body, err := json.Marshal(Payload{Notification: n, AgentID: agentID})
	if err != nil {
		return nil, fmt.Errorf("encoding notification %s: %w", n.ID, err)
	}
	return body, nil
}

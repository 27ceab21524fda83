package models

import "time"

// Role is a capability tag used to route tasks to agents.
type Role string

const (
	RoleDesigner  Role = "designer"
	RoleFrontend  Role = "frontend"
	RoleBackend   Role = "backend"
	RoleQA        Role = "qa"
	RoleContent   Role = "content"
	RoleDevOps    Role = "devops"
	RoleArchitect Role = "architect"
	RolePM        Role = "pm"
)

// AgentStatus is the liveness of an agent as seen by the board.
type AgentStatus string

const (
	AgentOnline  AgentStatus = "online"
	AgentOffline AgentStatus = "offline"
	AgentBusy    AgentStatus = "busy"
)

// Agent is the persisted registry record. Status here is only the hint left
// by stale pruning; readers use AgentView for the computed status.
type Agent struct {
	ID           string      `yaml:"id" json:"id"`
	Name         string      `yaml:"name" json:"name"`
	Roles        []Role      `yaml:"roles" json:"roles"`
	Emoji        string      `yaml:"emoji,omitempty" json:"emoji,omitempty"`
	Description  string      `yaml:"description,omitempty" json:"description,omitempty"`
	Endpoint     string      `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Status       AgentStatus `yaml:"status,omitempty" json:"status,omitempty"`
	CurrentTask  string      `yaml:"current_task,omitempty" json:"currentTask,omitempty"`
	LastSeenAt   time.Time   `yaml:"last_seen_at" json:"lastSeenAt"`
	RegisteredAt time.Time   `yaml:"registered_at" json:"registeredAt"`
}

// HasRole reports whether the agent carries role r.
func (a *Agent) HasRole(r Role) bool {
	for _, have := range a.Roles {
		if have == r {
			return true
		}
	}
	return false
}

// AgentView is the read model returned by the registry: the stored agent
// plus values derived at read time from heartbeats and the task store.
type AgentView struct {
	Agent
	ActiveTasks int `json:"activeTasks"`
	Workload    int `json:"workload"`
}

// AgentPatch is a partial update of an agent's profile. Nil fields are left
// untouched.
type AgentPatch struct {
	Name        *string `json:"name,omitempty"`
	Roles       *[]Role `json:"roles,omitempty"`
	Emoji       *string `json:"emoji,omitempty"`
	Description *string `json:"description,omitempty"`
	Endpoint    *string `json:"endpoint,omitempty"`
}

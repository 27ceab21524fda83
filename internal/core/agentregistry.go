package core

import (
	"sort"
	"strings"
	"time"

	"github.com/clawcontrol/claw/pkg/models"
)

// DefaultStaleTimeout is how long an agent may go without a heartbeat before
// it reads as offline.
const DefaultStaleTimeout = 5 * time.Minute

// AgentRegistry owns agent records. Status, claims and workload in the
// returned views are derived at read time; Task.Owner is the source of truth.
type AgentRegistry interface {
	Register(agent models.Agent) (*models.AgentView, error)
	Update(id string, patch models.AgentPatch) (*models.AgentView, error)
	Heartbeat(id string, at time.Time) (*models.AgentView, error)
	SetCurrentTask(id, taskID string) error
	Get(id string) (*models.AgentView, error)
	List() ([]*models.AgentView, error)
	ListByRole(role models.Role) ([]*models.AgentView, error)
	PruneStale(now time.Time) ([]string, error)
	Remove(id string) error
}

// TaskLister is the read side of the task store used to derive workloads.
type TaskLister interface {
	List(filter models.TaskFilter) ([]*models.Task, error)
}

type agentRegistry struct {
	coll         Collection[models.Agent]
	tasks        TaskLister
	staleTimeout time.Duration
	now          Clock
}

// NewAgentRegistry creates an AgentRegistry over coll. A zero staleTimeout
// uses DefaultStaleTimeout.
func NewAgentRegistry(coll Collection[models.Agent], tasks TaskLister, staleTimeout time.Duration, now Clock) AgentRegistry {
	if staleTimeout <= 0 {
		staleTimeout = DefaultStaleTimeout
	}
	if now == nil {
		now = systemClock
	}
	return &agentRegistry{coll: coll, tasks: tasks, staleTimeout: staleTimeout, now: now}
}

func (r *agentRegistry) Register(agent models.Agent) (*models.AgentView, error) {
	agent.ID = strings.TrimSpace(agent.ID)
	if agent.ID == "" {
		return nil, invalid("id", "must not be empty")
	}
	if strings.ContainsAny(agent.ID, " \t\n/") {
		return nil, invalid("id", "must not contain whitespace or slashes")
	}
	agent.Roles = normalizeRoles(agent.Roles)
	if agent.Name == "" {
		agent.Name = agent.ID
	}

	var stored models.Agent
	err := withLocked(r.coll, "registering agent", func(agents map[string]models.Agent) (bool, error) {
		now := r.now()
		if existing, ok := agents[agent.ID]; ok {
			agent.RegisteredAt = existing.RegisteredAt
			if agent.CurrentTask == "" {
				agent.CurrentTask = existing.CurrentTask
			}
		} else {
			agent.RegisteredAt = now
		}
		agent.LastSeenAt = now
		agent.Status = models.AgentOnline
		agents[agent.ID] = agent
		stored = agent
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return r.view(stored)
}

// Update edits the profile of an existing agent. LastSeenAt and the stored
// status are kept; only Register and Heartbeat count as signs of life.
func (r *agentRegistry) Update(id string, patch models.AgentPatch) (*models.AgentView, error) {
	var stored models.Agent
	err := withLocked(r.coll, "updating agent", func(agents map[string]models.Agent) (bool, error) {
		a, ok := agents[id]
		if !ok {
			return false, notFound("agent", id)
		}
		if patch.Name != nil {
			a.Name = strings.TrimSpace(*patch.Name)
			if a.Name == "" {
				a.Name = a.ID
			}
		}
		if patch.Roles != nil {
			a.Roles = normalizeRoles(*patch.Roles)
		}
		if patch.Emoji != nil {
			a.Emoji = *patch.Emoji
		}
		if patch.Description != nil {
			a.Description = *patch.Description
		}
		if patch.Endpoint != nil {
			a.Endpoint = strings.TrimSpace(*patch.Endpoint)
		}
		agents[id] = a
		stored = a
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return r.view(stored)
}

func (r *agentRegistry) Heartbeat(id string, at time.Time) (*models.AgentView, error) {
	if at.IsZero() {
		at = r.now()
	}
	var stored models.Agent
	err := withLocked(r.coll, "recording heartbeat", func(agents map[string]models.Agent) (bool, error) {
		a, ok := agents[id]
		if !ok {
			return false, notFound("agent", id)
		}
		a.LastSeenAt = at
		a.Status = models.AgentOnline
		agents[id] = a
		stored = a
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return r.view(stored)
}

func (r *agentRegistry) SetCurrentTask(id, taskID string) error {
	return withLocked(r.coll, "setting current task", func(agents map[string]models.Agent) (bool, error) {
		a, ok := agents[id]
		if !ok {
			return false, notFound("agent", id)
		}
		if a.CurrentTask == taskID {
			return false, nil
		}
		a.CurrentTask = taskID
		agents[id] = a
		return true, nil
	})
}

func (r *agentRegistry) Get(id string) (*models.AgentView, error) {
	var stored models.Agent
	err := withLocked(r.coll, "loading agent", func(agents map[string]models.Agent) (bool, error) {
		a, ok := agents[id]
		if !ok {
			return false, notFound("agent", id)
		}
		stored = a
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return r.view(stored)
}

func (r *agentRegistry) List() ([]*models.AgentView, error) {
	agents, err := r.loadAll()
	if err != nil {
		return nil, err
	}
	return r.views(agents)
}

func (r *agentRegistry) ListByRole(role models.Role) ([]*models.AgentView, error) {
	all, err := r.List()
	if err != nil {
		return nil, err
	}
	role = models.Role(strings.ToLower(string(role)))
	var out []*models.AgentView
	for _, v := range all {
		if v.HasRole(role) {
			out = append(out, v)
		}
	}
	return out, nil
}

// PruneStale leaves the offline hint on agents whose heartbeat is older than
// the stale timeout and returns their ids. Records are never deleted here.
func (r *agentRegistry) PruneStale(now time.Time) ([]string, error) {
	var marked []string
	err := withLocked(r.coll, "pruning stale agents", func(agents map[string]models.Agent) (bool, error) {
		for id, a := range agents {
			if now.Sub(a.LastSeenAt) < r.staleTimeout || a.Status == models.AgentOffline {
				continue
			}
			a.Status = models.AgentOffline
			agents[id] = a
			marked = append(marked, id)
		}
		return len(marked) > 0, nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(marked)
	return marked, nil
}

func (r *agentRegistry) Remove(id string) error {
	return withLocked(r.coll, "removing agent", func(agents map[string]models.Agent) (bool, error) {
		if _, ok := agents[id]; !ok {
			return false, notFound("agent", id)
		}
		delete(agents, id)
		return true, nil
	})
}

func (r *agentRegistry) loadAll() ([]models.Agent, error) {
	var out []models.Agent
	err := withLocked(r.coll, "listing agents", func(agents map[string]models.Agent) (bool, error) {
		for _, a := range agents {
			out = append(out, a)
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *agentRegistry) view(a models.Agent) (*models.AgentView, error) {
	views, err := r.views([]models.Agent{a})
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

// views derives status, claim and workload for each agent from one snapshot
// of the task store.
func (r *agentRegistry) views(agents []models.Agent) ([]*models.AgentView, error) {
	tasks, err := r.tasks.List(models.TaskFilter{})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.Task, len(tasks))
	owned := make(map[string][]*models.Task)
	for _, t := range tasks {
		byID[t.ID] = t
		if t.Owner != "" {
			owned[t.Owner] = append(owned[t.Owner], t)
		}
	}

	now := r.now()
	out := make([]*models.AgentView, 0, len(agents))
	for _, a := range agents {
		v := &models.AgentView{Agent: a}
		for _, t := range owned[a.ID] {
			if t.Lane != models.LaneDone {
				v.Workload++
			}
			if t.Lane == models.LaneDevelopment {
				v.ActiveTasks++
			}
		}
		if a.CurrentTask != "" {
			t, ok := byID[a.CurrentTask]
			if !ok || t.Owner != a.ID || t.Lane == models.LaneDone {
				v.CurrentTask = ""
			}
		}
		v.Status = computeStatus(&v.Agent, now, r.staleTimeout)
		out = append(out, v)
	}
	return out, nil
}

func computeStatus(a *models.Agent, now time.Time, staleTimeout time.Duration) models.AgentStatus {
	if a.LastSeenAt.IsZero() || now.Sub(a.LastSeenAt) >= staleTimeout {
		return models.AgentOffline
	}
	if a.CurrentTask != "" {
		return models.AgentBusy
	}
	return models.AgentOnline
}

func normalizeRoles(roles []models.Role) []models.Role {
	seen := make(map[models.Role]bool, len(roles))
	out := make([]models.Role, 0, len(roles))
	for _, r := range roles {
		r = models.Role(strings.ToLower(strings.TrimSpace(string(r))))
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}

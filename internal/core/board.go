package core

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/clawcontrol/claw/pkg/models"
)

// BoardService is the single entry point the HTTP bridge, MCP server and CLI
// use. It composes the stores, the resolver and notifications, and records an
// event for every mutation.
type BoardService interface {
	CreateTask(draft models.TaskDraft) (*models.Task, error)
	GetTask(id string) (*models.Task, error)
	ListTasks(filter models.TaskFilter, byPriority bool) ([]*models.Task, error)
	UpdateTask(id string, patch models.TaskPatch) (*models.Task, error)
	RemoveTask(id string) error
	AddComment(id, by, text string) (*models.Comment, error)
	LogTime(id string, entry models.TimeEntry) (*models.TimeEntry, error)
	Assign(id, agentID, by string) (*models.Task, error)
	AutoAssign(id, by string) (*AssignResult, error)
	NextTask(agentID string) (*models.Task, error)
	ClaimTask(agentID, taskID string) (*models.Task, error)

	RegisterAgent(agent models.Agent) (*models.AgentView, error)
	UpdateAgent(id string, patch models.AgentPatch) (*models.AgentView, error)
	Heartbeat(id string) (*models.AgentView, error)
	GetAgent(id string) (*models.AgentView, error)
	ListAgents(role models.Role) ([]*models.AgentView, error)
	RemoveAgent(id string) error

	Notifications(agentID string, unreadOnly bool) ([]*models.Notification, error)
	MarkNotificationRead(agentID, id string) (*models.Notification, error)
	MarkAllNotificationsRead(agentID string) (int, error)

	Snapshot() (*Snapshot, error)
}

// AssignResult reports the outcome of AutoAssign. AgentID is empty when no
// role matched or no online agent carried it.
type AssignResult struct {
	Task    *models.Task `json:"task"`
	AgentID string       `json:"agentId,omitempty"`
	Role    models.Role  `json:"role,omitempty"`
}

// Snapshot is a point-in-time view of the whole board.
type Snapshot struct {
	Lanes  map[models.Lane][]*models.Task `json:"lanes"`
	Agents []*models.AgentView            `json:"agents"`
}

// BoardConfig holds the workflow switches.
type BoardConfig struct {
	RequireQAForDone   bool
	AutoAssignOnCreate bool
}

// BoardDeps are the collaborators of the board service. Events, Metrics and
// Logger may be nil.
type BoardDeps struct {
	Tasks         TaskStore
	Agents        AgentRegistry
	Resolver      AssignmentResolver
	Notifications NotificationStore
	Events        EventLogger
	Metrics       Recorder
	Logger        *slog.Logger
}

type boardService struct {
	tasks    TaskStore
	agents   AgentRegistry
	resolver AssignmentResolver
	notes    NotificationStore
	events   EventLogger
	metrics  Recorder
	logger   *slog.Logger
	cfg      BoardConfig
	// mu serializes multi-step operations within this process.
	mu sync.Mutex
}

// NewBoardService wires a BoardService.
func NewBoardService(deps BoardDeps, cfg BoardConfig) BoardService {
	if deps.Metrics == nil {
		deps.Metrics = NopRecorder{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &boardService{
		tasks:    deps.Tasks,
		agents:   deps.Agents,
		resolver: deps.Resolver,
		notes:    deps.Notifications,
		events:   deps.Events,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		cfg:      cfg,
	}
}

var mentionPattern = regexp.MustCompile(`(?:^|[^A-Za-z0-9_.@])@([A-Za-z0-9][A-Za-z0-9_-]*)`)

// Mentions returns the unique lower-cased agent ids mentioned as @id in text.
func Mentions(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range mentionPattern.FindAllStringSubmatch(text, -1) {
		id := strings.ToLower(m[1])
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// matchMentions maps lower-cased mention names onto registered agent ids,
// ignoring case. Names matching no agent are dropped.
func matchMentions(names []string, agents []*models.AgentView) []string {
	byName := make(map[string]string, len(agents))
	for _, a := range agents {
		byName[strings.ToLower(a.ID)] = a.ID
	}
	var out []string
	for _, name := range names {
		if id, ok := byName[name]; ok {
			out = append(out, id)
		}
	}
	return out
}

// --- Tasks ---

func (b *boardService) CreateTask(draft models.TaskDraft) (*models.Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if draft.Owner != "" {
		if err := b.requireAgent("owner", draft.Owner); err != nil {
			return nil, err
		}
	}

	waiting := false
	if draft.Lane == "" && len(draft.DependsOn) > 0 {
		unresolved, err := b.tasks.UnresolvedDependencies(&models.Task{DependsOn: draft.DependsOn})
		if err != nil {
			return nil, err
		}
		if len(unresolved) > 0 {
			draft.Lane = models.LaneBlocked
			waiting = true
		}
	}

	task, err := b.tasks.Create(draft)
	if err != nil {
		return nil, err
	}
	data := map[string]any{
		"task_id":  task.ID,
		"title":    task.Title,
		"lane":     string(task.Lane),
		"priority": string(task.Priority),
		"owner":    task.Owner,
		"by":       draft.By,
	}
	if waiting {
		data["note"] = "waiting on dependencies"
	}
	b.event("task.created", data)
	b.metrics.IncTaskEvent("created")

	if task.Owner != "" {
		b.notifyAssigned(task)
	} else if b.cfg.AutoAssignOnCreate && (task.Lane == models.LaneQueued || task.Lane == models.LaneProposed) {
		res, err := b.autoAssign(task, "system")
		if err != nil {
			b.logger.Warn("auto-assign on create failed", "task_id", task.ID, "error", err)
		} else {
			task = res.Task
		}
	}

	b.refreshLaneCounts()
	return task, nil
}

func (b *boardService) GetTask(id string) (*models.Task, error) {
	return b.tasks.Get(id)
}

func (b *boardService) ListTasks(filter models.TaskFilter, byPriority bool) ([]*models.Task, error) {
	tasks, err := b.tasks.List(filter)
	if err != nil {
		return nil, err
	}
	if byPriority {
		SortByPriority(tasks)
	}
	return tasks, nil
}

func (b *boardService) UpdateTask(id string, patch models.TaskPatch) (*models.Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.updateTask(id, patch)
}

func (b *boardService) updateTask(id string, patch models.TaskPatch) (*models.Task, error) {
	if patch.Lane != nil && *patch.Lane == models.LaneDone && b.cfg.RequireQAForDone && patch.By != "" {
		actor, err := b.agents.Get(patch.By)
		switch {
		case err == nil:
			if !actor.HasRole(models.RoleQA) {
				return nil, invalid("lane", "only an agent with the qa role may move a task to done (actor %s)", patch.By)
			}
		case errors.Is(err, ErrNotFound):
			// Humans acting through the UI or CLI are not registered agents.
		default:
			return nil, err
		}
	}
	if patch.Owner != nil && strings.TrimSpace(*patch.Owner) != "" {
		if err := b.requireAgent("owner", strings.TrimSpace(*patch.Owner)); err != nil {
			return nil, err
		}
	}

	change, err := b.tasks.Apply(id, patch)
	if err != nil {
		return nil, err
	}
	task := change.After
	b.metrics.IncTaskEvent("updated")

	if change.OwnerChanged() {
		b.event("task.assigned", map[string]any{
			"task_id": task.ID, "agent_id": task.Owner, "previous": change.Before.Owner, "by": patch.By,
		})
		b.metrics.IncTaskEvent("assigned")
		if task.Owner != "" {
			b.notifyAssigned(task)
		}
	}

	if change.LaneChanged() {
		b.afterLaneChange(change, patch)
		b.refreshLaneCounts()
	} else if patch.DependsOn != nil && task.Lane == models.LaneBlocked {
		// A task blocked by hand with no open dependency stays blocked.
		open, err := b.tasks.UnresolvedDependencies(change.Before)
		if err != nil {
			b.logger.Warn("checking dependencies failed", "task_id", task.ID, "error", err)
		} else if len(open) > 0 {
			b.releaseWaiting(task.ID, task.ID)
			if released, err := b.tasks.Get(task.ID); err == nil {
				task = released
			}
		}
	}
	return task, nil
}

func (b *boardService) afterLaneChange(change *TaskChange, patch models.TaskPatch) {
	task := change.After
	b.event("task.status_changed", map[string]any{
		"task_id": task.ID,
		"from":    string(change.Before.Lane),
		"to":      string(task.Lane),
		"note":    patch.Note,
		"by":      patch.By,
	})
	b.metrics.IncTaskEvent("status_changed")

	switch task.Lane {
	case models.LaneDevelopment, models.LaneReview, models.LaneDone:
		unresolved, err := b.tasks.UnresolvedDependencies(task)
		if err != nil {
			b.logger.Warn("checking dependencies failed", "task_id", task.ID, "error", err)
		} else if len(unresolved) > 0 {
			b.event("task.dependency_warning", map[string]any{
				"task_id": task.ID, "lane": string(task.Lane), "unresolved": unresolved,
			})
		}
	}

	switch task.Lane {
	case models.LaneBlocked:
		if task.Owner != "" {
			text := task.Title
			if patch.Note != "" {
				text = patch.Note
			}
			b.notify(task.Owner, models.NotifyTaskBlocked, task.ID, "Task blocked: "+task.ID, text)
		}
	case models.LaneDone:
		b.event("task.completed", map[string]any{"task_id": task.ID, "owner": task.Owner, "by": patch.By})
		b.metrics.IncTaskEvent("completed")
		if task.Owner != "" {
			b.notify(task.Owner, models.NotifyTaskCompleted, task.ID, "Task completed: "+task.ID, task.Title)
			b.releaseClaim(task.Owner, task.ID)
		}
		b.resolveDependents(task.ID)
	}
}

func (b *boardService) resolveDependents(id string) {
	unblocked, err := b.tasks.ResolveDependents(id)
	if err != nil {
		b.logger.Error("resolving dependents failed", "task_id", id, "error", err)
		return
	}
	b.announceUnblocked(unblocked, id)
}

// releaseWaiting re-checks tasks that lost an open dependency without it
// reaching done: the dependency was removed or dropped from DependsOn.
func (b *boardService) releaseWaiting(cause string, ids ...string) {
	unblocked, err := b.tasks.ReleaseResolved(ids...)
	if err != nil {
		b.logger.Error("releasing blocked tasks failed", "task_ids", ids, "error", err)
		return
	}
	b.announceUnblocked(unblocked, cause)
	if len(unblocked) > 0 {
		b.refreshLaneCounts()
	}
}

func (b *boardService) announceUnblocked(unblocked []*models.Task, cause string) {
	for _, t := range unblocked {
		b.event("task.unblocked", map[string]any{"task_id": t.ID, "resolved_by": cause})
		b.metrics.IncTaskEvent("unblocked")
		if t.Owner != "" {
			b.notify(t.Owner, models.NotifyTaskUnblocked, t.ID, "Task unblocked: "+t.ID,
				fmt.Sprintf("%s is ready: %s", t.Title, NoteDependenciesResolved))
		}
	}
}

// RemoveTask deletes the task and strips it from every DependsOn list. Tasks
// that were blocked only on it are released.
func (b *boardService) RemoveTask(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed, err := b.tasks.Get(id)
	if err != nil {
		return err
	}
	var waiting []string
	if removed.Lane != models.LaneDone {
		dependents, err := b.tasks.Dependents(id)
		if err != nil {
			return err
		}
		for _, t := range dependents {
			if t.Lane == models.LaneBlocked {
				waiting = append(waiting, t.ID)
			}
		}
	}

	if err := b.tasks.Remove(id); err != nil {
		return err
	}
	b.event("task.removed", map[string]any{"task_id": id})
	b.metrics.IncTaskEvent("removed")
	if len(waiting) > 0 {
		b.releaseWaiting(id, waiting...)
	}
	b.refreshLaneCounts()
	return nil
}

func (b *boardService) AddComment(id, by, text string) (*models.Comment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	comment, err := b.tasks.AddComment(id, by, text)
	if err != nil {
		return nil, err
	}
	task, err := b.tasks.Get(id)
	if err != nil {
		return nil, err
	}
	b.event("task.commented", map[string]any{"task_id": id, "comment_id": comment.ID, "by": comment.By})
	b.metrics.IncTaskEvent("commented")

	mentioned := make(map[string]bool)
	if names := Mentions(comment.Text); len(names) > 0 {
		agents, err := b.agents.List()
		if err != nil {
			b.logger.Warn("resolving mentions failed", "task_id", id, "error", err)
		}
		for _, agentID := range matchMentions(names, agents) {
			if strings.EqualFold(agentID, comment.By) {
				continue
			}
			mentioned[agentID] = true
			b.notify(agentID, models.NotifyMention, id,
				fmt.Sprintf("Mentioned on %s by %s", id, displayActor(comment.By)), comment.Text)
		}
	}
	if task.Owner != "" && !strings.EqualFold(task.Owner, comment.By) && !mentioned[task.Owner] {
		b.notify(task.Owner, models.NotifyTaskComment, id,
			"New comment on "+id, fmt.Sprintf("%s: %s", displayActor(comment.By), comment.Text))
	}
	return comment, nil
}

func (b *boardService) LogTime(id string, entry models.TimeEntry) (*models.TimeEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	logged, err := b.tasks.LogTime(id, entry)
	if err != nil {
		return nil, err
	}
	b.event("task.time_logged", map[string]any{"task_id": id, "agent_id": logged.AgentID, "hours": logged.Hours})
	b.metrics.IncTaskEvent("time_logged")
	return logged, nil
}

func (b *boardService) Assign(id, agentID, by string) (*models.Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return nil, invalid("agentId", "must not be empty")
	}
	if _, err := b.agents.Get(agentID); err != nil {
		return nil, err
	}
	return b.updateTask(id, models.TaskPatch{
		Owner: &agentID,
		Note:  "assigned to " + agentID,
		By:    by,
	})
}

func (b *boardService) AutoAssign(id, by string) (*AssignResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	task, err := b.tasks.Get(id)
	if err != nil {
		return nil, err
	}
	if task.Owner != "" {
		return nil, invalid("owner", "task %s is already assigned to %s", id, task.Owner)
	}
	if task.Lane == models.LaneDone {
		return nil, invalid("lane", "task %s is done", id)
	}
	return b.autoAssign(task, by)
}

func (b *boardService) autoAssign(task *models.Task, by string) (*AssignResult, error) {
	role, matched := b.resolver.MatchRole(task)
	agentID, err := b.resolver.Resolve(task)
	if err != nil {
		return nil, err
	}
	if agentID == "" {
		reason := "no role keyword matched"
		if matched {
			reason = "no online agent with role " + string(role)
		}
		b.event("task.assignment_skipped", map[string]any{"task_id": task.ID, "role": string(role), "reason": reason})
		return &AssignResult{Task: task, Role: role}, nil
	}

	if by == "" {
		by = "system"
	}
	updated, err := b.updateTask(task.ID, models.TaskPatch{
		Owner: &agentID,
		Note:  fmt.Sprintf("auto-assigned to %s (role %s)", agentID, role),
		By:    by,
	})
	if err != nil {
		return nil, err
	}
	return &AssignResult{Task: updated, AgentID: agentID, Role: role}, nil
}

// NextTask returns the work an agent should pick up: its own highest
// priority queued task, else the highest priority unowned queued task whose
// role matches one of the agent's roles. Tasks with unresolved dependencies
// are skipped. A nil task means there is nothing to do.
func (b *boardService) NextTask(agentID string) (*models.Task, error) {
	agent, err := b.agents.Get(agentID)
	if err != nil {
		return nil, err
	}
	queued, err := b.tasks.List(models.TaskFilter{Lanes: []models.Lane{models.LaneQueued}})
	if err != nil {
		return nil, err
	}
	SortByPriority(queued)

	var fallback *models.Task
	for _, t := range queued {
		unresolved, err := b.tasks.UnresolvedDependencies(t)
		if err != nil {
			return nil, err
		}
		if len(unresolved) > 0 {
			continue
		}
		if t.Owner == agent.ID {
			return t, nil
		}
		if fallback == nil && t.Owner == "" {
			if role, ok := b.resolver.MatchRole(t); ok && agent.HasRole(role) {
				fallback = t
			}
		}
	}
	return fallback, nil
}

func (b *boardService) ClaimTask(agentID, taskID string) (*models.Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.agents.Get(agentID); err != nil {
		return nil, err
	}
	task, err := b.tasks.Get(taskID)
	if err != nil {
		return nil, err
	}
	if task.Owner != "" && task.Owner != agentID {
		return nil, invalid("owner", "task %s is owned by %s", taskID, task.Owner)
	}
	if task.Lane == models.LaneDone {
		return nil, invalid("lane", "task %s is done", taskID)
	}

	dev := models.LaneDevelopment
	updated, err := b.updateTask(taskID, models.TaskPatch{
		Owner: &agentID,
		Lane:  &dev,
		Note:  "claimed by " + agentID,
		By:    agentID,
	})
	if err != nil {
		return nil, err
	}
	if err := b.agents.SetCurrentTask(agentID, taskID); err != nil {
		return nil, err
	}
	return updated, nil
}

// --- Agents ---

func (b *boardService) RegisterAgent(agent models.Agent) (*models.AgentView, error) {
	view, err := b.agents.Register(agent)
	if err != nil {
		return nil, err
	}
	b.event("agent.registered", map[string]any{"agent_id": view.ID, "roles": rolesToStrings(view.Roles)})
	b.refreshAgentCounts()
	return view, nil
}

func (b *boardService) UpdateAgent(id string, patch models.AgentPatch) (*models.AgentView, error) {
	view, err := b.agents.Update(id, patch)
	if err != nil {
		return nil, err
	}
	b.event("agent.updated", map[string]any{"agent_id": id})
	return view, nil
}

func (b *boardService) Heartbeat(id string) (*models.AgentView, error) {
	view, err := b.agents.Heartbeat(id, time.Time{})
	if err != nil {
		return nil, err
	}
	b.event("agent.heartbeat", map[string]any{"agent_id": id})
	b.refreshAgentCounts()
	return view, nil
}

func (b *boardService) GetAgent(id string) (*models.AgentView, error) {
	return b.agents.Get(id)
}

func (b *boardService) ListAgents(role models.Role) ([]*models.AgentView, error) {
	if role != "" {
		return b.agents.ListByRole(role)
	}
	return b.agents.List()
}

// RemoveAgent deletes the agent and returns its open tasks to the pool.
func (b *boardService) RemoveAgent(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.agents.Remove(id); err != nil {
		return err
	}
	owned, err := b.tasks.List(models.TaskFilter{Owner: id})
	if err != nil {
		return err
	}
	empty := ""
	released := 0
	for _, t := range owned {
		if t.Lane == models.LaneDone {
			continue
		}
		if _, err := b.tasks.Apply(t.ID, models.TaskPatch{Owner: &empty, Note: "owner " + id + " removed", By: "system"}); err != nil {
			return err
		}
		released++
	}
	b.event("agent.removed", map[string]any{"agent_id": id, "released_tasks": released})
	b.refreshAgentCounts()
	return nil
}

// --- Notifications ---

func (b *boardService) Notifications(agentID string, unreadOnly bool) ([]*models.Notification, error) {
	return b.notes.List(agentID, unreadOnly)
}

func (b *boardService) MarkNotificationRead(agentID, id string) (*models.Notification, error) {
	n, err := b.notes.MarkRead(agentID, id)
	if err != nil {
		return nil, err
	}
	b.event("notification.read", map[string]any{"notification_id": id, "agent_id": agentID})
	return n, nil
}

func (b *boardService) MarkAllNotificationsRead(agentID string) (int, error) {
	count, err := b.notes.MarkAllRead(agentID)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		b.event("notification.read", map[string]any{"agent_id": agentID, "count": count})
	}
	return count, nil
}

// --- Snapshot ---

func (b *boardService) Snapshot() (*Snapshot, error) {
	tasks, err := b.tasks.List(models.TaskFilter{})
	if err != nil {
		return nil, err
	}
	agents, err := b.agents.List()
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{Lanes: make(map[models.Lane][]*models.Task, len(models.Lanes)), Agents: agents}
	for _, l := range models.Lanes {
		snap.Lanes[l] = nil
	}
	for _, t := range SortByPriority(tasks) {
		snap.Lanes[t.Lane] = append(snap.Lanes[t.Lane], t)
	}
	return snap, nil
}

// --- helpers ---

func (b *boardService) requireAgent(field, id string) error {
	_, err := b.agents.Get(id)
	if errors.Is(err, ErrNotFound) {
		return invalid(field, "unknown agent %q", id)
	}
	return err
}

func (b *boardService) notifyAssigned(task *models.Task) {
	b.notify(task.Owner, models.NotifyTaskAssigned, task.ID, "Task assigned: "+task.ID, task.Title)
}

// notify enqueues a notification. Failures are logged; the mutation that
// triggered it has already been committed.
func (b *boardService) notify(agentID string, typ models.NotificationType, taskID, title, text string) {
	n, err := b.notes.Enqueue(models.Notification{
		AgentID: agentID, Type: typ, TaskID: taskID, Title: title, Text: text,
	})
	if err != nil {
		b.logger.Error("enqueuing notification failed", "agent_id", agentID, "type", string(typ), "error", err)
		return
	}
	b.metrics.IncNotification("enqueued")
	b.event("notification.enqueued", map[string]any{
		"notification_id": n.ID, "agent_id": agentID, "type": string(typ), "task_id": taskID,
	})
}

func (b *boardService) releaseClaim(agentID, taskID string) {
	view, err := b.agents.Get(agentID)
	if err != nil {
		return
	}
	if view.Agent.CurrentTask != "" && view.Agent.CurrentTask != taskID {
		return
	}
	if err := b.agents.SetCurrentTask(agentID, ""); err != nil {
		b.logger.Warn("clearing current task failed", "agent_id", agentID, "error", err)
	}
}

func (b *boardService) event(eventType string, data map[string]any) {
	if b.events == nil {
		return
	}
	if err := b.events.LogEvent(eventType, data); err != nil {
		b.logger.Warn("writing event failed", "event", eventType, "error", err)
	}
}

func (b *boardService) refreshLaneCounts() {
	tasks, err := b.tasks.List(models.TaskFilter{})
	if err != nil {
		return
	}
	counts := make(map[models.Lane]int, len(models.Lanes))
	for _, l := range models.Lanes {
		counts[l] = 0
	}
	for _, t := range tasks {
		counts[t.Lane]++
	}
	b.metrics.SetLaneCounts(counts)
}

func (b *boardService) refreshAgentCounts() {
	agents, err := b.agents.List()
	if err != nil {
		return
	}
	counts := map[models.AgentStatus]int{models.AgentOnline: 0, models.AgentBusy: 0, models.AgentOffline: 0}
	for _, a := range agents {
		counts[a.Status]++
	}
	b.metrics.SetAgentCounts(counts)
}

func displayActor(by string) string {
	if by == "" {
		return "someone"
	}
	return by
}

func rolesToStrings(roles []models.Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	sort.Strings(out)
	return out
}

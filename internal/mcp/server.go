// Package mcp provides an MCP (Model Context Protocol) server that exposes
// the Claw board as tools, so coding agents can pull work, report progress
// and read their notifications without going through HTTP.
package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/clawcontrol/claw/internal/core"
	"github.com/clawcontrol/claw/internal/observability"
	"github.com/clawcontrol/claw/pkg/models"
	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server wraps the board service and exposes it as MCP tools.
type Server struct {
	server      *gomcp.Server
	board       core.BoardService
	metricsCalc observability.MetricsCalculator
	alertEngine observability.AlertEngine
}

// NewServer creates a new MCP server over board. metricsCalc and alertEngine
// may be nil if observability is disabled.
func NewServer(board core.BoardService, metricsCalc observability.MetricsCalculator, alertEngine observability.AlertEngine, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{
		board:       board,
		metricsCalc: metricsCalc,
		alertEngine: alertEngine,
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "claw", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run serves MCP over stdio, blocking until the client disconnects or the
// context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type taskIDInput struct {
	TaskID string `json:"task_id" jsonschema:"the task identifier (e.g. TASK-00042)"`
}

type taskOutput struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	Lane               string   `json:"lane"`
	Priority           string   `json:"priority"`
	Owner              string   `json:"owner,omitempty"`
	ProjectID          string   `json:"project_id,omitempty"`
	Problem            string   `json:"problem,omitempty"`
	Scope              string   `json:"scope,omitempty"`
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
	Tags               []string `json:"tags,omitempty"`
	DependsOn          []string `json:"depends_on,omitempty"`
	Comments           int      `json:"comments"`
	HoursLogged        float64  `json:"hours_logged"`
	Created            string   `json:"created"`
	Updated            string   `json:"updated"`
}

type listTasksInput struct {
	Lane       string `json:"lane,omitempty" jsonschema:"filter by lane (proposed, queued, development, review, blocked, done)"`
	Owner      string `json:"owner,omitempty" jsonschema:"filter by owning agent ID"`
	ProjectID  string `json:"project_id,omitempty" jsonschema:"filter by project"`
	Unassigned bool   `json:"unassigned,omitempty" jsonschema:"only tasks without an owner"`
}

type listTasksOutput struct {
	Tasks []taskOutput `json:"tasks"`
	Count int          `json:"count"`
}

type createTaskInput struct {
	Title              string   `json:"title" jsonschema:"short task title"`
	Problem            string   `json:"problem,omitempty" jsonschema:"what is wrong or missing"`
	Scope              string   `json:"scope,omitempty" jsonschema:"what the task covers"`
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty" jsonschema:"conditions for done"`
	Lane               string   `json:"lane,omitempty" jsonschema:"initial lane, defaults to proposed"`
	Priority           string   `json:"priority,omitempty" jsonschema:"P0 to P3, defaults to the configured priority"`
	Owner              string   `json:"owner,omitempty" jsonschema:"registered agent ID to own the task"`
	ProjectID          string   `json:"project_id,omitempty"`
	Tags               []string `json:"tags,omitempty"`
	DependsOn          []string `json:"depends_on,omitempty" jsonschema:"IDs of tasks that must be done first"`
	By                 string   `json:"by,omitempty" jsonschema:"who is creating the task"`
}

type updateTaskInput struct {
	TaskID   string `json:"task_id" jsonschema:"the task identifier"`
	Lane     string `json:"lane,omitempty" jsonschema:"move the task to this lane"`
	Priority string `json:"priority,omitempty"`
	Owner    string `json:"owner,omitempty" jsonschema:"reassign to this agent ID"`
	Title    string `json:"title,omitempty"`
	Note     string `json:"note,omitempty" jsonschema:"recorded in the status history when the lane changes"`
	By       string `json:"by,omitempty" jsonschema:"who is making the change"`
}

type agentIDInput struct {
	AgentID string `json:"agent_id" jsonschema:"the registered agent ID"`
}

type nextTaskOutput struct {
	Found bool        `json:"found"`
	Task  *taskOutput `json:"task,omitempty"`
}

type claimTaskInput struct {
	AgentID string `json:"agent_id" jsonschema:"the claiming agent"`
	TaskID  string `json:"task_id" jsonschema:"the task to claim"`
}

type addCommentInput struct {
	TaskID string `json:"task_id"`
	By     string `json:"by" jsonschema:"author of the comment"`
	Text   string `json:"text" jsonschema:"comment body; @agent mentions notify that agent"`
}

type commentOutput struct {
	ID   string `json:"id"`
	By   string `json:"by"`
	Text string `json:"text"`
	At   string `json:"at"`
}

type logTimeInput struct {
	TaskID  string  `json:"task_id"`
	AgentID string  `json:"agent_id"`
	Hours   float64 `json:"hours" jsonschema:"hours spent, must be positive"`
	Note    string  `json:"note,omitempty"`
}

type logTimeOutput struct {
	EntryID    string  `json:"entry_id"`
	TotalHours float64 `json:"total_hours"`
}

type agentOutput struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Roles       []string `json:"roles"`
	Status      string   `json:"status"`
	CurrentTask string   `json:"current_task,omitempty"`
	Workload    int      `json:"workload"`
	LastSeen    string   `json:"last_seen"`
}

type listNotificationsInput struct {
	AgentID    string `json:"agent_id"`
	UnreadOnly bool   `json:"unread_only,omitempty" jsonschema:"only notifications not yet marked read"`
}

type notificationOutput struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Title   string `json:"title"`
	Text    string `json:"text"`
	TaskID  string `json:"task_id,omitempty"`
	Read    bool   `json:"read"`
	Created string `json:"created"`
}

type listNotificationsOutput struct {
	Notifications []notificationOutput `json:"notifications"`
	Count         int                  `json:"count"`
}

type markReadInput struct {
	AgentID        string `json:"agent_id"`
	NotificationID string `json:"notification_id,omitempty" jsonschema:"omit to mark every notification read"`
}

type markReadOutput struct {
	Marked int `json:"marked"`
}

type getMetricsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window for metrics (e.g. 7d, 30d, 24h). Defaults to 7d."`
}

type metricsOutput struct {
	TasksCreated              int            `json:"tasks_created"`
	TasksCompleted            int            `json:"tasks_completed"`
	TasksUnblocked            int            `json:"tasks_unblocked"`
	Assignments               int            `json:"assignments"`
	Comments                  int            `json:"comments"`
	HoursLogged               float64        `json:"hours_logged"`
	LaneEntries               map[string]int `json:"lane_entries"`
	NotificationsDelivered    int            `json:"notifications_delivered"`
	NotificationsDeadLettered int            `json:"notifications_dead_lettered"`
	EventCount                int            `json:"event_count"`
	OldestEvent               string         `json:"oldest_event,omitempty"`
	NewestEvent               string         `json:"newest_event,omitempty"`
}

type getAlertsInput struct{}

type alertOutput struct {
	ID          string `json:"id"`
	Condition   string `json:"condition"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	TriggeredAt string `json:"triggered_at"`
}

type getAlertsOutput struct {
	Alerts []alertOutput `json:"alerts"`
	Count  int           `json:"count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_tasks",
		Description: "List board tasks, optionally filtered by lane, owner or project. Sorted by priority.",
	}, s.handleListTasks)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_task",
		Description: "Get a task by ID, including lane, owner, dependencies and acceptance criteria.",
	}, s.handleGetTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "create_task",
		Description: "Create a task. Tasks with unfinished dependencies start blocked.",
	}, s.handleCreateTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "update_task",
		Description: "Move a task between lanes, reprioritize, rename or reassign it.",
	}, s.handleUpdateTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "next_task",
		Description: "Return the next task the agent should work on: its own queued work first, then unowned work matching its roles.",
	}, s.handleNextTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "claim_task",
		Description: "Take ownership of a task and move it to development.",
	}, s.handleClaimTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "add_comment",
		Description: "Comment on a task. The owner is notified and @mentioned agents receive a mention.",
	}, s.handleAddComment)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "log_time",
		Description: "Record hours spent on a task.",
	}, s.handleLogTime)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "heartbeat",
		Description: "Report that the agent is alive. Agents that stop sending heartbeats are shown offline.",
	}, s.handleHeartbeat)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_notifications",
		Description: "List the agent's notifications, newest first.",
	}, s.handleListNotifications)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "mark_notification_read",
		Description: "Mark one notification read, or all of the agent's notifications when notification_id is omitted.",
	}, s.handleMarkRead)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_metrics",
		Description: "Get aggregated board metrics from the event log: throughput, assignments, hours and notification delivery.",
	}, s.handleGetMetrics)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_alerts",
		Description: "Evaluate and return active alerts (long-blocked tasks, long reviews, offline agents with work, dead letters, queue size).",
	}, s.handleGetAlerts)
}

// --- Tool handlers ---

func (s *Server) handleListTasks(_ context.Context, _ *gomcp.CallToolRequest, input listTasksInput) (*gomcp.CallToolResult, listTasksOutput, error) {
	filter := models.TaskFilter{
		Owner:      input.Owner,
		ProjectID:  input.ProjectID,
		Unassigned: input.Unassigned,
	}
	if input.Lane != "" {
		lane := models.Lane(input.Lane)
		if !lane.Valid() {
			return errorResult(fmt.Sprintf("invalid lane %q: must be one of %s", input.Lane, laneNames())), emptyTaskList(), nil
		}
		filter.Lanes = []models.Lane{lane}
	}

	tasks, err := s.board.ListTasks(filter, true)
	if err != nil {
		return errorResult(fmt.Sprintf("listing tasks: %s", err)), emptyTaskList(), nil
	}

	out := listTasksOutput{
		Tasks: make([]taskOutput, len(tasks)),
		Count: len(tasks),
	}
	for i, t := range tasks {
		out.Tasks[i] = taskToOutput(t)
	}
	return nil, out, nil
}

func (s *Server) handleGetTask(_ context.Context, _ *gomcp.CallToolRequest, input taskIDInput) (*gomcp.CallToolResult, taskOutput, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), taskOutput{}, nil
	}

	task, err := s.board.GetTask(input.TaskID)
	if err != nil {
		return errorResult(fmt.Sprintf("getting task %s: %s", input.TaskID, err)), taskOutput{}, nil
	}
	return nil, taskToOutput(task), nil
}

func (s *Server) handleCreateTask(_ context.Context, _ *gomcp.CallToolRequest, input createTaskInput) (*gomcp.CallToolResult, taskOutput, error) {
	task, err := s.board.CreateTask(models.TaskDraft{
		Title:              input.Title,
		Problem:            input.Problem,
		Scope:              input.Scope,
		AcceptanceCriteria: input.AcceptanceCriteria,
		Lane:               models.Lane(input.Lane),
		Priority:           models.Priority(strings.ToUpper(input.Priority)),
		Owner:              input.Owner,
		ProjectID:          input.ProjectID,
		Tags:               input.Tags,
		DependsOn:          input.DependsOn,
		By:                 input.By,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("creating task: %s", err)), taskOutput{}, nil
	}
	return nil, taskToOutput(task), nil
}

func (s *Server) handleUpdateTask(_ context.Context, _ *gomcp.CallToolRequest, input updateTaskInput) (*gomcp.CallToolResult, taskOutput, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), taskOutput{}, nil
	}

	patch := models.TaskPatch{Note: input.Note, By: input.By}
	if input.Lane != "" {
		lane := models.Lane(input.Lane)
		patch.Lane = &lane
	}
	if input.Priority != "" {
		p := models.Priority(strings.ToUpper(input.Priority))
		patch.Priority = &p
	}
	if input.Owner != "" {
		patch.Owner = &input.Owner
	}
	if input.Title != "" {
		patch.Title = &input.Title
	}
	if patch.Lane == nil && patch.Priority == nil && patch.Owner == nil && patch.Title == nil {
		return errorResult("nothing to update: set at least one of lane, priority, owner, title"), taskOutput{}, nil
	}

	task, err := s.board.UpdateTask(input.TaskID, patch)
	if err != nil {
		return errorResult(fmt.Sprintf("updating task %s: %s", input.TaskID, err)), taskOutput{}, nil
	}
	return nil, taskToOutput(task), nil
}

func (s *Server) handleNextTask(_ context.Context, _ *gomcp.CallToolRequest, input agentIDInput) (*gomcp.CallToolResult, nextTaskOutput, error) {
	if input.AgentID == "" {
		return errorResult("agent_id is required"), nextTaskOutput{}, nil
	}

	task, err := s.board.NextTask(input.AgentID)
	if err != nil {
		return errorResult(fmt.Sprintf("finding next task for %s: %s", input.AgentID, err)), nextTaskOutput{}, nil
	}
	if task == nil {
		return nil, nextTaskOutput{}, nil
	}
	out := taskToOutput(task)
	return nil, nextTaskOutput{Found: true, Task: &out}, nil
}

func (s *Server) handleClaimTask(_ context.Context, _ *gomcp.CallToolRequest, input claimTaskInput) (*gomcp.CallToolResult, taskOutput, error) {
	task, err := s.board.ClaimTask(input.AgentID, input.TaskID)
	if err != nil {
		return errorResult(fmt.Sprintf("claiming task %s: %s", input.TaskID, err)), taskOutput{}, nil
	}
	return nil, taskToOutput(task), nil
}

func (s *Server) handleAddComment(_ context.Context, _ *gomcp.CallToolRequest, input addCommentInput) (*gomcp.CallToolResult, commentOutput, error) {
	c, err := s.board.AddComment(input.TaskID, input.By, input.Text)
	if err != nil {
		return errorResult(fmt.Sprintf("commenting on task %s: %s", input.TaskID, err)), commentOutput{}, nil
	}
	return nil, commentOutput{ID: c.ID, By: c.By, Text: c.Text, At: c.At.Format(time.RFC3339)}, nil
}

func (s *Server) handleLogTime(_ context.Context, _ *gomcp.CallToolRequest, input logTimeInput) (*gomcp.CallToolResult, logTimeOutput, error) {
	entry, err := s.board.LogTime(input.TaskID, models.TimeEntry{
		AgentID: input.AgentID,
		Hours:   input.Hours,
		Note:    input.Note,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("logging time on task %s: %s", input.TaskID, err)), logTimeOutput{}, nil
	}
	task, err := s.board.GetTask(input.TaskID)
	if err != nil {
		return errorResult(fmt.Sprintf("reloading task %s: %s", input.TaskID, err)), logTimeOutput{}, nil
	}
	return nil, logTimeOutput{EntryID: entry.ID, TotalHours: task.TotalHours()}, nil
}

func (s *Server) handleHeartbeat(_ context.Context, _ *gomcp.CallToolRequest, input agentIDInput) (*gomcp.CallToolResult, agentOutput, error) {
	view, err := s.board.Heartbeat(input.AgentID)
	if err != nil {
		return errorResult(fmt.Sprintf("heartbeat for %s: %s", input.AgentID, err)), agentOutput{Roles: []string{}}, nil
	}
	return nil, agentToOutput(view), nil
}

func (s *Server) handleListNotifications(_ context.Context, _ *gomcp.CallToolRequest, input listNotificationsInput) (*gomcp.CallToolResult, listNotificationsOutput, error) {
	empty := listNotificationsOutput{Notifications: []notificationOutput{}}
	if input.AgentID == "" {
		return errorResult("agent_id is required"), empty, nil
	}

	notes, err := s.board.Notifications(input.AgentID, input.UnreadOnly)
	if err != nil {
		return errorResult(fmt.Sprintf("listing notifications for %s: %s", input.AgentID, err)), empty, nil
	}

	out := listNotificationsOutput{
		Notifications: make([]notificationOutput, len(notes)),
		Count:         len(notes),
	}
	for i, n := range notes {
		out.Notifications[i] = notificationOutput{
			ID:      n.ID,
			Type:    string(n.Type),
			Title:   n.Title,
			Text:    n.Text,
			TaskID:  n.TaskID,
			Read:    n.Read,
			Created: n.CreatedAt.Format(time.RFC3339),
		}
	}
	return nil, out, nil
}

func (s *Server) handleMarkRead(_ context.Context, _ *gomcp.CallToolRequest, input markReadInput) (*gomcp.CallToolResult, markReadOutput, error) {
	if input.AgentID == "" {
		return errorResult("agent_id is required"), markReadOutput{}, nil
	}

	if input.NotificationID == "" {
		n, err := s.board.MarkAllNotificationsRead(input.AgentID)
		if err != nil {
			return errorResult(fmt.Sprintf("marking notifications read for %s: %s", input.AgentID, err)), markReadOutput{}, nil
		}
		return nil, markReadOutput{Marked: n}, nil
	}

	n, err := s.board.MarkNotificationRead(input.AgentID, input.NotificationID)
	if err != nil {
		return errorResult(fmt.Sprintf("marking notification %s read: %s", input.NotificationID, err)), markReadOutput{}, nil
	}
	if n.Read {
		return nil, markReadOutput{Marked: 1}, nil
	}
	return nil, markReadOutput{}, nil
}

func (s *Server) handleGetMetrics(_ context.Context, _ *gomcp.CallToolRequest, input getMetricsInput) (*gomcp.CallToolResult, metricsOutput, error) {
	if s.metricsCalc == nil {
		return errorResult("metrics calculator not available (observability may be disabled)"), emptyMetricsOutput(), nil
	}

	sinceStr := input.Since
	if sinceStr == "" {
		sinceStr = "7d"
	}

	sinceTime, err := parseSince(sinceStr)
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), emptyMetricsOutput(), nil
	}

	m, err := s.metricsCalc.Calculate(sinceTime)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating metrics: %s", err)), emptyMetricsOutput(), nil
	}

	out := metricsOutput{
		TasksCreated:              m.TasksCreated,
		TasksCompleted:            m.TasksCompleted,
		TasksUnblocked:            m.TasksUnblocked,
		Assignments:               m.Assignments,
		Comments:                  m.Comments,
		HoursLogged:               m.HoursLogged,
		LaneEntries:               m.LaneEntries,
		NotificationsDelivered:    m.NotificationsDelivered,
		NotificationsDeadLettered: m.NotificationsDeadLettered,
		EventCount:                m.EventCount,
	}
	if out.LaneEntries == nil {
		out.LaneEntries = make(map[string]int)
	}
	if m.OldestEvent != nil {
		out.OldestEvent = m.OldestEvent.Format(time.RFC3339)
	}
	if m.NewestEvent != nil {
		out.NewestEvent = m.NewestEvent.Format(time.RFC3339)
	}
	return nil, out, nil
}

func (s *Server) handleGetAlerts(_ context.Context, _ *gomcp.CallToolRequest, _ getAlertsInput) (*gomcp.CallToolResult, getAlertsOutput, error) {
	if s.alertEngine == nil {
		return errorResult("alert engine not available (observability may be disabled)"), getAlertsOutput{Alerts: []alertOutput{}}, nil
	}

	alerts, err := s.alertEngine.Evaluate()
	if err != nil {
		return errorResult(fmt.Sprintf("evaluating alerts: %s", err)), getAlertsOutput{Alerts: []alertOutput{}}, nil
	}

	out := getAlertsOutput{
		Alerts: make([]alertOutput, len(alerts)),
		Count:  len(alerts),
	}
	for i, a := range alerts {
		out.Alerts[i] = alertOutput{
			ID:          a.ID,
			Condition:   a.Condition,
			Severity:    string(a.Severity),
			Message:     a.Message,
			TriggeredAt: a.TriggeredAt.Format(time.RFC3339),
		}
	}
	return nil, out, nil
}

// --- Helpers ---

func taskToOutput(t *models.Task) taskOutput {
	return taskOutput{
		ID:                 t.ID,
		Title:              t.Title,
		Lane:               string(t.Lane),
		Priority:           string(t.Priority),
		Owner:              t.Owner,
		ProjectID:          t.ProjectID,
		Problem:            t.Problem,
		Scope:              t.Scope,
		AcceptanceCriteria: t.AcceptanceCriteria,
		Tags:               t.Tags,
		DependsOn:          t.DependsOn,
		Comments:           len(t.Comments),
		HoursLogged:        t.TotalHours(),
		Created:            t.CreatedAt.Format(time.RFC3339),
		Updated:            t.UpdatedAt.Format(time.RFC3339),
	}
}

func agentToOutput(a *models.AgentView) agentOutput {
	roles := make([]string, len(a.Roles))
	for i, r := range a.Roles {
		roles[i] = string(r)
	}
	return agentOutput{
		ID:          a.ID,
		Name:        a.Name,
		Roles:       roles,
		Status:      string(a.Status),
		CurrentTask: a.CurrentTask,
		Workload:    a.Workload,
		LastSeen:    a.LastSeenAt.Format(time.RFC3339),
	}
}

func laneNames() string {
	names := make([]string, len(models.Lanes))
	for i, l := range models.Lanes {
		names[i] = string(l)
	}
	return strings.Join(names, ", ")
}

func emptyTaskList() listTasksOutput {
	return listTasksOutput{Tasks: []taskOutput{}}
}

func emptyMetricsOutput() metricsOutput {
	return metricsOutput{LaneEntries: make(map[string]int)}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// parseSince parses a human-friendly duration string like "7d", "30d", or "24h"
// into the corresponding time in the past.
func parseSince(s string) (time.Time, error) {
	now := time.Now().UTC()

	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}

	suffix := s[len(s)-1]
	var num int
	if _, err := fmt.Sscanf(s[:len(s)-1], "%d", &num); err != nil {
		return time.Time{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}

	switch suffix {
	case 'd':
		return now.AddDate(0, 0, -num), nil
	case 'h':
		return now.Add(-time.Duration(num) * time.Hour), nil
	case 'm':
		return now.Add(-time.Duration(num) * time.Minute), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported duration suffix %q (use d, h or m)", string(suffix))
	}
}

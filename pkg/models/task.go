package models

import "time"

// Lane represents the kanban column a task currently sits in.
type Lane string

const (
	LaneProposed    Lane = "proposed"
	LaneQueued      Lane = "queued"
	LaneDevelopment Lane = "development"
	LaneReview      Lane = "review"
	LaneBlocked     Lane = "blocked"
	LaneDone        Lane = "done"
)

// Lanes lists every lane in board order.
var Lanes = []Lane{LaneProposed, LaneQueued, LaneDevelopment, LaneReview, LaneBlocked, LaneDone}

// Valid reports whether l is one of the defined lanes.
func (l Lane) Valid() bool {
	for _, known := range Lanes {
		if l == known {
			return true
		}
	}
	return false
}

// Priority represents the urgency level of a task.
type Priority string

const (
	P0 Priority = "P0"
	P1 Priority = "P1"
	P2 Priority = "P2"
	P3 Priority = "P3"
)

// Rank returns the sort position of the priority: P0 is 0, P3 is 3.
// Unknown priorities sort after P3.
func (p Priority) Rank() int {
	switch p {
	case P0:
		return 0
	case P1:
		return 1
	case P2:
		return 2
	case P3:
		return 3
	default:
		return 4
	}
}

// Valid reports whether p is one of P0..P3.
func (p Priority) Valid() bool {
	return p.Rank() < 4
}

// StatusChange is one append-only entry in a task's status history.
type StatusChange struct {
	At   time.Time `yaml:"at" json:"at"`
	From Lane      `yaml:"from" json:"from"`
	To   Lane      `yaml:"to" json:"to"`
	Note string    `yaml:"note,omitempty" json:"note,omitempty"`
	By   string    `yaml:"by,omitempty" json:"by,omitempty"`
}

// TimeEntry records hours an agent spent on a task.
type TimeEntry struct {
	ID      string    `yaml:"id" json:"id"`
	AgentID string    `yaml:"agent_id" json:"agentId"`
	Hours   float64   `yaml:"hours" json:"hours"`
	Start   time.Time `yaml:"start,omitempty" json:"start,omitempty"`
	End     time.Time `yaml:"end,omitempty" json:"end,omitempty"`
	Note    string    `yaml:"note,omitempty" json:"note,omitempty"`
}

// Comment is a note left on a task by an agent or a human.
type Comment struct {
	ID   string    `yaml:"id" json:"id"`
	By   string    `yaml:"by" json:"by"`
	Text string    `yaml:"text" json:"text"`
	At   time.Time `yaml:"at" json:"at"`
}

// Task is a unit of work on the board. Lane, owner and the append-only logs
// are only ever changed through the task store.
type Task struct {
	ID                 string         `yaml:"id" json:"id"`
	Title              string         `yaml:"title" json:"title"`
	Problem            string         `yaml:"problem,omitempty" json:"problem,omitempty"`
	Scope              string         `yaml:"scope,omitempty" json:"scope,omitempty"`
	AcceptanceCriteria []string       `yaml:"acceptance_criteria,omitempty" json:"acceptanceCriteria,omitempty"`
	Lane               Lane           `yaml:"lane" json:"lane"`
	Priority           Priority       `yaml:"priority" json:"priority"`
	Owner              string         `yaml:"owner,omitempty" json:"owner,omitempty"`
	ProjectID          string         `yaml:"project_id,omitempty" json:"projectId,omitempty"`
	Tags               []string       `yaml:"tags,omitempty" json:"tags,omitempty"`
	DependsOn          []string       `yaml:"depends_on,omitempty" json:"dependsOn,omitempty"`
	StatusHistory      []StatusChange `yaml:"status_history" json:"statusHistory"`
	TimeEntries        []TimeEntry    `yaml:"time_entries" json:"timeEntries"`
	Comments           []Comment      `yaml:"comments" json:"comments"`
	CreatedAt          time.Time      `yaml:"created_at" json:"createdAt"`
	UpdatedAt          time.Time      `yaml:"updated_at" json:"updatedAt"`
}

// TotalHours sums the logged time entries.
func (t *Task) TotalHours() float64 {
	var total float64
	for _, e := range t.TimeEntries {
		total += e.Hours
	}
	return total
}

// DependsOnTask reports whether id is listed in the task's dependencies.
func (t *Task) DependsOnTask(id string) bool {
	for _, dep := range t.DependsOn {
		if dep == id {
			return true
		}
	}
	return false
}

// TaskDraft is the input for creating a task. Empty fields take defaults.
type TaskDraft struct {
	ID                 string   `json:"id,omitempty"`
	Title              string   `json:"title"`
	Problem            string   `json:"problem,omitempty"`
	Scope              string   `json:"scope,omitempty"`
	AcceptanceCriteria []string `json:"acceptanceCriteria,omitempty"`
	Lane               Lane     `json:"lane,omitempty"`
	Priority           Priority `json:"priority,omitempty"`
	Owner              string   `json:"owner,omitempty"`
	ProjectID          string   `json:"projectId,omitempty"`
	Tags               []string `json:"tags,omitempty"`
	DependsOn          []string `json:"dependsOn,omitempty"`
	By                 string   `json:"by,omitempty"`
}

// TaskPatch is a partial update. Nil fields are left untouched. Note and By
// annotate the status history entry written when Lane changes.
type TaskPatch struct {
	Title              *string   `json:"title,omitempty"`
	Problem            *string   `json:"problem,omitempty"`
	Scope              *string   `json:"scope,omitempty"`
	AcceptanceCriteria *[]string `json:"acceptanceCriteria,omitempty"`
	Lane               *Lane     `json:"lane,omitempty"`
	Priority           *Priority `json:"priority,omitempty"`
	Owner              *string   `json:"owner,omitempty"`
	ProjectID          *string   `json:"projectId,omitempty"`
	Tags               *[]string `json:"tags,omitempty"`
	DependsOn          *[]string `json:"dependsOn,omitempty"`
	Note               string    `json:"note,omitempty"`
	By                 string    `json:"by,omitempty"`
}

// TaskFilter selects tasks in List. Empty fields match everything; set fields
// are combined with AND.
type TaskFilter struct {
	Lanes     []Lane
	Owner     string
	ProjectID string
	Priority  []Priority
	Tags      []string
	// Unassigned restricts the result to tasks without an owner.
	Unassigned bool
}

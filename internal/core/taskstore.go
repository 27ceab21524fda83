package core

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/clawcontrol/claw/pkg/models"
	"github.com/google/uuid"
)

// TaskStore owns every task record. Each mutation loads the collection,
// applies the change and saves it while holding the collection lock.
type TaskStore interface {
	Create(draft models.TaskDraft) (*models.Task, error)
	Get(id string) (*models.Task, error)
	Update(id string, patch models.TaskPatch) (*models.Task, error)
	Apply(id string, patch models.TaskPatch) (*TaskChange, error)
	List(filter models.TaskFilter) ([]*models.Task, error)
	Remove(id string) error
	AddComment(id, by, text string) (*models.Comment, error)
	LogTime(id string, entry models.TimeEntry) (*models.TimeEntry, error)
	ResolveDependents(id string) ([]*models.Task, error)
	ReleaseResolved(ids ...string) ([]*models.Task, error)
	Dependents(id string) ([]*models.Task, error)
	UnresolvedDependencies(task *models.Task) ([]string, error)
}

// TaskChange is the result of Apply: the task before and after the patch.
type TaskChange struct {
	Before *models.Task
	After  *models.Task
}

// LaneChanged reports whether the patch moved the task.
func (c *TaskChange) LaneChanged() bool {
	return c.Before.Lane != c.After.Lane
}

// OwnerChanged reports whether the patch changed the owner.
func (c *TaskChange) OwnerChanged() bool {
	return c.Before.Owner != c.After.Owner
}

// NoteDependenciesResolved is the history note written when a blocked task is
// released because none of its dependencies is open any more.
const NoteDependenciesResolved = "dependencies resolved"

type taskStore struct {
	coll            Collection[models.Task]
	ids             TaskIDGenerator
	defaultPriority models.Priority
	now             Clock
}

// NewTaskStore creates a TaskStore over coll. defaultPriority is used for
// drafts without one; an empty value means P2.
func NewTaskStore(coll Collection[models.Task], ids TaskIDGenerator, defaultPriority models.Priority, now Clock) TaskStore {
	if defaultPriority == "" {
		defaultPriority = models.P2
	}
	if now == nil {
		now = systemClock
	}
	return &taskStore{coll: coll, ids: ids, defaultPriority: defaultPriority, now: now}
}

func (s *taskStore) Create(draft models.TaskDraft) (*models.Task, error) {
	title := strings.TrimSpace(draft.Title)
	if title == "" {
		return nil, invalid("title", "must not be empty")
	}
	lane := draft.Lane
	if lane == "" {
		lane = models.LaneQueued
	}
	if !lane.Valid() {
		return nil, invalid("lane", "unknown lane %q", lane)
	}
	priority := draft.Priority
	if priority == "" {
		priority = s.defaultPriority
	}
	if !priority.Valid() {
		return nil, invalid("priority", "unknown priority %q, must be one of P0, P1, P2, P3", priority)
	}

	var created models.Task
	err := withLocked(s.coll, "creating task", func(tasks map[string]models.Task) (bool, error) {
		id := strings.TrimSpace(draft.ID)
		if id != "" {
			if _, exists := tasks[id]; exists {
				return false, invalid("id", "task %s already exists", id)
			}
		} else {
			generated, err := s.ids.NextID(func(candidate string) bool {
				_, exists := tasks[candidate]
				return exists
			})
			if err != nil {
				return false, &PersistenceError{Op: "generating task id", Err: err}
			}
			id = generated
		}

		deps, err := cleanDependencies(id, draft.DependsOn)
		if err != nil {
			return false, err
		}

		now := s.now()
		created = models.Task{
			ID:                 id,
			Title:              title,
			Problem:            draft.Problem,
			Scope:              draft.Scope,
			AcceptanceCriteria: draft.AcceptanceCriteria,
			Lane:               lane,
			Priority:           priority,
			Owner:              strings.TrimSpace(draft.Owner),
			ProjectID:          draft.ProjectID,
			Tags:               draft.Tags,
			DependsOn:          deps,
			StatusHistory:      []models.StatusChange{},
			TimeEntries:        []models.TimeEntry{},
			Comments:           []models.Comment{},
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		tasks[id] = created
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *taskStore) Get(id string) (*models.Task, error) {
	var found models.Task
	err := withLocked(s.coll, "loading task", func(tasks map[string]models.Task) (bool, error) {
		t, ok := tasks[id]
		if !ok {
			return false, notFound("task", id)
		}
		found = t
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return &found, nil
}

func (s *taskStore) Update(id string, patch models.TaskPatch) (*models.Task, error) {
	change, err := s.Apply(id, patch)
	if err != nil {
		return nil, err
	}
	return change.After, nil
}

func (s *taskStore) Apply(id string, patch models.TaskPatch) (*TaskChange, error) {
	var before, after models.Task
	err := withLocked(s.coll, "updating task", func(tasks map[string]models.Task) (bool, error) {
		t, ok := tasks[id]
		if !ok {
			return false, notFound("task", id)
		}
		before = cloneTask(t)

		if patch.Title != nil {
			title := strings.TrimSpace(*patch.Title)
			if title == "" {
				return false, invalid("title", "must not be empty")
			}
			t.Title = title
		}
		if patch.Problem != nil {
			t.Problem = *patch.Problem
		}
		if patch.Scope != nil {
			t.Scope = *patch.Scope
		}
		if patch.AcceptanceCriteria != nil {
			t.AcceptanceCriteria = *patch.AcceptanceCriteria
		}
		if patch.Priority != nil {
			if !patch.Priority.Valid() {
				return false, invalid("priority", "unknown priority %q, must be one of P0, P1, P2, P3", *patch.Priority)
			}
			t.Priority = *patch.Priority
		}
		if patch.Owner != nil {
			t.Owner = strings.TrimSpace(*patch.Owner)
		}
		if patch.ProjectID != nil {
			t.ProjectID = *patch.ProjectID
		}
		if patch.Tags != nil {
			t.Tags = *patch.Tags
		}
		if patch.DependsOn != nil {
			deps, err := cleanDependencies(id, *patch.DependsOn)
			if err != nil {
				return false, err
			}
			t.DependsOn = deps
		}

		now := s.now()
		if patch.Lane != nil && *patch.Lane != t.Lane {
			if !patch.Lane.Valid() {
				return false, invalid("lane", "unknown lane %q", *patch.Lane)
			}
			t.StatusHistory = append(t.StatusHistory, models.StatusChange{
				At: now, From: t.Lane, To: *patch.Lane, Note: patch.Note, By: patch.By,
			})
			t.Lane = *patch.Lane
		} else if t.Owner != before.Owner && patch.Note != "" {
			t.StatusHistory = append(t.StatusHistory, models.StatusChange{
				At: now, From: t.Lane, To: t.Lane, Note: patch.Note, By: patch.By,
			})
		}

		t.UpdatedAt = now
		tasks[id] = t
		after = t
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return &TaskChange{Before: &before, After: &after}, nil
}

func (s *taskStore) List(filter models.TaskFilter) ([]*models.Task, error) {
	var out []*models.Task
	err := withLocked(s.coll, "listing tasks", func(tasks map[string]models.Task) (bool, error) {
		for _, t := range tasks {
			if matchesFilter(&t, filter) {
				t := t
				out = append(out, &t)
			}
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	sortByCreation(out)
	return out, nil
}

func (s *taskStore) Remove(id string) error {
	return withLocked(s.coll, "removing task", func(tasks map[string]models.Task) (bool, error) {
		if _, ok := tasks[id]; !ok {
			return false, notFound("task", id)
		}
		delete(tasks, id)

		now := s.now()
		for otherID, t := range tasks {
			if !t.DependsOnTask(id) {
				continue
			}
			kept := make([]string, 0, len(t.DependsOn)-1)
			for _, dep := range t.DependsOn {
				if dep != id {
					kept = append(kept, dep)
				}
			}
			t.DependsOn = kept
			t.UpdatedAt = now
			tasks[otherID] = t
		}
		return true, nil
	})
}

func (s *taskStore) AddComment(id, by, text string) (*models.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalid("text", "comment must not be empty")
	}
	var comment models.Comment
	err := withLocked(s.coll, "adding comment", func(tasks map[string]models.Task) (bool, error) {
		t, ok := tasks[id]
		if !ok {
			return false, notFound("task", id)
		}
		now := s.now()
		comment = models.Comment{
			ID:   uuid.NewString(),
			By:   strings.TrimSpace(by),
			Text: text,
			At:   now,
		}
		t.Comments = append(t.Comments, comment)
		t.UpdatedAt = now
		tasks[id] = t
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return &comment, nil
}

func (s *taskStore) LogTime(id string, entry models.TimeEntry) (*models.TimeEntry, error) {
	entry.AgentID = strings.TrimSpace(entry.AgentID)
	if entry.AgentID == "" {
		return nil, invalid("agentId", "must not be empty")
	}
	if !entry.Start.IsZero() && !entry.End.IsZero() {
		if entry.End.Before(entry.Start) {
			return nil, invalid("end", "must not be before start")
		}
		if entry.Hours <= 0 {
			entry.Hours = math.Round(entry.End.Sub(entry.Start).Hours()*100) / 100
		}
	}
	if entry.Hours <= 0 {
		return nil, invalid("hours", "must be greater than zero")
	}

	err := withLocked(s.coll, "logging time", func(tasks map[string]models.Task) (bool, error) {
		t, ok := tasks[id]
		if !ok {
			return false, notFound("task", id)
		}
		entry.ID = uuid.NewString()
		t.TimeEntries = append(t.TimeEntries, entry)
		t.UpdatedAt = s.now()
		tasks[id] = t
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ResolveDependents releases blocked tasks that depend on id once all of
// their dependencies are done. Dependencies that no longer exist are ignored.
func (s *taskStore) ResolveDependents(id string) ([]*models.Task, error) {
	var unblocked []*models.Task
	err := withLocked(s.coll, "resolving dependents", func(tasks map[string]models.Task) (bool, error) {
		now := s.now()
		for depID, t := range tasks {
			if !t.DependsOnTask(id) {
				continue
			}
			if released, ok := releaseIfResolved(tasks, depID, now); ok {
				unblocked = append(unblocked, released)
			}
		}
		return len(unblocked) > 0, nil
	})
	if err != nil {
		return nil, err
	}
	sortByCreation(unblocked)
	return unblocked, nil
}

// ReleaseResolved moves each of the given tasks from blocked to queued when
// none of its dependencies is still open. Unknown ids and tasks in other
// lanes are skipped.
func (s *taskStore) ReleaseResolved(ids ...string) ([]*models.Task, error) {
	var unblocked []*models.Task
	err := withLocked(s.coll, "releasing resolved tasks", func(tasks map[string]models.Task) (bool, error) {
		now := s.now()
		for _, id := range ids {
			if released, ok := releaseIfResolved(tasks, id, now); ok {
				unblocked = append(unblocked, released)
			}
		}
		return len(unblocked) > 0, nil
	})
	if err != nil {
		return nil, err
	}
	sortByCreation(unblocked)
	return unblocked, nil
}

func releaseIfResolved(tasks map[string]models.Task, id string, now time.Time) (*models.Task, bool) {
	t, ok := tasks[id]
	if !ok || t.Lane != models.LaneBlocked || len(unresolvedIn(tasks, &t)) > 0 {
		return nil, false
	}
	t.StatusHistory = append(t.StatusHistory, models.StatusChange{
		At: now, From: models.LaneBlocked, To: models.LaneQueued, Note: NoteDependenciesResolved, By: "system",
	})
	t.Lane = models.LaneQueued
	t.UpdatedAt = now
	tasks[id] = t
	return &t, true
}

func (s *taskStore) Dependents(id string) ([]*models.Task, error) {
	var out []*models.Task
	err := withLocked(s.coll, "listing dependents", func(tasks map[string]models.Task) (bool, error) {
		for _, t := range tasks {
			if t.DependsOnTask(id) {
				t := t
				out = append(out, &t)
			}
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	sortByCreation(out)
	return out, nil
}

// UnresolvedDependencies returns the ids in task.DependsOn whose task exists
// and is not done.
func (s *taskStore) UnresolvedDependencies(task *models.Task) ([]string, error) {
	var out []string
	err := withLocked(s.coll, "checking dependencies", func(tasks map[string]models.Task) (bool, error) {
		out = unresolvedIn(tasks, task)
		return false, nil
	})
	return out, err
}

func unresolvedIn(tasks map[string]models.Task, task *models.Task) []string {
	var out []string
	for _, dep := range task.DependsOn {
		if d, ok := tasks[dep]; ok && d.Lane != models.LaneDone {
			out = append(out, dep)
		}
	}
	return out
}

func cleanDependencies(id string, deps []string) ([]string, error) {
	if len(deps) == 0 {
		return nil, nil
	}
	seen := make(map[string]bool, len(deps))
	out := make([]string, 0, len(deps))
	for _, dep := range deps {
		dep = strings.TrimSpace(dep)
		if dep == "" || seen[dep] {
			continue
		}
		if dep == id {
			return nil, invalid("dependsOn", "task %s cannot depend on itself", id)
		}
		seen[dep] = true
		out = append(out, dep)
	}
	return out, nil
}

func matchesFilter(t *models.Task, f models.TaskFilter) bool {
	if len(f.Lanes) > 0 && !containsLane(f.Lanes, t.Lane) {
		return false
	}
	if f.Owner != "" && t.Owner != f.Owner {
		return false
	}
	if f.Unassigned && t.Owner != "" {
		return false
	}
	if f.ProjectID != "" && t.ProjectID != f.ProjectID {
		return false
	}
	if len(f.Priority) > 0 {
		match := false
		for _, p := range f.Priority {
			if t.Priority == p {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	for _, want := range f.Tags {
		found := false
		for _, have := range t.Tags {
			if strings.EqualFold(have, want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func containsLane(lanes []models.Lane, l models.Lane) bool {
	for _, x := range lanes {
		if x == l {
			return true
		}
	}
	return false
}

// sortByCreation orders tasks by creation time, then id.
func sortByCreation(tasks []*models.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
}

// SortByPriority orders tasks P0 first, keeping creation order within a
// priority. It sorts in place and returns the slice.
func SortByPriority(tasks []*models.Task) []*models.Task {
	sortByCreation(tasks)
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].Priority.Rank() < tasks[j].Priority.Rank()
	})
	return tasks
}

func cloneTask(t models.Task) models.Task {
	c := t
	c.StatusHistory = append([]models.StatusChange(nil), t.StatusHistory...)
	c.DependsOn = append([]string(nil), t.DependsOn...)
	c.Tags = append([]string(nil), t.Tags...)
	return c
}

// Age returns how long the task has been in its current lane.
func Age(t *models.Task, now time.Time) time.Duration {
	since := t.CreatedAt
	for i := len(t.StatusHistory) - 1; i >= 0; i-- {
		h := t.StatusHistory[i]
		if h.From != h.To && h.To == t.Lane {
			since = h.At
			break
		}
	}
	return now.Sub(since)
}

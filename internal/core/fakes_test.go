package core

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/clawcontrol/claw/pkg/models"
)

// memCollection implements Collection in memory. Records are copied through
// JSON on every load and save so callers never share slices with the store.
type memCollection[T any] struct {
	mu      sync.Mutex
	data    []byte
	saveErr error
	saves   int
}

func newMemCollection[T any]() *memCollection[T] {
	return &memCollection[T]{}
}

func (c *memCollection[T]) Lock() (func() error, error) {
	c.mu.Lock()
	return func() error { c.mu.Unlock(); return nil }, nil
}

func (c *memCollection[T]) LoadAll() (map[string]T, error) {
	out := make(map[string]T)
	if len(c.data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(c.data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *memCollection[T]) SaveAll(records map[string]T) error {
	if c.saveErr != nil {
		return c.saveErr
	}
	data, err := json.Marshal(records)
	if err != nil {
		return err
	}
	c.data = data
	c.saves++
	return nil
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// sequentialIDs hands out TASK-00001, TASK-00002, ... without touching disk.
type sequentialIDs struct {
	n int
}

func (g *sequentialIDs) NextID(taken func(string) bool) (string, error) {
	for {
		g.n++
		id := formatTestID(g.n)
		if taken == nil || !taken(id) {
			return id, nil
		}
	}
}

func formatTestID(n int) string {
	return (&counterIDGenerator{prefix: "TASK", padWidth: 5}).format(n)
}

// recordedEvent is one call to LogEvent.
type recordedEvent struct {
	Type string
	Data map[string]any
}

// eventRecorder implements EventLogger in memory.
type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) LogEvent(eventType string, data map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Type: eventType, Data: data})
	return nil
}

func (r *eventRecorder) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

// fakeDeliverer records deliveries and fails for agents listed in failFor.
type fakeDeliverer struct {
	mu        sync.Mutex
	delivered []string
	failFor   map[string]error
	calls     int
}

func (d *fakeDeliverer) Deliver(_ context.Context, agent *models.AgentView, n *models.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if err, ok := d.failFor[agent.ID]; ok {
		return err
	}
	d.delivered = append(d.delivered, n.ID)
	return nil
}

var errUnreachable = errors.New("dial tcp 127.0.0.1:9: connection refused")

// testBoard bundles a board service with its stores for assertions.
type testBoard struct {
	board  BoardService
	tasks  TaskStore
	agents AgentRegistry
	notes  NotificationStore
	events *eventRecorder
	clock  *fakeClock
	cfg    BoardConfig
}

func newTestBoard(t *testing.T, cfg BoardConfig) *testBoard {
	t.Helper()
	clock := newFakeClock()
	tasks := NewTaskStore(newMemCollection[models.Task](), &sequentialIDs{}, models.P2, clock.Now)
	agents := NewAgentRegistry(newMemCollection[models.Agent](), tasks, DefaultStaleTimeout, clock.Now)
	notes := NewNotificationStore(newMemCollection[models.Notification](), DefaultRetention, clock.Now)
	events := &eventRecorder{}
	board := NewBoardService(BoardDeps{
		Tasks:         tasks,
		Agents:        agents,
		Resolver:      NewAssignmentResolver(DefaultRoleTable, agents),
		Notifications: notes,
		Events:        events,
	}, cfg)
	return &testBoard{board: board, tasks: tasks, agents: agents, notes: notes, events: events, clock: clock, cfg: cfg}
}

func (tb *testBoard) register(t *testing.T, id string, roles ...models.Role) {
	t.Helper()
	if _, err := tb.board.RegisterAgent(models.Agent{ID: id, Roles: roles}); err != nil {
		t.Fatalf("registering %s: %v", id, err)
	}
}

func (tb *testBoard) create(t *testing.T, draft models.TaskDraft) *models.Task {
	t.Helper()
	task, err := tb.board.CreateTask(draft)
	if err != nil {
		t.Fatalf("creating %q: %v", draft.Title, err)
	}
	return task
}

func (tb *testBoard) notificationsOf(t *testing.T, agentID string, typ models.NotificationType) []*models.Notification {
	t.Helper()
	all, err := tb.notes.List(agentID, false)
	if err != nil {
		t.Fatalf("listing notifications: %v", err)
	}
	var out []*models.Notification
	for _, n := range all {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

func lanePtr(l models.Lane) *models.Lane { return &l }

func strPtr(s string) *string { return &s }

package core

import (
	"errors"
	"testing"
	"time"

	"github.com/clawcontrol/claw/pkg/models"
)

func TestMentions(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"@dev please look", []string{"dev"}},
		{"ping @QA-Bot and @dev, also @qa-bot", []string{"qa-bot", "dev"}},
		{"mail me at me@example.com", nil},
		{"no mentions here", nil},
		{"(@fe_1)", []string{"fe_1"}},
	}
	for _, tt := range tests {
		got := Mentions(tt.text)
		if !equalStrings(got, tt.want) {
			t.Errorf("Mentions(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

// Scenario: a task whose title matches no role keyword stays unassigned.
func TestBoard_AutoAssignNoMatch(t *testing.T) {
	tb := newTestBoard(t, BoardConfig{})
	tb.register(t, "fe", models.RoleFrontend)
	tb.register(t, "be", models.RoleBackend)
	task := tb.create(t, models.TaskDraft{Title: "Fix login bug", Priority: models.P0})

	res, err := tb.board.AutoAssign(task.ID, "pm")
	if err != nil {
		t.Fatal(err)
	}
	if res.AgentID != "" {
		t.Fatalf("expected no assignment, got %q", res.AgentID)
	}
	got, _ := tb.board.GetTask(task.ID)
	if got.Owner != "" || got.Lane != models.LaneQueued {
		t.Errorf("task = owner %q lane %q", got.Owner, got.Lane)
	}
	if tb.events.count("task.assignment_skipped") != 1 {
		t.Error("expected task.assignment_skipped event")
	}
}

// Scenario: auto-assign picks the least loaded online agent with the role.
func TestBoard_AutoAssignLeastLoaded(t *testing.T) {
	tb := newTestBoard(t, BoardConfig{})
	tb.register(t, "fe-1", models.RoleFrontend)
	tb.register(t, "fe-2", models.RoleFrontend)
	tb.create(t, models.TaskDraft{Title: "one", Owner: "fe-1"})
	for i := 0; i < 3; i++ {
		tb.create(t, models.TaskDraft{Title: "many", Owner: "fe-2"})
	}
	task := tb.create(t, models.TaskDraft{Title: "Build React dashboard"})

	res, err := tb.board.AutoAssign(task.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.AgentID != "fe-1" || res.Role != models.RoleFrontend {
		t.Fatalf("result = %+v", res)
	}
	if res.Task.Owner != "fe-1" {
		t.Errorf("owner = %q", res.Task.Owner)
	}
	if got := tb.notificationsOf(t, "fe-1", models.NotifyTaskAssigned); len(got) != 2 {
		t.Errorf("fe-1 assignment notifications = %d, want 2", len(got))
	}

	if _, err := tb.board.AutoAssign(task.ID, ""); !errors.Is(err, ErrValidation) {
		t.Errorf("auto-assign of owned task: expected validation error, got %v", err)
	}
}

// Scenario: completing a dependency moves the blocked dependent to queued.
func TestBoard_CompletingDependencyUnblocks(t *testing.T) {
	tb := newTestBoard(t, BoardConfig{})
	tb.register(t, "dev", models.RoleBackend)
	a := tb.create(t, models.TaskDraft{ID: "A", Title: "schema"})
	b := tb.create(t, models.TaskDraft{ID: "B", Title: "endpoint", DependsOn: []string{"A"}, Owner: "dev"})
	if b.Lane != models.LaneBlocked {
		t.Fatalf("B lane = %q, want blocked", b.Lane)
	}

	if _, err := tb.board.UpdateTask(a.ID, models.TaskPatch{Lane: lanePtr(models.LaneDone), By: "pm"}); err != nil {
		t.Fatal(err)
	}
	got, _ := tb.board.GetTask("B")
	if got.Lane != models.LaneQueued {
		t.Fatalf("B lane = %q, want queued", got.Lane)
	}
	last := got.StatusHistory[len(got.StatusHistory)-1]
	if last.From != models.LaneBlocked || last.To != models.LaneQueued || last.Note != NoteDependenciesResolved {
		t.Errorf("history entry = %+v", last)
	}
	if tb.events.count("task.unblocked") != 1 || tb.events.count("task.completed") != 1 {
		t.Error("expected completed and unblocked events")
	}
	if len(tb.notificationsOf(t, "dev", models.NotifyTaskUnblocked)) != 1 {
		t.Error("owner of B should be told it is unblocked")
	}
}

func TestBoard_PartialDependenciesStayBlocked(t *testing.T) {
	tb := newTestBoard(t, BoardConfig{})
	tb.create(t, models.TaskDraft{ID: "A", Title: "a"})
	tb.create(t, models.TaskDraft{ID: "B", Title: "b"})
	tb.create(t, models.TaskDraft{ID: "C", Title: "c", DependsOn: []string{"A", "B"}})

	tb.board.UpdateTask("A", models.TaskPatch{Lane: lanePtr(models.LaneDone)})
	got, _ := tb.board.GetTask("C")
	if got.Lane != models.LaneBlocked {
		t.Fatalf("C lane = %q, want blocked", got.Lane)
	}
	tb.board.UpdateTask("B", models.TaskPatch{Lane: lanePtr(models.LaneDone)})
	got, _ = tb.board.GetTask("C")
	if got.Lane != models.LaneQueued {
		t.Errorf("C lane = %q, want queued", got.Lane)
	}
}

func TestBoard_CreateWithExplicitLaneIgnoresDependencies(t *testing.T) {
	tb := newTestBoard(t, BoardConfig{})
	tb.create(t, models.TaskDraft{ID: "A", Title: "a"})
	b := tb.create(t, models.TaskDraft{ID: "B", Title: "b", DependsOn: []string{"A"}, Lane: models.LaneProposed})
	if b.Lane != models.LaneProposed {
		t.Errorf("lane = %q, want proposed", b.Lane)
	}
}

// Scenario: an agent that stops sending heartbeats reads as offline.
func TestBoard_StaleAgentReadsOffline(t *testing.T) {
	tb := newTestBoard(t, BoardConfig{})
	tb.register(t, "dev")
	tb.clock.Advance(DefaultStaleTimeout + time.Second)

	v, err := tb.board.GetAgent("dev")
	if err != nil {
		t.Fatal(err)
	}
	if v.Status != models.AgentOffline {
		t.Errorf("status = %q, want offline", v.Status)
	}
	if _, err := tb.board.Heartbeat("dev"); err != nil {
		t.Fatal(err)
	}
	v, _ = tb.board.GetAgent("dev")
	if v.Status != models.AgentOnline {
		t.Errorf("status after heartbeat = %q", v.Status)
	}
}

func TestBoard_OwnerMustBeRegistered(t *testing.T) {
	tb := newTestBoard(t, BoardConfig{})
	if _, err := tb.board.CreateTask(models.TaskDraft{Title: "x", Owner: "ghost"}); !errors.Is(err, ErrValidation) {
		t.Errorf("create: expected validation error, got %v", err)
	}
	task := tb.create(t, models.TaskDraft{Title: "x"})
	if _, err := tb.board.UpdateTask(task.ID, models.TaskPatch{Owner: strPtr("ghost")}); !errors.Is(err, ErrValidation) {
		t.Errorf("update: expected validation error, got %v", err)
	}
	if _, err := tb.board.Assign(task.ID, "ghost", "pm"); !errors.Is(err, ErrNotFound) {
		t.Errorf("assign: expected not found, got %v", err)
	}
}

func TestBoard_AssignRecordsHistoryAndNotifies(t *testing.T) {
	tb := newTestBoard(t, BoardConfig{})
	tb.register(t, "dev")
	task := tb.create(t, models.TaskDraft{Title: "x"})

	got, err := tb.board.Assign(task.ID, "dev", "pm")
	if err != nil {
		t.Fatal(err)
	}
	if got.Owner != "dev" {
		t.Fatalf("owner = %q", got.Owner)
	}
	if len(got.StatusHistory) != 1 || got.StatusHistory[0].Note != "assigned to dev" || got.StatusHistory[0].By != "pm" {
		t.Errorf("history = %+v", got.StatusHistory)
	}
	if len(tb.notificationsOf(t, "dev", models.NotifyTaskAssigned)) != 1 {
		t.Error("expected assignment notification")
	}
	if tb.events.count("task.assigned") != 1 {
		t.Error("expected task.assigned event")
	}
}

func TestBoard_QAGate(t *testing.T) {
	tb := newTestBoard(t, BoardConfig{RequireQAForDone: true})
	tb.register(t, "dev", models.RoleBackend)
	tb.register(t, "tester", models.RoleQA)
	task := tb.create(t, models.TaskDraft{Title: "x", Owner: "dev"})
	done := lanePtr(models.LaneDone)

	if _, err := tb.board.UpdateTask(task.ID, models.TaskPatch{Lane: done, By: "dev"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("non-qa agent: expected validation error, got %v", err)
	}
	if _, err := tb.board.UpdateTask(task.ID, models.TaskPatch{Lane: done, By: "tester"}); err != nil {
		t.Fatalf("qa agent: %v", err)
	}

	other := tb.create(t, models.TaskDraft{Title: "y"})
	if _, err := tb.board.UpdateTask(other.ID, models.TaskPatch{Lane: done, By: "alice"}); err != nil {
		t.Errorf("unregistered actor should pass the gate: %v", err)
	}
}

func TestBoard_DependencyWarningIsAdvisory(t *testing.T) {
	tb := newTestBoard(t, BoardConfig{})
	tb.create(t, models.TaskDraft{ID: "A", Title: "a"})
	b := tb.create(t, models.TaskDraft{ID: "B", Title: "b", DependsOn: []string{"A"}})

	got, err := tb.board.UpdateTask(b.ID, models.TaskPatch{Lane: lanePtr(models.LaneDevelopment)})
	if err != nil {
		t.Fatalf("move must be allowed: %v", err)
	}
	if got.Lane != models.LaneDevelopment {
		t.Errorf("lane = %q", got.Lane)
	}
	if tb.events.count("task.dependency_warning") != 1 {
		t.Error("expected task.dependency_warning event")
	}
}

func TestBoard_LaneNotifications(t *testing.T) {
	tb := newTestBoard(t, BoardConfig{})
	tb.register(t, "dev")
	task := tb.create(t, models.TaskDraft{Title: "x", Owner: "dev"})

	tb.board.UpdateTask(task.ID, models.TaskPatch{Lane: lanePtr(models.LaneBlocked), Note: "waiting on creds"})
	blocked := tb.notificationsOf(t, "dev", models.NotifyTaskBlocked)
	if len(blocked) != 1 || blocked[0].Text != "waiting on creds" {
		t.Fatalf("blocked notifications = %+v", blocked)
	}

	tb.board.UpdateTask(task.ID, models.TaskPatch{Lane: lanePtr(models.LaneDone)})
	if len(tb.notificationsOf(t, "dev", models.NotifyTaskCompleted)) != 1 {
		t.Error("expected completed notification")
	}
}

func TestBoard_CommentNotifications(t *testing.T) {
	tb := newTestBoard(t, BoardConfig{})
	tb.register(t, "owner")
	tb.register(t, "qa")
	task := tb.create(t, models.TaskDraft{Title: "x", Owner: "owner"})

	if _, err := tb.board.AddComment(task.ID, "qa", "looks good"); err != nil {
		t.Fatal(err)
	}
	if len(tb.notificationsOf(t, "owner", models.NotifyTaskComment)) != 1 {
		t.Error("owner should hear about comments")
	}

	tb.board.AddComment(task.ID, "qa", "@Owner and @ghost, see above")
	if len(tb.notificationsOf(t, "owner", models.NotifyMention)) != 1 {
		t.Error("mentioned owner should get a mention")
	}
	if len(tb.notificationsOf(t, "owner", models.NotifyTaskComment)) != 1 {
		t.Error("mentioned owner must not also get a comment notification")
	}
	if all, _ := tb.notes.List("ghost", false); len(all) != 0 {
		t.Error("unknown agents are not notified")
	}

	tb.board.AddComment(task.ID, "owner", "note to self @owner")
	if n := len(tb.notificationsOf(t, "owner", models.NotifyMention)); n != 1 {
		t.Errorf("self mention notified: %d mentions", n)
	}
}

func TestBoard_MentionsIgnoreCase(t *testing.T) {
	tb := newTestBoard(t, BoardConfig{})
	tb.register(t, "QA-Bot", models.RoleQA)
	tb.register(t, "Dev")
	task := tb.create(t, models.TaskDraft{Title: "x", Owner: "Dev"})

	if _, err := tb.board.AddComment(task.ID, "pm", "@qa-bot please verify"); err != nil {
		t.Fatal(err)
	}
	if n := len(tb.notificationsOf(t, "QA-Bot", models.NotifyMention)); n != 1 {
		t.Errorf("mention notifications for QA-Bot = %d, want 1", n)
	}

	tb.board.AddComment(task.ID, "dev", "done on my side @DEV")
	if n := len(tb.notificationsOf(t, "Dev", models.NotifyMention)); n != 0 {
		t.Errorf("self mention notified %d times", n)
	}
	if n := len(tb.notificationsOf(t, "Dev", models.NotifyTaskComment)); n != 1 {
		t.Errorf("owner comment notifications = %d, want 1 (only the pm comment)", n)
	}
}

func TestBoard_NextTaskAndClaim(t *testing.T) {
	tb := newTestBoard(t, BoardConfig{})
	tb.register(t, "fe", models.RoleFrontend)

	next, err := tb.board.NextTask("fe")
	if err != nil || next != nil {
		t.Fatalf("empty board: %+v, %v", next, err)
	}

	tb.create(t, models.TaskDraft{ID: "DB", Title: "Add database index", Priority: models.P0})
	tb.create(t, models.TaskDraft{ID: "CSS", Title: "Fix CSS layout", Priority: models.P2})
	tb.create(t, models.TaskDraft{ID: "UI", Title: "React settings page", Priority: models.P1})
	tb.create(t, models.TaskDraft{ID: "WAIT", Title: "React wizard", Priority: models.P0, DependsOn: []string{"DB"}, Lane: models.LaneQueued})

	next, _ = tb.board.NextTask("fe")
	if next == nil || next.ID != "UI" {
		t.Fatalf("next = %+v, want UI", next)
	}

	tb.create(t, models.TaskDraft{ID: "MINE", Title: "Anything", Priority: models.P3, Owner: "fe"})
	next, _ = tb.board.NextTask("fe")
	if next == nil || next.ID != "MINE" {
		t.Fatalf("own queued work first, got %+v", next)
	}

	claimed, err := tb.board.ClaimTask("fe", "UI")
	if err != nil {
		t.Fatal(err)
	}
	if claimed.Owner != "fe" || claimed.Lane != models.LaneDevelopment {
		t.Errorf("claimed = owner %q lane %q", claimed.Owner, claimed.Lane)
	}
	v, _ := tb.board.GetAgent("fe")
	if v.CurrentTask != "UI" || v.Status != models.AgentBusy {
		t.Errorf("agent = %q/%q", v.CurrentTask, v.Status)
	}

	tb.register(t, "other", models.RoleFrontend)
	if _, err := tb.board.ClaimTask("other", "UI"); !errors.Is(err, ErrValidation) {
		t.Errorf("claiming someone else's task: expected validation error, got %v", err)
	}

	tb.board.UpdateTask("UI", models.TaskPatch{Lane: lanePtr(models.LaneDone)})
	v, _ = tb.board.GetAgent("fe")
	if v.CurrentTask != "" {
		t.Errorf("claim not released on done: %q", v.CurrentTask)
	}
}

func TestBoard_RemoveAgentReleasesOpenTasks(t *testing.T) {
	tb := newTestBoard(t, BoardConfig{})
	tb.register(t, "dev")
	open := tb.create(t, models.TaskDraft{Title: "open", Owner: "dev"})
	done := tb.create(t, models.TaskDraft{Title: "done", Owner: "dev", Lane: models.LaneDone})

	if err := tb.board.RemoveAgent("dev"); err != nil {
		t.Fatal(err)
	}
	got, _ := tb.board.GetTask(open.ID)
	if got.Owner != "" {
		t.Errorf("open task still owned by %q", got.Owner)
	}
	got, _ = tb.board.GetTask(done.ID)
	if got.Owner != "dev" {
		t.Error("done tasks keep their owner")
	}
	if !errors.Is(tb.board.RemoveAgent("dev"), ErrNotFound) {
		t.Error("expected not found on second remove")
	}
}

func TestBoard_UpdateAgent(t *testing.T) {
	tb := newTestBoard(t, BoardConfig{})
	tb.register(t, "dev", models.RoleBackend)
	roles := []models.Role{models.RoleFrontend}

	v, err := tb.board.UpdateAgent("dev", models.AgentPatch{Name: strPtr("Dev Bot"), Roles: &roles, Endpoint: strPtr("http://dev:8080/notify")})
	if err != nil {
		t.Fatal(err)
	}
	if v.Name != "Dev Bot" || !v.HasRole(models.RoleFrontend) || v.HasRole(models.RoleBackend) || v.Endpoint == "" {
		t.Errorf("agent = %+v", v.Agent)
	}
	if _, err := tb.board.UpdateAgent("ghost", models.AgentPatch{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

// Scenario: editing a stale agent's profile is not a heartbeat.
func TestBoard_UpdateAgentKeepsStaleAgentOffline(t *testing.T) {
	tb := newTestBoard(t, BoardConfig{})
	tb.register(t, "fe", models.RoleFrontend)
	registered, _ := tb.board.GetAgent("fe")
	tb.clock.Advance(10 * time.Minute)

	v, err := tb.board.UpdateAgent("fe", models.AgentPatch{Name: strPtr("Frontend Bot")})
	if err != nil {
		t.Fatal(err)
	}
	if v.Status != models.AgentOffline {
		t.Errorf("status after profile edit = %q, want offline", v.Status)
	}
	if !v.LastSeenAt.Equal(registered.LastSeenAt) {
		t.Errorf("LastSeenAt moved from %v to %v", registered.LastSeenAt, v.LastSeenAt)
	}

	task := tb.create(t, models.TaskDraft{Title: "Build React form"})
	res, err := tb.board.AutoAssign(task.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.AgentID != "" {
		t.Errorf("auto-assign picked %q, want nobody", res.AgentID)
	}
}

func TestBoard_AutoAssignOnCreate(t *testing.T) {
	tb := newTestBoard(t, BoardConfig{AutoAssignOnCreate: true})
	tb.register(t, "ops", models.RoleDevOps)

	task := tb.create(t, models.TaskDraft{Title: "Deploy to kubernetes"})
	if task.Owner != "ops" {
		t.Errorf("owner = %q, want ops", task.Owner)
	}
	blocked := tb.create(t, models.TaskDraft{Title: "Deploy later", Lane: models.LaneBlocked})
	if blocked.Owner != "" {
		t.Error("blocked tasks are not auto-assigned")
	}
}

func TestBoard_NotificationsReadFlow(t *testing.T) {
	tb := newTestBoard(t, BoardConfig{})
	tb.register(t, "dev")
	tb.create(t, models.TaskDraft{Title: "a", Owner: "dev"})
	tb.create(t, models.TaskDraft{Title: "b", Owner: "dev"})

	unread, err := tb.board.Notifications("dev", true)
	if err != nil || len(unread) != 2 {
		t.Fatalf("unread = %d, %v", len(unread), err)
	}
	if _, err := tb.board.MarkNotificationRead("dev", unread[0].ID); err != nil {
		t.Fatal(err)
	}
	n, err := tb.board.MarkAllNotificationsRead("dev")
	if err != nil || n != 1 {
		t.Errorf("MarkAll = %d, %v", n, err)
	}
	unread, _ = tb.board.Notifications("dev", true)
	if len(unread) != 0 {
		t.Errorf("still unread: %d", len(unread))
	}
}

func TestBoard_SnapshotGroupsByLane(t *testing.T) {
	tb := newTestBoard(t, BoardConfig{})
	tb.register(t, "dev")
	tb.create(t, models.TaskDraft{ID: "low", Title: "low", Priority: models.P3})
	tb.create(t, models.TaskDraft{ID: "high", Title: "high", Priority: models.P0})
	tb.create(t, models.TaskDraft{ID: "rev", Title: "rev", Lane: models.LaneReview})

	snap, err := tb.board.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Lanes) != len(models.Lanes) {
		t.Errorf("every lane should be present, got %d", len(snap.Lanes))
	}
	q := snap.Lanes[models.LaneQueued]
	if len(q) != 2 || q[0].ID != "high" || q[1].ID != "low" {
		t.Errorf("queued = %v", taskIDs(q))
	}
	if len(snap.Lanes[models.LaneReview]) != 1 || len(snap.Agents) != 1 {
		t.Error("review lane or agents missing")
	}
}

func TestBoard_RemoveTaskCleansDependencies(t *testing.T) {
	tb := newTestBoard(t, BoardConfig{})
	tb.create(t, models.TaskDraft{ID: "A", Title: "a"})
	tb.create(t, models.TaskDraft{ID: "B", Title: "b", DependsOn: []string{"A"}})

	if err := tb.board.RemoveTask("A"); err != nil {
		t.Fatal(err)
	}
	b, _ := tb.board.GetTask("B")
	if len(b.DependsOn) != 0 {
		t.Errorf("dependsOn = %v", b.DependsOn)
	}
	if !errors.Is(tb.board.RemoveTask("A"), ErrNotFound) {
		t.Error("expected not found")
	}
}

func TestBoard_RemovingLastOpenDependencyUnblocks(t *testing.T) {
	tb := newTestBoard(t, BoardConfig{})
	tb.register(t, "dev", models.RoleBackend)
	tb.create(t, models.TaskDraft{ID: "A", Title: "schema"})
	tb.create(t, models.TaskDraft{ID: "C", Title: "seed data"})
	tb.create(t, models.TaskDraft{ID: "B", Title: "endpoint", DependsOn: []string{"A"}, Owner: "dev"})
	tb.create(t, models.TaskDraft{ID: "D", Title: "report", DependsOn: []string{"A", "C"}})

	if err := tb.board.RemoveTask("A"); err != nil {
		t.Fatal(err)
	}

	b, _ := tb.board.GetTask("B")
	if b.Lane != models.LaneQueued {
		t.Fatalf("B lane = %q, want queued", b.Lane)
	}
	last := b.StatusHistory[len(b.StatusHistory)-1]
	if last.From != models.LaneBlocked || last.Note != NoteDependenciesResolved {
		t.Errorf("history entry = %+v", last)
	}
	if len(tb.notificationsOf(t, "dev", models.NotifyTaskUnblocked)) != 1 {
		t.Error("owner of B should be told it is unblocked")
	}
	if d, _ := tb.board.GetTask("D"); d.Lane != models.LaneBlocked {
		t.Errorf("D still waits on C, lane = %q", d.Lane)
	}
	if tb.events.count("task.unblocked") != 1 {
		t.Errorf("unblocked events = %d, want 1", tb.events.count("task.unblocked"))
	}
}

func TestBoard_RemovingDoneDependencyKeepsManualBlock(t *testing.T) {
	tb := newTestBoard(t, BoardConfig{})
	tb.create(t, models.TaskDraft{ID: "A", Title: "a", Lane: models.LaneDone})
	tb.create(t, models.TaskDraft{ID: "B", Title: "b", DependsOn: []string{"A"}, Lane: models.LaneBlocked})

	if err := tb.board.RemoveTask("A"); err != nil {
		t.Fatal(err)
	}
	if b, _ := tb.board.GetTask("B"); b.Lane != models.LaneBlocked {
		t.Errorf("B lane = %q, a manual block must stay", b.Lane)
	}
}

func TestBoard_ClearingDependenciesUnblocks(t *testing.T) {
	tb := newTestBoard(t, BoardConfig{})
	tb.register(t, "dev")
	tb.create(t, models.TaskDraft{ID: "A", Title: "a"})
	tb.create(t, models.TaskDraft{ID: "D", Title: "d", DependsOn: []string{"A"}, Owner: "dev"})

	got, err := tb.board.UpdateTask("D", models.TaskPatch{DependsOn: &[]string{}})
	if err != nil {
		t.Fatal(err)
	}
	if got.Lane != models.LaneQueued || len(got.DependsOn) != 0 {
		t.Fatalf("D = lane %q deps %v, want queued with no deps", got.Lane, got.DependsOn)
	}
	if len(tb.notificationsOf(t, "dev", models.NotifyTaskUnblocked)) != 1 {
		t.Error("owner of D should be told it is unblocked")
	}
}

func TestBoard_ReplacingDependenciesWithOpenOnesStaysBlocked(t *testing.T) {
	tb := newTestBoard(t, BoardConfig{})
	tb.create(t, models.TaskDraft{ID: "A", Title: "a"})
	tb.create(t, models.TaskDraft{ID: "B", Title: "b"})
	tb.create(t, models.TaskDraft{ID: "D", Title: "d", DependsOn: []string{"A"}})

	got, err := tb.board.UpdateTask("D", models.TaskPatch{DependsOn: &[]string{"B"}})
	if err != nil {
		t.Fatal(err)
	}
	if got.Lane != models.LaneBlocked {
		t.Errorf("D lane = %q, want blocked on B", got.Lane)
	}
}

func TestBoard_ManualBlockSurvivesDependencyEdit(t *testing.T) {
	tb := newTestBoard(t, BoardConfig{})
	tb.create(t, models.TaskDraft{ID: "D", Title: "waiting on a decision", Lane: models.LaneBlocked})

	got, err := tb.board.UpdateTask("D", models.TaskPatch{DependsOn: &[]string{}})
	if err != nil {
		t.Fatal(err)
	}
	if got.Lane != models.LaneBlocked {
		t.Errorf("lane = %q, want blocked", got.Lane)
	}
}

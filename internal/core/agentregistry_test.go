package core

import (
	"errors"
	"testing"
	"time"

	"github.com/clawcontrol/claw/pkg/models"
)

func newTestRegistry(t *testing.T) (AgentRegistry, TaskStore, *memCollection[models.Agent], *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	tasks := NewTaskStore(newMemCollection[models.Task](), &sequentialIDs{}, models.P2, clock.Now)
	coll := newMemCollection[models.Agent]()
	return NewAgentRegistry(coll, tasks, 5*time.Minute, clock.Now), tasks, coll, clock
}

func TestAgentRegistry_RegisterNormalizes(t *testing.T) {
	reg, _, _, clock := newTestRegistry(t)

	v, err := reg.Register(models.Agent{ID: " frontend-dev ", Roles: []models.Role{"Frontend", "frontend", " QA "}})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if v.ID != "frontend-dev" || v.Name != "frontend-dev" {
		t.Errorf("ID/Name = %q/%q", v.ID, v.Name)
	}
	if len(v.Roles) != 2 || v.Roles[0] != models.RoleFrontend || v.Roles[1] != models.RoleQA {
		t.Errorf("Roles = %v", v.Roles)
	}
	if v.Status != models.AgentOnline {
		t.Errorf("Status = %q, want online", v.Status)
	}
	if !v.RegisteredAt.Equal(clock.Now()) || !v.LastSeenAt.Equal(clock.Now()) {
		t.Errorf("timestamps not set: %+v", v.Agent)
	}
}

func TestAgentRegistry_RegisterValidation(t *testing.T) {
	reg, _, _, _ := newTestRegistry(t)
	for _, id := range []string{"", "  ", "has space", "a/b"} {
		if _, err := reg.Register(models.Agent{ID: id}); !errors.Is(err, ErrValidation) {
			t.Errorf("id %q: expected validation error, got %v", id, err)
		}
	}
}

func TestAgentRegistry_RegisterIsIdempotent(t *testing.T) {
	reg, _, _, clock := newTestRegistry(t)
	agent := models.Agent{ID: "qa-bot", Name: "QA", Roles: []models.Role{models.RoleQA}}

	first, err := reg.Register(agent)
	if err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Minute)
	second, err := reg.Register(agent)
	if err != nil {
		t.Fatal(err)
	}

	all, err := reg.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("expected one agent, got %d", len(all))
	}
	if !second.RegisteredAt.Equal(first.RegisteredAt) {
		t.Error("re-register must keep RegisteredAt")
	}
	if !second.LastSeenAt.Equal(clock.Now()) {
		t.Error("re-register counts as a heartbeat")
	}
}

func TestAgentRegistry_StatusIsComputedLazily(t *testing.T) {
	reg, _, coll, clock := newTestRegistry(t)
	reg.Register(models.Agent{ID: "dev"})
	saves := coll.saves

	clock.Advance(4*time.Minute + 59*time.Second)
	v, _ := reg.Get("dev")
	if v.Status != models.AgentOnline {
		t.Errorf("before timeout: %q", v.Status)
	}

	clock.Advance(time.Second)
	v, _ = reg.Get("dev")
	if v.Status != models.AgentOffline {
		t.Errorf("after timeout: %q, want offline", v.Status)
	}
	if coll.saves != saves {
		t.Error("reading status must not write")
	}

	if _, err := reg.Heartbeat("dev", time.Time{}); err != nil {
		t.Fatal(err)
	}
	v, _ = reg.Get("dev")
	if v.Status != models.AgentOnline {
		t.Errorf("after heartbeat: %q", v.Status)
	}
}

func TestAgentRegistry_UpdateKeepsLiveness(t *testing.T) {
	reg, _, _, clock := newTestRegistry(t)
	first, err := reg.Register(models.Agent{ID: "fe", Roles: []models.Role{models.RoleFrontend}})
	if err != nil {
		t.Fatal(err)
	}
	clock.Advance(10 * time.Minute)
	if _, err := reg.PruneStale(clock.Now()); err != nil {
		t.Fatal(err)
	}

	roles := []models.Role{" Designer ", "designer"}
	v, err := reg.Update("fe", models.AgentPatch{Name: strPtr("  "), Roles: &roles, Emoji: strPtr("🎨")})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if v.Name != "fe" || len(v.Roles) != 1 || v.Roles[0] != models.RoleDesigner || v.Emoji != "🎨" {
		t.Errorf("profile = %+v", v.Agent)
	}
	if !v.LastSeenAt.Equal(first.LastSeenAt) || !v.RegisteredAt.Equal(first.RegisteredAt) {
		t.Errorf("timestamps changed: %+v", v.Agent)
	}
	if v.Status != models.AgentOffline {
		t.Errorf("status = %q, want offline", v.Status)
	}

	if _, err := reg.Update("ghost", models.AgentPatch{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestAgentRegistry_HeartbeatUnknown(t *testing.T) {
	reg, _, _, _ := newTestRegistry(t)
	if _, err := reg.Heartbeat("ghost", time.Time{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAgentRegistry_DerivedWorkloadAndClaim(t *testing.T) {
	reg, tasks, _, _ := newTestRegistry(t)
	reg.Register(models.Agent{ID: "dev"})

	tasks.Create(models.TaskDraft{ID: "T1", Title: "a", Owner: "dev"})
	tasks.Create(models.TaskDraft{ID: "T2", Title: "b", Owner: "dev", Lane: models.LaneDevelopment})
	tasks.Create(models.TaskDraft{ID: "T3", Title: "c", Owner: "dev", Lane: models.LaneDone})
	tasks.Create(models.TaskDraft{ID: "T4", Title: "d", Owner: "other", Lane: models.LaneDevelopment})

	if err := reg.SetCurrentTask("dev", "T2"); err != nil {
		t.Fatal(err)
	}
	v, _ := reg.Get("dev")
	if v.Workload != 2 || v.ActiveTasks != 1 {
		t.Errorf("Workload/ActiveTasks = %d/%d, want 2/1", v.Workload, v.ActiveTasks)
	}
	if v.CurrentTask != "T2" || v.Status != models.AgentBusy {
		t.Errorf("CurrentTask/Status = %q/%q", v.CurrentTask, v.Status)
	}

	// A claim on a task owned by someone else is dropped from the view.
	reg.SetCurrentTask("dev", "T4")
	v, _ = reg.Get("dev")
	if v.CurrentTask != "" || v.Status != models.AgentOnline {
		t.Errorf("stale claim leaked: %q/%q", v.CurrentTask, v.Status)
	}

	// Same for a claim on a task that no longer exists.
	reg.SetCurrentTask("dev", "T9")
	v, _ = reg.Get("dev")
	if v.CurrentTask != "" {
		t.Errorf("claim on missing task leaked: %q", v.CurrentTask)
	}
}

func TestAgentRegistry_ListByRole(t *testing.T) {
	reg, _, _, _ := newTestRegistry(t)
	reg.Register(models.Agent{ID: "b-front", Roles: []models.Role{models.RoleFrontend}})
	reg.Register(models.Agent{ID: "a-front", Roles: []models.Role{models.RoleFrontend, models.RoleDesigner}})
	reg.Register(models.Agent{ID: "api", Roles: []models.Role{models.RoleBackend}})

	got, err := reg.ListByRole("FRONTEND")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "a-front" || got[1].ID != "b-front" {
		t.Errorf("ListByRole = %+v", got)
	}
}

func TestAgentRegistry_PruneStaleMarksNotDeletes(t *testing.T) {
	reg, _, _, clock := newTestRegistry(t)
	reg.Register(models.Agent{ID: "old"})
	clock.Advance(10 * time.Minute)
	reg.Register(models.Agent{ID: "fresh"})

	marked, err := reg.PruneStale(clock.Now())
	if err != nil {
		t.Fatal(err)
	}
	if !equalStrings(marked, []string{"old"}) {
		t.Fatalf("marked = %v", marked)
	}
	again, _ := reg.PruneStale(clock.Now())
	if len(again) != 0 {
		t.Errorf("already-offline agents must not be reported twice: %v", again)
	}

	all, _ := reg.List()
	if len(all) != 2 {
		t.Fatalf("pruning must not delete, got %d agents", len(all))
	}
	if all[1].ID != "old" || all[1].Status != models.AgentOffline {
		t.Errorf("old agent = %+v", all[1])
	}
}

func TestAgentRegistry_Remove(t *testing.T) {
	reg, _, _, _ := newTestRegistry(t)
	reg.Register(models.Agent{ID: "dev"})
	if err := reg.Remove("dev"); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Get("dev"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found after remove, got %v", err)
	}
	if err := reg.Remove("dev"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found on second remove, got %v", err)
	}
}

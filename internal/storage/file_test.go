package storage

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/clawcontrol/claw/pkg/models"
)

func sampleTask(id string) models.Task {
	created := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	return models.Task{
		ID:        id,
		Title:     "Build React dashboard " + id,
		Scope:     "frontend",
		Lane:      models.LaneQueued,
		Priority:  models.P1,
		Owner:     "frontend-dev",
		Tags:      []string{"ui"},
		DependsOn: []string{"TASK-00000"},
		StatusHistory: []models.StatusChange{
			{At: created, From: "", To: models.LaneQueued, Note: "created"},
		},
		Comments: []models.Comment{
			{ID: "c1", By: "pm", Text: "ship it", At: created},
		},
		TimeEntries: []models.TimeEntry{
			{ID: "t1", AgentID: "frontend-dev", Hours: 1.5, Start: created, End: created.Add(90 * time.Minute)},
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestFileCollection_LoadMissingFile(t *testing.T) {
	c := NewFileCollection[models.Task](t.TempDir(), "tasks", FormatYAML)

	got, err := c.LoadAll()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty collection, got %d records", len(got))
	}
}

func TestFileCollection_SaveAndLoad(t *testing.T) {
	for _, format := range []Format{FormatYAML, FormatJSON} {
		t.Run(string(format), func(t *testing.T) {
			dir := t.TempDir()
			c := NewFileCollection[models.Task](dir, "tasks", format)

			in := map[string]models.Task{
				"TASK-00001": sampleTask("TASK-00001"),
				"TASK-00002": sampleTask("TASK-00002"),
			}
			if err := c.SaveAll(in); err != nil {
				t.Fatalf("SaveAll: %v", err)
			}

			if _, err := os.Stat(filepath.Join(dir, "tasks."+string(format))); err != nil {
				t.Fatalf("expected collection file: %v", err)
			}

			out, err := NewFileCollection[models.Task](dir, "tasks", format).LoadAll()
			if err != nil {
				t.Fatalf("LoadAll: %v", err)
			}
			if len(out) != 2 {
				t.Fatalf("expected 2 records, got %d", len(out))
			}
			got := out["TASK-00001"]
			if got.Title != in["TASK-00001"].Title {
				t.Errorf("title: got %q", got.Title)
			}
			if len(got.StatusHistory) != 1 || got.StatusHistory[0].To != models.LaneQueued {
				t.Errorf("status history not preserved: %+v", got.StatusHistory)
			}
			if got.TimeEntries[0].Hours != 1.5 {
				t.Errorf("time entry not preserved: %+v", got.TimeEntries)
			}
			if !got.CreatedAt.Equal(in["TASK-00001"].CreatedAt) {
				t.Errorf("created_at: got %v", got.CreatedAt)
			}
		})
	}
}

func TestFileCollection_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	c := NewFileCollection[models.Task](dir, "tasks", FormatYAML)
	for i := 0; i < 3; i++ {
		if err := c.SaveAll(map[string]models.Task{"TASK-00001": sampleTask("TASK-00001")}); err != nil {
			t.Fatalf("SaveAll: %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != "tasks.yaml" {
			t.Errorf("unexpected file left behind: %s", e.Name())
		}
	}
}

func TestFileCollection_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "tasks.json"), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := NewFileCollection[models.Task](dir, "tasks", FormatJSON).LoadAll()
	if err == nil {
		t.Fatal("expected error for corrupt file")
	}
}

func TestFileCollection_LockSerializes(t *testing.T) {
	dir := t.TempDir()
	c := NewFileCollection[int](dir, "counter", FormatJSON)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := c.Lock()
			if err != nil {
				t.Errorf("Lock: %v", err)
				return
			}
			defer unlock()
			recs, err := c.LoadAll()
			if err != nil {
				t.Errorf("LoadAll: %v", err)
				return
			}
			recs["n"]++
			if err := c.SaveAll(recs); err != nil {
				t.Errorf("SaveAll: %v", err)
			}
		}()
	}
	wg.Wait()

	recs, err := c.LoadAll()
	if err != nil {
		t.Fatal(err)
	}
	if recs["n"] != 20 {
		t.Fatalf("expected 20 increments, got %d", recs["n"])
	}
}

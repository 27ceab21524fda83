package cli

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/clawcontrol/claw/internal/core"
)

type mockWorkspaceInitializer struct {
	got    core.InitConfig
	result *core.InitResult
	err    error
}

func (m *mockWorkspaceInitializer) Init(config core.InitConfig) (*core.InitResult, error) {
	m.got = config
	return m.result, m.err
}

func withWorkspaceInit(t *testing.T, wi core.WorkspaceInitializer) {
	t.Helper()
	orig := WorkspaceInit
	t.Cleanup(func() { WorkspaceInit = orig })
	WorkspaceInit = wi
}

func TestInitCommand_NilInitializer(t *testing.T) {
	withWorkspaceInit(t, nil)

	_, err := runCLI(t, "init", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Errorf("expected not initialized error, got %v", err)
	}
}

func TestInitCommand_CreatesWorkspace(t *testing.T) {
	withWorkspaceInit(t, core.NewWorkspaceInitializer())
	dir := filepath.Join(t.TempDir(), "board")

	out := mustRun(t, "init", dir, "--prefix", "ops", "--redis", "127.0.0.1:6379")
	if !strings.Contains(out, "Created:") || !strings.Contains(out, core.ConfigFileName) {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(out, "Board workspace initialized at "+dir) {
		t.Errorf("output should name the workspace: %q", out)
	}

	cfg, err := core.NewConfigurationManager(dir).LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.TaskIDPrefix != "OPS" || cfg.Redis.Addr != "127.0.0.1:6379" {
		t.Errorf("config prefix %q redis %q", cfg.TaskIDPrefix, cfg.Redis.Addr)
	}
	if _, err := os.Stat(filepath.Join(dir, core.DataDirName)); err != nil {
		t.Errorf("data dir missing: %v", err)
	}

	out = mustRun(t, "init", dir)
	if !strings.Contains(out, "Skipped (already exist):") || strings.Contains(out, "Created:") {
		t.Errorf("second init should skip everything: %q", out)
	}
}

func TestInitCommand_PassesFlags(t *testing.T) {
	mock := &mockWorkspaceInitializer{result: &core.InitResult{}}
	withWorkspaceInit(t, mock)
	dir := t.TempDir()

	mustRun(t, "init", dir, "--backend", "sqlite", "--format", "json", "--addr", "0.0.0.0:8080")
	if mock.got.BasePath != dir {
		t.Errorf("BasePath = %q, want %q", mock.got.BasePath, dir)
	}
	if mock.got.Prefix != "TASK" || mock.got.Backend != "sqlite" || mock.got.Format != "json" || mock.got.ServerAddr != "0.0.0.0:8080" {
		t.Errorf("config = %+v", mock.got)
	}
}

func TestInitCommand_Error(t *testing.T) {
	withWorkspaceInit(t, &mockWorkspaceInitializer{err: errors.New("permission denied")})

	_, err := runCLI(t, "init", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "initializing workspace: permission denied") {
		t.Errorf("expected init error, got %v", err)
	}
}

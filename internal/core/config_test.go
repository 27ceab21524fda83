package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/clawcontrol/claw/pkg/models"
)

// --- Helper ---

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// --- LoadConfig tests ---

func TestLoadConfig_Defaults_WhenNoFile(t *testing.T) {
	cm := NewConfigurationManager(t.TempDir())

	cfg, err := cm.LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	def := DefaultConfig()
	if cfg.ServerAddr != def.ServerAddr {
		t.Errorf("ServerAddr = %q, want %q", cfg.ServerAddr, def.ServerAddr)
	}
	if cfg.Storage != def.Storage {
		t.Errorf("Storage = %+v, want %+v", cfg.Storage, def.Storage)
	}
	if cfg.TaskIDPrefix != "TASK" || cfg.TaskIDPadWidth != 5 {
		t.Errorf("task id = %q/%d", cfg.TaskIDPrefix, cfg.TaskIDPadWidth)
	}
	if cfg.DefaultPriority != models.P2 {
		t.Errorf("DefaultPriority = %q, want P2", cfg.DefaultPriority)
	}
	if cfg.AgentStaleTimeout != 5*time.Minute {
		t.Errorf("AgentStaleTimeout = %v", cfg.AgentStaleTimeout)
	}
	if cfg.Notifications != def.Notifications {
		t.Errorf("Notifications = %+v, want %+v", cfg.Notifications, def.Notifications)
	}
	if !cfg.RequireQAForDone || cfg.AutoAssignOnCreate {
		t.Errorf("workflow switches = %v/%v", cfg.RequireQAForDone, cfg.AutoAssignOnCreate)
	}
	if len(cfg.RoleTable) != 0 {
		t.Errorf("RoleTable = %+v, want empty", cfg.RoleTable)
	}
	if err := cm.ValidateConfig(cfg); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestLoadConfig_ReadsClawconfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ConfigFileName, `
server:
  addr: ":8080"
storage:
  backend: sqlite
  sqlite_path: board.db
task_id:
  prefix: CLAW
  pad_width: 3
defaults:
  priority: P1
agents:
  stale_timeout: 90s
notifications:
  max_attempts: 4
  backoff_initial: 2s
redis:
  addr: localhost:6379
  instance: ops
workflow:
  require_qa_for_done: false
assignment:
  auto_assign_on_create: true
  roles:
    - role: qa
      keywords: [bug, flaky]
    - role: backend
      keywords: [api]
log:
  level: debug
  format: text
`)
	cfg, err := NewConfigurationManager(dir).LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.ServerAddr != ":8080" {
		t.Errorf("ServerAddr = %q", cfg.ServerAddr)
	}
	if cfg.Storage.Backend != "sqlite" || cfg.Storage.SQLitePath != "board.db" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.TaskIDPrefix != "CLAW" || cfg.TaskIDPadWidth != 3 {
		t.Errorf("task id = %q/%d", cfg.TaskIDPrefix, cfg.TaskIDPadWidth)
	}
	if cfg.DefaultPriority != models.P1 {
		t.Errorf("DefaultPriority = %q", cfg.DefaultPriority)
	}
	if cfg.AgentStaleTimeout != 90*time.Second {
		t.Errorf("AgentStaleTimeout = %v", cfg.AgentStaleTimeout)
	}
	if cfg.Notifications.MaxAttempts != 4 || cfg.Notifications.BackoffInitial != 2*time.Second {
		t.Errorf("Notifications = %+v", cfg.Notifications)
	}
	if cfg.Notifications.Retention != DefaultRetention {
		t.Error("unset keys keep their defaults")
	}
	if cfg.Redis.Addr != "localhost:6379" || cfg.Redis.Instance != "ops" {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
	if cfg.RequireQAForDone || !cfg.AutoAssignOnCreate {
		t.Errorf("workflow switches = %v/%v", cfg.RequireQAForDone, cfg.AutoAssignOnCreate)
	}
	if len(cfg.RoleTable) != 2 || cfg.RoleTable[0].Role != models.RoleQA || cfg.RoleTable[0].Keywords[1] != "flaky" {
		t.Errorf("RoleTable = %+v", cfg.RoleTable)
	}
	if cfg.LogLevel != "debug" || cfg.LogFormat != "text" {
		t.Errorf("log = %q/%q", cfg.LogLevel, cfg.LogFormat)
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ConfigFileName, "server:\n  addr: \":8080\"\n")
	t.Setenv("CLAW_SERVER_ADDR", ":9090")
	t.Setenv("CLAW_NOTIFICATIONS_MAX_ATTEMPTS", "2")
	t.Setenv("CLAW_SLACK_BOARD_URL", "http://claw.local:8080")

	cfg, err := NewConfigurationManager(dir).LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ServerAddr != ":9090" {
		t.Errorf("ServerAddr = %q, want env override", cfg.ServerAddr)
	}
	if cfg.Notifications.MaxAttempts != 2 {
		t.Errorf("MaxAttempts = %d, want 2", cfg.Notifications.MaxAttempts)
	}
	if cfg.SlackBoardURL != "http://claw.local:8080" {
		t.Errorf("SlackBoardURL = %q, want env override", cfg.SlackBoardURL)
	}
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ConfigFileName, "server: [unterminated\n")
	if _, err := NewConfigurationManager(dir).LoadConfig(); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestConfigPath(t *testing.T) {
	dir := t.TempDir()
	if got := NewConfigurationManager(dir).ConfigPath(); got != filepath.Join(dir, ".clawconfig") {
		t.Errorf("ConfigPath = %q", got)
	}
}

// --- ValidateConfig tests ---

func TestValidateConfig_Nil(t *testing.T) {
	if err := NewConfigurationManager(t.TempDir()).ValidateConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestValidateConfig_SingleFieldErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.GlobalConfig)
		want   string
	}{
		{"empty addr", func(c *models.GlobalConfig) { c.ServerAddr = "" }, "server.addr"},
		{"bad backend", func(c *models.GlobalConfig) { c.Storage.Backend = "mongo" }, "storage.backend"},
		{"bad format", func(c *models.GlobalConfig) { c.Storage.Format = "toml" }, "storage.format"},
		{"sqlite without path", func(c *models.GlobalConfig) {
			c.Storage.Backend = "sqlite"
			c.Storage.SQLitePath = ""
		}, "storage.sqlite_path"},
		{"lowercase prefix", func(c *models.GlobalConfig) { c.TaskIDPrefix = "task" }, "task_id.prefix"},
		{"pad width", func(c *models.GlobalConfig) { c.TaskIDPadWidth = 11 }, "task_id.pad_width"},
		{"priority", func(c *models.GlobalConfig) { c.DefaultPriority = "P9" }, "defaults.priority"},
		{"stale timeout", func(c *models.GlobalConfig) { c.AgentStaleTimeout = 0 }, "agents.stale_timeout"},
		{"max attempts", func(c *models.GlobalConfig) { c.Notifications.MaxAttempts = 0 }, "notifications.max_attempts"},
		{"backoff order", func(c *models.GlobalConfig) { c.Notifications.BackoffMax = time.Second }, "backoff_max must not be less"},
		{"redis instance", func(c *models.GlobalConfig) {
			c.Redis.Addr = "localhost:6379"
			c.Redis.Instance = ""
		}, "redis.instance"},
		{"role row", func(c *models.GlobalConfig) {
			c.RoleTable = []models.RoleKeywordsConfig{{Role: "qa"}}
		}, "assignment.roles[0].keywords"},
		{"log level", func(c *models.GlobalConfig) { c.LogLevel = "trace" }, "log.level"},
		{"log format", func(c *models.GlobalConfig) { c.LogFormat = "xml" }, "log.format"},
	}
	cm := NewConfigurationManager(t.TempDir())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cm.ValidateConfig(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidateConfig_ReportsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ServerAddr = ""
	cfg.TaskIDPrefix = ""
	cfg.LogLevel = "loud"

	err := NewConfigurationManager(t.TempDir()).ValidateConfig(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if n := strings.Count(err.Error(), "\n  - "); n != 3 {
		t.Errorf("expected 3 reported errors, got %d in %q", n, err)
	}
}

// Package core contains the business logic of the Claw control center: the
// task store, agent registry, assignment resolver, notification store and
// dispatcher, the board service composing them, and configuration.
package core

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/clawcontrol/claw/pkg/models"
	"github.com/spf13/viper"
)

// ConfigFileName is the board configuration file looked up in the base path.
const ConfigFileName = ".clawconfig"

// validPrefixPattern matches uppercase alphanumeric prefixes between 1 and 10 characters.
var validPrefixPattern = regexp.MustCompile(`^[A-Z0-9]{1,10}$`)

// ConfigurationManager loads and validates the board configuration.
type ConfigurationManager interface {
	LoadConfig() (*models.GlobalConfig, error)
	ValidateConfig(cfg *models.GlobalConfig) error
	// ConfigPath is where the configuration file is (or would be) stored.
	ConfigPath() string
}

type viperConfigManager struct {
	basePath string
}

// NewConfigurationManager creates a ConfigurationManager reading
// basePath/.clawconfig. Environment variables prefixed CLAW_ override file
// values, e.g. CLAW_SERVER_ADDR for server.addr.
func NewConfigurationManager(basePath string) ConfigurationManager {
	return &viperConfigManager{basePath: basePath}
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *models.GlobalConfig {
	return &models.GlobalConfig{
		ServerAddr: "127.0.0.1:3001",
		Storage: models.StorageConfig{
			Backend:    "file",
			Format:     "yaml",
			SQLitePath: "claw.db",
		},
		TaskIDPrefix:      "TASK",
		TaskIDPadWidth:    5,
		DefaultPriority:   models.P2,
		AgentStaleTimeout: DefaultStaleTimeout,
		Notifications: models.NotificationConfig{
			DispatchInterval: DefaultDispatchInterval,
			DeliveryTimeout:  DefaultDeliveryTimeout,
			Retention:        DefaultRetention,
			MaxAttempts:      DefaultMaxAttempts,
			BackoffInitial:   DefaultBackoffInitial,
			BackoffMax:       DefaultBackoffMax,
		},
		Redis: models.RedisConfig{
			Instance: "default",
		},
		RequireQAForDone:   true,
		AutoAssignOnCreate: false,
		Alerts: models.AlertConfig{
			BlockedHours:   24,
			ReviewDays:     3,
			OfflineMinutes: 30,
			MaxQueueSize:   50,
		},
		LogLevel:  "info",
		LogFormat: "json",
	}
}

func (cm *viperConfigManager) ConfigPath() string {
	return filepath.Join(cm.basePath, ConfigFileName)
}

// LoadConfig reads .clawconfig with Viper. A missing file yields the
// defaults, still subject to CLAW_* environment overrides.
func (cm *viperConfigManager) LoadConfig() (*models.GlobalConfig, error) {
	def := DefaultConfig()

	v := viper.New()
	v.SetConfigName(ConfigFileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)
	v.SetEnvPrefix("CLAW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", def.ServerAddr)
	v.SetDefault("storage.backend", def.Storage.Backend)
	v.SetDefault("storage.format", def.Storage.Format)
	v.SetDefault("storage.sqlite_path", def.Storage.SQLitePath)
	v.SetDefault("task_id.prefix", def.TaskIDPrefix)
	v.SetDefault("task_id.pad_width", def.TaskIDPadWidth)
	v.SetDefault("defaults.priority", string(def.DefaultPriority))
	v.SetDefault("agents.stale_timeout", def.AgentStaleTimeout)
	v.SetDefault("notifications.dispatch_interval", def.Notifications.DispatchInterval)
	v.SetDefault("notifications.delivery_timeout", def.Notifications.DeliveryTimeout)
	v.SetDefault("notifications.retention", def.Notifications.Retention)
	v.SetDefault("notifications.max_attempts", def.Notifications.MaxAttempts)
	v.SetDefault("notifications.backoff_initial", def.Notifications.BackoffInitial)
	v.SetDefault("notifications.backoff_max", def.Notifications.BackoffMax)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.instance", def.Redis.Instance)
	v.SetDefault("redis.require_subscriber", false)
	v.SetDefault("workflow.require_qa_for_done", def.RequireQAForDone)
	v.SetDefault("assignment.auto_assign_on_create", def.AutoAssignOnCreate)
	v.SetDefault("alerts.blocked_hours", def.Alerts.BlockedHours)
	v.SetDefault("alerts.review_days", def.Alerts.ReviewDays)
	v.SetDefault("alerts.offline_minutes", def.Alerts.OfflineMinutes)
	v.SetDefault("alerts.max_queue_size", def.Alerts.MaxQueueSize)
	v.SetDefault("slack.webhook_url", "")
	v.SetDefault("slack.board_url", "")
	v.SetDefault("log.level", def.LogLevel)
	v.SetDefault("log.format", def.LogFormat)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading %s: %w", ConfigFileName, err)
		}
	}

	cfg := &models.GlobalConfig{
		ServerAddr: v.GetString("server.addr"),
		Storage: models.StorageConfig{
			Backend:    v.GetString("storage.backend"),
			Format:     v.GetString("storage.format"),
			SQLitePath: v.GetString("storage.sqlite_path"),
		},
		TaskIDPrefix:      v.GetString("task_id.prefix"),
		TaskIDPadWidth:    v.GetInt("task_id.pad_width"),
		DefaultPriority:   models.Priority(v.GetString("defaults.priority")),
		AgentStaleTimeout: v.GetDuration("agents.stale_timeout"),
		Notifications: models.NotificationConfig{
			DispatchInterval: v.GetDuration("notifications.dispatch_interval"),
			DeliveryTimeout:  v.GetDuration("notifications.delivery_timeout"),
			Retention:        v.GetDuration("notifications.retention"),
			MaxAttempts:      v.GetInt("notifications.max_attempts"),
			BackoffInitial:   v.GetDuration("notifications.backoff_initial"),
			BackoffMax:       v.GetDuration("notifications.backoff_max"),
		},
		Redis: models.RedisConfig{
			Addr:              v.GetString("redis.addr"),
			Password:          v.GetString("redis.password"),
			DB:                v.GetInt("redis.db"),
			Instance:          v.GetString("redis.instance"),
			RequireSubscriber: v.GetBool("redis.require_subscriber"),
		},
		RequireQAForDone:   v.GetBool("workflow.require_qa_for_done"),
		AutoAssignOnCreate: v.GetBool("assignment.auto_assign_on_create"),
		Alerts: models.AlertConfig{
			BlockedHours:   v.GetInt("alerts.blocked_hours"),
			ReviewDays:     v.GetInt("alerts.review_days"),
			OfflineMinutes: v.GetInt("alerts.offline_minutes"),
			MaxQueueSize:   v.GetInt("alerts.max_queue_size"),
		},
		SlackWebhookURL: v.GetString("slack.webhook_url"),
		SlackBoardURL:   v.GetString("slack.board_url"),
		LogLevel:        v.GetString("log.level"),
		LogFormat:       v.GetString("log.format"),
	}

	var roles []models.RoleKeywordsConfig
	if err := v.UnmarshalKey("assignment.roles", &roles); err != nil {
		return nil, fmt.Errorf("parsing assignment.roles: %w", err)
	}
	cfg.RoleTable = roles

	return cfg, nil
}

var (
	validBackends  = map[string]bool{"file": true, "sqlite": true}
	validFormats   = map[string]bool{"yaml": true, "json": true}
	validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormat = map[string]bool{"json": true, "text": true}
)

// ValidateConfig reports every invalid value at once.
func (cm *viperConfigManager) ValidateConfig(cfg *models.GlobalConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var errs []string

	if cfg.ServerAddr == "" {
		errs = append(errs, "server.addr must not be empty")
	}
	if !validBackends[cfg.Storage.Backend] {
		errs = append(errs, fmt.Sprintf("storage.backend %q is invalid, must be one of: file, sqlite", cfg.Storage.Backend))
	}
	if cfg.Storage.Backend == "file" && !validFormats[cfg.Storage.Format] {
		errs = append(errs, fmt.Sprintf("storage.format %q is invalid, must be one of: yaml, json", cfg.Storage.Format))
	}
	if cfg.Storage.Backend == "sqlite" && cfg.Storage.SQLitePath == "" {
		errs = append(errs, "storage.sqlite_path must not be empty with the sqlite backend")
	}
	if !validPrefixPattern.MatchString(cfg.TaskIDPrefix) {
		errs = append(errs, fmt.Sprintf("task_id.prefix %q is invalid, must match [A-Z0-9]{1,10}", cfg.TaskIDPrefix))
	}
	if cfg.TaskIDPadWidth < 0 || cfg.TaskIDPadWidth > 10 {
		errs = append(errs, fmt.Sprintf("task_id.pad_width %d is invalid, must be between 0 and 10", cfg.TaskIDPadWidth))
	}
	if !cfg.DefaultPriority.Valid() {
		errs = append(errs, fmt.Sprintf("defaults.priority %q is invalid, must be one of: P0, P1, P2, P3", cfg.DefaultPriority))
	}
	for key, d := range map[string]time.Duration{
		"agents.stale_timeout":            cfg.AgentStaleTimeout,
		"notifications.dispatch_interval": cfg.Notifications.DispatchInterval,
		"notifications.delivery_timeout":  cfg.Notifications.DeliveryTimeout,
		"notifications.retention":         cfg.Notifications.Retention,
		"notifications.backoff_initial":   cfg.Notifications.BackoffInitial,
		"notifications.backoff_max":       cfg.Notifications.BackoffMax,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Sprintf("%s must be positive, got %s", key, d))
		}
	}
	if cfg.Notifications.MaxAttempts < 1 {
		errs = append(errs, fmt.Sprintf("notifications.max_attempts must be at least 1, got %d", cfg.Notifications.MaxAttempts))
	}
	if cfg.Notifications.BackoffMax < cfg.Notifications.BackoffInitial {
		errs = append(errs, "notifications.backoff_max must not be less than notifications.backoff_initial")
	}
	if cfg.Redis.Addr != "" && cfg.Redis.Instance == "" {
		errs = append(errs, "redis.instance must not be empty when redis.addr is set")
	}
	for i, row := range cfg.RoleTable {
		if row.Role == "" {
			errs = append(errs, fmt.Sprintf("assignment.roles[%d].role must not be empty", i))
		}
		if len(row.Keywords) == 0 {
			errs = append(errs, fmt.Sprintf("assignment.roles[%d].keywords must not be empty", i))
		}
	}
	if !validLogLevels[strings.ToLower(cfg.LogLevel)] {
		errs = append(errs, fmt.Sprintf("log.level %q is invalid, must be one of: debug, info, warn, error", cfg.LogLevel))
	}
	if !validLogFormat[strings.ToLower(cfg.LogFormat)] {
		errs = append(errs, fmt.Sprintf("log.format %q is invalid, must be one of: json, text", cfg.LogFormat))
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

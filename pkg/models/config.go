package models

import "time"

// RoleKeywordsConfig is one row of the assignment role table as written in
// .clawconfig.
type RoleKeywordsConfig struct {
	Role     Role     `yaml:"role" mapstructure:"role"`
	Keywords []string `yaml:"keywords" mapstructure:"keywords"`
}

// StorageConfig selects the persistence backend for the board.
type StorageConfig struct {
	Backend    string `yaml:"backend" mapstructure:"backend"` // file | sqlite
	Format     string `yaml:"format" mapstructure:"format"`   // yaml | json
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// NotificationConfig tunes the dispatcher.
type NotificationConfig struct {
	DispatchInterval time.Duration `yaml:"dispatch_interval" mapstructure:"dispatch_interval"`
	DeliveryTimeout  time.Duration `yaml:"delivery_timeout" mapstructure:"delivery_timeout"`
	Retention        time.Duration `yaml:"retention" mapstructure:"retention"`
	MaxAttempts      int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	BackoffInitial   time.Duration `yaml:"backoff_initial" mapstructure:"backoff_initial"`
	BackoffMax       time.Duration `yaml:"backoff_max" mapstructure:"backoff_max"`
}

// RedisConfig enables the Redis pub/sub deliverer when Addr is set.
type RedisConfig struct {
	Addr              string `yaml:"addr" mapstructure:"addr"`
	Password          string `yaml:"password,omitempty" mapstructure:"password"`
	DB                int    `yaml:"db" mapstructure:"db"`
	Instance          string `yaml:"instance" mapstructure:"instance"`
	RequireSubscriber bool   `yaml:"require_subscriber" mapstructure:"require_subscriber"`
}

// AlertConfig holds alert thresholds.
type AlertConfig struct {
	BlockedHours   int `yaml:"blocked_hours" mapstructure:"blocked_hours"`
	ReviewDays     int `yaml:"review_days" mapstructure:"review_days"`
	OfflineMinutes int `yaml:"offline_minutes" mapstructure:"offline_minutes"`
	MaxQueueSize   int `yaml:"max_queue_size" mapstructure:"max_queue_size"`
}

// GlobalConfig holds board-wide settings read from .clawconfig via Viper.
type GlobalConfig struct {
	ServerAddr         string               `yaml:"server_addr" mapstructure:"server_addr"`
	Storage            StorageConfig        `yaml:"storage" mapstructure:"storage"`
	TaskIDPrefix       string               `yaml:"task_id_prefix" mapstructure:"task_id_prefix"`
	TaskIDPadWidth     int                  `yaml:"task_id_pad_width" mapstructure:"task_id_pad_width"`
	DefaultPriority    Priority             `yaml:"default_priority" mapstructure:"default_priority"`
	AgentStaleTimeout  time.Duration        `yaml:"agent_stale_timeout" mapstructure:"agent_stale_timeout"`
	Notifications      NotificationConfig   `yaml:"notifications" mapstructure:"notifications"`
	Redis              RedisConfig          `yaml:"redis" mapstructure:"redis"`
	RequireQAForDone   bool                 `yaml:"require_qa_for_done" mapstructure:"require_qa_for_done"`
	AutoAssignOnCreate bool                 `yaml:"auto_assign_on_create" mapstructure:"auto_assign_on_create"`
	RoleTable          []RoleKeywordsConfig `yaml:"roles,omitempty" mapstructure:"roles"`
	Alerts             AlertConfig          `yaml:"alerts" mapstructure:"alerts"`
	SlackWebhookURL    string               `yaml:"slack_webhook_url,omitempty" mapstructure:"slack_webhook_url"`
	SlackBoardURL      string               `yaml:"slack_board_url,omitempty" mapstructure:"slack_board_url"`
	LogLevel           string               `yaml:"log_level" mapstructure:"log_level"`
	LogFormat          string               `yaml:"log_format" mapstructure:"log_format"`
}

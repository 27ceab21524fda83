// Package internal provides the App struct that wires all components of the
// Claw control center together and initializes the CLI layer.
package internal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/clawcontrol/claw/internal/cli"
	"github.com/clawcontrol/claw/internal/core"
	"github.com/clawcontrol/claw/internal/delivery"
	"github.com/clawcontrol/claw/internal/httpapi"
	"github.com/clawcontrol/claw/internal/observability"
	"github.com/clawcontrol/claw/internal/storage"
	"github.com/clawcontrol/claw/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// App holds all service dependencies for the Claw control center.
type App struct {
	BasePath string
	Config   *models.GlobalConfig
	Logger   *slog.Logger

	// Configuration
	ConfigMgr core.ConfigurationManager

	// Storage layer
	SQLite *storage.SQLiteDB

	// Core services
	IDGen         core.TaskIDGenerator
	Tasks         core.TaskStore
	Agents        core.AgentRegistry
	Resolver      core.AssignmentResolver
	Notifications core.NotificationStore
	Board         core.BoardService
	Dispatcher    *core.Dispatcher

	// Delivery
	Redis *delivery.RedisDeliverer

	// Observability
	EventLog     observability.EventLog
	AlertEngine  observability.AlertEngine
	MetricsCalc  observability.MetricsCalculator
	Notifier     observability.Notifier
	PromRegistry *prometheus.Registry
	HealthChecks map[string]httpapi.HealthCheck
}

// Options tweak NewApp for embedding and tests. The zero value is the
// production setup.
type Options struct {
	// LogOutput receives structured logs. Defaults to os.Stderr.
	LogOutput io.Writer
	// RedisPingAttempts bounds the startup connectivity check. Defaults to 3.
	RedisPingAttempts uint64
}

// NewApp creates and wires all components of the Claw control center.
// basePath is the workspace root holding .clawconfig and the board data.
func NewApp(basePath string, opts Options) (*App, error) {
	app := &App{BasePath: basePath}

	// --- Configuration ---
	app.ConfigMgr = core.NewConfigurationManager(basePath)
	cfg, err := app.ConfigMgr.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := app.ConfigMgr.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", core.ConfigFileName, err)
	}
	app.Config = cfg

	// --- Logging ---
	logOut := opts.LogOutput
	if logOut == nil {
		logOut = os.Stderr
	}
	app.Logger = newLogger(logOut, cfg.LogLevel, cfg.LogFormat)

	// --- Storage layer ---
	var (
		taskColl  core.Collection[models.Task]
		agentColl core.Collection[models.Agent]
		noteColl  core.Collection[models.Notification]
	)
	switch cfg.Storage.Backend {
	case "sqlite":
		dbPath := cfg.Storage.SQLitePath
		if !filepath.IsAbs(dbPath) {
			dbPath = filepath.Join(basePath, dbPath)
		}
		app.SQLite, err = storage.OpenSQLite(dbPath)
		if err != nil {
			return nil, err
		}
		taskColl = storage.NewSQLiteCollection[models.Task](app.SQLite, "tasks")
		agentColl = storage.NewSQLiteCollection[models.Agent](app.SQLite, "agents")
		noteColl = storage.NewSQLiteCollection[models.Notification](app.SQLite, "notifications")
	default:
		dataDir := filepath.Join(basePath, core.DataDirName)
		format := storage.Format(cfg.Storage.Format)
		taskColl = storage.NewFileCollection[models.Task](dataDir, "tasks", format)
		agentColl = storage.NewFileCollection[models.Agent](dataDir, "agents", format)
		noteColl = storage.NewFileCollection[models.Notification](dataDir, "notifications", format)
	}

	// --- Observability ---
	app.EventLog, err = observability.NewJSONLEventLog(filepath.Join(basePath, observability.EventLogFileName))
	if err != nil {
		// Non-fatal: the board runs without an audit trail.
		app.Logger.Warn("event log disabled", "error", err)
		app.EventLog = nil
	}
	var events core.EventLogger
	if app.EventLog != nil {
		events = observability.NewBoardEventLogger(app.EventLog, nil)
		app.MetricsCalc = observability.NewMetricsCalculator(app.EventLog)
	}

	app.PromRegistry = prometheus.NewRegistry()
	prom := observability.NewPromMetrics(app.PromRegistry)

	// --- Core services ---
	app.IDGen = core.NewTaskIDGenerator(basePath, cfg.TaskIDPrefix, cfg.TaskIDPadWidth)
	app.Tasks = core.NewTaskStore(taskColl, app.IDGen, cfg.DefaultPriority, nil)
	app.Agents = core.NewAgentRegistry(agentColl, app.Tasks, cfg.AgentStaleTimeout, nil)
	app.Resolver = core.NewAssignmentResolver(core.RoleTableFromConfig(cfg.RoleTable), app.Agents)
	app.Notifications = core.NewNotificationStore(noteColl, cfg.Notifications.Retention, nil)
	app.Board = core.NewBoardService(core.BoardDeps{
		Tasks:         app.Tasks,
		Agents:        app.Agents,
		Resolver:      app.Resolver,
		Notifications: app.Notifications,
		Events:        events,
		Metrics:       prom,
		Logger:        app.Logger,
	}, core.BoardConfig{
		RequireQAForDone:   cfg.RequireQAForDone,
		AutoAssignOnCreate: cfg.AutoAssignOnCreate,
	})

	app.AlertEngine = observability.NewAlertEngine(app.Board, alertThresholds(cfg.Alerts), nil)
	if cfg.SlackWebhookURL != "" {
		app.Notifier = observability.NewSlackNotifier(cfg.SlackWebhookURL, cfg.SlackBoardURL)
	}

	// --- Delivery ---
	app.HealthChecks = make(map[string]httpapi.HealthCheck)
	if app.SQLite != nil {
		app.HealthChecks["storage"] = app.SQLite.Ping
	}

	web := delivery.NewHTTPDeliverer(&http.Client{Timeout: cfg.Notifications.DeliveryTimeout})
	var pubsub core.Deliverer
	if cfg.Redis.Addr != "" {
		app.Redis, err = delivery.NewRedisDeliverer(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.Redis.Instance, cfg.Redis.RequireSubscriber)
		if err != nil {
			return nil, fmt.Errorf("configuring redis: %w", err)
		}
		if err := pingWithRetry(app.Redis.Ping, opts.RedisPingAttempts); err != nil {
			// Non-fatal: failed publishes are retried by the dispatcher.
			app.Logger.Warn("redis unreachable at startup", "addr", cfg.Redis.Addr, "error", err)
		}
		pubsub = app.Redis
		app.HealthChecks["redis"] = app.Redis.Ping
	}

	app.Dispatcher = core.NewDispatcher(
		app.Notifications,
		app.Agents,
		delivery.NewMultiDeliverer(web, pubsub),
		events,
		prom,
		app.Logger,
		core.DispatcherConfig{
			Interval:       cfg.Notifications.DispatchInterval,
			Timeout:        cfg.Notifications.DeliveryTimeout,
			MaxAttempts:    cfg.Notifications.MaxAttempts,
			BackoffInitial: cfg.Notifications.BackoffInitial,
			BackoffMax:     cfg.Notifications.BackoffMax,
		},
		nil,
	)

	// --- Wire CLI package-level variables ---
	cli.BasePath = basePath
	cli.Config = cfg
	cli.ConfigMgr = app.ConfigMgr
	cli.Board = app.Board
	cli.Dispatcher = app.Dispatcher
	cli.Logger = app.Logger
	cli.WorkspaceInit = core.NewWorkspaceInitializer()

	cli.EventLog = app.EventLog
	cli.AlertEngine = app.AlertEngine
	cli.MetricsCalc = app.MetricsCalc
	cli.Notifier = app.Notifier
	cli.PromRegistry = app.PromRegistry
	cli.HealthChecks = app.HealthChecks

	return app, nil
}

// Close releases resources held by the App: the event log file handle, the
// Redis client and the SQLite database. Nil components are skipped.
func (a *App) Close() error {
	var errs []string
	if a.EventLog != nil {
		if err := a.EventLog.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("event log: %v", err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("redis: %v", err))
		}
	}
	if a.SQLite != nil {
		if err := a.SQLite.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("sqlite: %v", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("closing app: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ResolveBasePath determines the workspace root. It checks the CLAW_HOME env
// var, then walks up from the current directory looking for .clawconfig, and
// finally falls back to the current directory.
func ResolveBasePath() string {
	if home := os.Getenv("CLAW_HOME"); home != "" {
		return home
	}
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, core.ConfigFileName)); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	cwd, _ := os.Getwd()
	return cwd
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(format) == "text" {
		return slog.New(slog.NewTextHandler(w, handlerOpts))
	}
	return slog.New(slog.NewJSONHandler(w, handlerOpts))
}

func alertThresholds(cfg models.AlertConfig) observability.AlertThresholds {
	th := observability.DefaultAlertThresholds()
	if cfg.BlockedHours > 0 {
		th.BlockedHours = cfg.BlockedHours
	}
	if cfg.ReviewDays > 0 {
		th.ReviewDays = cfg.ReviewDays
	}
	if cfg.OfflineMinutes > 0 {
		th.OfflineMinutes = cfg.OfflineMinutes
	}
	if cfg.MaxQueueSize > 0 {
		th.MaxQueueSize = cfg.MaxQueueSize
	}
	return th
}

// pingWithRetry retries ping with exponential backoff, giving up after
// attempts tries.
func pingWithRetry(ping func(context.Context) error, attempts uint64) error {
	if attempts == 0 {
		attempts = 3
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return backoff.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return ping(ctx)
	}, backoff.WithMaxRetries(b, attempts-1))
}

package cli

import (
	"log/slog"

	"github.com/clawcontrol/claw/internal/core"
	"github.com/clawcontrol/claw/internal/httpapi"
	"github.com/clawcontrol/claw/internal/observability"
	"github.com/clawcontrol/claw/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
)

// Service instances, set during app initialization in app.go.
var (
	BasePath   string
	Config     *models.GlobalConfig
	ConfigMgr  core.ConfigurationManager
	Board      core.BoardService
	Dispatcher *core.Dispatcher
	Logger     *slog.Logger
)

// Observability service instances, set during app initialization in app.go.
var (
	EventLog     observability.EventLog
	AlertEngine  observability.AlertEngine
	MetricsCalc  observability.MetricsCalculator
	Notifier     observability.Notifier
	PromRegistry *prometheus.Registry
	HealthChecks map[string]httpapi.HealthCheck
)

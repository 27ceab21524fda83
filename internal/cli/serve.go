package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clawcontrol/claw/internal/httpapi"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var (
	serveAddr          string
	serveNoDispatch    bool
	serveAlertInterval time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP bridge and the notification dispatcher",
	Long: `Start the HTTP bridge (REST API, /healthz and Prometheus /metrics) and the
notification dispatcher that pushes pending notifications to agents.

When a Slack webhook is configured, alerts are also evaluated every
--alert-interval and posted to Slack. Stops cleanly on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBoard(); err != nil {
			return err
		}
		addr := serveAddr
		if addr == "" && Config != nil {
			addr = Config.ServerAddr
		}
		if addr == "" {
			return fmt.Errorf("no listen address: set --addr or server.addr")
		}

		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, addr)
	},
}

// runServe runs every background component until ctx is cancelled or one of
// them fails, then stops the rest.
func runServe(ctx context.Context, addr string) error {
	logger := Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	deps := httpapi.Deps{
		Board:   Board,
		Alerts:  AlertEngine,
		Metrics: MetricsCalc,
		Checks:  HealthChecks,
		Logger:  logger,
	}
	if PromRegistry != nil {
		deps.MetricsHandler = promhttp.HandlerFor(PromRegistry, promhttp.HandlerOpts{})
	}
	srv := httpapi.NewServer(deps)

	type result struct {
		name string
		err  error
	}
	results := make(chan result, 3)
	running := 0
	start := func(name string, fn func(context.Context) error) {
		running++
		go func() { results <- result{name: name, err: fn(ctx)} }()
	}

	start("http", func(ctx context.Context) error { return srv.ListenAndServe(ctx, addr) })
	if Dispatcher != nil && !serveNoDispatch {
		start("dispatcher", Dispatcher.Run)
	}
	if Notifier != nil && AlertEngine != nil && serveAlertInterval > 0 {
		start("alerts", func(ctx context.Context) error { return runAlertLoop(ctx, logger, serveAlertInterval) })
	}

	var firstErr error
	for i := 0; i < running; i++ {
		r := <-results
		if r.err != nil && !errors.Is(r.err, context.Canceled) && firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", r.name, r.err)
			logger.Error("component failed, shutting down", "component", r.name, "error", r.err)
		}
		cancel()
	}
	return firstErr
}

// runAlertLoop posts triggered alerts to the notifier on every tick.
func runAlertLoop(ctx context.Context, logger *slog.Logger, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			alerts, err := AlertEngine.Evaluate()
			if err != nil {
				logger.Error("evaluating alerts", "error", err)
				continue
			}
			if len(alerts) == 0 {
				continue
			}
			if err := Notifier.Notify(ctx, alerts); err != nil {
				logger.Error("sending alerts", "error", err, "count", len(alerts))
			}
		}
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default server.addr)")
	serveCmd.Flags().BoolVar(&serveNoDispatch, "no-dispatch", false, "do not run the notification dispatcher")
	serveCmd.Flags().DurationVar(&serveAlertInterval, "alert-interval", 15*time.Minute, "how often to post alerts to Slack (0 disables)")
	rootCmd.AddCommand(serveCmd)
}

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	clawmcp "github.com/clawcontrol/claw/internal/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  "Commands for running the Claw MCP (Model Context Protocol) server.",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Claw MCP server on stdio",
	Long: `Start the Claw MCP server on stdio transport.

The server exposes the board as MCP tools that agents can call: list_tasks,
get_task, create_task, update_task, next_task, claim_task, add_comment,
log_time, heartbeat, list_notifications, mark_notification_read, get_metrics,
get_alerts.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Board == nil {
			return fmt.Errorf("board not initialized")
		}

		srv := clawmcp.NewServer(Board, MetricsCalc, AlertEngine, appVersion)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("running MCP server: %w", err)
		}

		return nil
	},
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var alertsNotify bool

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Show active alerts and warnings",
	Long: `Evaluate alert conditions against the current board and display any
triggered alerts.

Alerts check for tasks blocked or in review too long, offline agents still
owning work, dead-lettered notifications and queue size. With --notify the
alerts are also posted to the configured Slack webhook.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if AlertEngine == nil {
			return fmt.Errorf("alert engine not initialized (observability may be disabled)")
		}

		alerts, err := AlertEngine.Evaluate()
		if err != nil {
			return fmt.Errorf("evaluating alerts: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(alerts) == 0 {
			fmt.Fprintln(out, "No active alerts.")
			return nil
		}

		fmt.Fprintf(out, "%d active alert(s):\n\n", len(alerts))
		for _, alert := range alerts {
			severity := strings.ToUpper(string(alert.Severity))
			fmt.Fprintf(out, "  [%s] %s\n", severity, alert.Message)
			fmt.Fprintf(out, "         triggered at %s\n\n", alert.TriggeredAt.Format("2006-01-02 15:04 UTC"))
		}

		if alertsNotify {
			if Notifier == nil {
				return fmt.Errorf("no notifier configured: set slack.webhook_url")
			}
			if err := Notifier.Notify(commandContext(cmd), alerts); err != nil {
				return fmt.Errorf("sending alerts: %w", err)
			}
			fmt.Fprintln(out, "Alerts sent to Slack.")
		}

		return nil
	},
}

func init() {
	alertsCmd.Flags().BoolVar(&alertsNotify, "notify", false, "Post the alerts to the configured Slack webhook")
	rootCmd.AddCommand(alertsCmd)
}

package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/clawcontrol/claw/pkg/models"
	"github.com/spf13/cobra"
)

var (
	metricsJSON  bool
	metricsSince string
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Display board and delivery metrics",
	Long: `Display aggregated metrics derived from the event log.

Metrics include task creation and completion counts, lane entries,
assignments, logged hours, agent registrations and notification delivery
outcomes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if MetricsCalc == nil {
			return fmt.Errorf("metrics calculator not initialized (observability may be disabled)")
		}

		sinceTime, err := parseSinceDuration(metricsSince)
		if err != nil {
			return fmt.Errorf("parsing --since: %w", err)
		}

		metrics, err := MetricsCalc.Calculate(sinceTime)
		if err != nil {
			return fmt.Errorf("calculating metrics: %w", err)
		}

		out := cmd.OutOrStdout()
		if metricsJSON {
			data, err := json.MarshalIndent(metrics, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting metrics as JSON: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		fmt.Fprintf(out, "Metrics (since %s)\n\n", sinceTime.Format("2006-01-02"))
		fmt.Fprintf(out, "  %-28s %d\n", "Events recorded:", metrics.EventCount)
		fmt.Fprintf(out, "  %-28s %d\n", "Tasks created:", metrics.TasksCreated)
		fmt.Fprintf(out, "  %-28s %d\n", "Tasks completed:", metrics.TasksCompleted)
		fmt.Fprintf(out, "  %-28s %d\n", "Tasks unblocked:", metrics.TasksUnblocked)
		fmt.Fprintf(out, "  %-28s %d\n", "Assignments:", metrics.Assignments)
		fmt.Fprintf(out, "  %-28s %d\n", "Comments:", metrics.Comments)
		fmt.Fprintf(out, "  %-28s %.2f\n", "Hours logged:", metrics.HoursLogged)
		fmt.Fprintf(out, "  %-28s %d\n", "Agents registered:", metrics.AgentsRegistered)
		fmt.Fprintf(out, "  %-28s %d\n", "Agents went offline:", metrics.AgentsWentOffline)

		fmt.Fprintln(out, "\n  Notifications:")
		fmt.Fprintf(out, "    %-26s %d\n", "enqueued:", metrics.NotificationsEnqueued)
		fmt.Fprintf(out, "    %-26s %d\n", "delivered:", metrics.NotificationsDelivered)
		fmt.Fprintf(out, "    %-26s %d\n", "failed attempts:", metrics.NotificationsFailed)
		fmt.Fprintf(out, "    %-26s %d\n", "dead-lettered:", metrics.NotificationsDeadLettered)

		if len(metrics.LaneEntries) > 0 {
			fmt.Fprintln(out, "\n  Lane entries:")
			for _, lane := range models.Lanes {
				if n := metrics.LaneEntries[string(lane)]; n > 0 {
					fmt.Fprintf(out, "    %-26s %d\n", string(lane)+":", n)
				}
			}
			var extra []string
			for lane := range metrics.LaneEntries {
				if !models.Lane(lane).Valid() {
					extra = append(extra, lane)
				}
			}
			sort.Strings(extra)
			for _, lane := range extra {
				fmt.Fprintf(out, "    %-26s %d\n", lane+":", metrics.LaneEntries[lane])
			}
		}

		if metrics.OldestEvent != nil {
			fmt.Fprintf(out, "\n  %-28s %s\n", "Oldest event:", metrics.OldestEvent.Format(time.RFC3339))
		}
		if metrics.NewestEvent != nil {
			fmt.Fprintf(out, "  %-28s %s\n", "Newest event:", metrics.NewestEvent.Format(time.RFC3339))
		}

		return nil
	},
}

// parseSinceDuration parses a human-friendly duration string like "7d", "30d",
// or "24h" and returns the corresponding time in the past.
func parseSinceDuration(s string) (time.Time, error) {
	now := time.Now().UTC()
	s = strings.TrimSpace(s)
	if s == "" {
		return now.AddDate(0, 0, -7), nil
	}

	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid day duration %q", s)
		}
		return now.AddDate(0, 0, -days), nil
	}

	if strings.HasSuffix(s, "h") {
		hours, err := strconv.Atoi(strings.TrimSuffix(s, "h"))
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid hour duration %q", s)
		}
		return now.Add(-time.Duration(hours) * time.Hour), nil
	}

	return time.Time{}, fmt.Errorf("unsupported duration format %q (use e.g. 7d, 30d, 24h)", s)
}

func init() {
	metricsCmd.Flags().BoolVar(&metricsJSON, "json", false, "Output metrics as JSON")
	metricsCmd.Flags().StringVar(&metricsSince, "since", "7d", "Time window for metrics (e.g. 7d, 30d, 24h)")
	rootCmd.AddCommand(metricsCmd)
}

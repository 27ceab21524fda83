package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/clawcontrol/claw/pkg/models"
	"github.com/spf13/cobra"
)

var statusLane string

// statusOrder lists lanes with in-flight work first.
var statusOrder = []models.Lane{
	models.LaneDevelopment,
	models.LaneBlocked,
	models.LaneReview,
	models.LaneQueued,
	models.LaneProposed,
	models.LaneDone,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display tasks grouped by lane",
	Long: `Display the board organized by lane, followed by a one-line summary of
the agent team.

Optionally restrict the output to a single lane using --lane.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBoard(); err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		snap, err := Board.Snapshot()
		if err != nil {
			return fmt.Errorf("fetching board: %w", err)
		}

		if statusLane != "" {
			lane := models.Lane(strings.ToLower(statusLane))
			if !lane.Valid() {
				return fmt.Errorf("unknown lane %q", statusLane)
			}
			printStatusGroup(out, lane, snap.Lanes[lane])
			return nil
		}

		total := 0
		for _, tasks := range snap.Lanes {
			total += len(tasks)
		}
		if total == 0 {
			fmt.Fprintln(out, "No tasks found.")
		}
		for _, lane := range statusOrder {
			if group := snap.Lanes[lane]; len(group) > 0 {
				printStatusGroup(out, lane, group)
				fmt.Fprintln(out)
			}
		}

		counts := make(map[models.AgentStatus]int)
		for _, a := range snap.Agents {
			counts[a.Status]++
		}
		fmt.Fprintf(out, "Agents: %d online, %d busy, %d offline\n",
			counts[models.AgentOnline], counts[models.AgentBusy], counts[models.AgentOffline])
		return nil
	},
}

// printStatusGroup prints a table of tasks under a lane heading.
func printStatusGroup(w io.Writer, lane models.Lane, tasks []*models.Task) {
	fmt.Fprintf(w, "== %s (%d) ==\n", strings.ToUpper(string(lane)), len(tasks))
	fmt.Fprintf(w, "  %-12s %-4s %-14s %s\n", "ID", "PRI", "OWNER", "TITLE")
	for _, t := range tasks {
		owner := t.Owner
		if owner == "" {
			owner = "-"
		}
		fmt.Fprintf(w, "  %-12s %-4s %-14s %s\n", t.ID, t.Priority, truncate(owner, 14), truncate(t.Title, 60))
	}
}

func init() {
	statusCmd.Flags().StringVarP(&statusLane, "lane", "l", "", "only show one lane (proposed, queued, development, review, blocked, done)")
	registerFlagCompletions(statusCmd, map[string]cobra.CompletionFunc{"lane": completeLanes})
	rootCmd.AddCommand(statusCmd)
}

package cli

import (
	"fmt"

	"github.com/clawcontrol/claw/pkg/models"
	"github.com/spf13/cobra"
)

var priorityBy string

var priorityCmd = &cobra.Command{
	Use:   "priority <task-id> [task-id...]",
	Short: "Reorder task priorities",
	Long: `Reorder task priorities by specifying task IDs in priority order.

The first task gets P0 (highest priority), the second P1, the third P2,
and subsequent tasks get P3. This is a convenient way to reprioritize
multiple tasks at once.

Examples:
  claw priority TASK-00003 TASK-00001 TASK-00005
  # TASK-00003 -> P0, TASK-00001 -> P1, TASK-00005 -> P2`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBoard(); err != nil {
			return err
		}
		// Check every ID up front so a typo does not leave a half-applied order.
		for _, id := range args {
			if _, err := Board.GetTask(id); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Priorities updated:")
		for i, id := range args {
			p := priorityForRank(i)
			if _, err := Board.UpdateTask(id, models.TaskPatch{Priority: &p, By: priorityBy}); err != nil {
				return fmt.Errorf("updating %s: %w", id, err)
			}
			fmt.Fprintf(out, "  %s -> %s\n", id, p)
		}
		return nil
	},
}

func priorityForRank(i int) models.Priority {
	priorities := []models.Priority{models.P0, models.P1, models.P2}
	if i < len(priorities) {
		return priorities[i]
	}
	return models.P3
}

func init() {
	priorityCmd.Flags().StringVar(&priorityBy, "by", "", "who is reprioritizing")
	priorityCmd.ValidArgsFunction = completeTaskIDs(models.LaneDone)
	rootCmd.AddCommand(priorityCmd)
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

var rootCmd = &cobra.Command{
	Use:   "claw",
	Short: "Claw - control center for a team of AI agents",
	Long: `Claw is a control center for coordinating a team of AI agents on a shared
kanban board.

Tasks move through lanes (proposed, queued, development, review, blocked,
done), agents register with roles and heartbeat to stay online, work is
routed to the least-loaded matching agent, and every change that concerns an
agent produces a notification pushed to its endpoint or Redis channel.

Run "claw serve" to start the HTTP bridge and the notification dispatcher.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "claw %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func requireBoard() error {
	if Board == nil {
		return fmt.Errorf("board not initialized")
	}
	return nil
}

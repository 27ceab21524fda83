package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var notifyCmd = &cobra.Command{
	Use:     "notify",
	Aliases: []string{"notifications"},
	Short:   "Inspect and manage agent notifications",
}

var (
	notifyListUnread bool
	notifyListJSON   bool
)

var notifyListCmd = &cobra.Command{
	Use:   "list <agent-id>",
	Short: "List an agent's notifications, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBoard(); err != nil {
			return err
		}
		notes, err := Board.Notifications(args[0], notifyListUnread)
		if err != nil {
			return fmt.Errorf("listing notifications: %w", err)
		}
		if notifyListJSON {
			return printJSON(cmd, notes)
		}
		out := cmd.OutOrStdout()
		if len(notes) == 0 {
			fmt.Fprintln(out, "No notifications.")
			return nil
		}
		for _, n := range notes {
			mark := " "
			if !n.Read {
				mark = "*"
			}
			state := "pending"
			switch {
			case n.Delivered:
				state = "delivered"
			case n.DeadLettered:
				state = "dead-lettered"
			}
			fmt.Fprintf(out, "%s %-10s %-16s %-13s %s\n", mark, truncate(n.ID, 10), n.Type, state, n.Title)
		}
		return nil
	},
}

var notifyReadCmd = &cobra.Command{
	Use:   "read <agent-id> [notification-id]",
	Short: "Mark one or all of an agent's notifications read",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBoard(); err != nil {
			return err
		}
		if len(args) == 1 {
			n, err := Board.MarkAllNotificationsRead(args[0])
			if err != nil {
				return fmt.Errorf("marking notifications read: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Marked %d notification(s) read\n", n)
			return nil
		}
		if _, err := Board.MarkNotificationRead(args[0], args[1]); err != nil {
			return fmt.Errorf("marking notification read: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Notification %s marked read\n", args[1])
		return nil
	},
}

var notifyDispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Run one delivery pass over pending notifications",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Dispatcher == nil {
			return fmt.Errorf("dispatcher not initialized")
		}
		res, err := Dispatcher.DispatchOnce(commandContext(cmd))
		if err != nil {
			return fmt.Errorf("dispatching notifications: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Delivered %d, failed %d, dead-lettered %d, no route %d\n",
			res.Delivered, res.Failed, res.DeadLettered, res.NoRoute)
		return nil
	},
}

var notifyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete notifications past the retention window",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Dispatcher == nil {
			return fmt.Errorf("dispatcher not initialized")
		}
		res, err := Dispatcher.Housekeep()
		if err != nil {
			return fmt.Errorf("pruning notifications: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d notification(s)\n", len(res.PrunedNotifications))
		return nil
	},
}

func init() {
	notifyListCmd.Flags().BoolVarP(&notifyListUnread, "unread", "u", false, "only unread notifications")
	notifyListCmd.Flags().BoolVar(&notifyListJSON, "json", false, "output as JSON")

	notifyListCmd.ValidArgsFunction = completePositional(completeAgentIDs)
	notifyReadCmd.ValidArgsFunction = completePositional(completeAgentIDs)

	notifyCmd.AddCommand(notifyListCmd, notifyReadCmd, notifyDispatchCmd, notifyPruneCmd)
	rootCmd.AddCommand(notifyCmd)
}

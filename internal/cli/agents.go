package cli

import (
	"fmt"
	"time"

	"github.com/clawcontrol/claw/pkg/models"
	"github.com/spf13/cobra"
)

var agentCmd = &cobra.Command{
	Use:     "agent",
	Aliases: []string{"agents"},
	Short:   "Manage registered agents",
	Long: `Register agents, inspect their status and workload, and record heartbeats.

An agent is online while its last heartbeat is newer than agents.stale_timeout,
busy when it has a current task, and offline otherwise.`,
}

// Flags for "agent register".
var (
	agentRegisterName     string
	agentRegisterRoles    []string
	agentRegisterEmoji    string
	agentRegisterDesc     string
	agentRegisterEndpoint string
)

var agentRegisterCmd = &cobra.Command{
	Use:   "register <agent-id>",
	Short: "Register an agent or refresh its profile",
	Long: `Register an agent. Registering an existing ID updates its profile and counts
as a heartbeat.

Notifications are pushed to --endpoint over HTTP, or published on the agent's
Redis channel when no endpoint is set and Redis is configured.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBoard(); err != nil {
			return err
		}
		name := agentRegisterName
		if name == "" {
			name = args[0]
		}
		view, err := Board.RegisterAgent(models.Agent{
			ID:          args[0],
			Name:        name,
			Roles:       parseRoles(agentRegisterRoles),
			Emoji:       agentRegisterEmoji,
			Description: agentRegisterDesc,
			Endpoint:    agentRegisterEndpoint,
		})
		if err != nil {
			return fmt.Errorf("registering agent: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Agent %s registered with roles %s\n", view.ID, joinRoles(view.Roles))
		return nil
	},
}

var (
	agentListRole string
	agentListJSON bool
)

var agentListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List agents with status and workload",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBoard(); err != nil {
			return err
		}
		agents, err := Board.ListAgents(models.Role(agentListRole))
		if err != nil {
			return fmt.Errorf("listing agents: %w", err)
		}
		if agentListJSON {
			return printJSON(cmd, agents)
		}
		printAgentTable(cmd.OutOrStdout(), agents)
		return nil
	},
}

var agentShowCmd = &cobra.Command{
	Use:   "show <agent-id>",
	Short: "Show an agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBoard(); err != nil {
			return err
		}
		a, err := Board.GetAgent(args[0])
		if err != nil {
			return fmt.Errorf("getting agent: %w", err)
		}
		out := cmd.OutOrStdout()
		bold.Fprintf(out, "%s %s\n", a.Emoji, a.Name)
		fmt.Fprintf(out, "  ID:          %s\n", a.ID)
		fmt.Fprintf(out, "  Status:      %s\n", statusLabel(a.Status, 0))
		fmt.Fprintf(out, "  Roles:       %s\n", joinRoles(a.Roles))
		fmt.Fprintf(out, "  Workload:    %d (%d active)\n", a.Workload, a.ActiveTasks)
		if a.CurrentTask != "" {
			fmt.Fprintf(out, "  Current:     %s\n", a.CurrentTask)
		}
		if a.Endpoint != "" {
			fmt.Fprintf(out, "  Endpoint:    %s\n", a.Endpoint)
		}
		if a.Description != "" {
			fmt.Fprintf(out, "  Description: %s\n", a.Description)
		}
		fmt.Fprintf(out, "  Last seen:   %s\n", a.LastSeenAt.Format(time.RFC3339))
		return nil
	},
}

var agentHeartbeatCmd = &cobra.Command{
	Use:   "heartbeat <agent-id>",
	Short: "Record a heartbeat for an agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBoard(); err != nil {
			return err
		}
		view, err := Board.Heartbeat(args[0])
		if err != nil {
			return fmt.Errorf("recording heartbeat: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Agent %s is %s\n", view.ID, statusLabel(view.Status, 0))
		return nil
	},
}

var agentRemoveCmd = &cobra.Command{
	Use:     "rm <agent-id>",
	Aliases: []string{"remove"},
	Short:   "Remove an agent and release its open tasks",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBoard(); err != nil {
			return err
		}
		if err := Board.RemoveAgent(args[0]); err != nil {
			return fmt.Errorf("removing agent: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Agent %s removed\n", args[0])
		return nil
	},
}

var agentPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Mark agents with stale heartbeats offline",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Dispatcher == nil {
			return fmt.Errorf("dispatcher not initialized")
		}
		res, err := Dispatcher.Housekeep()
		if err != nil {
			return fmt.Errorf("pruning stale agents: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(res.OfflineAgents) == 0 {
			fmt.Fprintln(out, "No stale agents.")
			return nil
		}
		for _, id := range res.OfflineAgents {
			fmt.Fprintf(out, "Agent %s marked %s\n", id, statusLabel(models.AgentOffline, 0))
		}
		return nil
	},
}

func init() {
	f := agentRegisterCmd.Flags()
	f.StringVarP(&agentRegisterName, "name", "n", "", "display name (default the ID)")
	f.StringSliceVarP(&agentRegisterRoles, "roles", "r", nil, "roles (comma-separated): designer, frontend, backend, qa, content, devops, architect, pm")
	f.StringVar(&agentRegisterEmoji, "emoji", "", "emoji shown next to the agent")
	f.StringVar(&agentRegisterDesc, "description", "", "what the agent does")
	f.StringVar(&agentRegisterEndpoint, "endpoint", "", "HTTP endpoint notifications are POSTed to")

	agentListCmd.Flags().StringVarP(&agentListRole, "role", "r", "", "only agents with this role")
	agentListCmd.Flags().BoolVar(&agentListJSON, "json", false, "output as JSON")

	agentShowCmd.ValidArgsFunction = completePositional(completeAgentIDs)
	agentHeartbeatCmd.ValidArgsFunction = completePositional(completeAgentIDs)
	agentRemoveCmd.ValidArgsFunction = completePositional(completeAgentIDs)
	registerFlagCompletions(agentRegisterCmd, map[string]cobra.CompletionFunc{"roles": completeRoles})
	registerFlagCompletions(agentListCmd, map[string]cobra.CompletionFunc{"role": completeRoles})

	agentCmd.AddCommand(agentRegisterCmd, agentListCmd, agentShowCmd, agentHeartbeatCmd, agentRemoveCmd, agentPruneCmd)
	rootCmd.AddCommand(agentCmd)
}

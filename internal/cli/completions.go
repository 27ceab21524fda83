package cli

import (
	"strings"

	"github.com/clawcontrol/claw/pkg/models"
	"github.com/spf13/cobra"
)

// completeTaskIDs lists task IDs with their title as description, skipping
// tasks in any of the excluded lanes.
func completeTaskIDs(excludeLanes ...models.Lane) cobra.CompletionFunc {
	return func(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if Board == nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		tasks, err := Board.ListTasks(models.TaskFilter{}, true)
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		exclude := make(map[models.Lane]bool, len(excludeLanes))
		for _, l := range excludeLanes {
			exclude[l] = true
		}

		var ids []string
		for _, t := range tasks {
			if exclude[t.Lane] {
				continue
			}
			if toComplete == "" || strings.HasPrefix(t.ID, strings.ToUpper(toComplete)) {
				ids = append(ids, t.ID+"\t"+string(t.Lane)+": "+t.Title)
			}
		}
		return ids, cobra.ShellCompDirectiveNoFileComp
	}
}

// completeAgentIDs lists registered agents with their status as description.
func completeAgentIDs(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if Board == nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	agents, err := Board.ListAgents("")
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var ids []string
	for _, a := range agents {
		if toComplete == "" || strings.HasPrefix(a.ID, toComplete) {
			ids = append(ids, a.ID+"\t"+string(a.Status)+" ("+joinRoles(a.Roles)+")")
		}
	}
	return ids, cobra.ShellCompDirectiveNoFileComp
}

// completePositional completes the i-th argument with fns[i].
func completePositional(fns ...cobra.CompletionFunc) cobra.CompletionFunc {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) >= len(fns) {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return fns[len(args)](cmd, args, toComplete)
	}
}

func completePriorities(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return []string{
		"P0\tCritical",
		"P1\tHigh",
		"P2\tMedium",
		"P3\tLow",
	}, cobra.ShellCompDirectiveNoFileComp
}

func completeLanes(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return []string{
		"proposed\tSuggested, not yet accepted",
		"queued\tReady to be picked up",
		"development\tBeing worked on",
		"review\tWaiting for review or QA",
		"blocked\tWaiting on a dependency or decision",
		"done\tCompleted",
	}, cobra.ShellCompDirectiveNoFileComp
}

func completeRoles(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return []string{
		string(models.RoleDesigner),
		string(models.RoleFrontend),
		string(models.RoleBackend),
		string(models.RoleQA),
		string(models.RoleContent),
		string(models.RoleDevOps),
		string(models.RoleArchitect),
		string(models.RolePM),
	}, cobra.ShellCompDirectiveNoFileComp
}

// registerFlagCompletions attaches completion functions to the named flags
// that cmd defines. Flags it does not define are skipped.
func registerFlagCompletions(cmd *cobra.Command, fns map[string]cobra.CompletionFunc) {
	for name, fn := range fns {
		if cmd.Flags().Lookup(name) == nil {
			continue
		}
		_ = cmd.RegisterFlagCompletionFunc(name, fn)
	}
}

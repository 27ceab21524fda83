package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/clawcontrol/claw/pkg/models"
	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage board tasks",
	Long: `Create, inspect, move and assign tasks on the board.

Lanes: proposed, queued, development, review, blocked, done.
Priorities: P0 (highest) to P3.`,
}

// Flags for "task create".
var (
	taskCreatePriority string
	taskCreateLane     string
	taskCreateOwner    string
	taskCreateProject  string
	taskCreateProblem  string
	taskCreateScope    string
	taskCreateCriteria []string
	taskCreateTags     []string
	taskCreateDeps     []string
	taskCreateBy       string
)

var taskCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a new task",
	Long: `Create a new task. Multiple words are joined into the title.

A task with unfinished dependencies and no explicit --lane starts in blocked
and moves to queued when the last dependency is done.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBoard(); err != nil {
			return err
		}
		task, err := Board.CreateTask(models.TaskDraft{
			Title:              strings.Join(args, " "),
			Problem:            taskCreateProblem,
			Scope:              taskCreateScope,
			AcceptanceCriteria: taskCreateCriteria,
			Lane:               models.Lane(taskCreateLane),
			Priority:           models.Priority(strings.ToUpper(taskCreatePriority)),
			Owner:              taskCreateOwner,
			ProjectID:          taskCreateProject,
			Tags:               taskCreateTags,
			DependsOn:          taskCreateDeps,
			By:                 taskCreateBy,
		})
		if err != nil {
			return fmt.Errorf("creating task: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Created task %s\n", task.ID)
		fmt.Fprintf(out, "  Lane:     %s\n", laneLabel(task.Lane, 0))
		fmt.Fprintf(out, "  Priority: %s\n", priorityLabel(task.Priority))
		if task.Owner != "" {
			fmt.Fprintf(out, "  Owner:    %s\n", task.Owner)
		}
		return nil
	},
}

// Flags for "task list".
var (
	taskListLanes      []string
	taskListOwner      string
	taskListProject    string
	taskListPriorities []string
	taskListTags       []string
	taskListUnassigned bool
	taskListByCreated  bool
	taskListJSON       bool
)

var taskListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tasks",
	Long:    `List tasks, sorted by priority unless --by-created is set. Filters combine with AND.`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBoard(); err != nil {
			return err
		}
		filter := models.TaskFilter{
			Owner:      taskListOwner,
			ProjectID:  taskListProject,
			Tags:       taskListTags,
			Unassigned: taskListUnassigned,
		}
		for _, l := range taskListLanes {
			filter.Lanes = append(filter.Lanes, models.Lane(l))
		}
		for _, p := range taskListPriorities {
			filter.Priority = append(filter.Priority, models.Priority(strings.ToUpper(p)))
		}
		tasks, err := Board.ListTasks(filter, !taskListByCreated)
		if err != nil {
			return fmt.Errorf("listing tasks: %w", err)
		}
		if taskListJSON {
			return printJSON(cmd, tasks)
		}
		printTaskTable(cmd.OutOrStdout(), tasks)
		return nil
	},
}

var taskShowJSON bool

var taskShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show a task with its history and comments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBoard(); err != nil {
			return err
		}
		task, err := Board.GetTask(args[0])
		if err != nil {
			return fmt.Errorf("getting task: %w", err)
		}
		if taskShowJSON {
			return printJSON(cmd, task)
		}
		printTaskDetail(cmd.OutOrStdout(), task)
		return nil
	},
}

var (
	taskMoveNote string
	taskMoveBy   string
)

var taskMoveCmd = &cobra.Command{
	Use:   "move <task-id> <lane>",
	Short: "Move a task to another lane",
	Long: `Move a task to another lane, recording the change in its history.

Moving to done may require the mover to be a qa agent when the
workflow.require_qa_for_done setting is on.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBoard(); err != nil {
			return err
		}
		lane := models.Lane(strings.ToLower(args[1]))
		task, err := Board.UpdateTask(args[0], models.TaskPatch{Lane: &lane, Note: taskMoveNote, By: taskMoveBy})
		if err != nil {
			return fmt.Errorf("moving task: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Task %s moved to %s\n", task.ID, laneLabel(task.Lane, 0))
		return nil
	},
}

var taskUpdateCmd = &cobra.Command{
	Use:   "update <task-id>",
	Short: "Update task fields",
	Long:  `Update any of a task's fields. Only the flags given are changed.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBoard(); err != nil {
			return err
		}
		patch, err := patchFromFlags(cmd)
		if err != nil {
			return err
		}
		task, err := Board.UpdateTask(args[0], patch)
		if err != nil {
			return fmt.Errorf("updating task: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Task %s updated\n", task.ID)
		return nil
	},
}

// patchFromFlags builds a TaskPatch from the flags the user actually set.
func patchFromFlags(cmd *cobra.Command) (models.TaskPatch, error) {
	var patch models.TaskPatch
	f := cmd.Flags()
	str := func(name string) *string {
		if !f.Changed(name) {
			return nil
		}
		v, _ := f.GetString(name)
		return &v
	}
	slice := func(name string) *[]string {
		if !f.Changed(name) {
			return nil
		}
		v, _ := f.GetStringSlice(name)
		return &v
	}

	patch.Title = str("title")
	patch.Problem = str("problem")
	patch.Scope = str("scope")
	patch.Owner = str("owner")
	patch.ProjectID = str("project")
	patch.AcceptanceCriteria = slice("criteria")
	patch.Tags = slice("tags")
	patch.DependsOn = slice("depends-on")
	if v := str("lane"); v != nil {
		lane := models.Lane(strings.ToLower(*v))
		patch.Lane = &lane
	}
	if v := str("priority"); v != nil {
		p := models.Priority(strings.ToUpper(*v))
		patch.Priority = &p
	}
	patch.Note, _ = f.GetString("note")
	patch.By, _ = f.GetString("by")

	if patch.Title == nil && patch.Problem == nil && patch.Scope == nil && patch.Owner == nil &&
		patch.ProjectID == nil && patch.AcceptanceCriteria == nil && patch.Tags == nil &&
		patch.DependsOn == nil && patch.Lane == nil && patch.Priority == nil {
		return patch, fmt.Errorf("nothing to update: pass at least one field flag")
	}
	return patch, nil
}

var taskCommentBy string

var taskCommentCmd = &cobra.Command{
	Use:   "comment <task-id> <text>",
	Short: "Comment on a task",
	Long:  `Add a comment. The owner is notified and @agent mentions notify the mentioned agents.`,
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBoard(); err != nil {
			return err
		}
		c, err := Board.AddComment(args[0], taskCommentBy, strings.Join(args[1:], " "))
		if err != nil {
			return fmt.Errorf("adding comment: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Comment %s added to %s\n", c.ID, args[0])
		return nil
	},
}

var (
	taskTimeAgent string
	taskTimeNote  string
	taskTimeStart string
	taskTimeEnd   string
)

var taskTimeCmd = &cobra.Command{
	Use:   "time <task-id> [hours]",
	Short: "Log time spent on a task",
	Long: `Log hours against a task. Give the hours directly, or --start and --end
(RFC 3339) to have them computed.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBoard(); err != nil {
			return err
		}
		entry := models.TimeEntry{AgentID: taskTimeAgent, Note: taskTimeNote}
		if len(args) == 2 {
			if _, err := fmt.Sscanf(args[1], "%g", &entry.Hours); err != nil {
				return fmt.Errorf("parsing hours %q: %w", args[1], err)
			}
		}
		var err error
		if taskTimeStart != "" {
			if entry.Start, err = time.Parse(time.RFC3339, taskTimeStart); err != nil {
				return fmt.Errorf("parsing --start: %w", err)
			}
		}
		if taskTimeEnd != "" {
			if entry.End, err = time.Parse(time.RFC3339, taskTimeEnd); err != nil {
				return fmt.Errorf("parsing --end: %w", err)
			}
		}
		logged, err := Board.LogTime(args[0], entry)
		if err != nil {
			return fmt.Errorf("logging time: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Logged %.2fh on %s\n", logged.Hours, args[0])
		return nil
	},
}

var taskAssignBy string

var taskAssignCmd = &cobra.Command{
	Use:   "assign <task-id> <agent-id>",
	Short: "Assign a task to an agent",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBoard(); err != nil {
			return err
		}
		task, err := Board.Assign(args[0], args[1], taskAssignBy)
		if err != nil {
			return fmt.Errorf("assigning task: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Task %s assigned to %s\n", task.ID, task.Owner)
		return nil
	},
}

var taskAutoAssignCmd = &cobra.Command{
	Use:   "auto-assign <task-id>",
	Short: "Route a task to the least-loaded online agent with the matching role",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBoard(); err != nil {
			return err
		}
		res, err := Board.AutoAssign(args[0], taskAssignBy)
		if err != nil {
			return fmt.Errorf("auto-assigning task: %w", err)
		}
		out := cmd.OutOrStdout()
		switch {
		case res.AgentID != "":
			fmt.Fprintf(out, "Task %s assigned to %s (role %s)\n", args[0], res.AgentID, res.Role)
		case res.Role != "":
			fmt.Fprintf(out, "Task %s matched role %s but no online agent carries it; left unassigned\n", args[0], res.Role)
		default:
			fmt.Fprintf(out, "Task %s matched no role; left unassigned\n", args[0])
		}
		return nil
	},
}

var taskClaimCmd = &cobra.Command{
	Use:   "claim <task-id> <agent-id>",
	Short: "Claim a task for an agent and move it to development",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBoard(); err != nil {
			return err
		}
		task, err := Board.ClaimTask(args[1], args[0])
		if err != nil {
			return fmt.Errorf("claiming task: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Task %s claimed by %s\n", task.ID, task.Owner)
		return nil
	},
}

var taskNextCmd = &cobra.Command{
	Use:   "next <agent-id>",
	Short: "Show the next task an agent should pick up",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBoard(); err != nil {
			return err
		}
		task, err := Board.NextTask(args[0])
		if err != nil {
			return fmt.Errorf("finding next task: %w", err)
		}
		if task == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "No task available for %s.\n", args[0])
			return nil
		}
		printTaskDetail(cmd.OutOrStdout(), task)
		return nil
	},
}

var taskRemoveCmd = &cobra.Command{
	Use:     "rm <task-id>",
	Aliases: []string{"remove"},
	Short:   "Remove a task",
	Long:    `Remove a task. Other tasks listing it as a dependency drop the reference.`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBoard(); err != nil {
			return err
		}
		if err := Board.RemoveTask(args[0]); err != nil {
			return fmt.Errorf("removing task: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Task %s removed\n", args[0])
		return nil
	},
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("formatting JSON: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func init() {
	f := taskCreateCmd.Flags()
	f.StringVarP(&taskCreatePriority, "priority", "p", "", "priority P0-P3 (default from config)")
	f.StringVarP(&taskCreateLane, "lane", "l", "", "initial lane (default proposed)")
	f.StringVarP(&taskCreateOwner, "owner", "o", "", "registered agent to own the task")
	f.StringVar(&taskCreateProject, "project", "", "project identifier")
	f.StringVar(&taskCreateProblem, "problem", "", "problem statement")
	f.StringVar(&taskCreateScope, "scope", "", "scope of the work")
	f.StringSliceVar(&taskCreateCriteria, "criteria", nil, "acceptance criteria (repeatable)")
	f.StringSliceVarP(&taskCreateTags, "tags", "t", nil, "tags (comma-separated)")
	f.StringSliceVar(&taskCreateDeps, "depends-on", nil, "IDs of tasks that must be done first")
	f.StringVar(&taskCreateBy, "by", "", "who is creating the task")

	f = taskListCmd.Flags()
	f.StringSliceVarP(&taskListLanes, "lane", "l", nil, "filter by lane (repeatable)")
	f.StringVarP(&taskListOwner, "owner", "o", "", "filter by owner")
	f.StringVar(&taskListProject, "project", "", "filter by project")
	f.StringSliceVarP(&taskListPriorities, "priority", "p", nil, "filter by priority (repeatable)")
	f.StringSliceVarP(&taskListTags, "tag", "t", nil, "filter by tag (all must match)")
	f.BoolVar(&taskListUnassigned, "unassigned", false, "only tasks without an owner")
	f.BoolVar(&taskListByCreated, "by-created", false, "sort by creation time instead of priority")
	f.BoolVar(&taskListJSON, "json", false, "output as JSON")

	taskShowCmd.Flags().BoolVar(&taskShowJSON, "json", false, "output as JSON")

	taskMoveCmd.Flags().StringVarP(&taskMoveNote, "note", "n", "", "note recorded in the status history")
	taskMoveCmd.Flags().StringVar(&taskMoveBy, "by", "", "who is moving the task")

	f = taskUpdateCmd.Flags()
	f.String("title", "", "new title")
	f.String("problem", "", "new problem statement")
	f.String("scope", "", "new scope")
	f.String("owner", "", "new owner (empty string unassigns)")
	f.String("project", "", "new project")
	f.String("lane", "", "new lane")
	f.String("priority", "", "new priority")
	f.StringSlice("criteria", nil, "replace acceptance criteria")
	f.StringSlice("tags", nil, "replace tags")
	f.StringSlice("depends-on", nil, "replace dependencies")
	f.String("note", "", "note recorded when the lane changes")
	f.String("by", "", "who is making the change")

	taskCommentCmd.Flags().StringVar(&taskCommentBy, "by", "", "comment author (required)")
	_ = taskCommentCmd.MarkFlagRequired("by")

	f = taskTimeCmd.Flags()
	f.StringVarP(&taskTimeAgent, "agent", "a", "", "agent that spent the time (required)")
	f.StringVarP(&taskTimeNote, "note", "n", "", "what the time was spent on")
	f.StringVar(&taskTimeStart, "start", "", "start time (RFC 3339)")
	f.StringVar(&taskTimeEnd, "end", "", "end time (RFC 3339)")
	_ = taskTimeCmd.MarkFlagRequired("agent")

	taskAssignCmd.Flags().StringVar(&taskAssignBy, "by", "", "who is assigning")
	taskAutoAssignCmd.Flags().StringVar(&taskAssignBy, "by", "", "who is assigning")

	openTasks := completeTaskIDs(models.LaneDone)
	taskShowCmd.ValidArgsFunction = completePositional(completeTaskIDs())
	taskMoveCmd.ValidArgsFunction = completePositional(completeTaskIDs(), completeLanes)
	taskUpdateCmd.ValidArgsFunction = completePositional(completeTaskIDs())
	taskCommentCmd.ValidArgsFunction = completePositional(completeTaskIDs())
	taskTimeCmd.ValidArgsFunction = completePositional(completeTaskIDs())
	taskAssignCmd.ValidArgsFunction = completePositional(openTasks, completeAgentIDs)
	taskAutoAssignCmd.ValidArgsFunction = completePositional(openTasks)
	taskClaimCmd.ValidArgsFunction = completePositional(openTasks, completeAgentIDs)
	taskNextCmd.ValidArgsFunction = completePositional(completeAgentIDs)
	taskRemoveCmd.ValidArgsFunction = completePositional(completeTaskIDs())
	for _, c := range []*cobra.Command{taskCreateCmd, taskListCmd, taskUpdateCmd} {
		registerFlagCompletions(c, map[string]cobra.CompletionFunc{
			"priority": completePriorities,
			"lane":     completeLanes,
			"owner":    completeAgentIDs,
		})
	}
	registerFlagCompletions(taskCommentCmd, map[string]cobra.CompletionFunc{"by": completeAgentIDs})
	registerFlagCompletions(taskTimeCmd, map[string]cobra.CompletionFunc{"agent": completeAgentIDs})

	taskCmd.AddCommand(taskCreateCmd, taskListCmd, taskShowCmd, taskMoveCmd, taskUpdateCmd,
		taskCommentCmd, taskTimeCmd, taskAssignCmd, taskAutoAssignCmd, taskClaimCmd,
		taskNextCmd, taskRemoveCmd)
	rootCmd.AddCommand(taskCmd)
}

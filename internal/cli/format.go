package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/clawcontrol/claw/pkg/models"
	"github.com/fatih/color"
)

var (
	laneColors = map[models.Lane]*color.Color{
		models.LaneProposed:    color.New(color.FgHiBlack),
		models.LaneQueued:      color.New(color.FgCyan),
		models.LaneDevelopment: color.New(color.FgYellow),
		models.LaneReview:      color.New(color.FgMagenta),
		models.LaneBlocked:     color.New(color.FgRed, color.Bold),
		models.LaneDone:        color.New(color.FgGreen),
	}
	statusColors = map[models.AgentStatus]*color.Color{
		models.AgentOnline:  color.New(color.FgGreen),
		models.AgentBusy:    color.New(color.FgYellow),
		models.AgentOffline: color.New(color.FgRed),
	}
	priorityColors = map[models.Priority]*color.Color{
		models.P0: color.New(color.FgRed, color.Bold),
		models.P1: color.New(color.FgYellow),
	}
	bold = color.New(color.Bold)
)

// padded pads s to width before colouring so escape codes do not break
// column alignment.
func padded(c *color.Color, s string, width int) string {
	s = fmt.Sprintf("%-*s", width, s)
	if c == nil {
		return s
	}
	return c.Sprint(s)
}

func laneLabel(l models.Lane, width int) string {
	return padded(laneColors[l], string(l), width)
}

func statusLabel(s models.AgentStatus, width int) string {
	return padded(statusColors[s], string(s), width)
}

func priorityLabel(p models.Priority) string {
	return padded(priorityColors[p], string(p), 2)
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}

func printTaskTable(w io.Writer, tasks []*models.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "No tasks found.")
		return
	}
	fmt.Fprintf(w, "%-12s %-4s %-12s %-14s %s\n", "ID", "PRI", "LANE", "OWNER", "TITLE")
	for _, t := range tasks {
		owner := t.Owner
		if owner == "" {
			owner = "-"
		}
		fmt.Fprintf(w, "%-12s %s   %s %-14s %s\n",
			t.ID, priorityLabel(t.Priority), laneLabel(t.Lane, 12), truncate(owner, 14), truncate(t.Title, 60))
	}
}

func printTaskDetail(w io.Writer, t *models.Task) {
	bold.Fprintf(w, "%s  %s\n", t.ID, t.Title)
	fmt.Fprintf(w, "  Lane:       %s\n", laneLabel(t.Lane, 0))
	fmt.Fprintf(w, "  Priority:   %s\n", priorityLabel(t.Priority))
	if t.Owner != "" {
		fmt.Fprintf(w, "  Owner:      %s\n", t.Owner)
	}
	if t.ProjectID != "" {
		fmt.Fprintf(w, "  Project:    %s\n", t.ProjectID)
	}
	if len(t.Tags) > 0 {
		fmt.Fprintf(w, "  Tags:       %s\n", strings.Join(t.Tags, ", "))
	}
	if len(t.DependsOn) > 0 {
		fmt.Fprintf(w, "  Depends on: %s\n", strings.Join(t.DependsOn, ", "))
	}
	fmt.Fprintf(w, "  Created:    %s\n", t.CreatedAt.Format(time.RFC3339))
	if hours := t.TotalHours(); hours > 0 {
		fmt.Fprintf(w, "  Hours:      %.2f\n", hours)
	}
	if t.Problem != "" {
		fmt.Fprintf(w, "\n  Problem:\n    %s\n", t.Problem)
	}
	if t.Scope != "" {
		fmt.Fprintf(w, "\n  Scope:\n    %s\n", t.Scope)
	}
	if len(t.AcceptanceCriteria) > 0 {
		fmt.Fprintln(w, "\n  Acceptance criteria:")
		for _, c := range t.AcceptanceCriteria {
			fmt.Fprintf(w, "    - %s\n", c)
		}
	}
	if len(t.StatusHistory) > 0 {
		fmt.Fprintln(w, "\n  History:")
		for _, h := range t.StatusHistory {
			from := string(h.From)
			if from == "" {
				from = "(new)"
			}
			line := fmt.Sprintf("    %s  %s -> %s", h.At.Format("2006-01-02 15:04"), from, h.To)
			if h.By != "" {
				line += " by " + h.By
			}
			if h.Note != "" {
				line += ": " + h.Note
			}
			fmt.Fprintln(w, line)
		}
	}
	if len(t.Comments) > 0 {
		fmt.Fprintln(w, "\n  Comments:")
		for _, c := range t.Comments {
			fmt.Fprintf(w, "    [%s] %s: %s\n", c.At.Format("2006-01-02 15:04"), c.By, c.Text)
		}
	}
}

func printAgentTable(w io.Writer, agents []*models.AgentView) {
	if len(agents) == 0 {
		fmt.Fprintln(w, "No agents registered.")
		return
	}
	fmt.Fprintf(w, "%-16s %-8s %-9s %-24s %s\n", "ID", "STATUS", "WORKLOAD", "ROLES", "LAST SEEN")
	for _, a := range agents {
		fmt.Fprintf(w, "%-16s %s %-9d %-24s %s\n",
			truncate(a.ID, 16), statusLabel(a.Status, 8), a.Workload,
			truncate(joinRoles(a.Roles), 24), a.LastSeenAt.Format("2006-01-02 15:04"))
	}
}

func joinRoles(roles []models.Role) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, ",")
}

func parseRoles(values []string) []models.Role {
	var roles []models.Role
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				roles = append(roles, models.Role(strings.ToLower(part)))
			}
		}
	}
	return roles
}

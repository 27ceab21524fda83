package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/clawcontrol/claw/pkg/models"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// Board view panel indices.
const (
	panelLanes = iota
	panelAgents
	panelAlerts
	panelCount
)

const boardRefreshInterval = 5 * time.Second

type boardModel struct {
	activePanel int
	activeLane  int
	width       int
	height      int

	lanes  map[models.Lane][]taskSnapshot
	agents []agentSnapshot
	alerts []alertSnapshot

	loading bool
	updated time.Time
	err     error
}

type taskSnapshot struct {
	id       string
	title    string
	priority string
	owner    string
}

type agentSnapshot struct {
	id       string
	emoji    string
	status   string
	workload int
	current  string
}

type alertSnapshot struct {
	severity string
	message  string
}

// boardLoadedMsg carries loaded data back to the model.
type boardLoadedMsg struct {
	lanes  map[models.Lane][]taskSnapshot
	agents []agentSnapshot
	alerts []alertSnapshot
	at     time.Time
	err    error
}

type refreshTickMsg time.Time

// Style definitions.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	activePanelStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62")).
				Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	laneStyles = map[models.Lane]lipgloss.Style{
		models.LaneProposed:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		models.LaneQueued:      lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		models.LaneDevelopment: lipgloss.NewStyle().Foreground(lipgloss.Color("226")),
		models.LaneReview:      lipgloss.NewStyle().Foreground(lipgloss.Color("141")),
		models.LaneBlocked:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		models.LaneDone:        lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
	}

	agentOnlineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	agentBusyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	agentOfflineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	severityHigh   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	severityMedium = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	severityLow    = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))

	urgentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newBoardModel() boardModel {
	return boardModel{
		activePanel: panelLanes,
		loading:     true,
		lanes:       make(map[models.Lane][]taskSnapshot),
	}
}

func (m boardModel) Init() tea.Cmd {
	return tea.Batch(loadBoardData, scheduleRefresh())
}

func scheduleRefresh() tea.Cmd {
	return tea.Tick(boardRefreshInterval, func(t time.Time) tea.Msg { return refreshTickMsg(t) })
}

func (m boardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.activePanel = (m.activePanel + 1) % panelCount
			return m, nil
		case "shift+tab":
			m.activePanel = (m.activePanel - 1 + panelCount) % panelCount
			return m, nil
		case "left", "h":
			m.activeLane = (m.activeLane - 1 + len(models.Lanes)) % len(models.Lanes)
			return m, nil
		case "right", "l":
			m.activeLane = (m.activeLane + 1) % len(models.Lanes)
			return m, nil
		case "r":
			m.loading = true
			return m, loadBoardData
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case refreshTickMsg:
		return m, tea.Batch(loadBoardData, scheduleRefresh())

	case boardLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.lanes = msg.lanes
		m.agents = msg.agents
		m.alerts = msg.alerts
		m.updated = msg.at
		m.err = nil
		return m, nil
	}

	return m, nil
}

func (m boardModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	title := titleStyle.Render(" Claw Board ")
	help := helpStyle.Render("tab: switch panel | ←/→: lane | r: refresh | q: quit")

	if m.loading && m.updated.IsZero() {
		return fmt.Sprintf("%s\n\n  Loading board...\n\n%s", title, help)
	}
	if m.err != nil {
		return fmt.Sprintf("%s\n\n  Error: %s\n\n%s", title, m.err, help)
	}

	available := m.width - 2
	if available < 40 {
		available = 40
	}

	lanes := m.applyPanelStyle(panelLanes, m.renderLanes(available-4), available-2)

	sideWidth := available/2 - 4
	agents := m.applyPanelStyle(panelAgents, m.renderAgentsPanel(), sideWidth)
	alerts := m.applyPanelStyle(panelAlerts, m.renderAlertsPanel(), sideWidth)
	bottom := lipgloss.JoinHorizontal(lipgloss.Top, agents, alerts)

	status := ""
	if !m.updated.IsZero() {
		status = helpStyle.Render("updated " + m.updated.Format("15:04:05"))
	}
	return fmt.Sprintf("%s  %s\n\n%s\n%s\n\n%s", title, status, lanes, bottom, help)
}

func (m boardModel) applyPanelStyle(panel int, content string, width int) string {
	style := panelStyle
	if m.activePanel == panel {
		style = activePanelStyle
	}
	return style.Width(width).Render(content)
}

// renderLanes lays the lanes out as columns when the terminal is wide enough
// and shows only the selected lane otherwise.
func (m boardModel) renderLanes(width int) string {
	colWidth := width / len(models.Lanes)
	if colWidth >= 18 {
		cols := make([]string, len(models.Lanes))
		for i, lane := range models.Lanes {
			cols[i] = lipgloss.NewStyle().Width(colWidth).Render(m.renderLane(lane, colWidth-1, i == m.activeLane))
		}
		return lipgloss.JoinHorizontal(lipgloss.Top, cols...)
	}
	lane := models.Lanes[m.activeLane]
	return m.renderLane(lane, width, true)
}

func (m boardModel) renderLane(lane models.Lane, width int, active bool) string {
	var b strings.Builder
	tasks := m.lanes[lane]
	header := fmt.Sprintf("%s (%d)", lane, len(tasks))
	if active && m.activePanel == panelLanes {
		header = "▸ " + header
	}
	b.WriteString(laneStyles[lane].Bold(true).Render(header))
	b.WriteString("\n")

	if len(tasks) == 0 {
		b.WriteString(helpStyle.Render("  -"))
		return b.String()
	}
	limit := len(tasks)
	if m.height > 0 && limit > m.height/3 {
		limit = max(m.height/3, 3)
	}
	for i, t := range tasks {
		if i >= limit {
			b.WriteString(helpStyle.Render(fmt.Sprintf("  +%d more", len(tasks)-limit)))
			break
		}
		prio := t.priority
		if prio == string(models.P0) {
			prio = urgentStyle.Render(prio)
		}
		line := fmt.Sprintf("%s %s", prio, truncate(t.id+" "+t.title, max(width-4, 8)))
		b.WriteString(line)
		b.WriteString("\n")
		if t.owner != "" {
			b.WriteString(helpStyle.Render("   @" + truncate(t.owner, max(width-5, 4))))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m boardModel) renderAgentsPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Agents"))
	b.WriteString("\n")

	if len(m.agents) == 0 {
		b.WriteString("  No agents registered.")
		return b.String()
	}
	for _, a := range m.agents {
		label := fmt.Sprintf("%-8s", a.status)
		line := fmt.Sprintf("  %s %-16s %s load %d", a.emoji, truncate(a.id, 16), styleForAgentStatus(a.status).Render(label), a.workload)
		if a.current != "" {
			line += "  " + a.current
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (m boardModel) renderAlertsPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Alerts"))
	b.WriteString("\n")

	if len(m.alerts) == 0 {
		b.WriteString("  No active alerts.")
		return b.String()
	}

	for _, a := range m.alerts {
		sev := styleForSeverity(a.severity).Render(fmt.Sprintf("[%s]", strings.ToUpper(a.severity)))
		b.WriteString(fmt.Sprintf("  %s %s\n", sev, a.message))
	}

	b.WriteString(fmt.Sprintf("\n  Total: %d alert(s)", len(m.alerts)))

	return b.String()
}

func styleForAgentStatus(status string) lipgloss.Style {
	switch models.AgentStatus(status) {
	case models.AgentOnline:
		return agentOnlineStyle
	case models.AgentBusy:
		return agentBusyStyle
	default:
		return agentOfflineStyle
	}
}

func styleForSeverity(severity string) lipgloss.Style {
	switch strings.ToLower(severity) {
	case "high":
		return severityHigh
	case "medium":
		return severityMedium
	case "low":
		return severityLow
	default:
		return lipgloss.NewStyle()
	}
}

func loadBoardData() tea.Msg {
	result := boardLoadedMsg{
		lanes: make(map[models.Lane][]taskSnapshot),
		at:    time.Now(),
	}
	if Board == nil {
		result.err = fmt.Errorf("board not initialized")
		return result
	}

	snap, err := Board.Snapshot()
	if err != nil {
		result.err = fmt.Errorf("loading board: %w", err)
		return result
	}
	for lane, tasks := range snap.Lanes {
		for _, t := range tasks {
			result.lanes[lane] = append(result.lanes[lane], taskSnapshot{
				id:       t.ID,
				title:    t.Title,
				priority: string(t.Priority),
				owner:    t.Owner,
			})
		}
	}
	for _, a := range snap.Agents {
		result.agents = append(result.agents, agentSnapshot{
			id:       a.ID,
			emoji:    a.Emoji,
			status:   string(a.Status),
			workload: a.Workload,
			current:  a.CurrentTask,
		})
	}

	if AlertEngine != nil {
		alerts, err := AlertEngine.Evaluate()
		if err != nil {
			result.err = fmt.Errorf("loading alerts: %w", err)
			return result
		}
		result.alerts = make([]alertSnapshot, 0, len(alerts))
		for _, a := range alerts {
			result.alerts = append(result.alerts, alertSnapshot{
				severity: string(a.Severity),
				message:  a.Message,
			})
		}
	}

	return result
}

var boardCmd = &cobra.Command{
	Use:     "board",
	Aliases: []string{"dashboard"},
	Short:   "Interactive TUI of lanes, agents and alerts",
	Long: `Launch an interactive terminal view of the board: every lane with its
tasks, agent status and workload, and active alerts. Refreshes every few
seconds.

Navigate panels with Tab, lanes with the arrow keys, refresh with r, quit with q.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBoard(); err != nil {
			return err
		}
		p := tea.NewProgram(newBoardModel(), tea.WithAltScreen())
		_, err := p.Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(boardCmd)
}

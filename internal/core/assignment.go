package core

import (
	"sort"
	"strings"
	"unicode"

	"github.com/clawcontrol/claw/pkg/models"
)

// RoleKeywords maps a set of title/scope tokens to a role.
type RoleKeywords struct {
	Role     models.Role
	Keywords []string
}

// RoleTable is matched top to bottom; the first row sharing a token with the
// task wins.
type RoleTable []RoleKeywords

// DefaultRoleTable is the built-in precedence:
// designer > frontend > backend > qa > content > devops > architect > pm.
var DefaultRoleTable = RoleTable{
	{Role: models.RoleDesigner, Keywords: []string{"design", "ui", "ux", "mockup", "wireframe", "figma", "layout"}},
	{Role: models.RoleFrontend, Keywords: []string{"react", "tailwind", "component", "frontend", "css", "html", "vite", "nextjs"}},
	{Role: models.RoleBackend, Keywords: []string{"api", "database", "server", "backend", "endpoint", "sql", "migration", "bridge"}},
	{Role: models.RoleQA, Keywords: []string{"test", "tests", "verify", "qa", "e2e", "playwright", "regression"}},
	{Role: models.RoleContent, Keywords: []string{"docs", "readme", "documentation", "copy", "changelog"}},
	{Role: models.RoleDevOps, Keywords: []string{"infra", "deploy", "deployment", "ci", "docker", "pipeline", "kubernetes"}},
	{Role: models.RoleArchitect, Keywords: []string{"architecture", "design-doc", "adr", "rfc"}},
	{Role: models.RolePM, Keywords: []string{"planning", "roadmap", "prioritize", "backlog", "milestone"}},
}

// RoleTableFromConfig builds a table from the assignment.roles config rows,
// falling back to DefaultRoleTable when none are configured.
func RoleTableFromConfig(rows []models.RoleKeywordsConfig) RoleTable {
	if len(rows) == 0 {
		return DefaultRoleTable
	}
	table := make(RoleTable, 0, len(rows))
	for _, row := range rows {
		kw := make([]string, 0, len(row.Keywords))
		for _, k := range row.Keywords {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				kw = append(kw, k)
			}
		}
		table = append(table, RoleKeywords{
			Role:     models.Role(strings.ToLower(strings.TrimSpace(string(row.Role)))),
			Keywords: kw,
		})
	}
	return table
}

// Tokenize lower-cases s and splits it on anything that is not a letter,
// digit or hyphen. Leading and trailing hyphens are dropped from each token.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.Trim(f, "-"); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// MatchRole returns the first role whose keywords appear in the task's title
// or scope.
func (rt RoleTable) MatchRole(task *models.Task) (models.Role, bool) {
	tokens := make(map[string]bool)
	for _, tok := range Tokenize(task.Title + " " + task.Scope) {
		tokens[tok] = true
	}
	for _, row := range rt {
		for _, kw := range row.Keywords {
			if tokens[kw] {
				return row.Role, true
			}
		}
	}
	return "", false
}

// AssignmentResolver picks an owner for a task.
type AssignmentResolver interface {
	MatchRole(task *models.Task) (models.Role, bool)
	// Resolve returns the chosen agent id, or "" when no role matches or no
	// online agent carries the role.
	Resolve(task *models.Task) (string, error)
}

// AgentLister is the registry read used by the resolver.
type AgentLister interface {
	ListByRole(role models.Role) ([]*models.AgentView, error)
}

type resolver struct {
	table  RoleTable
	agents AgentLister
}

// NewAssignmentResolver creates a resolver over table. A nil table uses
// DefaultRoleTable.
func NewAssignmentResolver(table RoleTable, agents AgentLister) AssignmentResolver {
	if len(table) == 0 {
		table = DefaultRoleTable
	}
	return &resolver{table: table, agents: agents}
}

func (r *resolver) MatchRole(task *models.Task) (models.Role, bool) {
	return r.table.MatchRole(task)
}

func (r *resolver) Resolve(task *models.Task) (string, error) {
	role, ok := r.table.MatchRole(task)
	if !ok {
		return "", nil
	}
	agents, err := r.agents.ListByRole(role)
	if err != nil {
		return "", err
	}

	candidates := make([]*models.AgentView, 0, len(agents))
	for _, a := range agents {
		if a.Status == models.AgentOnline {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) == 0 {
		return "", nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Workload != candidates[j].Workload {
			return candidates[i].Workload < candidates[j].Workload
		}
		return candidates[i].ID < candidates[j].ID
	})
	return candidates[0].ID, nil
}

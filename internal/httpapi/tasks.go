package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/clawcontrol/claw/internal/core"
	"github.com/clawcontrol/claw/pkg/models"
)

// splitList splits repeated and comma-separated query values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func parseTaskFilter(r *http.Request) (models.TaskFilter, bool, error) {
	q := r.URL.Query()
	f := models.TaskFilter{
		Owner:     q.Get("owner"),
		ProjectID: q.Get("projectId"),
		Tags:      splitList(q["tag"]),
	}
	if f.Owner == "" {
		f.Owner = q.Get("assignedTo")
	}
	for _, l := range splitList(q["lane"]) {
		lane := models.Lane(l)
		if !lane.Valid() {
			return f, false, &core.ValidationError{Field: "lane", Msg: "unknown lane " + strconv.Quote(l)}
		}
		f.Lanes = append(f.Lanes, lane)
	}
	for _, p := range splitList(q["priority"]) {
		prio := models.Priority(strings.ToUpper(p))
		if !prio.Valid() {
			return f, false, &core.ValidationError{Field: "priority", Msg: "unknown priority " + strconv.Quote(p)}
		}
		f.Priority = append(f.Priority, prio)
	}
	if v := q.Get("unassigned"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, false, &core.ValidationError{Field: "unassigned", Msg: "must be a boolean"}
		}
		f.Unassigned = b
	}
	sortBy := q.Get("sort")
	if sortBy != "" && sortBy != "priority" && sortBy != "created" {
		return f, false, &core.ValidationError{Field: "sort", Msg: "must be priority or created"}
	}
	return f, sortBy == "priority", nil
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	filter, byPriority, err := parseTaskFilter(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	tasks, err := s.board.ListTasks(filter, byPriority)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []*models.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var draft models.TaskDraft
	if err := decodeJSON(r, &draft, false); err != nil {
		s.fail(w, r, err)
		return
	}
	task, err := s.board.CreateTask(draft)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.board.GetTask(r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	var patch models.TaskPatch
	if err := decodeJSON(r, &patch, false); err != nil {
		s.fail(w, r, err)
		return
	}
	task, err := s.board.UpdateTask(r.PathValue("id"), patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) removeTask(w http.ResponseWriter, r *http.Request) {
	if err := s.board.RemoveTask(r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type commentRequest struct {
	By   string `json:"by"`
	Text string `json:"text"`
}

func (s *Server) addComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}
	c, err := s.board.AddComment(r.PathValue("id"), req.By, req.Text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) logTime(w http.ResponseWriter, r *http.Request) {
	var entry models.TimeEntry
	if err := decodeJSON(r, &entry, false); err != nil {
		s.fail(w, r, err)
		return
	}
	e, err := s.board.LogTime(r.PathValue("id"), entry)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

type assignRequest struct {
	AgentID string `json:"agentId"`
	By      string `json:"by,omitempty"`
}

func (s *Server) assignTask(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}
	task, err := s.board.Assign(r.PathValue("id"), req.AgentID, req.By)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

type autoAssignRequest struct {
	By string `json:"by,omitempty"`
}

func (s *Server) autoAssignTask(w http.ResponseWriter, r *http.Request) {
	var req autoAssignRequest
	if err := decodeJSON(r, &req, true); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.board.AutoAssign(r.PathValue("id"), req.By)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type claimRequest struct {
	AgentID string `json:"agentId"`
}

func (s *Server) claimTask(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}
	task, err := s.board.ClaimTask(req.AgentID, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

package httpapi

import (
	"net/http"

	"github.com/clawcontrol/claw/pkg/models"
)

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.board.ListAgents(models.Role(r.URL.Query().Get("role")))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if agents == nil {
		agents = []*models.AgentView{}
	}
	writeJSON(w, http.StatusOK, agents)
}

func (s *Server) registerAgent(w http.ResponseWriter, r *http.Request) {
	var agent models.Agent
	if err := decodeJSON(r, &agent, false); err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := s.board.RegisterAgent(agent)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) getAgent(w http.ResponseWriter, r *http.Request) {
	view, err := s.board.GetAgent(r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) updateAgent(w http.ResponseWriter, r *http.Request) {
	var patch models.AgentPatch
	if err := decodeJSON(r, &patch, false); err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := s.board.UpdateAgent(r.PathValue("id"), patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) removeAgent(w http.ResponseWriter, r *http.Request) {
	if err := s.board.RemoveAgent(r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) heartbeat(w http.ResponseWriter, r *http.Request) {
	view, err := s.board.Heartbeat(r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// nextTask answers {"task": null} when nothing is available for the agent.
func (s *Server) nextTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.board.NextTask(r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": task})
}

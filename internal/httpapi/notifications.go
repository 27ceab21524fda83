package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/clawcontrol/claw/internal/core"
	"github.com/clawcontrol/claw/pkg/models"
)

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	unread := false
	if v := r.URL.Query().Get("unread"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.fail(w, r, &core.ValidationError{Field: "unread", Msg: "must be a boolean"})
			return
		}
		unread = b
	}
	notes, err := s.board.Notifications(r.PathValue("id"), unread)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if notes == nil {
		notes = []*models.Notification{}
	}
	writeJSON(w, http.StatusOK, notes)
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	n, err := s.board.MarkNotificationRead(r.PathValue("id"), r.PathValue("nid"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) markAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := s.board.MarkAllNotificationsRead(r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"marked": n})
}

func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.board.Snapshot()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	if s.alerts == nil {
		writeError(w, http.StatusNotImplemented, errNotConfigured("alerting"))
		return
	}
	alerts, err := s.alerts.Evaluate()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts, "count": len(alerts)})
}

// boardMetrics accepts since as an RFC 3339 time or a duration back from now
// such as 24h. Default is the last 7 days.
func (s *Server) boardMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		writeError(w, http.StatusNotImplemented, errNotConfigured("metrics"))
		return
	}
	since := time.Now().Add(-7 * 24 * time.Hour)
	if v := r.URL.Query().Get("since"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			since = time.Now().Add(-d)
		} else if t, err := time.Parse(time.RFC3339, v); err == nil {
			since = t
		} else {
			s.fail(w, r, &core.ValidationError{Field: "since", Msg: "must be a duration or RFC 3339 time"})
			return
		}
	}
	m, err := s.metrics.Calculate(since)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type errNotConfigured string

func (e errNotConfigured) Error() string { return string(e) + " is not configured" }

package api

import (
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/menu-crawler/internal/menu"
	"github.com/JakeFAU/menu-crawler/internal/storage/postgres"
)

const maxRunsLimit = 200

// listRuns handles GET /v1/runs?limit=. Newest runs come first.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, postgres.DefaultRunsLimit, maxRunsLimit)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	runs, err := s.backend.ListRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("list runs failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []menu.RunSummary{}
	}
	running := false
	if s.trigger != nil {
		running = s.trigger.Running()
	}
	inProgress := []int64{}
	if s.progress != nil {
		if ids := s.progress(); ids != nil {
			inProgress = ids
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"runs":        runs,
		"running":     running,
		"in_progress": inProgress,
	})
}

// triggerRun handles POST /v1/runs. Requests made while one is already
// pending are accepted and coalesced.
func (s *Server) triggerRun(w http.ResponseWriter, _ *http.Request) {
	if s.trigger == nil {
		s.writeError(w, http.StatusServiceUnavailable, "scheduler not running")
		return
	}
	status := "queued"
	if !s.trigger.Trigger() {
		status = "already_queued"
	}
	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"status":  status,
		"running": s.trigger.Running(),
	})
}

func parseLimit(r *http.Request, def, maxLimit int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		return 0, errors.New("invalid limit")
	}
	return min(val, maxLimit), nil
}

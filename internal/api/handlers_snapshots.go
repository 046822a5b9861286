package api

import (
	"net/http"
	"strconv"

	"github.com/chain-portfolio/internal/types"
)

// handleCronSnapshot handles GET/POST /api/cron/snapshot - runs the
// snapshot job for every user
func (s *Server) handleCronSnapshot(w http.ResponseWriter, r *http.Request) {
	result, err := s.services.Snapshots.Run(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// handleSnapshotHistory handles GET /api/snapshots?days=
func (s *Server) handleSnapshotHistory(w http.ResponseWriter, r *http.Request) {
	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, types.ErrCodeInvalidInput, "days must be a positive integer", map[string]interface{}{
				"days": raw,
			})
			return
		}
		days = n
	}

	history, err := s.services.Snapshots.History(r.Context(), sessionFrom(r).UserID, days)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, history)
}

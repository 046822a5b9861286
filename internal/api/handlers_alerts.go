package api

import (
	"net/http"

	"github.com/chain-portfolio/internal/service"
	"github.com/chain-portfolio/internal/types"
)

// handleListAlerts handles GET /api/alerts
func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.services.Alerts.List(r.Context(), sessionFrom(r).UserID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"alerts": alerts})
}

// handleCreateAlert handles POST /api/alerts
func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var req service.CreateAlertInput
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	alert, err := s.services.Alerts.Create(r.Context(), sessionFrom(r).UserID, req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, alert)
}

// handleUpdateAlert handles PATCH /api/alerts
func (s *Server) handleUpdateAlert(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateAlertInput
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	alert, err := s.services.Alerts.Update(r.Context(), sessionFrom(r).UserID, req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, alert)
}

// handleDeleteAlert handles DELETE /api/alerts?id=
func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, types.ErrCodeInvalidInput, "id is required", nil)
		return
	}

	if err := s.services.Alerts.Delete(r.Context(), sessionFrom(r).UserID, id); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// handleCheckAlerts handles POST /api/alerts/check - evaluates the
// caller's alerts and emails the address on their session
func (s *Server) handleCheckAlerts(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	result, err := s.services.Alerts.CheckAlerts(r.Context(), session.UserID, session.Email)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

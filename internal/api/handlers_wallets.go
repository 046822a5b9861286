package api

import (
	"net/http"

	"github.com/chain-portfolio/internal/service"
	"github.com/chain-portfolio/internal/types"
)

// handleListWallets handles GET /api/wallets
func (s *Server) handleListWallets(w http.ResponseWriter, r *http.Request) {
	wallets, err := s.services.Wallets.List(r.Context(), sessionFrom(r).UserID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"wallets": wallets})
}

// handleAddWallet handles POST /api/wallets
func (s *Server) handleAddWallet(w http.ResponseWriter, r *http.Request) {
	var req service.AddWalletInput
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	wallet, err := s.services.Wallets.Add(r.Context(), sessionFrom(r).UserID, req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, wallet)
}

// handleRemoveWallet handles DELETE /api/wallets?id=
func (s *Server) handleRemoveWallet(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, types.ErrCodeInvalidInput, "id is required", nil)
		return
	}

	if err := s.services.Wallets.Remove(r.Context(), sessionFrom(r).UserID, id); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

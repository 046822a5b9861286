package api

import (
	"net/http"

	"github.com/chain-portfolio/internal/service"
	"github.com/chain-portfolio/internal/types"
)

// handleGetPortfolio handles GET /api/portfolio?address=&chain=&viewingKey=
func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	address := q.Get("address")
	chain := q.Get("chain")
	if address == "" || chain == "" {
		respondError(w, http.StatusBadRequest, types.ErrCodeInvalidInput, "address and chain are required", nil)
		return
	}

	portfolio, err := s.services.Portfolio.GetPortfolio(r.Context(), service.GetPortfolioInput{
		Address:    address,
		Chain:      chain,
		ViewingKey: q.Get("viewingKey"),
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, portfolio)
}

// handleListChains handles GET /api/chains
func (s *Server) handleListChains(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"chains": s.services.Portfolio.SupportedChains(),
	})
}

// handleUserDashboard handles GET /api/dashboard - merged view of the
// caller's persisted wallets
func (s *Server) handleUserDashboard(w http.ResponseWriter, r *http.Request) {
	view, err := s.services.Dashboard.ForUser(r.Context(), sessionFrom(r).UserID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// localDashboardRequest is the wallet list an anonymous client keeps locally
type localDashboardRequest struct {
	Wallets []service.WalletInput `json:"wallets" validate:"dive"`
}

// handleLocalDashboard handles POST /api/dashboard - merged view of a
// client-supplied wallet list
func (s *Server) handleLocalDashboard(w http.ResponseWriter, r *http.Request) {
	var req localDashboardRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	view, err := s.services.Dashboard.ForWallets(r.Context(), req.Wallets)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

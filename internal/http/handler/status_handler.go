package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/your-org/tick-session-engine/internal/market"
)

// StatusSource supplies the live run state the handler exposes.
type StatusSource interface {
	Account() market.AccountSnapshot
	Status() string
}

// StatusHandler serves the current run status and account state.
type StatusHandler struct {
	src StatusSource
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(src StatusSource) *StatusHandler {
	return &StatusHandler{src: src}
}

// RegisterRoutes registers the status routes on the chi router.
func (h *StatusHandler) RegisterRoutes(r chi.Router) {
	r.Get("/status", h.GetStatus)
	r.Get("/account", h.GetAccount)
}

type statusResponse struct {
	Status string `json:"status"`
}

// GetStatus returns the runner lifecycle state.
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(statusResponse{Status: h.src.Status()}); err != nil {
		http.Error(w, "Failed to encode status to JSON", http.StatusInternalServerError)
	}
}

// GetAccount returns the latest account snapshot.
func (h *StatusHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.src.Account()); err != nil {
		http.Error(w, "Failed to encode account to JSON", http.StatusInternalServerError)
	}
}

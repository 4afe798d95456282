// Package server exposes the sync engine over a small REST surface.
package server

import (
	"net/http"

	"github.com/simokitafresh/database-sub001/internal/common"
	"github.com/simokitafresh/database-sub001/internal/interfaces"
)

// Server routes HTTP requests to the sync service.
type Server struct {
	sync   interfaces.SyncService
	logger *common.Logger
}

// NewServer creates a server over the given sync service.
func NewServer(sync interfaces.SyncService, logger *common.Logger) *Server {
	return &Server{sync: sync, logger: logger}
}

// Handler builds the HTTP mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/prices", s.handlePrices)
	mux.HandleFunc("/api/health", s.handleHealth)
	return mux
}

// handleHealth responds to GET/HEAD /api/health with {"status":"ok"}.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

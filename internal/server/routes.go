package server

import (
	"net/http"
	"time"

	"github.com/bobmcallan/dsefeed/internal/common"
)

const serviceName = "Bangladesh Stock Market API"

// endpoints is the public route list advertised by /api-info, /v1/dse/status and the 404 handler.
var endpoints = map[string]string{
	"health":     "GET /health",
	"latest":     "GET /v1/dse/latest",
	"dsexData":   "GET /v1/dse/dsexdata?symbol=<optional>",
	"top30":      "GET /v1/dse/top30",
	"historical": "GET /v1/dse/historical?start=<date>&end=<date>&code=<optional>",
	"hello":      "GET /v1/dse/hello",
	"status":     "GET /v1/dse/status?view=<optional>",
}

// registerRoutes sets up all REST API routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api-info", s.handleAPIInfo)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/shutdown", s.handleShutdown)

	// Market data
	mux.HandleFunc("/v1/dse/hello", s.handleHello)
	mux.HandleFunc("/v1/dse/status", s.handleStatus)
	mux.HandleFunc("/v1/dse/latest", s.handleLatest)
	mux.HandleFunc("/v1/dse/dsexdata", s.handleDsex)
	mux.HandleFunc("/v1/dse/top30", s.handleTop30)
	mux.HandleFunc("/v1/dse/historical", s.handleHistorical)

	mux.HandleFunc("/", s.handleNotFound)
}

// --- System handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":      "OK",
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"uptime":      time.Since(s.app.StartupTime).Seconds(),
		"environment": s.app.Config.Environment,
	})
}

func (s *Server) handleAPIInfo(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"name":        serviceName,
		"version":     common.GetVersion(),
		"description": "Unofficial API for Dhaka Stock Exchange data",
		"endpoints":   endpoints,
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, common.GetVersionInfo())
}

// handleShutdown handles POST /api/shutdown (dev mode only).
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if s.app.Config.IsProduction() {
		WriteError(w, http.StatusForbidden, "Shutdown endpoint disabled in production")
		return
	}

	s.logger.Info().Msg("Shutdown requested via HTTP endpoint")

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Shutting down gracefully...\n"))

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	if s.shutdownChan != nil {
		go func() {
			time.Sleep(100 * time.Millisecond)
			s.shutdownChan <- struct{}{}
		}()
	}
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, map[string]any{
		"success":            false,
		"message":            "Endpoint not found",
		"availableEndpoints": endpoints,
	})
}

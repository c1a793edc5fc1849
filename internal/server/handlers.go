package server

import (
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/bobmcallan/dsefeed/internal/common"
	"github.com/bobmcallan/dsefeed/internal/models"
)

func (s *Server) handleHello(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteSuccess(w, "API is healthy and ready to serve stock data", map[string]string{
		"message":   serviceName + " is running!",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   common.GetVersion(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	views := s.app.MarketService.Status(r.Context())
	if name := r.URL.Query().Get("view"); name != "" {
		v, err := models.ParseView(name)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		views = slices.DeleteFunc(views, func(st models.ViewStatus) bool { return st.View != v })
	}

	WriteSuccess(w, "API status information", map[string]any{
		"service":      serviceName,
		"status":       "operational",
		"endpoints":    endpoints,
		"data_source":  s.app.Config.Upstream.BaseURL,
		"views":        views,
		"last_updated": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	records, err := s.app.MarketService.Latest(r.Context())
	if err != nil {
		WriteServiceError(w, err, "Failed to fetch latest stock data")
		return
	}
	WriteSuccess(w, fmt.Sprintf("Retrieved %d latest stock records", len(records)), records)
}

func (s *Server) handleDsex(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	symbol := strings.TrimSpace(r.URL.Query().Get("symbol"))
	records, err := s.app.MarketService.Dsex(r.Context(), symbol)
	if err != nil {
		WriteServiceError(w, err, "Failed to fetch DSEX data")
		return
	}

	message := fmt.Sprintf("Retrieved %d DSEX records", len(records))
	if symbol != "" {
		message = "Retrieved DSEX data for symbol: " + strings.ToUpper(symbol)
	}
	WriteSuccess(w, message, records)
}

func (s *Server) handleTop30(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	entries, err := s.app.MarketService.Top30(r.Context())
	if err != nil {
		WriteServiceError(w, err, "Failed to fetch top 30 stock data")
		return
	}
	WriteSuccess(w, "Retrieved top 30 stock records", entries)
}

// handleHistorical handles GET /v1/dse/historical?start=YYYY-MM-DD&end=YYYY-MM-DD&code=
func (s *Server) handleHistorical(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	q := r.URL.Query()
	startParam := strings.TrimSpace(q.Get("start"))
	endParam := strings.TrimSpace(q.Get("end"))
	code := strings.TrimSpace(q.Get("code"))
	if code == "" {
		code = models.AllInstruments
	}

	if startParam == "" || endParam == "" {
		WriteError(w, http.StatusBadRequest, "Both 'start' and 'end' date parameters are required. Format: YYYY-MM-DD")
		return
	}
	start, err := models.ParseDate(startParam)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid date format. Use YYYY-MM-DD format")
		return
	}
	end, err := models.ParseDate(endParam)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid date format. Use YYYY-MM-DD format")
		return
	}
	if start.After(end) {
		WriteError(w, http.StatusBadRequest, "Start date must be before or equal to end date")
		return
	}

	records, err := s.app.MarketService.Historical(r.Context(), start, end, code)
	if err != nil {
		WriteServiceError(w, err, "Failed to fetch historical data")
		return
	}
	WriteSuccess(w, fmt.Sprintf("Retrieved %d historical records from %s to %s for %s",
		len(records), startParam, endParam, code), records)
}

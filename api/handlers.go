package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"bartwatch.dev/relay/bart"
	"bartwatch.dev/relay/metrics"
	"bartwatch.dev/relay/model"
)

// Envelope status strings. These are part of the wire contract and
// must not change: the dashboard matches on them.
const (
	statusDataAvailable    = "Data available"
	statusNoData           = "No data available"
	statusNoHistoricalData = "No historical data available"
	statusError            = "Error"
)

const defaultDailyStatsLimit = 7

// Service is the relay surface the handlers depend on. Satisfied by
// *relay.Service.
type Service interface {
	Stations(ctx context.Context) ([]model.StationInfo, error)
	Departures(ctx context.Context, code string) ([]model.Departure, error)
	DestinationStats(ctx context.Context) ([]model.DestinationStat, error)
	Performance(ctx context.Context, code string) (*model.Performance, error)
	DailyStats(ctx context.Context, code string, limit int) ([]model.DailyStat, error)
	RecomputeDailyStats(ctx context.Context, code string, day time.Time) error
}

// Handler handles HTTP requests.
type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/stations", h.handleStations).Methods("GET")
	r.HandleFunc("/api/departures/{station}", h.handleDepartures).Methods("GET")
	r.HandleFunc("/api/analytics/stations", h.handleStationAnalytics).Methods("GET")
	r.HandleFunc("/api/analytics/daily", h.handleDailyAnalytics).Methods("GET")
	r.HandleFunc("/api/analytics/daily/{station}", h.handleStationDailyStats).Methods("GET")
	r.HandleFunc("/api/analytics/rollup/{station}", h.handleRollup).Methods("POST")
	r.HandleFunc("/api/performance/{station}", h.handlePerformance).Methods("GET")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")
}

// DeparturesResponse wraps live departures, for both success and
// error cases.
type DeparturesResponse struct {
	Status     string            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	Error      string            `json:"error,omitempty"`
	Departures []model.Departure `json:"departures"`
}

// AnalyticsResponse wraps aggregate query results.
type AnalyticsResponse struct {
	Status    string      `json:"status"`
	Timestamp string      `json:"timestamp"`
	Error     string      `json:"error,omitempty"`
	Data      interface{} `json:"data"`
}

// PerformanceResponse wraps the per-station snapshot.
type PerformanceResponse struct {
	Status string             `json:"status"`
	Error  string             `json:"error,omitempty"`
	Data   *model.Performance `json:"data,omitempty"`
}

func (h *Handler) handleStations(w http.ResponseWriter, r *http.Request) {
	stations, err := h.service.Stations(r.Context())
	if err != nil {
		h.logError(r, err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	// The station list is a bare array, not an envelope.
	h.writeJSON(w, http.StatusOK, stations)
}

func (h *Handler) handleDepartures(w http.ResponseWriter, r *http.Request) {
	station := mux.Vars(r)["station"]

	departures, err := h.service.Departures(r.Context(), station)
	if err != nil {
		h.logError(r, err)
		h.writeJSON(w, http.StatusInternalServerError, DeparturesResponse{
			Status:     statusError,
			Timestamp:  now(),
			Error:      err.Error(),
			Departures: []model.Departure{},
		})
		return
	}

	h.writeJSON(w, http.StatusOK, DeparturesResponse{
		Status:     statusDataAvailable,
		Timestamp:  now(),
		Departures: departures,
	})
}

func (h *Handler) handleStationAnalytics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.DestinationStats(r.Context())
	if err != nil {
		h.logError(r, err)
		h.writeJSON(w, http.StatusInternalServerError, AnalyticsResponse{
			Status:    statusError,
			Timestamp: now(),
			Error:     err.Error(),
			Data:      []model.DestinationStat{},
		})
		return
	}

	status := statusDataAvailable
	if len(stats) == 0 {
		status = statusNoData
	}
	h.writeJSON(w, http.StatusOK, AnalyticsResponse{
		Status:    status,
		Timestamp: now(),
		Data:      stats,
	})
}

// handleDailyAnalytics is a placeholder: system-wide historical
// analytics are not implemented, and the endpoint says so rather
// than 404ing.
func (h *Handler) handleDailyAnalytics(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, AnalyticsResponse{
		Status:    statusNoHistoricalData,
		Timestamp: now(),
		Data:      []model.DailyStat{},
	})
}

func (h *Handler) handleStationDailyStats(w http.ResponseWriter, r *http.Request) {
	station := mux.Vars(r)["station"]

	limit := defaultDailyStatsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit parameter"})
			return
		}
		limit = n
	}

	stats, err := h.service.DailyStats(r.Context(), station, limit)
	if err != nil {
		h.logError(r, err)
		h.writeJSON(w, http.StatusInternalServerError, AnalyticsResponse{
			Status:    statusError,
			Timestamp: now(),
			Error:     err.Error(),
			Data:      []model.DailyStat{},
		})
		return
	}

	status := statusDataAvailable
	if len(stats) == 0 {
		status = statusNoData
	}
	h.writeJSON(w, http.StatusOK, AnalyticsResponse{
		Status:    status,
		Timestamp: now(),
		Data:      stats,
	})
}

func (h *Handler) handleRollup(w http.ResponseWriter, r *http.Request) {
	station := mux.Vars(r)["station"]

	day := time.Now()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid date parameter"})
			return
		}
		day = parsed
	}

	if err := h.service.RecomputeDailyStats(r.Context(), station, day); err != nil {
		h.logError(r, err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status": "error",
			"error":  err.Error(),
		})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (h *Handler) handlePerformance(w http.ResponseWriter, r *http.Request) {
	station := mux.Vars(r)["station"]

	perf, err := h.service.Performance(r.Context(), station)
	if err != nil {
		h.logError(r, err)
		h.writeJSON(w, http.StatusInternalServerError, PerformanceResponse{
			Status: "error",
			Error:  err.Error(),
		})
		return
	}

	h.writeJSON(w, http.StatusOK, PerformanceResponse{
		Status: "success",
		Data:   perf,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("encoding response: %v", err)
	}
}

// logError records the discriminated error kind. The wire envelope
// stays coarse for compatibility, but the logs do not.
func (h *Handler) logError(r *http.Request, err error) {
	log.Printf("%s %s failed (%s): %v", r.Method, r.URL.Path, errorKind(err), err)
}

func errorKind(err error) string {
	if k := bart.KindOf(err); k != 0 {
		return k.String()
	}
	return "storage"
}

func now() string {
	return time.Now().Format(time.RFC3339)
}

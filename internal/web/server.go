package web

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/ampleforth/spot-vault/internal/logger"
	"github.com/ampleforth/spot-vault/internal/state"
	"github.com/ampleforth/spot-vault/internal/types"
)

var webLogger = logger.GetForComponent("web_server")

// PriceSource is anything that can appraise the perp token on demand.
type PriceSource interface {
	AppraisedPrice() (types.OracleReading, error)
}

// WebServer exposes the vault's persisted history and live appraisal over HTTP.
type WebServer struct {
	router     *mux.Router
	port       string
	price      PriceSource
	configName string
}

// NewWebServer creates a new web server instance. price may be nil; the
// price endpoint then reports unavailable.
func NewWebServer(port string, price PriceSource, configName string) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:     mux.NewRouter(),
		port:       port,
		price:      price,
		configName: configName,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/rebalances", ws.handleGetRebalances).Methods("GET")
	api.HandleFunc("/rebalances/latest", ws.handleGetLatestRebalance).Methods("GET")
	api.HandleFunc("/parameters", ws.handleGetParameters).Methods("GET")
	api.HandleFunc("/price", ws.handleGetPrice).Methods("GET")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// handleHealth returns server health: runtime stats, database connectivity
// and the most recent rebalance outcome.
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hasErrors := false

	dbHealthy := true
	if err := state.TestDBConnection(); err != nil {
		dbHealthy = false
		hasErrors = true
	}

	var rebalanceInfo map[string]interface{}
	latest, err := state.GetLatestRebalance()
	switch {
	case err != nil:
		hasErrors = true
		rebalanceInfo = map[string]interface{}{"last_rebalance_status": "unknown"}
	case latest == nil:
		rebalanceInfo = map[string]interface{}{"last_rebalance_status": "none"}
	default:
		rebalanceInfo = map[string]interface{}{
			"last_rebalance_status": "completed",
			"last_rebalance_time":   latest.Timestamp,
			"trace_id":              latest.TraceID,
			"no_op":                 latest.NoOp,
		}
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if hasErrors {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
		},
		"component": map[string]interface{}{
			"name":    "spot-vault",
			"version": "1.0.0",
		},
		"vault_status": map[string]interface{}{
			"database_healthy": dbHealthy,
			"rebalance_info":   rebalanceInfo,
		},
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetRebalances returns recent rebalance records
func (ws *WebServer) handleGetRebalances(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	records, err := state.GetRecentRebalances(limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent rebalances")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve rebalances")
		return
	}

	response := map[string]interface{}{
		"rebalances": records,
		"count":      len(records),
		"limit":      limit,
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetLatestRebalance returns the most recent rebalance record
func (ws *WebServer) handleGetLatestRebalance(w http.ResponseWriter, r *http.Request) {
	latest, err := state.GetLatestRebalance()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get latest rebalance")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve latest rebalance")
		return
	}
	if latest == nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "No rebalances recorded")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, latest)
}

// handleGetParameters returns the active rebalance parameters
func (ws *WebServer) handleGetParameters(w http.ResponseWriter, r *http.Request) {
	params, err := state.LoadActiveVaultParameters(ws.configName)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get vault parameters")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve parameters")
		return
	}
	if params == nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "No active parameters")
		return
	}

	response := map[string]interface{}{
		"parameters": params,
		"timestamp":  time.Now().UTC(),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetPrice runs a live appraisal and reports the price with its
// validity flag. Consumers must treat valid=false prices as unusable.
func (ws *WebServer) handleGetPrice(w http.ResponseWriter, r *http.Request) {
	if ws.price == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Price source not configured")
		return
	}

	reading, err := ws.price.AppraisedPrice()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to appraise price")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to appraise price")
		return
	}

	response := map[string]interface{}{
		"price":     reading.Value.String(),
		"valid":     reading.Valid,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// Package statusapi exposes an optional HTTP surface for operating a Mesher
// node: liveness/readiness checks and a Prometheus scrape endpoint. None of
// this is part of the mesh protocol itself — a node can run without ever
// importing this package — it exists purely for operability.
package statusapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/kenneth/mesher/mesher"
	"github.com/kenneth/mesher/metrics"
)

// status is the JSON body every health/readiness endpoint returns.
type status struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Handler serves the status endpoints for a single Mesher node.
type Handler struct {
	mesher  *mesher.Mesher
	logger  *logrus.Logger
	metrics *metrics.Metrics
}

// NewHandler creates a status API handler bound to m. logger and m may be
// nil; with a nil metricsInstance the /metrics route is not registered at
// all, so requests to it get 404.
func NewHandler(m *mesher.Mesher, logger *logrus.Logger, metricsInstance *metrics.Metrics) *Handler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Handler{mesher: m, logger: logger, metrics: metricsInstance}
}

// RegisterRoutes wires /healthz, /readyz, and /metrics onto r, wrapped with
// request logging and panic recovery.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.Use(LoggingMiddleware(h.logger))
	r.Use(RecoveryMiddleware(h.logger))

	r.HandleFunc("/healthz", h.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", h.handleReadyz).Methods(http.MethodGet)
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics.Handler()).Methods(http.MethodGet)
	}
}

// handleHealthz always reports healthy once the process is serving HTTP at
// all: it answers "is this process alive", not "is it useful".
func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, "healthy")
}

// handleReadyz reports ready only once the node has at least one registered
// transport — without one it can neither send nor receive a packet.
func (h *Handler) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if h.mesher == nil || h.mesher.TransportCount() == 0 {
		writeStatus(w, http.StatusServiceUnavailable, "not_ready")
		return
	}
	writeStatus(w, http.StatusOK, "ready")
}

func writeStatus(w http.ResponseWriter, code int, state string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status{Status: state, Timestamp: time.Now()})
}

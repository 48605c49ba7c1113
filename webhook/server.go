// Package webhook is the inbound HTTP listener accepting alert pushes from
// the upstream monitoring source.
package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"watchtower/alert"
	"watchtower/metrics"
	"watchtower/store"
)

// payload is the §6 webhook body: {"alerts":[{annotations, labels}, ...]}.
type payload struct {
	Alerts []alert.Alert `json:"alerts"`
}

// Server accepts alert webhooks and exposes health and metrics endpoints.
type Server struct {
	store   *store.AlertStore
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
	srv     *http.Server
}

// New creates the server listening on addr. The Prometheus gatherer backs
// the /metrics endpoint.
func New(addr string, alertStore *store.AlertStore, m *metrics.Metrics, gatherer prometheus.Gatherer, log *zap.SugaredLogger) *Server {
	s := &Server{
		store:   alertStore,
		log:     log,
		metrics: m,
	}

	router := mux.NewRouter()
	router.HandleFunc("/webhook", s.handleWebhook).Methods(http.MethodPost)
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.Use(s.requestLogging)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving HTTP until Shutdown.
func (s *Server) ListenAndServe() error {
	s.log.Infow("webhook listener started", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var body payload
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.log.Warnw("rejecting malformed webhook payload", "error", err)
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}
	if len(body.Alerts) == 0 {
		http.Error(w, "no alerts in payload", http.StatusBadRequest)
		return
	}

	ids, err := s.store.Insert(r.Context(), body.Alerts)
	s.metrics.AlertsInserted.Add(float64(len(ids)))
	if err != nil {
		// The successfully written prefix stays; the upstream retries the
		// whole batch as new alerts.
		s.log.Errorw("webhook insert failed", "inserted", len(ids), "error", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{"inserted": ids})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.PendingCount(r.Context()); err != nil {
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// requestLogging tags every request with an id and logs its outcome.
func (s *Server) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		s.log.Infow("http request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.status,
			"duration", time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"git.home.luguber.info/inful/matrixci/internal/logfields"
	"git.home.luguber.info/inful/matrixci/internal/metrics"
)

// Server is the daemon's HTTP surface: webhook trigger, health, and metrics.
type Server struct {
	daemon *Daemon
	http   *http.Server
}

func NewServer(listen string, d *Daemon) *Server {
	s := &Server{daemon: d}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook", s.handleWebhook)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", metrics.HTTPHandler(d.registry))
	mux.HandleFunc("GET /runs", s.handleRuns)

	s.http = &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving in the background. A listen failure is reported
// through the returned error only when it happens synchronously; later
// failures are logged.
func (s *Server) Start() error {
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", logfields.Error(err))
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// webhookRequest is the trigger payload delivered by the forge.
type webhookRequest struct {
	Branch string `json:"branch"`
	Commit string `json:"commit,omitempty"`
}

// handleWebhook accepts a push event and queues a run. A branch outside the
// allow list is acknowledged but produces no run, mirroring the engine's
// branch gate; the caller can tell the two cases apart by the status code.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	if req.Branch == "" {
		http.Error(w, "branch is required", http.StatusBadRequest)
		return
	}

	if !s.daemon.Config().BranchAllowed(req.Branch) {
		slog.Info("Webhook for branch outside allow list", logfields.Branch(req.Branch))
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "skipped"})
		return
	}

	if !s.daemon.TriggerRun(req.Branch, req.Commit) {
		http.Error(w, "daemon is shutting down", http.StatusServiceUnavailable)
		return
	}

	slog.Info("Webhook accepted",
		logfields.Branch(req.Branch),
		logfields.Commit(req.Commit))
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "queued"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleRuns returns the most recent run records.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.daemon.history.RecentRuns(r.Context(), 20)
	if err != nil {
		http.Error(w, "failed to query run history", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(runs)
}

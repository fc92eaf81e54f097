// Package api serves the monitor's query and admin surface.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"modelguard/internal/alerts"
	"modelguard/internal/config"
	"modelguard/internal/ledger"
	"modelguard/internal/model"
)

// DetectorControl is the slice of the detector the API needs.
type DetectorControl interface {
	Reset()
	UpdateConfig(cfg *config.Config) error
	TrackedIdentities() int
}

type Server struct {
	cfg      *config.Manager
	ledger   *ledger.Ledger
	alerts   *alerts.Store
	detector DetectorControl
	logger   *slog.Logger
	version  string
	started  time.Time
}

type statusResponse struct {
	Status            string   `json:"status"`
	Time              string   `json:"time"`
	Version           string   `json:"version"`
	Model             string   `json:"model"`
	ConfigPath        string   `json:"config_path"`
	TrackedIdentities int      `json:"tracked_identities"`
	LedgerSize        int      `json:"ledger_size"`
	UptimeSeconds     int64    `json:"uptime_seconds"`
	Ingest            []string `json:"ingest"`
}

func Start(ctx context.Context, cfg *config.Manager, incidents *ledger.Ledger, alertsStore *alerts.Store, detector DetectorControl, gatherer prometheus.Gatherer, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := &Server{
		cfg:      cfg,
		ledger:   incidents,
		alerts:   alertsStore,
		detector: detector,
		logger:   logger,
		version:  version,
		started:  time.Now().UTC(),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", server.handleStatus)
	mux.HandleFunc("/summary", server.handleSummary)
	mux.HandleFunc("/alerts", server.handleAlerts)
	mux.HandleFunc("/verdicts", server.handleVerdicts)
	mux.HandleFunc("/admin/reset", server.handleReset)
	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	httpServer := &http.Server{Addr: current.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	ingest := make([]string, 0, 4)
	if cfg.Ingest.REST.Enabled {
		ingest = append(ingest, "rest")
	}
	if cfg.Ingest.Kafka.Enabled {
		ingest = append(ingest, "kafka")
	}
	if cfg.Ingest.Redis.Enabled {
		ingest = append(ingest, "redis")
	}
	if cfg.Ingest.FileTail.Enabled {
		ingest = append(ingest, "file_tail")
	}
	tracked := 0
	if s.detector != nil {
		tracked = s.detector.TrackedIdentities()
	}
	ledgerSize := 0
	if s.ledger != nil {
		ledgerSize = s.ledger.Len()
	}
	resp := statusResponse{
		Status:            "ok",
		Time:              time.Now().UTC().Format(time.RFC3339Nano),
		Version:           s.version,
		Model:             cfg.ModelName,
		ConfigPath:        s.cfg.Path(),
		TrackedIdentities: tracked,
		LedgerSize:        ledgerSize,
		UptimeSeconds:     int64(time.Since(s.started).Seconds()),
		Ingest:            ingest,
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSummary answers GET /summary?since=RFC3339&until=RFC3339. The
// range defaults to the last 24 hours ending now.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	until := time.Now().UTC()
	since := until.Add(-24 * time.Hour)
	if v := r.URL.Query().Get("until"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		until = ts
	}
	if v := r.URL.Query().Get("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		since = ts
	}
	writeJSON(w, http.StatusOK, s.ledger.Summarize(since, until))
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	var list []model.AlertRecord
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		ts, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		list = s.alerts.Since(ts)
	} else {
		list = s.alerts.List(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": list,
		"count":  len(list),
	})
}

func (s *Server) handleVerdicts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	list := s.ledger.Recent(limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"verdicts": list,
		"count":    len(list),
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.detector != nil {
		s.detector.Reset()
	}
	if s.alerts != nil {
		s.alerts.Clear()
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

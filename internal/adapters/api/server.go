// Package api is the HTTP surface for analysing messages and managing the
// blacklist, signal settings and history.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mikey/threat-scorer/internal/adapters/store"
	"github.com/mikey/threat-scorer/internal/core"
	"github.com/mikey/threat-scorer/internal/ports"
	"go.uber.org/zap"
)

// Service is what the API needs from the scoring service
type Service interface {
	ports.Analyzer
	EnabledSignals(ctx context.Context) core.EnabledSignals
	Weights() core.Weights
}

// Server is the HTTP API
type Server struct {
	service         Service
	store           store.Store
	metrics         http.Handler
	logger          *zap.Logger
	router          chi.Router
	maxMessageBytes int64
}

// NewServer creates a Server. metrics may be nil to disable /metrics.
func NewServer(service Service, st store.Store, metrics http.Handler, maxMessageBytes int64, logger *zap.Logger) *Server {
	if maxMessageBytes <= 0 {
		maxMessageBytes = 10 * 1024 * 1024
	}
	s := &Server{
		service:         service,
		store:           st,
		metrics:         metrics,
		logger:          logger.Named("api"),
		router:          chi.NewRouter(),
		maxMessageBytes: maxMessageBytes,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	r.Post("/analyze", s.handleAnalyze)
	r.Get("/history", s.handleHistory)

	r.Get("/blacklist", s.handleListBlacklist)
	r.Post("/blacklist", s.handleAddBlacklist)
	r.Delete("/blacklist/{entry}", s.handleRemoveBlacklist)

	r.Get("/settings", s.handleGetSettings)
	r.Put("/settings", s.handlePutSettings)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.router.ServeHTTP(w, r)
	s.logger.Debug("http_request",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Duration("duration", time.Since(start)))
}

// HTTPServer creates an *http.Server ready to ListenAndServe
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- HTTP handlers ---

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxMessageBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "message too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read message")
		return
	}
	if len(raw) == 0 {
		writeError(w, http.StatusBadRequest, "empty message")
		return
	}

	analysis, err := s.service.Process(r.Context(), raw)
	if err != nil {
		s.logger.Warn("analysing message", zap.Error(err))
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":    err.Error(),
			"analysis": analysis,
		})
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.store.Recent(r.Context())
	if err != nil {
		s.logger.Warn("loading history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleListBlacklist(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.List(r.Context())
	if err != nil {
		s.logger.Warn("listing blacklist", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list blacklist")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"entries": entries})
}

func (s *Server) handleAddBlacklist(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Entry string `json:"entry"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	entry, err := store.NormalizeEntry(body.Entry)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.Add(r.Context(), entry); err != nil {
		s.logger.Warn("adding blacklist entry", zap.String("entry", entry), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to add entry")
		return
	}
	s.logger.Info("Added blacklist entry", zap.String("entry", entry))
	writeJSON(w, http.StatusCreated, map[string]string{"entry": entry})
}

func (s *Server) handleRemoveBlacklist(w http.ResponseWriter, r *http.Request) {
	entry := chi.URLParam(r, "entry")

	err := s.store.Remove(r.Context(), entry)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "entry not found")
	case errors.Is(err, store.ErrInvalidEntry):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		s.logger.Warn("removing blacklist entry", zap.String("entry", entry), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to remove entry")
	default:
		s.logger.Info("Removed blacklist entry", zap.String("entry", entry))
		w.WriteHeader(http.StatusNoContent)
	}
}

// signalSetting is one row of the settings listing
type signalSetting struct {
	Signal  core.SignalKey `json:"signal"`
	Label   string         `json:"label"`
	Weight  int            `json:"weight"`
	Enabled bool           `json:"enabled"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	enabled := s.service.EnabledSignals(r.Context())
	weights := s.service.Weights()

	settings := make([]signalSetting, 0, len(core.EvaluationOrder))
	for _, key := range core.EvaluationOrder {
		settings = append(settings, signalSetting{
			Signal:  key,
			Label:   key.Label(),
			Weight:  weights.Of(key),
			Enabled: enabled.Enabled(key),
		})
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var body map[string]bool
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	// reject the whole update if any key is unknown
	if _, err := core.ParseEnabledSignals(body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	for key, on := range body {
		signal := core.SignalKey(strings.ToLower(strings.TrimSpace(key)))
		if err := s.store.SetEnabled(r.Context(), signal, on); err != nil {
			s.logger.Warn("storing signal setting", zap.String("signal", key), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to store settings")
			return
		}
	}
	s.logger.Info("Updated signal settings", zap.Any("settings", body))
	s.handleGetSettings(w, r)
}

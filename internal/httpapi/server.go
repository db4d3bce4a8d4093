// Package httpapi exposes the watch daemon's read-mostly HTTP surface:
// health, Prometheus metrics, stored communications and case timelines.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"djenwatch/internal/analysis"
	"djenwatch/internal/casestage"
	"djenwatch/internal/comm"
	"djenwatch/internal/ingest"
	"djenwatch/internal/logging"
	"djenwatch/internal/metrics"
	"djenwatch/internal/services"
	"djenwatch/internal/store"
	"djenwatch/internal/timeline"
)

// StatusSource reports the latest watch pass.
type StatusSource interface {
	Last() (ingest.PassStatus, bool)
}

// Server serves the HTTP API.
type Server struct {
	bind     string
	store    *store.Store
	analysis *analysis.Service
	status   StatusSource
	metrics  *metrics.Metrics
	logger   *slog.Logger

	listener net.Listener
	server   *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithAnalysis serves timelines from the analysis cache when it has them.
func WithAnalysis(svc *analysis.Service) Option {
	return func(s *Server) { s.analysis = svc }
}

// WithStatus exposes the watcher's last pass under /api/status.
func WithStatus(src StatusSource) Option {
	return func(s *Server) { s.status = src }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New builds a server bound to bind. Nothing listens until Start.
func New(bind string, st *store.Store, opts ...Option) *Server {
	s := &Server{bind: strings.TrimSpace(bind), store: st}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "api-server")
	s.server = &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Routes returns the router; tests mount it on httptest servers.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/communications", s.handleCommunications)
		r.Post("/communications/{hash}/read", s.handleMarkRead)
		r.Get("/cases", s.handleCases)
		r.Get("/cases/{caseNumber}/timeline", s.handleTimeline)
	})
	return r
}

// Start listens on the bind address and shuts the server down when ctx ends.
func (s *Server) Start(ctx context.Context) error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down, waiting up to five seconds for requests.
func (s *Server) Stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Stats    store.Stats        `json:"stats"`
	LastPass *ingest.PassStatus `json:"lastPass,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	resp := statusResponse{Stats: stats}
	if s.status != nil {
		if last, ok := s.status.Last(); ok {
			resp.LastPass = &last
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type communicationsResponse struct {
	Items []comm.Communication `json:"items"`
}

func (s *Server) handleCommunications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ListFilter{CaseNumber: strings.TrimSpace(q.Get("case"))}
	if filter.CaseNumber != "" {
		normalized, err := comm.NormalizeCaseNumber(filter.CaseNumber)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.CaseNumber = normalized
	}
	if raw := q.Get("unread"); raw != "" {
		unread, err := strconv.ParseBool(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid unread flag")
			return
		}
		read := !unread
		filter.Read = &read
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	items, err := s.store.List(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if items == nil {
		items = []comm.Communication{}
	}
	s.writeJSON(w, http.StatusOK, communicationsResponse{Items: items})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if err := s.store.MarkRead(r.Context(), chi.URLParam(r, "hash")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCases(w http.ResponseWriter, r *http.Request) {
	cases, err := s.store.Cases(r.Context(), store.CaseFilter{Status: r.URL.Query().Get("status")})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if cases == nil {
		cases = []store.Case{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"items": cases})
}

// TimelineResponse is the case timeline payload.
type TimelineResponse struct {
	CaseNumber  string           `json:"caseNumber"`
	Stage       casestage.Stage  `json:"stage"`
	StageLabel  string           `json:"stageLabel"`
	Ladder      int              `json:"ladder"`
	LadderLabel string           `json:"ladderLabel"`
	Progress    float64          `json:"progress"`
	Cached      bool             `json:"cached"`
	Expired     bool             `json:"expired,omitempty"`
	Events      []timeline.Event `json:"events"`
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	caseNumber, err := comm.NormalizeCaseNumber(chi.URLParam(r, "caseNumber"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp := TimelineResponse{CaseNumber: caseNumber}
	if s.analysis != nil {
		if events, ok := s.analysis.GetCached(caseNumber); ok {
			resp.Events = events
			resp.Cached = true
			resp.Expired = s.analysis.Expired(caseNumber)
		}
	}
	if !resp.Cached {
		comms, err := s.store.ByCaseNumber(r.Context(), caseNumber)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		if len(comms) == 0 {
			s.writeError(w, http.StatusNotFound, "no communications for case")
			return
		}
		resp.Events = timeline.BuildEvents(comms)
	}
	resp.Stage = casestage.Infer(resp.Events)
	resp.StageLabel = resp.Stage.Label()
	step := casestage.Ladder(resp.Events)
	resp.Ladder = int(step)
	resp.LadderLabel = step.Label()
	resp.Progress = casestage.Progress(step)
	s.writeJSON(w, http.StatusOK, resp)
}

func intParam(raw string) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid integer %q", raw)
	}
	return v, nil
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrInvalidFilter), errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	}
	s.writeError(w, status, err.Error())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// Package api exposes the agent trigger endpoints over HTTP.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/policy-tracker/internal/config"
	"github.com/sells-group/policy-tracker/internal/metrics"
	"github.com/sells-group/policy-tracker/internal/model"
	"github.com/sells-group/policy-tracker/internal/tracker"
)

// AgentRunner runs agents by type.
type AgentRunner interface {
	Has(t model.AgentType) bool
	Run(ctx context.Context, t model.AgentType, trigger model.Trigger) (*model.RunResult, error)
}

// Pinger reports backend reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the HTTP handlers.
type Server struct {
	runner  AgentRunner
	store   Pinger
	metrics *metrics.Metrics
	cfg     config.ServerConfig
}

// NewServer creates a Server. metrics may be nil, which disables /metrics.
func NewServer(cfg config.ServerConfig, runner AgentRunner, store Pinger, m *metrics.Metrics) *Server {
	return &Server{runner: runner, store: store, metrics: m, cfg: cfg}
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger, middleware.Recoverer)
	if len(s.cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api/agents", func(r chi.Router) {
		r.Use(s.requireSecret)
		r.Get("/{agent}", s.handleRunAgent)
		r.Post("/{agent}", s.handleRunAgent)
	})
	return r
}

// requireSecret rejects requests without the configured bearer secret.
// An empty secret rejects everything.
func (s *Server) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || s.cfg.CronSecret == "" ||
			subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.CronSecret)) != 1 {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type errorBody struct {
	Error  string           `json:"error"`
	Result *model.RunResult `json:"result,omitempty"`
}

func (s *Server) handleRunAgent(w http.ResponseWriter, r *http.Request) {
	agent, ok := model.ParseAgentType(chi.URLParam(r, "agent"))
	if !ok || !s.runner.Has(agent) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "unknown agent"})
		return
	}
	trigger := model.ParseTrigger(r.URL.Query().Get("trigger"))

	// A client disconnect must not abort a run that is already writing.
	res, err := s.runner.Run(context.WithoutCancel(r.Context()), agent, trigger)
	switch {
	case errors.Is(err, tracker.ErrRunInProgress):
		writeJSON(w, http.StatusConflict, errorBody{Error: "run already in progress"})
	case err != nil:
		zap.L().Error("api: agent run failed",
			zap.String("agent", string(agent)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error(), Result: res})
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

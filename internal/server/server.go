// Package server exposes the assistant over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"rag-assistant/internal/assistant/ask"
	"rag-assistant/internal/common/config"
	"rag-assistant/internal/common/database"
	apperrors "rag-assistant/internal/common/errors"
	"rag-assistant/internal/common/logger"
	"rag-assistant/internal/common/validation"
	"rag-assistant/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxBodyBytes caps request bodies. Chunk uploads carry a full embedding.
const maxBodyBytes = 4 << 20

// Assistant is the question-answering surface the routes call into.
type Assistant interface {
	Execute(ctx context.Context, req *ask.Request) (*ask.Response, error)
	History(ctx context.Context, sessionID string, limit int) ([]models.ConversationTurn, error)
	ClearSession(ctx context.Context, sessionID string) error
}

type Deps struct {
	Assistant Assistant
	Chunks    models.ChunkRepository
	Checkers  []database.Checker
}

type Server struct {
	deps        Deps
	router      chi.Router
	errors      *apperrors.Handler
	askSchema   *validation.Validator
	chunkSchema *validation.Validator
	logger      logger.Logger
	httpServer  *http.Server
}

func New(cfg config.ServerConfig, deps Deps, log logger.Logger) *Server {
	s := &Server{
		deps:        deps,
		errors:      apperrors.NewHandler(log),
		askSchema:   validation.MustValidator(validation.AskRequestSchema),
		chunkSchema: validation.MustValidator(validation.ChunkSchema),
		logger:      log.With(map[string]interface{}{"component": "http"}),
	}
	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  config.GetDuration(cfg.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.WriteTimeout),
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/ask", s.handleAsk)
		r.Post("/website-data", s.handleInsertChunk)
		r.Get("/sessions/{sessionID}/messages", s.handleHistory)
		r.Delete("/sessions/{sessionID}", s.handleClearSession)
	})
	return r
}

// Handler returns the routed handler; used directly by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", map[string]interface{}{"address": s.httpServer.Addr})
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// readyTimeout bounds each backend ping of the readiness probe.
const readyTimeout = 2 * time.Second

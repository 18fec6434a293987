// Package server exposes experiment assignment, event tracking and the
// analysis dashboard over HTTP.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/truecheckia/splitkit/internal/attribution"
	"github.com/truecheckia/splitkit/internal/experiment"
	"github.com/truecheckia/splitkit/internal/funnel"
	"github.com/truecheckia/splitkit/internal/journey"
	"github.com/truecheckia/splitkit/internal/logger"
	"github.com/truecheckia/splitkit/internal/storage"
	"github.com/truecheckia/splitkit/internal/tracking"
)

// Database is the part of the SQLite store the health check reads.
type Database interface {
	Ping(ctx context.Context) error
	Size(ctx context.Context) (int64, error)
}

// Options wires a Server. Engine and Tracker are required.
type Options struct {
	Engine      *experiment.Engine
	Tracker     *tracking.Tracker
	Funnels     *funnel.Analyzer
	Attribution *attribution.Analyzer
	Journeys    journey.Store
	// Visitors backs per-visitor state; it is scoped by session id.
	Visitors storage.Storage
	Database Database
	Logger   *zap.Logger

	Port int
	// Token guards the dashboard. A random one is generated when empty.
	Token     string
	TokenFile string
}

type Server struct {
	engine      *experiment.Engine
	tracker     *tracking.Tracker
	funnels     *funnel.Analyzer
	attribution *attribution.Analyzer
	journeys    journey.Store
	visitors    storage.Storage
	db          Database
	logger      *zap.Logger

	port      int
	token     string
	tokenFile string
	router    chi.Router
	startTime time.Time
}

func New(opts Options) *Server {
	srv := &Server{
		engine:      opts.Engine,
		tracker:     opts.Tracker,
		funnels:     opts.Funnels,
		attribution: opts.Attribution,
		journeys:    opts.Journeys,
		visitors:    opts.Visitors,
		db:          opts.Database,
		logger:      logger.OrNop(opts.Logger),
		port:        opts.Port,
		token:       opts.Token,
		tokenFile:   opts.TokenFile,
		startTime:   time.Now(),
	}
	if srv.token == "" {
		srv.token = generateToken()
	}
	if srv.funnels == nil {
		srv.funnels = funnel.NewAnalyzer()
	}
	if srv.attribution == nil {
		srv.attribution = attribution.NewAnalyzer()
	}

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.requestLog)
	r.Use(chimw.Recoverer)

	r.Get("/health", s.handleHealth)

	// Public endpoints, called from the marketing site.
	r.Route("/api", func(r chi.Router) {
		r.Use(cors)
		r.Get("/experiments", s.handleRunningExperiments)
		r.Get("/experiments/{id}/assignment", s.handleAssignment)
		r.Post("/experiments/{id}/exposure", s.handleExposure)
		r.Post("/events", s.handleEvent)
		r.Get("/events/recent", s.handleRecentEvents)
		r.Delete("/visitor", s.handleClearVisitor)
		r.Post("/attribution", s.handleAttribution)
	})

	// Dashboard endpoints (protected)
	r.Route("/dashboard/api", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/experiments", s.handleDashboardExperiments)
		r.Get("/experiments/{id}/results", s.handleExperimentResults)
		r.Get("/funnels", s.handleFunnels)
		r.Get("/funnels/{id}", s.handleFunnelAnalysis)
		r.Get("/attribution", s.handleAttributionReport)
		r.Get("/paths", s.handleConversionPaths)
	})

	s.router = r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	// Write token to file for the token command
	if s.tokenFile != "" {
		if err := os.WriteFile(s.tokenFile, []byte(s.token), 0600); err != nil {
			s.logger.Warn("failed to write token file", zap.String("path", s.tokenFile), zap.Error(err))
		}
	}

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("splitkit listening",
			zap.Int("port", s.port),
			zap.String("dashboard", fmt.Sprintf("http://localhost:%d/dashboard/api/experiments?token=%s", s.port, s.token)))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

func (s *Server) Token() string {
	return s.token
}

func (s *Server) StartTime() time.Time {
	return s.startTime
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func generateToken() string {
	bytes := make([]byte, 4)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a simple token if crypto/rand fails
		return "a1b2c3d4"
	}
	return hex.EncodeToString(bytes)
}

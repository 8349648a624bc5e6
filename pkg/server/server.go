// Package server provides an embeddable HTTP server wrapping the
// durable orchestration core: it wires every adapter (event store,
// lease manager, policy oracle, decision sink, outbox publisher) to a
// single engine and exposes the Control API over gin.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"

	"github.com/aobuilder/aob/internal/config"
	"github.com/aobuilder/aob/internal/logging"
	"github.com/aobuilder/aob/internal/restapi"
	"github.com/aobuilder/aob/internal/storage"
	"github.com/aobuilder/aob/pkg/decision"
	"github.com/aobuilder/aob/pkg/dlq"
	"github.com/aobuilder/aob/pkg/engine"
	"github.com/aobuilder/aob/pkg/eventstore"
	"github.com/aobuilder/aob/pkg/lease"
	"github.com/aobuilder/aob/pkg/oracle"
	"github.com/aobuilder/aob/pkg/outbox"
)

// Server wires every durable-core adapter to a single *engine.Engine
// and exposes it over the Control API's gin router.
type Server struct {
	config *config.Config
	logger *slog.Logger
	router *gin.Engine

	httpServer *http.Server

	db          *bun.DB
	redisClient *redis.Client

	store        eventstore.Store
	decisionSink decision.Sink
	dlqQueue     dlq.Queue
	leases       lease.Manager
	oracleClient oracle.Client
	registry     *engine.Registry

	engine    *engine.Engine
	publisher *outbox.Publisher
}

// New constructs a Server, applying opts before falling back to
// config.Load and a default slog logger.
func New(opts ...Option) (*Server, error) {
	s := &Server{}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if s.config == nil {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("load configuration: %w", err)
		}
		s.config = cfg
	}

	if s.logger == nil {
		s.logger = logging.Init(s.config.Logging)
	}

	if err := s.initComponents(); err != nil {
		return nil, fmt.Errorf("initialize components: %w", err)
	}

	handlers := restapi.NewHandlers(s.engine, s.store, s.dlqQueue, s.logger)
	routerCfg := restapi.DefaultRouterConfig()
	routerCfg.Debug = s.config.Logging.Level == "debug"
	s.router = restapi.NewRouter(handlers, routerCfg, s.logger)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Run starts the HTTP server and the outbox publisher, and blocks until
// a shutdown signal arrives.
func (s *Server) Run() error {
	s.logger.Info("starting aob server", "host", s.config.Server.Host, "port", s.config.Server.Port)

	pubCtx, cancelPublisher := context.WithCancel(context.Background())
	defer cancelPublisher()
	s.publisher.Start(pubCtx)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- s.httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case sig := <-shutdown:
		s.logger.Info("shutdown initiated", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()
		return s.Shutdown(ctx)
	}
}

// Shutdown gracefully stops the publisher, the HTTP server, and every
// connection pool, workers first so nothing is mid-publish when the
// connections close.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("stopping outbox publisher")
	s.publisher.Stop()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("graceful http shutdown failed", "error", err)
		if err := s.httpServer.Close(); err != nil {
			s.logger.Error("http server close failed", "error", err)
		}
	}

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("redis client close failed", "error", err)
		}
	}

	if s.db != nil {
		if err := storage.Close(s.db); err != nil {
			s.logger.Error("database close failed", "error", err)
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router, for embedding applications that add
// their own endpoints alongside the Control API.
func (s *Server) Router() *gin.Engine { return s.router }

// Config returns the server configuration.
func (s *Server) Config() *config.Config { return s.config }

// Engine returns the underlying execution engine, for embedding
// applications that want to call Start/Resume/Replay directly instead
// of going through the Control API.
func (s *Server) Engine() *engine.Engine { return s.engine }

// DB returns the database connection.
func (s *Server) DB() *bun.DB { return s.db }

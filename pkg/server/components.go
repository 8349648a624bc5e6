package server

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aobuilder/aob/internal/config"
	"github.com/aobuilder/aob/internal/storage"
	"github.com/aobuilder/aob/internal/storage/migrations"
	"github.com/aobuilder/aob/pkg/engine"
	"github.com/aobuilder/aob/pkg/gateway"
	"github.com/aobuilder/aob/pkg/lease"
	"github.com/aobuilder/aob/pkg/oracle"
	"github.com/aobuilder/aob/pkg/outbox"
)

// initComponents builds every collaborator the durable core needs:
// database first, then redis, then the stores and clients layered on
// them, then the engine and publisher that consume it all.
func (s *Server) initComponents() error {
	if err := s.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := s.initRedis(); err != nil {
		return fmt.Errorf("failed to initialize redis: %w", err)
	}

	s.initStores()

	if err := s.initOracle(); err != nil {
		return fmt.Errorf("failed to initialize policy oracle: %w", err)
	}

	if s.registry == nil {
		s.registry = defaultRegistry(s.config.Gateway)
	}

	s.initEngine()
	s.initOutbox()

	return nil
}

func (s *Server) initDatabase() error {
	dbConfig := storage.ConfigFromApp(s.config.Database, s.config.Logging.Level == "debug")

	db, err := storage.NewDB(dbConfig)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	s.db = db

	migrator, err := storage.NewMigrator(db, migrations.FS)
	if err != nil {
		return fmt.Errorf("configure migrator: %w", err)
	}
	if err := migrator.Up(context.Background()); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	s.logger.Info("database connected and migrated", "max_conns", s.config.Database.MaxConnections)
	return nil
}

func (s *Server) initRedis() error {
	opts, err := redis.ParseURL(s.config.Redis.URL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	if s.config.Redis.Password != "" {
		opts.Password = s.config.Redis.Password
	}
	opts.DB = s.config.Redis.DB
	opts.PoolSize = s.config.Redis.PoolSize

	s.redisClient = redis.NewClient(opts)
	s.logger.Info("redis client configured", "pool_size", s.config.Redis.PoolSize)
	return nil
}

// initStores wires the bun-backed event store, decision sink, and DLQ,
// plus the Redis-backed lease manager.
func (s *Server) initStores() {
	s.store = storage.NewEventStore(s.db)
	s.decisionSink = storage.NewDecisionRecorder(s.db)
	s.dlqQueue = storage.NewDLQ(s.db)
	s.leases = lease.NewRedisManager(s.redisClient)
}

func (s *Server) initOracle() error {
	s.oracleClient = oracle.NewHTTPClient(s.config.Oracle.URL,
		oracle.WithHTTPTimeout(s.config.Oracle.Timeout),
		oracle.WithRates(map[time.Duration]int{
			time.Second: s.config.Oracle.RatePerSecond,
			time.Minute: s.config.Oracle.RatePerMinute,
		}),
		oracle.WithBreakerThreshold(s.config.Oracle.BreakerThreshold),
	)
	return nil
}

func (s *Server) initEngine() {
	s.engine = engine.New(s.store, s.leases, s.oracleClient, s.decisionSink, s.registry,
		engine.WithLeaseTTL(s.config.Engine.LeaseTTL),
		engine.WithSnapshotInterval(s.config.Engine.SnapshotInterval),
		engine.WithMaxOracleErrors(s.config.Engine.MaxOracleErrors),
		engine.WithLogger(s.logger),
	)
}

func (s *Server) initOutbox() {
	bus := outbox.NewRedisBus(s.redisClient)
	s.publisher = outbox.NewPublisher(s.store, bus, s.dlqQueue,
		outbox.WithPollInterval(s.config.Outbox.PollInterval),
		outbox.WithMaxRetries(s.config.Outbox.MaxRetries),
		outbox.WithBatchSize(s.config.Outbox.BatchSize),
		outbox.WithQuarantineTTL(s.config.Outbox.QuarantineTTL),
		outbox.WithLogger(s.logger),
	)
}

// defaultRegistry builds the Registry New falls back to when no
// WithBehaviorRegistry option is supplied: every Task and Agent node
// dispatches through a single pkg/gateway.HTTPBehavior pointed at the
// configured tool/model gateway URL. Embedding applications that need
// per-node-kind behaviors build their own Registry and pass it via
// WithBehaviorRegistry instead.
func defaultRegistry(cfg config.GatewayConfig) *engine.Registry {
	reg := engine.NewRegistry()
	behavior := gateway.NewHTTPBehavior(cfg.URL, gateway.WithTimeout(cfg.Timeout))
	reg.Register("task", behavior)
	reg.Register("agent", behavior)
	return reg
}

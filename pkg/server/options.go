package server

import (
	"log/slog"

	"github.com/aobuilder/aob/internal/config"
	"github.com/aobuilder/aob/pkg/engine"
)

// Option is a functional option for configuring the server.
type Option func(*Server) error

// WithConfig sets the server configuration, bypassing config.Load.
func WithConfig(cfg *config.Config) Option {
	return func(s *Server) error {
		s.config = cfg
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) error {
		s.logger = l
		return nil
	}
}

// WithBehaviorRegistry overrides the engine.Registry used to dispatch
// Task/Agent nodes. Without this option New builds one with
// pkg/gateway.HTTPBehavior registered for "task" and "agent" against
// the configured gateway URL; tests and embedding applications swap in
// their own registry here.
func WithBehaviorRegistry(reg *engine.Registry) Option {
	return func(s *Server) error {
		s.registry = reg
		return nil
	}
}

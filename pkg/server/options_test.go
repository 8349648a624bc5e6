package server

import (
	"testing"

	"github.com/aobuilder/aob/internal/config"
	"github.com/aobuilder/aob/internal/logging"
	"github.com/aobuilder/aob/pkg/engine"
)

func TestWithConfig(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Server: config.ServerConfig{Host: "localhost", Port: 8080},
	}

	s := &Server{}
	if err := WithConfig(cfg)(s); err != nil {
		t.Fatalf("WithConfig returned error: %v", err)
	}
	if s.config != cfg {
		t.Error("WithConfig did not set config")
	}
	if s.config.Server.Port != 8080 {
		t.Errorf("expected port 8080, got %d", s.config.Server.Port)
	}
}

func TestWithLogger(t *testing.T) {
	t.Parallel()

	l := logging.New(config.LoggingConfig{Level: "info", Format: "json"})

	s := &Server{}
	if err := WithLogger(l)(s); err != nil {
		t.Fatalf("WithLogger returned error: %v", err)
	}
	if s.logger != l {
		t.Error("WithLogger did not set logger")
	}
}

func TestWithBehaviorRegistry(t *testing.T) {
	t.Parallel()

	reg := engine.NewRegistry()

	s := &Server{}
	if err := WithBehaviorRegistry(reg)(s); err != nil {
		t.Fatalf("WithBehaviorRegistry returned error: %v", err)
	}
	if s.registry != reg {
		t.Error("WithBehaviorRegistry did not set registry")
	}
}

// aob-server runs the orchestration builder's durable core behind its
// Control API, a thin wrapper over pkg/server.
package main

import (
	"log"

	"github.com/aobuilder/aob/pkg/server"
)

func main() {
	srv, err := server.New()
	if err != nil {
		log.Fatalf("failed to initialize server: %v", err)
	}

	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

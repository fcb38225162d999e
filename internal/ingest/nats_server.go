// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

package ingest

import (
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// EmbeddedServer is an in-process NATS server for single-host deployments
// where the producer publishes straight to Heimdall.
type EmbeddedServer struct {
	server *server.Server
}

// StartEmbeddedServer starts a core NATS server on host:port. A port of -1
// picks a random free port.
func StartEmbeddedServer(host string, port int) (*EmbeddedServer, error) {
	opts := &server.Options{
		ServerName: "heimdall-ingest",
		Host:       host,
		Port:       port,
		NoLog:      true,
		NoSigs:     true,
		MaxPayload: 1024 * 1024,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS server not ready within timeout")
	}
	return &EmbeddedServer{server: ns}, nil
}

// ClientURL returns the connection URL for clients.
func (s *EmbeddedServer) ClientURL() string {
	return s.server.ClientURL()
}

// Shutdown stops the server and waits for it to exit.
func (s *EmbeddedServer) Shutdown() {
	s.server.Shutdown()
	s.server.WaitForShutdown()
}

// IsRunning reports server health.
func (s *EmbeddedServer) IsRunning() bool {
	return s.server.Running()
}

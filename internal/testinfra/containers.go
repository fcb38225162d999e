// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

//go:build integration

// Package testinfra starts real backing services in containers for
// integration tests. Everything here requires Docker and the integration
// build tag.
package testinfra

import (
	"context"
	"fmt"
	"os/exec"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// DefaultRedisImage is the image used by NewRedisContainer.
	DefaultRedisImage = "redis:7-alpine"

	redisPort = "6379/tcp"
)

// SkipIfNoDocker skips the test if Docker is not available.
func SkipIfNoDocker(t *testing.T) {
	t.Helper()

	if !IsDockerAvailable() {
		t.Skip("Skipping test: Docker not available")
	}
}

// IsDockerAvailable checks if the Docker daemon answers.
func IsDockerAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return exec.CommandContext(ctx, "docker", "info").Run() == nil
}

// RedisContainer is a running Redis server.
type RedisContainer struct {
	testcontainers.Container

	// Addr is host:port reachable from the test process.
	Addr string
}

// NewRedisContainer starts Redis and waits until it accepts connections.
func NewRedisContainer(ctx context.Context) (*RedisContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        DefaultRedisImage,
		ExposedPorts: []string{redisPort},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort(redisPort),
			wait.ForLog("Ready to accept connections"),
		).WithDeadline(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("start redis container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("redis container host: %w", err)
	}
	port, err := container.MappedPort(ctx, redisPort)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("redis container port: %w", err)
	}

	return &RedisContainer{Container: container, Addr: fmt.Sprintf("%s:%s", host, port.Port())}, nil
}

// CleanupContainer terminates container and logs failures.
func CleanupContainer(t *testing.T, ctx context.Context, container testcontainers.Container) {
	t.Helper()

	if container != nil {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	}
}

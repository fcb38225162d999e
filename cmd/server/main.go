// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/heimdall/internal/api"
	"github.com/tomtom215/heimdall/internal/config"
	"github.com/tomtom215/heimdall/internal/firewall"
	"github.com/tomtom215/heimdall/internal/ingest"
	"github.com/tomtom215/heimdall/internal/logging"
	"github.com/tomtom215/heimdall/internal/registry"
	"github.com/tomtom215/heimdall/internal/store"
	"github.com/tomtom215/heimdall/internal/supervisor"
	"github.com/tomtom215/heimdall/internal/supervisor/services"
	ws "github.com/tomtom215/heimdall/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Error().Err(err).Msg("Heimdall stopped with error")
		stop()
		os.Exit(1)
	}
	logging.Info().Msg("Heimdall stopped")
}

// app holds the wired components.
type app struct {
	cfg     *config.Config
	store   *store.Guard
	hub     *ws.Hub
	nodes   *registry.Registry
	rules   *firewall.Store
	coord   *ingest.Coordinator
	handler http.Handler
}

// newApp opens storage, loads persisted state and builds the HTTP handler.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	gw, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	if err := gw.Ping(ctx); err != nil {
		_ = gw.Close()
		return nil, fmt.Errorf("storage not reachable: %w", err)
	}

	a := &app{cfg: cfg, store: gw}
	a.hub = ws.NewHub(ws.Config{
		HistorySize: cfg.Broadcast.HistorySize,
		BufferSize:  cfg.Broadcast.BufferSize,
		SendTimeout: cfg.Broadcast.SendTimeout,
	})
	a.nodes = registry.New(gw, registry.Config{
		Shards: cfg.Registry.Shards,
		Strict: cfg.Registry.Strict,
	})
	a.rules = firewall.New(gw, firewall.Config{
		Shards:        cfg.Firewall.Shards,
		DefaultReason: cfg.Firewall.DefaultReason,
	})
	a.coord = ingest.New(gw, a.hub, a.rules, a.nodes, ingest.Config{
		Enforcement:        ingest.Enforcement(cfg.Ingest.Enforcement),
		DiscoverNodes:      cfg.Ingest.DiscoverNodes,
		DiscoveryInterval:  cfg.Ingest.DiscoveryInterval,
		DiscoveryCacheSize: cfg.Ingest.DiscoveryCacheSize,
		BlockedPenalty:     cfg.Ingest.BlockedPenalty,
		HistorySize:        cfg.Broadcast.HistorySize,
	})

	if err := a.load(ctx); err != nil {
		_ = gw.Close()
		return nil, err
	}

	handler := api.NewHandler(api.Deps{
		Ingest: a.coord,
		Events: gw,
		Nodes:  a.nodes,
		Rules:  a.rules,
		Hub:    a.hub,
		Health: gw,
	}, api.HandlerConfig{
		QuickBlockPenalty: cfg.Firewall.QuickBlockPenalty,
		AllowedOrigins:    cfg.Security.CORSOrigins,
	})

	mwCfg := api.DefaultChiMiddlewareConfig()
	mwCfg.CORSAllowedOrigins = cfg.Security.CORSOrigins
	mwCfg.RateLimitRequests = cfg.Security.RateLimitReqs
	mwCfg.RateLimitWindow = cfg.Security.RateLimitWindow
	mwCfg.RateLimitDisabled = cfg.Security.RateLimitDisabled

	a.handler = api.NewRouter(handler, api.NewChiMiddleware(mwCfg)).Setup()
	return a, nil
}

// load restores the registry, the rule store and the event sequence.
func (a *app) load(ctx context.Context) error {
	if err := a.nodes.Load(ctx); err != nil {
		return fmt.Errorf("load nodes: %w", err)
	}
	if err := a.rules.Load(ctx); err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	if err := a.coord.Restore(ctx); err != nil {
		return fmt.Errorf("restore events: %w", err)
	}
	logging.Info().
		Int("nodes", a.nodes.Len()).
		Int("rules", a.rules.Len()).
		Uint64("last_seq", a.coord.LastSeq()).
		Msg("State loaded")
	return nil
}

// buildTree registers every long-lived service. The returned cleanup stops
// the embedded NATS server, if one was started.
func (a *app) buildTree() (*supervisor.SupervisorTree, func(), error) {
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create supervisor tree: %w", err)
	}
	cleanup := func() {}

	if a.cfg.Storage.Backend == config.BackendBadger && a.cfg.Storage.GCInterval > 0 {
		tree.AddDataService(services.NewStoreGCService(a.store, a.cfg.Storage.GCInterval))
	}
	if a.cfg.Registry.OfflineAfter > 0 {
		tree.AddDataService(services.NewNodeSweeperService(a.nodes, a.cfg.Registry.OfflineAfter, a.cfg.Registry.SweepInterval))
	}

	tree.AddMessagingService(services.NewHubService(a.hub))

	if n := a.cfg.Ingest.NATS; n.Enabled {
		url := n.URL
		if n.EmbeddedServer {
			srv, err := ingest.StartEmbeddedServer(n.EmbeddedHost, n.EmbeddedPort)
			if err != nil {
				return nil, nil, fmt.Errorf("start embedded NATS: %w", err)
			}
			cleanup = srv.Shutdown
			url = srv.ClientURL()
			logging.Info().Str("url", url).Msg("Embedded NATS server started")
		}
		tree.AddMessagingService(ingest.NewNATSSubscriber(a.coord, ingest.NATSConfig{
			URL:           url,
			Subject:       n.Subject,
			QueueGroup:    n.QueueGroup,
			SubmitTimeout: n.SubmitTimeout,
		}))
	}

	srv := &http.Server{
		Addr:         a.cfg.Server.Addr(),
		Handler:      a.handler,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  a.cfg.Server.IdleTimeout,
	}
	tree.AddAPIService(services.NewHTTPServerService(srv, a.cfg.Server.ShutdownTimeout))

	return tree, cleanup, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func run(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing storage")
		}
	}()

	tree, cleanup, err := a.buildTree()
	if err != nil {
		return err
	}
	defer cleanup()

	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Str("backend", cfg.Storage.Backend).
		Str("enforcement", cfg.Ingest.Enforcement).
		Bool("nats", cfg.Ingest.NATS.Enabled).
		Msg("Starting Heimdall")

	err = tree.Serve(ctx)
	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		logging.Warn().Int("count", len(report)).Msg("Some services did not stop within the shutdown timeout")
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

/*
Package supervisor runs Heimdall's long-lived services under a suture v4 tree.

	heimdall
	├── data-layer
	│   ├── store-gc          (badger backend only)
	│   └── node-sweeper      (when registry.offline_after > 0)
	├── messaging-layer
	│   ├── event-hub
	│   └── nats-ingest       (when ingest.nats.enabled)
	└── api-layer
	    └── http-server

Each layer restarts its own children with backoff, so a crashing NATS
connection never takes the HTTP server down. Supervisor events are logged
through sutureslog into the zerolog logger.

Usage:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		return err
	}
	tree.AddMessagingService(services.NewHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService(srv, 10*time.Second))
	return tree.Serve(ctx)

The services subpackage adapts Heimdall components to suture.Service.
*/
package supervisor

// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

/*
Package supervisor provides process supervision for ShadowCheck using suture v4.

Long-running services are organized into two layers:

	RootSupervisor ("shadowcheck")
	├── DetectionSupervisor ("detection-layer")
	│   ├── detection-scheduler
	│   ├── alert-dispatcher
	│   └── websocket-hub
	└── APISupervisor ("api-layer")
	    └── http-server

A crash in the dispatcher or scheduler restarts within the detection layer
and leaves the HTTP server serving. Supervisor events are logged through
sutureslog, which the caller feeds with logging.NewSlogLogger so they share
the zerolog output.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddDetectionService(sched)
	tree.AddDetectionService(dispatcher)
	tree.AddDetectionService(hub)
	tree.AddAPIService(services.NewHTTPServerService(srv, cfg.Server.ShutdownTimeout))
	err = tree.Serve(ctx)

Failure handling uses suture's defaults: five failures decaying over 30
seconds trigger a 15 second backoff.
*/
package supervisor

// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

/*
Package main is the entry point for the ShadowCheck server.

ShadowCheck reads wireless observations, runs the surveillance detectors on a
schedule, correlates suspicious devices with the agency registry, dampens
findings against known safe zones and relationships, and alerts the operator.

# Application Architecture

	RootSupervisor ("shadowcheck")
	├── DetectionSupervisor ("detection-layer")
	│   ├── Detection Scheduler
	│   ├── Alert Dispatcher (watermill gochannel subscriber)
	│   └── WebSocket Hub
	└── APISupervisor ("api-layer")
	    └── HTTP Server

Startup order:

 1. .env file (optional, godotenv)
 2. Configuration: Koanf v2 with environment variables and config files
 3. Logging: zerolog with JSON/console output modes
 4. Database: DuckDB with every store's schema
 5. Measurement store: the DuckDB connection, or a pgx pool when
    MEASUREMENTS_DRIVER=pgx
 6. Detectors, correlator, context filter, consolidator and alerting
 7. Lease locker (badger or memory), scheduler and job seeding
 8. HTTP router
 9. Supervisor tree

# Configuration

	Priority: Environment variables > Config file > Defaults

Common environment variables:

	LOG_LEVEL=info                       # trace, debug, info, warn, error
	LOG_FORMAT=json                      # json or console
	DUCKDB_PATH=/data/shadowcheck.duckdb
	MEASUREMENTS_DRIVER=duckdb           # duckdb or pgx
	MEASUREMENTS_DSN=postgres://...      # required for pgx
	SELF_DEVICE_ID=AA:BB:...             # enables route correlation
	LEASE_BACKEND=badger                 # badger or memory
	WEBHOOK_ENABLED=true
	WEBHOOK_URL=https://...

# Signal Handling

SIGINT and SIGTERM cancel the root context. The supervisor stops the HTTP
server, scheduler and dispatcher, after which the lease store, the bus and
the database connections are closed.
*/
package main

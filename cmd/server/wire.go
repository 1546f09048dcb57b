// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/shadowcheck/internal/alerting"
	"github.com/tomtom215/shadowcheck/internal/anomaly"
	"github.com/tomtom215/shadowcheck/internal/api"
	"github.com/tomtom215/shadowcheck/internal/audit"
	"github.com/tomtom215/shadowcheck/internal/config"
	"github.com/tomtom215/shadowcheck/internal/contextfilter"
	"github.com/tomtom215/shadowcheck/internal/correlation"
	"github.com/tomtom215/shadowcheck/internal/database"
	"github.com/tomtom215/shadowcheck/internal/detection"
	"github.com/tomtom215/shadowcheck/internal/export"
	"github.com/tomtom215/shadowcheck/internal/logging"
	"github.com/tomtom215/shadowcheck/internal/measurement"
	"github.com/tomtom215/shadowcheck/internal/scheduler"
	"github.com/tomtom215/shadowcheck/internal/websocket"
)

type closer struct {
	name  string
	close func() error
}

// app holds the long-running services and everything that must be closed
// once they stop.
type app struct {
	hub        *websocket.Hub
	dispatcher *alerting.Dispatcher
	scheduler  *scheduler.Scheduler
	server     *http.Server

	closers []closer
}

func (a *app) onClose(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, close: fn})
}

// Close releases resources in reverse order of acquisition. It is safe to
// call more than once.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			logging.Error().Err(err).Str("resource", c.name).Msg("Error closing resource")
		}
	}
	a.closers = nil
}

// newApp builds the object graph. On error everything opened so far is
// closed.
func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	db, err := database.Open(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.onClose("database", db.Close)

	auditStore := audit.NewDuckDBStore(db.Conn())
	anomalyStore := anomaly.NewDuckDBStore(db.Conn())
	alertStore := alerting.NewDuckDBStore(db.Conn())
	correlationStore := correlation.NewDuckDBStore(db.Conn())
	contextStore := contextfilter.NewDuckDBStore(db.Conn())
	jobStore := scheduler.NewDuckDBStore(db.Conn())

	if err := db.InitSchema(ctx, auditStore, anomalyStore, alertStore, correlationStore, contextStore, jobStore); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	logging.Info().Msg("Database initialized successfully")

	measurements, err := a.openMeasurements(ctx, cfg.Measurements, db)
	if err != nil {
		return nil, err
	}

	custody := audit.NewLogger(auditStore)
	anomalies := anomaly.NewService(anomalyStore, custody)
	correlator := correlation.NewCorrelator(measurements, correlationStore, cfg.Correlation)
	filter := contextfilter.NewFilter(contextStore, cfg.ContextFilter)

	a.hub = websocket.NewHub()
	broadcaster := alerting.NewBroadcaster(a.hub)

	bus := alerting.NewBus()
	a.onClose("alert-bus", bus.Close)
	generator := alerting.NewGenerator(alertStore, bus, cfg.Alerting.Topic, cfg.Alerting.Threshold)
	workflow := alerting.NewWorkflow(alertStore, custody, broadcaster.AlertUpdated)
	a.dispatcher = alerting.NewDispatcher(bus, cfg.Alerting.Topic,
		broadcaster,
		alerting.NewWebhookNotifier(cfg.Alerting.Webhook, nil),
		alerting.NewDiscordNotifier(cfg.Alerting.Discord),
	)

	locker, err := a.openLocker(cfg.Scheduler)
	if err != nil {
		return nil, err
	}

	pipeline := scheduler.NewPipeline(scheduler.Dependencies{
		Measurements:   measurements,
		Runner:         detection.NewDefaultRunner(measurements, cfg.Detection),
		Correlator:     correlator,
		Filter:         filter,
		Consolidator:   anomaly.NewConsolidator(anomalyStore, custody),
		Anomalies:      anomalies,
		Alerts:         generator,
		FalsePositives: workflow,
	}, cfg.Retention.ArchiveAfter, cfg.Correlation.RegistryMinScore)

	a.scheduler = scheduler.NewScheduler(jobStore, pipeline, locker, cfg.Scheduler, func(summary scheduler.ExecutionSummary) {
		a.hub.Broadcast(websocket.MessageTypeJobCompleted, summary)
	})

	seeded, err := scheduler.SeedJobs(ctx, jobStore, cfg.Scheduler.Jobs)
	if err != nil {
		return nil, fmt.Errorf("failed to seed detection jobs: %w", err)
	}
	logging.Info().Int("seeded", seeded).Int("configured", len(cfg.Scheduler.Jobs)).Msg("Detection jobs ready")

	handler := api.NewHandler(api.Dependencies{
		Jobs:          a.scheduler,
		Alerts:        workflow,
		Anomalies:     anomalies,
		Correlations:  correlator,
		Zones:         contextStore,
		Relationships: filter,
		Exports:       export.NewBuilder(anomalies, correlationStore, custody, version),
	}, uuid.NewString)

	mw := api.NewChiMiddleware(api.ChiMiddlewareConfigFromServer(cfg.Server))
	router := api.NewRouter(handler, mw, a.hub, cfg.Server.Timeout)

	a.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.SetupChi(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return a, nil
}

// openMeasurements shares the DuckDB connection unless a pgx DSN is set.
func (a *app) openMeasurements(ctx context.Context, cfg config.MeasurementsConfig, db *database.DB) (measurement.Store, error) {
	if cfg.Driver != "pgx" {
		store := measurement.NewSQLStore(db.Conn())
		if err := store.CreateSchema(ctx); err != nil {
			return nil, err
		}
		return store, nil
	}

	pool, err := measurement.OpenPostgres(ctx, cfg.DSN, cfg.MaxOpenConns)
	if err != nil {
		return nil, err
	}
	a.onClose("measurements", pool.Close)
	logging.Info().Int("max_open_conns", cfg.MaxOpenConns).Msg("Reading observations from PostgreSQL")
	return measurement.NewSQLStore(pool), nil
}

// openLocker returns the lease backend named by cfg.LeaseBackend.
func (a *app) openLocker(cfg config.SchedulerConfig) (scheduler.Locker, error) {
	if cfg.LeaseBackend != "badger" {
		logging.Info().Msg("Using in-memory job leases")
		return scheduler.NewMemoryLocker(), nil
	}

	locker, err := scheduler.NewBadgerLocker(cfg.LeasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open lease store: %w", err)
	}
	a.onClose("leases", locker.Close)
	logging.Info().Str("path", cfg.LeasePath).Msg("Using badger job leases")
	return locker, nil
}

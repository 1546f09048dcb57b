// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	gorillaws "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/shadowcheck/internal/middleware"
	"github.com/tomtom215/shadowcheck/internal/websocket"
)

// Router wires handlers and middleware into a chi mux.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
	hub           *websocket.Hub
	timeout       time.Duration
	upgrader      gorillaws.Upgrader
}

// NewRouter creates a router. A nil hub disables the alert feed and a
// non-positive timeout disables the per-request deadline.
func NewRouter(handler *Handler, mw *ChiMiddleware, hub *websocket.Hub, timeout time.Duration) *Router {
	origins := make(map[string]bool, len(mw.config.CORSAllowedOrigins))
	for _, o := range mw.config.CORSAllowedOrigins {
		origins[o] = true
	}
	return &Router{
		handler:       handler,
		chiMiddleware: mw,
		hub:           hub,
		timeout:       timeout,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origins["*"] || origins[origin]
			},
		},
	}
}

// SetupChi configures all HTTP routes.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())
	r.Use(middleware.Actor)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(APISecurityHeaders())
		r.Use(middleware.PrometheusMetrics)

		r.With(router.chiMiddleware.RateLimitHealth()).Get("/health", router.handler.Health)

		// The alert feed is long-lived, so it sits outside the request timeout.
		if router.hub != nil {
			r.Get("/ws/alerts", websocket.Handler(router.hub, router.upgrader))
		}

		// Manual runs execute synchronously for up to the job's max execution
		// time, so they are also exempt from the request timeout.
		r.With(router.chiMiddleware.RateLimitRun()).Post("/jobs/{id}/run", router.handler.RunJob)

		r.Group(func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimit())
			if router.timeout > 0 {
				r.Use(chimiddleware.Timeout(router.timeout))
			}

			r.Get("/jobs", router.handler.ListJobs)
			r.Get("/jobs/{id}", router.handler.GetJob)

			r.Get("/alerts", router.handler.ListAlerts)
			r.Post("/alerts/{id}/acknowledge", router.handler.AcknowledgeAlert)
			r.Post("/alerts/{id}/dismiss", router.handler.DismissAlert)

			r.Get("/anomalies", router.handler.ListAnomalies)
			r.Get("/anomalies/{id}", router.handler.GetAnomaly)
			r.Patch("/anomalies/{id}/status", router.handler.UpdateAnomalyStatus)
			r.Get("/anomalies/{id}/custody", router.handler.GetCustody)

			r.Post("/correlations/{deviceID}", router.handler.Correlate)

			r.Get("/safe-zones", router.handler.ListSafeZones)
			r.Post("/safe-zones", router.handler.CreateSafeZone)
			r.Delete("/safe-zones/{id}", router.handler.DeleteSafeZone)

			r.Put("/relationships", router.handler.ClassifyRelationship)

			r.With(router.chiMiddleware.RateLimitExport()).Post("/export", router.handler.Export)
		})
	})

	return r
}

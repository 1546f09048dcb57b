// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/shadowcheck/internal/config"
	"github.com/tomtom215/shadowcheck/internal/metrics"
)

func TestChiMiddlewareConfigFromServer(t *testing.T) {
	tests := []struct {
		name         string
		cfg          config.ServerConfig
		wantDisabled bool
		wantWindow   time.Duration
	}{
		{"configured", config.ServerConfig{RateLimitReqs: 50, RateLimitWindow: 30 * time.Second}, false, 30 * time.Second},
		{"default window", config.ServerConfig{RateLimitReqs: 50}, false, time.Minute},
		{"disabled", config.ServerConfig{RateLimitReqs: 0}, true, time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ChiMiddlewareConfigFromServer(tt.cfg)
			if c.RateLimitDisabled != tt.wantDisabled || c.RateLimitWindow != tt.wantWindow {
				t.Errorf("config = %+v", c)
			}
		})
	}
}

func TestRateLimitCustom_Rejects(t *testing.T) {
	mw := NewChiMiddleware(DefaultChiMiddlewareConfig())
	h := mw.RateLimitCustom("test_endpoint", RateLimitConfig{Requests: 2, Window: time.Minute})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))

	before := testutil.ToFloat64(metrics.APIRateLimitHits.WithLabelValues("test_endpoint"))

	codes := make([]int, 3)
	for i := range codes {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs/x/run", nil)
		req.RemoteAddr = "10.0.0.9:5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes[i] = rec.Code
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 200 429]", codes)
	}
	if got := testutil.ToFloat64(metrics.APIRateLimitHits.WithLabelValues("test_endpoint")) - before; got != 1 {
		t.Errorf("rate limit hits delta = %v, want 1", got)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	mw := NewChiMiddleware(&ChiMiddlewareConfig{RateLimitDisabled: true})
	h := mw.RateLimitRun()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))
	for i := 0; i < RateLimitRun.Requests+3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, rec.Code)
		}
	}
}

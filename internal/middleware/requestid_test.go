// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/tomtom215/shadowcheck/internal/logging"
)

func captureContext(mw func(http.Handler) http.Handler, req *http.Request) (context.Context, *httptest.ResponseRecorder) {
	var got context.Context
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Context()
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return got, rec
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"generates when absent", "", ""},
		{"preserves upstream", "proxy-abc-123", "proxy-abc-123"},
		{"strips control characters", "id\nforged", "idforged"},
		{"whitespace only", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("X-Request-ID", tt.header)
			}
			ctx, rec := captureContext(RequestID, req)

			id := GetRequestID(ctx)
			if tt.want != "" && id != tt.want {
				t.Errorf("request id = %q, want %q", id, tt.want)
			}
			if tt.want == "" {
				if _, err := uuid.Parse(id); err != nil {
					t.Errorf("generated id %q is not a UUID", id)
				}
			}
			if rec.Header().Get("X-Request-ID") != id {
				t.Errorf("response header = %q, want %q", rec.Header().Get("X-Request-ID"), id)
			}
			if logging.CorrelationIDFromContext(ctx) != id {
				t.Errorf("correlation id = %q, want %q", logging.CorrelationIDFromContext(ctx), id)
			}
		})
	}
}

func TestRequestID_Truncates(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("a", 300))
	ctx, _ := captureContext(RequestID, req)
	if got := len(GetRequestID(ctx)); got != maxHeaderID {
		t.Errorf("id length = %d, want %d", got, maxHeaderID)
	}
}

func TestGetRequestID_Missing(t *testing.T) {
	if id := GetRequestID(context.Background()); id != "" {
		t.Errorf("GetRequestID() = %q, want empty", id)
	}
}

func TestActor(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", DefaultActor},
		{"analyst-7", "analyst-7"},
		{"\t\n", DefaultActor},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Actor", tt.header)
		ctx, _ := captureContext(Actor, req)
		if got := ActorFromContext(ctx); got != tt.want {
			t.Errorf("X-Actor %q: actor = %q, want %q", tt.header, got, tt.want)
		}
	}
	if got := ActorFromContext(context.Background()); got != DefaultActor {
		t.Errorf("ActorFromContext(empty) = %q, want %q", got, DefaultActor)
	}
}

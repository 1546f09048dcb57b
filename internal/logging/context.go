// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	jobIDKey         contextKey = "job_id"
	executionIDKey   contextKey = "execution_id"
)

// GenerateCorrelationID returns a short random id for request tracing.
func GenerateCorrelationID() string {
	return uuid.New().String()[:8]
}

// ContextWithCorrelationID returns ctx carrying the given correlation id.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationIDFromContext returns the correlation id or "".
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithJob tags ctx with the detection job and execution being run.
// Every Ctx(ctx) event emitted during the execution carries both ids.
func ContextWithJob(ctx context.Context, jobID, executionID string) context.Context {
	ctx = context.WithValue(ctx, jobIDKey, jobID)
	return context.WithValue(ctx, executionIDKey, executionID)
}

// JobFromContext returns the job and execution ids, or empty strings.
func JobFromContext(ctx context.Context) (jobID, executionID string) {
	jobID, _ = ctx.Value(jobIDKey).(string)
	executionID, _ = ctx.Value(executionIDKey).(string)
	return jobID, executionID
}

// Ctx returns the global logger enriched with any ids stored in ctx.
//
//	logging.Ctx(ctx).Info().Int("anomalies", n).Msg("Consolidation complete")
func Ctx(ctx context.Context) *zerolog.Logger {
	logCtx := Logger().With()

	if id := CorrelationIDFromContext(ctx); id != "" {
		logCtx = logCtx.Str("correlation_id", id)
	}
	if jobID, execID := JobFromContext(ctx); jobID != "" {
		logCtx = logCtx.Str("job_id", jobID).Str("execution_id", execID)
	}

	l := logCtx.Logger()
	return &l
}

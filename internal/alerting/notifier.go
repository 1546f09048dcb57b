// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package alerting

import (
	"context"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/shadowcheck/internal/logging"
	"github.com/tomtom215/shadowcheck/internal/metrics"
)

// Notifier delivers alerts to one destination.
type Notifier interface {
	Name() string
	Enabled() bool
	Send(ctx context.Context, alert *Alert) error
}

// deliveryGuard throttles an outbound notifier and trips a circuit breaker
// after repeated failures.
//
// Circuit breaker configuration:
//   - 1 trial request in half-open state
//   - counts reset every minute while closed
//   - 1 minute open before a trial request
//   - opens after 5 consecutive failures
type deliveryGuard struct {
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[interface{}]
}

func newDeliveryGuard(name string, minGap time.Duration) *deliveryGuard {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	breaker := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.RecordCircuitTransition(name, from.String(), to.String())
			logging.Warn().
				Str("notifier", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Notifier circuit breaker state changed")
		},
	})

	return &deliveryGuard{
		limiter: rate.NewLimiter(rate.Every(minGap), 1),
		breaker: breaker,
	}
}

// do waits for the limiter, then runs fn through the breaker.
func (g *deliveryGuard) do(ctx context.Context, fn func() error) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

// state returns the breaker state name.
func (g *deliveryGuard) state() string {
	return g.breaker.State().String()
}

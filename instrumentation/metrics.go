package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the authkit library
type Metrics struct {
	// Enforcement metrics
	AuthRequestsTotal   metric.Int64Counter
	AuthRequestDuration metric.Float64Histogram
	AuthorizationDenied metric.Int64Counter
	RateLimitExceeded   metric.Int64Counter

	// Token lifecycle metrics
	TokenRefreshTotal metric.Int64Counter

	// Provider metrics
	ProviderCallsTotal   metric.Int64Counter
	ProviderCallDuration metric.Float64Histogram
	ProviderCallErrors   metric.Int64Counter

	// Session store metrics
	SessionOperationTotal    metric.Int64Counter
	SessionOperationDuration metric.Float64Histogram
	SessionsCount            metric.Int64ObservableGauge
	SessionsCleaned          metric.Int64Counter
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}
	middlewareMeter := inst.Meter("middleware")
	providerMeter := inst.Meter("provider")
	sessionMeter := inst.Meter("sessions")

	var err error

	m.AuthRequestsTotal, err = middlewareMeter.Int64Counter(
		"authkit.auth.requests.total",
		metric.WithDescription("Total number of requests evaluated by the enforcement middleware"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth.requests.total counter: %w", err)
	}

	m.AuthRequestDuration, err = middlewareMeter.Float64Histogram(
		"authkit.auth.request.duration",
		metric.WithDescription("Authentication decision duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth.request.duration histogram: %w", err)
	}

	m.AuthorizationDenied, err = middlewareMeter.Int64Counter(
		"authkit.authorization.denied",
		metric.WithDescription("Number of requests denied for missing scopes or permissions"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorization.denied counter: %w", err)
	}

	m.RateLimitExceeded, err = middlewareMeter.Int64Counter(
		"authkit.ratelimit.exceeded",
		metric.WithDescription("Number of requests rejected by rate limiting"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ratelimit.exceeded counter: %w", err)
	}

	m.TokenRefreshTotal, err = middlewareMeter.Int64Counter(
		"authkit.token.refresh.total",
		metric.WithDescription("Number of token refresh attempts, including deduplicated waiters"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token.refresh.total counter: %w", err)
	}

	m.ProviderCallsTotal, err = providerMeter.Int64Counter(
		"authkit.provider.calls.total",
		metric.WithDescription("Total number of identity provider API calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider.calls.total counter: %w", err)
	}

	m.ProviderCallDuration, err = providerMeter.Float64Histogram(
		"authkit.provider.call.duration",
		metric.WithDescription("Identity provider API call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider.call.duration histogram: %w", err)
	}

	m.ProviderCallErrors, err = providerMeter.Int64Counter(
		"authkit.provider.call.errors",
		metric.WithDescription("Number of failed identity provider API calls"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider.call.errors counter: %w", err)
	}

	m.SessionOperationTotal, err = sessionMeter.Int64Counter(
		"authkit.session.operations.total",
		metric.WithDescription("Total number of session store operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session.operations.total counter: %w", err)
	}

	m.SessionOperationDuration, err = sessionMeter.Float64Histogram(
		"authkit.session.operation.duration",
		metric.WithDescription("Session store operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session.operation.duration histogram: %w", err)
	}

	m.SessionsCount, err = sessionMeter.Int64ObservableGauge(
		"authkit.sessions.count",
		metric.WithDescription("Current number of live sessions in the store"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sessions.count gauge: %w", err)
	}

	m.SessionsCleaned, err = sessionMeter.Int64Counter(
		"authkit.sessions.cleaned",
		metric.WithDescription("Number of sessions removed by expiry sweeps"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sessions.cleaned counter: %w", err)
	}

	return m, nil
}

// Helper methods for common metric recording patterns.
// All helpers are nil-safe so call sites do not need instrumentation guards.

// RecordAuthRequest records an enforcement decision and its latency
func (m *Metrics) RecordAuthRequest(ctx context.Context, outcome, provider string, durationMs float64) {
	if m == nil {
		return
	}
	m.AuthRequestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("provider", provider),
	))
	m.AuthRequestDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

// RecordAuthorizationDenied records a scope or permission denial
func (m *Metrics) RecordAuthorizationDenied(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.AuthorizationDenied.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

// RecordRateLimitExceeded records a rate limit rejection
func (m *Metrics) RecordRateLimitExceeded(ctx context.Context, limiterType string) {
	if m == nil {
		return
	}
	m.RateLimitExceeded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("limiter_type", limiterType),
	))
}

// RecordTokenRefresh records a token refresh attempt.
// deduped marks waiters that reused an in-flight refresh result instead of
// issuing their own provider call.
func (m *Metrics) RecordTokenRefresh(ctx context.Context, provider string, success, deduped bool) {
	if m == nil {
		return
	}
	m.TokenRefreshTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.Bool("success", success),
		attribute.Bool("deduped", deduped),
	))
}

// RecordProviderCall records an identity provider API call
func (m *Metrics) RecordProviderCall(ctx context.Context, provider, operation string, durationMs float64, err error) {
	if m == nil {
		return
	}
	m.ProviderCallsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("operation", operation),
	))
	m.ProviderCallDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("operation", operation),
	))
	if err != nil {
		m.ProviderCallErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("operation", operation),
		))
	}
}

// RecordSessionOperation records a session store operation
func (m *Metrics) RecordSessionOperation(ctx context.Context, backend, operation, result string, durationMs float64) {
	if m == nil {
		return
	}
	m.SessionOperationTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("operation", operation),
		attribute.String("result", result),
	))
	m.SessionOperationDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("operation", operation),
	))
}

// RecordSessionsCleaned records the result of an expiry sweep
func (m *Metrics) RecordSessionsCleaned(ctx context.Context, backend string, removed int) {
	if m == nil || removed <= 0 {
		return
	}
	m.SessionsCleaned.Add(ctx, int64(removed), metric.WithAttributes(
		attribute.String("backend", backend),
	))
}

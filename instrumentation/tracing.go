package instrumentation

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common span attribute keys.
//
// SECURITY: never put credential values (access tokens, refresh tokens,
// authorization codes, API keys) in span attributes. Traces outlive requests,
// replicate across monitoring infrastructure, and are visible to wider
// audiences than production systems. Only record metadata: provider names,
// outcomes, scope lists, and boolean presence flags.
const (
	// Enforcement attributes
	AttrUserID      = "auth.user_id"
	AttrProvider    = "auth.provider"
	AttrRequirement = "auth.requirement"
	AttrOutcome     = "auth.outcome"
	AttrScopes      = "auth.scopes"
	AttrOperation   = "auth.operation"

	// Provider call attributes
	AttrProviderOperation = "provider.operation"

	// Session store attributes
	AttrStoreBackend   = "session.store.backend"
	AttrStoreOperation = "session.store.operation"
)

// RecordError records an error on a span with an error status (nil-safe)
func RecordError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks a span as successful (nil-safe)
func SetSpanSuccess(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// SetSpanAttributes sets attributes on a span (nil-safe)
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span != nil {
		span.SetAttributes(attrs...)
	}
}

// AddAuthAttributes adds enforcement decision attributes to a span (nil-safe).
// The user ID should be a hashed or opaque identifier, never an email.
func AddAuthAttributes(span trace.Span, provider, requirement, operation string) {
	SetSpanAttributes(span,
		attribute.String(AttrProvider, provider),
		attribute.String(AttrRequirement, requirement),
		attribute.String(AttrOperation, operation),
	)
}

// AddProviderAttributes adds provider call attributes to a span (nil-safe)
func AddProviderAttributes(span trace.Span, providerName, operation string) {
	SetSpanAttributes(span,
		attribute.String(AttrProvider, providerName),
		attribute.String(AttrProviderOperation, operation),
	)
}

// AddStoreAttributes adds session store operation attributes to a span (nil-safe)
func AddStoreAttributes(span trace.Span, backend, operation string) {
	SetSpanAttributes(span,
		attribute.String(AttrStoreBackend, backend),
		attribute.String(AttrStoreOperation, operation),
	)
}

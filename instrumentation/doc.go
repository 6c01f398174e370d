// Package instrumentation provides OpenTelemetry metrics and tracing for the
// authkit library.
//
// Instrumentation is optional: when disabled (or not configured at all) the
// package wires no-op meter and tracer providers, so the hot path carries no
// observability overhead. The middleware and session stores accept an
// *Instrumentation and record authentication outcomes, token refreshes,
// authorization denials, provider call latency, and session store operation
// latency and size.
package instrumentation

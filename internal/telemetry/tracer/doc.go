// Package tracer provides OpenTelemetry tracing for Zephyrite.
//
// A Provider always records spans. When a collector endpoint is configured
// the spans are batched to Jaeger; otherwise they are sampled and dropped,
// which keeps span propagation and the HTTP middleware uniform.
package tracer

// Package tracing holds the per-tenant span reporter registry. Each tenant
// (route) gets its own tracer provider so endpoints can ship spans to
// different collectors with different service names.
package tracing

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Root-span attribute keys.
const (
	AttrSourceName    = "gateway.source"
	AttrOperationName = "graphql.operation.name"
	AttrRequestID     = "gateway.request_id"
	AttrHTTPStatus    = "http.response.status_code"
)

// ReporterConfig configures one tenant's span reporter.
type ReporterConfig struct {
	// Endpoint is the OTLP/HTTP collector URL. Empty disables exporting for
	// the tenant (spans become no-ops).
	Endpoint string
	// ServiceName is the reported service.name resource attribute.
	ServiceName string
}

// Manager is the per-tenant registry of tracer providers.
type Manager struct {
	mu        sync.RWMutex
	providers map[int]*sdktrace.TracerProvider
}

// NewManager builds an empty registry.
func NewManager() *Manager {
	return &Manager{providers: make(map[int]*sdktrace.TracerProvider)}
}

// Register builds and installs a tenant's tracer provider. Registering the
// same tenant twice replaces the previous provider without shutting it
// down; callers own that lifecycle.
func (m *Manager) Register(ctx context.Context, tenantID int, cfg ReporterConfig) error {
	if cfg.Endpoint == "" {
		return nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.Endpoint))
	if err != nil {
		return err
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "graphql-gateway"
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", serviceName),
			attribute.Int("gateway.tenant_id", tenantID),
		)),
	)

	m.mu.Lock()
	m.providers[tenantID] = provider
	m.mu.Unlock()

	return nil
}

// Tracer returns the tenant's tracer, or a no-op tracer when the tenant has
// no registered reporter.
func (m *Manager) Tracer(tenantID int) trace.Tracer {
	m.mu.RLock()
	provider, ok := m.providers[tenantID]
	m.mu.RUnlock()

	if !ok {
		return noop.NewTracerProvider().Tracer("gateway")
	}
	return provider.Tracer("gateway")
}

// Shutdown flushes and stops every registered provider.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	providers := m.providers
	m.providers = make(map[int]*sdktrace.TracerProvider)
	m.mu.Unlock()

	var errs []error
	for _, p := range providers {
		if err := p.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StartRootSpan opens the per-request root span with the gateway's root-span
// attribute policy: the bound source and the request correlation id at
// start, the operation name and status code attached as they become known.
func StartRootSpan(ctx context.Context, tracer trace.Tracer, sourceName, requestID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "gateway.execute",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String(AttrSourceName, sourceName),
			attribute.String(AttrRequestID, requestID),
		),
	)
}

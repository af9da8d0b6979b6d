package plugins

import (
	"context"

	"github.com/n9te9/graphql-gateway/internal/execcontext"
	"github.com/n9te9/graphql-gateway/internal/httpmsg"
	"github.com/n9te9/graphql-gateway/internal/pluginapi"
	"github.com/n9te9/graphql-gateway/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func init() {
	pluginapi.Register("telemetry", func(config map[string]any) (pluginapi.Plugin, error) {
		var cfg TelemetryConfig
		if err := pluginapi.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		return NewTelemetry(cfg), nil
	})
}

const stateRootSpan = "telemetry.span"

// TelemetryConfig configures the per-tenant span reporter.
type TelemetryConfig struct {
	// Endpoint is the OTLP/HTTP collector URL.
	Endpoint string `json:"endpoint"`
	// ServiceName is the reported service.name. Defaults to the gateway
	// service name.
	ServiceName string `json:"service_name"`
}

// Telemetry opens a root span per request and closes it in the terminal
// response hook. The span reporter is registered per tenant by the server
// shell via Bind, after tenant ids are assigned.
type Telemetry struct {
	cfg      TelemetryConfig
	manager  *tracing.Manager
	tenantID int
}

func NewTelemetry(cfg TelemetryConfig) *Telemetry {
	return &Telemetry{cfg: cfg}
}

func (p *Telemetry) Name() string { return "telemetry" }

// Config exposes the reporter config for tenant registration.
func (p *Telemetry) Config() tracing.ReporterConfig {
	return tracing.ReporterConfig{Endpoint: p.cfg.Endpoint, ServiceName: p.cfg.ServiceName}
}

// Bind attaches the plugin to its tenant's reporter. Before Bind the plugin
// is a no-op.
func (p *Telemetry) Bind(tenantID int, manager *tracing.Manager) {
	p.tenantID = tenantID
	p.manager = manager
}

func (p *Telemetry) OnDownstreamHTTPRequest(ctx context.Context, rctx *execcontext.Context) error {
	if p.manager == nil {
		return nil
	}

	tracer := p.manager.Tracer(p.tenantID)
	_, span := tracing.StartRootSpan(ctx, tracer, rctx.Request.URI, rctx.RequestID)
	rctx.Set(stateRootSpan, span)
	return nil
}

func (p *Telemetry) OnDownstreamGraphQLRequest(ctx context.Context, rctx *execcontext.Context) error {
	span := p.span(rctx)
	if span == nil {
		return nil
	}

	name := rctx.GraphQL.OperationName
	if name == "" {
		name = "anonymous"
	}
	span.SetAttributes(attribute.String(tracing.AttrOperationName, name))
	return nil
}

func (p *Telemetry) OnDownstreamHTTPResponse(rctx *execcontext.Context, resp *httpmsg.Response) {
	span := p.span(rctx)
	if span == nil {
		return
	}

	span.SetAttributes(attribute.Int(tracing.AttrHTTPStatus, resp.Status))
	span.End()
}

func (p *Telemetry) span(rctx *execcontext.Context) trace.Span {
	v, ok := rctx.Get(stateRootSpan)
	if !ok {
		return nil
	}
	span, _ := v.(trace.Span)
	return span
}

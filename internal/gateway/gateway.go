// Package gateway matches incoming HTTP requests to routes and drives the
// request execution pipeline.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/n9te9/graphql-gateway/internal/execcontext"
	"github.com/n9te9/graphql-gateway/internal/gqlmsg"
	"github.com/n9te9/graphql-gateway/internal/httpmsg"
	"github.com/n9te9/graphql-gateway/internal/pluginmgr"
	"github.com/n9te9/graphql-gateway/internal/source"
)

// ErrMissingEndpoint is returned when no route matches the request path.
var ErrMissingEndpoint = errors.New("no endpoint matches the request path")

// Route is an immutable mount point: a path prefix bound to one source and
// one compiled plugin chain. TenantID is the stable integer used as the
// tracing key.
type Route struct {
	Path     string
	Source   source.Source
	Plugins  *pluginmgr.Manager
	TenantID int
}

// Gateway owns the route table.
type Gateway struct {
	routes   []*Route
	byPrefix []*Route
	logger   *slog.Logger

	printPerformanceInfo bool
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithPerformanceInfo adds a per-request duration attribute to the access
// log record.
func WithPerformanceInfo() Option {
	return func(g *Gateway) { g.printPerformanceInfo = true }
}

// New builds a gateway over routes. Tenant ids are assigned in route
// declaration order.
func New(logger *slog.Logger, routes []*Route, opts ...Option) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}

	for i, r := range routes {
		r.TenantID = i
	}

	// Prefix matching prefers the longest prefix, so a /graphql/admin mount
	// is never shadowed by /graphql regardless of declaration order.
	byPrefix := make([]*Route, len(routes))
	copy(byPrefix, routes)
	sort.SliceStable(byPrefix, func(i, j int) bool {
		return len(byPrefix[i].Path) > len(byPrefix[j].Path)
	})

	g := &Gateway{routes: routes, byPrefix: byPrefix, logger: logger}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Routes returns the route table in declaration order.
func (g *Gateway) Routes() []*Route { return g.routes }

// MatchRoute resolves path to exactly one route: exact match first, then
// longest-prefix match.
func (g *Gateway) MatchRoute(path string) (*Route, error) {
	for _, r := range g.routes {
		if r.Path == path {
			return r, nil
		}
	}
	for _, r := range g.byPrefix {
		if strings.HasPrefix(path, r.Path) {
			return r, nil
		}
	}
	return nil, ErrMissingEndpoint
}

// Handle matches the request to a route and executes the pipeline. An
// unmatched path gets a plain 404; everything else ends in a well-formed
// response from Execute.
func (g *Gateway) Handle(ctx context.Context, req *httpmsg.Request) *httpmsg.Response {
	route, err := g.MatchRoute(req.URI)
	if err != nil {
		resp := &httpmsg.Response{
			Status: http.StatusNotFound,
			Body:   []byte(fmt.Sprintf("no endpoint found for %s", req.URI)),
		}
		resp.Headers.Set("content-type", "text/plain")
		return resp
	}

	return g.Execute(ctx, req, route)
}

// Execute runs the eight-phase pipeline of the request lifecycle. It never
// panics on user-driven input: every failure path ends in a response, and
// the downstream_http_response chain runs on every exit.
func (g *Gateway) Execute(ctx context.Context, req *httpmsg.Request, route *Route) *httpmsg.Response {
	start := time.Now()
	rctx := execcontext.New(req)
	accept := req.Headers.Get("accept")

	resp := g.execute(ctx, rctx, route, accept)

	attrs := []any{
		"request_id", rctx.RequestID,
		"path", req.URI,
		"method", req.Method,
		"source", route.Source.ID(),
		"status", resp.Status,
	}
	if g.printPerformanceInfo {
		attrs = append(attrs, "duration", time.Since(start).String())
	}
	g.logger.Info("request handled", attrs...)

	return resp
}

func (g *Gateway) execute(ctx context.Context, rctx *execcontext.Context, route *Route, accept string) *httpmsg.Response {
	// Phase 1: raw HTTP request hooks.
	if err := route.Plugins.OnDownstreamHTTPRequest(ctx, rctx); err != nil {
		return g.finish(rctx, route, gqlmsg.NewErrorResponse(err.Error()).ToHTTPResponse(http.StatusInternalServerError))
	}
	if rctx.ShortCircuited() {
		return g.finish(rctx, route, rctx.TakeShortCircuit())
	}

	// Phase 2: default POST extraction, unless a plugin already extracted.
	if rctx.GraphQL == nil && rctx.Request.Method == http.MethodPost {
		gqlReq, err := gqlmsg.ExtractFromPOST(rctx.Request)
		if err != nil {
			return g.finish(rctx, route, gqlmsg.ErrorHTTPResponse(accept, err.Error(), http.StatusBadRequest))
		}
		parsed, err := gqlmsg.Parse(gqlReq)
		if err != nil {
			return g.finish(rctx, route, gqlmsg.ErrorHTTPResponse(accept, err.Error(), http.StatusBadRequest))
		}
		rctx.GraphQL = parsed
	}

	// Phase 3: nothing extracted a GraphQL request (e.g. an unclaimed GET).
	if rctx.GraphQL == nil {
		resp := gqlmsg.NewErrorResponse("failed to extract a GraphQL operation from the request").ToHTTPResponse(http.StatusBadRequest)
		return g.finish(rctx, route, resp)
	}

	// Phase 4: parsed GraphQL request hooks.
	if err := route.Plugins.OnDownstreamGraphQLRequest(ctx, rctx); err != nil {
		return g.finish(rctx, route, gqlmsg.NewErrorResponse(err.Error()).ToHTTPResponse(http.StatusInternalServerError))
	}
	if rctx.ShortCircuited() {
		return g.finish(rctx, route, rctx.TakeShortCircuit())
	}

	// Phase 5: source execution.
	gqlResp, err := route.Source.Execute(ctx, rctx, route.Plugins)
	if err != nil {
		var srcErr *source.Error
		if errors.As(err, &srcErr) && srcErr.Kind == source.KindShortCircuit {
			if sc := rctx.TakeShortCircuit(); sc != nil {
				return g.finish(rctx, route, sc)
			}
		}
		// Upstream failures become a GraphQL error response with status 200.
		return g.finish(rctx, route, gqlmsg.NewErrorResponse(err.Error()).ToHTTPResponse(http.StatusOK))
	}

	// Phase 6: convert to HTTP.
	return g.finish(rctx, route, gqlResp.ToHTTPResponse(http.StatusOK))
}

// finish is phases 7 and 8: the downstream_http_response chain always runs,
// including on every short-circuit and error exit.
func (g *Gateway) finish(rctx *execcontext.Context, route *Route, resp *httpmsg.Response) *httpmsg.Response {
	route.Plugins.OnDownstreamHTTPResponse(rctx, resp)
	return resp
}

// ServeHTTP adapts the gateway to net/http for the standalone shell.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, err := httpmsg.FromHTTPRequest(r)
	if err != nil {
		http.Error(w, "failed to read request", http.StatusBadRequest)
		return
	}

	resp := g.Handle(r.Context(), req)
	if err := resp.WriteTo(w); err != nil {
		g.logger.Warn("failed to write response", "error", err)
	}
}

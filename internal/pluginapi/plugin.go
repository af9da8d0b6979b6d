// Package pluginapi defines the plugin hook contracts. A plugin implements
// Plugin plus any subset of the per-hook interfaces; the manager discovers
// the hooks a plugin supports with type assertions, so adding a hook to a
// plugin never requires touching the others.
package pluginapi

import (
	"context"

	"github.com/n9te9/graphql-gateway/internal/execcontext"
	"github.com/n9te9/graphql-gateway/internal/httpmsg"
)

// Plugin is the minimal contract every plugin satisfies.
type Plugin interface {
	Name() string
}

// DownstreamHTTPRequestHook runs against the raw client request before any
// GraphQL extraction. May short-circuit via rctx.
type DownstreamHTTPRequestHook interface {
	OnDownstreamHTTPRequest(ctx context.Context, rctx *execcontext.Context) error
}

// DownstreamGraphQLRequestHook runs after extraction, against the parsed
// GraphQL request. May short-circuit via rctx.
type DownstreamGraphQLRequestHook interface {
	OnDownstreamGraphQLRequest(ctx context.Context, rctx *execcontext.Context) error
}

// UpstreamHTTPRequestHook runs against each outgoing subgraph request. May
// short-circuit via rctx, aborting the upstream call.
type UpstreamHTTPRequestHook interface {
	OnUpstreamHTTPRequest(ctx context.Context, rctx *execcontext.Context, outgoing *httpmsg.Request) error
}

// UpstreamHTTPResponseHook observes or mutates each raw subgraph response.
type UpstreamHTTPResponseHook interface {
	OnUpstreamHTTPResponse(ctx context.Context, rctx *execcontext.Context, resp *httpmsg.Response) error
}

// DownstreamHTTPResponseHook mutates the final response before it leaves
// the gateway. It is synchronous and runs on every exit path, including
// short-circuits, so it must not perform I/O.
type DownstreamHTTPResponseHook interface {
	OnDownstreamHTTPResponse(rctx *execcontext.Context, resp *httpmsg.Response)
}

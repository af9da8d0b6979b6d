// Package pluginmgr drives the ordered plugin chain for one route.
package pluginmgr

import (
	"context"

	"github.com/n9te9/graphql-gateway/internal/execcontext"
	"github.com/n9te9/graphql-gateway/internal/httpmsg"
	"github.com/n9te9/graphql-gateway/internal/pluginapi"
	"go.uber.org/zap"
)

// Manager invokes plugins in declaration order. After each request-phase
// hook (downstream HTTP request, downstream GraphQL request, upstream HTTP
// request) it checks the context's short-circuit slot and stops that chain
// when it is occupied; the OnUpstreamHTTPResponse and
// OnDownstreamHTTPResponse chains run every plugin unconditionally.
type Manager struct {
	plugins []pluginapi.Plugin
	logger  *zap.Logger
}

// New builds a manager over plugins. The logger records the compiled chain
// once at construction.
func New(logger *zap.Logger, plugins ...pluginapi.Plugin) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}

	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name()
	}
	logger.Debug("compiled plugin chain", zap.Strings("plugins", names))

	return &Manager{plugins: plugins, logger: logger}
}

// Plugins returns the ordered plugin set.
func (m *Manager) Plugins() []pluginapi.Plugin {
	return m.plugins
}

// OnDownstreamHTTPRequest runs the downstream_http_request chain.
func (m *Manager) OnDownstreamHTTPRequest(ctx context.Context, rctx *execcontext.Context) error {
	for _, p := range m.plugins {
		hook, ok := p.(pluginapi.DownstreamHTTPRequestHook)
		if !ok {
			continue
		}
		if err := hook.OnDownstreamHTTPRequest(ctx, rctx); err != nil {
			return err
		}
		if rctx.ShortCircuited() {
			return nil
		}
	}
	return nil
}

// OnDownstreamGraphQLRequest runs the downstream_graphql_request chain.
func (m *Manager) OnDownstreamGraphQLRequest(ctx context.Context, rctx *execcontext.Context) error {
	for _, p := range m.plugins {
		hook, ok := p.(pluginapi.DownstreamGraphQLRequestHook)
		if !ok {
			continue
		}
		if err := hook.OnDownstreamGraphQLRequest(ctx, rctx); err != nil {
			return err
		}
		if rctx.ShortCircuited() {
			return nil
		}
	}
	return nil
}

// OnUpstreamHTTPRequest runs the upstream_http_request chain against one
// outgoing subgraph request.
func (m *Manager) OnUpstreamHTTPRequest(ctx context.Context, rctx *execcontext.Context, outgoing *httpmsg.Request) error {
	for _, p := range m.plugins {
		hook, ok := p.(pluginapi.UpstreamHTTPRequestHook)
		if !ok {
			continue
		}
		if err := hook.OnUpstreamHTTPRequest(ctx, rctx, outgoing); err != nil {
			return err
		}
		if rctx.ShortCircuited() {
			return nil
		}
	}
	return nil
}

// OnUpstreamHTTPResponse runs the upstream_http_response chain.
func (m *Manager) OnUpstreamHTTPResponse(ctx context.Context, rctx *execcontext.Context, resp *httpmsg.Response) error {
	for _, p := range m.plugins {
		hook, ok := p.(pluginapi.UpstreamHTTPResponseHook)
		if !ok {
			continue
		}
		if err := hook.OnUpstreamHTTPResponse(ctx, rctx, resp); err != nil {
			return err
		}
	}
	return nil
}

// OnDownstreamHTTPResponse runs the downstream_http_response chain. It
// never skips a plugin: the terminal hook is how plugins observe responses
// produced by short-circuits and error paths.
func (m *Manager) OnDownstreamHTTPResponse(rctx *execcontext.Context, resp *httpmsg.Response) {
	for _, p := range m.plugins {
		if hook, ok := p.(pluginapi.DownstreamHTTPResponseHook); ok {
			hook.OnDownstreamHTTPResponse(rctx, resp)
		}
	}
}
